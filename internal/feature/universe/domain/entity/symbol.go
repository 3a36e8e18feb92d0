// Package entity defines the symbol universe domain models.
package entity

import "time"

// Status is the lifecycle state of a symbol in the universe.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusDelisted Status = "delisted"
	StatusError    Status = "error"
)

// CanTransitionTo reports whether the lifecycle transition s -> next is legal.
// Transitions are monotone except reactivation of delisted or errored symbols.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusError
	case StatusActive:
		return next == StatusDelisted || next == StatusError
	case StatusDelisted, StatusError:
		return next == StatusActive
	default:
		return false
	}
}

// Source records how a symbol entered the universe.
type Source string

const (
	SourceBatchSeed  Source = "batch_seed"
	SourceOnboarding Source = "onboarding"
	SourceAdmin      Source = "admin"
)

// SymbolRecord is a tradable symbol known to the system.
type SymbolRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:20;not null;uniqueIndex"`
	Name      string    `gorm:"size:255"`
	Status    Status    `gorm:"size:16;not null;default:pending;index"`
	Source    Source    `gorm:"size:32;not null"`
	FirstSeen time.Time `gorm:"not null"`
	LastSeen  time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (SymbolRecord) TableName() string {
	return "symbols"
}
