// Package entity defines the failure record model.
package entity

import "time"

// Scope classifies where a partial failure happened.
type Scope string

const (
	ScopeSymbol    Scope = "symbol"
	ScopePortfolio Scope = "portfolio"
	ScopeProvider  Scope = "provider"
	ScopeBatch     Scope = "batch"
)

// FailureRecord is one partial failure surfaced for operator visibility.
// Recording is observational: it never alters batch control flow.
type FailureRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Scope   Scope  `gorm:"size:16;not null;index"`
	Key     string `gorm:"size:64;not null;index"`
	RunID   string `gorm:"size:64;index"`
	Message string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (FailureRecord) TableName() string {
	return "failure_records"
}
