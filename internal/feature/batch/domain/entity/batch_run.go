// Package entity defines the batch coordination domain models.
package entity

import "time"

// JobType names a batch job family. At most one run per type may be
// non-terminal at any instant.
type JobType string

const (
	JobSymbolBatch      JobType = "symbol_batch"
	JobPortfolioRefresh JobType = "portfolio_refresh"
	JobSymbolOnboarding JobType = "symbol_onboarding"
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning            RunStatus = "running"
	RunCompleted          RunStatus = "completed"
	RunCompletedWithError RunStatus = "completed_with_errors"
	RunFailed             RunStatus = "failed"
	RunTimedOut           RunStatus = "timed_out"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunCompletedWithError, RunFailed, RunTimedOut:
		return true
	case RunRunning:
		return false
	default:
		return false
	}
}

// IsSuccess reports whether a dependent job may treat the run's target date
// as processed. A partially failed date still counts: per-symbol failures are
// isolated and must not starve downstream consumers.
func (s RunStatus) IsSuccess() bool {
	return s == RunCompleted || s == RunCompletedWithError
}

// BatchRun records one execution of a job type for one target date. Rows are
// the cross-process completion markers the portfolio refresh polls.
type BatchRun struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       string    `gorm:"size:64;not null;uniqueIndex"`
	JobType     JobType   `gorm:"size:32;not null;index"`
	TargetDate  time.Time `gorm:"not null;index"`
	Status      RunStatus `gorm:"size:32;not null;index"`
	TriggeredBy string    `gorm:"size:64;not null"`

	ItemsProcessed int `gorm:"not null;default:0"`
	ItemsFailed    int `gorm:"not null;default:0"`

	StartedAt  time.Time  `gorm:"not null"`
	FinishedAt *time.Time `gorm:""`
}

func (BatchRun) TableName() string {
	return "batch_runs"
}
