// Package dto defines the admin surface response shapes.
package dto

import (
	"time"

	batchentity "risk_backend/internal/feature/batch/domain/entity"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
)

// BatchRunItem is one batch run in the admin status view.
type BatchRunItem struct {
	RunID          string     `json:"run_id"`
	JobType        string     `json:"job_type"`
	TargetDate     string     `json:"target_date"`
	Status         string     `json:"status"`
	TriggeredBy    string     `json:"triggered_by"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsFailed    int        `json:"items_failed"`
}

func NewBatchRunItem(run batchentity.BatchRun) BatchRunItem {
	return BatchRunItem{
		RunID:          run.RunID,
		JobType:        string(run.JobType),
		TargetDate:     run.TargetDate.Format("2006-01-02"),
		Status:         string(run.Status),
		TriggeredBy:    run.TriggeredBy,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		ItemsProcessed: run.ItemsProcessed,
		ItemsFailed:    run.ItemsFailed,
	}
}

// CacheStatus reports cache readiness for the admin status view.
type CacheStatus struct {
	Ready   bool `json:"ready"`
	Symbols int  `json:"symbols"`
}

// OnboardingStatus reports queue depth and retained failures.
type OnboardingStatus struct {
	Depth  int              `json:"depth"`
	Failed []OnboardingItem `json:"failed"`
}

// OnboardingItem is one onboarding job in the admin view.
type OnboardingItem struct {
	Symbol     string `json:"symbol"`
	State      string `json:"state"`
	Requester  string `json:"requester"`
	EnqueuedAt string `json:"enqueued_at"`
	LastError  string `json:"last_error,omitempty"`
}

// FailureItem is one recorded partial failure.
type FailureItem struct {
	Scope     string    `json:"scope"`
	Key       string    `json:"key"`
	RunID     string    `json:"run_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewFailureItem(rec failureentity.FailureRecord) FailureItem {
	return FailureItem{
		Scope:     string(rec.Scope),
		Key:       rec.Key,
		RunID:     rec.RunID,
		Message:   rec.Message,
		CreatedAt: rec.CreatedAt,
	}
}

// StatusResponse is the composite read-only admin status.
type StatusResponse struct {
	Running    []BatchRunItem                `json:"running"`
	RecentRuns []BatchRunItem                `json:"recent_runs"`
	Cache      CacheStatus                   `json:"cache"`
	Onboarding OnboardingStatus              `json:"onboarding"`
	Freshness  marketusecase.FreshnessStatus `json:"freshness"`
	Failures   []FailureItem                 `json:"failures"`
}

// EnqueueRequest is the body of an onboarding trigger.
type EnqueueRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// TriggerRequest is the optional body of a batch trigger.
type TriggerRequest struct {
	TargetDate string `json:"target_date"` // YYYY-MM-DD, empty means latest trading day
	Backfill   *bool  `json:"backfill"`    // symbol batch only, default true
}
