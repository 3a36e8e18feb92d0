// Package entity defines the transient onboarding job model. Jobs live in
// process memory only and are lost on restart; the requester retries on
// failure.
package entity

import "time"

// JobState is the lifecycle state of an onboarding job.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobFailed     JobState = "failed"
)

// OnboardingJob is one unit of work bringing a new symbol online. Successful
// jobs are removed; only failures are retained, with the error, until
// cleared.
type OnboardingJob struct {
	Symbol     string
	State      JobState
	Requester  string
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	LastError  string
}
