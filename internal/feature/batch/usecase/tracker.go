// Package usecase implements batch coordination: the in-process run tracker,
// the shared symbol pipeline, and the nightly symbol batch runner.
package usecase

import (
	"sync"
	"time"

	"risk_backend/internal/feature/batch/domain/entity"
)

// Tracker is the process-wide registry of in-flight batch jobs, keyed by job
// type. Jobs of different types run concurrently; jobs of the same type are
// serialized. All mutations pass through one critical section so concurrent
// start attempts cannot race.
type Tracker struct {
	mu   sync.Mutex
	jobs map[entity.JobType]*entity.BatchRun
}

func NewTracker() *Tracker {
	return &Tracker{jobs: map[entity.JobType]*entity.BatchRun{}}
}

// StartJob registers a run of the given type. It returns false, without
// side effects, when a run of that type is already non-terminal.
func (t *Tracker) StartJob(jobType entity.JobType, runID, triggeredBy string, targetDate time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.jobs[jobType]; ok && !cur.Status.IsTerminal() {
		return false
	}
	t.jobs[jobType] = &entity.BatchRun{
		RunID:       runID,
		JobType:     jobType,
		TargetDate:  targetDate,
		Status:      entity.RunRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
	}
	return true
}

// CompleteJob finalizes the current run of the given type.
func (t *Tracker) CompleteJob(jobType entity.JobType, status entity.RunStatus, processed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.jobs[jobType]
	if !ok || cur.Status.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	cur.Status = status
	cur.ItemsProcessed = processed
	cur.ItemsFailed = failed
	cur.FinishedAt = &now
}

// GetJob returns a copy of the latest run of the given type, if any.
func (t *Tracker) GetJob(jobType entity.JobType) (entity.BatchRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.jobs[jobType]
	if !ok {
		return entity.BatchRun{}, false
	}
	return *cur, true
}

// IsRunning reports whether a run of the given type is non-terminal.
func (t *Tracker) IsRunning(jobType entity.JobType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.jobs[jobType]
	return ok && !cur.Status.IsTerminal()
}

// ListRunning returns copies of all non-terminal runs.
func (t *Tracker) ListRunning() []entity.BatchRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []entity.BatchRun
	for _, cur := range t.jobs {
		if !cur.Status.IsTerminal() {
			out = append(out, *cur)
		}
	}
	return out
}
