// Package usecase implements the bounded on-demand symbol onboarding queue.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	batchentity "risk_backend/internal/feature/batch/domain/entity"
	batchusecase "risk_backend/internal/feature/batch/usecase"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	failureusecase "risk_backend/internal/feature/failures/usecase"
	"risk_backend/internal/feature/onboarding/domain/entity"
	universeentity "risk_backend/internal/feature/universe/domain/entity"
	universeusecase "risk_backend/internal/feature/universe/usecase"
	"risk_backend/internal/shared/calendar"
)

// ErrQueueFull is surfaced to the caller when the pending queue is at
// capacity. The caller does not retry; the user does.
var ErrQueueFull = errors.New("onboarding queue is full")

// SymbolProcessor runs the fetch/compute/write-through sequence for one
// symbol. Satisfied by the batch pipeline.
type SymbolProcessor interface {
	ProcessSymbol(ctx context.Context, symbol string, date time.Time) error
}

// UniverseRegistry is the slice of the universe usecase the queue needs.
type UniverseRegistry interface {
	IsActive(ctx context.Context, code string) (bool, error)
	RegisterPending(ctx context.Context, code string, source universeentity.Source) error
	Activate(ctx context.Context, code string, source universeentity.Source) error
	Transition(ctx context.Context, code string, next universeentity.Status) error
}

// QueueConfig tunes the onboarding queue.
type QueueConfig struct {
	Workers  int // concurrent symbol processors
	MaxDepth int // pending capacity before Enqueue fails fast
}

func (c *QueueConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 50
	}
}

// Queue processes previously-unseen symbols with bounded concurrency. Jobs
// live in memory only: a restart drops them and the requester retries. Dedup
// is two-layered: a symbol already queued in memory is rejected, and so is a
// symbol already active in the universe table.
type Queue struct {
	processor SymbolProcessor
	universe  UniverseRegistry
	tracker   *batchusecase.Tracker
	failures  *failureusecase.Recorder
	cal       *calendar.Calendar
	cfg       QueueConfig

	pending chan string

	mu          sync.Mutex
	jobs        map[string]*entity.OnboardingJob
	outstanding int // jobs in pending or processing state
	processed   int // per-busy-window counters for the tracker
	failed      int
}

func NewQueue(
	processor SymbolProcessor,
	universe UniverseRegistry,
	tracker *batchusecase.Tracker,
	failures *failureusecase.Recorder,
	cal *calendar.Calendar,
	cfg QueueConfig,
) *Queue {
	cfg.defaults()
	return &Queue{
		processor: processor,
		universe:  universe,
		tracker:   tracker,
		failures:  failures,
		cal:       cal,
		cfg:       cfg,
		pending:   make(chan string, cfg.MaxDepth),
		jobs:      map[string]*entity.OnboardingJob{},
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		go q.worker(ctx)
	}
}

// Enqueue submits a symbol for onboarding. It returns false without error
// when the symbol is already queued or already active, and ErrQueueFull when
// the pending queue is at capacity.
func (q *Queue) Enqueue(ctx context.Context, symbol, requester string) (bool, error) {
	symbol = universeusecase.Normalize(symbol)
	if symbol == "" {
		return false, errors.New("empty symbol")
	}

	active, err := q.universe.IsActive(ctx, symbol)
	if err != nil {
		return false, err
	}
	if active {
		return false, nil
	}

	q.mu.Lock()
	if job, ok := q.jobs[symbol]; ok && job.State != entity.JobFailed {
		q.mu.Unlock()
		return false, nil
	}
	select {
	case q.pending <- symbol:
	default:
		q.mu.Unlock()
		return false, ErrQueueFull
	}
	// A retained failure is superseded by the fresh attempt.
	q.jobs[symbol] = &entity.OnboardingJob{
		Symbol:     symbol,
		State:      entity.JobPending,
		Requester:  requester,
		EnqueuedAt: time.Now().UTC(),
	}
	q.outstanding++
	wasIdle := q.outstanding == 1
	q.mu.Unlock()

	if wasIdle {
		runID := fmt.Sprintf("%s-%d", batchentity.JobSymbolOnboarding, time.Now().UnixNano())
		q.tracker.StartJob(batchentity.JobSymbolOnboarding, runID, requester, time.Now().UTC())
	}

	if err := q.universe.RegisterPending(ctx, symbol, universeentity.SourceOnboarding); err != nil {
		slog.Warn("failed to register pending symbol", "symbol", symbol, "error", err)
	}
	return true, nil
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case symbol := <-q.pending:
			q.process(ctx, symbol)
		}
	}
}

func (q *Queue) process(ctx context.Context, symbol string) {
	q.mu.Lock()
	job, ok := q.jobs[symbol]
	if !ok {
		q.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.State = entity.JobProcessing
	job.StartedAt = &now
	q.mu.Unlock()

	date := q.cal.MostRecentTradingDay(time.Now().UTC())
	err := q.processor.ProcessSymbol(ctx, symbol, date)

	if err == nil {
		if aerr := q.universe.Activate(ctx, symbol, universeentity.SourceOnboarding); aerr != nil {
			err = fmt.Errorf("activate symbol: %w", aerr)
		}
	}

	q.mu.Lock()
	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if err == nil {
		// Success leaves no trace: only failures are retained.
		delete(q.jobs, symbol)
		q.processed++
	} else {
		job.State = entity.JobFailed
		job.LastError = err.Error()
		q.failed++
	}
	q.outstanding--
	drained := q.outstanding == 0
	processed, failed := q.processed, q.failed
	if drained {
		q.processed, q.failed = 0, 0
	}
	q.mu.Unlock()

	if err != nil {
		slog.Warn("symbol onboarding failed", "symbol", symbol, "error", err)
		q.failures.Record(ctx, failureentity.ScopeSymbol, symbol, "", err)
		if terr := q.universe.Transition(ctx, symbol, universeentity.StatusError); terr != nil {
			slog.Warn("failed to mark symbol errored", "symbol", symbol, "error", terr)
		}
	}

	if drained {
		status := batchentity.RunCompleted
		if failed > 0 {
			status = batchentity.RunCompletedWithError
		}
		q.tracker.CompleteJob(batchentity.JobSymbolOnboarding, status, processed, failed)
	}
}

// Settle blocks until every queued job has finished or ctx expires. The
// portfolio refresh uses it so portfolios holding just-onboarded symbols are
// not snapshotted without factors.
func (q *Queue) Settle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.mu.Lock()
		idle := q.outstanding == 0
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status returns a copy of the job for symbol, if known.
func (q *Queue) Status(symbol string) (entity.OnboardingJob, bool) {
	symbol = universeusecase.Normalize(symbol)
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[symbol]
	if !ok {
		return entity.OnboardingJob{}, false
	}
	return *job, true
}

// Depth returns the number of jobs queued or in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Failed returns copies of the retained failed jobs.
func (q *Queue) Failed() []entity.OnboardingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []entity.OnboardingJob
	for _, job := range q.jobs {
		if job.State == entity.JobFailed {
			out = append(out, *job)
		}
	}
	return out
}

// ClearFailed drops the retained failures and returns how many were dropped.
func (q *Queue) ClearFailed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for symbol, job := range q.jobs {
		if job.State == entity.JobFailed {
			delete(q.jobs, symbol)
			n++
		}
	}
	return n
}
