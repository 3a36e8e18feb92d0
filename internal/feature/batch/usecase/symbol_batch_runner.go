package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"risk_backend/internal/feature/batch/domain/entity"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	failureusecase "risk_backend/internal/feature/failures/usecase"
	factorusecase "risk_backend/internal/feature/factors/usecase"
	"risk_backend/internal/shared/calendar"
)

// ErrAlreadyRunning is returned when a batch of the same type is in flight.
var ErrAlreadyRunning = errors.New("a batch of this type is already running")

// SymbolLister provides the active universe codes.
type SymbolLister interface {
	ListActiveCodes(ctx context.Context) ([]string, error)
}

// PositionSymbolLister provides symbols referenced by open positions, so
// holdings outside the active universe are still priced.
type PositionSymbolLister interface {
	DistinctSymbols(ctx context.Context) ([]string, error)
}

// RunResult aggregates one batch invocation.
type RunResult struct {
	RunID            string           `json:"run_id"`
	Status           entity.RunStatus `json:"status"`
	DatesProcessed   int              `json:"dates_processed"`
	SymbolsProcessed int              `json:"symbols_processed"`
	SymbolsFailed    int              `json:"symbols_failed"`
}

// RunnerConfig tunes the symbol batch runner.
type RunnerConfig struct {
	FetchConcurrency int           // concurrent provider fetches per wave
	FailureAlertPct  float64       // per-date symbol failure share that raises an alert
	WallClockBudget  time.Duration // whole-job timeout
}

func (c *RunnerConfig) defaults() {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 10
	}
	if c.FailureAlertPct <= 0 {
		c.FailureAlertPct = 0.10
	}
	if c.WallClockBudget <= 0 {
		c.WallClockBudget = 2 * time.Hour
	}
}

// SymbolBatchRunner executes the nightly universe-wide fetch/compute batch
// with idempotent backfill over any gap since the last successful run.
type SymbolBatchRunner struct {
	cal       *calendar.Calendar
	tracker   *Tracker
	runs      BatchRunRepository
	universe  SymbolLister
	positions PositionSymbolLister
	seeder    *factorusecase.Seeder
	pipeline  *Pipeline
	failures  *failureusecase.Recorder
	cfg       RunnerConfig

	benchmarks []string
}

func NewSymbolBatchRunner(
	cal *calendar.Calendar,
	tracker *Tracker,
	runs BatchRunRepository,
	universe SymbolLister,
	positions PositionSymbolLister,
	seeder *factorusecase.Seeder,
	pipeline *Pipeline,
	failures *failureusecase.Recorder,
	benchmarks []string,
	cfg RunnerConfig,
) *SymbolBatchRunner {
	cfg.defaults()
	return &SymbolBatchRunner{
		cal:        cal,
		tracker:    tracker,
		runs:       runs,
		universe:   universe,
		positions:  positions,
		seeder:     seeder,
		pipeline:   pipeline,
		failures:   failures,
		benchmarks: benchmarks,
		cfg:        cfg,
	}
}

// Run processes targetDate and, when backfill is set, every missed trading
// day since the last successful run. A zero targetDate means the most recent
// trading day. Per-symbol failures never abort the batch; an exhausted
// storage write halts remaining dates.
func (r *SymbolBatchRunner) Run(ctx context.Context, targetDate time.Time, backfill bool, triggeredBy string) (RunResult, error) {
	if targetDate.IsZero() {
		targetDate = time.Now().UTC()
	}
	targetDate = r.cal.MostRecentTradingDay(targetDate)

	runID := fmt.Sprintf("%s-%d", entity.JobSymbolBatch, time.Now().UnixNano())
	if !r.tracker.StartJob(entity.JobSymbolBatch, runID, triggeredBy, targetDate) {
		return RunResult{}, ErrAlreadyRunning
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.WallClockBudget)
	defer cancel()

	result := RunResult{RunID: runID, Status: entity.RunCompleted}
	err := r.run(ctx, targetDate, backfill, runID, &result)
	if err != nil {
		if result.Status == entity.RunCompleted {
			result.Status = entity.RunFailed
		}
		if errors.Is(err, context.DeadlineExceeded) {
			result.Status = entity.RunTimedOut
			slog.Error("symbol batch exceeded wall-clock budget, abandoned",
				"run_id", runID, "budget", r.cfg.WallClockBudget)
		}
	} else if result.SymbolsFailed > 0 {
		result.Status = entity.RunCompletedWithError
	}
	r.tracker.CompleteJob(entity.JobSymbolBatch, result.Status, result.SymbolsProcessed, result.SymbolsFailed)
	return result, err
}

func (r *SymbolBatchRunner) run(ctx context.Context, targetDate time.Time, backfill bool, runID string, result *RunResult) error {
	// Factor definitions must exist before the first exposure write.
	if err := r.seeder.Ensure(ctx); err != nil {
		return fmt.Errorf("seed factor definitions: %w", err)
	}

	dates, err := r.resolveDates(ctx, targetDate, backfill)
	if err != nil {
		return err
	}
	slog.Info("symbol batch starting", "run_id", runID, "dates", len(dates),
		"target_date", targetDate.Format("2006-01-02"), "backfill", backfill)

	for _, date := range dates {
		if err := r.processDate(ctx, date, runID, result); err != nil {
			// Halt: later dates are not attempted past an unrecoverable
			// data-layer issue.
			return err
		}
		result.DatesProcessed++
	}
	return nil
}

// resolveDates enumerates the trading days to process, oldest first. With
// backfill, that is every trading day strictly after the watermark through
// targetDate; without a prior success (or without backfill) just targetDate.
func (r *SymbolBatchRunner) resolveDates(ctx context.Context, targetDate time.Time, backfill bool) ([]time.Time, error) {
	if !backfill {
		return []time.Time{targetDate}, nil
	}

	watermark, err := r.runs.LatestSuccessDate(ctx, entity.JobSymbolBatch)
	if errors.Is(err, ErrRunNotFound) {
		return []time.Time{targetDate}, nil
	}
	if err != nil {
		return nil, err
	}

	dates := r.cal.TradingDaysBetween(watermark.AddDate(0, 0, 1), targetDate)
	if len(dates) == 0 {
		// Already at the watermark: re-run the target date idempotently.
		dates = []time.Time{targetDate}
	}
	return dates, nil
}

func (r *SymbolBatchRunner) processDate(ctx context.Context, date time.Time, runID string, result *RunResult) error {
	symbols, err := r.resolveSymbols(ctx)
	if err != nil {
		return err
	}

	dateRun := &entity.BatchRun{
		RunID:       fmt.Sprintf("%s-%s", runID, date.Format("20060102")),
		JobType:     entity.JobSymbolBatch,
		TargetDate:  date,
		Status:      entity.RunRunning,
		TriggeredBy: runID,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, dateRun); err != nil {
		return fmt.Errorf("%w: create batch run: %v", ErrWriteFailure, err)
	}

	processed, failed, err := r.processSymbols(ctx, symbols, date, dateRun.RunID)
	result.SymbolsProcessed += processed
	result.SymbolsFailed += failed

	status := entity.RunCompleted
	switch {
	case err != nil:
		status = entity.RunFailed
	case failed > 0:
		status = entity.RunCompletedWithError
	}
	if ferr := r.runs.Finalize(ctx, dateRun.RunID, status, processed, failed); ferr != nil && err == nil {
		err = fmt.Errorf("%w: finalize batch run: %v", ErrWriteFailure, ferr)
	}

	if total := len(symbols); total > 0 && float64(failed)/float64(total) > r.cfg.FailureAlertPct {
		slog.Error("symbol batch failure share above alert threshold",
			"run_id", dateRun.RunID, "date", date.Format("2006-01-02"),
			"failed", failed, "total", total)
	}
	return err
}

// processSymbols fetches all symbols for one date with bounded concurrency,
// then computes factor exposures sequentially. The returned error is non-nil
// only for a halting condition (storage write exhaustion, cancellation).
func (r *SymbolBatchRunner) processSymbols(ctx context.Context, symbols []string, date time.Time, runID string) (processed, failed int, haltErr error) {
	var (
		mu        sync.Mutex
		fetched   []string
		failedSet = map[string]bool{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.FetchConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			err := r.pipeline.FetchAndStore(gctx, symbol, date)
			if err == nil {
				mu.Lock()
				fetched = append(fetched, symbol)
				mu.Unlock()
				return nil
			}
			if errors.Is(err, ErrWriteFailure) || gctx.Err() != nil {
				// Halting conditions cancel the group.
				return err
			}
			// Provider failures are isolated: record and continue.
			mu.Lock()
			failedSet[symbol] = true
			mu.Unlock()
			r.failures.Record(gctx, failureentity.ScopeSymbol, symbol, runID, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(fetched), len(failedSet), err
	}

	sort.Strings(fetched)
	for _, symbol := range fetched {
		if err := r.pipeline.ComputeAndStoreFactors(ctx, symbol, date); err != nil {
			if errors.Is(err, ErrWriteFailure) || ctx.Err() != nil {
				return len(fetched), len(failedSet), err
			}
			// One symbol's regression failure never aborts the batch.
			failedSet[symbol] = true
			r.failures.Record(ctx, failureentity.ScopeSymbol, symbol, runID, err)
		}
	}

	return len(fetched), len(failedSet), nil
}

// resolveSymbols is the per-date symbol set: active universe, symbols
// referenced by open positions, and the benchmark regressors.
func (r *SymbolBatchRunner) resolveSymbols(ctx context.Context) ([]string, error) {
	active, err := r.universe.ListActiveCodes(ctx)
	if err != nil {
		return nil, err
	}
	held, err := r.positions.DistinctSymbols(ctx)
	if err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	for _, s := range active {
		set[s] = struct{}{}
	}
	for _, s := range held {
		set[s] = struct{}{}
	}
	for _, s := range r.benchmarks {
		set[s] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
