package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	batchentity "risk_backend/internal/feature/batch/domain/entity"
	batchusecase "risk_backend/internal/feature/batch/usecase"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	failureusecase "risk_backend/internal/feature/failures/usecase"
	factorusecase "risk_backend/internal/feature/factors/usecase"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
	"risk_backend/internal/feature/portfolio/domain/entity"
	"risk_backend/internal/platform/symbolcache"
	"risk_backend/internal/shared/calendar"
)

// ErrDependencyTimeout is returned when the symbol batch never completed
// successfully for the target date within the maximum wait. The refresh
// aborts without partial processing.
var ErrDependencyTimeout = errors.New("symbol batch dependency did not complete in time")

// Settler waits for in-flight onboarding work to finish. Satisfied by the
// onboarding queue.
type Settler interface {
	Settle(ctx context.Context) error
}

// FactorFiller computes and persists one symbol's exposures for a date.
// Satisfied by the batch pipeline; used to close the race with onboarding.
type FactorFiller interface {
	ComputeAndStoreFactors(ctx context.Context, symbol string, date time.Time) error
}

// RefreshConfig tunes the portfolio refresh runner.
type RefreshConfig struct {
	PollInterval    time.Duration // between dependency re-checks
	MaxWait         time.Duration // total dependency wait budget
	SettleWait      time.Duration // onboarding settle budget
	RetryDelay      time.Duration // before the single per-portfolio retry
	WallClockBudget time.Duration // whole-job timeout
}

func (c *RefreshConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Minute
	}
	if c.SettleWait <= 0 {
		c.SettleWait = 2 * time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.WallClockBudget <= 0 {
		c.WallClockBudget = time.Hour
	}
}

// RefreshRunner produces the per-portfolio snapshots and aggregated factor
// exposures once the symbol batch has landed the day's data. It runs in its
// own process and discovers the symbol batch's state purely through
// persisted batch run rows.
type RefreshRunner struct {
	cal        *calendar.Calendar
	tracker    *batchusecase.Tracker
	runs       batchusecase.BatchRunRepository
	settler    Settler
	portfolios PortfolioRepository
	positions  PositionRepository
	snapshots  SnapshotRepository
	exposures  PortfolioExposureRepository
	prices     marketusecase.PriceRepository
	factors    factorusecase.ExposureRepository
	filler     FactorFiller
	cache      *symbolcache.SymbolCache
	failures   *failureusecase.Recorder
	cfg        RefreshConfig
}

func NewRefreshRunner(
	cal *calendar.Calendar,
	tracker *batchusecase.Tracker,
	runs batchusecase.BatchRunRepository,
	settler Settler,
	portfolios PortfolioRepository,
	positions PositionRepository,
	snapshots SnapshotRepository,
	exposures PortfolioExposureRepository,
	prices marketusecase.PriceRepository,
	factors factorusecase.ExposureRepository,
	filler FactorFiller,
	cache *symbolcache.SymbolCache,
	failures *failureusecase.Recorder,
	cfg RefreshConfig,
) *RefreshRunner {
	cfg.defaults()
	return &RefreshRunner{
		cal:        cal,
		tracker:    tracker,
		runs:       runs,
		settler:    settler,
		portfolios: portfolios,
		positions:  positions,
		snapshots:  snapshots,
		exposures:  exposures,
		prices:     prices,
		factors:    factors,
		filler:     filler,
		cache:      cache,
		failures:   failures,
		cfg:        cfg,
	}
}

// Run refreshes every portfolio through targetDate. A zero targetDate means
// the most recent trading day. Re-running for the same date creates no new
// snapshots for portfolios that already have one.
func (r *RefreshRunner) Run(ctx context.Context, targetDate time.Time, triggeredBy string) (batchusecase.RunResult, error) {
	if targetDate.IsZero() {
		targetDate = time.Now().UTC()
	}
	targetDate = r.cal.MostRecentTradingDay(targetDate)

	runID := fmt.Sprintf("%s-%d", batchentity.JobPortfolioRefresh, time.Now().UnixNano())
	if !r.tracker.StartJob(batchentity.JobPortfolioRefresh, runID, triggeredBy, targetDate) {
		return batchusecase.RunResult{}, batchusecase.ErrAlreadyRunning
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.WallClockBudget)
	defer cancel()

	run := &batchentity.BatchRun{
		RunID:       runID,
		JobType:     batchentity.JobPortfolioRefresh,
		TargetDate:  targetDate,
		Status:      batchentity.RunRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		r.tracker.CompleteJob(batchentity.JobPortfolioRefresh, batchentity.RunFailed, 0, 0)
		return batchusecase.RunResult{RunID: runID, Status: batchentity.RunFailed}, err
	}

	result := batchusecase.RunResult{RunID: runID, Status: batchentity.RunCompleted}
	err := r.run(ctx, targetDate, runID, &result)
	switch {
	case errors.Is(err, ErrDependencyTimeout), errors.Is(err, context.DeadlineExceeded):
		result.Status = batchentity.RunTimedOut
	case err != nil:
		result.Status = batchentity.RunFailed
	case result.SymbolsFailed > 0:
		result.Status = batchentity.RunCompletedWithError
	}
	if ferr := r.runs.Finalize(ctx, runID, result.Status, result.SymbolsProcessed, result.SymbolsFailed); ferr != nil {
		slog.Error("failed to finalize refresh run", "run_id", runID, "error", ferr)
	}
	r.tracker.CompleteJob(batchentity.JobPortfolioRefresh, result.Status, result.SymbolsProcessed, result.SymbolsFailed)
	return result, err
}

func (r *RefreshRunner) run(ctx context.Context, targetDate time.Time, runID string, result *batchusecase.RunResult) error {
	if err := r.awaitSymbolBatch(ctx, targetDate); err != nil {
		slog.Error("portfolio refresh aborted, symbol batch not complete",
			"run_id", runID, "target_date", targetDate.Format("2006-01-02"))
		r.failures.Record(ctx, failureentity.ScopeBatch, string(batchentity.JobPortfolioRefresh), runID, err)
		return err
	}

	// Bounded wait for in-flight onboarding. A timeout here is not fatal:
	// symbols still missing exposures are computed inline below.
	settleCtx, cancel := context.WithTimeout(ctx, r.cfg.SettleWait)
	if err := r.settler.Settle(settleCtx); err != nil {
		slog.Warn("onboarding did not settle before refresh", "run_id", runID, "error", err)
	}
	cancel()

	portfolios, err := r.portfolios.ListAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("portfolio refresh starting", "run_id", runID,
		"portfolios", len(portfolios), "target_date", targetDate.Format("2006-01-02"))

	for _, pf := range portfolios {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.refreshPortfolio(ctx, pf, targetDate); err != nil {
			// One retry after a brief delay, then record and move on.
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			if err = r.refreshPortfolio(ctx, pf, targetDate); err != nil {
				slog.Warn("portfolio refresh failed", "portfolio_id", pf.ID, "error", err)
				r.failures.Record(ctx, failureentity.ScopePortfolio, fmt.Sprint(pf.ID), runID, err)
				result.SymbolsFailed++
				continue
			}
		}
		result.SymbolsProcessed++
	}
	result.DatesProcessed = 1
	return nil
}

// awaitSymbolBatch polls the persisted batch run rows until a successful
// symbol batch exists for date, or the wait budget runs out.
func (r *RefreshRunner) awaitSymbolBatch(ctx context.Context, date time.Time) error {
	deadline := time.Now().Add(r.cfg.MaxWait)
	for {
		run, err := r.runs.CompletionForDate(ctx, batchentity.JobSymbolBatch, date)
		if err == nil && run.Status.IsSuccess() {
			return nil
		}
		if err != nil && !errors.Is(err, batchusecase.ErrRunNotFound) {
			return err
		}
		if time.Now().After(deadline) {
			return ErrDependencyTimeout
		}
		select {
		case <-ctx.Done():
			return ErrDependencyTimeout
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *RefreshRunner) refreshPortfolio(ctx context.Context, pf entity.Portfolio, targetDate time.Time) error {
	dates, err := r.missingDates(ctx, pf.ID, targetDate)
	if err != nil {
		return err
	}
	for _, date := range dates {
		if err := r.refreshDate(ctx, pf, date); err != nil {
			return err
		}
	}
	return nil
}

// missingDates enumerates trading days after the portfolio's latest snapshot
// through targetDate. A portfolio with no snapshot needs only targetDate.
func (r *RefreshRunner) missingDates(ctx context.Context, portfolioID uint, targetDate time.Time) ([]time.Time, error) {
	latest, err := r.snapshots.LatestDate(ctx, portfolioID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return []time.Time{targetDate}, nil
	}
	if err != nil {
		return nil, err
	}
	return r.cal.TradingDaysBetween(latest.AddDate(0, 0, 1), targetDate), nil
}

func (r *RefreshRunner) refreshDate(ctx context.Context, pf entity.Portfolio, date time.Time) error {
	// Never snapshot a date with no price data at all.
	n, err := r.prices.CountForDate(ctx, date)
	if err != nil {
		return err
	}
	if n == 0 {
		slog.Warn("skipping snapshot, no price data for date",
			"portfolio_id", pf.ID, "date", date.Format("2006-01-02"))
		return nil
	}

	exists, err := r.snapshots.Exists(ctx, pf.ID, date)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	positions, err := r.positions.ForPortfolio(ctx, pf.ID)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	if err := r.fillMissingFactors(ctx, positions, date); err != nil {
		return err
	}

	snap, weights, err := r.value(ctx, pf.ID, positions, date)
	if err != nil {
		return err
	}
	if err := r.snapshots.Create(ctx, snap); err != nil {
		return err
	}
	return r.aggregateExposures(ctx, pf.ID, weights, date)
}

// fillMissingFactors computes exposures inline for public symbols that the
// nightly batch has not covered yet, closing the race with onboarding.
func (r *RefreshRunner) fillMissingFactors(ctx context.Context, positions []entity.Position, date time.Time) error {
	var symbols []string
	seen := map[string]bool{}
	for _, pos := range positions {
		if pos.AssetClass.IsPublic() && !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			symbols = append(symbols, pos.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	covered, err := r.factors.SymbolsWithExposure(ctx, symbols, date)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		if covered[symbol] {
			continue
		}
		if err := r.filler.ComputeAndStoreFactors(ctx, symbol, date); err != nil {
			// The symbol keeps its value in the snapshot; only the factor
			// aggregation is missing it.
			slog.Warn("inline factor compute failed", "symbol", symbol, "error", err)
		}
	}
	return nil
}

// symbolWeight is one position's contribution to factor aggregation.
type symbolWeight struct {
	symbol string
	value  decimal.Decimal
}

// value builds the snapshot for one date. Public positions are valued at
// that day's close, private ones at cost basis. Private value is disclosed
// as a percentage and excluded from factor weights.
func (r *RefreshRunner) value(ctx context.Context, portfolioID uint, positions []entity.Position, date time.Time) (*entity.PortfolioSnapshot, []symbolWeight, error) {
	total := decimal.Zero
	totalCost := decimal.Zero
	private := decimal.Zero
	var weights []symbolWeight

	for _, pos := range positions {
		totalCost = totalCost.Add(pos.CostBasis)

		if !pos.AssetClass.IsPublic() {
			total = total.Add(pos.CostBasis)
			private = private.Add(pos.CostBasis)
			continue
		}

		px, ok := r.closeFor(ctx, pos.Symbol, date)
		if !ok {
			// Degrade to cost so the portfolio still values; the symbol is
			// left out of factor aggregation.
			slog.Warn("no price for position, valuing at cost",
				"portfolio_id", portfolioID, "symbol", pos.Symbol, "date", date.Format("2006-01-02"))
			total = total.Add(pos.CostBasis)
			continue
		}
		value := pos.Quantity.Mul(decimal.NewFromFloat(px))
		total = total.Add(value)
		weights = append(weights, symbolWeight{symbol: pos.Symbol, value: value})
	}

	privatePct := decimal.Zero
	if total.IsPositive() {
		privatePct = private.Div(total).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return &entity.PortfolioSnapshot{
		PortfolioID:          portfolioID,
		Date:                 date,
		TotalValue:           total,
		TotalCost:            totalCost,
		PnL:                  total.Sub(totalCost),
		PositionCount:        len(positions),
		PrivateAllocationPct: privatePct,
	}, weights, nil
}

// closeFor resolves a closing price, cache first, storage as fallback.
func (r *RefreshRunner) closeFor(ctx context.Context, symbol string, date time.Time) (float64, bool) {
	if r.cache != nil {
		if point, ok := r.cache.GetPrice(ctx, symbol, date); ok {
			return point.Close, true
		}
	}
	point, err := r.prices.ForDate(ctx, symbol, date)
	if err != nil {
		return 0, false
	}
	return point.Close, true
}

// aggregateExposures rolls symbol exposures up to the portfolio using
// market-value weighting over the public positions with factor data.
func (r *RefreshRunner) aggregateExposures(ctx context.Context, portfolioID uint, weights []symbolWeight, date time.Time) error {
	type accum struct {
		weighted decimal.Decimal
		weight   decimal.Decimal
	}
	byFactor := map[string]*accum{}

	for _, w := range weights {
		set := r.factorsFor(ctx, w.symbol, date)
		for _, exp := range set {
			a, ok := byFactor[exp.FactorCode]
			if !ok {
				a = &accum{weighted: decimal.Zero, weight: decimal.Zero}
				byFactor[exp.FactorCode] = a
			}
			a.weighted = a.weighted.Add(w.value.Mul(decimal.NewFromFloat(exp.Beta)))
			a.weight = a.weight.Add(w.value)
		}
	}
	if len(byFactor) == 0 {
		return nil
	}

	out := make([]entity.PortfolioExposure, 0, len(byFactor))
	for code, a := range byFactor {
		if !a.weight.IsPositive() {
			continue
		}
		out = append(out, entity.PortfolioExposure{
			PortfolioID: portfolioID,
			FactorCode:  code,
			Date:        date,
			Exposure:    a.weighted.Div(a.weight).Round(10),
		})
	}
	return r.exposures.UpsertBatch(ctx, out)
}

// factorsFor resolves a symbol's exposures, cache first, storage fallback.
func (r *RefreshRunner) factorsFor(ctx context.Context, symbol string, date time.Time) []symbolFactor {
	if r.cache != nil {
		if set := r.cache.GetFactors(ctx, symbol, date); len(set) > 0 {
			out := make([]symbolFactor, len(set))
			for i, e := range set {
				out[i] = symbolFactor{FactorCode: e.FactorCode, Beta: e.Beta}
			}
			return out
		}
	}
	set, err := r.factors.ForSymbolDate(ctx, symbol, date)
	if err != nil {
		return nil
	}
	out := make([]symbolFactor, len(set))
	for i, e := range set {
		out[i] = symbolFactor{FactorCode: e.FactorCode, Beta: e.Beta}
	}
	return out
}

type symbolFactor struct {
	FactorCode string
	Beta       float64
}
