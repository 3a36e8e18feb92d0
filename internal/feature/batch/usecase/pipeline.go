package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	factorentity "risk_backend/internal/feature/factors/domain/entity"
	factorusecase "risk_backend/internal/feature/factors/usecase"
	marketentity "risk_backend/internal/feature/marketdata/domain/entity"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
	"risk_backend/internal/platform/symbolcache"
	"risk_backend/internal/shared/ratelimiter"
	"risk_backend/internal/shared/retry"
)

// ErrWriteFailure marks a persistent-storage write that failed after bounded
// retries. Unlike a provider failure it is not isolated to one symbol: the
// surrounding batch halts further dates to avoid cascading past a broken
// data layer.
var ErrWriteFailure = errors.New("persistent write failed after retries")

// PipelineConfig tunes the shared fetch/compute pipeline.
type PipelineConfig struct {
	HistoryWindow   int           // trading days of history fed to the regression
	Benchmarks      []string      // benchmark symbols used as factor regressors
	WriteRetries    int           // bounded attempts per storage write
	WriteRetryDelay time.Duration // initial backoff between attempts
}

func (c *PipelineConfig) defaults() {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 250
	}
	if c.WriteRetries <= 0 {
		c.WriteRetries = 3
	}
	if c.WriteRetryDelay <= 0 {
		c.WriteRetryDelay = 500 * time.Millisecond
	}
}

// Pipeline is the fetch -> compute -> write-through sequence shared by the
// nightly symbol batch and the onboarding queue.
type Pipeline struct {
	provider marketusecase.Provider
	prices   marketusecase.PriceRepository
	factors  factorusecase.ExposureRepository
	calc     factorusecase.Calculator
	seeder   *factorusecase.Seeder
	cache    *symbolcache.SymbolCache
	limiter  ratelimiter.Limiter
	cfg      PipelineConfig

	seeded atomic.Bool
}

func NewPipeline(
	provider marketusecase.Provider,
	prices marketusecase.PriceRepository,
	factors factorusecase.ExposureRepository,
	calc factorusecase.Calculator,
	seeder *factorusecase.Seeder,
	cache *symbolcache.SymbolCache,
	limiter ratelimiter.Limiter,
	cfg PipelineConfig,
) *Pipeline {
	cfg.defaults()
	if limiter == nil {
		limiter = ratelimiter.Unlimited{}
	}
	return &Pipeline{
		provider: provider,
		prices:   prices,
		factors:  factors,
		calc:     calc,
		seeder:   seeder,
		cache:    cache,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// FetchAndStore fetches one symbol's price for date through the provider
// chain and writes it through to storage and the cache. Provider failures
// are isolated per symbol; storage failures come back as ErrWriteFailure.
func (p *Pipeline) FetchAndStore(ctx context.Context, symbol string, date time.Time) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	point, err := p.provider.FetchPrice(ctx, symbol, date)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, p.cfg.WriteRetries, p.cfg.WriteRetryDelay, func() error {
		return p.prices.UpsertBatch(ctx, []marketentity.PricePoint{point})
	})
	if err != nil {
		return fmt.Errorf("%w: price %s@%s: %v", ErrWriteFailure, symbol, date.Format("2006-01-02"), err)
	}

	// Write through to the cache from data already in hand: no re-read of
	// the symbol's stored history.
	if p.cache != nil {
		p.cache.MergePrice(symbol, point)
	}
	return nil
}

// ComputeAndStoreFactors computes the symbol's factor exposures for date
// from its trailing price history and writes them through.
func (p *Pipeline) ComputeAndStoreFactors(ctx context.Context, symbol string, date time.Time) error {
	history, err := p.prices.History(ctx, symbol, p.cfg.HistoryWindow)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("no price history for %s", symbol)
	}

	benchmarks := make(map[string][]marketentity.PricePoint, len(p.cfg.Benchmarks))
	for _, b := range p.cfg.Benchmarks {
		series, err := p.prices.History(ctx, b, p.cfg.HistoryWindow)
		if err != nil {
			return err
		}
		benchmarks[b] = series
	}

	set, err := p.calc.Compute(ctx, symbol, date, history, benchmarks)
	if err != nil {
		return fmt.Errorf("compute factors for %s: %w", symbol, err)
	}
	if len(set) == 0 {
		// Thin history: nothing to persist, not an error.
		return nil
	}

	// Exposure rows reference definitions by code, so the definitions must
	// land first on every path that can reach an exposure write.
	if err := p.ensureDefinitions(ctx); err != nil {
		return fmt.Errorf("%w: factor definitions: %v", ErrWriteFailure, err)
	}

	err = retry.Do(ctx, p.cfg.WriteRetries, p.cfg.WriteRetryDelay, func() error {
		return p.factors.UpsertBatch(ctx, []factorentity.FactorExposure(set))
	})
	if err != nil {
		return fmt.Errorf("%w: factors %s@%s: %v", ErrWriteFailure, symbol, date.Format("2006-01-02"), err)
	}

	if p.cache != nil {
		p.cache.MergeFactors(symbol, date, set)
	}
	return nil
}

// ProcessSymbol runs the full sequence for one symbol and date. Used by the
// onboarding queue, which handles one previously-unseen symbol at a time.
func (p *Pipeline) ProcessSymbol(ctx context.Context, symbol string, date time.Time) error {
	if err := p.FetchAndStore(ctx, symbol, date); err != nil {
		return err
	}
	return p.ComputeAndStoreFactors(ctx, symbol, date)
}

// ensureDefinitions seeds the factor definitions once per process. Seeding is
// idempotent, so a concurrent double-run is harmless; only a confirmed seed
// flips the guard.
func (p *Pipeline) ensureDefinitions(ctx context.Context) error {
	if p.seeder == nil || p.seeded.Load() {
		return nil
	}
	err := retry.Do(ctx, p.cfg.WriteRetries, p.cfg.WriteRetryDelay, func() error {
		return p.seeder.Ensure(ctx)
	})
	if err != nil {
		return err
	}
	p.seeded.Store(true)
	return nil
}
