// Package di assembles the application graph from configuration.
package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	adminhandler "risk_backend/internal/feature/admin/transport/handler"
	batchadapters "risk_backend/internal/feature/batch/adapters"
	batchusecase "risk_backend/internal/feature/batch/usecase"
	factoradapters "risk_backend/internal/feature/factors/adapters"
	factorusecase "risk_backend/internal/feature/factors/usecase"
	failureadapters "risk_backend/internal/feature/failures/adapters"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	failureusecase "risk_backend/internal/feature/failures/usecase"
	marketadapters "risk_backend/internal/feature/marketdata/adapters"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
	onboardingusecase "risk_backend/internal/feature/onboarding/usecase"
	portfolioadapters "risk_backend/internal/feature/portfolio/adapters"
	portfoliousecase "risk_backend/internal/feature/portfolio/usecase"
	universeadapters "risk_backend/internal/feature/universe/adapters"
	universeusecase "risk_backend/internal/feature/universe/usecase"
	"risk_backend/internal/platform/config"
	platformredis "risk_backend/internal/platform/redis"
	"risk_backend/internal/platform/symbolcache"
	"risk_backend/internal/shared/calendar"
	"risk_backend/internal/shared/ratelimiter"
)

// App is the wired application graph shared by the server and the batch
// binaries.
type App struct {
	Config   *config.Config
	Calendar *calendar.Calendar
	Tracker  *batchusecase.Tracker
	Cache    *symbolcache.SymbolCache

	Universe  *universeusecase.UniverseUsecase
	Runs      batchusecase.BatchRunRepository
	Pipeline  *batchusecase.Pipeline
	Batch     *batchusecase.SymbolBatchRunner
	Refresh   *portfoliousecase.RefreshRunner
	Queue     *onboardingusecase.Queue
	Freshness *marketusecase.FreshnessMonitor
	Failures  *failureusecase.Recorder

	Admin *adminhandler.AdminHandler
}

// New wires every component from cfg. A nil rdb disables the redis price
// cache decorator; everything else keeps working against the database.
func New(cfg *config.Config, db *gorm.DB, rdb *redisv9.Client) *App {
	cal := calendar.New(cfg.Calendar.HolidayDates())
	tracker := batchusecase.NewTracker()

	// Repositories.
	var prices marketusecase.PriceRepository = marketadapters.NewPriceRepository(db)
	prices = marketadapters.NewCachingPriceRepository(rdb, cfg.Cache.PriceTTL, prices, "prices")
	defs := factoradapters.NewDefinitionRepository(db)
	exposures := factoradapters.NewExposureRepository(db)
	symbols := universeadapters.NewSymbolRepository(db)
	runs := batchadapters.NewBatchRunRepository(db)
	failureRepo := failureadapters.NewFailureRepository(db)
	portfolioRepo := portfolioadapters.NewPortfolioRepository(db)
	positionRepo := portfolioadapters.NewPositionRepository(db)
	snapshotRepo := portfolioadapters.NewSnapshotRepository(db)
	pfExposureRepo := portfolioadapters.NewPortfolioExposureRepository(db)

	universe := universeusecase.NewUniverseUsecase(symbols)
	failures := failureusecase.NewRecorder(failureRepo)
	freshness := marketusecase.NewFreshnessMonitor(prices, cal)

	// Provider fallback chain, slowest limiter wins. A provider that made a
	// fallback necessary is recorded so degradation is visible before it
	// turns into symbol failures.
	provider, limiter := buildProviders(cfg.Providers)
	provider.OnFallback(func(ctx context.Context, name, symbol string, err error) {
		failures.Record(ctx, failureentity.ScopeProvider, name, "", fmt.Errorf("fetch %s: %w", symbol, err))
	})

	// Cache over the stores.
	window := time.Duration(cfg.Batch.HistoryWindow+150) * 24 * time.Hour
	loader := symbolcache.NewStoreLoader(prices, exposures, window)
	cache := symbolcache.New(loader, cfg.Cache.ReadyTimeout)

	calc := factoradapters.NewOLSCalculator(factorusecase.DefaultDefinitions())
	seeder := factorusecase.NewSeeder(defs)
	pipeline := batchusecase.NewPipeline(provider, prices, exposures, calc, seeder, cache, limiter, batchusecase.PipelineConfig{
		HistoryWindow:   cfg.Batch.HistoryWindow,
		Benchmarks:      cfg.Batch.Benchmarks,
		WriteRetries:    cfg.Batch.WriteRetries,
		WriteRetryDelay: cfg.Batch.WriteRetryDelay,
	})

	batch := batchusecase.NewSymbolBatchRunner(
		cal, tracker, runs, universe, positionRepo, seeder, pipeline, failures,
		cfg.Batch.Benchmarks,
		batchusecase.RunnerConfig{
			FetchConcurrency: cfg.Batch.FetchConcurrency,
			FailureAlertPct:  cfg.Batch.FailureAlertPct,
			WallClockBudget:  cfg.Batch.WallClockBudget,
		},
	)

	queue := onboardingusecase.NewQueue(pipeline, universe, tracker, failures, cal, onboardingusecase.QueueConfig{
		Workers:  cfg.Onboarding.Workers,
		MaxDepth: cfg.Onboarding.MaxDepth,
	})

	refresh := portfoliousecase.NewRefreshRunner(
		cal, tracker, runs, queue,
		portfolioRepo, positionRepo, snapshotRepo, pfExposureRepo,
		prices, exposures, pipeline, cache, failures,
		portfoliousecase.RefreshConfig{
			PollInterval:    cfg.Refresh.DependencyPollInterval,
			MaxWait:         cfg.Refresh.DependencyMaxWait,
			SettleWait:      cfg.Refresh.OnboardingSettleWait,
			RetryDelay:      cfg.Refresh.PortfolioRetryDelay,
			WallClockBudget: cfg.Refresh.WallClockBudget,
		},
	)

	admin := adminhandler.NewAdminHandler(tracker, runs, cache, queue, freshness, failures, batch, refresh)

	return &App{
		Config:    cfg,
		Calendar:  cal,
		Tracker:   tracker,
		Cache:     cache,
		Universe:  universe,
		Runs:      runs,
		Pipeline:  pipeline,
		Batch:     batch,
		Refresh:   refresh,
		Queue:     queue,
		Freshness: freshness,
		Failures:  failures,
		Admin:     admin,
	}
}

// buildProviders turns the configured provider list into the fallback chain
// plus a shared token bucket sized by the slowest provider.
func buildProviders(cfgs []config.ProviderConfig) (*marketadapters.ProviderChain, ratelimiter.Limiter) {
	var providers []marketusecase.Provider
	slowest := 0
	for _, pc := range cfgs {
		providers = append(providers, marketadapters.NewHTTPProvider(marketadapters.ProviderConfig{
			Name:    pc.Name,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			Timeout: pc.Timeout,
		}, nil))
		if pc.RatePerMinute > 0 && (slowest == 0 || pc.RatePerMinute < slowest) {
			slowest = pc.RatePerMinute
		}
	}

	var limiter ratelimiter.Limiter = ratelimiter.Unlimited{}
	if slowest > 0 {
		limiter = ratelimiter.NewTokenBucket(slowest, 1)
	}
	return marketadapters.NewProviderChain(providers...), limiter
}

// NewRedis connects to redis per cfg, or returns nil when no address is
// configured or the server is unreachable. The caller keeps working without
// the price cache.
func NewRedis(cfg config.RedisConfig) *redisv9.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb, err := platformredis.NewClient(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		slog.Warn("redis unavailable, running without price cache", "addr", cfg.Addr, "error", err)
		return nil
	}
	return rdb
}

// Bootstrap seeds the benchmark symbols and starts the cache warm-up and the
// onboarding workers.
func (a *App) Bootstrap(ctx context.Context) {
	if err := a.Universe.EnsureSeeded(ctx, a.Config.Batch.Benchmarks); err != nil {
		slog.Warn("benchmark seeding failed", "error", err)
	}
	a.Queue.Start(ctx)
	a.Admin.BindLifetime(ctx)
	go a.Cache.WarmUp(ctx)
}
