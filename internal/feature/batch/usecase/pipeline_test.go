package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	factorentity "risk_backend/internal/feature/factors/domain/entity"
	factorusecase "risk_backend/internal/feature/factors/usecase"
	marketentity "risk_backend/internal/feature/marketdata/domain/entity"
	"risk_backend/internal/platform/symbolcache"
)

type mockPriceRepo struct {
	UpsertBatchFn  func(ctx context.Context, points []marketentity.PricePoint) error
	HistoryFn      func(ctx context.Context, symbol string, limit int) ([]marketentity.PricePoint, error)
	ForDateFn      func(ctx context.Context, symbol string, date time.Time) (*marketentity.PricePoint, error)
	CountForDateFn func(ctx context.Context, date time.Time) (int64, error)
	LatestDateFn   func(ctx context.Context) (time.Time, error)
	ListSinceFn    func(ctx context.Context, since time.Time) ([]marketentity.PricePoint, error)
}

func (m *mockPriceRepo) UpsertBatch(ctx context.Context, points []marketentity.PricePoint) error {
	return m.UpsertBatchFn(ctx, points)
}

func (m *mockPriceRepo) History(ctx context.Context, symbol string, limit int) ([]marketentity.PricePoint, error) {
	return m.HistoryFn(ctx, symbol, limit)
}

func (m *mockPriceRepo) ForDate(ctx context.Context, symbol string, date time.Time) (*marketentity.PricePoint, error) {
	return m.ForDateFn(ctx, symbol, date)
}

func (m *mockPriceRepo) CountForDate(ctx context.Context, date time.Time) (int64, error) {
	return m.CountForDateFn(ctx, date)
}

func (m *mockPriceRepo) LatestDate(ctx context.Context) (time.Time, error) {
	return m.LatestDateFn(ctx)
}

func (m *mockPriceRepo) ListSince(ctx context.Context, since time.Time) ([]marketentity.PricePoint, error) {
	return m.ListSinceFn(ctx, since)
}

type mockExposureRepo struct {
	UpsertBatchFn         func(ctx context.Context, exposures []factorentity.FactorExposure) error
	ForSymbolDateFn       func(ctx context.Context, symbol string, date time.Time) (factorentity.FactorSet, error)
	ForSymbolFn           func(ctx context.Context, symbol string) ([]factorentity.FactorExposure, error)
	SymbolsWithExposureFn func(ctx context.Context, symbols []string, date time.Time) (map[string]bool, error)
	ListSinceFn           func(ctx context.Context, since time.Time) ([]factorentity.FactorExposure, error)
}

func (m *mockExposureRepo) UpsertBatch(ctx context.Context, exposures []factorentity.FactorExposure) error {
	return m.UpsertBatchFn(ctx, exposures)
}

func (m *mockExposureRepo) ForSymbolDate(ctx context.Context, symbol string, date time.Time) (factorentity.FactorSet, error) {
	return m.ForSymbolDateFn(ctx, symbol, date)
}

func (m *mockExposureRepo) ForSymbol(ctx context.Context, symbol string) ([]factorentity.FactorExposure, error) {
	return m.ForSymbolFn(ctx, symbol)
}

func (m *mockExposureRepo) SymbolsWithExposure(ctx context.Context, symbols []string, date time.Time) (map[string]bool, error) {
	return m.SymbolsWithExposureFn(ctx, symbols, date)
}

func (m *mockExposureRepo) ListSince(ctx context.Context, since time.Time) ([]factorentity.FactorExposure, error) {
	return m.ListSinceFn(ctx, since)
}

type mockProvider struct {
	name    string
	FetchFn func(ctx context.Context, symbol string, date time.Time) (marketentity.PricePoint, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchPrice(ctx context.Context, symbol string, date time.Time) (marketentity.PricePoint, error) {
	return m.FetchFn(ctx, symbol, date)
}

type mockCalculator struct {
	ComputeFn func(ctx context.Context, symbol string, date time.Time,
		prices []marketentity.PricePoint,
		benchmarks map[string][]marketentity.PricePoint) (factorentity.FactorSet, error)
}

func (m *mockCalculator) Compute(ctx context.Context, symbol string, date time.Time,
	prices []marketentity.PricePoint,
	benchmarks map[string][]marketentity.PricePoint) (factorentity.FactorSet, error) {
	return m.ComputeFn(ctx, symbol, date, prices, benchmarks)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPipeline_FetchAndStore_WritesFetchedPoint(t *testing.T) {
	date := day(2026, 8, 28)
	var stored []marketentity.PricePoint

	provider := &mockProvider{
		name: "primary",
		FetchFn: func(_ context.Context, symbol string, d time.Time) (marketentity.PricePoint, error) {
			return marketentity.PricePoint{Symbol: symbol, Date: d, Close: 101.5}, nil
		},
	}
	prices := &mockPriceRepo{
		UpsertBatchFn: func(_ context.Context, points []marketentity.PricePoint) error {
			stored = append(stored, points...)
			return nil
		},
	}

	p := NewPipeline(provider, prices, nil, nil, nil, nil, nil, PipelineConfig{})
	err := p.FetchAndStore(context.Background(), "AAPL", date)

	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "AAPL", stored[0].Symbol)
	assert.Equal(t, 101.5, stored[0].Close)
}

func TestPipeline_FetchAndStore_ProviderErrorIsNotWriteFailure(t *testing.T) {
	provider := &mockProvider{
		name: "primary",
		FetchFn: func(context.Context, string, time.Time) (marketentity.PricePoint, error) {
			return marketentity.PricePoint{}, errors.New("upstream 503")
		},
	}

	p := NewPipeline(provider, &mockPriceRepo{}, nil, nil, nil, nil, nil, PipelineConfig{})
	err := p.FetchAndStore(context.Background(), "AAPL", day(2026, 8, 28))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWriteFailure)
}

func TestPipeline_FetchAndStore_RetriesWriteThenWrapsWriteFailure(t *testing.T) {
	provider := &mockProvider{
		name: "primary",
		FetchFn: func(_ context.Context, symbol string, d time.Time) (marketentity.PricePoint, error) {
			return marketentity.PricePoint{Symbol: symbol, Date: d, Close: 10}, nil
		},
	}
	attempts := 0
	prices := &mockPriceRepo{
		UpsertBatchFn: func(context.Context, []marketentity.PricePoint) error {
			attempts++
			return errors.New("db down")
		},
	}

	p := NewPipeline(provider, prices, nil, nil, nil, nil, nil, PipelineConfig{
		WriteRetries:    3,
		WriteRetryDelay: time.Millisecond,
	})
	err := p.FetchAndStore(context.Background(), "AAPL", day(2026, 8, 28))

	require.ErrorIs(t, err, ErrWriteFailure)
	assert.Equal(t, 3, attempts)
}

func TestPipeline_FetchAndStore_WriteSucceedsOnSecondAttempt(t *testing.T) {
	provider := &mockProvider{
		name: "primary",
		FetchFn: func(_ context.Context, symbol string, d time.Time) (marketentity.PricePoint, error) {
			return marketentity.PricePoint{Symbol: symbol, Date: d, Close: 10}, nil
		},
	}
	attempts := 0
	prices := &mockPriceRepo{
		UpsertBatchFn: func(context.Context, []marketentity.PricePoint) error {
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}

	p := NewPipeline(provider, prices, nil, nil, nil, nil, nil, PipelineConfig{
		WriteRetries:    3,
		WriteRetryDelay: time.Millisecond,
	})

	require.NoError(t, p.FetchAndStore(context.Background(), "AAPL", day(2026, 8, 28)))
	assert.Equal(t, 2, attempts)
}

func TestPipeline_ComputeAndStoreFactors_FeedsHistoryAndBenchmarks(t *testing.T) {
	date := day(2026, 8, 28)
	history := []marketentity.PricePoint{
		{Symbol: "AAPL", Date: day(2026, 8, 27), Close: 100},
		{Symbol: "AAPL", Date: date, Close: 101},
	}
	spy := []marketentity.PricePoint{
		{Symbol: "SPY", Date: day(2026, 8, 27), Close: 500},
		{Symbol: "SPY", Date: date, Close: 502},
	}

	prices := &mockPriceRepo{
		HistoryFn: func(_ context.Context, symbol string, limit int) ([]marketentity.PricePoint, error) {
			assert.Equal(t, 250, limit)
			if symbol == "SPY" {
				return spy, nil
			}
			return history, nil
		},
	}

	var stored []factorentity.FactorExposure
	exposures := &mockExposureRepo{
		UpsertBatchFn: func(_ context.Context, exps []factorentity.FactorExposure) error {
			stored = append(stored, exps...)
			return nil
		},
	}

	calc := &mockCalculator{
		ComputeFn: func(_ context.Context, symbol string, d time.Time,
			prc []marketentity.PricePoint,
			bench map[string][]marketentity.PricePoint) (factorentity.FactorSet, error) {
			assert.Equal(t, history, prc)
			assert.Equal(t, spy, bench["SPY"])
			return factorentity.FactorSet{
				{Symbol: symbol, FactorCode: "market", Date: d, Beta: 1.1},
			}, nil
		},
	}

	p := NewPipeline(nil, prices, exposures, calc, nil, nil, nil, PipelineConfig{
		Benchmarks: []string{"SPY"},
	})
	err := p.ComputeAndStoreFactors(context.Background(), "AAPL", date)

	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "market", stored[0].FactorCode)
	assert.Equal(t, 1.1, stored[0].Beta)
}

func TestPipeline_ComputeAndStoreFactors_EmptySetIsNoop(t *testing.T) {
	prices := &mockPriceRepo{
		HistoryFn: func(_ context.Context, symbol string, _ int) ([]marketentity.PricePoint, error) {
			return []marketentity.PricePoint{{Symbol: symbol, Date: day(2026, 8, 28), Close: 1}}, nil
		},
	}
	exposures := &mockExposureRepo{
		UpsertBatchFn: func(context.Context, []factorentity.FactorExposure) error {
			t.Fatal("no write expected for an empty factor set")
			return nil
		},
	}
	calc := &mockCalculator{
		ComputeFn: func(context.Context, string, time.Time,
			[]marketentity.PricePoint,
			map[string][]marketentity.PricePoint) (factorentity.FactorSet, error) {
			return nil, nil
		},
	}

	p := NewPipeline(nil, prices, exposures, calc, nil, nil, nil, PipelineConfig{})
	assert.NoError(t, p.ComputeAndStoreFactors(context.Background(), "AAPL", day(2026, 8, 28)))
}

func TestPipeline_ComputeAndStoreFactors_NoHistory(t *testing.T) {
	prices := &mockPriceRepo{
		HistoryFn: func(context.Context, string, int) ([]marketentity.PricePoint, error) {
			return nil, nil
		},
	}

	p := NewPipeline(nil, prices, &mockExposureRepo{}, &mockCalculator{}, nil, nil, nil, PipelineConfig{})
	err := p.ComputeAndStoreFactors(context.Background(), "GHOST", day(2026, 8, 28))

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrWriteFailure)
}

type stubLoader struct{}

func (stubLoader) LoadSymbol(context.Context, string) (*symbolcache.CachedSymbolData, error) {
	return nil, errors.New("not found")
}

func (stubLoader) LoadAll(context.Context) (map[string]*symbolcache.CachedSymbolData, error) {
	return map[string]*symbolcache.CachedSymbolData{}, nil
}

func TestPipeline_FetchAndStore_WriteThroughSkipsStoreReread(t *testing.T) {
	date := day(2026, 8, 28)
	provider := &mockProvider{
		name: "primary",
		FetchFn: func(_ context.Context, symbol string, d time.Time) (marketentity.PricePoint, error) {
			return marketentity.PricePoint{Symbol: symbol, Date: d, Close: 55}, nil
		},
	}
	prices := &mockPriceRepo{
		UpsertBatchFn: func(context.Context, []marketentity.PricePoint) error { return nil },
		HistoryFn: func(context.Context, string, int) ([]marketentity.PricePoint, error) {
			t.Fatal("cache write-through must not re-read stored history")
			return nil, nil
		},
	}
	cache := symbolcache.New(stubLoader{}, time.Minute)

	p := NewPipeline(provider, prices, nil, nil, nil, cache, nil, PipelineConfig{})
	require.NoError(t, p.FetchAndStore(context.Background(), "AAPL", date))

	got, ok := cache.GetPrice(context.Background(), "AAPL", date)
	require.True(t, ok)
	assert.Equal(t, 55.0, got.Close)
}

func TestPipeline_ComputeAndStoreFactors_SeedsDefinitionsBeforeFirstWrite(t *testing.T) {
	date := day(2026, 8, 28)
	defs := &mockDefinitionRepo{}
	seededAtWrite := -1

	prices := &mockPriceRepo{
		HistoryFn: func(_ context.Context, symbol string, _ int) ([]marketentity.PricePoint, error) {
			return []marketentity.PricePoint{{Symbol: symbol, Date: date, Close: 20}}, nil
		},
	}
	exposures := &mockExposureRepo{
		UpsertBatchFn: func(context.Context, []factorentity.FactorExposure) error {
			seededAtWrite = defs.seeded
			return nil
		},
	}
	calc := &mockCalculator{
		ComputeFn: func(_ context.Context, symbol string, d time.Time,
			_ []marketentity.PricePoint,
			_ map[string][]marketentity.PricePoint) (factorentity.FactorSet, error) {
			return factorentity.FactorSet{{Symbol: symbol, FactorCode: "market", Date: d, Beta: 1.0}}, nil
		},
	}

	p := NewPipeline(nil, prices, exposures, calc, factorusecase.NewSeeder(defs), nil, nil, PipelineConfig{})

	// A symbol onboarded before any nightly batch must still find its
	// definitions in place when its exposures land.
	require.NoError(t, p.ComputeAndStoreFactors(context.Background(), "NEWCO", date))
	assert.Equal(t, 1, seededAtWrite, "definitions must be seeded before the exposure write")

	require.NoError(t, p.ComputeAndStoreFactors(context.Background(), "NEWCO", date))
	assert.Equal(t, 1, defs.seeded, "seeding happens once per process")
}
