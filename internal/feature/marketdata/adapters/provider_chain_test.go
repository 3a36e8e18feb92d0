package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk_backend/internal/feature/marketdata/domain/entity"
	"risk_backend/internal/feature/marketdata/usecase"
)

// mockProvider is a function-field mock for usecase.Provider.
type mockProvider struct {
	name    string
	fetchFn func(ctx context.Context, symbol string, date time.Time) (entity.PricePoint, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchPrice(ctx context.Context, symbol string, date time.Time) (entity.PricePoint, error) {
	return m.fetchFn(ctx, symbol, date)
}

func TestProviderChain_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	secondaryCalled := false

	chain := NewProviderChain(
		&mockProvider{name: "primary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			return entity.PricePoint{Symbol: "AAPL", Close: 180}, nil
		}},
		&mockProvider{name: "secondary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			secondaryCalled = true
			return entity.PricePoint{}, errors.New("unreachable")
		}},
	)

	got, err := chain.FetchPrice(context.Background(), "AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, 180.0, got.Close)
	assert.False(t, secondaryCalled, "fallback must not fire when primary succeeds")
}

func TestProviderChain_CascadesToFallback(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	chain := NewProviderChain(
		&mockProvider{name: "primary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			return entity.PricePoint{}, errors.New("rate limited")
		}},
		&mockProvider{name: "secondary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			return entity.PricePoint{}, errors.New("http 500")
		}},
		&mockProvider{name: "tertiary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			return entity.PricePoint{Symbol: "AAPL", Close: 179.5}, nil
		}},
	)

	got, err := chain.FetchPrice(context.Background(), "AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, 179.5, got.Close)
}

func TestProviderChain_FallbackHookReportsDegradedProviders(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	chain := NewProviderChain(
		&mockProvider{name: "primary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			return entity.PricePoint{}, errors.New("rate limited")
		}},
		&mockProvider{name: "secondary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			return entity.PricePoint{Symbol: "AAPL", Close: 179.5}, nil
		}},
	)

	var reported []string
	chain.OnFallback(func(_ context.Context, provider, symbol string, err error) {
		reported = append(reported, provider+"/"+symbol)
		assert.EqualError(t, err, "rate limited")
	})

	_, err := chain.FetchPrice(context.Background(), "AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, []string{"primary/AAPL"}, reported)
}

func TestProviderChain_FallbackHookSilentOnExhaustion(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, string, time.Time) (entity.PricePoint, error) {
		return entity.PricePoint{}, errors.New("down")
	}
	chain := NewProviderChain(
		&mockProvider{name: "primary", fetchFn: failing},
		&mockProvider{name: "secondary", fetchFn: failing},
	)
	chain.OnFallback(func(context.Context, string, string, error) {
		t.Error("hook must not fire when the whole chain fails")
	})

	_, err := chain.FetchPrice(context.Background(), "AAPL", time.Now())
	assert.ErrorIs(t, err, usecase.ErrProviderExhausted)
}

func TestProviderChain_AllExhausted(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, string, time.Time) (entity.PricePoint, error) {
		return entity.PricePoint{}, errors.New("down")
	}
	chain := NewProviderChain(
		&mockProvider{name: "primary", fetchFn: failing},
		&mockProvider{name: "secondary", fetchFn: failing},
	)

	_, err := chain.FetchPrice(context.Background(), "AAPL", time.Now())
	assert.ErrorIs(t, err, usecase.ErrProviderExhausted)
}

func TestProviderChain_NoProviders(t *testing.T) {
	t.Parallel()

	chain := NewProviderChain()

	_, err := chain.FetchPrice(context.Background(), "AAPL", time.Now())
	assert.ErrorIs(t, err, usecase.ErrProviderExhausted)
}

func TestProviderChain_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewProviderChain(
		&mockProvider{name: "primary", fetchFn: func(context.Context, string, time.Time) (entity.PricePoint, error) {
			t.Fatal("provider must not be called after cancellation")
			return entity.PricePoint{}, nil
		}},
	)

	_, err := chain.FetchPrice(ctx, "AAPL", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
