package symbolcache

import (
	"context"
	"time"

	factorusecase "risk_backend/internal/feature/factors/usecase"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
)

// StoreLoader reads cache contents from the price and exposure repositories.
// LoadAll is bounded to a trailing window so warm-up stays proportional to
// the data the batch runners actually read.
type StoreLoader struct {
	prices    marketusecase.PriceRepository
	exposures factorusecase.ExposureRepository
	window    time.Duration
}

var _ Loader = (*StoreLoader)(nil)

// NewStoreLoader creates a loader. window defaults to 400 days, comfortably
// above the 250-trading-day regression history.
func NewStoreLoader(prices marketusecase.PriceRepository, exposures factorusecase.ExposureRepository, window time.Duration) *StoreLoader {
	if window <= 0 {
		window = 400 * 24 * time.Hour
	}
	return &StoreLoader{prices: prices, exposures: exposures, window: window}
}

func (l *StoreLoader) LoadSymbol(ctx context.Context, symbol string) (*CachedSymbolData, error) {
	prices, err := l.prices.History(ctx, symbol, 0)
	if err != nil {
		return nil, err
	}
	// An empty exposure set is normal for symbols fetched but not yet
	// regressed; only a real storage error aborts the load.
	exposures, err := l.exposures.ForSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	d := &CachedSymbolData{Symbol: symbol, Prices: prices, Exposures: exposures}
	return d, nil
}

func (l *StoreLoader) LoadAll(ctx context.Context) (map[string]*CachedSymbolData, error) {
	since := time.Now().UTC().Add(-l.window)

	prices, err := l.prices.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}
	exposures, err := l.exposures.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}

	entries := map[string]*CachedSymbolData{}
	for _, p := range prices {
		d, ok := entries[p.Symbol]
		if !ok {
			d = &CachedSymbolData{Symbol: p.Symbol}
			entries[p.Symbol] = d
		}
		d.Prices = append(d.Prices, p)
	}
	for _, e := range exposures {
		d, ok := entries[e.Symbol]
		if !ok {
			d = &CachedSymbolData{Symbol: e.Symbol}
			entries[e.Symbol] = d
		}
		d.Exposures = append(d.Exposures, e)
	}
	return entries, nil
}
