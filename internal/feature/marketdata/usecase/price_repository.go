// Package usecase defines market data contracts and the freshness monitor.
package usecase

import (
	"context"
	"errors"
	"time"

	"risk_backend/internal/feature/marketdata/domain/entity"
)

// ErrPriceNotFound is returned when no price row matches a query.
var ErrPriceNotFound = errors.New("price not found")

// PriceRepository abstracts PricePoint persistence. Interfaces are defined
// by the consumer (usecase), not the provider (adapters).
type PriceRepository interface {
	// UpsertBatch inserts or overwrites points on their (symbol, date) key.
	UpsertBatch(ctx context.Context, points []entity.PricePoint) error
	// History returns up to limit most recent points for symbol, ascending
	// by date.
	History(ctx context.Context, symbol string, limit int) ([]entity.PricePoint, error)
	// ForDate returns the point for (symbol, date) or ErrPriceNotFound.
	ForDate(ctx context.Context, symbol string, date time.Time) (*entity.PricePoint, error)
	// CountForDate counts how many symbols have a point on date.
	CountForDate(ctx context.Context, date time.Time) (int64, error)
	// LatestDate returns the most recent date with any price data, or
	// ErrPriceNotFound for an empty store.
	LatestDate(ctx context.Context) (time.Time, error)
	// ListSince returns every point dated on or after since, ascending by
	// (symbol, date). Used by the cache warm-up.
	ListSince(ctx context.Context, since time.Time) ([]entity.PricePoint, error)
}
