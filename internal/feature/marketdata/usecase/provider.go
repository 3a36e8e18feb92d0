package usecase

import (
	"context"
	"errors"
	"time"

	"risk_backend/internal/feature/marketdata/domain/entity"
)

// ErrProviderExhausted signals that every provider in the fallback chain
// failed for one (symbol, date). The failure is isolated to that symbol.
var ErrProviderExhausted = errors.New("all price providers exhausted")

// Provider fetches one day's price for a symbol from an external source.
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string, date time.Time) (entity.PricePoint, error)
}
