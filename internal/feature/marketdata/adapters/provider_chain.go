package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"risk_backend/internal/feature/marketdata/domain/entity"
	"risk_backend/internal/feature/marketdata/usecase"
)

// ProviderFailureHook is notified when a provider failed but a later one in
// the chain served the request. Full exhaustion is not reported here; the
// caller already sees that as the returned error.
type ProviderFailureHook func(ctx context.Context, provider, symbol string, err error)

// ProviderChain tries providers in a fixed priority order until one succeeds
// or all are exhausted.
type ProviderChain struct {
	providers  []usecase.Provider
	onFallback ProviderFailureHook
}

var _ usecase.Provider = (*ProviderChain)(nil)

// NewProviderChain creates a chain. Order is the fallback order:
// primary first.
func NewProviderChain(providers ...usecase.Provider) *ProviderChain {
	return &ProviderChain{providers: providers}
}

// OnFallback installs a hook observing degraded-provider events. A nil hook
// disables reporting.
func (c *ProviderChain) OnFallback(hook ProviderFailureHook) {
	c.onFallback = hook
}

func (c *ProviderChain) Name() string { return "chain" }

// FetchPrice cascades through the providers. Each individual failure is
// logged; the returned error wraps ErrProviderExhausted only when every
// provider failed.
func (c *ProviderChain) FetchPrice(ctx context.Context, symbol string, date time.Time) (entity.PricePoint, error) {
	if len(c.providers) == 0 {
		return entity.PricePoint{}, fmt.Errorf("%w: no providers configured", usecase.ErrProviderExhausted)
	}

	var lastErr error
	type skipped struct {
		name string
		err  error
	}
	var fallen []skipped
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return entity.PricePoint{}, ctx.Err()
		}
		point, err := p.FetchPrice(ctx, symbol, date)
		if err == nil {
			if c.onFallback != nil {
				for _, s := range fallen {
					c.onFallback(ctx, s.name, symbol, s.err)
				}
			}
			return point, nil
		}
		lastErr = err
		fallen = append(fallen, skipped{name: p.Name(), err: err})
		slog.Warn("provider fetch failed, cascading",
			"provider", p.Name(), "symbol", symbol, "date", date.Format("2006-01-02"), "error", err)
	}
	return entity.PricePoint{}, fmt.Errorf("%w for %s: %v", usecase.ErrProviderExhausted, symbol, lastErr)
}
