// Package ratelimiter throttles calls against rate-limited market data providers.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates an operation until the rate budget allows it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket is a token-bucket Limiter built on golang.org/x/time/rate.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows perMinute operations per minute with the given burst.
// A burst below 1 is raised to 1 so the first call never blocks forever.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Unlimited is a Limiter that never blocks. Used in tests and for providers
// without a published rate limit.
type Unlimited struct{}

func (Unlimited) Wait(context.Context) error { return nil }
