// Package retry provides bounded retries with exponential backoff.
package retry

import (
	"context"
	"time"
)

// Do calls fn up to maxAttempts times, doubling the delay between attempts
// starting at baseDelay. It returns nil on the first success, the last error
// once attempts are exhausted, or the context error if cancelled while
// waiting between attempts.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
