package app

import (
	"context"
	"time"

	"docquery/internal/domain"
)

const retryBackoffBase = 200 * time.Millisecond

// withRetry runs op up to attempts times, retrying only dependency
// failures (see domain.IsRetryable) with doubling backoff. Caller
// mistakes fail fast, and a cancelled context stops the waiting
// between attempts.
func withRetry(ctx context.Context, attempts int, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(retryBackoffBase << (i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
	}
	return err
}
