package infra

import (
	"context"
	"fmt"
	"math"
	"time"
)

const maxShift = 62

// RetryPolicy wraps a fallible operation with a bounded number of attempts
// and a delay between them. It is a pure decorator: it knows nothing about
// the operation it guards, so it can be reused around any call and tested
// with an injected fake.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first call.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff maps the 1-based attempt number that just failed to the wait
	// before the next attempt. Nil means no wait.
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
	// OnRetry, if set, is invoked after each failed attempt that will be
	// retried.
	OnRetry func(attempt int, err error)
}

// Do runs op until it succeeds, the attempt budget is exhausted, the error is
// not retryable, or ctx is cancelled. The caller observes only the final
// outcome.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		if p.Backoff != nil {
			if err := sleepContext(ctx, p.Backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("retry budget exhausted after %d attempts: %w", attempts, lastErr)
}

// Exponential returns a backoff function yielding base*2^(attempt-1), with
// overflow protection for absurd attempt numbers.
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		shift := attempt - 1
		if shift < 0 {
			shift = 0
		} else if shift > maxShift {
			shift = maxShift
		}
		multiplier := int64(1) << shift
		if int64(base) > math.MaxInt64/multiplier {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(int64(base) * multiplier)
	}
}

// sleepContext waits for the given duration but honors context cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
