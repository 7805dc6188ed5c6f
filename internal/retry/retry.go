// Package retry provides the shared backoff policies for the engine:
// linear delays for batched loads, exponential delays for live refresh.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brickops/fieldsync/internal/models"
)

// BackoffFunc computes the delay before the given retry attempt.
// Attempt numbering starts at 1 for the first retry.
type BackoffFunc func(attempt int, base time.Duration) time.Duration

// Linear grows the delay as base × attempt.
func Linear(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * base
}

// Exponential grows the delay as base × 2^(attempt−1).
func Exponential(attempt int, base time.Duration) time.Duration {
	return base << uint(attempt-1)
}

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts counts the first try plus retries.
	MaxAttempts int
	// Base is the unit delay fed to Backoff.
	Base time.Duration
	// Backoff defaults to Linear when nil.
	Backoff BackoffFunc
	// Jitter adds up to this fraction of the delay, spreading retries
	// of many buildings off a shared upstream rate limit.
	Jitter float64
	// MaxDelay caps a single computed delay when positive.
	MaxDelay time.Duration
}

// Do runs fn until it succeeds, the policy is exhausted, the error is not
// retryable, or the context is cancelled.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Linear
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff(attempt-1, p.Base)
			if p.Jitter > 0 {
				delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
			}
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !models.IsRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", models.ErrRetriesExhausted, p.MaxAttempts, lastErr)
}
