// Package retry provides the single explicit backoff policy used for every
// provider call in the migration engine, instead of per-provider ad hoc
// retry loops.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/nft-repin/internal/logging"
)

// Policy configures retry behavior: how many attempts, the backoff curve,
// and which errors are worth retrying (decided by the caller's classifier).
type Policy struct {
	MaxAttempts  int           // Total attempts including the first call
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Cap on the backoff curve
	Multiplier   float64       // Exponential backoff multiplier
}

// DefaultPolicy returns the engine's default policy.
// Pattern: 1s, 2s, capped at 30s.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Result contains information about a retried operation
type Result struct {
	Attempts  int
	Success   bool
	LastError error
}

// Func is an operation that can be retried
type Func func(ctx context.Context, attempt int) error

// Classifier decides whether an error should trigger another attempt.
// Returning false makes the error terminal immediately.
type Classifier func(err error) bool

// Do executes fn with bounded exponential backoff. Attempts stop when fn
// succeeds, the classifier declares the error non-retryable, the attempt
// limit is reached, or the context is cancelled.
func Do(ctx context.Context, policy *Policy, retryable Classifier, fn Func) *Result {
	logger := logging.FromContext(ctx)
	result := &Result{}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if retryable != nil && !retryable(err) {
			return result
		}
		if attempt >= policy.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			}).Warn("Operation failed after max attempts")
			return result
		}

		delay := policy.delay(attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": policy.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			return result
		}
	}

	return result
}

// delay computes the backoff before the next attempt:
// initialDelay * multiplier^(attempt-1), capped at MaxDelay.
func (p *Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
