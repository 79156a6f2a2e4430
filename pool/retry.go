package pool

import (
	"context"
	"errors"
	"time"

	"github.com/utkarsh5026/unblock/internal/algorithms"
)

// BackoffType selects how the delay between attempts grows.
type BackoffType = algorithms.Kind

const (
	BackoffExponential  = algorithms.Exponential
	BackoffJittered     = algorithms.Jittered
	BackoffDecorrelated = algorithms.Decorrelated
)

// RetryPolicy describes how Retry resubmits a failing closure.
type RetryPolicy struct {
	// MaxAttempts is the total number of runs, including the first.
	// Values below 1 mean 1.
	MaxAttempts int

	Backoff      BackoffType
	InitialDelay time.Duration
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration
	// JitterFactor is used by BackoffJittered, clamped to [0, 1].
	JitterFactor float64

	// RetryIf decides whether err is worth another attempt. Nil retries
	// every error except a panic or Goexit.
	RetryIf func(err error) bool
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff starting
// at 100ms and capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		Backoff:      BackoffExponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.1,
	}
}

// Retry runs fn on p until it succeeds, the policy gives up or ctx is done.
// Each attempt is a fresh submission; the pool itself never retries.
// The last error is returned when attempts run out.
func Retry[R any](ctx context.Context, p *Pool, policy RetryPolicy, fn func() (R, error)) (R, error) {
	var zero R

	attempts := max(policy.MaxAttempts, 1)
	retryIf := policy.RetryIf
	if retryIf == nil {
		retryIf = func(err error) bool {
			return !errors.Is(err, ErrTaskPanicked) && !errors.Is(err, ErrTaskExited)
		}
	}
	backoff := algorithms.New(policy.Backoff, policy.InitialDelay, policy.MaxDelay, policy.JitterFactor)

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(backoff.NextDelay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}

		f, err := Unblock(p, fn)
		if err != nil {
			return zero, err
		}

		v, err := f.GetWithContext(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		lastErr = err
		if !retryIf(err) {
			break
		}
		debugLog("attempt %d/%d failed: %v", attempt+1, attempts, err)
	}

	return zero, lastErr
}
