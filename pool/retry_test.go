package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		Backoff:      BackoffExponential,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}
}

func TestRetry(t *testing.T) {
	p := New()
	defer closePool(t, p)

	t.Run("succeeds after failures", func(t *testing.T) {
		var calls atomic.Int32
		v, err := Retry(context.Background(), p, fastPolicy(5), func() (int, error) {
			if calls.Add(1) < 3 {
				return 0, errors.New("transient")
			}
			return 99, nil
		})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 99 {
			t.Errorf("expected 99, got %d", v)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("gives up with last error", func(t *testing.T) {
		var calls atomic.Int32
		last := errors.New("still broken")
		_, err := Retry(context.Background(), p, fastPolicy(3), func() (int, error) {
			calls.Add(1)
			return 0, last
		})

		if !errors.Is(err, last) {
			t.Errorf("expected last error, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("RetryIf stops early", func(t *testing.T) {
		permanent := errors.New("permanent")
		policy := fastPolicy(5)
		policy.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }

		var calls atomic.Int32
		_, err := Retry(context.Background(), p, policy, func() (int, error) {
			calls.Add(1)
			return 0, permanent
		})

		if !errors.Is(err, permanent) || calls.Load() != 1 {
			t.Errorf("expected one attempt with permanent error, got %d attempts, %v", calls.Load(), err)
		}
	})

	t.Run("panics are not retried", func(t *testing.T) {
		var calls atomic.Int32
		_, err := Retry(context.Background(), p, fastPolicy(5), func() (int, error) {
			calls.Add(1)
			panic("bug")
		})

		if !errors.Is(err, ErrTaskPanicked) || calls.Load() != 1 {
			t.Errorf("expected a single panicked attempt, got %d attempts, %v", calls.Load(), err)
		}
	})

	t.Run("context cancels the wait", func(t *testing.T) {
		policy := fastPolicy(10)
		policy.InitialDelay = time.Second
		policy.MaxDelay = time.Second

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := Retry(ctx, p, policy, func() (int, error) { return 0, errors.New("nope") })
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Errorf("expected cancellation to cut the backoff short, took %v", time.Since(start))
		}
	})

	t.Run("single attempt when MaxAttempts is zero", func(t *testing.T) {
		var calls atomic.Int32
		_, _ = Retry(context.Background(), p, RetryPolicy{}, func() (int, error) {
			calls.Add(1)
			return 0, errors.New("x")
		})
		if calls.Load() != 1 {
			t.Errorf("expected 1 attempt, got %d", calls.Load())
		}
	})
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 || p.InitialDelay != 100*time.Millisecond || p.MaxDelay != 5*time.Second {
		t.Errorf("unexpected default policy: %+v", p)
	}
}
