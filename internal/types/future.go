package types

import (
	"context"
	"sync"
)

// Future is a one-shot completion cell for the result of a blocking closure.
//
// A worker writes the result exactly once with Complete; any number of
// goroutines may read it afterwards. Readers that arrive early either block
// (Get), block until a context fires (GetWithContext), poll (TryGet) or
// register a waker (OnComplete).
//
// Abandoning a Future never stops the closure behind it; the result is simply
// never read.
type Future[R any] struct {
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	wakers []func()

	value R
	err   error
}

// NewFuture creates a pending future.
func NewFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// Complete stores the outcome and wakes every waiter. Only the first call
// has an effect; it reports whether it was that call.
func (f *Future[R]) Complete(value R, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		f.err = err

		f.mu.Lock()
		wakers := f.wakers
		f.wakers = nil
		close(f.done)
		f.mu.Unlock()

		for _, w := range wakers {
			w()
		}
		completed = true
	})
	return completed
}

// Get blocks until the result is available.
func (f *Future[R]) Get() (R, error) {
	<-f.done
	return f.value, f.err
}

// GetWithContext blocks until the result is available or ctx is done.
// When ctx wins, the zero value and ctx.Err() are returned and the closure
// keeps running; a later call can still collect its result.
func (f *Future[R]) GetWithContext(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// TryGet returns the result without blocking. ready is false while the
// closure is still pending.
func (f *Future[R]) TryGet() (value R, err error, ready bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero R
		return zero, nil, false
	}
}

// Done returns a channel that is closed once the result is available.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// IsReady reports whether the result is available.
func (f *Future[R]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// OnComplete registers w to be called once the result is available.
// If the future is already complete, w runs immediately on the calling
// goroutine; otherwise it runs on the goroutine that completes the future,
// which is a pool worker. Wakers must not block.
func (f *Future[R]) OnComplete(w func()) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		w()
		return
	default:
	}
	f.wakers = append(f.wakers, w)
	f.mu.Unlock()
}
