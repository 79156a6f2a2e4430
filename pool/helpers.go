package pool

import (
	"errors"
	"time"

	"github.com/utkarsh5026/unblock/internal/types"
)

var (
	// ErrPoolClosed is returned by submissions made after Close.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrSpawnFailed wraps the reason a worker thread could not be started.
	// The submission that needed the worker is not enqueued.
	ErrSpawnFailed = errors.New("failed to start worker")

	ErrShutdownTimeout = errors.New("error in shutting down: timeout reached")

	// Re-exported so callers need not import an internal package.
	ErrTaskPanicked = types.ErrTaskPanicked
	ErrTaskExited   = types.ErrTaskExited
)

// Future is the awaitable result of a closure submitted with Unblock.
type Future[R any] = types.Future[R]

// PanicError is the error a Future carries when its closure panicked.
type PanicError = types.PanicError

// waitUntil blocks until either the done channel is closed or the timeout is reached.
// It is used during graceful shutdown to wait for workers to complete their tasks.
func waitUntil(d <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-d
		return nil
	}

	select {
	case <-d:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
