// Package types holds the value types shared between the pool, the stream
// adapters and the cooperative bridge: the one-shot Future and the error
// values a failed closure is reported with.
package types

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrTaskPanicked matches (via errors.Is) every *PanicError.
	ErrTaskPanicked = errors.New("blocking task panicked")

	// ErrTaskExited is reported when a closure calls runtime.Goexit.
	ErrTaskExited = errors.New("blocking task exited its goroutine")
)

// PanicError carries a panic raised by a blocking closure together with the
// stack of the worker at the time of the panic.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack. Call it from the deferred
// function that recovered v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v\nstack trace:\n%s", e.Value, e.Stack)
}

func (e *PanicError) Is(target error) bool {
	return target == ErrTaskPanicked
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Catch runs f. If f panics, fail receives a *PanicError and Catch returns
// normally. If f calls runtime.Goexit, fail receives ErrTaskExited and the
// goroutine keeps unwinding; the caller's deferred functions still run.
func Catch(f func(), fail func(error)) {
	ok := false
	defer func() {
		if ok {
			return
		}
		if v := recover(); v != nil {
			fail(NewPanicError(v))
		} else {
			fail(ErrTaskExited)
		}
	}()
	f()
	ok = true
}
