// Package coop bridges pool futures into a cooperative scheduler built on
// github.com/b97tsk/async.
//
// A coroutine that awaits a future yields instead of blocking its executor.
// When the worker completes the future, it spawns a notification onto the
// coroutine's executor, which resumes the coroutine on the executor's own
// goroutine. The result is handed to a callback there, so it may touch state
// owned by the executor without extra locking.
package coop

import (
	"sync/atomic"

	"github.com/b97tsk/async"

	"github.com/utkarsh5026/unblock/pool"
)

// Await returns a task that ends once f completes, after calling then with
// its result. A future that is already complete is consumed without
// yielding.
func Await[R any](f *pool.Future[R], then func(R, error)) async.Task {
	return func(co *async.Coroutine) async.Result {
		if v, err, ok := f.TryGet(); ok {
			deliver(then, v, err)
			return co.End()
		}

		var sig async.Signal
		e := co.Executor()

		// A waker that fires while this task is still running must not
		// re-enter the executor; IsReady below covers that window.
		var armed atomic.Bool
		f.OnComplete(func() {
			if armed.Load() {
				e.Spawn(async.Do(sig.Notify))
			}
		})
		armed.Store(true)

		if f.IsReady() {
			v, err := f.Get()
			deliver(then, v, err)
			return co.End()
		}

		return co.Await(&sig).Then(async.Do(func() {
			v, err := f.Get()
			deliver(then, v, err)
		}))
	}
}

// Unblock returns a task that submits fn to p when it first runs, yields
// until fn has finished and then calls then with the outcome. A rejected
// submission is reported through then with the zero value.
func Unblock[R any](p *pool.Pool, fn func() (R, error), then func(R, error)) async.Task {
	return func(co *async.Coroutine) async.Result {
		f, err := pool.Unblock(p, fn)
		if err != nil {
			var zero R
			deliver(then, zero, err)
			return co.End()
		}
		return co.Transition(Await(f, then))
	}
}

// Go is Unblock for closures without a result.
func Go(p *pool.Pool, fn func(), then func(error)) async.Task {
	return Unblock(p, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	}, func(_ struct{}, err error) {
		if then != nil {
			then(err)
		}
	})
}

func deliver[R any](then func(R, error), v R, err error) {
	if then != nil {
		then(v, err)
	}
}
