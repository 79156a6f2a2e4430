// Package pool runs blocking closures on a dynamically sized pool of
// worker threads and hands their results back as futures.
//
// Goroutines are cheap, but a goroutine stuck in a blocking syscall or a
// cgo call still pins an OS thread. Pool makes that explicit: every worker
// is locked to its own thread, at most MaxWorkers of them exist, and idle
// ones go away after IdleTimeout.
//
// # Basic Usage
//
//	p := pool.New(pool.WithMaxWorkers(64))
//	defer p.Close(5 * time.Second)
//
//	f, err := pool.Unblock(p, func() ([]byte, error) {
//	    return os.ReadFile("/etc/hosts")
//	})
//	if err != nil {
//	    return err // pool closed or worker thread refused
//	}
//	data, err := f.GetWithContext(ctx)
//
// Most callers can use the process-wide pool returned by Default, which is
// configured from UNBLOCK_* environment variables.
//
// # Sizing
//
// A submission that finds no idle worker starts a new one immediately,
// unless MaxWorkers are already running, in which case it waits in an
// unbounded FIFO. A submission that finds an idle worker never starts a new
// one. Workers that see no work for IdleTimeout exit, down to MinWorkers.
//
// # Failures
//
// A closure that panics resolves its Future with a *PanicError carrying the
// panic value and stack; errors.Is(err, ErrTaskPanicked) holds. A closure
// that calls runtime.Goexit resolves with ErrTaskExited. In both cases
// other closures are unaffected.
//
// Unblock itself fails only with ErrPoolClosed or ErrSpawnFailed. The
// latter can happen with WithThreadAffinity when the OS refuses to pin a
// new thread; the pool stays usable.
//
// # Helpers
//
//   - Process: run one closure per input on the pool, results in order
//   - Retry: resubmit a failing closure with exponential, jittered or
//     decorrelated backoff
//
// # Configuration Options
//
//   - WithMaxWorkers(n): cap on worker threads (default: 500)
//   - WithMinWorkers(n): workers kept through idle periods (default: 0)
//   - WithIdleTimeout(d): idle time before a worker exits (default: 500ms)
//   - WithThreadAffinity(bool): pin each worker thread to a CPU core
//   - WithRateLimit(tasksPerSecond, burst): throttle closure starts
//   - WithMetrics(reg): export Prometheus collectors
//   - WithConfig(c): apply a config.Config
package pool
