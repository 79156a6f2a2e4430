package pool

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utkarsh5026/unblock/internal/cpu"
	"github.com/utkarsh5026/unblock/internal/metrics"
	"github.com/utkarsh5026/unblock/internal/queue"
	"github.com/utkarsh5026/unblock/internal/types"
)

// bindWorker is swapped out by tests to simulate a refused thread.
var bindWorker = cpu.BindWorker

// Pool runs blocking closures on a dynamically sized set of OS-thread-bound
// workers.
//
// No worker exists until the first submission. A submission that finds no
// free idle worker starts one, up to the configured maximum; otherwise it is
// only queued. Idle workers already outnumbered by queued tasks do not count
// as free. A worker that waits longer than the idle timeout without work
// exits, unless that would take the pool below its minimum.
type Pool struct {
	conf    *poolConfig
	queue   *queue.Queue[task]
	limiter *rate.Limiter
	metrics *metrics.Metrics

	// mu guards state and every spawn/exit decision. It is never held
	// while a closure runs or a worker's thread is being bound.
	mu     sync.Mutex
	state  poolState
	closed bool
	nextID int

	workers sync.WaitGroup
}

// poolState is the locked sizing record. 0 <= idle <= total <= max.
type poolState struct {
	idle    int
	total   int
	max     int
	spawned uint64
	exited  uint64
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Total   int
	Idle    int
	Max     int
	Queued  int
	Spawned uint64
	Exited  uint64
}

// task is a type-erased unit of work. run fills the caller's Future; fail
// is called instead when run panics or exits its goroutine.
type task struct {
	run  func()
	fail func(error)
}

// New creates a pool with the given options. No workers are started.
//
// Default configuration:
//   - maxWorkers: 500
//   - minWorkers: 0
//   - idleTimeout: 500ms
//
// New panics if WithMetrics was given and registration fails.
func New(opts ...Option) *Pool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.minWorkers = min(cfg.minWorkers, cfg.maxWorkers)

	p := &Pool{
		conf:    cfg,
		queue:   queue.New[task](),
		limiter: cfg.rateLimiter,
		state:   poolState{max: cfg.maxWorkers},
	}

	if cfg.registerer != nil {
		m, err := metrics.New(cfg.registerer, cfg.name)
		if err != nil {
			panic(fmt.Sprintf("pool %q: registering metrics: %v", cfg.name, err))
		}
		p.metrics = m
	}
	return p
}

// Unblock submits fn to p and returns immediately. fn runs on some worker
// thread, so it must not rely on state tied to the calling goroutine.
//
// The returned Future resolves to fn's result. If fn panics the Future
// carries a *PanicError; if it calls runtime.Goexit, ErrTaskExited. Neither
// affects other closures or the pool.
//
// Abandoning the Future does not stop fn.
func Unblock[R any](p *Pool, fn func() (R, error)) (*Future[R], error) {
	f := types.NewFuture[R]()
	t := task{
		run: func() {
			v, err := fn()
			f.Complete(v, err)
		},
		fail: func(err error) {
			var zero R
			f.Complete(zero, err)
		},
	}

	if err := p.submit(t); err != nil {
		return nil, err
	}
	return f, nil
}

// Go submits a closure without a result.
func Go(p *Pool, fn func()) (*Future[struct{}], error) {
	return Unblock(p, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
}

func (p *Pool) submit(t task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	// A worker that is idle but already owed a queued task is not free.
	// Workers still starting are not idle either.
	spawn := p.state.idle <= p.queue.Len() && p.state.total < p.state.max
	var id int
	if spawn {
		id = p.reserveLocked()
	}
	p.mu.Unlock()

	if spawn {
		if err := p.start(id); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A worker started above sees the closed queue and retires.
	if p.closed {
		return ErrPoolClosed
	}

	// Pushing under mu means an idle worker deciding to exit either sees
	// this task or has already left the counts, so nothing is stranded.
	if err := p.queue.Push(t); err != nil {
		return ErrPoolClosed
	}
	p.metrics.Submitted()
	return nil
}

// reserveLocked counts a worker against the maximum before it exists and
// returns its id. The caller must follow with start once mu is released.
func (p *Pool) reserveLocked() int {
	id := p.nextID
	p.nextID++
	p.state.total++
	p.workers.Add(1)
	return id
}

// start runs a reserved worker and waits until its thread is bound. A
// worker that cannot be bound gives its reservation back.
func (p *Pool) start(id int) error {
	ready := make(chan error, 1)
	go p.work(id, ready)

	if err := <-ready; err != nil {
		p.mu.Lock()
		p.state.total--
		p.mu.Unlock()
		debugLog("worker %d failed to start: %v", id, err)
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	return nil
}

// joined makes a freshly bound worker idle.
func (p *Pool) joined(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.idle++
	p.state.spawned++
	p.metrics.Spawned()
	debugLog("worker %d started (total=%d)", id, p.state.total)
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Total:   p.state.total,
		Idle:    p.state.idle,
		Max:     p.state.max,
		Queued:  p.queue.Len(),
		Spawned: p.state.spawned,
		Exited:  p.state.exited,
	}
}

// Close stops accepting submissions. Closures already queued still run;
// workers exit once the queue is empty. Close waits up to timeout for
// every worker to exit (0 = wait forever).
//
// Closing the pool returned by Default is allowed but leaves the process
// without a default pool.
func (p *Pool) Close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	p.queue.Close()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()
	return waitUntil(done, timeout)
}
