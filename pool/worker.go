package pool

import (
	"context"
	"time"

	"github.com/utkarsh5026/unblock/internal/types"
)

// work is the body of one worker. It reports on ready whether its thread
// could be bound, then serves the queue until it times out or the pool
// closes.
func (p *Pool) work(id int, ready chan<- error) {
	defer p.workers.Done()

	release, err := bindWorker(id, p.conf.threadAffinity)
	if err != nil {
		ready <- err
		return
	}
	defer release()
	p.joined(id)
	ready <- nil

	// retired is set once this worker has taken itself out of the counts.
	// Anything else reaching the deferred call below is a closure that
	// called runtime.Goexit while this worker was busy.
	retired := false
	defer func() {
		if !retired {
			p.abandon(id)
		}
	}()

	timer := time.NewTimer(p.conf.idleTimeout)
	defer timer.Stop()

	for {
		if t, ok := p.claim(); ok {
			p.execute(t)
			p.markIdle()
			continue
		}

		resetTimer(timer, p.conf.idleTimeout)
		select {
		case <-p.queue.Notify():
		case <-p.queue.Closed():
			if p.retire(id) {
				retired = true
				return
			}
		case <-timer.C:
			if p.retire(id) {
				retired = true
				return
			}
		}
	}
}

// claim pops the next task and marks the worker busy in one step so that
// submitters never count a worker holding a task as idle.
func (p *Pool) claim() (task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.queue.TryPop()
	if ok {
		p.state.idle--
		p.metrics.Busy()
	}
	return t, ok
}

func (p *Pool) markIdle() {
	p.mu.Lock()
	p.state.idle++
	p.mu.Unlock()
	p.metrics.Idle()
}

// execute runs one task, routing a panic or Goexit to its Future.
func (p *Pool) execute(t task) {
	if p.limiter != nil {
		_ = p.limiter.Wait(context.Background())
	}

	start := time.Now()
	failed := false
	defer func() {
		p.metrics.Completed(time.Since(start), failed)
	}()

	types.Catch(t.run, func(err error) {
		failed = true
		debugLog("closure failed: %v", err)
		t.fail(err)
	})
}

// retire decides, under mu, whether an idle worker may exit. It may not
// while work is queued, nor while that would drop below the minimum of an
// open pool.
func (p *Pool) retire(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Len() > 0 {
		return false
	}
	if !p.closed && p.state.total <= p.conf.minWorkers {
		return false
	}

	p.state.total--
	p.state.idle--
	p.state.exited++
	p.metrics.Exited(true)
	debugLog("worker %d exited (total=%d)", id, p.state.total)
	return true
}

// abandon accounts for a busy worker whose goroutine is being torn down by
// runtime.Goexit. If that leaves queued work with nobody to run it, a
// replacement is started.
func (p *Pool) abandon(id int) {
	p.mu.Lock()
	p.state.total--
	p.state.exited++
	p.metrics.Exited(false)
	debugLog("worker %d lost to Goexit (total=%d)", id, p.state.total)

	replace := p.queue.Len() > p.state.idle && p.state.total < p.state.max
	var next int
	if replace {
		next = p.reserveLocked()
	}
	p.mu.Unlock()

	if replace {
		if err := p.start(next); err != nil {
			debugLog("replacement for worker %d failed: %v", id, err)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
