// Package algorithms holds the delay schedules used when a caller chooses to
// resubmit a failed blocking closure.
package algorithms

import (
	"math/rand/v2"
	"sync"
	"time"
)

// maxShift prevents overflow in the exponential delay calculation.
const maxShift = 62

// Kind selects a backoff schedule.
type Kind int

const (
	// Exponential doubles the delay on every attempt (default).
	Exponential Kind = iota
	// Jittered spreads exponential delays by ±JitterFactor.
	Jittered
	// Decorrelated draws each delay from [initial, 3*previous].
	Decorrelated
)

// Backoff computes the delay to wait before resubmitting a closure.
type Backoff interface {
	// NextDelay returns the delay before retry number attempt (0-indexed:
	// 0 is the first retry after the initial failure).
	NextDelay(attempt int) time.Duration

	// Reset forgets any state carried between attempts.
	Reset()
}

// New builds the schedule described by kind. A non-positive maxDelay means
// the delay is never capped.
func New(kind Kind, initialDelay, maxDelay time.Duration, jitterFactor float64) Backoff {
	if maxDelay <= 0 {
		maxDelay = time.Duration(1<<63 - 1)
	}

	switch kind {
	case Jittered:
		return &jittered{
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			jitterFactor: clamp(jitterFactor, 0, 1),
		}
	case Decorrelated:
		return &decorrelated{
			initialDelay: initialDelay,
			maxDelay:     maxDelay,
			prevDelay:    initialDelay,
		}
	default:
		return &exponential{initialDelay: initialDelay, maxDelay: maxDelay}
	}
}

type exponential struct {
	initialDelay, maxDelay time.Duration
}

func (e *exponential) NextDelay(attempt int) time.Duration {
	return exponentialDelay(attempt, e.initialDelay, e.maxDelay)
}

func (e *exponential) Reset() {}

// jittered multiplies the exponential delay by a factor drawn from
// [1-jitterFactor, 1+jitterFactor] so that closures failing together do not
// come back together.
type jittered struct {
	initialDelay, maxDelay time.Duration
	jitterFactor           float64
}

func (j *jittered) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	base := exponentialDelay(attempt, j.initialDelay, j.maxDelay)
	multiplier := 1.0 + (rand.Float64()*2-1)*j.jitterFactor // #nosec G404 -- jitter does not need crypto rand
	return clamp(time.Duration(float64(base)*multiplier), 0, j.maxDelay)
}

func (j *jittered) Reset() {}

// decorrelated implements decorrelated jitter:
// sleep = min(maxDelay, random(initialDelay, prevSleep*3)).
// Each delay depends on the previous one rather than on the attempt number.
type decorrelated struct {
	initialDelay, maxDelay time.Duration

	mu        sync.Mutex
	prevDelay time.Duration
}

func (d *decorrelated) NextDelay(attempt int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attempt <= 0 {
		d.prevDelay = d.initialDelay
		return d.initialDelay
	}

	upper := min(time.Duration(float64(d.prevDelay)*3), d.maxDelay)
	span := upper - d.initialDelay
	if span <= 0 {
		d.prevDelay = d.initialDelay
		return d.initialDelay
	}

	delay := d.initialDelay + time.Duration(rand.Int64N(int64(span))) // #nosec G404 -- jitter does not need crypto rand
	d.prevDelay = delay
	return delay
}

func (d *decorrelated) Reset() {
	d.mu.Lock()
	d.prevDelay = d.initialDelay
	d.mu.Unlock()
}

func exponentialDelay(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return maxDelay
	}

	delay := time.Duration(int64(1)<<uint(attempt)) * initialDelay
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func clamp[N int64 | float64 | time.Duration](v, lo, hi N) N {
	return max(lo, min(v, hi))
}
