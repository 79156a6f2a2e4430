// Package queue implements the unbounded FIFO that carries pending blocking
// closures from submitters to pool workers.
package queue

import (
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

// defaultInitialCapacity is the ring size a fresh queue starts with.
// The ring doubles whenever it fills up and never shrinks below this.
const defaultInitialCapacity = 64

// Queue is an unbounded, thread-safe FIFO.
//
// Consumers that find the queue empty park on Notify. The notify channel is
// buffered with a single slot and never closed, so a Push never blocks and
// a burst of pushes collapses into one wake-up. To keep a second parked
// consumer from sleeping while items remain, a successful TryPop that leaves
// items behind re-arms the channel.
type Queue[T any] struct {
	mu    sync.Mutex
	ring  []T
	head  int
	count int

	closed bool

	// notifyC signals that an item may be available (BUFFERED, NEVER CLOSED).
	notifyC chan struct{}

	// closeC is closed once by Close (UNBUFFERED, CLOSED ON SHUTDOWN).
	closeC chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ring:    make([]T, defaultInitialCapacity),
		notifyC: make(chan struct{}, 1),
		closeC:  make(chan struct{}),
	}
}

// Push appends v to the tail of the queue and wakes one parked consumer.
// It returns ErrQueueClosed once Close has been called.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	if q.count == len(q.ring) {
		q.grow()
	}
	q.ring[(q.head+q.count)%len(q.ring)] = v
	q.count++
	q.mu.Unlock()

	q.signal()
	return nil
}

// TryPop removes and returns the head of the queue without blocking.
// Items pushed before Close are still handed out after it.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	q.mu.Lock()
	if q.count == 0 {
		q.mu.Unlock()
		return zero, false
	}

	v := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	remaining := q.count
	q.mu.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Notify returns the channel consumers wait on when the queue is empty.
// A receive does not guarantee an item: another consumer may win it.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notifyC
}

// Close rejects further pushes and closes the channel returned by Closed.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closeC)
}

// Closed returns a channel that is closed once Close has been called.
func (q *Queue[T]) Closed() <-chan struct{} {
	return q.closeC
}

func (q *Queue[T]) signal() {
	select {
	case q.notifyC <- struct{}{}:
	default:
	}
}

// grow doubles the ring and unwraps the live items to the front.
// Must be called with q.mu held.
func (q *Queue[T]) grow() {
	newRing := make([]T, len(q.ring)<<1)
	for i := range q.count {
		newRing[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = newRing
	q.head = 0
}
