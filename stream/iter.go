package stream

import (
	"context"
	"iter"

	"github.com/utkarsh5026/unblock/pool"
	"github.com/utkarsh5026/unblock/internal/types"
)

// batch is what one pool round trip pulls from the source.
type batch[V any] struct {
	values []V
	done   bool
}

// Iter pulls values from a blocking source on pool workers, a batch at a
// time, and hands them out without blocking the caller beyond its context.
//
// Values arrive in source order. Once the source is exhausted, Next reports
// false on every call. Like Stream, at most one pull is in flight, and a
// pull abandoned by a cancelled context is picked up by the next call.
type Iter[V any] struct {
	pool *pool.Pool
	fill func(limit int) batch[V]
	size int
	stop func()

	turn    chan struct{}
	pending *types.Future[batch[V]]
	buf     []V
	pos     int
	done    bool
	err     error
}

// NewIter iterates over next, which blocks until a value is available and
// returns false once the source is exhausted. Each pool round trip calls
// next up to the batch size, stopping early at exhaustion.
func NewIter[V any](next func() (V, bool), opts ...Option) *Iter[V] {
	return newIter(func(limit int) batch[V] {
		values := make([]V, 0, limit)
		for range limit {
			v, ok := next()
			if !ok {
				return batch[V]{values: values, done: true}
			}
			values = append(values, v)
		}
		return batch[V]{values: values}
	}, opts)
}

// FromSeq iterates over a blocking iter.Seq. The sequence runs on its own
// goroutine, at most one batch ahead of the consumer. Call Stop to release
// it early.
func FromSeq[V any](seq iter.Seq[V], opts ...Option) *Iter[V] {
	ch := make(chan V, newOptions(opts).batchSize)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer close(ch)
		for v := range seq {
			select {
			case ch <- v:
			case <-done:
				return
			}
		}
	}()

	it := FromChan(ch, opts...)
	it.stop = func() {
		close(done)
		<-exited
	}
	return it
}

// FromChan drains ch until it is closed. A pull blocks for the first
// value only and then takes whatever else is already buffered, up to the
// batch size, so a slow producer's values are not held back.
func FromChan[V any](ch <-chan V, opts ...Option) *Iter[V] {
	return newIter(func(limit int) batch[V] {
		v, ok := <-ch
		if !ok {
			return batch[V]{done: true}
		}

		values := make([]V, 1, min(limit, len(ch)+1))
		values[0] = v
		for len(values) < limit {
			select {
			case v, ok := <-ch:
				if !ok {
					return batch[V]{values: values, done: true}
				}
				values = append(values, v)
			default:
				return batch[V]{values: values}
			}
		}
		return batch[V]{values: values}
	}, opts)
}

func newIter[V any](fill func(int) batch[V], opts []Option) *Iter[V] {
	o := newOptions(opts)
	return &Iter[V]{
		pool: o.pool,
		fill: fill,
		size: o.batchSize,
		turn: make(chan struct{}, 1),
	}
}

// Next returns the next value. ok is false once the source is exhausted.
// A panic in the source is returned once as a *pool.PanicError, after
// which the iterator reports exhaustion.
func (it *Iter[V]) Next(ctx context.Context) (v V, ok bool, err error) {
	select {
	case it.turn <- struct{}{}:
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
	defer func() { <-it.turn }()

	for {
		if it.pos < len(it.buf) {
			v = it.buf[it.pos]
			var zero V
			it.buf[it.pos] = zero
			it.pos++
			return v, true, nil
		}
		if it.err != nil {
			err, it.err = it.err, nil
			return v, false, err
		}
		if it.done {
			return v, false, nil
		}

		if it.pending == nil {
			f, err := pool.Unblock(it.pool, func() (batch[V], error) {
				return it.fill(it.size), nil
			})
			if err != nil {
				return v, false, err
			}
			it.pending = f
		}

		if _, waitErr := it.pending.GetWithContext(ctx); !it.pending.IsReady() {
			return v, false, waitErr
		}
		b, pullErr := it.pending.Get()
		it.pending = nil
		if pullErr != nil {
			it.done = true
			it.err = pullErr
			continue
		}
		it.buf, it.pos = b.values, 0
		it.done = b.done
	}
}

// All adapts the iterator for range-over-func. Iteration ends at
// exhaustion, or after yielding an error with the zero value.
func (it *Iter[V]) All(ctx context.Context) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		for {
			v, ok, err := it.Next(ctx)
			if err != nil {
				yield(v, err)
				return
			}
			if !ok || !yield(v, nil) {
				return
			}
		}
	}
}

// Stop releases a FromSeq source and waits for its goroutine to return,
// so it must not be called while the sequence itself is blocked
// indefinitely. Next reports exhaustion after Stop.
func (it *Iter[V]) Stop() {
	it.turn <- struct{}{}
	defer func() { <-it.turn }()

	if it.stop != nil {
		it.stop()
		it.stop = nil
	}
	if it.pending != nil {
		_, _ = it.pending.Get()
		it.pending = nil
	}
	it.buf, it.pos = nil, 0
	it.done = true
}
