// Package stream adapts synchronous resources to callers that must not
// block: a Stream funnels reads, writes and seeks on any io.Reader,
// io.Writer or io.Seeker through a pool, and an Iter does the same for a
// blocking sequence of values.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/utkarsh5026/unblock/pool"
	"github.com/utkarsh5026/unblock/internal/types"
)

var (
	// ErrClosed is returned by every call after Close or IntoInner.
	ErrClosed = errors.New("stream is closed")

	// ErrUnsupported is returned when the wrapped resource lacks the
	// method an operation needs, e.g. Seek on a plain io.Reader.
	ErrUnsupported = errors.New("operation not supported by the wrapped resource")

	// ErrResourceLost is returned when a blocking call on the resource
	// called runtime.Goexit, taking the resource with it. The stream is
	// unusable afterwards.
	ErrResourceLost = errors.New("wrapped resource lost")
)

type opKind int

const (
	idle opKind = iota
	reading
	writing
	seeking
	flushing
	closing
	applying
)

func (k opKind) String() string {
	switch k {
	case idle:
		return "idle"
	case reading:
		return "reading"
	case writing:
		return "writing"
	case seeking:
		return "seeking"
	case flushing:
		return "flushing"
	case closing:
		return "closing"
	case applying:
		return "applying"
	default:
		return fmt.Sprintf("opKind(%d)", int(k))
	}
}

// opResult carries the resource back from a worker together with the
// outcome of the call made on it.
type opResult[T any] struct {
	inner T
	n     int
	pos   int64
	val   any
	err   error
}

// op is one blocking call in flight. res and err are filled by whichever
// goroutine settles it.
type op[T any] struct {
	kind      opKind
	future    *types.Future[opResult[T]]
	abandoned bool
	res       opResult[T]
	err       error
}

type flusher interface{ Flush() error }

type syncer interface{ Sync() error }

// Stream is an asynchronous view of a synchronous resource.
//
// At most one blocking call on the resource is in flight at any time; the
// resource itself is handed to the worker running that call and handed back
// when it finishes, so it is never touched from two goroutines at once.
// Callers that arrive while a call is in flight wait for it, whatever its
// kind.
//
// Every method taking a context returns ctx.Err() if the context is done
// before the call completes. The blocking call keeps running and the next
// method call picks up its outcome; an error it produced is returned by
// that next call.
//
// Reads are served from an internal buffer refilled by one blocking Read
// at a time. Writes are collected in the same buffer and written out when
// it fills, on Flush, or before any read or seek. Bytes passed to Write are
// only durable after a successful Flush. Since reads and writes share one
// buffer and one position, Stream does not suit duplex resources such as
// network connections.
type Stream[T any] struct {
	pool *pool.Pool

	canRead, canWrite, canSeek, canClose bool

	// turn is a single-slot semaphore held for the whole of each
	// operation, so multi-step operations never interleave. Waiting for it
	// honours the caller's context.
	turn chan struct{}

	inner   T // valid only while pending == nil
	pending *op[T]

	buf        []byte
	rpos, rend int // unread read-ahead is buf[rpos:rend]
	wlen       int // buffered writes are buf[:wlen]
	eof        bool

	deferred error // outcome of an abandoned call, reported once
	closeErr error // non-nil once the stream is unusable
}

// New wraps inner. The capabilities of the stream are those of the dynamic
// value of inner: Read needs an io.Reader, Write an io.Writer, Seek an
// io.Seeker. Flush additionally calls Flush() error or Sync() error when
// inner has one.
func New[T any](inner T, opts ...Option) *Stream[T] {
	o := newOptions(opts)

	s := &Stream[T]{
		pool:  o.pool,
		turn:  make(chan struct{}, 1),
		inner: inner,
		buf:   make([]byte, o.bufferSize),
	}

	v := any(inner)
	_, s.canRead = v.(io.Reader)
	_, s.canWrite = v.(io.Writer)
	_, s.canSeek = v.(io.Seeker)
	_, s.canClose = v.(io.Closer)
	return s
}

// Read implements io.Reader without a deadline.
func (s *Stream[T]) Read(p []byte) (int, error) {
	return s.ReadContext(context.Background(), p)
}

// ReadContext reads up to len(p) bytes. Buffered bytes are returned
// without touching the pool. Once the resource reports end of stream by a
// zero-byte read, every further read returns io.EOF until a Seek.
func (s *Stream[T]) ReadContext(ctx context.Context, p []byte) (int, error) {
	if !s.canRead {
		return 0, ErrUnsupported
	}
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	for {
		if err := s.awaitIdle(ctx); err != nil {
			return 0, err
		}
		if len(p) == 0 {
			return 0, nil
		}

		if s.rpos < s.rend {
			n := copy(p, s.buf[s.rpos:s.rend])
			s.rpos += n
			return n, nil
		}
		if s.eof {
			return 0, io.EOF
		}

		if s.wlen > 0 {
			if err := s.flushWrites(ctx); err != nil {
				return 0, err
			}
			continue
		}

		s.rpos, s.rend = 0, 0
		buf := s.buf
		o, err := s.start(ctx, reading, func(inner T) opResult[T] {
			n, err := any(inner).(io.Reader).Read(buf)
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return opResult[T]{n: n, err: err}
		})
		if err != nil {
			return 0, err
		}
		if err := s.finish(ctx, o); err != nil {
			return 0, err
		}
	}
}

// Write implements io.Writer without a deadline.
func (s *Stream[T]) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext buffers p, writing the buffer out each time it fills. It
// returns once all of p is buffered or written, or on the first error.
//
// Unread read-ahead is discarded first. When the resource is an io.Seeker
// it is rewound by that amount so the write lands where the caller's
// reads left off.
func (s *Stream[T]) WriteContext(ctx context.Context, p []byte) (int, error) {
	if !s.canWrite {
		return 0, ErrUnsupported
	}
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	written := 0
	for {
		if err := s.awaitIdle(ctx); err != nil {
			return written, err
		}
		if len(p) == 0 {
			return written, nil
		}

		if err := s.dropReadAhead(ctx); err != nil {
			return written, err
		}
		s.eof = false

		if s.wlen == len(s.buf) {
			if err := s.flushWrites(ctx); err != nil {
				return written, err
			}
			continue
		}

		n := copy(s.buf[s.wlen:], p)
		s.wlen += n
		written += n
		p = p[n:]
	}
}

// Seek implements io.Seeker without a deadline.
func (s *Stream[T]) Seek(offset int64, whence int) (int64, error) {
	return s.SeekContext(context.Background(), offset, whence)
}

// SeekContext writes out buffered bytes, discards read-ahead and seeks the
// resource. io.SeekCurrent is relative to the caller's position, which
// trails the resource's by the unread read-ahead.
func (s *Stream[T]) SeekContext(ctx context.Context, offset int64, whence int) (int64, error) {
	if !s.canSeek {
		return 0, ErrUnsupported
	}
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	if err := s.awaitIdle(ctx); err != nil {
		return 0, err
	}
	if err := s.flushWrites(ctx); err != nil {
		return 0, err
	}

	if whence == io.SeekCurrent {
		offset -= int64(s.rend - s.rpos)
	}
	s.rpos, s.rend = 0, 0
	s.eof = false

	return s.seek(ctx, offset, whence)
}

// Flush writes buffered bytes without a deadline.
func (s *Stream[T]) Flush() error {
	return s.FlushContext(context.Background())
}

// FlushContext writes out buffered bytes, then calls the resource's
// Flush() error or Sync() error method if it has one.
func (s *Stream[T]) FlushContext(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.awaitIdle(ctx); err != nil {
		return err
	}
	if err := s.flushWrites(ctx); err != nil {
		return err
	}
	return s.flushInner(ctx)
}

// Close flushes the stream and closes the resource if it is an io.Closer.
// The stream is unusable afterwards, even if closing failed. The first
// error met is returned, including one left by an abandoned call.
func (s *Stream[T]) Close() error {
	ctx := context.Background()

	_ = s.acquire(ctx)
	defer s.release()
	defer s.markClosed()

	for s.pending != nil {
		_ = s.wait(ctx, s.pending)
	}
	if s.closeErr != nil {
		return s.closeErr
	}
	err := s.deferred
	s.deferred = nil

	if flushErr := s.flushWrites(ctx); err == nil {
		err = flushErr
	}
	if s.closeErr == nil {
		if flushErr := s.flushInner(ctx); err == nil {
			err = flushErr
		}
	}

	if s.canClose && s.closeErr == nil {
		o, startErr := s.start(ctx, closing, func(inner T) opResult[T] {
			return opResult[T]{err: any(inner).(io.Closer).Close()}
		})
		if startErr == nil {
			startErr = s.finish(ctx, o)
		}
		if err == nil {
			err = startErr
		}
	}
	return err
}

// IntoInner waits for any call in flight, writes out buffered bytes,
// rewinds unread read-ahead when the resource is an io.Seeker, and returns
// the resource. The stream is closed afterwards.
//
// On error the stream stays open so the call can be retried.
func (s *Stream[T]) IntoInner(ctx context.Context) (T, error) {
	var zero T

	if err := s.acquire(ctx); err != nil {
		return zero, err
	}
	defer s.release()

	if err := s.awaitIdle(ctx); err != nil {
		return zero, err
	}
	if err := s.flushWrites(ctx); err != nil {
		return zero, err
	}
	if err := s.dropReadAhead(ctx); err != nil {
		return zero, err
	}

	inner := s.inner
	s.markClosed()
	return inner, nil
}

// Apply runs fn with exclusive use of the resource on a pool worker, after
// any call in flight has finished, buffered bytes are written and
// read-ahead is rewound. fn must not keep the resource after returning.
func Apply[T, R any](ctx context.Context, s *Stream[T], fn func(T) (R, error)) (R, error) {
	var zero R

	if err := s.acquire(ctx); err != nil {
		return zero, err
	}
	defer s.release()

	if err := s.awaitIdle(ctx); err != nil {
		return zero, err
	}
	if err := s.flushWrites(ctx); err != nil {
		return zero, err
	}
	if err := s.dropReadAhead(ctx); err != nil {
		return zero, err
	}
	s.eof = false

	o, err := s.start(ctx, applying, func(inner T) opResult[T] {
		v, err := fn(inner)
		return opResult[T]{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}
	if err := s.finish(ctx, o); err != nil {
		return zero, err
	}

	v, _ := o.res.val.(R)
	return v, nil
}

// flushWrites writes out buf[:wlen] until it is empty.
// Must be called with no call in flight.
func (s *Stream[T]) flushWrites(ctx context.Context) error {
	for s.wlen > 0 {
		data := s.buf[:s.wlen]
		o, err := s.start(ctx, writing, func(inner T) opResult[T] {
			n, err := writeAll(any(inner).(io.Writer), data)
			return opResult[T]{n: n, err: err}
		})
		if err != nil {
			return err
		}
		if err := s.finish(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// dropReadAhead discards unread buffered bytes, moving a seekable resource
// back to the caller's position. Must be called with no call in flight.
func (s *Stream[T]) dropReadAhead(ctx context.Context) error {
	unread := s.rend - s.rpos
	s.rpos, s.rend = 0, 0
	if unread == 0 || !s.canSeek {
		return nil
	}
	_, err := s.seek(ctx, -int64(unread), io.SeekCurrent)
	return err
}

func (s *Stream[T]) seek(ctx context.Context, offset int64, whence int) (int64, error) {
	o, err := s.start(ctx, seeking, func(inner T) opResult[T] {
		pos, err := any(inner).(io.Seeker).Seek(offset, whence)
		return opResult[T]{pos: pos, err: err}
	})
	if err != nil {
		return 0, err
	}
	if err := s.finish(ctx, o); err != nil {
		return 0, err
	}
	return o.res.pos, nil
}

func (s *Stream[T]) flushInner(ctx context.Context) error {
	switch any(s.inner).(type) {
	case flusher, syncer:
	default:
		return nil
	}

	o, err := s.start(ctx, flushing, func(inner T) opResult[T] {
		switch f := any(inner).(type) {
		case flusher:
			return opResult[T]{err: f.Flush()}
		case syncer:
			return opResult[T]{err: f.Sync()}
		}
		return opResult[T]{}
	})
	if err != nil {
		return err
	}
	return s.finish(ctx, o)
}

// awaitIdle waits until no call is in flight, then reports a pending
// deferred error or a closed stream.
func (s *Stream[T]) awaitIdle(ctx context.Context) error {
	for s.pending != nil {
		if err := s.wait(ctx, s.pending); err != nil {
			return err
		}
	}

	if s.deferred != nil {
		err := s.deferred
		s.deferred = nil
		return err
	}
	return s.closeErr
}

// start hands the resource to a worker that runs work on it.
// Must be called with no call in flight.
func (s *Stream[T]) start(ctx context.Context, kind opKind, work func(T) opResult[T]) (*op[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inner := s.inner
	f, err := pool.Unblock(s.pool, func() (res opResult[T], _ error) {
		// A panic in the resource must not take the resource with it.
		defer func() {
			if v := recover(); v != nil {
				res = opResult[T]{err: types.NewPanicError(v)}
			}
			res.inner = inner
		}()
		return work(inner), nil
	})
	if err != nil {
		return nil, err
	}

	var zero T
	s.inner = zero
	o := &op[T]{kind: kind, future: f}
	s.pending = o
	return o, nil
}

// finish waits for the caller's own call o and returns its error. If ctx
// fires first, o is marked abandoned so that its error is reported by the
// next call instead.
func (s *Stream[T]) finish(ctx context.Context, o *op[T]) error {
	if err := s.wait(ctx, o); err != nil {
		o.abandoned = true
		return err
	}
	return o.err
}

// wait blocks until o completes or ctx is done, then settles o unless an
// earlier caller already did.
func (s *Stream[T]) wait(ctx context.Context, o *op[T]) error {
	select {
	case <-o.future.Done():
	case <-ctx.Done():
	}

	if !o.future.IsReady() {
		return ctx.Err()
	}
	if s.pending == o {
		s.settle(o)
	}
	return nil
}

func (s *Stream[T]) acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	default:
	}

	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream[T]) release() {
	<-s.turn
}

// settle takes the resource back from a completed call and applies its
// outcome to the buffer.
func (s *Stream[T]) settle(o *op[T]) {
	s.pending = nil

	res, err := o.future.Get()
	if err != nil {
		o.err = fmt.Errorf("%w during %s: %w", ErrResourceLost, o.kind, err)
		s.closeErr = o.err
		return
	}

	s.inner = res.inner
	o.res = res
	o.err = res.err

	switch o.kind {
	case reading:
		s.rpos, s.rend = 0, res.n
		if res.n == 0 && res.err == nil {
			s.eof = true
		}
	case writing:
		if res.n >= s.wlen {
			s.wlen = 0
		} else {
			s.wlen = copy(s.buf, s.buf[res.n:s.wlen])
		}
	}

	if o.abandoned && o.err != nil {
		s.deferred = o.err
	}
}

func (s *Stream[T]) markClosed() {
	var zero T
	s.inner = zero
	s.rpos, s.rend, s.wlen = 0, 0, 0
	if s.closeErr == nil {
		s.closeErr = ErrClosed
	}
}

// writeAll follows the io.Writer contract: a short write without an error
// is reported as io.ErrShortWrite.
func writeAll(w io.Writer, data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := w.Write(data[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
