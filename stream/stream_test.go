package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/unblock/pool"
)

func TestStream_ReadFidelity(t *testing.T) {
	p := testPool(t)
	want := pattern(100_000)

	for _, chunk := range []int{1, 7, 100, 4096, 20_000} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			s := New(bytes.NewReader(want), WithPool(p), WithBufferSize(1024))

			var got bytes.Buffer
			buf := make([]byte, chunk)
			for {
				n, err := s.Read(buf)
				got.Write(buf[:n])
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
			}

			assert.True(t, bytes.Equal(want, got.Bytes()), "chunk size %d corrupted the stream", chunk)
		})
	}
}

func TestStream_ReadAllHelper(t *testing.T) {
	want := pattern(50_000)
	s := New(bytes.NewReader(want), WithPool(testPool(t)))

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStream_WriteThenReadRoundTrip(t *testing.T) {
	want := pattern(10_000)
	f := &memFile{}
	s := New(f, WithPool(testPool(t)), WithBufferSize(16))

	n, err := s.Write(want)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)

	pos, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStream_EndOfStreamRepeats(t *testing.T) {
	g := &guardedFile{memFile: memFile{data: []byte("short")}}
	s := New(g, WithPool(testPool(t)))

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))

	reads := g.reads.Load()
	for range 3 {
		n, err := s.Read(make([]byte, 8))
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF)
	}
	assert.Equal(t, reads, g.reads.Load(), "EOF should not touch the resource again")
}

func TestStream_EOFClearedBySeek(t *testing.T) {
	s := New(&memFile{data: []byte("abc")}, WithPool(testPool(t)))

	_, err := io.ReadAll(s)
	require.NoError(t, err)

	_, err = s.Seek(1, io.SeekStart)
	require.NoError(t, err)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(got))
}

func TestStream_SeekArithmetic(t *testing.T) {
	data := pattern(64)
	s := New(bytes.NewReader(data), WithPool(testPool(t)))

	pos, err := s.Seek(7, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)

	pos, err = s.Seek(8, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(15), pos)

	b := make([]byte, 1)
	n, err := s.Read(b)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, data[15], b[0])
}

func TestStream_SeekCurrentAccountsForReadAhead(t *testing.T) {
	data := pattern(64)
	s := New(bytes.NewReader(data), WithPool(testPool(t)))

	b := make([]byte, 3)
	_, err := io.ReadFull(s, b)
	require.NoError(t, err)

	// The whole resource is already buffered, but the caller is at 3.
	pos, err := s.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	pos, err = s.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	_, err = s.Read(b[:1])
	require.NoError(t, err)
	assert.Equal(t, data[5], b[0])
}

func TestStream_WriteAfterReadLandsAtCallerPosition(t *testing.T) {
	f := &memFile{data: []byte("abcdef")}
	s := New(f, WithPool(testPool(t)))

	b := make([]byte, 2)
	_, err := io.ReadFull(s, b)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(b))

	_, err = s.Write([]byte("XY"))
	require.NoError(t, err)

	inner, err := s.IntoInner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abXYef", string(inner.data))
	assert.Equal(t, int64(4), inner.pos)
}

func TestStream_ReadFlushesPendingWrites(t *testing.T) {
	f := &memFile{data: []byte("0123456789")}
	s := New(f, WithPool(testPool(t)))

	_, err := s.Write([]byte("ab"))
	require.NoError(t, err)

	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "23456789", string(rest))

	inner, err := s.IntoInner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ab23456789", string(inner.data))
}

func TestStream_WritesStayBufferedUntilFlush(t *testing.T) {
	var sink bytes.Buffer
	s := New(&sink, WithPool(testPool(t)), WithBufferSize(8))

	_, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 0, sink.Len())

	_, err = s.Write([]byte("defghij"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", sink.String(), "a full buffer is written out")

	require.NoError(t, s.Flush())
	assert.Equal(t, "abcdefghij", sink.String())
}

func TestStream_FlushCallsInnerFlush(t *testing.T) {
	g := &guardedFile{}
	s := New(g, WithPool(testPool(t)))

	_, err := s.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	assert.Equal(t, 1, g.flushCalls)
	assert.Equal(t, "x", string(g.data))
}

func TestStream_Unsupported(t *testing.T) {
	p := testPool(t)

	r := New(strings.NewReader("read only"), WithPool(p))
	_, err := r.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrUnsupported)

	w := New(&strings.Builder{}, WithPool(p))
	_, err = w.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = w.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStream_IntoInnerClosesStream(t *testing.T) {
	s := New(&memFile{}, WithPool(testPool(t)))

	_, err := s.Write([]byte("kept"))
	require.NoError(t, err)

	inner, err := s.IntoInner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kept", string(inner.data))

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.IntoInner(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStream_Close(t *testing.T) {
	g := &guardedFile{}
	s := New(g, WithPool(testPool(t)))

	_, err := s.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, "bye", string(g.data))
	assert.Equal(t, 1, g.closeCalls)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

func TestStream_CloseAfterAbandonedFailure(t *testing.T) {
	boom := errors.New("disk error")
	gate := make(chan struct{})
	c := &countingCloser{Reader: &gatedReader{
		gate: gate,
		r:    &flakyReader{err: boom, r: strings.NewReader("unread")},
	}}
	s := New(c, WithPool(testPool(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.ReadContext(ctx, make([]byte, 4))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	assert.ErrorIs(t, s.Close(), boom, "the abandoned read's error is still reported")
	assert.Equal(t, int32(1), c.closes.Load(), "the resource is closed regardless")

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

func TestStream_ErrorsAreNotSticky(t *testing.T) {
	boom := errors.New("transient I/O error")
	s := New(&flakyReader{err: boom, r: strings.NewReader("recovered")}, WithPool(testPool(t)))

	_, err := s.Read(make([]byte, 4))
	assert.ErrorIs(t, err, boom)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(got))
}

func TestStream_PanicKeepsResource(t *testing.T) {
	s := New(&panickyReader{r: strings.NewReader("still usable")}, WithPool(testPool(t)))

	_, err := s.Read(make([]byte, 4))
	require.ErrorIs(t, err, pool.ErrTaskPanicked)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "still usable", string(got))
}

func TestStream_CancelledReadIsPickedUpLater(t *testing.T) {
	gate := make(chan struct{})
	s := New(&gatedReader{gate: gate, r: strings.NewReader("late data")}, WithPool(testPool(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.ReadContext(ctx, make([]byte, 4))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "late data", string(got))
}

func TestStream_WaitingCallerHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	s := New(&gatedReader{gate: gate, r: strings.NewReader("x")}, WithPool(testPool(t)))

	go func() { _, _ = s.Read(make([]byte, 1)) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.ReadContext(ctx, make([]byte, 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_AtMostOneCallInFlight(t *testing.T) {
	g := &guardedFile{memFile: memFile{data: pattern(4096)}, delay: 200 * time.Microsecond}
	s := New(g, WithPool(testPool(t)), WithBufferSize(64))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 37)
			for j := range 50 {
				switch (i + j) % 4 {
				case 0:
					_, _ = s.Read(buf)
				case 1:
					_, _ = s.Write(buf[:13])
				case 2:
					_, _ = s.Seek(int64(j), io.SeekStart)
				case 3:
					_ = s.Flush()
				}
			}
		}()
	}
	wg.Wait()

	_, err := s.IntoInner(context.Background())
	require.NoError(t, err)
	assert.Zero(t, g.overlaps.Load(), "resource was entered concurrently")
}

func TestApply(t *testing.T) {
	f := &memFile{data: []byte("hello")}
	s := New(f, WithPool(testPool(t)))

	_, err := s.Write([]byte("J"))
	require.NoError(t, err)

	size, err := Apply(context.Background(), s, func(m *memFile) (int, error) {
		return len(m.data), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, size)

	content, err := Apply(context.Background(), s, func(m *memFile) (string, error) {
		return string(m.data), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Jello", content, "buffered writes land before Apply runs")

	_, err = Apply(context.Background(), s, func(*memFile) (int, error) {
		return 0, io.ErrUnexpectedEOF
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
