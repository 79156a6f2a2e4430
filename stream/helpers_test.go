package stream

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/utkarsh5026/unblock/pool"
)

// memFile is a seekable in-memory file.
type memFile struct {
	data []byte
	pos  int64
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("memFile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memFile: negative position")
	}
	m.pos = abs
	return abs, nil
}

// guardedFile wraps memFile and records any overlapping calls.
type guardedFile struct {
	memFile
	active     atomic.Int32
	overlaps   atomic.Int32
	reads      atomic.Int32
	delay      time.Duration
	closeCalls int
	flushCalls int
}

func (g *guardedFile) enter() func() {
	if g.active.Add(1) != 1 {
		g.overlaps.Add(1)
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return func() { g.active.Add(-1) }
}

func (g *guardedFile) Read(p []byte) (int, error) {
	defer g.enter()()
	g.reads.Add(1)
	return g.memFile.Read(p)
}

func (g *guardedFile) Write(p []byte) (int, error) {
	defer g.enter()()
	return g.memFile.Write(p)
}

func (g *guardedFile) Seek(offset int64, whence int) (int64, error) {
	defer g.enter()()
	return g.memFile.Seek(offset, whence)
}

func (g *guardedFile) Flush() error {
	defer g.enter()()
	g.flushCalls++
	return nil
}

func (g *guardedFile) Close() error {
	defer g.enter()()
	g.closeCalls++
	return nil
}

// gatedReader blocks every Read until gate is closed.
type gatedReader struct {
	gate chan struct{}
	r    io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	<-g.gate
	return g.r.Read(p)
}

// flakyReader fails its first Read.
type flakyReader struct {
	once sync.Once
	err  error
	r    io.Reader
}

func (f *flakyReader) Read(p []byte) (int, error) {
	var err error
	f.once.Do(func() { err = f.err })
	if err != nil {
		return 0, err
	}
	return f.r.Read(p)
}

// countingCloser adds a Close that counts its calls to any reader.
type countingCloser struct {
	io.Reader
	closes atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return nil
}

type panickyReader struct {
	panicked bool
	r        io.Reader
}

func (p *panickyReader) Read(b []byte) (int, error) {
	if !p.panicked {
		p.panicked = true
		panic("device on fire")
	}
	return p.r.Read(b)
}

func testPool(t testing.TB) *pool.Pool {
	t.Helper()
	p := pool.New(pool.WithMaxWorkers(16))
	t.Cleanup(func() { _ = p.Close(5 * time.Second) })
	return p
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}
