package stream

import (
	"github.com/utkarsh5026/unblock/config"
	"github.com/utkarsh5026/unblock/pool"
)

// DefaultBatchSize is how many values an Iter pulls per pool round trip.
const DefaultBatchSize = 1024

// Option configures a Stream or an Iter.
type Option func(*options)

type options struct {
	pool       *pool.Pool
	bufferSize int
	batchSize  int
}

func newOptions(opts []Option) *options {
	o := &options{
		bufferSize: config.DefaultBufferSize,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pool == nil {
		o.pool = pool.Default()
	}
	return o
}

// WithPool runs blocking calls on p instead of pool.Default().
func WithPool(p *pool.Pool) Option {
	return func(o *options) {
		if p != nil {
			o.pool = p
		}
	}
}

// WithBufferSize sets the capacity of a Stream's internal buffer.
// If not specified, defaults to 8 KiB.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithBatchSize sets how many values an Iter pulls per blocking call.
// If not specified, defaults to 1024.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithConfig applies the buffer size of c.
func WithConfig(c config.Config) Option {
	return WithBufferSize(c.BufferSize)
}
