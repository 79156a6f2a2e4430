package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/unblock/config"
)

// Option is a functional option for configuring a Pool.
type Option func(*poolConfig)

type poolConfig struct {
	name           string
	maxWorkers     int
	minWorkers     int
	idleTimeout    time.Duration
	threadAffinity bool
	rateLimiter    *rate.Limiter
	registerer     prometheus.Registerer
}

func defaultConfig() *poolConfig {
	c := config.Default()
	return &poolConfig{
		name:        "pool",
		maxWorkers:  c.MaxWorkers,
		minWorkers:  c.MinWorkers,
		idleTimeout: c.IdleTimeout,
	}
}

// WithMaxWorkers caps the number of worker threads. Submissions that find
// every worker busy at the cap wait in the queue instead of failing.
// If not specified, defaults to 500.
func WithMaxWorkers(n int) Option {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.maxWorkers = n
		}
	}
}

// WithMinWorkers keeps up to n workers alive through idle periods once they
// have been started. Workers are still only started on demand.
// If not specified, defaults to 0: every worker eventually times out.
func WithMinWorkers(n int) Option {
	return func(cfg *poolConfig) {
		if n >= 0 {
			cfg.minWorkers = n
		}
	}
}

// WithIdleTimeout sets how long a worker waits for new work before it
// exits. If not specified, defaults to 500ms.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *poolConfig) {
		if d > 0 {
			cfg.idleTimeout = d
		}
	}
}

// WithThreadAffinity pins each worker thread to a CPU core, assigned
// round-robin. A worker whose thread cannot be pinned is never started and
// the submission that needed it fails with ErrSpawnFailed.
func WithThreadAffinity(enabled bool) Option {
	return func(cfg *poolConfig) {
		cfg.threadAffinity = enabled
	}
}

// WithRateLimit limits how many closures start per second across all
// workers. Closures wait on the worker, not at submission.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 closures/sec with burst of 5
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(cfg *poolConfig) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithMetrics registers the pool's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *poolConfig) {
		cfg.registerer = reg
	}
}

// WithName labels the pool's metrics. Pools sharing a registry need
// distinct names.
func WithName(name string) Option {
	return func(cfg *poolConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithConfig applies the pool fields of c. Options given after it still
// override individual values.
func WithConfig(c config.Config) Option {
	return func(cfg *poolConfig) {
		WithMaxWorkers(c.MaxWorkers)(cfg)
		WithMinWorkers(c.MinWorkers)(cfg)
		WithIdleTimeout(c.IdleTimeout)(cfg)
		WithThreadAffinity(c.ThreadAffinity)(cfg)
	}
}
