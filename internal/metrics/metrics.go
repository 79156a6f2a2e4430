// Package metrics exposes pool activity as Prometheus collectors.
//
// Every method is safe to call on a nil *Metrics, which is what a pool
// built without WithMetrics carries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "unblock"

// Metrics holds the collectors of one pool.
type Metrics struct {
	WorkersTotal   prometheus.Gauge
	WorkersIdle    prometheus.Gauge
	WorkersSpawned prometheus.Counter
	WorkersExited  prometheus.Counter
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksPanicked  prometheus.Counter
	TaskDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg. The pool label
// distinguishes several pools sharing one registry.
func New(reg prometheus.Registerer, pool string) (*Metrics, error) {
	labels := prometheus.Labels{"pool": pool}

	m := &Metrics{
		WorkersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "workers_total",
			Help:        "Current number of worker threads",
			ConstLabels: labels,
		}),
		WorkersIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "workers_idle",
			Help:        "Current number of worker threads waiting for work",
			ConstLabels: labels,
		}),
		WorkersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "workers_spawned_total",
			Help:        "Total number of worker threads started",
			ConstLabels: labels,
		}),
		WorkersExited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "workers_exited_total",
			Help:        "Total number of worker threads that exited",
			ConstLabels: labels,
		}),
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_submitted_total",
			Help:        "Total number of blocking closures submitted",
			ConstLabels: labels,
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_completed_total",
			Help:        "Total number of blocking closures that finished",
			ConstLabels: labels,
		}),
		TasksPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "tasks_panicked_total",
			Help:        "Total number of blocking closures that panicked or exited their goroutine",
			ConstLabels: labels,
		}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "task_duration_seconds",
			Help:        "Time spent running blocking closures",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
			ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.WorkersTotal,
		m.WorkersIdle,
		m.WorkersSpawned,
		m.WorkersExited,
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksPanicked,
		m.TaskDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.TasksSubmitted.Inc()
}

// Spawned records a new worker, which starts out idle.
func (m *Metrics) Spawned() {
	if m == nil {
		return
	}
	m.WorkersSpawned.Inc()
	m.WorkersTotal.Inc()
	m.WorkersIdle.Inc()
}

// Exited records a worker leaving the pool. idle reports whether it was
// counted as idle when it left.
func (m *Metrics) Exited(idle bool) {
	if m == nil {
		return
	}
	m.WorkersExited.Inc()
	m.WorkersTotal.Dec()
	if idle {
		m.WorkersIdle.Dec()
	}
}

// Busy and Idle track a worker moving between running and waiting.
func (m *Metrics) Busy() {
	if m == nil {
		return
	}
	m.WorkersIdle.Dec()
}

func (m *Metrics) Idle() {
	if m == nil {
		return
	}
	m.WorkersIdle.Inc()
}

// Completed records one finished closure. panicked is true when the closure
// panicked or called runtime.Goexit.
func (m *Metrics) Completed(d time.Duration, panicked bool) {
	if m == nil {
		return
	}
	m.TasksCompleted.Inc()
	m.TaskDuration.Observe(d.Seconds())
	if panicked {
		m.TasksPanicked.Inc()
	}
}
