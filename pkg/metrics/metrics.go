// Package metrics provides Prometheus instrumentation for tablepool.
//
// # Overview
//
// Every pool publishes its occupancy and lifecycle events under the
// "tablepool_pool_" prefix, labelled by pool name:
//   - gauges for active, idle and waiting borrowers
//   - counters for created, destroyed, borrowed and returned handles
//   - a histogram of borrow latency, including time spent blocked
//
// # Basic Usage
//
//	collector := metrics.NewPoolCollector("users")
//	collector.Borrowed()
//	collector.SetOccupancy(active, idle, waiters)
//
// A nil *PoolCollector is valid and records nothing, so components can hold
// one unconditionally.
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., handles created)
// Gauge: Values that can go up or down (e.g., idle handles)
// Histogram: Distribution of values (e.g., borrow latency)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolActive tracks handles currently on loan
	PoolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablepool_pool_active",
			Help: "Number of handles currently borrowed",
		},
		[]string{"pool"},
	)

	// PoolIdle tracks handles parked in the pool
	PoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablepool_pool_idle",
			Help: "Number of idle handles",
		},
		[]string{"pool"},
	)

	// PoolWaiters tracks borrowers blocked on an exhausted pool
	PoolWaiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablepool_pool_waiters",
			Help: "Number of borrowers waiting for a handle",
		},
		[]string{"pool"},
	)

	// HandlesCreated counts successful factory creations
	HandlesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepool_pool_created_total",
			Help: "Total number of handles created",
		},
		[]string{"pool"},
	)

	// HandlesDestroyed counts destroyed handles by reason
	HandlesDestroyed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepool_pool_destroyed_total",
			Help: "Total number of handles destroyed",
		},
		[]string{"pool", "reason"},
	)

	// Borrows counts borrow outcomes
	Borrows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepool_pool_borrows_total",
			Help: "Total number of borrow attempts by outcome",
		},
		[]string{"pool", "outcome"},
	)

	// Returns counts handles given back to the pool
	Returns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepool_pool_returns_total",
			Help: "Total number of handles returned",
		},
		[]string{"pool"},
	)

	// BorrowLatency tracks how long a borrow took, including waiting
	BorrowLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tablepool_pool_borrow_latency_seconds",
			Help: "Borrow latency in seconds",
			Buckets: []float64{
				0.0001, // 100μs
				0.001,  // 1ms
				0.01,   // 10ms
				0.1,    // 100ms
				1,      // 1s
				10,     // 10s
			},
		},
		[]string{"pool"},
	)
)

// Destroy reasons.
const (
	ReasonInvalid = "invalid"
	ReasonEvicted = "evicted"
	ReasonSurplus = "surplus"
	ReasonClosed  = "closed"
)

// Borrow outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "exhausted"
	OutcomeTimeout   = "timeout"
	OutcomeCanceled  = "canceled"
	OutcomeError     = "error"
)

// PoolCollector records the metrics of one named pool. The label values are
// bound once at construction.
type PoolCollector struct {
	name      string
	active    prometheus.Gauge
	idle      prometheus.Gauge
	waiters   prometheus.Gauge
	created   prometheus.Counter
	returned  prometheus.Counter
	latency   prometheus.Observer
	destroyed *prometheus.CounterVec
	borrows   *prometheus.CounterVec
}

// NewPoolCollector creates a collector for the pool called name.
func NewPoolCollector(name string) *PoolCollector {
	return &PoolCollector{
		name:      name,
		active:    PoolActive.WithLabelValues(name),
		idle:      PoolIdle.WithLabelValues(name),
		waiters:   PoolWaiters.WithLabelValues(name),
		created:   HandlesCreated.WithLabelValues(name),
		returned:  Returns.WithLabelValues(name),
		latency:   BorrowLatency.WithLabelValues(name),
		destroyed: HandlesDestroyed.MustCurryWith(prometheus.Labels{"pool": name}),
		borrows:   Borrows.MustCurryWith(prometheus.Labels{"pool": name}),
	}
}

// Name returns the pool label.
func (c *PoolCollector) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// SetOccupancy publishes the pool's current counts.
func (c *PoolCollector) SetOccupancy(active, idle, waiters int) {
	if c == nil {
		return
	}
	c.active.Set(float64(active))
	c.idle.Set(float64(idle))
	c.waiters.Set(float64(waiters))
}

// Created records a new handle.
func (c *PoolCollector) Created() {
	if c == nil {
		return
	}
	c.created.Inc()
}

// Destroyed records a destroyed handle.
func (c *PoolCollector) Destroyed(reason string) {
	if c == nil {
		return
	}
	c.destroyed.WithLabelValues(reason).Inc()
}

// Returned records a handle given back.
func (c *PoolCollector) Returned() {
	if c == nil {
		return
	}
	c.returned.Inc()
}

// Borrow records the outcome and latency of one borrow.
func (c *PoolCollector) Borrow(outcome string, latency time.Duration) {
	if c == nil {
		return
	}
	c.borrows.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		c.latency.Observe(latency.Seconds())
	}
}

// Unregister drops the pool's series so a closed pool stops reporting.
func (c *PoolCollector) Unregister() {
	if c == nil {
		return
	}
	PoolActive.DeleteLabelValues(c.name)
	PoolIdle.DeleteLabelValues(c.name)
	PoolWaiters.DeleteLabelValues(c.name)
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer("scan")
//	scanRows(reader)
//	log.Info("scan finished", zap.Duration("duration", timer.Stop()))
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
