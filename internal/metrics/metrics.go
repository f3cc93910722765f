// Package metrics exposes Prometheus collectors for the resilience
// components. Collectors are registered on an explicitly supplied registry;
// one Metrics value is built at wiring time and passed to every component as
// its observer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/resilience/breaker"
)

const namespace = "resilience"

// Metrics holds all collectors.
type Metrics struct {
	// RetriesTotal tracks scheduled retries per operation and failure kind
	RetriesTotal *prometheus.CounterVec

	// RetryExhaustedTotal tracks operations that used up their attempts
	RetryExhaustedTotal *prometheus.CounterVec

	// BreakerState is 0 closed, 1 open, 2 half-open
	BreakerState *prometheus.GaugeVec

	// BreakerTransitionsTotal tracks state changes per breaker
	BreakerTransitionsTotal *prometheus.CounterVec

	// BreakerRejectedTotal tracks calls failed fast by an open circuit
	BreakerRejectedTotal *prometheus.CounterVec

	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec

	// ServedTotal tracks which tier answered each GetOrFetch
	ServedTotal *prometheus.CounterVec

	// FetchLatency tracks remote fetch latency by outcome kind
	FetchLatency *prometheus.HistogramVec

	// DBConnectionPoolUsage tracks open connections as a percentage of the max
	DBConnectionPoolUsage prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of scheduled retries",
			},
			[]string{"operation", "kind"},
		),
		RetryExhaustedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_exhausted_total",
				Help:      "Total number of operations that exhausted their retry budget",
			},
			[]string{"operation", "kind"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),
		BreakerTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		BreakerRejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_rejected_total",
				Help:      "Total number of calls rejected by an open circuit",
			},
			[]string{"breaker"},
		),
		CacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		CacheEvictionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache evictions",
			},
			[]string{"cache", "reason"},
		),
		ServedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "served_total",
				Help:      "Total number of reads by the tier that answered them",
			},
			[]string{"orchestrator", "source"},
		),
		FetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_latency_seconds",
				Help:      "Remote fetch latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"orchestrator", "outcome"},
		),
		DBConnectionPoolUsage: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool_usage_percent",
				Help:      "Database connection pool usage percentage",
			},
		),
	}
}

func (m *Metrics) RetryScheduled(operation string, kind failure.Kind, _ int, _ time.Duration) {
	m.RetriesTotal.WithLabelValues(operation, kind.String()).Inc()
}

func (m *Metrics) RetryExhausted(operation string, kind failure.Kind, _ int) {
	m.RetryExhaustedTotal.WithLabelValues(operation, kind.String()).Inc()
}

func (m *Metrics) BreakerStateChanged(name string, from, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	m.BreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
}

func (m *Metrics) BreakerRejected(name string) {
	m.BreakerRejectedTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) CacheHit(name string) {
	m.CacheHitsTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) CacheMiss(name string) {
	m.CacheMissesTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) CacheEvicted(name, reason string) {
	m.CacheEvictionsTotal.WithLabelValues(name, reason).Inc()
}

func (m *Metrics) ServedFrom(name, source string) {
	m.ServedTotal.WithLabelValues(name, source).Inc()
}

func (m *Metrics) FetchCompleted(name string, d time.Duration, kind string) {
	m.FetchLatency.WithLabelValues(name, kind).Observe(d.Seconds())
}

func (m *Metrics) SetDBPoolUsage(percent float64) {
	m.DBConnectionPoolUsage.Set(percent)
}
