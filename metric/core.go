package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docmesh"

// Metrics contains the core aggregation metrics
type Metrics struct {
	// Refresh cycle metrics
	RefreshStarted  prometheus.Counter
	RefreshTotal    prometheus.Counter
	RefreshDuration prometheus.Histogram
	RefreshGroups   *prometheus.CounterVec
	EndpointsCount  prometheus.Gauge

	// Per-endpoint load metrics
	LoadsTotal   *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec

	// Per-group aggregation metrics
	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration *prometheus.HistogramVec

	// Serving metrics
	CacheHits *prometheus.CounterVec

	// Upstream circuit breakers (0=closed, 1=half-open, 2=open)
	BreakerState *prometheus.GaugeVec

	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RefreshStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "started_total",
				Help:      "Number of refresh cycles started with endpoints",
			},
		),

		RefreshTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "total",
				Help:      "Number of completed refresh cycles",
			},
		),

		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "duration_seconds",
				Help:      "Duration of refresh cycles in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		RefreshGroups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "groups_total",
				Help:      "Groups processed by refresh cycles, by outcome (stored, failed)",
			},
			[]string{"result"},
		),

		EndpointsCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "endpoints",
				Name:      "count",
				Help:      "Number of document endpoints discovered in the last cycle",
			},
		),

		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "load",
				Name:      "total",
				Help:      "Document loads by cluster and outcome",
			},
			[]string{"cluster", "result"},
		),

		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "load",
				Name:      "duration_seconds",
				Help:      "Duration of successful document loads in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"cluster"},
		),

		AggregationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregation",
				Name:      "total",
				Help:      "Group aggregations by outcome",
			},
			[]string{"group", "result"},
		),

		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "aggregation",
				Name:      "duration_seconds",
				Help:      "Duration of group aggregations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"group"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Documents served from the store",
			},
			[]string{"document"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per destination (0=closed, 1=half-open, 2=open)",
			},
			[]string{"destination"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.RefreshStarted,
		m.RefreshTotal,
		m.RefreshDuration,
		m.RefreshGroups,
		m.EndpointsCount,
		m.LoadsTotal,
		m.LoadDuration,
		m.AggregationsTotal,
		m.AggregationDuration,
		m.CacheHits,
		m.BreakerState,
		m.HealthCheckStatus,
	)
}

// RecordRefreshStarted counts a refresh cycle that found endpoints
func (m *Metrics) RecordRefreshStarted() {
	m.RefreshStarted.Inc()
}

// RecordRefresh counts a completed refresh cycle and its group outcomes
func (m *Metrics) RecordRefresh(duration time.Duration, stored, failed int) {
	m.RefreshTotal.Inc()
	m.RefreshDuration.Observe(duration.Seconds())
	m.RefreshGroups.WithLabelValues("stored").Add(float64(stored))
	m.RefreshGroups.WithLabelValues("failed").Add(float64(failed))
}

// RecordEndpoints sets the discovered endpoint count
func (m *Metrics) RecordEndpoints(n int) {
	m.EndpointsCount.Set(float64(n))
}

// RecordLoad counts one document load. result is "success" or an error kind;
// only successful loads contribute to the duration histogram.
func (m *Metrics) RecordLoad(cluster, result string, duration time.Duration) {
	m.LoadsTotal.WithLabelValues(cluster, result).Inc()
	if result == "success" {
		m.LoadDuration.WithLabelValues(cluster).Observe(duration.Seconds())
	}
}

// RecordAggregation counts one group aggregation
func (m *Metrics) RecordAggregation(group, result string, duration time.Duration) {
	m.AggregationsTotal.WithLabelValues(group, result).Inc()
	m.AggregationDuration.WithLabelValues(group).Observe(duration.Seconds())
}

// RecordCacheHit increments the cache hit counter
func (m *Metrics) RecordCacheHit(document string) {
	m.CacheHits.WithLabelValues(document).Inc()
}

// RecordBreakerState updates a destination's circuit breaker gauge
func (m *Metrics) RecordBreakerState(destination string, state int) {
	m.BreakerState.WithLabelValues(destination).Set(float64(state))
}

// RecordHealthStatus updates health check status
func (m *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(value)
}
