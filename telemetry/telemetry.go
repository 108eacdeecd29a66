// Package telemetry defines the events the aggregation pipeline reports and
// the sinks that record them.
package telemetry

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360/docmesh/metric"
)

// Result labels used alongside loader error kinds
const (
	ResultSuccess            = "success"
	ResultAggregationTimeout = "aggregation_timeout"
	ResultPartial            = "partial"
	ResultFailure            = "failure"
)

// Sink receives pipeline events. Implementations must be safe for concurrent use.
type Sink interface {
	// RefreshStarted is reported when a scheduler cycle finds endpoints
	RefreshStarted(endpoints, groups int)
	// RefreshCompleted is reported once per started cycle with the number
	// of groups stored and failed
	RefreshCompleted(duration time.Duration, stored, failed int)
	// EndpointCount reports the number of endpoints discovered in a cycle
	EndpointCount(n int)
	// LoadSucceeded is reported for each document fetched and parsed
	LoadSucceeded(clusterID string, duration time.Duration)
	// LoadFailed is reported for each failed fetch with its error kind
	LoadFailed(clusterID, errorType string, duration time.Duration)
	// AggregationCompleted reports one group aggregation. result is
	// one of the Result constants.
	AggregationCompleted(group, result string, attempted, succeeded int, duration time.Duration)
	// CacheHit is reported when a document is served from the store
	CacheHit(document string)
	// BreakerStateChanged is reported when an upstream circuit changes state
	BreakerStateChanged(destination string, state gobreaker.State)
}

// Noop discards every event
type Noop struct{}

var _ Sink = Noop{}

func (Noop) RefreshStarted(int, int) {}
func (Noop) RefreshCompleted(time.Duration, int, int) {}
func (Noop) EndpointCount(int) {}
func (Noop) LoadSucceeded(string, time.Duration) {}
func (Noop) LoadFailed(string, string, time.Duration) {}
func (Noop) AggregationCompleted(string, string, int, int, time.Duration) {}
func (Noop) CacheHit(string) {}
func (Noop) BreakerStateChanged(string, gobreaker.State) {}

// OrNoop returns sink, or Noop when sink is nil
func OrNoop(sink Sink) Sink {
	if sink == nil {
		return Noop{}
	}
	return sink
}

// Prometheus records events into the core metrics
type Prometheus struct {
	metrics *metric.Metrics
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus creates a sink over the registry's core metrics
func NewPrometheus(registry *metric.MetricsRegistry) *Prometheus {
	return &Prometheus{metrics: registry.CoreMetrics()}
}

// RefreshStarted implements Sink
func (p *Prometheus) RefreshStarted(_, _ int) {
	p.metrics.RecordRefreshStarted()
}

// RefreshCompleted implements Sink
func (p *Prometheus) RefreshCompleted(duration time.Duration, stored, failed int) {
	p.metrics.RecordRefresh(duration, stored, failed)
}

// EndpointCount implements Sink
func (p *Prometheus) EndpointCount(n int) {
	p.metrics.RecordEndpoints(n)
}

// LoadSucceeded implements Sink
func (p *Prometheus) LoadSucceeded(clusterID string, duration time.Duration) {
	p.metrics.RecordLoad(clusterID, ResultSuccess, duration)
}

// LoadFailed implements Sink
func (p *Prometheus) LoadFailed(clusterID, errorType string, duration time.Duration) {
	p.metrics.RecordLoad(clusterID, errorType, duration)
}

// AggregationCompleted implements Sink
func (p *Prometheus) AggregationCompleted(group, result string, _, _ int, duration time.Duration) {
	p.metrics.RecordAggregation(group, result, duration)
}

// CacheHit implements Sink
func (p *Prometheus) CacheHit(document string) {
	p.metrics.RecordCacheHit(document)
}

// BreakerStateChanged implements Sink
func (p *Prometheus) BreakerStateChanged(destination string, state gobreaker.State) {
	p.metrics.RecordBreakerState(destination, breakerGauge(state))
}

func breakerGauge(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
