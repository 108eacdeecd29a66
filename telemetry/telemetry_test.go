package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/c360/docmesh/metric"
)

func TestPrometheusSink(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := registry.CoreMetrics()
	sink := NewPrometheus(registry)

	sink.RefreshStarted(5, 2)
	sink.RefreshStarted(5, 2)
	sink.RefreshCompleted(time.Second, 2, 0)
	sink.RefreshCompleted(time.Second, 1, 1)
	sink.EndpointCount(5)
	sink.LoadSucceeded("orders", 20*time.Millisecond)
	sink.LoadFailed("orders", "timeout", 30*time.Second)
	sink.LoadFailed("users", "http_error", time.Millisecond)
	sink.AggregationCompleted("api", ResultAggregationTimeout, 2, 0, 2*time.Minute)
	sink.CacheHit("api")
	sink.CacheHit("api")
	sink.BreakerStateChanged("orders:8080", gobreaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RefreshGroups.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshGroups.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.EndpointsCount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("orders", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("orders", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("users", "http_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationsTotal.WithLabelValues("api", ResultAggregationTimeout)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("api")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("orders:8080")))
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, Noop{}, OrNoop(nil))

	sink := NewPrometheus(metric.NewMetricsRegistry())
	assert.Same(t, sink, OrNoop(sink))
}
