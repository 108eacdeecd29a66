// Package metric owns the Prometheus registry for docmesh.
//
// NewMetricsRegistry creates a private registry with the Go runtime and
// process collectors plus the core aggregation metrics (Metrics). Other
// packages register their own collectors through MetricsRegistrar, keyed by
// service and metric name so duplicate registrations fail with an invalid
// error instead of panicking.
//
// The registry is served by Handler, which the gateway mounts at /metrics:
//
//	registry := metric.NewMetricsRegistry()
//	mux.Handle("/metrics", metric.Handler(registry))
//
//	registry.CoreMetrics().RecordLoad("orders", "success", 120*time.Millisecond)
//
// All core metrics live in the "docmesh" namespace.
package metric
