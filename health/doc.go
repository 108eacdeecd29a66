// Package health tracks the health of docmesh components and aggregates it
// into one system status.
//
// Three states are reported: healthy, degraded (serving, but some groups or
// upstreams are failing) and unhealthy (not serving fresh documents). The
// refresh scheduler updates one entry per cycle and one per group; the
// gateway serves the aggregate through Handler.
//
//	monitor := health.NewMonitor()
//	monitor.UpdateHealthy("scheduler", "Refresh cycle completed")
//	monitor.UpdateDegraded("group:orders", "1 of 3 endpoints failed")
//
//	status := monitor.AggregateHealth("docmesh") // degraded
//
// Messages built from errors pass through FromError, which strips URLs,
// addresses, paths and credentials before they reach an HTTP response.
package health
