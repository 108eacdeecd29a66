// Package gateway serves aggregated documents over HTTP.
//
// Provider is the read path: it answers from the document store and falls
// back to an on-demand aggregation on a miss, de-duplicated per group so a
// burst of requests for a cold group runs one aggregation. A group that has
// never aggregated is served as a placeholder document, never an error.
//
// NewHandler mounts the Provider together with the documentation UI,
// health, metrics and manual refresh routes:
//
//	GET  /swagger/{group}/swagger.json
//	GET  /swagger/{group}/swagger.yaml
//	GET  /swagger/docs
//	GET  /swagger/ui-config
//	GET  /swagger-ui/
//	POST /swagger/refresh
//	GET  /health  /healthz  /readyz  /metrics
//
// Server runs the handler with bounded timeouts and graceful shutdown.
package gateway
