// Package docmesh aggregates the OpenAPI documents published by the services
// behind a reverse proxy into one merged document per group, and serves the
// merged documents together with a documentation UI.
//
// # Architecture
//
// docmesh is a set of small packages wired together by cmd/docmesh:
//
//	┌─────────────────────────────────────┐
//	│           Gateway                   │  /swagger/{group}/swagger.json
//	│  (provider, handler, server)        │  UI, health, metrics
//	└─────────────────────────────────────┘
//	           ↓ reads
//	┌─────────────────────────────────────┐
//	│         Document Store              │  memory, or memory
//	│      (docstore.Memory, KVStore)     │  written through to NATS KV
//	└─────────────────────────────────────┘
//	           ↑ written by
//	┌─────────────────────────────────────┐
//	│       Refresh Scheduler             │  startup delay, interval,
//	│   (one cycle per interval)          │  manual triggers
//	└─────────────────────────────────────┘
//	           ↓ per group
//	┌─────────────────────────────────────┐
//	│          Aggregator                 │  load → transform → merge
//	└─────────────────────────────────────┘
//	           ↓ per endpoint
//	┌─────────────────────────────────────┐
//	│   Loader over resilience.Client     │  retry(breaker(pool))
//	└─────────────────────────────────────┘
//
// Endpoints come from an endpoint.Directory: either every enabled cluster in
// the proxy configuration, or only the destinations that accept connections.
// A cluster opts in with "Swagger:Enabled" metadata; the remaining
// "Swagger:*" keys choose the document path, group, prefix and path filter.
//
// # Failure Model
//
// A failed endpoint never fails its group: the merged document carries the
// documents that loaded and, optionally, a warning naming the ones that did
// not. A failed group keeps the document stored by the previous cycle.
// Readers never wait on a refresh cycle; a group that was never stored is
// aggregated on demand, deduplicated across concurrent readers, and a
// placeholder is served if that fails too.
//
// # Configuration
//
// Configuration is layered: defaults, then each file given with --config,
// then DOCMESH_* environment variables. Aggregation options and clusters are
// hot-reloadable from the files and, when NATS is configured, from a shared
// key-value entry so every replica converges on the same settings.
//
// # Packages
//
//   - document: the OpenAPI document model, parsing and placeholders
//   - endpoint: descriptors and directories
//   - loader: fetching one document with limits and tokens
//   - transform: per-document rewrites (prefix, path filter)
//   - merge: first-wins merging of a group
//   - aggregator: the load, transform and merge pipeline for a group
//   - docstore: merged document storage
//   - scheduler: the periodic refresh loop
//   - gateway: HTTP serving
//   - config: layered configuration and hot reload
//   - telemetry, metric, health: observability
//   - natsclient: the NATS connection used by the KV store and config watch
package docmesh
