// Package testutil provides fixtures shared by docmesh package tests:
// OpenAPI document builders, httptest backends that serve them, and a
// telemetry sink that records every event for assertions.
package testutil
