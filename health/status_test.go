package health

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_States(t *testing.T) {
	tests := []struct {
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
		code      int
	}{
		{NewHealthy("a", "ok"), true, false, false, 200},
		{NewDegraded("a", "partial"), false, true, false, 200},
		{NewUnhealthy("a", "down"), false, false, true, 503},
		{Status{Status: "unknown"}, false, false, false, 200},
	}
	for _, tt := range tests {
		t.Run(tt.status.Status, func(t *testing.T) {
			assert.Equal(t, tt.healthy, tt.status.IsHealthy())
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.Equal(t, tt.degraded, tt.status.IsDegraded())
			assert.Equal(t, tt.unhealthy, tt.status.IsUnhealthy())
			assert.Equal(t, tt.code, tt.status.HTTPStatusCode())
		})
	}
}

func TestStatus_WithMetrics(t *testing.T) {
	original := NewHealthy("scheduler", "ok")
	m := &Metrics{Documents: 3, RefreshDuration: time.Second}

	withMetrics := original.WithMetrics(m)
	assert.Nil(t, original.Metrics)
	assert.Same(t, m, withMetrics.Metrics)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	base := NewHealthy("system", "ok")
	base.SubStatuses = make([]Status, 1, 4)
	base.SubStatuses[0] = NewHealthy("first", "ok")

	a := base.WithSubStatus(NewHealthy("a", "ok"))
	b := base.WithSubStatus(NewUnhealthy("b", "down"))

	require.Len(t, a.SubStatuses, 2)
	require.Len(t, b.SubStatuses, 2)
	assert.Equal(t, "a", a.SubStatuses[1].Component)
	assert.Equal(t, "b", b.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestFromError(t *testing.T) {
	ok := FromError("natsclient", nil, "Connected")
	assert.True(t, ok.IsHealthy())
	assert.Equal(t, "Connected", ok.Message)

	bad := FromError("natsclient", stderrors.New("dial nats://10.0.0.5:4222 refused"), "Connected")
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial [URL] refused", bad.Message)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"unix file path", "failed to open /etc/docmesh/config.yaml", "failed to open [PATH]"},
		{"windows file path", "cannot read C:\\Users\\Admin\\config.json", "cannot read [PATH]"},
		{"http url", "GET https://orders.internal/swagger/v1/swagger.json: EOF", "GET [URL] EOF"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port number", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credentials", "auth failed with password:secretpass123", "auth failed with [REDACTED]"},
		{
			"multiple sensitive items",
			"failed to connect to https://192.168.1.1:8080/api with token=abc123def",
			"failed to connect to [URL] with [REDACTED]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}
