package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/c360/docmesh/docstore"
	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/health"
	"github.com/c360/docmesh/metric"
)

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) TriggerRefresh() { m.Called() }

func newRefresher() *mockRefresher {
	m := &mockRefresher{}
	m.On("TriggerRefresh").Return()
	return m
}

func newTestHandler(t *testing.T, store docstore.Store, dir endpoint.Directory, mutate func(*HandlerConfig)) http.Handler {
	t.Helper()
	cfg := HandlerConfig{
		Provider:  NewProvider(ProviderConfig{Store: store, Directory: dir, Aggregator: &countingAggregator{}}),
		Directory: dir,
		Health:    health.NewMonitor(),
		Metrics:   metric.NewMetricsRegistry(),
		EnableUI:  true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHandler(cfg)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func storedDoc(title string) *document.Document {
	doc := document.New()
	doc.Info.Title = title
	doc.Paths["/"+title] = json.RawMessage(`{"get":{"responses":{"200":{"description":"ok"}}}}`)
	return doc
}

func TestHandler_DocumentJSON(t *testing.T) {
	store := docstore.NewMemory()
	require.NoError(t, store.Set("orders", storedDoc("orders")))
	h := newTestHandler(t, store, nil, nil)

	rec := serve(h, http.MethodGet, "/swagger/Orders/swagger.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	doc, err := document.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "orders", doc.Info.Title)
	assert.Equal(t, []string{"/orders"}, doc.PathKeys())
}

func TestHandler_DocumentYAML(t *testing.T) {
	store := docstore.NewMemory()
	require.NoError(t, store.Set("orders", storedDoc("orders")))
	h := newTestHandler(t, store, nil, nil)

	rec := serve(h, http.MethodGet, "/swagger/orders/swagger.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, document.OpenAPIVersion, raw["openapi"])
	assert.Contains(t, raw["paths"], "/orders")
}

func TestHandler_UnknownFile(t *testing.T) {
	h := newTestHandler(t, docstore.NewMemory(), nil, nil)
	rec := serve(h, http.MethodGet, "/swagger/orders/openapi.xml")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_PlaceholderNeverErrors(t *testing.T) {
	h := newTestHandler(t, docstore.NewMemory(), nil, nil)

	rec := serve(h, http.MethodGet, "/swagger/cold/swagger.json")
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := document.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "cold", doc.Info.Title)
	assert.Equal(t, document.PlaceholderDescription, doc.Info.Description)
}

func TestHandler_Docs(t *testing.T) {
	store := docstore.NewMemory()
	require.NoError(t, store.Set("orders", storedDoc("orders")))
	require.NoError(t, store.Set("Billing", storedDoc("billing")))
	h := newTestHandler(t, store, nil, nil)

	rec := serve(h, http.MethodGet, DocsPath)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Documents []DocumentLink `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []DocumentLink{
		{Name: "Billing", URL: "/swagger/Billing/swagger.json"},
		{Name: "orders", URL: "/swagger/orders/swagger.json"},
	}, body.Documents)
}

func TestUIURLs(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  []DocumentLink
	}{
		{
			name:  "empty yields placeholder",
			names: nil,
			want:  []DocumentLink{{Name: PlaceholderUIName, URL: "/swagger/v1/swagger.json"}},
		},
		{
			name:  "deduplicated by name",
			names: []string{"orders", "billing", "Orders", ""},
			want: []DocumentLink{
				{Name: "orders", URL: "/swagger/orders/swagger.json"},
				{Name: "billing", URL: "/swagger/billing/swagger.json"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UIURLs(tt.names))
		})
	}
}

func TestHandler_UIConfig(t *testing.T) {
	store := docstore.NewMemory()
	require.NoError(t, store.Set("orders", storedDoc("orders")))
	dir := endpoint.Static{descriptor("a", "orders"), descriptor("b", "billing")}
	h := newTestHandler(t, store, dir, nil)

	rec := serve(h, http.MethodGet, UIConfigPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body struct {
		URLs []DocumentLink `json:"urls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []DocumentLink{
		{Name: "orders", URL: "/swagger/orders/swagger.json"},
		{Name: "billing", URL: "/swagger/billing/swagger.json"},
	}, body.URLs)
}

func TestHandler_UI(t *testing.T) {
	h := newTestHandler(t, docstore.NewMemory(), nil, nil)

	rec := serve(h, http.MethodGet, UIPath+"index.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), UIConfigPath)

	rec = serve(h, http.MethodGet, UIPath)
	assert.GreaterOrEqual(t, rec.Code, 300)
	assert.Less(t, rec.Code, 400)
	assert.True(t, strings.HasSuffix(rec.Header().Get("Location"), "index.html"))
}

func TestHandler_GroupNamedUI(t *testing.T) {
	store := docstore.NewMemory()
	require.NoError(t, store.Set("ui", storedDoc("ui")))
	h := newTestHandler(t, store, nil, nil)

	rec := serve(h, http.MethodGet, "/swagger/ui/swagger.json")
	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := document.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "ui", doc.Info.Title)

	rec = serve(h, http.MethodGet, UIPath+"index.html")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_UIDisabled(t *testing.T) {
	h := newTestHandler(t, docstore.NewMemory(), nil, func(c *HandlerConfig) { c.EnableUI = false })

	rec := serve(h, http.MethodGet, UIPath)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Refresh(t *testing.T) {
	refresher := newRefresher()
	h := newTestHandler(t, docstore.NewMemory(), nil, func(c *HandlerConfig) { c.Refresher = refresher })

	rec := serve(h, http.MethodPost, RefreshPath)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	refresher.AssertNumberOfCalls(t, "TriggerRefresh", 1)

	rec = serve(h, http.MethodGet, RefreshPath)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	none := newTestHandler(t, docstore.NewMemory(), nil, nil)
	rec = serve(none, http.MethodPost, RefreshPath)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_RefreshRateLimited(t *testing.T) {
	refresher := newRefresher()
	h := newTestHandler(t, docstore.NewMemory(), nil, func(c *HandlerConfig) {
		c.Refresher = refresher
		c.RefreshLimiter = rate.NewLimiter(rate.Every(time.Hour), 2)
	})

	assert.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, RefreshPath).Code)
	assert.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, RefreshPath).Code)

	rec := serve(h, http.MethodPost, RefreshPath)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	refresher.AssertNumberOfCalls(t, "TriggerRefresh", 2)
}

func TestHandler_HealthEndpoints(t *testing.T) {
	monitor := health.NewMonitor()
	ready := atomic.Bool{}
	h := newTestHandler(t, docstore.NewMemory(), nil, func(c *HandlerConfig) {
		c.Health = monitor
		c.Ready = ready.Load
	})

	monitor.UpdateUnhealthy("group:orders", "All 2 endpoints failed")
	rec := serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "docmesh", status.Component)
	require.Len(t, status.SubStatuses, 1)

	monitor.UpdateHealthy("group:orders", "2 endpoints loaded")
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health").Code)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, "/readyz").Code)
	ready.Store(true)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz").Code)
}

func TestHandler_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	registry.CoreMetrics().RecordCacheHit("orders")
	h := newTestHandler(t, docstore.NewMemory(), nil, func(c *HandlerConfig) { c.Metrics = registry })

	rec := serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)
	hits, ok := families["docmesh_cache_hits_total"]
	require.True(t, ok, "cache hit counter exported")
	require.Len(t, hits.GetMetric(), 1)
	assert.Equal(t, 1.0, hits.GetMetric()[0].GetCounter().GetValue())
}
