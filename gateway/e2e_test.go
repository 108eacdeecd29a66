package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docmesh/aggregator"
	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/docstore"
	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/health"
	"github.com/c360/docmesh/loader"
	"github.com/c360/docmesh/pkg/resilience"
	"github.com/c360/docmesh/scheduler"
	"github.com/c360/docmesh/testutil"
)

// stack is the full read and refresh path over real HTTP
type stack struct {
	store     *docstore.Memory
	scheduler *scheduler.Scheduler
	server    *Server
	sink      *testutil.RecordingSink
}

func newStack(t *testing.T, dir endpoint.Directory) *stack {
	t.Helper()
	opts := config.DefaultOptions()
	opts.StartupDelay = 0

	clientOpts := resilience.DefaultOptions()
	clientOpts.Retries = 0
	client := resilience.NewClient(clientOpts)

	sink := testutil.NewRecordingSink()
	store := docstore.NewMemory()
	monitor := health.NewMonitor()
	agg := aggregator.New(aggregator.Config{
		Loader:  loader.NewHTTPLoader(loader.Config{Client: client.Client, Limits: opts.Limits, Sink: sink}),
		Timeout: func() time.Duration { return 5 * time.Second },
		Sink:    sink,
	})

	sched, err := scheduler.New(scheduler.Config{
		Directory:  dir,
		Aggregator: agg,
		Store:      store,
		Options:    func() config.Options { return opts },
		Sink:       sink,
		Health:     monitor,
	})
	require.NoError(t, err)

	provider := NewProvider(ProviderConfig{
		Store:      store,
		Directory:  dir,
		Aggregator: agg,
		Options:    opts.MergeOptions,
		Sink:       sink,
	})
	server := NewServer(config.ServerConfig{Addr: "127.0.0.1:0"}, NewHandler(HandlerConfig{
		Provider:  provider,
		Directory: dir,
		Health:    monitor,
		Refresher: sched,
	}), nil)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	return &stack{store: store, scheduler: sched, server: server, sink: sink}
}

func (s *stack) get(t *testing.T, group string) *document.Document {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s/swagger/%s/swagger.json", s.server.Addr(), group))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	doc, err := document.Parse(body)
	require.NoError(t, err)
	return doc
}

func TestEndToEnd_PrefixedMerge(t *testing.T) {
	a := testutil.NewBackend(t, testutil.NewSpec("A", "/a").JSON())
	b := testutil.NewBackend(t, testutil.NewSpec("B", "/b").JSON())

	epB := endpoint.Descriptor{ClusterID: "b", BaseAddress: b.URL, DocumentPath: config.DefaultSwaggerPath, GroupName: "api", Prefix: "/svc-b"}
	dir := endpoint.Static{
		{ClusterID: "a", BaseAddress: a.URL, DocumentPath: config.DefaultSwaggerPath, GroupName: "api"},
		epB,
	}
	s := newStack(t, dir)

	report := s.scheduler.RefreshOnce(context.Background())
	require.Equal(t, 1, report.Stored)

	doc := s.get(t, "api")
	assert.ElementsMatch(t, []string{"/a", "/svc-b/b"}, doc.PathKeys())
	assert.Equal(t, []string{"api"}, s.sink.CacheHits())
}

func TestEndToEnd_FailedServiceWarning(t *testing.T) {
	a := testutil.NewBackend(t, testutil.NewSpec("A", "/a").JSON())
	c := testutil.NewBackend(t, nil)
	c.SetStatus(http.StatusInternalServerError)

	dir := endpoint.Static{
		{ClusterID: "a", BaseAddress: a.URL, DocumentPath: config.DefaultSwaggerPath, GroupName: "api"},
		{ClusterID: "cluster-c", BaseAddress: c.URL, DocumentPath: config.DefaultSwaggerPath, GroupName: "api"},
	}
	s := newStack(t, dir)

	// Cold store: served through the on-demand path
	doc := s.get(t, "api")
	assert.Equal(t, []string{"/a"}, doc.PathKeys())
	assert.Contains(t, doc.Info.Description, "**Warning**: Failed to load Swagger for: cluster-c (HTTP 500")
	assert.True(t, s.store.Exists("api"))
}

func TestEndToEnd_UnknownGroupPlaceholder(t *testing.T) {
	s := newStack(t, endpoint.Static{})

	doc := s.get(t, "unknown-group")
	assert.Equal(t, "unknown-group", doc.Info.Title)
	assert.Equal(t, document.DefaultVersion, doc.Info.Version)
	assert.Equal(t, document.PlaceholderDescription, doc.Info.Description)
	assert.Empty(t, doc.Paths)
}

func TestEndToEnd_ManualRefresh(t *testing.T) {
	a := testutil.NewBackend(t, testutil.NewSpec("A", "/a").JSON())
	dir := endpoint.Static{{ClusterID: "a", BaseAddress: a.URL, DocumentPath: config.DefaultSwaggerPath}}
	s := newStack(t, dir)

	require.NoError(t, s.scheduler.Start(context.Background()))
	t.Cleanup(func() { _ = s.scheduler.Stop(time.Second) })
	require.Eventually(t, func() bool { return s.store.Exists("a") }, 2*time.Second, 10*time.Millisecond)

	a.SetBody(testutil.NewSpec("A", "/a", "/a2").JSON())
	resp, err := http.Post(fmt.Sprintf("http://%s%s", s.server.Addr(), RefreshPath), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		doc, ok := s.store.Get("a")
		return ok && len(doc.Paths) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
