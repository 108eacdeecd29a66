package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/loader"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	opts := cfg.Aggregation
	assert.Equal(t, 5*time.Minute, opts.RefreshInterval)
	assert.Equal(t, 30*time.Second, opts.LoadTimeout)
	assert.Equal(t, 2*time.Minute, opts.AggregationTimeout)
	assert.Equal(t, 10, opts.MaxParallelism)
	assert.Equal(t, 3, opts.MaxRetryAttempts)
	assert.Equal(t, "/swagger/v1/swagger.json", opts.DefaultSwaggerPath)
	assert.Equal(t, 5*time.Second, opts.StartupDelay)
	assert.Equal(t, int64(10*1024*1024), opts.MaxDocumentSizeBytes)
	assert.True(t, opts.IncludeFailedServicesWarning)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"refresh at minimum", func(o *Options) { o.RefreshInterval = 10 * time.Second }, ""},
		{"refresh at maximum", func(o *Options) { o.RefreshInterval = 24 * time.Hour }, ""},
		{"refresh too short", func(o *Options) { o.RefreshInterval = 9 * time.Second }, "refresh_interval"},
		{"refresh too long", func(o *Options) { o.RefreshInterval = 25 * time.Hour }, "refresh_interval"},
		{"load timeout too short", func(o *Options) { o.LoadTimeout = time.Second }, "load_timeout"},
		{"load timeout too long", func(o *Options) { o.LoadTimeout = 6 * time.Minute }, "load_timeout"},
		{"aggregation timeout too short", func(o *Options) { o.AggregationTimeout = 29 * time.Second }, "aggregation_timeout"},
		{"aggregation timeout too long", func(o *Options) { o.AggregationTimeout = 11 * time.Minute }, "aggregation_timeout"},
		{"parallelism zero", func(o *Options) { o.MaxParallelism = 0 }, "max_parallelism"},
		{"parallelism 51", func(o *Options) { o.MaxParallelism = 51 }, "max_parallelism"},
		{"parallelism 50", func(o *Options) { o.MaxParallelism = 50 }, ""},
		{"retries negative", func(o *Options) { o.MaxRetryAttempts = -1 }, "max_retry_attempts"},
		{"retries 11", func(o *Options) { o.MaxRetryAttempts = 11 }, "max_retry_attempts"},
		{"retries zero", func(o *Options) { o.MaxRetryAttempts = 0 }, ""},
		{"empty path", func(o *Options) { o.DefaultSwaggerPath = " " }, "default_swagger_path"},
		{"path 201 chars", func(o *Options) { o.DefaultSwaggerPath = "/" + strings.Repeat("a", 200) }, "default_swagger_path"},
		{"path 200 chars", func(o *Options) { o.DefaultSwaggerPath = "/" + strings.Repeat("a", 199) }, ""},
		{"startup delay zero", func(o *Options) { o.StartupDelay = 0 }, ""},
		{"startup delay negative", func(o *Options) { o.StartupDelay = -time.Second }, "startup_delay"},
		{"startup delay too long", func(o *Options) { o.StartupDelay = 6 * time.Minute }, "startup_delay"},
		{"size 1KiB", func(o *Options) { o.MaxDocumentSizeBytes = 1024 }, ""},
		{"size too small", func(o *Options) { o.MaxDocumentSizeBytes = 1023 }, "max_document_size_bytes"},
		{"size too large", func(o *Options) { o.MaxDocumentSizeBytes = 100<<20 + 1 }, "max_document_size_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOptions_ValidateReportsEveryProblem(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxParallelism = 0
	opts.LoadTimeout = 0

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallelism")
	assert.Contains(t, err.Error(), "load_timeout")
}

func TestOptions_Conversions(t *testing.T) {
	opts := DefaultOptions()
	opts.LoadTimeout = 7 * time.Second
	opts.MaxDocumentSizeBytes = 2048
	opts.IncludeFailedServicesWarning = false

	assert.Equal(t, 7*time.Second, opts.Limits().Timeout)
	assert.Equal(t, int64(2048), opts.Limits().MaxSize)
	assert.False(t, opts.MergeOptions().IncludeFailedServicesWarning)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad store mode", func(c *Config) { c.Store.Mode = "redis" }, "store.mode"},
		{"kv without nats", func(c *Config) { c.Store.Mode = StoreModeKV }, "requires nats.url"},
		{"kv with nats", func(c *Config) {
			c.Store.Mode = StoreModeKV
			c.NATS.URL = "nats://localhost:4222"
		}, ""},
		{"bad discovery", func(c *Config) { c.Discovery.Mode = "dns" }, "discovery.mode"},
		{"dial without timeout", func(c *Config) {
			c.Discovery.Mode = DiscoveryModeDial
			c.Discovery.DialTimeout = 0
		}, "dial_timeout"},
		{"failure ratio", func(c *Config) { c.Resilience.FailureRatio = 1.5 }, "failure_ratio"},
		{"token client without id", func(c *Config) {
			c.TokenClients = map[string]loader.ClientCredentialsConfig{
				"orders": {TokenURL: "https://idp/token"},
			}
		}, "token_clients.orders.client_id"},
		{"token client bad url", func(c *Config) {
			c.TokenClients = map[string]loader.ClientCredentialsConfig{
				"orders": {TokenURL: "not a url", ClientID: "id"},
			}
		}, "token_clients.orders.token_url"},
		{"options propagate", func(c *Config) { c.Aggregation.MaxParallelism = 0 }, "max_parallelism"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Clusters(t *testing.T) {
	cfg := Defaults()
	_, ok := cfg.Clusters()
	assert.False(t, ok)

	cfg.Yarp = &ProxyConfig{Clusters: map[string]endpoint.ClusterConfig{"yarp": {}}}
	clusters, ok := cfg.Clusters()
	require.True(t, ok)
	assert.Contains(t, clusters, "yarp")

	cfg.ReverseProxy = &ProxyConfig{Clusters: map[string]endpoint.ClusterConfig{}}
	clusters, ok = cfg.Clusters()
	require.True(t, ok)
	assert.Empty(t, clusters)

	assert.Equal(t, DefaultSwaggerPath, cfg.DefaultDocumentPath())
}

func TestConfig_ClientOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Aggregation.MaxRetryAttempts = 5
	cfg.Resilience.MaxConnsPerHost = 4
	cfg.Resilience.BreakDuration = time.Minute

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, 5, opts.Retries)
	assert.Equal(t, 4, opts.MaxConnsPerHost)
	assert.Equal(t, time.Minute, opts.Breaker.BreakDuration)
	assert.Equal(t, cfg.Resilience.FailureRatio, opts.Breaker.FailureRatio)
	assert.Nil(t, opts.TLS)

	cfg.Resilience.TLS.CAFiles = []string{"/nonexistent/ca.pem"}
	_, err = cfg.ClientOptions()
	assert.Error(t, err)
}

func TestConfig_ValidateTLS(t *testing.T) {
	cfg := Defaults()
	cfg.Server.TLS.Enabled = true
	cfg.Resilience.TLS.CertFile = "client.pem"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.tls")
	assert.Contains(t, err.Error(), "resilience.tls")
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := Defaults()
	cfg.ReverseProxy = &ProxyConfig{Clusters: map[string]endpoint.ClusterConfig{
		"orders": {Metadata: map[string]string{endpoint.MetaEnabled: "true"}},
	}}

	clone := cfg.Clone()
	clone.ReverseProxy.Clusters["orders"].Metadata[endpoint.MetaEnabled] = "false"
	clone.Aggregation.MaxParallelism = 1

	assert.Equal(t, "true", cfg.ReverseProxy.Clusters["orders"].Metadata[endpoint.MetaEnabled])
	assert.Equal(t, 10, cfg.Aggregation.MaxParallelism)
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "tok"
	cfg.TokenClients = map[string]loader.ClientCredentialsConfig{
		"orders": {TokenURL: "https://idp/token", ClientID: "id", ClientSecret: "s3cret"},
	}

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "[REDACTED]")
	// Original untouched
	assert.Equal(t, "s3cret", cfg.TokenClients["orders"].ClientSecret)
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	require.NotNil(t, sc.Snapshot())

	err := sc.Update(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	bad := Defaults()
	bad.Aggregation.MaxParallelism = 100
	require.Error(t, sc.Update(bad))
	assert.Equal(t, 10, sc.Snapshot().Aggregation.MaxParallelism)

	good := Defaults()
	good.Aggregation.MaxParallelism = 20
	require.NoError(t, sc.Update(good))
	assert.Same(t, good, sc.Snapshot())

	copied := sc.Get()
	copied.Aggregation.MaxParallelism = 1
	assert.Equal(t, 20, sc.Snapshot().Aggregation.MaxParallelism)
}
