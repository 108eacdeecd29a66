package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/loader"
	"github.com/c360/docmesh/pkg/resilience"
	"github.com/c360/docmesh/pkg/tlsutil"
)

// Store modes
const (
	StoreModeMemory = "memory" // process-local only
	StoreModeKV     = "kv"     // memory cache written through to NATS KV
)

// Discovery modes
const (
	DiscoveryModeConfig = "config" // every configured destination
	DiscoveryModeDial   = "dial"   // only destinations that accept connections
)

// Config represents the complete application configuration
type Config struct {
	Version      string                                    `json:"version,omitempty"`
	Aggregation  Options                                   `json:"aggregation"`
	Server       ServerConfig                              `json:"server"`
	Log          LogConfig                                 `json:"log"`
	NATS         NATSConfig                                `json:"nats"`
	Store        StoreConfig                               `json:"store"`
	Discovery    DiscoveryConfig                           `json:"discovery"`
	Resilience   ResilienceConfig                          `json:"resilience"`
	TokenClients map[string]loader.ClientCredentialsConfig `json:"token_clients,omitempty"`

	// Proxy cluster sections. ReverseProxy wins when both are present.
	ReverseProxy *ProxyConfig `json:"reverse_proxy,omitempty"`
	Yarp         *ProxyConfig `json:"yarp,omitempty"`
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	Addr            string               `json:"addr"`
	ReadTimeout     time.Duration        `json:"read_timeout"`
	WriteTimeout    time.Duration        `json:"write_timeout"`
	IdleTimeout     time.Duration        `json:"idle_timeout"`
	ShutdownTimeout time.Duration        `json:"shutdown_timeout"`
	EnableUI        bool                 `json:"enable_ui"`
	TLS             tlsutil.ServerConfig `json:"tls"`

	// Manual refresh requests per second and burst; a zero rate disables the limit
	RefreshRate  float64 `json:"refresh_rate"`
	RefreshBurst int     `json:"refresh_burst"`
}

// LogConfig defines the slog handler
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URL           string        `json:"url,omitempty"`
	Name          string        `json:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	CredsFile     string        `json:"creds_file,omitempty"`
	ConfigBucket  string        `json:"config_bucket,omitempty"`
	ConfigKey     string        `json:"config_key,omitempty"`
}

// StoreConfig selects the document store
type StoreConfig struct {
	Mode    string `json:"mode"`
	Bucket  string `json:"bucket,omitempty"`
	History uint8  `json:"history,omitempty"`
}

// DiscoveryConfig selects how endpoints are discovered
type DiscoveryConfig struct {
	Mode        string        `json:"mode"`
	DialTimeout time.Duration `json:"dial_timeout,omitempty"`
}

// ResilienceConfig tunes the shared upstream HTTP client
type ResilienceConfig struct {
	FailureRatio       float64              `json:"failure_ratio"`
	MinimumThroughput  uint32               `json:"minimum_throughput"`
	SamplingDuration   time.Duration        `json:"sampling_duration"`
	BreakDuration      time.Duration        `json:"break_duration"`
	MaxConnsPerHost    int                  `json:"max_conns_per_host"`
	ConnectionLifetime time.Duration        `json:"connection_lifetime"`
	TLS                tlsutil.ClientConfig `json:"tls"`
}

// ProxyConfig is a reverse proxy configuration section
type ProxyConfig struct {
	Clusters map[string]endpoint.ClusterConfig `json:"clusters"`
}

// Defaults returns a configuration with every default applied
func Defaults() *Config {
	breaker := resilience.DefaultBreakerConfig()
	pool := resilience.DefaultOptions()
	return &Config{
		Aggregation: DefaultOptions(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			EnableUI:        true,
			RefreshRate:     0.2,
			RefreshBurst:    3,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		NATS: NATSConfig{
			Name:          "docmesh",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			ConfigBucket:  "docmesh-config",
			ConfigKey:     "config",
		},
		Store: StoreConfig{
			Mode:    StoreModeMemory,
			Bucket:  "docmesh-documents",
			History: 1,
		},
		Discovery: DiscoveryConfig{
			Mode:        DiscoveryModeConfig,
			DialTimeout: 2 * time.Second,
		},
		Resilience: ResilienceConfig{
			FailureRatio:       breaker.FailureRatio,
			MinimumThroughput:  breaker.MinimumThroughput,
			SamplingDuration:   breaker.SamplingDuration,
			BreakDuration:      breaker.BreakDuration,
			MaxConnsPerHost:    pool.MaxConnsPerHost,
			ConnectionLifetime: pool.ConnectionLifetime,
		},
	}
}

// Validate checks the whole configuration and reports every problem
func (c *Config) Validate() error {
	var errs []error
	if err := c.Aggregation.Validate(); err != nil {
		errs = append(errs, err)
	}

	problem := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		problem("server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		problem("server timeouts must be positive")
	}
	if c.Server.RefreshRate < 0 || (c.Server.RefreshRate > 0 && c.Server.RefreshBurst < 1) {
		problem("server.refresh_rate must be >= 0 with refresh_burst >= 1")
	}
	if err := c.Server.TLS.Validate(); err != nil {
		problem("server.tls: %v", err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problem("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		problem("log.format %q must be json or text", c.Log.Format)
	}

	switch c.Store.Mode {
	case StoreModeMemory:
	case StoreModeKV:
		if c.NATS.URL == "" {
			problem("store.mode %q requires nats.url", StoreModeKV)
		}
		if c.Store.Bucket == "" {
			problem("store.bucket is required for store.mode %q", StoreModeKV)
		}
	default:
		problem("store.mode %q must be %s or %s", c.Store.Mode, StoreModeMemory, StoreModeKV)
	}

	switch c.Discovery.Mode {
	case DiscoveryModeConfig:
	case DiscoveryModeDial:
		if c.Discovery.DialTimeout <= 0 {
			problem("discovery.dial_timeout must be positive")
		}
	default:
		problem("discovery.mode %q must be %s or %s", c.Discovery.Mode, DiscoveryModeConfig, DiscoveryModeDial)
	}

	if r := c.Resilience.FailureRatio; r <= 0 || r > 1 {
		problem("resilience.failure_ratio %v outside (0, 1]", r)
	}
	if c.Resilience.BreakDuration <= 0 || c.Resilience.SamplingDuration <= 0 {
		problem("resilience durations must be positive")
	}
	if c.Resilience.MaxConnsPerHost < 1 {
		problem("resilience.max_conns_per_host must be at least 1")
	}
	if err := c.Resilience.TLS.Validate(); err != nil {
		problem("resilience.tls: %v", err)
	}

	for name, tc := range c.TokenClients {
		if tc.ClientID == "" {
			problem("token_clients.%s.client_id is required", name)
		}
		if _, err := url.ParseRequestURI(tc.TokenURL); err != nil {
			problem("token_clients.%s.token_url is not a valid URL", name)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
		"config", "Validate", "validate configuration")
}

// Clusters implements endpoint.ConfigSource
func (c *Config) Clusters() (map[string]endpoint.ClusterConfig, bool) {
	if c.ReverseProxy != nil && c.ReverseProxy.Clusters != nil {
		return c.ReverseProxy.Clusters, true
	}
	if c.Yarp != nil && c.Yarp.Clusters != nil {
		return c.Yarp.Clusters, true
	}
	return nil, false
}

// DefaultDocumentPath implements endpoint.ConfigSource
func (c *Config) DefaultDocumentPath() string {
	return c.Aggregation.DefaultSwaggerPath
}

// ClientOptions returns the resilient HTTP client settings
func (c *Config) ClientOptions() (resilience.Options, error) {
	opts := resilience.DefaultOptions()
	opts.Retries = c.Aggregation.MaxRetryAttempts
	opts.MaxConnsPerHost = c.Resilience.MaxConnsPerHost
	opts.ConnectionLifetime = c.Resilience.ConnectionLifetime
	opts.Breaker.FailureRatio = c.Resilience.FailureRatio
	opts.Breaker.MinimumThroughput = c.Resilience.MinimumThroughput
	opts.Breaker.SamplingDuration = c.Resilience.SamplingDuration
	opts.Breaker.BreakDuration = c.Resilience.BreakDuration

	tlsConfig, err := tlsutil.ClientTLS(c.Resilience.TLS)
	if err != nil {
		return opts, err
	}
	opts.TLS = tlsConfig
	return opts, nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns the configuration as JSON with secrets redacted
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "[REDACTED]"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "[REDACTED]"
	}
	for name, tc := range redacted.TokenClients {
		if tc.ClientSecret != "" {
			tc.ClientSecret = "[REDACTED]"
			redacted.TokenClients[name] = tc
		}
	}
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration. A stored Config
// is never mutated; Update swaps in a new one.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Defaults()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Snapshot returns the current configuration without copying. Callers must
// treat it as read-only.
func (sc *SafeConfig) Snapshot() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "SafeConfig.Update", "validate config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	sc.config = cfg
	sc.mu.Unlock()
	return nil
}
