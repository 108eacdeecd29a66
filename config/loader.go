package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/docmesh/errors"
)

// durationFields lists, per section, the keys decoded as durations
var durationFields = map[string][]string{
	"aggregation": {"refresh_interval", "load_timeout", "aggregation_timeout", "startup_delay"},
	"server":      {"read_timeout", "write_timeout", "idle_timeout", "shutdown_timeout"},
	"nats":        {"reconnect_wait"},
	"discovery":   {"dial_timeout"},
	"resilience":  {"sampling_duration", "break_duration", "connection_lifetime"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "DOCMESH",
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Layers returns the configured file layers in load order
func (l *Loader) Layers() []string {
	return append([]string(nil), l.layers...)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, then validates
func (l *Loader) Load() (*Config, error) {
	return l.LoadOverlay(nil)
}

// LoadOverlay is Load with one more JSON or YAML document applied after the
// file layers and before the environment. Manager uses it for KV updates.
func (l *Loader) LoadOverlay(overlay []byte) (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	if len(bytes.TrimSpace(overlay)) > 0 {
		raw, err := decodeRaw(overlay, detectFormat(overlay))
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "decode overlay")
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "decode configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "apply environment")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	format, err := configFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRaw(data, format)
}

// decodeRaw turns a JSON or YAML document into a map with durations
// converted to nanoseconds
func decodeRaw(data []byte, format string) (map[string]any, error) {
	raw := map[string]any{}
	switch format {
	case formatJSON:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		// yaml.v3 may produce map[any]any for nested maps with non-string keys
		normalized, ok := normalizeYAML(raw).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("top-level YAML value must be a mapping")
		}
		raw = normalized
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func detectFormat(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return formatJSON
	}
	return formatYAML
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(raw map[string]any) error {
	for section, keys := range durationFields {
		m, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := parseDurationWithDays(s)
			if err != nil {
				return fmt.Errorf("%s.%s: invalid duration %q", section, key, s)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "1d")
func parseDurationWithDays(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies PREFIX_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(target *string) func(string) error {
		return func(v string) error {
			*target = v
			return nil
		}
	}
	dur := func(target *time.Duration) func(string) error {
		return func(v string) error {
			d, err := parseDurationWithDays(v)
			if err != nil {
				return err
			}
			*target = d
			return nil
		}
	}
	integer := func(target *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*target = n
			return nil
		}
	}

	overrides := []struct {
		key   string
		apply func(string) error
	}{
		{"SERVER_ADDR", str(&cfg.Server.Addr)},
		{"LOG_LEVEL", str(&cfg.Log.Level)},
		{"LOG_FORMAT", str(&cfg.Log.Format)},
		{"NATS_URL", str(&cfg.NATS.URL)},
		{"NATS_USERNAME", str(&cfg.NATS.Username)},
		{"NATS_PASSWORD", str(&cfg.NATS.Password)},
		{"NATS_TOKEN", str(&cfg.NATS.Token)},
		{"NATS_CREDS_FILE", str(&cfg.NATS.CredsFile)},
		{"STORE_MODE", str(&cfg.Store.Mode)},
		{"DISCOVERY_MODE", str(&cfg.Discovery.Mode)},
		{"REFRESH_INTERVAL", dur(&cfg.Aggregation.RefreshInterval)},
		{"LOAD_TIMEOUT", dur(&cfg.Aggregation.LoadTimeout)},
		{"AGGREGATION_TIMEOUT", dur(&cfg.Aggregation.AggregationTimeout)},
		{"STARTUP_DELAY", dur(&cfg.Aggregation.StartupDelay)},
		{"MAX_PARALLELISM", integer(&cfg.Aggregation.MaxParallelism)},
		{"MAX_RETRY_ATTEMPTS", integer(&cfg.Aggregation.MaxRetryAttempts)},
		{"DEFAULT_SWAGGER_PATH", str(&cfg.Aggregation.DefaultSwaggerPath)},
		{"MAX_DOCUMENT_SIZE_BYTES", func(v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			cfg.Aggregation.MaxDocumentSizeBytes = n
			return nil
		}},
		{"INCLUDE_FAILED_SERVICES_WARNING", func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			cfg.Aggregation.IncludeFailedServicesWarning = b
			return nil
		}},
	}

	for _, o := range overrides {
		key := l.envPrefix + "_" + o.key
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		if err := o.apply(val); err != nil {
			return fmt.Errorf("%s=%q: %w", key, val, err)
		}
	}
	return nil
}
