package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
)

// Update sources
const (
	SourceFile = "file"
	SourceKV   = "kv"
	SourceAPI  = "api"
)

// Update represents a configuration change notification
type Update struct {
	Source string  // What produced the change
	Config *Config // New snapshot, read-only
}

// Manager holds the live configuration and fans out changes to subscribers
type Manager struct {
	config      *SafeConfig
	subscribers []chan Update
	mu          sync.RWMutex
	logger      *slog.Logger

	wg      sync.WaitGroup
	cancels []context.CancelFunc
	stopped atomic.Bool
}

var _ endpoint.ConfigSource = (*Manager)(nil)

// NewManager validates cfg and wraps it
func NewManager(cfg *Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "config", "NewManager", "validate config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config: NewSafeConfig(cfg),
		logger: logger.With("component", "config-manager"),
	}, nil
}

// Config returns the current configuration snapshot, read-only
func (m *Manager) Config() *Config {
	return m.config.Snapshot()
}

// Options returns the current aggregation options
func (m *Manager) Options() Options {
	return m.config.Snapshot().Aggregation
}

// Clusters implements endpoint.ConfigSource over the live configuration
func (m *Manager) Clusters() (map[string]endpoint.ClusterConfig, bool) {
	return m.config.Snapshot().Clusters()
}

// DefaultDocumentPath implements endpoint.ConfigSource
func (m *Manager) DefaultDocumentPath() string {
	return m.config.Snapshot().DefaultDocumentPath()
}

// OnChange returns a channel receiving every accepted configuration. The
// channel holds one pending update; a slow subscriber only sees the newest.
func (m *Manager) OnChange() <-chan Update {
	ch := make(chan Update, 1)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch
}

// Apply validates cfg and, if valid, makes it current and notifies
// subscribers. An invalid configuration is rejected and the current one kept.
func (m *Manager) Apply(cfg *Config, source string) error {
	if m.stopped.Load() {
		return errors.ErrShuttingDown
	}
	if err := m.config.Update(cfg); err != nil {
		m.logger.Error("Configuration rejected, keeping current", "source", source, "error", err)
		return err
	}

	m.logger.Info("Configuration updated",
		"source", source,
		"refresh_interval", cfg.Aggregation.RefreshInterval,
		"max_parallelism", cfg.Aggregation.MaxParallelism)
	m.notify(Update{Source: source, Config: cfg})
	return nil
}

func (m *Manager) notify(update Update) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped.Load() {
		return
	}
	for _, ch := range m.subscribers {
		// Replace a pending update rather than block
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- update:
		default:
		}
	}
}

// WatchFile polls the loader's file layers and reloads when any of them
// changes. Reload failures are logged and the current configuration is kept.
func (m *Manager) WatchFile(ctx context.Context, loader *Loader, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.track(cancel)

	stamps := fileStamps(loader.Layers())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current := fileStamps(loader.Layers())
			if sameStamps(stamps, current) {
				continue
			}
			stamps = current

			cfg, err := loader.Load()
			if err != nil {
				m.logger.Error("Configuration reload failed, keeping current", "error", err)
				continue
			}
			_ = m.Apply(cfg, SourceFile)
		}
	}()
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func fileStamps(paths []string) map[string]fileStamp {
	stamps := make(map[string]fileStamp, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			stamps[p] = fileStamp{modTime: info.ModTime(), size: info.Size()}
		}
	}
	return stamps
}

func sameStamps(a, b map[string]fileStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || !w.modTime.Equal(v.modTime) || w.size != v.size {
			return false
		}
	}
	return true
}

// KeyWatcher is the subset of jetstream.KeyValue used for KV hot reload
type KeyWatcher interface {
	Watch(ctx context.Context, keys string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error)
}

// WatchKV applies every value written to key as an overlay over the file
// layers. The current value, if any, is applied immediately.
func (m *Manager) WatchKV(ctx context.Context, kv KeyWatcher, key string, loader *Loader) error {
	ctx, cancel := context.WithCancel(ctx)

	watcher, err := kv.Watch(ctx, key)
	if err != nil {
		cancel()
		return errors.WrapTransient(err, "config", "WatchKV", "watch "+key)
	}
	m.track(cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { _ = watcher.Stop() }()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				cfg, err := loader.LoadOverlay(entry.Value())
				if err != nil {
					m.logger.Error("KV configuration rejected, keeping current",
						"key", entry.Key(), "revision", entry.Revision(), "error", err)
					continue
				}
				_ = m.Apply(cfg, SourceKV)
			}
		}
	}()
	return nil
}

// KeyPutter is the subset of jetstream.KeyValue used to publish configuration
type KeyPutter interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// PushToKV writes the aggregation options and clusters to key so other
// replicas can pick them up through WatchKV.
func (m *Manager) PushToKV(ctx context.Context, kv KeyPutter, key string) error {
	cfg := m.config.Snapshot()
	overlay := struct {
		Aggregation  Options      `json:"aggregation"`
		ReverseProxy *ProxyConfig `json:"reverse_proxy,omitempty"`
		Yarp         *ProxyConfig `json:"yarp,omitempty"`
	}{cfg.Aggregation, cfg.ReverseProxy, cfg.Yarp}

	data, err := json.Marshal(overlay)
	if err != nil {
		return errors.WrapInvalid(err, "config", "PushToKV", "encode configuration")
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "config", "PushToKV", "kv put")
	}
	return nil
}

func (m *Manager) track(cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()
}

// Stop ends all watchers, waits up to timeout for them and closes every
// subscriber channel
func (m *Manager) Stop(timeout time.Duration) error {
	if !m.stopped.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("Manager shutdown timeout", "timeout", timeout)
		err = errors.WrapTransient(errors.ErrConnectionTimeout, "config", "Stop", "wait for watchers")
	}

	m.mu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.mu.Unlock()

	return err
}
