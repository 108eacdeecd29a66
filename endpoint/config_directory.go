package endpoint

import (
	"context"
	"log/slog"
	"sort"
)

// DestinationConfig is one configured proxy destination
type DestinationConfig struct {
	Address string `json:"address" yaml:"address"`
	Health  string `json:"health,omitempty" yaml:"health,omitempty"`
}

// ClusterConfig is one configured proxy cluster
type ClusterConfig struct {
	Destinations map[string]DestinationConfig `json:"destinations" yaml:"destinations"`
	Metadata     map[string]string            `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// FirstAddress returns the address of the first destination in name order
func (c ClusterConfig) FirstAddress() string {
	names := make([]string, 0, len(c.Destinations))
	for name := range c.Destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if addr := c.Destinations[name].Address; addr != "" {
			return addr
		}
	}
	return ""
}

// ConfigSource exposes the proxy cluster configuration to discovery.
// Clusters reports false when no cluster section is configured at all.
type ConfigSource interface {
	Clusters() (map[string]ClusterConfig, bool)
	DefaultDocumentPath() string
}

// ConfigDirectory discovers endpoints from static proxy configuration
type ConfigDirectory struct {
	source ConfigSource
	logger *slog.Logger
}

// NewConfigDirectory creates a directory over configured clusters
func NewConfigDirectory(source ConfigSource, logger *slog.Logger) *ConfigDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigDirectory{
		source: source,
		logger: logger.With("component", "config-directory"),
	}
}

// List implements Directory. Clusters are visited in ID order so merge
// precedence is stable across cycles.
func (d *ConfigDirectory) List(_ context.Context) []Descriptor {
	clusters, ok := d.source.Clusters()
	if !ok {
		d.logger.Warn("No clusters configuration found in reverseProxy.clusters or yarp.clusters")
		return []Descriptor{}
	}

	ids := make([]string, 0, len(clusters))
	for id := range clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defaultPath := d.source.DefaultDocumentPath()
	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		cluster := clusters[id]
		if !Enabled(cluster.Metadata) {
			continue
		}

		address := cluster.FirstAddress()
		if address == "" {
			d.logger.Warn("Cluster has no destinations configured", "cluster_id", id)
			continue
		}

		desc := FromMetadata(id, address, cluster.Metadata, defaultPath)
		docURL, err := desc.DocumentURL()
		if err != nil {
			d.logger.Warn("Invalid base address for cluster", "cluster_id", id, "address", address, "error", err)
			continue
		}

		d.logger.Debug("Discovered document endpoint", "cluster_id", id, "url", docURL)
		out = append(out, desc)
	}
	return out
}

// ListGroup implements Directory
func (d *ConfigDirectory) ListGroup(ctx context.Context, group string) []Descriptor {
	return Filter(d.List(ctx), group)
}
