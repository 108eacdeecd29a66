package endpoint

import (
	"context"
	"log/slog"
)

// DestinationState is the live view of one destination
type DestinationState struct {
	Name      string
	Address   string
	Available bool
}

// ClusterState is the live view of one routed cluster
type ClusterState struct {
	ID           string
	Metadata     map[string]string
	Destinations []DestinationState
}

// ClusterSource supplies live routing state, typically from the proxy engine
type ClusterSource interface {
	Clusters(ctx context.Context) []ClusterState
}

// StateDirectory discovers endpoints from live routing state. It prefers an
// available destination and falls back to the first configured one.
type StateDirectory struct {
	source      ClusterSource
	defaultPath func() string
	logger      *slog.Logger
}

// NewStateDirectory creates a directory over live cluster state
func NewStateDirectory(source ClusterSource, defaultPath func() string, logger *slog.Logger) *StateDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateDirectory{
		source:      source,
		defaultPath: defaultPath,
		logger:      logger.With("component", "state-directory"),
	}
}

// List implements Directory
func (d *StateDirectory) List(ctx context.Context) []Descriptor {
	defaultPath := d.defaultPath()
	out := []Descriptor{}

	for _, cluster := range d.source.Clusters(ctx) {
		if !Enabled(cluster.Metadata) {
			continue
		}

		address := ""
		for _, dest := range cluster.Destinations {
			if dest.Available && dest.Address != "" {
				address = dest.Address
				break
			}
		}
		if address == "" {
			if len(cluster.Destinations) == 0 {
				d.logger.Warn("Cluster has no destinations configured", "cluster_id", cluster.ID)
				continue
			}
			address = cluster.Destinations[0].Address
			if address == "" {
				continue
			}
			d.logger.Warn("Cluster has no available destinations, using configured address",
				"cluster_id", cluster.ID, "address", address)
		}

		desc := FromMetadata(cluster.ID, address, cluster.Metadata, defaultPath)
		if _, err := desc.DocumentURL(); err != nil {
			d.logger.Warn("Invalid base address for cluster", "cluster_id", cluster.ID, "address", address, "error", err)
			continue
		}
		out = append(out, desc)
	}
	return out
}

// ListGroup implements Directory
func (d *StateDirectory) ListGroup(ctx context.Context, group string) []Descriptor {
	return Filter(d.List(ctx), group)
}
