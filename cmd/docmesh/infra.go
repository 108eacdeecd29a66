package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/docstore"
	"github.com/c360/docmesh/health"
	"github.com/c360/docmesh/metric"
	"github.com/c360/docmesh/natsclient"
)

const natsHealthComponent = "nats"

// setupNATS creates the NATS client from configuration and reports its
// connection status to the health monitor.
func setupNATS(ctx context.Context, cfg config.NATSConfig, monitor *health.Monitor, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(cfg.Name),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithStatusCallback(func(status natsclient.ConnectionStatus) {
			switch status {
			case natsclient.StatusConnected:
				monitor.UpdateHealthy(natsHealthComponent, "Connected")
			case natsclient.StatusClosed:
				monitor.UpdateUnhealthy(natsHealthComponent, "Connection closed")
			default:
				monitor.UpdateDegraded(natsHealthComponent, status.String())
			}
		}),
	}
	switch {
	case cfg.CredsFile != "":
		opts = append(opts, natsclient.WithCredsFile(cfg.CredsFile))
	case cfg.Token != "":
		opts = append(opts, natsclient.WithToken(cfg.Token))
	case cfg.Username != "":
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	if err := connectToNATS(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func connectToNATS(ctx context.Context, natsClient *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", natsClient.URL())
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}

// setupStore builds the document store for the configured mode. The memory
// store always backs reads; in kv mode it is warmed from and written through
// to a JetStream key-value bucket.
func setupStore(
	ctx context.Context,
	cfg config.StoreConfig,
	natsClient *natsclient.Client,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (docstore.Store, error) {
	memory := docstore.NewMemory()
	if err := docstore.RegisterMetrics(registry, memory.Stats()); err != nil {
		return nil, fmt.Errorf("register store metrics: %w", err)
	}

	if cfg.Mode != config.StoreModeKV {
		return memory, nil
	}
	if natsClient == nil {
		return nil, fmt.Errorf("store mode %s requires a NATS connection", cfg.Mode)
	}

	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "docmesh merged documents",
		History:     cfg.History,
	})
	if err != nil {
		return nil, fmt.Errorf("open document bucket %s: %w", cfg.Bucket, err)
	}

	store := docstore.NewKVStore(bucket, memory, logger)
	if err := store.Warm(ctx); err != nil {
		// A cold cache only delays the first reads until the next refresh
		logger.Warn("Document store warm-up failed", "bucket", cfg.Bucket, "error", err)
	}
	return store, nil
}

// setupConfigWatch follows the shared configuration key. When push is set
// the local configuration is published first so other replicas converge on it.
func setupConfigWatch(
	ctx context.Context,
	manager *config.Manager,
	loader *config.Loader,
	natsClient *natsclient.Client,
	push bool,
	logger *slog.Logger,
) error {
	cfg := manager.Config().NATS
	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.ConfigBucket,
		Description: "docmesh shared configuration",
	})
	if err != nil {
		return fmt.Errorf("open config bucket %s: %w", cfg.ConfigBucket, err)
	}

	if push {
		if err := manager.PushToKV(ctx, bucket, cfg.ConfigKey); err != nil {
			return fmt.Errorf("publish configuration: %w", err)
		}
		logger.Info("Published configuration", "bucket", cfg.ConfigBucket, "key", cfg.ConfigKey)
	}

	if err := manager.WatchKV(ctx, bucket, cfg.ConfigKey, loader); err != nil {
		return fmt.Errorf("watch configuration: %w", err)
	}
	return nil
}
