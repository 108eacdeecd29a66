package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/gateway"
	"github.com/c360/docmesh/health"
	"github.com/c360/docmesh/merge"
	"github.com/c360/docmesh/metric"
	"github.com/c360/docmesh/natsclient"
	"github.com/c360/docmesh/pkg/resilience"
	"github.com/c360/docmesh/scheduler"
	"github.com/c360/docmesh/telemetry"
)

// serveOptions holds the serve sub-command flags
type serveOptions struct {
	Addr          string
	WatchInterval time.Duration
	PushConfig    bool
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and serve the merged documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Addr, "addr", getEnv("DOCMESH_ADDR", ""),
		"Listen address, overrides server.addr (env: DOCMESH_ADDR)")
	f.DurationVar(&opts.WatchInterval, "watch-interval", getEnvDuration("DOCMESH_WATCH_INTERVAL", 5*time.Second),
		"Configuration file poll interval, 0 disables (env: DOCMESH_WATCH_INTERVAL)")
	f.BoolVar(&opts.PushConfig, "push-config", getEnvBool("DOCMESH_PUSH_CONFIG", false),
		"Publish the loaded configuration to the shared NATS key on start (env: DOCMESH_PUSH_CONFIG)")
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, opts serveOptions) error {
	cfg, loader, err := flags.loadConfig()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	logger := setupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	slog.Info("Starting docmesh",
		"version", Version,
		"build_time", BuildTime,
		"config_layers", loader.Layers(),
		"store", cfg.Store.Mode,
		"discovery", cfg.Discovery.Mode)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, err := config.NewManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	defer func() { _ = manager.Stop(5 * time.Second) }()

	registry := metric.NewMetricsRegistry()
	sink := telemetry.NewPrometheus(registry)
	monitor := health.NewMonitor()

	var natsClient *natsclient.Client
	if cfg.NATS.URL != "" {
		natsClient, err = setupNATS(ctx, cfg.NATS, monitor, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = natsClient.Close(closeCtx)
		}()
	}

	store, err := setupStore(ctx, cfg.Store, natsClient, registry, logger)
	if err != nil {
		return err
	}

	if natsClient != nil {
		if err := setupConfigWatch(ctx, manager, loader, natsClient, opts.PushConfig, logger); err != nil {
			// Local configuration keeps working without the shared key
			logger.Warn("Shared configuration unavailable", "error", err)
		}
	}
	if opts.WatchInterval > 0 && len(loader.Layers()) > 0 {
		manager.WatchFile(ctx, loader, opts.WatchInterval)
	}

	chain, err := buildPipeline(manager, sink, logger)
	if err != nil {
		return err
	}
	go chain.client.Recycle(ctx)
	go followRetries(ctx, manager.OnChange(), chain.client)

	sched, err := scheduler.New(scheduler.Config{
		Directory:  chain.directory,
		Aggregator: chain.aggregator,
		Store:      store,
		Options:    manager.Options,
		Changes:    manager.OnChange(),
		Sink:       sink,
		Health:     monitor,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	provider := gateway.NewProvider(gateway.ProviderConfig{
		Store:      store,
		Directory:  chain.directory,
		Aggregator: chain.aggregator,
		Options:    func() merge.Options { return manager.Options().MergeOptions() },
		Sink:       sink,
		Logger:     logger,
	})
	handler := gateway.NewHandler(gateway.HandlerConfig{
		Provider:       provider,
		Directory:      chain.directory,
		Health:         monitor,
		Metrics:        registry,
		Refresher:      sched,
		RefreshLimiter: refreshLimiter(cfg.Server),
		Ready:          func() bool { _, ok := sched.LastReport(); return ok },
		SystemName:     appName,
		EnableUI:       cfg.Server.EnableUI,
		Logger:         logger,
	})

	server := gateway.NewServer(serverConfig(cfg), handler, logger)
	if err := server.Start(); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		_ = server.Shutdown(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}

	slog.Info("docmesh started", "addr", server.Addr())
	<-ctx.Done()
	slog.Info("Received shutdown signal")

	return shutdown(server, sched, cfg.Server.ShutdownTimeout)
}

// serverConfig stretches the write timeout so an on-demand aggregation can
// finish inside a document request.
func serverConfig(cfg *config.Config) config.ServerConfig {
	server := cfg.Server
	if minWrite := cfg.Aggregation.AggregationTimeout + 5*time.Second; server.WriteTimeout < minWrite {
		server.WriteTimeout = minWrite
	}
	return server
}

func refreshLimiter(cfg config.ServerConfig) *rate.Limiter {
	if cfg.RefreshRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RefreshRate), cfg.RefreshBurst)
}

// followRetries keeps the client's retry count in step with configuration
func followRetries(ctx context.Context, updates <-chan config.Update, client *resilience.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			client.SetRetries(update.Config.Aggregation.MaxRetryAttempts)
		}
	}
}

// shutdown stops accepting requests first, then lets the scheduler finish
// the group it is working on.
func shutdown(server *gateway.Server, sched *scheduler.Scheduler, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverErr := server.Shutdown(ctx)
	schedErr := sched.Stop(timeout)
	if err := stderrors.Join(serverErr, schedErr); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("docmesh stopped")
	return nil
}
