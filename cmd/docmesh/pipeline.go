package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360/docmesh/aggregator"
	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/loader"
	"github.com/c360/docmesh/merge"
	"github.com/c360/docmesh/pkg/resilience"
	"github.com/c360/docmesh/telemetry"
	"github.com/c360/docmesh/transform"
)

// pipeline is the fetch, transform and merge chain shared by serve and aggregate
type pipeline struct {
	client     *resilience.Client
	directory  endpoint.Directory
	aggregator *aggregator.Aggregator
}

// buildPipeline wires the resilient client, the document loader, the
// aggregator and the endpoint directory. Every tunable is read from the
// manager so hot-reloaded options apply on the next use.
func buildPipeline(manager *config.Manager, sink telemetry.Sink, logger *slog.Logger) (*pipeline, error) {
	cfg := manager.Config()

	clientOpts, err := cfg.ClientOptions()
	if err != nil {
		return nil, fmt.Errorf("upstream TLS: %w", err)
	}
	clientOpts.Logger = logger
	clientOpts.Breaker.OnStateChange = func(destination string, _, to gobreaker.State) {
		sink.BreakerStateChanged(destination, to)
	}
	client := resilience.NewClient(clientOpts)

	loaderCfg := loader.Config{
		Client: client.Client,
		Limits: func() loader.Limits { return manager.Options().Limits() },
		Sink:   sink,
		Logger: logger,
	}
	if len(cfg.TokenClients) > 0 {
		loaderCfg.Tokens = loader.NewClientCredentials(cfg.TokenClients, client.Client)
	}

	agg := aggregator.New(aggregator.Config{
		Loader:   loader.NewHTTPLoader(loaderCfg),
		Pipeline: transform.Default(logger),
		Merger:   merge.New(logger),
		Timeout:  func() time.Duration { return manager.Options().AggregationTimeout },
		Sink:     sink,
		Logger:   logger,
	})

	var directory endpoint.Directory
	switch cfg.Discovery.Mode {
	case config.DiscoveryModeDial:
		dialer := endpoint.NewDialSource(manager, cfg.Discovery.DialTimeout)
		directory = endpoint.NewStateDirectory(dialer, manager.DefaultDocumentPath, logger)
	case config.DiscoveryModeConfig, "":
		directory = endpoint.NewConfigDirectory(manager, logger)
	default:
		return nil, fmt.Errorf("unknown discovery mode: %s", cfg.Discovery.Mode)
	}

	return &pipeline{client: client, directory: directory, aggregator: agg}, nil
}
