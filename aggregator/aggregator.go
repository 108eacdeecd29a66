// Package aggregator builds one group's document: every endpoint is fetched
// and transformed concurrently, then the results are merged in input order
// under an overall deadline.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/loader"
	"github.com/c360/docmesh/merge"
	"github.com/c360/docmesh/telemetry"
	"github.com/c360/docmesh/transform"
)

// DefaultTimeout bounds one aggregation when no timeout source is configured
const DefaultTimeout = 2 * time.Minute

// Request describes one aggregation
type Request struct {
	Group     string
	Endpoints []endpoint.Descriptor
	Options   merge.Options
}

// Config wires an Aggregator
type Config struct {
	Loader   loader.Loader
	Pipeline *transform.Pipeline
	Merger   merge.Merger
	// Timeout is read per aggregation so hot-reloaded options apply.
	Timeout func() time.Duration
	Sink    telemetry.Sink
	Logger  *slog.Logger
}

// Aggregator runs load, transform and merge for a group
type Aggregator struct {
	loader   loader.Loader
	pipeline *transform.Pipeline
	merger   merge.Merger
	timeout  func() time.Duration
	sink     telemetry.Sink
	logger   *slog.Logger
}

// New creates an aggregator
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		loader:   cfg.Loader,
		pipeline: cfg.Pipeline,
		merger:   cfg.Merger,
		timeout:  cfg.Timeout,
		sink:     telemetry.OrNoop(cfg.Sink),
		logger:   cfg.Logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "aggregator")
	if a.pipeline == nil {
		a.pipeline = transform.Default(a.logger)
	}
	if a.merger == nil {
		a.merger = merge.New(a.logger)
	}
	if a.timeout == nil {
		a.timeout = func() time.Duration { return DefaultTimeout }
	}
	return a
}

// Outcome summarizes one aggregation attempt
type Outcome struct {
	Attempted int
	Succeeded int
	Duration  time.Duration
}

// Failed returns the number of endpoints that did not load
func (o Outcome) Failed() int { return o.Attempted - o.Succeeded }

// Aggregate loads every endpoint of req concurrently and merges the results.
// Individual endpoint failures are recorded in the merged document. The
// whole attempt fails with ErrAggregationTimeout when the deadline passes,
// or with the caller's context error when ctx ends first.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*document.Document, error) {
	doc, _, err := a.AggregateOutcome(ctx, req)
	return doc, err
}

// AggregateOutcome is Aggregate that also reports how many endpoints loaded
func (a *Aggregator) AggregateOutcome(ctx context.Context, req Request) (*document.Document, Outcome, error) {
	start := time.Now()
	outcome := Outcome{Attempted: len(req.Endpoints)}
	timeout := a.timeout()

	aggCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]loader.Result, len(req.Endpoints))
	var g errgroup.Group
	for i, ep := range req.Endpoints {
		g.Go(func() error {
			results[i] = a.loadAndTransform(aggCtx, req.Group, ep)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-aggCtx.Done():
	}

	if aggCtx.Err() != nil {
		outcome.Duration = time.Since(start)
		if ctx.Err() != nil {
			return nil, outcome, errors.Wrap(ctx.Err(), "Aggregator", "Aggregate", fmt.Sprintf("aggregate group %s", req.Group))
		}
		a.logger.Warn("Aggregation timed out", "group", req.Group, "timeout", timeout)
		a.sink.AggregationCompleted(req.Group, telemetry.ResultAggregationTimeout, len(req.Endpoints), 0, time.Since(start))
		return nil, outcome, errors.WrapTransient(
			fmt.Errorf("group %s after %s: %w", req.Group, timeout, errors.ErrAggregationTimeout),
			"Aggregator", "Aggregate", "aggregation deadline")
	}

	succeeded := 0
	for _, r := range results {
		if r.Success() {
			succeeded++
		}
	}
	a.logger.Debug("Loaded documents",
		"group", req.Group,
		"succeeded", succeeded,
		"attempted", len(results))

	merged := a.merger.Merge(req.Group, results, req.Options)

	result := telemetry.ResultSuccess
	switch {
	case len(results) > 0 && succeeded == 0:
		result = telemetry.ResultFailure
	case succeeded < len(results):
		result = telemetry.ResultPartial
	}
	outcome.Succeeded = succeeded
	outcome.Duration = time.Since(start)
	a.sink.AggregationCompleted(req.Group, result, len(results), succeeded, outcome.Duration)
	return merged, outcome, nil
}

func (a *Aggregator) loadAndTransform(ctx context.Context, group string, ep endpoint.Descriptor) loader.Result {
	res := a.loader.Load(ctx, ep)
	if !res.Success() {
		return res
	}
	res.Document = a.pipeline.Apply(ctx, res.Document, transform.Context{Group: group, Endpoint: ep})
	return res
}
