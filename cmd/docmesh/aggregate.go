package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/docmesh/aggregator"
	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/document"
	"github.com/c360/docmesh/endpoint"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/telemetry"
)

// aggregateOptions holds the aggregate sub-command flags
type aggregateOptions struct {
	Format string
	Output string
	Strict bool
}

func newAggregateCmd(flags *globalFlags) *cobra.Command {
	opts := aggregateOptions{}

	cmd := &cobra.Command{
		Use:   "aggregate [group]",
		Short: "Aggregate one group once and print the merged document",
		Long: `Aggregate fetches every document of a group, merges them and writes the
result. Without a group the discovered group names are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := ""
			if len(args) == 1 {
				group = args[0]
			}
			return runAggregate(cmd.Context(), flags, group, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Format, "format", "f", "json", "Output format: json, yaml")
	f.StringVarP(&opts.Output, "output", "o", "", "Write the document to this file instead of stdout")
	f.BoolVar(&opts.Strict, "strict", false, "Fail when any endpoint of the group could not be loaded")
	return cmd
}

func runAggregate(ctx context.Context, flags *globalFlags, group string, opts aggregateOptions, out, logOut io.Writer) error {
	format := strings.ToLower(opts.Format)
	if format != "json" && format != "yaml" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "main", "runAggregate", "format "+opts.Format)
	}

	cfg, _, err := flags.loadConfig()
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout carries only the document
	logger := setupLogger(logOut, cfg.Log.Level, cfg.Log.Format)

	manager, err := config.NewManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	defer func() { _ = manager.Stop(time.Second) }()

	chain, err := buildPipeline(manager, telemetry.Noop{}, logger)
	if err != nil {
		return err
	}

	if group == "" {
		for _, name := range endpoint.GroupNames(chain.directory.List(ctx)) {
			_, _ = fmt.Fprintln(out, name)
		}
		return nil
	}

	endpoints := chain.directory.ListGroup(ctx, group)
	if len(endpoints) == 0 {
		return errors.WrapInvalid(errors.ErrNoEndpoints, "main", "runAggregate", "find endpoints for "+group)
	}

	doc, outcome, err := chain.aggregator.AggregateOutcome(ctx, aggregator.Request{
		Group:     group,
		Endpoints: endpoints,
		Options:   cfg.Aggregation.MergeOptions(),
	})
	if err != nil {
		return err
	}
	logger.Info("Group aggregated",
		"group", group,
		"attempted", outcome.Attempted,
		"succeeded", outcome.Succeeded,
		"duration_ms", outcome.Duration.Milliseconds())

	data, err := encodeDocument(doc, format)
	if err != nil {
		return err
	}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return errors.Wrap(err, "main", "runAggregate", "write "+opts.Output)
		}
	} else if _, err := out.Write(data); err != nil {
		return err
	}

	if opts.Strict && outcome.Failed() > 0 {
		return fmt.Errorf("%d of %d endpoints in %s failed to load", outcome.Failed(), outcome.Attempted, group)
	}
	return nil
}

func encodeDocument(doc *document.Document, format string) ([]byte, error) {
	if format == "yaml" {
		return document.ToYAML(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.WrapInvalid(err, "main", "encodeDocument", "encode document")
	}
	return append(data, '\n'), nil
}
