package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360/docmesh/endpoint"
)

func newValidateCmd(flags *globalFlags) *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.Context(), flags, printConfig, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&printConfig, "print", false, "Print the effective configuration with secrets redacted")
	return cmd
}

func runValidate(ctx context.Context, flags *globalFlags, printConfig bool, out io.Writer) error {
	cfg, loader, err := flags.loadConfig()
	if err != nil {
		return err
	}

	clusters, _ := cfg.Clusters()
	enabled := 0
	for _, cluster := range clusters {
		if endpoint.Enabled(cluster.Metadata) {
			enabled++
		}
	}
	groups := endpoint.GroupNames(endpoint.NewConfigDirectory(cfg, setupLogger(io.Discard, "error", "text")).List(ctx))

	layers := loader.Layers()
	if len(layers) == 0 {
		layers = []string{"(defaults)"}
	}

	_, _ = fmt.Fprintln(out, "Configuration is valid")
	_, _ = fmt.Fprintf(out, "  layers:     %s\n", strings.Join(layers, ", "))
	_, _ = fmt.Fprintf(out, "  clusters:   %d (%d enabled)\n", len(clusters), enabled)
	_, _ = fmt.Fprintf(out, "  groups:     %s\n", strings.Join(groups, ", "))
	_, _ = fmt.Fprintf(out, "  store:      %s\n", cfg.Store.Mode)
	_, _ = fmt.Fprintf(out, "  discovery:  %s\n", cfg.Discovery.Mode)
	_, _ = fmt.Fprintf(out, "  refresh:    %s\n", cfg.Aggregation.RefreshInterval)

	if printConfig {
		_, _ = fmt.Fprintln(out, cfg.String())
	}
	return nil
}
