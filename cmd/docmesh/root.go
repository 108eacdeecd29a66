package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Aggregate the OpenAPI documents behind a reverse proxy",
		Long: `docmesh discovers the services configured behind a reverse proxy,
fetches their OpenAPI documents, merges them per group and serves the
merged documents together with a documentation UI.`,
		Version:       Version + " (" + BuildTime + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return flags.validate()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringSliceVarP(&flags.ConfigPaths, "config", "c", getEnvList("DOCMESH_CONFIG"),
		"Configuration files, later layers override earlier ones (env: DOCMESH_CONFIG)")
	pf.StringVar(&flags.LogLevel, "log-level", getEnv("DOCMESH_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: DOCMESH_LOG_LEVEL)")
	pf.StringVar(&flags.LogFormat, "log-format", getEnv("DOCMESH_LOG_FORMAT", ""),
		"Log format: json, text (env: DOCMESH_LOG_FORMAT)")
	pf.BoolVar(&flags.Debug, "debug", getEnvBool("DOCMESH_DEBUG", false),
		"Enable debug logging (env: DOCMESH_DEBUG)")

	cmd.AddCommand(
		newServeCmd(flags),
		newValidateCmd(flags),
		newAggregateCmd(flags),
	)
	return cmd
}
