// Package cmd provides the CLI commands for kbindexd.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kbforge/kbindexd/pkg/version"
)

var configPath string

// NewRootCmd creates the root command for the kbindexd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbindexd",
		Short: "Per-tenant knowledge base indexing service",
		Long: `kbindexd keeps tenant knowledge bases in sync with their registered
data sources. It periodically loads each source, splits the content
into passages, embeds them and writes the vectors into a per-tenant
collection in the vector store.

Run 'kbindexd serve' to start the service, or 'kbindexd run' for a
single indexing pass.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("kbindexd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", configPath,
		"Path to the YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSourceCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
