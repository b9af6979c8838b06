// Package commands defines all Cobra CLI commands for the ehl-ingestd binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/ehl-ingestd/internal/audit"
	"github.com/54b3r/ehl-ingestd/internal/config"
	"github.com/54b3r/ehl-ingestd/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ehl-ingestd",
		Short: "ehl-ingestd — the content ingestion and deduplication daemon",
		Long: `ehl-ingestd accepts capture payloads from the Capture Router over a Unix
domain socket, chunks and deduplicates their content, and persists them to
a local SQLite store.

Configuration is layered: defaults, then a YAML file, then environment
variables (env always wins). See 'ehl-ingestd --help' for available
commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ehl/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewMigrateCmd(),
		NewVersionCmd(),
	)

	return root
}
