// Package commands defines all Cobra CLI commands for the ehl-router binary.
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
		Use:   "ehl-router",
		Short: "ehl-router — the Capture Router tick loop",
		Long: `ehl-router watches the single focused window, decides whether it is worth
extracting, redacts sensitive content, and forwards it to the ingestion
server over a Unix domain socket.

Configuration is layered: defaults, then a YAML file, then environment
variables (env always wins). See 'ehl-router --help' for available
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
		NewRunCmd(),
		NewBlockAppCmd(),
		NewVersionCmd(),
	)

	return root
}
