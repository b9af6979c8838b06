package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ehl-ingestd/internal/version"
)

// NewVersionCmd constructs the `ehl-router version` subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ehl-router version, git commit, and build date",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ehl-router %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.BuildDate)
		},
	}
}
