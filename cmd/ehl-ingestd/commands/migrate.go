package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ehl-ingestd/internal/config"
	"github.com/54b3r/ehl-ingestd/internal/logging"
	"github.com/54b3r/ehl-ingestd/internal/storage"
)

// NewMigrateCmd constructs the `ehl-ingestd migrate` command. Opening the
// store runs its migrate-on-open schema creation, so this command exists to
// let operators provision the database file ahead of the first `serve`
// without starting the socket listener.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or verify the SQLite schema",
		Long: `Open the configured SQLite database and run its schema migration.
This is idempotent: it creates tables only if they do not already exist,
so it is safe to run against an existing database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			cfg := config.FromEnv()

			store, err := storage.Open(cfg.Server.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer store.Close()

			log.Info("migrate: schema verified", slog.String("db", cfg.Server.DBPath))
			return nil
		},
	}
}
