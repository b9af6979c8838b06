package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ehl-ingestd/internal/chunker"
	"github.com/54b3r/ehl-ingestd/internal/config"
	"github.com/54b3r/ehl-ingestd/internal/dedup"
	"github.com/54b3r/ehl-ingestd/internal/ingestserver"
	"github.com/54b3r/ehl-ingestd/internal/logging"
	"github.com/54b3r/ehl-ingestd/internal/storage"
)

// NewServeCmd constructs the `ehl-ingestd serve` command, which opens the
// SQLite store, starts the Unix socket listener, and serves the auxiliary
// /metrics, /healthz, /readyz HTTP endpoints until interrupted.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion server",
		Long: `Run the ingestion server: a Unix domain socket listener that accepts
newline-delimited JSON capture payloads from the Capture Router, chunks and
deduplicates their content, and persists them to SQLite.

Examples:
  ehl-ingestd serve
  EHL_SERVER_SOCKET=/tmp/custom.sock ehl-ingestd serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			cfg := config.FromEnv()

			store, err := storage.Open(cfg.Server.DBPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open store: %w", err)
			}
			defer store.Close()

			cache := dedup.New(dedup.Config{
				MaxEntries: cfg.DedupCache.MaxEntries,
				TTL:        time.Duration(cfg.DedupCache.TTLSeconds) * time.Second,
			})

			srv := ingestserver.New(ingestserver.Config{
				SocketPath: cfg.Server.SocketPath,
				ChunkerConfig: chunker.Config{
					MaxTokens:     cfg.Chunker.MaxTokens,
					OverlapTokens: cfg.Chunker.OverlapTokens,
				},
			}, store, cache, log).WithMetrics(prometheus.DefaultRegisterer)

			errCh := make(chan error, 2)

			go func() {
				errCh <- srv.Start(ctx)
			}()

			if cfg.Server.MetricsAddr != "" {
				go func() {
					errCh <- srv.ServeMetrics(ctx, cfg.Server.MetricsAddr)
				}()
				log.Info("serve: metrics listener enabled", slog.String("addr", cfg.Server.MetricsAddr))
			}

			log.Info("serve: ingestion server starting", slog.String("socket", cfg.Server.SocketPath), slog.String("db", cfg.Server.DBPath))

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			case <-ctx.Done():
			}

			return nil
		},
	}

	return cmd
}
