package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ehl-ingestd/internal/config"
	"github.com/54b3r/ehl-ingestd/internal/extractor"
	"github.com/54b3r/ehl-ingestd/internal/logging"
	"github.com/54b3r/ehl-ingestd/internal/phash"
	"github.com/54b3r/ehl-ingestd/internal/platform"
	"github.com/54b3r/ehl-ingestd/internal/privacy"
	"github.com/54b3r/ehl-ingestd/internal/router"
	"github.com/54b3r/ehl-ingestd/internal/window"
)

// NewRunCmd constructs the `ehl-router run` command, which ticks the
// Capture Router loop on a fixed cadence until interrupted.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Capture Router tick loop",
		Long: `Run the Capture Router: on each tick, watch the single focused window,
decide whether it is worth extracting, redact sensitive content, and
forward it to the ingestion server.

Window enumeration and screenshotting are platform concerns; this command
wires in the no-op platform backend unless a platform-specific binary has
been linked in separately.

Examples:
  ehl-router run
  EHL_ROUTER_SOCKET=/tmp/custom.sock ehl-router run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			cfg := config.FromEnv()

			tracker := window.NewTracker(platform.NullSource{}, log)
			hashes := phash.NewTracker(cfg.ChangeDetector.HammingThreshold)

			registry := extractor.NewRegistry(cfg.Router.ChromeBundles, cfg.Router.AccessibilityBundles)
			dispatcher := extractor.NewDispatcher(registry, extractor.ExecRunner{}, extractor.DispatcherConfig{
				AccessibilityBin: cfg.Router.AccessibilityBin,
				OcrBin:           cfg.Router.OcrBin,
				MinInterval:      time.Duration(cfg.Router.MinExtractionIntervalSeconds) * time.Second,
				MaxSilence:       time.Duration(cfg.Router.MaxExtractionIntervalSeconds) * time.Second,
			})

			blocklist := privacy.NewBlocklist(nil, log)
			if err := blocklist.WatchFile(ctx, cfg.Privacy.BlocklistPath, loadBlocklistFile); err != nil {
				log.Warn("run: blocklist file watch failed, continuing with an empty configurable set", slog.Any("error", err))
			}

			client := router.NewClient(cfg.Router.SocketPath)

			redaction := privacy.RedactionConfig{
				RedactEmail: cfg.Privacy.RedactEmail,
				RedactPhone: cfg.Privacy.RedactPhone,
			}

			r := router.New(tracker, platform.NullCapturer{}, hashes, dispatcher, blocklist, client, redaction, log).
				WithMetrics(prometheus.DefaultRegisterer)

			log.Info("run: capture router starting",
				slog.String("socket", cfg.Router.SocketPath),
				slog.Int("interval_seconds", cfg.Router.IntervalACSeconds),
			)

			return tickLoop(ctx, r, time.Duration(cfg.Router.IntervalACSeconds)*time.Second, log)
		},
	}

	return cmd
}

// tickLoop runs r.Tick on a fixed cadence until ctx is cancelled.
func tickLoop(ctx context.Context, r *router.Router, interval time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run: shutting down")
			return nil
		case <-ticker.C:
			result := r.Tick(ctx)
			logTick(log, result)
		}
	}
}

func logTick(log *slog.Logger, result router.TickResult) {
	if result.Err != nil {
		log.Warn("run: tick error",
			slog.String("outcome", string(result.Outcome)),
			slog.String("window_id", result.WindowID),
			slog.Any("error", result.Err),
		)
		return
	}
	if result.Outcome == router.OutcomeSent {
		log.Info("run: capture sent",
			slog.String("window_id", result.WindowID),
			slog.String("action", string(result.Response.Action)),
			slog.String("document_id", result.Response.DocumentID),
		)
		return
	}
	log.Debug("run: tick", slog.String("outcome", string(result.Outcome)), slog.String("window_id", result.WindowID))
}

// loadBlocklistFile parses a newline-delimited glob file, skipping blank
// lines and "#"-prefixed comments.
func loadBlocklistFile(path string) ([]string, error) {
	return readLines(path)
}
