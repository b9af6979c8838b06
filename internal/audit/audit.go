// Package audit provides a structured audit logger for CLI command invocations.
// It logs command name, resolved configuration, and operational environment
// state so operators can trace what happened and what was enabled.
//
// This system has no API keys or remote credentials, so nothing here is
// redacted to presence/absence the way the original tool's env-var secrets
// were; the shape is kept for operational parity with the rest of the CLI.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and the operational
// env vars relevant to that command (socket/db paths, tuning knobs).
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	for _, key := range auditKeys {
		attrs = append(attrs, slog.String(key, valOrUnset(os.Getenv(key))))
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// auditKeys is the ordered list of env vars included in every audit log
// entry. None of these are secret: this system has no API keys.
var auditKeys = []string{
	"EHL_SERVER_SOCKET",
	"EHL_SERVER_DB",
	"EHL_SERVER_METRICS_ADDR",
	"EHL_ROUTER_SOCKET",
	"EHL_ROUTER_DISABLE_ACCESSIBILITY",
	"EHL_ROUTER_DISABLE_OCR",
	"EHL_CHANGE_DETECTOR_THRESHOLD",
	"EHL_PRIVACY_BLOCKLIST",
	"EHL_CHUNKER_MAX_TOKENS",
	"EHL_DEDUP_MAX_ENTRIES",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
