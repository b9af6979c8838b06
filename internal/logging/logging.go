// Package logging provides a structured logger built on [log/slog].
// It is configured once at startup via [New] and distributed through
// context values using [WithLogger] / [FromContext].
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// connIDKey and tickIDKey let the ingestion server and the router attach a
// per-connection or per-tick identifier to every log line pulled from
// context, without threading it through every call signature.
type connIDKey struct{}
type tickIDKey struct{}

// New constructs a [*slog.Logger] from environment variables.
// LOG_FORMAT selects the handler (json for production, text for local dev).
// LOG_LEVEL sets the minimum severity level.
func New() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the [*slog.Logger] stored in ctx.
// If no logger is present it returns [slog.Default] so callers never
// need to nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithConnID returns a copy of ctx whose FromContext logger has a "conn_id"
// attribute attached, so every log line written while handling a single
// ingestion socket connection can be correlated back to it.
func WithConnID(ctx context.Context, connID uint64) context.Context {
	ctx = context.WithValue(ctx, connIDKey{}, connID)
	return WithLogger(ctx, FromContext(ctx).With(slog.Uint64("conn_id", connID)))
}

// WithTickID returns a copy of ctx whose FromContext logger has a "tick_id"
// attribute attached, so every log line written during one router Tick can
// be correlated back to it.
func WithTickID(ctx context.Context, tickID uint64) context.Context {
	ctx = context.WithValue(ctx, tickIDKey{}, tickID)
	return WithLogger(ctx, FromContext(ctx).With(slog.Uint64("tick_id", tickID)))
}

// ConnID returns the connection identifier attached by WithConnID, if any.
func ConnID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(connIDKey{}).(uint64)
	return id, ok
}

// TickID returns the tick identifier attached by WithTickID, if any.
func TickID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(tickIDKey{}).(uint64)
	return id, ok
}

// parseLevel converts a string to a [slog.Level], defaulting to Info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
