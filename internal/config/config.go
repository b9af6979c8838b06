// Package config provides YAML-based configuration for the ehl-ingestd
// server and ehl-router client. Configuration is loaded with a layered
// precedence: defaults → YAML file → env vars. Environment variables always
// win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. EHL_CONFIG environment variable
//  3. ~/.ehl/config.yaml
//  4. ./ehl.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Server configures the ingestion server.
	Server ServerConfig `yaml:"server"`

	// Router configures the capture router's tick cadence and debounce.
	Router RouterConfig `yaml:"router"`

	// ChangeDetector configures perceptual-hash visual-change detection.
	ChangeDetector ChangeDetectorConfig `yaml:"change_detector"`

	// Privacy configures the blocklist and PII redaction.
	Privacy PrivacyConfig `yaml:"privacy"`

	// Chunker configures word/tabular chunking.
	Chunker ChunkerConfig `yaml:"chunker"`

	// DedupCache configures the in-memory dedup cache.
	DedupCache DedupCacheConfig `yaml:"dedup_cache"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds ingestion server settings.
type ServerConfig struct {
	// SocketPath is the Unix domain socket the server listens on.
	SocketPath string `yaml:"socket_path"`
	// DBPath is the SQLite database file path.
	DBPath string `yaml:"db_path"`
	// MetricsAddr is the loopback HTTP address serving /metrics, /healthz,
	// /readyz. Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`
	// RequestTimeoutSeconds is loaded and mapped to its env var, but the
	// ingestion server does not read it: connection inactivity is bounded
	// by a fixed 5s timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// RouterConfig holds capture router cadence settings.
type RouterConfig struct {
	// SocketPath is the ingestion server socket the router dials.
	SocketPath string `yaml:"socket_path"`
	// IntervalACSeconds is the tick cadence while on AC power.
	IntervalACSeconds int `yaml:"interval_ac_seconds"`
	// IntervalBatterySeconds is the configured tick cadence for battery
	// power. The router does not read it: `ehl-router run` always ticks at
	// IntervalACSeconds and does not detect the power source.
	IntervalBatterySeconds int `yaml:"interval_battery_seconds"`
	// IntervalIdleSeconds is the configured tick cadence for an idle user.
	// The router does not read it and does not detect idleness.
	IntervalIdleSeconds int `yaml:"interval_idle_seconds"`
	// MinExtractionIntervalSeconds bounds how often a single window may be
	// re-extracted absent a focus-change trigger.
	MinExtractionIntervalSeconds int `yaml:"min_extraction_interval_seconds"`
	// MaxExtractionIntervalSeconds forces a re-extraction after this long
	// even with no detected visual change.
	MaxExtractionIntervalSeconds int `yaml:"max_extraction_interval_seconds"`
	// DisableAccessibility is loaded and mapped to its env var, but the
	// router does not read it; the accessibility extractor stays in use.
	DisableAccessibility bool `yaml:"disable_accessibility"`
	// DisableOCR is loaded and mapped to its env var, but the router does
	// not read it; the OCR extractor stays in use.
	DisableOCR bool `yaml:"disable_ocr"`
	// AccessibilityBin is the path to the accessibility-tree extractor child
	// process binary.
	AccessibilityBin string `yaml:"accessibility_bin"`
	// OcrBin is the path to the OCR extractor child process binary.
	OcrBin string `yaml:"ocr_bin"`
	// ChromeBundles are bundle ids classified as browser windows, which are
	// pushed to by the extension relay rather than pulled from.
	ChromeBundles []string `yaml:"chrome_bundles"`
	// AccessibilityBundles are bundle ids classified for the accessibility
	// extractor. Anything in neither set falls back to OCR.
	AccessibilityBundles []string `yaml:"accessibility_bundles"`
}

// ChangeDetectorConfig holds perceptual-hash settings.
type ChangeDetectorConfig struct {
	// HammingThreshold is the minimum Hamming distance between aHash values
	// considered a visual change, 0..64. Default 8.
	HammingThreshold int `yaml:"hamming_threshold"`
}

// PrivacyConfig holds blocklist and redaction settings.
type PrivacyConfig struct {
	// BlocklistPath is a file of newline-delimited glob patterns,
	// hot-reloaded while the router runs.
	BlocklistPath string `yaml:"blocklist_path"`
	// RedactEmail enables email-address redaction (off by default).
	RedactEmail bool `yaml:"redact_email"`
	// RedactPhone enables phone-number redaction (off by default).
	RedactPhone bool `yaml:"redact_phone"`
}

// ChunkerConfig holds chunking settings.
type ChunkerConfig struct {
	// MaxTokens is the maximum words per chunk. Default 1024.
	MaxTokens int `yaml:"max_tokens"`
	// OverlapTokens is the overlap, in words, between consecutive chunks.
	// Default 100.
	OverlapTokens int `yaml:"overlap_tokens"`
	// OCROverlapThreshold is the fraction (0..1) of a candidate OCR line's
	// tokens that may already exist before the line is considered stale.
	// Default 0.80. internal/ocrdiff does not read this setting; its
	// threshold is a fixed 0.80.
	OCROverlapThreshold float64 `yaml:"ocr_overlap_threshold"`
}

// DedupCacheConfig holds in-memory dedup cache sizing.
type DedupCacheConfig struct {
	// MaxEntries bounds the cache size. Default 10000.
	MaxEntries int `yaml:"max_entries"`
	// TTLSeconds is the entry lifetime. Default 86400 (24h).
	TTLSeconds int `yaml:"ttl_seconds"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars already set are never
// overridden.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EHL_SERVER_SOCKET", func(c *Config) string { return c.Server.SocketPath }},
	{"EHL_SERVER_DB", func(c *Config) string { return c.Server.DBPath }},
	{"EHL_SERVER_METRICS_ADDR", func(c *Config) string { return c.Server.MetricsAddr }},
	{"EHL_SERVER_REQUEST_TIMEOUT", func(c *Config) string { return intStr(c.Server.RequestTimeoutSeconds) }},
	{"EHL_ROUTER_SOCKET", func(c *Config) string { return c.Router.SocketPath }},
	{"EHL_ROUTER_INTERVAL_AC", func(c *Config) string { return intStr(c.Router.IntervalACSeconds) }},
	{"EHL_ROUTER_INTERVAL_BATTERY", func(c *Config) string { return intStr(c.Router.IntervalBatterySeconds) }},
	{"EHL_ROUTER_INTERVAL_IDLE", func(c *Config) string { return intStr(c.Router.IntervalIdleSeconds) }},
	{"EHL_ROUTER_MIN_EXTRACTION_INTERVAL", func(c *Config) string { return intStr(c.Router.MinExtractionIntervalSeconds) }},
	{"EHL_ROUTER_MAX_EXTRACTION_INTERVAL", func(c *Config) string { return intStr(c.Router.MaxExtractionIntervalSeconds) }},
	{"EHL_ROUTER_DISABLE_ACCESSIBILITY", func(c *Config) string { return boolStr(c.Router.DisableAccessibility) }},
	{"EHL_ROUTER_DISABLE_OCR", func(c *Config) string { return boolStr(c.Router.DisableOCR) }},
	{"EHL_ROUTER_ACCESSIBILITY_BIN", func(c *Config) string { return c.Router.AccessibilityBin }},
	{"EHL_ROUTER_OCR_BIN", func(c *Config) string { return c.Router.OcrBin }},
	{"EHL_ROUTER_CHROME_BUNDLES", func(c *Config) string { return strings.Join(c.Router.ChromeBundles, ",") }},
	{"EHL_ROUTER_ACCESSIBILITY_BUNDLES", func(c *Config) string { return strings.Join(c.Router.AccessibilityBundles, ",") }},
	{"EHL_CHANGE_DETECTOR_THRESHOLD", func(c *Config) string { return intStr(c.ChangeDetector.HammingThreshold) }},
	{"EHL_PRIVACY_BLOCKLIST", func(c *Config) string { return c.Privacy.BlocklistPath }},
	{"EHL_PRIVACY_REDACT_EMAIL", func(c *Config) string { return boolStr(c.Privacy.RedactEmail) }},
	{"EHL_PRIVACY_REDACT_PHONE", func(c *Config) string { return boolStr(c.Privacy.RedactPhone) }},
	{"EHL_CHUNKER_MAX_TOKENS", func(c *Config) string { return intStr(c.Chunker.MaxTokens) }},
	{"EHL_CHUNKER_OVERLAP_TOKENS", func(c *Config) string { return intStr(c.Chunker.OverlapTokens) }},
	{"EHL_CHUNKER_OCR_OVERLAP_THRESHOLD", func(c *Config) string { return float64Str(c.Chunker.OCROverlapThreshold) }},
	{"EHL_DEDUP_MAX_ENTRIES", func(c *Config) string { return intStr(c.DedupCache.MaxEntries) }},
	{"EHL_DEDUP_TTL_SECONDS", func(c *Config) string { return intStr(c.DedupCache.TTLSeconds) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("EHL_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ehl", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ehl.yaml"); err == nil {
		return "ehl.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float64Str converts a float64 to its shortest decimal string, returning
// "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// Defaults returns the built-in configuration, used as the base that
// FromEnv overlays environment variables onto.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			SocketPath:            "/tmp/ehl-ingestd.sock",
			DBPath:                filepath.Join(defaultStateDir(), "ehl-ingestd.db"),
			MetricsAddr:           "127.0.0.1:9091",
			RequestTimeoutSeconds: 5,
		},
		Router: RouterConfig{
			SocketPath:                   "/tmp/ehl-ingestd.sock",
			IntervalACSeconds:            3,
			IntervalBatterySeconds:       10,
			IntervalIdleSeconds:          30,
			MinExtractionIntervalSeconds: 3,
			MaxExtractionIntervalSeconds: 60,
			AccessibilityBin:             "ehl-extract-accessibility",
			OcrBin:                       "ehl-extract-ocr",
		},
		ChangeDetector: ChangeDetectorConfig{
			HammingThreshold: 8,
		},
		Privacy: PrivacyConfig{
			BlocklistPath: filepath.Join(defaultStateDir(), "blocklist.txt"),
		},
		Chunker: ChunkerConfig{
			MaxTokens:           1024,
			OverlapTokens:       100,
			OCROverlapThreshold: 0.80,
		},
		DedupCache: DedupCacheConfig{
			MaxEntries: 10000,
			TTLSeconds: 86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// defaultStateDir returns ~/.ehl, falling back to the working directory if
// the home directory cannot be determined.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ehl"
	}
	return filepath.Join(home, ".ehl")
}

// FromEnv builds a Config starting from Defaults and overlaying any of the
// env vars in envMapping that are set. Callers should call Load first so
// that a YAML file's values have already been applied as env vars.
func FromEnv() Config {
	cfg := Defaults()

	cfg.Server.SocketPath = getenvString("EHL_SERVER_SOCKET", cfg.Server.SocketPath)
	cfg.Server.DBPath = getenvString("EHL_SERVER_DB", cfg.Server.DBPath)
	cfg.Server.MetricsAddr = getenvString("EHL_SERVER_METRICS_ADDR", cfg.Server.MetricsAddr)
	cfg.Server.RequestTimeoutSeconds = getenvInt("EHL_SERVER_REQUEST_TIMEOUT", cfg.Server.RequestTimeoutSeconds)

	cfg.Router.SocketPath = getenvString("EHL_ROUTER_SOCKET", cfg.Router.SocketPath)
	cfg.Router.IntervalACSeconds = getenvInt("EHL_ROUTER_INTERVAL_AC", cfg.Router.IntervalACSeconds)
	cfg.Router.IntervalBatterySeconds = getenvInt("EHL_ROUTER_INTERVAL_BATTERY", cfg.Router.IntervalBatterySeconds)
	cfg.Router.IntervalIdleSeconds = getenvInt("EHL_ROUTER_INTERVAL_IDLE", cfg.Router.IntervalIdleSeconds)
	cfg.Router.MinExtractionIntervalSeconds = getenvInt("EHL_ROUTER_MIN_EXTRACTION_INTERVAL", cfg.Router.MinExtractionIntervalSeconds)
	cfg.Router.MaxExtractionIntervalSeconds = getenvInt("EHL_ROUTER_MAX_EXTRACTION_INTERVAL", cfg.Router.MaxExtractionIntervalSeconds)
	cfg.Router.DisableAccessibility = getenvBool("EHL_ROUTER_DISABLE_ACCESSIBILITY", cfg.Router.DisableAccessibility)
	cfg.Router.DisableOCR = getenvBool("EHL_ROUTER_DISABLE_OCR", cfg.Router.DisableOCR)
	cfg.Router.AccessibilityBin = getenvString("EHL_ROUTER_ACCESSIBILITY_BIN", cfg.Router.AccessibilityBin)
	cfg.Router.OcrBin = getenvString("EHL_ROUTER_OCR_BIN", cfg.Router.OcrBin)
	cfg.Router.ChromeBundles = getenvStringSlice("EHL_ROUTER_CHROME_BUNDLES", cfg.Router.ChromeBundles)
	cfg.Router.AccessibilityBundles = getenvStringSlice("EHL_ROUTER_ACCESSIBILITY_BUNDLES", cfg.Router.AccessibilityBundles)

	cfg.ChangeDetector.HammingThreshold = getenvInt("EHL_CHANGE_DETECTOR_THRESHOLD", cfg.ChangeDetector.HammingThreshold)

	cfg.Privacy.BlocklistPath = getenvString("EHL_PRIVACY_BLOCKLIST", cfg.Privacy.BlocklistPath)
	cfg.Privacy.RedactEmail = getenvBool("EHL_PRIVACY_REDACT_EMAIL", cfg.Privacy.RedactEmail)
	cfg.Privacy.RedactPhone = getenvBool("EHL_PRIVACY_REDACT_PHONE", cfg.Privacy.RedactPhone)

	cfg.Chunker.MaxTokens = getenvInt("EHL_CHUNKER_MAX_TOKENS", cfg.Chunker.MaxTokens)
	cfg.Chunker.OverlapTokens = getenvInt("EHL_CHUNKER_OVERLAP_TOKENS", cfg.Chunker.OverlapTokens)
	cfg.Chunker.OCROverlapThreshold = getenvFloat("EHL_CHUNKER_OCR_OVERLAP_THRESHOLD", cfg.Chunker.OCROverlapThreshold)

	cfg.DedupCache.MaxEntries = getenvInt("EHL_DEDUP_MAX_ENTRIES", cfg.DedupCache.MaxEntries)
	cfg.DedupCache.TTLSeconds = getenvInt("EHL_DEDUP_TTL_SECONDS", cfg.DedupCache.TTLSeconds)

	cfg.Logging.Level = getenvString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvString("LOG_FORMAT", cfg.Logging.Format)

	return cfg
}

func getenvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getenvStringSlice parses a comma-separated env var into a string slice,
// trimming whitespace and dropping empty elements. Returns fallback if the
// env var is unset.
func getenvStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
