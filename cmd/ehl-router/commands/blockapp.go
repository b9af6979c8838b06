package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ehl-ingestd/internal/config"
)

// NewBlockAppCmd constructs the `ehl-router block-app <bundle-id>` command,
// which appends a bundle id to the configured blocklist file on disk. A
// running router picks up the change on its next WatchFile reload; it does
// not need to be restarted.
func NewBlockAppCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block-app <bundle-id>",
		Short: "Add an application bundle id to the capture blocklist",
		Long: `Append a bundle id (e.g. com.apple.keychainaccess) to the configured
blocklist file. A running router reloads the file automatically; no
restart is required.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			bundleID := strings.TrimSpace(args[0])
			if bundleID == "" {
				return fmt.Errorf("block-app: bundle id must not be empty")
			}

			if err := appendUnique(cfg.Privacy.BlocklistPath, bundleID); err != nil {
				return fmt.Errorf("block-app: %w", err)
			}

			fmt.Printf("blocked %s (%s)\n", bundleID, cfg.Privacy.BlocklistPath)
			return nil
		},
	}
}

// appendUnique appends line to the file at path, creating the file and its
// parent directory if necessary, unless line is already present.
func appendUnique(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blocklist directory: %w", err)
	}

	existing, err := readLines(path)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e == line {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open blocklist file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to write blocklist entry: %w", err)
	}
	return nil
}

// readLines returns the non-blank, non-comment lines of path, or an empty
// slice if the file does not yet exist.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blocklist file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
