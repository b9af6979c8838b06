// Package privacy implements capture-time window blocking and text
// redaction: the two concerns the specification groups into a single
// "privacy filter" component.
package privacy

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// alwaysBlocked is the fixed bundle-id blacklist that no configuration can
// override. It includes the viewer UI's own bundle id to prevent
// self-ingestion loops.
var alwaysBlocked = map[string]bool{
	"com.ehl.viewer":        true,
	"com.apple.keychainaccess": true,
	"com.apple.SecurityAgent":  true,
	"com.1password.1password":  true,
	"com.agilebits.onepassword7": true,
	"com.lastpass.lastpass":      true,
}

// titleSensitivityMarkers are substrings (case-insensitive) that block a
// window by its title regardless of bundle id.
var titleSensitivityMarkers = []string{
	"password",
	"sign in",
	"log in",
	"banking",
	"bank account",
	"checkout",
	"payment",
	"ssn",
	"social security",
}

// sensitiveURLFragments are substrings (case-insensitive) of known
// sensitive domains and paths. Browser windows commonly surface the
// current URL in the title bar, so these are matched the same way as
// titleSensitivityMarkers rather than requiring a separate URL field.
var sensitiveURLFragments = []string{
	"chase.com",
	"bankofamerica.com",
	"wellsfargo.com",
	"paypal.com",
	"venmo.com",
	"coinbase.com",
	"/login",
	"/signin",
	"/checkout",
	"/account/billing",
}

// Blocklist decides whether a window is blocked from capture. The
// configurable glob set can be hot-reloaded from a file.
type Blocklist struct {
	mu    sync.RWMutex
	globs []string

	path    string
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewBlocklist constructs a Blocklist with an initial set of glob patterns.
func NewBlocklist(initial []string, log *slog.Logger) *Blocklist {
	b := &Blocklist{log: log}
	b.mu.Lock()
	b.globs = append([]string(nil), initial...)
	b.mu.Unlock()
	return b
}

// Window is the minimal window shape the blocklist needs to judge.
type Window struct {
	BundleID string
	Title    string
}

// Blocks reports whether w must not be captured.
func (b *Blocklist) Blocks(w Window) bool {
	if alwaysBlocked[w.BundleID] {
		return true
	}

	b.mu.RLock()
	globs := b.globs
	b.mu.RUnlock()
	for _, pattern := range globs {
		if ok, _ := filepath.Match(pattern, w.BundleID); ok {
			return true
		}
	}

	lowerTitle := strings.ToLower(w.Title)
	for _, marker := range titleSensitivityMarkers {
		if strings.Contains(lowerTitle, marker) {
			return true
		}
	}
	for _, fragment := range sensitiveURLFragments {
		if strings.Contains(lowerTitle, fragment) {
			return true
		}
	}
	return false
}

// Append adds a bundle id to the in-memory glob set, for the router's
// runtime "block app" hook. It does not persist to BlocklistPath; callers
// that want persistence should write the file and rely on the watcher (or
// call SetGlobs after writing).
func (b *Blocklist) Append(bundleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range b.globs {
		if g == bundleID {
			return
		}
	}
	b.globs = append(b.globs, bundleID)
}

// SetGlobs replaces the configurable glob set wholesale, e.g. after a
// blocklist file reload.
func (b *Blocklist) SetGlobs(globs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globs = append([]string(nil), globs...)
}

// Globs returns a snapshot of the current configurable glob set.
func (b *Blocklist) Globs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.globs...)
}

// WatchFile hot-reloads the glob set from path whenever it changes on disk.
// loadFn parses the file's contents into a glob slice; the caller owns the
// file format. The watch goroutine exits when ctx is cancelled.
func (b *Blocklist) WatchFile(ctx context.Context, path string, loadFn func(path string) ([]string, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	b.watcher = w
	b.path = path

	if globs, err := loadFn(path); err == nil {
		b.SetGlobs(globs)
	} else {
		b.log.Warn("privacy: initial blocklist load failed", slog.Any("error", err))
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				globs, err := loadFn(path)
				if err != nil {
					b.log.Warn("privacy: blocklist reload failed", slog.Any("error", err))
					continue
				}
				b.SetGlobs(globs)
				b.log.Info("privacy: blocklist reloaded", slog.Int("entries", len(globs)))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				b.log.Warn("privacy: blocklist watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}
