// Package window tracks the set of on-screen windows and reports per-tick
// diff events. Platform-specific enumeration and capture are supplied by the
// caller through the WindowSource and Capturer interfaces; this package
// makes no further OS assumptions.
package window

import (
	"context"
	"image"
	"log/slog"
)

// Bounds is a window's on-screen rectangle.
type Bounds struct {
	X, Y, W, H int
}

// Info describes one on-screen, non-desktop window.
type Info struct {
	// ID is an opaque, platform-assigned window identifier.
	ID string
	// ProcessID is the owning process's platform PID.
	ProcessID int
	// BundleID is the owning application's bundle/package identifier.
	BundleID string
	// AppName is the localised application name.
	AppName string
	// Title is the window's human-readable title.
	Title string
	// Bounds is the window's on-screen rectangle.
	Bounds Bounds
	// Visible reports whether the window is currently on-screen.
	Visible bool
	// Display identifies the screen/output the window sits on.
	Display string
	// Layer is the window's stacking layer; 0 is frontmost.
	Layer int
}

// Focused reports whether this window is the single frontmost, on-screen
// window at layer 0.
func (i Info) Focused() bool {
	return i.Visible && i.Layer == 0
}

// WindowSource is the platform contract for window enumeration; capture is
// the separate Capturer contract.
// Implementations must be safe to call from a single goroutine (the Capture
// Router's tick loop is the only caller).
type WindowSource interface {
	// ListWindows returns the current set of on-screen, non-desktop windows.
	ListWindows(ctx context.Context) ([]Info, error)
}

// Capturer captures a window's current on-screen image.
type Capturer interface {
	// CaptureWindow returns the window's image, or nil if it could not be
	// captured (e.g. minimized, off-screen, or permission denied).
	CaptureWindow(ctx context.Context, windowID string) (image.Image, error)
}

// EventKind classifies a single window-diff event.
type EventKind string

const (
	// Created is emitted for a window id seen for the first time.
	Created EventKind = "created"
	// Destroyed is emitted for a previously tracked window id no longer present.
	Destroyed EventKind = "destroyed"
	// TitleChanged is emitted when a tracked window's title changes.
	TitleChanged EventKind = "title_changed"
	// FocusChanged is emitted once per display whose focused window id changes.
	FocusChanged EventKind = "focus_changed"
)

// Event is one diff event emitted by a refresh.
type Event struct {
	Kind EventKind
	// WindowID is the subject window, empty for some FocusChanged events
	// where the display has no focused window.
	WindowID string
	// OldTitle/NewTitle are populated only for TitleChanged.
	OldTitle, NewTitle string
	// Display is populated only for FocusChanged.
	Display string
}

// Tracker maintains the previously observed window set and computes diff
// events on each refresh.
type Tracker struct {
	source WindowSource
	log    *slog.Logger

	windows       map[string]Info
	focusByDisplay map[string]string
}

// NewTracker constructs a Tracker over the given WindowSource.
func NewTracker(source WindowSource, log *slog.Logger) *Tracker {
	return &Tracker{
		source:         source,
		log:            log,
		windows:        make(map[string]Info),
		focusByDisplay: make(map[string]string),
	}
}

// Refresh enumerates windows and returns the diff against the previously
// observed set, updating internal state. Enumeration failure is non-fatal:
// it is logged and reported as an empty diff, leaving prior state intact.
func (t *Tracker) Refresh(ctx context.Context) []Event {
	current, err := t.source.ListWindows(ctx)
	if err != nil {
		t.log.Warn("window: enumeration failed", slog.Any("error", err))
		return nil
	}

	var events []Event
	seen := make(map[string]bool, len(current))

	currentFocusByDisplay := make(map[string]string)

	for _, w := range current {
		seen[w.ID] = true

		prev, existed := t.windows[w.ID]
		if !existed {
			events = append(events, Event{Kind: Created, WindowID: w.ID})
		} else if prev.Title != w.Title {
			events = append(events, Event{Kind: TitleChanged, WindowID: w.ID, OldTitle: prev.Title, NewTitle: w.Title})
		}

		if w.Focused() {
			currentFocusByDisplay[w.Display] = w.ID
		}
	}

	for id, prev := range t.windows {
		if !seen[id] {
			events = append(events, Event{Kind: Destroyed, WindowID: id})
			_ = prev
		}
	}

	for display, newFocusID := range currentFocusByDisplay {
		if t.focusByDisplay[display] != newFocusID {
			events = append(events, Event{Kind: FocusChanged, WindowID: newFocusID, Display: display})
		}
	}
	for display := range t.focusByDisplay {
		if _, ok := currentFocusByDisplay[display]; !ok {
			events = append(events, Event{Kind: FocusChanged, WindowID: "", Display: display})
		}
	}

	t.windows = make(map[string]Info, len(current))
	for _, w := range current {
		t.windows[w.ID] = w
	}
	t.focusByDisplay = currentFocusByDisplay

	return events
}

// Focused returns the single currently-focused on-screen window, if any.
// When multiple displays each have a focused window, the first one found in
// map iteration is returned; callers that care about a specific display
// should inspect Windows() directly.
func (t *Tracker) Focused() (Info, bool) {
	for _, id := range t.focusByDisplay {
		if w, ok := t.windows[id]; ok {
			return w, true
		}
	}
	return Info{}, false
}

// Windows returns a snapshot of the currently tracked windows.
func (t *Tracker) Windows() map[string]Info {
	out := make(map[string]Info, len(t.windows))
	for k, v := range t.windows {
		out[k] = v
	}
	return out
}
