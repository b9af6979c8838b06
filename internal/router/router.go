// Package router implements the Capture Router: the client-side tick loop
// that watches the single focused window, decides whether it is worth
// extracting, and forwards redacted content to the Ingestion Server.
package router

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ehl-ingestd/internal/extractor"
	"github.com/54b3r/ehl-ingestd/internal/logging"
	"github.com/54b3r/ehl-ingestd/internal/phash"
	"github.com/54b3r/ehl-ingestd/internal/privacy"
	"github.com/54b3r/ehl-ingestd/internal/window"
	"github.com/54b3r/ehl-ingestd/internal/wire"
)

// Outcome classifies what a single tick did, for logging and testing.
type Outcome string

const (
	OutcomeNoFocus          Outcome = "no_focus"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeBrowserExtension Outcome = "browser_extension"
	OutcomeThrottled        Outcome = "throttled"
	OutcomeCaptureFailed    Outcome = "capture_failed"
	OutcomeNoVisualChange   Outcome = "no_visual_change"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeSendFailed       Outcome = "send_failed"
	OutcomeServerRejected   Outcome = "server_rejected"
	OutcomeSent             Outcome = "sent"
)

// TickResult reports what a single Tick call decided and did.
type TickResult struct {
	Outcome  Outcome
	WindowID string
	Response wire.IngestionResponse
	Err      error
}

// windowState is the router's own per-window memory, independent of the
// dispatcher's and hash tracker's internal bookkeeping: the last content
// hash the server accepted. It is only updated after a successful send, so
// content whose send failed is not taken for a duplicate when the window is
// next extracted.
type windowState struct {
	lastSentHash string
}

// Sender delivers a payload to the ingestion server and returns its
// response. Client implements this; tests substitute a fake.
type Sender interface {
	Send(ctx context.Context, payload wire.CapturePayload) (wire.IngestionResponse, error)
}

// Router runs the tick loop described by the specification: window diff,
// focus, privacy filter, browser skip, interval debounce, perceptual hash
// check, extraction, redaction, dedup, send — in that fixed order.
type Router struct {
	windows    *window.Tracker
	capturer   window.Capturer
	hashes     *phash.Tracker
	dispatcher *extractor.Dispatcher
	blocklist  *privacy.Blocklist
	sender     Sender
	redaction  privacy.RedactionConfig
	log        *slog.Logger
	metrics    *routerMetrics

	tickSeq uint64 // atomically incremented per Tick call, for log correlation

	state map[string]*windowState
}

// WithMetrics registers Prometheus metrics for this Router against reg and
// returns the Router for chaining.
func (r *Router) WithMetrics(reg prometheus.Registerer) *Router {
	r.metrics = newRouterMetrics(reg)
	return r
}

// New constructs a Router over its collaborators.
func New(
	windows *window.Tracker,
	capturer window.Capturer,
	hashes *phash.Tracker,
	dispatcher *extractor.Dispatcher,
	blocklist *privacy.Blocklist,
	sender Sender,
	redaction privacy.RedactionConfig,
	log *slog.Logger,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		windows:    windows,
		capturer:   capturer,
		hashes:     hashes,
		dispatcher: dispatcher,
		blocklist:  blocklist,
		sender:     sender,
		redaction:  redaction,
		log:        log,
		state:      make(map[string]*windowState),
	}
}

// Tick runs one iteration of the loop: it refreshes the window set, forgets
// state for destroyed windows, and considers the single focused window (if
// any) for extraction and send. Every log line emitted during this call
// carries a tick_id attribute pulled from ctx, so a single tick's decisions
// can be followed across the log stream.
func (r *Router) Tick(ctx context.Context) TickResult {
	tickID := atomic.AddUint64(&r.tickSeq, 1)
	ctx = logging.WithTickID(logging.WithLogger(ctx, r.log), tickID)

	events := r.windows.Refresh(ctx)
	focusTriggered := false
	var focusedID string

	for _, ev := range events {
		switch ev.Kind {
		case window.Destroyed:
			r.forget(ev.WindowID)
		case window.FocusChanged:
			if ev.WindowID != "" {
				focusTriggered = true
				focusedID = ev.WindowID
			}
		}
	}

	focused, ok := r.windows.Focused()
	if !ok {
		r.metrics.observeTick(OutcomeNoFocus)
		r.metrics.setWindowsTracked(len(r.windows.Windows()))
		return TickResult{Outcome: OutcomeNoFocus}
	}
	if focusTriggered && focusedID != focused.ID {
		// The focus event named a different window than the one now
		// reported focused (e.g. it changed again within the same tick);
		// treat this tick as not freshly focus-triggered.
		focusTriggered = false
	}

	result := r.considerWindow(ctx, focused, focusTriggered)
	r.metrics.observeTick(result.Outcome)
	r.metrics.setWindowsTracked(len(r.windows.Windows()))
	return result
}

func (r *Router) considerWindow(ctx context.Context, w window.Info, focusTriggered bool) TickResult {
	result := TickResult{WindowID: w.ID}

	if r.blocklist.Blocks(privacy.Window{BundleID: w.BundleID, Title: w.Title}) {
		result.Outcome = OutcomeBlocked
		return result
	}

	kind := r.dispatcher.Classify(w.BundleID)
	if kind == extractor.Chrome {
		result.Outcome = OutcomeBrowserExtension
		return result
	}

	if !r.dispatcher.ShouldExtract(w.ID, focusTriggered) {
		result.Outcome = OutcomeThrottled
		return result
	}

	img, err := r.capturer.CaptureWindow(ctx, w.ID)
	if err != nil || img == nil {
		logging.FromContext(ctx).Warn("router: window capture failed", slog.String("window_id", w.ID), slog.Any("error", err))
		result.Outcome = OutcomeCaptureFailed
		result.Err = err
		return result
	}

	changed := r.hashes.Observe(w.ID, img)
	if !changed && !focusTriggered && !r.dispatcher.Stale(w.ID) {
		result.Outcome = OutcomeNoVisualChange
		return result
	}

	extractStart := time.Now()
	// Each extraction gets a 5s deadline; the child process is killed when
	// it expires and the attempt counts as a failed extraction.
	extractCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	content, err := r.dispatcher.Extract(extractCtx, kind, w.ID, w.BundleID)
	cancel()
	r.metrics.observeExtraction(kind.String(), time.Since(extractStart).Seconds())
	if err != nil {
		logging.FromContext(ctx).Warn("router: extraction failed", slog.String("window_id", w.ID), slog.Any("error", err))
		result.Outcome = OutcomeExtractionFailed
		result.Err = err
		return result
	}

	payload := toPayload(content)
	payload.Content = privacy.Redact(payload.Content, r.redaction)

	hash := sha256Hex(payload.Content)
	st := r.stateFor(w.ID)
	if st.lastSentHash == hash {
		result.Outcome = OutcomeDuplicate
		return result
	}

	resp, err := r.sender.Send(ctx, payload)
	if err != nil {
		logging.FromContext(ctx).Warn("router: send failed", slog.String("window_id", w.ID), slog.Any("error", err))
		result.Outcome = OutcomeSendFailed
		result.Err = err
		// last-content-hash is deliberately not updated: the next tick
		// retries with the same content.
		return result
	}
	result.Response = resp
	if resp.Status != wire.StatusOK {
		result.Outcome = OutcomeServerRejected
		return result
	}

	st.lastSentHash = hash
	result.Outcome = OutcomeSent
	return result
}

func (r *Router) stateFor(windowID string) *windowState {
	st, ok := r.state[windowID]
	if !ok {
		st = &windowState{}
		r.state[windowID] = st
	}
	return st
}

func (r *Router) forget(windowID string) {
	delete(r.state, windowID)
	r.hashes.Forget(windowID)
	r.dispatcher.Forget(windowID)
}

func toPayload(c *extractor.Content) wire.CapturePayload {
	return wire.CapturePayload{
		Source:   c.Source,
		URL:      c.URL,
		Content:  c.Content,
		Title:    c.Title,
		Author:   c.Author,
		Channel:  c.Channel,
		AppName:  c.AppName,
		BundleID: c.BundleID,
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
