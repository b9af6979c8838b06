// Package extractor selects and invokes the content extraction strategy for
// a window: the accessibility-tree child process, the OCR child process, or
// (for browser windows) no invocation at all, since the browser extension
// pushes its own payloads through a separate relay.
package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Kind tags which extraction strategy owns a window.
type Kind int

const (
	// Chrome windows are pushed to, never pulled from.
	Chrome Kind = iota
	Accessibility
	Ocr
)

func (k Kind) String() string {
	switch k {
	case Chrome:
		return "chrome_extension"
	case Accessibility:
		return "accessibility"
	case Ocr:
		return "ocr"
	default:
		return "unknown"
	}
}

// Registry maps bundle ids to extraction kinds. Chrome and Accessibility
// bundle sets are configured explicitly; anything not in either set falls
// back to OCR.
type Registry struct {
	chromeBundles        map[string]bool
	accessibilityBundles map[string]bool
}

// NewRegistry builds a Registry from the configured bundle-id sets.
func NewRegistry(chromeBundles, accessibilityBundles []string) *Registry {
	r := &Registry{
		chromeBundles:        make(map[string]bool, len(chromeBundles)),
		accessibilityBundles: make(map[string]bool, len(accessibilityBundles)),
	}
	for _, b := range chromeBundles {
		r.chromeBundles[b] = true
	}
	for _, b := range accessibilityBundles {
		r.accessibilityBundles[b] = true
	}
	return r
}

// Classify returns the extraction kind for a window's bundle id, in the
// priority order: browser, then accessibility, then OCR as the universal
// fallback.
func (r *Registry) Classify(bundleID string) Kind {
	if r.chromeBundles[bundleID] {
		return Chrome
	}
	if r.accessibilityBundles[bundleID] {
		return Accessibility
	}
	return Ocr
}

// ErrorKind classifies an extractor failure.
type ErrorKind string

const (
	ErrPermissionDenied ErrorKind = "permission_denied"
	ErrAppNotFound      ErrorKind = "app_not_found"
	ErrNoContent        ErrorKind = "no_content"
	ErrTimeout          ErrorKind = "timeout"
	ErrIO               ErrorKind = "io"
)

// Error is a classified extractor failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extractor: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Content is the canonical extraction result, before conversion to the wire
// CapturePayload.
type Content struct {
	Source           string
	URL              string
	Content          string
	Title            string
	Author           string
	Channel          string
	Timestamp        time.Time
	AppName          string
	BundleID         string
	ExtractionMethod string
	Confidence       float64
}

// accessibilityDoc mirrors the accessibility child's stdout JSON document.
type accessibilityDoc struct {
	Source           string `json:"source"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	AppName          string `json:"app_name"`
	BundleID         string `json:"bundle_id"`
	Timestamp        int64  `json:"timestamp"`
	ExtractionMethod string `json:"extraction_method"`
}

// ocrDoc mirrors the OCR child's full-mode stdout JSON document.
type ocrDoc struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processingTime"`
	WindowID       string  `json:"windowId"`
	WindowTitle    string  `json:"windowTitle"`
}

// ocrCaptureDoc mirrors the OCR child's capture-only stdout JSON document.
type ocrCaptureDoc struct {
	Captured    bool   `json:"captured"`
	Path        string `json:"path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	WindowID    string `json:"windowId"`
	WindowTitle string `json:"windowTitle"`
}

// Runner invokes extractor child processes. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) (stdout []byte, exitErr error)
}

// ExecRunner runs real child processes via os/exec.
type ExecRunner struct{}

// Run executes bin with args and returns captured stdout. A non-zero exit
// returns *exec.ExitError as exitErr alongside whatever stdout was written.
func (ExecRunner) Run(ctx context.Context, bin string, args ...string) (stdout []byte, exitErr error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return out.Bytes(), err
}

// Dispatcher invokes the right child process for a window and normalises
// its output into Content, while enforcing the per-window extraction
// interval policy.
type Dispatcher struct {
	registry *Registry
	runner   Runner

	accessibilityBin string
	ocrBin            string

	minInterval time.Duration
	maxSilence  time.Duration

	// limiters bounds the attempt rate per window to one per minInterval with
	// a per-window token bucket. focusTriggered and a maxSilence-driven
	// staleness check both bypass it in ShouldExtract.
	limiters    map[string]*rate.Limiter
	lastAttempt map[string]time.Time
	lastSuccess map[string]time.Time
}

// DispatcherConfig controls interval enforcement and child binary paths.
type DispatcherConfig struct {
	AccessibilityBin    string
	OcrBin              string
	MinInterval         time.Duration
	MaxSilence          time.Duration
}

// DefaultDispatcherConfig returns the spec's default timing.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{MinInterval: 3 * time.Second, MaxSilence: 60 * time.Second}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(registry *Registry, runner Runner, cfg DispatcherConfig) *Dispatcher {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultDispatcherConfig().MinInterval
	}
	if cfg.MaxSilence <= 0 {
		cfg.MaxSilence = DefaultDispatcherConfig().MaxSilence
	}
	return &Dispatcher{
		registry:         registry,
		runner:           runner,
		accessibilityBin: cfg.AccessibilityBin,
		ocrBin:           cfg.OcrBin,
		minInterval:      cfg.MinInterval,
		maxSilence:       cfg.MaxSilence,
		limiters:         make(map[string]*rate.Limiter),
		lastAttempt:      make(map[string]time.Time),
		lastSuccess:      make(map[string]time.Time),
	}
}

// limiterFor lazily creates the per-window token bucket: one token every
// minInterval, burst of 1, so a window can be attempted at most once per
// interval regardless of how many ticks observe it as due.
func (d *Dispatcher) limiterFor(windowID string) *rate.Limiter {
	l, ok := d.limiters[windowID]
	if !ok {
		l = rate.NewLimiter(rate.Every(d.minInterval), 1)
		d.limiters[windowID] = l
	}
	return l
}

// ShouldExtract reports whether windowID is due for extraction given the
// dispatcher's min-interval/max-silence policy. focusTriggered bypasses
// min-interval (an explicit focus-change event always gets a fresh
// extraction attempt).
func (d *Dispatcher) ShouldExtract(windowID string, focusTriggered bool) bool {
	last, ok := d.lastSuccess[windowID]
	if !ok {
		return true
	}
	if time.Since(last) >= d.maxSilence {
		return true
	}
	if focusTriggered {
		return true
	}
	return d.limiterFor(windowID).Allow()
}

// Extract dispatches to the appropriate child process for kind and returns
// canonical Content.
func (d *Dispatcher) Extract(ctx context.Context, kind Kind, windowID, bundleID string) (*Content, error) {
	d.lastAttempt[windowID] = time.Now()
	// Spend the per-window token now, so the bucket is already empty the
	// next time ShouldExtract consults it for this attempt.
	d.limiterFor(windowID).Allow()

	var content *Content
	var err error
	switch kind {
	case Accessibility:
		content, err = d.extractAccessibility(ctx, bundleID)
	case Ocr:
		content, err = d.extractOcr(ctx, windowID, bundleID)
	default:
		return nil, &Error{Kind: ErrNoContent, Err: fmt.Errorf("extractor: kind %v has no dispatcher path", kind)}
	}
	if err != nil {
		return nil, err
	}
	d.lastSuccess[windowID] = time.Now()
	return content, nil
}

// Classify exposes the dispatcher's registry classification, so callers
// need not hold a separate reference to the Registry.
func (d *Dispatcher) Classify(bundleID string) Kind {
	return d.registry.Classify(bundleID)
}

// Forget clears interval-tracking state for a destroyed window.
func (d *Dispatcher) Forget(windowID string) {
	delete(d.lastAttempt, windowID)
	delete(d.lastSuccess, windowID)
	delete(d.limiters, windowID)
}

// Stale reports whether windowID has gone at least maxSilence since its last
// successful extraction, or has never succeeded. The router uses this to
// force a capture through the perceptual hash check even when nothing
// visually changed, so silent content drift still gets caught eventually.
func (d *Dispatcher) Stale(windowID string) bool {
	last, ok := d.lastSuccess[windowID]
	if !ok {
		return true
	}
	return time.Since(last) >= d.maxSilence
}

func (d *Dispatcher) extractAccessibility(ctx context.Context, bundleID string) (*Content, error) {
	stdout, err := d.runner.Run(ctx, d.accessibilityBin, "--app", bundleID)
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, classifyAccessibilityExit(exitErr, stdout)
		}
		return nil, &Error{Kind: ErrIO, Err: err}
	}

	var doc accessibilityDoc
	if jsonErr := json.Unmarshal(stdout, &doc); jsonErr != nil {
		return nil, &Error{Kind: ErrIO, Err: fmt.Errorf("malformed accessibility stdout: %w", jsonErr)}
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, &Error{Kind: ErrNoContent, Err: fmt.Errorf("empty content from accessibility extractor")}
	}

	return &Content{
		Source:           doc.Source,
		URL:              accessibilityURL(bundleID, doc.Title),
		Content:          doc.Content,
		Title:            doc.Title,
		AppName:          doc.AppName,
		BundleID:         bundleID,
		Timestamp:        time.Unix(doc.Timestamp, 0),
		ExtractionMethod: "accessibility",
	}, nil
}

func classifyAccessibilityExit(exitErr *exec.ExitError, stdout []byte) error {
	// Only the exit code is inspected; stdout is not parsed on this path.
	// Exit code 2 is surfaced as permission denied; 3 and every other
	// non-zero exit code as app-not-found.
	switch exitErr.ExitCode() {
	case 2:
		return &Error{Kind: ErrPermissionDenied, Err: exitErr}
	case 3:
		return &Error{Kind: ErrAppNotFound, Err: exitErr}
	default:
		return &Error{Kind: ErrAppNotFound, Err: exitErr}
	}
}

func (d *Dispatcher) extractOcr(ctx context.Context, windowID, bundleID string) (*Content, error) {
	stdout, err := d.runner.Run(ctx, d.ocrBin, "--window-id", windowID, "--json")
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, &Error{Kind: ErrNoContent, Err: err}
		}
		return nil, &Error{Kind: ErrIO, Err: err}
	}

	var doc ocrDoc
	if jsonErr := json.Unmarshal(stdout, &doc); jsonErr != nil {
		return nil, &Error{Kind: ErrIO, Err: fmt.Errorf("malformed ocr stdout: %w", jsonErr)}
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, &Error{Kind: ErrNoContent, Err: fmt.Errorf("empty content from ocr extractor")}
	}

	title := doc.WindowTitle
	return &Content{
		Source:           "ocr",
		URL:              ocrURL(bundleID, title, doc.Text),
		Content:          doc.Text,
		Title:            title,
		BundleID:         bundleID,
		Timestamp:        time.Now(),
		ExtractionMethod: "ocr",
		Confidence:       doc.Confidence,
	}, nil
}

// CaptureOnly invokes the OCR child in capture-only mode, for the perceptual
// change detector's use. It returns the path the raw image was written to.
func (d *Dispatcher) CaptureOnly(ctx context.Context, windowID, outputPath string) (string, error) {
	stdout, err := d.runner.Run(ctx, d.ocrBin, "--window-id", windowID, "--capture-only", "--output", outputPath, "--json")
	if err != nil {
		return "", &Error{Kind: ErrIO, Err: err}
	}
	var doc ocrCaptureDoc
	if jsonErr := json.Unmarshal(stdout, &doc); jsonErr != nil {
		return "", &Error{Kind: ErrIO, Err: fmt.Errorf("malformed ocr capture stdout: %w", jsonErr)}
	}
	if !doc.Captured {
		return "", &Error{Kind: ErrNoContent, Err: fmt.Errorf("ocr capture reported not captured")}
	}
	return doc.Path, nil
}

var reNonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = reNonSlug.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func accessibilityURL(bundleID, title string) string {
	return fmt.Sprintf("accessibility://%s/%s", bundleID, slug(title))
}

func ocrURL(appID, title, content string) string {
	sum := sha256.Sum256([]byte(content))
	hexPrefix := fmt.Sprintf("%x", sum)[:12]
	return fmt.Sprintf("ocr://%s/%s/%s", appID, slug(title), hexPrefix)
}
