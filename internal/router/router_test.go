package router

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/54b3r/ehl-ingestd/internal/extractor"
	"github.com/54b3r/ehl-ingestd/internal/phash"
	"github.com/54b3r/ehl-ingestd/internal/privacy"
	"github.com/54b3r/ehl-ingestd/internal/window"
	"github.com/54b3r/ehl-ingestd/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	windows []window.Info
	err     error
}

func (f *fakeSource) ListWindows(ctx context.Context) ([]window.Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.windows, nil
}

type fakeCapturer struct {
	img image.Image
	err error
}

func (f *fakeCapturer) CaptureWindow(ctx context.Context, windowID string) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.img, nil
}

func solidImage(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type fakeRunner struct {
	stdout []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return f.stdout, f.err
}

type fakeSender struct {
	resp wire.IngestionResponse
	err  error
	sent []wire.CapturePayload
}

func (f *fakeSender) Send(ctx context.Context, payload wire.CapturePayload) (wire.IngestionResponse, error) {
	f.sent = append(f.sent, payload)
	if f.err != nil {
		return wire.IngestionResponse{}, f.err
	}
	return f.resp, nil
}

func accessibilityStdout(t *testing.T, content string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"source":            "accessibility",
		"title":             "My Window",
		"content":           content,
		"app_name":          "SomeApp",
		"bundle_id":         "com.example.app",
		"timestamp":         0,
		"extraction_method": "accessibility",
	})
	if err != nil {
		t.Fatalf("marshal stdout: %v", err)
	}
	return data
}

func newTestRouter(src *fakeSource, cap *fakeCapturer, runner *fakeRunner, sender *fakeSender, accessibilityBundles []string) *Router {
	log := testLogger()
	tracker := window.NewTracker(src, log)
	hashes := phash.NewTracker(phash.DefaultThreshold)
	registry := extractor.NewRegistry(nil, accessibilityBundles)
	dispatcher := extractor.NewDispatcher(registry, runner, extractor.DefaultDispatcherConfig())
	blocklist := privacy.NewBlocklist(nil, log)
	return New(tracker, cap, hashes, dispatcher, blocklist, sender, privacy.RedactionConfig{}, log)
}

func focusedWindow(id, bundleID, title string) window.Info {
	return window.Info{ID: id, BundleID: bundleID, Title: title, AppName: "SomeApp", Visible: true, Layer: 0, Display: "main"}
}

func TestRouter_NoFocusedWindowSkips(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	r := newTestRouter(src, &fakeCapturer{}, &fakeRunner{}, &fakeSender{}, nil)
	result := r.Tick(context.Background())
	if result.Outcome != OutcomeNoFocus {
		t.Errorf("expected no_focus, got %v", result.Outcome)
	}
}

func TestRouter_BlockedAppNeverSends(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.ehl.viewer", "Viewer")}}
	sender := &fakeSender{resp: wire.OK(wire.ActionCreated, "doc-1", 1)}
	r := newTestRouter(src, &fakeCapturer{img: solidImage(color.White)}, &fakeRunner{}, sender, nil)

	result := r.Tick(context.Background())
	if result.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked, got %v", result.Outcome)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected zero payloads sent for a blocked app, got %d", len(sender.sent))
	}
}

func TestRouter_BrowserWindowSkipped(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.google.Chrome", "New Tab")}}
	registryBundles := []string{"com.google.Chrome"}
	log := testLogger()
	tracker := window.NewTracker(src, log)
	hashes := phash.NewTracker(phash.DefaultThreshold)
	registry := extractor.NewRegistry(registryBundles, nil)
	dispatcher := extractor.NewDispatcher(registry, &fakeRunner{}, extractor.DefaultDispatcherConfig())
	blocklist := privacy.NewBlocklist(nil, log)
	sender := &fakeSender{}
	r := New(tracker, &fakeCapturer{img: solidImage(color.White)}, hashes, dispatcher, blocklist, sender, privacy.RedactionConfig{}, log)

	result := r.Tick(context.Background())
	if result.Outcome != OutcomeBrowserExtension {
		t.Fatalf("expected browser_extension, got %v", result.Outcome)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no payload sent for a browser window")
	}
}

func TestRouter_SuccessfulSendRedactsAndDelivers(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.example.app", "My Window")}}
	runner := &fakeRunner{stdout: accessibilityStdout(t, "call me at 555-123-4567 or password: hunter2")}
	sender := &fakeSender{resp: wire.OK(wire.ActionCreated, "doc-1", 1)}
	r := newTestRouter(src, &fakeCapturer{img: solidImage(color.White)}, runner, sender, []string{"com.example.app"})

	result := r.Tick(context.Background())
	if result.Outcome != OutcomeSent {
		t.Fatalf("expected sent, got %v (%v)", result.Outcome, result.Err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one payload sent, got %d", len(sender.sent))
	}
	got := sender.sent[0].Content
	if got == "call me at 555-123-4567 or password: hunter2" {
		t.Errorf("expected content to be redacted before sending, got %q", got)
	}
}

func TestRouter_NoVisualChangeSkipsAfterFirstTick(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.example.app", "My Window")}}
	runner := &fakeRunner{stdout: accessibilityStdout(t, "stable content")}
	sender := &fakeSender{resp: wire.OK(wire.ActionCreated, "doc-1", 1)}
	r := newTestRouter(src, &fakeCapturer{img: solidImage(color.White)}, runner, sender, []string{"com.example.app"})

	first := r.Tick(context.Background())
	if first.Outcome != OutcomeSent {
		t.Fatalf("expected first tick to send, got %v (%v)", first.Outcome, first.Err)
	}

	second := r.Tick(context.Background())
	if second.Outcome != OutcomeThrottled && second.Outcome != OutcomeNoVisualChange {
		t.Errorf("expected second identical-image tick to skip via throttle or no-visual-change, got %v", second.Outcome)
	}
	if len(sender.sent) != 1 {
		t.Errorf("expected no second payload sent, got %d total", len(sender.sent))
	}
}

func TestRouter_SendFailureDoesNotUpdateLastSentHash(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.example.app", "My Window")}}
	runner := &fakeRunner{stdout: accessibilityStdout(t, "some content")}
	sender := &fakeSender{err: context.DeadlineExceeded}
	r := newTestRouter(src, &fakeCapturer{img: solidImage(color.White)}, runner, sender, []string{"com.example.app"})

	result := r.Tick(context.Background())
	if result.Outcome != OutcomeSendFailed {
		t.Fatalf("expected send_failed, got %v", result.Outcome)
	}
	st := r.stateFor("w1")
	if st.lastSentHash != "" {
		t.Errorf("expected last-sent-hash to remain empty after a send failure")
	}
}

func TestRouter_ExtractionFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.example.app", "My Window")}}
	runner := &fakeRunner{stdout: []byte("not json")}
	sender := &fakeSender{}
	r := newTestRouter(src, &fakeCapturer{img: solidImage(color.White)}, runner, sender, []string{"com.example.app"})

	result := r.Tick(context.Background())
	if result.Outcome != OutcomeExtractionFailed {
		t.Errorf("expected extraction_failed, got %v", result.Outcome)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no payload sent when extraction fails")
	}
}

func TestRouter_CaptureFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []window.Info{focusedWindow("w1", "com.example.app", "My Window")}}
	runner := &fakeRunner{stdout: accessibilityStdout(t, "content")}
	sender := &fakeSender{}
	cap := &fakeCapturer{err: image.ErrFormat}
	r := newTestRouter(src, cap, runner, sender, []string{"com.example.app"})

	result := r.Tick(context.Background())
	if result.Outcome != OutcomeCaptureFailed {
		t.Errorf("expected capture_failed, got %v", result.Outcome)
	}
}
