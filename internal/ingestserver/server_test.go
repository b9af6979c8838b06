package ingestserver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/54b3r/ehl-ingestd/internal/chunker"
	"github.com/54b3r/ehl-ingestd/internal/dedup"
	"github.com/54b3r/ehl-ingestd/internal/storage"
	"github.com/54b3r/ehl-ingestd/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cache := dedup.New(dedup.DefaultConfig())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{SocketPath: "unused", ChunkerConfig: chunker.DefaultConfig()}
	return New(cfg, store, cache, log)
}

func TestProcess_EmptyContentIsProtocolFailure(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	resp := s.process(wire.CapturePayload{Source: "gdocs", URL: "https://x", Content: "   "})
	if resp.Status != wire.StatusError || resp.Action != wire.ActionFailed {
		t.Errorf("expected protocol failure, got %+v", resp)
	}
}

func TestProcess_FirstPayloadCreatesDocument(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	resp := s.process(wire.CapturePayload{
		Source:  "gdocs",
		URL:     "https://docs.google.com/document/d/abc123/edit",
		Content: "hello world",
		Title:   "My Doc",
	})
	if resp.Status != wire.StatusOK || resp.Action != wire.ActionCreated {
		t.Fatalf("expected created, got %+v", resp)
	}
	if resp.DocumentID == "" {
		t.Errorf("expected a document id")
	}
	if resp.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", resp.ChunkCount)
	}
}

func TestProcess_SameContentIsSkipped(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	payload := wire.CapturePayload{
		Source:  "gdocs",
		URL:     "https://docs.google.com/document/d/abc123/edit",
		Content: "hello world",
	}
	first := s.process(payload)
	second := s.process(payload)
	if second.Action != wire.ActionSkipped {
		t.Errorf("expected skipped for identical re-send, got %+v", second)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("expected same document id across repeats")
	}
}

func TestProcess_ChangedContentUpdatesDocument(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	url := "https://docs.google.com/document/d/abc123/edit"
	first := s.process(wire.CapturePayload{Source: "gdocs", URL: url, Content: "version one"})

	second := s.process(wire.CapturePayload{Source: "gdocs", URL: url, Content: "version two, much longer"})
	if second.Action != wire.ActionUpdated {
		t.Fatalf("expected updated, got %+v", second)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("expected the same document id to be updated, not a new one")
	}
}

func TestProcess_OcrIncrementalAppend(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	url := "ocr://app1/window-title/abc123456789"
	first := s.process(wire.CapturePayload{Source: "ocr", URL: url, Content: "the original paragraph of recognised text content"})
	if first.Action != wire.ActionCreated {
		t.Fatalf("expected created, got %+v", first)
	}

	second := s.process(wire.CapturePayload{
		Source:  "ocr",
		URL:     url,
		Content: "the original paragraph of recognised text content\na brand new paragraph with genuinely novel content appended below",
	})
	if second.Action != wire.ActionUpdated {
		t.Fatalf("expected updated (incremental append), got %+v", second)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("expected same document id")
	}
}

func TestProcess_OcrInsignificantAppendIsSkipped(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	url := "ocr://app1/window-title/abc123456789"
	s.process(wire.CapturePayload{Source: "ocr", URL: url, Content: "the original paragraph of recognised text content"})

	resp := s.process(wire.CapturePayload{Source: "ocr", URL: url, Content: "the original paragraph of recognised text content\nok"})
	if resp.Action != wire.ActionSkipped {
		t.Errorf("expected skipped for insignificant new content, got %+v", resp)
	}
	if resp.Message != "No significant new content" {
		t.Errorf("expected message %q, got %q", "No significant new content", resp.Message)
	}
}

func TestProcess_DedupCacheShortCircuitsStorageLookup(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	payload := wire.CapturePayload{Source: "gdocs", URL: "https://docs.google.com/document/d/xyz/edit", Content: "stable content"}

	first := s.process(payload)
	second := s.process(payload)
	if second.Action != wire.ActionSkipped {
		t.Errorf("expected cache-level skip, got %+v", second)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("expected cache to report the original document id")
	}
}
