package window

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeSource struct {
	windows []Info
	err     error
}

func (f *fakeSource) ListWindows(ctx context.Context) ([]Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.windows, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hasEvent(events []Event, kind EventKind, windowID string) bool {
	for _, e := range events {
		if e.Kind == kind && e.WindowID == windowID {
			return true
		}
	}
	return false
}

func TestTracker_FirstRefreshEmitsCreated(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []Info{
		{ID: "w1", Title: "Doc", Display: "main", Visible: true, Layer: 0},
	}}
	tr := NewTracker(src, testLogger())

	events := tr.Refresh(context.Background())
	if !hasEvent(events, Created, "w1") {
		t.Errorf("expected created event for w1, got %+v", events)
	}
	if !hasEvent(events, FocusChanged, "w1") {
		t.Errorf("expected focus_changed event for w1, got %+v", events)
	}
}

func TestTracker_DestroyedWindow(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []Info{{ID: "w1", Display: "main", Visible: true, Layer: 0}}}
	tr := NewTracker(src, testLogger())
	tr.Refresh(context.Background())

	src.windows = nil
	events := tr.Refresh(context.Background())
	if !hasEvent(events, Destroyed, "w1") {
		t.Errorf("expected destroyed event for w1, got %+v", events)
	}
	if !hasEvent(events, FocusChanged, "") {
		t.Errorf("expected focus_changed to empty when focused window disappears, got %+v", events)
	}
}

func TestTracker_TitleChanged(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []Info{{ID: "w1", Title: "draft", Display: "main", Visible: true, Layer: 0}}}
	tr := NewTracker(src, testLogger())
	tr.Refresh(context.Background())

	src.windows = []Info{{ID: "w1", Title: "final", Display: "main", Visible: true, Layer: 0}}
	events := tr.Refresh(context.Background())

	found := false
	for _, e := range events {
		if e.Kind == TitleChanged && e.WindowID == "w1" {
			found = true
			if e.OldTitle != "draft" || e.NewTitle != "final" {
				t.Errorf("expected draft->final, got %s->%s", e.OldTitle, e.NewTitle)
			}
		}
	}
	if !found {
		t.Errorf("expected title_changed event, got %+v", events)
	}
}

func TestTracker_NoChangeEmitsNoEvents(t *testing.T) {
	t.Parallel()
	win := Info{ID: "w1", Title: "steady", Display: "main", Visible: true, Layer: 0}
	src := &fakeSource{windows: []Info{win}}
	tr := NewTracker(src, testLogger())
	tr.Refresh(context.Background())

	events := tr.Refresh(context.Background())
	if len(events) != 0 {
		t.Errorf("expected no events on an unchanged refresh, got %+v", events)
	}
}

func TestTracker_FocusChangedBetweenWindows(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []Info{
		{ID: "w1", Display: "main", Visible: true, Layer: 0},
		{ID: "w2", Display: "main", Visible: true, Layer: 1},
	}}
	tr := NewTracker(src, testLogger())
	tr.Refresh(context.Background())

	src.windows = []Info{
		{ID: "w1", Display: "main", Visible: true, Layer: 1},
		{ID: "w2", Display: "main", Visible: true, Layer: 0},
	}
	events := tr.Refresh(context.Background())
	if !hasEvent(events, FocusChanged, "w2") {
		t.Errorf("expected focus_changed to w2, got %+v", events)
	}
}

func TestTracker_EnumerationFailureIsEmptyDiffNotFatal(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []Info{{ID: "w1", Display: "main", Visible: true, Layer: 0}}}
	tr := NewTracker(src, testLogger())
	tr.Refresh(context.Background())

	src.err = errors.New("enumeration boom")
	events := tr.Refresh(context.Background())
	if events != nil {
		t.Errorf("expected nil/empty diff on enumeration failure, got %+v", events)
	}

	if _, ok := tr.Focused(); !ok {
		t.Errorf("prior state must survive an enumeration failure")
	}
}

func TestTracker_Focused(t *testing.T) {
	t.Parallel()
	src := &fakeSource{windows: []Info{
		{ID: "w1", Title: "background", Display: "main", Visible: true, Layer: 1},
		{ID: "w2", Title: "foreground", Display: "main", Visible: true, Layer: 0},
	}}
	tr := NewTracker(src, testLogger())
	tr.Refresh(context.Background())

	focused, ok := tr.Focused()
	if !ok {
		t.Fatal("expected a focused window")
	}
	if focused.ID != "w2" {
		t.Errorf("expected w2 focused, got %s", focused.ID)
	}
}
