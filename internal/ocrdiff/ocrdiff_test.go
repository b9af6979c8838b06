package ocrdiff

import "testing"

func TestExtractNew_KeepsGenuinelyNewLines(t *testing.T) {
	t.Parallel()
	existing := "the quarterly report shows strong growth\nin every region this year"
	incoming := "the quarterly report shows strong growth\na completely unrelated new paragraph about hiring plans"
	got := ExtractNew(existing, incoming)
	if got != "a completely unrelated new paragraph about hiring plans" {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestExtractNew_DropsVerbatimLines(t *testing.T) {
	t.Parallel()
	existing := "this line appears in both captures verbatim"
	incoming := "this line appears in both captures verbatim"
	if got := ExtractNew(existing, incoming); got != "" {
		t.Errorf("expected empty result for verbatim repeat, got %q", got)
	}
}

func TestExtractNew_DropsShortLines(t *testing.T) {
	t.Parallel()
	existing := ""
	incoming := "ok\nhi\nno"
	if got := ExtractNew(existing, incoming); got != "" {
		t.Errorf("expected short lines to be dropped, got %q", got)
	}
}

func TestExtractNew_DropsHighWordOverlap(t *testing.T) {
	t.Parallel()
	existing := "alpha bravo charlie delta echo foxtrot golf hotel"
	// The existing line minus its last word: every incoming token is
	// already present.
	incoming := "alpha bravo charlie delta echo foxtrot golf"
	got := ExtractNew(existing, incoming)
	if got != "" {
		t.Errorf("expected high-overlap line to be dropped, got %q", got)
	}
}

func TestExtractNew_KeepsLowWordOverlap(t *testing.T) {
	t.Parallel()
	existing := "alpha bravo charlie delta"
	incoming := "zulu yankee xray whiskey victor uniform tango"
	got := ExtractNew(existing, incoming)
	if got != incoming {
		t.Errorf("expected fully novel line to be kept, got %q", got)
	}
}

func TestSignificant_Threshold(t *testing.T) {
	t.Parallel()
	short := "too short to matter here"
	if Significant(short) {
		t.Errorf("expected text under threshold to be insignificant: len=%d", len(short))
	}
	long := "this line is long enough to clear the fifty character significance bar easily"
	if !Significant(long) {
		t.Errorf("expected text over threshold to be significant: len=%d", len(long))
	}
}

func TestExtractNew_MultipleNewLinesJoined(t *testing.T) {
	t.Parallel()
	existing := "original first line of the document here"
	incoming := "original first line of the document here\nbrand new second line of real content\nand a third brand new line of content"
	got := ExtractNew(existing, incoming)
	want := "brand new second line of real content\nand a third brand new line of content"
	if got != want {
		t.Errorf("unexpected joined result:\ngot:  %q\nwant: %q", got, want)
	}
}
