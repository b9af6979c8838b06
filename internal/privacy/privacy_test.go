package privacy

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBlocklist_AlwaysBlockedCannotBeOverridden(t *testing.T) {
	t.Parallel()
	b := NewBlocklist(nil, testLogger())
	if !b.Blocks(Window{BundleID: "com.ehl.viewer"}) {
		t.Errorf("expected viewer UI bundle id to always be blocked")
	}
}

func TestBlocklist_ConfiguredGlob(t *testing.T) {
	t.Parallel()
	b := NewBlocklist([]string{"com.secret.*"}, testLogger())
	if !b.Blocks(Window{BundleID: "com.secret.vault"}) {
		t.Errorf("expected glob match to block")
	}
	if b.Blocks(Window{BundleID: "com.other.app"}) {
		t.Errorf("expected non-matching bundle id to pass")
	}
}

func TestBlocklist_TitleSensitivityMarker(t *testing.T) {
	t.Parallel()
	b := NewBlocklist(nil, testLogger())
	if !b.Blocks(Window{BundleID: "com.example.browser", Title: "Sign In - Example"}) {
		t.Errorf("expected title marker to block")
	}
	if b.Blocks(Window{BundleID: "com.example.browser", Title: "Weekly Report"}) {
		t.Errorf("expected unrelated title to pass")
	}
}

func TestBlocklist_SensitiveURLFragment(t *testing.T) {
	t.Parallel()
	b := NewBlocklist(nil, testLogger())
	if !b.Blocks(Window{BundleID: "com.example.browser", Title: "chase.com - Account Overview"}) {
		t.Errorf("expected sensitive domain fragment in title to block")
	}
	if !b.Blocks(Window{BundleID: "com.example.browser", Title: "example.com/checkout/step-2"}) {
		t.Errorf("expected sensitive path fragment in title to block")
	}
	if b.Blocks(Window{BundleID: "com.example.browser", Title: "example.com/docs/readme"}) {
		t.Errorf("expected unrelated URL-shaped title to pass")
	}
}

func TestBlocklist_Append(t *testing.T) {
	t.Parallel()
	b := NewBlocklist(nil, testLogger())
	if b.Blocks(Window{BundleID: "com.app.target"}) {
		t.Fatal("should not be blocked before append")
	}
	b.Append("com.app.target")
	if !b.Blocks(Window{BundleID: "com.app.target"}) {
		t.Errorf("expected appended bundle id to be blocked")
	}
}

func TestBlocklist_WatchFileReloadsOnChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.txt")
	if err := os.WriteFile(path, []byte("com.initial.app\n"), 0644); err != nil {
		t.Fatal(err)
	}

	loadFn := func(p string) ([]string, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				out = append(out, line)
			}
		}
		return out, nil
	}

	b := NewBlocklist(nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.WatchFile(ctx, path, loadFn); err != nil {
		t.Fatalf("WatchFile failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.Blocks(Window{BundleID: "com.initial.app"}) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !b.Blocks(Window{BundleID: "com.initial.app"}) {
		t.Fatal("expected initial blocklist load to take effect")
	}

	if err := os.WriteFile(path, []byte("com.updated.app\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.Blocks(Window{BundleID: "com.updated.app"}) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected blocklist hot-reload to pick up file change")
}

func TestRedact_CreditCard(t *testing.T) {
	t.Parallel()
	out := Redact("card: 4111111111111111 thanks", RedactionConfig{})
	if !strings.Contains(out, "[REDACTED_CARD]") {
		t.Errorf("expected card redaction, got %q", out)
	}
}

func TestRedact_SSN(t *testing.T) {
	t.Parallel()
	out := Redact("ssn 123-45-6789 on file", RedactionConfig{})
	if !strings.Contains(out, "[REDACTED_SSN]") {
		t.Errorf("expected ssn redaction, got %q", out)
	}
}

func TestRedact_APIKey(t *testing.T) {
	t.Parallel()
	out := Redact("token sk-abcdefghijklmnopqrstuvwxyz", RedactionConfig{})
	if !strings.Contains(out, "[REDACTED_KEY]") {
		t.Errorf("expected api key redaction, got %q", out)
	}
}

func TestRedact_Password(t *testing.T) {
	t.Parallel()
	out := Redact("password=hunter2", RedactionConfig{})
	if !strings.Contains(out, "[REDACTED_PASSWORD]") {
		t.Errorf("expected password redaction, got %q", out)
	}
}

func TestRedact_EmailOffByDefault(t *testing.T) {
	t.Parallel()
	text := "contact me at alice@example.com"
	out := Redact(text, RedactionConfig{})
	if out != text {
		t.Errorf("expected email untouched by default, got %q", out)
	}
	out = Redact(text, RedactionConfig{RedactEmail: true})
	if !strings.Contains(out, "[REDACTED_EMAIL]") {
		t.Errorf("expected email redaction when enabled, got %q", out)
	}
}

func TestRedact_Idempotent(t *testing.T) {
	t.Parallel()
	cfg := RedactionConfig{RedactEmail: true, RedactPhone: true}
	text := "card 4111111111111111 ssn 123-45-6789 email alice@example.com phone 415-555-0100 password=hunter2"
	once := Redact(text, cfg)
	twice := Redact(once, cfg)
	if once != twice {
		t.Errorf("expected redaction to be idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

