package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var testSessionKey = []byte("0123456789abcdef0123456789abcdef")

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(filepath.Join(t.TempDir(), "audit"))
	if err := l.SetKey(testSessionKey); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	return l
}

// logFile returns the single monthly log file the test wrote.
func logFile(t *testing.T, l *Logger) string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(l.Path(), "*.jsonl"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	return files[0]
}

func TestLogRequiresKey(t *testing.T) {
	l := NewLogger(filepath.Join(t.TempDir(), "audit"))

	if err := l.LogSuccess(OpVaultUnlock, ""); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey before SetKey, got %v", err)
	}

	if err := l.SetKey(testSessionKey); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	if err := l.LogSuccess(OpVaultUnlock, ""); err != nil {
		t.Fatalf("Log failed after SetKey: %v", err)
	}

	l.ClearKey()
	if err := l.LogSuccess(OpVaultLock, ""); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey after ClearKey, got %v", err)
	}
}

func TestLogChainsEvents(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSuccess(OpVaultInit, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogSuccess(OpEntrySave, "github"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogError(OpEntryRetrieve, "github", errors.New("store unavailable")); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	if err := l.LogDenied(OpSessionDenied, "facebook", "user declined"); err != nil {
		t.Fatalf("LogDenied failed: %v", err)
	}

	events, err := l.ListEvents(0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	for i, e := range events {
		if e.Chain.Sequence != int64(i+1) {
			t.Errorf("event %d: expected sequence %d, got %d", i, i+1, e.Chain.Sequence)
		}
		if e.ID == "" {
			t.Errorf("event %d: missing ID", i)
		}
		if e.Timestamp == "" {
			t.Errorf("event %d: missing timestamp", i)
		}
	}
	if events[0].Chain.PrevHash != "genesis" {
		t.Errorf("first event should chain from genesis, got %q", events[0].Chain.PrevHash)
	}
	if events[1].Chain.PrevHash != events[0].Chain.HMAC {
		t.Error("second event does not chain to first")
	}

	if events[0].SiteHMAC != "" {
		t.Error("event without site should have empty site_hmac")
	}
	if events[1].SiteHMAC == "" || events[1].SiteHMAC == "github" {
		t.Errorf("site should be HMAC-masked, got %q", events[1].SiteHMAC)
	}
	if events[1].SiteHMAC != events[2].SiteHMAC {
		t.Error("same site should produce the same mask")
	}
	if events[1].SiteHMAC == events[3].SiteHMAC {
		t.Error("different sites should produce different masks")
	}

	if events[1].Result != ResultSuccess {
		t.Errorf("expected success result, got %q", events[1].Result)
	}
	if events[2].Result != ResultError || events[2].Err != "store unavailable" {
		t.Errorf("error event not recorded: result=%q err=%q", events[2].Result, events[2].Err)
	}
	if events[3].Result != ResultDenied || events[3].Err != "user declined" {
		t.Errorf("denied event not recorded: result=%q err=%q", events[3].Result, events[3].Err)
	}
}

func TestVerifyCleanChain(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		if err := l.LogSuccess(OpEntrySave, "github"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain, got errors: %v", result.Errors)
	}
	if result.Records != 5 {
		t.Errorf("expected 5 records, got %d", result.Records)
	}
}

func TestVerifyRequiresKey(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogSuccess(OpVaultInit, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	l.ClearKey()
	if _, err := l.Verify(); !errors.Is(err, ErrNoKey) {
		t.Errorf("expected ErrNoKey, got %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogSuccess(OpVaultInit, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogSuccess(OpEntrySave, "github"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	file := logFile(t, l)
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	tampered := bytes.Replace(data, []byte(`"op":"entry.save"`), []byte(`"op":"entry.delete"`), 1)
	if bytes.Equal(tampered, data) {
		t.Fatal("tamper replacement did not apply")
	}
	if err := os.WriteFile(file, tampered, 0600); err != nil {
		t.Fatalf("failed to write tampered log: %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
	if len(result.Errors) == 0 {
		t.Error("expected verification errors")
	}
}

func TestVerifyDetectsRemovedRecord(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 3; i++ {
		if err := l.LogSuccess(OpEntrySave, "github"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	file := logFile(t, l)
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	lines := bytes.SplitN(data, []byte("\n"), 2)
	if len(lines) != 2 {
		t.Fatal("expected multiple records")
	}
	if err := os.WriteFile(file, lines[1], 0600); err != nil {
		t.Fatalf("failed to truncate log: %v", err)
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected removed record to break the chain")
	}
}

func TestChainContinuesAcrossLoggers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")

	first := NewLogger(dir)
	if err := first.SetKey(testSessionKey); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	if err := first.LogSuccess(OpVaultInit, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := first.LogSuccess(OpEntrySave, "github"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	second := NewLogger(dir)
	if err := second.SetKey(testSessionKey); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	if err := second.LogSuccess(OpVaultUnlock, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	result, err := second.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected chain to continue across loggers, got errors: %v", result.Errors)
	}
	if result.Records != 3 {
		t.Errorf("expected 3 records, got %d", result.Records)
	}
}

func TestVerifyFailsUnderDifferentKey(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogSuccess(OpVaultInit, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	other := NewLogger(l.Path())
	if err := other.SetKey([]byte("another-session-key-32-bytes!!!!")); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}

	result, err := other.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected verification to fail under a different session key")
	}
}

func TestListEventsLimit(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		if err := l.LogSuccess(OpEntrySave, "github"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	events, err := l.ListEvents(2)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Chain.Sequence != 4 || events[1].Chain.Sequence != 5 {
		t.Errorf("expected most recent events, got sequences %d, %d",
			events[0].Chain.Sequence, events[1].Chain.Sequence)
	}
}

func TestListEventsEmptyDir(t *testing.T) {
	l := NewLogger(filepath.Join(t.TempDir(), "audit"))
	events, err := l.ListEvents(0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}
