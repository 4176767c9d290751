package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultBackupPath(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := defaultBackupPath("/tmp/backups", now)

	want := filepath.Join("/tmp/backups", "vault-20250314T092653Z.db")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultBackupPathUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	local := time.Date(2025, 3, 14, 9, 0, 0, 0, loc)

	got := defaultBackupPath("b", local)

	name := filepath.Base(got)
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, "vault-"), ".db")
	parsed, err := time.Parse("20060102T150405Z", stamp)
	if err != nil {
		t.Fatalf("timestamp %q does not parse: %v", stamp, err)
	}
	if !parsed.Equal(local.UTC()) {
		t.Errorf("timestamp = %v, want %v", parsed, local.UTC())
	}
}
