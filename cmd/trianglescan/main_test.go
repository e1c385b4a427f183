package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMissingRootIsRunError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{filepath.Join(t.TempDir(), "nope")}, &stdout, &stderr)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("run error must not produce partial output, got %q", stdout.String())
	}
}

func TestRunNoArgsShowsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Errorf("expected usage on stderr, got %q", stderr.String())
	}
}

func TestRunCleanSnapshotExitsZero(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"private/var/mobile", "private/var/root", "private/var/containers"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{root}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "No traces of compromise were identified") {
		t.Errorf("expected the no-findings line, got %q", stdout.String())
	}
}

func TestRunFindingsExitTwo(t *testing.T) {
	root := t.TempDir()
	// Two emptied attachment leaves plus a touched preference file: a
	// cross-category combination inside the window.
	for _, dir := range []string{
		"private/var/mobile/Library/SMS/Attachments/ff/15",
		"private/var/mobile/Library/SMS/Attachments/76/06",
		"private/var/mobile/Library/Preferences",
		"private/var/root",
		"private/var/containers",
	} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	pref := filepath.Join(root, "private/var/mobile/Library/Preferences/com.apple.locationd.StatusBarIconManager.plist")
	if err := os.WriteFile(pref, []byte("plist"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{root}, &stdout, &stderr)

	if code != 2 {
		t.Fatalf("exit code = %d, want 2 (stdout: %s)", code, stdout.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "IDENTIFIED TRACES OF COMPROMISE") {
		t.Errorf("missing findings header in %q", out)
	}
	if !strings.Contains(out, "SUSPICION Suspicious combination of events:") {
		t.Errorf("missing suspicion line in %q", out)
	}
	if !strings.Contains(out, " * file modification: private/var/mobile/Library/SMS/Attachments/76/06") {
		t.Errorf("missing member bullet in %q", out)
	}
}

func TestRunJSONFormat(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "private/var/mobile"), 0o755); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"-format", "json", root}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout.String()), "{") {
		t.Errorf("expected JSON output, got %q", stdout.String())
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-version"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "trianglescan") {
		t.Errorf("expected version line, got %q", stdout.String())
	}
}

func TestRunBadConfigIsRunError(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "c.toml")
	if err := os.WriteFile(cfg, []byte("[correlation]\nwindow_sec = -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfg, t.TempDir()}, &stdout, &stderr)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
