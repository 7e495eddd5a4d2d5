package fileutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageReader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	path, n, err := StageReader(dir, "clip.mp4", strings.NewReader("video-bytes"), 100)
	if err != nil {
		t.Fatalf("StageReader: %v", err)
	}
	if n != 11 || path != filepath.Join(dir, "clip.mp4") {
		t.Fatalf("unexpected result: %s %d", path, n)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "video-bytes" {
		t.Fatalf("content = %q", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the staged file, got %d entries", len(entries))
	}
}

func TestStageReaderEnforcesLimit(t *testing.T) {
	dir := t.TempDir()
	_, _, err := StageReader(dir, "big.mp4", bytes.NewReader(make([]byte, 64)), 32)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected partial file removed, found %d entries", len(entries))
	}
}

func TestStageReaderExactLimit(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := StageReader(dir, "fit.mp4", bytes.NewReader(make([]byte, 32)), 32); err != nil {
		t.Fatalf("expected exact-size stream to be accepted: %v", err)
	}
}

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	if err := os.WriteFile(src, []byte("hello world"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := CopyVerified(src, dst); err != nil {
		t.Fatalf("CopyVerified: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content = %q", got)
	}
}

func TestCopyVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyVerified(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":              "clip.mp4",
		"../../etc/passwd":      "passwd",
		`C:\videos\final.mov`:   "final.mov",
		"  spaced name.mp4  ":   "spaced name.mp4",
		"..":                    "",
		"bad\x00name.mp4":       "badname.mp4",
	}
	for in, want := range cases {
		if got := CleanName(in); got != want {
			t.Errorf("CleanName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithin(t *testing.T) {
	if !Within("/data/staging", "/data/staging/a.mp4") {
		t.Fatal("expected file inside dir")
	}
	if Within("/data/staging", "/data/other/a.mp4") {
		t.Fatal("expected file outside dir")
	}
	if Within("/data/staging", "/data/staging/../x.mp4") {
		t.Fatal("expected traversal to be rejected")
	}
}
