package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"pinganalyst/internal/api"
	"pinganalyst/internal/testsupport"
)

func TestMatchesLifecycle(t *testing.T) {
	cfg, path := startDaemon(t)

	video := filepath.Join(testsupport.BaseDir(cfg), "clips", "semi-final.mp4")
	testsupport.WriteFile(t, video, 32*1024)

	out, _, err := runCLI(t, path, "matches", "add", video)
	if err != nil {
		t.Fatalf("matches add: %v", err)
	}
	if !strings.Contains(out, "Queued match 1 (semi-final.mp4)") {
		t.Fatalf("unexpected add output: %q", out)
	}

	out, _, err = runCLI(t, path, "matches", "add", "--upload", video)
	if err != nil {
		t.Fatalf("matches add --upload: %v", err)
	}
	if !strings.Contains(out, "Queued match 2") {
		t.Fatalf("unexpected upload output: %q", out)
	}

	out, _, err = runCLI(t, path, "matches", "list")
	if err != nil {
		t.Fatalf("matches list: %v", err)
	}
	if !strings.Contains(out, "semi-final.mp4") || !strings.Contains(out, "Pending") {
		t.Fatalf("unexpected list output: %q", out)
	}

	out, _, err = runCLI(t, path, "matches", "list", "--format", "json", "--status", "pending")
	if err != nil {
		t.Fatalf("matches list json: %v", err)
	}
	var list api.MatchListResponse
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(list.Matches) != 2 {
		t.Fatalf("expected two pending matches, got %+v", list.Matches)
	}

	out, _, err = runCLI(t, path, "matches", "show", "1")
	if err != nil {
		t.Fatalf("matches show: %v", err)
	}
	if !strings.Contains(out, "Match 1: semi-final.mp4") || !strings.Contains(out, video) {
		t.Fatalf("unexpected show output: %q", out)
	}

	out, _, err = runCLI(t, path, "matches", "retry")
	if err != nil {
		t.Fatalf("matches retry: %v", err)
	}
	if !strings.Contains(out, "No failed matches") {
		t.Fatalf("unexpected retry output: %q", out)
	}

	out, _, err = runCLI(t, path, "matches", "remove", "1", "2")
	if err != nil {
		t.Fatalf("matches remove: %v", err)
	}
	if !strings.Contains(out, "Removed match 1") || !strings.Contains(out, "Removed match 2") {
		t.Fatalf("unexpected remove output: %q", out)
	}

	if _, _, err := runCLI(t, path, "matches", "show", "1"); err == nil || !strings.Contains(err.Error(), "match 1 not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestMatchesRejectsBadID(t *testing.T) {
	_, path := startDaemon(t)
	if _, _, err := runCLI(t, path, "matches", "show", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestMatchesWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	path := writeConfig(t, cfg)

	_, _, err := runCLI(t, path, "matches", "list")
	if err == nil || !strings.Contains(err.Error(), "pinganalyst start") {
		t.Fatalf("expected daemon unavailable hint, got %v", err)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	_, path := startDaemon(t)
	out, _, err := runCLI(t, path, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected output: %q", out)
	}
}
