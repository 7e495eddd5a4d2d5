package api

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
	"pinganalyst/internal/workflow"
)

func TestFromMatchIncludesProgressAndAnalysis(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	match := &store.Match{
		ID:              7,
		FileName:        "final.mp4",
		SourcePath:      "/staging/abc.mp4",
		Status:          store.StatusAnalyzing,
		ChunksTotal:     4,
		ChunksDone:      1,
		ProgressMessage: "Analyzing segment 2 of 4",
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	analysis := stats.Empty()
	analysis.TotalPoints = 5
	if err := match.SetAnalysis(analysis); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}

	got := FromMatch(match)
	want := MatchProgress{ChunksDone: 1, ChunksTotal: 4, Percent: 25, Message: "Analyzing segment 2 of 4"}
	if diff := cmp.Diff(want, got.Progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
	if got.Status != "analyzing" {
		t.Fatalf("status = %q", got.Status)
	}
	if got.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("createdAt = %q", got.CreatedAt)
	}
	if got.Analysis == nil || got.Analysis.TotalPoints != 5 {
		t.Fatalf("expected decoded analysis, got %+v", got.Analysis)
	}
}

func TestFromMatchPendingDefaults(t *testing.T) {
	got := FromMatch(&store.Match{ID: 1, Status: store.StatusPending})
	if got.Progress.Message != "Waiting to start" {
		t.Fatalf("message = %q", got.Progress.Message)
	}
	if got.Analysis != nil {
		t.Fatal("expected no analysis before any chunk merged")
	}
	if got.CreatedAt != "" {
		t.Fatalf("expected empty timestamp, got %q", got.CreatedAt)
	}
}

func TestFromMatchSkipsCorruptResult(t *testing.T) {
	got := FromMatch(&store.Match{ID: 2, Status: store.StatusFailed, ResultJSON: "{not json"})
	if got.Analysis != nil {
		t.Fatal("expected corrupt result to be omitted")
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:     true,
		LastError:   "preflight failed",
		LastMatch:   &store.Match{ID: 3, Status: store.StatusCompleted},
		MatchStats:  map[store.Status]int{store.StatusPending: 2},
		Subscribers: 1,
	}
	got := FromStatusSummary(summary)
	if !got.Running || got.LastError != "preflight failed" || got.Subscribers != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.LastMatch == nil || got.LastMatch.ID != 3 {
		t.Fatalf("unexpected last match: %+v", got.LastMatch)
	}
	wantStats := map[string]int{"pending": 2, "extracting": 0, "analyzing": 0, "completed": 0, "failed": 0}
	if diff := cmp.Diff(wantStats, got.MatchStats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}
