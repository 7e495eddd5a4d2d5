package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
	"pinganalyst/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	version, err := st.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != "001_initial" {
		t.Fatalf("unexpected schema version %q", version)
	}

	match, err := st.NewMatch(ctx, "/videos/final.mp4", "")
	if err != nil {
		t.Fatalf("NewMatch failed: %v", err)
	}
	if match.ID == 0 {
		t.Fatal("expected match ID to be assigned")
	}
	if match.FileName != "final.mp4" || match.Status != store.StatusPending {
		t.Fatalf("unexpected match: %#v", match)
	}

	fetched, err := st.GetByID(ctx, match.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.SourcePath != "/videos/final.mp4" {
		t.Fatalf("unexpected fetched match: %#v", fetched)
	}

	missing, err := st.GetByID(ctx, match.ID+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil match for unknown id, got %#v, %v", missing, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "jobs.db")
	st, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := st.NewMatch(context.Background(), "/videos/a.mp4", "a.mp4"); err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	st.Close()

	st, err = store.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	matches, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match after reopen, got %d", len(matches))
	}
}

func TestNewMatchRequiresSource(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := st.NewMatch(context.Background(), "  ", "x"); err == nil {
		t.Fatal("expected error when source path missing")
	}
}

func TestUpdateRoundTripsAnalysis(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	match := testsupport.NewMatch(t, st, cfg, "rally.mp4")

	analysis := stats.Empty()
	analysis.TotalPoints = 12
	analysis.AvgRallyLength = 4.2
	analysis.Player1.Score = 7
	analysis.Player1Color = "Red"

	heartbeat := time.Now().UTC().Truncate(time.Millisecond)
	match.Status = store.StatusAnalyzing
	match.ChunksTotal = 4
	match.ChunksDone = 1
	match.DurationSeconds = 118.5
	match.ProgressMessage = "Analyzing segment 2 of 4"
	match.LastHeartbeat = &heartbeat
	if err := match.SetAnalysis(analysis); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	if err := st.Update(ctx, match); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := st.GetByID(ctx, match.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got, ok, err := fetched.Analysis()
	if err != nil || !ok {
		t.Fatalf("Analysis: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(analysis, got); diff != "" {
		t.Fatalf("analysis mismatch (-want +got):\n%s", diff)
	}
	if fetched.Percent() != 25 {
		t.Fatalf("expected 25%%, got %v", fetched.Percent())
	}
	if fetched.LastHeartbeat == nil || !fetched.LastHeartbeat.Equal(heartbeat) {
		t.Fatalf("unexpected heartbeat %v", fetched.LastHeartbeat)
	}
	if fetched.DurationSeconds != 118.5 {
		t.Fatalf("unexpected duration %v", fetched.DurationSeconds)
	}
}

func TestListAndNextPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewMatch(t, st, cfg, "first.mp4")
	second := testsupport.NewMatch(t, st, cfg, "second.mp4")
	third := testsupport.NewMatch(t, st, cfg, "third.mp4")

	first.Status = store.StatusCompleted
	if err := st.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}

	next, err := st.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected second match next, got %#v", next)
	}

	pending, err := st.List(ctx, store.StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != third.ID {
		t.Fatalf("expected newest pending first, got %d matches", len(pending))
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(all))
	}
}

func TestNextPendingEmpty(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	next, err := st.NextPending(context.Background())
	if err != nil || next != nil {
		t.Fatalf("expected no pending match, got %#v, %v", next, err)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		status   store.Status
		expected store.Status
	}{
		{store.StatusExtracting, store.StatusPending},
		{store.StatusAnalyzing, store.StatusPending},
		{store.StatusCompleted, store.StatusCompleted},
		{store.StatusFailed, store.StatusFailed},
	}
	var ids []int64
	for _, tc := range cases {
		match := testsupport.NewMatch(t, st, cfg, string(tc.status)+".mp4")
		match.Status = tc.status
		if err := st.Update(ctx, match); err != nil {
			t.Fatalf("Update: %v", err)
		}
		ids = append(ids, match.ID)
	}

	reset, err := st.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 2 {
		t.Fatalf("expected 2 matches reset, got %d", reset)
	}
	for i, tc := range cases {
		match, err := st.GetByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if match.Status != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.status, tc.expected, match.Status)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewMatch(t, st, cfg, "stale.mp4")
	old := time.Now().Add(-time.Hour)
	stale.Status = store.StatusAnalyzing
	stale.LastHeartbeat = &old
	if err := st.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fresh := testsupport.NewMatch(t, st, cfg, "fresh.mp4")
	fresh.Status = store.StatusAnalyzing
	if err := st.Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := st.UpdateHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	reclaimed, err := st.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", reclaimed)
	}
	got, _ := st.GetByID(ctx, stale.ID)
	if got.Status != store.StatusPending {
		t.Fatalf("expected stale match pending, got %s", got.Status)
	}
	got, _ = st.GetByID(ctx, fresh.ID)
	if got.Status != store.StatusAnalyzing {
		t.Fatalf("expected fresh match untouched, got %s", got.Status)
	}
}

func TestRetryMovesFailedToPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.NewMatch(t, st, cfg, "failed.mp4")
	failed.Status = store.StatusFailed
	failed.ErrorMessage = "Rate limit exceeded. Please try again in a moment."
	if err := st.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	done := testsupport.NewMatch(t, st, cfg, "done.mp4")
	done.Status = store.StatusCompleted
	if err := st.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := st.Retry(ctx, failed.ID, done.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 retried, got %d", n)
	}
	got, _ := st.GetByID(ctx, failed.ID)
	if got.Status != store.StatusPending || got.ErrorMessage != "" {
		t.Fatalf("unexpected retried match: %#v", got)
	}
	got, _ = st.GetByID(ctx, done.ID)
	if got.Status != store.StatusCompleted {
		t.Fatalf("completed match must not be retried, got %s", got.Status)
	}
}

func TestChunkResultsResumeState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	match := testsupport.NewMatch(t, st, cfg, "chunks.mp4")

	chunk := func(index, points, rallies int, avg float64) store.ChunkResult {
		a := stats.Empty()
		a.TotalPoints = points
		a.TotalRallies = rallies
		a.AvgRallyLength = avg
		return store.ChunkResult{
			MatchID:      match.ID,
			ChunkIndex:   index,
			StartSeconds: float64(index * 30),
			EndSeconds:   float64((index + 1) * 30),
			FrameCount:   30,
			Attempts:     1,
			Analysis:     a,
		}
	}

	for _, r := range []store.ChunkResult{chunk(1, 6, 6, 5), chunk(0, 4, 4, 2), chunk(1, 6, 6, 5)} {
		if err := st.SaveChunkResult(ctx, r); err != nil {
			t.Fatalf("SaveChunkResult: %v", err)
		}
	}

	results, err := st.ChunkResults(ctx, match.ID)
	if err != nil {
		t.Fatalf("ChunkResults: %v", err)
	}
	if len(results) != 2 || results[0].ChunkIndex != 0 || results[1].ChunkIndex != 1 {
		t.Fatalf("unexpected chunk results: %#v", results)
	}

	merged, done := store.MergeChunkResults(results)
	if merged.TotalPoints != 10 || merged.AvgRallyLength != 3.8 {
		t.Fatalf("unexpected merged analysis: %+v", merged)
	}
	if diff := cmp.Diff(map[int]bool{0: true, 1: true}, done); diff != "" {
		t.Fatalf("done set mismatch (-want +got):\n%s", diff)
	}

	removed, err := st.Remove(ctx, match.ID)
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	results, err = st.ChunkResults(ctx, match.ID)
	if err != nil {
		t.Fatalf("ChunkResults after remove: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected chunk results to cascade, got %d", len(results))
	}
}

func TestSaveChunkResultValidates(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := st.SaveChunkResult(context.Background(), store.ChunkResult{ChunkIndex: 0}); err == nil {
		t.Fatal("expected error without match id")
	}
}

func TestSummaryAndFailInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, status := range []store.Status{store.StatusPending, store.StatusAnalyzing, store.StatusExtracting, store.StatusCompleted} {
		match := testsupport.NewMatch(t, st, cfg, string(status)+".mp4")
		match.Status = status
		if err := st.Update(ctx, match); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	summary, err := st.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := store.Summary{Total: 4, Pending: 1, Processing: 2, Completed: 1}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	failed, err := st.FailInFlight(ctx, store.DaemonStopReason)
	if err != nil {
		t.Fatalf("FailInFlight: %v", err)
	}
	if failed != 2 {
		t.Fatalf("expected 2 failed, got %d", failed)
	}
	matches, err := st.List(ctx, store.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, m := range matches {
		if m.ErrorMessage != store.DaemonStopReason {
			t.Fatalf("unexpected error message %q", m.ErrorMessage)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := store.ParseStatus(" Analyzing "); !ok || status != store.StatusAnalyzing {
		t.Fatalf("unexpected parse: %q %v", status, ok)
	}
	if _, ok := store.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
