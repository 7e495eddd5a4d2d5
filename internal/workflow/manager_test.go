package workflow_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/config"
	"pinganalyst/internal/notifications"
	"pinganalyst/internal/preflight"
	"pinganalyst/internal/progress"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
	"pinganalyst/internal/testsupport"
	"pinganalyst/internal/workflow"
)

func TestManagerAnalyzesMatch(t *testing.T) {
	hub := progress.NewHub(64)
	h := newHarness(t, &fakeAnalyzer{}, workflow.WithHub(hub))
	match := testsupport.NewMatch(t, h.store, h.cfg, "final.mp4")

	events, cancel := hub.Subscribe(match.ID)
	defer cancel()

	h.start(t)
	done := waitForStatus(t, h.store, match.ID, store.StatusCompleted)

	if done.ChunksTotal != 3 || done.ChunksDone != 3 {
		t.Fatalf("expected 3 of 3 chunks, got %d of %d", done.ChunksDone, done.ChunksTotal)
	}
	if done.DurationSeconds != 65 {
		t.Fatalf("expected duration 65, got %v", done.DurationSeconds)
	}
	analysis, ok, err := done.Analysis()
	if err != nil || !ok {
		t.Fatalf("expected stored analysis, ok=%v err=%v", ok, err)
	}
	if analysis.TotalPoints != 6 || analysis.Player1.Score != 3 {
		t.Fatalf("unexpected merged analysis: %+v", analysis)
	}
	if got := h.analyzer.Calls(); got != 3 {
		t.Fatalf("expected 3 analyzer calls, got %d", got)
	}
	if diff := cmp.Diff([]int{30, 30, 5}, h.analyzer.Frames()); diff != "" {
		t.Fatalf("frames per chunk mismatch (-want +got):\n%s", diff)
	}
	if got := len(h.media.Captures()); got != 65 {
		t.Fatalf("expected 65 captures, got %d", got)
	}

	results, err := h.store.ChunkResults(context.Background(), match.ID)
	if err != nil {
		t.Fatalf("ChunkResults failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 stored chunk results, got %d", len(results))
	}

	var last progress.Event
	deadline := time.After(5 * time.Second)
	for !last.Terminal() {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed early")
			}
			last = ev
		case <-deadline:
			t.Fatalf("no terminal event, last %+v", last)
		}
	}
	if last.Status != string(store.StatusCompleted) || last.Analysis == nil || last.Analysis.TotalPoints != 6 {
		t.Fatalf("unexpected terminal event: %+v", last)
	}

	waitForNotification(t, h.notifier, notifications.EventMatchCompleted)
	h.notifier.mu.Lock()
	payload := h.notifier.sent[0].payload
	h.notifier.mu.Unlock()
	if payload["score"] != "Red 3 - 3 Blue" {
		t.Fatalf("unexpected score payload: %v", payload["score"])
	}
}

func TestManagerRecordsPartialResultOnFailure(t *testing.T) {
	credits := &analyzer.Error{
		Kind:    analyzer.ErrCreditsExhausted,
		Status:  http.StatusPaymentRequired,
		Message: "AI usage limit reached. Please add credits in Settings.",
	}
	h := newHarness(t, &fakeAnalyzer{errs: map[int]error{2: credits}})
	match := testsupport.NewMatch(t, h.store, h.cfg, "credits.mp4")

	h.start(t)
	failed := waitForStatus(t, h.store, match.ID, store.StatusFailed)

	want := "Segment 2 failed: AI usage limit reached. Please add credits in Settings."
	if failed.ErrorMessage != want {
		t.Fatalf("error message = %q, want %q", failed.ErrorMessage, want)
	}
	if failed.ChunksDone != 1 {
		t.Fatalf("expected 1 chunk done, got %d", failed.ChunksDone)
	}
	analysis, ok, err := failed.Analysis()
	if err != nil || !ok || analysis.TotalPoints != 2 {
		t.Fatalf("expected partial analysis with 2 points, got %+v ok=%v err=%v", analysis, ok, err)
	}
	if got := h.analyzer.Calls(); got != 2 {
		t.Fatalf("credits errors must not be retried, got %d calls", got)
	}
	waitForNotification(t, h.notifier, notifications.EventMatchFailed)
}

func TestManagerResumesFromStoredChunks(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{})
	match := testsupport.NewMatch(t, h.store, h.cfg, "resume.mp4")

	stored := stats.Empty()
	stored.TotalPoints = 10
	stored.TotalRallies = 10
	stored.AvgRallyLength = 5
	if err := h.store.SaveChunkResult(context.Background(), store.ChunkResult{
		MatchID:      match.ID,
		ChunkIndex:   0,
		StartSeconds: 0,
		EndSeconds:   30,
		FrameCount:   30,
		Attempts:     1,
		Analysis:     stored,
	}); err != nil {
		t.Fatalf("SaveChunkResult failed: %v", err)
	}

	h.start(t)
	done := waitForStatus(t, h.store, match.ID, store.StatusCompleted)

	if got := h.analyzer.Calls(); got != 2 {
		t.Fatalf("expected 2 analyzer calls after resume, got %d", got)
	}
	for _, ts := range h.media.Captures() {
		if ts < 30 {
			t.Fatalf("completed chunk was sampled again at %.2fs", ts)
		}
	}
	analysis, _, err := done.Analysis()
	if err != nil {
		t.Fatalf("Analysis failed: %v", err)
	}
	if analysis.TotalPoints != 14 || analysis.TotalRallies != 14 {
		t.Fatalf("unexpected resumed totals: %+v", analysis)
	}
	// Rounded at every merge: 56/12 = 4.7, then (4.7*12 + 6)/14 = 4.5.
	if analysis.AvgRallyLength != 4.5 {
		t.Fatalf("avg rally length = %v, want 4.5", analysis.AvgRallyLength)
	}
}

func TestManagerDiscardsMismatchedChunkResults(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{})
	match := testsupport.NewMatch(t, h.store, h.cfg, "replanned.mp4")

	if err := h.store.SaveChunkResult(context.Background(), store.ChunkResult{
		MatchID:      match.ID,
		ChunkIndex:   1,
		StartSeconds: 20,
		EndSeconds:   40,
		FrameCount:   20,
		Attempts:     1,
		Analysis:     stats.Empty(),
	}); err != nil {
		t.Fatalf("SaveChunkResult failed: %v", err)
	}

	h.start(t)
	waitForStatus(t, h.store, match.ID, store.StatusCompleted)
	if got := h.analyzer.Calls(); got != 3 {
		t.Fatalf("expected every chunk analyzed again, got %d calls", got)
	}
}

func TestManagerRetryAfterFailureResumes(t *testing.T) {
	gatewayErr := &analyzer.Error{Kind: analyzer.ErrGateway, Status: http.StatusBadRequest, Message: "AI gateway error: 400"}
	h := newHarness(t, &fakeAnalyzer{errs: map[int]error{3: gatewayErr}})
	match := testsupport.NewMatch(t, h.store, h.cfg, "retry.mp4")

	h.start(t)
	waitForStatus(t, h.store, match.ID, store.StatusFailed)

	if _, err := h.store.Retry(context.Background(), match.ID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	h.manager.Wake()
	done := waitForStatus(t, h.store, match.ID, store.StatusCompleted)
	if got := h.analyzer.Calls(); got != 4 {
		t.Fatalf("expected only the failed chunk to be retried, got %d calls total", got)
	}
	if done.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", done.ErrorMessage)
	}
}

func TestManagerFailsMissingVideo(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{})
	match, err := h.store.NewMatch(context.Background(), "/nonexistent/video.mp4", "")
	if err != nil {
		t.Fatalf("NewMatch failed: %v", err)
	}

	h.start(t)
	failed := waitForStatus(t, h.store, match.ID, store.StatusFailed)
	if !strings.Contains(failed.ErrorMessage, "staged video unavailable") {
		t.Fatalf("unexpected error message: %q", failed.ErrorMessage)
	}
	if h.analyzer.Calls() != 0 {
		t.Fatal("analyzer should not run without a video")
	}
}

func TestManagerResetsInterruptedMatchOnStart(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{})
	match := testsupport.NewMatch(t, h.store, h.cfg, "stuck.mp4")
	match.Status = store.StatusAnalyzing
	if err := h.store.Update(context.Background(), match); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	h.start(t)
	waitForStatus(t, h.store, match.ID, store.StatusCompleted)
}

func TestManagerWaitsWhenPreflightFails(t *testing.T) {
	failing := func(*config.Config) []preflight.Result {
		return []preflight.Result{{Name: "FFmpeg", Detail: `binary "ffmpeg" not found`}}
	}
	h := newHarness(t, &fakeAnalyzer{}, workflow.WithPreflight(failing))
	match := testsupport.NewMatch(t, h.store, h.cfg, "waiting.mp4")

	h.start(t)

	deadline := time.Now().Add(5 * time.Second)
	for {
		status := h.manager.Status(context.Background())
		if strings.Contains(status.LastError, "preflight failed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected preflight error in status, got %+v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	current, err := h.store.GetByID(context.Background(), match.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Status != store.StatusPending {
		t.Fatalf("expected match to stay pending, got %s", current.Status)
	}
	if h.analyzer.Calls() != 0 {
		t.Fatal("analyzer should not run while preflight fails")
	}
}

func TestManagerStartTwice(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{})
	h.start(t)
	if err := h.manager.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !h.manager.Running() {
		t.Fatal("expected manager to report running")
	}
}

func TestManagerStatusCounts(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{})
	testsupport.NewMatch(t, h.store, h.cfg, "a.mp4")
	testsupport.NewMatch(t, h.store, h.cfg, "b.mp4")

	status := h.manager.Status(context.Background())
	if status.Running {
		t.Fatal("manager should not be running before Start")
	}
	if status.MatchStats[store.StatusPending] != 2 {
		t.Fatalf("expected 2 pending, got %v", status.MatchStats)
	}
}

func TestSamplingOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithChunkSeconds(12.5))
	opts := workflow.SamplingOptions(cfg)
	if opts.ChunkDuration != 12500*time.Millisecond {
		t.Fatalf("chunk duration = %v", opts.ChunkDuration)
	}
	if opts.MaxDimension != cfg.Sampling.MaxDimension || opts.JPEGQuality != cfg.Sampling.JPEGQuality {
		t.Fatalf("unexpected options: %+v", opts)
	}

	policy := workflow.RetryPolicy(cfg)
	if policy.Attempts() != 4 {
		t.Fatalf("expected 4 attempts, got %d", policy.Attempts())
	}

	backend := workflow.BackendConfig(cfg)
	if backend.APIKey != "test-key" || backend.Model != cfg.LLM.Model {
		t.Fatalf("unexpected backend config: %+v", backend)
	}
}

func waitForNotification(t *testing.T, n *recordingNotifier, event notifications.Event) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range n.Events() {
			if got == event {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notification %s not sent, got %v", event, n.Events())
}
