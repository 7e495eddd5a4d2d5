package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pinganalyst/internal/config"
	"pinganalyst/internal/frames"
	"pinganalyst/internal/notifications"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
	"pinganalyst/internal/testsupport"
	"pinganalyst/internal/workflow"
)

// fakeAnalyzer returns one point and one rally per call unless errs names the
// call (1-based) that should fail.
type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  int
	frames []int
	errs   map[int]error
}

func (f *fakeAnalyzer) AnalyzeFrames(_ context.Context, urls []string) (stats.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.frames = append(f.frames, len(urls))
	if err := f.errs[f.calls]; err != nil {
		return stats.Analysis{}, err
	}
	a := stats.Empty()
	a.TotalPoints = 2
	a.TotalRallies = 2
	a.AvgRallyLength = 3
	a.Player1Color = "Red"
	a.Player2Color = "Blue"
	a.Player1.Score = 1
	a.Player2.Score = 1
	return a, nil
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAnalyzer) Frames() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.frames...)
}

type sentNotification struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]notifications.Event, 0, len(r.sent))
	for _, s := range r.sent {
		events = append(events, s.event)
	}
	return events
}

type harness struct {
	cfg      *config.Config
	store    *store.Store
	media    *testsupport.FakeMedia
	analyzer *fakeAnalyzer
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func newHarness(t *testing.T, analyzer *fakeAnalyzer, opts ...workflow.ManagerOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	h := &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		media:    &testsupport.FakeMedia{Duration: 65, Width: 1920, Height: 1080},
		analyzer: analyzer,
		notifier: &recordingNotifier{},
	}
	base := []workflow.ManagerOption{
		workflow.WithNotifier(h.notifier),
		workflow.WithPreflight(nil),
		workflow.WithExtractorOptions(frames.WithRunner(h.media.Runner())),
	}
	h.manager = workflow.NewManager(cfg, h.store, analyzer, append(base, opts...)...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.manager.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		h.manager.Stop()
		cancel()
	})
}

func waitForStatus(t *testing.T, st *store.Store, id int64, want store.Status) *store.Match {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		match, err := st.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if match != nil && match.Status == want {
			return match
		}
		time.Sleep(20 * time.Millisecond)
	}
	match, _ := st.GetByID(context.Background(), id)
	t.Fatalf("timed out waiting for status %s, last seen %+v", want, match)
	return nil
}
