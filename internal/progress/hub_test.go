package progress

import (
	"sync"
	"testing"

	"go.uber.org/goleak"

	"pinganalyst/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribeFiltersByMatch(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	events, cancel := hub.Subscribe(7)
	defer cancel()
	all, cancelAll := hub.Subscribe(0)
	defer cancelAll()

	hub.Publish(Event{MatchID: 3, Status: "analyzing"})
	hub.Publish(Event{MatchID: 7, Status: "analyzing", ChunksDone: 1, ChunksTotal: 2})

	ev := <-events
	if ev.MatchID != 7 || ev.ChunksDone != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Time.IsZero() {
		t.Fatal("expected publish to stamp time")
	}
	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}

	if got := (<-all).MatchID; got != 3 {
		t.Fatalf("wildcard subscriber expected match 3 first, got %d", got)
	}
	if got := (<-all).MatchID; got != 7 {
		t.Fatalf("wildcard subscriber expected match 7 second, got %d", got)
	}
}

func TestSlowSubscriberKeepsLatest(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()

	events, cancel := hub.Subscribe(1)
	defer cancel()

	for i := 1; i <= 10; i++ {
		hub.Publish(Event{MatchID: 1, Status: "analyzing", ChunksDone: i, ChunksTotal: 10})
	}

	var last Event
	for len(events) > 0 {
		last = <-events
	}
	if last.ChunksDone != 10 {
		t.Fatalf("expected latest event to survive, got %+v", last)
	}
}

func TestSubscribeReplaysLatest(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	analysis := stats.Empty()
	analysis.TotalPoints = 9
	hub.Publish(Event{MatchID: 5, Status: "completed", Analysis: &analysis})

	events, cancel := hub.Subscribe(5)
	defer cancel()
	ev := <-events
	if !ev.Terminal() || ev.Analysis == nil || ev.Analysis.TotalPoints != 9 {
		t.Fatalf("unexpected replay %+v", ev)
	}

	hub.Forget(5)
	if _, ok := hub.Latest(5); ok {
		t.Fatal("expected Forget to drop cached event")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewHub(1)
	events, cancel := hub.Subscribe(1)
	if hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
	}
	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatal("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Subscribers())
	}

	hub.Close()
	late, lateCancel := hub.Subscribe(1)
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatal("expected subscribe after close to return a closed channel")
	}
}

func TestConcurrentPublishers(t *testing.T) {
	hub := NewHub(8)
	events, cancel := hub.Subscribe(0)

	var received sync.WaitGroup
	received.Add(1)
	count := 0
	go func() {
		defer received.Done()
		for range events {
			count++
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				hub.Publish(Event{MatchID: id, Status: "analyzing", ChunksDone: i})
			}
		}(int64(p + 1))
	}
	wg.Wait()
	cancel()
	received.Wait()
	if count == 0 {
		t.Fatal("expected subscriber to receive events")
	}
	hub.Close()
}
