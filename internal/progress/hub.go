// Package progress fans match progress events out to live subscribers such as
// the dashboard websocket stream.
package progress

import (
	"sync"
	"time"

	"pinganalyst/internal/stats"
)

const defaultBuffer = 16

// Event is one progress update for a match.
type Event struct {
	MatchID     int64           `json:"match_id"`
	Status      string          `json:"status"`
	Message     string          `json:"message,omitempty"`
	ChunksDone  int             `json:"chunks_done"`
	ChunksTotal int             `json:"chunks_total"`
	Analysis    *stats.Analysis `json:"analysis,omitempty"`
	Error       string          `json:"error,omitempty"`
	Time        time.Time       `json:"time"`
}

// Terminal reports whether the event ends the match's stream.
func (e Event) Terminal() bool {
	return e.Status == "completed" || e.Status == "failed"
}

type subscriber struct {
	matchID int64
	ch      chan Event
}

// Hub is an in-memory publish/subscribe fan-out. The zero value is not usable;
// call NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest map[int64]Event
	buffer int
	closed bool
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		latest: make(map[int64]Event),
		buffer: buffer,
	}
}

// Publish delivers ev to every subscriber of its match and to wildcard
// subscribers. It never blocks: when a subscriber is full its oldest queued
// event is dropped so the newest one always lands.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest[ev.MatchID] = ev
	for sub := range h.subs {
		if sub.matchID != 0 && sub.matchID != ev.MatchID {
			continue
		}
		deliver(sub.ch, ev)
	}
}

func deliver(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel of events for matchID (0 for every match) and a
// cancel func that closes it. The last known event for matchID is replayed
// first.
func (h *Hub) Subscribe(matchID int64) (<-chan Event, func()) {
	sub := &subscriber{matchID: matchID, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if matchID != 0 {
		if ev, ok := h.latest[matchID]; ok {
			sub.ch <- ev
		}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Latest returns the most recent event published for matchID.
func (h *Hub) Latest(matchID int64) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, ok := h.latest[matchID]
	return ev, ok
}

// Forget drops the cached event for matchID.
func (h *Hub) Forget(matchID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, matchID)
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}
