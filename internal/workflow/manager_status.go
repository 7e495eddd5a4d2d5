package workflow

import (
	"context"

	"pinganalyst/internal/logging"
	"pinganalyst/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool                 `json:"running"`
	LastError   string               `json:"last_error,omitempty"`
	LastMatch   *store.Match         `json:"last_match,omitempty"`
	MatchStats  map[store.Status]int `json:"match_stats"`
	Subscribers int                  `json:"subscribers"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastMatch := m.lastMatch
	m.mu.RUnlock()

	counts, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read match stats", logging.Error(err))
	}

	summary := StatusSummary{Running: running, MatchStats: counts}
	if m.hub != nil {
		summary.Subscribers = m.hub.Subscribers()
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastMatch != nil {
		copy := *lastMatch
		summary.LastMatch = &copy
	}
	return summary
}
