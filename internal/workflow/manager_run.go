package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pinganalyst/internal/logging"
	"pinganalyst/internal/preflight"
	"pinganalyst/internal/store"
)

// Start resets matches left in flight by a previous run and begins background
// processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.analyzer == nil {
		m.mu.Unlock()
		return errors.New("workflow analyzer not configured")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("reset stuck matches: %w", err)
	}
	if reset > 0 {
		m.logger.Info("returned interrupted matches to pending",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "matches_reset"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the current match to
// release. An interrupted match stays in flight and resumes on the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the processing loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := m.heartbeat.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "reclaim stale matches failed; stuck matches may remain",
				"heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check state database access"),
			)
		}

		match, err := m.store.NextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to fetch next match",
				logging.Error(err),
				logging.String(logging.FieldEventType, "match_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check state database access"),
			)
			m.waitForMatchOrShutdown(ctx)
			continue
		}
		if match == nil {
			m.waitForMatchOrShutdown(ctx)
			continue
		}

		if !m.ready() {
			m.waitForMatchOrShutdown(ctx)
			continue
		}

		if err := m.processMatch(ctx, match); err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
	}
}

// ready runs the local preflight. Failed checks leave pending matches queued.
func (m *Manager) ready() bool {
	if m.preflight == nil {
		return true
	}
	failed := preflight.Failed(m.preflight(m.cfg))
	if len(failed) == 0 {
		return true
	}
	names := make([]string, 0, len(failed))
	details := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
		details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	err := fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
	m.setLastError(err)
	logging.WarnWithContext(m.logger, "preflight failed; pending matches wait",
		"preflight_failed",
		logging.String("checks", strings.Join(names, ", ")),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run pinganalyst status for details"),
		logging.String(logging.FieldImpact, "matches stay pending until the checks pass"),
	)
	return false
}

func (m *Manager) waitForMatchOrShutdown(ctx context.Context) {
	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastMatch(match *store.Match) {
	m.mu.Lock()
	if match != nil {
		copy := *match
		m.lastMatch = &copy
	} else {
		m.lastMatch = nil
	}
	m.mu.Unlock()
}
