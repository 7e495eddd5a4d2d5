package workflow

import (
	"context"
	"errors"
	"fmt"

	"pinganalyst/internal/logging"
	"pinganalyst/internal/notifications"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
)

func (m *Manager) notifyMatchCompleted(ctx context.Context, match *store.Match, final stats.Analysis) {
	m.notify(ctx, notifications.EventMatchCompleted, notifications.Payload{
		"matchID":     match.ID,
		"fileName":    match.FileName,
		"score":       scoreLine(final),
		"totalPoints": final.TotalPoints,
		"chunks":      match.ChunksTotal,
	})
}

func (m *Manager) notifyMatchFailed(ctx context.Context, match *store.Match) {
	m.notify(ctx, notifications.EventMatchFailed, notifications.Payload{
		"matchID":  match.ID,
		"fileName": match.FileName,
		"error":    match.ErrorMessage,
	})
}

func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, notification skipped")
			return
		}
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push notification for this match"),
		)
	}
}

func scoreLine(a stats.Analysis) string {
	p1 := a.Player1Color
	if p1 == "" {
		p1 = "Player 1"
	}
	p2 := a.Player2Color
	if p2 == "" {
		p2 = "Player 2"
	}
	return fmt.Sprintf("%s %d - %d %s", p1, a.Player1.Score, a.Player2.Score, p2)
}
