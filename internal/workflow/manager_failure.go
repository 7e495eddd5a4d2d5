package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/metrics"
	"pinganalyst/internal/pipeline"
	"pinganalyst/internal/services"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
)

func (m *Manager) handleMatchFailure(ctx context.Context, logger *slog.Logger, match *store.Match, partial stats.Analysis, matchErr error) {
	message := failureMessage(matchErr)
	match.Status = store.StatusFailed
	match.ErrorMessage = message
	match.ProgressMessage = "Analysis failed"
	match.LastHeartbeat = nil
	if match.ChunksDone > 0 {
		if err := match.SetAnalysis(partial); err != nil {
			logger.Warn("failed to encode partial analysis", logging.Error(err))
		}
	}

	logger.Error("match failed",
		logging.String(logging.FieldEventType, "match_failed"),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorHint, services.Hint(matchErr)),
		logging.Int("chunks_done", match.ChunksDone),
		logging.Int("chunks_total", match.ChunksTotal),
		logging.Alert("match_failure"),
		logging.Error(matchErr),
	)

	if err := m.store.Update(ctx, match); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist match failure")
		} else {
			logger.Error("failed to persist match failure", logging.Error(err))
		}
	}

	metrics.MatchesFinishedTotal.WithLabelValues(string(store.StatusFailed)).Inc()
	m.setLastMatch(match)
	if match.ChunksDone > 0 {
		m.publish(match, &partial)
	} else {
		m.publish(match, nil)
	}
	m.notifyMatchFailed(ctx, match)
}

func (m *Manager) handleMatchSuccess(ctx context.Context, logger *slog.Logger, match *store.Match, final stats.Analysis, elapsed time.Duration) {
	match.Status = store.StatusCompleted
	match.ChunksDone = match.ChunksTotal
	match.ProgressMessage = "Analysis complete"
	match.ErrorMessage = ""
	match.LastHeartbeat = nil
	if err := match.SetAnalysis(final); err != nil {
		m.handleMatchFailure(ctx, logger, match, final, err)
		return
	}
	if err := m.store.Update(ctx, match); err != nil {
		wrapped := fmt.Errorf("persist match result: %w", err)
		logger.Error("failed to persist match result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return
	}

	logger.Info("match completed",
		logging.String(logging.FieldEventType, "match_complete"),
		logging.Int("chunks", match.ChunksTotal),
		logging.Int("total_points", final.TotalPoints),
		logging.Int("total_rallies", final.TotalRallies),
		logging.Duration("match_duration", elapsed),
	)
	metrics.MatchesFinishedTotal.WithLabelValues(string(store.StatusCompleted)).Inc()
	m.setLastMatch(match)
	m.publish(match, &final)
	m.notifyMatchCompleted(ctx, match, final)
}

// failureMessage is the text stored on a failed match and shown on the
// dashboard.
func failureMessage(err error) string {
	if err == nil {
		return "analysis failed without error detail"
	}
	var chunkErr *pipeline.ChunkError
	if errors.As(err, &chunkErr) {
		return fmt.Sprintf("Segment %d failed: %s", chunkErr.Index+1, strings.TrimSpace(analyzer.PublicMessage(chunkErr.Err)))
	}
	message := strings.TrimSpace(analyzer.PublicMessage(err))
	if message == "" {
		return "analysis failed"
	}
	return message
}
