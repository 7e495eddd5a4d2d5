package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pinganalyst/internal/stats"
)

// SaveChunkResult records one merged chunk. Saving the same chunk twice
// replaces the earlier row.
func (s *Store) SaveChunkResult(ctx context.Context, result ChunkResult) error {
	if result.MatchID == 0 {
		return errors.New("chunk result has no match id")
	}
	if result.ChunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", result.ChunkIndex)
	}
	data, err := json.Marshal(result.Analysis)
	if err != nil {
		return fmt.Errorf("encode chunk analysis: %w", err)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO chunk_results (
            match_id, chunk_index, start_seconds, end_seconds, frame_count, attempts, result_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(match_id, chunk_index) DO UPDATE SET
            start_seconds = excluded.start_seconds,
            end_seconds = excluded.end_seconds,
            frame_count = excluded.frame_count,
            attempts = excluded.attempts,
            result_json = excluded.result_json,
            created_at = excluded.created_at`,
		result.MatchID,
		result.ChunkIndex,
		result.StartSeconds,
		result.EndSeconds,
		result.FrameCount,
		result.Attempts,
		string(data),
		formatTime(result.CreatedAt),
	); err != nil {
		return fmt.Errorf("save chunk result: %w", err)
	}
	return nil
}

// ChunkResults returns the stored chunks of a match in index order.
func (s *Store) ChunkResults(ctx context.Context, matchID int64) ([]ChunkResult, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT match_id, chunk_index, start_seconds, end_seconds, frame_count, attempts, result_json, created_at
         FROM chunk_results WHERE match_id = ? ORDER BY chunk_index`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunk results: %w", err)
	}
	defer rows.Close()

	var results []ChunkResult
	for rows.Next() {
		var (
			result     ChunkResult
			resultJSON string
			createdRaw string
		)
		if err := rows.Scan(
			&result.MatchID,
			&result.ChunkIndex,
			&result.StartSeconds,
			&result.EndSeconds,
			&result.FrameCount,
			&result.Attempts,
			&resultJSON,
			&createdRaw,
		); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &result.Analysis); err != nil {
			return nil, fmt.Errorf("decode chunk %d result: %w", result.ChunkIndex, err)
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			result.CreatedAt = created
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// ClearChunkResults drops every stored chunk of a match.
func (s *Store) ClearChunkResults(ctx context.Context, matchID int64) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM chunk_results WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("clear chunk results: %w", err)
	}
	return nil
}

// MergeChunkResults folds stored chunks into a single analysis in index order
// and reports which indexes were present.
func MergeChunkResults(results []ChunkResult) (stats.Analysis, map[int]bool) {
	merged := stats.Empty()
	done := make(map[int]bool, len(results))
	for _, result := range results {
		if done[result.ChunkIndex] {
			continue
		}
		merged = stats.Merge(merged, result.Analysis)
		done[result.ChunkIndex] = true
	}
	return merged, done
}
