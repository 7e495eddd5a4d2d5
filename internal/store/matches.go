package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NewMatch enqueues a video for analysis. fileName is the name shown to users;
// when empty the base name of sourcePath is used.
func (s *Store) NewMatch(ctx context.Context, sourcePath, fileName string) (*Match, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, errors.New("source path is required")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = filepath.Base(sourcePath)
	}
	timestamp := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO matches (
            source_path, file_name, status, created_at, updated_at, progress_message
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		sourcePath,
		fileName,
		StatusPending,
		timestamp,
		timestamp,
		"Queued",
	)
	if err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a match. A missing match yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Match, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return match, nil
}

// Update persists every mutable field of match.
func (s *Store) Update(ctx context.Context, match *Match) error {
	if match == nil {
		return errors.New("match is nil")
	}
	match.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE matches
         SET source_path = ?, file_name = ?, status = ?, duration_seconds = ?,
             chunks_total = ?, chunks_done = ?, progress_message = ?, result_json = ?,
             error_message = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		match.SourcePath,
		match.FileName,
		match.Status,
		match.DurationSeconds,
		match.ChunksTotal,
		match.ChunksDone,
		nullableString(match.ProgressMessage),
		nullableString(match.ResultJSON),
		nullableString(match.ErrorMessage),
		formatTime(match.UpdatedAt),
		nullableTime(match.LastHeartbeat),
		match.ID,
	); err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

// List returns matches filtered by status set (or all matches when no status
// is provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Match, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + matchColumns + ` FROM matches`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// NextPending returns the oldest pending match or nil when there is none.
func (s *Store) NextPending(ctx context.Context) (*Match, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+matchColumns+` FROM matches WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusPending,
	)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return match, nil
}

// Remove deletes a match and its chunk results.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM matches WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Retry moves failed matches back to pending. With no ids every failed match
// is retried. Chunk results are kept so analysis resumes where it stopped.
func (s *Store) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE matches
        SET status = ?, progress_message = 'Retry requested', error_message = NULL,
            last_heartbeat = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, formatTime(time.Now()), StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry matches: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns every in-flight match to pending. It runs at
// daemon start, when nothing can legitimately be processing.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE matches
         SET status = ?, progress_message = 'Reset from stuck processing',
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusPending,
		formatTime(time.Now()),
		StatusExtracting,
		StatusAnalyzing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck matches: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleProcessing returns in-flight matches whose heartbeat is older
// than cutoff to pending.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE matches
         SET status = ?, progress_message = 'Reclaimed from stale processing',
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		formatTime(time.Now()),
		StatusExtracting,
		StatusAnalyzing,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale matches: %w", err)
	}
	return res.RowsAffected()
}

// FailInFlight marks every in-flight match failed with reason.
func (s *Store) FailInFlight(ctx context.Context, reason string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE matches
         SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusFailed,
		reason,
		formatTime(time.Now()),
		StatusExtracting,
		StatusAnalyzing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight matches: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight match.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE matches SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// Stats returns a count of matches grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM matches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("match stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Summary folds Stats into lifecycle buckets.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	counts, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	for status, count := range counts {
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusCompleted:
			summary.Completed += count
		case status == StatusFailed:
			summary.Failed += count
		case status.IsProcessing():
			summary.Processing += count
		}
	}
	return summary, nil
}
