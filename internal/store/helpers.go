package store

import (
	"database/sql"
	"errors"
	"time"
)

const matchColumns = "id, source_path, file_name, status, duration_seconds, chunks_total, chunks_done, progress_message, result_json, error_message, created_at, updated_at, last_heartbeat"

func scanMatch(scanner interface{ Scan(dest ...any) error }) (*Match, error) {
	var (
		id               int64
		sourcePath       string
		fileName         string
		statusStr        string
		duration         sql.NullFloat64
		chunksTotal      sql.NullInt64
		chunksDone       sql.NullInt64
		progressMessage  sql.NullString
		resultJSON       sql.NullString
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&sourcePath,
		&fileName,
		&statusStr,
		&duration,
		&chunksTotal,
		&chunksDone,
		&progressMessage,
		&resultJSON,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	match := &Match{
		ID:              id,
		SourcePath:      sourcePath,
		FileName:        fileName,
		Status:          Status(statusStr),
		DurationSeconds: duration.Float64,
		ChunksTotal:     int(chunksTotal.Int64),
		ChunksDone:      int(chunksDone.Int64),
		ProgressMessage: progressMessage.String,
		ResultJSON:      resultJSON.String,
		ErrorMessage:    errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		match.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		match.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			match.LastHeartbeat = &heartbeat
		}
	}
	return match, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
