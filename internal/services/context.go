package services

import "context"

type contextKey string

const (
	matchIDKey   contextKey = "match_id"
	chunkKey     contextKey = "chunk"
	requestIDKey contextKey = "request_id"
)

type chunkPosition struct {
	index int
	total int
}

// WithMatchID annotates context with the stored match identifier.
func WithMatchID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, matchIDKey, id)
}

// MatchIDFromContext extracts the match identifier if present.
func MatchIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(matchIDKey).(int64)
	return id, ok
}

// WithChunk annotates context with a 0-based chunk index and the chunk count.
func WithChunk(ctx context.Context, index, total int) context.Context {
	if total <= 0 {
		return ctx
	}
	return context.WithValue(ctx, chunkKey, chunkPosition{index: index, total: total})
}

// ChunkFromContext returns the chunk position if present.
func ChunkFromContext(ctx context.Context) (int, int, bool) {
	pos, ok := ctx.Value(chunkKey).(chunkPosition)
	return pos.index, pos.total, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
