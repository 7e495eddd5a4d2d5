package api

import (
	"context"

	"pinganalyst/internal/store"
)

// MatchReader abstracts match persistence interactions needed for API queries.
type MatchReader interface {
	List(ctx context.Context, statuses ...store.Status) ([]*store.Match, error)
	Stats(ctx context.Context) (map[store.Status]int, error)
	GetByID(ctx context.Context, id int64) (*store.Match, error)
}

// MatchService exposes read-only match operations returning API DTOs.
type MatchService struct {
	store MatchReader
}

// NewMatchService constructs a MatchService around the provided reader.
func NewMatchService(reader MatchReader) *MatchService {
	if reader == nil {
		return nil
	}
	return &MatchService{store: reader}
}

// List returns matches filtered by status.
func (s *MatchService) List(ctx context.Context, statuses ...store.Status) ([]Match, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	matches, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromMatches(matches), nil
}

// Stats returns match counts keyed by status string.
func (s *MatchService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeMatchStats(counts), nil
}

// Describe fetches a single match. A missing match yields (nil, nil).
func (s *MatchService) Describe(ctx context.Context, id int64) (*Match, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	match, err := s.store.GetByID(ctx, id)
	if err != nil || match == nil {
		return nil, err
	}
	dto := FromMatch(match)
	return &dto, nil
}
