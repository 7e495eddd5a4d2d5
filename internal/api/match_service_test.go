package api

import (
	"context"
	"errors"
	"testing"

	"pinganalyst/internal/store"
)

type mockMatchReader struct {
	matches  []*store.Match
	stats    map[store.Status]int
	err      error
	statsErr error
}

func (m *mockMatchReader) List(context.Context, ...store.Status) ([]*store.Match, error) {
	return m.matches, m.err
}

func (m *mockMatchReader) Stats(context.Context) (map[store.Status]int, error) {
	return m.stats, m.statsErr
}

func (m *mockMatchReader) GetByID(_ context.Context, id int64) (*store.Match, error) {
	for _, match := range m.matches {
		if match.ID == id {
			return match, m.err
		}
	}
	return nil, m.err
}

func TestMatchServiceList(t *testing.T) {
	svc := NewMatchService(&mockMatchReader{matches: []*store.Match{
		{ID: 1, FileName: "a.mp4", Status: store.StatusPending},
		nil,
		{ID: 2, FileName: "b.mp4", Status: store.StatusCompleted},
	}})
	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].FileName != "a.mp4" || got[1].Status != "completed" {
		t.Fatalf("unexpected matches: %+v", got)
	}
}

func TestMatchServiceListError(t *testing.T) {
	svc := NewMatchService(&mockMatchReader{err: errors.New("boom")})
	if _, err := svc.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestMatchServiceDescribe(t *testing.T) {
	svc := NewMatchService(&mockMatchReader{matches: []*store.Match{{ID: 4, FileName: "x.mp4"}}})
	got, err := svc.Describe(context.Background(), 4)
	if err != nil || got == nil || got.ID != 4 {
		t.Fatalf("Describe(4) = %+v, %v", got, err)
	}
	missing, err := svc.Describe(context.Background(), 9)
	if err != nil || missing != nil {
		t.Fatalf("Describe(9) = %+v, %v", missing, err)
	}
}

func TestMatchServiceStats(t *testing.T) {
	svc := NewMatchService(&mockMatchReader{stats: map[store.Status]int{store.StatusFailed: 3}})
	got, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if got["failed"] != 3 || got["pending"] != 0 {
		t.Fatalf("unexpected stats: %v", got)
	}
}

func TestNilMatchService(t *testing.T) {
	if NewMatchService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
	var svc *MatchService
	if got, err := svc.List(context.Background()); got != nil || err != nil {
		t.Fatalf("nil service List = %v, %v", got, err)
	}
}
