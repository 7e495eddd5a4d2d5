package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"pinganalyst/internal/config"
	"pinganalyst/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewMatch enqueues a match for a placeholder video under the staging dir.
func NewMatch(t testing.TB, st *store.Store, cfg *config.Config, name string) *store.Match {
	t.Helper()

	path := filepath.Join(cfg.Paths.StagingDir, name)
	WriteFile(t, path, 1024)
	match, err := st.NewMatch(context.Background(), path, name)
	if err != nil {
		t.Fatalf("store.NewMatch: %v", err)
	}
	return match
}
