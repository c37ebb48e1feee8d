package testsupport

import (
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/media/store"
	"reelforge/internal/runstore"
)

// MustOpenStore opens the run archive for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	st, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustOpenMediaStore opens the media blob store rooted at the config's
// media directory.
func MustOpenMediaStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg.Paths.MediaDir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return st
}
