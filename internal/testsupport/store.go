package testsupport

import (
	"testing"

	"vidproc/internal/config"
	"vidproc/internal/jobstore"
)

// MustOpenStore opens the job ledger for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()
	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
