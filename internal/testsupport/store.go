package testsupport

import (
	"context"
	"testing"

	"oea/internal/config"
	"oea/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustStage returns the persisted record for a stage, failing when absent.
func MustStage(t testing.TB, store *queue.Store, name string) queue.StageRecord {
	t.Helper()

	rec, err := store.GetStage(context.Background(), name)
	if err != nil {
		t.Fatalf("store.GetStage: %v", err)
	}
	if rec == nil {
		t.Fatalf("stage %s has no record", name)
	}
	return *rec
}
