package testsupport

import (
	"testing"

	"remedy/internal/config"
	"remedy/internal/logging"
	"remedy/internal/queue"
	"remedy/internal/records"
)

// MustOpenQueue opens a queue.Store for tests.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	return store
}

// MustEnqueue adds an entry for tests using the provided store.
func MustEnqueue(t testing.TB, store *queue.Store, workspace, payload string) *queue.Entry {
	t.Helper()

	entry, err := store.Enqueue(workspace, payload)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return entry
}

// MustOpenRecords opens a records.Store for tests and registers cleanup.
func MustOpenRecords(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
