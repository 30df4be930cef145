package queue_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remedy/internal/queue"
	"remedy/internal/services"
	"remedy/internal/testsupport"
)

func TestEnqueueCreatesPendingEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	entry := testsupport.MustEnqueue(t, store, "ws-alpha", "fix the login redirect")
	if entry.Class != queue.ClassPending {
		t.Fatalf("expected pending class, got %s", entry.Class)
	}
	if entry.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", entry.Attempts)
	}

	loaded, err := store.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Workspace != "ws-alpha" {
		t.Fatalf("workspace = %q", loaded.Workspace)
	}
	if loaded.Payload != "fix the login redirect" {
		t.Fatalf("payload = %q", loaded.Payload)
	}

	names, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("read queue dir: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected one file in queue dir, got %d", len(names))
	}
	if !strings.HasSuffix(names[0].Name(), ".0.pending.yaml") {
		t.Fatalf("unexpected filename %q", names[0].Name())
	}
}

func TestEnqueueRejectsEmptyWorkspace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	if _, err := store.Enqueue("  ", "payload"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetUnknownEntryReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	if _, err := store.Get("no-such-id"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEntryOccupiesExactlyOneClass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	entry := testsupport.MustEnqueue(t, store, "ws-alpha", "payload")
	if _, err := store.Claim(entry.ID, "worker-1", time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	snapshot, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshot.Processing) != 1 {
		t.Fatalf("expected one processing entry, got %d", len(snapshot.Processing))
	}
	if len(snapshot.Pending)+len(snapshot.Retrying)+len(snapshot.Failed)+len(snapshot.Completed) != 0 {
		t.Fatalf("entry appears in more than one class: %+v", snapshot.Stats())
	}
}

func TestListSkipsCorruptEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	testsupport.MustEnqueue(t, store, "ws-alpha", "good")
	corrupt := filepath.Join(store.Dir(), "broken.0.pending.yaml")
	if err := os.WriteFile(corrupt, []byte("{not yaml: ["), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	snapshot, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshot.Pending) != 1 {
		t.Fatalf("expected one readable pending entry, got %d", len(snapshot.Pending))
	}
	if snapshot.Corrupt != 1 {
		t.Fatalf("expected one corrupt entry, got %d", snapshot.Corrupt)
	}
}

func TestNextPendingReturnsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	first := testsupport.MustEnqueue(t, store, "ws-alpha", "first")
	time.Sleep(5 * time.Millisecond)
	testsupport.MustEnqueue(t, store, "ws-beta", "second")

	next, err := store.NextPending(nil)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest entry %s, got %+v", first.ID, next)
	}
}

func TestNextPendingSkipsBusyWorkspaces(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	testsupport.MustEnqueue(t, store, "ws-busy", "first")
	time.Sleep(5 * time.Millisecond)
	second := testsupport.MustEnqueue(t, store, "ws-free", "second")

	next, err := store.NextPending(func(entry *queue.Entry) bool {
		return entry.Workspace == "ws-busy"
	})
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected deferral to pick %s, got %+v", second.ID, next)
	}
}

func TestNextPendingIncludesRetryingEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	entry := testsupport.MustEnqueue(t, store, "ws-alpha", "payload")
	if _, err := store.Claim(entry.ID, "worker-1", time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := store.MarkRetrying(entry.ID); err != nil {
		t.Fatalf("MarkRetrying: %v", err)
	}

	next, err := store.NextPending(nil)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != entry.ID {
		t.Fatalf("expected retrying entry to be dequeuable, got %+v", next)
	}
	if next.Attempts != 1 {
		t.Fatalf("attempts = %d", next.Attempts)
	}
}

func TestHealthReportsCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	testsupport.MustEnqueue(t, store, "ws-a", "one")
	done := testsupport.MustEnqueue(t, store, "ws-b", "two")
	if _, err := store.Claim(done.ID, "worker-1", time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.MarkCompleted(done.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	health, err := store.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Pending != 1 || health.Completed != 1 || health.Total != 2 {
		t.Fatalf("unexpected health summary %+v", health)
	}
	if health.OldestPendingAge <= 0 {
		t.Fatalf("expected positive oldest pending age, got %v", health.OldestPendingAge)
	}
}
