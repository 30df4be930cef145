package workspace_test

import (
	"context"
	"errors"
	"testing"

	"remedy/internal/logging"
	"remedy/internal/records"
	"remedy/internal/services"
	"remedy/internal/testsupport"
	"remedy/internal/workspace"
)

func newTracker(t *testing.T) (*workspace.Tracker, *records.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	return workspace.NewTracker(store, logging.NewNop()), store
}

func TestLifecycleMovesForwardOnly(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()

	if err := tracker.NoteTriggered(ctx, "ws-alpha"); err != nil {
		t.Fatalf("NoteTriggered: %v", err)
	}
	record, err := tracker.Get(ctx, "ws-alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.State != string(workspace.StateImplementing) {
		t.Fatalf("state = %q after trigger", record.State)
	}

	// A second trigger must not regress the state.
	if err := tracker.NoteTriggered(ctx, "ws-alpha"); err != nil {
		t.Fatalf("repeat NoteTriggered: %v", err)
	}

	if err := tracker.NoteDeploySucceeded(ctx, "ws-alpha"); err != nil {
		t.Fatalf("NoteDeploySucceeded: %v", err)
	}
	record, _ = tracker.Get(ctx, "ws-alpha")
	if record.State != string(workspace.StateBeta) {
		t.Fatalf("state = %q after deploy", record.State)
	}

	if err := tracker.Approve(ctx, "ws-alpha"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := tracker.Verify(ctx, "ws-alpha"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	record, _ = tracker.Get(ctx, "ws-alpha")
	if record.State != string(workspace.StateVerified) {
		t.Fatalf("state = %q after verify", record.State)
	}
	_ = store
}

func TestTransitionsBumpLifecycleRevision(t *testing.T) {
	tracker, _ := newTracker(t)
	ctx := context.Background()

	record, err := tracker.Ensure(ctx, "ws-alpha")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if record.Version != 1 {
		t.Fatalf("fresh workspace version = %d, want 1", record.Version)
	}

	if err := tracker.NoteTriggered(ctx, "ws-alpha"); err != nil {
		t.Fatalf("NoteTriggered: %v", err)
	}
	if err := tracker.NoteDeploySucceeded(ctx, "ws-alpha"); err != nil {
		t.Fatalf("NoteDeploySucceeded: %v", err)
	}
	record, err = tracker.Get(ctx, "ws-alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Version != 3 {
		t.Fatalf("version after two transitions = %d, want 3", record.Version)
	}

	// No-op notes leave the revision alone.
	if err := tracker.NoteTriggered(ctx, "ws-alpha"); err != nil {
		t.Fatalf("repeat NoteTriggered: %v", err)
	}
	record, _ = tracker.Get(ctx, "ws-alpha")
	if record.Version != 3 {
		t.Fatalf("version after no-op = %d, want 3", record.Version)
	}
}

func TestApproveRequiresBeta(t *testing.T) {
	tracker, _ := newTracker(t)
	ctx := context.Background()

	if _, err := tracker.Ensure(ctx, "ws-alpha"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := tracker.Approve(ctx, "ws-alpha"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict approving draft workspace, got %v", err)
	}
	if err := tracker.Verify(ctx, "ws-alpha"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict verifying draft workspace, got %v", err)
	}
}

func TestHumanTransitionsBlockedWhileExecutionActive(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()

	if err := tracker.NoteTriggered(ctx, "ws-alpha"); err != nil {
		t.Fatalf("NoteTriggered: %v", err)
	}
	if err := tracker.NoteDeploySucceeded(ctx, "ws-alpha"); err != nil {
		t.Fatalf("NoteDeploySucceeded: %v", err)
	}

	execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if err := tracker.Approve(ctx, "ws-alpha"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict while execution active, got %v", err)
	}

	if err := store.FinishExecution(ctx, execution.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}
	if err := tracker.Approve(ctx, "ws-alpha"); err != nil {
		t.Fatalf("Approve after completion: %v", err)
	}
}

func TestVerifiedWorkspaceRejectsNewWork(t *testing.T) {
	if workspace.AcceptsWork(workspace.StateVerified) {
		t.Fatal("verified workspace must not accept work")
	}
	for _, state := range []workspace.State{
		workspace.StateDraft, workspace.StateImplementing,
		workspace.StateBeta, workspace.StateInReview,
	} {
		if !workspace.AcceptsWork(state) {
			t.Fatalf("state %s should accept work", state)
		}
	}
}

func TestParseState(t *testing.T) {
	if state, ok := workspace.ParseState(" In_Review "); !ok || state != workspace.StateInReview {
		t.Fatalf("ParseState = %q, %v", state, ok)
	}
	if _, ok := workspace.ParseState("finished"); ok {
		t.Fatal("expected unknown state to fail")
	}
	if workspace.StateBeta.Rank() <= workspace.StateImplementing.Rank() {
		t.Fatal("state order broken")
	}
}
