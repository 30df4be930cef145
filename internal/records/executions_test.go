package records_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"remedy/internal/records"
	"remedy/internal/services"
	"remedy/internal/testsupport"
)

func TestStartExecutionEnforcesSingleActivePerWorkspace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	first, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("first StartExecution: %v", err)
	}
	if first.Status != records.StatusPending {
		t.Fatalf("status = %s", first.Status)
	}
	if err := store.MarkRunning(ctx, first.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := store.MarkRunning(ctx, first.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict running twice, got %v", err)
	}

	if _, err := store.StartExecution(ctx, "entry-2", "ws-alpha"); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for busy workspace, got %v", err)
	}
	if _, err := store.StartExecution(ctx, "entry-3", "ws-beta"); err != nil {
		t.Fatalf("other workspace should be free: %v", err)
	}

	if err := store.FinishExecution(ctx, first.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}
	if _, err := store.StartExecution(ctx, "entry-4", "ws-alpha"); err != nil {
		t.Fatalf("workspace should be free after completion: %v", err)
	}
}

func TestConcurrentTriggersYieldOneExecution(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	const triggers = 8
	var wg sync.WaitGroup
	wins := make(chan string, triggers)
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
			if err == nil {
				wins <- execution.ID
			} else if !errors.Is(err, services.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)
	if len(wins) != 1 {
		t.Fatalf("expected exactly one execution, got %d", len(wins))
	}
}

func TestAdvancePhaseOnlyMovesForward(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	for _, phase := range []records.Phase{records.PhasePlanning, records.PhaseImplementing} {
		if err := store.AdvancePhase(ctx, execution.ID, phase); err != nil {
			t.Fatalf("AdvancePhase(%s): %v", phase, err)
		}
	}
	if err := store.AdvancePhase(ctx, execution.ID, records.PhasePlanning); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict moving backwards, got %v", err)
	}
	if err := store.AdvancePhase(ctx, execution.ID, records.PhaseImplementing); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict repeating phase, got %v", err)
	}

	checkpoints, err := store.Checkpoints(ctx, execution.ID)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(checkpoints) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(checkpoints))
	}
	if checkpoints[0].Phase != records.PhasePlanning || checkpoints[1].Phase != records.PhaseImplementing {
		t.Fatalf("checkpoint order wrong: %+v", checkpoints)
	}
}

func TestUpdateProgressClampsRange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	if err := store.UpdateProgress(ctx, execution.ID, 140); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	loaded, err := store.GetExecution(ctx, execution.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if loaded.Progress != 100 {
		t.Fatalf("progress = %v, want clamp to 100", loaded.Progress)
	}

	if err := store.UpdateProgress(ctx, execution.ID, -5); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	loaded, err = store.GetExecution(ctx, execution.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if loaded.Progress != 0 {
		t.Fatalf("progress = %v, want clamp to 0", loaded.Progress)
	}
}

func TestFinishExecutionFirstWriterWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if err := store.FinishExecution(ctx, execution.ID, records.StatusFailed, "agent crashed"); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	if err := store.FinishExecution(ctx, execution.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("duplicate finish should be a no-op: %v", err)
	}

	loaded, err := store.GetExecution(ctx, execution.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if loaded.Status != records.StatusFailed || loaded.ErrorMessage != "agent crashed" {
		t.Fatalf("first terminal write did not win: %+v", loaded)
	}
}

func TestSetResultRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	files := []string{"cmd/server/main.go", "internal/auth/session.go"}
	if err := store.SetResult(ctx, execution.ID, files, "abc123"); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	loaded, err := store.GetExecution(ctx, execution.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if loaded.CommitID != "abc123" {
		t.Fatalf("commit = %q", loaded.CommitID)
	}
	if len(loaded.ChangedFiles) != 2 || loaded.ChangedFiles[0] != files[0] {
		t.Fatalf("changed files = %v", loaded.ChangedFiles)
	}
}

func TestFailAbandonedClosesActiveExecutions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	active, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	done, err := store.StartExecution(ctx, "entry-2", "ws-beta")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if err := store.FinishExecution(ctx, done.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}

	ids, err := store.FailAbandoned(ctx, "daemon restarted")
	if err != nil {
		t.Fatalf("FailAbandoned: %v", err)
	}
	if len(ids) != 1 || ids[0] != active.ID {
		t.Fatalf("abandoned ids = %v", ids)
	}

	loaded, err := store.GetExecution(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if loaded.Status != records.StatusFailed {
		t.Fatalf("status = %s", loaded.Status)
	}
}

func TestAppendLogAndReadBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	execution, err := store.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	for _, msg := range []string{"checking out branch", "running tests", "tests passed"} {
		if err := store.AppendLog(ctx, execution.ID, "info", msg); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	lines, err := store.Logs(ctx, execution.ID, 2)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected limit of 2 lines, got %d", len(lines))
	}
	if lines[0].Message != "checking out branch" {
		t.Fatalf("lines out of order: %+v", lines)
	}
}
