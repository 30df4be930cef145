package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"remedy/internal/daemon"
	"remedy/internal/deploy"
	"remedy/internal/logging"
	"remedy/internal/notifications"
	"remedy/internal/orchestrator"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/services/agent"
	"remedy/internal/services/promptgen"
	"remedy/internal/testsupport"
	"remedy/internal/workspace"
)

type idlePrompts struct{}

func (idlePrompts) Generate(context.Context, promptgen.Request) (string, error) {
	return "fix the checkout flow", nil
}

type idleAgent struct{}

func (idleAgent) Run(ctx context.Context, _ agent.Request, _ func(agent.Event)) (*agent.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type idleDeploys struct{}

func (idleDeploys) Watch(context.Context, deploy.WatchRequest) error { return nil }

type fixture struct {
	daemon  *daemon.Daemon
	store   *queue.Store
	records *records.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	logger := logging.NewNop()
	store := testsupport.MustOpenQueue(t, cfg)
	recordsStore := testsupport.MustOpenRecords(t, cfg)
	tracker := workspace.NewTracker(recordsStore, logger)
	notifier := notifications.NewService(cfg)
	manager := orchestrator.NewManager(cfg, store, recordsStore, tracker, notifier,
		idlePrompts{}, idleAgent{}, idleDeploys{}, logger)
	d, err := daemon.New(cfg, store, recordsStore, tracker, manager, notifier, logger, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return &fixture{daemon: d, store: store, records: recordsStore}
}

func feedback() []promptgen.FeedbackItem {
	return []promptgen.FeedbackItem{{ID: "fb-1", Reasoning: "checkout still broken"}}
}

func TestDaemonStartStop(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := fx.daemon.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := fx.daemon.Status(ctx)
	if !status.Running || !status.Orchestrator.Running {
		t.Fatalf("expected running status, got %+v", status)
	}

	fx.daemon.Stop()
	if fx.daemon.Status(ctx).Running {
		t.Fatal("expected stopped status after Stop")
	}
}

func TestStartCreatesLockDirectory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// A fresh install may not have the log directory yet; Start must not
	// fail to acquire the lock because of that.
	status := fx.daemon.Status(ctx)
	if err := os.RemoveAll(filepath.Dir(status.LockFilePath)); err != nil {
		t.Fatalf("remove log dir: %v", err)
	}

	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start without log dir: %v", err)
	}
	if _, err := os.Stat(status.LockFilePath); err != nil {
		t.Fatalf("expected lock file after Start: %v", err)
	}
	fx.daemon.Stop()
}

func TestCancelEntryFailsBoundExecution(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Trigger without starting the daemon so the entry stays pending.
	execID, err := fx.daemon.Trigger(ctx, "checkout", feedback())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	entries, err := fx.daemon.ListQueue([]queue.Class{queue.ClassPending})
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 pending entry, got %d", len(entries))
	}

	if err := fx.daemon.CancelEntry(ctx, entries[0].ID); err != nil {
		t.Fatalf("CancelEntry: %v", err)
	}

	execution, err := fx.records.GetExecution(ctx, execID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if execution.Status != records.StatusFailed {
		t.Fatalf("expected cancelled entry to fail its execution, got %s", execution.Status)
	}
	if !strings.Contains(execution.ErrorMessage, "cancelled") {
		t.Fatalf("unexpected error message %q", execution.ErrorMessage)
	}

	// The workspace is free again.
	if _, err := fx.daemon.Trigger(ctx, "checkout", feedback()); err != nil {
		t.Fatalf("retrigger after cancel: %v", err)
	}
}

func TestListQueueFiltersByClass(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.daemon.Trigger(ctx, "alpha", feedback()); err != nil {
		t.Fatalf("Trigger alpha: %v", err)
	}
	if _, err := fx.daemon.Trigger(ctx, "beta", feedback()); err != nil {
		t.Fatalf("Trigger beta: %v", err)
	}

	all, err := fx.daemon.ListQueue(nil)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	failed, err := fx.daemon.ListQueue([]queue.Class{queue.ClassFailed})
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected no failed entries, got %d", len(failed))
	}
}

func TestExecutionDetail(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	execID, err := fx.daemon.Trigger(ctx, "checkout", feedback())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := fx.records.AppendLog(ctx, execID, "info", "queued"); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	execution, checkpoints, logs, err := fx.daemon.ExecutionDetail(ctx, execID, 10)
	if err != nil {
		t.Fatalf("ExecutionDetail: %v", err)
	}
	if execution.ID != execID {
		t.Fatalf("unexpected execution %s", execution.ID)
	}
	if len(checkpoints) != 0 {
		t.Fatalf("expected no checkpoints before the agent runs, got %d", len(checkpoints))
	}
	if len(logs) != 1 || logs[0].Message != "queued" {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	fx := newFixture(t)
	sent, message, err := fx.daemon.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Fatal("expected no send without a configured topic")
	}
	if !strings.Contains(message, "not configured") {
		t.Fatalf("unexpected message %q", message)
	}
}
