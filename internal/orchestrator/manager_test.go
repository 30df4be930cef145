package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"remedy/internal/config"
	"remedy/internal/deploy"
	"remedy/internal/logging"
	"remedy/internal/notifications"
	"remedy/internal/orchestrator"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/services"
	"remedy/internal/services/agent"
	"remedy/internal/services/promptgen"
	"remedy/internal/testsupport"
	"remedy/internal/workspace"
)

type stubPrompts struct {
	instructions string
	err          error
}

func (s *stubPrompts) Generate(ctx context.Context, request promptgen.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.instructions != "" {
		return s.instructions, nil
	}
	return "generated instructions", nil
}

type stubAgent struct {
	mu     sync.Mutex
	runs   int
	script func(run int, request agent.Request, callback func(agent.Event)) (*agent.Result, error)
}

func (s *stubAgent) Run(ctx context.Context, request agent.Request, callback func(agent.Event)) (*agent.Result, error) {
	s.mu.Lock()
	s.runs++
	run := s.runs
	s.mu.Unlock()
	return s.script(run, request, callback)
}

func (s *stubAgent) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

type stubDeploys struct {
	mu       sync.Mutex
	requests []deploy.WatchRequest
}

func (s *stubDeploys) Watch(ctx context.Context, req deploy.WatchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return nil
}

func (s *stubDeploys) watched() []deploy.WatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deploy.WatchRequest(nil), s.requests...)
}

type captureNotifier struct {
	mu          sync.Mutex
	completed   []string
	failed      []string
	escalations []string
}

func (c *captureNotifier) NotifyExecutionCompleted(ctx context.Context, workspace, executionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, executionID)
	return nil
}

func (c *captureNotifier) NotifyExecutionFailed(ctx context.Context, workspace, executionID, errorText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, executionID)
	return nil
}

func (c *captureNotifier) NotifyDeploySucceeded(context.Context, string, string) error { return nil }

func (c *captureNotifier) NotifyDeployEscalation(ctx context.Context, workspace, executionID, failureLog string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.escalations = append(c.escalations, executionID)
	return nil
}

func (c *captureNotifier) TestNotification(context.Context) error { return nil }

func (c *captureNotifier) failedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failed)
}

var _ notifications.Service = (*captureNotifier)(nil)

type fixture struct {
	cfg      *config.Config
	store    *queue.Store
	records  *records.Store
	tracker  *workspace.Tracker
	manager  *orchestrator.Manager
	agent    *stubAgent
	deploys  *stubDeploys
	notifier *captureNotifier
}

func newFixture(t *testing.T, agentStub *stubAgent) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Agent.RetryBackoffSeconds = 1
	cfg.Worker.QueuePollInterval = 1

	store := testsupport.MustOpenQueue(t, cfg)
	recordsStore := testsupport.MustOpenRecords(t, cfg)
	tracker := workspace.NewTracker(recordsStore, logging.NewNop())
	deploys := &stubDeploys{}
	notifier := &captureNotifier{}

	manager := orchestrator.NewManager(cfg, store, recordsStore, tracker, notifier,
		&stubPrompts{}, agentStub, deploys, logging.NewNop())
	return &fixture{
		cfg:      cfg,
		store:    store,
		records:  recordsStore,
		tracker:  tracker,
		manager:  manager,
		agent:    agentStub,
		deploys:  deploys,
		notifier: notifier,
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(f.manager.Stop)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func feedback() []promptgen.FeedbackItem {
	return []promptgen.FeedbackItem{{ID: "f1", Reasoning: "button does nothing"}}
}

func TestSuccessfulCycleEndToEnd(t *testing.T) {
	agentStub := &stubAgent{script: func(run int, request agent.Request, callback func(agent.Event)) (*agent.Result, error) {
		if request.Instructions != "generated instructions" {
			return nil, fmt.Errorf("unexpected instructions %q", request.Instructions)
		}
		for _, phase := range []string{"planning", "implementing", "testing", "refining"} {
			callback(agent.PhaseEvent{Phase: phase})
		}
		callback(agent.ProgressEvent{Percent: 100})
		callback(agent.LogEvent{Level: "info", Message: "all tests green"})
		return &agent.Result{ChangedFiles: []string{"handler.go"}, CommitID: "abc123"}, nil
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	executionID, err := f.manager.Trigger(ctx, "ws-alpha", feedback())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	f.start(t)

	waitFor(t, 5*time.Second, func() bool {
		execution, err := f.records.GetExecution(ctx, executionID)
		return err == nil && execution.Status == records.StatusCompleted
	})

	execution, err := f.records.GetExecution(ctx, executionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if execution.CommitID != "abc123" || execution.Progress != 100 {
		t.Fatalf("execution = %+v", execution)
	}
	checkpoints, err := f.records.Checkpoints(ctx, executionID)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(checkpoints) != 4 || checkpoints[0].Phase != records.PhasePlanning || checkpoints[3].Phase != records.PhaseRefining {
		t.Fatalf("checkpoints = %+v", checkpoints)
	}

	waitFor(t, 2*time.Second, func() bool {
		snapshot, err := f.store.List()
		return err == nil && len(snapshot.Completed) == 1
	})
	waitFor(t, 2*time.Second, func() bool {
		return len(f.deploys.watched()) == 1
	})
	watch := f.deploys.watched()[0]
	if watch.CommitID != "abc123" || watch.Workspace != "ws-alpha" || watch.Attempts != 0 {
		t.Fatalf("watch request = %+v", watch)
	}

	record, err := f.tracker.Get(ctx, "ws-alpha")
	if err != nil {
		t.Fatalf("tracker.Get: %v", err)
	}
	if record.State != string(workspace.StateImplementing) {
		t.Fatalf("workspace state = %q", record.State)
	}
	if record.Successes != 1 || record.Sessions != 1 {
		t.Fatalf("workspace counters = %+v", record)
	}
}

func TestTriggerConflictsWhileActive(t *testing.T) {
	agentStub := &stubAgent{script: func(int, agent.Request, func(agent.Event)) (*agent.Result, error) {
		return &agent.Result{CommitID: "abc"}, nil
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	if _, err := f.manager.Trigger(ctx, "ws-alpha", feedback()); err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
	if _, err := f.manager.Trigger(ctx, "ws-alpha", feedback()); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.manager.Trigger(ctx, "ws-beta", feedback()); err != nil {
		t.Fatalf("other workspace should be free: %v", err)
	}
}

func TestAgentFailureRetriesThenFailsTerminally(t *testing.T) {
	agentStub := &stubAgent{script: func(int, agent.Request, func(agent.Event)) (*agent.Result, error) {
		return nil, services.Wrap(services.ErrExternalTool, "agent", "run", "agent crashed", nil)
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	if _, err := f.manager.Trigger(ctx, "ws-alpha", feedback()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	f.start(t)

	waitFor(t, 15*time.Second, func() bool {
		snapshot, err := f.store.List()
		return err == nil && len(snapshot.Failed) == 1
	})
	if got := f.agent.runCount(); got != f.cfg.Agent.MaxRetries {
		t.Fatalf("agent invoked %d times, want %d", got, f.cfg.Agent.MaxRetries)
	}
	if f.notifier.failedCount() == 0 {
		t.Fatal("expected a failure notification")
	}
	if len(f.deploys.watched()) != 0 {
		t.Fatal("failed runs must not reach the deploy monitor")
	}
}

func TestRetryPassCarriesAgentAttempts(t *testing.T) {
	agentStub := &stubAgent{script: func(run int, _ agent.Request, _ func(agent.Event)) (*agent.Result, error) {
		if run < 3 {
			return nil, services.Wrap(services.ErrExternalTool, "agent", "run", "agent crashed", nil)
		}
		return &agent.Result{ChangedFiles: []string{"handler.go"}, CommitID: "abc123"}, nil
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	if _, err := f.manager.Trigger(ctx, "ws-alpha", feedback()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	f.start(t)

	waitFor(t, 15*time.Second, func() bool {
		snapshot, err := f.store.List()
		return err == nil && len(snapshot.Completed) == 1
	})

	// Each pass finishes its execution terminally and the next one starts
	// fresh, so the workspace history holds one execution per agent run.
	executions, err := f.records.ListExecutions(ctx, "ws-alpha", 10)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(executions) != 3 {
		t.Fatalf("executions recorded = %d, want 3", len(executions))
	}

	var completed *records.Execution
	for _, execution := range executions {
		if execution.Status == records.StatusCompleted {
			completed = execution
		}
	}
	if completed == nil {
		t.Fatal("no completed execution recorded")
	}
	if completed.AgentAttempts != 2 {
		t.Fatalf("completed execution carries %d failed attempts, want 2", completed.AgentAttempts)
	}
}

func TestNonRetryableFailureSkipsRetries(t *testing.T) {
	agentStub := &stubAgent{script: func(int, agent.Request, func(agent.Event)) (*agent.Result, error) {
		return nil, services.Wrap(services.ErrValidation, "agent", "run", "workspace is required", nil)
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	if _, err := f.manager.Trigger(ctx, "ws-alpha", feedback()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	f.start(t)

	waitFor(t, 5*time.Second, func() bool {
		snapshot, err := f.store.List()
		return err == nil && len(snapshot.Failed) == 1
	})
	if got := f.agent.runCount(); got != 1 {
		t.Fatalf("agent invoked %d times, want 1", got)
	}
}

func TestCorruptPayloadFailsEntryWithoutCrashing(t *testing.T) {
	agentStub := &stubAgent{script: func(int, agent.Request, func(agent.Event)) (*agent.Result, error) {
		t.Error("agent should not run for a corrupt payload")
		return nil, errors.New("unreachable")
	}}
	f := newFixture(t, agentStub)

	if _, err := f.store.Enqueue("ws-alpha", "{{{not json"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	f.start(t)

	waitFor(t, 5*time.Second, func() bool {
		snapshot, err := f.store.List()
		return err == nil && len(snapshot.Failed) == 1
	})
}

func TestStartResumesInterruptedDeployWatch(t *testing.T) {
	agentStub := &stubAgent{script: func(int, agent.Request, func(agent.Event)) (*agent.Result, error) {
		return nil, errors.New("no work expected")
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	// A previous process completed the execution and died mid-watch.
	execution, err := f.records.StartExecution(ctx, "entry-1", "ws-alpha")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if err := f.records.SetResult(ctx, execution.ID, []string{"handler.go"}, "abc123"); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	if err := f.records.FinishExecution(ctx, execution.ID, records.StatusCompleted, ""); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}
	if err := f.records.SetDeployStatus(ctx, execution.ID, records.DeployInProgress); err != nil {
		t.Fatalf("SetDeployStatus: %v", err)
	}
	if err := f.records.SetDeployAttempts(ctx, execution.ID, 2); err != nil {
		t.Fatalf("SetDeployAttempts: %v", err)
	}

	f.start(t)

	waitFor(t, 5*time.Second, func() bool {
		return len(f.deploys.watched()) == 1
	})
	watch := f.deploys.watched()[0]
	if watch.ExecutionID != execution.ID || watch.CommitID != "abc123" || watch.Attempts != 2 {
		t.Fatalf("resumed watch request = %+v", watch)
	}
}

func TestDeployRetriggerCarriesLogsAndAttempts(t *testing.T) {
	agentStub := &stubAgent{script: func(run int, request agent.Request, callback func(agent.Event)) (*agent.Result, error) {
		if request.ContextLogs != "migration exploded" {
			return nil, fmt.Errorf("context logs = %q", request.ContextLogs)
		}
		if request.Instructions != "original instructions" {
			return nil, fmt.Errorf("instructions = %q", request.Instructions)
		}
		return &agent.Result{CommitID: "def456"}, nil
	}}
	f := newFixture(t, agentStub)
	ctx := context.Background()

	err := f.manager.RetriggerAfterDeployFailure(ctx, deploy.RetryRequest{
		Workspace:    "ws-alpha",
		Instructions: "original instructions",
		FailureLog:   "migration exploded",
		Attempts:     3,
	})
	if err != nil {
		t.Fatalf("RetriggerAfterDeployFailure: %v", err)
	}
	f.start(t)

	waitFor(t, 5*time.Second, func() bool {
		return len(f.deploys.watched()) == 1
	})
	watch := f.deploys.watched()[0]
	if watch.Attempts != 3 || watch.CommitID != "def456" {
		t.Fatalf("watch request = %+v", watch)
	}
	execution, err := f.records.GetExecution(ctx, watch.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if execution.DeployAttempts != 3 {
		t.Fatalf("deploy attempts = %d", execution.DeployAttempts)
	}
}
