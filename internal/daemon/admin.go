package daemon

import (
	"context"
	"errors"

	"remedy/internal/logging"
	"remedy/internal/orchestrator"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/services/promptgen"
)

// Trigger starts a remediation cycle for a workspace and returns the new
// execution id.
func (d *Daemon) Trigger(ctx context.Context, workspaceName string, feedback []promptgen.FeedbackItem) (string, error) {
	return d.manager.Trigger(ctx, workspaceName, feedback)
}

// ListQueue returns queue entries filtered by optional classes. No classes
// means every readable entry.
func (d *Daemon) ListQueue(classes []queue.Class) ([]*queue.Entry, error) {
	snapshot, err := d.store.List()
	if err != nil {
		return nil, err
	}
	wanted := make(map[queue.Class]bool, len(classes))
	for _, class := range classes {
		wanted[class] = true
	}
	groups := [][]*queue.Entry{
		snapshot.Processing,
		snapshot.Pending,
		snapshot.Retrying,
		snapshot.Failed,
		snapshot.Completed,
	}
	var out []*queue.Entry
	for _, group := range groups {
		for _, entry := range group {
			if len(wanted) > 0 && !wanted[entry.Class] {
				continue
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// GetQueueEntry fetches a single entry by id.
func (d *Daemon) GetQueueEntry(id string) (*queue.Entry, error) {
	return d.store.Get(id)
}

// RetryEntry resets a failed entry back to pending and wakes the worker.
func (d *Daemon) RetryEntry(id string) (*queue.Entry, error) {
	entry, err := d.store.Retry(id)
	if err != nil {
		return nil, err
	}
	d.manager.Wake()
	return entry, nil
}

// CancelEntry removes a pending or retrying entry. The execution that was
// waiting on the entry would otherwise hold its workspace forever, so it is
// failed in the same step.
func (d *Daemon) CancelEntry(ctx context.Context, id string) error {
	if err := d.store.Cancel(id); err != nil {
		return err
	}
	execution, err := d.records.ExecutionByEntry(ctx, id)
	if err != nil {
		d.logger.Warn("lookup execution for cancelled entry", logging.Error(err))
		return nil
	}
	if execution.Active() {
		if err := d.records.FinishExecution(ctx, execution.ID, records.StatusFailed, "cancelled before execution"); err != nil {
			d.logger.Warn("fail execution for cancelled entry",
				logging.String(logging.FieldExecutionID, execution.ID),
				logging.Error(err))
		}
	}
	return nil
}

// PruneCompleted trims completed entries beyond the retention cap.
func (d *Daemon) PruneCompleted(keep int) (int, error) {
	if keep <= 0 {
		keep = d.cfg.Worker.CompletedRetention
	}
	return d.store.PruneCompleted(keep)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth() (queue.HealthSummary, error) {
	return d.store.Health()
}

// Approve promotes a beta workspace to in_review.
func (d *Daemon) Approve(ctx context.Context, name string) error {
	return d.tracker.Approve(ctx, name)
}

// Verify promotes an in_review workspace to verified.
func (d *Daemon) Verify(ctx context.Context, name string) error {
	return d.tracker.Verify(ctx, name)
}

// Workspaces lists every tracked workspace.
func (d *Daemon) Workspaces(ctx context.Context) ([]*records.WorkspaceRecord, error) {
	return d.tracker.List(ctx)
}

// Workspace fetches one workspace by name.
func (d *Daemon) Workspace(ctx context.Context, name string) (*records.WorkspaceRecord, error) {
	return d.tracker.Get(ctx, name)
}

// Executions lists recent executions, optionally scoped to one workspace.
func (d *Daemon) Executions(ctx context.Context, workspaceName string, limit int) ([]*records.Execution, error) {
	return d.records.ListExecutions(ctx, workspaceName, limit)
}

// ExecutionDetail returns an execution with its checkpoints and recent logs.
func (d *Daemon) ExecutionDetail(ctx context.Context, id string, logLimit int) (*records.Execution, []records.Checkpoint, []records.LogLine, error) {
	execution, err := d.records.GetExecution(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	checkpoints, err := d.records.Checkpoints(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	logs, err := d.records.Logs(ctx, id, logLimit)
	if err != nil {
		return nil, nil, nil, err
	}
	return execution, checkpoints, logs, nil
}

// OrchestratorStatus exposes the worker status for callers that do not need
// the full daemon view.
func (d *Daemon) OrchestratorStatus() (orchestrator.Status, error) {
	if d.manager == nil {
		return orchestrator.Status{}, errors.New("orchestrator unavailable")
	}
	return d.manager.Status()
}
