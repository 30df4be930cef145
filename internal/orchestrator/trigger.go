package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"remedy/internal/deploy"
	"remedy/internal/logging"
	"remedy/internal/records"
	"remedy/internal/services"
	"remedy/internal/services/promptgen"
	"remedy/internal/workspace"
)

// Trigger starts a remediation cycle for a workspace from a feedback batch.
// It creates the execution record, enqueues the matching entry, and wakes the
// worker. A workspace with an active execution rejects the trigger with a
// Conflict instead of queueing silently.
func (m *Manager) Trigger(ctx context.Context, workspaceName string, feedback []promptgen.FeedbackItem) (string, error) {
	workspaceName = strings.TrimSpace(workspaceName)
	if workspaceName == "" {
		return "", services.Wrap(services.ErrValidation, "orchestrator", "trigger", "workspace is required", nil)
	}
	if len(feedback) == 0 {
		return "", services.Wrap(services.ErrValidation, "orchestrator", "trigger", "feedback batch is empty", nil)
	}
	record, err := m.tracker.Ensure(ctx, workspaceName)
	if err != nil {
		return "", err
	}
	if !workspace.AcceptsWork(workspace.State(record.State)) {
		return "", services.Wrap(services.ErrConflict, "orchestrator", "trigger",
			fmt.Sprintf("workspace %s is %s and closed to new work", workspaceName, record.State), nil)
	}
	return m.startCycle(ctx, workspaceName, entryPayload{Feedback: feedback})
}

// RetriggerAfterDeployFailure starts a recovery cycle with the deployment
// failure log attached to the original instructions. This is the only path
// that creates an execution without a fresh feedback batch.
func (m *Manager) RetriggerAfterDeployFailure(ctx context.Context, req deploy.RetryRequest) error {
	_, err := m.startCycle(ctx, req.Workspace, entryPayload{
		Instructions:   req.Instructions,
		ContextLogs:    req.FailureLog,
		DeployAttempts: req.Attempts,
	})
	return err
}

func (m *Manager) startCycle(ctx context.Context, workspaceName string, payload entryPayload) (string, error) {
	execution, err := m.records.StartExecution(ctx, "", workspaceName)
	if err != nil {
		return "", err
	}
	payload.ExecutionID = execution.ID
	encoded, err := encodePayload(payload)
	if err != nil {
		m.abortExecution(ctx, execution.ID, "failed to encode entry payload")
		return "", err
	}
	entry, err := m.store.Enqueue(workspaceName, encoded)
	if err != nil {
		m.abortExecution(ctx, execution.ID, "failed to enqueue entry")
		return "", err
	}
	if err := m.records.BindEntry(ctx, execution.ID, entry.ID); err != nil {
		m.logger.Warn("failed to bind entry to execution",
			logging.String(logging.FieldExecutionID, execution.ID),
			logging.Error(err))
	}
	m.logger.Info("cycle triggered",
		logging.String(logging.FieldExecutionID, execution.ID),
		logging.String(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldWorkspace, workspaceName))
	m.Wake()
	return execution.ID, nil
}

// abortExecution closes an execution that never got a queue entry so it does
// not hold the workspace.
func (m *Manager) abortExecution(ctx context.Context, id, reason string) {
	if err := m.records.FinishExecution(ctx, id, records.StatusFailed, reason); err != nil {
		m.logger.Warn("failed to abort execution",
			logging.String(logging.FieldExecutionID, id),
			logging.Error(err))
	}
}
