package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remedy/internal/deploy"
	"remedy/internal/logging"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/services"
	"remedy/internal/services/agent"
	"remedy/internal/services/promptgen"
)

func (m *Manager) runWorker(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("worker started", logging.String("worker_id", m.workerID))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("worker stopped")
			return
		default:
		}

		if _, err := m.store.ReapExpired(); err != nil {
			m.logger.Warn("lease reaper failed", logging.Error(err))
		}

		entry, err := m.nextEntry(ctx)
		if err != nil {
			m.setLastError(err)
			m.logger.Error("failed to fetch next queue entry", logging.Error(err))
			m.sleep(ctx, m.errorRetry)
			continue
		}
		if entry == nil {
			m.waitForWork(ctx)
			continue
		}

		if err := m.processEntry(ctx, entry); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
		}
	}
}

// nextEntry returns the oldest dequeuable entry, deferring entries whose
// workspace still has a running execution.
func (m *Manager) nextEntry(ctx context.Context) (*queue.Entry, error) {
	return m.store.NextPending(func(entry *queue.Entry) bool {
		active, err := m.records.ActiveExecution(ctx, entry.Workspace)
		if err != nil {
			m.logger.Warn("workspace busy check failed",
				logging.String(logging.FieldWorkspace, entry.Workspace),
				logging.Error(err))
			return true
		}
		return active != nil && active.Status == records.StatusRunning
	})
}

func (m *Manager) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// processEntry drives one claimed entry through a full agent run.
func (m *Manager) processEntry(ctx context.Context, entry *queue.Entry) error {
	lease, err := m.store.Claim(entry.ID, m.workerID, m.leaseTTL)
	if err != nil {
		if errors.Is(err, services.ErrConflict) || errors.Is(err, services.ErrNotFound) {
			// Lost the race or the entry moved. Not our work anymore.
			return nil
		}
		return err
	}
	defer m.store.ReleaseLease(entry.ID, m.workerID)

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go m.renewLease(ctx, lease.EntryID, heartbeatDone)

	logger := m.logger.With(
		logging.String(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldWorkspace, entry.Workspace),
	)

	payload, err := decodePayload(entry.Payload)
	if err != nil {
		logger.Error("entry payload unparsable, failing entry", logging.Error(err))
		if markErr := m.store.MarkFailed(entry.ID); markErr != nil {
			logger.Warn("failed to mark corrupt entry failed", logging.Error(markErr))
		}
		return nil
	}
	logger = logger.With(logging.String(logging.FieldExecutionID, payload.ExecutionID))

	execution, err := m.resolveExecution(ctx, entry, payload)
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			// The workspace is occupied by someone else's execution. Give the
			// entry back and let a later pass pick it up.
			logger.Info("workspace busy, requeueing entry")
			if requeueErr := m.store.Requeue(entry.ID); requeueErr != nil {
				logger.Warn("requeue failed", logging.Error(requeueErr))
			}
			return nil
		}
		return err
	}
	payload.ExecutionID = execution.ID

	if err := m.records.MarkRunning(ctx, execution.ID); err != nil {
		logger.Warn("failed to mark execution running", logging.Error(err))
	}
	if err := m.tracker.NoteTriggered(ctx, entry.Workspace); err != nil {
		logger.Warn("workspace trigger note failed", logging.Error(err))
	}
	if payload.DeployAttempts > 0 {
		if err := m.records.SetDeployAttempts(ctx, execution.ID, payload.DeployAttempts); err != nil {
			logger.Warn("failed to carry deploy attempts", logging.Error(err))
		}
	}
	if entry.Attempts > 0 {
		// A retry pass starts a fresh execution; the entry remembers how many
		// agent runs already failed.
		if err := m.records.SetAgentAttempts(ctx, execution.ID, entry.Attempts); err != nil {
			logger.Warn("failed to carry agent attempts", logging.Error(err))
		}
	}

	instructions, err := m.resolveInstructions(ctx, entry.Workspace, payload)
	if err != nil {
		return m.handleFailure(ctx, logger, entry, execution, err)
	}

	result, err := m.runAgent(ctx, logger, entry, execution, payload, instructions)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-run: give the entry back without burning a retry.
			if requeueErr := m.store.Requeue(entry.ID); requeueErr != nil {
				logger.Warn("requeue on shutdown failed", logging.Error(requeueErr))
			}
			return context.Canceled
		}
		return m.handleFailure(ctx, logger, entry, execution, err)
	}
	return m.handleSuccess(ctx, logger, entry, execution, payload, instructions, result)
}

// renewLease keeps the claim alive until the entry is done or the run stops.
func (m *Manager) renewLease(ctx context.Context, entryID string, done <-chan struct{}) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.store.RenewLease(entryID, m.workerID, m.leaseTTL); err != nil {
				m.logger.Warn("lease renewal failed",
					logging.String(logging.FieldEntryID, entryID),
					logging.Error(err))
				return
			}
		}
	}
}

// resolveExecution finds the execution an entry belongs to, creating a fresh
// one for retry passes whose previous execution already failed.
func (m *Manager) resolveExecution(ctx context.Context, entry *queue.Entry, payload entryPayload) (*records.Execution, error) {
	execution, err := m.records.GetExecution(ctx, payload.ExecutionID)
	if err == nil && !execution.Status.Terminal() {
		return execution, nil
	}
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	fresh, err := m.records.StartExecution(ctx, entry.ID, entry.Workspace)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func (m *Manager) resolveInstructions(ctx context.Context, workspaceName string, payload entryPayload) (string, error) {
	instructions := strings.TrimSpace(payload.Instructions)
	if instructions == "" {
		generated, err := m.prompts.Generate(ctx, promptgen.Request{
			Workspace: workspaceName,
			Feedback:  payload.Feedback,
		})
		if err != nil {
			return "", err
		}
		instructions = generated
	}
	return instructions, nil
}

// runAgent invokes the agent and records every event it emits. Phase events
// that violate the forward-only ordering are logged and dropped rather than
// failing the run.
func (m *Manager) runAgent(ctx context.Context, logger *slog.Logger, entry *queue.Entry, execution *records.Execution, payload entryPayload, instructions string) (*agent.Result, error) {
	request := agent.Request{
		Workspace:    entry.Workspace,
		ExecutionID:  execution.ID,
		Instructions: instructions,
		ContextLogs:  payload.ContextLogs,
	}
	return m.agent.Run(ctx, request, func(event agent.Event) {
		switch ev := event.(type) {
		case agent.PhaseEvent:
			phase, ok := records.ParsePhase(ev.Phase)
			if !ok {
				logger.Warn("agent reported unknown phase", logging.String(logging.FieldPhase, ev.Phase))
				return
			}
			if err := m.records.AdvancePhase(ctx, execution.ID, phase); err != nil {
				logger.Warn("phase transition rejected",
					logging.String(logging.FieldPhase, string(phase)),
					logging.Error(err))
				return
			}
			if err := m.records.AppendLog(ctx, execution.ID, "info", "entered phase "+string(phase)); err != nil {
				logger.Warn("phase log append failed", logging.Error(err))
			}
		case agent.ProgressEvent:
			if err := m.records.UpdateProgress(ctx, execution.ID, ev.Percent); err != nil {
				logger.Warn("progress update failed", logging.Error(err))
			}
		case agent.LogEvent:
			if err := m.records.AppendLog(ctx, execution.ID, ev.Level, ev.Message); err != nil {
				logger.Warn("log append failed", logging.Error(err))
			}
		}
	})
}

func (m *Manager) handleSuccess(ctx context.Context, logger *slog.Logger, entry *queue.Entry, execution *records.Execution, payload entryPayload, instructions string, result *agent.Result) error {
	if err := m.records.SetResult(ctx, execution.ID, result.ChangedFiles, result.CommitID); err != nil {
		logger.Warn("failed to record result", logging.Error(err))
	}
	if err := m.records.AppendLog(ctx, execution.ID, "info",
		fmt.Sprintf("agent succeeded with %d changed files", len(result.ChangedFiles))); err != nil {
		logger.Warn("log append failed", logging.Error(err))
	}
	if err := m.records.FinishExecution(ctx, execution.ID, records.StatusCompleted, ""); err != nil {
		return err
	}
	if err := m.store.MarkCompleted(entry.ID); err != nil {
		logger.Warn("failed to mark entry completed", logging.Error(err))
	}
	if err := m.records.RecordSessionOutcome(ctx, entry.Workspace, true, len(payload.Feedback)); err != nil {
		logger.Warn("failed to record session outcome", logging.Error(err))
	}
	if _, err := m.store.PruneCompleted(m.retention); err != nil {
		logger.Warn("completed prune failed", logging.Error(err))
	}
	if err := m.notifier.NotifyExecutionCompleted(ctx, entry.Workspace, execution.ID); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
	logger.Info("execution completed", logging.String(logging.FieldCommit, result.CommitID))

	if result.CommitID != "" && m.deploys != nil {
		watch := deploy.WatchRequest{
			ExecutionID:  execution.ID,
			Workspace:    entry.Workspace,
			CommitID:     result.CommitID,
			Instructions: instructions,
			Attempts:     payload.DeployAttempts,
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.deploys.Watch(ctx, watch); err != nil {
				logger.Warn("deploy watch failed", logging.Error(err))
				m.setLastError(err)
			}
		}()
	}
	return nil
}

func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, entry *queue.Entry, execution *records.Execution, runErr error) error {
	if err := m.records.AppendLog(ctx, execution.ID, "error", runErr.Error()); err != nil {
		logger.Warn("log append failed", logging.Error(err))
	}
	if err := m.records.FinishExecution(ctx, execution.ID, records.StatusFailed, runErr.Error()); err != nil {
		logger.Warn("failed to finish execution", logging.Error(err))
	}
	if err := m.records.RecordSessionOutcome(ctx, entry.Workspace, false, 0); err != nil {
		logger.Warn("failed to record session outcome", logging.Error(err))
	}

	updated, err := m.store.MarkRetrying(entry.ID)
	if err != nil {
		logger.Warn("failed to mark entry retrying", logging.Error(err))
		return runErr
	}
	terminal := updated.Attempts >= m.maxAttempts || !services.Retryable(runErr)
	if terminal {
		if err := m.store.MarkFailed(entry.ID); err != nil {
			logger.Warn("failed to mark entry failed", logging.Error(err))
		}
		if err := m.notifier.NotifyExecutionFailed(ctx, entry.Workspace, execution.ID, runErr.Error()); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
		logger.Error("entry failed terminally",
			logging.Int("attempts", updated.Attempts),
			logging.Error(runErr))
		return nil
	}
	logger.Warn("agent run failed, will retry",
		logging.Int("attempts", updated.Attempts),
		logging.Int("max_attempts", m.maxAttempts),
		logging.Error(runErr))
	m.sleep(ctx, m.retryBackoff)
	return nil
}
