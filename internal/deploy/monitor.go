// Package deploy confirms that the deployment platform actually serves the
// code a successful execution committed, and drives bounded automatic
// recovery when it does not.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"remedy/internal/config"
	"remedy/internal/logging"
	"remedy/internal/notifications"
	"remedy/internal/records"
	"remedy/internal/services"
	"remedy/internal/services/deployapi"
	"remedy/internal/workspace"
)

// StatusClient is the slice of the deployment platform client the monitor
// needs. Satisfied by *deployapi.Client.
type StatusClient interface {
	Status(ctx context.Context, commitID string) (deployapi.Status, error)
}

// Retrigger starts a fresh execution cycle against a workspace with the
// deployment failure log attached. Implemented by the orchestrator.
type Retrigger interface {
	RetriggerAfterDeployFailure(ctx context.Context, req RetryRequest) error
}

// WatchRequest describes one deployment to confirm.
type WatchRequest struct {
	ExecutionID  string
	Workspace    string
	CommitID     string
	Instructions string
	// Attempts is the cumulative deploy retry count carried across the
	// execution cycles spawned for this piece of work.
	Attempts int
}

// RetryRequest is the input for a deploy-recovery execution cycle.
type RetryRequest struct {
	Workspace    string
	Instructions string
	FailureLog   string
	Attempts     int
}

// Monitor polls the deployment platform after successful executions.
type Monitor struct {
	client       StatusClient
	store        *records.Store
	tracker      *workspace.Tracker
	notifier     notifications.Service
	retrigger    Retrigger
	logger       *slog.Logger
	pollInterval time.Duration
	maxWait      time.Duration
	maxRetries   int
}

// NewMonitor builds a deploy monitor. The retrigger hook may be nil, in which
// case a failed deploy escalates immediately instead of retrying.
func NewMonitor(cfg *config.Config, client StatusClient, store *records.Store, tracker *workspace.Tracker, notifier notifications.Service, retrigger Retrigger, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Deploy.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	maxWait := time.Duration(cfg.Deploy.MaxWaitSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	maxRetries := cfg.Deploy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Monitor{
		client:       client,
		store:        store,
		tracker:      tracker,
		notifier:     notifier,
		retrigger:    retrigger,
		logger:       logging.NewComponentLogger(logger, "deploy"),
		pollInterval: pollInterval,
		maxWait:      maxWait,
		maxRetries:   maxRetries,
	}
}

// SetRetrigger wires the recovery hook after construction. The orchestrator
// and monitor reference each other, so one side has to be attached late.
func (m *Monitor) SetRetrigger(retrigger Retrigger) {
	m.retrigger = retrigger
}

// Watch polls the platform until the commit reaches a terminal state or the
// wait budget runs out, then reacts: success promotes the workspace, failure
// either spawns a recovery cycle or escalates once the retry bound is spent.
func (m *Monitor) Watch(ctx context.Context, req WatchRequest) error {
	logger := m.logger.With(
		logging.String(logging.FieldExecutionID, req.ExecutionID),
		logging.String(logging.FieldWorkspace, req.Workspace),
		logging.String(logging.FieldCommit, req.CommitID),
	)
	if err := m.store.SetDeployStatus(ctx, req.ExecutionID, records.DeployInProgress); err != nil {
		return err
	}
	logger.Info("watching deployment", logging.Int("attempts_so_far", req.Attempts))

	status, err := m.poll(ctx, req.CommitID)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-watch. The in_progress marker stays behind so the
			// next daemon start resumes the watch instead of counting this
			// as a failed deploy.
			logger.Info("deployment watch interrupted, will resume on restart")
			return err
		}
		status = deployapi.Status{State: deployapi.StateFailed, Log: err.Error()}
		logger.Warn("deployment watch errored, treating as failed", logging.Error(err))
	}

	switch status.State {
	case deployapi.StateSucceeded:
		if err := m.store.SetDeployStatus(ctx, req.ExecutionID, records.DeploySucceeded); err != nil {
			return err
		}
		if err := m.tracker.NoteDeploySucceeded(ctx, req.Workspace); err != nil {
			logger.Warn("workspace promotion failed", logging.Error(err))
		}
		if err := m.notifier.NotifyDeploySucceeded(ctx, req.Workspace, req.CommitID); err != nil {
			logger.Warn("deploy notification failed", logging.Error(err))
		}
		logger.Info("deployment confirmed")
		return nil
	case deployapi.StateFailed:
		return m.recover(ctx, logger, req, status.Log)
	default:
		return services.Wrap(services.ErrExternalTool, "deploy", "watch",
			fmt.Sprintf("poll returned non-terminal state %q", status.State), nil)
	}
}

// poll queries the platform at a fixed interval until a terminal state or
// the wait budget elapses. A timeout is reported as a failed deploy.
func (m *Monitor) poll(ctx context.Context, commitID string) (deployapi.Status, error) {
	deadline := time.Now().Add(m.maxWait)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		status, err := m.client.Status(ctx, commitID)
		if err == nil && status.State.Terminal() {
			return status, nil
		}
		if err != nil {
			m.logger.Warn("deploy status poll failed",
				logging.String(logging.FieldCommit, commitID),
				logging.Error(err))
		}
		if time.Now().After(deadline) {
			return deployapi.Status{}, services.Wrap(services.ErrTimeout, "deploy", "poll",
				fmt.Sprintf("deployment did not reach a terminal state within %s", m.maxWait), nil)
		}
		select {
		case <-ctx.Done():
			return deployapi.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) recover(ctx context.Context, logger *slog.Logger, req WatchRequest, failureLog string) error {
	attempts := req.Attempts + 1
	if err := m.store.SetDeployAttempts(ctx, req.ExecutionID, attempts); err != nil {
		logger.Warn("failed to persist deploy attempts", logging.Error(err))
	}
	if err := m.store.SetDeployStatus(ctx, req.ExecutionID, records.DeployFailed); err != nil {
		return err
	}

	if attempts >= m.maxRetries || m.retrigger == nil {
		return m.escalate(ctx, logger, req, failureLog)
	}

	logger.Info("deployment failed, starting recovery cycle",
		logging.Int("attempt", attempts),
		logging.Int("max_retries", m.maxRetries))
	err := m.retrigger.RetriggerAfterDeployFailure(ctx, RetryRequest{
		Workspace:    req.Workspace,
		Instructions: req.Instructions,
		FailureLog:   failureLog,
		Attempts:     attempts,
	})
	if err != nil {
		logger.Error("deploy recovery retrigger failed", logging.Error(err))
		return m.escalate(ctx, logger, req, failureLog)
	}
	return nil
}

// escalate alerts a human exactly once per exhausted deployment and stops all
// automatic action.
func (m *Monitor) escalate(ctx context.Context, logger *slog.Logger, req WatchRequest, failureLog string) error {
	if err := m.store.SetDeployStatus(ctx, req.ExecutionID, records.DeployEscalated); err != nil {
		return err
	}
	logger.Error("deploy retries exhausted, escalating",
		logging.Int("attempts", req.Attempts+1),
		logging.Alert("deploy_escalation"))
	if err := m.notifier.NotifyDeployEscalation(ctx, req.Workspace, req.ExecutionID, failureLog); err != nil {
		logger.Warn("escalation notification failed", logging.Error(err))
	}
	return nil
}
