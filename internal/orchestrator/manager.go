package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"remedy/internal/config"
	"remedy/internal/deploy"
	"remedy/internal/logging"
	"remedy/internal/notifications"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/services/agent"
	"remedy/internal/services/promptgen"
	"remedy/internal/workspace"
)

// AgentRunner is the slice of the agent client the worker needs. Satisfied
// by *agent.Client.
type AgentRunner interface {
	Run(ctx context.Context, request agent.Request, callback func(agent.Event)) (*agent.Result, error)
}

// PromptGenerator is the slice of the prompt generator client the worker
// needs. Satisfied by *promptgen.Client.
type PromptGenerator interface {
	Generate(ctx context.Context, request promptgen.Request) (string, error)
}

// DeployWatcher receives successful commits for confirmation. Satisfied by
// *deploy.Monitor.
type DeployWatcher interface {
	Watch(ctx context.Context, req deploy.WatchRequest) error
}

// Manager owns the worker that drains the queue store.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	records  *records.Store
	tracker  *workspace.Tracker
	notifier notifications.Service
	prompts  PromptGenerator
	agent    AgentRunner
	deploys  DeployWatcher
	logger   *slog.Logger

	workerID          string
	pollInterval      time.Duration
	errorRetry        time.Duration
	leaseTTL          time.Duration
	heartbeatInterval time.Duration
	retryBackoff      time.Duration
	maxAttempts       int
	retention         int

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs an orchestrator manager.
func NewManager(cfg *config.Config, store *queue.Store, recordsStore *records.Store, tracker *workspace.Tracker, notifier notifications.Service, prompts PromptGenerator, agentClient AgentRunner, deploys DeployWatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxAttempts := cfg.Agent.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retention := cfg.Worker.CompletedRetention
	if retention <= 0 {
		retention = 20
	}
	return &Manager{
		cfg:               cfg,
		store:             store,
		records:           recordsStore,
		tracker:           tracker,
		notifier:          notifier,
		prompts:           prompts,
		agent:             agentClient,
		deploys:           deploys,
		logger:            logging.NewComponentLogger(logger, "orchestrator"),
		workerID:          "worker-" + uuid.NewString(),
		pollInterval:      secondsOr(cfg.Worker.QueuePollInterval, 5*time.Second),
		errorRetry:        secondsOr(cfg.Worker.ErrorRetryInterval, 10*time.Second),
		leaseTTL:          secondsOr(cfg.Worker.LeaseTTLSeconds, 120*time.Second),
		heartbeatInterval: secondsOr(cfg.Worker.HeartbeatInterval, 15*time.Second),
		retryBackoff:      secondsOr(cfg.Agent.RetryBackoffSeconds, 5*time.Second),
		maxAttempts:       maxAttempts,
		retention:         retention,
		wake:              make(chan struct{}, 1),
	}
}

// SetDeployWatcher wires the deploy monitor after construction. The monitor
// needs the manager as its retrigger hook, so one side attaches late.
func (m *Manager) SetDeployWatcher(watcher DeployWatcher) {
	m.deploys = watcher
}

func secondsOr(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.runWorker(runCtx)
	m.startWatcher(runCtx)
	m.resumeDeployWatches(runCtx)
	return nil
}

// resumeDeployWatches restarts deployment confirmation for executions whose
// watch was cut off by the previous shutdown. Instructions are not persisted
// across restarts, so a recovery cycle spawned from a resumed watch falls
// back to generated ones.
func (m *Manager) resumeDeployWatches(ctx context.Context) {
	if m.deploys == nil {
		return
	}
	interrupted, err := m.records.ExecutionsAwaitingDeploy(ctx)
	if err != nil {
		m.logger.Warn("failed to list interrupted deploy watches", logging.Error(err))
		return
	}
	for _, execution := range interrupted {
		if execution.CommitID == "" {
			continue
		}
		watch := deploy.WatchRequest{
			ExecutionID: execution.ID,
			Workspace:   execution.Workspace,
			CommitID:    execution.CommitID,
			Attempts:    execution.DeployAttempts,
		}
		m.logger.Info("resuming interrupted deploy watch",
			logging.String(logging.FieldExecutionID, execution.ID),
			logging.String(logging.FieldWorkspace, execution.Workspace))
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.deploys.Watch(ctx, watch); err != nil {
				m.setLastError(err)
			}
		}()
	}
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Wake nudges the worker. Multiple signals while already awake collapse into
// one; the notification is at-least-once and idempotent.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// startWatcher wires a filesystem watcher on the queue directory as an extra
// wake source, so externally enqueued entries are picked up before the next
// poll tick. Watch failures degrade to polling.
func (m *Manager) startWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("queue watcher unavailable, relying on polling", logging.Error(err))
		return
	}
	if err := watcher.Add(m.store.Dir()); err != nil {
		m.logger.Warn("queue watcher add failed, relying on polling", logging.Error(err))
		watcher.Close()
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) {
					m.Wake()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("queue watcher error", logging.Error(err))
			}
		}
	}()
}

// Status describes the manager for the control surface.
type Status struct {
	Running   bool
	WorkerID  string
	LastError string
	Queue     queue.HealthSummary
}

// Status reports current worker and queue state.
func (m *Manager) Status() (Status, error) {
	health, err := m.store.Health()
	if err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	status := Status{
		Running:  m.running,
		WorkerID: m.workerID,
		Queue:    health,
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status, nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
