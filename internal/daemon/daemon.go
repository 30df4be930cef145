package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"remedy/internal/config"
	"remedy/internal/logging"
	"remedy/internal/notifications"
	"remedy/internal/orchestrator"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/workspace"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	records  *records.Store
	tracker  *workspace.Tracker
	manager  *orchestrator.Manager
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Orchestrator orchestrator.Status
	QueueDir     string
	RecordsPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, recordsStore *records.Store, tracker *workspace.Tracker, manager *orchestrator.Manager, notifier notifications.Service, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || store == nil || recordsStore == nil || tracker == nil || manager == nil || logger == nil {
		return nil, errors.New("daemon requires config, stores, tracker, manager, and logger")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	if logPath == "" {
		logPath = filepath.Join(cfg.Paths.LogDir, "remedy.log")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "remedyd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		records:  recordsStore,
		tracker:  tracker,
		manager:  manager,
		notifier: notifier,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start recovers leftover state, launches the worker, and acquires the
// daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another remedy daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.recover(d.ctx)
	if err := d.manager.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start orchestrator: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("remedy daemon started", logging.String("lock", d.lockPath))
	return nil
}

// recover cleans up after an unclean shutdown. Executions that were running
// when the previous process died are failed, and their queue entries come
// back to pending once the expired leases are reaped.
func (d *Daemon) recover(ctx context.Context) {
	abandoned, err := d.records.FailAbandoned(ctx, "daemon restarted while execution was running")
	if err != nil {
		d.logger.Warn("failed to sweep abandoned executions", logging.Error(err))
	} else if len(abandoned) > 0 {
		d.logger.Info("abandoned executions failed",
			logging.String(logging.FieldEventType, "startup_recovery"),
			logging.Int("execution_count", len(abandoned)))
	}
	reclaimed, err := d.store.ReapExpired()
	if err != nil {
		d.logger.Warn("failed to reap expired leases", logging.Error(err))
	} else if len(reclaimed) > 0 {
		d.logger.Info("expired leases reaped",
			logging.String(logging.FieldEventType, "startup_recovery"),
			logging.Int("entry_count", len(reclaimed)))
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("remedy daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.records != nil {
		return d.records.Close()
	}
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.manager.Status()
	if err != nil {
		d.logger.Warn("orchestrator status unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		Orchestrator: summary,
		QueueDir:     d.store.Dir(),
		RecordsPath:  d.records.Path(),
		LockFilePath: d.lockPath,
	}
}
