package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"remedy/internal/config"
	"remedy/internal/daemon"
	"remedy/internal/deploy"
	"remedy/internal/ipc"
	"remedy/internal/logging"
	"remedy/internal/notifications"
	"remedy/internal/orchestrator"
	"remedy/internal/preflight"
	"remedy/internal/queue"
	"remedy/internal/records"
	"remedy/internal/services/agent"
	"remedy/internal/services/deployapi"
	"remedy/internal/services/promptgen"
	"remedy/internal/workspace"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the remedy daemon runtime loop. It blocks until the context is
// canceled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("remedy-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update remedy.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "remedy-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "remedyd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(signalCtx, logger, cfg)

	store, err := queue.Open(cfg, logger)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	recordsStore, err := records.Open(cfg, logger)
	if err != nil {
		logger.Error("open record store", logging.Error(err))
		return err
	}
	defer recordsStore.Close()

	notifier := notifications.NewService(cfg)
	tracker := workspace.NewTracker(recordsStore, logger)

	agentClient, err := agent.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create agent client: %w", err)
	}
	promptClient, err := promptgen.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create prompt generator client: %w", err)
	}
	deployClient, err := deployapi.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create deploy API client: %w", err)
	}

	manager := orchestrator.NewManager(cfg, store, recordsStore, tracker, notifier,
		promptClient, agentClient, nil, logger)
	monitor := deploy.NewMonitor(cfg, deployClient, recordsStore, tracker, notifier, manager, logger)
	manager.SetDeployWatcher(monitor)

	d, err := daemon.New(cfg, store, recordsStore, tracker, manager, notifier, logger, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue directory access"),
			logging.String(logging.FieldImpact, "daemon may not process queue entries"),
		)
	}

	<-signalCtx.Done()
	logger.Info("remedy daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "remedy.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
