package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remedy/internal/config"
	"remedy/internal/daemon"
	"remedy/internal/deploy"
	"remedy/internal/ipc"
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

type stubPrompts struct{}

func (stubPrompts) Generate(context.Context, promptgen.Request) (string, error) {
	return "address the reported feedback", nil
}

type blockingAgent struct{}

func (blockingAgent) Run(ctx context.Context, _ agent.Request, _ func(agent.Event)) (*agent.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type noopDeploys struct{}

func (noopDeploys) Watch(context.Context, deploy.WatchRequest) error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	records    *records.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "remedy-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "remedy", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	store := testsupport.MustOpenQueue(t, cfg)
	recordsStore := testsupport.MustOpenRecords(t, cfg)
	tracker := workspace.NewTracker(recordsStore, logger)
	notifier := notifications.NewService(cfg)
	manager := orchestrator.NewManager(cfg, store, recordsStore, tracker, notifier,
		stubPrompts{}, blockingAgent{}, noopDeploys{}, logger)

	d, err := daemon.New(cfg, store, recordsStore, tracker, manager, notifier, logger, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		records:    recordsStore,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	time.Sleep(50 * time.Millisecond)
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
queue_dir = %q
data_dir = %q
log_dir = %q

[agent]
endpoint = %q
api_key = "test"

[promptgen]
endpoint = %q

[deploy]
endpoint = %q
api_key = "test"
`,
		cfg.Paths.QueueDir,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Agent.Endpoint,
		cfg.PromptGen.Endpoint,
		cfg.Deploy.Endpoint,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
