package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"remedy/internal/api"
	"remedy/internal/daemon"
	"remedy/internal/logging"
	"remedy/internal/logs"
	"remedy/internal/queue"
	"remedy/internal/services/promptgen"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Remedy", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun remedy stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.WorkerID = status.Orchestrator.WorkerID
	resp.LastError = status.Orchestrator.LastError
	resp.LockPath = status.LockFilePath
	resp.QueueDir = status.QueueDir
	resp.RecordsPath = status.RecordsPath
	resp.PID = os.Getpid()
	resp.QueueStats = map[string]int{
		string(queue.ClassPending):    status.Orchestrator.Queue.Pending,
		string(queue.ClassProcessing): status.Orchestrator.Queue.Processing,
		string(queue.ClassRetrying):   status.Orchestrator.Queue.Retrying,
		string(queue.ClassFailed):     status.Orchestrator.Queue.Failed,
		string(queue.ClassCompleted):  status.Orchestrator.Queue.Completed,
	}
	return nil
}

func (s *service) Trigger(req TriggerRequest, resp *TriggerResponse) error {
	feedback := make([]promptgen.FeedbackItem, 0, len(req.Feedback))
	for _, item := range req.Feedback {
		feedback = append(feedback, promptgen.FeedbackItem{
			ID:         item.ID,
			Reasoning:  item.Reasoning,
			Attachment: item.Attachment,
		})
	}
	s.log().Debug("trigger requested",
		logging.String(logging.FieldWorkspace, req.Workspace),
		logging.Int("feedback_count", len(feedback)))
	executionID, err := s.daemon.Trigger(s.ctx, req.Workspace, feedback)
	if err != nil {
		return err
	}
	resp.ExecutionID = executionID
	s.log().Info("remediation cycle triggered via IPC",
		logging.String(logging.FieldEventType, "trigger"),
		logging.String(logging.FieldWorkspace, req.Workspace),
		logging.String(logging.FieldExecutionID, executionID))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	classes := make([]queue.Class, 0, len(req.Classes))
	for _, value := range req.Classes {
		parsed, ok := queue.ParseClass(value)
		if !ok {
			continue
		}
		classes = append(classes, parsed)
	}
	entries, err := s.daemon.ListQueue(classes)
	if err != nil {
		return err
	}
	resp.Entries = api.FromQueueEntries(entries)
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("queue describe requires an entry id")
	}
	entry, err := s.daemon.GetQueueEntry(req.ID)
	if err != nil {
		return err
	}
	resp.Entry = api.FromQueueEntry(entry)
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("queue retry requires an entry id")
	}
	entry, err := s.daemon.RetryEntry(req.ID)
	if err != nil {
		return err
	}
	resp.Entry = api.FromQueueEntry(entry)
	s.log().Info("failed entry retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.String(logging.FieldEntryID, req.ID))
	return nil
}

func (s *service) QueueCancel(req QueueCancelRequest, resp *QueueCancelResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("queue cancel requires an entry id")
	}
	if err := s.daemon.CancelEntry(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Cancelled = true
	s.log().Info("entry cancelled",
		logging.String(logging.FieldEventType, "queue_cancel"),
		logging.String(logging.FieldEntryID, req.ID))
	return nil
}

func (s *service) QueuePrune(req QueuePruneRequest, resp *QueuePruneResponse) error {
	removed, err := s.daemon.PruneCompleted(req.Keep)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed entries pruned",
		logging.String(logging.FieldEventType, "queue_prune"),
		logging.Int("removed_count", removed))
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth()
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Retrying = health.Retrying
	resp.Failed = health.Failed
	resp.Completed = health.Completed
	resp.Corrupt = health.Corrupt
	resp.OldestPendingAgeSeconds = int64(health.OldestPendingAge / time.Second)
	return nil
}

func (s *service) WorkspaceList(_ WorkspaceListRequest, resp *WorkspaceListResponse) error {
	workspaces, err := s.daemon.Workspaces(s.ctx)
	if err != nil {
		return err
	}
	resp.Workspaces = api.FromWorkspaces(workspaces)
	return nil
}

func (s *service) WorkspaceShow(req WorkspaceShowRequest, resp *WorkspaceShowResponse) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("workspace show requires a name")
	}
	record, err := s.daemon.Workspace(s.ctx, req.Name)
	if err != nil {
		return err
	}
	resp.Workspace = api.FromWorkspace(record)
	return nil
}

func (s *service) Approve(req ApproveRequest, resp *ApproveResponse) error {
	if err := s.daemon.Approve(s.ctx, req.Workspace); err != nil {
		return err
	}
	record, err := s.daemon.Workspace(s.ctx, req.Workspace)
	if err != nil {
		return err
	}
	resp.Workspace = api.FromWorkspace(record)
	s.log().Info("workspace approved via IPC",
		logging.String(logging.FieldEventType, "workspace_approve"),
		logging.String(logging.FieldWorkspace, req.Workspace))
	return nil
}

func (s *service) Verify(req VerifyRequest, resp *VerifyResponse) error {
	if err := s.daemon.Verify(s.ctx, req.Workspace); err != nil {
		return err
	}
	record, err := s.daemon.Workspace(s.ctx, req.Workspace)
	if err != nil {
		return err
	}
	resp.Workspace = api.FromWorkspace(record)
	s.log().Info("workspace verified via IPC",
		logging.String(logging.FieldEventType, "workspace_verify"),
		logging.String(logging.FieldWorkspace, req.Workspace))
	return nil
}

func (s *service) ExecutionList(req ExecutionListRequest, resp *ExecutionListResponse) error {
	executions, err := s.daemon.Executions(s.ctx, req.Workspace, req.Limit)
	if err != nil {
		return err
	}
	resp.Executions = api.FromExecutions(executions)
	return nil
}

func (s *service) ExecutionShow(req ExecutionShowRequest, resp *ExecutionShowResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("execution show requires an id")
	}
	execution, checkpoints, logLines, err := s.daemon.ExecutionDetail(s.ctx, req.ID, req.LogLimit)
	if err != nil {
		return err
	}
	resp.Execution = api.FromExecution(execution)
	resp.Checkpoints = api.FromCheckpoints(checkpoints)
	resp.Logs = api.FromLogLines(logLines)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
