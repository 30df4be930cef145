package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"remedy/internal/config"
)

const userAgent = "Remedy-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyExecutionCompleted(ctx context.Context, workspace, executionID string) error
	NotifyExecutionFailed(ctx context.Context, workspace, executionID, errorText string) error
	NotifyDeploySucceeded(ctx context.Context, workspace, commitID string) error
	NotifyDeployEscalation(ctx context.Context, workspace, executionID, failureLog string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dedup := time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		completion:   cfg.Notifications.Completion,
		deploy:       cfg.Notifications.Deploy,
		escalation:   cfg.Notifications.Escalation,
		dedupWindow:  dedup,
		recentlySeen: make(map[string]time.Time),
		now:          time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	deploy     bool
	escalation bool

	dedupWindow time.Duration

	mu           sync.Mutex
	recentlySeen map[string]time.Time
	now          func() time.Time
}

func (n *ntfyService) NotifyExecutionCompleted(ctx context.Context, workspace, executionID string) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "Remedy - Execution Complete",
		message: fmt.Sprintf("Workspace %s: execution %s finished successfully", workspace, executionID),
		tags:    []string{"remedy", "execution", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyExecutionFailed(ctx context.Context, workspace, executionID, errorText string) error {
	if !n.completion {
		return nil
	}
	errorText = strings.TrimSpace(errorText)
	if errorText == "" {
		errorText = "unknown error"
	}
	data := payload{
		title:    "Remedy - Execution Failed",
		message:  fmt.Sprintf("Workspace %s: execution %s failed: %s", workspace, executionID, errorText),
		tags:     []string{"remedy", "execution", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeploySucceeded(ctx context.Context, workspace, commitID string) error {
	if !n.deploy {
		return nil
	}
	data := payload{
		title:   "Remedy - Deployed",
		message: fmt.Sprintf("Workspace %s: commit %s is live", workspace, commitID),
		tags:    []string{"remedy", "deploy", "succeeded"},
	}
	return n.send(ctx, data)
}

// NotifyDeployEscalation alerts a human after automatic deploy recovery is
// exhausted. Repeat escalations for the same workspace and execution inside
// the dedup window are dropped so a wedged deploy does not flood the topic.
func (n *ntfyService) NotifyDeployEscalation(ctx context.Context, workspace, executionID, failureLog string) error {
	if !n.escalation {
		return nil
	}
	if n.suppressed("escalation:" + workspace + ":" + executionID) {
		return nil
	}
	failureLog = strings.TrimSpace(failureLog)
	message := fmt.Sprintf("Workspace %s: deploy retries exhausted for execution %s, manual intervention required", workspace, executionID)
	if failureLog != "" {
		message = message + "\nLast failure:\n" + failureLog
	}
	data := payload{
		title:    "Remedy - Deploy Escalation",
		message:  message,
		tags:     []string{"remedy", "deploy", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Remedy - Test",
		message:  "Notification system test",
		tags:     []string{"remedy", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) suppressed(key string) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.recentlySeen[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	for seen, at := range n.recentlySeen {
		if now.Sub(at) >= n.dedupWindow {
			delete(n.recentlySeen, seen)
		}
	}
	n.recentlySeen[key] = now
	return false
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyExecutionCompleted(context.Context, string, string) error       { return nil }
func (noopService) NotifyExecutionFailed(context.Context, string, string, string) error  { return nil }
func (noopService) NotifyDeploySucceeded(context.Context, string, string) error          { return nil }
func (noopService) NotifyDeployEscalation(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
