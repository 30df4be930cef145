package ipc

import "remedy/internal/api"

// StartRequest triggers daemon worker startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon worker.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// QueueEntry mirrors the API queue DTO for IPC callers.
type QueueEntry = api.QueueEntry

// Execution mirrors the API execution DTO for IPC callers.
type Execution = api.Execution

// Workspace mirrors the API workspace DTO for IPC callers.
type Workspace = api.Workspace

// StatusResponse represents combined daemon/orchestrator status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	WorkerID    string         `json:"worker_id"`
	QueueStats  map[string]int `json:"queue_stats"`
	LastError   string         `json:"last_error"`
	LockPath    string         `json:"lock_path"`
	QueueDir    string         `json:"queue_dir"`
	RecordsPath string         `json:"records_path"`
	PID         int            `json:"pid"`
}

// FeedbackItem is one unit of user feedback submitted with a trigger.
type FeedbackItem struct {
	ID         string `json:"id"`
	Reasoning  string `json:"reasoning"`
	Attachment string `json:"attachment,omitempty"`
}

// TriggerRequest starts a remediation cycle for a workspace.
type TriggerRequest struct {
	Workspace string         `json:"workspace"`
	Feedback  []FeedbackItem `json:"feedback"`
}

// TriggerResponse returns the execution created for the cycle.
type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
}

// QueueListRequest filters queue listing by class.
type QueueListRequest struct {
	Classes []string `json:"classes"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Entries []QueueEntry `json:"entries"`
}

// QueueDescribeRequest fetches a single queue entry by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Entry QueueEntry `json:"entry"`
}

// QueueRetryRequest resets a failed entry back to pending.
type QueueRetryRequest struct {
	ID string `json:"id"`
}

// QueueRetryResponse returns the reset entry.
type QueueRetryResponse struct {
	Entry QueueEntry `json:"entry"`
}

// QueueCancelRequest removes a pending or retrying entry.
type QueueCancelRequest struct {
	ID string `json:"id"`
}

// QueueCancelResponse confirms the cancellation.
type QueueCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// QueuePruneRequest trims completed entries beyond the retention cap. Zero
// keep uses the configured retention.
type QueuePruneRequest struct {
	Keep int `json:"keep"`
}

// QueuePruneResponse reports the number of removed entries.
type QueuePruneResponse struct {
	Removed int `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total                   int   `json:"total"`
	Pending                 int   `json:"pending"`
	Processing              int   `json:"processing"`
	Retrying                int   `json:"retrying"`
	Failed                  int   `json:"failed"`
	Completed               int   `json:"completed"`
	Corrupt                 int   `json:"corrupt"`
	OldestPendingAgeSeconds int64 `json:"oldest_pending_age_seconds"`
}

// WorkspaceListRequest lists tracked workspaces.
type WorkspaceListRequest struct{}

// WorkspaceListResponse contains workspace records.
type WorkspaceListResponse struct {
	Workspaces []Workspace `json:"workspaces"`
}

// WorkspaceShowRequest fetches one workspace by name.
type WorkspaceShowRequest struct {
	Name string `json:"name"`
}

// WorkspaceShowResponse contains a single workspace.
type WorkspaceShowResponse struct {
	Workspace Workspace `json:"workspace"`
}

// ApproveRequest promotes a beta workspace to in_review.
type ApproveRequest struct {
	Workspace string `json:"workspace"`
}

// ApproveResponse returns the workspace after the transition.
type ApproveResponse struct {
	Workspace Workspace `json:"workspace"`
}

// VerifyRequest promotes an in_review workspace to verified.
type VerifyRequest struct {
	Workspace string `json:"workspace"`
}

// VerifyResponse returns the workspace after the transition.
type VerifyResponse struct {
	Workspace Workspace `json:"workspace"`
}

// ExecutionListRequest lists recent executions, optionally scoped to one
// workspace.
type ExecutionListRequest struct {
	Workspace string `json:"workspace"`
	Limit     int    `json:"limit"`
}

// ExecutionListResponse contains execution records.
type ExecutionListResponse struct {
	Executions []Execution `json:"executions"`
}

// ExecutionShowRequest fetches one execution with its history.
type ExecutionShowRequest struct {
	ID       string `json:"id"`
	LogLimit int    `json:"log_limit"`
}

// ExecutionShowResponse contains an execution, its checkpoints, and recent
// log lines.
type ExecutionShowResponse struct {
	Execution   Execution        `json:"execution"`
	Checkpoints []api.Checkpoint `json:"checkpoints"`
	Logs        []api.LogLine    `json:"logs"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
