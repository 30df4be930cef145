package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueEntry describes a queue entry in a transport-friendly format.
type QueueEntry struct {
	ID           string `json:"id"`
	Workspace    string `json:"workspace"`
	Class        string `json:"class"`
	Attempts     int    `json:"attempts"`
	LeaseOwner   string `json:"leaseOwner,omitempty"`
	LeaseExpires string `json:"leaseExpires,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Execution describes a remediation execution in a transport-friendly format.
type Execution struct {
	ID             string   `json:"id"`
	EntryID        string   `json:"entryId,omitempty"`
	Workspace      string   `json:"workspace"`
	Status         string   `json:"status"`
	Phase          string   `json:"phase,omitempty"`
	Progress       float64  `json:"progress"`
	CommitID       string   `json:"commitId,omitempty"`
	ErrorMessage   string   `json:"errorMessage,omitempty"`
	DeployStatus   string   `json:"deployStatus,omitempty"`
	DeployAttempts int      `json:"deployAttempts"`
	AgentAttempts  int      `json:"agentAttempts"`
	ChangedFiles   []string `json:"changedFiles,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	StartedAt      string   `json:"startedAt,omitempty"`
	FinishedAt     string   `json:"finishedAt,omitempty"`
}

// Checkpoint records a phase boundary reached by an execution.
type Checkpoint struct {
	Phase     string `json:"phase"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// LogLine is a single line captured from an execution's agent stream.
type LogLine struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Workspace describes a tracked workspace in a transport-friendly format.
type Workspace struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	Version       int     `json:"version"`
	Sessions      int     `json:"sessions"`
	FeedbackItems int     `json:"feedbackItems"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	SuccessRate   float64 `json:"successRate"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

// QueueStats provides a normalized queue stats payload.
type QueueStats struct {
	Counts map[string]int `json:"counts"`
}

// OrchestratorStatus summarizes worker loop state.
type OrchestratorStatus struct {
	Running    bool           `json:"running"`
	WorkerID   string         `json:"workerId,omitempty"`
	LastError  string         `json:"lastError,omitempty"`
	QueueStats map[string]int `json:"queueStats"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDir     string             `json:"queueDir"`
	RecordsPath  string             `json:"recordsPath"`
	LockFilePath string             `json:"lockFilePath"`
	Orchestrator OrchestratorStatus `json:"orchestrator"`
}
