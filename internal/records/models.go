package records

import (
	"strings"
	"time"
)

// ExecutionStatus tracks the overall state of one remediation run.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase is one step of the remediation workflow. Phases only move forward.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseImplementing Phase = "implementing"
	PhaseTesting      Phase = "testing"
	PhaseRefining     Phase = "refining"
)

var phaseOrder = map[Phase]int{
	PhasePlanning:     0,
	PhaseImplementing: 1,
	PhaseTesting:      2,
	PhaseRefining:     3,
}

// ParsePhase converts a string into a known Phase.
func ParsePhase(value string) (Phase, bool) {
	p := Phase(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := phaseOrder[p]; ok {
		return p, true
	}
	return "", false
}

// Rank returns the position of the phase in workflow order, or -1 for an
// unknown phase.
func (p Phase) Rank() int {
	if rank, ok := phaseOrder[p]; ok {
		return rank
	}
	return -1
}

// DeployStatus tracks the deployment that follows a successful remediation.
type DeployStatus string

const (
	DeployNone       DeployStatus = "none"
	DeployPending    DeployStatus = "pending"
	DeployInProgress DeployStatus = "in_progress"
	DeploySucceeded  DeployStatus = "succeeded"
	DeployFailed     DeployStatus = "failed"
	DeployEscalated  DeployStatus = "escalated"
)

// Execution is the persisted record of one remediation run against a
// workspace.
type Execution struct {
	ID             string
	EntryID        string
	Workspace      string
	Status         ExecutionStatus
	Phase          Phase
	Progress       float64
	CommitID       string
	ErrorMessage   string
	DeployStatus   DeployStatus
	DeployAttempts int
	AgentAttempts  int
	ChangedFiles   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Active reports whether the execution still occupies its workspace.
func (e *Execution) Active() bool {
	return e != nil && !e.Status.Terminal()
}

// Checkpoint records the moment an execution entered a phase.
type Checkpoint struct {
	ExecutionID string
	Phase       Phase
	RecordedAt  time.Time
}

// LogLine is one line of agent output attached to an execution.
type LogLine struct {
	ExecutionID string
	Level       string
	Message     string
	RecordedAt  time.Time
}
