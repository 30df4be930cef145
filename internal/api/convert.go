package api

import (
	"time"

	"remedy/internal/queue"
	"remedy/internal/records"
)

// FromQueueEntry converts a queue entry to its API representation.
func FromQueueEntry(entry *queue.Entry) QueueEntry {
	if entry == nil {
		return QueueEntry{}
	}
	dto := QueueEntry{
		ID:         entry.ID,
		Workspace:  entry.Workspace,
		Class:      string(entry.Class),
		Attempts:   entry.Attempts,
		LeaseOwner: entry.LeaseOwner,
		CreatedAt:  formatTime(entry.CreatedAt),
		UpdatedAt:  formatTime(entry.UpdatedAt),
	}
	dto.LeaseExpires = formatTime(entry.LeaseExpires)
	return dto
}

// FromQueueEntries converts a slice of queue entries into API DTOs.
func FromQueueEntries(entries []*queue.Entry) []QueueEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromQueueEntry(entry))
	}
	return out
}

// FromExecution converts an execution record to its API representation.
func FromExecution(exec *records.Execution) Execution {
	if exec == nil {
		return Execution{}
	}
	return Execution{
		ID:             exec.ID,
		EntryID:        exec.EntryID,
		Workspace:      exec.Workspace,
		Status:         string(exec.Status),
		Phase:          string(exec.Phase),
		Progress:       exec.Progress,
		CommitID:       exec.CommitID,
		ErrorMessage:   exec.ErrorMessage,
		DeployStatus:   string(exec.DeployStatus),
		DeployAttempts: exec.DeployAttempts,
		AgentAttempts:  exec.AgentAttempts,
		ChangedFiles:   append([]string(nil), exec.ChangedFiles...),
		CreatedAt:      formatTime(exec.CreatedAt),
		StartedAt:      formatTime(exec.StartedAt),
		FinishedAt:     formatTime(exec.FinishedAt),
	}
}

// FromExecutions converts a slice of execution records into API DTOs.
func FromExecutions(execs []*records.Execution) []Execution {
	if len(execs) == 0 {
		return nil
	}
	out := make([]Execution, 0, len(execs))
	for _, exec := range execs {
		out = append(out, FromExecution(exec))
	}
	return out
}

// FromCheckpoint converts a phase checkpoint to its API representation.
func FromCheckpoint(cp records.Checkpoint) Checkpoint {
	return Checkpoint{
		Phase:     string(cp.Phase),
		CreatedAt: formatTime(cp.RecordedAt),
	}
}

// FromCheckpoints converts a slice of checkpoints into API DTOs.
func FromCheckpoints(cps []records.Checkpoint) []Checkpoint {
	if len(cps) == 0 {
		return nil
	}
	out := make([]Checkpoint, 0, len(cps))
	for _, cp := range cps {
		out = append(out, FromCheckpoint(cp))
	}
	return out
}

// FromLogLine converts an execution log line to its API representation.
func FromLogLine(line records.LogLine) LogLine {
	return LogLine{
		Level:     line.Level,
		Message:   line.Message,
		CreatedAt: formatTime(line.RecordedAt),
	}
}

// FromLogLines converts a slice of log lines into API DTOs.
func FromLogLines(lines []records.LogLine) []LogLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]LogLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, FromLogLine(line))
	}
	return out
}

// FromWorkspace converts a workspace record to its API representation.
func FromWorkspace(ws *records.WorkspaceRecord) Workspace {
	if ws == nil {
		return Workspace{}
	}
	return Workspace{
		Name:          ws.Name,
		State:         ws.State,
		Version:       ws.Version,
		Sessions:      ws.Sessions,
		FeedbackItems: ws.FeedbackItems,
		Successes:     ws.Successes,
		Failures:      ws.Failures,
		SuccessRate:   ws.SuccessRate(),
		CreatedAt:     formatTime(ws.CreatedAt),
		UpdatedAt:     formatTime(ws.UpdatedAt),
	}
}

// FromWorkspaces converts a slice of workspace records into API DTOs.
func FromWorkspaces(items []*records.WorkspaceRecord) []Workspace {
	if len(items) == 0 {
		return nil
	}
	out := make([]Workspace, 0, len(items))
	for _, ws := range items {
		out = append(out, FromWorkspace(ws))
	}
	return out
}

// FromSnapshot flattens a queue snapshot into per-class counts.
func FromSnapshot(snapshot queue.Snapshot) QueueStats {
	counts := make(map[string]int, len(queue.AllClasses()))
	for class, count := range snapshot.Stats() {
		counts[string(class)] = count
	}
	return QueueStats{Counts: counts}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}
