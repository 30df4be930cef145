package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"remedy/internal/logging"
	"remedy/internal/services"
)

const executionColumns = `id, entry_id, workspace, status, phase, progress, commit_id,
    error_message, deploy_status, deploy_attempts, agent_attempts, changed_files_json,
    created_at, updated_at, started_at, finished_at`

// StartExecution creates a new pending execution for a workspace. At most one
// execution may be active per workspace; a second start returns ErrConflict.
// The insert checks and claims the workspace in one statement so concurrent
// triggers cannot both succeed.
func (s *Store) StartExecution(ctx context.Context, entryID, workspace string) (*Execution, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return nil, services.Wrap(services.ErrValidation, "records", "start-execution", "workspace is required", nil)
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, entry_id, workspace, status, phase, created_at, updated_at)
         SELECT ?, ?, ?, ?, ?, ?, ?
         WHERE NOT EXISTS (
             SELECT 1 FROM executions WHERE workspace = ? AND status IN (?, ?)
         )`,
		id, entryID, workspace, StatusPending, "", now, now,
		workspace, StatusPending, StatusRunning,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "start-execution", "insert execution", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "start-execution", "rows affected", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrConflict, "records", "start-execution",
			fmt.Sprintf("workspace %s already has an active execution", workspace), nil)
	}
	s.logger.Info("execution started",
		logging.String(logging.FieldExecutionID, id),
		logging.String(logging.FieldEntryID, entryID),
		logging.String(logging.FieldWorkspace, workspace))
	return s.GetExecution(ctx, id)
}

// GetExecution returns one execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE id = ?", id)
	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "records", "get-execution",
			fmt.Sprintf("execution %s not found", id), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "get-execution", "scan execution", err)
	}
	return execution, nil
}

// BindEntry links an execution to the queue entry created for it. The entry
// id is not known until after the execution row claims the workspace.
func (s *Store) BindEntry(ctx context.Context, id, entryID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE executions SET entry_id = ?, updated_at = ? WHERE id = ?",
		entryID, now, id)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "bind-entry", "update entry id", err)
	}
	return nil
}

// MarkRunning promotes a pending execution to running and stamps its start
// time. Running an execution twice is a conflict.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"UPDATE executions SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		StatusRunning, now, now, id, StatusPending)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "mark-running", "update status", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return services.Wrap(services.ErrConflict, "records", "mark-running",
			fmt.Sprintf("execution %s is not pending", id), nil)
	}
	return nil
}

// ExecutionByEntry returns the execution bound to a queue entry, or nil when
// no execution references it.
func (s *Store) ExecutionByEntry(ctx context.Context, entryID string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE entry_id = ? ORDER BY created_at DESC LIMIT 1",
		entryID)
	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "execution-by-entry", "scan execution", err)
	}
	return execution, nil
}

// ActiveExecution returns the non-terminal execution for a workspace, or nil
// when the workspace is idle.
func (s *Store) ActiveExecution(ctx context.Context, workspace string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE workspace = ? AND status IN (?, ?) LIMIT 1",
		workspace, StatusPending, StatusRunning)
	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "active-execution", "scan execution", err)
	}
	return execution, nil
}

// ExecutionsAwaitingDeploy returns completed executions whose deployment
// watch was interrupted before reaching a terminal deploy state. A daemon
// restart resumes these.
func (s *Store) ExecutionsAwaitingDeploy(ctx context.Context) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE status = ? AND deploy_status = ? ORDER BY created_at ASC",
		StatusCompleted, DeployInProgress)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "awaiting-deploy", "query executions", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "records", "awaiting-deploy", "scan execution", err)
		}
		executions = append(executions, execution)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "awaiting-deploy", "iterate executions", err)
	}
	return executions, nil
}

// ListExecutions returns recent executions, newest first. An empty workspace
// matches all workspaces.
func (s *Store) ListExecutions(ctx context.Context, workspace string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + executionColumns + " FROM executions"
	args := []any{}
	if workspace != "" {
		query += " WHERE workspace = ?"
		args = append(args, workspace)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "list-executions", "query executions", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "records", "list-executions", "scan execution", err)
		}
		executions = append(executions, execution)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "list-executions", "iterate executions", err)
	}
	return executions, nil
}

// AdvancePhase moves an execution into a later phase and records a
// checkpoint. Moving backwards or repeating the current phase is a conflict.
func (s *Store) AdvancePhase(ctx context.Context, id string, phase Phase) error {
	if phase.Rank() < 0 {
		return services.Wrap(services.ErrValidation, "records", "advance-phase",
			fmt.Sprintf("unknown phase %q", phase), nil)
	}
	execution, err := s.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		return services.Wrap(services.ErrConflict, "records", "advance-phase",
			fmt.Sprintf("execution %s is %s", id, execution.Status), nil)
	}
	if execution.Phase != "" && phase.Rank() <= execution.Phase.Rank() {
		return services.Wrap(services.ErrConflict, "records", "advance-phase",
			fmt.Sprintf("phase %s does not follow %s", phase, execution.Phase), nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "advance-phase", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE executions SET phase = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)",
		phase, now, id, StatusPending, StatusRunning)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "advance-phase", "update phase", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return services.Wrap(services.ErrConflict, "records", "advance-phase",
			fmt.Sprintf("execution %s finished concurrently", id), nil)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO execution_checkpoints (execution_id, phase, recorded_at) VALUES (?, ?, ?)",
		id, phase, now); err != nil {
		return services.Wrap(services.ErrTransient, "records", "advance-phase", "insert checkpoint", err)
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrTransient, "records", "advance-phase", "commit", err)
	}
	s.logger.Info("execution phase advanced",
		logging.String(logging.FieldExecutionID, id),
		logging.String(logging.FieldPhase, string(phase)))
	return nil
}

// UpdateProgress stores the latest progress percentage, clamped to [0, 100].
// Progress updates on a finished execution are silently dropped.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE executions SET progress = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)",
		progress, now, id, StatusPending, StatusRunning)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "update-progress", "update progress", err)
	}
	return nil
}

// AppendLog attaches one line of collaborator output to an execution.
func (s *Store) AppendLog(ctx context.Context, id, level, message string) error {
	if level == "" {
		level = "info"
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO execution_logs (execution_id, level, message, recorded_at) VALUES (?, ?, ?, ?)",
		id, level, message, now)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "append-log", "insert log line", err)
	}
	return nil
}

// SetResult stores the changed files and commit id produced by a successful
// remediation run.
func (s *Store) SetResult(ctx context.Context, id string, changedFiles []string, commitID string) error {
	if changedFiles == nil {
		changedFiles = []string{}
	}
	data, err := json.Marshal(changedFiles)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "set-result", "encode changed files", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		"UPDATE executions SET changed_files_json = ?, commit_id = ?, updated_at = ? WHERE id = ?",
		string(data), commitID, now, id)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "set-result", "update result", err)
	}
	return nil
}

// SetAgentAttempts records how many agent runs already failed for the piece
// of work this execution serves. A retry pass starts a fresh execution, so the
// worker carries the queue entry's attempt count into it.
func (s *Store) SetAgentAttempts(ctx context.Context, id string, count int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE executions SET agent_attempts = ?, updated_at = ? WHERE id = ?",
		count, now, id)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "agent-attempts", "update", err)
	}
	return nil
}

// SetDeployStatus records deployment state for an execution.
func (s *Store) SetDeployStatus(ctx context.Context, id string, status DeployStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE executions SET deploy_status = ?, updated_at = ? WHERE id = ?",
		status, now, id)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "set-deploy-status", "update", err)
	}
	return nil
}

// SetDeployAttempts records the cumulative deploy retry count. The counter
// carries across execution cycles spawned by deploy recovery, so the caller
// computes it and this just persists it.
func (s *Store) SetDeployAttempts(ctx context.Context, id string, count int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE executions SET deploy_attempts = ?, updated_at = ? WHERE id = ?",
		count, now, id)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "deploy-attempts", "update", err)
	}
	return nil
}

// FinishExecution marks an execution terminal. The first terminal write wins;
// later calls see the guard fail and return without changing anything, so the
// operation is idempotent under duplicate callbacks.
func (s *Store) FinishExecution(ctx context.Context, id string, status ExecutionStatus, errorMessage string) error {
	if !status.Terminal() {
		return services.Wrap(services.ErrValidation, "records", "finish-execution",
			fmt.Sprintf("%s is not a terminal status", status), nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		status, errorMessage, now, now, id, StatusPending, StatusRunning)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "finish-execution", "update status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "finish-execution", "rows affected", err)
	}
	if affected == 0 {
		existing, getErr := s.GetExecution(ctx, id)
		if getErr != nil {
			return getErr
		}
		s.logger.Debug("duplicate terminal write ignored",
			logging.String(logging.FieldExecutionID, id),
			logging.String("existing_status", string(existing.Status)))
		return nil
	}
	s.logger.Info("execution finished",
		logging.String(logging.FieldExecutionID, id),
		logging.String("status", string(status)))
	return nil
}

// FailAbandoned marks every non-terminal execution as failed. The daemon runs
// this at startup so executions orphaned by a crash do not hold their
// workspaces forever. Returns the ids of the executions it closed.
func (s *Store) FailAbandoned(ctx context.Context, reason string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM executions WHERE status IN (?, ?)", StatusPending, StatusRunning)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "fail-abandoned", "query active", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, services.Wrap(services.ErrTransient, "records", "fail-abandoned", "scan id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "fail-abandoned", "iterate", err)
	}
	for _, id := range ids {
		if err := s.FinishExecution(ctx, id, StatusFailed, reason); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Checkpoints returns the phase checkpoints recorded for an execution, in
// insertion order.
func (s *Store) Checkpoints(ctx context.Context, id string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT execution_id, phase, recorded_at FROM execution_checkpoints WHERE execution_id = ? ORDER BY id",
		id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "checkpoints", "query", err)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var phase, recorded string
		if err := rows.Scan(&cp.ExecutionID, &phase, &recorded); err != nil {
			return nil, services.Wrap(services.ErrTransient, "records", "checkpoints", "scan", err)
		}
		cp.Phase = Phase(phase)
		cp.RecordedAt = parseTime(recorded)
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "checkpoints", "iterate", err)
	}
	return checkpoints, nil
}

// Logs returns the log lines recorded for an execution, oldest first, capped
// at limit lines. A limit <= 0 returns everything.
func (s *Store) Logs(ctx context.Context, id string, limit int) ([]LogLine, error) {
	query := "SELECT execution_id, level, message, recorded_at FROM execution_logs WHERE execution_id = ? ORDER BY id"
	args := []any{id}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "logs", "query", err)
	}
	defer rows.Close()

	var lines []LogLine
	for rows.Next() {
		var line LogLine
		var recorded string
		if err := rows.Scan(&line.ExecutionID, &line.Level, &line.Message, &recorded); err != nil {
			return nil, services.Wrap(services.ErrTransient, "records", "logs", "scan", err)
		}
		line.RecordedAt = parseTime(recorded)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "logs", "iterate", err)
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var (
		execution    Execution
		status       string
		phase        string
		deployStatus string
		changedJSON  string
		createdAt    string
		updatedAt    string
		startedAt    sql.NullString
		finishedAt   sql.NullString
	)
	err := row.Scan(
		&execution.ID, &execution.EntryID, &execution.Workspace, &status, &phase,
		&execution.Progress, &execution.CommitID, &execution.ErrorMessage,
		&deployStatus, &execution.DeployAttempts, &execution.AgentAttempts,
		&changedJSON, &createdAt, &updatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	execution.Status = ExecutionStatus(status)
	execution.Phase = Phase(phase)
	execution.DeployStatus = DeployStatus(deployStatus)
	if changedJSON != "" {
		if err := json.Unmarshal([]byte(changedJSON), &execution.ChangedFiles); err != nil {
			return nil, fmt.Errorf("decode changed files: %w", err)
		}
	}
	execution.CreatedAt = parseTime(createdAt)
	execution.UpdatedAt = parseTime(updatedAt)
	if startedAt.Valid {
		execution.StartedAt = parseTime(startedAt.String)
	}
	if finishedAt.Valid {
		execution.FinishedAt = parseTime(finishedAt.String)
	}
	return &execution, nil
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
