package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"remedy/internal/logging"
	"remedy/internal/services"
)

// WorkspaceRecord is the persisted lifecycle state of one workspace.
type WorkspaceRecord struct {
	Name          string
	State         string
	Version       int
	Sessions      int
	FeedbackItems int
	Successes     int
	Failures      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SuccessRate returns the fraction of finished sessions that succeeded, or 0
// when nothing has run yet.
func (w *WorkspaceRecord) SuccessRate() float64 {
	total := w.Successes + w.Failures
	if total == 0 {
		return 0
	}
	return float64(w.Successes) / float64(total)
}

// EnsureWorkspace creates the workspace row if it does not exist yet and
// returns the current record either way.
func (s *Store) EnsureWorkspace(ctx context.Context, name, initialState string) (*WorkspaceRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "records", "ensure-workspace", "workspace name is required", nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO workspaces (name, state, created_at, updated_at) VALUES (?, ?, ?, ?)",
		name, initialState, now, now)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "ensure-workspace", "insert workspace", err)
	}
	return s.GetWorkspace(ctx, name)
}

const workspaceColumns = "name, state, version, sessions, feedback_items, successes, failures, created_at, updated_at"

// GetWorkspace returns one workspace record by name.
func (s *Store) GetWorkspace(ctx context.Context, name string) (*WorkspaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspaces WHERE name = ?", name)
	record, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "records", "get-workspace",
			fmt.Sprintf("workspace %s not found", name), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "get-workspace", "scan workspace", err)
	}
	return record, nil
}

// ListWorkspaces returns all workspace records ordered by name.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*WorkspaceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+workspaceColumns+" FROM workspaces ORDER BY name")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "list-workspaces", "query", err)
	}
	defer rows.Close()

	var workspaces []*WorkspaceRecord
	for rows.Next() {
		record, err := scanWorkspace(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "records", "list-workspaces", "scan", err)
		}
		workspaces = append(workspaces, record)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "records", "list-workspaces", "iterate", err)
	}
	return workspaces, nil
}

// TransitionWorkspace moves a workspace from one state to another with a
// compare-and-set. The legality of the transition is the caller's concern;
// this guards against racing writers observing stale state. Each transition
// bumps the lifecycle revision counter.
func (s *Store) TransitionWorkspace(ctx context.Context, name, from, to string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"UPDATE workspaces SET state = ?, version = version + 1, updated_at = ? WHERE name = ? AND state = ?",
		to, now, name, from)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "transition-workspace", "update state", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "transition-workspace", "rows affected", err)
	}
	if affected == 0 {
		if _, getErr := s.GetWorkspace(ctx, name); getErr != nil {
			return getErr
		}
		return services.Wrap(services.ErrConflict, "records", "transition-workspace",
			fmt.Sprintf("workspace %s is no longer in state %s", name, from), nil)
	}
	s.logger.Info("workspace state changed",
		logging.String(logging.FieldWorkspace, name),
		logging.String("from", from),
		logging.String("to", to))
	return nil
}

// RecordSessionOutcome bumps the per-workspace counters after an execution
// reaches a terminal state.
func (s *Store) RecordSessionOutcome(ctx context.Context, name string, succeeded bool, feedbackItems int) error {
	if feedbackItems < 0 {
		feedbackItems = 0
	}
	successDelta, failureDelta := 0, 1
	if succeeded {
		successDelta, failureDelta = 1, 0
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE workspaces SET sessions = sessions + 1, feedback_items = feedback_items + ?,
         successes = successes + ?, failures = failures + ?, updated_at = ?
         WHERE name = ?`,
		feedbackItems, successDelta, failureDelta, now, name)
	if err != nil {
		return services.Wrap(services.ErrTransient, "records", "session-outcome", "update counters", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return services.Wrap(services.ErrNotFound, "records", "session-outcome",
			fmt.Sprintf("workspace %s not found", name), nil)
	}
	return nil
}

func scanWorkspace(row rowScanner) (*WorkspaceRecord, error) {
	var record WorkspaceRecord
	var created, updated string
	err := row.Scan(&record.Name, &record.State, &record.Version, &record.Sessions,
		&record.FeedbackItems, &record.Successes, &record.Failures, &created, &updated)
	if err != nil {
		return nil, err
	}
	record.CreatedAt = parseTime(created)
	record.UpdatedAt = parseTime(updated)
	return &record, nil
}
