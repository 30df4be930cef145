// Package workspace owns the human-facing lifecycle layered over raw
// execution outcomes. States only move forward; regressions are handled by
// running new executions against a later-stage workspace, never by resetting
// its state.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"remedy/internal/logging"
	"remedy/internal/records"
	"remedy/internal/services"
)

// State is one stage of the workspace lifecycle.
type State string

const (
	StateDraft        State = "draft"
	StateImplementing State = "implementing"
	StateBeta         State = "beta"
	StateInReview     State = "in_review"
	StateVerified     State = "verified"
)

var stateOrder = map[State]int{
	StateDraft:        0,
	StateImplementing: 1,
	StateBeta:         2,
	StateInReview:     3,
	StateVerified:     4,
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	s := State(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := stateOrder[s]; ok {
		return s, true
	}
	return "", false
}

// Rank returns the position of the state in lifecycle order, or -1 for an
// unknown state.
func (s State) Rank() int {
	if rank, ok := stateOrder[s]; ok {
		return rank
	}
	return -1
}

// Tracker applies lifecycle transitions on top of the records store.
type Tracker struct {
	store  *records.Store
	logger *slog.Logger
}

// NewTracker builds a tracker backed by the given records store.
func NewTracker(store *records.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{store: store, logger: logging.NewComponentLogger(logger, "workspace")}
}

// Ensure registers a workspace in draft state if it is new and returns the
// current record.
func (t *Tracker) Ensure(ctx context.Context, name string) (*records.WorkspaceRecord, error) {
	return t.store.EnsureWorkspace(ctx, name, string(StateDraft))
}

// Get returns the current record for a workspace.
func (t *Tracker) Get(ctx context.Context, name string) (*records.WorkspaceRecord, error) {
	return t.store.GetWorkspace(ctx, name)
}

// List returns all workspace records.
func (t *Tracker) List(ctx context.Context) ([]*records.WorkspaceRecord, error) {
	return t.store.ListWorkspaces(ctx)
}

// AcceptsWork reports whether new executions may be triggered for the
// workspace in its current state. Verified workspaces are closed to the
// automatic pipeline.
func AcceptsWork(state State) bool {
	return state != StateVerified
}

// NoteTriggered records that work started against a workspace, promoting a
// draft to implementing. Later states are left untouched.
func (t *Tracker) NoteTriggered(ctx context.Context, name string) error {
	record, err := t.Ensure(ctx, name)
	if err != nil {
		return err
	}
	if State(record.State) != StateDraft {
		return nil
	}
	return t.store.TransitionWorkspace(ctx, name, string(StateDraft), string(StateImplementing))
}

// NoteDeploySucceeded promotes an implementing workspace to beta after its
// first successful execution reaches production. Already-promoted workspaces
// are left untouched.
func (t *Tracker) NoteDeploySucceeded(ctx context.Context, name string) error {
	record, err := t.store.GetWorkspace(ctx, name)
	if err != nil {
		return err
	}
	if State(record.State) != StateImplementing {
		return nil
	}
	return t.store.TransitionWorkspace(ctx, name, string(StateImplementing), string(StateBeta))
}

// Approve moves a beta workspace into review. Only a user-facing beta
// workspace qualifies, and never while an execution is still in flight.
func (t *Tracker) Approve(ctx context.Context, name string) error {
	return t.humanTransition(ctx, name, StateBeta, StateInReview, "approve")
}

// Verify closes out a reviewed workspace. Only an in_review workspace
// qualifies, and never while an execution is still in flight.
func (t *Tracker) Verify(ctx context.Context, name string) error {
	return t.humanTransition(ctx, name, StateInReview, StateVerified, "verify")
}

func (t *Tracker) humanTransition(ctx context.Context, name string, from, to State, operation string) error {
	record, err := t.store.GetWorkspace(ctx, name)
	if err != nil {
		return err
	}
	if State(record.State) != from {
		return services.Wrap(services.ErrConflict, "workspace", operation,
			fmt.Sprintf("workspace %s is %s, %s requires %s", name, record.State, operation, from), nil)
	}
	active, err := t.store.ActiveExecution(ctx, name)
	if err != nil {
		return err
	}
	if active != nil {
		return services.Wrap(services.ErrConflict, "workspace", operation,
			fmt.Sprintf("workspace %s has execution %s in flight", name, active.ID), nil)
	}
	if err := t.store.TransitionWorkspace(ctx, name, string(from), string(to)); err != nil {
		return err
	}
	t.logger.Info("workspace promoted",
		logging.String(logging.FieldWorkspace, name),
		logging.String("state", string(to)),
		logging.String("operation", operation))
	return nil
}
