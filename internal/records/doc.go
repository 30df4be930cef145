// Package records persists execution and workspace history in SQLite.
//
// The executions table is the source of truth for the single-active-execution
// rule: starting an execution is a conditional insert that only succeeds when
// the workspace has no pending or running row, and finishing one is a guarded
// update so the first terminal write wins.
package records
