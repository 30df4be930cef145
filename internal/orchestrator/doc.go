// Package orchestrator drives queued remediation work to completion. A
// single worker drains the queue store oldest-first, claims each entry with a
// lease it keeps renewed while the agent runs, records phase checkpoints and
// progress on the execution, and hands successful commits to the deploy
// monitor. Entries for a workspace whose execution is still running are
// deferred, not reordered.
package orchestrator
