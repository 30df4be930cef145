// Package preflight verifies the runtime environment before the daemon
// starts accepting work.
//
// Checks cover directory access for the queue, record, and log paths, free
// disk headroom on the queue volume, and reachability of the collaborator
// endpoints. Each check returns a Result rather than an error so callers can
// render the full report instead of stopping at the first failure.
package preflight
