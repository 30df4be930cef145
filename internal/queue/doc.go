// Package queue implements the durable work queue backing the remediation
// pipeline. There is no broker process: the queue is a single directory where
// each entry is one YAML file and the filename encodes the entry's lifecycle
// stage. Every mutation is an atomic rename (or an atomic hard-link claim for
// leases), so the directory remains the source of truth across crashes of the
// daemon, and enqueue/list/admin operations stay available while no worker is
// running.
//
// Filename layout:
//
//	<id>.<attempts>.<stage>.yaml   stage is pending|retrying|failed|completed
//	<id>.lease                     present while a worker holds the entry
//
// An entry counts as processing when its stage file says pending and a live
// (unexpired) lease file exists for it. Expired leases are reclaimed by the
// reaper, which returns the entry to pending without touching the stage file.
package queue
