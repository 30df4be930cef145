// Package daemon ties the queue store, record store, workspace tracker, and
// orchestrator into one long-running process with a single-instance lock.
//
// The daemon is the only component allowed to run the worker loop; the CLI
// talks to it over IPC and never touches the queue directory while a daemon
// holds the lock. Startup recovers from unclean shutdowns by failing
// abandoned executions and reaping expired leases before the worker starts.
package daemon
