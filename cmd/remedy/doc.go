// Command remedy is the CLI entry point for the remediation daemon. It
// manages the daemon process, submits feedback triggers, and inspects the
// queue, executions, and workspaces over the daemon's IPC socket.
package main
