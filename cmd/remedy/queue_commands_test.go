package main

import (
	"testing"

	"remedy/internal/testsupport"
)

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.MustEnqueue(t, env.store, "search", "stale results")
	testsupport.MustEnqueue(t, env.store, "checkout", "payment retries loop")

	out, _, err := runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "search")
	requireContains(t, out, "checkout")
}

func TestQueueShowAndCancel(t *testing.T) {
	env := setupCLITestEnv(t)

	entry := testsupport.MustEnqueue(t, env.store, "search", "stale results")

	out, _, err := runCLI(t, []string{"queue", "show", entry.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "search")
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"queue", "cancel", entry.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue cancel: %v", err)
	}
	requireContains(t, out, "cancelled")
}

func TestQueueHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.MustEnqueue(t, env.store, "search", "stale results")

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 1")
	requireContains(t, out, "Pending: 1")
}

func TestQueueListFallsBackWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.MustEnqueue(t, env.store, "search", "stale results")

	// A dead socket path forces the direct store fallback.
	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath+".missing", env.configPath)
	if err != nil {
		t.Fatalf("queue list offline: %v", err)
	}
	requireContains(t, out, "search")
}
