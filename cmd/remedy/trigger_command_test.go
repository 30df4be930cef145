package main

import (
	"strings"
	"testing"
)

func TestTriggerAndInspect(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"trigger", "search", "--reason", "results are stale"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	requireContains(t, out, "Triggered remediation for workspace search")
	requireContains(t, out, "Execution:")

	out, _, err = runCLI(t, []string{"workspaces"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("workspaces: %v", err)
	}
	requireContains(t, out, "search")
	requireContains(t, out, "Draft")

	out, _, err = runCLI(t, []string{"executions"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("executions: %v", err)
	}
	requireContains(t, out, "search")
	requireContains(t, out, "Pending")
}

func TestTriggerRequiresFeedback(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"trigger", "search"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for trigger without feedback")
	}
	if !strings.Contains(err.Error(), "feedback") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApproveRejectsDraftWorkspace(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"trigger", "search", "-r", "stale"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	_, _, err := runCLI(t, []string{"approve", "search"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected approve to fail for a draft workspace")
	}
}
