package main

import (
	"testing"

	"remedy/internal/api"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"pending":     "Pending",
		"in_review":   "In Review",
		"in_progress": "In Progress",
		"":            "",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatProgressClamps(t *testing.T) {
	if got := formatProgress(0.5); got != "50%" {
		t.Fatalf("expected 50%%, got %s", got)
	}
	if got := formatProgress(-0.2); got != "0%" {
		t.Fatalf("expected 0%%, got %s", got)
	}
	if got := formatProgress(1.7); got != "100%" {
		t.Fatalf("expected 100%%, got %s", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("unexpected short id %s", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("unexpected short id %s", got)
	}
}

func TestBuildQueueListRowsSortsNewestFirst(t *testing.T) {
	entries := []api.QueueEntry{
		{ID: "a", Workspace: "alpha", Class: "pending", CreatedAt: "2026-01-01T10:00:00Z"},
		{ID: "b", Workspace: "beta", Class: "pending", CreatedAt: "2026-01-02T10:00:00Z"},
	}
	rows := buildQueueListRows(entries)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "beta" {
		t.Fatalf("expected newest entry first, got %v", rows[0])
	}
}
