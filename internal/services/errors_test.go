package services_test

import (
	"errors"
	"strings"
	"testing"

	"remedy/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "agent", "run", "stream closed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"agent", "run", "stream closed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "deploy", "poll", "status fetch failed", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "queue", "parse", "bad payload", nil), false},
		{"conflict", services.Wrap(services.ErrConflict, "orchestrator", "trigger", "already active", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "records", "get", "missing", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "agent", "client", "endpoint unset", nil), false},
		{"external", services.Wrap(services.ErrExternalTool, "agent", "run", "http 502", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "deploy", "watch", "deadline", nil), true},
		{"plain", errors.New("io failure"), true},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.expect {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.expect)
		}
	}
}
