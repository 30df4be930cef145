package agent_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"remedy/internal/services"
	"remedy/internal/services/agent"
	"remedy/internal/testsupport"
)

func newClient(t *testing.T, handler http.HandlerFunc) *agent.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithAgentEndpoint(server.URL))
	client, err := agent.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestRunDeliversEventsInOrder(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprintln(w, `{"type":"phase","phase":"planning"}`)
		fmt.Fprintln(w, `{"type":"progress","percent":25}`)
		fmt.Fprintln(w, `{"type":"log","level":"info","message":"planned three edits"}`)
		fmt.Fprintln(w, `{"type":"result","success":true,"changed_files":["a.go"],"commit_id":"abc123"}`)
	})

	var events []agent.Event
	result, err := client.Run(context.Background(), agent.Request{
		Workspace:    "ws-alpha",
		ExecutionID:  "exec-1",
		Instructions: "fix it",
	}, func(event agent.Event) {
		events = append(events, event)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.CommitID != "abc123" || len(result.ChangedFiles) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if phase, ok := events[0].(agent.PhaseEvent); !ok || phase.Phase != "planning" {
		t.Fatalf("first event = %#v", events[0])
	}
	if progress, ok := events[1].(agent.ProgressEvent); !ok || progress.Percent != 25 {
		t.Fatalf("second event = %#v", events[1])
	}
	if logLine, ok := events[2].(agent.LogEvent); !ok || logLine.Message != "planned three edits" {
		t.Fatalf("third event = %#v", events[2])
	}
}

func TestRunReportsAgentFailure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"phase","phase":"planning"}`)
		fmt.Fprintln(w, `{"type":"result","success":false,"error":"tests kept failing"}`)
	})

	_, err := client.Run(context.Background(), agent.Request{
		Workspace:    "ws-alpha",
		Instructions: "fix it",
	}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestRunRejectsTruncatedStream(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"phase","phase":"planning"}`)
	})

	_, err := client.Run(context.Background(), agent.Request{
		Workspace:    "ws-alpha",
		Instructions: "fix it",
	}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error for truncated stream, got %v", err)
	}
}

func TestRunSkipsUnknownEventTypes(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"heartbeat"}`)
		fmt.Fprintln(w, `{"type":"result","success":true,"commit_id":"abc"}`)
	})

	result, err := client.Run(context.Background(), agent.Request{
		Workspace:    "ws-alpha",
		Instructions: "fix it",
	}, func(agent.Event) {
		t.Fatal("unknown event should not reach the callback")
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.CommitID != "abc" {
		t.Fatalf("commit = %q", result.CommitID)
	}
}

func TestRunValidatesRequest(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := client.Run(context.Background(), agent.Request{Instructions: "x"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing workspace, got %v", err)
	}
	if _, err := client.Run(context.Background(), agent.Request{Workspace: "ws"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing instructions, got %v", err)
	}
}
