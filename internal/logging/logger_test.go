package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"remedy/internal/services"
)

func TestPrettyHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Info("entry claimed",
		String(FieldComponent, "orchestrator"),
		String(FieldEntryID, "abc"),
		Int("attempts", 2),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO orchestrator: entry claimed") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "entry_id=abc") || !strings.Contains(line, "attempts=2") {
		t.Fatalf("missing attrs in line: %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Warn("deploy failed", String("reason", "build step timed out"))

	if !strings.Contains(buf.String(), `reason="build step timed out"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextStampsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	ctx := services.WithEntryID(context.Background(), "e1")
	ctx = services.WithExecutionID(ctx, "x1")
	ctx = services.WithWorkspace(ctx, "pattern-7")

	WithContext(ctx, logger).Info("hello")

	line := buf.String()
	for _, want := range []string{"entry_id=e1", "execution_id=x1", "workspace=pattern-7"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}
