package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	columns := []tableColumn{{title: "Status"}, {title: "Count", numeric: true}}
	out := renderTable(columns, [][]string{{"pending", "3"}, {"failed"}})
	if !strings.Contains(out, "pending") || !strings.Contains(out, "failed") {
		t.Fatalf("table output missing rows:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty output without columns")
	}
}

func TestStatusViewPlainWriterSkipsColor(t *testing.T) {
	var buf bytes.Buffer
	view := newStatusView(&buf)
	view.section("Daemon")
	view.line(toneOK, "Daemon", "reachable (pid 42)")
	view.line(toneFail, "Orchestrator", "")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI codes for a plain writer:\n%q", out)
	}
	if !strings.Contains(out, "== Daemon ==") {
		t.Fatalf("missing section heading:\n%s", out)
	}
	if !strings.Contains(out, "[OK] reachable (pid 42)") {
		t.Fatalf("missing status line:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR]") {
		t.Fatalf("missing bare tone label:\n%s", out)
	}
}
