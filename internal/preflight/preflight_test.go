package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"remedy/internal/preflight"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Queue directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for writable dir: %s", result.Detail)
	}

	missing := preflight.CheckDirectoryAccess("Queue directory", filepath.Join(dir, "missing"))
	if missing.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestCheckFreeDiskDisabled(t *testing.T) {
	result := preflight.CheckFreeDisk("Queue volume", t.TempDir(), 0)
	if !result.Passed {
		t.Fatalf("expected disabled check to pass: %s", result.Detail)
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctx := context.Background()
	if result := preflight.CheckEndpoint(ctx, "Agent", srv.URL); !result.Passed {
		t.Fatalf("any HTTP response should count as reachable: %s", result.Detail)
	}
	if result := preflight.CheckEndpoint(ctx, "Agent", ""); result.Passed {
		t.Fatal("expected failure for empty endpoint")
	}
	if result := preflight.CheckEndpoint(ctx, "Agent", "ftp://example.com"); result.Passed {
		t.Fatal("expected failure for non-http scheme")
	}
}

func TestPassed(t *testing.T) {
	all := []preflight.Result{{Passed: true}, {Passed: true}}
	if !preflight.Passed(all) {
		t.Fatal("expected all-passed set to report true")
	}
	if preflight.Passed(append(all, preflight.Result{})) {
		t.Fatal("expected failed result to flip the report")
	}
}
