package fileutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"remedy/internal/fileutil"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.yaml")
	if err := fileutil.WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "two" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry.yaml")
	if err := fileutil.WriteFileAtomic(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestCreateFileExclusiveSecondClaimLoses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claim.lease")
	if err := fileutil.CreateFileExclusive(path, []byte("worker-a"), 0o644); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	err := fileutil.CreateFileExclusive(path, []byte("worker-b"), 0o644)
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected os.ErrExist, got %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "worker-a" {
		t.Fatalf("claim content overwritten: %q", content)
	}
}
