package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Class partitions queue entries by lifecycle stage.
type Class string

const (
	ClassPending    Class = "pending"
	ClassProcessing Class = "processing"
	ClassRetrying   Class = "retrying"
	ClassFailed     Class = "failed"
	ClassCompleted  Class = "completed"
)

// allClasses lists classes in presentation order.
var allClasses = []Class{ClassPending, ClassProcessing, ClassRetrying, ClassFailed, ClassCompleted}

// AllClasses returns the ordered list of known classes.
func AllClasses() []Class {
	cp := make([]Class, len(allClasses))
	copy(cp, allClasses)
	return cp
}

// ParseClass converts a string into a known Class.
func ParseClass(value string) (Class, bool) {
	normalized := Class(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ClassPending, ClassProcessing, ClassRetrying, ClassFailed, ClassCompleted:
		return normalized, true
	}
	return "", false
}

// stage is the lifecycle stage encoded in the filename. Processing is not a
// storage stage: it is derived from a pending stage plus a live lease.
type stage string

const (
	stagePending   stage = "pending"
	stageRetrying  stage = "retrying"
	stageFailed    stage = "failed"
	stageCompleted stage = "completed"
)

// Entry represents one durable unit of pending remediation work.
type Entry struct {
	ID        string
	Workspace string
	Payload   string
	Attempts  int
	Class     Class
	CreatedAt time.Time
	UpdatedAt time.Time

	// Lease metadata, populated only while Class is processing.
	LeaseOwner   string
	LeaseExpires time.Time
}

// entryBody is the YAML document stored for each entry. The body is written
// once at enqueue time and never edited in place; attempts live in the
// filename so every state transition stays a single rename.
type entryBody struct {
	ID        string `yaml:"id"`
	Workspace string `yaml:"workspace"`
	Payload   string `yaml:"payload"`
	CreatedAt string `yaml:"created_at"`
}

// entryName formats the stage-encoding filename for an entry.
func entryName(id string, attempts int, st stage) string {
	return fmt.Sprintf("%s.%d.%s.yaml", id, attempts, st)
}

// leaseName formats the lease filename for an entry.
func leaseName(id string) string {
	return id + ".lease"
}

// parseEntryName splits an entry filename into its components. Returns false
// for lease files, temp files, and anything else that is not a stage file.
func parseEntryName(name string) (id string, attempts int, st stage, ok bool) {
	if !strings.HasSuffix(name, ".yaml") {
		return "", 0, "", false
	}
	parts := strings.Split(strings.TrimSuffix(name, ".yaml"), ".")
	if len(parts) != 3 {
		return "", 0, "", false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 0 {
		return "", 0, "", false
	}
	switch stage(parts[2]) {
	case stagePending, stageRetrying, stageFailed, stageCompleted:
		return parts[0], n, stage(parts[2]), true
	}
	return "", 0, "", false
}

// Snapshot is a full partitioned view of the queue directory.
type Snapshot struct {
	Pending    []*Entry
	Processing []*Entry
	Retrying   []*Entry
	Failed     []*Entry
	Completed  []*Entry
	Corrupt    int
}

// Total returns the number of readable entries in the snapshot.
func (s Snapshot) Total() int {
	return len(s.Pending) + len(s.Processing) + len(s.Retrying) + len(s.Failed) + len(s.Completed)
}

// Stats returns entry counts per class.
func (s Snapshot) Stats() map[Class]int {
	return map[Class]int{
		ClassPending:    len(s.Pending),
		ClassProcessing: len(s.Processing),
		ClassRetrying:   len(s.Retrying),
		ClassFailed:     len(s.Failed),
		ClassCompleted:  len(s.Completed),
	}
}

// HealthSummary describes aggregated queue state for diagnostics.
type HealthSummary struct {
	Total            int
	Pending          int
	Processing       int
	Retrying         int
	Failed           int
	Completed        int
	Corrupt          int
	OldestPendingAge time.Duration
}
