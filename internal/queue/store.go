package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"remedy/internal/config"
	"remedy/internal/fileutil"
	"remedy/internal/logging"
	"remedy/internal/services"
)

// Store is a durable, file-backed work queue. Every entry lives in a single
// directory and every state transition is an atomic rename, so a crash at any
// point leaves each entry in exactly one well-defined stage.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Open prepares the queue directory and returns a store bound to it.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open", "configuration is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	dir := cfg.Paths.QueueDir
	if strings.TrimSpace(dir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open", "queue directory is not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open", "create queue directory", err)
	}
	return &Store{dir: dir, logger: logging.NewComponentLogger(logger, "queue")}, nil
}

// Dir returns the queue directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Enqueue adds a new pending entry for a workspace and returns it.
func (s *Store) Enqueue(workspace, payload string) (*Entry, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "workspace identifier is required", nil)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	body := entryBody{
		ID:        id,
		Workspace: workspace,
		Payload:   payload,
		CreatedAt: now.Format(time.RFC3339Nano),
	}
	data, err := yaml.Marshal(body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "enqueue", "encode entry", err)
	}
	path := filepath.Join(s.dir, entryName(id, 0, stagePending))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "enqueue", "write entry", err)
	}
	s.logger.Info("entry enqueued",
		logging.String(logging.FieldEntryID, id),
		logging.String(logging.FieldWorkspace, workspace))
	return &Entry{
		ID:        id,
		Workspace: workspace,
		Payload:   payload,
		Attempts:  0,
		Class:     ClassPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (*Entry, error) {
	entry, _, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List scans the queue directory and partitions entries by class. Unreadable
// or malformed files are counted as corrupt and logged, never returned.
func (s *Store) List() (Snapshot, error) {
	names, err := os.ReadDir(s.dir)
	if err != nil {
		return Snapshot{}, services.Wrap(services.ErrTransient, "queue", "list", "read queue directory", err)
	}
	leases := make(map[string]*leaseRecord)
	type rawEntry struct {
		id       string
		attempts int
		st       stage
		name     string
	}
	var raws []rawEntry
	snapshot := Snapshot{}
	for _, dirent := range names {
		if dirent.IsDir() {
			continue
		}
		name := dirent.Name()
		if strings.HasSuffix(name, ".lease") {
			record, err := s.readLease(strings.TrimSuffix(name, ".lease"))
			if err == nil {
				leases[record.EntryID] = record
			}
			continue
		}
		id, attempts, st, ok := parseEntryName(name)
		if !ok {
			if strings.HasSuffix(name, ".yaml") {
				snapshot.Corrupt++
				s.logger.Warn("skipping unparseable queue file", logging.String("file", name))
			}
			continue
		}
		raws = append(raws, rawEntry{id: id, attempts: attempts, st: st, name: name})
	}
	now := time.Now()
	for _, raw := range raws {
		entry, err := s.readEntry(raw.name, raw.id, raw.attempts, raw.st)
		if err != nil {
			snapshot.Corrupt++
			s.logger.Warn("skipping corrupt queue entry",
				logging.String(logging.FieldEntryID, raw.id),
				logging.Error(err))
			continue
		}
		if raw.st == stagePending {
			if lease, ok := leases[raw.id]; ok && lease.ExpiresAt.After(now) {
				entry.Class = ClassProcessing
				entry.LeaseOwner = lease.Owner
				entry.LeaseExpires = lease.ExpiresAt
			}
		}
		switch entry.Class {
		case ClassPending:
			snapshot.Pending = append(snapshot.Pending, entry)
		case ClassProcessing:
			snapshot.Processing = append(snapshot.Processing, entry)
		case ClassRetrying:
			snapshot.Retrying = append(snapshot.Retrying, entry)
		case ClassFailed:
			snapshot.Failed = append(snapshot.Failed, entry)
		case ClassCompleted:
			snapshot.Completed = append(snapshot.Completed, entry)
		}
	}
	sortNewestFirst(snapshot.Pending)
	sortNewestFirst(snapshot.Processing)
	sortNewestFirst(snapshot.Retrying)
	sortNewestFirst(snapshot.Failed)
	sortNewestFirst(snapshot.Completed)
	return snapshot, nil
}

// NextPending returns the oldest dequeuable entry, or nil when the queue has
// no eligible work. Entries in the retrying stage are eligible alongside
// pending ones. The skip callback lets the caller defer entries whose
// workspace is busy without consuming them.
func (s *Store) NextPending(skip func(*Entry) bool) (*Entry, error) {
	snapshot, err := s.List()
	if err != nil {
		return nil, err
	}
	candidates := make([]*Entry, 0, len(snapshot.Pending)+len(snapshot.Retrying))
	candidates = append(candidates, snapshot.Pending...)
	candidates = append(candidates, snapshot.Retrying...)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	for _, entry := range candidates {
		if skip != nil && skip(entry) {
			continue
		}
		return entry, nil
	}
	return nil, nil
}

// Health summarizes the queue for status reporting.
func (s *Store) Health() (HealthSummary, error) {
	snapshot, err := s.List()
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{
		Total:      snapshot.Total(),
		Pending:    len(snapshot.Pending),
		Processing: len(snapshot.Processing),
		Retrying:   len(snapshot.Retrying),
		Failed:     len(snapshot.Failed),
		Completed:  len(snapshot.Completed),
		Corrupt:    snapshot.Corrupt,
	}
	now := time.Now()
	for _, entry := range snapshot.Pending {
		if age := now.Sub(entry.CreatedAt); age > summary.OldestPendingAge {
			summary.OldestPendingAge = age
		}
	}
	return summary, nil
}

// locate finds an entry's stage file by id. Returns ErrNotFound when no stage
// file exists for the id.
func (s *Store) locate(id string) (*Entry, string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, "", services.Wrap(services.ErrValidation, "queue", "locate", "entry id is required", nil)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*.yaml"))
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, "queue", "locate", "scan queue directory", err)
	}
	for _, match := range matches {
		name := filepath.Base(match)
		matchedID, attempts, st, ok := parseEntryName(name)
		if !ok || matchedID != id {
			continue
		}
		entry, err := s.readEntry(name, id, attempts, st)
		if err != nil {
			return nil, "", services.Wrap(services.ErrTransient, "queue", "locate", "read entry", err)
		}
		if st == stagePending {
			if lease, err := s.readLease(id); err == nil && lease.ExpiresAt.After(time.Now()) {
				entry.Class = ClassProcessing
				entry.LeaseOwner = lease.Owner
				entry.LeaseExpires = lease.ExpiresAt
			}
		}
		return entry, name, nil
	}
	return nil, "", services.Wrap(services.ErrNotFound, "queue", "locate", fmt.Sprintf("entry %s not found", id), nil)
}

// readEntry loads and validates one stage file.
func (s *Store) readEntry(name, id string, attempts int, st stage) (*Entry, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body entryBody
	if err := yaml.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	if body.ID != id {
		return nil, fmt.Errorf("entry body id %q does not match filename id %q", body.ID, id)
	}
	if strings.TrimSpace(body.Workspace) == "" {
		return nil, errors.New("entry body has no workspace")
	}
	created, err := time.Parse(time.RFC3339Nano, body.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("entry created_at: %w", err)
	}
	updated := created
	if info, err := os.Stat(path); err == nil {
		updated = info.ModTime()
	}
	return &Entry{
		ID:        id,
		Workspace: body.Workspace,
		Payload:   body.Payload,
		Attempts:  attempts,
		Class:     classForStage(st),
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func classForStage(st stage) Class {
	switch st {
	case stageRetrying:
		return ClassRetrying
	case stageFailed:
		return ClassFailed
	case stageCompleted:
		return ClassCompleted
	default:
		return ClassPending
	}
}

// rename moves an entry between stages atomically. A missing source means a
// concurrent transition won; the caller decides whether that is an error.
func (s *Store) rename(fromName, toName string) error {
	err := os.Rename(filepath.Join(s.dir, fromName), filepath.Join(s.dir, toName))
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return fs.ErrNotExist
	}
	return err
}

func sortNewestFirst(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
