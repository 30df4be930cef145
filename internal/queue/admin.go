package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"remedy/internal/logging"
	"remedy/internal/services"
)

// Retry resets a failed entry back to pending with a zero attempt count.
// Only failed entries can be retried.
func (s *Store) Retry(id string) (*Entry, error) {
	entry, name, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	if entry.Class != ClassFailed {
		return nil, services.Wrap(services.ErrConflict, "queue", "retry",
			fmt.Sprintf("entry %s is %s, only failed entries can be retried", id, entry.Class), nil)
	}
	if err := s.rename(name, entryName(id, 0, stagePending)); err != nil {
		return nil, s.transitionError("retry", id, err)
	}
	entry.Attempts = 0
	entry.Class = ClassPending
	s.logger.Info("failed entry reset to pending", logging.String(logging.FieldEntryID, id))
	return entry, nil
}

// Cancel removes a pending or retrying entry from the queue. Entries being
// processed cannot be cancelled; terminal entries stay put so history keeps
// its record.
func (s *Store) Cancel(id string) error {
	entry, name, err := s.locate(id)
	if err != nil {
		return err
	}
	switch entry.Class {
	case ClassPending, ClassRetrying:
	case ClassProcessing:
		return services.Wrap(services.ErrConflict, "queue", "cancel",
			fmt.Sprintf("entry %s is being processed by %s", id, entry.LeaseOwner), nil)
	default:
		return services.Wrap(services.ErrConflict, "queue", "cancel",
			fmt.Sprintf("entry %s is already %s", id, entry.Class), nil)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrConflict, "queue", "cancel",
				fmt.Sprintf("entry %s moved concurrently", id), nil)
		}
		return services.Wrap(services.ErrTransient, "queue", "cancel", "remove entry", err)
	}
	s.dropLease(id)
	s.logger.Info("entry cancelled", logging.String(logging.FieldEntryID, id))
	return nil
}

// PruneCompleted deletes completed entries beyond the retention cap, keeping
// the newest. Returns the number removed.
func (s *Store) PruneCompleted(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	snapshot, err := s.List()
	if err != nil {
		return 0, err
	}
	completed := snapshot.Completed
	if len(completed) <= keep {
		return 0, nil
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].UpdatedAt.After(completed[j].UpdatedAt)
	})
	removed := 0
	for _, entry := range completed[keep:] {
		name := entryName(entry.ID, entry.Attempts, stageCompleted)
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			s.logger.Warn("failed to prune completed entry",
				logging.String(logging.FieldEntryID, entry.ID),
				logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("pruned completed entries", logging.Int("removed", removed), logging.Int("kept", keep))
	}
	return removed, nil
}
