package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"remedy/internal/logging"
	"remedy/internal/services"
)

// MarkRetrying moves a claimed entry into the retrying stage with an
// incremented attempt count and drops its lease.
func (s *Store) MarkRetrying(id string) (*Entry, error) {
	entry, name, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	if entry.Class != ClassProcessing && entry.Class != ClassPending {
		return nil, services.Wrap(services.ErrConflict, "queue", "mark-retrying",
			fmt.Sprintf("entry %s is %s", id, entry.Class), nil)
	}
	attempts := entry.Attempts + 1
	if err := s.rename(name, entryName(id, attempts, stageRetrying)); err != nil {
		return nil, s.transitionError("mark-retrying", id, err)
	}
	s.dropLease(id)
	entry.Attempts = attempts
	entry.Class = ClassRetrying
	entry.LeaseOwner = ""
	s.logger.Info("entry marked retrying",
		logging.String(logging.FieldEntryID, id),
		logging.Int("attempts", attempts))
	return entry, nil
}

// Requeue returns a claimed entry to pending without incrementing attempts.
// Used when the worker gives an entry back, e.g. on shutdown.
func (s *Store) Requeue(id string) error {
	entry, name, err := s.locate(id)
	if err != nil {
		return err
	}
	if entry.Class == ClassFailed || entry.Class == ClassCompleted {
		return services.Wrap(services.ErrConflict, "queue", "requeue",
			fmt.Sprintf("entry %s is %s", id, entry.Class), nil)
	}
	toName := entryName(id, entry.Attempts, stagePending)
	if name != toName {
		if err := s.rename(name, toName); err != nil {
			return s.transitionError("requeue", id, err)
		}
	}
	s.dropLease(id)
	s.logger.Info("entry requeued", logging.String(logging.FieldEntryID, id))
	return nil
}

// MarkFailed moves an entry to the failed stage and drops its lease. Failing
// an already-failed entry is a no-op so duplicate terminal writes stay
// harmless.
func (s *Store) MarkFailed(id string) error {
	entry, name, err := s.locate(id)
	if err != nil {
		return err
	}
	switch entry.Class {
	case ClassFailed:
		return nil
	case ClassCompleted:
		return services.Wrap(services.ErrConflict, "queue", "mark-failed",
			fmt.Sprintf("entry %s already completed", id), nil)
	}
	if err := s.rename(name, entryName(id, entry.Attempts, stageFailed)); err != nil {
		return s.transitionError("mark-failed", id, err)
	}
	s.dropLease(id)
	s.logger.Info("entry marked failed",
		logging.String(logging.FieldEntryID, id),
		logging.Int("attempts", entry.Attempts))
	return nil
}

// MarkCompleted moves an entry to the completed stage and drops its lease.
// Completing an already-completed entry is a no-op.
func (s *Store) MarkCompleted(id string) error {
	entry, name, err := s.locate(id)
	if err != nil {
		return err
	}
	switch entry.Class {
	case ClassCompleted:
		return nil
	case ClassFailed:
		return services.Wrap(services.ErrConflict, "queue", "mark-completed",
			fmt.Sprintf("entry %s already failed", id), nil)
	}
	if err := s.rename(name, entryName(id, entry.Attempts, stageCompleted)); err != nil {
		return s.transitionError("mark-completed", id, err)
	}
	s.dropLease(id)
	s.logger.Info("entry completed", logging.String(logging.FieldEntryID, id))
	return nil
}

func (s *Store) dropLease(id string) {
	err := os.Remove(filepath.Join(s.dir, leaseName(id)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to drop lease",
			logging.String(logging.FieldEntryID, id),
			logging.Error(err))
	}
}

func (s *Store) transitionError(operation, id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrConflict, "queue", operation,
			fmt.Sprintf("entry %s moved concurrently", id), nil)
	}
	return services.Wrap(services.ErrTransient, "queue", operation, "rename entry", err)
}
