package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"remedy/internal/fileutil"
	"remedy/internal/logging"
	"remedy/internal/services"
)

// Lease marks an entry as claimed by one worker until ExpiresAt. Workers
// renew the lease while they hold the entry; anything past expiry is treated
// as abandoned and reclaimed by the reaper.
type Lease struct {
	EntryID   string
	Owner     string
	ExpiresAt time.Time
}

type leaseRecord struct {
	EntryID    string `yaml:"entry_id"`
	Owner      string `yaml:"owner"`
	AcquiredAt string `yaml:"acquired_at"`
	ExpiresAt  time.Time
	Expires    string `yaml:"expires_at"`
}

// Claim atomically takes exclusive ownership of a pending or retrying entry.
// Exactly one caller wins; everyone else gets ErrConflict. Retrying entries
// are renamed back to pending as part of the claim so attempts stay encoded
// in the filename.
func (s *Store) Claim(id, owner string, ttl time.Duration) (*Lease, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "claim", "lease owner is required", nil)
	}
	if ttl <= 0 {
		return nil, services.Wrap(services.ErrValidation, "queue", "claim", "lease ttl must be positive", nil)
	}
	entry, name, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	switch entry.Class {
	case ClassPending, ClassRetrying:
	case ClassProcessing:
		return nil, services.Wrap(services.ErrConflict, "queue", "claim",
			fmt.Sprintf("entry %s already leased by %s", id, entry.LeaseOwner), nil)
	default:
		return nil, services.Wrap(services.ErrConflict, "queue", "claim",
			fmt.Sprintf("entry %s is %s and cannot be claimed", id, entry.Class), nil)
	}

	now := time.Now().UTC()
	expires := now.Add(ttl)
	record := leaseRecord{
		EntryID:    id,
		Owner:      owner,
		AcquiredAt: now.Format(time.RFC3339Nano),
		Expires:    expires.Format(time.RFC3339Nano),
	}
	data, err := yaml.Marshal(record)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "claim", "encode lease", err)
	}
	leasePath := filepath.Join(s.dir, leaseName(id))
	if err := fileutil.CreateFileExclusive(leasePath, data, 0o644); err != nil {
		if errors.Is(err, fs.ErrExist) {
			stale, readErr := s.readLease(id)
			if readErr == nil && !stale.ExpiresAt.After(now) {
				// Expired lease left by a dead worker. Replace it.
				if err := fileutil.WriteFileAtomic(leasePath, data, 0o644); err != nil {
					return nil, services.Wrap(services.ErrTransient, "queue", "claim", "replace expired lease", err)
				}
			} else {
				holder := "another worker"
				if readErr == nil {
					holder = stale.Owner
				}
				return nil, services.Wrap(services.ErrConflict, "queue", "claim",
					fmt.Sprintf("entry %s already leased by %s", id, holder), nil)
			}
		} else {
			return nil, services.Wrap(services.ErrTransient, "queue", "claim", "write lease", err)
		}
	}
	if entry.Class == ClassRetrying {
		toName := entryName(id, entry.Attempts, stagePending)
		if err := s.rename(name, toName); err != nil {
			os.Remove(leasePath)
			return nil, services.Wrap(services.ErrTransient, "queue", "claim", "promote retrying entry", err)
		}
	}
	s.logger.Info("entry claimed",
		logging.String(logging.FieldEntryID, id),
		logging.String("owner", owner),
		logging.Duration("ttl", ttl))
	return &Lease{EntryID: id, Owner: owner, ExpiresAt: expires}, nil
}

// RenewLease extends a held lease. Only the current owner may renew; a lost
// or stolen lease surfaces as ErrConflict so the worker can abandon the entry.
func (s *Store) RenewLease(id, owner string, ttl time.Duration) (*Lease, error) {
	record, err := s.readLease(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrConflict, "queue", "renew-lease",
				fmt.Sprintf("lease for entry %s no longer exists", id), nil)
		}
		return nil, services.Wrap(services.ErrTransient, "queue", "renew-lease", "read lease", err)
	}
	if record.Owner != owner {
		return nil, services.Wrap(services.ErrConflict, "queue", "renew-lease",
			fmt.Sprintf("lease for entry %s is held by %s", id, record.Owner), nil)
	}
	now := time.Now().UTC()
	expires := now.Add(ttl)
	record.Expires = expires.Format(time.RFC3339Nano)
	data, err := yaml.Marshal(record)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "renew-lease", "encode lease", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(s.dir, leaseName(id)), data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "renew-lease", "write lease", err)
	}
	return &Lease{EntryID: id, Owner: owner, ExpiresAt: expires}, nil
}

// ReleaseLease removes a lease held by owner. Releasing an already-gone
// lease is not an error.
func (s *Store) ReleaseLease(id, owner string) error {
	record, err := s.readLease(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return services.Wrap(services.ErrTransient, "queue", "release-lease", "read lease", err)
	}
	if record.Owner != owner {
		return services.Wrap(services.ErrConflict, "queue", "release-lease",
			fmt.Sprintf("lease for entry %s is held by %s", id, record.Owner), nil)
	}
	if err := os.Remove(filepath.Join(s.dir, leaseName(id))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "queue", "release-lease", "remove lease", err)
	}
	return nil
}

// ReapExpired removes lease files past their expiry so the entries they
// covered become dequeuable again. Returns the ids of reclaimed entries.
func (s *Store) ReapExpired() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.lease"))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "queue", "reap", "scan queue directory", err)
	}
	now := time.Now()
	var reclaimed []string
	for _, match := range matches {
		id := strings.TrimSuffix(filepath.Base(match), ".lease")
		record, err := s.readLease(id)
		if err != nil {
			// Unreadable lease blocks its entry forever if left alone.
			s.logger.Warn("removing unreadable lease",
				logging.String(logging.FieldEntryID, id),
				logging.Error(err))
			os.Remove(match)
			reclaimed = append(reclaimed, id)
			continue
		}
		if record.ExpiresAt.After(now) {
			continue
		}
		if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove expired lease",
				logging.String(logging.FieldEntryID, id),
				logging.Error(err))
			continue
		}
		s.logger.Info("reclaimed expired lease",
			logging.String(logging.FieldEntryID, id),
			logging.String("owner", record.Owner))
		reclaimed = append(reclaimed, id)
	}
	return reclaimed, nil
}

func (s *Store) readLease(id string) (*leaseRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, leaseName(id)))
	if err != nil {
		return nil, err
	}
	var record leaseRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	record.ExpiresAt, err = time.Parse(time.RFC3339Nano, record.Expires)
	if err != nil {
		return nil, fmt.Errorf("lease expires_at: %w", err)
	}
	if record.EntryID == "" {
		record.EntryID = id
	}
	return &record, nil
}
