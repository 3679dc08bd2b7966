package backup

import (
	"fmt"
	"time"

	"github.com/klauern/agentsync/internal/model"
)

// CleanupOptions configures backup cleanup behavior
type CleanupOptions struct {
	// MaxBackups limits the number of backups to keep per provider (0 = unlimited)
	MaxBackups int

	// MaxAge is the maximum age of backups to keep (0 = unlimited)
	MaxAge time.Duration

	// KeepAtLeastOne keeps the newest backup of each provider regardless of age
	KeepAtLeastOne bool

	// Provider filters cleanup to one provider (empty = all providers)
	Provider model.ProviderID

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxBackups:     10,
		MaxAge:         30 * 24 * time.Hour,
		KeepAtLeastOne: true,
	}
}

// Cleanup removes old backups and returns the IDs deleted (or, in dry-run
// mode, the IDs that would be deleted).
func (s *Store) Cleanup(opts CleanupOptions) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(opts)
}

func (s *Store) cleanupLocked(opts CleanupOptions) ([]string, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	groups := make(map[model.ProviderID][]Metadata)
	for _, b := range index.sorted() {
		if opts.Provider != "" && b.Provider != opts.Provider {
			continue
		}
		groups[b.Provider] = append(groups[b.Provider], b)
	}

	now := s.now()
	var toDelete []string
	for _, group := range groups {
		for i, b := range group {
			if i == 0 && opts.KeepAtLeastOne {
				continue
			}
			expired := opts.MaxAge > 0 && now.Sub(b.CreatedAt) > opts.MaxAge
			overflow := opts.MaxBackups > 0 && i >= opts.MaxBackups
			if expired || overflow {
				toDelete = append(toDelete, b.ID)
			}
		}
	}

	if opts.DryRun || len(toDelete) == 0 {
		return toDelete, nil
	}

	var deleted []string
	for _, id := range toDelete {
		if err := s.deleteLocked(index, id); err != nil {
			_ = s.saveIndex(index)
			return deleted, fmt.Errorf("failed to delete backup %q: %w", id, err)
		}
		deleted = append(deleted, id)
	}
	if err := s.saveIndex(index); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Stats contains statistics about backups
type Stats struct {
	TotalBackups      int
	TotalSize         int64
	BackupsByProvider map[model.ProviderID]int
	OldestBackup      time.Time
	NewestBackup      time.Time
}

// Stats returns statistics about the stored backups.
func (s *Store) Stats() (*Stats, error) {
	backups, err := s.List("")
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalBackups:      len(backups),
		BackupsByProvider: make(map[model.ProviderID]int),
	}
	for _, b := range backups {
		stats.TotalSize += b.Size()
		stats.BackupsByProvider[b.Provider]++
		if stats.OldestBackup.IsZero() || b.CreatedAt.Before(stats.OldestBackup) {
			stats.OldestBackup = b.CreatedAt
		}
		if b.CreatedAt.After(stats.NewestBackup) {
			stats.NewestBackup = b.CreatedAt
		}
	}
	return stats, nil
}
