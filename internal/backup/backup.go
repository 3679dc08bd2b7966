// Package backup keeps copies of local provider files that a pull is about
// to overwrite, so they can be listed and restored later.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/fingerprint"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

const (
	// DirPerm is the permission for backup directories (rwx------)
	DirPerm = 0o700
	// FilePerm is the permission for backup files (rw-------)
	FilePerm = 0o600
)

// ErrNotFound is returned for an unknown backup ID.
var ErrNotFound = errors.New("backup not found")

// Options describes the files to back up.
type Options struct {
	Provider    model.ProviderID
	ConfigRoot  string
	Files       []model.CollectedFile
	Description string
}

// Store manages backups under a single directory. It is safe for concurrent
// use within one process.
type Store struct {
	dir        string
	maxBackups int
	now        func() time.Time

	mu sync.Mutex
}

// NewStore returns a store rooted at dir. maxBackups bounds the number of
// backups kept per provider after each Create (0 = unlimited).
func NewStore(dir string, maxBackups int) *Store {
	return &Store{dir: dir, maxBackups: maxBackups, now: time.Now}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create copies opts.Files into a new backup and records it in the index.
// An empty file list creates nothing and returns nil metadata.
func (s *Store) Create(ctx context.Context, opts Options) (*Metadata, error) {
	if len(opts.Files) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hashes := make([]string, len(opts.Files))
	for i, f := range opts.Files {
		hashes[i] = f.RelativePath + ":" + f.ContentHash
	}
	id := fmt.Sprintf("%s-%s-%s", now.UTC().Format("20060102-150405"), opts.Provider, fingerprint.Join(hashes...)[:8])

	dir := filepath.Join(s.dir, string(opts.Provider), id)
	meta := Metadata{
		ID:          id,
		Provider:    opts.Provider,
		ConfigRoot:  opts.ConfigRoot,
		Dir:         dir,
		CreatedAt:   now,
		Description: opts.Description,
		Files:       make([]FileEntry, 0, len(opts.Files)),
	}

	for _, f := range opts.Files {
		target, err := collect.SafeJoin(dir, f.RelativePath)
		if err != nil {
			return nil, fmt.Errorf("failed to back up %q: %w", f.RelativePath, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), DirPerm); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(f.Content), FilePerm); err != nil {
			return nil, fmt.Errorf("failed to write backup file: %w", err)
		}
		meta.Files = append(meta.Files, FileEntry{
			Path: f.RelativePath,
			Hash: f.ContentHash,
			Size: int64(len(f.Content)),
		})
	}

	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	index.Backups[id] = meta
	if err := s.saveIndex(index); err != nil {
		return nil, err
	}

	if s.maxBackups > 0 {
		if _, err := s.cleanupLocked(CleanupOptions{MaxBackups: s.maxBackups, Provider: opts.Provider, KeepAtLeastOne: true}); err != nil {
			return &meta, fmt.Errorf("failed to prune old backups: %w", err)
		}
	}

	return &meta, nil
}

// Get returns the metadata of a backup.
func (s *Store) Get(id string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	meta, ok := index.Backups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return &meta, nil
}

// Files reads back the files of a backup, verifying each against its
// recorded hash. The result is ready to be applied to the provider.
func (s *Store) Files(id string) (*Metadata, []model.CollectedFile, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	files := make([]model.CollectedFile, 0, len(meta.Files))
	for _, entry := range meta.Files {
		path, err := collect.SafeJoin(meta.Dir, entry.Path)
		if err != nil {
			return nil, nil, err
		}
		// #nosec G304 - path is confined to the backup directory
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read backup file: %w", err)
		}
		f := model.NewCollectedFile(entry.Path, string(data))
		if f.ContentHash != entry.Hash {
			return nil, nil, fmt.Errorf("backup file %s corrupted: hash mismatch", entry.Path)
		}
		files = append(files, f)
	}
	return meta, files, nil
}

// Verify checks that every file of a backup is present and intact.
func (s *Store) Verify(id string) error {
	_, _, err := s.Files(id)
	return err
}

// List returns all backups newest first, optionally filtered by provider.
func (s *Store) List(provider model.ProviderID) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	backups := index.sorted()
	if provider == "" {
		return backups, nil
	}
	filtered := make([]Metadata, 0, len(backups))
	for _, b := range backups {
		if b.Provider == provider {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// Delete removes a backup's files and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return fmt.Errorf("failed to load backup index: %w", err)
	}
	if err := s.deleteLocked(index, id); err != nil {
		return err
	}
	return s.saveIndex(index)
}

func (s *Store) deleteLocked(index *Index, id string) error {
	meta, ok := index.Backups[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if meta.Dir != "" && util.PathExists(meta.Dir) {
		if err := os.RemoveAll(meta.Dir); err != nil {
			return fmt.Errorf("failed to delete backup files: %w", err)
		}
	}
	delete(index.Backups, id)
	return nil
}
