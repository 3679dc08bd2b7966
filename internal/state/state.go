// Package state persists agentsync's SyncState and serializes concurrent
// push and pull runs with an advisory file lock.
package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

// LockFileName is the lock file created next to the state file.
const LockFileName = "state.lock"

// lockPollInterval is how often a blocked Lock retries.
const lockPollInterval = 100 * time.Millisecond

// Store reads and writes state.json.
type Store struct {
	path     string
	lockPath string
}

// NewStore returns a store for the state file at path. The lock file lives
// in the same directory.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		lockPath: filepath.Join(filepath.Dir(path), LockFileName),
	}
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state. A missing file is a never-synced state.
func (s *Store) Load() (model.SyncState, error) {
	// #nosec G304 - path is agentsync's own state file
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.SyncState{}, nil
	}
	if err != nil {
		return model.SyncState{}, fmt.Errorf("read sync state: %w", err)
	}

	var st model.SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return model.SyncState{}, fmt.Errorf("parse sync state %s: %w", s.path, err)
	}
	return st, nil
}

// Save replaces the persisted state atomically.
func (s *Store) Save(st model.SyncState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync state: %w", err)
	}
	if err := util.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return nil
}

// Lock takes the exclusive sync lock, waiting until it is free or ctx ends.
// The returned function releases it.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	// #nosec G304 - lock path is derived from agentsync's own state file
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", s.lockPath, err)
		}
		if ok {
			return func() {
				_ = unlock(f)
				_ = f.Close()
			}, nil
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("another agentsync run holds %s: %w", s.lockPath, ctx.Err())
		case <-ticker.C:
		}
	}
}
