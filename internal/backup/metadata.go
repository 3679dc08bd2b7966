package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

const (
	// IndexVersion is the current version of the backup index format
	IndexVersion = "1.0"
	// IndexFilename is the name of the index file
	IndexFilename = "index.json"
)

// FileEntry records one file captured in a backup.
type FileEntry struct {
	Path string `json:"path"` // Relative to the provider's config root
	Hash string `json:"hash"` // SHA-256 of the content
	Size int64  `json:"size"`
}

// Metadata describes one backup: the local files of a single provider that
// a pull was about to overwrite.
type Metadata struct {
	ID          string           `json:"id"`
	Provider    model.ProviderID `json:"provider"`
	ConfigRoot  string           `json:"config_root"`
	Dir         string           `json:"dir"` // Directory holding the copied files
	CreatedAt   time.Time        `json:"created_at"`
	Files       []FileEntry      `json:"files"`
	Description string           `json:"description,omitempty"`
}

// Size returns the total size of the backed up files.
func (m Metadata) Size() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

// Index maintains an index of all backups
type Index struct {
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Backups map[string]Metadata `json:"backups"` // Key: backup ID
}

func newIndex() *Index {
	return &Index{
		Version: IndexVersion,
		Updated: time.Now(),
		Backups: make(map[string]Metadata),
	}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, IndexFilename)
}

// loadIndex reads the index. A missing index is an empty one.
func (s *Store) loadIndex() (*Index, error) {
	// #nosec G304 - the index path is derived from the store directory
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return newIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse index file: %w", err)
	}
	if index.Backups == nil {
		index.Backups = make(map[string]Metadata)
	}
	return &index, nil
}

func (s *Store) saveIndex(index *Index) error {
	if err := os.MkdirAll(s.dir, DirPerm); err != nil {
		return fmt.Errorf("failed to create backups directory: %w", err)
	}

	index.Updated = s.now()
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := util.WriteFileAtomic(s.indexPath(), data, FilePerm); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// sorted returns the backups newest first, ties broken by ID.
func (idx *Index) sorted() []Metadata {
	backups := make([]Metadata, 0, len(idx.Backups))
	for _, b := range idx.Backups {
		backups = append(backups, b)
	}
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].ID > backups[j].ID
	})
	return backups
}
