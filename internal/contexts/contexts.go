// Package contexts stores saved assistant session contexts. agentsync only
// carries them between devices; it does not interpret their content.
package contexts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/fingerprint"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

// DefaultMaxItems bounds the store when no limit is configured.
const DefaultMaxItems = 50

// Store persists contexts as {"items": [...]} in a JSON file.
type Store struct {
	path     string
	maxItems int
}

type document struct {
	Items []model.SessionContext `json:"items"`
}

// NewStore returns a store backed by path. maxItems <= 0 selects
// DefaultMaxItems.
func NewStore(path string, maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Store{path: path, maxItems: maxItems}
}

// Load returns the stored contexts, newest first. A missing store is empty.
func (s *Store) Load() ([]model.SessionContext, error) {
	// #nosec G304 - path is agentsync's own store file
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.SessionContext{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contexts: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse contexts %s: %w", s.path, err)
	}
	if doc.Items == nil {
		doc.Items = []model.SessionContext{}
	}
	sortNewestFirst(doc.Items)
	return doc.Items, nil
}

// Save replaces the stored contexts, keeping only the newest maxItems.
func (s *Store) Save(items []model.SessionContext) error {
	kept := append([]model.SessionContext(nil), items...)
	sortNewestFirst(kept)
	if len(kept) > s.maxItems {
		kept = kept[:s.maxItems]
	}
	if kept == nil {
		kept = []model.SessionContext{}
	}

	data, err := json.MarshalIndent(document{Items: kept}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode contexts: %w", err)
	}
	if err := util.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write contexts: %w", err)
	}
	return nil
}

// Hash fingerprints a context list. An empty list hashes to "".
func Hash(items []model.SessionContext) string {
	if len(items) == 0 {
		return ""
	}
	sorted := append([]model.SessionContext(nil), items...)
	sortNewestFirst(sorted)
	data, err := json.Marshal(sorted)
	if err != nil {
		return ""
	}
	return fingerprint.Sum(data)
}

func lastTouched(c model.SessionContext) time.Time {
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

func sortNewestFirst(items []model.SessionContext) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := lastTouched(items[i]), lastTouched(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].ID < items[j].ID
	})
}
