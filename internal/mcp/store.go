// Package mcp manages agentsync's shared MCP server store: the
// provider-neutral list of MCP servers that travels with every push and can
// be applied to any installed provider.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/util"
)

// Store persists the shared server list as JSON.
type Store struct {
	path string
}

type document struct {
	Servers []model.MCPServerConfig `json:"servers"`
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// List returns every stored server sorted by name. A missing store is empty.
func (s *Store) List() ([]model.MCPServerConfig, error) {
	// #nosec G304 - path is agentsync's own store file
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.MCPServerConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read MCP store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse MCP store %s: %w", s.path, err)
	}
	if doc.Servers == nil {
		doc.Servers = []model.MCPServerConfig{}
	}
	model.SortMCPServers(doc.Servers)
	return doc.Servers, nil
}

// Get returns the named server.
func (s *Store) Get(name string) (model.MCPServerConfig, bool, error) {
	servers, err := s.List()
	if err != nil {
		return model.MCPServerConfig{}, false, err
	}
	for _, srv := range servers {
		if srv.Name == name {
			return srv, true, nil
		}
	}
	return model.MCPServerConfig{}, false, nil
}

// Save replaces the stored list.
func (s *Store) Save(servers []model.MCPServerConfig) error {
	sorted := append([]model.MCPServerConfig(nil), servers...)
	model.SortMCPServers(sorted)
	if sorted == nil {
		sorted = []model.MCPServerConfig{}
	}

	data, err := json.MarshalIndent(document{Servers: sorted}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode MCP store: %w", err)
	}
	if err := util.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write MCP store: %w", err)
	}
	return nil
}

// Upsert validates cfg and stores it, replacing any server with that name.
func (s *Store) Upsert(cfg model.MCPServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	servers, err := s.List()
	if err != nil {
		return err
	}
	replaced := false
	for i := range servers {
		if servers[i].Name == cfg.Name {
			servers[i] = cfg
			replaced = true
			break
		}
	}
	if !replaced {
		servers = append(servers, cfg)
	}
	return s.Save(servers)
}

// Remove deletes the named server, reporting whether it existed.
func (s *Store) Remove(name string) (bool, error) {
	servers, err := s.List()
	if err != nil {
		return false, err
	}
	kept := servers[:0]
	for _, srv := range servers {
		if srv.Name != name {
			kept = append(kept, srv)
		}
	}
	if len(kept) == len(servers) {
		return false, nil
	}
	return true, s.Save(kept)
}

// MergeResult summarizes a Merge.
type MergeResult struct {
	Added   []string
	Updated []string
	Kept    []string
	Skipped []string
}

// Merge folds incoming servers into the store: incoming entries win by
// name, local-only entries are kept, invalid incoming entries are skipped.
func (s *Store) Merge(incoming []model.MCPServerConfig) (MergeResult, error) {
	local, err := s.List()
	if err != nil {
		return MergeResult{}, err
	}
	merged, result := MergeServers(local, incoming)
	if len(result.Added) == 0 && len(result.Updated) == 0 {
		return result, nil
	}
	return result, s.Save(merged)
}

// MergeServers merges incoming into local without touching disk.
func MergeServers(local, incoming []model.MCPServerConfig) ([]model.MCPServerConfig, MergeResult) {
	var result MergeResult
	byName := make(map[string]model.MCPServerConfig, len(local)+len(incoming))
	for _, srv := range local {
		byName[srv.Name] = srv
	}

	fromIncoming := make(map[string]bool, len(incoming))
	for _, srv := range incoming {
		if err := srv.Validate(); err != nil {
			logging.Warn("skipping invalid MCP server", logging.Err(err))
			result.Skipped = append(result.Skipped, srv.Name)
			continue
		}
		fromIncoming[srv.Name] = true
		existing, ok := byName[srv.Name]
		switch {
		case !ok:
			result.Added = append(result.Added, srv.Name)
		case !equal(existing, srv):
			result.Updated = append(result.Updated, srv.Name)
		}
		byName[srv.Name] = srv
	}

	merged := make([]model.MCPServerConfig, 0, len(byName))
	for name, srv := range byName {
		merged = append(merged, srv)
		if !fromIncoming[name] {
			result.Kept = append(result.Kept, name)
		}
	}
	model.SortMCPServers(merged)
	sort.Strings(result.Added)
	sort.Strings(result.Updated)
	sort.Strings(result.Kept)
	return merged, result
}

func equal(a, b model.MCPServerConfig) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// ApplyReport records the outcome of pushing servers into providers.
type ApplyReport struct {
	Applied map[model.ProviderID]int
	// Skipped lists servers a provider cannot represent.
	Skipped map[model.ProviderID][]string
	Failed  map[model.ProviderID]error
}

// ApplyTo upserts every server into each provider's native MCP config.
// A failure in one provider does not stop the others.
func ApplyTo(ctx context.Context, servers []model.MCPServerConfig, providers []provider.Provider) ApplyReport {
	report := ApplyReport{
		Applied: make(map[model.ProviderID]int),
		Skipped: make(map[model.ProviderID][]string),
		Failed:  make(map[model.ProviderID]error),
	}
	for _, p := range providers {
		var errs []error
		for _, srv := range servers {
			err := p.UpsertMCPServer(ctx, srv)
			if errors.Is(err, provider.ErrUnsupportedMCPType) {
				report.Skipped[p.ID()] = append(report.Skipped[p.ID()], srv.Name)
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", srv.Name, err))
				continue
			}
			report.Applied[p.ID()]++
		}
		if len(errs) > 0 {
			report.Failed[p.ID()] = errors.Join(errs...)
			logging.WithContext(ctx).Warn("failed to apply MCP servers",
				logging.Provider(p.ID().String()), logging.Err(report.Failed[p.ID()]))
		}
	}
	return report
}
