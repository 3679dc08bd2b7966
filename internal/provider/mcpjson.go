package provider

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
)

// StandardServer is the mcpServers entry shape shared by Claude Code and
// Cursor. Type is optional on disk; remote servers are recognized by URL.
type StandardServer struct {
	Type     string            `json:"type,omitempty"`
	Command  string            `json:"command,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	URL      string            `json:"url,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Cwd      string            `json:"cwd,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
}

// FromStandard converts an on-disk entry to the neutral form.
func FromStandard(name string, s StandardServer) model.MCPServerConfig {
	typ := model.MCPServerType(s.Type)
	switch s.Type {
	case "":
		typ = model.MCPStdio
		if s.URL != "" {
			typ = model.MCPHTTP
		}
	case "streamable-http", "streamableHttp":
		typ = model.MCPHTTP
	}
	return model.MCPServerConfig{
		Name:    name,
		Type:    typ,
		Command: s.Command,
		Args:    s.Args,
		Env:     s.Env,
		URL:     s.URL,
		Headers: s.Headers,
		Cwd:     s.Cwd,
		Enabled: !s.Disabled,
	}
}

// ToStandard converts a neutral config to the on-disk entry. writeType
// controls whether the type field is emitted; sse servers always carry it
// since a bare url reads back as http.
func ToStandard(cfg model.MCPServerConfig, writeType bool) StandardServer {
	s := StandardServer{
		Command:  cfg.Command,
		Args:     cfg.Args,
		Env:      cfg.Env,
		URL:      cfg.URL,
		Headers:  cfg.Headers,
		Cwd:      cfg.Cwd,
		Disabled: !cfg.Enabled,
	}
	if writeType || cfg.Type == model.MCPSSE {
		s.Type = string(cfg.Type)
	}
	return s
}

// StandardServerFile manages a map of StandardServer entries stored under
// one top-level key of a JSON file.
type StandardServerFile struct {
	Path      string
	Key       string
	WriteType bool
}

// standardOwnedKeys are the entry keys StandardServer models. Anything else
// in an entry (timeouts, tool allowlists) is left untouched on write.
var standardOwnedKeys = []string{"type", "command", "args", "env", "url", "headers", "cwd", "disabled"}

func (f StandardServerFile) read() (map[string]json.RawMessage, error) {
	servers := map[string]json.RawMessage{}
	if _, err := ReadJSONKey(f.Path, f.Key, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// List returns the servers sorted by name.
func (f StandardServerFile) List() ([]model.MCPServerConfig, error) {
	servers, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make([]model.MCPServerConfig, 0, len(servers))
	for name, raw := range servers {
		var s StandardServer
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("parse MCP server %q in %s: %w", name, f.Path, err)
		}
		out = append(out, FromStandard(name, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upsert validates cfg and writes it over any entry with the same name.
// Keys of that entry StandardServer does not model are kept, and other
// entries are written back byte for byte.
func (f StandardServerFile) Upsert(cfg model.MCPServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	servers, err := f.read()
	if err != nil {
		return err
	}
	entry, err := MergeJSONEntry(servers[cfg.Name], ToStandard(cfg, f.WriteType), standardOwnedKeys)
	if err != nil {
		return fmt.Errorf("write MCP server %q: %w", cfg.Name, err)
	}
	servers[cfg.Name] = entry
	if err := UpdateJSONKey(f.Path, f.Key, servers); err != nil {
		return fmt.Errorf("write MCP server %q: %w", cfg.Name, err)
	}
	return nil
}

// Remove deletes the named entry, reporting whether it existed.
func (f StandardServerFile) Remove(name string) (bool, error) {
	servers, err := f.read()
	if err != nil {
		return false, err
	}
	if _, ok := servers[name]; !ok {
		return false, nil
	}
	delete(servers, name)
	if err := UpdateJSONKey(f.Path, f.Key, servers); err != nil {
		return false, fmt.Errorf("remove MCP server %q: %w", name, err)
	}
	return true, nil
}
