// Package codex implements the provider for the OpenAI Codex CLI.
// Codex uses TOML configuration (config.toml) and keeps MCP servers in its
// [mcp_servers.<name>] tables.
package codex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/util"
)

const (
	// EnvHome overrides the default config root.
	EnvHome = "CODEX_HOME"
	// ConfigFile is the Codex config file under the root.
	ConfigFile = "config.toml"

	mcpTable = "mcp_servers"
)

// Patterns are the syncable files under the config root.
var Patterns = []string{
	"config.toml",
	"AGENTS.md",
	"prompts/**/*.md",
}

// Blocklist are files that never leave the machine.
var Blocklist = []string{
	"auth.json",
	"sessions/**",
	"log/**",
	"history.jsonl",
	"**/.git/**",
}

// DefaultRoot returns ~/.codex.
func DefaultRoot() string {
	return filepath.Join(util.HomeDir(), ".codex")
}

// Provider is the Codex provider.
type Provider struct {
	provider.Base
}

var _ provider.Provider = (*Provider)(nil)

// New creates the provider. A non-empty override replaces the config root.
func New(override string) *Provider {
	root := provider.ResolveRoot(override, EnvHome, DefaultRoot)
	return &Provider{Base: provider.NewBase(model.Codex, root, Patterns, Blocklist)}
}

func (p *Provider) configPath() string {
	return filepath.Join(p.ConfigRoot(), ConfigFile)
}

// MCPServer represents an MCP server table in config.toml.
type MCPServer struct {
	Command     string            `toml:"command,omitempty"`
	Args        []string          `toml:"args,omitempty"`
	Env         map[string]string `toml:"env,omitempty"`
	Cwd         string            `toml:"cwd,omitempty"`
	URL         string            `toml:"url,omitempty"`
	HTTPHeaders map[string]string `toml:"http_headers,omitempty"`
	Enabled     *bool             `toml:"enabled,omitempty"`
}

func fromTable(name string, s MCPServer) model.MCPServerConfig {
	cfg := model.MCPServerConfig{
		Name:    name,
		Type:    model.MCPStdio,
		Command: s.Command,
		Args:    s.Args,
		Env:     s.Env,
		Cwd:     s.Cwd,
		Enabled: s.Enabled == nil || *s.Enabled,
	}
	if s.URL != "" {
		cfg.Type = model.MCPHTTP
		cfg.URL = s.URL
		cfg.Headers = s.HTTPHeaders
	}
	return cfg
}

// tableFields returns the config.toml keys for cfg. Codex has no sse
// transport; a bare url always means streamable http.
func tableFields(cfg model.MCPServerConfig) map[string]any {
	fields := map[string]any{}
	if !cfg.Enabled {
		fields["enabled"] = false
	}
	if cfg.Type.IsRemote() {
		fields["url"] = cfg.URL
		if len(cfg.Headers) > 0 {
			fields["http_headers"] = cfg.Headers
		}
		return fields
	}
	fields["command"] = cfg.Command
	if len(cfg.Args) > 0 {
		fields["args"] = cfg.Args
	}
	if len(cfg.Env) > 0 {
		fields["env"] = cfg.Env
	}
	if cfg.Cwd != "" {
		fields["cwd"] = cfg.Cwd
	}
	return fields
}

// ownedKeys are the table keys MCPServer models. Keys such as
// startup_timeout_sec or tool_timeout_sec are kept on upsert.
var ownedKeys = []string{"command", "args", "env", "cwd", "url", "http_headers", "enabled"}

func (p *Provider) readServers() (map[string]MCPServer, error) {
	var doc struct {
		MCPServers map[string]MCPServer `toml:"mcp_servers"`
	}
	if _, err := toml.DecodeFile(p.configPath(), &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]MCPServer{}, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFile, err)
	}
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]MCPServer{}
	}
	return doc.MCPServers, nil
}

// editServers decodes config.toml generically, lets edit change the
// mcp_servers tables in place and writes the document back. Every other
// setting is kept; comments are not.
func (p *Provider) editServers(edit func(servers map[string]any) (bool, error)) (bool, error) {
	doc := map[string]any{}
	if _, err := toml.DecodeFile(p.configPath(), &doc); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to parse %s: %w", ConfigFile, err)
	}
	servers, _ := doc[mcpTable].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	changed, err := edit(servers)
	if err != nil || !changed {
		return changed, err
	}
	if len(servers) == 0 {
		delete(doc, mcpTable)
	} else {
		doc[mcpTable] = servers
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", ConfigFile, err)
	}

	path := p.configPath()
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(p.ConfigRoot(), 0o750); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, buf.Bytes(), mode)
}

// ListMCPServers returns the servers from config.toml.
func (p *Provider) ListMCPServers(context.Context) ([]model.MCPServerConfig, error) {
	servers, err := p.readServers()
	if err != nil {
		return nil, err
	}
	out := make([]model.MCPServerConfig, 0, len(servers))
	for name, s := range servers {
		out = append(out, fromTable(name, s))
	}
	model.SortMCPServers(out)
	return out, nil
}

// UpsertMCPServer writes cfg into config.toml. Codex cannot express sse
// servers, so those are refused with provider.ErrUnsupportedMCPType.
func (p *Provider) UpsertMCPServer(_ context.Context, cfg model.MCPServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Type == model.MCPSSE {
		return fmt.Errorf("%w: codex has no %s transport", provider.ErrUnsupportedMCPType, cfg.Type)
	}
	_, err := p.editServers(func(servers map[string]any) (bool, error) {
		table, _ := servers[cfg.Name].(map[string]any)
		if table == nil {
			table = map[string]any{}
		}
		for _, k := range ownedKeys {
			delete(table, k)
		}
		for k, v := range tableFields(cfg) {
			table[k] = v
		}
		servers[cfg.Name] = table
		return true, nil
	})
	return err
}

// RemoveMCPServer deletes the named server from config.toml.
func (p *Provider) RemoveMCPServer(_ context.Context, name string) (bool, error) {
	return p.editServers(func(servers map[string]any) (bool, error) {
		if _, ok := servers[name]; !ok {
			return false, nil
		}
		delete(servers, name)
		return true, nil
	})
}
