// Package opencode implements the provider for the opencode assistant.
//
// opencode keeps MCP servers inline in opencode.json under the "mcp" key:
//
//	{
//	  "mcp": {
//	    "fs":   {"type": "local", "command": ["npx", "-y", "server-fs"]},
//	    "docs": {"type": "remote", "url": "https://docs.example.com/mcp"}
//	  },
//	  "plugin": ["opencode-notifier"]
//	}
package opencode

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/util"
)

const (
	// EnvConfigDir overrides the default config root.
	EnvConfigDir = "OPENCODE_CONFIG_DIR"
	// ConfigFile holds settings, MCP servers and plugins.
	ConfigFile = "opencode.json"

	mcpKey    = "mcp"
	pluginKey = "plugin"
)

// Patterns are the syncable files under the config root.
var Patterns = []string{
	"opencode.json",
	"opencode.jsonc",
	"AGENTS.md",
	"agent/**/*.md",
	"command/**/*.md",
	"mode/**/*.md",
	"plugin/**/*.{js,ts}",
	"skill/**/*",
}

// Blocklist are files that never leave the machine.
var Blocklist = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/*.lock",
	"package-lock.json",
	"**/*.log",
}

// DefaultRoot returns the conventional opencode config directory.
func DefaultRoot() string {
	return filepath.Join(util.UserConfigBase(), "opencode")
}

// Provider is the opencode provider.
type Provider struct {
	provider.Base
}

var (
	_ provider.Provider           = (*Provider)(nil)
	_ provider.PluginConfigLister = (*Provider)(nil)
)

// New creates the provider. A non-empty override replaces the config root.
func New(override string) *Provider {
	root := provider.ResolveRoot(override, EnvConfigDir, DefaultRoot)
	return &Provider{Base: provider.NewBase(model.OpenCode, root, Patterns, Blocklist)}
}

func (p *Provider) configPath() string {
	return filepath.Join(p.ConfigRoot(), ConfigFile)
}

type mcpEntry struct {
	Type        string            `json:"type"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
}

func fromEntry(name string, e mcpEntry) model.MCPServerConfig {
	cfg := model.MCPServerConfig{
		Name:    name,
		Env:     e.Environment,
		URL:     e.URL,
		Headers: e.Headers,
		Enabled: e.Enabled == nil || *e.Enabled,
	}
	if e.Type == "remote" || (e.Type == "" && e.URL != "") {
		cfg.Type = model.MCPHTTP
		return cfg
	}
	cfg.Type = model.MCPStdio
	if len(e.Command) > 0 {
		cfg.Command = e.Command[0]
		cfg.Args = e.Command[1:]
	}
	return cfg
}

func toEntry(cfg model.MCPServerConfig) mcpEntry {
	enabled := cfg.Enabled
	e := mcpEntry{Enabled: &enabled}
	if cfg.Type.IsRemote() {
		e.Type = "remote"
		e.URL = cfg.URL
		e.Headers = cfg.Headers
		return e
	}
	e.Type = "local"
	e.Command = append([]string{cfg.Command}, cfg.Args...)
	e.Environment = cfg.Env
	return e
}

// ownedKeys are the entry keys mcpEntry models; others such as timeout or
// oauth survive an upsert.
var ownedKeys = []string{"type", "command", "environment", "url", "headers", "enabled"}

func (p *Provider) readServers() (map[string]json.RawMessage, error) {
	servers := map[string]json.RawMessage{}
	if _, err := provider.ReadJSONKey(p.configPath(), mcpKey, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// ListMCPServers returns the servers declared in opencode.json.
func (p *Provider) ListMCPServers(context.Context) ([]model.MCPServerConfig, error) {
	servers, err := p.readServers()
	if err != nil {
		return nil, err
	}
	out := make([]model.MCPServerConfig, 0, len(servers))
	for name, raw := range servers {
		var e mcpEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("parse MCP server %q in %s: %w", name, ConfigFile, err)
		}
		out = append(out, fromEntry(name, e))
	}
	model.SortMCPServers(out)
	return out, nil
}

// UpsertMCPServer writes cfg into opencode.json.
func (p *Provider) UpsertMCPServer(_ context.Context, cfg model.MCPServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	servers, err := p.readServers()
	if err != nil {
		return err
	}
	entry, err := provider.MergeJSONEntry(servers[cfg.Name], toEntry(cfg), ownedKeys)
	if err != nil {
		return fmt.Errorf("write MCP server %q: %w", cfg.Name, err)
	}
	servers[cfg.Name] = entry
	if err := provider.UpdateJSONKey(p.configPath(), mcpKey, servers); err != nil {
		return fmt.Errorf("write MCP server %q: %w", cfg.Name, err)
	}
	return nil
}

// RemoveMCPServer deletes the named server from opencode.json.
func (p *Provider) RemoveMCPServer(_ context.Context, name string) (bool, error) {
	servers, err := p.readServers()
	if err != nil {
		return false, err
	}
	if _, ok := servers[name]; !ok {
		return false, nil
	}
	delete(servers, name)
	if err := provider.UpdateJSONKey(p.configPath(), mcpKey, servers); err != nil {
		return false, fmt.Errorf("remove MCP server %q: %w", name, err)
	}
	return true, nil
}

// PluginLister exposes the plugin capability.
func (p *Provider) PluginLister() (provider.PluginConfigLister, bool) { return p, true }

// ListPlugins returns the plugin entries from opencode.json, sorted.
func (p *Provider) ListPlugins(context.Context) ([]string, error) {
	var plugins []string
	if _, err := provider.ReadJSONKey(p.configPath(), pluginKey, &plugins); err != nil {
		return nil, err
	}
	sort.Strings(plugins)
	return plugins, nil
}
