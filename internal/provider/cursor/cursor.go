// Package cursor implements the provider for the Cursor editor's agent
// configuration.
package cursor

import (
	"context"
	"path/filepath"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/util"
)

const (
	// EnvConfigDir overrides the default config root.
	EnvConfigDir = "CURSOR_CONFIG_DIR"
	// MCPFile is the dedicated MCP server file under the root.
	MCPFile = "mcp.json"
)

// Patterns are the syncable files under the config root.
var Patterns = []string{
	"mcp.json",
	"rules/**/*.mdc",
	"commands/**/*.md",
}

// Blocklist are files that never leave the machine.
var Blocklist = []string{
	"extensions/**",
	"**/.git/**",
	"**/*.log",
}

// DefaultRoot returns ~/.cursor.
func DefaultRoot() string {
	return filepath.Join(util.HomeDir(), ".cursor")
}

// Provider is the Cursor provider.
type Provider struct {
	provider.Base
	mcp provider.StandardServerFile
}

var _ provider.Provider = (*Provider)(nil)

// New creates the provider. A non-empty override replaces the config root.
func New(override string) *Provider {
	root := provider.ResolveRoot(override, EnvConfigDir, DefaultRoot)
	return &Provider{
		Base: provider.NewBase(model.Cursor, root, Patterns, Blocklist),
		mcp:  provider.StandardServerFile{Path: filepath.Join(root.Path, MCPFile), Key: "mcpServers"},
	}
}

// ListMCPServers returns the servers in mcp.json.
func (p *Provider) ListMCPServers(context.Context) ([]model.MCPServerConfig, error) {
	return p.mcp.List()
}

// UpsertMCPServer writes cfg into mcp.json.
func (p *Provider) UpsertMCPServer(_ context.Context, cfg model.MCPServerConfig) error {
	return p.mcp.Upsert(cfg)
}

// RemoveMCPServer deletes the named server from mcp.json.
func (p *Provider) RemoveMCPServer(_ context.Context, name string) (bool, error) {
	return p.mcp.Remove(name)
}
