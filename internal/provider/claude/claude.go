// Package claude implements the provider for Claude Code.
//
// Claude Code keeps user-scoped MCP servers in ~/.claude.json, a large state
// file outside the config root that also holds caches, project history and
// auth hints. Only its "mcpServers" key is synced: collection adds a virtual
// file named .claude.json that holds just that key, and applying that
// virtual file merges the key back without touching anything else.
package claude

import (
	"context"
	"fmt"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/util"
)

const (
	// EnvConfigDir overrides the default config root.
	EnvConfigDir = "CLAUDE_CONFIG_DIR"
	// StateFileName is the auxiliary state file and the virtual path its
	// MCP section is collected under.
	StateFileName = ".claude.json"

	mcpKey = "mcpServers"
)

// Patterns are the syncable files under the config root.
var Patterns = []string{
	"settings.json",
	"CLAUDE.md",
	"commands/**/*.md",
	"agents/**/*.md",
	"skills/**/*",
	"output-styles/**/*.md",
}

// Blocklist are files that never leave the machine.
var Blocklist = []string{
	".credentials.json",
	"settings.local.json",
	"projects/**",
	"todos/**",
	"statsig/**",
	"shell-snapshots/**",
	"logs/**",
	"ide/**",
	"**/.git/**",
	"**/*.lock",
}

// DefaultRoot returns ~/.claude.
func DefaultRoot() string {
	return filepath.Join(util.HomeDir(), ".claude")
}

// DefaultStateFile returns where Claude Code keeps its state file for the
// given root: inside the root when it came from CLAUDE_CONFIG_DIR, and in
// the home directory otherwise.
func DefaultStateFile(root provider.Root) string {
	if root.Source == provider.SourceEnv {
		return filepath.Join(root.Path, StateFileName)
	}
	return filepath.Join(util.HomeDir(), StateFileName)
}

// Provider is the Claude Code provider.
type Provider struct {
	provider.Base
	stateFile string
	mcp       provider.StandardServerFile
}

var _ provider.Provider = (*Provider)(nil)

// New creates the provider. A non-empty override replaces the config root
// and a non-empty stateFile replaces the auxiliary state file location.
func New(override, stateFile string) *Provider {
	root := provider.ResolveRoot(override, EnvConfigDir, DefaultRoot)
	if stateFile == "" {
		stateFile = DefaultStateFile(root)
	}
	return &Provider{
		Base:      provider.NewBase(model.ClaudeCode, root, Patterns, Blocklist),
		stateFile: stateFile,
		mcp:       provider.StandardServerFile{Path: stateFile, Key: mcpKey, WriteType: true},
	}
}

// StateFile returns the auxiliary state file path.
func (p *Provider) StateFile() string { return p.stateFile }

// IsInstalled reports whether the config root or the state file exists.
func (p *Provider) IsInstalled(ctx context.Context) bool {
	return p.Base.IsInstalled(ctx) || util.PathExists(p.stateFile)
}

// Collect snapshots the config root plus the virtual .claude.json file.
func (p *Provider) Collect(ctx context.Context) (model.ProviderSnapshot, error) {
	snap, err := p.Base.Collect(ctx)
	if err != nil {
		return snap, err
	}

	virtual, ok, err := p.virtualStateFile()
	if err != nil {
		logging.WithContext(ctx).Warn("skipping MCP servers from state file",
			logging.Provider(p.ID().String()), logging.Path(p.stateFile), logging.Err(err))
		return snap, nil
	}
	if !ok {
		return snap, nil
	}

	files := append(append([]model.CollectedFile(nil), snap.Files...), virtual)
	return model.NewProviderSnapshot(p.ID(), p.ConfigRoot(), files), nil
}

// virtualStateFile renders the mcpServers section of the state file. The
// servers are decoded and re-encoded so the content, and thus its hash, does
// not depend on formatting or key order on disk.
func (p *Provider) virtualStateFile() (model.CollectedFile, bool, error) {
	var servers map[string]any
	found, err := provider.ReadJSONKey(p.stateFile, mcpKey, &servers)
	if err != nil || !found {
		return model.CollectedFile{}, false, err
	}
	data, err := json.MarshalIndent(map[string]any{mcpKey: servers}, "", "  ")
	if err != nil {
		return model.CollectedFile{}, false, err
	}
	return model.NewCollectedFile(StateFileName, string(data)+"\n"), true, nil
}

// Apply writes files under the config root and merges a virtual
// .claude.json into the state file's mcpServers key.
func (p *Provider) Apply(ctx context.Context, files []model.CollectedFile) (collect.ApplyResult, error) {
	var (
		rest    []model.CollectedFile
		virtual *model.CollectedFile
	)
	for i := range files {
		if files[i].RelativePath == StateFileName {
			virtual = &files[i]
			continue
		}
		rest = append(rest, files[i])
	}

	result, err := p.Base.Apply(ctx, rest)
	if err != nil && (ctx.Err() != nil || len(result.Failed) == 0) {
		return result, err
	}
	if result.Failed == nil {
		result.Failed = make(map[string]error)
	}

	if virtual != nil {
		if verr := p.applyStateFile(*virtual); verr != nil {
			logging.WithContext(ctx).Warn("failed to merge MCP servers into state file",
				logging.Path(p.stateFile), logging.Err(verr))
			result.Failed[StateFileName] = verr
		} else {
			result.Written = append(result.Written, StateFileName)
		}
	}

	if len(result.Written) == 0 && len(result.Failed) > 0 {
		return result, fmt.Errorf("apply %s: all %d files failed", p.ID(), len(result.Failed))
	}
	return result, nil
}

func (p *Provider) applyStateFile(f model.CollectedFile) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(f.Content), &doc); err != nil {
		return fmt.Errorf("parse %s: %w", StateFileName, err)
	}
	servers, ok := doc[mcpKey]
	if !ok {
		return nil
	}
	return provider.UpdateJSONKey(p.stateFile, mcpKey, servers)
}

// ListMCPServers returns the servers from the state file.
func (p *Provider) ListMCPServers(context.Context) ([]model.MCPServerConfig, error) {
	return p.mcp.List()
}

// UpsertMCPServer writes cfg into the state file.
func (p *Provider) UpsertMCPServer(_ context.Context, cfg model.MCPServerConfig) error {
	return p.mcp.Upsert(cfg)
}

// RemoveMCPServer deletes the named server from the state file.
func (p *Provider) RemoveMCPServer(_ context.Context, name string) (bool, error) {
	return p.mcp.Remove(name)
}
