// Package builtin assembles the registry of every provider agentsync ships.
package builtin

import (
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/provider/claude"
	"github.com/klauern/agentsync/internal/provider/codex"
	"github.com/klauern/agentsync/internal/provider/cursor"
	"github.com/klauern/agentsync/internal/provider/opencode"
)

// Options overrides provider locations.
type Options struct {
	// Roots replaces the config root of individual providers.
	Roots map[model.ProviderID]string
	// ClaudeStateFile replaces the location of Claude Code's ~/.claude.json.
	ClaudeStateFile string
}

// NewRegistry returns a registry holding every built-in provider.
func NewRegistry(opts Options) *provider.Registry {
	r := provider.NewRegistry()
	r.Register(opencode.New(opts.Roots[model.OpenCode]))
	r.Register(claude.New(opts.Roots[model.ClaudeCode], opts.ClaudeStateFile))
	r.Register(codex.New(opts.Roots[model.Codex]))
	r.Register(cursor.New(opts.Roots[model.Cursor]))
	return r
}
