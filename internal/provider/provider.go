// Package provider defines the Provider abstraction over an AI assistant's
// on-disk configuration, and the Registry that holds the known providers.
//
// Each provider declares a config root, the glob patterns of files worth
// syncing, a blocklist of files that must never leave the machine, and where
// it keeps its MCP server definitions. Shared behavior lives in Base; the
// provider subpackages embed it and override what differs.
package provider

import (
	"context"
	"errors"

	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/model"
)

// ErrUnsupportedMCPType is returned by UpsertMCPServer when the provider's
// config format cannot express the server's transport.
var ErrUnsupportedMCPType = errors.New("MCP transport not supported by provider")

// Provider is one AI assistant whose configuration can be synced.
type Provider interface {
	ID() model.ProviderID
	Name() string
	ConfigRoot() string
	// RootSource reports how ConfigRoot was resolved.
	RootSource() RootSource
	// IsInstalled is a pure existence check and never reads file contents.
	IsInstalled(ctx context.Context) bool
	DeclaredPatterns() []string
	Blocklist() []string

	Collect(ctx context.Context) (model.ProviderSnapshot, error)
	// Apply writes files into the provider's config. It never deletes.
	Apply(ctx context.Context, files []model.CollectedFile) (collect.ApplyResult, error)

	ListMCPServers(ctx context.Context) ([]model.MCPServerConfig, error)
	UpsertMCPServer(ctx context.Context, cfg model.MCPServerConfig) error
	// RemoveMCPServer reports whether a server with that name existed.
	RemoveMCPServer(ctx context.Context, name string) (bool, error)

	// PluginLister returns the plugin capability for providers that have one.
	PluginLister() (PluginConfigLister, bool)
}

// PluginConfigLister is implemented by providers that declare plugins in
// their configuration.
type PluginConfigLister interface {
	ListPlugins(ctx context.Context) ([]string, error)
}

// Base implements the parts of Provider that every variant shares.
type Base struct {
	id        model.ProviderID
	root      string
	source    RootSource
	patterns  []string
	blocklist []string
}

// NewBase creates a Base for the given provider.
func NewBase(id model.ProviderID, root Root, patterns, blocklist []string) Base {
	return Base{
		id:        id,
		root:      root.Path,
		source:    root.Source,
		patterns:  patterns,
		blocklist: blocklist,
	}
}

// ID returns the provider identifier.
func (b Base) ID() model.ProviderID { return b.id }

// Name returns the human-readable provider name.
func (b Base) Name() string { return b.id.DisplayName() }

// ConfigRoot returns the provider's config directory.
func (b Base) ConfigRoot() string { return b.root }

// RootSource reports how the config root was resolved.
func (b Base) RootSource() RootSource { return b.source }

// DeclaredPatterns returns a copy of the include patterns.
func (b Base) DeclaredPatterns() []string { return append([]string(nil), b.patterns...) }

// Blocklist returns a copy of the blocklist patterns.
func (b Base) Blocklist() []string { return append([]string(nil), b.blocklist...) }

// IsInstalled reports whether the config root exists.
func (b Base) IsInstalled(context.Context) bool {
	return pathExists(b.root)
}

// Spec returns the collection spec for this provider.
func (b Base) Spec() collect.Spec {
	return collect.Spec{
		Provider:  b.id,
		Root:      b.root,
		Patterns:  b.patterns,
		Blocklist: b.blocklist,
	}
}

// Collect snapshots the provider's config root.
func (b Base) Collect(ctx context.Context) (model.ProviderSnapshot, error) {
	return collect.Collect(ctx, b.Spec())
}

// Apply writes files under the config root.
func (b Base) Apply(ctx context.Context, files []model.CollectedFile) (collect.ApplyResult, error) {
	return collect.Apply(ctx, b.root, files)
}

// PluginLister reports that the provider has no plugin capability.
func (b Base) PluginLister() (PluginConfigLister, bool) { return nil, false }

// Collectors adapts providers for collect.CollectAll.
func Collectors(providers []Provider) []collect.Collector {
	out := make([]collect.Collector, len(providers))
	for i, p := range providers {
		out[i] = p
	}
	return out
}
