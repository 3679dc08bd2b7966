package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/model"
)

// Registry holds the providers known to one agentsync invocation.
type Registry struct {
	mu        sync.RWMutex
	providers map[model.ProviderID]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[model.ProviderID]Provider)}
}

// Register adds p. It returns false, leaving the registry unchanged, when a
// provider with the same ID is already registered.
func (r *Registry) Register(p Provider) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID()]; exists {
		return false
	}
	r.providers[p.ID()] = p
	return true
}

// Get returns the provider with the given ID.
func (r *Registry) Get(id model.ProviderID) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// All returns every registered provider sorted by ID.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Installed returns the registered providers that are installed, sorted by
// ID. Installation checks run concurrently.
func (r *Registry) Installed(ctx context.Context) ([]Provider, error) {
	return filterInstalled(ctx, r.All())
}

// Select resolves ids to providers. An empty ids selects every registered
// provider. With installedOnly, providers that are not installed are dropped.
// Unknown or unregistered IDs are an error.
func (r *Registry) Select(ctx context.Context, ids []model.ProviderID, installedOnly bool) ([]Provider, error) {
	var selected []Provider
	if len(ids) == 0 {
		selected = r.All()
	} else {
		for _, id := range ids {
			p, ok := r.Get(id)
			if !ok {
				return nil, fmt.Errorf("provider %q is not registered", id)
			}
			selected = append(selected, p)
		}
		sort.Slice(selected, func(i, j int) bool { return selected[i].ID() < selected[j].ID() })
	}

	if !installedOnly {
		return selected, nil
	}
	return filterInstalled(ctx, selected)
}

func filterInstalled(ctx context.Context, providers []Provider) ([]Provider, error) {
	installed := make([]bool, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			installed[i] = p.IsInstalled(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Provider, 0, len(providers))
	for i, p := range providers {
		if installed[i] {
			out = append(out, p)
			continue
		}
		logging.WithContext(ctx).Debug("provider not installed", logging.Provider(p.ID().String()))
	}
	return out, nil
}
