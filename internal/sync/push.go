package sync

import (
	"context"
	"errors"

	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/contexts"
	"github.com/klauern/agentsync/internal/envelope"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/payload"
	"github.com/klauern/agentsync/internal/provider"
)

// PushOptions configures a push.
type PushOptions struct {
	// Force uploads even when nothing changed since the last sync.
	Force bool
	// Providers restricts the push to these providers. Empty means every
	// installed provider.
	Providers []model.ProviderID
	// ContainerID overrides the recorded gist.
	ContainerID string
	// Inspect sees the collected snapshot before it is encrypted. Returning
	// an error aborts the push with nothing uploaded.
	Inspect func(ctx context.Context, snapshot model.MultiProviderSnapshot) error
	// OnCollected is called as each provider finishes collecting.
	OnCollected func(model.ProviderSnapshot)
}

// PushResult describes a completed push.
type PushResult struct {
	ContainerID string
	URL         string
	// Created is set when a new gist was created.
	Created bool
	// NoChanges is set when the push was skipped without remote calls.
	NoChanges bool
	Snapshot  model.MultiProviderSnapshot
	// Carried lists providers kept from the remote document because they
	// were not collected on this device.
	Carried        []model.ProviderID
	ContextCount   int
	MCPServerCount int
}

// Push uploads the local configs when they changed since the last sync.
func (s *Synchronizer) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	const op = "push"
	defer logging.Timer(op)()

	unlock, err := s.lock(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.loadState(op)
	if err != nil {
		return nil, err
	}

	providers, err := s.deps.Providers.Select(ctx, opts.Providers, true)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	snapshot, err := collect.CollectAll(ctx, provider.Collectors(providers), collect.Options{OnCollected: opts.OnCollected})
	if err != nil {
		return nil, err
	}

	items, err := s.loadContexts(op)
	if err != nil {
		return nil, err
	}
	contextsHash := contexts.Hash(items)

	result := &PushResult{Snapshot: snapshot, ContextCount: len(items)}

	containerID := s.knownContainer(opts.ContainerID, st)
	if !opts.Force && containerID != "" && containerID == st.RemoteContainerID &&
		snapshot.CombinedHash == st.LastConfigHash && contextsHash == st.LastContextsHash {
		s.log.Info("nothing to push", logging.Container(containerID))
		result.ContainerID = containerID
		result.NoChanges = true
		return result, nil
	}

	if opts.Inspect != nil {
		if err := opts.Inspect(ctx, snapshot); err != nil {
			return nil, err
		}
	}

	if containerID == "" {
		if containerID, err = s.resolveContainer(ctx, op, "", st); err != nil {
			return nil, err
		}
	}

	var servers []model.MCPServerConfig
	if s.deps.MCP != nil {
		if servers, err = s.deps.MCP.List(); err != nil {
			return nil, storageError(op, containerID, err)
		}
	}
	result.MCPServerCount = len(servers)

	doc := payload.Build(payload.BuildOptions{
		Snapshot:   snapshot,
		MCPServers: servers,
		Contexts:   items,
		Source:     s.deps.Source,
		Now:        s.now(),
	})

	if containerID != "" {
		carried, err := s.carryRemoteProviders(ctx, containerID, doc, snapshot)
		if err != nil {
			return nil, err
		}
		result.Carried = carried
	}

	env, err := envelope.EncryptObject(doc, s.deps.Passphrase)
	if err != nil {
		return nil, Classify(op, containerID, err)
	}
	data, err := envelope.Marshal(env)
	if err != nil {
		return nil, Classify(op, containerID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := map[string]string{gist.FileName: string(data)}
	var g *gist.Gist
	if containerID == "" {
		g, err = s.deps.Remote.Create(ctx, gist.Description, files)
		result.Created = true
	} else {
		g, err = s.deps.Remote.Update(ctx, containerID, gist.Description, files)
	}
	if err != nil {
		return nil, Classify(op, containerID, err)
	}
	result.ContainerID = g.ID
	result.URL = g.HTMLURL

	syncedAt := s.now()
	if g.UpdatedAt.After(syncedAt) {
		syncedAt = g.UpdatedAt.UTC()
	}
	newState := model.SyncState{
		LastSyncTimestamp: &syncedAt,
		RemoteContainerID: g.ID,
		LastConfigHash:    snapshot.CombinedHash,
		LastContextsHash:  contextsHash,
	}
	if err := s.deps.State.Save(newState); err != nil {
		return nil, storageError(op, g.ID, err)
	}

	s.log.Info("pushed configs",
		logging.Container(g.ID),
		logging.Count(snapshot.FileCount()),
		"created", result.Created,
	)
	return result, nil
}

// carryRemoteProviders copies into doc the providers present remotely but
// not collected here, so a device without an assistant installed does not
// erase that assistant's configs. A missing document carries nothing; an
// undecryptable one fails the push.
func (s *Synchronizer) carryRemoteProviders(ctx context.Context, containerID string, doc *payload.V2, snapshot model.MultiProviderSnapshot) ([]model.ProviderID, error) {
	remote, err := s.fetch(ctx, "push", containerID)
	if err != nil {
		if errors.Is(err, gist.ErrNoDocument) {
			return nil, nil
		}
		return nil, err
	}

	var carried []model.ProviderID
	for _, id := range remote.v2.ProviderIDs() {
		if _, collected := snapshot.Snapshots[id]; collected {
			continue
		}
		doc.Providers[id] = remote.v2.Providers[id]
		carried = append(carried, id)
	}
	if len(carried) > 0 {
		s.log.Debug("carried remote providers", logging.Count(len(carried)))
	}
	return carried, nil
}
