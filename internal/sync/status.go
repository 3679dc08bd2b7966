package sync

import (
	"context"
	"time"

	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/contexts"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
)

// StatusOptions configures Status.
type StatusOptions struct {
	Providers   []model.ProviderID
	ContainerID string
	// Offline skips the remote metadata check.
	Offline     bool
	OnCollected func(model.ProviderSnapshot)
}

// ProviderStatus summarizes one installed provider.
type ProviderStatus struct {
	Provider   model.ProviderID
	ConfigRoot string
	RootSource provider.RootSource
	Files      int
	Hash       string
}

// StatusReport compares the local configs with the last sync.
type StatusReport struct {
	State       State
	ContainerID string
	LastSync    *time.Time

	LocalHash string
	// LocalChanged is set when configs differ from the last push. It is
	// never set after a pull of a V2 document, which records no config hash.
	LocalChanged    bool
	ContextsChanged bool
	ContextCount    int

	RemoteChecked   bool
	RemoteUpdatedAt time.Time
	RemoteChanged   bool

	Providers []ProviderStatus
}

// Status collects the installed providers and compares them, and the
// remote gist's update time, with the recorded SyncState. It never writes.
func (s *Synchronizer) Status(ctx context.Context, opts StatusOptions) (*StatusReport, error) {
	const op = "status"

	st, err := s.loadState(op)
	if err != nil {
		return nil, err
	}

	providers, err := s.deps.Providers.Select(ctx, opts.Providers, true)
	if err != nil {
		return nil, err
	}
	snapshot, err := collect.CollectAll(ctx, provider.Collectors(providers), collect.Options{OnCollected: opts.OnCollected})
	if err != nil {
		return nil, err
	}
	items, err := s.loadContexts(op)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		ContainerID:  s.knownContainer(opts.ContainerID, st),
		LastSync:     st.LastSyncTimestamp,
		LocalHash:    snapshot.CombinedHash,
		ContextCount: len(items),
	}
	for _, p := range providers {
		snap := snapshot.Snapshots[p.ID()]
		report.Providers = append(report.Providers, ProviderStatus{
			Provider:   p.ID(),
			ConfigRoot: p.ConfigRoot(),
			RootSource: p.RootSource(),
			Files:      len(snap.Files),
			Hash:       snap.CombinedHash,
		})
	}

	obs := Observation{Synced: st.HasSynced()}
	if st.HasSynced() {
		report.LocalChanged = st.LastConfigHash != "" && st.LastConfigHash != snapshot.CombinedHash
		report.ContextsChanged = st.LastContextsHash != contexts.Hash(items)
		obs.LocalChanged = report.LocalChanged || report.ContextsChanged
	}

	if !opts.Offline && report.ContainerID != "" && s.deps.Remote != nil {
		g, err := s.deps.Remote.Get(ctx, report.ContainerID)
		if err != nil {
			return nil, Classify(op, report.ContainerID, err)
		}
		report.RemoteChecked = true
		report.RemoteUpdatedAt = g.UpdatedAt
		if st.LastSyncTimestamp != nil {
			report.RemoteChanged = g.UpdatedAt.After(*st.LastSyncTimestamp)
		}
		obs.RemoteChanged = report.RemoteChanged
		obs.RemoteNeverUpdated = !g.CreatedAt.IsZero() && g.UpdatedAt.Equal(g.CreatedAt)
	}

	state, err := Replay(ctx, obs)
	if err != nil {
		return nil, err
	}
	report.State = state
	return report, nil
}
