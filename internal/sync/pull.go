package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/contexts"
	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/mcp"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/payload"
	"github.com/klauern/agentsync/internal/provider"
)

// PullOptions configures a pull.
type PullOptions struct {
	// Strategy decides what happens to differing local files. Empty means
	// StrategyInteractive.
	Strategy Strategy
	// Force is shorthand for StrategyOverwrite.
	Force bool
	// Providers restricts the pull to these providers. Empty means every
	// provider in the remote document.
	Providers []model.ProviderID
	// ContainerID overrides the recorded gist.
	ContainerID string
	// Resolve is consulted for conflicts under StrategyInteractive.
	Resolve Resolver
	// DryRun plans and resolves without writing anything.
	DryRun bool
}

func (o PullOptions) strategy() Strategy {
	if o.Force {
		return StrategyOverwrite
	}
	if o.Strategy == "" {
		return StrategyInteractive
	}
	return o.Strategy
}

// ProviderPlan is the planned pull for one provider.
type ProviderPlan struct {
	Provider   model.ProviderID
	ConfigRoot string
	Installed  bool
	// Changes are sorted by path and cover every remote file.
	Changes []FileChange

	impl provider.Provider
}

// Count returns the number of changes with the given action.
func (p ProviderPlan) Count(action Action) int {
	n := 0
	for _, c := range p.Changes {
		if c.Action == action {
			n++
		}
	}
	return n
}

// PullPlan is the diff between the remote document and local files.
type PullPlan struct {
	ContainerID     string
	RemoteVersion   int
	RemoteSource    string
	RemoteUpdatedAt time.Time
	Providers       []ProviderPlan
	Conflicts       []Conflict
	// Skipped lists remote providers this device does not know or that
	// were excluded by PullOptions.Providers.
	Skipped    []model.ProviderID
	MCPServers []model.MCPServerConfig
	// Contexts is nil when the remote document carries none.
	Contexts *payload.Contexts

	configHash string
}

// HasChanges reports whether applying the plan would write any file.
func (p *PullPlan) HasChanges() bool {
	for _, pp := range p.Providers {
		if pp.Count(ActionCreate) > 0 || pp.Count(ActionUpdate) > 0 {
			return true
		}
	}
	return false
}

// PullResult describes a pull.
type PullResult struct {
	Plan *PullPlan
	// Aborted is set when the resolver aborted the pull.
	Aborted bool
	DryRun  bool
	// Applied holds the final per-provider outcome, with kept and failed
	// files marked.
	Applied  []ProviderPlan
	Backups  []backup.Metadata
	MCP      mcp.MergeResult
	Contexts int
}

// Written returns the number of files written.
func (r *PullResult) Written() int {
	n := 0
	for _, pp := range r.Applied {
		n += pp.Count(ActionCreate) + pp.Count(ActionUpdate)
	}
	return n
}

// Plan fetches the remote document and diffs it against the local files
// without writing anything.
func (s *Synchronizer) Plan(ctx context.Context, opts PullOptions) (*PullPlan, error) {
	const op = "pull"
	st, err := s.loadState(op)
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, opts, st)
}

func (s *Synchronizer) plan(ctx context.Context, opts PullOptions, st model.SyncState) (*PullPlan, error) {
	const op = "pull"

	containerID, err := s.resolveContainer(ctx, op, opts.ContainerID, st)
	if err != nil {
		return nil, err
	}
	if containerID == "" {
		return nil, &Error{Kind: KindTransport, Op: op, Err: ErrNoRemote}
	}

	remote, err := s.fetch(ctx, op, containerID)
	if err != nil {
		return nil, err
	}

	plan := &PullPlan{
		ContainerID:     containerID,
		RemoteVersion:   remote.payload.Version(),
		RemoteSource:    remote.v2.Meta.Source,
		RemoteUpdatedAt: remote.gist.UpdatedAt,
		MCPServers:      remote.v2.MCPServers,
		Contexts:        remote.v2.Contexts,
		configHash:      payload.ConfigHash(remote.payload),
	}

	registered, err := s.deps.Providers.Select(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[model.ProviderID]provider.Provider, len(registered))
	for _, p := range registered {
		byID[p.ID()] = p
	}
	wanted := make(map[model.ProviderID]bool, len(opts.Providers))
	for _, id := range opts.Providers {
		wanted[id] = true
	}

	var selected []provider.Provider
	for _, id := range remote.v2.ProviderIDs() {
		p, ok := byID[id]
		if !ok || (len(wanted) > 0 && !wanted[id]) {
			plan.Skipped = append(plan.Skipped, id)
			continue
		}
		selected = append(selected, p)
	}

	local, err := collect.CollectAll(ctx, provider.Collectors(selected), collect.Options{})
	if err != nil {
		return nil, err
	}

	installed := make(map[model.ProviderID]bool, len(selected))
	for _, p := range selected {
		installed[p.ID()] = p.IsInstalled(ctx)
	}

	for _, p := range selected {
		id := p.ID()
		pp := ProviderPlan{
			Provider:   id,
			ConfigRoot: p.ConfigRoot(),
			Installed:  installed[id],
			impl:       p,
		}
		localFiles := local.Snapshots[id].FileMap()
		for _, rf := range remote.v2.Providers[id].CollectedFiles() {
			change := FileChange{Path: rf.RelativePath, Remote: rf}
			lf, exists := localFiles[rf.RelativePath]
			switch {
			case !exists:
				change.Action = ActionCreate
			case lf.ContentHash == rf.ContentHash:
				change.Action = ActionUnchanged
				change.Local = &lf
			default:
				change.Action = ActionUpdate
				change.Local = &lf
				plan.Conflicts = append(plan.Conflicts, Conflict{
					Provider: id,
					Path:     rf.RelativePath,
					Local:    lf,
					Remote:   rf,
				})
			}
			pp.Changes = append(pp.Changes, change)
		}
		plan.Providers = append(plan.Providers, pp)
	}

	sort.Slice(plan.Conflicts, func(i, j int) bool {
		return plan.Conflicts[i].Key() < plan.Conflicts[j].Key()
	})
	return plan, nil
}

// Pull applies the remote document locally. Differing local files are only
// overwritten after the strategy or resolver allows it, and nothing is
// written before that decision.
func (s *Synchronizer) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	const op = "pull"
	defer logging.Timer(op)()

	if !opts.strategy().IsValid() {
		return nil, fmt.Errorf("unknown pull strategy %q", opts.Strategy)
	}

	unlock, err := s.lock(ctx, op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.loadState(op)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, opts, st)
	if err != nil {
		return nil, err
	}
	result := &PullResult{Plan: plan, DryRun: opts.DryRun}

	resolution := AcceptRemote()
	if len(plan.Conflicts) > 0 {
		switch opts.strategy() {
		case StrategyOverwrite:
		case StrategySkip:
			resolution = KeepAllLocal(plan.Conflicts)
		default:
			// A dry run previews the remote side of every conflict.
			if opts.DryRun {
				break
			}
			if opts.Resolve == nil {
				return result, &Error{
					Kind:        KindConflict,
					Op:          op,
					ContainerID: plan.ContainerID,
					Err:         fmt.Errorf("%w: %d file(s)", ErrConflict, len(plan.Conflicts)),
				}
			}
			resolution, err = opts.Resolve(ctx, plan.Conflicts)
			if err != nil {
				return result, err
			}
			if resolution.Abort {
				result.Aborted = true
				return result, nil
			}
		}
	}

	result.Applied = resolvePlan(plan, resolution)
	if opts.DryRun {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := s.backupOverwrites(ctx, result); err != nil {
		return result, storageError(op, plan.ContainerID, err)
	}

	var failed error
	for i := range result.Applied {
		if err := s.applyProvider(ctx, &result.Applied[i]); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			failed = errors.Join(failed, err)
		}
	}

	if len(plan.MCPServers) > 0 && s.deps.MCP != nil {
		merged, err := s.deps.MCP.Merge(plan.MCPServers)
		if err != nil {
			return result, storageError(op, plan.ContainerID, fmt.Errorf("failed to merge MCP servers: %w", err))
		}
		result.MCP = merged
	}

	if plan.Contexts != nil && s.deps.Contexts != nil {
		if err := s.deps.Contexts.Save(plan.Contexts.Items); err != nil {
			return result, storageError(op, plan.ContainerID, fmt.Errorf("failed to save contexts: %w", err))
		}
	}
	items, err := s.loadContexts(op)
	if err != nil {
		return result, err
	}
	result.Contexts = len(items)

	if failed != nil {
		return result, storageError(op, plan.ContainerID, failed)
	}

	now := s.now()
	newState := model.SyncState{
		LastSyncTimestamp: &now,
		RemoteContainerID: plan.ContainerID,
		LastConfigHash:    plan.configHash,
		LastContextsHash:  contexts.Hash(items),
	}
	if err := s.deps.State.Save(newState); err != nil {
		return result, storageError(op, plan.ContainerID, err)
	}

	s.log.Info("pulled configs",
		logging.Container(plan.ContainerID),
		logging.Count(result.Written()),
	)
	return result, nil
}

// resolvePlan applies the resolution to a copy of the plan's providers.
func resolvePlan(plan *PullPlan, r Resolution) []ProviderPlan {
	out := make([]ProviderPlan, len(plan.Providers))
	for i, pp := range plan.Providers {
		cp := pp
		cp.Changes = make([]FileChange, len(pp.Changes))
		for j, c := range pp.Changes {
			if c.Action == ActionUpdate && r.Keeps(Conflict{Provider: pp.Provider, Path: c.Path}) {
				c.Action = ActionKeepLocal
			}
			cp.Changes[j] = c
		}
		out[i] = cp
	}
	return out
}

// backupOverwrites saves every local file about to be overwritten, before
// any provider is written.
func (s *Synchronizer) backupOverwrites(ctx context.Context, result *PullResult) error {
	if s.deps.Backups == nil {
		return nil
	}
	for _, pp := range result.Applied {
		var files []model.CollectedFile
		for _, c := range pp.Changes {
			if c.Action == ActionUpdate && c.Local != nil {
				files = append(files, *c.Local)
			}
		}
		if len(files) == 0 {
			continue
		}
		meta, err := s.deps.Backups.Create(ctx, backup.Options{
			Provider:    pp.Provider,
			ConfigRoot:  pp.ConfigRoot,
			Files:       files,
			Description: fmt.Sprintf("before pull from gist %s", result.Plan.ContainerID),
		})
		if err != nil {
			return fmt.Errorf("failed to back up %s: %w", pp.Provider, err)
		}
		if meta != nil {
			result.Backups = append(result.Backups, *meta)
		}
	}
	return nil
}

// applyProvider writes the created and updated files of pp and marks the
// files that failed.
func (s *Synchronizer) applyProvider(ctx context.Context, pp *ProviderPlan) error {
	var files []model.CollectedFile
	for _, c := range pp.Changes {
		if c.Action == ActionCreate || c.Action == ActionUpdate {
			files = append(files, c.Remote)
		}
	}
	if len(files) == 0 {
		return nil
	}

	res, err := pp.impl.Apply(ctx, files)
	for i := range pp.Changes {
		c := &pp.Changes[i]
		if ferr, ok := res.Failed[c.Path]; ok {
			c.Action = ActionFailed
			c.Err = ferr
			s.log.Warn("failed to write file",
				logging.Provider(string(pp.Provider)),
				logging.Path(c.Path),
				logging.Err(ferr),
			)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", pp.Provider, err)
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%s: %d file(s) could not be written", pp.Provider, len(res.Failed))
	}
	return nil
}
