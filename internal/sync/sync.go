package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/envelope"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/mcp"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/payload"
	"github.com/klauern/agentsync/internal/provider"
)

// Providers selects the providers to operate on. *provider.Registry
// implements it.
type Providers interface {
	Select(ctx context.Context, ids []model.ProviderID, installedOnly bool) ([]provider.Provider, error)
}

// StateStore persists SyncState and serializes concurrent runs.
type StateStore interface {
	Load() (model.SyncState, error)
	Save(model.SyncState) error
	Lock(ctx context.Context) (func(), error)
}

// ContextStore holds the session contexts carried in the payload.
type ContextStore interface {
	Load() ([]model.SessionContext, error)
	Save([]model.SessionContext) error
}

// MCPStore is the shared MCP server store.
type MCPStore interface {
	List() ([]model.MCPServerConfig, error)
	Merge(incoming []model.MCPServerConfig) (mcp.MergeResult, error)
}

// BackupStore keeps copies of local files before a pull overwrites them.
type BackupStore interface {
	Create(ctx context.Context, opts backup.Options) (*backup.Metadata, error)
}

// Deps are the collaborators of a Synchronizer. MCP and Backups are
// optional.
type Deps struct {
	Providers Providers
	Remote    gist.Remote
	State     StateStore
	Contexts  ContextStore
	MCP       MCPStore
	Backups   BackupStore

	Passphrase string
	// ContainerID is the configured gist, used when SyncState has none.
	ContainerID string
	// Source identifies this device in meta.source.
	Source string
	Now    func() time.Time
	Logger *slog.Logger
}

// Synchronizer runs push, pull and status against one remote container.
type Synchronizer struct {
	deps Deps
	log  *slog.Logger
}

// New creates a Synchronizer.
func New(deps Deps) *Synchronizer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Synchronizer{deps: deps, log: log}
}

func (s *Synchronizer) now() time.Time {
	return s.deps.Now().UTC()
}

// lock takes the exclusive state lock for op.
func (s *Synchronizer) lock(ctx context.Context, op string) (func(), error) {
	unlock, err := s.deps.State.Lock(ctx)
	if err != nil {
		return nil, storageError(op, "", fmt.Errorf("failed to acquire state lock: %w", err))
	}
	return unlock, nil
}

func (s *Synchronizer) loadState(op string) (model.SyncState, error) {
	st, err := s.deps.State.Load()
	if err != nil {
		return model.SyncState{}, storageError(op, "", err)
	}
	return st, nil
}

func (s *Synchronizer) loadContexts(op string) ([]model.SessionContext, error) {
	if s.deps.Contexts == nil {
		return nil, nil
	}
	items, err := s.deps.Contexts.Load()
	if err != nil {
		return nil, storageError(op, "", fmt.Errorf("failed to load contexts: %w", err))
	}
	return items, nil
}

// knownContainer returns the container from, in order, the explicit
// override, the recorded state and the configured default.
func (s *Synchronizer) knownContainer(override string, st model.SyncState) string {
	switch {
	case override != "":
		return override
	case st.RemoteContainerID != "":
		return st.RemoteContainerID
	default:
		return s.deps.ContainerID
	}
}

// resolveContainer falls back to searching the account for a sync gist when
// no container is known. It returns "" when none exists.
func (s *Synchronizer) resolveContainer(ctx context.Context, op, override string, st model.SyncState) (string, error) {
	if id := s.knownContainer(override, st); id != "" {
		return id, nil
	}
	gists, err := s.deps.Remote.List(ctx)
	if err != nil {
		return "", Classify(op, "", err)
	}
	if g, ok := gist.FindSyncGist(gists); ok {
		s.log.Info("found existing sync gist", logging.Container(g.ID))
		return g.ID, nil
	}
	return "", nil
}

// remoteDocument is a fetched and decrypted remote payload.
type remoteDocument struct {
	gist    *gist.Gist
	payload payload.Payload
	v2      *payload.V2
}

// fetch downloads, decrypts and parses the document in containerID.
func (s *Synchronizer) fetch(ctx context.Context, op, containerID string) (*remoteDocument, error) {
	g, err := s.deps.Remote.Get(ctx, containerID)
	if err != nil {
		return nil, Classify(op, containerID, err)
	}
	content, err := gist.Document(g)
	if err != nil {
		return nil, Classify(op, containerID, err)
	}

	env, err := envelope.Unmarshal([]byte(content))
	if err != nil {
		return nil, Classify(op, containerID, err)
	}
	plaintext, err := envelope.Decrypt(env, s.deps.Passphrase)
	if err != nil {
		return nil, Classify(op, containerID, err)
	}
	p, err := payload.Parse(plaintext)
	if err != nil {
		if !errors.Is(err, payload.ErrUnsupportedVersion) {
			err = fmt.Errorf("%w: %v", payload.ErrUnsupportedVersion, err)
		}
		return nil, Classify(op, containerID, err)
	}
	v2, err := payload.Normalize(p)
	if err != nil {
		return nil, Classify(op, containerID, err)
	}
	return &remoteDocument{gist: g, payload: p, v2: v2}, nil
}
