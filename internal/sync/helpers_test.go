package sync

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/contexts"
	"github.com/klauern/agentsync/internal/envelope"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/mcp"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/payload"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/provider/cursor"
	"github.com/klauern/agentsync/internal/provider/opencode"
	"github.com/klauern/agentsync/internal/state"
	"github.com/klauern/agentsync/internal/util"
)

const testPassphrase = "correct horse battery staple"

// memRemote is an in-memory gist.Remote that counts calls.
type memRemote struct {
	mu     gosync.Mutex
	gists  map[string]*gist.Gist
	calls  map[string]int
	nextID int
	now    time.Time
	getErr error
}

func newMemRemote() *memRemote {
	return &memRemote{
		gists: make(map[string]*gist.Gist),
		calls: make(map[string]int),
		now:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *memRemote) tick() time.Time {
	r.now = r.now.Add(time.Minute)
	return r.now
}

func (r *memRemote) Create(_ context.Context, description string, files map[string]string) (*gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["create"]++
	r.nextID++
	now := r.tick()
	g := &gist.Gist{
		ID:          fmt.Sprintf("g%d", r.nextID),
		Description: description,
		HTMLURL:     fmt.Sprintf("https://gist.github.com/g%d", r.nextID),
		Files:       make(map[string]gist.File),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for name, content := range files {
		g.Files[name] = gist.File{Filename: name, Content: content}
	}
	r.gists[g.ID] = g
	cp := *g
	return &cp, nil
}

func (r *memRemote) Get(_ context.Context, id string) (*gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get"]++
	if r.getErr != nil {
		return nil, r.getErr
	}
	g, ok := r.gists[id]
	if !ok {
		return nil, &gist.APIError{Op: "get", StatusCode: 404}
	}
	cp := *g
	return &cp, nil
}

func (r *memRemote) Update(_ context.Context, id, description string, files map[string]string) (*gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["update"]++
	g, ok := r.gists[id]
	if !ok {
		return nil, &gist.APIError{Op: "update", StatusCode: 404}
	}
	g.Description = description
	for name, content := range files {
		g.Files[name] = gist.File{Filename: name, Content: content}
	}
	g.UpdatedAt = r.tick()
	cp := *g
	return &cp, nil
}

func (r *memRemote) List(context.Context) ([]gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["list"]++
	out := make([]gist.Gist, 0, len(r.gists))
	for _, g := range r.gists {
		out = append(out, *g)
	}
	return out, nil
}

func (r *memRemote) ValidateToken(context.Context) (*gist.TokenInfo, error) {
	return &gist.TokenInfo{Login: "tester", Scopes: []string{"gist"}}, nil
}

func (r *memRemote) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *memRemote) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]int)
}

// put stores a raw document, as another device (or an older version)
// would have written it.
func (r *memRemote) put(t *testing.T, p payload.Payload, passphrase string) string {
	t.Helper()
	data, err := payload.Marshal(p)
	util.AssertNoError(t, err)
	return r.putRaw(t, data, passphrase)
}

func (r *memRemote) putRaw(t *testing.T, data []byte, passphrase string) string {
	t.Helper()
	env, err := envelope.Encrypt(data, passphrase)
	util.AssertNoError(t, err)
	doc, err := envelope.Marshal(env)
	util.AssertNoError(t, err)
	g, err := r.Create(context.Background(), gist.Description, map[string]string{gist.FileName: string(doc)})
	util.AssertNoError(t, err)
	r.reset()
	return g.ID
}

// device is one machine: its own provider roots and local stores.
type device struct {
	home       string
	ocRoot     string
	cursorRoot string
	registry   *provider.Registry
	state      *state.Store
	contexts   *contexts.Store
	mcp        *mcp.Store
	backups    *backup.Store
	remote     *memRemote
}

func newDevice(t *testing.T, remote *memRemote) *device {
	t.Helper()
	home := util.CreateTempDir(t)
	d := &device{
		home:       home,
		ocRoot:     filepath.Join(home, "opencode"),
		cursorRoot: filepath.Join(home, "cursor"),
		state:      state.NewStore(filepath.Join(home, "agentsync", "state.json")),
		contexts:   contexts.NewStore(filepath.Join(home, "agentsync", "contexts.json"), contexts.DefaultMaxItems),
		mcp:        mcp.NewStore(filepath.Join(home, "agentsync", "mcp-servers.json")),
		backups:    backup.NewStore(filepath.Join(home, "agentsync", "backups"), 5),
		remote:     remote,
	}
	d.registry = provider.NewRegistry()
	d.registry.Register(opencode.New(d.ocRoot))
	d.registry.Register(cursor.New(d.cursorRoot))
	return d
}

func (d *device) syncer(passphrase string) *Synchronizer {
	return New(Deps{
		Providers:  d.registry,
		Remote:     d.remote,
		State:      d.state,
		Contexts:   d.contexts,
		MCP:        d.mcp,
		Backups:    d.backups,
		Passphrase: passphrase,
		Source:     "test-device",
	})
}

func (d *device) write(t *testing.T, root, rel, content string) {
	t.Helper()
	util.WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
}

func (d *device) read(t *testing.T, root, rel string) string {
	t.Helper()
	return util.ReadFile(t, filepath.Join(root, filepath.FromSlash(rel)))
}

func (d *device) loadState(t *testing.T) model.SyncState {
	t.Helper()
	st, err := d.state.Load()
	util.AssertNoError(t, err)
	return st
}

// remoteDoc decrypts the current document of gist id.
func remoteDoc(t *testing.T, r *memRemote, id string) *payload.V2 {
	t.Helper()
	r.mu.Lock()
	g := r.gists[id]
	r.mu.Unlock()
	if g == nil {
		t.Fatalf("gist %s does not exist", id)
	}
	env, err := envelope.Unmarshal([]byte(g.Files[gist.FileName].Content))
	util.AssertNoError(t, err)
	data, err := envelope.Decrypt(env, testPassphrase)
	util.AssertNoError(t, err)
	p, err := payload.Parse(data)
	util.AssertNoError(t, err)
	v2, err := payload.Normalize(p)
	util.AssertNoError(t, err)
	return v2
}
