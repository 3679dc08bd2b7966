package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/klauern/agentsync/internal/config"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/util"
)

const testPassphrase = "correct horse battery staple"

// fakeRemote is an in-memory gist API.
type fakeRemote struct {
	mu     gosync.Mutex
	gists  map[string]*gist.Gist
	nextID int
	now    time.Time
	tokens []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		gists: make(map[string]*gist.Gist),
		now:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRemote) Create(_ context.Context, description string, files map[string]string) (*gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.now = r.now.Add(time.Minute)
	g := &gist.Gist{
		ID:          fmt.Sprintf("gist%d", r.nextID),
		Description: description,
		HTMLURL:     fmt.Sprintf("https://gist.github.com/gist%d", r.nextID),
		Files:       make(map[string]gist.File),
		CreatedAt:   r.now,
		UpdatedAt:   r.now,
	}
	for name, content := range files {
		g.Files[name] = gist.File{Filename: name, Content: content}
	}
	r.gists[g.ID] = g
	cp := *g
	return &cp, nil
}

func (r *fakeRemote) Get(_ context.Context, id string) (*gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gists[id]
	if !ok {
		return nil, &gist.APIError{Op: "get", StatusCode: 404}
	}
	cp := *g
	return &cp, nil
}

func (r *fakeRemote) Update(_ context.Context, id, description string, files map[string]string) (*gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gists[id]
	if !ok {
		return nil, &gist.APIError{Op: "update", StatusCode: 404}
	}
	r.now = r.now.Add(time.Minute)
	g.Description = description
	for name, content := range files {
		g.Files[name] = gist.File{Filename: name, Content: content}
	}
	g.UpdatedAt = r.now
	cp := *g
	return &cp, nil
}

func (r *fakeRemote) List(context.Context) ([]gist.Gist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]gist.Gist, 0, len(r.gists))
	for _, g := range r.gists {
		out = append(out, *g)
	}
	return out, nil
}

func (r *fakeRemote) ValidateToken(context.Context) (*gist.TokenInfo, error) {
	return &gist.TokenInfo{Login: "octocat", Scopes: []string{"gist"}}, nil
}

func (r *fakeRemote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gists)
}

// testEnv is one isolated machine: config dir, provider roots and a shared
// fake remote.
type testEnv struct {
	configDir  string
	ocRoot     string
	cursorRoot string
	remote     *fakeRemote
}

// setupEnv points every agentsync and provider path at a temp dir and
// installs remote as the gist backend.
func setupEnv(t *testing.T, remote *fakeRemote) *testEnv {
	t.Helper()
	base := util.CreateTempDir(t)
	te := &testEnv{
		configDir:  filepath.Join(base, "agentsync"),
		ocRoot:     filepath.Join(base, "opencode"),
		cursorRoot: filepath.Join(base, "cursor"),
		remote:     remote,
	}
	t.Setenv("AGENTSYNC_CONFIG_DIR", te.configDir)
	t.Setenv("OPENCODE_CONFIG_DIR", te.ocRoot)
	t.Setenv("CURSOR_CONFIG_DIR", te.cursorRoot)
	t.Setenv("CLAUDE_CONFIG_DIR", filepath.Join(base, "claude"))
	t.Setenv("CODEX_HOME", filepath.Join(base, "codex"))
	t.Setenv("AGENTSYNC_TOKEN", "ghp_test")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("AGENTSYNC_PASSPHRASE", testPassphrase)
	t.Setenv("AGENTSYNC_GIST_ID", "")
	t.Setenv("AGENTSYNC_SYNC_PROVIDERS", "")

	oldRemote, oldTerminal, oldStdin := newRemote, stdinIsTerminal, stdin
	newRemote = func(_ *config.Config, token string) gist.Remote {
		remote.mu.Lock()
		remote.tokens = append(remote.tokens, token)
		remote.mu.Unlock()
		return remote
	}
	stdinIsTerminal = func() bool { return false }
	stdin = strings.NewReader("")
	t.Cleanup(func() {
		newRemote, stdinIsTerminal, stdin = oldRemote, oldTerminal, oldStdin
	})
	return te
}

func (te *testEnv) write(t *testing.T, root, rel, content string) {
	t.Helper()
	util.WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
}

func (te *testEnv) read(t *testing.T, root, rel string) string {
	t.Helper()
	return util.ReadFile(t, filepath.Join(root, filepath.FromSlash(rel)))
}

// run executes the CLI with colors disabled and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"agentsync", "--no-color"}, args...)
	var err error
	out := captureStdout(t, func() {
		err = Run(context.Background(), full)
	})
	return out, err
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("failed to close stdout pipe writer: %v", closeErr)
	}
	os.Stdout = oldStdout
	return <-done
}

func assertContains(t *testing.T, output string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(output, w) {
			t.Errorf("output missing %q:\n%s", w, output)
		}
	}
}
