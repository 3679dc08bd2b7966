package collect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		util.WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
}

func paths(snap model.ProviderSnapshot) []string {
	out := make([]string, len(snap.Files))
	for i, f := range snap.Files {
		out[i] = f.RelativePath
	}
	return out
}

func opencodeSpec(root string) Spec {
	return Spec{
		Provider:  model.OpenCode,
		Root:      root,
		Patterns:  []string{"opencode.json", "AGENTS.md", "agent/**/*.md", "plugin/**/*.{js,ts}", "skill/**/*"},
		Blocklist: []string{"**/node_modules/**", "**/.git/**", "**/*.lock", "**/*.log"},
	}
}

func TestCollect_MissingRoot(t *testing.T) {
	root := filepath.Join(util.CreateTempDir(t), "missing")

	snap, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)

	if !snap.IsEmpty() {
		t.Errorf("expected empty snapshot, got %v", paths(snap))
	}
	if snap.CombinedHash != "" {
		t.Errorf("CombinedHash = %q, want empty", snap.CombinedHash)
	}
	if snap.ProviderID != model.OpenCode {
		t.Errorf("ProviderID = %q", snap.ProviderID)
	}
}

func TestCollect_PatternsAndBlocklist(t *testing.T) {
	root := util.CreateTempDir(t)
	writeTree(t, root, map[string]string{
		"opencode.json":              `{"theme":"dark"}`,
		"AGENTS.md":                  "# agents",
		"agent/review.md":            "review",
		"agent/nested/deep.md":       "deep",
		"agent/notes.txt":            "not markdown",
		"plugin/tool.ts":             "export {}",
		"plugin/tool.py":             "print()",
		"skill/pdf/SKILL.md":         "pdf",
		"skill/pdf/.git/config":      "git",
		"skill/pdf/bun.lock":         "lock",
		"node_modules/x/index.js":    "module",
		"plugin/node_modules/y/a.js": "nested module",
		"debug.log":                  "log",
		"unrelated.md":               "unrelated",
	})

	snap, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)

	want := []string{
		"AGENTS.md",
		"agent/nested/deep.md",
		"agent/review.md",
		"opencode.json",
		"plugin/tool.ts",
		"skill/pdf/SKILL.md",
	}
	got := paths(snap)
	if len(got) != len(want) {
		t.Fatalf("collected %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if snap.ConfigRoot != root {
		t.Errorf("ConfigRoot = %q, want %q", snap.ConfigRoot, root)
	}
}

func TestCollect_BlocklistWinsOverPattern(t *testing.T) {
	root := util.CreateTempDir(t)
	writeTree(t, root, map[string]string{
		"settings.json":       "{}",
		"settings.local.json": "{}",
		".credentials.json":   `{"token":"x"}`,
	})

	snap, err := Collect(context.Background(), Spec{
		Provider:  model.ClaudeCode,
		Root:      root,
		Patterns:  []string{"*.json", ".credentials.json"},
		Blocklist: []string{".credentials.json", "settings.local.json"},
	})
	util.AssertNoError(t, err)

	got := paths(snap)
	if len(got) != 1 || got[0] != "settings.json" {
		t.Errorf("collected %v, want [settings.json]", got)
	}
}

func TestCollect_Deterministic(t *testing.T) {
	root := util.CreateTempDir(t)
	writeTree(t, root, map[string]string{
		"AGENTS.md":       "a",
		"agent/b.md":      "b",
		"agent/a.md":      "a",
		"skill/x/file.sh": "#!/bin/sh",
	})

	first, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)
	second, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)

	if first.CombinedHash == "" {
		t.Fatal("expected non-empty combined hash")
	}
	if first.CombinedHash != second.CombinedHash {
		t.Errorf("hash changed between identical collections: %s vs %s", first.CombinedHash, second.CombinedHash)
	}

	util.WriteFile(t, filepath.Join(root, "agent", "a.md"), "changed")
	third, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)
	if third.CombinedHash == first.CombinedHash {
		t.Error("hash should change when file content changes")
	}
}

func TestCollect_FollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	shared := util.CreateTempDir(t)
	writeTree(t, shared, map[string]string{"pdf/SKILL.md": "shared skill"})

	root := util.CreateTempDir(t)
	if err := os.Symlink(shared, filepath.Join(root, "skill")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	// A cycle back to the root must not hang the walk.
	if err := os.Symlink(root, filepath.Join(shared, "loop")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	writeTree(t, shared, map[string]string{"AGENTS-source.md": "linked agents"})
	if err := os.Symlink(filepath.Join(shared, "AGENTS-source.md"), filepath.Join(root, "AGENTS.md")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	snap, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)

	files := snap.FileMap()
	if f, ok := files["skill/pdf/SKILL.md"]; !ok || f.Content != "shared skill" {
		t.Errorf("expected symlinked skill to be collected, got %v", paths(snap))
	}
	if f, ok := files["AGENTS.md"]; !ok || f.Content != "linked agents" {
		t.Errorf("expected symlinked AGENTS.md to be collected, got %v", paths(snap))
	}
}

func TestCollect_SameDirectoryTwoPaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	root := util.CreateTempDir(t)
	writeTree(t, root, map[string]string{"agent/review.md": "review"})
	util.AssertNoError(t, os.MkdirAll(filepath.Join(root, "skill"), 0o750))
	if err := os.Symlink(filepath.Join(root, "agent"), filepath.Join(root, "skill", "shared")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	snap, err := Collect(context.Background(), opencodeSpec(root))
	util.AssertNoError(t, err)

	got := paths(snap)
	want := []string{"agent/review.md", "skill/shared/review.md"}
	if len(got) != len(want) {
		t.Fatalf("collected %v, want %v", got, want)
	}
	for i := range want {
		util.AssertEqual(t, got[i], want[i])
	}
}

func TestCollect_InvalidPatternIgnored(t *testing.T) {
	root := util.CreateTempDir(t)
	writeTree(t, root, map[string]string{"AGENTS.md": "a"})

	snap, err := Collect(context.Background(), Spec{
		Provider: model.Codex,
		Root:     root,
		Patterns: []string{"[", "AGENTS.md"},
	})
	util.AssertNoError(t, err)
	if len(snap.Files) != 1 {
		t.Errorf("expected the valid pattern to still match, got %v", paths(snap))
	}
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, opencodeSpec(util.CreateTempDir(t)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	root := util.CreateTempDir(t)
	path := filepath.Join(root, "a.md")
	util.WriteFile(t, path, "hello")

	f, err := readFile(path, "a.md")
	util.AssertNoError(t, err)
	util.AssertEqual(t, f.Content, "hello")
	util.AssertEqual(t, f.ContentHash, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")

	if _, err := readFile(filepath.Join(root, "missing.md"), "missing.md"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApply_WritesAdditively(t *testing.T) {
	root := filepath.Join(util.CreateTempDir(t), "cfg")
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatal(err)
	}
	util.WriteFile(t, filepath.Join(root, "local-only.md"), "keep me")
	util.WriteFile(t, filepath.Join(root, "AGENTS.md"), "old")

	result, err := Apply(context.Background(), root, []model.CollectedFile{
		model.NewCollectedFile("AGENTS.md", "new"),
		model.NewCollectedFile("agent/deep/review.md", "review"),
	})
	util.AssertNoError(t, err)

	if len(result.Written) != 2 || len(result.Failed) != 0 {
		t.Errorf("result = %+v", result)
	}
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(root, "AGENTS.md")), "new")
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(root, "agent", "deep", "review.md")), "review")
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(root, "local-only.md")), "keep me")
}

func TestApply_CreatesRoot(t *testing.T) {
	root := filepath.Join(util.CreateTempDir(t), "new", "root")

	_, err := Apply(context.Background(), root, []model.CollectedFile{model.NewCollectedFile("config.toml", "model = \"o3\"")})
	util.AssertNoError(t, err)
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(root, "config.toml")), "model = \"o3\"")
}

func TestApply_PreservesMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	root := util.CreateTempDir(t)
	path := filepath.Join(root, "run.sh")
	util.WriteFile(t, path, "old")
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Apply(context.Background(), root, []model.CollectedFile{model.NewCollectedFile("run.sh", "new")})
	util.AssertNoError(t, err)

	info, err := os.Stat(path)
	util.AssertNoError(t, err)
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestApply_RejectsUnsafePaths(t *testing.T) {
	parent := util.CreateTempDir(t)
	root := filepath.Join(parent, "root")

	result, err := Apply(context.Background(), root, []model.CollectedFile{
		model.NewCollectedFile("../escape.md", "x"),
		model.NewCollectedFile("/etc/passwd", "x"),
		model.NewCollectedFile("ok.md", "fine"),
	})
	util.AssertNoError(t, err)

	if len(result.Failed) != 2 {
		t.Errorf("expected 2 rejected paths, got %v", result.Failed)
	}
	for path, ferr := range result.Failed {
		if !errors.Is(ferr, ErrUnsafePath) {
			t.Errorf("%s: expected ErrUnsafePath, got %v", path, ferr)
		}
	}
	if util.PathExists(filepath.Join(parent, "escape.md")) {
		t.Error("file escaped the config root")
	}
}

func TestApply_AllFailed(t *testing.T) {
	root := util.CreateTempDir(t)
	_, err := Apply(context.Background(), root, []model.CollectedFile{model.NewCollectedFile("../x", "x")})
	if !errors.Is(err, ErrUnsafePath) {
		t.Errorf("expected joined ErrUnsafePath, got %v", err)
	}
}

func TestApply_Empty(t *testing.T) {
	root := filepath.Join(util.CreateTempDir(t), "untouched")
	result, err := Apply(context.Background(), root, nil)
	util.AssertNoError(t, err)
	if len(result.Written) != 0 {
		t.Errorf("expected nothing written, got %v", result.Written)
	}
	if util.PathExists(root) {
		t.Error("empty apply should not create the root")
	}
}

func TestSafeJoin(t *testing.T) {
	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"a.md", false},
		{"dir/sub/a.md", false},
		{"..hidden/a.md", false},
		{"", true},
		{"..", true},
		{"a/../../b", true},
		{"/abs", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			_, err := SafeJoin("/root", tt.rel)
			if (err != nil) != tt.wantErr {
				t.Errorf("SafeJoin(%q) error = %v, wantErr %v", tt.rel, err, tt.wantErr)
			}
		})
	}
}

type fakeCollector struct {
	id   model.ProviderID
	snap model.ProviderSnapshot
	err  error
}

func (f fakeCollector) ID() model.ProviderID { return f.id }

func (f fakeCollector) Collect(context.Context) (model.ProviderSnapshot, error) {
	return f.snap, f.err
}

func TestCollectAll(t *testing.T) {
	ocSnap := model.NewProviderSnapshot(model.OpenCode, "/oc", []model.CollectedFile{model.NewCollectedFile("AGENTS.md", "a")})
	ccSnap := model.NewProviderSnapshot(model.ClaudeCode, "/cc", []model.CollectedFile{model.NewCollectedFile("CLAUDE.md", "c")})

	var seen atomic.Int32
	forward := []Collector{
		fakeCollector{id: model.OpenCode, snap: ocSnap},
		fakeCollector{id: model.ClaudeCode, snap: ccSnap},
		fakeCollector{id: model.Cursor, err: errors.New("boom")},
	}
	multi, err := CollectAll(context.Background(), forward, Options{OnCollected: func(model.ProviderSnapshot) { seen.Add(1) }})
	util.AssertNoError(t, err)

	if len(multi.Snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(multi.Snapshots))
	}
	if !multi.Snapshots[model.Cursor].IsEmpty() {
		t.Error("failing collector should contribute an empty snapshot")
	}
	if multi.FileCount() != 2 {
		t.Errorf("FileCount = %d, want 2", multi.FileCount())
	}
	if seen.Load() != 3 {
		t.Errorf("OnCollected called %d times, want 3", seen.Load())
	}

	reversed := []Collector{forward[2], forward[1], forward[0]}
	again, err := CollectAll(context.Background(), reversed, Options{})
	util.AssertNoError(t, err)
	if again.CombinedHash != multi.CombinedHash {
		t.Error("combined hash must not depend on provider order")
	}
}

func TestCollectAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CollectAll(ctx, []Collector{fakeCollector{id: model.Codex, err: context.Canceled}}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
