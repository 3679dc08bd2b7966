package opencode

import (
	"context"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/util"
)

const sampleConfig = `{
  "$schema": "https://opencode.ai/config.json",
  "theme": "tokyonight",
  "plugin": ["opencode-notifier", "opencode-wakatime"],
  "mcp": {
    "fs": {"type": "local", "command": ["npx", "-y", "server-fs"], "environment": {"ROOT": "/tmp"}},
    "docs": {"type": "remote", "url": "https://docs.example.com/mcp", "enabled": false}
  }
}`

func TestDefaultRoot(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv(EnvConfigDir, "")
	if got := New("").ConfigRoot(); got != filepath.Join("/xdg", "opencode") {
		t.Errorf("ConfigRoot() = %q", got)
	}

	t.Setenv(EnvConfigDir, "/custom/opencode")
	p := New("")
	if p.ConfigRoot() != "/custom/opencode" || p.RootSource() != provider.SourceEnv {
		t.Errorf("env override not applied: %q (%s)", p.ConfigRoot(), p.RootSource())
	}
}

func TestCollect(t *testing.T) {
	root := util.CreateTempDir(t)
	util.WriteFile(t, filepath.Join(root, ConfigFile), sampleConfig)
	util.WriteFile(t, filepath.Join(root, "agent", "review.md"), "review")
	util.WriteFile(t, filepath.Join(root, "plugin", "notify.ts"), "export {}")
	util.WriteFile(t, filepath.Join(root, "plugin", "node_modules", "dep", "index.js"), "module")
	util.WriteFile(t, filepath.Join(root, "bun.lock"), "lock")

	snap, err := New(root).Collect(context.Background())
	util.AssertNoError(t, err)

	files := snap.FileMap()
	for _, want := range []string{"opencode.json", "agent/review.md", "plugin/notify.ts"} {
		if _, ok := files[want]; !ok {
			t.Errorf("expected %s to be collected", want)
		}
	}
	if len(files) != 3 {
		t.Errorf("expected 3 files, got %d", len(files))
	}
}

func TestMCPServers(t *testing.T) {
	root := util.CreateTempDir(t)
	path := filepath.Join(root, ConfigFile)
	util.WriteFile(t, path, sampleConfig)
	p := New(root)
	ctx := context.Background()

	servers, err := p.ListMCPServers(ctx)
	util.AssertNoError(t, err)
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	docs, fs := servers[0], servers[1]
	if docs.Name != "docs" || docs.Type != model.MCPHTTP || docs.Enabled {
		t.Errorf("docs = %+v", docs)
	}
	if fs.Command != "npx" || len(fs.Args) != 2 || fs.Env["ROOT"] != "/tmp" || !fs.Enabled {
		t.Errorf("fs = %+v", fs)
	}

	err = p.UpsertMCPServer(ctx, model.MCPServerConfig{Name: "git", Type: model.MCPStdio, Command: "uvx", Args: []string{"mcp-server-git"}, Enabled: true})
	util.AssertNoError(t, err)
	removed, err := p.RemoveMCPServer(ctx, "docs")
	util.AssertNoError(t, err)
	if !removed {
		t.Error("expected docs to be removed")
	}

	var doc map[string]any
	util.AssertNoError(t, json.Unmarshal([]byte(util.ReadFile(t, path)), &doc))
	if doc["theme"] != "tokyonight" {
		t.Error("unrelated settings must be preserved")
	}
	mcp := doc["mcp"].(map[string]any)
	git := mcp["git"].(map[string]any)
	if git["type"] != "local" {
		t.Errorf("git type = %v, want local", git["type"])
	}
	if cmd := git["command"].([]any); len(cmd) != 2 || cmd[0] != "uvx" {
		t.Errorf("git command = %v", cmd)
	}
	if _, ok := mcp["docs"]; ok {
		t.Error("docs should be gone")
	}
}

func TestListPlugins(t *testing.T) {
	root := util.CreateTempDir(t)
	util.WriteFile(t, filepath.Join(root, ConfigFile), sampleConfig)

	lister, ok := New(root).PluginLister()
	if !ok {
		t.Fatal("opencode should expose plugins")
	}
	plugins, err := lister.ListPlugins(context.Background())
	util.AssertNoError(t, err)
	if len(plugins) != 2 || plugins[0] != "opencode-notifier" {
		t.Errorf("plugins = %v", plugins)
	}
}

func TestListPlugins_NoConfig(t *testing.T) {
	plugins, err := New(util.CreateTempDir(t)).ListPlugins(context.Background())
	util.AssertNoError(t, err)
	if len(plugins) != 0 {
		t.Errorf("expected no plugins, got %v", plugins)
	}
}

func TestUpsertMCPServer_KeepsUnknownFields(t *testing.T) {
	root := util.CreateTempDir(t)
	path := filepath.Join(root, ConfigFile)
	util.WriteFile(t, path, `{"mcp":{"sentry":{"type":"remote","url":"https://mcp.sentry.dev/mcp","oauth":{"clientId":"abc"},"timeout":10000}}}`)
	p := New(root)
	ctx := context.Background()

	util.AssertNoError(t, p.UpsertMCPServer(ctx, model.MCPServerConfig{Name: "git", Type: model.MCPStdio, Command: "uvx", Enabled: true}))
	util.AssertNoError(t, p.UpsertMCPServer(ctx, model.MCPServerConfig{Name: "sentry", Type: model.MCPHTTP, URL: "https://mcp.sentry.dev/v2", Enabled: false}))

	var doc struct {
		MCP map[string]map[string]any `json:"mcp"`
	}
	util.AssertNoError(t, json.Unmarshal([]byte(util.ReadFile(t, path)), &doc))
	sentry := doc.MCP["sentry"]
	if sentry["timeout"] != float64(10000) {
		t.Errorf("sentry timeout = %v", sentry["timeout"])
	}
	if oauth, ok := sentry["oauth"].(map[string]any); !ok || oauth["clientId"] != "abc" {
		t.Errorf("sentry oauth = %v", sentry["oauth"])
	}
	if sentry["url"] != "https://mcp.sentry.dev/v2" || sentry["enabled"] != false {
		t.Errorf("sentry = %v", sentry)
	}
	if _, ok := doc.MCP["git"]; !ok {
		t.Error("expected git to be added")
	}
}
