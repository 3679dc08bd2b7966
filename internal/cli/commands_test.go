package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/config"
	"github.com/klauern/agentsync/internal/credentials"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/sync"
	"github.com/klauern/agentsync/internal/util"
)

func TestPushPullRoundTrip(t *testing.T) {
	remote := newFakeRemote()

	a := setupEnv(t, remote)
	a.write(t, a.ocRoot, "AGENTS.md", "be terse\n")
	a.write(t, a.cursorRoot, "rules/style.mdc", "tabs\n")

	out, err := run(t, "push")
	util.AssertNoError(t, err)
	assertContains(t, out, "Created gist gist1", "opencode", "cursor")
	util.AssertEqual(t, remote.count(), 1)
	util.AssertEqual(t, remote.tokens[0], "ghp_test")

	b := setupEnv(t, remote)
	out, err = run(t, "pull")
	util.AssertNoError(t, err)
	assertContains(t, out, "Remote gist1", "Wrote 2 file(s)")
	util.AssertEqual(t, b.read(t, b.ocRoot, "AGENTS.md"), "be terse\n")
	util.AssertEqual(t, b.read(t, b.cursorRoot, "rules/style.mdc"), "tabs\n")
}

func TestPush_NoChanges(t *testing.T) {
	te := setupEnv(t, newFakeRemote())
	te.write(t, te.ocRoot, "AGENTS.md", "same")

	_, err := run(t, "push")
	util.AssertNoError(t, err)

	out, err := run(t, "push")
	util.AssertNoError(t, err)
	assertContains(t, out, "nothing pushed")

	out, err = run(t, "push", "--force")
	util.AssertNoError(t, err)
	assertContains(t, out, "Updated gist gist1")
}

func TestPush_SecretScan(t *testing.T) {
	remote := newFakeRemote()
	te := setupEnv(t, remote)
	te.write(t, te.ocRoot, "AGENTS.md", "key: sk-ant-REDACTED\n")

	out, err := run(t, "push")
	if !errors.Is(err, errSecretsFound) {
		t.Fatalf("push error = %v, want errSecretsFound", err)
	}
	assertContains(t, out, "Secret scan found", "opencode/AGENTS.md:1: Anthropic API key detected")
	util.AssertEqual(t, remote.count(), 0)

	_, err = run(t, "push", "--yes")
	util.AssertNoError(t, err)
	util.AssertEqual(t, remote.count(), 1)
}

func TestPush_SecretScanDisabled(t *testing.T) {
	remote := newFakeRemote()
	te := setupEnv(t, remote)
	t.Setenv("AGENTSYNC_SYNC_SCAN_SECRETS", "false")
	te.write(t, te.ocRoot, "AGENTS.md", "key: sk-ant-REDACTED\n")

	out, err := run(t, "push")
	util.AssertNoError(t, err)
	if strings.Contains(out, "Secret scan") {
		t.Errorf("scan output shown with scanning disabled:\n%s", out)
	}
}

func TestPush_MissingCredentials(t *testing.T) {
	te := setupEnv(t, newFakeRemote())
	te.write(t, te.ocRoot, "AGENTS.md", "x")
	t.Setenv("AGENTSYNC_TOKEN", "")

	_, err := run(t, "push")
	if !errors.Is(err, credentials.ErrMissingToken) {
		t.Fatalf("push error = %v, want ErrMissingToken", err)
	}
	if !strings.Contains(err.Error(), "agentsync init") {
		t.Errorf("error should point at init: %v", err)
	}
}

// pushedThenEdited pushes "remote" from one device and returns a second
// device whose AGENTS.md says "local".
func pushedThenEdited(t *testing.T) *testEnv {
	t.Helper()
	remote := newFakeRemote()
	a := setupEnv(t, remote)
	a.write(t, a.ocRoot, "AGENTS.md", "remote\n")
	if _, err := run(t, "push"); err != nil {
		t.Fatalf("push: %v", err)
	}

	b := setupEnv(t, remote)
	b.write(t, b.ocRoot, "AGENTS.md", "local\n")
	return b
}

func TestPull_ConflictNeedsAnAnswer(t *testing.T) {
	te := pushedThenEdited(t)

	_, err := run(t, "pull")
	if sync.KindOf(err) != sync.KindConflict {
		t.Fatalf("pull error = %v, want a conflict error", err)
	}
	util.AssertEqual(t, te.read(t, te.ocRoot, "AGENTS.md"), "local\n")

	out, err := run(t, "pull", "--yes")
	util.AssertNoError(t, err)
	assertContains(t, out, "1 update", "backed up 1 file(s)")
	util.AssertEqual(t, te.read(t, te.ocRoot, "AGENTS.md"), "remote\n")
}

func TestPull_Strategies(t *testing.T) {
	tests := map[string]struct {
		args []string
		want string
	}{
		"force":     {args: []string{"pull", "--force"}, want: "remote\n"},
		"overwrite": {args: []string{"pull", "--strategy", "overwrite"}, want: "remote\n"},
		"skip":      {args: []string{"pull", "--strategy", "skip"}, want: "local\n"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			te := pushedThenEdited(t)
			_, err := run(t, tt.args...)
			util.AssertNoError(t, err)
			util.AssertEqual(t, te.read(t, te.ocRoot, "AGENTS.md"), tt.want)
		})
	}
}

func TestPull_InvalidStrategy(t *testing.T) {
	setupEnv(t, newFakeRemote())
	if _, err := run(t, "pull", "--strategy", "merge"); err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}

func TestPull_TextPrompt(t *testing.T) {
	tests := map[string]struct {
		input string
		want  string
	}{
		"take remote for all": {input: "2\n", want: "remote\n"},
		"keep local for all":  {input: "3\n", want: "local\n"},
		"per file keep local": {input: "1\n2\n", want: "local\n"},
		"per file show then remote": {
			input: "1\n3\n1\n",
			want:  "remote\n",
		},
		"abort": {input: "4\n", want: "local\n"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			te := pushedThenEdited(t)
			stdinIsTerminal = func() bool { return true }
			stdin = strings.NewReader(tt.input)

			out, err := run(t, "pull", "--no-tui")
			util.AssertNoError(t, err)
			assertContains(t, out, "Conflict Summary", "opencode/AGENTS.md")
			util.AssertEqual(t, te.read(t, te.ocRoot, "AGENTS.md"), tt.want)
		})
	}
}

func TestPull_DryRun(t *testing.T) {
	remote := newFakeRemote()
	a := setupEnv(t, remote)
	a.write(t, a.ocRoot, "AGENTS.md", "remote\n")
	_, err := run(t, "push")
	util.AssertNoError(t, err)

	b := setupEnv(t, remote)
	out, err := run(t, "pull", "--dry-run")
	util.AssertNoError(t, err)
	assertContains(t, out, "create", "AGENTS.md", "Dry run")
	if util.PathExists(filepath.Join(b.ocRoot, "AGENTS.md")) {
		t.Error("dry run wrote a file")
	}
}

func TestStatus(t *testing.T) {
	te := setupEnv(t, newFakeRemote())
	te.write(t, te.ocRoot, "AGENTS.md", "v1")

	out, err := run(t, "status", "--offline")
	util.AssertNoError(t, err)
	assertContains(t, out, "Unsynced", "never", "opencode", "agentsync push")

	_, err = run(t, "push")
	util.AssertNoError(t, err)
	out, err = run(t, "status")
	util.AssertNoError(t, err)
	assertContains(t, out, "Created", "gist1", "Remote updated")

	te.write(t, te.ocRoot, "AGENTS.md", "v2")
	out, err = run(t, "status")
	util.AssertNoError(t, err)
	assertContains(t, out, "Local Ahead", "Local configs changed")
}

func TestStatus_WithoutCredentials(t *testing.T) {
	te := setupEnv(t, newFakeRemote())
	te.write(t, te.ocRoot, "AGENTS.md", "v1")
	t.Setenv("AGENTSYNC_TOKEN", "")
	t.Setenv("AGENTSYNC_PASSPHRASE", "")

	out, err := run(t, "status")
	util.AssertNoError(t, err)
	assertContains(t, out, "Unsynced")
}

func TestInit(t *testing.T) {
	remote := newFakeRemote()
	te := setupEnv(t, remote)
	t.Setenv("AGENTSYNC_TOKEN", "")
	t.Setenv("AGENTSYNC_PASSPHRASE", "")

	_, err := remote.Create(context.Background(), gist.Description, map[string]string{gist.FileName: "{}"})
	util.AssertNoError(t, err)

	out, err := run(t, "init", "--token", "ghp_new", "--passphrase", "s3cret")
	util.AssertNoError(t, err)
	assertContains(t, out, "Authenticated as octocat", "Found existing sync gist gist1", "agentsync pull")

	creds, err := credentials.NewStore(filepath.Join(te.configDir, "credentials.yaml")).Load()
	util.AssertNoError(t, err)
	util.AssertEqual(t, creds.Token, "ghp_new")
	util.AssertEqual(t, creds.Passphrase, "s3cret")
	util.AssertEqual(t, creds.GistID, "gist1")

	cfg, err := config.Load()
	util.AssertNoError(t, err)
	if cfg.DeviceID == "" {
		t.Error("init should assign a device ID")
	}
}

func TestInit_MissingValues(t *testing.T) {
	setupEnv(t, newFakeRemote())
	t.Setenv("AGENTSYNC_TOKEN", "")
	t.Setenv("AGENTSYNC_PASSPHRASE", "")

	tests := map[string]struct {
		args []string
		want error
	}{
		"no token":      {args: []string{"init", "--passphrase", "p"}, want: credentials.ErrMissingToken},
		"no passphrase": {args: []string{"init", "--token", "t"}, want: credentials.ErrMissingPassphrase},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := run(t, tt.args...); !errors.Is(err, tt.want) {
				t.Errorf("init error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInit_PromptsForPassphrase(t *testing.T) {
	setupEnv(t, newFakeRemote())
	t.Setenv("AGENTSYNC_TOKEN", "")
	t.Setenv("AGENTSYNC_PASSPHRASE", "")
	stdinIsTerminal = func() bool { return true }

	oldRead := readSecret
	t.Cleanup(func() { readSecret = oldRead })

	answers := []string{"one", "two"}
	readSecret = func(string) (string, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	if _, err := run(t, "init", "--token", "t", "--skip-verify"); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Errorf("init error = %v, want a mismatch error", err)
	}
}

func TestBackups(t *testing.T) {
	te := pushedThenEdited(t)
	_, err := run(t, "pull", "--yes")
	util.AssertNoError(t, err)

	out, err := run(t, "backups", "list")
	util.AssertNoError(t, err)
	assertContains(t, out, "opencode", "ID")

	out, err = run(t, "backups", "list", "--format", "json")
	util.AssertNoError(t, err)
	var listed []backup.Metadata
	util.AssertNoError(t, json.Unmarshal([]byte(out), &listed))
	util.AssertEqual(t, len(listed), 1)
	id := listed[0].ID

	out, err = run(t, "backups", "verify", id)
	util.AssertNoError(t, err)
	assertContains(t, out, "is intact")

	out, err = run(t, "backups", "restore", id)
	util.AssertNoError(t, err)
	assertContains(t, out, "Restored 1 file(s)", "Backed up 1 current file(s)")
	util.AssertEqual(t, te.read(t, te.ocRoot, "AGENTS.md"), "local\n")

	out, err = run(t, "backups", "list", "--format", "yaml")
	util.AssertNoError(t, err)
	assertContains(t, out, "before restoring "+id)

	_, err = run(t, "backups", "delete", id)
	util.AssertNoError(t, err)
	if _, err := run(t, "backups", "verify", id); !errors.Is(err, backup.ErrNotFound) {
		t.Errorf("verify after delete = %v, want ErrNotFound", err)
	}
}

func TestBackups_Errors(t *testing.T) {
	setupEnv(t, newFakeRemote())

	tests := map[string][]string{
		"restore without backup ID":    {"backups", "restore"},
		"restore with non-existent ID": {"backups", "restore", "non-existent-id"},
		"verify without backup ID":     {"backups", "verify"},
		"delete non-existent":          {"backups", "delete", "non-existent-id"},
		"invalid format":               {"backups", "list", "--format", "xml"},
		"invalid provider":             {"backups", "list", "--provider", "vim"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := run(t, args...); err == nil {
				t.Errorf("Run(%v) expected an error", args)
			}
		})
	}
}

func TestBackups_Disabled(t *testing.T) {
	setupEnv(t, newFakeRemote())
	t.Setenv("AGENTSYNC_BACKUP_ENABLED", "false")

	if _, err := run(t, "backups", "list"); !errors.Is(err, errBackupsDisabled) {
		t.Errorf("list error = %v, want errBackupsDisabled", err)
	}
}

func TestMCPCommands(t *testing.T) {
	te := setupEnv(t, newFakeRemote())
	te.write(t, te.ocRoot, "AGENTS.md", "installed")

	out, err := run(t, "mcp", "list")
	util.AssertNoError(t, err)
	assertContains(t, out, "No MCP servers stored")

	_, err = run(t, "mcp", "add", "--type", "http", "--url", "https://docs.example.com/mcp", "--header", "X-Team=core", "docs")
	util.AssertNoError(t, err)
	_, err = run(t, "mcp", "add", "--command", "mcp-fs", "--arg", "/tmp", "--env", "DEBUG=1", "fs")
	util.AssertNoError(t, err)

	out, err = run(t, "mcp", "list")
	util.AssertNoError(t, err)
	assertContains(t, out, "docs", "https://docs.example.com/mcp", "fs", "mcp-fs /tmp")

	out, err = run(t, "mcp", "apply")
	util.AssertNoError(t, err)
	assertContains(t, out, "opencode: 2 server(s)")
	assertContains(t, te.read(t, te.ocRoot, "opencode.json"), "docs", "mcp-fs")

	_, err = run(t, "mcp", "remove", "docs")
	util.AssertNoError(t, err)
	out, err = run(t, "mcp", "import")
	util.AssertNoError(t, err)
	assertContains(t, out, "added docs", "1 added")

	out, err = run(t, "mcp", "remove", "--from-providers", "docs")
	util.AssertNoError(t, err)
	assertContains(t, out, "Removed \"docs\" from the store", "Removed from opencode")
	if strings.Contains(te.read(t, te.ocRoot, "opencode.json"), "docs.example.com") {
		t.Error("docs should be gone from opencode.json")
	}
}

func TestMCPAdd_Invalid(t *testing.T) {
	setupEnv(t, newFakeRemote())

	tests := map[string][]string{
		"no name":          {"mcp", "add"},
		"stdio no command": {"mcp", "add", "x"},
		"http no url":      {"mcp", "add", "--type", "http", "x"},
		"bad env":          {"mcp", "add", "--command", "c", "--env", "NOVALUE", "x"},
		"unknown type":     {"mcp", "add", "--type", "grpc", "--url", "u", "x"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := run(t, args...); err == nil {
				t.Errorf("Run(%v) expected an error", args)
			}
		})
	}
}

func TestProviders(t *testing.T) {
	te := setupEnv(t, newFakeRemote())
	te.write(t, te.ocRoot, "AGENTS.md", "x")

	out, err := run(t, "providers")
	util.AssertNoError(t, err)
	assertContains(t, out, "opencode", te.ocRoot, "env_var", "Codex CLI", "not installed")

	out, err = run(t, "providers", "--installed")
	util.AssertNoError(t, err)
	if strings.Contains(out, "Codex CLI") {
		t.Errorf("--installed listed an uninstalled provider:\n%s", out)
	}
}

func TestConfigCommand(t *testing.T) {
	te := setupEnv(t, newFakeRemote())

	out, err := run(t, "config")
	util.AssertNoError(t, err)
	assertContains(t, out, te.configDir, "token:      set", "retry_max")
	if strings.Contains(out, testPassphrase) {
		t.Error("config output leaked the passphrase")
	}

	out, err = run(t, "config", "path")
	util.AssertNoError(t, err)
	util.AssertEqual(t, strings.TrimSpace(out), filepath.Join(te.configDir, "config.yaml"))

	_, err = run(t, "config", "init")
	util.AssertNoError(t, err)
	if _, err := run(t, "config", "init"); err == nil {
		t.Error("config init should refuse to overwrite")
	}
	_, err = run(t, "config", "init", "--force")
	util.AssertNoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	util.AssertNoError(t, err)
	assertContains(t, out, "agentsync version dev", "commit:", "platform:")
}

func TestExportImport(t *testing.T) {
	src := setupEnv(t, newFakeRemote())
	src.write(t, src.ocRoot, "AGENTS.md", "exported\n")
	src.write(t, src.cursorRoot, "rules/style.mdc", "tabs\n")
	archivePath := filepath.Join(t.TempDir(), "configs.tar.gz")

	out, err := run(t, "export", "--output", archivePath)
	util.AssertNoError(t, err)
	assertContains(t, out, "Exported 2 file(s)", "cursor: 1 file(s)", "opencode: 1 file(s)", "not encrypted")

	dst := setupEnv(t, newFakeRemote())
	dst.write(t, dst.ocRoot, "AGENTS.md", "mine\n")

	out, err = run(t, "import", "--dry-run", archivePath)
	util.AssertNoError(t, err)
	assertContains(t, out, "Dry run")
	util.AssertEqual(t, dst.read(t, dst.ocRoot, "AGENTS.md"), "mine\n")

	out, err = run(t, "import", "--provider", "opencode", archivePath)
	util.AssertNoError(t, err)
	assertContains(t, out, "Backed up 1 current file(s)", "opencode: wrote 1 file(s)")
	util.AssertEqual(t, dst.read(t, dst.ocRoot, "AGENTS.md"), "exported\n")
	if util.PathExists(filepath.Join(dst.cursorRoot, "rules", "style.mdc")) {
		t.Error("import ignored the provider filter")
	}

	if _, err := run(t, "import"); err == nil {
		t.Error("import without a file should fail")
	}
	if _, err := run(t, "import", filepath.Join(dst.configDir, "missing.tar.gz")); err == nil {
		t.Error("import of a missing archive should fail")
	}
}
