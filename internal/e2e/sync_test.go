package e2e_test

import (
	"strings"
	"testing"

	"github.com/klauern/agentsync/internal/e2e"
	"github.com/klauern/agentsync/internal/sync"
)

// twoDevices returns a laptop with an OpenCode and Cursor config that has
// already pushed, and a fresh desktop with both providers installed.
func twoDevices(t *testing.T) (server *e2e.GistServer, laptop, desktop *e2e.Harness) {
	t.Helper()
	server = e2e.NewGistServer(t, e2e.DefaultToken)
	laptop = e2e.NewHarness(t, "laptop", server)
	desktop = e2e.NewHarness(t, "desktop", server)

	laptop.OpenCode().WriteFile("AGENTS.md", "# Agents\nbe terse\n")
	laptop.OpenCode().WriteFile("opencode.json", `{"theme":"dark"}`)
	laptop.Cursor().WriteFile("rules/style.mdc", "use tabs\n")

	desktop.OpenCode()
	desktop.Cursor()

	e2e.AssertSuccess(t, laptop.Run("push"))
	return server, laptop, desktop
}

func TestPushCreatesEncryptedGist(t *testing.T) {
	server := e2e.NewGistServer(t, e2e.DefaultToken)
	h := e2e.NewHarness(t, "laptop", server)
	h.OpenCode().WriteFile("AGENTS.md", "a very recognisable instruction\n")

	r := h.Run("push")

	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Created gist e2e0001", "opencode")
	if server.Count() != 1 {
		t.Fatalf("gists = %d, want 1", server.Count())
	}
	doc := server.Document("e2e0001")
	if doc == "" {
		t.Fatal("gist has no sync document")
	}
	if strings.Contains(doc, "recognisable instruction") {
		t.Error("sync document contains plaintext config")
	}
}

func TestPushTwiceWithoutChanges(t *testing.T) {
	server, laptop, _ := twoDevices(t)
	updates := server.Requests("PATCH /gists/{id}")

	r := laptop.Run("push")

	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "No changes since the last sync")
	if got := server.Requests("PATCH /gists/{id}"); got != updates {
		t.Errorf("unchanged push sent %d update(s)", got-updates)
	}

	r = laptop.Run("push", "--force")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Updated gist e2e0001")
	if server.Count() != 1 {
		t.Errorf("forced push created another gist; gists = %d", server.Count())
	}
}

func TestPullOnSecondDevice(t *testing.T) {
	_, _, desktop := twoDevices(t)

	r := desktop.Run("status")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Unsynced")

	r = desktop.Run("pull")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Wrote 3 file(s)", "(laptop)")

	e2e.AssertFileEquals(t, desktop.OpenCode(), "AGENTS.md", "# Agents\nbe terse\n")
	e2e.AssertFileEquals(t, desktop.OpenCode(), "opencode.json", `{"theme":"dark"}`)
	e2e.AssertFileEquals(t, desktop.Cursor(), "rules/style.mdc", "use tabs\n")

	r = desktop.Run("status")
	e2e.AssertSuccess(t, r)
	// The gist was never updated after the laptop created it.
	e2e.AssertOutputContains(t, r, "Created", "e2e0001")
}

func TestRemoteAheadThenPull(t *testing.T) {
	_, laptop, desktop := twoDevices(t)
	e2e.AssertSuccess(t, desktop.Run("pull"))

	laptop.OpenCode().WriteFile("AGENTS.md", "# Agents\nbe verbose\n")
	r := laptop.Run("status", "--offline")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Local Ahead")
	e2e.AssertSuccess(t, laptop.Run("push"))

	r = desktop.Run("status")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Remote Ahead", "The remote was updated by another device")

	r = desktop.Run("pull", "--dry-run")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Dry run")
	e2e.AssertFileEquals(t, desktop.OpenCode(), "AGENTS.md", "# Agents\nbe terse\n")

	r = desktop.Run("pull", "--yes")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Wrote 1 file(s)")
	e2e.AssertFileEquals(t, desktop.OpenCode(), "AGENTS.md", "# Agents\nbe verbose\n")
}

func TestDivergedPullStrategies(t *testing.T) {
	_, laptop, desktop := twoDevices(t)
	e2e.AssertSuccess(t, desktop.Run("pull"))

	laptop.OpenCode().WriteFile("AGENTS.md", "from the laptop\n")
	e2e.AssertSuccess(t, laptop.Run("push"))
	desktop.OpenCode().WriteFile("AGENTS.md", "from the desktop\n")

	// Without a terminal nobody can confirm the overwrite.
	r := desktop.Run("pull")
	e2e.AssertErrorKind(t, r, sync.KindConflict)
	e2e.AssertFileEquals(t, desktop.OpenCode(), "AGENTS.md", "from the desktop\n")

	r = desktop.Run("pull", "--strategy", "skip")
	e2e.AssertSuccess(t, r)
	e2e.AssertFileEquals(t, desktop.OpenCode(), "AGENTS.md", "from the desktop\n")

	r = desktop.Run("pull", "--strategy", "overwrite")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "backed up 1 file(s)")
	e2e.AssertFileEquals(t, desktop.OpenCode(), "AGENTS.md", "from the laptop\n")

	r = desktop.Run("backups", "list", "--provider", "opencode")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "opencode")
}

func TestPushKeepsProvidersMissingLocally(t *testing.T) {
	_, laptop, desktop := twoDevices(t)
	e2e.AssertSuccess(t, desktop.Run("pull"))

	desktop.OpenCode().WriteFile("AGENTS.md", "desktop edit\n")
	r := desktop.Run("push", "--provider", "opencode")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "kept from remote")

	r = laptop.Run("pull", "--yes")
	e2e.AssertSuccess(t, r)
	e2e.AssertFileEquals(t, laptop.OpenCode(), "AGENTS.md", "desktop edit\n")
	e2e.AssertFileEquals(t, laptop.Cursor(), "rules/style.mdc", "use tabs\n")
}

func TestWrongPassphrase(t *testing.T) {
	_, _, desktop := twoDevices(t)
	desktop.SetEnv("AGENTSYNC_PASSPHRASE", "not the same passphrase")

	r := desktop.Run("pull", "--yes")

	e2e.AssertErrorKind(t, r, sync.KindDecryption)
	e2e.AssertFileNotExists(t, desktop.OpenCode(), "AGENTS.md")
}

func TestBadToken(t *testing.T) {
	server := e2e.NewGistServer(t, e2e.DefaultToken)
	h := e2e.NewHarness(t, "laptop", server)
	h.SetEnv("AGENTSYNC_TOKEN", "ghp_revoked")
	h.OpenCode().WriteFile("AGENTS.md", "x\n")

	r := h.Run("push")

	e2e.AssertErrorKind(t, r, sync.KindAuth)
	if server.Count() != 0 {
		t.Errorf("gists = %d, want 0", server.Count())
	}
}

func TestMCPServersTravelWithThePush(t *testing.T) {
	_, laptop, desktop := twoDevices(t)

	e2e.AssertSuccess(t, laptop.Run("mcp", "add", "--command", "npx", "--arg", "@acme/mcp", "acme"))
	// Only config files and contexts count as changes, so force the upload.
	e2e.AssertSuccess(t, laptop.Run("push", "--force"))

	r := desktop.Run("pull")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "MCP servers: 1 added")

	r = desktop.Run("mcp", "list")
	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "acme", "npx")
}

func TestInitDiscoversExistingGist(t *testing.T) {
	server, _, desktop := twoDevices(t)
	desktop.SetEnv("AGENTSYNC_TOKEN", "")
	desktop.SetEnv("AGENTSYNC_PASSPHRASE", "")

	r := desktop.Run("init", "--token", e2e.DefaultToken, "--passphrase", e2e.DefaultPassphrase)

	e2e.AssertSuccess(t, r)
	e2e.AssertOutputContains(t, r, "Authenticated as octocat", "Found existing sync gist e2e0001")
	if server.Requests("GET /user") == 0 {
		t.Error("init did not validate the token")
	}
	if !desktop.ConfigDir().Exists("credentials.yaml") {
		t.Error("init did not save credentials")
	}

	r = desktop.Run("pull")
	e2e.AssertSuccess(t, r)
	e2e.AssertFileEquals(t, desktop.Cursor(), "rules/style.mdc", "use tabs\n")
}
