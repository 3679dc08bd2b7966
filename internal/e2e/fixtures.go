package e2e

import (
	"os"
	"path/filepath"
	"testing"
)

// Fixture writes and reads files under one provider's config root.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a fixture rooted at baseDir, creating the directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		t.Fatalf("failed to create directory %s: %v", baseDir, err)
	}
	return &Fixture{t: t, baseDir: baseDir}
}

// WriteFile writes content to relPath, creating parent directories.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := f.Path(relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		f.t.Fatalf("failed to create directory for %s: %v", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}
	return fullPath
}

// Path returns the absolute path of a slash-separated relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, filepath.FromSlash(relPath))
}

// Root returns the fixture's base directory.
func (f *Fixture) Root() string {
	return f.baseDir
}

// Exists reports whether relPath exists.
func (f *Fixture) Exists(relPath string) bool {
	_, err := os.Stat(f.Path(relPath))
	return err == nil
}

// ReadFile returns the content of relPath.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	// #nosec G304 - path is under the test's temp dir
	data, err := os.ReadFile(f.Path(relPath))
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", relPath, err)
	}
	return string(data)
}

func (h *Harness) providerFixture(envKey string) *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.env[envKey])
}

// OpenCode returns a fixture on the device's OpenCode root, installing it.
func (h *Harness) OpenCode() *Fixture {
	h.t.Helper()
	return h.providerFixture("OPENCODE_CONFIG_DIR")
}

// Cursor returns a fixture on the device's Cursor root, installing it.
func (h *Harness) Cursor() *Fixture {
	h.t.Helper()
	return h.providerFixture("CURSOR_CONFIG_DIR")
}

// Claude returns a fixture on the device's Claude Code root, installing it.
func (h *Harness) Claude() *Fixture {
	h.t.Helper()
	return h.providerFixture("CLAUDE_CONFIG_DIR")
}

// Codex returns a fixture on the device's Codex root, installing it.
func (h *Harness) Codex() *Fixture {
	h.t.Helper()
	return h.providerFixture("CODEX_HOME")
}

// ConfigDir returns a fixture on the device's agentsync config directory.
func (h *Harness) ConfigDir() *Fixture {
	h.t.Helper()
	return h.providerFixture("AGENTSYNC_CONFIG_DIR")
}
