// Package e2e provides testing infrastructure for end-to-end CLI tests.
// A Harness is one isolated device: its own home, agentsync config
// directory and provider roots. Several harnesses share a GistServer to
// exercise push and pull across machines.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/agentsync/internal/cli"
)

// DefaultToken is the token every harness authenticates with unless
// overridden.
const DefaultToken = "ghp_e2e"

// DefaultPassphrase is the passphrase every harness encrypts with unless
// overridden.
const DefaultPassphrase = "e2e passphrase for every device"

// Result contains the outcome of running a CLI command.
type Result struct {
	// Device names the harness that ran the command.
	Device string
	// Stdout contains the captured standard output.
	Stdout string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness runs CLI commands as one device.
type Harness struct {
	t       *testing.T
	name    string
	homeDir string
	env     map[string]string
}

// NewHarness creates a device named name that talks to server.
func NewHarness(t *testing.T, name string, server *GistServer) *Harness {
	t.Helper()

	homeDir := t.TempDir()
	h := &Harness{
		t:       t,
		name:    name,
		homeDir: homeDir,
		env:     make(map[string]string),
	}

	h.SetEnv("HOME", homeDir)
	h.SetEnv("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))
	h.SetEnv("AGENTSYNC_CONFIG_DIR", filepath.Join(homeDir, ".config", "agentsync"))
	h.SetEnv("AGENTSYNC_DEVICE_ID", name)
	h.SetEnv("AGENTSYNC_REMOTE_API_URL", server.URL)
	h.SetEnv("AGENTSYNC_SYNC_RETRY_MAX", "0")
	h.SetEnv("AGENTSYNC_TOKEN", DefaultToken)
	h.SetEnv("AGENTSYNC_PASSPHRASE", DefaultPassphrase)
	h.SetEnv("AGENTSYNC_GIST_ID", "")
	h.SetEnv("AGENTSYNC_SYNC_PROVIDERS", "")
	h.SetEnv("GITHUB_TOKEN", "")

	h.SetEnv("OPENCODE_CONFIG_DIR", filepath.Join(homeDir, ".config", "opencode"))
	h.SetEnv("CLAUDE_CONFIG_DIR", filepath.Join(homeDir, ".claude"))
	h.SetEnv("CODEX_HOME", filepath.Join(homeDir, ".codex"))
	h.SetEnv("CURSOR_CONFIG_DIR", filepath.Join(homeDir, ".cursor"))

	return h
}

// SetEnv sets an environment variable for commands run as this device.
// The process environment is restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.env[key] = value
	h.t.Setenv(key, value)
}

// Name returns the device name.
func (h *Harness) Name() string {
	return h.name
}

// HomeDir returns the isolated home directory of this device.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// Run executes agentsync with args as this device and captures stdout.
// Stdin is an empty pipe, so commands never see a terminal.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()

	// Another harness may have run last; reapply this device's environment.
	for k, v := range h.env {
		if err := os.Setenv(k, v); err != nil {
			h.t.Fatalf("failed to set %s: %v", k, err)
		}
	}

	full := append([]string{"agentsync", "--no-color"}, args...)

	oldStdin := os.Stdin
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdin pipe: %v", err)
	}
	_ = stdinW.Close()
	os.Stdin = stdinR

	oldStdout := os.Stdout
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdout pipe: %v", err)
	}
	os.Stdout = stdoutW

	// Drain stdout while the command runs so large output cannot block it.
	var stdoutBuf bytes.Buffer
	var copyErr error
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, copyErr = io.Copy(&stdoutBuf, stdoutR)
	}()

	cmdErr := cli.Run(context.Background(), full)

	if err := stdoutW.Close(); err != nil {
		h.t.Fatalf("failed to close stdout pipe writer: %v", err)
	}
	os.Stdout = oldStdout
	os.Stdin = oldStdin
	_ = stdinR.Close()

	<-copyDone
	if copyErr != nil {
		h.t.Fatalf("failed to read captured stdout: %v", copyErr)
	}

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}
	return &Result{
		Device:   h.name,
		Stdout:   stdoutBuf.String(),
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}
