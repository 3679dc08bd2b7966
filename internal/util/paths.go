package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// XDGConfigHome returns $XDG_CONFIG_HOME, falling back to ~/.config.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return ExpandPath(v, "")
	}
	return filepath.Join(HomeDir(), ".config")
}

// UserConfigBase returns the base directory that per-user application
// config lives under on this OS. Windows uses %APPDATA%; everything else
// follows the XDG convention.
func UserConfigBase() string {
	if runtime.GOOS == "windows" {
		if v := os.Getenv("APPDATA"); v != "" {
			return v
		}
	}
	return XDGConfigHome()
}

// AgentsyncConfigPath returns the agentsync config directory.
// AGENTSYNC_CONFIG_DIR overrides the default location.
func AgentsyncConfigPath() string {
	if v := os.Getenv("AGENTSYNC_CONFIG_DIR"); v != "" {
		return ExpandPath(v, "")
	}
	return filepath.Join(XDGConfigHome(), "agentsync")
}

// AgentsyncStatePath returns the path of the persisted sync state.
func AgentsyncStatePath() string {
	return filepath.Join(AgentsyncConfigPath(), "state.json")
}

// AgentsyncContextsPath returns the path of the session context store.
func AgentsyncContextsPath() string {
	return filepath.Join(AgentsyncConfigPath(), "contexts.json")
}

// AgentsyncMCPPath returns the path of the shared MCP server store.
func AgentsyncMCPPath() string {
	return filepath.Join(AgentsyncConfigPath(), "mcp-servers.json")
}

// AgentsyncCredentialsPath returns the path of the credentials file.
func AgentsyncCredentialsPath() string {
	return filepath.Join(AgentsyncConfigPath(), "credentials.yaml")
}

// AgentsyncBackupsPath returns the directory that pull backups are written to.
func AgentsyncBackupsPath() string {
	return filepath.Join(AgentsyncConfigPath(), "backups")
}

// ExpandPath expands ~ to the home directory and resolves relative paths
// against baseDir. An empty baseDir leaves relative paths untouched.
func ExpandPath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(HomeDir(), path[2:])
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}

// PathExists reports whether path exists (following symlinks).
func PathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
