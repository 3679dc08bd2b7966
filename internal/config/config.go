// Package config provides configuration management for agentsync.
// It supports YAML configuration files, environment variables, and sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

// Config represents the complete agentsync configuration.
type Config struct {
	// DeviceID identifies this machine in pushed payloads. Generated on first save.
	DeviceID string `yaml:"device_id,omitempty"`

	// Providers configures each assistant, keyed by provider ID
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`

	// Sync configures push and pull behavior
	Sync SyncConfig `yaml:"sync"`

	// Remote configures the gist API client
	Remote RemoteConfig `yaml:"remote"`

	// Backup configures backups taken before pull overwrites files
	Backup BackupConfig `yaml:"backup"`

	// Contexts configures the session context store
	Contexts ContextsConfig `yaml:"contexts"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output"`
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	// Root replaces the provider's config directory. Can use ~.
	Root string `yaml:"root,omitempty"`
	// Enabled excludes the provider from sync when false. Unset means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`
	// StateFile replaces the auxiliary state file (claude-code only).
	StateFile string `yaml:"state_file,omitempty"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// DefaultProviders limits push and pull when --provider is not given
	DefaultProviders []string `yaml:"default_providers,omitempty"`
	// ScanSecrets warns before pushing files that look like they contain credentials
	ScanSecrets bool `yaml:"scan_secrets"`
	// RetryMax is how many times rate-limited or failed API calls are retried
	RetryMax int `yaml:"retry_max"`
}

// RemoteConfig holds gist API settings.
type RemoteConfig struct {
	// APIURL is the GitHub API base URL (change for GitHub Enterprise)
	APIURL string `yaml:"api_url"`
	// Timeout bounds each HTTP request
	Timeout time.Duration `yaml:"timeout"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Enabled enables backups before pull overwrites local files
	Enabled bool `yaml:"enabled"`
	// Location is the backup directory path
	Location string `yaml:"location"`
	// MaxBackups is the maximum number of backups to keep
	MaxBackups int `yaml:"max_backups"`
}

// ContextsConfig holds session context settings.
type ContextsConfig struct {
	// MaxItems is how many contexts the local store keeps
	MaxItems int `yaml:"max_items"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color"`
}

// DefaultAPIURL is the public GitHub API.
const DefaultAPIURL = "https://api.github.com"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{},
		Sync: SyncConfig{
			ScanSecrets: true,
			RetryMax:    3,
		},
		Remote: RemoteConfig{
			APIURL:  DefaultAPIURL,
			Timeout: 30 * time.Second,
		},
		Backup: BackupConfig{
			Enabled:    true,
			Location:   util.AgentsyncBackupsPath(),
			MaxBackups: 10,
		},
		Contexts: ContextsConfig{
			MaxItems: 50,
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.AgentsyncConfigPath(), configFileName)
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(FilePath())
	if os.IsNotExist(err) {
		cfg = Default()
		cfg.applyEnvironment()
		return cfg, nil
	}
	return cfg, err
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// EnsureDeviceID assigns a random device ID if none is set, reporting
// whether one was generated.
func (c *Config) EnsureDeviceID() bool {
	if c.DeviceID != "" {
		return false
	}
	c.DeviceID = uuid.NewString()
	return true
}

// Source describes this device for the meta.source field of pushed payloads.
func (c *Config) Source() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	if c.DeviceID == "" {
		return "agentsync@" + host
	}
	id := c.DeviceID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("agentsync@%s (%s)", host, id)
}

// ProviderRoots returns the configured root overrides, expanded.
func (c *Config) ProviderRoots() map[model.ProviderID]string {
	roots := make(map[model.ProviderID]string)
	for name, pc := range c.Providers {
		id, err := model.ParseProviderID(name)
		if err != nil || pc.Root == "" {
			continue
		}
		roots[id] = util.ExpandPath(pc.Root, "")
	}
	return roots
}

// ClaudeStateFile returns the configured claude-code state file, expanded.
func (c *Config) ClaudeStateFile() string {
	for name, pc := range c.Providers {
		if id, err := model.ParseProviderID(name); err == nil && id == model.ClaudeCode {
			return util.ExpandPath(pc.StateFile, "")
		}
	}
	return ""
}

// IsProviderEnabled reports whether a provider takes part in sync.
func (c *Config) IsProviderEnabled(id model.ProviderID) bool {
	for name, pc := range c.Providers {
		parsed, err := model.ParseProviderID(name)
		if err == nil && parsed == id && pc.Enabled != nil {
			return *pc.Enabled
		}
	}
	return true
}

// ProviderSelection resolves which providers an operation should use:
// explicit names win, then sync.default_providers, then every enabled
// provider. The result is nil when no restriction applies.
func (c *Config) ProviderSelection(explicit []string) ([]model.ProviderID, error) {
	if len(explicit) > 0 {
		return model.ParseProviderIDs(explicit)
	}
	if len(c.Sync.DefaultProviders) > 0 {
		return model.ParseProviderIDs(c.Sync.DefaultProviders)
	}

	var ids []model.ProviderID
	restricted := false
	for _, id := range model.AllProviders() {
		if c.IsProviderEnabled(id) {
			ids = append(ids, id)
		} else {
			restricted = true
		}
	}
	if !restricted {
		return nil, nil
	}
	return ids, nil
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern AGENTSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("AGENTSYNC_DEVICE_ID"); v != "" {
		c.DeviceID = v
	}

	// Sync settings
	if v := os.Getenv("AGENTSYNC_SYNC_PROVIDERS"); v != "" {
		c.Sync.DefaultProviders = splitList(v)
	}
	if v := os.Getenv("AGENTSYNC_SYNC_SCAN_SECRETS"); v != "" {
		c.Sync.ScanSecrets = parseBool(v)
	}
	if v := os.Getenv("AGENTSYNC_SYNC_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.RetryMax = n
		}
	}

	// Remote settings
	if v := os.Getenv("AGENTSYNC_REMOTE_API_URL"); v != "" {
		c.Remote.APIURL = v
	}
	if v := os.Getenv("AGENTSYNC_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Remote.Timeout = d
		}
	}

	// Backup settings
	if v := os.Getenv("AGENTSYNC_BACKUP_ENABLED"); v != "" {
		c.Backup.Enabled = parseBool(v)
	}
	if v := os.Getenv("AGENTSYNC_BACKUP_LOCATION"); v != "" {
		c.Backup.Location = v
	}
	if v := os.Getenv("AGENTSYNC_BACKUP_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.MaxBackups = n
		}
	}

	// Contexts settings
	if v := os.Getenv("AGENTSYNC_CONTEXTS_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Contexts.MaxItems = n
		}
	}

	// Output settings
	if v := os.Getenv("AGENTSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList splits a comma-separated string, dropping empty segments.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
