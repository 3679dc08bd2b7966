// Package credentials stores the GitHub token and encryption passphrase
// agentsync needs, with environment variable overrides.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klauern/agentsync/internal/util"
)

// Environment variables that override the stored values.
const (
	EnvToken       = "AGENTSYNC_TOKEN"
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvPassphrase  = "AGENTSYNC_PASSPHRASE"
	EnvGistID      = "AGENTSYNC_GIST_ID"
)

var (
	// ErrMissingToken is returned when no GitHub token is configured.
	ErrMissingToken = errors.New("no GitHub token configured")
	// ErrMissingPassphrase is returned when no passphrase is configured.
	ErrMissingPassphrase = errors.New("no encryption passphrase configured")
)

// Credentials are the secrets agentsync needs to reach and decrypt the remote.
type Credentials struct {
	Token      string `yaml:"token,omitempty"`
	Passphrase string `yaml:"passphrase,omitempty"`
	// GistID points a fresh device at an existing remote.
	GistID string `yaml:"gist_id,omitempty"`
}

// Validate reports the first missing required value.
func (c *Credentials) Validate() error {
	if c == nil || strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if c.Passphrase == "" {
		return ErrMissingPassphrase
	}
	return nil
}

// Store reads and writes credentials.yaml.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns the stored credentials with environment overrides applied.
// It returns nil, nil when neither the file nor any override exists.
func (s *Store) Load() (*Credentials, error) {
	creds, err := s.loadFile()
	if err != nil {
		return nil, err
	}

	found := creds != nil
	if creds == nil {
		creds = &Credentials{}
	}
	if applyEnvironment(creds) {
		found = true
	}
	if !found {
		return nil, nil
	}
	return creds, nil
}

func (s *Store) loadFile() (*Credentials, error) {
	// #nosec G304 - path is agentsync's own credentials file
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	return &creds, nil
}

// Save writes the credentials, readable only by the current user.
func (s *Store) Save(c *Credentials) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := util.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// applyEnvironment overlays environment variables, reporting whether any
// were set. GITHUB_TOKEN is only a fallback when no token is configured.
func applyEnvironment(c *Credentials) bool {
	applied := false
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
		applied = true
	} else if c.Token == "" {
		if v := os.Getenv(EnvGitHubToken); v != "" {
			c.Token = v
			applied = true
		}
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		c.Passphrase = v
		applied = true
	}
	if v := os.Getenv(EnvGistID); v != "" {
		c.GistID = v
		applied = true
	}
	return applied
}
