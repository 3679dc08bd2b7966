// Package gist is a small GitHub Gist client used as agentsync's remote
// store. Every call is a single request (plus raw fetches for truncated
// files); retries are layered on separately by Retrying.
package gist

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"
	// FileName is the gist file holding the encrypted sync document.
	FileName = "agentsync.json"
	// LegacyFileName is the document name written by older releases.
	LegacyFileName = "opencode-sync.json"
	// Marker identifies sync gists by description.
	Marker = "agentsync"
	// LegacyMarker identifies sync gists created by older releases.
	LegacyMarker = "opencode-sync"
	// Description is used for newly created gists.
	Description = "agentsync: encrypted AI assistant configuration"
)

var (
	// ErrNotFound matches a 404 APIError with errors.Is.
	ErrNotFound = errors.New("gist not found")
	// ErrNoDocument is returned when a gist has no sync document file.
	ErrNoDocument = errors.New("gist has no agentsync document")
	// ErrMissingScope is returned when a classic token lacks the gist scope.
	ErrMissingScope = errors.New("token is missing the gist scope")
)

// File is one file of a gist.
type File struct {
	Filename  string `json:"filename,omitempty"`
	Content   string `json:"content"`
	RawURL    string `json:"raw_url,omitempty"`
	Size      int    `json:"size,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Gist is the subset of the GitHub gist resource agentsync uses.
type Gist struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	HTMLURL     string          `json:"html_url,omitempty"`
	Public      bool            `json:"public"`
	Files       map[string]File `json:"files"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TokenInfo describes a validated token.
type TokenInfo struct {
	Login string
	// Scopes is empty for fine-grained tokens, which do not report scopes.
	Scopes      []string
	FineGrained bool
}

// Remote is the set of gist operations the sync orchestrator needs.
type Remote interface {
	Create(ctx context.Context, description string, files map[string]string) (*Gist, error)
	Get(ctx context.Context, id string) (*Gist, error)
	Update(ctx context.Context, id, description string, files map[string]string) (*Gist, error)
	List(ctx context.Context) ([]Gist, error)
	ValidateToken(ctx context.Context) (*TokenInfo, error)
}

// IsSyncGist reports whether a description carries a sync marker.
func IsSyncGist(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, Marker) || strings.Contains(d, LegacyMarker)
}

// Document returns the sync document content of g, preferring the current
// file name over the legacy one.
func Document(g *Gist) (string, error) {
	if g == nil {
		return "", ErrNoDocument
	}
	for _, name := range []string{FileName, LegacyFileName} {
		if f, ok := g.Files[name]; ok {
			return f.Content, nil
		}
	}
	return "", ErrNoDocument
}

// FindSyncGist returns the most recently updated sync gist in gists.
func FindSyncGist(gists []Gist) (*Gist, bool) {
	var best *Gist
	for i := range gists {
		g := &gists[i]
		if !IsSyncGist(g.Description) {
			continue
		}
		if best == nil || g.UpdatedAt.After(best.UpdatedAt) {
			best = g
		}
	}
	return best, best != nil
}
