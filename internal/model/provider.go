// Package model provides the data types shared across agentsync.
package model

import (
	"fmt"
	"strings"
)

// ProviderID identifies a supported AI coding assistant. The set is closed:
// every valid ID is listed in AllProviders.
type ProviderID string

const (
	OpenCode   ProviderID = "opencode"
	ClaudeCode ProviderID = "claude-code"
	Codex      ProviderID = "codex"
	Cursor     ProviderID = "cursor"
)

// IsValid returns true if the provider is recognized
func (p ProviderID) IsValid() bool {
	switch p {
	case OpenCode, ClaudeCode, Codex, Cursor:
		return true
	default:
		return false
	}
}

// DisplayName returns a human readable name for the provider.
func (p ProviderID) DisplayName() string {
	switch p {
	case OpenCode:
		return "opencode"
	case ClaudeCode:
		return "Claude Code"
	case Codex:
		return "Codex CLI"
	case Cursor:
		return "Cursor"
	default:
		return string(p)
	}
}

func (p ProviderID) String() string {
	return string(p)
}

// AllProviders returns all supported providers in ID order.
func AllProviders() []ProviderID {
	return []ProviderID{ClaudeCode, Codex, Cursor, OpenCode}
}

// ParseProviderID parses a provider name, accepting a few common aliases.
func ParseProviderID(s string) (ProviderID, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "opencode", "open-code":
		return OpenCode, nil
	case "claude-code", "claudecode", "claude":
		return ClaudeCode, nil
	case "codex", "codex-cli":
		return Codex, nil
	case "cursor":
		return Cursor, nil
	case "":
		return "", fmt.Errorf("provider name cannot be empty")
	default:
		return "", fmt.Errorf("unknown provider %q (supported: %s)", s, joinProviders(AllProviders()))
	}
}

// ParseProviderIDs parses a list of provider names, dropping duplicates
// while keeping the first-seen order.
func ParseProviderIDs(names []string) ([]ProviderID, error) {
	ids := make([]ProviderID, 0, len(names))
	seen := make(map[ProviderID]bool, len(names))
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := ParseProviderID(part)
			if err != nil {
				return nil, err
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func joinProviders(ids []ProviderID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
