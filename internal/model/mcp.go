package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// MCPServerType is the transport an MCP server speaks.
type MCPServerType string

const (
	MCPStdio MCPServerType = "stdio"
	MCPHTTP  MCPServerType = "http"
	MCPSSE   MCPServerType = "sse"
)

// IsValid returns true if the type is recognized.
func (t MCPServerType) IsValid() bool {
	switch t {
	case MCPStdio, MCPHTTP, MCPSSE:
		return true
	default:
		return false
	}
}

// IsRemote reports whether the server is reached over a URL.
func (t MCPServerType) IsRemote() bool {
	return t == MCPHTTP || t == MCPSSE
}

// MCPServerConfig is the provider-neutral description of one MCP server.
// Name is unique within a store.
type MCPServerConfig struct {
	Name    string            `json:"name"`
	Type    MCPServerType     `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Enabled bool              `json:"enabled"`
}

// ErrInvalidMCPServer is wrapped by every validation failure.
var ErrInvalidMCPServer = errors.New("invalid MCP server")

// Validate checks the type-dependent required fields.
func (c MCPServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMCPServer)
	}
	switch c.Type {
	case MCPStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("%w %q: stdio servers require a command", ErrInvalidMCPServer, c.Name)
		}
	case MCPHTTP, MCPSSE:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("%w %q: %s servers require a url", ErrInvalidMCPServer, c.Name, c.Type)
		}
	default:
		return fmt.Errorf("%w %q: unknown type %q", ErrInvalidMCPServer, c.Name, c.Type)
	}
	return nil
}

// UnmarshalJSON decodes a server, defaulting Enabled to true when absent.
func (c *MCPServerConfig) UnmarshalJSON(data []byte) error {
	type plain MCPServerConfig
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// SortMCPServers sorts servers by name in place.
func SortMCPServers(servers []MCPServerConfig) {
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
}
