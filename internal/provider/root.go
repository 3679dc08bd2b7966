package provider

import (
	"os"

	"github.com/klauern/agentsync/internal/util"
)

// RootSource describes how a config root was chosen.
type RootSource string

const (
	// SourceConfig means the root came from agentsync's config file.
	SourceConfig RootSource = "config"
	// SourceEnv means the root came from the provider's environment variable.
	SourceEnv RootSource = "env_var"
	// SourceDefault means the provider's conventional location was used.
	SourceDefault RootSource = "default"
)

// Root is a resolved config root.
type Root struct {
	Path   string
	Source RootSource
}

// ResolveRoot picks a config root, in priority order: an explicit override,
// the environment variable envVar, then fallback().
func ResolveRoot(override, envVar string, fallback func() string) Root {
	if override != "" {
		return Root{Path: util.ExpandPath(override, ""), Source: SourceConfig}
	}
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return Root{Path: util.ExpandPath(v, ""), Source: SourceEnv}
		}
	}
	return Root{Path: fallback(), Source: SourceDefault}
}

func pathExists(path string) bool {
	return util.PathExists(path)
}
