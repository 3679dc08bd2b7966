package sync

import (
	"context"
	"fmt"

	"github.com/klauern/agentsync/internal/diff"
	"github.com/klauern/agentsync/internal/model"
)

// Strategy defines how Pull treats local files that differ from the remote.
type Strategy string

const (
	// StrategyInteractive hands conflicts to the Resolver. Without a resolver
	// the pull fails with a conflict error.
	StrategyInteractive Strategy = "interactive"

	// StrategyOverwrite replaces differing local files with the remote copy.
	StrategyOverwrite Strategy = "overwrite"

	// StrategySkip keeps every differing local file and only creates files
	// that are missing locally.
	StrategySkip Strategy = "skip"
)

// IsValid returns true if the strategy is recognized.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyInteractive, StrategyOverwrite, StrategySkip:
		return true
	default:
		return false
	}
}

// AllStrategies returns all supported pull strategies.
func AllStrategies() []Strategy {
	return []Strategy{StrategyInteractive, StrategyOverwrite, StrategySkip}
}

func (s Strategy) String() string {
	return string(s)
}

// Description returns a human-readable description of the strategy.
func (s Strategy) Description() string {
	switch s {
	case StrategyInteractive:
		return "Review differing files before they are overwritten"
	case StrategyOverwrite:
		return "Replace differing local files with the remote copy"
	case StrategySkip:
		return "Keep differing local files, only create missing ones"
	default:
		return "Unknown strategy"
	}
}

// Action is what a pull does with one remote file.
type Action string

const (
	// ActionCreate writes a file that does not exist locally.
	ActionCreate Action = "create"
	// ActionUpdate overwrites a differing local file.
	ActionUpdate Action = "update"
	// ActionUnchanged means local and remote content are identical.
	ActionUnchanged Action = "unchanged"
	// ActionKeepLocal means a differing local file was kept.
	ActionKeepLocal Action = "keep-local"
	// ActionFailed means writing the file failed.
	ActionFailed Action = "failed"
)

// FileChange is the planned or applied outcome for one remote file.
type FileChange struct {
	Path   string
	Action Action
	Remote model.CollectedFile
	// Local is set when the file exists locally.
	Local *model.CollectedFile
	Err   error
}

// Conflict is a file present on both sides with different content.
type Conflict struct {
	Provider model.ProviderID
	Path     string
	Local    model.CollectedFile
	Remote   model.CollectedFile
}

// Key identifies the conflict within a Resolution.
func (c Conflict) Key() string {
	return string(c.Provider) + "/" + c.Path
}

// Hunks returns the line diff from the local to the remote content.
func (c Conflict) Hunks() []diff.Hunk {
	return diff.Compute(c.Local.Content, c.Remote.Content)
}

// Summary returns a brief description of the conflict.
func (c Conflict) Summary() string {
	return fmt.Sprintf("%s: %s", c.Key(), diff.Summary(c.Hunks()))
}

// Resolution is the answer to a set of conflicts. The zero value takes the
// remote copy of every conflicting file.
type Resolution struct {
	Abort     bool
	KeepLocal map[string]bool
}

// AcceptRemote takes the remote copy for every conflict.
func AcceptRemote() Resolution {
	return Resolution{}
}

// AbortPull cancels the pull before anything is written.
func AbortPull() Resolution {
	return Resolution{Abort: true}
}

// KeepAllLocal keeps the local copy of every given conflict.
func KeepAllLocal(conflicts []Conflict) Resolution {
	r := Resolution{KeepLocal: make(map[string]bool, len(conflicts))}
	for _, c := range conflicts {
		r.KeepLocal[c.Key()] = true
	}
	return r
}

// Keeps reports whether the local copy of c is kept.
func (r Resolution) Keeps(c Conflict) bool {
	return r.KeepLocal[c.Key()]
}

// Resolver decides what to do with conflicting files. It is called before
// anything is written locally.
type Resolver func(ctx context.Context, conflicts []Conflict) (Resolution, error)
