package collect

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// walkFn receives the on-disk path and the forward-slash path relative to
// the walk root for every regular file (or symlink to one).
type walkFn func(path, rel string) error

// walkFollowSymlinks walks root, descending into symlinked directories as if
// they were native. A directory reached twice by different paths is walked
// under each path; only a directory that is its own ancestor (a cycle) is
// skipped. prune is consulted for every directory below root; returning true
// skips it.
func walkFollowSymlinks(ctx context.Context, root string, prune func(rel string) bool, fn walkFn) error {
	ancestors := make(map[string]bool)
	return walkDir(ctx, root, "", ancestors, prune, fn)
}

// ancestors holds the resolved paths of the directories on the current
// descent.
func walkDir(ctx context.Context, dir, rel string, ancestors map[string]bool, prune func(string) bool, fn walkFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		realDir = dir
	}
	if ancestors[realDir] {
		logSkipped(filepath.ToSlash(rel), nil, "symlink cycle")
		return nil
	}
	ancestors[realDir] = true
	defer delete(ancestors, realDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if rel == "" {
			return err
		}
		logSkipped(filepath.ToSlash(rel), err, "unreadable directory")
		return nil
	}

	for _, entry := range entries {
		childPath := filepath.Join(dir, entry.Name())
		childRel := entry.Name()
		if rel != "" {
			childRel = rel + "/" + entry.Name()
		}

		// Stat follows symlinks so linked directories and files are
		// treated like native ones.
		info, err := os.Stat(childPath)
		if err != nil {
			logSkipped(childRel, err, "unresolvable entry")
			continue
		}

		if info.IsDir() {
			if prune != nil && prune(childRel) {
				continue
			}
			if err := walkDir(ctx, childPath, childRel, ancestors, prune, fn); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := fn(childPath, childRel); err != nil {
			return err
		}
	}
	return nil
}

// matcher evaluates include patterns and the blocklist against relative paths.
type matcher struct {
	include []string
	block   []string
}

func newMatcher(include, block []string) matcher {
	return matcher{include: validPatterns(include), block: validPatterns(block)}
}

func validPatterns(patterns []string) []string {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			logSkipped(p, doublestar.ErrBadPattern, "invalid pattern")
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// Included reports whether rel matches an include pattern and no blocklist
// pattern. The blocklist always wins.
func (m matcher) Included(rel string) bool {
	return matchAny(m.include, rel) && !m.Blocked(rel)
}

// Blocked reports whether rel matches a blocklist pattern.
func (m matcher) Blocked(rel string) bool {
	return matchAny(m.block, rel)
}

// PruneDir reports whether a whole directory is blocklisted, so the walk
// never descends into node_modules, .git, session logs and the like.
func (m matcher) PruneDir(rel string) bool {
	for _, p := range m.block {
		dirPattern, ok := strings.CutSuffix(p, "/**")
		if !ok {
			continue
		}
		if ok, _ := doublestar.Match(dirPattern, rel); ok {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
