package collect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/model"
)

// ErrUnsafePath is returned for incoming paths that are absolute or escape
// the config root.
var ErrUnsafePath = errors.New("unsafe relative path")

// Spec describes what to collect for one provider.
type Spec struct {
	Provider  model.ProviderID
	Root      string
	Patterns  []string
	Blocklist []string
}

// Collect snapshots the files under spec.Root that match spec.Patterns and
// no pattern in spec.Blocklist.
func Collect(ctx context.Context, spec Spec) (model.ProviderSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.ProviderSnapshot{}, err
	}
	log := logging.WithContext(ctx).With(logging.Provider(spec.Provider.String()))

	info, err := os.Stat(spec.Root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("config root unreadable, treating as empty", logging.Path(spec.Root), logging.Err(err))
		}
		return model.EmptySnapshot(spec.Provider, spec.Root), nil
	}
	if !info.IsDir() {
		log.Warn("config root is not a directory, treating as empty", logging.Path(spec.Root))
		return model.EmptySnapshot(spec.Provider, spec.Root), nil
	}

	m := newMatcher(spec.Patterns, spec.Blocklist)
	var files []model.CollectedFile
	err = walkFollowSymlinks(ctx, spec.Root, m.PruneDir, func(path, rel string) error {
		if !m.Included(rel) {
			return nil
		}
		f, err := readFile(path, rel)
		if err != nil {
			log.Warn("skipping unreadable file", logging.Path(rel), logging.Err(err))
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.ProviderSnapshot{}, ctxErr
		}
		log.Warn("config root walk failed, treating as empty", logging.Path(spec.Root), logging.Err(err))
		return model.EmptySnapshot(spec.Provider, spec.Root), nil
	}

	snap := model.NewProviderSnapshot(spec.Provider, spec.Root, files)
	log.Debug("collected provider", logging.Count(len(snap.Files)))
	return snap, nil
}

// readFile reads one matched file, resolving symlinks and falling back to
// the unresolved path when resolution fails.
func readFile(path, rel string) (model.CollectedFile, error) {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		target = path
	}
	// #nosec G304 - path comes from walking the provider's own config root
	data, err := os.ReadFile(target)
	if err != nil {
		return model.CollectedFile{}, err
	}
	return model.NewCollectedFile(rel, string(data)), nil
}

func logSkipped(rel string, err error, msg string) {
	logging.Debug(msg, logging.Path(rel), logging.Err(err))
}

// ApplyResult reports the outcome of writing files under a config root.
type ApplyResult struct {
	Written []string
	Failed  map[string]error
}

// Apply writes files under root, creating parent directories as needed.
// Existing files are overwritten with their mode preserved; nothing is ever
// deleted. Per-file failures are collected in the result. The returned error
// is non-nil only when the root cannot be created or every file failed.
func Apply(ctx context.Context, root string, files []model.CollectedFile) (ApplyResult, error) {
	result := ApplyResult{Failed: make(map[string]error)}
	if len(files) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return result, fmt.Errorf("create config root: %w", err)
	}

	log := logging.WithContext(ctx)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := writeFile(root, f); err != nil {
			log.Warn("failed to write file", logging.Path(f.RelativePath), logging.Err(err))
			result.Failed[f.RelativePath] = err
			continue
		}
		result.Written = append(result.Written, f.RelativePath)
	}

	if len(result.Written) == 0 {
		return result, fmt.Errorf("apply to %s: all %d files failed: %w", root, len(files), errors.Join(failedErrors(result.Failed)...))
	}
	return result, nil
}

func failedErrors(failed map[string]error) []error {
	errs := make([]error, 0, len(failed))
	for _, err := range failed {
		errs = append(errs, err)
	}
	return errs
}

func writeFile(root string, f model.CollectedFile) error {
	target, err := SafeJoin(root, f.RelativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	mode := os.FileMode(0o600)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(target, []byte(f.Content), mode)
}

// SafeJoin joins a forward-slash relative path onto root, rejecting absolute
// paths and any path that would escape root.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, rel)
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the config root", ErrUnsafePath, rel)
		}
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// Collector produces a snapshot for one provider.
type Collector interface {
	ID() model.ProviderID
	Collect(ctx context.Context) (model.ProviderSnapshot, error)
}

// Options tunes CollectAll.
type Options struct {
	// OnCollected is called once per provider as soon as its snapshot is
	// ready. It is invoked from multiple goroutines.
	OnCollected func(model.ProviderSnapshot)
}

// CollectAll snapshots every collector concurrently. A collector that fails
// contributes an empty snapshot. Only context cancellation is returned.
func CollectAll(ctx context.Context, collectors []Collector, opts Options) (model.MultiProviderSnapshot, error) {
	defer logging.Timer("collect")()

	var mu sync.Mutex
	snapshots := make(map[model.ProviderID]model.ProviderSnapshot, len(collectors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(len(collectors), 1))
	for _, c := range collectors {
		g.Go(func() error {
			snap, err := c.Collect(gctx)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logging.WithContext(ctx).Warn("provider collection failed",
					logging.Provider(c.ID().String()), logging.Err(err))
				snap = model.EmptySnapshot(c.ID(), "")
			}
			snap.ProviderID = c.ID()

			mu.Lock()
			snapshots[c.ID()] = snap
			mu.Unlock()

			if opts.OnCollected != nil {
				opts.OnCollected(snap)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.MultiProviderSnapshot{}, err
	}
	return model.NewMultiProviderSnapshot(snapshots), nil
}
