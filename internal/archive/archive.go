// Package archive writes local provider snapshots to portable tar.gz files
// and reads them back. Archives are not encrypted; they are meant for
// offline transfer and manual backups.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/model"
)

// FormatVersion is the manifest version written by Create.
const FormatVersion = 1

const (
	manifestName = "manifest.json"
	filesDir     = "files"
)

var (
	// ErrEmpty is returned by Create when no file matches the filters.
	ErrEmpty = errors.New("no files to archive")
	// ErrCorrupt is returned by Extract when the archive does not match its
	// manifest.
	ErrCorrupt = errors.New("archive does not match its manifest")
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Source    string          `json:"source,omitempty"`
	FileCount int             `json:"file_count"`
	Providers []ManifestEntry `json:"providers"`
}

// ManifestEntry lists one provider's files.
type ManifestEntry struct {
	Provider     model.ProviderID `json:"provider"`
	ConfigRoot   string           `json:"config_root"`
	CombinedHash string           `json:"combined_hash"`
	Files        []ManifestFile   `json:"files"`
}

// ManifestFile is one archived file.
type ManifestFile struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// CreateOptions configures archive creation.
type CreateOptions struct {
	// Providers limits the archive to these providers (empty = all).
	Providers []model.ProviderID
	Source    string
	Now       time.Time
}

// ExtractOptions configures archive extraction.
type ExtractOptions struct {
	// Providers limits extraction to these providers (empty = all).
	Providers []model.ProviderID
}

// Create writes the snapshot as a tar.gz archive to w. Provider files live
// under files/<provider>/<path> next to a manifest.json.
func Create(snapshot model.MultiProviderSnapshot, w io.Writer, opts CreateOptions) (*Manifest, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	manifest := &Manifest{
		Version:   FormatVersion,
		CreatedAt: now.UTC(),
		Source:    opts.Source,
	}

	wanted := providerSet(opts.Providers)
	var selected []model.ProviderSnapshot
	for _, id := range snapshot.ProviderIDs() {
		snap := snapshot.Snapshots[id]
		if (len(wanted) > 0 && !wanted[id]) || snap.IsEmpty() {
			continue
		}
		selected = append(selected, snap)
		manifest.FileCount += len(snap.Files)
	}
	if manifest.FileCount == 0 {
		return nil, ErrEmpty
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	for _, snap := range selected {
		entry := ManifestEntry{
			Provider:     snap.ProviderID,
			ConfigRoot:   snap.ConfigRoot,
			CombinedHash: snap.CombinedHash,
		}
		for _, f := range snap.Files {
			name := path.Join(filesDir, string(snap.ProviderID), f.RelativePath)
			if err := writeEntry(tarWriter, name, []byte(f.Content), now); err != nil {
				return nil, err
			}
			entry.Files = append(entry.Files, ManifestFile{
				Path: f.RelativePath,
				Hash: f.ContentHash,
				Size: int64(len(f.Content)),
			})
		}
		manifest.Providers = append(manifest.Providers, entry)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := writeEntry(tarWriter, manifestName, data, now); err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return manifest, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Extract reads an archive written by Create. Every file is checked against
// the manifest hashes, and paths that would escape a config root are
// rejected. Nothing is written to disk.
func Extract(r io.Reader, opts ExtractOptions) (model.MultiProviderSnapshot, *Manifest, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return model.MultiProviderSnapshot{}, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = gzReader.Close() }()

	tarReader := tar.NewReader(gzReader)

	var manifest *Manifest
	contents := make(map[model.ProviderID]map[string]string)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.MultiProviderSnapshot{}, nil, fmt.Errorf("failed to read archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tarReader)
		if err != nil {
			return model.MultiProviderSnapshot{}, nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}

		if header.Name == manifestName {
			if err := json.Unmarshal(data, &manifest); err != nil {
				return model.MultiProviderSnapshot{}, nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			continue
		}

		id, rel, ok := splitEntry(header.Name)
		if !ok {
			continue
		}
		if _, err := collect.SafeJoin("/", rel); err != nil {
			return model.MultiProviderSnapshot{}, nil, err
		}
		if contents[id] == nil {
			contents[id] = make(map[string]string)
		}
		contents[id][rel] = string(data)
	}

	if manifest == nil {
		return model.MultiProviderSnapshot{}, nil, fmt.Errorf("%w: missing %s", ErrCorrupt, manifestName)
	}
	if manifest.Version > FormatVersion {
		return model.MultiProviderSnapshot{}, nil, fmt.Errorf("unsupported archive version %d", manifest.Version)
	}

	wanted := providerSet(opts.Providers)
	snapshots := make(map[model.ProviderID]model.ProviderSnapshot, len(manifest.Providers))
	for _, entry := range manifest.Providers {
		if len(wanted) > 0 && !wanted[entry.Provider] {
			continue
		}
		files := make([]model.CollectedFile, 0, len(entry.Files))
		for _, mf := range entry.Files {
			content, ok := contents[entry.Provider][mf.Path]
			if !ok {
				return model.MultiProviderSnapshot{}, nil, fmt.Errorf("%w: %s/%s is missing", ErrCorrupt, entry.Provider, mf.Path)
			}
			f := model.NewCollectedFile(mf.Path, content)
			if f.ContentHash != mf.Hash {
				return model.MultiProviderSnapshot{}, nil, fmt.Errorf("%w: %s/%s hash mismatch", ErrCorrupt, entry.Provider, mf.Path)
			}
			files = append(files, f)
		}
		snapshots[entry.Provider] = model.NewProviderSnapshot(entry.Provider, entry.ConfigRoot, files)
	}
	return model.NewMultiProviderSnapshot(snapshots), manifest, nil
}

// splitEntry maps files/<provider>/<path> to its provider and path.
func splitEntry(name string) (model.ProviderID, string, bool) {
	rest, ok := strings.CutPrefix(name, filesDir+"/")
	if !ok {
		return "", "", false
	}
	provider, rel, ok := strings.Cut(rest, "/")
	if !ok || rel == "" {
		return "", "", false
	}
	id, err := model.ParseProviderID(provider)
	if err != nil {
		return "", "", false
	}
	return id, rel, true
}

func providerSet(ids []model.ProviderID) map[model.ProviderID]bool {
	set := make(map[model.ProviderID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Summary returns "<provider>: N file(s)" lines in provider order.
func (m *Manifest) Summary() []string {
	lines := make([]string, 0, len(m.Providers))
	for _, e := range m.Providers {
		lines = append(lines, fmt.Sprintf("%s: %d file(s)", e.Provider, len(e.Files)))
	}
	sort.Strings(lines)
	return lines
}
