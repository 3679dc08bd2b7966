package model

import (
	"fmt"
	"sort"

	"github.com/klauern/agentsync/internal/fingerprint"
)

// CollectedFile is one syncable file read from a provider's config root.
type CollectedFile struct {
	// RelativePath is relative to the provider's config root and always uses
	// forward slashes. It is the identity used for conflict comparison.
	RelativePath string
	Content      string
	ContentHash  string
}

// NewCollectedFile builds a CollectedFile, computing its content hash.
func NewCollectedFile(relPath, content string) CollectedFile {
	return CollectedFile{
		RelativePath: relPath,
		Content:      content,
		ContentHash:  fingerprint.String(content),
	}
}

// ProviderSnapshot is the sorted, hashed state of one provider's files.
type ProviderSnapshot struct {
	ProviderID ProviderID
	// Files are sorted by RelativePath.
	Files []CollectedFile
	// CombinedHash is "" when Files is empty.
	CombinedHash string
	ConfigRoot   string
}

// NewProviderSnapshot sorts files by relative path and computes the combined
// hash. When two entries share a path the later one wins.
func NewProviderSnapshot(id ProviderID, root string, files []CollectedFile) ProviderSnapshot {
	byPath := make(map[string]CollectedFile, len(files))
	for _, f := range files {
		byPath[f.RelativePath] = f
	}

	sorted := make([]CollectedFile, 0, len(byPath))
	for _, f := range byPath {
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RelativePath < sorted[j].RelativePath
	})

	return ProviderSnapshot{
		ProviderID:   id,
		Files:        sorted,
		CombinedHash: CombineFileHashes(sorted),
		ConfigRoot:   root,
	}
}

// EmptySnapshot returns the snapshot of a provider with nothing to sync.
func EmptySnapshot(id ProviderID, root string) ProviderSnapshot {
	return ProviderSnapshot{ProviderID: id, Files: []CollectedFile{}, ConfigRoot: root}
}

// CombineFileHashes hashes "{path}:{hash}\n" over files in the given order.
// Files must already be sorted. An empty list yields "".
func CombineFileHashes(files []CollectedFile) string {
	if len(files) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(files)*96)
	for _, f := range files {
		buf = fmt.Appendf(buf, "%s:%s\n", f.RelativePath, f.ContentHash)
	}
	return fingerprint.Sum(buf)
}

// IsEmpty reports whether the snapshot holds no files.
func (s ProviderSnapshot) IsEmpty() bool {
	return len(s.Files) == 0
}

// FileMap indexes the snapshot's files by relative path.
func (s ProviderSnapshot) FileMap() map[string]CollectedFile {
	m := make(map[string]CollectedFile, len(s.Files))
	for _, f := range s.Files {
		m[f.RelativePath] = f
	}
	return m
}

// MultiProviderSnapshot aggregates the snapshots of several providers.
type MultiProviderSnapshot struct {
	Snapshots    map[ProviderID]ProviderSnapshot
	CombinedHash string
}

// NewMultiProviderSnapshot computes the top-level hash over the snapshots,
// sorted by provider ID so enumeration order never matters.
func NewMultiProviderSnapshot(snapshots map[ProviderID]ProviderSnapshot) MultiProviderSnapshot {
	if snapshots == nil {
		snapshots = make(map[ProviderID]ProviderSnapshot)
	}
	ids := make([]ProviderID, 0, len(snapshots))
	for id := range snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s:%s", id, snapshots[id].CombinedHash)
	}

	return MultiProviderSnapshot{
		Snapshots:    snapshots,
		CombinedHash: fingerprint.Join(parts...),
	}
}

// ProviderIDs returns the IDs present in the snapshot, sorted.
func (m MultiProviderSnapshot) ProviderIDs() []ProviderID {
	ids := make([]ProviderID, 0, len(m.Snapshots))
	for id := range m.Snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FileCount returns the total number of files across providers.
func (m MultiProviderSnapshot) FileCount() int {
	n := 0
	for _, s := range m.Snapshots {
		n += len(s.Files)
	}
	return n
}
