// Package payload defines the versioned document exchanged between devices.
//
// A payload is either a V1 document (single implicit provider) or a V2
// document (one entry per provider plus MCP servers). Readers dispatch on
// meta.version and convert V1 into the V2 shape with Normalize so that only
// one code path deals with post-parse logic.
package payload

import (
	"errors"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
)

const (
	Version1 = 1
	Version2 = 2

	// CurrentVersion is written by Build.
	CurrentVersion = Version2
)

// V1Provider is the provider implied by V1 documents.
const V1Provider = model.OpenCode

// ErrUnsupportedVersion is returned for documents written by a future
// format. Such documents are never partially applied.
var ErrUnsupportedVersion = errors.New("unsupported payload version")

// File is one synced file inside a payload.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ProviderData holds a provider's files and their combined hash.
type ProviderData struct {
	Files []File `json:"files"`
	Hash  string `json:"hash"`
}

// Contexts wraps the session context list.
type Contexts struct {
	Items []model.SessionContext `json:"items"`
}

// Meta carries the discriminator and provenance.
type Meta struct {
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
	Source    string `json:"source"`
}

// Payload is implemented only by *V1 and *V2.
type Payload interface {
	Version() int
	Metadata() Meta
	sealed()
}

// V1 is the original single-provider document.
type V1 struct {
	Config   ProviderData `json:"config"`
	Contexts *Contexts    `json:"contexts,omitempty"`
	Meta     Meta         `json:"meta"`
}

// V2 is the multi-provider document.
type V2 struct {
	Providers  map[model.ProviderID]ProviderData `json:"providers"`
	MCPServers []model.MCPServerConfig           `json:"mcpServers,omitempty"`
	Contexts   *Contexts                         `json:"contexts,omitempty"`
	Meta       Meta                              `json:"meta"`
}

func (*V1) Version() int     { return Version1 }
func (p *V1) Metadata() Meta { return p.Meta }
func (*V1) sealed()          {}

func (*V2) Version() int     { return Version2 }
func (p *V2) Metadata() Meta { return p.Meta }
func (*V2) sealed()          {}

// Parse decodes a payload document, dispatching on meta.version.
func Parse(data []byte) (Payload, error) {
	var probe struct {
		Meta *struct {
			Version int `json:"version"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if probe.Meta == nil {
		return nil, fmt.Errorf("%w: missing meta.version", ErrUnsupportedVersion)
	}

	switch probe.Meta.Version {
	case Version1:
		var p V1
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse v1 payload: %w", err)
		}
		return &p, nil
	case Version2:
		var p V2
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse v2 payload: %w", err)
		}
		if p.Providers == nil {
			p.Providers = make(map[model.ProviderID]ProviderData)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Meta.Version)
	}
}

// Marshal encodes a payload document.
func Marshal(p Payload) ([]byte, error) {
	switch p := p.(type) {
	case *V1:
		return json.Marshal(p)
	case *V2:
		return json.Marshal(p)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedVersion, p)
	}
}

// Normalize returns p in the V2 shape. A V1 document becomes a V2 document
// holding V1Provider's files; its meta is preserved.
func Normalize(p Payload) (*V2, error) {
	switch p := p.(type) {
	case *V2:
		return p, nil
	case *V1:
		return &V2{
			Providers: map[model.ProviderID]ProviderData{V1Provider: p.Config},
			Contexts:  p.Contexts,
			Meta:      p.Meta,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedVersion, p)
	}
}

// ConfigHash returns the V1 config hash, or "" for V2 documents. Pull
// records it as the last config hash.
func ConfigHash(p Payload) string {
	if v1, ok := p.(*V1); ok {
		return v1.Config.Hash
	}
	return ""
}

// BuildOptions carries the inputs of a new V2 document.
type BuildOptions struct {
	Snapshot   model.MultiProviderSnapshot
	MCPServers []model.MCPServerConfig
	Contexts   []model.SessionContext
	Source     string
	Now        time.Time
}

// Build assembles a V2 payload from a multi-provider snapshot.
func Build(opts BuildOptions) *V2 {
	providers := make(map[model.ProviderID]ProviderData, len(opts.Snapshot.Snapshots))
	for id, snap := range opts.Snapshot.Snapshots {
		providers[id] = FromSnapshot(snap)
	}

	var servers []model.MCPServerConfig
	if len(opts.MCPServers) > 0 {
		servers = append(servers, opts.MCPServers...)
		model.SortMCPServers(servers)
	}

	items := opts.Contexts
	if items == nil {
		items = []model.SessionContext{}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	return &V2{
		Providers:  providers,
		MCPServers: servers,
		Contexts:   &Contexts{Items: items},
		Meta: Meta{
			Version:   CurrentVersion,
			UpdatedAt: now.UTC().Format(time.RFC3339),
			Source:    opts.Source,
		},
	}
}

// FromSnapshot converts a provider snapshot into payload form.
func FromSnapshot(s model.ProviderSnapshot) ProviderData {
	files := make([]File, len(s.Files))
	for i, f := range s.Files {
		files[i] = File{Path: f.RelativePath, Content: f.Content}
	}
	return ProviderData{Files: files, Hash: s.CombinedHash}
}

// CollectedFiles converts payload files into collected files, sorted by path.
func (d ProviderData) CollectedFiles() []model.CollectedFile {
	files := make([]model.CollectedFile, len(d.Files))
	for i, f := range d.Files {
		files[i] = model.NewCollectedFile(f.Path, f.Content)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files
}

// ProviderIDs returns the providers present in the document, sorted.
func (p *V2) ProviderIDs() []model.ProviderID {
	ids := make([]model.ProviderID, 0, len(p.Providers))
	for id := range p.Providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
