package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

func testSnapshot() model.MultiProviderSnapshot {
	return model.NewMultiProviderSnapshot(map[model.ProviderID]model.ProviderSnapshot{
		model.OpenCode: model.NewProviderSnapshot(model.OpenCode, "/home/me/.config/opencode", []model.CollectedFile{
			model.NewCollectedFile("AGENTS.md", "# agents\n"),
			model.NewCollectedFile("agent/review.md", "review carefully"),
		}),
		model.Cursor: model.NewProviderSnapshot(model.Cursor, "/home/me/.cursor", []model.CollectedFile{
			model.NewCollectedFile("rules/style.mdc", "tabs"),
		}),
		model.Codex: model.EmptySnapshot(model.Codex, "/home/me/.codex"),
	})
}

func TestCreateExtract_RoundTrip(t *testing.T) {
	snap := testSnapshot()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	manifest, err := Create(snap, &buf, CreateOptions{Source: "agentsync@test", Now: now})
	util.AssertNoError(t, err)
	util.AssertEqual(t, manifest.FileCount, 3)
	util.AssertEqual(t, len(manifest.Providers), 2)

	got, read, err := Extract(&buf, ExtractOptions{})
	util.AssertNoError(t, err)
	util.AssertEqual(t, read.Source, "agentsync@test")
	util.AssertEqual(t, read.CreatedAt.Equal(now), true)
	util.AssertEqual(t, got.CombinedHash, model.NewMultiProviderSnapshot(map[model.ProviderID]model.ProviderSnapshot{
		model.OpenCode: snap.Snapshots[model.OpenCode],
		model.Cursor:   snap.Snapshots[model.Cursor],
	}).CombinedHash)
	util.AssertEqual(t, got.Snapshots[model.Cursor].ConfigRoot, "/home/me/.cursor")
	util.AssertEqual(t, got.Snapshots[model.OpenCode].FileMap()["agent/review.md"].Content, "review carefully")
}

func TestCreate_Filters(t *testing.T) {
	tests := map[string]struct {
		providers []model.ProviderID
		wantFiles int
		wantErr   error
	}{
		"all":          {wantFiles: 3},
		"one provider": {providers: []model.ProviderID{model.Cursor}, wantFiles: 1},
		"only empty":   {providers: []model.ProviderID{model.Codex}, wantErr: ErrEmpty},
		"not present":  {providers: []model.ProviderID{model.ClaudeCode}, wantErr: ErrEmpty},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			manifest, err := Create(testSnapshot(), &buf, CreateOptions{Providers: tt.providers})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			util.AssertNoError(t, err)
			util.AssertEqual(t, manifest.FileCount, tt.wantFiles)
		})
	}
}

func TestExtract_ProviderFilter(t *testing.T) {
	var buf bytes.Buffer
	_, err := Create(testSnapshot(), &buf, CreateOptions{})
	util.AssertNoError(t, err)

	got, _, err := Extract(&buf, ExtractOptions{Providers: []model.ProviderID{model.OpenCode}})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(got.Snapshots), 1)
	util.AssertEqual(t, got.FileCount(), 2)
}

// rawArchive builds a tar.gz from name/content pairs.
func rawArchive(t *testing.T, entries ...[2]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		util.AssertNoError(t, tw.WriteHeader(&tar.Header{Name: e[0], Mode: 0o600, Size: int64(len(e[1]))}))
		_, err := tw.Write([]byte(e[1]))
		util.AssertNoError(t, err)
	}
	util.AssertNoError(t, tw.Close())
	util.AssertNoError(t, gz.Close())
	return &buf
}

func manifestFor(t *testing.T, provider model.ProviderID, path, content string) string {
	t.Helper()
	data, err := json.Marshal(Manifest{
		Version:   FormatVersion,
		FileCount: 1,
		Providers: []ManifestEntry{{
			Provider: provider,
			Files:    []ManifestFile{{Path: path, Hash: model.NewCollectedFile(path, content).ContentHash}},
		}},
	})
	util.AssertNoError(t, err)
	return string(data)
}

func TestExtract_Rejects(t *testing.T) {
	tests := map[string]struct {
		archive *bytes.Buffer
		wantErr error
	}{
		"missing manifest": {
			archive: rawArchive(t, [2]string{"files/cursor/a.mdc", "x"}),
			wantErr: ErrCorrupt,
		},
		"tampered file": {
			archive: rawArchive(t,
				[2]string{"files/cursor/a.mdc", "changed"},
				[2]string{"manifest.json", manifestFor(t, model.Cursor, "a.mdc", "original")}),
			wantErr: ErrCorrupt,
		},
		"missing file": {
			archive: rawArchive(t, [2]string{"manifest.json", manifestFor(t, model.Cursor, "a.mdc", "x")}),
			wantErr: ErrCorrupt,
		},
		"escaping path": {
			archive: rawArchive(t, [2]string{"files/cursor/../../etc/passwd", "x"}),
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Extract(tt.archive, ExtractOptions{})
			if err == nil {
				t.Fatal("Extract() succeeded, want an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Extract() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtract_NotGzip(t *testing.T) {
	if _, _, err := Extract(bytes.NewBufferString("plain text"), ExtractOptions{}); err == nil {
		t.Error("Extract() succeeded on a non-gzip stream")
	}
}

func TestManifestSummary(t *testing.T) {
	var buf bytes.Buffer
	manifest, err := Create(testSnapshot(), &buf, CreateOptions{})
	util.AssertNoError(t, err)

	lines := manifest.Summary()
	util.AssertEqual(t, len(lines), 2)
	util.AssertEqual(t, lines[0], "cursor: 1 file(s)")
	util.AssertEqual(t, lines[1], "opencode: 2 file(s)")
}
