package contexts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/util"
)

func ctxAt(id string, created time.Time) model.SessionContext {
	return model.SessionContext{ID: id, Name: "session " + id, Content: "notes " + id, CreatedAt: created}
}

func TestLoad_Missing(t *testing.T) {
	items, err := NewStore(filepath.Join(util.CreateTempDir(t), "contexts.json"), 0).Load()
	util.AssertNoError(t, err)
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty list, got %v", items)
	}
}

func TestSaveLoad_NewestFirstAndBounded(t *testing.T) {
	s := NewStore(filepath.Join(util.CreateTempDir(t), "contexts.json"), 2)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := base.Add(10 * time.Hour)

	old := ctxAt("old", base)
	mid := ctxAt("mid", base.Add(time.Hour))
	touched := ctxAt("touched", base)
	touched.UpdatedAt = &updated

	util.AssertNoError(t, s.Save([]model.SessionContext{old, mid, touched}))
	items, err := s.Load()
	util.AssertNoError(t, err)

	if len(items) != 2 {
		t.Fatalf("expected 2 items after trimming, got %d", len(items))
	}
	if items[0].ID != "touched" || items[1].ID != "mid" {
		t.Errorf("order = %s, %s", items[0].ID, items[1].ID)
	}
}

func TestHash(t *testing.T) {
	if Hash(nil) != "" {
		t.Error("empty list must hash to empty string")
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := ctxAt("a", base), ctxAt("b", base.Add(time.Minute))

	h1 := Hash([]model.SessionContext{a, b})
	h2 := Hash([]model.SessionContext{b, a})
	if h1 == "" || h1 != h2 {
		t.Errorf("hash should be order independent: %q vs %q", h1, h2)
	}

	b.Content = "changed"
	if Hash([]model.SessionContext{a, b}) == h1 {
		t.Error("hash should change with content")
	}
}

func TestHash_StableAcrossSaveLoad(t *testing.T) {
	s := NewStore(filepath.Join(util.CreateTempDir(t), "contexts.json"), 0)
	base := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	items := []model.SessionContext{ctxAt("x", base), ctxAt("y", base.Add(time.Second))}

	util.AssertNoError(t, s.Save(items))
	loaded, err := s.Load()
	util.AssertNoError(t, err)
	if Hash(loaded) != Hash(items) {
		t.Error("hash must survive a save/load round trip")
	}
}
