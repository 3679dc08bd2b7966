package diff

import (
	"strings"
	"testing"
)

func TestCompute_Identical(t *testing.T) {
	if hunks := Compute("a\nb\n", "a\nb\n"); hunks != nil {
		t.Errorf("Compute() on identical input = %v, want nil", hunks)
	}
}

func TestCompute_SingleChange(t *testing.T) {
	hunks := Compute("a\nb\nc\n", "a\nB\nc\n")
	if len(hunks) != 1 {
		t.Fatalf("got %d hunks, want 1", len(hunks))
	}
	h := hunks[0]
	if h.OldStart != 2 || h.OldCount != 1 || h.NewStart != 2 || h.NewCount != 1 {
		t.Errorf("hunk range = %s, want @@ -2,1 +2,1 @@", h.Header())
	}
	want := []Line{{LineRemoved, "b"}, {LineAdded, "B"}}
	if len(h.Lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(h.Lines), len(want))
	}
	for i, l := range want {
		if h.Lines[i] != l {
			t.Errorf("line %d = %q, want %q", i, h.Lines[i].String(), l.String())
		}
	}
}

func TestCompute_AdditionsAndRemovals(t *testing.T) {
	tests := []struct {
		name        string
		old, new    string
		wantAdded   int
		wantRemoved int
		wantHunks   int
	}{
		{"append", "a\n", "a\nb\nc\n", 2, 0, 1},
		{"remove all", "a\nb\n", "", 0, 2, 1},
		{"create", "", "x\n", 1, 0, 1},
		{"two blocks", "a\nb\nc\nd\ne\n", "a\nX\nc\nd\nY\n", 2, 2, 2},
		{"crlf equivalent", "a\r\nb\r\n", "a\nb\nc\n", 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hunks := Compute(tt.old, tt.new)
			added, removed := Stats(hunks)
			if added != tt.wantAdded || removed != tt.wantRemoved {
				t.Errorf("Stats() = +%d/-%d, want +%d/-%d", added, removed, tt.wantAdded, tt.wantRemoved)
			}
			if len(hunks) != tt.wantHunks {
				t.Errorf("got %d hunks, want %d", len(hunks), tt.wantHunks)
			}
		})
	}
}

func TestCompute_HunkPositions(t *testing.T) {
	hunks := Compute("a\nb\nc\nd\ne\n", "a\nX\nc\nd\nY\n")
	if len(hunks) != 2 {
		t.Fatalf("got %d hunks, want 2", len(hunks))
	}
	if hunks[1].OldStart != 5 || hunks[1].NewStart != 5 {
		t.Errorf("second hunk header = %s, want start 5", hunks[1].Header())
	}
}

func TestSplitLines(t *testing.T) {
	if got := SplitLines(""); got != nil {
		t.Errorf("SplitLines(\"\") = %v, want nil", got)
	}
	if got := SplitLines("a\nb\n"); len(got) != 2 {
		t.Errorf("SplitLines trailing newline = %v, want 2 lines", got)
	}
	if got := SplitLines("a\n\nb"); len(got) != 3 || got[1] != "" {
		t.Errorf("SplitLines blank middle line = %q", got)
	}
}

func TestSummaryAndUnified(t *testing.T) {
	hunks := Compute("one\ntwo\n", "one\nthree\n")
	if got := Summary(hunks); got != "1 hunk(s), +1/-1 lines" {
		t.Errorf("Summary() = %q", got)
	}

	out := Unified("local/agent.md", "remote/agent.md", hunks)
	for _, want := range []string{"--- local/agent.md", "+++ remote/agent.md", "@@ -2,1 +2,1 @@", "-two", "+three"} {
		if !strings.Contains(out, want) {
			t.Errorf("Unified() missing %q in:\n%s", want, out)
		}
	}
	if Unified("a", "b", nil) != "" {
		t.Error("Unified() with no hunks should be empty")
	}
}

func TestCompute_LargeInputFallsBack(t *testing.T) {
	old := strings.Repeat("x\n", 2100)
	updated := strings.Repeat("y\n", 2100)
	hunks := Compute(old, updated)
	added, removed := Stats(hunks)
	if added != 2100 || removed != 2100 {
		t.Errorf("Stats() = +%d/-%d, want +2100/-2100", added, removed)
	}
}
