// Package diff computes line-oriented differences between two versions of a
// synced file. It is used to show what a pull would change locally.
package diff

import (
	"fmt"
	"strings"
)

// maxCells bounds the LCS table. Larger inputs are reported as a single
// replace-everything hunk.
const maxCells = 4_000_000

// LineType indicates the type of a diff line.
type LineType string

const (
	// LineContext is an unchanged line.
	LineContext LineType = " "
	// LineAdded is present only in the new version.
	LineAdded LineType = "+"
	// LineRemoved is present only in the old version.
	LineRemoved LineType = "-"
)

// Line is a single line in a hunk.
type Line struct {
	Type    LineType
	Content string
}

// String returns the line with its unified-diff prefix.
func (l Line) String() string {
	return string(l.Type) + l.Content
}

// Hunk is a contiguous block of changes. Start positions are 1-based.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Header returns the unified-diff range header of the hunk.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// Compute returns the hunks that turn oldText into newText. Identical inputs
// yield nil.
func Compute(oldText, newText string) []Hunk {
	if oldText == newText {
		return nil
	}
	return computeLines(SplitLines(oldText), SplitLines(newText))
}

// SplitLines splits content into lines without their terminators. A trailing
// newline does not produce an empty final line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

type op struct {
	kind LineType
	text string
}

func computeLines(oldLines, newLines []string) []Hunk {
	ops := editScript(oldLines, newLines)

	var hunks []Hunk
	var current *Hunk
	oldIdx, newIdx := 0, 0

	for _, o := range ops {
		switch o.kind {
		case LineContext:
			if current != nil {
				hunks = append(hunks, *current)
				current = nil
			}
			oldIdx++
			newIdx++
		case LineRemoved:
			if current == nil {
				current = &Hunk{OldStart: oldIdx + 1, NewStart: newIdx + 1}
			}
			current.Lines = append(current.Lines, Line{Type: LineRemoved, Content: o.text})
			current.OldCount++
			oldIdx++
		case LineAdded:
			if current == nil {
				current = &Hunk{OldStart: oldIdx + 1, NewStart: newIdx + 1}
			}
			current.Lines = append(current.Lines, Line{Type: LineAdded, Content: o.text})
			current.NewCount++
			newIdx++
		}
	}

	if current != nil {
		hunks = append(hunks, *current)
	}
	return hunks
}

// editScript walks the longest common subsequence of the two inputs and emits
// keep/remove/add operations in order. Removals precede additions within a
// changed block.
func editScript(a, b []string) []op {
	m, n := len(a), len(b)
	if m == 0 || n == 0 || m*n > maxCells {
		ops := make([]op, 0, m+n)
		for _, s := range a {
			ops = append(ops, op{LineRemoved, s})
		}
		for _, s := range b {
			ops = append(ops, op{LineAdded, s})
		}
		return ops
	}

	// dp[i][j] is the LCS length of a[i:] and b[j:].
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	ops := make([]op, 0, m+n)
	var added []op
	flush := func() {
		ops = append(ops, added...)
		added = added[:0]
	}

	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			flush()
			ops = append(ops, op{LineContext, a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, op{LineRemoved, a[i]})
			i++
		default:
			added = append(added, op{LineAdded, b[j]})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, op{LineRemoved, a[i]})
	}
	flush()
	for ; j < n; j++ {
		ops = append(ops, op{LineAdded, b[j]})
	}
	return ops
}

// Stats counts added and removed lines across hunks.
func Stats(hunks []Hunk) (added, removed int) {
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// Summary returns a short description such as "2 hunk(s), +3/-1 lines".
func Summary(hunks []Hunk) string {
	added, removed := Stats(hunks)
	return fmt.Sprintf("%d hunk(s), +%d/-%d lines", len(hunks), added, removed)
}

// Unified renders hunks as a unified diff between oldName and newName.
func Unified(oldName, newName string, hunks []Hunk) string {
	if len(hunks) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range hunks {
		sb.WriteString(h.Header())
		sb.WriteByte('\n')
		for _, l := range h.Lines {
			sb.WriteString(l.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
