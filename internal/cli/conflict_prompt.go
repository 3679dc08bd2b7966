package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauern/agentsync/internal/diff"
	"github.com/klauern/agentsync/internal/sync"
)

// ConflictResolver asks on a line-oriented terminal what to do with files
// that differ between this device and the remote.
type ConflictResolver struct {
	reader *bufio.Reader
}

// NewConflictResolver creates a resolver reading answers from r.
func NewConflictResolver(r io.Reader) *ConflictResolver {
	return &ConflictResolver{
		reader: bufio.NewReader(r),
	}
}

// ConflictMode is the answer to the first question: how to handle all
// conflicts at once.
type ConflictMode string

const (
	// ConflictModeEach prompts for each conflict.
	ConflictModeEach ConflictMode = "each"

	// ConflictModeRemote takes the remote copy of every file.
	ConflictModeRemote ConflictMode = "remote"

	// ConflictModeLocal keeps every local file.
	ConflictModeLocal ConflictMode = "local"

	// ConflictModeAbort aborts the pull.
	ConflictModeAbort ConflictMode = "abort"
)

// Resolve implements sync.Resolver.
func (cr *ConflictResolver) Resolve(_ context.Context, conflicts []sync.Conflict) (sync.Resolution, error) {
	cr.DisplayConflictSummary(conflicts)

	mode, err := cr.PromptForConflictMode(len(conflicts))
	if err != nil {
		return sync.AbortPull(), err
	}

	switch mode {
	case ConflictModeRemote:
		return sync.AcceptRemote(), nil
	case ConflictModeLocal:
		return sync.KeepAllLocal(conflicts), nil
	case ConflictModeAbort:
		return sync.AbortPull(), nil
	}

	res := sync.Resolution{KeepLocal: make(map[string]bool)}
	for i, c := range conflicts {
		fmt.Printf("--- Conflict %d of %d: %s ---\n", i+1, len(conflicts), c.Key())
		cr.showDiffPreview(c)

		choice, err := cr.promptResolution(c)
		if err != nil {
			return sync.AbortPull(), fmt.Errorf("failed to get resolution for %s: %w", c.Key(), err)
		}
		switch choice {
		case ConflictModeAbort:
			return sync.AbortPull(), nil
		case ConflictModeLocal:
			res.KeepLocal[c.Key()] = true
			fmt.Printf("✓ Keeping local %s\n\n", c.Key())
		default:
			fmt.Printf("✓ Taking remote %s\n\n", c.Key())
		}
	}
	return res, nil
}

// showDiffPreview displays the first lines of the local to remote diff.
func (cr *ConflictResolver) showDiffPreview(c sync.Conflict) {
	hunks := c.Hunks()
	fmt.Printf("Changes: %s\n", c.Summary())
	fmt.Println(strings.Repeat("-", 50))

	maxLines := 10
	shown := 0

	for i, hunk := range hunks {
		if shown >= maxLines {
			fmt.Printf("... (%d more hunks not shown)\n", len(hunks)-i)
			break
		}

		fmt.Println(hunk.Header())
		for _, line := range hunk.Lines {
			if shown >= maxLines {
				fmt.Println("... (truncated)")
				break
			}
			fmt.Println(line.String())
			shown++
		}
	}

	fmt.Println(strings.Repeat("-", 50))
}

// promptResolution asks what to do with one conflict. The result is
// ConflictModeRemote, ConflictModeLocal or ConflictModeAbort.
func (cr *ConflictResolver) promptResolution(c sync.Conflict) (ConflictMode, error) {
	fmt.Println("\nHow would you like to resolve this conflict?")
	fmt.Println("  1. Take remote version (overwrite local file)")
	fmt.Println("  2. Keep local version")
	fmt.Println("  3. Show full local content")
	fmt.Println("  4. Show full remote content")
	fmt.Println("  5. Abort pull")
	fmt.Print("\nEnter choice [1-5]: ")

	for {
		response, err := cr.reader.ReadString('\n')
		if err != nil && response == "" {
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		choice, convErr := strconv.Atoi(strings.TrimSpace(response))
		if convErr != nil || choice < 1 || choice > 5 {
			if err != nil {
				return "", fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Print("Invalid choice. Enter 1-5: ")
			continue
		}

		switch choice {
		case 1:
			return ConflictModeRemote, nil
		case 2:
			return ConflictModeLocal, nil
		case 3:
			cr.showFullContent("LOCAL", c.Local.Content)
		case 4:
			cr.showFullContent("REMOTE", c.Remote.Content)
		case 5:
			return ConflictModeAbort, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		fmt.Print("\nEnter choice [1-5]: ")
	}
}

// showFullContent displays the full content of a version.
func (cr *ConflictResolver) showFullContent(label, content string) {
	fmt.Printf("\n=== %s CONTENT ===\n", label)
	fmt.Println(strings.Repeat("-", 50))

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		fmt.Printf("%4d | %s\n", i+1, line)
	}

	fmt.Println(strings.Repeat("-", 50))
}

// PromptForConflictMode asks the user how they want to handle conflicts.
func (cr *ConflictResolver) PromptForConflictMode(conflictCount int) (ConflictMode, error) {
	fmt.Printf("\n%d local file(s) differ from the remote copy.\n", conflictCount)
	fmt.Println("\nHow would you like to handle these conflicts?")
	fmt.Println("  1. Resolve each conflict interactively")
	fmt.Println("  2. Take remote for all (overwrite)")
	fmt.Println("  3. Keep local for all")
	fmt.Println("  4. Abort pull")
	fmt.Print("\nEnter choice [1-4]: ")

	response, err := cr.reader.ReadString('\n')
	if err != nil && response == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	response = strings.TrimSpace(response)
	choice, err := strconv.Atoi(response)
	if err != nil || choice < 1 || choice > 4 {
		return "", fmt.Errorf("invalid choice: %s", response)
	}

	switch choice {
	case 1:
		return ConflictModeEach, nil
	case 2:
		return ConflictModeRemote, nil
	case 3:
		return ConflictModeLocal, nil
	default:
		return ConflictModeAbort, nil
	}
}

// DisplayConflictSummary shows a summary of all conflicts.
func (cr *ConflictResolver) DisplayConflictSummary(conflicts []sync.Conflict) {
	fmt.Println("\n=== Conflict Summary ===")
	fmt.Printf("%-40s %-20s\n", "FILE", "CHANGES")
	fmt.Printf("%-40s %-20s\n", "----", "-------")

	for _, c := range conflicts {
		fmt.Printf("%-40s %-20s\n", truncate(c.Key(), 40), diffSummary(c))
	}
	fmt.Println()
}

func diffSummary(c sync.Conflict) string {
	return diff.Summary(c.Hunks())
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
