package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/progress"
	"github.com/klauern/agentsync/internal/sync"
	"github.com/klauern/agentsync/internal/ui"
	"github.com/klauern/agentsync/internal/ui/tui"
)

type pullParams struct {
	strategy    string
	force       bool
	yes         bool
	dryRun      bool
	noTUI       bool
	providers   []string
	containerID string
}

func pullCommand() *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Download the sync gist and apply it to local configs",
		UsageText: "agentsync pull [options]",
		Description: `Fetch and decrypt the sync gist, then write its files into each provider's
   config root. Files that exist only locally are never deleted. Local files
   that differ from the remote are backed up before they are overwritten.

   Strategies:
     interactive  review differing files before they are overwritten (default)
     overwrite    replace differing local files with the remote copy
     skip         keep differing local files, only create missing ones

   Examples:
     agentsync pull --dry-run
     agentsync pull --strategy skip
     agentsync pull --provider cursor --yes`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Value:   string(sync.StrategyInteractive),
				Usage:   "How to treat differing local files (interactive, overwrite, skip)",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Overwrite differing local files without asking (same as --strategy overwrite)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Answer yes to conflict prompts, taking the remote copy",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Show what would change without writing anything",
			},
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Resolve conflicts with text prompts instead of the interactive list",
			},
			providerFlag(),
			gistFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runPull(ctx, pullParams{
				strategy:    cmd.String("strategy"),
				force:       cmd.Bool("force"),
				yes:         cmd.Bool("yes"),
				dryRun:      cmd.Bool("dry-run"),
				noTUI:       cmd.Bool("no-tui"),
				providers:   cmd.StringSlice("provider"),
				containerID: cmd.String("gist"),
			})
		},
	}
}

func runPull(ctx context.Context, p pullParams) error {
	strategy := sync.Strategy(p.strategy)
	if strategy == "" {
		strategy = sync.StrategyInteractive
	}
	if !strategy.IsValid() {
		return fmt.Errorf("invalid strategy %q (use interactive, overwrite or skip)", p.strategy)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	s, err := e.synchronizer(true)
	if err != nil {
		return err
	}
	ids, err := e.cfg.ProviderSelection(p.providers)
	if err != nil {
		return err
	}

	bar := progress.Spinner("Fetching remote configs")
	opts := sync.PullOptions{
		Strategy:    strategy,
		Force:       p.force,
		Providers:   ids,
		ContainerID: p.containerID,
		DryRun:      p.dryRun,
	}
	// Without a resolver, conflicts fail the pull with a conflict error.
	if resolver := conflictResolver(p); resolver != nil {
		opts.Resolve = func(ctx context.Context, conflicts []sync.Conflict) (sync.Resolution, error) {
			_ = bar.Clear()
			return resolver(ctx, conflicts)
		}
	}
	res, err := s.Pull(ctx, opts)
	_ = bar.Finish()
	if err != nil {
		// Partial failures still report what was written.
		if res != nil && len(res.Applied) > 0 {
			printPullResult(res)
		}
		return err
	}

	printPullResult(res)
	return nil
}

// conflictResolver picks how conflicts are answered. It returns nil when
// nobody can be asked.
func conflictResolver(p pullParams) sync.Resolver {
	if p.yes {
		return func(context.Context, []sync.Conflict) (sync.Resolution, error) {
			return sync.AcceptRemote(), nil
		}
	}
	if !stdinIsTerminal() {
		return nil
	}
	if !p.noTUI && progress.IsTerminal(os.Stdout) {
		return func(_ context.Context, conflicts []sync.Conflict) (sync.Resolution, error) {
			result, err := tui.RunConflictList(conflicts)
			if err != nil {
				return sync.AbortPull(), err
			}
			return result.Resolution(), nil
		}
	}
	return NewConflictResolver(stdin).Resolve
}

func printPullResult(res *sync.PullResult) {
	plan := res.Plan
	if res.Aborted {
		fmt.Println(ui.StatusSkipped("Pull aborted; no local files were changed"))
		return
	}

	header := fmt.Sprintf("Remote %s (v%d", plan.ContainerID, plan.RemoteVersion)
	if plan.RemoteSource != "" {
		header += ", from " + plan.RemoteSource
	}
	if !plan.RemoteUpdatedAt.IsZero() {
		header += ", updated " + plan.RemoteUpdatedAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Println(ui.Bold(header + ")"))

	providers := res.Applied
	if res.DryRun || len(providers) == 0 {
		providers = plan.Providers
	}
	for _, pp := range providers {
		printProviderPlan(pp, res.DryRun)
	}
	for _, id := range plan.Skipped {
		fmt.Println(ui.StatusSkipped(fmt.Sprintf("%s: not selected or not supported here", id)))
	}

	if res.DryRun {
		fmt.Println()
		if plan.HasChanges() {
			fmt.Println(ui.Info("Dry run: no files were written"))
		} else {
			fmt.Println(ui.Info("Dry run: local configs already match the remote"))
		}
		return
	}

	for _, b := range res.Backups {
		fmt.Printf("  %s backed up %d file(s) to %s\n", b.Provider, len(b.Files), ui.Dim(b.ID))
	}
	if n := len(res.MCP.Added) + len(res.MCP.Updated); n > 0 {
		fmt.Printf("  MCP servers: %d added, %d updated\n", len(res.MCP.Added), len(res.MCP.Updated))
	}
	if res.Contexts > 0 {
		fmt.Printf("  Session contexts: %d\n", res.Contexts)
	}

	fmt.Println()
	if res.Written() == 0 {
		fmt.Println(ui.StatusSuccess("Local configs already match the remote"))
		return
	}
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Wrote %d file(s)", res.Written())))
}

func printProviderPlan(pp sync.ProviderPlan, dryRun bool) {
	counts := []string{}
	for _, a := range []sync.Action{sync.ActionCreate, sync.ActionUpdate, sync.ActionKeepLocal, sync.ActionUnchanged, sync.ActionFailed} {
		if n := pp.Count(a); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, a))
		}
	}
	line := fmt.Sprintf("%s (%s): %s", pp.Provider, pp.ConfigRoot, strings.Join(counts, ", "))
	if pp.Count(sync.ActionFailed) > 0 {
		fmt.Println(ui.StatusError(line))
	} else {
		fmt.Println(ui.StatusSuccess(line))
	}

	for _, c := range pp.Changes {
		switch c.Action {
		case sync.ActionUnchanged:
			continue
		case sync.ActionFailed:
			fmt.Printf("    %s %s: %v\n", ui.Error(string(c.Action)), c.Path, c.Err)
		default:
			if dryRun || c.Action != sync.ActionKeepLocal {
				fmt.Printf("    %-10s %s\n", c.Action, c.Path)
			} else {
				fmt.Printf("    %-10s %s\n", ui.Dim(string(c.Action)), c.Path)
			}
		}
	}
}
