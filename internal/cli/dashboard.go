package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/progress"
	"github.com/klauern/agentsync/internal/sync"
	"github.com/klauern/agentsync/internal/ui/tui"
)

func dashboardCommand() *cli.Command {
	return &cli.Command{
		Name:    "dashboard",
		Aliases: []string{"ui"},
		Usage:   "Open the interactive menu",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if !progress.IsTerminal(os.Stdout) || !stdinIsTerminal() {
				return errors.New("dashboard needs an interactive terminal")
			}

			summary := "Status unavailable"
			if report, err := loadStatus(ctx, statusParams{offline: true}); err == nil {
				summary = dashboardSummary(report)
			}

			result, err := tui.RunDashboard(summary)
			if err != nil {
				return err
			}
			return runDashboardView(ctx, result.View)
		},
	}
}

func dashboardSummary(r *sync.StatusReport) string {
	files := 0
	for _, p := range r.Providers {
		files += p.Files
	}
	return fmt.Sprintf("%s · %d provider(s), %d file(s), %d context(s)",
		stateLabel(r.State), len(r.Providers), files, r.ContextCount)
}

func runDashboardView(ctx context.Context, view tui.DashboardView) error {
	switch view {
	case tui.DashboardViewStatus:
		return runStatus(ctx, statusParams{})
	case tui.DashboardViewPush:
		return runPush(ctx, pushParams{})
	case tui.DashboardViewPull:
		return runPull(ctx, pullParams{strategy: string(sync.StrategyInteractive)})
	case tui.DashboardViewBackups:
		e, err := loadEnv()
		if err != nil {
			return err
		}
		store, err := e.backupStore()
		if err != nil {
			return err
		}
		backups, err := store.List("")
		if err != nil {
			return err
		}
		return runBackupBrowser(ctx, e, backups)
	case tui.DashboardViewMCP:
		return runMCPList()
	case tui.DashboardViewProviders:
		return runProviders(ctx, false)
	}
	return nil
}
