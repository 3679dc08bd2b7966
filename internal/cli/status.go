package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/sync"
	"github.com/klauern/agentsync/internal/ui"
)

type statusParams struct {
	offline     bool
	providers   []string
	containerID string
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Compare local configs with the last sync",
		UsageText: "agentsync status [options]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Do not check the remote gist",
			},
			providerFlag(),
			gistFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStatus(ctx, statusParams{
				offline:     cmd.Bool("offline"),
				providers:   cmd.StringSlice("provider"),
				containerID: cmd.String("gist"),
			})
		},
	}
}

func runStatus(ctx context.Context, p statusParams) error {
	report, err := loadStatus(ctx, p)
	if err != nil {
		return err
	}
	printStatus(report)
	return nil
}

// loadStatus runs a status check. Without credentials it stays offline.
func loadStatus(ctx context.Context, p statusParams) (*sync.StatusReport, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	s, err := e.synchronizer(false)
	if err != nil {
		return nil, err
	}
	ids, err := e.cfg.ProviderSelection(p.providers)
	if err != nil {
		return nil, err
	}
	return s.Status(ctx, sync.StatusOptions{
		Providers:   ids,
		ContainerID: p.containerID,
		Offline:     p.offline,
	})
}

func printStatus(r *sync.StatusReport) {
	fmt.Printf("%s %s\n", ui.Bold("State:"), stateLabel(r.State))
	if r.ContainerID != "" {
		fmt.Printf("%s %s\n", ui.Bold("Gist: "), r.ContainerID)
	}
	if r.LastSync != nil {
		fmt.Printf("%s %s\n", ui.Bold("Last sync:"), formatTime(*r.LastSync))
	} else {
		fmt.Printf("%s %s\n", ui.Bold("Last sync:"), ui.Dim("never"))
	}
	if r.RemoteChecked {
		fmt.Printf("%s %s\n", ui.Bold("Remote updated:"), formatTime(r.RemoteUpdatedAt))
	}

	fmt.Println()
	if len(r.Providers) == 0 {
		fmt.Println(ui.StatusWarning("No installed providers found"))
	} else {
		fmt.Printf("%-12s %-8s %-8s %s\n", ui.Header("PROVIDER"), ui.Header("FILES"), ui.Header("SOURCE"), ui.Header("ROOT"))
		for _, ps := range r.Providers {
			fmt.Printf("%-12s %-8d %-8s %s\n", ps.Provider, ps.Files, ps.RootSource, ps.ConfigRoot)
		}
	}
	fmt.Printf("\nSession contexts: %d\n", r.ContextCount)

	switch {
	case r.LocalChanged && r.ContextsChanged:
		fmt.Println(ui.StatusPending("Local configs and session contexts changed since the last sync"))
	case r.LocalChanged:
		fmt.Println(ui.StatusPending("Local configs changed since the last sync"))
	case r.ContextsChanged:
		fmt.Println(ui.StatusPending("Session contexts changed since the last sync"))
	}
	if r.RemoteChanged {
		fmt.Println(ui.StatusWarning("The remote was updated by another device"))
	}
	if hint := stateHint(r.State); hint != "" {
		fmt.Printf("\n%s\n", ui.Dim(hint))
	}
}

func stateLabel(s sync.State) string {
	label := ui.Title(string(s))
	switch s {
	case sync.StateUpToDate, sync.StateCreated:
		return ui.Success(label)
	case sync.StateDiverged:
		return ui.Error(label)
	case sync.StateUnsynced:
		return ui.Dim(label)
	default:
		return ui.Warning(label)
	}
}

func stateHint(s sync.State) string {
	switch s {
	case sync.StateUnsynced:
		return "Run 'agentsync push' to create the sync gist, or 'agentsync pull --gist <id>' to use an existing one."
	case sync.StateLocalAhead:
		return "Run 'agentsync push' to upload local changes."
	case sync.StateRemoteAhead:
		return "Run 'agentsync pull' to apply remote changes."
	case sync.StateDiverged:
		return "Both sides changed. Run 'agentsync pull' to review conflicts, then 'agentsync push'."
	default:
		return ""
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
