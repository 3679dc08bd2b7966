package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/progress"
	"github.com/klauern/agentsync/internal/security"
	"github.com/klauern/agentsync/internal/sync"
	"github.com/klauern/agentsync/internal/ui"
)

// errSecretsFound aborts a push that would upload likely credentials.
var errSecretsFound = errors.New("push aborted: collected files look like they contain secrets (review them or rerun with --yes)")

type pushParams struct {
	force       bool
	yes         bool
	providers   []string
	containerID string
}

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "Encrypt local configs and upload them to the sync gist",
		UsageText: "agentsync push [options]",
		Description: `Collect the config files of every installed provider, encrypt them with
   your passphrase and upload them together with MCP servers and session
   contexts. Nothing is uploaded when nothing changed since the last sync.

   Examples:
     agentsync push
     agentsync push --provider opencode --provider cursor
     agentsync push --force`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Upload even when nothing changed",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Push even when the secret scan finds likely credentials",
			},
			providerFlag(),
			gistFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runPush(ctx, pushParams{
				force:       cmd.Bool("force"),
				yes:         cmd.Bool("yes"),
				providers:   cmd.StringSlice("provider"),
				containerID: cmd.String("gist"),
			})
		},
	}
}

func runPush(ctx context.Context, p pushParams) error {
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

	bar := progress.Spinner("Collecting configs")
	opts := sync.PushOptions{
		Force:       p.force,
		Providers:   ids,
		ContainerID: p.containerID,
		OnCollected: func(snap model.ProviderSnapshot) {
			bar.Describe(fmt.Sprintf("Collected %s", snap.ProviderID.DisplayName()))
		},
	}
	inspect := func(context.Context, model.MultiProviderSnapshot) error {
		_ = bar.Clear()
		return nil
	}
	if e.cfg.Sync.ScanSecrets {
		gate := secretGate(p.yes)
		inspect = func(ctx context.Context, snap model.MultiProviderSnapshot) error {
			_ = bar.Clear()
			return gate(ctx, snap)
		}
	}
	opts.Inspect = inspect

	res, err := s.Push(ctx, opts)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	printPushResult(res)
	return nil
}

// secretGate scans the snapshot before upload. Warnings are shown; likely
// secrets stop the push unless confirmed.
func secretGate(yes bool) func(context.Context, model.MultiProviderSnapshot) error {
	detector := security.NewDetector(security.DefaultPatterns())
	return func(_ context.Context, snap model.MultiProviderSnapshot) error {
		findings := detector.ScanSnapshot(snap)
		if len(findings) == 0 {
			return nil
		}

		fmt.Println(ui.Warning(fmt.Sprintf("Secret scan found %d potential issue(s):", len(findings))))
		for _, f := range findings {
			fmt.Printf("  %s\n", f)
		}
		fmt.Println()

		if !security.HasErrors(findings) || yes {
			return nil
		}
		if !stdinIsTerminal() {
			return errSecretsFound
		}
		ok, err := confirm(bufio.NewReader(stdin), "The payload is encrypted, but push anyway?")
		if err != nil {
			return err
		}
		if !ok {
			return errSecretsFound
		}
		return nil
	}
}

func printPushResult(res *sync.PushResult) {
	if res.NoChanges {
		fmt.Println(ui.StatusSkipped("No changes since the last sync; nothing pushed (use --force to push anyway)"))
		return
	}

	verb := "Updated"
	if res.Created {
		verb = "Created"
	}
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("%s gist %s", verb, res.ContainerID)))
	if res.URL != "" {
		fmt.Printf("  %s\n", ui.Dim(res.URL))
	}

	for _, id := range res.Snapshot.ProviderIDs() {
		snap := res.Snapshot.Snapshots[id]
		fmt.Printf("  %-12s %d file(s)\n", id, len(snap.Files))
	}
	for _, id := range res.Carried {
		fmt.Printf("  %-12s %s\n", id, ui.Dim("kept from remote"))
	}
	fmt.Printf("  MCP servers: %d, contexts: %d\n", res.MCPServerCount, res.ContextCount)
}
