package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/archive"
	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/collect"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/ui"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write local provider configs to an unencrypted tar.gz archive",
		UsageText: "agentsync export [--provider <id>] [--output <file>]",
		Flags: []cli.Flag{
			providerFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Archive path, or - for stdout (default agentsync-<timestamp>.tar.gz)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runExport(ctx, cmd.StringSlice("provider"), cmd.String("output"))
		},
	}
}

func runExport(ctx context.Context, providers []string, output string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ids, err := e.cfg.ProviderSelection(providers)
	if err != nil {
		return err
	}
	selected, err := e.registry.Select(ctx, ids, true)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return errors.New("no installed providers to export")
	}
	snapshot, err := collect.CollectAll(ctx, provider.Collectors(selected), collect.Options{})
	if err != nil {
		return err
	}

	now := time.Now()
	if output == "" {
		output = fmt.Sprintf("agentsync-%s.tar.gz", now.Format("20060102-150405"))
	}

	var w io.Writer = os.Stdout
	var f *os.File
	if output != "-" {
		// #nosec G304 - output is chosen by the user
		f, err = os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		w = f
	}

	manifest, err := archive.Create(snapshot, w, archive.CreateOptions{Source: e.cfg.Source(), Now: now})
	if f != nil {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(output)
		}
	}
	if err != nil {
		return err
	}
	if output == "-" {
		return nil
	}

	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Exported %d file(s) to %s", manifest.FileCount, output)))
	for _, line := range manifest.Summary() {
		fmt.Printf("  %s\n", line)
	}
	fmt.Println(ui.Warning("The archive is not encrypted; treat it like the config files themselves."))
	return nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Apply an archive written by 'agentsync export' to local providers",
		UsageText: "agentsync import [--provider <id>] [--dry-run] <file>",
		Flags: []cli.Flag{
			providerFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be written without changing files",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("import requires exactly 1 argument: <file>")
			}
			return runImport(ctx, cmd.Args().First(), cmd.StringSlice("provider"), cmd.Bool("dry-run"))
		},
	}
}

func runImport(ctx context.Context, path string, providers []string, dryRun bool) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ids, err := model.ParseProviderIDs(providers)
	if err != nil {
		return err
	}

	// #nosec G304 - path is chosen by the user
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	snapshot, manifest, err := archive.Extract(f, archive.ExtractOptions{Providers: ids})
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Archive from %s", manifest.CreatedAt.Local().Format("2006-01-02 15:04"))
	if manifest.Source != "" {
		header += " (" + manifest.Source + ")"
	}
	fmt.Println(ui.Bold(header))

	var failed int
	for _, id := range snapshot.ProviderIDs() {
		files := snapshot.Snapshots[id].Files
		p, ok := e.registry.Get(id)
		if !ok || !e.cfg.IsProviderEnabled(id) {
			fmt.Println(ui.StatusSkipped(fmt.Sprintf("%s: not enabled here", id)))
			continue
		}
		if dryRun {
			fmt.Printf("  %-12s %d file(s) into %s\n", id, len(files), p.ConfigRoot())
			continue
		}
		res, err := applyWithBackup(ctx, e, p, files, "before importing "+path)
		if err != nil {
			return err
		}
		for rel, ferr := range res.Failed {
			fmt.Println(ui.StatusError(fmt.Sprintf("%s/%s: %v", id, rel, ferr)))
		}
		failed += len(res.Failed)
		fmt.Println(ui.StatusSuccess(fmt.Sprintf("%s: wrote %d file(s) into %s", id, len(res.Written), p.ConfigRoot())))
	}

	if dryRun {
		fmt.Println(ui.Info("Dry run: no files were written"))
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be imported", failed)
	}
	return nil
}

// applyWithBackup writes files into p. Current files that would change are
// saved to a backup first when backups are enabled.
func applyWithBackup(ctx context.Context, e *env, p provider.Provider, files []model.CollectedFile, description string) (collect.ApplyResult, error) {
	if e.backups != nil {
		current, err := p.Collect(ctx)
		if err != nil {
			return collect.ApplyResult{}, err
		}
		local := current.FileMap()
		var overwritten []model.CollectedFile
		for _, f := range files {
			if cur, ok := local[f.RelativePath]; ok && cur.ContentHash != f.ContentHash {
				overwritten = append(overwritten, cur)
			}
		}
		if len(overwritten) > 0 {
			pre, err := e.backups.Create(ctx, backup.Options{
				Provider:    p.ID(),
				ConfigRoot:  p.ConfigRoot(),
				Files:       overwritten,
				Description: description,
			})
			if err != nil {
				return collect.ApplyResult{}, fmt.Errorf("backup before writing: %w", err)
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Backed up %d current file(s) to %s", len(overwritten), pre.ID)))
		}
	}
	return p.Apply(ctx, files)
}
