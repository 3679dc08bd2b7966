package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/progress"
	"github.com/klauern/agentsync/internal/ui"
	"github.com/klauern/agentsync/internal/ui/tui"
)

// errBackupsDisabled is returned by backup commands when backup.enabled is off.
var errBackupsDisabled = errors.New("backups are disabled (set backup.enabled in the config file)")

func backupsCommand() *cli.Command {
	return &cli.Command{
		Name:    "backups",
		Aliases: []string{"backup"},
		Usage:   "Manage backups taken before pull overwrote local files",
		Commands: []*cli.Command{
			backupsListCommand(),
			backupsRestoreCommand(),
			backupsDeleteCommand(),
			backupsVerifyCommand(),
			backupsCleanupCommand(),
		},
	}
}

func (e *env) backupStore() (*backup.Store, error) {
	if e.backups == nil {
		return nil, errBackupsDisabled
	}
	return e.backups, nil
}

func backupsListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List backups, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Only show backups of this provider",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Show at most this many backups (0 = all)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json, yaml)",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Browse backups in an interactive list",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format := cmd.String("format")
			switch format {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("invalid format %q (use table, json or yaml)", format)
			}

			var id model.ProviderID
			if v := cmd.String("provider"); v != "" {
				parsed, err := model.ParseProviderID(v)
				if err != nil {
					return err
				}
				id = parsed
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			store, err := e.backupStore()
			if err != nil {
				return err
			}
			backups, err := store.List(id)
			if err != nil {
				return err
			}
			if limit := int(cmd.Int("limit")); limit > 0 && len(backups) > limit {
				backups = backups[:limit]
			}

			if cmd.Bool("interactive") {
				return runBackupBrowser(ctx, e, backups)
			}
			return printBackups(backups, format)
		},
	}
}

func printBackups(backups []backup.Metadata, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(backups, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(backups)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	if len(backups) == 0 {
		fmt.Println("No backups found.")
		return nil
	}
	fmt.Printf("%-36s  %-12s  %-5s  %-16s  %s\n",
		ui.Header("ID"), ui.Header("PROVIDER"), ui.Header("FILES"), ui.Header("CREATED"), ui.Header("SIZE"))
	for _, b := range backups {
		fmt.Printf("%-36s  %-12s  %-5d  %-16s  %s\n",
			b.ID, b.Provider, len(b.Files), b.CreatedAt.Local().Format("2006-01-02 15:04"), formatBytes(b.Size()))
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// runBackupBrowser shows the backup list TUI and carries out the chosen
// action.
func runBackupBrowser(ctx context.Context, e *env, backups []backup.Metadata) error {
	if len(backups) == 0 {
		fmt.Println("No backups found.")
		return nil
	}
	if !progress.IsTerminal(os.Stdout) {
		return printBackups(backups, "table")
	}

	result, err := tui.RunBackupList(backups)
	if err != nil {
		return err
	}
	switch result.Action {
	case tui.ActionRestore:
		return restoreBackup(ctx, e, result.BackupID)
	case tui.ActionDelete:
		return deleteBackup(e, result.BackupID)
	case tui.ActionVerify:
		return verifyBackup(e, result.BackupID)
	}
	return nil
}

func backupsRestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Write a backup's files back into its provider's config root",
		UsageText: "agentsync backups restore <id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("restore requires exactly 1 argument: <backup-id>")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return restoreBackup(ctx, e, cmd.Args().First())
		},
	}
}

// restoreBackup applies a backup's files to its provider. The current copies
// of files it overwrites are backed up first.
func restoreBackup(ctx context.Context, e *env, id string) error {
	store, err := e.backupStore()
	if err != nil {
		return err
	}
	meta, files, err := store.Files(id)
	if err != nil {
		return err
	}
	p, ok := e.registry.Get(meta.Provider)
	if !ok {
		return fmt.Errorf("backup %s belongs to unknown provider %q", id, meta.Provider)
	}
	if p.ConfigRoot() != meta.ConfigRoot {
		fmt.Println(ui.StatusWarning(fmt.Sprintf("%s now lives in %s (backup was taken from %s)",
			p.Name(), p.ConfigRoot(), meta.ConfigRoot)))
	}

	res, err := applyWithBackup(ctx, e, p, files, "before restoring "+id)
	if err != nil {
		return err
	}
	for path, ferr := range res.Failed {
		fmt.Println(ui.StatusError(fmt.Sprintf("%s: %v", path, ferr)))
	}
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Restored %d file(s) into %s", len(res.Written), p.ConfigRoot())))
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d file(s) could not be restored", len(res.Failed))
	}
	return nil
}

func backupsDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a backup",
		UsageText: "agentsync backups delete <id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("delete requires exactly 1 argument: <backup-id>")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return deleteBackup(e, cmd.Args().First())
		},
	}
}

func deleteBackup(e *env, id string) error {
	store, err := e.backupStore()
	if err != nil {
		return err
	}
	if err := store.Delete(id); err != nil {
		return err
	}
	fmt.Println(ui.StatusSuccess("Deleted backup " + id))
	return nil
}

func backupsVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check a backup's files against their recorded hashes",
		UsageText: "agentsync backups verify <id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("verify requires exactly 1 argument: <backup-id>")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return verifyBackup(e, cmd.Args().First())
		},
	}
}

func verifyBackup(e *env, id string) error {
	store, err := e.backupStore()
	if err != nil {
		return err
	}
	if err := store.Verify(id); err != nil {
		fmt.Println(ui.StatusError(fmt.Sprintf("Backup %s failed verification", id)))
		return err
	}
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Backup %s is intact", id)))
	return nil
}

func backupsCleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete old backups",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-backups",
				Usage: "Keep at most this many backups per provider (default from config)",
			},
			&cli.DurationFlag{
				Name:  "max-age",
				Value: 30 * 24 * time.Hour,
				Usage: "Delete backups older than this",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Show what would be deleted",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			store, err := e.backupStore()
			if err != nil {
				return err
			}

			opts := backup.DefaultCleanupOptions()
			opts.MaxBackups = e.cfg.Backup.MaxBackups
			if cmd.IsSet("max-backups") {
				opts.MaxBackups = int(cmd.Int("max-backups"))
			}
			opts.MaxAge = cmd.Duration("max-age")
			opts.DryRun = cmd.Bool("dry-run")

			ids, err := store.Cleanup(opts)
			if err != nil {
				return err
			}
			verb := "Deleted"
			if opts.DryRun {
				verb = "Would delete"
			}
			for _, id := range ids {
				fmt.Printf("  %s %s\n", verb, id)
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("%s %d backup(s)", verb, len(ids))))

			if stats, err := store.Stats(); err == nil {
				fmt.Printf("%d backup(s) remain, %s\n", stats.TotalBackups, formatBytes(stats.TotalSize))
			}
			return nil
		},
	}
}
