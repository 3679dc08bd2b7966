// Package cli provides the command-line interface for agentsync.
package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/config"
	"github.com/klauern/agentsync/internal/logging"
	"github.com/klauern/agentsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:    "agentsync",
		Usage:   "Sync AI coding assistant configs across machines through an encrypted gist",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			configureColors(cmd)
			return ctx, configureLogging(cmd)
		},
		Commands: []*cli.Command{
			initCommand(),
			pushCommand(),
			pullCommand(),
			statusCommand(),
			providersCommand(),
			mcpCommand(),
			backupsCommand(),
			exportCommand(),
			importCommand(),
			dashboardCommand(),
			configCommand(),
			versionCommand(),
		},
	}
	return app.Run(ctx, args)
}

// configureColors applies output.color from the config file; --no-color and
// NO_COLOR always win.
func configureColors(cmd *cli.Command) {
	mode := "auto"
	if cfg, err := config.Load(); err == nil {
		mode = cfg.Output.Color
	}
	ui.ConfigureColors(mode, cmd.Bool("no-color"))
}

// configureLogging sets up the logging level based on CLI flags.
func configureLogging(cmd *cli.Command) error {
	opts := logging.DefaultOptions()

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}
