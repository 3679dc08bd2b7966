package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/agentsync/internal/config"
	"github.com/klauern/agentsync/internal/ui"
	"github.com/klauern/agentsync/internal/util"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display the effective configuration and file locations",
		Commands: []*cli.Command{
			{
				Name:  "path",
				Usage: "Print the config file path",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Println(config.FilePath())
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a config file with the default settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := config.FilePath()
					if util.PathExists(path) && !cmd.Bool("force") {
						return fmt.Errorf("%s already exists (use --force to overwrite)", path)
					}
					cfg := config.Default()
					cfg.EnsureDeviceID()
					if err := cfg.SaveToPath(path); err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess("Wrote " + path))
					return nil
				},
			},
		},
		Action: func(_ context.Context, _ *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			fmt.Println(ui.Bold("Files:"))
			fmt.Printf("  config:      %s%s\n", config.FilePath(), missing(config.FilePath()))
			fmt.Printf("  credentials: %s%s\n", e.credPath, missing(e.credPath))
			fmt.Printf("  state:       %s\n", util.AgentsyncStatePath())
			fmt.Printf("  mcp servers: %s\n", util.AgentsyncMCPPath())
			fmt.Printf("  contexts:    %s\n", util.AgentsyncContextsPath())

			fmt.Println(ui.Bold("\nCredentials:"))
			fmt.Printf("  token:      %s\n", mask(e.creds.Token))
			fmt.Printf("  passphrase: %s\n", mask(e.creds.Passphrase))
			if e.creds.GistID != "" {
				fmt.Printf("  gist:       %s\n", e.creds.GistID)
			}

			data, err := yaml.Marshal(e.cfg)
			if err != nil {
				return err
			}
			fmt.Println(ui.Bold("\nSettings:"))
			fmt.Print(string(data))
			return nil
		},
	}
}

func missing(path string) string {
	if util.PathExists(path) {
		return ""
	}
	return " " + ui.Dim("(not created)")
}

// mask hides a secret, showing only whether it is set.
func mask(secret string) string {
	if secret == "" {
		return ui.Warning("not set")
	}
	return "set (" + ui.Dim(fmt.Sprintf("%d chars", len(secret))) + ")"
}
