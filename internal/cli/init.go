package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/klauern/agentsync/internal/config"
	"github.com/klauern/agentsync/internal/credentials"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/ui"
)

// readSecret reads a line without echo. Tests replace it.
var readSecret = func(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Store the GitHub token and encryption passphrase",
		UsageText: "agentsync init [options]",
		Description: `Save the credentials agentsync needs and check the token can use gists.
   Values not given as flags are prompted for without echo. The passphrase
   never leaves this machine; use the same one on every device.

   The token and passphrase can also come from AGENTSYNC_TOKEN (or
   GITHUB_TOKEN) and AGENTSYNC_PASSPHRASE.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "token",
				Usage: "GitHub token with the gist scope",
			},
			&cli.StringFlag{
				Name:  "passphrase",
				Usage: "Encryption passphrase (prefer the prompt or AGENTSYNC_PASSPHRASE)",
			},
			gistFlag(),
			&cli.BoolFlag{
				Name:  "skip-verify",
				Usage: "Save without checking the token against GitHub",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			creds := *e.creds
			if v := cmd.String("token"); v != "" {
				creds.Token = v
			}
			if v := cmd.String("passphrase"); v != "" {
				creds.Passphrase = v
			}
			if v := cmd.String("gist"); v != "" {
				creds.GistID = v
			}

			if creds.Token == "" {
				if creds.Token, err = promptSecret("GitHub token (gist scope): "); err != nil {
					return err
				}
			}
			if creds.Passphrase == "" {
				if creds.Passphrase, err = promptNewPassphrase(); err != nil {
					return err
				}
			}
			if err := creds.Validate(); err != nil {
				return err
			}

			if !cmd.Bool("skip-verify") {
				if err := verifyRemote(ctx, e.cfg, &creds); err != nil {
					return err
				}
			}

			if err := credentials.NewStore(e.credPath).Save(&creds); err != nil {
				return err
			}
			e.cfg.EnsureDeviceID()
			if err := e.cfg.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Saved credentials to %s", e.credPath)))
			fmt.Printf("  Config: %s\n", config.FilePath())
			fmt.Printf("  Device: %s\n", e.cfg.Source())
			if creds.GistID != "" {
				fmt.Printf("  Gist:   %s\n", creds.GistID)
				fmt.Println("\nNext: agentsync pull")
			} else {
				fmt.Println("\nNext: agentsync push")
			}
			return nil
		},
	}
}

// verifyRemote checks the token and looks for an existing sync gist when
// none is configured.
func verifyRemote(ctx context.Context, cfg *config.Config, creds *credentials.Credentials) error {
	remote := newRemote(cfg, creds.Token)
	info, err := remote.ValidateToken(ctx)
	if err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}
	kind := "classic token"
	if info.FineGrained {
		kind = "fine-grained token"
	}
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Authenticated as %s (%s)", info.Login, kind)))

	if creds.GistID != "" {
		return nil
	}
	gists, err := remote.List(ctx)
	if err != nil {
		return fmt.Errorf("list gists: %w", err)
	}
	if g, ok := gist.FindSyncGist(gists); ok {
		creds.GistID = g.ID
		fmt.Println(ui.StatusSuccess(fmt.Sprintf("Found existing sync gist %s", g.ID)))
	}
	return nil
}

func promptSecret(prompt string) (string, error) {
	if !stdinIsTerminal() {
		return "", nil
	}
	return readSecret(prompt)
}

func promptNewPassphrase() (string, error) {
	if !stdinIsTerminal() {
		return "", nil
	}
	first, err := readSecret("Encryption passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", credentials.ErrMissingPassphrase
	}
	second, err := readSecret("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}
