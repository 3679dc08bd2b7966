package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/klauern/agentsync/internal/backup"
	"github.com/klauern/agentsync/internal/config"
	"github.com/klauern/agentsync/internal/contexts"
	"github.com/klauern/agentsync/internal/credentials"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/mcp"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/provider/builtin"
	"github.com/klauern/agentsync/internal/state"
	"github.com/klauern/agentsync/internal/sync"
	"github.com/klauern/agentsync/internal/util"
)

// newRemote builds the gist client for a token. Tests replace it.
var newRemote = func(cfg *config.Config, token string) gist.Remote {
	client := gist.NewClient(token,
		gist.WithBaseURL(cfg.Remote.APIURL),
		gist.WithTimeout(cfg.Remote.Timeout),
	)
	return gist.NewRetrying(client, cfg.Sync.RetryMax)
}

// stdin is where prompts read answers. Tests replace it.
var stdin io.Reader = os.Stdin

// stdinIsTerminal reports whether prompts can be shown. Tests replace it.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// env holds everything a command needs, loaded from the config directory.
type env struct {
	cfg      *config.Config
	creds    *credentials.Credentials
	credPath string
	registry *provider.Registry
	state    *state.Store
	contexts *contexts.Store
	mcp      *mcp.Store
	// backups is nil when backups are disabled.
	backups *backup.Store
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	credStore := credentials.NewStore(util.AgentsyncCredentialsPath())
	creds, err := credStore.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		creds = &credentials.Credentials{}
	}

	e := &env{
		cfg:      cfg,
		creds:    creds,
		credPath: credStore.Path(),
		registry: builtin.NewRegistry(builtin.Options{
			Roots:           cfg.ProviderRoots(),
			ClaudeStateFile: cfg.ClaudeStateFile(),
		}),
		state:    state.NewStore(util.AgentsyncStatePath()),
		contexts: contexts.NewStore(util.AgentsyncContextsPath(), cfg.Contexts.MaxItems),
		mcp:      mcp.NewStore(util.AgentsyncMCPPath()),
	}
	if cfg.Backup.Enabled {
		e.backups = backup.NewStore(util.ExpandPath(cfg.Backup.Location, ""), cfg.Backup.MaxBackups)
	}
	return e, nil
}

// remote returns a gist client, or an error naming the missing credential.
func (e *env) remote() (gist.Remote, error) {
	if err := e.creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w (run 'agentsync init' or set %s and %s)",
			err, credentials.EnvToken, credentials.EnvPassphrase)
	}
	return newRemote(e.cfg, e.creds.Token), nil
}

// synchronizer wires the sync engine. Without credentials it can still run
// an offline status.
func (e *env) synchronizer(needRemote bool) (*sync.Synchronizer, error) {
	deps := sync.Deps{
		Providers:   e.registry,
		State:       e.state,
		Contexts:    e.contexts,
		MCP:         e.mcp,
		Passphrase:  e.creds.Passphrase,
		ContainerID: e.creds.GistID,
		Source:      e.cfg.Source(),
	}
	if e.backups != nil {
		deps.Backups = e.backups
	}

	remote, err := e.remote()
	switch {
	case err == nil:
		deps.Remote = remote
	case needRemote:
		return nil, err
	}
	return sync.New(deps), nil
}

// providerIDs resolves --provider against the config defaults.
func (e *env) providerIDs(cmd *cli.Command) ([]model.ProviderID, error) {
	return e.cfg.ProviderSelection(cmd.StringSlice("provider"))
}

func providerFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "provider",
		Aliases: []string{"p"},
		Usage:   "Limit to a provider (opencode, claude-code, codex, cursor); repeatable",
	}
}

func gistFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "gist",
		Usage: "Use this gist ID instead of the recorded one",
	}
}

// confirm asks a yes/no question on stdin. Anything but y or yes is no.
func confirm(r *bufio.Reader, question string) (bool, error) {
	fmt.Printf("%s [y/N]: ", question)
	answer, err := r.ReadString('\n')
	if err != nil && answer == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
