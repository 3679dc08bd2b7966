package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/provider"
	"github.com/klauern/agentsync/internal/ui"
)

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "List supported providers and where their configs live",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "installed",
				Usage: "Only show providers installed on this machine",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runProviders(ctx, cmd.Bool("installed"))
		},
	}
}

func runProviders(ctx context.Context, installedOnly bool) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	shown := 0
	for _, p := range e.registry.All() {
		installed := p.IsInstalled(ctx)
		if installedOnly && !installed {
			continue
		}
		shown++
		printProvider(ctx, p, installed, e.cfg.IsProviderEnabled(p.ID()))
	}
	if shown == 0 {
		fmt.Println(ui.StatusWarning("No installed providers found"))
	}
	return nil
}

func printProvider(ctx context.Context, p provider.Provider, installed, enabled bool) {
	name := fmt.Sprintf("%s (%s)", p.Name(), p.ID())
	switch {
	case !enabled:
		fmt.Println(ui.StatusSkipped(name + " " + ui.Dim("disabled in config")))
	case installed:
		fmt.Println(ui.StatusSuccess(name))
	default:
		fmt.Println(ui.StatusSkipped(name + " " + ui.Dim("not installed")))
	}
	fmt.Printf("    root:     %s %s\n", p.ConfigRoot(), ui.Dim("("+string(p.RootSource())+")"))
	fmt.Printf("    patterns: %s\n", strings.Join(p.DeclaredPatterns(), ", "))

	if !installed {
		return
	}
	if lister, ok := p.PluginLister(); ok {
		plugins, err := lister.ListPlugins(ctx)
		switch {
		case err != nil:
			fmt.Printf("    plugins:  %s\n", ui.Error(err.Error()))
		case len(plugins) > 0:
			fmt.Printf("    plugins:  %s\n", strings.Join(plugins, ", "))
		}
	}
	if servers, err := p.ListMCPServers(ctx); err == nil && len(servers) > 0 {
		names := make([]string, len(servers))
		for i, s := range servers {
			names[i] = s.Name
		}
		fmt.Printf("    mcp:      %s\n", strings.Join(names, ", "))
	}
}
