package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/agentsync/internal/mcp"
	"github.com/klauern/agentsync/internal/model"
	"github.com/klauern/agentsync/internal/ui"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Manage the MCP servers shared between providers",
		Description: `The MCP store is synced with every push and pull. Use 'apply' to write
   the stored servers into each installed provider's own config.`,
		Commands: []*cli.Command{
			mcpListCommand(),
			mcpAddCommand(),
			mcpRemoveCommand(),
			mcpImportCommand(),
			mcpApplyCommand(),
		},
	}
}

func mcpListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored MCP servers",
		Action: func(_ context.Context, _ *cli.Command) error {
			return runMCPList()
		},
	}
}

func runMCPList() error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	servers, err := e.mcp.List()
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No MCP servers stored. Add one with 'agentsync mcp add' or 'agentsync mcp import'.")
		return nil
	}

	fmt.Printf("%-20s %-6s %-8s %s\n", ui.Header("NAME"), ui.Header("TYPE"), ui.Header("ENABLED"), ui.Header("TARGET"))
	for _, s := range servers {
		enabled := ui.Success("yes")
		if !s.Enabled {
			enabled = ui.Dim("no")
		}
		fmt.Printf("%-20s %-6s %-8s %s\n", truncate(s.Name, 20), s.Type, enabled, serverTarget(s))
	}
	return nil
}

func serverTarget(s model.MCPServerConfig) string {
	if s.Type.IsRemote() {
		return s.URL
	}
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

func mcpAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add or replace an MCP server",
		UsageText: "agentsync mcp add <name> --command <cmd> [--arg a]... | --type http --url <url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Value: string(model.MCPStdio),
				Usage: "Transport (stdio, http, sse)",
			},
			&cli.StringFlag{
				Name:  "command",
				Usage: "Executable for stdio servers",
			},
			&cli.StringSliceFlag{
				Name:  "arg",
				Usage: "Command argument; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "Environment variable KEY=VALUE; repeatable",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Endpoint for http and sse servers",
			},
			&cli.StringSliceFlag{
				Name:  "header",
				Usage: "HTTP header Name=Value; repeatable",
			},
			&cli.StringFlag{
				Name:  "cwd",
				Usage: "Working directory for stdio servers",
			},
			&cli.BoolFlag{
				Name:  "disabled",
				Usage: "Store the server disabled",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("mcp add requires exactly 1 argument: <name>")
			}
			env, err := parsePairs(cmd.StringSlice("env"))
			if err != nil {
				return fmt.Errorf("invalid --env: %w", err)
			}
			headers, err := parsePairs(cmd.StringSlice("header"))
			if err != nil {
				return fmt.Errorf("invalid --header: %w", err)
			}

			srv := model.MCPServerConfig{
				Name:    cmd.Args().First(),
				Type:    model.MCPServerType(cmd.String("type")),
				Command: cmd.String("command"),
				Args:    cmd.StringSlice("arg"),
				Env:     env,
				URL:     cmd.String("url"),
				Headers: headers,
				Cwd:     cmd.String("cwd"),
				Enabled: !cmd.Bool("disabled"),
			}
			if err := srv.Validate(); err != nil {
				return err
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			if err := e.mcp.Upsert(srv); err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Stored MCP server %q", srv.Name)))
			return nil
		},
	}
}

// parsePairs splits KEY=VALUE entries.
func parsePairs(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%q is not KEY=VALUE", entry)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func mcpRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Remove an MCP server from the store",
		UsageText: "agentsync mcp remove <name> [--from-providers]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "from-providers",
				Usage: "Also remove it from each installed provider's config",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("mcp remove requires exactly 1 argument: <name>")
			}
			name := cmd.Args().First()

			e, err := loadEnv()
			if err != nil {
				return err
			}
			removed, err := e.mcp.Remove(name)
			if err != nil {
				return err
			}
			if removed {
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Removed %q from the store", name)))
			} else {
				fmt.Println(ui.StatusSkipped(fmt.Sprintf("%q is not in the store", name)))
			}

			if !cmd.Bool("from-providers") {
				return nil
			}
			providers, err := e.registry.Installed(ctx)
			if err != nil {
				return err
			}
			var errs []error
			for _, p := range providers {
				ok, err := p.RemoveMCPServer(ctx, name)
				switch {
				case err != nil:
					errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
					fmt.Println(ui.StatusError(fmt.Sprintf("%s: %v", p.ID(), err)))
				case ok:
					fmt.Println(ui.StatusSuccess(fmt.Sprintf("Removed from %s", p.Name())))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func mcpImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Copy MCP servers from installed providers into the store",
		Flags: []cli.Flag{providerFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ids, err := e.providerIDs(cmd)
			if err != nil {
				return err
			}
			providers, err := e.registry.Select(ctx, ids, true)
			if err != nil {
				return err
			}

			var incoming []model.MCPServerConfig
			for _, p := range providers {
				servers, err := p.ListMCPServers(ctx)
				if err != nil {
					fmt.Println(ui.StatusWarning(fmt.Sprintf("%s: %v", p.ID(), err)))
					continue
				}
				incoming = append(incoming, servers...)
			}

			res, err := e.mcp.Merge(incoming)
			if err != nil {
				return err
			}
			printMergeResult(res)
			return nil
		},
	}
}

func printMergeResult(res mcp.MergeResult) {
	for _, name := range res.Added {
		fmt.Println(ui.StatusSuccess("added " + name))
	}
	for _, name := range res.Updated {
		fmt.Println(ui.StatusSuccess("updated " + name))
	}
	for _, name := range res.Skipped {
		fmt.Println(ui.StatusSkipped("skipped " + name))
	}
	fmt.Printf("%d added, %d updated, %d unchanged\n", len(res.Added), len(res.Updated), len(res.Kept))
}

func mcpApplyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Write stored MCP servers into installed providers' configs",
		Flags: []cli.Flag{providerFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ids, err := e.providerIDs(cmd)
			if err != nil {
				return err
			}
			return runMCPApply(ctx, e, ids)
		},
	}
}

func runMCPApply(ctx context.Context, e *env, ids []model.ProviderID) error {
	servers, err := e.mcp.List()
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No MCP servers stored; nothing to apply.")
		return nil
	}
	providers, err := e.registry.Select(ctx, ids, true)
	if err != nil {
		return err
	}

	report := mcp.ApplyTo(ctx, servers, providers)
	applied := make([]model.ProviderID, 0, len(report.Applied))
	for id := range report.Applied {
		applied = append(applied, id)
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] < applied[j] })
	for _, id := range applied {
		fmt.Println(ui.StatusSuccess(fmt.Sprintf("%s: %d server(s)", id, report.Applied[id])))
	}
	for id, names := range report.Skipped {
		fmt.Println(ui.StatusSkipped(fmt.Sprintf("%s: cannot express %s", id, strings.Join(names, ", "))))
	}

	var errs []error
	for id, err := range report.Failed {
		fmt.Println(ui.StatusError(fmt.Sprintf("%s: %v", id, err)))
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}
