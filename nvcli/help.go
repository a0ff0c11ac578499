package nvcli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"oss.terrastruct.com/nestviz/lib/version"
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvplugin"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s [--watch=false] [--flow-direction=south] graph.json [layout.json]
  %[1]s layout [name]
  %[1]s validate graph.json

%[1]s lays out the nested graph in graph.json and writes the positioned nodes and routed
edges to layout.json. It defaults to graph.layout.json if an output path is not provided.

Use - to have %[1]s read from stdin or write to stdout.

Flags:
%[3]s

Subcommands:
  %[1]s layout - Lists available layout engines with short help
  %[1]s layout [name] - Display long help for a particular layout engine
  %[1]s validate graph.json - Validates graph.json
  %[1]s version - Prints the version
`, filepath.Base(ms.Name), version.Version, ms.Opts.Help())
}

func layoutCmd(ctx context.Context, ms *xmain.State, ps []nvplugin.Plugin) error {
	switch len(ms.Opts.Flags.Args()) {
	case 1:
		return shortLayoutHelp(ctx, ms, ps)
	case 2:
		return longLayoutHelp(ctx, ms, ps)
	default:
		return pluginSubcommand(ctx, ms, ps)
	}
}

func shortLayoutHelp(ctx context.Context, ms *xmain.State, ps []nvplugin.Plugin) error {
	pinfos, err := nvplugin.ListPluginInfos(ctx, ps)
	if err != nil {
		return err
	}
	var pluginLines []string
	for _, p := range pinfos {
		var l string
		if p.Type == "binary" {
			l = fmt.Sprintf("%s (%s) - %s", p.Name, ms.HumanPath(p.Path), p.ShortHelp)
		} else {
			l = fmt.Sprintf("%s (bundled) - %s", p.Name, p.ShortHelp)
		}
		pluginLines = append(pluginLines, l)
	}
	fmt.Fprintf(ms.Stdout, `Available layout engines found:

%s

Usage:
  To use a particular layout engine, set the environment variable NESTVIZ_LAYOUT=[name] or flag --layout=[name].

Subcommands:
  %s layout [layout name] - Display long help for a particular layout engine, including its configuration options
`, strings.Join(pluginLines, "\n"), filepath.Base(ms.Name))
	return nil
}

func longLayoutHelp(ctx context.Context, ms *xmain.State, ps []nvplugin.Plugin) error {
	layout := ms.Opts.Flags.Arg(1)
	plugin, err := nvplugin.FindPlugin(ctx, ps, layout)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return layoutNotFound(ctx, ps, layout)
		}
		return err
	}

	pinfo, err := plugin.Info(ctx)
	if err != nil {
		return err
	}

	plocation := "bundled"
	if pinfo.Type == "binary" {
		plocation = fmt.Sprintf("executable plugin at %s", ms.HumanPath(pinfo.Path))
	}
	if !strings.HasSuffix(pinfo.LongHelp, "\n") {
		pinfo.LongHelp += "\n"
	}
	fmt.Fprintf(ms.Stdout, "%s (%s):\n\n%s", pinfo.Name, plocation, pinfo.LongHelp)
	return nil
}

func layoutNotFound(ctx context.Context, ps []nvplugin.Plugin, layout string) error {
	pinfos, err := nvplugin.ListPluginInfos(ctx, ps)
	if err != nil {
		return err
	}
	var names []string
	for _, p := range pinfos {
		names = append(names, p.Name)
	}

	return xmain.UsageErrorf(`layout "%s" is not bundled and could not be found in your $PATH.
The available options are: %s. For details on each option, run "nestviz layout".`,
		layout, strings.Join(names, ", "))
}

// pluginSubcommand serves the plugin protocol for a bundled plugin. nestviz layout nvdag info
// behaves like a nestviz-plugin-nvdag binary invoked with info.
func pluginSubcommand(ctx context.Context, ms *xmain.State, ps []nvplugin.Plugin) error {
	layout := ms.Opts.Flags.Arg(1)
	plugin, err := nvplugin.FindPlugin(ctx, ps, layout)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return layoutNotFound(ctx, ps, layout)
		}
		return err
	}

	ms.Opts = xmain.NewOpts(ms.Env, ms.Log, ms.Opts.Flags.Args()[2:])
	return nvplugin.Serve(plugin)(ctx, ms)
}
