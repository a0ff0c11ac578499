package nvplugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
)

// Serve returns a xmain.RunFunc that will invoke the plugin p as necessary to service the
// calling nestviz CLI.
//
// See ExecPlugin in exec.go for the binary plugin protocol.
func Serve(p Plugin) xmain.RunFunc {
	return func(ctx context.Context, ms *xmain.State) (err error) {
		if !ms.Opts.Flags.Parsed() {
			fs, err := p.Flags(ctx)
			if err != nil {
				return err
			}
			for _, f := range fs {
				f.AddToOpts(ms.Opts)
			}
			err = ms.Opts.Flags.Parse(ms.Opts.Args)
			if errors.Is(err, pflag.ErrHelp) {
				return help(ctx, p, ms)
			}
			if err != nil {
				return xmain.UsageErrorf("failed to parse flags: %v", err)
			}
		}

		if len(ms.Opts.Flags.Args()) < 1 {
			return xmain.UsageErrorf("expected first argument to be subcmd name")
		}

		err = HydratePluginOpts(ctx, ms, p)
		if err != nil {
			return err
		}

		subcmd := ms.Opts.Flags.Arg(0)
		switch subcmd {
		case "info":
			return info(ctx, p, ms)
		case "flags":
			return flags(ctx, p, ms)
		case "layout":
			return layout(ctx, p, ms)
		default:
			return xmain.UsageErrorf("unrecognized command: %s", subcmd)
		}
	}
}

func info(ctx context.Context, p Plugin, ms *xmain.State) error {
	info, err := p.Info(ctx)
	if err != nil {
		return err
	}
	return writeJSON(ms, info)
}

func help(ctx context.Context, p Plugin, ms *xmain.State) error {
	info, err := p.Info(ctx)
	if err != nil {
		return err
	}
	_, err = ms.Stdout.Write([]byte(info.LongHelp + "\n"))
	return err
}

func flags(ctx context.Context, p Plugin, ms *xmain.State) error {
	flags, err := p.Flags(ctx)
	if err != nil {
		return err
	}
	return writeJSON(ms, flags)
}

func layout(ctx context.Context, p Plugin, ms *xmain.State) error {
	in, err := io.ReadAll(ms.Stdin)
	if err != nil {
		return err
	}
	var g nvgraph.Graph
	if err := nvgraph.DeserializeGraph(in, &g); err != nil {
		return fmt.Errorf("failed to unmarshal input to graph: %w", err)
	}
	res, err := p.Layout(ctx, &g)
	if err != nil {
		return err
	}
	b, err := nvgraph.SerializeResult(res)
	if err != nil {
		return err
	}
	_, err = ms.Stdout.Write(b)
	return err
}

func writeJSON(ms *xmain.State, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = ms.Stdout.Write(b)
	return err
}
