// Package nvcli implements the nestviz command line.
package nvcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cdr.dev/slog"
	"github.com/spf13/pflag"

	"oss.terrastruct.com/xdefer"
	"oss.terrastruct.com/xjson"

	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/lib/version"
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvplugin"
)

// overrides are config values given on the command line. They win over the input's config.
type overrides struct {
	flowDirection *nvgraph.Direction
	flowSpacing   *float64
	nodeMargin    *float64
	edgeMargin    *float64
	padding       *float64
}

func (o overrides) apply(g *nvgraph.Graph) {
	if g.Config == nil {
		g.Config = &nvgraph.Config{}
	}
	if o.flowDirection != nil {
		g.Config.FlowDirection = o.flowDirection
	}
	if o.flowSpacing != nil {
		g.Config.FlowSpacing = o.flowSpacing
	}
	if o.nodeMargin != nil {
		g.Config.NodeMargin = o.nodeMargin
	}
	if o.edgeMargin != nil {
		g.Config.EdgeMargin = o.edgeMargin
	}
	if o.padding != nil {
		g.Config.Padding = o.padding
	}
}

func Run(ctx context.Context, ms *xmain.State) (err error) {
	ctx = log.WithDefault(ctx)
	// These should be kept up-to-date with help.go
	watchFlag, err := ms.Opts.Bool("NESTVIZ_WATCH", "watch", "w", false, "watch for changes to input and serve the latest layout. Use $HOST and $PORT to specify the listening address.\n(default localhost:0, which will open on a randomly available local port).")
	if err != nil {
		return err
	}
	hostFlag := ms.Opts.String("HOST", "host", "h", "localhost", "host listening address when used with watch")
	portFlag := ms.Opts.String("PORT", "port", "p", "0", "port listening address when used with watch")
	debugFlag, err := ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		ms.Log.Warn.Printf("Invalid DEBUG flag value ignored")
		debugFlag = go2.Pointer(false)
	}
	layoutFlag := ms.Opts.String("NESTVIZ_LAYOUT", "layout", "l", "nvdag", "the layout engine used")
	timeoutFlag, err := ms.Opts.Int64("NESTVIZ_TIMEOUT", "timeout", "", 120, "the maximum number of seconds a layout runs for before timing out and exiting")
	if err != nil {
		return err
	}
	versionFlag, err := ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}

	flowDirectionFlag := ms.Opts.String("NESTVIZ_FLOW_DIRECTION", "flow-direction", "", "", "default flow direction: north, south, east or west. Overrides the input's config")
	flowSpacingFlag, err := ms.Opts.Float64("NESTVIZ_FLOW_SPACING", "flow-spacing", "", nvgraph.DefaultFlowSpacing, "minimum gap between the ends of an edge along its flow direction")
	if err != nil {
		return err
	}
	nodeMarginFlag, err := ms.Opts.Float64("NESTVIZ_NODE_MARGIN", "node-margin", "", nvgraph.DefaultNodeMargin, "minimum gap between sibling nodes")
	if err != nil {
		return err
	}
	edgeMarginFlag, err := ms.Opts.Float64("NESTVIZ_EDGE_MARGIN", "edge-margin", "", nvgraph.DefaultEdgeMargin, "clearance kept between routed edges and nodes")
	if err != nil {
		return err
	}
	paddingFlag, err := ms.Opts.Float64("NESTVIZ_PADDING", "padding", "", nvgraph.DefaultPadding, "pixels padded around the laid out graph")
	if err != nil {
		return err
	}

	plugins, err := nvplugin.ListPlugins(ctx)
	if err != nil {
		return err
	}
	err = populateLayoutOpts(ctx, ms, plugins)
	if err != nil {
		return err
	}

	err = ms.Opts.Flags.Parse(ms.Opts.Args)
	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}
	if err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}

	if len(ms.Opts.Flags.Args()) > 0 {
		switch ms.Opts.Flags.Arg(0) {
		case "layout":
			return layoutCmd(ctx, ms, plugins)
		case "validate":
			return validateCmd(ctx, ms)
		case "version":
			if len(ms.Opts.Flags.Args()) > 1 {
				return xmain.UsageErrorf("version subcommand accepts no arguments")
			}
			fmt.Fprintln(ms.Stdout, version.Version)
			return nil
		}
	}

	if *debugFlag {
		ctx = log.Leveled(ctx, slog.LevelDebug)
		ms.Env.Setenv("DEBUG", "1")
	}
	os.Setenv("NESTVIZ_TIMEOUT", fmt.Sprintf("%d", *timeoutFlag))

	if len(ms.Opts.Flags.Args()) == 0 {
		if *versionFlag {
			fmt.Fprintln(ms.Stdout, version.Version)
			return nil
		}
		help(ms)
		return nil
	} else if len(ms.Opts.Flags.Args()) >= 3 {
		return xmain.UsageErrorf("too many arguments passed")
	}

	var ov overrides
	if ms.Opts.Flags.Changed("flow-direction") || *flowDirectionFlag != "" {
		dir, err := nvgraph.ParseDirection(*flowDirectionFlag)
		if err != nil {
			return xmain.UsageErrorf("%v", err)
		}
		ov.flowDirection = &dir
	}
	ov.flowSpacing = changed(ms, "flow-spacing", "NESTVIZ_FLOW_SPACING", flowSpacingFlag)
	ov.nodeMargin = changed(ms, "node-margin", "NESTVIZ_NODE_MARGIN", nodeMarginFlag)
	ov.edgeMargin = changed(ms, "edge-margin", "NESTVIZ_EDGE_MARGIN", edgeMarginFlag)
	ov.padding = changed(ms, "padding", "NESTVIZ_PADDING", paddingFlag)

	inputPath := ms.Opts.Flags.Arg(0)
	var outputPath string
	if len(ms.Opts.Flags.Args()) >= 2 {
		outputPath = ms.Opts.Flags.Arg(1)
	} else if inputPath == "-" {
		outputPath = "-"
	} else {
		outputPath = renameExt(inputPath, ".layout.json")
	}
	inputPath = ms.AbsPath(inputPath)
	outputPath = ms.AbsPath(outputPath)

	plugin, err := nvplugin.FindPlugin(ctx, plugins, *layoutFlag)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return layoutNotFound(ctx, plugins, *layoutFlag)
		}
		return err
	}
	err = nvplugin.HydratePluginOpts(ctx, ms, plugin)
	if err != nil {
		return err
	}

	if *watchFlag {
		if inputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with reading input from stdin")
		}
		if outputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with writing output to stdout")
		}
		w, err := newWatcher(ctx, ms, watcherOpts{
			plugin:     plugin,
			overrides:  ov,
			host:       *hostFlag,
			port:       *portFlag,
			inputPath:  inputPath,
			outputPath: outputPath,
		})
		if err != nil {
			return err
		}
		return w.run()
	}

	ctx, cancel := log.WithTimeout(ctx, time.Minute*2)
	defer cancel()

	start := time.Now()
	_, err = layoutFile(ctx, ms, plugin, ov, inputPath, outputPath)
	if err != nil {
		return err
	}
	if outputPath != "-" {
		ms.Log.Success.Printf("successfully laid out %s to %s in %s", ms.HumanPath(inputPath), ms.HumanPath(outputPath), time.Since(start))
	}
	return nil
}

// changed returns v if the flag was passed or its environment variable is set.
func changed(ms *xmain.State, flag, envKey string, v *float64) *float64 {
	if ms.Opts.Flags.Changed(flag) || ms.Env.Getenv(envKey) != "" {
		return v
	}
	return nil
}

// layoutFile lays out the graph at inputPath and writes the result to outputPath. The
// serialized result is returned as well.
func layoutFile(ctx context.Context, ms *xmain.State, plugin nvplugin.Plugin, ov overrides, inputPath, outputPath string) (_ []byte, err error) {
	defer xdefer.Errorf(&err, "failed to lay out %s", ms.HumanPath(inputPath))

	input, err := ms.ReadPath(inputPath)
	if err != nil {
		return nil, err
	}
	var g nvgraph.Graph
	err = nvgraph.DeserializeGraph(input, &g)
	if err != nil {
		return nil, err
	}
	ov.apply(&g)

	res, err := plugin.Layout(ctx, &g)
	if err != nil {
		return nil, err
	}
	out := []byte(xjson.MarshalIndent(res))
	if outputPath != "-" {
		err = os.MkdirAll(filepath.Dir(outputPath), 0755)
		if err != nil {
			return nil, err
		}
	}
	err = ms.WritePath(outputPath, append(out, '\n'))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func renameExt(fp string, newExt string) string {
	ext := filepath.Ext(fp)
	if ext == "" {
		return fp + newExt
	}
	return strings.TrimSuffix(fp, ext) + newExt
}

func populateLayoutOpts(ctx context.Context, ms *xmain.State, ps []nvplugin.Plugin) error {
	pluginFlags, err := nvplugin.ListPluginFlags(ctx, ps)
	if err != nil {
		return err
	}

	for _, f := range pluginFlags {
		f.AddToOpts(ms.Opts)
		// Don't pollute the main flagset with these.
		ms.Opts.Flags.MarkHidden(f.Name)
	}
	return nil
}
