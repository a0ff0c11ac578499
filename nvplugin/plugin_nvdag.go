package nvplugin

import (
	"context"
	"encoding/json"
	"fmt"

	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvcola"
	"oss.terrastruct.com/nestviz/nvlayouts/nvdag"
)

var NVDagPlugin = nvdagPlugin{}

func init() {
	plugins = append(plugins, &NVDagPlugin)
}

type nvdagPlugin struct {
	opts *nvdag.ConfigurableOpts
}

func (p *nvdagPlugin) Flags(context.Context) ([]PluginSpecificFlag, error) {
	return []PluginSpecificFlag{
		{
			Name:    "nvdag-unconstrained-iterations",
			Type:    "int64",
			Default: int64(nvcola.DefaultOpts.UnconstrainedIterations),
			Usage:   "number of stress iterations before any constraint applies",
			Tag:     "unconstrainedIterations",
		},
		{
			Name:    "nvdag-constrained-iterations",
			Type:    "int64",
			Default: int64(nvcola.DefaultOpts.ConstrainedIterations),
			Usage:   "number of iterations with overlap, separation and alignment constraints",
			Tag:     "constrainedIterations",
		},
		{
			Name:    "nvdag-link-length",
			Type:    "float64",
			Default: nvcola.DefaultOpts.LinkLength,
			Usage:   "ideal length of a link between two connected nodes",
			Tag:     "linkLength",
		},
	}, nil
}

func (p *nvdagPlugin) HydrateOpts(opts []byte) error {
	if opts == nil {
		return nil
	}
	solver := nvcola.DefaultOpts
	err := json.Unmarshal(opts, &solver)
	if err != nil {
		return xmain.UsageErrorf("invalid options for nvdag: %v", err)
	}
	p.opts = &nvdag.ConfigurableOpts{Solver: solver}
	return nil
}

func (p *nvdagPlugin) Info(ctx context.Context) (*PluginInfo, error) {
	opts := nvdag.DefaultOpts
	return &PluginInfo{
		Name:      "nvdag",
		Type:      "bundled",
		ShortHelp: "Constraint based layout for nested directed graphs.",
		LongHelp: fmt.Sprintf(`nvdag lays out groups of nodes with flow direction, port, alignment and
non overlap constraints and routes edges orthogonally around the placed nodes.

Flags correspond to the solver's options:

  --nvdag-unconstrained-iterations %d
  --nvdag-constrained-iterations %d
  --nvdag-link-length %v
`,
			opts.Solver.UnconstrainedIterations,
			opts.Solver.ConstrainedIterations,
			opts.Solver.LinkLength,
		),
	}, nil
}

func (p *nvdagPlugin) Layout(ctx context.Context, g *nvgraph.Graph) (*nvgraph.Result, error) {
	return nvdag.Layout(ctx, g, p.opts)
}
