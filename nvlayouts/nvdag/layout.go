// Package nvdag lays out nested directed graphs.
//
// Layout runs the stages in sequence: the containment hierarchy is resolved by nvprep, the
// constraint graph is built and solved by nvcola, ports are placed and edges routed by
// nvroute. The result is then translated so that the drawing starts at the configured padding.
package nvdag

import (
	"context"
	"errors"
	"math"

	"cdr.dev/slog"

	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvcola"
	"oss.terrastruct.com/nestviz/nvlayouts/nvprep"
	"oss.terrastruct.com/nestviz/nvlayouts/nvroute"
)

// ErrEmptyGraph is returned for a graph without visible nodes. There is no meaningful bounding
// box to return.
var ErrEmptyGraph = errors.New("graph has no visible nodes")

type ConfigurableOpts struct {
	Solver nvcola.ConfigurableOpts `json:"solver"`
}

var DefaultOpts = ConfigurableOpts{
	Solver: nvcola.DefaultOpts,
}

var _ nvgraph.LayoutGraph = DefaultLayout

func DefaultLayout(ctx context.Context, g *nvgraph.Graph) (*nvgraph.Result, error) {
	return Layout(ctx, g, nil)
}

func Layout(ctx context.Context, g *nvgraph.Graph, opts *ConfigurableOpts) (_ *nvgraph.Result, err error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	defer xdefer.Errorf(&err, "failed to nvdag layout")

	if err := g.Validate(); err != nil {
		return nil, err
	}
	settings := g.Config.Resolve()

	visible := g.Visible()
	if len(visible) == 0 {
		return nil, ErrEmptyGraph
	}

	info, err := nvprep.Preprocess(g, visible)
	if err != nil {
		return nil, err
	}
	sctx, done := log.Stage(ctx, "solve")
	cg, err := nvcola.Build(sctx, g, info, &opts.Solver)
	if err != nil {
		return nil, err
	}
	sol, err := nvcola.Solve(sctx, cg, &opts.Solver)
	if err != nil {
		return nil, err
	}
	done(slog.F("vertices", len(cg.Vertices)), slog.F("converged", sol.Converged))

	ports := make(map[string]map[string]*geo.Point)
	for id, box := range sol.Boxes {
		if n := g.Nodes[id]; len(n.Ports) > 0 {
			ports[id] = nvroute.PlacePorts(box, n.Ports, settings.PortLength)
		}
	}

	router := nvroute.NewRouter(sol.Boxes, info, nvroute.ConfigurableOpts{
		EdgeMargin: settings.EdgeMargin,
		ArrowGap:   settings.ArrowGap,
	})
	rctx, done := log.Stage(ctx, "route")
	routes := make(map[string]geo.Route, len(info.Edges))
	for _, e := range info.Edges {
		src, dst := nvroute.Retarget(g, e, sol.Boxes, ports)
		routes[e.ID] = router.Route(rctx, src, dst)
	}
	done(slog.F("edges", len(routes)))

	bounds := boundingBox(sol.Boxes, ports, routes)
	if bounds == nil {
		return nil, ErrEmptyGraph
	}
	bounds = bounds.Inflate(settings.Padding)
	dx, dy := -bounds.Left(), -bounds.Top()

	res := &nvgraph.Result{
		Width:  bounds.Width,
		Height: bounds.Height,
		Nodes:  make(map[string]*nvgraph.NodeLayout, len(sol.Boxes)),
		Edges:  make(map[string]*nvgraph.EdgeLayout, len(routes)),
	}
	maxZ := 0
	for id, box := range sol.Boxes {
		nl := &nvgraph.NodeLayout{
			ID:     id,
			X:      box.Left() + dx,
			Y:      box.Top() + dy,
			Width:  box.Width,
			Height: box.Height,
			Z:      info.Depth[id],
		}
		if nl.Z > maxZ {
			maxZ = nl.Z
		}
		if pts, ok := ports[id]; ok {
			nl.Ports = make(map[string]*geo.Point, len(pts))
			for name, p := range pts {
				nl.Ports[name] = geo.NewPoint(p.X+dx, p.Y+dy)
			}
		}
		res.Nodes[id] = nl
	}
	for id, route := range routes {
		el := &nvgraph.EdgeLayout{ID: id, Z: maxZ + 1}
		for _, p := range route {
			el.Points = append(el.Points, geo.NewPoint(p.X+dx, p.Y+dy))
		}
		res.Edges[id] = el
	}

	log.Debug(ctx, "laid out graph",
		slog.F("nodes", len(res.Nodes)),
		slog.F("edges", len(res.Edges)),
		slog.F("width", res.Width),
		slog.F("height", res.Height),
		slog.F("converged", sol.Converged),
	)
	return res, nil
}

// boundingBox is the union of every node box, port and route point. It returns nil when there
// is nothing to bound.
func boundingBox(boxes map[string]*geo.Box, ports map[string]map[string]*geo.Point, routes map[string]geo.Route) *geo.Box {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	add := func(x, y float64) {
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	for _, b := range boxes {
		add(b.Left(), b.Top())
		add(b.Right(), b.Bottom())
	}
	for _, pts := range ports {
		for _, p := range pts {
			add(p.X, p.Y)
		}
	}
	for _, route := range routes {
		for _, p := range route {
			add(p.X, p.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return nil
	}
	return geo.NewBox(geo.NewPoint(minX, minY), maxX-minX, maxY-minY)
}
