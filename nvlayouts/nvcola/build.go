package nvcola

import (
	"context"
	"fmt"

	"cdr.dev/slog"

	"oss.terrastruct.com/xdefer"
	"oss.terrastruct.com/xjson"

	"oss.terrastruct.com/nestviz/lib/env"
	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvprep"
)

type linkKey struct {
	src, dst int
}

type sepKey struct {
	src int
	dir nvgraph.Direction
	dst int
}

type orderKey struct {
	before, after int
}

type builder struct {
	g        *nvgraph.Graph
	info     *nvprep.Info
	settings nvgraph.Settings
	opts     *ConfigurableOpts

	cg     *ConstraintGraph
	links  map[linkKey]struct{}
	seps   map[sepKey]struct{}
	orders map[orderKey]struct{}
}

// Build maps the visible part of g onto a constraint graph and seeds initial positions.
func Build(ctx context.Context, g *nvgraph.Graph, info *nvprep.Info, opts *ConfigurableOpts) (_ *ConstraintGraph, err error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	defer xdefer.Errorf(&err, "failed to build constraint graph")

	settings := g.Config.Resolve()
	b := &builder{
		g:        g,
		info:     info,
		settings: settings,
		opts:     opts,
		cg: &ConstraintGraph{
			RootFlow:    settings.FlowDirection,
			NodeMargin:  settings.NodeMargin,
			FlowSpacing: settings.FlowSpacing,
			nodes:       make(map[string]Member),
		},
		links:  make(map[linkKey]struct{}),
		seps:   make(map[sepKey]struct{}),
		orders: make(map[orderKey]struct{}),
	}

	for _, id := range info.Roots {
		m, err := b.addNode(id)
		if err != nil {
			return nil, err
		}
		b.cg.Roots = append(b.cg.Roots, m)
	}
	for _, e := range info.Edges {
		b.addEdge(e)
	}
	b.addPrecedences()
	if err := b.addAlignments(); err != nil {
		return nil, err
	}
	b.addPortOrders()
	b.cg.seed(info)

	log.Debug(ctx, "built constraint graph",
		slog.F("vertices", len(b.cg.Vertices)),
		slog.F("groups", len(b.cg.Groups)),
		slog.F("links", len(b.cg.Links)),
		slog.F("separations", len(b.cg.Separations)),
		slog.F("precedences", len(b.cg.Precedences)),
	)
	if env.Debug() {
		log.Debug(ctx, "constraint graph", slog.F("cg", xjson.MarshalIndent(b.cg)))
	}
	return b.cg, nil
}

func (b *builder) addNode(id string) (Member, error) {
	if b.info.IsLeaf(id) {
		w, h, err := b.leafSize(id)
		if err != nil {
			return Member{}, err
		}
		v := &Vertex{
			Index:  len(b.cg.Vertices),
			NodeID: id,
			Width:  w,
			Height: h,
		}
		b.cg.Vertices = append(b.cg.Vertices, v)
		m := Member{Kind: KindVertex, Index: v.Index}
		b.cg.nodes[id] = m
		return m, nil
	}

	grp := &Group{
		NodeID:  id,
		Flow:    b.info.NodeFlow[id],
		Padding: b.settings.GroupPadding,
	}
	for _, c := range b.info.Children[id] {
		m, err := b.addNode(c)
		if err != nil {
			return Member{}, err
		}
		grp.Members = append(grp.Members, m)
		if m.Kind == KindVertex {
			grp.Leaves = append(grp.Leaves, m.Index)
		} else {
			grp.Groups = append(grp.Groups, m.Index)
			grp.Leaves = append(grp.Leaves, b.cg.Groups[m.Index].Leaves...)
		}
	}
	grp.Index = len(b.cg.Groups)
	b.cg.Groups = append(b.cg.Groups, grp)
	m := Member{Kind: KindGroup, Index: grp.Index}
	b.cg.nodes[id] = m
	return m, nil
}

// leafSize prefers the declared size, then the caller's size hint, then the default
// scaffolding size.
func (b *builder) leafSize(id string) (float64, float64, error) {
	n := b.g.Nodes[id]
	w, h := b.opts.DefaultWidth, b.opts.DefaultHeight
	if hint, ok := b.g.Sizes[id]; ok {
		w, h = hint.Width, hint.Height
	}
	w = go2.Deref(n.Width, w)
	h = go2.Deref(n.Height, h)
	if w < 0 || h < 0 {
		return 0, 0, fmt.Errorf("node %q has negative size %vx%v", id, w, h)
	}
	return w, h, nil
}

func (b *builder) vertexIndex(nodeID string) int {
	return b.cg.nodes[nodeID].Index
}

func (b *builder) addEdge(e *nvgraph.Edge) {
	dir := b.info.EdgeFlow[e.ID]
	axis := dir.Axis()
	for _, s := range b.info.LeafDescendants(e.Source.ID) {
		for _, t := range b.info.LeafDescendants(e.Target.ID) {
			si, ti := b.vertexIndex(s), b.vertexIndex(t)
			if si == ti {
				continue
			}

			lk := linkKey{go2.Min(si, ti), go2.Max(si, ti)}
			if _, ok := b.links[lk]; !ok {
				b.links[lk] = struct{}{}
				b.cg.Links = append(b.cg.Links, &Link{Source: si, Target: ti})
			}

			sk := sepKey{si, dir, ti}
			if _, ok := b.seps[sk]; ok {
				continue
			}
			if _, ok := b.seps[sepKey{ti, dir, si}]; ok {
				// The reverse already holds and both cannot.
				continue
			}
			b.seps[sk] = struct{}{}

			left, right := si, ti
			if dir.Reversed() {
				left, right = right, left
			}
			lv, rv := b.cg.Vertices[left], b.cg.Vertices[right]
			b.cg.Separations = append(b.cg.Separations, &Separation{
				Axis:  axis,
				Left:  left,
				Right: right,
				Gap:   lv.Size(axis)/2 + rv.Size(axis)/2 + b.settings.FlowSpacing,
			})
		}
	}
}

// addPrecedences lifts every separation to the pair of siblings under the lowest container
// holding both of its vertices. Separations along the other axis of that container add none.
func (b *builder) addPrecedences() {
	seen := make(map[Precedence]struct{})
	for _, sep := range b.cg.Separations {
		container, before, after := b.siblingsUnder(b.cg.Vertices[sep.Left].NodeID, b.cg.Vertices[sep.Right].NodeID)
		p := Precedence{
			Container: -1,
			Before:    b.cg.nodes[before],
			After:     b.cg.nodes[after],
		}
		flow := b.cg.RootFlow
		if container != "" {
			p.Container = b.cg.nodes[container].Index
			flow = b.cg.Groups[p.Container].Flow
		}
		if flow.Axis() != sep.Axis {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		b.cg.Precedences = append(b.cg.Precedences, &p)
	}
}

// siblingsUnder returns the lowest container of two distinct leaves and the children of it
// leading to each. The container is "" when they share no ancestor.
func (b *builder) siblingsUnder(x, y string) (container, xs, ys string) {
	xpath := append([]string{x}, b.info.Ancestors(x)...)
	ypath := append([]string{y}, b.info.Ancestors(y)...)
	depth := make(map[string]int, len(xpath))
	for i, id := range xpath {
		depth[id] = i
	}
	for j, id := range ypath {
		if i, ok := depth[id]; ok {
			return id, xpath[i-1], ypath[j-1]
		}
	}
	return "", xpath[len(xpath)-1], ypath[len(ypath)-1]
}

func (b *builder) addAlignments() error {
	if b.settings.AlignChildren && len(b.cg.Roots) > 1 {
		b.cg.Alignments = append(b.cg.Alignments, &AlignGroup{
			Axis:    b.cg.RootFlow.Axis().Other(),
			Members: b.cg.Roots,
		})
	}
	for _, grp := range b.cg.Groups {
		if !b.info.NodeAlign[grp.NodeID] || len(grp.Members) < 2 {
			continue
		}
		b.cg.Alignments = append(b.cg.Alignments, &AlignGroup{
			Axis:    grp.Flow.Axis().Other(),
			Members: grp.Members,
		})
	}

	for _, a := range b.settings.Alignments {
		axis, err := a.GeoAxis()
		if err != nil {
			return err
		}
		ag := &AlignGroup{Axis: axis}
		for _, id := range a.Nodes {
			if m, ok := b.cg.nodes[id]; ok {
				ag.Members = append(ag.Members, m)
			}
		}
		if len(ag.Members) > 1 {
			b.cg.Alignments = append(b.cg.Alignments, ag)
		}
	}
	return nil
}

// addPortOrders orders the far ends of edges leaving two explicitly ordered ports on the
// same side of a node along that side.
func (b *builder) addPortOrders() {
	for _, id := range b.g.SortedNodeIDs() {
		n := b.g.Nodes[id]
		if _, ok := b.cg.nodes[id]; !ok || len(n.Ports) < 2 {
			continue
		}
		for i, p := range n.Ports {
			for _, q := range n.Ports[i+1:] {
				if p.Side != q.Side || p.Order == nil || q.Order == nil || *p.Order == *q.Order {
					continue
				}
				before, after := p, q
				if *q.Order < *p.Order {
					before, after = q, p
				}
				axis := p.Side.Axis().Other()
				for _, f := range b.farLeaves(id, before.Name) {
					for _, s := range b.farLeaves(id, after.Name) {
						if f == s {
							continue
						}
						k := orderKey{f, s}
						if _, ok := b.orders[k]; ok {
							continue
						}
						b.orders[k] = struct{}{}
						b.cg.PortOrders = append(b.cg.PortOrders, &PortOrder{Axis: axis, Before: f, After: s})
					}
				}
			}
		}
	}
}

func (b *builder) farLeaves(nodeID, port string) []int {
	var out []int
	for _, e := range b.info.Edges {
		var far string
		switch {
		case e.Source.ID == nodeID && e.Source.Port == port:
			far = e.Target.ID
		case e.Target.ID == nodeID && e.Target.Port == port:
			far = e.Source.ID
		default:
			continue
		}
		for _, l := range b.info.LeafDescendants(far) {
			out = append(out, b.vertexIndex(l))
		}
	}
	return out
}
