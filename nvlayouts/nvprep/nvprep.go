// Package nvprep resolves the containment hierarchy of a graph into the lookup tables the
// constraint builder and router work from.
package nvprep

import (
	"fmt"
	"sort"

	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/nestviz/nvgraph"
)

// Info is the result of preprocessing. It is built fresh by every call to Preprocess and is
// not modified afterwards.
type Info struct {
	// Parent maps every visible non-root node to its parent.
	Parent map[string]string
	// Children maps every visible group to its visible children in declared order.
	Children map[string][]string
	// Leaves is the set of visible nodes laid out as fixed size boxes.
	Leaves map[string]struct{}
	// Roots are the visible nodes without a visible parent, sorted.
	Roots []string
	Depth map[string]int

	NodeFlow  map[string]nvgraph.Direction
	NodeAlign map[string]bool

	// Edges are the visible edges ordered by ID.
	Edges    []*nvgraph.Edge
	EdgeFlow map[string]nvgraph.Direction
	// EdgeLCA is the lowest common ancestor of each edge's endpoints. Edges whose
	// endpoints share no ancestor are absent.
	EdgeLCA map[string]string
}

func (info *Info) IsLeaf(id string) bool {
	_, ok := info.Leaves[id]
	return ok
}

// LeafDescendants returns the leaves under id in declared order. A leaf is its own only
// descendant.
func (info *Info) LeafDescendants(id string) []string {
	if info.IsLeaf(id) {
		return []string{id}
	}
	var leaves []string
	for _, c := range info.Children[id] {
		leaves = append(leaves, info.LeafDescendants(c)...)
	}
	return leaves
}

// Ancestors returns the ancestors of id from its parent up to its root.
func (info *Info) Ancestors(id string) []string {
	var out []string
	for {
		p, ok := info.Parent[id]
		if !ok {
			return out
		}
		out = append(out, p)
		id = p
	}
}

// Preprocess resolves g restricted to the visible node set. A nil visible set means
// g.Visible().
func Preprocess(g *nvgraph.Graph, visible map[string]struct{}) (_ *Info, err error) {
	defer xdefer.Errorf(&err, "failed to preprocess graph")

	if visible == nil {
		visible = g.Visible()
	}
	settings := g.Config.Resolve()

	info := &Info{
		Parent:    make(map[string]string),
		Children:  make(map[string][]string),
		Leaves:    make(map[string]struct{}),
		Depth:     make(map[string]int),
		NodeFlow:  make(map[string]nvgraph.Direction),
		NodeAlign: make(map[string]bool),
		EdgeFlow:  make(map[string]nvgraph.Direction),
		EdgeLCA:   make(map[string]string),
	}

	parents := g.Parents()
	for _, id := range g.SortedNodeIDs() {
		if _, ok := visible[id]; !ok {
			continue
		}
		p, ok := parents[id]
		if _, pvis := visible[p]; ok && pvis {
			continue
		}
		info.Roots = append(info.Roots, id)
	}

	onPath := make(map[string]bool)
	var walk func(id string, flow nvgraph.Direction, align bool, depth int) error
	walk = func(id string, flow nvgraph.Direction, align bool, depth int) error {
		if onPath[id] {
			return fmt.Errorf("%w: through %q", nvgraph.ErrContainmentCycle, id)
		}
		if _, ok := info.Depth[id]; ok {
			return fmt.Errorf("%w: %q", nvgraph.ErrMultipleParents, id)
		}
		n, ok := g.Nodes[id]
		if !ok {
			return fmt.Errorf("%w: %q", nvgraph.ErrUnknownChild, id)
		}
		if n.FlowDirection != nil {
			flow = *n.FlowDirection
		}
		if n.AlignChildren != nil {
			align = *n.AlignChildren
		}
		info.NodeFlow[id] = flow
		info.NodeAlign[id] = align
		info.Depth[id] = depth

		var children []string
		if !n.Collapsed() {
			for _, c := range n.Children {
				if _, ok := visible[c]; ok {
					children = append(children, c)
				}
			}
		}
		if len(children) == 0 {
			info.Leaves[id] = struct{}{}
			return nil
		}
		info.Children[id] = children

		onPath[id] = true
		for _, c := range children {
			info.Parent[c] = id
			if err := walk(c, flow, align, depth+1); err != nil {
				return err
			}
		}
		delete(onPath, id)
		return nil
	}
	for _, id := range info.Roots {
		if err := walk(id, settings.FlowDirection, settings.AlignChildren, 0); err != nil {
			return nil, err
		}
	}

	for _, e := range g.VisibleEdges(visible) {
		if _, ok := info.Depth[e.Source.ID]; !ok {
			continue
		}
		if _, ok := info.Depth[e.Target.ID]; !ok {
			continue
		}
		info.Edges = append(info.Edges, e)
		lca, ok := info.lca(e.Source.ID, e.Target.ID)
		if !ok {
			info.EdgeFlow[e.ID] = settings.FlowDirection
			continue
		}
		info.EdgeLCA[e.ID] = lca
		info.EdgeFlow[e.ID] = info.NodeFlow[lca]
	}
	sort.Slice(info.Edges, func(i, j int) bool {
		return info.Edges[i].ID < info.Edges[j].ID
	})
	return info, nil
}

// lca walks up from a and b in lockstep. The first node reached twice is the lowest common
// ancestor.
func (info *Info) lca(a, b string) (string, bool) {
	seen := make(map[string]struct{})
	for a != "" || b != "" {
		if a != "" {
			if _, ok := seen[a]; ok {
				return a, true
			}
			seen[a] = struct{}{}
			a = info.Parent[a]
		}
		if b != "" {
			if _, ok := seen[b]; ok {
				return b, true
			}
			seen[b] = struct{}{}
			b = info.Parent[b]
		}
	}
	return "", false
}
