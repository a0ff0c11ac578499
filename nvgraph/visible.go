package nvgraph

// Visible returns the set of node IDs shown under the current expansion state: every
// root, plus the children of every visible expanded group.
//
// The graph must be valid.
func (g *Graph) Visible() map[string]struct{} {
	visible := make(map[string]struct{}, len(g.Nodes))
	var visit func(id string)
	visit = func(id string) {
		if _, ok := visible[id]; ok {
			return
		}
		visible[id] = struct{}{}
		n := g.Nodes[id]
		if n.Collapsed() {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, id := range g.Roots() {
		visit(id)
	}
	return visible
}

// VisibleEdges returns the edges whose endpoints are both in visible, ordered by ID.
func (g *Graph) VisibleEdges(visible map[string]struct{}) []*Edge {
	var edges []*Edge
	for _, e := range g.SortedEdges() {
		if _, ok := visible[e.Source.ID]; !ok {
			continue
		}
		if _, ok := visible[e.Target.ID]; !ok {
			continue
		}
		edges = append(edges, e)
	}
	return edges
}
