// Package nvchaos generates random nested graphs for stress testing layout engines.
package nvchaos

import (
	"fmt"
	mathrand "math/rand"

	"oss.terrastruct.com/xrand"

	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/nvgraph"
)

// GenGraph generates a graph from up to maxi random mutations. The structure is fully
// determined by seed. Only IDs are random.
func GenGraph(seed int64, maxi int) (*nvgraph.Graph, error) {
	if maxi < 1 {
		return nil, fmt.Errorf("maxi must be positive: %d", maxi)
	}
	gs := &genState{
		rand: mathrand.New(mathrand.NewSource(seed)),
		g:    nvgraph.NewGraph(),
	}
	gs.gen(maxi)
	return gs.g, nil
}

type genState struct {
	rand *mathrand.Rand
	g    *nvgraph.Graph

	leaves []string
	groups []string
	n      int
}

func (gs *genState) gen(maxi int) {
	maxi = gs.rand.Intn(maxi) + 1

	// Always at least one node so that the graph can be laid out.
	gs.leaf()
	for i := 0; i < maxi; i++ {
		switch gs.roll(25, 10, 45, 12, 3, 5) {
		case 0:
			gs.leaf()
		case 1:
			gs.group()
		case 2:
			gs.edge()
		case 3:
			gs.port()
		case 4:
			gs.collapse()
		case 5:
			gs.config()
		}
	}
}

func (gs *genState) newID(prefix string) string {
	gs.n++
	return fmt.Sprintf("%s%d-%s", prefix, gs.n, xrand.Base64(6))
}

func (gs *genState) place(id string) {
	if len(gs.groups) == 0 || gs.roll(40, 60) == 0 {
		return
	}
	parent := gs.groups[gs.rand.Intn(len(gs.groups))]
	p := gs.g.Nodes[parent]
	p.Children = append(p.Children, id)
}

func (gs *genState) leaf() {
	id := gs.newID("n")
	n := &nvgraph.Node{ID: id}
	if gs.roll(20, 80) == 1 {
		n.Width = go2.Pointer(float64(gs.rand.Intn(120) + 1))
		n.Height = go2.Pointer(float64(gs.rand.Intn(60) + 1))
	}
	gs.g.AddNode(n)
	gs.place(id)
	gs.leaves = append(gs.leaves, id)
}

func (gs *genState) group() {
	id := gs.newID("g")
	n := &nvgraph.Node{ID: id}
	if gs.randBool() {
		n.FlowDirection = go2.Pointer(gs.randDirection())
	}
	if gs.roll(80, 20) == 1 {
		n.AlignChildren = go2.Pointer(true)
	}
	gs.g.AddNode(n)
	// Groups only nest in earlier groups which keeps containment acyclic.
	gs.place(id)
	gs.groups = append(gs.groups, id)
}

func (gs *genState) edge() {
	ids := gs.g.SortedNodeIDs()
	src := ids[gs.rand.Intn(len(ids))]
	dst := ids[gs.rand.Intn(len(ids))]
	e := &nvgraph.Edge{
		ID:     gs.newID("e"),
		Source: nvgraph.EdgeEnd{ID: src},
		Target: nvgraph.EdgeEnd{ID: dst},
	}
	if ps := gs.g.Nodes[src].Ports; len(ps) > 0 && gs.randBool() {
		e.Source.Port = ps[gs.rand.Intn(len(ps))].Name
	}
	if ps := gs.g.Nodes[dst].Ports; len(ps) > 0 && gs.randBool() {
		e.Target.Port = ps[gs.rand.Intn(len(ps))].Name
	}
	gs.g.AddEdge(e)
}

func (gs *genState) port() {
	id := gs.leaves[gs.rand.Intn(len(gs.leaves))]
	n := gs.g.Nodes[id]
	p := &nvgraph.Port{
		Name: fmt.Sprintf("p%d", len(n.Ports)),
		Side: gs.randDirection(),
	}
	if gs.roll(30, 70) == 1 {
		p.Order = go2.Pointer(float64(gs.rand.Intn(5)))
	}
	n.Ports = append(n.Ports, p)
}

func (gs *genState) collapse() {
	if len(gs.groups) == 0 {
		return
	}
	id := gs.groups[gs.rand.Intn(len(gs.groups))]
	gs.g.Nodes[id].IsExpanded = go2.Pointer(false)
}

func (gs *genState) config() {
	if gs.g.Config == nil {
		gs.g.Config = &nvgraph.Config{}
	}
	switch gs.rand.Intn(4) {
	case 0:
		gs.g.Config.FlowDirection = go2.Pointer(gs.randDirection())
	case 1:
		gs.g.Config.FlowSpacing = go2.Pointer(float64(gs.rand.Intn(60)))
	case 2:
		gs.g.Config.NodeMargin = go2.Pointer(float64(gs.rand.Intn(30)))
	case 3:
		gs.g.Config.AlignChildren = go2.Pointer(gs.randBool())
	}
}

func (gs *genState) randDirection() nvgraph.Direction {
	return nvgraph.Directions[gs.rand.Intn(len(nvgraph.Directions))]
}

func (gs *genState) randBool() bool {
	return gs.rand.Intn(2) == 0
}

// roll picks an index with probability proportional to its weight.
func (gs *genState) roll(probs ...int) int {
	max := 0
	for _, p := range probs {
		max += p
	}

	n := gs.rand.Intn(max)
	var acc int
	for i, p := range probs {
		acc += p
		if n < acc {
			return i
		}
	}
	return len(probs) - 1
}
