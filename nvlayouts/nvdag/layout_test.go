package nvdag_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvdag"
)

const tolerance = 1e-6

func leaf(g *nvgraph.Graph, id string, w, h float64) *nvgraph.Node {
	return g.AddNode(&nvgraph.Node{ID: id, Width: go2.Pointer(w), Height: go2.Pointer(h)})
}

func group(g *nvgraph.Graph, id string, children ...string) *nvgraph.Node {
	return g.AddNode(&nvgraph.Node{ID: id, Children: children})
}

func edge(g *nvgraph.Graph, id, src, dst string) *nvgraph.Edge {
	return g.AddEdge(&nvgraph.Edge{ID: id, Source: nvgraph.EdgeEnd{ID: src}, Target: nvgraph.EdgeEnd{ID: dst}})
}

func layout(t *testing.T, g *nvgraph.Graph) *nvgraph.Result {
	t.Helper()
	ctx := log.WithTB(context.Background(), t)
	res, err := nvdag.DefaultLayout(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestSingleEdge(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	leaf(g, "A", 10, 10)
	leaf(g, "B", 10, 10)
	edge(g, "AB", "A", "B")

	res := layout(t, g)
	a, b := res.Nodes["A"], res.Nodes["B"]
	assert.GreaterOrEqual(t, b.Y+tolerance, a.Y+a.Height+30)

	e := res.Edges["AB"]
	if assert.GreaterOrEqual(t, len(e.Points), 2) {
		first, last := e.Points[0], e.Points[len(e.Points)-1]
		// Center anchored ends start on the border and stop short of it by the arrow gap.
		assert.InDelta(t, a.Y+a.Height, first.Y, tolerance)
		assert.InDelta(t, b.Y-nvgraph.DefaultArrowGap, last.Y, tolerance)
	}
}

func TestNestedGroup(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	south := nvgraph.South
	group(g, "G", "A", "B").FlowDirection = &south
	leaf(g, "A", 10, 10)
	leaf(g, "B", 10, 10)

	res := layout(t, g)
	gl := res.Nodes["G"]
	padding := nvgraph.DefaultGroupPadding
	assert.GreaterOrEqual(t, gl.Height+tolerance, 10+10+2*padding+nvgraph.DefaultNodeMargin)
	assert.GreaterOrEqual(t, gl.Width+tolerance, 10+2*padding)
	assertContains(t, gl, res.Nodes["A"], padding)
	assertContains(t, gl, res.Nodes["B"], padding)
}

func TestPortAnchoredEdge(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	a := leaf(g, "A", 40, 20)
	a.Ports = nvgraph.Ports{{Name: "out", Side: nvgraph.East}}
	leaf(g, "B", 10, 10)
	e := edge(g, "AB", "A", "B")
	e.Source.Port = "out"

	res := layout(t, g)
	al := res.Nodes["A"]
	port := al.Ports["out"]
	if assert.NotNil(t, port) {
		assert.InDelta(t, al.X+al.Width+nvgraph.DefaultPortLength, port.X, tolerance)
		assert.InDelta(t, al.Y+al.Height/2, port.Y, tolerance)
	}

	first := res.Edges["AB"].Points[0]
	assert.InDelta(t, al.X+al.Width+nvgraph.DefaultPortLength, first.X, tolerance)
	assert.InDelta(t, al.Y+al.Height/2, first.Y, tolerance)
}

func TestDisconnectedEdgeFallback(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	east := nvgraph.East
	group(g, "T1", "a").FlowDirection = &east
	group(g, "T2", "b").FlowDirection = &east
	leaf(g, "a", 10, 10)
	leaf(g, "b", 10, 10)
	edge(g, "ab", "a", "b")

	res := layout(t, g)
	a, b := res.Nodes["a"], res.Nodes["b"]
	// The trees share no ancestor so the default south flow applies instead of east.
	assert.GreaterOrEqual(t, b.Y+tolerance, a.Y+a.Height+nvgraph.DefaultFlowSpacing)
}

func TestEmptyGraph(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t)
	_, err := nvdag.DefaultLayout(ctx, nvgraph.NewGraph())
	assert.True(t, errors.Is(err, nvdag.ErrEmptyGraph), "unexpected error: %v", err)
}

func TestInvalidGraph(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	group(g, "a", "b")
	group(g, "b", "a")
	leaf(g, "c", 10, 10)

	ctx := log.WithTB(context.Background(), t)
	_, err := nvdag.DefaultLayout(ctx, g)
	assert.True(t, errors.Is(err, nvgraph.ErrContainmentCycle), "unexpected error: %v", err)
}

func TestCollapsedGroup(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	group(g, "G", "a", "b").IsExpanded = go2.Pointer(false)
	leaf(g, "a", 10, 10)
	leaf(g, "b", 10, 10)
	leaf(g, "c", 10, 10)
	edge(g, "ab", "a", "b")
	edge(g, "ac", "a", "c")
	edge(g, "Gc", "G", "c")
	g.Sizes = map[string]nvgraph.Size{"G": {Width: 50, Height: 25}}

	res := layout(t, g)
	assert.Equal(t, []string{"G", "c"}, go2.SortedKeys(res.Nodes))
	assert.Equal(t, []string{"Gc"}, go2.SortedKeys(res.Edges))
	assert.Equal(t, 50., res.Nodes["G"].Width)
	assert.Equal(t, 25., res.Nodes["G"].Height)
}

func TestProperties(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	west := nvgraph.West
	group(g, "outer", "x", "inner", "y")
	group(g, "inner", "p", "q", "r").FlowDirection = &west
	for _, id := range []string{"x", "y", "p", "q", "r", "s"} {
		leaf(g, id, 24, 16)
	}
	hub := leaf(g, "hub", 60, 30)
	hub.Ports = nvgraph.Ports{
		{Name: "n1", Side: nvgraph.South, Order: go2.Pointer(1.)},
		{Name: "n2", Side: nvgraph.South, Order: go2.Pointer(2.)},
		{Name: "n3", Side: nvgraph.South, Order: go2.Pointer(3.)},
	}
	edge(g, "xy", "x", "y")
	edge(g, "pq", "p", "q")
	edge(g, "qr", "q", "r")
	edge(g, "x-inner", "x", "inner")
	for _, id := range []string{"n1", "n2", "n3"} {
		e := edge(g, "hub-"+id, "hub", "s")
		e.Source.Port = id
	}
	edge(g, "s-outer", "s", "outer")

	res := layout(t, g)

	for _, nl := range res.Nodes {
		assert.GreaterOrEqual(t, nl.X+tolerance, nvgraph.DefaultPadding, nl.ID)
		assert.GreaterOrEqual(t, nl.Y+tolerance, nvgraph.DefaultPadding, nl.ID)
		assert.LessOrEqual(t, nl.X+nl.Width, res.Width-nvgraph.DefaultPadding+tolerance, nl.ID)
		assert.LessOrEqual(t, nl.Y+nl.Height, res.Height-nvgraph.DefaultPadding+tolerance, nl.ID)
	}

	for _, parent := range []string{"outer", "inner"} {
		children := g.Nodes[parent].Children
		for i, c := range children {
			assertContains(t, res.Nodes[parent], res.Nodes[c], nvgraph.DefaultGroupPadding)
			assert.Greater(t, res.Nodes[c].Z, res.Nodes[parent].Z)
			for _, d := range children[i+1:] {
				assertApart(t, res.Nodes[c], res.Nodes[d], nvgraph.DefaultNodeMargin)
			}
		}
	}
	for _, r := range []string{"outer", "hub", "s"} {
		for _, o := range []string{"outer", "hub", "s"} {
			if r < o {
				assertApart(t, res.Nodes[r], res.Nodes[o], nvgraph.DefaultNodeMargin)
			}
		}
	}

	// inner flows west.
	p, q, r := res.Nodes["p"], res.Nodes["q"], res.Nodes["r"]
	assert.GreaterOrEqual(t, p.X+tolerance, q.X+q.Width+nvgraph.DefaultFlowSpacing)
	assert.GreaterOrEqual(t, q.X+tolerance, r.X+r.Width+nvgraph.DefaultFlowSpacing)
	// outer inherits the default south.
	x, y := res.Nodes["x"], res.Nodes["y"]
	assert.GreaterOrEqual(t, y.Y+tolerance, x.Y+x.Height+nvgraph.DefaultFlowSpacing)

	hubPorts := res.Nodes["hub"].Ports
	assert.Less(t, hubPorts["n1"].X, hubPorts["n2"].X)
	assert.Less(t, hubPorts["n2"].X, hubPorts["n3"].X)

	maxNodeZ := 0
	for _, nl := range res.Nodes {
		if nl.Z > maxNodeZ {
			maxNodeZ = nl.Z
		}
	}
	for _, el := range res.Edges {
		assert.Greater(t, el.Z, maxNodeZ)
		for _, pt := range el.Points {
			assert.True(t, pt.IsFinite())
			assert.True(t, pt.X >= -tolerance && pt.X <= res.Width+tolerance)
			assert.True(t, pt.Y >= -tolerance && pt.Y <= res.Height+tolerance)
		}
	}
}

// Two roots feeding a group nested inside a sibling group used to push the sweep and the
// separations against each other until the canvas ran away.
func TestEdgesIntoNestedGroupSettle(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	leaf(g, "n0", 21, 34)
	leaf(g, "n4", 24, 35)
	for _, id := range []string{"n3", "n5", "n12"} {
		leaf(g, id, 20, 20)
	}
	group(g, "n1", "n3", "n5", "n8")
	group(g, "n8", "n12")
	edge(g, "n0-n8", "n0", "n8")
	edge(g, "n4-n8", "n4", "n8")

	res := layout(t, g)
	n12 := res.Nodes["n12"]
	for _, src := range []string{"n0", "n4"} {
		s := res.Nodes[src]
		assert.GreaterOrEqual(t, n12.Y+tolerance, s.Y+s.Height+nvgraph.DefaultFlowSpacing, src)
		assertApart(t, s, res.Nodes["n1"], nvgraph.DefaultNodeMargin)
	}
	assertApart(t, res.Nodes["n0"], res.Nodes["n4"], nvgraph.DefaultNodeMargin)
	for _, c := range []string{"n3", "n5", "n8"} {
		assertContains(t, res.Nodes["n1"], res.Nodes[c], nvgraph.DefaultGroupPadding)
		for _, d := range []string{"n3", "n5", "n8"} {
			if c < d {
				assertApart(t, res.Nodes[c], res.Nodes[d], nvgraph.DefaultNodeMargin)
			}
		}
	}
	assertContains(t, res.Nodes["n8"], n12, nvgraph.DefaultGroupPadding)

	// Settled layouts stay on the order of the node sizes.
	assert.Less(t, res.Height, 600.)
	assert.Less(t, res.Width, 600.)
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	build := func() *nvgraph.Graph {
		g := nvgraph.NewGraph()
		group(g, "G", "a", "b", "c")
		for _, id := range []string{"a", "b", "c", "d"} {
			leaf(g, id, 20, 20)
		}
		edge(g, "ab", "a", "b")
		edge(g, "ac", "a", "c")
		edge(g, "Gd", "G", "d")
		return g
	}

	res1 := layout(t, build())
	res2 := layout(t, build())
	b1, err := nvgraph.SerializeResult(res1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := nvgraph.SerializeResult(res2)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, string(b1), string(b2))

	var decoded nvgraph.Result
	err = nvgraph.DeserializeResult(b1, &decoded)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, res1.Width, decoded.Width)
	assert.Equal(t, len(res1.Nodes), len(decoded.Nodes))
}

func assertContains(t *testing.T, outer, inner *nvgraph.NodeLayout, inset float64) {
	t.Helper()
	assert.LessOrEqual(t, outer.X+inset, inner.X+tolerance, "%s in %s", inner.ID, outer.ID)
	assert.LessOrEqual(t, outer.Y+inset, inner.Y+tolerance, "%s in %s", inner.ID, outer.ID)
	assert.GreaterOrEqual(t, outer.X+outer.Width-inset+tolerance, inner.X+inner.Width, "%s in %s", inner.ID, outer.ID)
	assert.GreaterOrEqual(t, outer.Y+outer.Height-inset+tolerance, inner.Y+inner.Height, "%s in %s", inner.ID, outer.ID)
}

func assertApart(t *testing.T, a, b *nvgraph.NodeLayout, margin float64) {
	t.Helper()
	gapX := math.Max(b.X-(a.X+a.Width), a.X-(b.X+b.Width))
	gapY := math.Max(b.Y-(a.Y+a.Height), a.Y-(b.Y+b.Height))
	assert.True(t, gapX+tolerance >= margin || gapY+tolerance >= margin,
		"%s and %s closer than %v: %s %s", a.ID, b.ID, margin, boxString(a), boxString(b))
}

func boxString(nl *nvgraph.NodeLayout) string {
	return geo.NewBox(geo.NewPoint(nl.X, nl.Y), nl.Width, nl.Height).ToString()
}
