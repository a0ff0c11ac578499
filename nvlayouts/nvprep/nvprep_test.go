package nvprep_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvprep"
)

func leaf(id string) *nvgraph.Node {
	return &nvgraph.Node{ID: id, Width: go2.Pointer(10.), Height: go2.Pointer(10.)}
}

func edge(id, src, dst string) *nvgraph.Edge {
	return &nvgraph.Edge{ID: id, Source: nvgraph.EdgeEnd{ID: src}, Target: nvgraph.EdgeEnd{ID: dst}}
}

// nested builds
//
//	root (east)
//	├── x
//	└── mid
//	    ├── y
//	    └── inner (north)
//	        └── z
//	other
//	└── w
func nested() *nvgraph.Graph {
	g := nvgraph.NewGraph()
	east := nvgraph.East
	north := nvgraph.North
	g.AddNode(&nvgraph.Node{ID: "root", Children: []string{"x", "mid"}, FlowDirection: &east})
	g.AddNode(&nvgraph.Node{ID: "mid", Children: []string{"y", "inner"}, AlignChildren: go2.Pointer(true)})
	g.AddNode(&nvgraph.Node{ID: "inner", Children: []string{"z"}, FlowDirection: &north})
	g.AddNode(&nvgraph.Node{ID: "other", Children: []string{"w"}})
	for _, id := range []string{"x", "y", "z", "w"} {
		g.AddNode(leaf(id))
	}
	g.AddEdge(edge("xy", "x", "y"))
	g.AddEdge(edge("yz", "y", "z"))
	g.AddEdge(edge("zz", "z", "z"))
	g.AddEdge(edge("xw", "x", "w"))
	g.AddEdge(edge("midz", "mid", "z"))
	return g
}

func TestPreprocess(t *testing.T) {
	t.Parallel()

	info, err := nvprep.Preprocess(nested(), nil)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, []string{"other", "root"}, info.Roots)
	assert.Equal(t, map[string]string{
		"x":     "root",
		"mid":   "root",
		"y":     "mid",
		"inner": "mid",
		"z":     "inner",
		"w":     "other",
	}, info.Parent)
	assert.Equal(t, []string{"y", "inner"}, info.Children["mid"])
	assert.True(t, info.IsLeaf("z"))
	assert.False(t, info.IsLeaf("inner"))
	assert.Equal(t, []string{"x", "y", "z"}, info.LeafDescendants("root"))
	assert.Equal(t, []string{"inner", "mid", "root"}, info.Ancestors("z"))
	assert.Equal(t, 3, info.Depth["z"])

	assert.Equal(t, nvgraph.East, info.NodeFlow["root"])
	assert.Equal(t, nvgraph.East, info.NodeFlow["mid"])
	assert.Equal(t, nvgraph.North, info.NodeFlow["inner"])
	assert.Equal(t, nvgraph.North, info.NodeFlow["z"])
	assert.Equal(t, nvgraph.South, info.NodeFlow["other"])

	assert.False(t, info.NodeAlign["root"])
	assert.True(t, info.NodeAlign["mid"])
	assert.True(t, info.NodeAlign["inner"])

	assert.Equal(t, "root", info.EdgeLCA["xy"])
	assert.Equal(t, nvgraph.East, info.EdgeFlow["xy"])
	assert.Equal(t, "mid", info.EdgeLCA["yz"])
	assert.Equal(t, nvgraph.East, info.EdgeFlow["yz"])
	assert.Equal(t, "z", info.EdgeLCA["zz"])
	assert.Equal(t, nvgraph.North, info.EdgeFlow["zz"])
	assert.Equal(t, "mid", info.EdgeLCA["midz"])
}

func TestDisconnectedEdgeFallback(t *testing.T) {
	t.Parallel()

	g := nested()
	west := nvgraph.West
	g.Config = &nvgraph.Config{FlowDirection: &west}

	info, err := nvprep.Preprocess(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, ok := info.EdgeLCA["xw"]
	assert.False(t, ok)
	assert.Equal(t, nvgraph.West, info.EdgeFlow["xw"])
	assert.Equal(t, nvgraph.West, info.NodeFlow["other"])
	assert.Equal(t, nvgraph.East, info.NodeFlow["root"])
}

func TestPreprocessIdempotent(t *testing.T) {
	t.Parallel()

	g := nested()
	info1, err := nvprep.Preprocess(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	info2, err := nvprep.Preprocess(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, info1.Roots, info2.Roots)
	assert.Equal(t, info1.NodeFlow, info2.NodeFlow)
	assert.Equal(t, info1.EdgeFlow, info2.EdgeFlow)
	assert.Equal(t, info1, info2)
}

func TestCollapsed(t *testing.T) {
	t.Parallel()

	g := nested()
	g.Nodes["mid"].IsExpanded = go2.Pointer(false)
	// Childless nodes ignore the flag.
	g.Nodes["x"].IsExpanded = go2.Pointer(true)

	info, err := nvprep.Preprocess(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, info.IsLeaf("mid"))
	assert.True(t, info.IsLeaf("x"))
	_, ok := info.Depth["y"]
	assert.False(t, ok)

	var ids []string
	for _, e := range info.Edges {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"xw"}, ids)
}

func TestExplicitVisibleSet(t *testing.T) {
	t.Parallel()

	g := nested()
	visible := map[string]struct{}{
		"mid": {},
		"y":   {},
		"x":   {},
	}
	info, err := nvprep.Preprocess(g, visible)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"mid", "x"}, info.Roots)
	assert.Equal(t, []string{"y"}, info.Children["mid"])
	assert.Equal(t, nvgraph.South, info.NodeFlow["mid"])
}

func TestPreprocessCycle(t *testing.T) {
	t.Parallel()

	g := nvgraph.NewGraph()
	g.AddNode(&nvgraph.Node{ID: "r", Children: []string{"a"}})
	g.AddNode(&nvgraph.Node{ID: "a", Children: []string{"b"}})
	g.AddNode(&nvgraph.Node{ID: "b", Children: []string{"a"}})

	_, err := nvprep.Preprocess(g, map[string]struct{}{"r": {}, "a": {}, "b": {}})
	if err == nil {
		t.Fatal("expected error")
	}
	assert.True(t, errors.Is(err, nvgraph.ErrContainmentCycle), "unexpected error: %v", err)
}
