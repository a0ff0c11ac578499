// Package nvcola maps a preprocessed graph onto a constraint layout model and solves it.
//
// Leaves become sized vertices, groups become recursive containers of vertices, and edges
// become attraction links plus directional separation constraints between every pair of leaf
// descendants of their endpoints. Solve runs a staged simulation over that model: an
// unconstrained stress phase, a constrained phase with overlap, alignment and separation
// projections, and a final monotone pass that settles the hard constraints.
package nvcola

import (
	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/nvgraph"
)

type ConfigurableOpts struct {
	UnconstrainedIterations int `json:"unconstrainedIterations"`
	ConstrainedIterations   int `json:"constrainedIterations"`
	// FinalIterations caps the projection loop run after the simulation.
	FinalIterations int `json:"finalIterations"`
	// OverlapThreshold is the constrained step from which sibling overlap is removed.
	OverlapThreshold int `json:"overlapThreshold"`
	// SeparationThreshold is the constrained step from which edge separations apply.
	SeparationThreshold int     `json:"separationThreshold"`
	Tolerance           float64 `json:"tolerance"`
	// LinkLength is the ideal center distance of two vertices one link apart.
	LinkLength  float64 `json:"linkLength"`
	Compactness float64 `json:"compactness"`

	// DefaultWidth and DefaultHeight size leaves that declare no size and have no hint.
	DefaultWidth  float64 `json:"defaultWidth"`
	DefaultHeight float64 `json:"defaultHeight"`
}

var DefaultOpts = ConfigurableOpts{
	UnconstrainedIterations: 10,
	ConstrainedIterations:   60,
	FinalIterations:         50,
	OverlapThreshold:        5,
	SeparationThreshold:     10,
	Tolerance:               1e-3,
	LinkLength:              50,
	Compactness:             0.01,
	DefaultWidth:            30,
	DefaultHeight:           30,
}

type Kind int

const (
	KindVertex Kind = iota
	KindGroup
)

// Member references either a vertex or a group of a ConstraintGraph.
type Member struct {
	Kind  Kind `json:"kind"`
	Index int  `json:"index"`
}

// Vertex is a leaf. X and Y are its center.
type Vertex struct {
	Index  int     `json:"index"`
	NodeID string  `json:"nodeId"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

func (v *Vertex) Size(axis geo.Axis) float64 {
	if axis == geo.AxisX {
		return v.Width
	}
	return v.Height
}

type Group struct {
	Index  int               `json:"index"`
	NodeID string            `json:"nodeId"`
	Flow   nvgraph.Direction `json:"flow"`
	// Members are the direct children in declared order.
	Members []Member `json:"members"`
	// Leaves are all direct and indirect leaf vertices.
	Leaves []int `json:"leaves"`
	// Groups are the immediate child groups.
	Groups  []int   `json:"groups"`
	Padding float64 `json:"padding"`
}

// Link pulls two vertices toward LinkLength apart.
type Link struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// Separation requires Left + Gap <= Right between vertex centers on Axis.
type Separation struct {
	Axis  geo.Axis `json:"axis"`
	Left  int      `json:"left"`
	Right int      `json:"right"`
	Gap   float64  `json:"gap"`
}

// Precedence keeps two siblings of one container in order along the container's flow axis:
// Before sits at lower coordinates than After. Container is a group index, or -1 for the roots.
type Precedence struct {
	Container int    `json:"container"`
	Before    Member `json:"before"`
	After     Member `json:"after"`
}

// AlignGroup requires its members to share a center coordinate on Axis.
type AlignGroup struct {
	Axis    geo.Axis `json:"axis"`
	Members []Member `json:"members"`
}

// PortOrder softly keeps Before at or before After on Axis.
type PortOrder struct {
	Axis   geo.Axis `json:"axis"`
	Before int      `json:"before"`
	After  int      `json:"after"`
}

type ConstraintGraph struct {
	Vertices []*Vertex `json:"vertices"`
	// Groups are in post-order: every group comes after its subgroups.
	Groups []*Group `json:"groups"`

	// Roots are the top level members, laid out along RootFlow.
	Roots    []Member          `json:"roots"`
	RootFlow nvgraph.Direction `json:"rootFlow"`

	Links       []*Link       `json:"links"`
	Separations []*Separation `json:"separations"`
	Precedences []*Precedence `json:"precedences"`
	Alignments  []*AlignGroup `json:"alignments"`
	PortOrders  []*PortOrder  `json:"portOrders"`

	NodeMargin  float64 `json:"nodeMargin"`
	FlowSpacing float64 `json:"flowSpacing"`

	nodes map[string]Member
}

// Lookup returns the member laying out nodeID.
func (cg *ConstraintGraph) Lookup(nodeID string) (Member, bool) {
	m, ok := cg.nodes[nodeID]
	return m, ok
}

func (cg *ConstraintGraph) NodeID(m Member) string {
	if m.Kind == KindGroup {
		return cg.Groups[m.Index].NodeID
	}
	return cg.Vertices[m.Index].NodeID
}

// Solution holds solved boxes indexed like the ConstraintGraph.
type Solution struct {
	Vertices []*geo.Box
	Groups   []*geo.Box
	// Boxes are all vertex and group boxes keyed by node ID.
	Boxes map[string]*geo.Box

	// Converged reports whether the constrained phase settled before its iteration budget ran
	// out.
	Converged bool
}
