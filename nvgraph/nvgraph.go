// Package nvgraph is the data model consumed and produced by the nestviz layout engines.
//
// A Graph is a forest of nodes (leaves with sizes, groups with ordered children) plus edges
// between nodes, optionally anchored at named ports. Layout engines read a Graph and return a
// Result holding the positioned geometry.
package nvgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/lib/go2"
)

// LayoutGraph computes the geometry of g.
type LayoutGraph func(context.Context, *Graph) (*Result, error)

// Direction is a flow direction or a side of a node.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

var Directions = []Direction{North, South, East, West}

func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West:
		return true
	}
	return false
}

// Axis is the axis the direction runs along.
func (d Direction) Axis() geo.Axis {
	if d == East || d == West {
		return geo.AxisX
	}
	return geo.AxisY
}

// Reversed reports whether the direction runs toward decreasing coordinates.
func (d Direction) Reversed() bool {
	return d == North || d == West
}

func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// Port is a named anchor point on a side of a node.
type Port struct {
	Name string    `json:"-"`
	Side Direction `json:"side"`
	// Order breaks ties among ports on the same side. Ports without an order are
	// treated as equal to each other.
	Order *float64 `json:"order,omitempty"`
}

// Ports serializes as an object keyed by port name. Decoding sorts by name so that
// iteration order is deterministic.
type Ports []*Port

func (ps Ports) Get(name string) *Port {
	for _, p := range ps {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (ps Ports) MarshalJSON() ([]byte, error) {
	m := make(map[string]*Port, len(ps))
	for _, p := range ps {
		m[p.Name] = p
	}
	return json.Marshal(m)
}

func (ps *Ports) UnmarshalJSON(b []byte) error {
	var m map[string]*Port
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := make(Ports, 0, len(m))
	for _, name := range go2.SortedKeys(m) {
		p := m[name]
		if p == nil {
			p = &Port{}
		}
		p.Name = name
		out = append(out, p)
	}
	*ps = out
	return nil
}

type Node struct {
	ID       string   `json:"id,omitempty"`
	Children []string `json:"children,omitempty"`

	FlowDirection *Direction `json:"flowDirection,omitempty"`
	AlignChildren *bool      `json:"alignChildren,omitempty"`
	// IsExpanded is the expansion state of a group. nil means expanded.
	IsExpanded *bool `json:"isExpanded,omitempty"`

	Ports Ports `json:"ports,omitempty"`

	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Collapsed reports whether the node is a group whose children are hidden.
func (n *Node) Collapsed() bool {
	return n.IsExpanded != nil && !*n.IsExpanded
}

type EdgeEnd struct {
	ID   string `json:"id"`
	Port string `json:"port,omitempty"`
}

type Edge struct {
	ID     string  `json:"id,omitempty"`
	Source EdgeEnd `json:"source"`
	Target EdgeEnd `json:"target"`
}

// UnmarshalJSON accepts both the source/target form and the
// startId/endId/startPort/endPort form.
func (e *Edge) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string   `json:"id"`
		Source    *EdgeEnd `json:"source"`
		Target    *EdgeEnd `json:"target"`
		StartID   string   `json:"startId"`
		EndID     string   `json:"endId"`
		StartPort string   `json:"startPort"`
		EndPort   string   `json:"endPort"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	if raw.Source != nil {
		e.Source = *raw.Source
	} else {
		e.Source = EdgeEnd{ID: raw.StartID, Port: raw.StartPort}
	}
	if raw.Target != nil {
		e.Target = *raw.Target
	} else {
		e.Target = EdgeEnd{ID: raw.EndID, Port: raw.EndPort}
	}
	return nil
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Graph is the input to a layout pass.
type Graph struct {
	Nodes  map[string]*Node `json:"nodes"`
	Edges  map[string]*Edge `json:"edges"`
	Config *Config          `json:"config,omitempty"`
	// Sizes are previously observed node sizes used as hints for nodes that do not
	// declare their own size.
	Sizes map[string]Size `json:"sizes,omitempty"`
}

func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make(map[string]*Edge),
	}
}

// AddNode adds a node keyed by its ID, replacing any existing node with that ID.
func (g *Graph) AddNode(n *Node) *Node {
	g.Nodes[n.ID] = n
	return n
}

func (g *Graph) AddEdge(e *Edge) *Edge {
	g.Edges[e.ID] = e
	return e
}

// SortedNodeIDs returns all node IDs in ascending order.
func (g *Graph) SortedNodeIDs() []string {
	return go2.SortedKeys(g.Nodes)
}

// SortedEdges returns all edges ordered by ID.
func (g *Graph) SortedEdges() []*Edge {
	edges := make([]*Edge, 0, len(g.Edges))
	for _, id := range go2.SortedKeys(g.Edges) {
		edges = append(edges, g.Edges[id])
	}
	return edges
}

// Parents maps each child ID to the ID of the node listing it.
func (g *Graph) Parents() map[string]string {
	parents := make(map[string]string)
	for _, id := range g.SortedNodeIDs() {
		for _, c := range g.Nodes[id].Children {
			parents[c] = id
		}
	}
	return parents
}

// Roots returns the IDs of nodes that are nobody's child, sorted.
func (g *Graph) Roots() []string {
	parents := g.Parents()
	var roots []string
	for _, id := range g.SortedNodeIDs() {
		if _, ok := parents[id]; !ok {
			roots = append(roots, id)
		}
	}
	return roots
}

// NodeLayout is the laid out geometry of a node. X and Y are the top left corner.
type NodeLayout struct {
	ID     string                `json:"id"`
	X      float64               `json:"x"`
	Y      float64               `json:"y"`
	Width  float64               `json:"width"`
	Height float64               `json:"height"`
	Z      int                   `json:"z"`
	Ports  map[string]*geo.Point `json:"ports,omitempty"`
}

func (nl *NodeLayout) Box() *geo.Box {
	return geo.NewBox(geo.NewPoint(nl.X, nl.Y), nl.Width, nl.Height)
}

type EdgeLayout struct {
	ID     string     `json:"id"`
	Points geo.Points `json:"points"`
	Z      int        `json:"z"`
}

// Result is the output of a layout pass.
type Result struct {
	Width  float64                `json:"width"`
	Height float64                `json:"height"`
	Nodes  map[string]*NodeLayout `json:"nodes"`
	Edges  map[string]*EdgeLayout `json:"edges"`
}

// SortedNodes returns the laid out nodes ordered by z and then ID.
func (r *Result) SortedNodes() []*NodeLayout {
	nodes := make([]*NodeLayout, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Z != nodes[j].Z {
			return nodes[i].Z < nodes[j].Z
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}
