package nvgraph

import (
	"errors"
	"fmt"

	"oss.terrastruct.com/xdefer"
)

var (
	// ErrInvalidDirection is returned for a flow direction or port side that is not one of
	// north, south, east or west.
	ErrInvalidDirection = errors.New("invalid direction")

	// ErrUnknownChild is returned when a node lists a child ID missing from the node map.
	ErrUnknownChild = errors.New("unknown child")

	// ErrMultipleParents is returned when a node is listed as the child of two nodes.
	// Containment must form a forest.
	ErrMultipleParents = errors.New("node has multiple parents")

	// ErrContainmentCycle is returned when a node is its own ancestor.
	ErrContainmentCycle = errors.New("containment cycle")

	// ErrUnknownEndpoint is returned when an edge references a node missing from the node map.
	ErrUnknownEndpoint = errors.New("unknown edge endpoint")

	// ErrUnknownPort is returned when an edge references a port its node does not declare.
	ErrUnknownPort = errors.New("unknown port")

	// ErrMismatchedID is returned when a map key and the ID stored under it differ.
	ErrMismatchedID = errors.New("mismatched id")
)

// Validate checks the structural invariants the layout engines rely on.
func (g *Graph) Validate() (err error) {
	defer xdefer.Errorf(&err, "invalid graph")

	parents := make(map[string]string)
	for _, id := range g.SortedNodeIDs() {
		n := g.Nodes[id]
		if n.ID != "" && n.ID != id {
			return fmt.Errorf("%w: node %q stored under %q", ErrMismatchedID, n.ID, id)
		}
		if n.FlowDirection != nil && !n.FlowDirection.Valid() {
			return fmt.Errorf("%w: node %q flowDirection %q", ErrInvalidDirection, id, *n.FlowDirection)
		}
		for _, p := range n.Ports {
			if !p.Side.Valid() {
				return fmt.Errorf("%w: node %q port %q side %q", ErrInvalidDirection, id, p.Name, p.Side)
			}
		}
		for _, c := range n.Children {
			if _, ok := g.Nodes[c]; !ok {
				return fmt.Errorf("%w: %q in children of %q", ErrUnknownChild, c, id)
			}
			if p, ok := parents[c]; ok {
				return fmt.Errorf("%w: %q is a child of %q and %q", ErrMultipleParents, c, p, id)
			}
			parents[c] = id
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return err
	}

	if g.Config != nil {
		if g.Config.FlowDirection != nil && !g.Config.FlowDirection.Valid() {
			return fmt.Errorf("%w: config flowDirection %q", ErrInvalidDirection, *g.Config.FlowDirection)
		}
		for _, a := range g.Config.Alignments {
			if _, err := a.GeoAxis(); err != nil {
				return err
			}
		}
	}

	for _, e := range g.SortedEdges() {
		for _, end := range []EdgeEnd{e.Source, e.Target} {
			n, ok := g.Nodes[end.ID]
			if !ok {
				return fmt.Errorf("%w: edge %q references %q", ErrUnknownEndpoint, e.ID, end.ID)
			}
			if end.Port != "" && n.Ports.Get(end.Port) == nil {
				return fmt.Errorf("%w: edge %q references port %q of %q", ErrUnknownPort, e.ID, end.Port, end.ID)
			}
		}
	}
	return nil
}

// checkAcyclic walks the containment relation with white/gray/black coloring.
func (g *Graph) checkAcyclic() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("%w: through %q", ErrContainmentCycle, id)
		case black:
			return nil
		}
		color[id] = gray
		for _, c := range g.Nodes[id].Children {
			if err := visit(c); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range g.SortedNodeIDs() {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
