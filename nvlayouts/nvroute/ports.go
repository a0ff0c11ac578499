// Package nvroute places ports on solved node boxes and routes edges orthogonally around
// them.
package nvroute

import (
	"sort"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/nvgraph"
)

// PlacePorts positions every port on its side of box, offset outward by portLength.
//
// Ports on one side are spread evenly: the i-th of n sits at span/(n+1)*(i+1) along the
// side. They are sorted by order; ports without an order keep name order after the ordered
// ones.
func PlacePorts(box *geo.Box, ports nvgraph.Ports, portLength float64) map[string]*geo.Point {
	out := make(map[string]*geo.Point, len(ports))
	for _, side := range nvgraph.Directions {
		var onSide nvgraph.Ports
		for _, p := range ports {
			if p.Side == side {
				onSide = append(onSide, p)
			}
		}
		if len(onSide) == 0 {
			continue
		}
		sortPorts(onSide)

		along := side.Axis().Other()
		span := box.Size(along)
		for i, p := range onSide {
			pt := geo.NewPoint(0, 0)
			pt.Set(along, box.Min(along)+span/float64(len(onSide)+1)*float64(i+1))
			if side.Reversed() {
				pt.Set(side.Axis(), box.Min(side.Axis())-portLength)
			} else {
				pt.Set(side.Axis(), box.Max(side.Axis())+portLength)
			}
			out[p.Name] = pt
		}
	}
	return out
}

func sortPorts(ports nvgraph.Ports) {
	sort.SliceStable(ports, func(i, j int) bool {
		a, b := ports[i], ports[j]
		if (a.Order == nil) != (b.Order == nil) {
			return a.Order != nil
		}
		if a.Order != nil && *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		return a.Name < b.Name
	})
}

// End is a resolved edge endpoint.
type End struct {
	NodeID string
	// Box is the solved box of the node.
	Box *geo.Box
	// Port is the port position for port anchored ends and nil for center anchored ones.
	Port *geo.Point
	// Side is the side the port sits on.
	Side nvgraph.Direction
}

// Point is where routing starts or ends.
func (e End) Point() *geo.Point {
	if e.Port != nil {
		return e.Port.Copy()
	}
	return e.Box.Center()
}

func (e End) Anchored() bool {
	return e.Port != nil
}

// Retarget resolves both ends of an edge. Ends that name a port are redirected to the port
// position; the others stay on the node box.
func Retarget(g *nvgraph.Graph, e *nvgraph.Edge, boxes map[string]*geo.Box, ports map[string]map[string]*geo.Point) (End, End) {
	resolve := func(ee nvgraph.EdgeEnd) End {
		end := End{NodeID: ee.ID, Box: boxes[ee.ID]}
		if ee.Port == "" {
			return end
		}
		if pt, ok := ports[ee.ID][ee.Port]; ok {
			end.Port = pt
			if p := g.Nodes[ee.ID].Ports.Get(ee.Port); p != nil {
				end.Side = p.Side
			}
		}
		return end
	}
	return resolve(e.Source), resolve(e.Target)
}
