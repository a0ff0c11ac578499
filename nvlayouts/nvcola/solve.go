package nvcola

import (
	"context"
	"errors"
	"math"
	"sort"

	"cdr.dev/slog"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvgraph"
)

const eps = 1e-6

// term is one pairwise stress term: the ideal center distance of vertices i and j.
type term struct {
	i, j   int
	target float64
}

type container struct {
	// index is the group index, or -1 for the roots.
	index   int
	members []Member
	flow    nvgraph.Direction
}

type solver struct {
	cg   *ConstraintGraph
	opts *ConfigurableOpts

	pos    []*geo.Point
	groups []*geo.Box
	terms  []term
	// precedences are keyed by container index.
	precedences map[int][]*Precedence
}

// Solve runs the staged simulation over cg. cg is not modified. Failing to converge is not
// an error: the positions reached after the iteration budget are returned.
func Solve(ctx context.Context, cg *ConstraintGraph, opts *ConfigurableOpts) (_ *Solution, err error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	defer xdefer.Errorf(&err, "failed to solve constraint graph")

	if len(cg.Vertices) == 0 {
		return nil, errors.New("no vertices")
	}

	s := &solver{
		cg:     cg,
		opts:   opts,
		groups: make([]*geo.Box, len(cg.Groups)),
		terms:  stressTerms(cg, opts.LinkLength),

		precedences: make(map[int][]*Precedence),
	}
	for _, p := range cg.Precedences {
		s.precedences[p.Container] = append(s.precedences[p.Container], p)
	}
	for _, v := range cg.Vertices {
		s.pos = append(s.pos, geo.NewPoint(v.X, v.Y))
	}

	stageA := 0
	for stageA < opts.UnconstrainedIterations {
		stageA++
		moved := math.Max(s.stressStep(1), s.compact())
		if moved < opts.Tolerance {
			break
		}
	}

	converged := false
	stageB := 0
	activeFrom := opts.SeparationThreshold
	if opts.OverlapThreshold > activeFrom {
		activeFrom = opts.OverlapThreshold
	}
	for stageB < opts.ConstrainedIterations {
		before := s.snapshot()
		step := stageB
		stageB++

		s.stressStep(1 - float64(step)/float64(opts.ConstrainedIterations))
		if step >= opts.OverlapThreshold {
			s.removeOverlaps()
		}
		s.orderPorts()
		s.align(false)
		if step >= opts.SeparationThreshold {
			s.separate(false)
		}

		if step >= activeFrom && s.maxMove(before) < opts.Tolerance {
			converged = true
			break
		}
	}

	// Every step below only moves things forward, so on satisfiable constraints the pass
	// settles instead of trading one violation for another.
	final := 0
	for final < opts.FinalIterations {
		final++
		changed := s.align(true)
		for i := 0; i < len(cg.Vertices) && s.separate(true); i++ {
			changed = true
		}
		changed = s.sweep() || changed
		if !changed {
			break
		}
	}

	log.Debug(ctx, "solved constraint graph",
		slog.F("unconstrained", stageA),
		slog.F("constrained", stageB),
		slog.F("final", final),
		slog.F("converged", converged),
	)

	s.computeGroups()
	sol := &Solution{
		Groups:    s.groups,
		Boxes:     make(map[string]*geo.Box, len(cg.Vertices)+len(cg.Groups)),
		Converged: converged,
	}
	for i, v := range cg.Vertices {
		b := s.vertexBox(i)
		sol.Vertices = append(sol.Vertices, b)
		sol.Boxes[v.NodeID] = b
	}
	for i, grp := range cg.Groups {
		sol.Boxes[grp.NodeID] = s.groups[i]
	}
	return sol, nil
}

// stressTerms pairs every two vertices connected through links with their ideal distance:
// the shortest path length in links times linkLength.
func stressTerms(cg *ConstraintGraph, linkLength float64) []term {
	if len(cg.Links) == 0 {
		return nil
	}
	g := simple.NewUndirectedGraph()
	for i := range cg.Vertices {
		g.AddNode(simple.Node(i))
	}
	for _, l := range cg.Links {
		g.SetEdge(simple.Edge{F: simple.Node(l.Source), T: simple.Node(l.Target)})
	}
	paths := path.DijkstraAllPaths(g)

	var terms []term
	for i := range cg.Vertices {
		for j := i + 1; j < len(cg.Vertices); j++ {
			d := paths.Weight(int64(i), int64(j))
			if math.IsInf(d, 0) || d == 0 {
				continue
			}
			terms = append(terms, term{i: i, j: j, target: d * linkLength})
		}
	}
	return terms
}

// stressStep moves each pair of vertices toward their ideal distance and returns the largest
// displacement.
func (s *solver) stressStep(scale float64) float64 {
	moved := 0.
	for _, t := range s.terms {
		p, q := s.pos[t.i], s.pos[t.j]
		dx, dy := q.X-p.X, q.Y-p.Y
		dist := math.Hypot(dx, dy)
		var ux, uy float64
		if dist < eps {
			// Coincident vertices split along the root flow.
			if s.cg.RootFlow.Axis() == geo.AxisX {
				ux = 1
			} else {
				uy = 1
			}
		} else {
			ux, uy = dx/dist, dy/dist
		}
		mu := scale * math.Min(1, s.opts.LinkLength*s.opts.LinkLength/(t.target*t.target))
		r := mu * (dist - t.target) / 2
		p.X += r * ux
		p.Y += r * uy
		q.X -= r * ux
		q.Y -= r * uy
		moved = math.Max(moved, math.Abs(r))
	}
	return moved
}

// compact pulls every vertex toward the centroid.
func (s *solver) compact() float64 {
	if s.opts.Compactness == 0 {
		return 0
	}
	var cx, cy float64
	for _, p := range s.pos {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(s.pos))
	cy /= float64(len(s.pos))
	moved := 0.
	for _, p := range s.pos {
		dx := s.opts.Compactness * (cx - p.X)
		dy := s.opts.Compactness * (cy - p.Y)
		p.X += dx
		p.Y += dy
		moved = math.Max(moved, math.Hypot(dx, dy))
	}
	return moved
}

func (s *solver) snapshot() []*geo.Point {
	out := make([]*geo.Point, len(s.pos))
	for i, p := range s.pos {
		out[i] = p.Copy()
	}
	return out
}

func (s *solver) maxMove(before []*geo.Point) float64 {
	moved := 0.
	for i, p := range s.pos {
		moved = math.Max(moved, p.DistanceTo(before[i]))
	}
	return moved
}

func (s *solver) vertexBox(i int) *geo.Box {
	v := s.cg.Vertices[i]
	return geo.NewBoxFromCenter(s.pos[i], v.Width, v.Height)
}

// computeGroups derives every group box from its members plus padding. Subgroups come first
// in cg.Groups so their boxes are ready when their parent is computed.
func (s *solver) computeGroups() {
	for i, grp := range s.cg.Groups {
		var box *geo.Box
		for _, m := range grp.Members {
			box = box.Union(s.memberBox(m))
		}
		s.groups[i] = box.Inflate(grp.Padding)
	}
}

func (s *solver) memberBox(m Member) *geo.Box {
	if m.Kind == KindGroup {
		return s.groups[m.Index]
	}
	return s.vertexBox(m.Index)
}

func (s *solver) translate(m Member, axis geo.Axis, d float64) {
	if m.Kind == KindVertex {
		p := s.pos[m.Index]
		p.Set(axis, p.Get(axis)+d)
		return
	}
	for _, l := range s.cg.Groups[m.Index].Leaves {
		p := s.pos[l]
		p.Set(axis, p.Get(axis)+d)
	}
}

// containers lists sibling sets innermost first.
func (s *solver) containers() []container {
	out := make([]container, 0, len(s.cg.Groups)+1)
	for _, grp := range s.cg.Groups {
		out = append(out, container{index: grp.Index, members: grp.Members, flow: grp.Flow})
	}
	return append(out, container{index: -1, members: s.cg.Roots, flow: s.cg.RootFlow})
}

func (s *solver) memberBoxes(members []Member) []*geo.Box {
	boxes := make([]*geo.Box, len(members))
	for i, m := range members {
		boxes[i] = s.memberBox(m).Copy()
	}
	return boxes
}

func shiftBox(b *geo.Box, axis geo.Axis, d float64) {
	b.TopLeft.Set(axis, b.TopLeft.Get(axis)+d)
}

func overlapOn(axis geo.Axis, ox, oy float64) float64 {
	if axis == geo.AxisX {
		return ox
	}
	return oy
}

// removeOverlaps pushes overlapping siblings apart by half the penetration each, along the
// axis of least penetration. Ties go to the container's flow axis.
func (s *solver) removeOverlaps() {
	half := s.cg.NodeMargin / 2
	for _, c := range s.containers() {
		s.computeGroups()
		boxes := s.memberBoxes(c.members)
		flowAxis := c.flow.Axis()
		for i := range c.members {
			for j := i + 1; j < len(c.members); j++ {
				ox, oy := boxes[i].Inflate(half).Overlap(boxes[j].Inflate(half))
				if ox <= eps || oy <= eps {
					continue
				}
				axis := flowAxis
				amount := overlapOn(axis, ox, oy)
				if o := overlapOn(axis.Other(), ox, oy); o < amount {
					axis, amount = axis.Other(), o
				}
				sign := 1.
				if boxes[j].Center().Get(axis) < boxes[i].Center().Get(axis) {
					sign = -1
				}
				s.translate(c.members[i], axis, -sign*amount/2)
				shiftBox(boxes[i], axis, -sign*amount/2)
				s.translate(c.members[j], axis, sign*amount/2)
				shiftBox(boxes[j], axis, sign*amount/2)
			}
		}
	}
}

// orderPorts closes half of every port order violation.
func (s *solver) orderPorts() {
	for _, po := range s.cg.PortOrders {
		b, a := s.pos[po.Before], s.pos[po.After]
		v := b.Get(po.Axis) - a.Get(po.Axis)
		if v <= eps {
			continue
		}
		b.Set(po.Axis, b.Get(po.Axis)-v/4)
		a.Set(po.Axis, a.Get(po.Axis)+v/4)
	}
}

// align moves the members of every alignment group onto their mean center. Forward alignment
// moves them onto the largest center instead.
func (s *solver) align(forward bool) bool {
	changed := false
	for _, ag := range s.cg.Alignments {
		s.computeGroups()
		target := 0.
		centers := make([]float64, len(ag.Members))
		for i, m := range ag.Members {
			centers[i] = s.memberBox(m).Center().Get(ag.Axis)
			if forward {
				if i == 0 || centers[i] > target {
					target = centers[i]
				}
				continue
			}
			target += centers[i]
		}
		if !forward {
			target /= float64(len(ag.Members))
		}
		for i, m := range ag.Members {
			d := target - centers[i]
			if math.Abs(d) <= eps {
				continue
			}
			s.translate(m, ag.Axis, d)
			changed = true
		}
	}
	return changed
}

// separate projects every violated separation. Forward projection only ever moves the right
// operand, which makes the final pass monotone.
func (s *solver) separate(forward bool) bool {
	changed := false
	for _, sep := range s.cg.Separations {
		l, r := s.pos[sep.Left], s.pos[sep.Right]
		v := l.Get(sep.Axis) + sep.Gap - r.Get(sep.Axis)
		if v <= eps {
			continue
		}
		changed = true
		if forward {
			r.Set(sep.Axis, r.Get(sep.Axis)+v)
			continue
		}
		l.Set(sep.Axis, l.Get(sep.Axis)-v/2)
		r.Set(sep.Axis, r.Get(sep.Axis)+v/2)
	}
	return changed
}

// sweep removes all remaining sibling overlap. Siblings are visited in precedence order along
// their container's flow axis and each is pushed forward past every earlier sibling it
// overlaps. Siblings on a common precedence cycle are pushed apart on the cross axis instead,
// and so are siblings aligned on the flow axis.
func (s *solver) sweep() bool {
	changed := false
	margin := s.cg.NodeMargin
	for _, c := range s.containers() {
		s.computeGroups()
		axis := c.flow.Axis()
		boxes := s.memberBoxes(c.members)
		order, entangled := s.sweepOrder(c, boxes)

		for oi, k := range order {
			for {
				shift, shiftAxis := 0., axis
				for _, j := range order[:oi] {
					ox, oy := boxes[j].Inflate(margin / 2).Overlap(boxes[k].Inflate(margin / 2))
					if ox <= eps || oy <= eps {
						continue
					}
					if entangled[[2]int{j, k}] {
						shiftAxis = axis.Other()
					}
					shift = boxes[j].Max(shiftAxis) + margin - boxes[k].Min(shiftAxis)
					break
				}
				if shift <= eps {
					break
				}
				s.translate(c.members[k], shiftAxis, shift)
				shiftBox(boxes[k], shiftAxis, shift)
				changed = true
			}
		}
	}
	return changed
}

// sweepOrder ranks the members of c by the longest chain of precedences ending at them. Equal
// ranks keep their current order along the flow axis. Members on a common precedence cycle are
// entangled and do not rank each other.
func (s *solver) sweepOrder(c container, boxes []*geo.Box) ([]int, map[[2]int]bool) {
	members, axis, precedences := c.members, c.flow.Axis(), s.precedences[c.index]
	local := make(map[Member]int, len(members))
	for i, m := range members {
		local[m] = i
	}
	entangled := make(map[[2]int]bool)
	if len(precedences) > 0 {
		g := simple.NewDirectedGraph()
		for i := range members {
			g.AddNode(simple.Node(i))
		}
		for _, p := range precedences {
			g.SetEdge(simple.Edge{F: simple.Node(local[p.Before]), T: simple.Node(local[p.After])})
		}
		for _, scc := range topo.TarjanSCC(g) {
			for _, a := range scc {
				for _, b := range scc {
					if a.ID() != b.ID() {
						entangled[[2]int{int(a.ID()), int(b.ID())}] = true
					}
				}
			}
		}
	}
	for _, ag := range s.cg.Alignments {
		if ag.Axis != axis {
			continue
		}
		var in []int
		for _, m := range ag.Members {
			if i, ok := local[m]; ok {
				in = append(in, i)
			}
		}
		for _, i := range in {
			for _, j := range in {
				if i != j {
					entangled[[2]int{i, j}] = true
				}
			}
		}
	}

	rank := make([]int, len(members))
	for iter := 0; iter < len(members); iter++ {
		changed := false
		for _, p := range precedences {
			i, j := local[p.Before], local[p.After]
			if entangled[[2]int{i, j}] {
				continue
			}
			if rank[i]+1 > rank[j] && rank[i]+1 < len(members) {
				rank[j] = rank[i] + 1
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if rank[i] != rank[j] {
			return rank[i] < rank[j]
		}
		return boxes[i].Min(axis) < boxes[j].Min(axis)
	})
	return order, entangled
}
