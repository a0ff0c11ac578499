package nvcola

import (
	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvprep"
)

// seed gives every vertex a deterministic starting center. Within each container, members
// are ranked along the container's flow by the longest path over the edges between them.
// Members no edge relates are stacked after the ranked ones in declared order. Each rank is a
// lane along the flow axis and is centered on the cross axis.
func (cg *ConstraintGraph) seed(info *nvprep.Info) {
	relations := cg.siblingRelations(info)

	// Offsets of each member's top left relative to its container's content origin.
	offsets := make(map[Member]*geo.Point)
	sizes := make(map[Member]*geo.Point)
	for _, v := range cg.Vertices {
		sizes[Member{KindVertex, v.Index}] = geo.NewPoint(v.Width, v.Height)
	}
	for _, grp := range cg.Groups {
		w, h := cg.seedContainer(grp.NodeID, grp.Members, grp.Flow, relations, sizes, offsets)
		sizes[Member{KindGroup, grp.Index}] = geo.NewPoint(w+2*grp.Padding, h+2*grp.Padding)
	}
	cg.seedContainer("", cg.Roots, cg.RootFlow, relations, sizes, offsets)

	var place func(m Member, tl *geo.Point)
	place = func(m Member, tl *geo.Point) {
		if m.Kind == KindVertex {
			v := cg.Vertices[m.Index]
			v.X = tl.X + v.Width/2
			v.Y = tl.Y + v.Height/2
			return
		}
		grp := cg.Groups[m.Index]
		for _, c := range grp.Members {
			off := offsets[c]
			place(c, geo.NewPoint(tl.X+grp.Padding+off.X, tl.Y+grp.Padding+off.Y))
		}
	}
	for _, m := range cg.Roots {
		place(m, offsets[m].Copy())
	}
}

type relation struct {
	from, to Member
}

// siblingRelations lifts every edge to the pair of distinct siblings under the lowest common
// ancestor of its endpoints, keyed by that ancestor. Top level pairs are keyed by "".
func (cg *ConstraintGraph) siblingRelations(info *nvprep.Info) map[string][]relation {
	out := make(map[string][]relation)
	under := func(id, container string) string {
		for {
			p, ok := info.Parent[id]
			if (!ok && container == "") || (ok && p == container) {
				return id
			}
			if !ok {
				return ""
			}
			id = p
		}
	}
	for _, e := range info.Edges {
		container := info.EdgeLCA[e.ID]
		if container == e.Source.ID || container == e.Target.ID {
			continue
		}
		s, t := under(e.Source.ID, container), under(e.Target.ID, container)
		if s == "" || t == "" || s == t {
			continue
		}
		out[container] = append(out[container], relation{cg.nodes[s], cg.nodes[t]})
	}
	return out
}

// seedContainer records member offsets and returns the size of the content.
func (cg *ConstraintGraph) seedContainer(id string, members []Member, flow nvgraph.Direction, relations map[string][]relation, sizes, offsets map[Member]*geo.Point) (float64, float64) {
	if len(members) == 0 {
		return 0, 0
	}
	axis := flow.Axis()
	cross := axis.Other()

	rank := make(map[Member]int)
	for _, r := range relations[id] {
		for _, m := range []Member{r.from, r.to} {
			if _, ok := rank[m]; !ok {
				rank[m] = 0
			}
		}
	}
	for i := 0; i < len(members); i++ {
		changed := false
		for _, r := range relations[id] {
			if rank[r.from]+1 > rank[r.to] && rank[r.from]+1 < len(members) {
				rank[r.to] = rank[r.from] + 1
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	next := 0
	for _, r := range rank {
		if r+1 > next {
			next = r + 1
		}
	}
	lanes := make([][]Member, 0, len(members))
	for _, m := range members {
		if _, ok := rank[m]; !ok {
			rank[m] = next
			next++
		}
	}
	for i := 0; i < next; i++ {
		lanes = append(lanes, nil)
	}
	for _, m := range members {
		lanes[rank[m]] = append(lanes[rank[m]], m)
	}

	var laneThick, laneCross []float64
	maxCross := 0.
	for _, lane := range lanes {
		thick, length := 0., 0.
		for i, m := range lane {
			s := sizes[m]
			if s.Get(axis) > thick {
				thick = s.Get(axis)
			}
			if i > 0 {
				length += cg.NodeMargin
			}
			length += s.Get(cross)
		}
		laneThick = append(laneThick, thick)
		laneCross = append(laneCross, length)
		if length > maxCross {
			maxCross = length
		}
	}

	total := 0.
	nonEmpty := 0
	for i, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		if nonEmpty > 0 {
			total += cg.FlowSpacing
		}
		nonEmpty++
		total += laneThick[i]
	}

	pos := 0.
	started := false
	for i, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		if started {
			pos += cg.FlowSpacing
		}
		started = true
		c := (maxCross - laneCross[i]) / 2
		for _, m := range lane {
			s := sizes[m]
			off := geo.NewPoint(0, 0)
			// Members are centered within their lane.
			flowPos := pos + (laneThick[i]-s.Get(axis))/2
			if flow.Reversed() {
				flowPos = total - flowPos - s.Get(axis)
			}
			off.Set(axis, flowPos)
			off.Set(cross, c)
			offsets[m] = off
			c += s.Get(cross) + cg.NodeMargin
		}
		pos += laneThick[i]
	}

	size := geo.NewPoint(0, 0)
	size.Set(axis, total)
	size.Set(cross, maxCross)
	return size.X, size.Y
}
