package nvroute

import (
	"context"
	"math"
	"sort"

	"cdr.dev/slog"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvlayouts/nvprep"
)

const coordTolerance = 1e-9

type ConfigurableOpts struct {
	// EdgeMargin inflates every obstacle.
	EdgeMargin float64 `json:"edgeMargin"`
	// ArrowGap is cut from the end of every route to leave room for an arrowhead.
	ArrowGap float64 `json:"arrowGap"`
}

// Router routes edges orthogonally around the solved node boxes.
type Router struct {
	boxes map[string]*geo.Box
	ids   []string
	info  *nvprep.Info
	opts  ConfigurableOpts
}

func NewRouter(boxes map[string]*geo.Box, info *nvprep.Info, opts ConfigurableOpts) *Router {
	return &Router{
		boxes: boxes,
		ids:   go2.SortedKeys(boxes),
		info:  info,
		opts:  opts,
	}
}

// Route returns the polyline from src to dst. Center anchored ends are clipped to their box
// border and the final segment is shortened by the arrow gap. When the grid has no path a
// straight line is returned.
func (r *Router) Route(ctx context.Context, src, dst End) geo.Route {
	if src.NodeID == dst.NodeID && !src.Anchored() && !dst.Anchored() {
		route := selfLoop(src.Box, r.opts.EdgeMargin)
		route.ShortenEnd(r.opts.ArrowGap)
		return route
	}

	start, end := src.Point(), dst.Point()
	obstacles := r.obstacles(src, dst, start, end)

	route := gridRoute(obstacles, start, end, r.opts.EdgeMargin)
	if route == nil {
		log.Debug(ctx, "no grid route, falling back to a straight line",
			slog.F("src", src.NodeID), slog.F("dst", dst.NodeID))
		route = geo.Route{start, end}
	}

	if !src.Anchored() {
		route = clipStart(route, src.Box)
	}
	if !dst.Anchored() {
		route = reverse(clipStart(reverse(route), dst.Box))
	}
	route = route.Simplify(coordTolerance)
	if len(route) == 1 {
		// Both ends at the same point, e.g. a port looping back to itself.
		route = append(route, route[0].Copy())
	}
	route.ShortenEnd(r.opts.ArrowGap)
	return route
}

// obstacles returns every box the route must avoid. The ancestors and descendants of both
// ends are not obstacles and neither is a center anchored end's own box. A port anchored
// end's own box is an obstacle without margin since the port sits just outside it.
func (r *Router) obstacles(src, dst End, start, end *geo.Point) []*geo.Box {
	skip := make(map[string]struct{})
	raw := make(map[string]struct{})
	for _, e := range []End{src, dst} {
		for _, a := range r.info.Ancestors(e.NodeID) {
			skip[a] = struct{}{}
		}
		r.descendants(e.NodeID, skip)
		if e.Anchored() {
			raw[e.NodeID] = struct{}{}
		} else {
			skip[e.NodeID] = struct{}{}
		}
	}

	var out []*geo.Box
	for _, id := range r.ids {
		if _, ok := skip[id]; ok {
			continue
		}
		b := r.boxes[id]
		if _, ok := raw[id]; !ok {
			b = b.Inflate(r.opts.EdgeMargin)
			if b.StrictlyContains(start) || b.StrictlyContains(end) {
				b = r.boxes[id]
			}
		}
		if b.StrictlyContains(start) || b.StrictlyContains(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (r *Router) descendants(id string, into map[string]struct{}) {
	for _, c := range r.info.Children[id] {
		into[c] = struct{}{}
		r.descendants(c, into)
	}
}

// gridRoute builds the grid spanned by the obstacle borders, the channel midlines between
// them and the endpoints, and searches it.
func gridRoute(obstacles []*geo.Box, start, end *geo.Point, margin float64) geo.Route {
	xs := []float64{start.X, end.X}
	ys := []float64{start.Y, end.Y}
	for _, b := range obstacles {
		xs = append(xs, b.Left(), b.Right())
		ys = append(ys, b.Top(), b.Bottom())
	}
	xs = gridLines(xs, margin)
	ys = gridLines(ys, margin)

	blocked := func(p *geo.Point) bool {
		for _, b := range obstacles {
			if b.StrictlyContains(p) {
				return true
			}
		}
		return false
	}
	crosses := func(p, q *geo.Point) bool {
		for _, b := range obstacles {
			if b.SegmentCrosses(p, q) {
				return true
			}
		}
		return false
	}

	ids := make([][]int, len(xs))
	var pts []*geo.Point
	for i, x := range xs {
		ids[i] = make([]int, len(ys))
		for j, y := range ys {
			p := geo.NewPoint(x, y)
			if blocked(p) {
				ids[i][j] = -1
				continue
			}
			ids[i][j] = len(pts)
			pts = append(pts, p)
		}
	}

	adj := make([][]gridEdge, len(pts))
	link := func(a, b int, o orientation) {
		if a < 0 || b < 0 || crosses(pts[a], pts[b]) {
			return
		}
		w := pts[a].DistanceTo(pts[b])
		adj[a] = append(adj[a], gridEdge{to: b, weight: w, orient: o})
		adj[b] = append(adj[b], gridEdge{to: a, weight: w, orient: o})
	}
	for i := range xs {
		for j := range ys {
			if i+1 < len(xs) {
				link(ids[i][j], ids[i+1][j], horizontal)
			}
			if j+1 < len(ys) {
				link(ids[i][j], ids[i][j+1], vertical)
			}
		}
	}

	si := ids[indexOf(xs, start.X)][indexOf(ys, start.Y)]
	di := ids[indexOf(xs, end.X)][indexOf(ys, end.Y)]
	if si < 0 || di < 0 {
		return nil
	}
	path := shortestPath(adj, si, di)
	if path == nil {
		return nil
	}
	route := make(geo.Route, 0, len(path))
	for _, id := range path {
		route = append(route, pts[id].Copy())
	}
	// Grid nodes carry the endpoint coordinates exactly but copy them over in case
	// deduplication merged a near equal line.
	route[0] = start.Copy()
	route[len(route)-1] = end.Copy()
	if len(route) == 1 {
		route = append(route, end.Copy())
	}
	return route
}

// gridLines sorts and deduplicates coordinates, adds the midline of every channel between
// neighbors and a frame margin outside the extremes.
func gridLines(vs []float64, margin float64) []float64 {
	sort.Float64s(vs)
	var uniq []float64
	for _, v := range vs {
		if len(uniq) == 0 || v-uniq[len(uniq)-1] > coordTolerance {
			uniq = append(uniq, v)
		}
	}
	var out []float64
	if margin > 0 {
		out = append(out, uniq[0]-margin)
	}
	for i, v := range uniq {
		if i > 0 {
			out = append(out, (uniq[i-1]+v)/2)
		}
		out = append(out, v)
	}
	if margin > 0 {
		out = append(out, uniq[len(uniq)-1]+margin)
	}
	return out
}

func indexOf(vs []float64, v float64) int {
	i := sort.SearchFloat64s(vs, v-coordTolerance)
	if i < len(vs) && math.Abs(vs[i]-v) <= coordTolerance {
		return i
	}
	// unreachable: every endpoint coordinate is a grid line.
	return go2.Min(i, len(vs)-1)
}

// clipStart moves the start of route from inside box to where the route first leaves it.
func clipStart(route geo.Route, box *geo.Box) geo.Route {
	for k := 0; k+1 < len(route); k++ {
		if box.StrictlyContains(route[k+1]) {
			continue
		}
		pts := box.Intersections(*geo.NewSegment(route[k], route[k+1]))
		if len(pts) == 0 {
			return route
		}
		p := pts[0]
		for _, q := range pts[1:] {
			if q.DistanceTo(route[k]) < p.DistanceTo(route[k]) {
				p = q
			}
		}
		return append(geo.Route{p}, route[k+1:]...)
	}
	return route
}

func reverse(route geo.Route) geo.Route {
	out := make(geo.Route, len(route))
	for i, p := range route {
		out[len(route)-1-i] = p
	}
	return out
}

// selfLoop leaves box on its east side and returns on its north side.
func selfLoop(box *geo.Box, margin float64) geo.Route {
	c := box.Center()
	return geo.Route{
		geo.NewPoint(box.Right(), c.Y),
		geo.NewPoint(box.Right()+margin, c.Y),
		geo.NewPoint(box.Right()+margin, box.Top()-margin),
		geo.NewPoint(c.X, box.Top()-margin),
		geo.NewPoint(c.X, box.Top()),
	}
}
