package geo

import (
	"math"
)

type Route []*Point

// Simplify removes consecutive duplicates and merges collinear segments.
// Coordinates within tol of each other are treated as equal.
func (route Route) Simplify(tol float64) Route {
	if len(route) <= 1 {
		return route
	}
	nearEq := func(a, b float64) bool {
		return math.Abs(a-b) < tol
	}

	deduped := Route{route[0]}
	for i := 1; i < len(route); i++ {
		prev := deduped[len(deduped)-1]
		if !nearEq(route[i].X, prev.X) || !nearEq(route[i].Y, prev.Y) {
			deduped = append(deduped, route[i])
		}
	}
	if len(deduped) <= 2 {
		return deduped
	}

	out := Route{deduped[0]}
	for i := 1; i < len(deduped)-1; i++ {
		prev := out[len(out)-1]
		curr := deduped[i]
		next := deduped[i+1]
		sameX := nearEq(prev.X, curr.X) && nearEq(curr.X, next.X)
		sameY := nearEq(prev.Y, curr.Y) && nearEq(curr.Y, next.Y)
		if sameX || sameY {
			continue
		}
		out = append(out, curr)
	}
	return append(out, deduped[len(deduped)-1])
}

// ShortenEnd pulls the last point of the route back toward the previous point by at most
// gap, never collapsing the final segment entirely.
func (route Route) ShortenEnd(gap float64) {
	if len(route) < 2 || gap <= 0 {
		return
	}
	last := route[len(route)-1]
	prev := route[len(route)-2]
	length := last.DistanceTo(prev)
	if length == 0 {
		return
	}
	if gap > length/2 {
		gap = length / 2
	}
	switch {
	case last.X == prev.X:
		last.Y -= float64(Sign(last.Y-prev.Y)) * gap
	case last.Y == prev.Y:
		last.X -= float64(Sign(last.X-prev.X)) * gap
	default:
		shortened := last.Interpolate(prev, gap/length)
		last.X, last.Y = shortened.X, shortened.Y
	}
}
