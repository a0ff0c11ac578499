package geo

import (
	"fmt"
	"math"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func NewPoint(x, y float64) *Point {
	return &Point{X: x, Y: y}
}

func (p1 *Point) Equals(p2 *Point) bool {
	if p1 == nil {
		return p2 == nil
	} else if p2 == nil {
		return false
	}
	return (p1.X == p2.X) && (p1.Y == p2.Y)
}

func (p *Point) Copy() *Point {
	return &Point{X: p.X, Y: p.Y}
}

// Get returns the coordinate of p on axis.
func (p *Point) Get(axis Axis) float64 {
	if axis == AxisX {
		return p.X
	}
	return p.Y
}

// Set sets the coordinate of p on axis.
func (p *Point) Set(axis Axis, v float64) {
	if axis == AxisX {
		p.X = v
	} else {
		p.Y = v
	}
}

type Points []*Point

func (p *Point) ToString() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("(%v, %v)", p.X, p.Y)
}

func (p1 *Point) DistanceTo(p2 *Point) float64 {
	return EuclideanDistance(p1.X, p1.Y, p2.X, p2.Y)
}

// get the point of intersection between line segments u and v (or nil if they do not intersect)
func IntersectionPoint(u0, u1, v0, v1 *Point) *Point {
	// https://en.wikipedia.org/wiki/Intersection_(Euclidean_geometry)
	//
	// s*udx - t*vdx = uvdx
	// s*udy - t*vdy = uvdy
	udx := u1.X - u0.X
	vdx := v1.X - v0.X
	uvdx := v0.X - u0.X
	udy := u1.Y - u0.Y
	vdy := v1.Y - v0.Y
	uvdy := v0.Y - u0.Y

	denom := (udy*vdx - udx*vdy)
	if denom == 0 {
		// lines are parallel
		return nil
	}
	// Cramer's rule
	s := (vdx*uvdy - vdy*uvdx) / denom
	t := (udx*uvdy - udy*uvdx) / denom

	if s < 0 || s > 1 || t < 0 || t > 1 {
		return nil
	}

	// orthogonal routes stay exact on the shared coordinate
	intersection := new(Point)
	intersection.X = u0.X + s*udx
	intersection.Y = u0.Y + s*udy
	if udx == 0 {
		intersection.X = u0.X
	} else if vdx == 0 {
		intersection.X = v0.X
	}
	if udy == 0 {
		intersection.Y = u0.Y
	} else if vdy == 0 {
		intersection.Y = v0.Y
	}
	return intersection
}

// point t% of the way between a and b
func (a *Point) Interpolate(b *Point, t float64) *Point {
	return NewPoint(
		a.X*(1.0-t)+b.X*t,
		a.Y*(1.0-t)+b.Y*t,
	)
}

func (p *Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
