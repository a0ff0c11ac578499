package geo

import (
	"fmt"
	"math"
)

type Box struct {
	TopLeft *Point
	Width   float64
	Height  float64
}

func NewBox(tl *Point, width, height float64) *Box {
	return &Box{
		TopLeft: tl,
		Width:   width,
		Height:  height,
	}
}

// NewBoxFromCenter returns the box of the given size centered on c.
func NewBoxFromCenter(c *Point, width, height float64) *Box {
	return NewBox(NewPoint(c.X-width/2, c.Y-height/2), width, height)
}

func (b *Box) Copy() *Box {
	if b == nil {
		return nil
	}
	return NewBox(b.TopLeft.Copy(), b.Width, b.Height)
}

func (b *Box) Center() *Point {
	return NewPoint(b.TopLeft.X+b.Width/2, b.TopLeft.Y+b.Height/2)
}

func (b *Box) Left() float64   { return b.TopLeft.X }
func (b *Box) Top() float64    { return b.TopLeft.Y }
func (b *Box) Right() float64  { return b.TopLeft.X + b.Width }
func (b *Box) Bottom() float64 { return b.TopLeft.Y + b.Height }

// Min returns the lower border of b on axis.
func (b *Box) Min(axis Axis) float64 {
	return b.TopLeft.Get(axis)
}

// Max returns the upper border of b on axis.
func (b *Box) Max(axis Axis) float64 {
	return b.TopLeft.Get(axis) + b.Size(axis)
}

// Size returns the extent of b on axis.
func (b *Box) Size(axis Axis) float64 {
	if axis == AxisX {
		return b.Width
	}
	return b.Height
}

// Inflate returns a copy of b grown by margin on every side.
func (b *Box) Inflate(margin float64) *Box {
	return NewBox(NewPoint(b.TopLeft.X-margin, b.TopLeft.Y-margin), b.Width+2*margin, b.Height+2*margin)
}

// Contains reports whether p is inside b or on its border.
func (b *Box) Contains(p *Point) bool {
	return b.Left() <= p.X && p.X <= b.Right() && b.Top() <= p.Y && p.Y <= b.Bottom()
}

// StrictlyContains reports whether p is inside b and not on its border.
func (b *Box) StrictlyContains(p *Point) bool {
	return b.Left() < p.X && p.X < b.Right() && b.Top() < p.Y && p.Y < b.Bottom()
}

// ContainsBox reports whether other lies fully inside b.
func (b *Box) ContainsBox(other *Box) bool {
	return b.Left() <= other.Left() && other.Right() <= b.Right() &&
		b.Top() <= other.Top() && other.Bottom() <= b.Bottom()
}

// Overlap returns how far b and other penetrate each other on each axis.
// Either value being <= 0 means the boxes do not overlap.
func (b *Box) Overlap(other *Box) (float64, float64) {
	ox := math.Min(b.Right(), other.Right()) - math.Max(b.Left(), other.Left())
	oy := math.Min(b.Bottom(), other.Bottom()) - math.Max(b.Top(), other.Top())
	return ox, oy
}

func (b *Box) Overlaps(other *Box) bool {
	ox, oy := b.Overlap(other)
	return ox > 0 && oy > 0
}

// Union returns the smallest box containing both b and other.
func (b *Box) Union(other *Box) *Box {
	if b == nil {
		return other.Copy()
	}
	if other == nil {
		return b.Copy()
	}
	minX := math.Min(b.Left(), other.Left())
	minY := math.Min(b.Top(), other.Top())
	maxX := math.Max(b.Right(), other.Right())
	maxY := math.Max(b.Bottom(), other.Bottom())
	return NewBox(NewPoint(minX, minY), maxX-minX, maxY-minY)
}

func (b *Box) Intersections(s Segment) []*Point {
	pts := []*Point{}

	tl := b.TopLeft
	tr := NewPoint(tl.X+b.Width, tl.Y)
	br := NewPoint(tr.X, tr.Y+b.Height)
	bl := NewPoint(tl.X, br.Y)

	if p := IntersectionPoint(s.Start, s.End, tl, tr); p != nil {
		pts = append(pts, p)
	}
	if p := IntersectionPoint(s.Start, s.End, tr, br); p != nil {
		pts = append(pts, p)
	}
	if p := IntersectionPoint(s.Start, s.End, br, bl); p != nil {
		pts = append(pts, p)
	}
	if p := IntersectionPoint(s.Start, s.End, bl, tl); p != nil {
		pts = append(pts, p)
	}
	return pts
}

// SegmentCrosses reports whether the open segment a-b passes through the interior of b.
func (b *Box) SegmentCrosses(p1, p2 *Point) bool {
	if b.StrictlyContains(p1) || b.StrictlyContains(p2) {
		return true
	}
	if p1.X == p2.X {
		if p1.X <= b.Left() || p1.X >= b.Right() {
			return false
		}
		return math.Min(p1.Y, p2.Y) < b.Bottom() && math.Max(p1.Y, p2.Y) > b.Top()
	}
	if p1.Y == p2.Y {
		if p1.Y <= b.Top() || p1.Y >= b.Bottom() {
			return false
		}
		return math.Min(p1.X, p2.X) < b.Right() && math.Max(p1.X, p2.X) > b.Left()
	}
	return b.StrictlyContains(p1.Interpolate(p2, 0.5))
}

func (b *Box) ToString() string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("{TopLeft: %s, Width: %.0f, Height: %.0f}", b.TopLeft.ToString(), b.Width, b.Height)
}
