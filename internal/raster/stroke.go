package raster

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// kappa places cubic control points so a quarter arc hugs the circle.
const kappa = 0.5522847498

// Segments shorter than this are drawn as a disc.
const minSegment = 1e-6

type vec struct{ x, y float64 }

func (a vec) add(b vec) vec       { return vec{a.x + b.x, a.y + b.y} }
func (a vec) scale(s float64) vec { return vec{a.x * s, a.y * s} }

// quarterArc appends a cubic from c+u to c+v, where u and v are
// perpendicular radius vectors.
func quarterArc(z *vector.Rasterizer, c, u, v vec) {
	p1 := c.add(u).add(v.scale(kappa))
	p2 := c.add(v).add(u.scale(kappa))
	end := c.add(v)
	z.CubeTo(float32(p1.x), float32(p1.y), float32(p2.x), float32(p2.y), float32(end.x), float32(end.y))
}

// addDisc adds a filled circle of radius r around p.
func addDisc(z *vector.Rasterizer, p Point, r float64) {
	if r <= 0 {
		return
	}
	c := vec{p.X, p.Y}
	e := vec{r, 0}
	s := vec{0, -r}
	w := vec{-r, 0}
	n := vec{0, r}
	z.MoveTo(float32(c.x+r), float32(c.y))
	quarterArc(z, c, e, s)
	quarterArc(z, c, s, w)
	quarterArc(z, c, w, n)
	quarterArc(z, c, n, e)
	z.ClosePath()
}

// addCapsule adds the outline of a round-capped line from a to b with
// half-width r.
func addCapsule(z *vector.Rasterizer, a, b Point, r float64) {
	if r <= 0 {
		return
	}
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length < minSegment {
		addDisc(z, a, r)
		return
	}
	d := vec{dx / length, dy / length}.scale(r)
	n := vec{-d.y, d.x}
	pa, pb := vec{a.X, a.Y}, vec{b.X, b.Y}

	start := pa.add(n)
	z.MoveTo(float32(start.x), float32(start.y))
	side := pb.add(n)
	z.LineTo(float32(side.x), float32(side.y))
	quarterArc(z, pb, n, d)
	quarterArc(z, pb, d, n.scale(-1))
	side = pa.add(n.scale(-1))
	z.LineTo(float32(side.x), float32(side.y))
	quarterArc(z, pa, n.scale(-1), d.scale(-1))
	quarterArc(z, pa, d.scale(-1), n)
	z.ClosePath()
}

// clipSegment clips a-b to the rectangle r (Liang-Barsky) in float64. It
// reports false when nothing of the segment lies inside. Coordinates are
// halved while clipping so the difference of two finite values stays finite.
func clipSegment(a, b Point, r rect) (Point, Point, bool) {
	ax, ay := a.X/2, a.Y/2
	dx, dy := b.X/2-ax, b.Y/2-ay
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, ax - r.minX/2},
		{dx, r.maxX/2 - ax},
		{-dy, ay - r.minY/2},
		{dy, r.maxY/2 - ay},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return Point{}, Point{}, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return Point{}, Point{}, false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return Point{}, Point{}, false
			}
			t1 = min(t1, t)
		}
	}
	// Cancellation near the float64 limits can leave a result outside r.
	ca := r.clamp(Point{X: (ax + t0*dx) * 2, Y: (ay + t0*dy) * 2})
	cb := r.clamp(Point{X: (ax + t1*dx) * 2, Y: (ay + t1*dy) * 2})
	return ca, cb, true
}

// rect is an axis-aligned float64 rectangle.
type rect struct{ minX, minY, maxX, maxY float64 }

func (r rect) contains(p Point) bool {
	return p.X >= r.minX && p.X <= r.maxX && p.Y >= r.minY && p.Y <= r.maxY
}

func (r rect) clamp(p Point) Point {
	return Point{X: min(max(p.X, r.minX), r.maxX), Y: min(max(p.Y, r.minY), r.maxY)}
}

// fill scales src to cover dst, keeping its aspect ratio and cropping the
// overflow around the centre.
func fill(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	db := dst.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	dw, dh := float64(db.Dx()), float64(db.Dy())

	s := math.Max(dw/sw, dh/sh)
	cw := min(max(int(math.Round(dw/s)), 1), sb.Dx())
	ch := min(max(int(math.Round(dh/s)), 1), sb.Dy())
	x0 := sb.Min.X + (sb.Dx()-cw)/2
	y0 := sb.Min.Y + (sb.Dy()-ch)/2
	sr := image.Rect(x0, y0, x0+cw, y0+ch)

	draw.CatmullRom.Scale(dst, db, src, sr, draw.Src, nil)
}
