package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"

	"SignFlow/internal/coords"
)

const (
	flattenSteps = 8
	dotSides     = 16
)

// Rasterize paints strokes given in percent of a surface into a transparent
// image of the given pixel size. Each segment is filled as a quad and every
// sample as a disc so joins and single-sample strokes stay round.
func (r Renderer) Rasterize(strokes [][]coords.Point, size image.Point, width float64, ink color.Color) *image.NRGBA {
	dst := image.NewNRGBA(image.Rectangle{Max: size})
	if size.X <= 0 || size.Y <= 0 {
		return dst
	}
	surface := coords.Size{W: float64(size.X), H: float64(size.Y)}
	radius := math.Max(width/2, 0.5)

	z := vector.NewRasterizer(size.X, size.Y)
	painted := false
	for _, stroke := range strokes {
		line := r.Flatten(stroke, flattenSteps)
		px := make([]coords.Point, len(line))
		for i, p := range line {
			px[i] = coords.Point{
				X: coords.PercentToPageSpace(p.X, surface.W),
				Y: coords.PercentToPageSpace(p.Y, surface.H),
			}
		}
		for i, p := range px {
			addPolygon(z, disc(p, radius))
			if i > 0 {
				addPolygon(z, quad(px[i-1], p, radius))
			}
			painted = true
		}
	}
	if painted {
		z.Draw(dst, dst.Bounds(), image.NewUniform(ink), image.Point{})
	}
	return dst
}

func disc(c coords.Point, r float64) []coords.Point {
	pts := make([]coords.Point, dotSides)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / dotSides
		pts[i] = coords.Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
	}
	return pts
}

func quad(a, b coords.Point, r float64) []coords.Point {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	nx, ny := -dy/l*r, dx/l*r
	return []coords.Point{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: a.X - nx, Y: a.Y - ny},
	}
}

// addPolygon adds pts with a positive orientation. The rasterizer sums signed
// coverage, so overlapping shapes must wind the same way or they cancel out.
func addPolygon(z *vector.Rasterizer, pts []coords.Point) {
	if len(pts) < 3 {
		return
	}
	if signedArea(pts) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
}

func signedArea(pts []coords.Point) float64 {
	var a float64
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}
