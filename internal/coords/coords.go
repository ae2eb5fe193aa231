// Package coords converts between the three coordinate spaces used by the
// signing pipeline: screen pixels of a capture surface, percent of a surface,
// and PDF page space in points.
//
// Every space has its origin at the top-left corner with y growing down.
// All functions are pure.
package coords

import "math"

// Point is a position. For stored stroke points and box corners it is a
// percentage of a surface and lies in [0,100].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the extent of a surface in pixels or points.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Valid reports whether both dimensions are finite and positive.
func (s Size) Valid() bool {
	return finite(s.W) && finite(s.H) && s.W > 0 && s.H > 0
}

// Rect is an axis-aligned rectangle given by its top-left corner and extent.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// Size returns the extent of r.
func (r Rect) Size() Size { return Size{W: r.W, H: r.H} }

// Clamp limits v to [lo,hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScreenToPercent converts a pixel offset on a surface of the given extent
// into a percentage clamped to [0,100]. The second result is false when the
// extent is zero, negative or not finite; no percentage is produced then.
func ScreenToPercent(pixel, extent float64) (float64, bool) {
	if !finite(extent) || extent <= 0 || !finite(pixel) {
		return 0, false
	}
	return Clamp(pixel/extent*100, 0, 100), true
}

// ScreenPointToPercent normalizes a surface-local pixel position.
func ScreenPointToPercent(x, y float64, surface Size) (Point, bool) {
	px, okX := ScreenToPercent(x, surface.W)
	py, okY := ScreenToPercent(y, surface.H)
	if !okX || !okY {
		return Point{}, false
	}
	return Point{X: px, Y: py}, true
}

// PercentToPageSpace scales a percentage onto a page dimension.
func PercentToPageSpace(percent, dimension float64) float64 {
	return percent / 100 * dimension
}

// BoxRectToPDFRect maps a box given in percent of the page image onto the
// page rectangle in PDF space.
func BoxRectToPDFRect(box Rect, page Rect) Rect {
	return Rect{
		X0: page.X0 + page.W*box.X0/100,
		Y0: page.Y0 + page.H*box.Y0/100,
		W:  page.W * box.W / 100,
		H:  page.H * box.H / 100,
	}
}

// StrokePointToPDFPoint maps a point given in percent of the signing pad into
// the destination box. Pad percent and box-local percent are the same value.
func StrokePointToPDFPoint(p Point, box Rect) Point {
	return Point{
		X: box.X0 + box.W*p.X/100,
		Y: box.Y0 + box.H*p.Y/100,
	}
}

// StrokeWidthScale is the factor applied to ink width when a drawing captured
// on pad is placed into dst. It is the smaller of the two axis factors so
// non-square scaling never thickens lines along the stretched axis. The
// result is zero for a degenerate pad.
func StrokeWidthScale(pad Size, dst Rect) float64 {
	if !pad.Valid() {
		return 0
	}
	return math.Min(dst.W/pad.W, dst.H/pad.H)
}

// PixelsOf converts a percent rectangle back to pixels of a surface.
func PixelsOf(r Rect, surface Size) Rect {
	return Rect{
		X0: PercentToPageSpace(r.X0, surface.W),
		Y0: PercentToPageSpace(r.Y0, surface.H),
		W:  PercentToPageSpace(r.W, surface.W),
		H:  PercentToPageSpace(r.H, surface.H),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
