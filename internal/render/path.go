// Package render turns strokes into vector path descriptions and raster
// thumbnails. A stroke is drawn either as straight segments between its
// samples or as a Catmull-Rom spline expressed as cubic Bézier segments; the
// same Renderer must be used for the live path of a stroke and for its export.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"SignFlow/internal/coords"
)

// Policy selects how consecutive samples are joined.
type Policy int

const (
	// CatmullRom joins samples with cubic Bézier segments through every point.
	CatmullRom Policy = iota
	// Linear joins samples with straight segments.
	Linear
)

func (p Policy) String() string {
	switch p {
	case Linear:
		return "linear"
	default:
		return "catmull-rom"
	}
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "catmull-rom", "catmullrom", "bezier":
		return CatmullRom, nil
	case "linear", "line":
		return Linear, nil
	}
	return CatmullRom, fmt.Errorf("unknown smoothing policy %q", s)
}

// Segment is one cubic piece of a stroke, starting where the previous one
// ended. For the Linear policy the control points lie on the chord.
type Segment struct {
	C1  coords.Point
	C2  coords.Point
	End coords.Point
}

// Renderer builds paths with a fixed Policy.
type Renderer struct {
	Policy Policy
}

// Segments returns one segment per point after the first. Strokes with fewer
// than two points have no segments.
func (r Renderer) Segments(points []coords.Point) []Segment {
	n := len(points)
	if n < 2 {
		return nil
	}
	segs := make([]Segment, 0, n-1)
	for i := 1; i < n; i++ {
		p1, p2 := points[i-1], points[i]
		if r.Policy == Linear {
			segs = append(segs, Segment{C1: p1, C2: p2, End: p2})
			continue
		}
		p0 := points[max(i-2, 0)]
		p3 := points[min(i+1, n-1)]
		segs = append(segs, Segment{
			C1: coords.Point{
				X: p1.X + (p2.X-p0.X)/6,
				Y: p1.Y + (p2.Y-p0.Y)/6,
			},
			C2: coords.Point{
				X: p2.X - (p3.X-p1.X)/6,
				Y: p2.Y - (p3.Y-p1.Y)/6,
			},
			End: p2,
		})
	}
	return segs
}

// Path encodes a stroke as SVG path data. An empty stroke yields "", a single
// sample yields a zero-length line that round caps draw as a dot.
func (r Renderer) Path(points []coords.Point) string {
	switch len(points) {
	case 0:
		return ""
	case 1:
		var sb strings.Builder
		sb.WriteString("M ")
		writePoint(&sb, points[0])
		sb.WriteString(" L ")
		writePoint(&sb, points[0])
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString("M ")
	writePoint(&sb, points[0])
	for _, s := range r.Segments(points) {
		if r.Policy == Linear {
			sb.WriteString(" L ")
			writePoint(&sb, s.End)
			continue
		}
		sb.WriteString(" C ")
		writePoint(&sb, s.C1)
		sb.WriteByte(' ')
		writePoint(&sb, s.C2)
		sb.WriteByte(' ')
		writePoint(&sb, s.End)
	}
	return sb.String()
}

// Flatten approximates a stroke by a polyline with steps points per segment.
func (r Renderer) Flatten(points []coords.Point, steps int) []coords.Point {
	if len(points) < 2 || r.Policy == Linear || steps < 2 {
		out := make([]coords.Point, len(points))
		copy(out, points)
		return out
	}
	out := make([]coords.Point, 0, 1+(len(points)-1)*steps)
	out = append(out, points[0])
	start := points[0]
	for _, s := range r.Segments(points) {
		for k := 1; k <= steps; k++ {
			out = append(out, s.At(start, float64(k)/float64(steps)))
		}
		start = s.End
	}
	return out
}

// At evaluates the segment starting at start for t in [0,1].
func (s Segment) At(start coords.Point, t float64) coords.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return coords.Point{
		X: a*start.X + b*s.C1.X + c*s.C2.X + d*s.End.X,
		Y: a*start.Y + b*s.C1.Y + c*s.C2.Y + d*s.End.Y,
	}
}

func writePoint(sb *strings.Builder, p coords.Point) {
	sb.WriteString(strconv.FormatFloat(p.X, 'f', 2, 64))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatFloat(p.Y, 'f', 2, 64))
}
