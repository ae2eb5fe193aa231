package state

import (
	"math"

	"SignFlow/internal/coords"
)

// normalizeRect turns a rectangle dragged towards the top-left into one
// with a positive extent.
func normalizeRect(r coords.Rect) coords.Rect {
	if r.W < 0 {
		r.X0 += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y0 += r.H
		r.H = -r.H
	}
	return r
}

// clampRect keeps a percent rectangle inside the page, cutting off the part
// that lies outside. Rectangles already inside are returned unchanged.
func clampRect(r coords.Rect) coords.Rect {
	return clampTo(r, coords.Size{W: 100, H: 100})
}

// clampTo intersects r with the rectangle from the origin to bounds.
func clampTo(r coords.Rect, bounds coords.Size) coords.Rect {
	r.X0, r.W = clampSpan(r.X0, r.W, bounds.W)
	r.Y0, r.H = clampSpan(r.Y0, r.H, bounds.H)
	return r
}

func clampSpan(start, length, limit float64) (float64, float64) {
	if start < 0 {
		length += start
		start = 0
	}
	if start > limit {
		start = limit
	}
	if start+length > limit {
		length = limit - start
	}
	return start, max(length, 0)
}

func finiteRect(r coords.Rect) bool {
	for _, v := range []float64{r.X0, r.Y0, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// rectsOverlap reports whether two rectangles share a non-empty area.
func rectsOverlap(a, b coords.Rect) bool {
	return a.X0 < b.X0+b.W && b.X0 < a.X0+a.W &&
		a.Y0 < b.Y0+b.H && b.Y0 < a.Y0+a.H
}

// displaySurface is the pixel extent of the page as it is shown: the
// rendered image scaled by zoom, or the page size in points at that zoom
// when no image has been rendered yet.
func displaySurface(image, page coords.Size, zoom int) coords.Size {
	scale := float64(zoom) / 100
	base := image
	if !base.Valid() {
		base = page
	}
	return coords.Size{W: base.W * scale, H: base.H * scale}
}
