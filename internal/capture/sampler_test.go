package capture

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
	"SignFlow/internal/render"
)

var pad = coords.Size{W: 600, H: 200}

func newTestSampler(opts Options) (*Sampler, *ink.StrokeSet) {
	set := ink.NewStrokeSet(render.Renderer{Policy: render.Linear})
	return NewSampler(set, opts), set
}

func TestSampler_Normalizes(t *testing.T) {
	s, set := newTestSampler(Options{Interval: -1})
	t0 := time.Unix(0, 0)

	s.Begin(60, 20, pad, t0)
	s.Sample(300, 100, pad, t0)
	s.Sample(900, -40, pad, t0) // outside the pad: clamped
	s.End(t0)

	require.Equal(t, 1, set.Len())
	assert.Equal(t, ink.Stroke{{X: 10, Y: 10}, {X: 50, Y: 50}, {X: 100, Y: 0}}, set.Strokes()[0])
}

func TestSampler_MinDistance(t *testing.T) {
	s, set := newTestSampler(Options{Interval: -1, MinDistanceSq: 0.15})
	t0 := time.Unix(0, 0)

	s.Begin(0, 0, pad, t0)
	// 0.3% of 600px = 1.8px horizontally: 0.09 pct² is below the threshold.
	s.Sample(1.8, 0, pad, t0)
	// 0.5% horizontally: 0.25 pct² is kept.
	s.Sample(3, 0, pad, t0)
	// Same spot again: dropped.
	s.Sample(3, 0, pad, t0)
	s.End(t0)

	stroke := set.Strokes()[0]
	require.Len(t, stroke, 2)
	assert.InDelta(t, 0.5, stroke[1].X, 1e-12)
}

func TestSampler_Throttle(t *testing.T) {
	s, set := newTestSampler(Options{Interval: 30 * time.Millisecond})
	t0 := time.Unix(100, 0)

	s.Begin(0, 0, pad, t0)
	s.Sample(60, 0, pad, t0.Add(5*time.Millisecond))  // too soon
	s.Sample(120, 0, pad, t0.Add(10*time.Millisecond)) // too soon
	s.Sample(180, 0, pad, t0.Add(35*time.Millisecond)) // kept
	s.Sample(240, 0, pad, t0.Add(40*time.Millisecond)) // too soon
	s.Sample(300, 0, pad, t0.Add(70*time.Millisecond)) // kept
	s.End(t0.Add(80 * time.Millisecond))

	stroke := set.Strokes()[0]
	require.Len(t, stroke, 3)
	assert.InDelta(t, 30.0, stroke[1].X, 1e-9)
	assert.InDelta(t, 50.0, stroke[2].X, 1e-9)
}

func TestSampler_ThrottleResetsPerStroke(t *testing.T) {
	s, set := newTestSampler(Options{Interval: 30 * time.Millisecond})
	t0 := time.Unix(100, 0)

	s.Begin(0, 0, pad, t0)
	s.End(t0)
	// A new pointer-down right away still records its first point.
	s.Begin(300, 100, pad, t0.Add(time.Millisecond))
	s.End(t0.Add(time.Millisecond))

	require.Equal(t, 2, set.Len())
	assert.Len(t, set.Strokes()[1], 1)
}

func TestSampler_DegenerateSurfaceIsNoop(t *testing.T) {
	s, set := newTestSampler(Options{Interval: -1})
	t0 := time.Unix(0, 0)

	for _, surface := range []coords.Size{{}, {W: 600}, {H: 200}, {W: math.NaN(), H: 1}} {
		s.Begin(10, 10, surface, t0)
		s.Sample(20, 20, surface, t0)
		s.End(t0)
	}

	assert.Equal(t, 0, set.Len())
	for _, st := range set.Strokes() {
		for _, p := range st {
			assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
		}
	}
}

func TestSampler_SampleWithoutBegin(t *testing.T) {
	s, set := newTestSampler(Options{Interval: -1})
	s.Sample(10, 10, pad, time.Unix(0, 0))
	s.End(time.Unix(0, 0))
	assert.Equal(t, 0, set.Len())
	assert.False(t, s.Active())
}

func TestSampler_PathsTrackStrokes(t *testing.T) {
	s, set := newTestSampler(Options{Interval: -1})
	t0 := time.Unix(0, 0)

	s.Begin(60, 20, pad, t0)
	s.Sample(120, 20, pad, t0)
	assert.Equal(t, set.Len(), len(set.Paths()))
	assert.Equal(t, "M 10.00 10.00 L 20.00 10.00", set.Paths()[0])
	s.End(t0)
}
