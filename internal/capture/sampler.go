// Package capture turns raw pointer movement on a signing surface into
// normalized stroke points.
package capture

import (
	"time"

	"golang.org/x/time/rate"

	"SignFlow/internal/coords"
	"SignFlow/internal/logger"
)

const (
	// DefaultMinDistanceSq is the squared distance, in percent units, a new
	// sample must exceed from the previous one to be kept.
	DefaultMinDistanceSq = 0.15

	// DefaultInterval is the minimum time between two kept samples.
	DefaultInterval = 30 * time.Millisecond
)

// Input is a source of pointer samples with a begin/sample/end lifecycle.
// Positions are surface-local pixels; surface is the current extent of the
// capture area. Mouse, touch, network and synthetic input all drive it.
type Input interface {
	Begin(x, y float64, surface coords.Size, at time.Time)
	Sample(x, y float64, surface coords.Size, at time.Time)
	End(at time.Time)
}

// StrokeSink receives the normalized points. ink.StrokeSet implements it.
type StrokeSink interface {
	BeginStroke()
	AppendPoint(p coords.Point) bool
	EndStroke()
	Last() (coords.Point, bool)
}

// Options tune the sampler. Zero values select the defaults; a negative
// Interval disables throttling.
type Options struct {
	MinDistanceSq float64
	Interval      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinDistanceSq <= 0 {
		o.MinDistanceSq = DefaultMinDistanceSq
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Sampler filters pointer input into a StrokeSink. It does no I/O and never
// blocks. A Sampler is not safe for concurrent use; its owner serializes
// access.
type Sampler struct {
	sink    StrokeSink
	opts    Options
	limiter *rate.Limiter
	down    bool
}

var _ Input = (*Sampler)(nil)

// NewSampler creates a sampler writing to sink.
func NewSampler(sink StrokeSink, opts Options) *Sampler {
	s := &Sampler{sink: sink, opts: opts.withDefaults()}
	s.resetLimiter()
	return s
}

func (s *Sampler) resetLimiter() {
	limit := rate.Inf
	if s.opts.Interval > 0 {
		limit = rate.Every(s.opts.Interval)
	}
	s.limiter = rate.NewLimiter(limit, 1)
}

// Begin starts a new stroke and records the pointer-down position when the
// surface has a usable size.
func (s *Sampler) Begin(x, y float64, surface coords.Size, at time.Time) {
	s.sink.BeginStroke()
	s.down = true
	s.resetLimiter()

	p, ok := coords.ScreenPointToPercent(x, y, surface)
	if !ok {
		logger.Debug("capture", "begin on degenerate surface %vx%v ignored", surface.W, surface.H)
		return
	}
	s.limiter.AllowN(at, 1)
	s.sink.AppendPoint(p)
}

// Sample offers a pointer-move position. It is kept only if the stroke is
// active, the surface is usable, the point moved far enough from the last
// kept point, and the throttle allows it.
func (s *Sampler) Sample(x, y float64, surface coords.Size, at time.Time) {
	if !s.down {
		return
	}
	p, ok := coords.ScreenPointToPercent(x, y, surface)
	if !ok {
		return
	}
	if last, ok := s.sink.Last(); ok {
		dx, dy := p.X-last.X, p.Y-last.Y
		if dx*dx+dy*dy <= s.opts.MinDistanceSq {
			return
		}
	}
	if !s.limiter.AllowN(at, 1) {
		logger.Debug("capture", "sample at %v throttled", at.Format(time.StampMilli))
		return
	}
	s.sink.AppendPoint(p)
}

// End seals the active stroke.
func (s *Sampler) End(time.Time) {
	if !s.down {
		return
	}
	s.down = false
	s.sink.EndStroke()
}

// Active reports whether a pointer is down.
func (s *Sampler) Active() bool { return s.down }
