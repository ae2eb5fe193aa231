// Package ink holds the strokes of one signature capture and keeps a
// rendered path for every stroke.
package ink

import (
	"SignFlow/internal/coords"
	"SignFlow/internal/render"
)

// Stroke is one pointer-down to pointer-up gesture in percent of the pad.
type Stroke []coords.Point

// Clone returns a copy that shares no memory with s.
func (s Stroke) Clone() Stroke {
	if s == nil {
		return nil
	}
	out := make(Stroke, len(s))
	copy(out, s)
	return out
}

// StrokeSet is the ordered strokes of one signature together with their
// derived paths. The zero value is not usable; call NewStrokeSet.
//
// After every exported method returns, len(Paths()) == len(Strokes()).
type StrokeSet struct {
	renderer render.Renderer
	strokes  []Stroke
	paths    []string
	active   bool
}

// NewStrokeSet returns an empty set rendering with r.
func NewStrokeSet(r render.Renderer) *StrokeSet {
	return &StrokeSet{renderer: r}
}

// Renderer returns the renderer the paths were built with.
func (s *StrokeSet) Renderer() render.Renderer { return s.renderer }

// BeginStroke starts a new empty stroke. An unfinished previous stroke is
// sealed first, so there is never more than one active stroke.
func (s *StrokeSet) BeginStroke() {
	s.EndStroke()
	s.strokes = append(s.strokes, Stroke{})
	s.paths = append(s.paths, "")
	s.active = true
}

// AppendPoint adds p to the active stroke and rebuilds that stroke's path.
// It reports false when no stroke is active.
func (s *StrokeSet) AppendPoint(p coords.Point) bool {
	if !s.active {
		return false
	}
	i := len(s.strokes) - 1
	s.strokes[i] = append(s.strokes[i], p)
	s.paths[i] = s.renderer.Path(s.strokes[i])
	return true
}

// EndStroke seals the active stroke. A stroke that never received a point is
// dropped, since committed strokes are non-empty.
func (s *StrokeSet) EndStroke() {
	if !s.active {
		return
	}
	s.active = false
	i := len(s.strokes) - 1
	if len(s.strokes[i]) == 0 {
		s.strokes = s.strokes[:i]
		s.paths = s.paths[:i]
	}
}

// ClearAll discards every stroke and path.
func (s *StrokeSet) ClearAll() {
	s.strokes = nil
	s.paths = nil
	s.active = false
}

// Active reports whether a stroke is in progress.
func (s *StrokeSet) Active() bool { return s.active }

// Last returns the final point of the active stroke.
func (s *StrokeSet) Last() (coords.Point, bool) {
	if !s.active {
		return coords.Point{}, false
	}
	st := s.strokes[len(s.strokes)-1]
	if len(st) == 0 {
		return coords.Point{}, false
	}
	return st[len(st)-1], true
}

// Len returns the number of strokes, including an active one.
func (s *StrokeSet) Len() int { return len(s.strokes) }

// Empty reports whether no stroke holds a point.
func (s *StrokeSet) Empty() bool {
	for _, st := range s.strokes {
		if len(st) > 0 {
			return false
		}
	}
	return true
}

// Strokes returns a deep copy of the strokes.
func (s *StrokeSet) Strokes() []Stroke {
	out := make([]Stroke, len(s.strokes))
	for i, st := range s.strokes {
		out[i] = st.Clone()
	}
	return out
}

// Paths returns a copy of the rendered paths, index-aligned with Strokes.
func (s *StrokeSet) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Commit returns copies of the sealed, non-empty strokes and their paths, as
// stored on a signature box. An active stroke is included as it stands.
func (s *StrokeSet) Commit() ([]Stroke, []string) {
	strokes := make([]Stroke, 0, len(s.strokes))
	paths := make([]string, 0, len(s.paths))
	for i, st := range s.strokes {
		if len(st) == 0 {
			continue
		}
		strokes = append(strokes, st.Clone())
		paths = append(paths, s.paths[i])
	}
	return strokes, paths
}

// RenderAll builds the paths for strokes received from elsewhere, such as
// strokes sampled by a remote client.
func RenderAll(r render.Renderer, strokes []Stroke) []string {
	paths := make([]string, len(strokes))
	for i, st := range strokes {
		paths[i] = r.Path(st)
	}
	return paths
}

// Points converts strokes to plain point slices for the renderer.
func Points(strokes []Stroke) [][]coords.Point {
	out := make([][]coords.Point, len(strokes))
	for i, st := range strokes {
		out[i] = st
	}
	return out
}
