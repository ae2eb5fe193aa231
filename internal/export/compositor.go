package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"SignFlow/internal/coords"
	"SignFlow/internal/render"
)

// ErrNoSource indicates an export without an original document.
var ErrNoSource = errors.New("missing source document")

// DefaultMinDotRadius is the smallest radius, in points, a single-sample
// stroke is drawn with.
const DefaultMinDotRadius = 0.75

// Signature is one signed box as the compositor needs it: placement in
// percent of the page, the pad the strokes were captured on, and strokes in
// percent of that pad.
type Signature struct {
	ID      string
	Page    int
	Rect    coords.Rect
	Pad     coords.Size
	Strokes [][]coords.Point
}

func (s Signature) empty() bool {
	for _, st := range s.Strokes {
		if len(st) > 0 {
			return false
		}
	}
	return true
}

// Skipped names a box left out of an export and why.
type Skipped struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result is the outcome of an export.
type Result struct {
	Data    []byte
	Drawn   []string
	Skipped []Skipped
}

// Compositor draws signatures onto a copy of the original document.
type Compositor struct {
	Open         Opener
	Renderer     render.Renderer
	Ink          Ink
	MinDotRadius float64
}

// NewCompositor returns a compositor writing with gofpdf and the given
// renderer, which must be the one the live paths were built with.
func NewCompositor(r render.Renderer) *Compositor {
	return &Compositor{
		Open:         OpenPDF,
		Renderer:     r,
		Ink:          DefaultInk,
		MinDotRadius: DefaultMinDotRadius,
	}
}

// Export composites sigs onto original and returns the new document. Boxes
// that cannot be drawn are logged and skipped; failing to open or save the
// document aborts with an *ExportError.
func (c *Compositor) Export(ctx context.Context, sigs []Signature, original []byte) (res Result, err error) {
	if len(original) == 0 {
		return Result{}, &ExportError{Op: "open", Err: ErrNoSource}
	}
	doc, err := c.open(original)
	if err != nil {
		return Result{}, &ExportError{Op: "open", Err: err}
	}
	defer doc.Close()

	ordered := make([]Signature, 0, len(sigs))
	for _, s := range sigs {
		if !s.empty() {
			ordered = append(ordered, s)
		}
	}
	// Group by page so each page's drawing is issued together.
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Page < ordered[j].Page })

	for _, sig := range ordered {
		if err := ctx.Err(); err != nil {
			return Result{}, &ExportError{Op: "draw", Err: err}
		}
		if sig.Page < 1 || sig.Page > doc.PageCount() {
			log.Printf("[export] Skipping box %s: page %d not in document (%d pages)", sig.ID, sig.Page, doc.PageCount())
			res.Skipped = append(res.Skipped, Skipped{ID: sig.ID, Reason: fmt.Sprintf("page %d out of range", sig.Page)})
			continue
		}
		if err := c.drawBox(doc, sig); err != nil {
			log.Printf("[export] Skipping box %s: %v", sig.ID, err)
			res.Skipped = append(res.Skipped, Skipped{ID: sig.ID, Reason: err.Error()})
			continue
		}
		res.Drawn = append(res.Drawn, sig.ID)
	}

	data, err := c.save(doc)
	if err != nil {
		return Result{}, &ExportError{Op: "save", Err: err}
	}
	res.Data = data
	log.Printf("[export] Wrote %d bytes, %d boxes drawn, %d skipped", len(data), len(res.Drawn), len(res.Skipped))
	return res, nil
}

func (c *Compositor) open(data []byte) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	open := c.Open
	if open == nil {
		open = OpenPDF
	}
	return open(data)
}

func (c *Compositor) save(doc Document) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return doc.Save()
}

// drawBox maps one signature into page space and draws it. A panic in the
// document layer is turned into an error for this box only.
func (c *Compositor) drawBox(doc Document, sig Signature) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("draw panicked: %v", r)
		}
	}()

	page, err := doc.PageRect(sig.Page)
	if err != nil {
		return err
	}
	rect := coords.BoxRectToPDFRect(sig.Rect, page)
	ink := c.Ink
	if scale := coords.StrokeWidthScale(sig.Pad, rect); scale > 0 {
		ink.Width *= scale
	}
	radius := math.Max(ink.Width/2, c.MinDotRadius)

	for i, stroke := range sig.Strokes {
		pts := make([]coords.Point, len(stroke))
		for j, p := range stroke {
			pts[j] = coords.StrokePointToPDFPoint(p, rect)
		}
		switch {
		case len(pts) == 0:
			continue
		case len(pts) == 1:
			err = doc.DrawDot(sig.Page, pts[0], radius, ink.Color)
		case c.Renderer.Policy == render.Linear:
			err = doc.DrawPolyline(sig.Page, pts, ink)
		default:
			err = doc.DrawCurve(sig.Page, pts[0], c.Renderer.Segments(pts), ink)
		}
		if err != nil {
			return fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	return nil
}
