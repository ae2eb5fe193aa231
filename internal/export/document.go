// Package export composites captured signatures onto the pages of the
// original PDF and writes a new signed document.
package export

import (
	"fmt"
	"image/color"

	"SignFlow/internal/coords"
	"SignFlow/internal/render"
)

// Ink is the pen used for drawing signatures.
type Ink struct {
	Color color.NRGBA
	Width float64
}

// DefaultInk is a dark blue pen two points wide on a 600px pad.
var DefaultInk = Ink{Color: color.NRGBA{R: 0x1a, G: 0x23, B: 0x7e, A: 0xff}, Width: 2}

// Document is an open PDF that accepts vector drawing on its pages. Pages
// are 1-based; geometry is in page space with the origin at the top-left.
// Drawing is buffered per page and written by Save.
type Document interface {
	PageCount() int
	PageRect(page int) (coords.Rect, error)
	DrawPolyline(page int, points []coords.Point, ink Ink) error
	DrawCurve(page int, start coords.Point, segments []render.Segment, ink Ink) error
	DrawDot(page int, center coords.Point, radius float64, c color.NRGBA) error
	Save() ([]byte, error)
	Close() error
}

// Opener opens a document from its bytes.
type Opener func(data []byte) (Document, error)

// ExportError reports a failure to open or save the base document. The
// original document is never modified.
type ExportError struct {
	Op  string
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Op, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
