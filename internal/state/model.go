package state

import (
	"errors"
	"time"

	"SignFlow/internal/capture"
	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
	"SignFlow/internal/render"
)

var (
	// ErrBoxTooSmall is returned for a box below the minimum drag size.
	// Callers treat it as a silent no-op.
	ErrBoxTooSmall = errors.New("box below minimum size")

	// ErrBoxNotFound indicates a box id that does not exist in the session.
	ErrBoxNotFound = errors.New("box not found")

	// ErrInvalidBox indicates a malformed box payload.
	ErrInvalidBox = errors.New("invalid box")

	// ErrNoDocument indicates an operation that needs an uploaded document.
	ErrNoDocument = errors.New("no document loaded")

	// ErrNotPDF indicates an upload that is not a PDF file.
	ErrNotPDF = errors.New("not a PDF file")

	// ErrDrawModeActive indicates signing was requested while drawing boxes.
	ErrDrawModeActive = errors.New("draw mode active")

	// ErrNotSigning indicates a pad operation with no open signing pad.
	ErrNotSigning = errors.New("no signing pad open")

	// ErrSessionNotFound indicates an unknown session token.
	ErrSessionNotFound = errors.New("session not found")
)

// Zoom bounds in percent.
const (
	MinZoom  = 25
	MaxZoom  = 300
	ZoomStep = 10
)

// Box is a placed signature box. X, Y, W and H are percentages of the page
// image; Page is 1-based.
type Box struct {
	ID      string       `json:"id"`
	X       float64      `json:"x"`
	Y       float64      `json:"y"`
	W       float64      `json:"w"`
	H       float64      `json:"h"`
	Page    int          `json:"page"`
	Strokes []ink.Stroke `json:"strokes"`
	Paths   []string     `json:"paths"`
	Pad     coords.Size  `json:"pad"`
}

// Rect returns the box placement.
func (b Box) Rect() coords.Rect {
	return coords.Rect{X0: b.X, Y0: b.Y, W: b.W, H: b.H}
}

// Signed reports whether the box holds at least one non-empty stroke.
func (b Box) Signed() bool {
	for _, st := range b.Strokes {
		if len(st) > 0 {
			return true
		}
	}
	return false
}

func (b Box) clone() Box {
	out := b
	out.Strokes = make([]ink.Stroke, len(b.Strokes))
	for i, st := range b.Strokes {
		out.Strokes[i] = st.Clone()
	}
	out.Paths = append([]string(nil), b.Paths...)
	return out
}

// Document is an uploaded PDF held by a session.
type Document struct {
	Name      string        `json:"name"`
	Artifact  string        `json:"artifact"`
	NumPages  int           `json:"num_pages"`
	PageSizes []coords.Size `json:"page_sizes"`
	Data      []byte        `json:"-"`
}

// PageSize returns the size in points of a 1-based page.
func (d *Document) PageSize(page int) (coords.Size, bool) {
	if d == nil || page < 1 || page > len(d.PageSizes) {
		return coords.Size{}, false
	}
	return d.PageSizes[page-1], true
}

// Settings are the per-session tunables, taken from configuration when the
// session is created.
type Settings struct {
	Capture      capture.Options
	Renderer     render.Renderer
	PadSize      coords.Size
	MinBoxWidth  float64
	MinBoxHeight float64
}

// DefaultSettings mirrors the defaults of the configuration file.
func DefaultSettings() Settings {
	return Settings{
		Capture: capture.Options{
			MinDistanceSq: capture.DefaultMinDistanceSq,
			Interval:      capture.DefaultInterval,
		},
		Renderer:     render.Renderer{Policy: render.CatmullRom},
		PadSize:      coords.Size{W: 600, H: 200},
		MinBoxWidth:  5,
		MinBoxHeight: 5,
	}
}

// EventKind names a session change.
type EventKind string

const (
	EventDocumentLoaded   EventKind = "document_loaded"
	EventPageChanged      EventKind = "page_changed"
	EventZoomChanged      EventKind = "zoom_changed"
	EventDrawMode         EventKind = "draw_mode"
	EventBoxCreated       EventKind = "box_created"
	EventBoxDeleted       EventKind = "box_deleted"
	EventBoxesCleared     EventKind = "boxes_cleared"
	EventSigningOpened    EventKind = "signing_opened"
	EventPadChanged       EventKind = "pad_changed"
	EventSignatureApplied EventKind = "signature_applied"
	EventSigningClosed    EventKind = "signing_closed"
	EventPageRendered     EventKind = "page_rendered"
	EventRenderFailed     EventKind = "render_failed"
	EventExported         EventKind = "exported"
	EventExportFailed     EventKind = "export_failed"
)

// Event is delivered to session observers after a mutation completes.
type Event struct {
	Kind     EventKind `json:"kind"`
	Session  string    `json:"session"`
	Revision uint64    `json:"revision"`
	BoxID    string    `json:"box_id,omitempty"`
	Page     int       `json:"page,omitempty"`
	Zoom     int       `json:"zoom,omitempty"`
	Message  string    `json:"message,omitempty"`
	Paths    []string  `json:"paths,omitempty"`
	At       time.Time `json:"at"`
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	Token     string      `json:"token"`
	Document  *Document   `json:"document,omitempty"`
	Page      int         `json:"page"`
	NumPages  int         `json:"num_pages"`
	Zoom      int         `json:"zoom"`
	PageImage coords.Size `json:"page_image"`
	DrawMode  bool        `json:"draw_mode"`
	Boxes     []Box       `json:"boxes"`
	Signing   *PadState   `json:"signing,omitempty"`
	Exported  string      `json:"exported,omitempty"`
	Revision  uint64      `json:"revision"`
}

// PadState describes an open signing pad.
type PadState struct {
	BoxID   string       `json:"box_id"`
	Size    coords.Size  `json:"size"`
	Strokes []ink.Stroke `json:"strokes"`
	Paths   []string     `json:"paths"`
}
