package ui

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"SignFlow/internal/capture"
	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
	"SignFlow/internal/render"
)

// flattenSteps is the number of line pieces per curve segment on screen.
const flattenSteps = 8

// SignaturePad is the drawing surface of the signing dialog. Pointer input
// goes to a capture.Input; the strokes it shows come back through
// SetStrokes once the session has recorded them.
type SignaturePad struct {
	widget.BaseWidget
	input    capture.Input
	renderer render.Renderer
	size     fyne.Size
	ink      color.Color
	width    float32

	// OnResize receives the drawing surface whenever its size changes.
	OnResize func(coords.Size)

	mu      sync.RWMutex
	strokes []ink.Stroke
	down    bool
	laidOut fyne.Size
	now     func() time.Time
}

var _ fyne.Widget = (*SignaturePad)(nil)
var _ fyne.Draggable = (*SignaturePad)(nil)
var _ desktop.Mouseable = (*SignaturePad)(nil)

// NewSignaturePad creates a pad of the given pixel size.
func NewSignaturePad(in capture.Input, r render.Renderer, size coords.Size, pen color.Color, width float32) *SignaturePad {
	p := &SignaturePad{
		input:    in,
		renderer: r,
		size:     fyne.NewSize(float32(size.W), float32(size.H)),
		ink:      pen,
		width:    width,
		now:      time.Now,
	}
	p.ExtendBaseWidget(p)
	return p
}

// SetStrokes replaces the strokes on display. Points are percent of the pad.
func (p *SignaturePad) SetStrokes(strokes []ink.Stroke) {
	p.mu.Lock()
	p.strokes = make([]ink.Stroke, len(strokes))
	for i, s := range strokes {
		p.strokes[i] = s.Clone()
	}
	p.mu.Unlock()
	p.Refresh()
}

// Strokes returns the strokes on display.
func (p *SignaturePad) Strokes() []ink.Stroke {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ink.Stroke(nil), p.strokes...)
}

func (p *SignaturePad) surface() coords.Size {
	s := p.Size()
	return coords.Size{W: float64(s.Width), H: float64(s.Height)}
}

// resized reports a new surface size to OnResize once per change.
func (p *SignaturePad) resized(size fyne.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	p.mu.Lock()
	changed := size != p.laidOut
	p.laidOut = size
	p.mu.Unlock()
	if changed && p.OnResize != nil {
		p.OnResize(coords.Size{W: float64(size.Width), H: float64(size.Height)})
	}
}

func (p *SignaturePad) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	p.begin(e.Position)
}

func (p *SignaturePad) begin(pos fyne.Position) {
	p.mu.Lock()
	p.down = true
	p.mu.Unlock()
	p.input.Begin(float64(pos.X), float64(pos.Y), p.surface(), p.now())
}

func (p *SignaturePad) MouseUp(e *desktop.MouseEvent) {
	if e.Button == desktop.MouseButtonPrimary {
		p.end()
	}
}

func (p *SignaturePad) Dragged(e *fyne.DragEvent) {
	p.mu.RLock()
	down := p.down
	p.mu.RUnlock()
	if !down {
		// Touch drivers send no mouse down; the drag starts one delta back.
		p.begin(fyne.NewPos(e.Position.X-e.Dragged.DX, e.Position.Y-e.Dragged.DY))
	}
	p.input.Sample(float64(e.Position.X), float64(e.Position.Y), p.surface(), p.now())
}

func (p *SignaturePad) DragEnd() { p.end() }

func (p *SignaturePad) end() {
	p.mu.Lock()
	wasDown := p.down
	p.down = false
	p.mu.Unlock()
	if wasDown {
		p.input.End(p.now())
	}
}

func (p *SignaturePad) MouseIn(*desktop.MouseEvent)    {}
func (p *SignaturePad) MouseOut()                      {}
func (p *SignaturePad) MouseMoved(*desktop.MouseEvent) {}

func (p *SignaturePad) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.White)
	bg.StrokeColor = color.Gray{Y: 150}
	bg.StrokeWidth = 1
	baseline := canvas.NewLine(color.Gray{Y: 200})
	r := &padRenderer{pad: p, background: bg, baseline: baseline}
	r.rebuild()
	return r
}

type padRenderer struct {
	pad        *SignaturePad
	background *canvas.Rectangle
	baseline   *canvas.Line
	objects    []fyne.CanvasObject
}

func (r *padRenderer) rebuild() {
	size := r.pad.Size()
	objects := []fyne.CanvasObject{r.background, r.baseline}
	box := coords.Rect{W: float64(size.Width), H: float64(size.Height)}
	objects = append(objects, strokeObjects(r.pad.Strokes(), box, r.pad.renderer, r.pad.ink, r.pad.width)...)
	r.objects = objects
}

func (r *padRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)
	y := size.Height * 0.75
	r.baseline.Position1 = fyne.NewPos(size.Width*0.05, y)
	r.baseline.Position2 = fyne.NewPos(size.Width*0.95, y)
	r.rebuild()
	r.pad.resized(size)
}

func (r *padRenderer) MinSize() fyne.Size { return r.pad.size }

func (r *padRenderer) Refresh() {
	r.rebuild()
	canvas.Refresh(r.pad)
}

func (r *padRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *padRenderer) Destroy()                     {}

// strokeObjects draws strokes given in percent of box as screen lines. A
// single-point stroke becomes a dot.
func strokeObjects(strokes []ink.Stroke, box coords.Rect, rd render.Renderer, c color.Color, width float32) []fyne.CanvasObject {
	var out []fyne.CanvasObject
	for _, s := range strokes {
		pts := make([]coords.Point, len(s))
		for i, p := range s {
			pts[i] = coords.StrokePointToPDFPoint(p, box)
		}
		switch len(pts) {
		case 0:
			continue
		case 1:
			dot := canvas.NewCircle(c)
			r := width / 2
			dot.Move(fyne.NewPos(float32(pts[0].X)-r, float32(pts[0].Y)-r))
			dot.Resize(fyne.NewSize(width, width))
			out = append(out, dot)
			continue
		}
		flat := rd.Flatten(pts, flattenSteps)
		for i := 1; i < len(flat); i++ {
			line := canvas.NewLine(c)
			line.StrokeWidth = width
			line.Position1 = fyne.NewPos(float32(flat[i-1].X), float32(flat[i-1].Y))
			line.Position2 = fyne.NewPos(float32(flat[i].X), float32(flat[i].Y))
			out = append(out, line)
		}
	}
	return out
}
