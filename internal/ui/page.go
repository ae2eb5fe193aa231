package ui

import (
	"errors"
	"image/color"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"SignFlow/internal/coords"
	"SignFlow/internal/state"
)

var (
	boxBorder   = color.NRGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
	boxFill     = color.NRGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0x22}
	draftBorder = color.NRGBA{R: 0x15, G: 0x65, B: 0xc0, A: 0xff}
	signedInk   = color.NRGBA{R: 0x1a, G: 0x23, B: 0x7e, A: 0xff}
)

// PageView shows the current page of a session with its boxes. In draw
// mode a drag places a new box; otherwise tapping a box reports it and a
// secondary tap deletes it.
type PageView struct {
	widget.BaseWidget
	sess *state.Session

	OnBoxTapped func(id string)
	OnError     func(error)

	mu    sync.RWMutex
	image fyne.Resource
	start *fyne.Position
	end   fyne.Position
}

var _ fyne.Widget = (*PageView)(nil)
var _ fyne.Draggable = (*PageView)(nil)
var _ fyne.Tappable = (*PageView)(nil)
var _ fyne.SecondaryTappable = (*PageView)(nil)
var _ desktop.Mouseable = (*PageView)(nil)

// NewPageView creates a view of sess.
func NewPageView(sess *state.Session) *PageView {
	v := &PageView{sess: sess}
	v.ExtendBaseWidget(v)
	return v
}

// SetImage shows a rendered page PNG.
func (v *PageView) SetImage(name string, png []byte) {
	v.mu.Lock()
	v.image = fyne.NewStaticResource(name, png)
	v.mu.Unlock()
	v.Refresh()
}

// ClearImage removes the page image, for example after a failed render.
func (v *PageView) ClearImage() {
	v.mu.Lock()
	v.image = nil
	v.mu.Unlock()
	v.Refresh()
}

func (v *PageView) displaySize() fyne.Size {
	s := v.sess.DisplaySurface()
	return fyne.NewSize(float32(s.W), float32(s.H))
}

func (v *PageView) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary || !v.sess.DrawMode() {
		return
	}
	v.mu.Lock()
	pos := e.Position
	v.start = &pos
	v.end = pos
	v.mu.Unlock()
}

func (v *PageView) MouseUp(*desktop.MouseEvent) {}

func (v *PageView) Dragged(e *fyne.DragEvent) {
	if !v.sess.DrawMode() {
		return
	}
	v.mu.Lock()
	if v.start == nil {
		pos := fyne.NewPos(e.Position.X-e.Dragged.DX, e.Position.Y-e.Dragged.DY)
		v.start = &pos
	}
	v.end = e.Position
	v.mu.Unlock()
	v.Refresh()
}

// DragEnd turns the dragged rectangle into a box. A rectangle below the
// minimum size is dropped quietly.
func (v *PageView) DragEnd() {
	v.mu.Lock()
	start, end := v.start, v.end
	v.start = nil
	v.mu.Unlock()
	if start == nil {
		return
	}
	px := coords.Rect{
		X0: float64(start.X),
		Y0: float64(start.Y),
		W:  float64(end.X - start.X),
		H:  float64(end.Y - start.Y),
	}
	if _, err := v.sess.CreateBoxFromPixels(px); err != nil {
		if !errors.Is(err, state.ErrBoxTooSmall) {
			log.Printf("[ui] Box not created: %v", err)
		}
		if v.OnError != nil {
			v.OnError(err)
		}
	}
	v.Refresh()
}

func (v *PageView) MouseIn(*desktop.MouseEvent)    {}
func (v *PageView) MouseOut()                      {}
func (v *PageView) MouseMoved(*desktop.MouseEvent) {}

func (v *PageView) Tapped(e *fyne.PointEvent) {
	if v.sess.DrawMode() {
		return
	}
	if id, ok := v.boxAt(e.Position); ok && v.OnBoxTapped != nil {
		v.OnBoxTapped(id)
	}
}

func (v *PageView) TappedSecondary(e *fyne.PointEvent) {
	if id, ok := v.boxAt(e.Position); ok {
		v.sess.DeleteBox(id)
		v.Refresh()
	}
}

// boxAt returns the topmost box on the current page under pos.
func (v *PageView) boxAt(pos fyne.Position) (string, bool) {
	surface := v.sess.DisplaySurface()
	boxes := v.visibleBoxes()
	for i := len(boxes) - 1; i >= 0; i-- {
		r := coords.PixelsOf(boxes[i].Rect(), surface)
		x, y := float64(pos.X), float64(pos.Y)
		if x >= r.X0 && x <= r.X0+r.W && y >= r.Y0 && y <= r.Y0+r.H {
			return boxes[i].ID, true
		}
	}
	return "", false
}

func (v *PageView) visibleBoxes() []state.Box {
	page := v.sess.Page()
	var out []state.Box
	for _, b := range v.sess.Boxes() {
		if b.Page == page {
			out = append(out, b)
		}
	}
	return out
}

func (v *PageView) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 245, G: 246, B: 248, A: 255})
	r := &pageRenderer{view: v, background: bg}
	r.rebuild()
	return r
}

type pageRenderer struct {
	view       *PageView
	background *canvas.Rectangle
	objects    []fyne.CanvasObject
}

// rebuild recreates the page, box and draft objects from the session.
func (r *pageRenderer) rebuild() {
	v := r.view
	size := v.displaySize()
	surface := coords.Size{W: float64(size.Width), H: float64(size.Height)}
	objects := []fyne.CanvasObject{r.background}

	v.mu.RLock()
	res, start, end := v.image, v.start, v.end
	v.mu.RUnlock()

	if res != nil {
		img := canvas.NewImageFromResource(res)
		img.FillMode = canvas.ImageFillStretch
		img.Resize(size)
		objects = append(objects, img)
	}

	rd := v.sess.Settings().Renderer
	for _, b := range v.visibleBoxes() {
		px := coords.PixelsOf(b.Rect(), surface)
		rect := canvas.NewRectangle(boxFill)
		rect.StrokeColor = boxBorder
		rect.StrokeWidth = 2
		rect.Move(fyne.NewPos(float32(px.X0), float32(px.Y0)))
		rect.Resize(fyne.NewSize(float32(px.W), float32(px.H)))
		objects = append(objects, rect)

		if b.Signed() {
			width := float32(2)
			if scale := coords.StrokeWidthScale(b.Pad, px); scale > 0 {
				width = float32(2 * scale)
			}
			objects = append(objects, strokeObjects(b.Strokes, px, rd, signedInk, width)...)
		}
	}

	if start != nil {
		draft := canvas.NewRectangle(color.Transparent)
		draft.StrokeColor = draftBorder
		draft.StrokeWidth = 1
		x0, y0 := min(start.X, end.X), min(start.Y, end.Y)
		draft.Move(fyne.NewPos(x0, y0))
		draft.Resize(fyne.NewSize(max(start.X, end.X)-x0, max(start.Y, end.Y)-y0))
		objects = append(objects, draft)
	}
	r.objects = objects
}

func (r *pageRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)
}

func (r *pageRenderer) MinSize() fyne.Size { return r.view.displaySize() }

func (r *pageRenderer) Refresh() {
	r.rebuild()
	r.Layout(r.view.Size())
	canvas.Refresh(r.view)
}

func (r *pageRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *pageRenderer) Destroy()                     {}
