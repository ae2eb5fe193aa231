package ui

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
	"SignFlow/internal/state"
)

func newTestPage(t *testing.T) (*PageView, *state.Session) {
	t.Helper()
	test.NewTempApp(t)
	sess := state.NewSession("tok", state.DefaultSettings())
	require.NoError(t, sess.LoadDocument(state.Document{
		Name:      "contract.pdf",
		NumPages:  2,
		PageSizes: []coords.Size{{W: 200, H: 200}, {W: 200, H: 200}},
	}))
	sess.SetPageImage(1, coords.Size{W: 300, H: 400})
	v := NewPageView(sess)
	v.Resize(v.MinSize())
	return v, sess
}

func drag(v *PageView, x0, y0, x1, y1 float32) {
	v.MouseDown(primary(x0, y0))
	v.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x1, y1)}, Dragged: fyne.NewDelta(x1-x0, y1-y0)})
	v.DragEnd()
}

func TestPageView_DragCreatesBox(t *testing.T) {
	v, sess := newTestPage(t)
	assert.Equal(t, fyne.NewSize(300, 400), v.MinSize())

	drag(v, 30, 40, 150, 120)
	assert.Empty(t, sess.Boxes(), "drag outside draw mode")

	sess.ToggleDrawMode()
	drag(v, 150, 120, 30, 40)
	boxes := sess.Boxes()
	require.Len(t, boxes, 1)
	b := boxes[0]
	assert.InDelta(t, 10, b.X, 1e-9)
	assert.InDelta(t, 10, b.Y, 1e-9)
	assert.InDelta(t, 40, b.W, 1e-9)
	assert.InDelta(t, 20, b.H, 1e-9)
	assert.Equal(t, 1, b.Page)
}

func TestPageView_TinyDragReportsError(t *testing.T) {
	v, sess := newTestPage(t)
	var got error
	v.OnError = func(err error) { got = err }

	sess.ToggleDrawMode()
	drag(v, 10, 10, 12, 12)
	assert.ErrorIs(t, got, state.ErrBoxTooSmall)
	assert.Empty(t, sess.Boxes())
}

func TestPageView_TapAndDelete(t *testing.T) {
	v, sess := newTestPage(t)
	b, err := sess.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 20})
	require.NoError(t, err)

	var tapped string
	v.OnBoxTapped = func(id string) { tapped = id }

	v.Tapped(&fyne.PointEvent{Position: fyne.NewPos(5, 5)})
	assert.Empty(t, tapped)
	v.Tapped(&fyne.PointEvent{Position: fyne.NewPos(60, 60)})
	assert.Equal(t, b.ID, tapped)

	v.TappedSecondary(&fyne.PointEvent{Position: fyne.NewPos(60, 60)})
	assert.Empty(t, sess.Boxes())
}

func TestPageView_ZoomScalesBoxes(t *testing.T) {
	v, sess := newTestPage(t)
	_, err := sess.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 20})
	require.NoError(t, err)
	sess.SetZoom(200)
	v.Refresh()

	assert.Equal(t, fyne.NewSize(600, 800), v.MinSize())
	rects := boxRects(v)
	require.Len(t, rects, 1)
	assert.Equal(t, fyne.NewPos(60, 80), rects[0].Position())
	assert.Equal(t, fyne.NewSize(240, 160), rects[0].Size())
}

func TestPageView_OnlyCurrentPageBoxes(t *testing.T) {
	v, sess := newTestPage(t)
	_, err := sess.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 20})
	require.NoError(t, err)
	_, err = sess.NextPage()
	require.NoError(t, err)
	v.Refresh()
	assert.Empty(t, boxRects(v))
}

func TestPageView_DrawsSignatures(t *testing.T) {
	v, sess := newTestPage(t)
	b, err := sess.CreateBox(coords.Rect{X0: 0, Y0: 0, W: 50, H: 50})
	require.NoError(t, err)
	_, err = sess.AttachSignature(b.ID, []ink.Stroke{{{X: 0, Y: 0}, {X: 100, Y: 100}}}, coords.Size{W: 600, H: 200})
	require.NoError(t, err)
	v.Refresh()

	var lines int
	for _, o := range test.WidgetRenderer(v).Objects() {
		if _, ok := o.(*canvas.Line); ok {
			lines++
		}
	}
	assert.Positive(t, lines)
}

func boxRects(v *PageView) []*canvas.Rectangle {
	var out []*canvas.Rectangle
	for _, o := range test.WidgetRenderer(v).Objects() {
		if r, ok := o.(*canvas.Rectangle); ok && r.StrokeColor == boxBorder {
			out = append(out, r)
		}
	}
	return out
}
