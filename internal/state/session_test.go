package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignFlow/internal/capture"
	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
	"SignFlow/internal/render"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.Capture = capture.Options{Interval: -1}
	s.Renderer = render.Renderer{Policy: render.Linear}
	return s
}

func testDocument(pages int) Document {
	sizes := make([]coords.Size, pages)
	for i := range sizes {
		sizes[i] = coords.Size{W: 200, H: 200}
	}
	return Document{Name: "contract.pdf", NumPages: pages, PageSizes: sizes, Data: []byte("%PDF-1.4")}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func newLoadedSession(t *testing.T, pages int) *Session {
	t.Helper()
	s := NewSession("tok", testSettings())
	require.NoError(t, s.LoadDocument(testDocument(pages)))
	return s
}

func TestSession_Defaults(t *testing.T) {
	s := NewSession("tok", testSettings())
	snap := s.Snapshot()

	assert.Equal(t, "tok", snap.Token)
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, 100, snap.Zoom)
	assert.Nil(t, snap.Document)
	assert.Empty(t, snap.Boxes)

	_, err := s.Document()
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 20, H: 20})
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestSession_LoadDocumentRejectsEmpty(t *testing.T) {
	s := NewSession("tok", testSettings())
	assert.ErrorIs(t, s.LoadDocument(Document{Name: "x.pdf"}), ErrNotPDF)
}

func TestSession_UploadResetsBoxes(t *testing.T) {
	s := newLoadedSession(t, 3)
	_, err := s.GoToPage(2)
	require.NoError(t, err)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))

	require.NoError(t, s.LoadDocument(testDocument(1)))

	snap := s.Snapshot()
	assert.Empty(t, snap.Boxes)
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, 1, snap.NumPages)
	assert.Nil(t, snap.Signing)
	assert.Nil(t, snap.Document.Data)
}

func TestSession_PageNavigationClamps(t *testing.T) {
	s := newLoadedSession(t, 3)

	p, err := s.GoToPage(10)
	require.NoError(t, err)
	assert.Equal(t, 3, p)

	p, err = s.NextPage()
	require.NoError(t, err)
	assert.Equal(t, 3, p)

	p, _ = s.PrevPage()
	assert.Equal(t, 2, p)

	p, _ = s.GoToPage(-4)
	assert.Equal(t, 1, p)
}

func TestSession_ZoomClamps(t *testing.T) {
	s := NewSession("tok", testSettings())

	assert.Equal(t, 300, s.SetZoom(1000))
	assert.Equal(t, 300, s.ZoomIn())
	assert.Equal(t, 25, s.SetZoom(0))
	assert.Equal(t, 25, s.ZoomOut())
	assert.Equal(t, 35, s.ZoomIn())
}

func TestSession_ZoomDoesNotMoveBoxes(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)

	require.Equal(t, 200, s.SetZoom(200))

	got, ok := s.Box(b.ID)
	require.True(t, ok)
	assert.Equal(t, b.Rect(), got.Rect())
}

func TestSession_MinimumBoxUsesDisplayedSize(t *testing.T) {
	s := newLoadedSession(t, 1)
	s.SetPageImage(1, coords.Size{W: 1000, H: 1000})

	// 0.4% of 1000px: too small at 100%.
	_, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 0.4, H: 0.4})
	assert.ErrorIs(t, err, ErrBoxTooSmall)

	// 0.4% of 2000px is 8px at 200%.
	s.SetZoom(200)
	_, err = s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 0.4, H: 0.4})
	assert.NoError(t, err)
}

func TestSession_BoxesRecordCurrentPage(t *testing.T) {
	s := newLoadedSession(t, 2)
	_, err := s.NextPage()
	require.NoError(t, err)

	b, err := s.CreateBoxFromPixels(coords.Rect{X0: 20, Y0: 20, W: 40, H: 40})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Page)
	assert.Equal(t, coords.Rect{X0: 10, Y0: 10, W: 20, H: 20}, b.Rect())
}

func TestSession_DrawModeBlocksSigning(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)

	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))
	assert.True(t, s.ToggleDrawMode())
	_, open := s.Signing()
	assert.False(t, open, "entering draw mode closes the pad")

	assert.ErrorIs(t, s.OpenSigning(b.ID, coords.Size{}), ErrDrawModeActive)
	assert.False(t, s.ToggleDrawMode())
	assert.NoError(t, s.OpenSigning(b.ID, coords.Size{}))
}

func TestSession_SigningFlow(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)

	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))
	pad, open := s.Signing()
	require.True(t, open)
	assert.Equal(t, coords.Size{W: 600, H: 200}, pad.Size)

	t0 := time.Unix(0, 0)
	require.NoError(t, s.PointerDown(60, 20, coords.Size{}, t0))
	require.NoError(t, s.PointerMove(120, 20, coords.Size{}, t0))
	require.NoError(t, s.PointerMove(120, 40, coords.Size{}, t0))
	require.NoError(t, s.PointerUp(t0))
	require.NoError(t, s.PointerDown(300, 100, coords.Size{}, t0))
	require.NoError(t, s.PointerUp(t0))

	got, err := s.ApplySignature()
	require.NoError(t, err)

	assert.Equal(t, []ink.Stroke{
		{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}},
		{{X: 50, Y: 50}},
	}, got.Strokes)
	assert.Equal(t, []string{
		"M 10.00 10.00 L 20.00 10.00 L 20.00 20.00",
		"M 50.00 50.00 L 50.00 50.00",
	}, got.Paths)
	assert.Equal(t, coords.Size{W: 600, H: 200}, got.Pad)

	_, open = s.Signing()
	assert.False(t, open)
}

func TestSession_PadResizeAndExplicitSurface(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	require.NoError(t, s.OpenSigning(b.ID, coords.Size{W: 300, H: 100}))
	require.NoError(t, s.ResizePad(coords.Size{W: 400, H: 100}))

	t0 := time.Unix(0, 0)
	require.NoError(t, s.PointerDown(100, 50, coords.Size{}, t0))
	require.NoError(t, s.PointerMove(100, 50, coords.Size{W: 200, H: 100}, t0))
	require.NoError(t, s.PointerUp(t0))

	pad, _ := s.Signing()
	assert.Equal(t, ink.Stroke{{X: 25, Y: 50}, {X: 50, Y: 50}}, pad.Strokes[0])

	// The applied box keeps the resized pad for stroke width scaling.
	signed, err := s.ApplySignature()
	require.NoError(t, err)
	assert.Equal(t, coords.Size{W: 400, H: 100}, signed.Pad)
}

func TestSession_ClearAndCancel(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))

	t0 := time.Unix(0, 0)
	require.NoError(t, s.PointerDown(60, 20, coords.Size{}, t0))
	require.NoError(t, s.PointerUp(t0))
	require.NoError(t, s.ClearPad())
	pad, _ := s.Signing()
	assert.Empty(t, pad.Strokes)
	assert.Empty(t, pad.Paths)

	require.NoError(t, s.PointerDown(60, 20, coords.Size{}, t0))
	require.NoError(t, s.CancelSigning())

	got, _ := s.Box(b.ID)
	assert.False(t, got.Signed())
	assert.ErrorIs(t, s.CancelSigning(), ErrNotSigning)
	assert.ErrorIs(t, s.PointerMove(1, 1, coords.Size{}, t0), ErrNotSigning)
	_, err = s.ApplySignature()
	assert.ErrorIs(t, err, ErrNotSigning)
}

func TestSession_ApplyToDeletedBox(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))
	require.NoError(t, s.PointerDown(60, 20, coords.Size{}, time.Unix(0, 0)))

	s.DeleteBox(b.ID)
	_, err = s.ApplySignature()
	assert.ErrorIs(t, err, ErrBoxNotFound)

	_, open := s.Signing()
	assert.False(t, open)
	assert.Empty(t, s.Boxes())
}

func TestSession_OpenSigningUnknownBox(t *testing.T) {
	s := newLoadedSession(t, 1)
	assert.ErrorIs(t, s.OpenSigning("nope", coords.Size{}), ErrBoxNotFound)
}

func TestSession_AttachSignatureSanitizes(t *testing.T) {
	s := newLoadedSession(t, 1)
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)

	got, err := s.AttachSignature(b.ID, []ink.Stroke{
		{{X: -5, Y: 50}, {X: 120, Y: 50}},
		{},
	}, coords.Size{})
	require.NoError(t, err)

	assert.Equal(t, []ink.Stroke{{{X: 0, Y: 50}, {X: 100, Y: 50}}}, got.Strokes)
	assert.Equal(t, []string{"M 0.00 50.00 L 100.00 50.00"}, got.Paths)
	assert.Equal(t, s.Settings().PadSize, got.Pad)

	_, err = s.AttachSignature("gone", nil, coords.Size{})
	assert.ErrorIs(t, err, ErrBoxNotFound)
}

func TestSession_DeleteUnknownBoxIsNoop(t *testing.T) {
	s := newLoadedSession(t, 1)
	_, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	before := s.Snapshot()

	s.DeleteBox("nonexistent")

	after := s.Snapshot()
	assert.Equal(t, before.Boxes, after.Boxes)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestSession_Events(t *testing.T) {
	s := NewSession("tok", testSettings())
	rec := &recorder{}
	cancel := s.Subscribe(rec.record)

	require.NoError(t, s.LoadDocument(testDocument(2)))
	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	_, err = s.NextPage()
	require.NoError(t, err)
	s.SetZoom(150)
	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))
	require.NoError(t, s.PointerDown(60, 20, coords.Size{}, time.Unix(0, 0)))
	require.NoError(t, s.PointerUp(time.Unix(0, 0)))
	_, err = s.ApplySignature()
	require.NoError(t, err)
	s.ClearBoxes()

	assert.Equal(t, []EventKind{
		EventDocumentLoaded,
		EventBoxCreated,
		EventPageChanged,
		EventZoomChanged,
		EventSigningOpened,
		EventPadChanged,
		EventPadChanged,
		EventSignatureApplied,
		EventSigningClosed,
		EventBoxesCleared,
	}, rec.kinds())

	for i := 1; i < len(rec.events); i++ {
		assert.Greater(t, rec.events[i].Revision, rec.events[i-1].Revision)
	}
	assert.Equal(t, b.ID, rec.events[1].BoxID)

	cancel()
	s.SetZoom(100)
	assert.Len(t, rec.kinds(), 10)
}

func TestSession_ObserverMayReadState(t *testing.T) {
	s := newLoadedSession(t, 1)
	var zoom int
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventZoomChanged {
			zoom = s.Snapshot().Zoom
		}
	})
	s.SetZoom(120)
	assert.Equal(t, 120, zoom)
}

func TestSession_PageImageIgnoredForOtherPage(t *testing.T) {
	s := newLoadedSession(t, 2)
	s.SetPageImage(2, coords.Size{W: 10, H: 10})
	assert.Equal(t, coords.Size{W: 200, H: 200}, s.DisplaySurface())

	s.SetPageImage(1, coords.Size{W: 400, H: 300})
	assert.Equal(t, coords.Size{W: 400, H: 300}, s.DisplaySurface())
}

func TestSession_Exported(t *testing.T) {
	s := newLoadedSession(t, 1)
	s.SetExported("tok_signed.pdf")
	assert.Equal(t, "tok_signed.pdf", s.Exported())
	assert.Equal(t, "tok_signed.pdf", s.Snapshot().Exported)

	require.NoError(t, s.LoadDocument(testDocument(1)))
	assert.Empty(t, s.Exported())
}

func TestManager(t *testing.T) {
	m := NewManager(testSettings())
	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.Token(), b.Token())
	assert.Equal(t, 2, m.Len())

	got, err := m.Get(a.Token())
	require.NoError(t, err)
	assert.Same(t, a, got)

	assert.True(t, m.Close(a.Token()))
	assert.False(t, m.Close(a.Token()))
	_, err = m.Get(a.Token())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	next := testSettings()
	next.PadSize = coords.Size{W: 300, H: 100}
	m.SetSettings(next)
	assert.Equal(t, next.PadSize, m.Create().Settings().PadSize)
	assert.Equal(t, testSettings().PadSize, b.Settings().PadSize)
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(testSettings())
	a, b := m.Create(), m.Create()
	require.NoError(t, a.LoadDocument(testDocument(1)))
	require.NoError(t, b.LoadDocument(testDocument(1)))

	_, err := a.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	assert.Len(t, a.Boxes(), 1)
	assert.Empty(t, b.Boxes())
}

func TestPadInput(t *testing.T) {
	s := newLoadedSession(t, 1)
	var errs []error
	in := PadInput{Session: s, OnError: func(err error) { errs = append(errs, err) }}

	t0 := time.Unix(0, 0)
	in.Begin(60, 20, coords.Size{}, t0)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNotSigning)

	b, err := s.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	require.NoError(t, s.OpenSigning(b.ID, coords.Size{}))

	in.Begin(60, 20, coords.Size{}, t0)
	in.Sample(120, 20, coords.Size{}, t0)
	in.End(t0)
	assert.Len(t, errs, 1)

	pad, open := s.Signing()
	require.True(t, open)
	assert.Equal(t, []ink.Stroke{{{X: 10, Y: 10}, {X: 20, Y: 10}}}, pad.Strokes)
}
