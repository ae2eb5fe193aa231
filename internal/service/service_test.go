package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignFlow/internal/config"
	"SignFlow/internal/coords"
	"SignFlow/internal/export"
	"SignFlow/internal/ink"
	"SignFlow/internal/preview"
	"SignFlow/internal/state"
	"SignFlow/internal/storage"
)

// fakeRaster returns a blank PNG sized from the page number.
type fakeRaster struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRaster) Render(_ context.Context, _ string, page int, _ float64) (preview.Image, error) {
	f.calls.Add(1)
	if f.err != nil {
		return preview.Image{}, f.err
	}
	w, h := 300, 300+page
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		return preview.Image{}, err
	}
	return preview.Image{PNG: buf.Bytes(), Width: w, Height: h}, nil
}

// squarePDF builds a document of 200x200pt pages.
func squarePDF(t *testing.T, pages int) []byte {
	t.Helper()
	f := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 200, Ht: 200}})
	for range pages {
		f.AddPage()
		f.Rect(10, 10, 50, 20, "D")
	}
	var buf bytes.Buffer
	require.NoError(t, f.Output(&buf))
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *fakeRaster) {
	t.Helper()
	cfg := config.Default()
	cfg.Capture.SampleIntervalMS = -1
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	raster := &fakeRaster{}
	return New(cfg, store, raster), raster
}

func TestUpload(t *testing.T) {
	svc, _ := newTestService(t)
	sess := svc.Sessions.Create()

	doc, err := svc.Upload(sess, "Contract.PDF", squarePDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, doc.NumPages)
	require.Len(t, doc.PageSizes, 3)
	assert.InDelta(t, 200, doc.PageSizes[0].W, 0.01)
	assert.True(t, strings.HasSuffix(doc.Artifact, "_Contract.PDF"))

	stored, err := svc.Store().Get(doc.Artifact)
	require.NoError(t, err)
	assert.Equal(t, doc.Data, stored)
	assert.Equal(t, 3, sess.Snapshot().NumPages)
}

func TestUpload_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	sess := svc.Sessions.Create()

	_, err := svc.Upload(sess, "notes.txt", squarePDF(t, 1))
	assert.ErrorIs(t, err, state.ErrNotPDF)

	_, err = svc.Upload(sess, "fake.pdf", []byte("<html></html>"))
	assert.ErrorIs(t, err, state.ErrNotPDF)

	_, err = svc.Upload(sess, "broken.pdf", []byte("%PDF-1.4\ngarbage"))
	assert.ErrorIs(t, err, state.ErrNotPDF)

	cfg := config.Default()
	cfg.Upload.MaxBytes = 16
	svc.ApplyConfig(cfg)
	_, err = svc.Upload(sess, "big.pdf", squarePDF(t, 1))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = sess.Document()
	assert.ErrorIs(t, err, state.ErrNoDocument)
}

func TestUpload_ClearsBoxes(t *testing.T) {
	svc, _ := newTestService(t)
	sess := svc.Sessions.Create()
	_, err := svc.Upload(sess, "a.pdf", squarePDF(t, 1))
	require.NoError(t, err)
	_, err = sess.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)

	_, err = svc.Upload(sess, "b.pdf", squarePDF(t, 2))
	require.NoError(t, err)
	assert.Empty(t, sess.Boxes())
}

func TestRenderPage(t *testing.T) {
	svc, raster := newTestService(t)
	sess := svc.Sessions.Create()
	_, err := svc.Upload(sess, "a.pdf", squarePDF(t, 2))
	require.NoError(t, err)

	p, err := svc.RenderPage(context.Background(), sess, 1)
	require.NoError(t, err)
	assert.Equal(t, 301, p.Image.Height)
	assert.Equal(t, coords.Size{W: 300, H: 301}, sess.Snapshot().PageImage)

	again, err := svc.RenderPage(context.Background(), sess, 1)
	require.NoError(t, err)
	assert.Equal(t, p.Artifact, again.Artifact)
	assert.Equal(t, int32(1), raster.calls.Load())

	_, err = svc.RenderPage(context.Background(), sess, 5)
	var re *preview.RenderError
	assert.ErrorAs(t, err, &re)
}

func TestRenderPage_FailureIsPublished(t *testing.T) {
	svc, raster := newTestService(t)
	raster.err = errors.New("pdftoppm crashed")
	sess := svc.Sessions.Create()
	_, err := svc.Upload(sess, "a.pdf", squarePDF(t, 1))
	require.NoError(t, err)

	var got []state.Event
	sess.Subscribe(func(ev state.Event) { got = append(got, ev) })

	_, err = svc.RenderPage(context.Background(), sess, 1)
	var re *preview.RenderError
	require.ErrorAs(t, err, &re)
	require.NotEmpty(t, got)
	assert.Equal(t, state.EventRenderFailed, got[len(got)-1].Kind)
	assert.Equal(t, re.Msg, got[len(got)-1].Message)
}

func TestExport(t *testing.T) {
	svc, _ := newTestService(t)
	sess := svc.Sessions.Create()
	_, err := svc.Upload(sess, "lease.pdf", squarePDF(t, 1))
	require.NoError(t, err)

	b, err := sess.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	require.NoError(t, sess.OpenSigning(b.ID, coords.Size{}))
	t0 := time.Unix(0, 0)
	require.NoError(t, sess.PointerDown(60, 20, coords.Size{}, t0))
	require.NoError(t, sess.PointerMove(120, 20, coords.Size{}, t0))
	require.NoError(t, sess.PointerMove(120, 40, coords.Size{}, t0))
	require.NoError(t, sess.PointerUp(t0))
	require.NoError(t, sess.PointerDown(300, 100, coords.Size{}, t0))
	require.NoError(t, sess.PointerUp(t0))
	_, err = sess.ApplySignature()
	require.NoError(t, err)

	// An unsigned box is left out.
	_, err = sess.CreateBox(coords.Rect{X0: 60, Y0: 60, W: 20, H: 20})
	require.NoError(t, err)

	res, err := svc.Export(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, res.Drawn)
	assert.True(t, strings.HasSuffix(res.Artifact, "_lease_signed.pdf"))
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF-")))
	assert.Equal(t, res.Artifact, sess.Exported())

	orig, err := sess.Document()
	require.NoError(t, err)
	stored, err := svc.Store().Get(orig.Artifact)
	require.NoError(t, err)
	assert.Equal(t, orig.Data, stored, "the original is never modified")
}

func TestExport_NoDocument(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Export(context.Background(), svc.Sessions.Create())
	var ee *export.ExportError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, state.ErrNoDocument)
}

func TestExport_SaveFailureIsPublished(t *testing.T) {
	svc, _ := newTestService(t)
	svc.open = func([]byte) (export.Document, error) { return nil, errors.New("encrypted") }
	sess := svc.Sessions.Create()
	_, err := svc.Upload(sess, "a.pdf", squarePDF(t, 1))
	require.NoError(t, err)

	var kinds []state.EventKind
	sess.Subscribe(func(ev state.Event) { kinds = append(kinds, ev.Kind) })

	_, err = svc.Export(context.Background(), sess)
	var ee *export.ExportError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []state.EventKind{state.EventExportFailed}, kinds)
	assert.Empty(t, sess.Exported())
}

func TestThumbnail(t *testing.T) {
	svc, _ := newTestService(t)
	sess := svc.Sessions.Create()
	_, err := svc.Upload(sess, "a.pdf", squarePDF(t, 1))
	require.NoError(t, err)
	b, err := sess.CreateBox(coords.Rect{X0: 10, Y0: 10, W: 40, H: 40})
	require.NoError(t, err)
	_, err = sess.AttachSignature(b.ID, []ink.Stroke{{{X: 10, Y: 50}, {X: 90, Y: 50}}}, coords.Size{})
	require.NoError(t, err)

	data, err := svc.Thumbnail(sess, b.ID, 0, 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 100), img.Bounds())
	_, _, _, a := img.At(150, 50).RGBA()
	assert.NotZero(t, a)
	_, _, _, a = img.At(150, 5).RGBA()
	assert.Zero(t, a)

	_, err = svc.Thumbnail(sess, "missing", 10, 10)
	assert.ErrorIs(t, err, state.ErrBoxNotFound)
}

func TestSignDocument(t *testing.T) {
	svc, _ := newTestService(t)
	specs, err := ReadBoxSpecs(strings.NewReader(`[
		{"page": 1, "x": 10, "y": 10, "w": 40, "h": 40,
		 "strokes": [[{"x": 10, "y": 10}, {"x": 20, "y": 10}, {"x": 20, "y": 20}], [{"x": 50, "y": 50}]]},
		{"page": 7, "x": 10, "y": 10, "w": 40, "h": 40, "strokes": [[{"x": 1, "y": 1}]]},
		{"page": 1, "x": 10, "y": 10, "w": 0.5, "h": 0.5, "strokes": [[{"x": 1, "y": 1}]]}
	]`))
	require.NoError(t, err)

	res, err := svc.SignDocument(context.Background(), "in.pdf", squarePDF(t, 1), specs)
	require.NoError(t, err)
	assert.Len(t, res.Drawn, 1)
	assert.True(t, bytes.HasPrefix(res.Data, []byte("%PDF-")))
	assert.Equal(t, 0, svc.Sessions.Len())
}

func TestReadBoxSpecs_Malformed(t *testing.T) {
	_, err := ReadBoxSpecs(strings.NewReader(`[{"x": "ten"}]`))
	assert.ErrorContains(t, err, "decode boxes")
}

func TestSignedName(t *testing.T) {
	assert.Equal(t, "lease_signed.pdf", SignedName("lease.pdf"))
	assert.Equal(t, "a.b_signed.pdf", SignedName("dir/a.b.PDF"))
	assert.Equal(t, "document_signed.pdf", SignedName(".pdf"))
}
