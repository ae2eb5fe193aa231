// Package service ties sessions to their files: uploads, page previews,
// exports and signature thumbnails.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"SignFlow/internal/config"
	"SignFlow/internal/coords"
	"SignFlow/internal/export"
	"SignFlow/internal/ink"
	"SignFlow/internal/preview"
	"SignFlow/internal/state"
	"SignFlow/internal/storage"
)

// ErrTooLarge indicates an upload above the configured limit.
var ErrTooLarge = errors.New("upload too large")

// Service owns the sessions of one process.
type Service struct {
	Sessions *state.Manager
	store    *storage.Store
	previews *preview.Pipeline
	open     export.Opener

	mu       sync.RWMutex
	cfg      *config.Config
	rendered map[string]string // document artifact and page -> preview artifact
}

// New creates a service. raster renders page previews.
func New(cfg *config.Config, store *storage.Store, raster preview.Rasterizer) *Service {
	return &Service{
		Sessions: state.NewManager(cfg.SessionSettings()),
		store:    store,
		previews: preview.NewPipeline(raster),
		open:     export.OpenPDF,
		cfg:      cfg,
		rendered: make(map[string]string),
	}
}

// ApplyConfig switches to a reloaded configuration. Open sessions keep
// their settings; new sessions and later exports use the new ones.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Sessions.SetSettings(cfg.SessionSettings())
}

func (s *Service) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UploadLimit returns the largest accepted upload in bytes, or 0 for no
// limit.
func (s *Service) UploadLimit() int64 { return s.config().Upload.MaxBytes }

// Pen returns the configured export pen.
func (s *Service) Pen() export.Ink { return s.config().Pen() }

// Store returns the artifact store.
func (s *Service) Store() *storage.Store { return s.store }

// Upload validates a PDF, stores it and loads it into the session, which
// resets the page and clears all boxes.
func (s *Service) Upload(sess *state.Session, name string, data []byte) (state.Document, error) {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return state.Document{}, fmt.Errorf("%w: %s", state.ErrNotPDF, name)
	}
	if limit := s.UploadLimit(); limit > 0 && int64(len(data)) > limit {
		return state.Document{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), limit)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return state.Document{}, fmt.Errorf("%w: %s has no PDF header", state.ErrNotPDF, name)
	}

	sizes, err := s.pageSizes(data)
	if err != nil {
		return state.Document{}, fmt.Errorf("%w: %v", state.ErrNotPDF, err)
	}
	artifact, err := s.store.Put(name, data)
	if err != nil {
		return state.Document{}, err
	}
	doc := state.Document{
		Name:      filepath.Base(name),
		Artifact:  artifact,
		NumPages:  len(sizes),
		PageSizes: sizes,
		Data:      data,
	}
	if err := sess.LoadDocument(doc); err != nil {
		return state.Document{}, err
	}
	return doc, nil
}

func (s *Service) pageSizes(data []byte) ([]coords.Size, error) {
	doc, err := export.NewPDFDocument(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.PageSizes(), nil
}

// Preview is a rendered page.
type Preview struct {
	Page     int
	Artifact string
	Image    preview.Image
}

// RenderPage renders a page of the session document. Only the newest
// request per session completes; older ones fail with
// preview.ErrSuperseded. A failed render is published on the session.
func (s *Service) RenderPage(ctx context.Context, sess *state.Session, page int) (Preview, error) {
	doc, err := sess.Document()
	if err != nil {
		return Preview{}, err
	}
	if page < 1 || page > doc.NumPages {
		return Preview{}, &preview.RenderError{Page: page, Msg: "no such page", Err: fmt.Errorf("document has %d pages", doc.NumPages)}
	}

	key := doc.Artifact + "#" + strconv.Itoa(page)
	s.mu.RLock()
	cached, ok := s.rendered[key]
	s.mu.RUnlock()
	if ok {
		if data, err := s.store.Get(cached); err == nil {
			if cfg, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
				sess.SetPageImage(page, coords.Size{W: float64(cfg.Width), H: float64(cfg.Height)})
				return Preview{Page: page, Artifact: cached, Image: preview.Image{PNG: data, Width: cfg.Width, Height: cfg.Height}}, nil
			}
		}
	}

	path, err := s.store.Path(doc.Artifact)
	if err != nil {
		return Preview{}, err
	}
	img, err := s.previews.Render(ctx, sess.Token(), path, page, s.config().Render.Scale)
	if err != nil {
		var re *preview.RenderError
		if errors.As(err, &re) {
			log.Printf("[preview] %s page %d: %v", sess.Token(), page, err)
			sess.Notify(state.EventRenderFailed, re.Msg)
		}
		return Preview{}, err
	}

	artifact, err := s.store.Put(fmt.Sprintf("page-%d.png", page), img.PNG)
	if err != nil {
		return Preview{}, err
	}
	s.mu.Lock()
	s.rendered[key] = artifact
	s.mu.Unlock()

	sess.SetPageImage(page, coords.Size{W: float64(img.Width), H: float64(img.Height)})
	return Preview{Page: page, Artifact: artifact, Image: img}, nil
}

// Signatures converts the signed boxes of a session for the compositor.
func Signatures(boxes []state.Box, pad coords.Size) []export.Signature {
	out := make([]export.Signature, 0, len(boxes))
	for _, b := range boxes {
		if !b.Signed() {
			continue
		}
		p := b.Pad
		if !p.Valid() {
			p = pad
		}
		out = append(out, export.Signature{
			ID:      b.ID,
			Page:    b.Page,
			Rect:    b.Rect(),
			Pad:     p,
			Strokes: ink.Points(b.Strokes),
		})
	}
	return out
}

// ExportResult is a finished export.
type ExportResult struct {
	Artifact string           `json:"artifact"`
	Drawn    []string         `json:"drawn"`
	Skipped  []export.Skipped `json:"skipped"`
	Data     []byte           `json:"-"`
}

// Export composites every signed box onto the session document and stores
// the result as a new artifact. The session lock is held only while
// reading the boxes.
func (s *Service) Export(ctx context.Context, sess *state.Session) (ExportResult, error) {
	doc, err := sess.Document()
	if err != nil {
		return ExportResult{}, &export.ExportError{Op: "open", Err: err}
	}
	settings := sess.Settings()
	cfg := s.config()

	c := &export.Compositor{
		Open:         s.open,
		Renderer:     settings.Renderer,
		Ink:          cfg.Pen(),
		MinDotRadius: cfg.Ink.MinDotRadius,
	}
	res, err := c.Export(ctx, Signatures(sess.Boxes(), settings.PadSize), doc.Data)
	if err != nil {
		log.Printf("[export] %s: %v", sess.Token(), err)
		sess.Notify(state.EventExportFailed, err.Error())
		return ExportResult{}, err
	}

	artifact, err := s.store.Put(SignedName(doc.Name), res.Data)
	if err != nil {
		err = &export.ExportError{Op: "save", Err: err}
		sess.Notify(state.EventExportFailed, err.Error())
		return ExportResult{}, err
	}
	sess.SetExported(artifact)
	return ExportResult{Artifact: artifact, Drawn: res.Drawn, Skipped: res.Skipped, Data: res.Data}, nil
}

// SignedName derives the signed file name from the original.
func SignedName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "document"
	}
	return base + "_signed.pdf"
}

// Thumbnail renders a box signature as a transparent PNG of the given
// size. A zero size selects the aspect of the capture pad at 300px width.
func (s *Service) Thumbnail(sess *state.Session, boxID string, width, height int) ([]byte, error) {
	b, ok := sess.Box(boxID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrBoxNotFound, boxID)
	}
	pad := b.Pad
	if !pad.Valid() {
		pad = sess.Settings().PadSize
	}
	if width <= 0 || height <= 0 {
		width = 300
		height = int(300 * pad.H / pad.W)
	}
	pen := s.config().Pen()
	scale := coords.StrokeWidthScale(pad, coords.Rect{W: float64(width), H: float64(height)})
	img := sess.Settings().Renderer.Rasterize(ink.Points(b.Strokes), image.Pt(width, height), pen.Width*scale, pen.Color)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
