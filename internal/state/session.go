package state

import (
	"fmt"
	"log"
	"sync"
	"time"

	"SignFlow/internal/capture"
	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
)

// signingPad is the capture state of an open signing dialog.
type signingPad struct {
	boxID   string
	size    coords.Size
	strokes *ink.StrokeSet
	sampler *capture.Sampler
}

// Session is one document session. All mutations go through its lock, and
// observers are notified after the lock is released.
type Session struct {
	token    string
	settings Settings
	clock    Clock
	now      func() time.Time

	doc      *Document
	page     int
	zoom     int
	image    coords.Size
	drawMode bool
	boxes    *BoxSet
	pad      *signingPad
	exported string
	mu       sync.Mutex

	subs    map[int]func(Event)
	nextSub int
	subMu   sync.RWMutex
}

// NewSession creates an empty session identified by token.
func NewSession(token string, settings Settings) *Session {
	return &Session{
		token:    token,
		settings: settings,
		now:      time.Now,
		page:     1,
		zoom:     100,
		boxes:    NewBoxSet(settings.MinBoxWidth, settings.MinBoxHeight),
		subs:     make(map[int]func(Event)),
	}
}

// Token returns the session token.
func (s *Session) Token() string { return s.token }

// Settings returns the tunables the session was created with.
func (s *Session) Settings() Settings { return s.settings }

// Subscribe registers fn for every event. The returned func removes it.
// fn runs on the goroutine that made the change and must not block.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// event builds an event stamped with the next revision.
func (s *Session) event(kind EventKind) Event {
	return Event{
		Kind:     kind,
		Session:  s.token,
		Revision: s.clock.Tick(),
		Page:     s.page,
		Zoom:     s.zoom,
		At:       s.now(),
	}
}

// publish delivers events in order. Callers must not hold s.mu.
func (s *Session) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Notify publishes an event raised outside the session, such as a finished
// page render or export.
func (s *Session) Notify(kind EventKind, message string) {
	s.mu.Lock()
	ev := s.event(kind)
	ev.Message = message
	s.mu.Unlock()
	s.publish(ev)
}

// LoadDocument replaces the session document. The page returns to 1, all
// boxes are discarded and an open signing pad is closed.
func (s *Session) LoadDocument(doc Document) error {
	if doc.NumPages < 1 {
		return fmt.Errorf("%w: %s has no pages", ErrNotPDF, doc.Name)
	}
	s.mu.Lock()
	var events []Event
	if s.pad != nil {
		events = append(events, s.closePad())
	}
	if n := s.boxes.Clear(); n > 0 {
		events = append(events, s.event(EventBoxesCleared))
	}
	d := doc
	s.doc = &d
	s.page = 1
	s.image = coords.Size{}
	s.exported = ""
	ev := s.event(EventDocumentLoaded)
	ev.Message = doc.Name
	events = append(events, ev)
	s.mu.Unlock()

	log.Printf("[session] %s loaded %s (%d pages)", s.token, doc.Name, doc.NumPages)
	s.publish(events...)
	return nil
}

// Document returns the loaded document. Its bytes must not be modified.
func (s *Session) Document() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNoDocument
	}
	return s.doc, nil
}

// Page returns the current 1-based page.
func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Zoom returns the zoom percent.
func (s *Session) Zoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// GoToPage moves to page, clamped to the document. It returns the page
// that is now current.
func (s *Session) GoToPage(page int) (int, error) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return 0, ErrNoDocument
	}
	page = max(1, min(page, s.doc.NumPages))
	if page == s.page {
		s.mu.Unlock()
		return page, nil
	}
	s.page = page
	s.image = coords.Size{}
	ev := s.event(EventPageChanged)
	s.mu.Unlock()

	s.publish(ev)
	return page, nil
}

// NextPage advances one page.
func (s *Session) NextPage() (int, error) { return s.GoToPage(s.Page() + 1) }

// PrevPage goes back one page.
func (s *Session) PrevPage() (int, error) { return s.GoToPage(s.Page() - 1) }

// SetZoom sets the zoom percent, clamped to [MinZoom, MaxZoom]. Stored box
// coordinates are unaffected.
func (s *Session) SetZoom(percent int) int {
	s.mu.Lock()
	percent = max(MinZoom, min(percent, MaxZoom))
	if percent == s.zoom {
		s.mu.Unlock()
		return percent
	}
	s.zoom = percent
	ev := s.event(EventZoomChanged)
	s.mu.Unlock()

	s.publish(ev)
	return percent
}

// ZoomIn raises the zoom by one step.
func (s *Session) ZoomIn() int { return s.SetZoom(s.Zoom() + ZoomStep) }

// ZoomOut lowers the zoom by one step.
func (s *Session) ZoomOut() int { return s.SetZoom(s.Zoom() - ZoomStep) }

// SetPageImage records the pixel size of the rendered current page.
func (s *Session) SetPageImage(page int, size coords.Size) {
	s.mu.Lock()
	if page != s.page {
		s.mu.Unlock()
		return
	}
	s.image = size
	ev := s.event(EventPageRendered)
	s.mu.Unlock()
	s.publish(ev)
}

// DisplaySurface returns the pixel size of the current page as displayed.
func (s *Session) DisplaySurface() coords.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displaySurfaceLocked()
}

func (s *Session) displaySurfaceLocked() coords.Size {
	page, _ := s.doc.PageSize(s.page)
	return displaySurface(s.image, page, s.zoom)
}

// ToggleDrawMode switches box drawing on or off. Entering draw mode closes
// an open signing pad.
func (s *Session) ToggleDrawMode() bool {
	s.mu.Lock()
	s.drawMode = !s.drawMode
	var events []Event
	if s.drawMode && s.pad != nil {
		events = append(events, s.closePad())
	}
	ev := s.event(EventDrawMode)
	if s.drawMode {
		ev.Message = "on"
	} else {
		ev.Message = "off"
	}
	events = append(events, ev)
	on := s.drawMode
	s.mu.Unlock()

	s.publish(events...)
	return on
}

// DrawMode reports whether box drawing is on.
func (s *Session) DrawMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawMode
}

// CreateBox places a box on the current page. rect is in percent of the
// displayed page image.
func (s *Session) CreateBox(rect coords.Rect) (Box, error) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return Box{}, ErrNoDocument
	}
	b, err := s.boxes.Create(rect, s.page, s.displaySurfaceLocked())
	if err != nil {
		s.mu.Unlock()
		return Box{}, err
	}
	ev := s.event(EventBoxCreated)
	ev.BoxID = b.ID
	s.mu.Unlock()

	s.publish(ev)
	return b, nil
}

// CreateBoxFromPixels places a box dragged on the displayed page, in pixels
// of the displayed surface.
func (s *Session) CreateBoxFromPixels(px coords.Rect) (Box, error) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return Box{}, ErrNoDocument
	}
	b, err := s.boxes.CreateFromPixels(px, s.page, s.displaySurfaceLocked())
	if err != nil {
		s.mu.Unlock()
		return Box{}, err
	}
	ev := s.event(EventBoxCreated)
	ev.BoxID = b.ID
	s.mu.Unlock()

	s.publish(ev)
	return b, nil
}

// DeleteBox removes a box. Deleting an unknown id does nothing.
func (s *Session) DeleteBox(id string) {
	s.mu.Lock()
	if !s.boxes.Delete(id) {
		s.mu.Unlock()
		return
	}
	ev := s.event(EventBoxDeleted)
	ev.BoxID = id
	s.mu.Unlock()
	s.publish(ev)
}

// ClearBoxes removes every box.
func (s *Session) ClearBoxes() {
	s.mu.Lock()
	if s.boxes.Clear() == 0 {
		s.mu.Unlock()
		return
	}
	ev := s.event(EventBoxesCleared)
	s.mu.Unlock()
	s.publish(ev)
}

// Boxes returns copies of all boxes.
func (s *Session) Boxes() []Box { return s.boxes.List() }

// Box returns a copy of one box.
func (s *Session) Box(id string) (Box, bool) { return s.boxes.Get(id) }

// OpenSigning opens the signing pad for a box. A zero size selects the
// configured pad size. An already open pad is discarded.
func (s *Session) OpenSigning(boxID string, size coords.Size) error {
	s.mu.Lock()
	if s.drawMode {
		s.mu.Unlock()
		return ErrDrawModeActive
	}
	if _, ok := s.boxes.Get(boxID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBoxNotFound, boxID)
	}
	if !size.Valid() {
		size = s.settings.PadSize
	}
	set := ink.NewStrokeSet(s.settings.Renderer)
	s.pad = &signingPad{
		boxID:   boxID,
		size:    size,
		strokes: set,
		sampler: capture.NewSampler(set, s.settings.Capture),
	}
	ev := s.event(EventSigningOpened)
	ev.BoxID = boxID
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// Signing returns the open pad, if any.
func (s *Session) Signing() (PadState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pad == nil {
		return PadState{}, false
	}
	return s.padStateLocked(), true
}

func (s *Session) padStateLocked() PadState {
	return PadState{
		BoxID:   s.pad.boxID,
		Size:    s.pad.size,
		Strokes: s.pad.strokes.Strokes(),
		Paths:   s.pad.strokes.Paths(),
	}
}

// ResizePad records a new pad extent, as when the signing dialog resizes.
func (s *Session) ResizePad(size coords.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pad == nil {
		return ErrNotSigning
	}
	if size.Valid() {
		s.pad.size = size
	}
	return nil
}

// PointerDown starts a stroke at a pad-local pixel position. A zero
// surface selects the current pad size.
func (s *Session) PointerDown(x, y float64, surface coords.Size, at time.Time) error {
	return s.pointer(func(p *signingPad, surface coords.Size) {
		p.sampler.Begin(x, y, surface, at)
	}, surface)
}

// PointerMove offers a pointer-move sample.
func (s *Session) PointerMove(x, y float64, surface coords.Size, at time.Time) error {
	return s.pointer(func(p *signingPad, surface coords.Size) {
		p.sampler.Sample(x, y, surface, at)
	}, surface)
}

// PointerUp ends the active stroke.
func (s *Session) PointerUp(at time.Time) error {
	return s.pointer(func(p *signingPad, _ coords.Size) {
		p.sampler.End(at)
	}, coords.Size{})
}

// pointer runs one sampler step and publishes a pad change when the stroke
// set changed.
func (s *Session) pointer(step func(*signingPad, coords.Size), surface coords.Size) error {
	s.mu.Lock()
	if s.pad == nil {
		s.mu.Unlock()
		return ErrNotSigning
	}
	if surface == (coords.Size{}) {
		surface = s.pad.size
	}
	beforeLen := s.pad.strokes.Len()
	beforeLast, hadLast := s.pad.strokes.Last()
	wasActive := s.pad.strokes.Active()

	step(s.pad, surface)

	last, hasLast := s.pad.strokes.Last()
	changed := s.pad.strokes.Len() != beforeLen ||
		hasLast != hadLast || last != beforeLast ||
		s.pad.strokes.Active() != wasActive
	if !changed {
		s.mu.Unlock()
		return nil
	}
	ev := s.event(EventPadChanged)
	ev.BoxID = s.pad.boxID
	ev.Paths = s.pad.strokes.Paths()
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// ClearPad discards the strokes on the open pad.
func (s *Session) ClearPad() error {
	s.mu.Lock()
	if s.pad == nil {
		s.mu.Unlock()
		return ErrNotSigning
	}
	s.pad.strokes.ClearAll()
	ev := s.event(EventPadChanged)
	ev.BoxID = s.pad.boxID
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// CancelSigning closes the pad without touching the box.
func (s *Session) CancelSigning() error {
	s.mu.Lock()
	if s.pad == nil {
		s.mu.Unlock()
		return ErrNotSigning
	}
	ev := s.closePad()
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// ApplySignature copies the pad strokes and paths into the box and closes
// the pad. When the box was deleted meanwhile the pad still closes and
// ErrBoxNotFound is returned.
func (s *Session) ApplySignature() (Box, error) {
	s.mu.Lock()
	if s.pad == nil {
		s.mu.Unlock()
		return Box{}, ErrNotSigning
	}
	s.pad.strokes.EndStroke()
	strokes, paths := s.pad.strokes.Commit()
	boxID, size := s.pad.boxID, s.pad.size

	if err := s.boxes.AttachSignature(boxID, strokes, paths, size); err != nil {
		closed := s.closePad()
		s.mu.Unlock()
		s.publish(closed)
		return Box{}, err
	}
	ev := s.event(EventSignatureApplied)
	ev.BoxID = boxID
	ev.Paths = paths
	closed := s.closePad()
	s.mu.Unlock()

	s.publish(ev, closed)
	b, _ := s.boxes.Get(boxID)
	return b, nil
}

// AttachSignature stores strokes sampled elsewhere on a box. Points are
// clamped into [0,100], empty strokes are dropped and paths are rendered
// with the session renderer. A zero pad selects the configured pad size.
func (s *Session) AttachSignature(boxID string, strokes []ink.Stroke, pad coords.Size) (Box, error) {
	clean := make([]ink.Stroke, 0, len(strokes))
	for _, st := range strokes {
		if len(st) == 0 {
			continue
		}
		out := make(ink.Stroke, len(st))
		for i, p := range st {
			out[i] = coords.Point{X: coords.Clamp(p.X, 0, 100), Y: coords.Clamp(p.Y, 0, 100)}
		}
		clean = append(clean, out)
	}
	if !pad.Valid() {
		pad = s.settings.PadSize
	}
	paths := ink.RenderAll(s.settings.Renderer, clean)

	s.mu.Lock()
	if err := s.boxes.AttachSignature(boxID, clean, paths, pad); err != nil {
		s.mu.Unlock()
		return Box{}, err
	}
	ev := s.event(EventSignatureApplied)
	ev.BoxID = boxID
	ev.Paths = paths
	s.mu.Unlock()

	s.publish(ev)
	b, _ := s.boxes.Get(boxID)
	return b, nil
}

// closePad drops the pad and returns the closing event. Callers hold s.mu.
func (s *Session) closePad() Event {
	ev := s.event(EventSigningClosed)
	ev.BoxID = s.pad.boxID
	s.pad = nil
	return ev
}

// SetExported records the artifact name of the latest signed document.
func (s *Session) SetExported(name string) {
	s.mu.Lock()
	s.exported = name
	ev := s.event(EventExported)
	ev.Message = name
	s.mu.Unlock()
	s.publish(ev)
}

// Exported returns the artifact name of the latest signed document.
func (s *Session) Exported() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Token:     s.token,
		Page:      s.page,
		Zoom:      s.zoom,
		PageImage: s.image,
		DrawMode:  s.drawMode,
		Boxes:     s.boxes.List(),
		Exported:  s.exported,
		Revision:  s.clock.Now(),
	}
	if s.doc != nil {
		d := *s.doc
		d.Data = nil
		d.PageSizes = append([]coords.Size(nil), s.doc.PageSizes...)
		snap.Document = &d
		snap.NumPages = d.NumPages
	}
	if s.pad != nil {
		ps := s.padStateLocked()
		snap.Signing = &ps
	}
	return snap
}

// PadInput drives the session's signing pad as a capture.Input. Errors
// such as ErrNotSigning go to OnError when it is set.
type PadInput struct {
	Session *Session
	OnError func(error)
}

var _ capture.Input = PadInput{}

func (p PadInput) Begin(x, y float64, surface coords.Size, at time.Time) {
	p.report(p.Session.PointerDown(x, y, surface, at))
}

func (p PadInput) Sample(x, y float64, surface coords.Size, at time.Time) {
	p.report(p.Session.PointerMove(x, y, surface, at))
}

func (p PadInput) End(at time.Time) {
	p.report(p.Session.PointerUp(at))
}

func (p PadInput) report(err error) {
	if err != nil && p.OnError != nil {
		p.OnError(err)
	}
}
