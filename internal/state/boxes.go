package state

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
)

const boxIDLength = 8

// BoxSet is the box model of one document session. Boxes keep their
// creation order; ids are never handed out twice, even after deletion.
type BoxSet struct {
	minW, minH float64

	order  []string
	boxes  map[string]*Box
	issued map[string]struct{}
	newID  func() string
	mu     sync.RWMutex
}

// NewBoxSet creates an empty set rejecting boxes smaller than minW×minH
// pixels.
func NewBoxSet(minW, minH float64) *BoxSet {
	return &BoxSet{
		minW:   minW,
		minH:   minH,
		boxes:  make(map[string]*Box),
		issued: make(map[string]struct{}),
		newID:  randomBoxID,
	}
}

func randomBoxID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:boxIDLength]
}

// Create adds a box given in percent of the displayed page image. surface
// is the pixel extent of that image. The part of the box outside the page is
// cut off before the minimum size is enforced. The box is stored on page.
func (bs *BoxSet) Create(rect coords.Rect, page int, surface coords.Size) (Box, error) {
	if !finiteRect(rect) || page < 1 {
		return Box{}, fmt.Errorf("%w: %+v on page %d", ErrInvalidBox, rect, page)
	}
	if !surface.Valid() {
		return Box{}, ErrBoxTooSmall
	}
	rect = clampRect(normalizeRect(rect))
	if !bs.bigEnough(coords.PixelsOf(rect, surface)) {
		return Box{}, ErrBoxTooSmall
	}
	return bs.insert(rect, page), nil
}

// CreateFromPixels adds a box dragged on a surface, given in surface pixels.
func (bs *BoxSet) CreateFromPixels(px coords.Rect, page int, surface coords.Size) (Box, error) {
	if !finiteRect(px) || page < 1 {
		return Box{}, fmt.Errorf("%w: %+v on page %d", ErrInvalidBox, px, page)
	}
	if !surface.Valid() {
		return Box{}, ErrBoxTooSmall
	}
	px = clampTo(normalizeRect(px), surface)
	if !bs.bigEnough(px) {
		return Box{}, ErrBoxTooSmall
	}
	rect := coords.Rect{
		X0: px.X0 * 100 / surface.W,
		Y0: px.Y0 * 100 / surface.H,
		W:  px.W * 100 / surface.W,
		H:  px.H * 100 / surface.H,
	}
	return bs.insert(clampRect(rect), page), nil
}

func (bs *BoxSet) bigEnough(px coords.Rect) bool {
	return px.W >= bs.minW && px.H >= bs.minH
}

func (bs *BoxSet) insert(rect coords.Rect, page int) Box {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	id := bs.newID()
	for {
		if _, used := bs.issued[id]; !used {
			break
		}
		id = bs.newID()
	}
	bs.issued[id] = struct{}{}

	b := &Box{ID: id, X: rect.X0, Y: rect.Y0, W: rect.W, H: rect.H, Page: page}
	for _, other := range bs.order {
		o := bs.boxes[other]
		if o.Page == page && rectsOverlap(o.Rect(), rect) {
			log.Printf("[boxes] Box %s overlaps box %s on page %d", id, o.ID, page)
		}
	}
	bs.boxes[id] = b
	bs.order = append(bs.order, id)

	log.Printf("[boxes] Created %s on page %d at %.1f,%.1f %.1fx%.1f%%", id, page, b.X, b.Y, b.W, b.H)
	return b.clone()
}

// Delete removes a box. Unknown ids are ignored; it reports whether a box
// was removed.
func (bs *BoxSet) Delete(id string) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if _, ok := bs.boxes[id]; !ok {
		return false
	}
	delete(bs.boxes, id)
	for i, o := range bs.order {
		if o == id {
			bs.order = append(bs.order[:i], bs.order[i+1:]...)
			break
		}
	}
	log.Printf("[boxes] Deleted %s", id)
	return true
}

// Clear removes every box. Issued ids stay reserved.
func (bs *BoxSet) Clear() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	n := len(bs.order)
	bs.order = nil
	bs.boxes = make(map[string]*Box)
	if n > 0 {
		log.Printf("[boxes] Cleared %d boxes", n)
	}
	return n
}

// AttachSignature replaces the strokes and paths of a box with copies of
// the given ones. pad is the surface the strokes were captured on.
func (bs *BoxSet) AttachSignature(id string, strokes []ink.Stroke, paths []string, pad coords.Size) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, ok := bs.boxes[id]
	if !ok {
		log.Printf("[boxes] Signature for missing box %s dropped", id)
		return fmt.Errorf("%w: %s", ErrBoxNotFound, id)
	}
	b.Strokes = make([]ink.Stroke, len(strokes))
	for i, st := range strokes {
		b.Strokes[i] = st.Clone()
	}
	b.Paths = append([]string(nil), paths...)
	b.Pad = pad
	log.Printf("[boxes] Signature attached to %s (%d strokes)", id, len(strokes))
	return nil
}

// Get returns a copy of a box.
func (bs *BoxSet) Get(id string) (Box, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	b, ok := bs.boxes[id]
	if !ok {
		return Box{}, false
	}
	return b.clone(), true
}

// List returns copies of all boxes in creation order.
func (bs *BoxSet) List() []Box {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make([]Box, 0, len(bs.order))
	for _, id := range bs.order {
		out = append(out, bs.boxes[id].clone())
	}
	return out
}

// ForPage returns the boxes placed on one page.
func (bs *BoxSet) ForPage(page int) []Box {
	var out []Box
	for _, b := range bs.List() {
		if b.Page == page {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of boxes.
func (bs *BoxSet) Len() int {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return len(bs.order)
}
