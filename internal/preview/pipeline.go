package preview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrSuperseded is returned by a render that a newer request for the same
// key replaced.
var ErrSuperseded = errors.New("render superseded by a newer request")

// RenderError is a failed page render, with a message fit for the user.
type RenderError struct {
	Page int
	Msg  string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %s: %v", e.Page, e.Msg, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type inflight struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// Pipeline keeps at most one render in flight per key. A new request for
// a key cancels the previous one instead of queueing behind it.
type Pipeline struct {
	raster  Rasterizer
	running map[string]inflight
	seq     uint64
	mu      sync.Mutex
}

// NewPipeline wraps a rasterizer.
func NewPipeline(r Rasterizer) *Pipeline {
	return &Pipeline{raster: r, running: make(map[string]inflight)}
}

// Render renders page of the document at path on behalf of key, usually a
// session token.
func (p *Pipeline) Render(ctx context.Context, key, path string, page int, scale float64) (Image, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	p.mu.Lock()
	if prev, ok := p.running[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	p.seq++
	seq := p.seq
	p.running[key] = inflight{seq: seq, cancel: cancel}
	p.mu.Unlock()

	img, err := p.raster.Render(ctx, path, page, scale)

	p.mu.Lock()
	current := p.running[key].seq == seq
	if current {
		delete(p.running, key)
	}
	p.mu.Unlock()

	if !current {
		log.Printf("[preview] Page %d for %s superseded", page, key)
		return Image{}, ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return Image{}, &RenderError{Page: page, Msg: "page renderer is not installed", Err: err}
		}
		return Image{}, &RenderError{Page: page, Msg: "could not render page", Err: err}
	}
	return img, nil
}

// Pending reports whether a render for key is in flight.
func (p *Pipeline) Pending(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[key]
	return ok
}
