package preview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRasterizer blocks every render until released or cancelled.
type gatedRasterizer struct {
	started chan int
	release chan struct{}
	err     error
}

func newGated() *gatedRasterizer {
	return &gatedRasterizer{started: make(chan int, 4), release: make(chan struct{})}
}

func (g *gatedRasterizer) Render(ctx context.Context, _ string, page int, _ float64) (Image, error) {
	g.started <- page
	select {
	case <-ctx.Done():
		return Image{}, context.Cause(ctx)
	case <-g.release:
		if g.err != nil {
			return Image{}, g.err
		}
		return Image{Width: page * 10, Height: page * 20}, nil
	}
}

func TestPipeline_NewRequestSupersedes(t *testing.T) {
	g := newGated()
	p := NewPipeline(g)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = p.Render(context.Background(), "s1", "doc.pdf", 1, 1)
	}()
	require.Equal(t, 1, <-g.started)

	done := make(chan struct{})
	var img Image
	var err error
	go func() {
		defer close(done)
		img, err = p.Render(context.Background(), "s1", "doc.pdf", 2, 1)
	}()
	require.Equal(t, 2, <-g.started)

	wg.Wait()
	assert.ErrorIs(t, firstErr, ErrSuperseded)

	close(g.release)
	<-done
	require.NoError(t, err)
	assert.Equal(t, 20, img.Width)
	assert.False(t, p.Pending("s1"))
}

func TestPipeline_KeysAreIndependent(t *testing.T) {
	g := newGated()
	p := NewPipeline(g)

	results := make(chan error, 2)
	for _, key := range []string{"a", "b"} {
		go func() {
			_, err := p.Render(context.Background(), key, "doc.pdf", 1, 1)
			results <- err
		}()
		<-g.started
	}
	assert.True(t, p.Pending("a"))
	assert.True(t, p.Pending("b"))

	close(g.release)
	for range 2 {
		select {
		case err := <-results:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("render did not finish")
		}
	}
}

func TestPipeline_WrapsFailures(t *testing.T) {
	g := newGated()
	g.err = errors.New("syntax error in pdf")
	close(g.release)
	p := NewPipeline(g)

	_, err := p.Render(context.Background(), "s", "doc.pdf", 4, 1)
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Page)
	assert.Equal(t, "could not render page", re.Msg)
	assert.ErrorContains(t, err, "syntax error in pdf")
}

func TestPipeline_ToolMissing(t *testing.T) {
	g := newGated()
	g.err = ErrToolNotFound
	close(g.release)

	_, err := NewPipeline(g).Render(context.Background(), "s", "doc.pdf", 1, 1)
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Equal(t, "page renderer is not installed", re.Msg)
}
