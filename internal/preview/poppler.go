// Package preview renders PDF pages to PNG images for display.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"SignFlow/internal/logger"
)

// ErrToolNotFound is returned when pdftoppm is not installed.
var ErrToolNotFound = errors.New("pdftoppm not found: install poppler-utils")

// CommandRunner runs an external program and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Image is a rendered page.
type Image struct {
	PNG    []byte
	Width  int
	Height int
}

// Rasterizer renders one page of the PDF at path. scale 1 is 72 dpi.
type Rasterizer interface {
	Render(ctx context.Context, path string, page int, scale float64) (Image, error)
}

// Poppler renders pages with poppler's pdftoppm.
type Poppler struct {
	Tool   string
	runner CommandRunner
}

// NewPoppler returns a rasterizer running tool, or "pdftoppm" when empty.
func NewPoppler(tool string) *Poppler {
	return NewPopplerWithRunner(tool, execRunner{})
}

// NewPopplerWithRunner returns a rasterizer using runner.
func NewPopplerWithRunner(tool string, runner CommandRunner) *Poppler {
	if tool == "" {
		tool = "pdftoppm"
	}
	return &Poppler{Tool: tool, runner: runner}
}

// CheckAvailable reports whether the tool is on the PATH.
func (p *Poppler) CheckAvailable() error {
	if _, err := exec.LookPath(p.Tool); err != nil {
		return ErrToolNotFound
	}
	return nil
}

// Render runs pdftoppm for a single page and decodes the PNG header.
func (p *Poppler) Render(ctx context.Context, path string, page int, scale float64) (Image, error) {
	if page < 1 {
		return Image{}, fmt.Errorf("page %d out of range", page)
	}
	if scale <= 0 {
		scale = 1
	}
	dpi := strconv.FormatFloat(72*scale, 'f', 0, 64)
	n := strconv.Itoa(page)
	args := []string{"-f", n, "-l", n, "-r", dpi, "-png", "-singlefile", path}

	logger.Debug("preview", "%s %s", p.Tool, strings.Join(args, " "))
	out, err := p.runner.Run(ctx, p.Tool, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Image{}, ErrToolNotFound
		}
		return Image{}, fmt.Errorf("%s failed: %w", p.Tool, err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return Image{}, fmt.Errorf("%s output: %w", p.Tool, err)
	}
	return Image{PNG: out, Width: cfg.Width, Height: cfg.Height}, nil
}

// Bounds returns the image rectangle.
func (i Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.Width, i.Height)
}
