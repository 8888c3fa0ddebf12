// Package render draws display frames onto a texture-backed viewport while
// preserving the frame's aspect ratio.
package render

import (
	"errors"
	"image"
	"math"
	"sync"

	"github.com/teslashibe/go-rsdnn/pkg/frame"
)

// ErrEmptyFrame is returned when presenting a frame without pixels.
var ErrEmptyFrame = errors.New("render: empty frame")

// aspectTolerance is the aspect difference below which no letterboxing is applied.
const aspectTolerance = 1e-5

// Scale is the fraction of the viewport the frame occupies on each axis.
// At least one component is always 1.
type Scale struct {
	X float32
	Y float32
}

// Identity is the scale for a frame matching the viewport aspect.
var Identity = Scale{X: 1, Y: 1}

// ScaleFactor returns the scale that fits a frameW x frameH image into a
// viewW x viewH viewport without distortion. A wider frame shrinks
// vertically, a taller one horizontally. Degenerate sizes yield Identity.
func ScaleFactor(frameW, frameH int, viewW, viewH float32) Scale {
	if frameW <= 0 || frameH <= 0 || viewW <= 0 || viewH <= 0 {
		return Identity
	}

	frameRatio := float64(frameW) / float64(frameH)
	viewRatio := float64(viewW) / float64(viewH)
	diff := frameRatio - viewRatio

	s := Identity
	if math.Abs(diff) > aspectTolerance {
		if diff > 0 {
			s.Y = float32(float64(viewW) / (frameRatio * float64(viewH)))
		} else {
			s.X = float32(frameRatio * float64(viewH) / float64(viewW))
		}
	}
	return s
}

// Texture is a drawable image surface.
type Texture interface {
	// Upload replaces the texture contents.
	Upload(img *image.RGBA)

	// Viewport returns the current drawable size.
	Viewport() (w, h float32)

	// Draw presents the texture scaled around the viewport center.
	Draw(s Scale)
}

// Renderer presents frames onto a Texture. It keeps no frame history.
type Renderer struct {
	tex Texture

	mu        sync.Mutex
	presented uint64
	lastScale Scale
}

// New creates a renderer for tex.
func New(tex Texture) *Renderer {
	return &Renderer{tex: tex, lastScale: Identity}
}

// Present uploads f, computes the aspect scale for the current viewport and
// draws. Presenting the same frame twice redraws it.
func (r *Renderer) Present(f frame.Frame) error {
	if f.Empty() {
		return ErrEmptyFrame
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	size := f.Size()
	r.tex.Upload(f.Image)
	vw, vh := r.tex.Viewport()
	s := ScaleFactor(size.X, size.Y, vw, vh)
	r.tex.Draw(s)

	r.presented++
	r.lastScale = s
	return nil
}

// Presented returns how many frames were drawn.
func (r *Renderer) Presented() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presented
}

// LastScale returns the scale used by the latest draw.
func (r *Renderer) LastScale() Scale {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScale
}
