package render

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

// FyneTexture is a Texture backed by a fyne canvas.Image. fyne's painter
// uploads the image to a GL texture on refresh.
type FyneTexture struct {
	img       *canvas.Image
	layout    *scaledLayout
	container *fyne.Container

	mu      sync.Mutex
	pending *image.RGBA
}

// NewFyneTexture creates an empty texture with the given minimum size.
func NewFyneTexture(minSize fyne.Size) *FyneTexture {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillStretch
	img.ScaleMode = canvas.ImageScaleFastest

	l := &scaledLayout{scale: Identity, min: minSize}
	return &FyneTexture{
		img:       img,
		layout:    l,
		container: container.New(l, img),
	}
}

// Object returns the canvas object to place in a window.
func (t *FyneTexture) Object() fyne.CanvasObject {
	return t.container
}

// Upload implements Texture. The image is applied on the next Draw.
func (t *FyneTexture) Upload(img *image.RGBA) {
	t.mu.Lock()
	t.pending = img
	t.mu.Unlock()
}

// Viewport implements Texture.
func (t *FyneTexture) Viewport() (float32, float32) {
	return t.layout.viewport()
}

// Draw implements Texture.
func (t *FyneTexture) Draw(s Scale) {
	t.mu.Lock()
	img := t.pending
	t.pending = nil
	t.mu.Unlock()

	t.layout.setScale(s)

	fyne.Do(func() {
		if img != nil {
			t.img.Image = img
		}
		t.container.Refresh()
		t.img.Refresh()
	})
}

// scaledLayout centers its objects at a fraction of the container size and
// records the container size as the viewport.
type scaledLayout struct {
	mu    sync.Mutex
	scale Scale
	size  fyne.Size
	min   fyne.Size
}

func (l *scaledLayout) setScale(s Scale) {
	l.mu.Lock()
	l.scale = s
	l.mu.Unlock()
}

func (l *scaledLayout) viewport() (float32, float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size.Width, l.size.Height
}

// Layout implements fyne.Layout.
func (l *scaledLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	l.mu.Lock()
	l.size = size
	s := l.scale
	l.mu.Unlock()

	w, h := size.Width*s.X, size.Height*s.Y
	pos := fyne.NewPos((size.Width-w)/2, (size.Height-h)/2)
	for _, o := range objects {
		o.Resize(fyne.NewSize(w, h))
		o.Move(pos)
	}
}

// MinSize implements fyne.Layout.
func (l *scaledLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	return l.min
}
