// Package frame defines the display frame handed from the perception loop to
// render surfaces.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"gocv.io/x/gocv"
)

// Kind identifies which stream a frame belongs to.
type Kind string

const (
	KindColor Kind = "color"
	KindDepth Kind = "depth"
)

// Kinds lists every frame kind.
var Kinds = []Kind{KindColor, KindDepth}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindColor, KindDepth:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown frame kind %q", s)
	}
}

// DefaultJPEGQuality is used by surfaces that stream JPEG.
const DefaultJPEGQuality = 80

// Frame is one display-ready image. Image is owned by the frame and must not
// be modified after publishing.
type Frame struct {
	Kind     Kind
	Image    *image.RGBA
	Seq      uint64
	Captured time.Time
}

// Size returns the frame dimensions.
func (f Frame) Size() image.Point {
	if f.Image == nil {
		return image.Point{}
	}
	return f.Image.Bounds().Size()
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image == nil || f.Image.Bounds().Empty()
}

// FromRGB packs RGB8 pixels into a new frame.
func FromRGB(kind Kind, w, h int, rgb []byte, seq uint64, captured time.Time) (Frame, error) {
	if w <= 0 || h <= 0 {
		return Frame{}, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	if len(rgb) != w*h*3 {
		return Frame{}, fmt.Errorf("rgb buffer is %d bytes, want %d", len(rgb), w*h*3)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
		img.Pix[j] = rgb[i]
		img.Pix[j+1] = rgb[i+1]
		img.Pix[j+2] = rgb[i+2]
		img.Pix[j+3] = 0xff
	}

	return Frame{Kind: kind, Image: img, Seq: seq, Captured: captured}, nil
}

// FromMat packs an 8-bit 3-channel Mat in RGB order into a new frame.
func FromMat(kind Kind, mat gocv.Mat, seq uint64, captured time.Time) (Frame, error) {
	if mat.Empty() {
		return Frame{}, fmt.Errorf("empty mat")
	}
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return Frame{}, fmt.Errorf("mat type %v, want CV_8UC3", mat.Type())
	}
	return FromRGB(kind, mat.Cols(), mat.Rows(), mat.ToBytes(), seq, captured)
}

// EncodeJPEG encodes the frame image.
func (f Frame) EncodeJPEG(quality int) ([]byte, error) {
	if f.Empty() {
		return nil, fmt.Errorf("encode %s frame: empty image", f.Kind)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
