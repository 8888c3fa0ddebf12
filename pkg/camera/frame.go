package camera

import (
	"encoding/binary"
	"time"
)

// FramePair is one aligned color+depth capture. Depth has already been
// resampled onto the color grid, so both share Width and Height.
type FramePair struct {
	Width  int
	Height int

	// Color is packed RGB8, Width*Height*3 bytes.
	Color []byte

	// Depth is Z16 little-endian, Width*Height*2 bytes, in device units.
	Depth []byte

	// DepthScale converts device units to meters.
	DepthScale float32

	// Seq is the driver frame number.
	Seq uint64

	// Timestamp is when the pair was handed to the caller.
	Timestamp time.Time
}

// DepthAt returns the raw depth value at (x, y).
func (p *FramePair) DepthAt(x, y int) uint16 {
	i := (y*p.Width + x) * 2
	return binary.LittleEndian.Uint16(p.Depth[i:])
}

// MetersAt returns the depth at (x, y) in meters.
func (p *FramePair) MetersAt(x, y int) float64 {
	return float64(p.DepthAt(x, y)) * float64(p.DepthScale)
}

// Valid reports whether buffer sizes match the resolution.
func (p *FramePair) Valid() bool {
	n := p.Width * p.Height
	return n > 0 && len(p.Color) == n*3 && len(p.Depth) == n*2
}
