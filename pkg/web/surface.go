package web

import (
	"fmt"
	"sync/atomic"

	"github.com/teslashibe/go-rsdnn/pkg/frame"
	"github.com/teslashibe/go-rsdnn/pkg/hub"
	"github.com/teslashibe/go-rsdnn/pkg/rtc"
)

// Surface presents frames of one kind as JPEG to websocket viewers and,
// when enabled, WebRTC peers.
type Surface struct {
	kind    frame.Kind
	hub     *hub.Hub
	rtc     *rtc.Channel
	quality int

	encoded atomic.Uint64
}

// NewSurface creates a surface broadcasting on h.
func NewSurface(kind frame.Kind, h *hub.Hub, quality int) *Surface {
	if quality < 1 || quality > 100 {
		quality = frame.DefaultJPEGQuality
	}
	return &Surface{kind: kind, hub: h, quality: quality}
}

// Present encodes f and broadcasts it. Frames are skipped while nobody watches.
func (s *Surface) Present(f frame.Frame) error {
	toHub := s.hub.ClientCount() > 0
	toRTC := s.rtc != nil && s.rtc.Active()
	if !toHub && !toRTC {
		return nil
	}

	data, err := f.EncodeJPEG(s.quality)
	if err != nil {
		return fmt.Errorf("web: encode %s frame: %w", s.kind, err)
	}
	s.encoded.Add(1)

	if toHub {
		s.hub.BroadcastBinary(data)
	}
	if toRTC {
		return s.rtc.Send(data)
	}
	return nil
}

// Kind returns the frame kind this surface shows.
func (s *Surface) Kind() frame.Kind {
	return s.kind
}

// Encoded returns the number of frames encoded so far.
func (s *Surface) Encoded() uint64 {
	return s.encoded.Load()
}
