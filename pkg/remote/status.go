package remote

import (
	"image"
	"time"

	"github.com/teslashibe/go-rsdnn/pkg/relay"
)

// Status mirrors the /api/status payload. It is decoded without the server
// packages so the client builds without OpenCV.
type Status struct {
	Started          bool                   `json:"started"`
	DetectionEnabled bool                   `json:"detection_enabled"`
	Backend          string                 `json:"backend"`
	SessionID        string                 `json:"session_id,omitempty"`
	ROI              *ROI                   `json:"roi,omitempty"`
	Surfaces         []string               `json:"surfaces"`
	Ticks            uint64                 `json:"ticks"`
	Errors           uint64                 `json:"errors"`
	LastError        string                 `json:"last_error,omitempty"`
	TickTime         time.Duration          `json:"tick_time_ns"`
	Detections       []Annotation           `json:"detections"`
	Relays           map[string]relay.Stats `json:"relays"`
	Viewers          map[string]ViewerStats `json:"viewers"`
	RTC              map[string]PeerStats   `json:"rtc,omitempty"`
}

// ROI is the detector region of the running session.
type ROI struct {
	Frame image.Point     `json:"frame"`
	Rect  image.Rectangle `json:"rect"`
	Left  image.Rectangle `json:"left"`
	Right image.Rectangle `json:"right"`
}

// Annotation is one labelled detection of the last detecting tick.
type Annotation struct {
	Class     string          `json:"class"`
	Box       image.Rectangle `json:"box"`
	Label     string          `json:"label"`
	Detection RawDetection    `json:"detection"`
	Distance  Distance        `json:"distance"`
}

// RawDetection is the detector output row behind an annotation.
type RawDetection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Distance is the estimated distance to a detection.
type Distance struct {
	Meters float64 `json:"meters"`
	Valid  bool    `json:"valid"`
}

// ViewerStats counts websocket viewers of one stream.
type ViewerStats struct {
	Running        bool   `json:"running"`
	Clients        int    `json:"clients"`
	Broadcasts     uint64 `json:"broadcasts"`
	SkippedFrames  uint64 `json:"skipped_frames"`
	DroppedClients uint64 `json:"dropped_clients"`
}

// PeerStats counts WebRTC viewers of one stream.
type PeerStats struct {
	Peers   int    `json:"peers"`
	Frames  uint64 `json:"frames"`
	Skipped uint64 `json:"skipped"`
}
