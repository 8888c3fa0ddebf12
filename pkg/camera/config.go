// Package camera owns the depth camera session: it starts and stops the
// color and depth streams, aligns depth onto the color grid and computes the
// region of interest used for detection and display.
//
// Backends follow build tags and configuration:
//   - RealSense (cgo, build tag "realsense") - production use with librealsense2
//   - Mock - synthetic frames for CI and development without hardware
package camera

import (
	"fmt"
	"time"
)

// Format is the pixel format requested for a stream.
type Format string

const (
	// FormatRGB8 is packed 8-bit RGB.
	FormatRGB8 Format = "rgb8"
	// FormatZ16 is 16-bit raw depth in device units.
	FormatZ16 Format = "z16"
)

// StreamConfig describes one requested stream.
type StreamConfig struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    Format `json:"format"`
	Framerate int    `json:"framerate"`
}

// Config holds camera configuration.
type Config struct {
	// Backend selects the driver. Default: "auto".
	Backend Backend `json:"backend"`

	// Color is the color stream request. Default 1920x1080 RGB8 @ 30.
	Color StreamConfig `json:"color"`

	// Depth is the depth stream request. Default 640x480 Z16 @ 30.
	// After alignment depth frames have the color resolution.
	Depth StreamConfig `json:"depth"`

	// Timeout bounds a single wait for frames inside the driver.
	Timeout time.Duration `json:"timeout"`

	// MockDevices is the number of devices the mock backend reports.
	MockDevices int `json:"mock_devices,omitempty"`

	// MockDistance is the flat depth (meters) the mock backend produces.
	MockDistance float64 `json:"mock_distance,omitempty"`
}

// Sensor limits for D400-series cameras.
const (
	MaxColorWidth  = 1920
	MaxColorHeight = 1080
	MaxDepthWidth  = 1280
	MaxDepthHeight = 720
	MaxFramerate   = 90

	// DefaultTimeout matches the librealsense default wait.
	DefaultTimeout = 15 * time.Second
)

// DefaultColorStream returns the 1080p RGB stream.
func DefaultColorStream() StreamConfig {
	return StreamConfig{Width: 1920, Height: 1080, Format: FormatRGB8, Framerate: 30}
}

// DefaultDepthStream returns the VGA depth stream.
func DefaultDepthStream() StreamConfig {
	return StreamConfig{Width: 640, Height: 480, Format: FormatZ16, Framerate: 30}
}

// DefaultConfig returns the configuration used with a D435.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendAuto,
		Color:        DefaultColorStream(),
		Depth:        DefaultDepthStream(),
		Timeout:      DefaultTimeout,
		MockDevices:  1,
		MockDistance: 2.0,
	}
}

// Validate checks a stream request against the sensor limits.
// Returns a list of validation errors, or nil if valid.
func (s StreamConfig) Validate(name string, maxW, maxH int, format Format) []string {
	var errors []string

	if s.Width < 160 || s.Width > maxW {
		errors = append(errors, fmt.Sprintf("%s width must be between 160 and %d", name, maxW))
	}
	if s.Height < 120 || s.Height > maxH {
		errors = append(errors, fmt.Sprintf("%s height must be between 120 and %d", name, maxH))
	}
	if s.Framerate < 1 || s.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("%s framerate must be between 1 and %d", name, MaxFramerate))
	}
	if s.Format != format {
		errors = append(errors, fmt.Sprintf("%s format must be %s", name, format))
	}

	return errors
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Backend {
	case BackendAuto, BackendRealSense, BackendMock:
	default:
		errors = append(errors, fmt.Sprintf("unknown camera backend %q", c.Backend))
	}

	errors = append(errors, c.Color.Validate("color", MaxColorWidth, MaxColorHeight, FormatRGB8)...)
	errors = append(errors, c.Depth.Validate("depth", MaxDepthWidth, MaxDepthHeight, FormatZ16)...)

	if c.Timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}
	if c.MockDevices < 0 {
		errors = append(errors, "mock_devices must not be negative")
	}
	if c.MockDistance < 0 {
		errors = append(errors, "mock_distance must not be negative")
	}

	return errors
}
