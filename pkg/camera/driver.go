package camera

import (
	"fmt"
	"image"
	"log/slog"
)

// Backend represents the camera backend type.
type Backend string

const (
	// BackendAuto uses RealSense when compiled in, otherwise the mock.
	BackendAuto Backend = "auto"
	// BackendRealSense uses librealsense2 through cgo.
	BackendRealSense Backend = "realsense"
	// BackendMock produces synthetic frames.
	BackendMock Backend = "mock"
)

// Driver is a device SDK entry point.
type Driver interface {
	// Devices returns the number of attached compatible devices.
	Devices() (int, error)

	// Open negotiates both streams and starts them with depth aligned to color.
	Open(color, depth StreamConfig) (Session, error)

	// Name returns the backend name.
	Name() string
}

// Session is one running stream.
type Session interface {
	// Resolution is the negotiated color resolution.
	Resolution() image.Point

	// DepthScale is the device's raw-unit-to-meters factor.
	DepthScale() float32

	// WaitAligned blocks until the next aligned pair, bounded by the driver timeout.
	WaitAligned() (FramePair, error)

	// Stop ends streaming and releases device resources.
	Stop() error
}

// NewDriver creates the driver selected by cfg.Backend.
func NewDriver(cfg Config, logger *slog.Logger) (Driver, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating camera driver",
		"backend", backend,
		"color", fmt.Sprintf("%dx%d@%d", cfg.Color.Width, cfg.Color.Height, cfg.Color.Framerate),
		"depth", fmt.Sprintf("%dx%d@%d", cfg.Depth.Width, cfg.Depth.Height, cfg.Depth.Framerate),
	)

	switch backend {
	case BackendMock:
		return NewMockDriver(cfg.MockDevices, cfg.MockDistance), nil
	case BackendRealSense:
		return newRealSenseDriver(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best backend compiled into this binary.
func detectBestBackend() Backend {
	if realSenseAvailable {
		return BackendRealSense
	}
	return BackendMock
}

// AvailableBackends returns the list of backends available in this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if realSenseAvailable {
		backends = append(backends, BackendRealSense)
	}
	return backends
}
