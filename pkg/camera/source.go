package camera

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Source owns at most one streaming session. Start, Stop and CaptureAligned
// are safe for concurrent use; CaptureAligned does not hold the source lock
// while blocked on the driver.
type Source struct {
	driver  Driver
	whRatio float64
	logger  *slog.Logger

	mu        sync.RWMutex
	session   Session
	roi       ROI
	sessionID string
	// stopping is closed when the in-flight Stop returns.
	stopping chan struct{}
}

// NewSource creates a stopped source. whRatio is the detector input aspect
// ratio used to compute the ROI.
func NewSource(driver Driver, whRatio float64, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		driver:  driver,
		whRatio: whRatio,
		logger:  logger.With("component", "camera"),
	}
}

// Start opens the color and depth streams and returns the ROI for the
// negotiated resolution. Calling Start on a started source returns the
// current ROI. A Start racing a Stop waits for the stop to finish.
func (s *Source) Start(color, depth StreamConfig) (ROI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitStopLocked()
	if s.session != nil {
		return s.roi, nil
	}

	n, err := s.driver.Devices()
	if err != nil {
		return ROI{}, err
	}
	if n == 0 {
		return ROI{}, ErrDeviceNotFound
	}

	session, err := s.driver.Open(color, depth)
	if err != nil {
		s.logger.Error("stream start failed", "backend", s.driver.Name(), "error", err)
		return ROI{}, err
	}

	res := session.Resolution()
	roi := ComputeROI(res, s.whRatio)
	if roi.Empty() {
		if stopErr := session.Stop(); stopErr != nil {
			s.logger.Warn("stop after bad resolution failed", "error", stopErr)
		}
		return ROI{}, &DriverError{
			Op:      "rs2_get_video_stream_resolution",
			Message: fmt.Sprintf("unusable color resolution %dx%d", res.X, res.Y),
		}
	}

	s.session = session
	s.roi = roi
	s.sessionID = uuid.New().String()

	s.logger.Info("stream started",
		"session", s.sessionID,
		"backend", s.driver.Name(),
		"resolution", fmt.Sprintf("%dx%d", res.X, res.Y),
		"depth_scale", session.DepthScale(),
		"roi", roi.Rect.String(),
	)
	return roi, nil
}

// Stop ends the session. The source stays started if the driver fails to
// stop. Stopping a stopped source is a no-op.
func (s *Source) Stop() error {
	s.mu.Lock()
	s.waitStopLocked()
	session, id := s.session, s.sessionID
	if session == nil {
		s.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	s.stopping = done
	s.mu.Unlock()

	// Stop without the lock so a capture blocked in the driver can return.
	err := session.Stop()

	s.mu.Lock()
	if err == nil && s.session == session {
		s.session = nil
		s.roi = ROI{}
		s.sessionID = ""
	}
	s.stopping = nil
	close(done)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("stream stop failed", "session", id, "error", err)
		return err
	}
	s.logger.Info("stream stopped", "session", id)
	return nil
}

// waitStopLocked blocks until no Stop is in flight. s.mu must be held; it is
// released while waiting.
func (s *Source) waitStopLocked() {
	for s.stopping != nil {
		done := s.stopping
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
}

// CaptureAligned blocks until the next aligned frame pair.
func (s *Source) CaptureAligned() (FramePair, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	if session == nil {
		return FramePair{}, ErrNotStarted
	}

	pair, err := session.WaitAligned()
	if err != nil {
		return FramePair{}, err
	}
	if pair.DepthScale == 0 {
		pair.DepthScale = session.DepthScale()
	}
	return pair, nil
}

// Started reports whether a session is running.
func (s *Source) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// ROI returns the current region of interest, zero when stopped.
func (s *Source) ROI() ROI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roi
}

// SessionID returns the id of the running session, empty when stopped.
func (s *Source) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Backend returns the driver name.
func (s *Source) Backend() string {
	return s.driver.Name()
}
