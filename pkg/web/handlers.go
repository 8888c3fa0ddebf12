package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/frame"
	"github.com/teslashibe/go-rsdnn/pkg/hub"
	"github.com/teslashibe/go-rsdnn/pkg/perception"
	"github.com/teslashibe/go-rsdnn/pkg/rtc"
)

// StatusResponse is the pipeline status plus viewer counts.
type StatusResponse struct {
	perception.Status
	Viewers map[string]hub.Stats `json:"viewers"`
	RTC     map[string]rtc.Stats `json:"rtc,omitempty"`
}

func (s *Server) status() StatusResponse {
	viewers := make(map[string]hub.Stats, len(s.surfaces)+1)
	viewers[s.statusHub.Name()] = s.statusHub.Stats()
	var peers map[string]rtc.Stats
	for kind, surface := range s.surfaces {
		viewers[string(kind)] = surface.hub.Stats()
		if surface.rtc != nil {
			if peers == nil {
				peers = make(map[string]rtc.Stats, len(s.surfaces))
			}
			peers[string(kind)] = surface.rtc.Stats()
		}
	}
	return StatusResponse{Status: s.pipeline.Status(), Viewers: viewers, RTC: peers}
}

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, camera.ErrDeviceNotFound), errors.Is(err, camera.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, perception.ErrNotStarted), errors.Is(err, perception.ErrNoDetector):
		return fiber.StatusConflict
	case camera.IsDriverError(err):
		return fiber.StatusBadGateway
	case errors.Is(err, rtc.ErrTooManyPeers):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := errorStatus(err)
	s.logger.Warn("request failed", "path", c.Path(), "status", code, "error", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleStatus returns the pipeline status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleDetections returns the annotations of the last processed tick
func (s *Server) handleDetections(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.Detections())
}

// handleStreamStart starts the camera stream
func (s *Server) handleStreamStart(c *fiber.Ctx) error {
	roi, err := s.pipeline.StartStream()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"started": true,
		"roi":     roi,
	})
}

// handleStreamStop stops the camera stream
func (s *Server) handleStreamStop(c *fiber.Ctx) error {
	if err := s.pipeline.StopStream(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"started": false})
}

// handleDetection turns detection on or off
func (s *Server) handleDetection(c *fiber.Ctx) error {
	var on bool
	switch c.Params("toggle") {
	case "on":
		on = true
	case "off":
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "detection toggle must be on or off",
		})
	}

	if err := s.pipeline.SetDetection(on); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"detection_enabled": on})
}

// handleSurface shows or hides the web surface of one kind
func (s *Server) handleSurface(c *fiber.Ctx) error {
	kind, err := frame.ParseKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	switch c.Params("action") {
	case "show":
		err = s.pipeline.ShowSurface(kind, s.surfaces[kind])
	case "hide":
		err = s.pipeline.HideSurface(kind)
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "surface action must be show or hide",
		})
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"surface": kind,
		"visible": c.Params("action") == "show",
	})
}

// handleRTCOffer answers a WebRTC offer for the frames of one kind
func (s *Server) handleRTCOffer(c *fiber.Ctx) error {
	kind, err := frame.ParseKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	channel := s.surfaces[kind].rtc
	if channel == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "webrtc is disabled",
		})
	}

	var offer webrtc.SessionDescription
	if err := c.BodyParser(&offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be an SDP offer",
		})
	}

	answer, id, err := channel.Answer(offer)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"peer":   id,
		"answer": answer,
	})
}

// handleFrameWS streams JPEG frames of one kind
func (s *Server) handleFrameWS(c *websocket.Conn) {
	kind, err := frame.ParseKind(c.Params("kind"))
	if err != nil {
		c.WriteJSON(fiber.Map{"error": err.Error()})
		c.Close()
		return
	}

	client, err := hub.NewClient(s.surfaces[kind].hub, c)
	if err != nil {
		c.Close()
		return
	}
	client.Run()
}

// handleStatusWS streams the pipeline status as JSON
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// Send the current status before the periodic pushes start
	if err := c.WriteJSON(s.status()); err != nil {
		c.Close()
		return
	}

	client, err := hub.NewClient(s.statusHub, c)
	if err != nil {
		c.Close()
		return
	}
	client.Run()
}
