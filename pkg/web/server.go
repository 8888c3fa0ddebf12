// Package web exposes the perception pipeline over HTTP: a control API,
// live JPEG streams of the color and depth surfaces and a status feed.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/frame"
	"github.com/teslashibe/go-rsdnn/pkg/fusion"
	"github.com/teslashibe/go-rsdnn/pkg/hub"
	"github.com/teslashibe/go-rsdnn/pkg/perception"
	"github.com/teslashibe/go-rsdnn/pkg/rtc"
)

// Pipeline is the control surface of the perception controller.
type Pipeline interface {
	StartStream() (camera.ROI, error)
	StopStream() error
	SetDetection(on bool) error
	ShowSurface(kind frame.Kind, s perception.Surface) error
	HideSurface(kind frame.Kind) error
	Status() perception.Status
	Detections() []fusion.Annotation
}

// Config holds web server configuration.
type Config struct {
	Enabled          bool   `json:"enabled"`
	Port             string `json:"port"`
	JPEGQuality      int    `json:"jpeg_quality"`
	StatusIntervalMS int    `json:"status_interval_ms"`

	// RTC serves frames over WebRTC data channels next to the websockets.
	RTC rtc.Config `json:"rtc"`
}

// StatusInterval returns the status push period.
func (c Config) StatusInterval() time.Duration {
	if c.StatusIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.StatusIntervalMS) * time.Millisecond
}

// DefaultConfig returns the defaults: port 8080, quality 80, status every 500 ms.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Port:             "8080",
		JPEGQuality:      frame.DefaultJPEGQuality,
		StatusIntervalMS: 500,
		RTC:              rtc.DefaultConfig(),
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string
	if c.Enabled && c.Port == "" {
		errs = append(errs, "web port is required")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, "jpeg_quality must be between 1 and 100")
	}
	if c.StatusIntervalMS < 0 {
		errs = append(errs, "status_interval_ms must not be negative")
	}
	if c.RTC.Enabled {
		for _, e := range c.RTC.Validate() {
			errs = append(errs, "rtc: "+e)
		}
	}
	return errs
}

// Server is the web control server
type Server struct {
	app      *fiber.App
	cfg      Config
	pipeline Pipeline
	logger   *slog.Logger

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	surfaces  map[frame.Kind]*Surface
}

// NewServer creates a new web server for p
func NewServer(p Pipeline, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:       cfg,
		pipeline:  p,
		logger:    logger,
		statusHub: hub.New("status", logger),
		surfaces:  make(map[frame.Kind]*Surface, len(frame.Kinds)),
	}
	for _, k := range frame.Kinds {
		surface := NewSurface(k, hub.New(string(k), logger), cfg.JPEGQuality)
		if cfg.RTC.Enabled {
			surface.rtc = rtc.NewChannel(string(k), cfg.RTC, logger)
		}
		s.surfaces[k] = surface
	}

	app := fiber.New(fiber.Config{
		AppName:               "rsdnn",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/detections", s.handleDetections)
	api.Post("/stream/start", s.handleStreamStart)
	api.Post("/stream/stop", s.handleStreamStop)
	api.Post("/detection/:toggle", s.handleDetection)
	api.Post("/surfaces/:kind/:action", s.handleSurface)
	api.Post("/rtc/:kind/offer", s.handleRTCOffer)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/:kind", websocket.New(s.handleFrameWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Surface returns the web surface for kind.
func (s *Server) Surface(kind frame.Kind) *Surface {
	return s.surfaces[kind]
}

// Start runs the hubs and the status feed, then serves until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("web server listening", "url", fmt.Sprintf("http://localhost:%s", s.cfg.Port))

	go s.statusHub.Run(ctx)
	for _, surface := range s.surfaces {
		go surface.hub.Run(ctx)
	}
	go s.statusLoop(ctx)

	return s.app.Listen(":" + s.cfg.Port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// statusLoop pushes the pipeline status to status subscribers.
func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
				s.logger.Warn("status encode failed", "error", err)
			}
		}
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	for _, surface := range s.surfaces {
		if surface.rtc != nil {
			surface.rtc.Close()
		}
	}
	return s.app.Shutdown()
}
