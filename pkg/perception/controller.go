// Package perception drives the capture, detect, annotate and publish loop
// and manages the display surfaces fed from it.
package perception

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/detection"
	"github.com/teslashibe/go-rsdnn/pkg/frame"
	"github.com/teslashibe/go-rsdnn/pkg/fusion"
	"github.com/teslashibe/go-rsdnn/pkg/relay"
)

var (
	// ErrNotStarted is returned when detection is enabled while the stream is stopped.
	ErrNotStarted = errors.New("perception: start the color or depth stream before detecting")

	// ErrNoDetector is returned when detection is enabled without a loaded model.
	ErrNoDetector = errors.New("perception: no detector loaded")
)

// Surface displays frames of one kind.
type Surface interface {
	Present(frame.Frame) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(frame.Frame) error

// Present implements Surface.
func (f SurfaceFunc) Present(fr frame.Frame) error { return f(fr) }

// Config holds controller configuration.
type Config struct {
	Color camera.StreamConfig `json:"color"`
	Depth camera.StreamConfig `json:"depth"`

	// TickRate is the capture loop frequency in Hz. Default 30.
	TickRate int `json:"tick_rate"`

	// RenderRate is each surface's draw frequency in Hz. Default 30.
	RenderRate int `json:"render_rate"`

	// Threshold is the minimum detection confidence drawn. Default 0.8.
	Threshold float64 `json:"threshold"`

	// DepthMaxMeters is the range mapped onto the depth colormap.
	DepthMaxMeters float64 `json:"depth_max_meters"`
}

// DefaultConfig returns the 30 Hz configuration for the default camera streams.
func DefaultConfig() Config {
	return Config{
		Color:          camera.DefaultColorStream(),
		Depth:          camera.DefaultDepthStream(),
		TickRate:       30,
		RenderRate:     30,
		Threshold:      0.8,
		DepthMaxMeters: fusion.DefaultMaxMeters,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string
	errs = append(errs, c.Color.Validate("color", camera.MaxColorWidth, camera.MaxColorHeight, camera.FormatRGB8)...)
	errs = append(errs, c.Depth.Validate("depth", camera.MaxDepthWidth, camera.MaxDepthHeight, camera.FormatZ16)...)
	if c.TickRate < 1 || c.TickRate > 120 {
		errs = append(errs, "tick_rate must be between 1 and 120")
	}
	if c.RenderRate < 1 || c.RenderRate > 120 {
		errs = append(errs, "render_rate must be between 1 and 120")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, "threshold must be between 0 and 1")
	}
	if c.DepthMaxMeters <= 0 {
		errs = append(errs, "depth_max_meters must be positive")
	}
	return errs
}

// State is the shared stream state.
type State struct {
	Started          bool `json:"started"`
	DetectionEnabled bool `json:"detection_enabled"`
}

// Status is a snapshot for status reporting.
type Status struct {
	State
	Backend    string                     `json:"backend"`
	SessionID  string                     `json:"session_id,omitempty"`
	ROI        *camera.ROI                `json:"roi,omitempty"`
	Surfaces   []frame.Kind               `json:"surfaces"`
	Ticks      uint64                     `json:"ticks"`
	Errors     uint64                     `json:"errors"`
	LastError  string                     `json:"last_error,omitempty"`
	TickTime   time.Duration              `json:"tick_time_ns"`
	Detections []fusion.Annotation        `json:"detections"`
	Relays     map[frame.Kind]relay.Stats `json:"relays"`
}

type surfaceLoop struct {
	surface Surface
	cancel  context.CancelFunc
	done    chan struct{}
}

// Controller owns the stream state and runs the per-tick pipeline.
type Controller struct {
	source    *camera.Source
	detector  detection.Detector
	annotator *fusion.Annotator
	cfg       Config
	logger    *slog.Logger

	relays map[frame.Kind]*relay.Relay[frame.Frame]

	mu       sync.Mutex
	state    State
	surfaces map[frame.Kind]*surfaceLoop
	lastAnns []fusion.Annotation
	lastErr  string
	tickTime time.Duration

	ticks    atomic.Uint64
	errCount atomic.Uint64
}

// New creates a stopped controller. detector may be nil, in which case
// detection cannot be enabled.
func New(source *camera.Source, detector detection.Detector, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	relays := make(map[frame.Kind]*relay.Relay[frame.Frame], len(frame.Kinds))
	for _, k := range frame.Kinds {
		relays[k] = relay.New[frame.Frame]()
	}
	return &Controller{
		source:    source,
		detector:  detector,
		annotator: fusion.NewAnnotator(cfg.Threshold),
		cfg:       cfg,
		logger:    logger.With("component", "perception"),
		relays:    relays,
		surfaces:  make(map[frame.Kind]*surfaceLoop),
	}
}

// StartStream starts the camera. Starting a started stream returns the current ROI.
func (c *Controller) StartStream() (camera.ROI, error) {
	roi, err := c.source.Start(c.cfg.Color, c.cfg.Depth)
	if err != nil {
		c.recordError(err)
		return camera.ROI{}, err
	}

	c.syncStarted()
	return roi, nil
}

// StopStream stops the camera. The state flips only after the driver confirms.
func (c *Controller) StopStream() error {
	if err := c.source.Stop(); err != nil {
		c.recordError(err)
		return err
	}

	c.syncStarted()
	return nil
}

// syncStarted copies the source state into the stream state. Reading the
// source under c.mu makes the last writer see the latest source state when
// StartStream and StopStream race.
func (c *Controller) syncStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Started = c.source.Started()
	if !c.state.Started {
		c.lastAnns = nil
	}
}

// SetDetection toggles detection. Enabling requires a started stream.
func (c *Controller) SetDetection(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on && !c.state.Started {
		return ErrNotStarted
	}
	if on && c.detector == nil {
		return ErrNoDetector
	}
	if !on {
		c.lastAnns = nil
	}
	c.state.DetectionEnabled = on
	c.logger.Info("detection toggled", "enabled", on)
	return nil
}

// ShowSurface attaches s as the display for kind, starting the stream if
// needed. The surface stays hidden when the stream fails to start.
func (c *Controller) ShowSurface(kind frame.Kind, s Surface) error {
	if _, err := frame.ParseKind(string(kind)); err != nil {
		return err
	}

	if _, err := c.StartStream(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := &surfaceLoop{surface: s, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	prev := c.surfaces[kind]
	c.surfaces[kind] = loop
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go c.renderLoop(ctx, kind, loop)
	c.logger.Info("surface shown", "kind", kind)
	return nil
}

// HideSurface detaches the surface for kind. Hiding the last surface stops
// the stream.
func (c *Controller) HideSurface(kind frame.Kind) error {
	c.mu.Lock()
	loop := c.surfaces[kind]
	delete(c.surfaces, kind)
	remaining := len(c.surfaces)
	c.mu.Unlock()

	if loop == nil {
		return nil
	}
	loop.cancel()
	<-loop.done
	c.logger.Info("surface hidden", "kind", kind)

	if remaining == 0 {
		return c.StopStream()
	}
	return nil
}

// State returns the current stream state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:      c.state,
		LastError:  c.lastErr,
		TickTime:   c.tickTime,
		Detections: append([]fusion.Annotation(nil), c.lastAnns...),
	}
	for k := range c.surfaces {
		st.Surfaces = append(st.Surfaces, k)
	}
	c.mu.Unlock()

	sort.Slice(st.Surfaces, func(i, j int) bool { return st.Surfaces[i] < st.Surfaces[j] })

	st.Backend = c.source.Backend()
	st.SessionID = c.source.SessionID()
	if roi := c.source.ROI(); !roi.Empty() {
		st.ROI = &roi
	}
	st.Ticks = c.ticks.Load()
	st.Errors = c.errCount.Load()
	st.Relays = make(map[frame.Kind]relay.Stats, len(c.relays))
	for k, r := range c.relays {
		st.Relays[k] = r.Stats()
	}
	if st.Detections == nil {
		st.Detections = []fusion.Annotation{}
	}
	return st
}

// Detections returns the annotations of the latest detecting tick.
func (c *Controller) Detections() []fusion.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fusion.Annotation, len(c.lastAnns))
	copy(out, c.lastAnns)
	return out
}

// Tick runs one capture, detect, annotate and publish cycle. It is a no-op
// while the stream is stopped.
func (c *Controller) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	st := c.state
	active := make(map[frame.Kind]bool, len(c.surfaces))
	for k := range c.surfaces {
		active[k] = true
	}
	c.mu.Unlock()

	if !st.Started {
		return nil
	}

	start := time.Now()

	// Blocks up to the driver timeout without holding the state lock.
	pair, err := c.source.CaptureAligned()
	if err != nil {
		if errors.Is(err, camera.ErrNotStarted) {
			c.syncStarted()
			return nil
		}
		if !c.State().Started {
			return nil
		}
		c.recordError(err)
		return fmt.Errorf("capture: %w", err)
	}
	c.ticks.Add(1)

	if st.DetectionEnabled && c.detector != nil {
		if err := c.detectAndPublish(&pair, active[frame.KindColor]); err != nil {
			c.recordError(err)
			c.publishColor(&pair, active[frame.KindColor])
		}
	} else {
		c.publishColor(&pair, active[frame.KindColor])
	}

	if active[frame.KindDepth] {
		if err := c.publishDepth(&pair); err != nil {
			c.recordError(err)
		}
	}

	elapsed := time.Since(start)
	c.mu.Lock()
	c.tickTime = elapsed
	c.mu.Unlock()

	c.logger.Debug("tick", "seq", pair.Seq, "detect", st.DetectionEnabled, "elapsed", elapsed)
	return nil
}

// detectAndPublish runs the detector on the ROI, annotates the full frame and
// publishes it when a color surface is active.
func (c *Controller) detectAndPublish(pair *camera.FramePair, publish bool) error {
	roi := c.source.ROI()
	if roi.Empty() {
		return fmt.Errorf("detect: no region of interest")
	}

	bgr, err := fusion.ColorMat(pair)
	if err != nil {
		return err
	}
	defer bgr.Close()

	raw, err := fusion.RawDepthMat(pair)
	if err != nil {
		return err
	}
	defer raw.Close()

	meters := fusion.DepthToMeters(raw, pair.DepthScale)
	defer meters.Close()

	crop := bgr.Region(roi.Rect)
	dets, err := c.detector.Detect(crop)
	crop.Close()
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	dets = detection.Filter(dets, c.cfg.Threshold)
	anns := c.annotator.Annotate(&bgr, meters, roi, dets)

	c.mu.Lock()
	c.lastAnns = anns
	c.mu.Unlock()

	if len(anns) > 0 {
		c.logger.Debug("detections", "count", len(anns), "first", anns[0].Label)
	}

	if !publish {
		return nil
	}
	f, err := frame.FromMat(frame.KindColor, bgr, pair.Seq, pair.Timestamp)
	if err != nil {
		return err
	}
	c.relays[frame.KindColor].Publish(f)
	return nil
}

func (c *Controller) publishColor(pair *camera.FramePair, publish bool) {
	if !publish {
		return
	}
	f, err := frame.FromRGB(frame.KindColor, pair.Width, pair.Height, pair.Color, pair.Seq, pair.Timestamp)
	if err != nil {
		c.recordError(err)
		return
	}
	c.relays[frame.KindColor].Publish(f)
}

func (c *Controller) publishDepth(pair *camera.FramePair) error {
	raw, err := fusion.RawDepthMat(pair)
	if err != nil {
		return err
	}
	defer raw.Close()

	colored := fusion.Colorize(raw, pair.DepthScale, c.cfg.DepthMaxMeters)
	defer colored.Close()

	f, err := frame.FromMat(frame.KindDepth, colored, pair.Seq, pair.Timestamp)
	if err != nil {
		return err
	}
	c.relays[frame.KindDepth].Publish(f)
	return nil
}

// Run ticks at the configured rate until ctx is done, then hides every
// surface and stops the stream.
func (c *Controller) Run(ctx context.Context) error {
	rate := c.cfg.TickRate
	if rate <= 0 {
		rate = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	c.logger.Info("perception loop started", "tick_rate", rate)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("perception loop stopped", "ticks", c.ticks.Load())
			return nil
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("tick failed", "error", err)
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	loops := c.surfaces
	c.surfaces = make(map[frame.Kind]*surfaceLoop)
	c.mu.Unlock()

	for _, l := range loops {
		l.cancel()
		<-l.done
	}
	if err := c.StopStream(); err != nil {
		c.logger.Error("stop on shutdown failed", "error", err)
	}
}

// renderLoop presents the newest frame of kind at the render rate.
func (c *Controller) renderLoop(ctx context.Context, kind frame.Kind, loop *surfaceLoop) {
	defer close(loop.done)

	rate := c.cfg.RenderRate
	if rate <= 0 {
		rate = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	r := c.relays[kind]
	for {
		f, err := r.Consume(ctx)
		if err != nil {
			return
		}
		if err := loop.surface.Present(f); err != nil {
			c.logger.Debug("present failed", "kind", kind, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) recordError(err error) {
	c.errCount.Add(1)
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.logger.Error("pipeline error", "error", err)
}
