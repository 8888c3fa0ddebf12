// rsdnn - RealSense depth camera with MobileNet-SSD object detection.
// Shows annotated color and colorized depth streams in a desktop window
// and over HTTP.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/teslashibe/go-rsdnn/internal/config"
	"github.com/teslashibe/go-rsdnn/internal/log"
	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/detection"
	"github.com/teslashibe/go-rsdnn/pkg/frame"
	"github.com/teslashibe/go-rsdnn/pkg/perception"
	"github.com/teslashibe/go-rsdnn/pkg/ui"
	"github.com/teslashibe/go-rsdnn/pkg/web"
)

type options struct {
	configPath string
	headless   bool
	stream     bool
	detect     bool
	saveConfig string
}

func main() {
	cfg, opts := parseFlags()

	log.Init(cfg.LogLevel)
	logger := log.L()

	driver, err := camera.NewDriver(cfg.Camera, log.Component("camera"))
	if err != nil {
		stdlog.Fatalf("❌ Camera backend: %v", err)
	}

	// The model is loaded once; the application cannot run without it
	detector, err := detection.NewSSD(cfg.Detector)
	if err != nil {
		stdlog.Fatalf("❌ %v", err)
	}
	defer detector.Close()

	source := camera.NewSource(driver, cfg.Detector.AspectRatio(), logger)
	ctrl := perception.New(source, detector, cfg.Display, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Run(ctx); err != nil {
			logger.Error("perception loop stopped", "error", err)
		}
	}()

	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(ctrl, cfg.Web, logger)
		server.StartAsync(ctx)
		if opts.stream {
			for _, kind := range frame.Kinds {
				if err := ctrl.ShowSurface(kind, server.Surface(kind)); err != nil {
					logger.Error("stream start failed", "kind", kind, "error", err)
					break
				}
			}
		}
	}

	if opts.detect {
		if err := ctrl.SetDetection(true); err != nil {
			logger.Warn("detection not enabled", "error", err)
		}
	}

	logger.Info("rsdnn started",
		"backend", driver.Name(),
		"headless", opts.headless,
		"web", cfg.Web.Enabled,
		"model", cfg.Detector.Model,
	)

	if opts.headless {
		<-ctx.Done()
	} else {
		ui.New(fyneapp.New(), ctrl, cfg.UI, logger).Run(ctx)
		cancel()
	}

	<-done
	if server != nil {
		if err := server.Shutdown(); err != nil {
			logger.Warn("web shutdown", "error", err)
		}
	}
	logger.Info("rsdnn stopped")
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() (config.Config, options) {
	var opts options

	flag.StringVar(&opts.configPath, "config", config.Path(), "Config file (JSON)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	backend := flag.String("backend", "", "Camera backend: auto, realsense, mock")
	modelDir := flag.String("model-dir", "", "Directory holding the MobileNet-SSD prototxt and caffemodel")
	port := flag.String("port", "", "Web server port")
	noWeb := flag.Bool("no-web", false, "Disable the web server")
	threshold := flag.Float64("threshold", 0, "Detection confidence threshold (0-1)")
	preset := flag.String("preset", "", "Stream preset: "+strings.Join(camera.PresetNames(), ", "))
	flag.BoolVar(&opts.headless, "headless", false, "Run without the desktop window")
	flag.BoolVar(&opts.stream, "stream", false, "Start streaming to the web surfaces at boot")
	flag.BoolVar(&opts.detect, "detect", false, "Enable detection at boot (requires -stream)")
	flag.StringVar(&opts.saveConfig, "save-config", "", "Write the effective config to this path and exit")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	// CLI flags have highest priority
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *backend != "" {
		cfg.Camera.Backend = camera.Backend(*backend)
	}
	if *modelDir != "" {
		cfg.Detector = cfg.Detector.WithModelDir(*modelDir)
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	if *threshold > 0 {
		cfg.Detector.ConfidenceThresh = *threshold
	}
	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			stdlog.Fatalf("❌ Unknown preset %q", *preset)
		}
		cfg.Camera.Color, cfg.Camera.Depth = p.Color, p.Depth
	}
	cfg.Finalize()

	if errs := cfg.Validate(); len(errs) > 0 {
		stdlog.Fatalf("❌ Configuration error: %s", strings.Join(errs, "; "))
	}

	if opts.saveConfig != "" {
		if err := config.Save(opts.saveConfig, cfg); err != nil {
			stdlog.Fatalf("❌ Save config: %v", err)
		}
		stdlog.Printf("✅ Config written to %s", opts.saveConfig)
		os.Exit(0)
	}

	return cfg, opts
}
