// Package config loads the go-rsdnn configuration file and applies
// environment overrides on top of it.
//
// Priority (highest to lowest): CLI flags > Environment variables > Config file > Defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/detection"
	"github.com/teslashibe/go-rsdnn/pkg/perception"
	"github.com/teslashibe/go-rsdnn/pkg/ui"
	"github.com/teslashibe/go-rsdnn/pkg/web"
)

// DefaultPath is the config file read when RSDNN_CONFIG is unset.
const DefaultPath = "rsdnn.json"

// Environment variables.
const (
	EnvConfig        = "RSDNN_CONFIG"
	EnvLogLevel      = "RSDNN_LOG_LEVEL"
	EnvWebPort       = "RSDNN_WEB_PORT"
	EnvModelDir      = "RSDNN_MODEL_DIR"
	EnvCameraBackend = "RSDNN_CAMERA_BACKEND"
)

// Config is the root configuration file structure.
type Config struct {
	Camera   camera.Config     `json:"camera"`
	Detector detection.Config  `json:"detector"`
	Display  perception.Config `json:"display"`
	Web      web.Config        `json:"web"`
	UI       ui.Config         `json:"ui"`
	LogLevel string            `json:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Camera:   camera.DefaultConfig(),
		Detector: detection.DefaultConfig(),
		Display:  perception.DefaultConfig(),
		Web:      web.DefaultConfig(),
		UI:       ui.DefaultConfig(),
		LogLevel: "info",
	}
}

// Path returns the config file path from RSDNN_CONFIG or the default.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults and applies environment overrides.
// A missing file at the default path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		// Defaults only
	case err != nil:
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.syncStreams()
	return cfg, nil
}

// ApplyEnv applies RSDNN_* environment overrides.
func (c *Config) ApplyEnv() {
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.LogLevel = lvl
	}
	if port := os.Getenv(EnvWebPort); port != "" {
		c.Web.Port = port
	}
	if dir := os.Getenv(EnvModelDir); dir != "" {
		c.Detector = c.Detector.WithModelDir(dir)
	}
	if backend := os.Getenv(EnvCameraBackend); backend != "" {
		c.Camera.Backend = camera.Backend(strings.ToLower(backend))
	}
}

// syncStreams makes the camera section authoritative for the stream requests
// and the detector threshold authoritative for annotation.
func (c *Config) syncStreams() {
	c.Display.Color = c.Camera.Color
	c.Display.Depth = c.Camera.Depth
	c.Display.Threshold = c.Detector.ConfidenceThresh
}

// Finalize re-applies the cross-section rules after flags changed the config.
func (c *Config) Finalize() {
	c.syncStreams()
}

// Validate checks every section.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string
	for _, e := range c.Camera.Validate() {
		errs = append(errs, "camera: "+e)
	}
	for _, e := range c.Detector.Validate() {
		errs = append(errs, "detector: "+e)
	}
	for _, e := range c.Display.Validate() {
		errs = append(errs, "display: "+e)
	}
	for _, e := range c.Web.Validate() {
		errs = append(errs, "web: "+e)
	}
	for _, e := range c.UI.Validate() {
		errs = append(errs, "ui: "+e)
	}
	return errs
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
