// Package detection runs a MobileNet-SSD object detector on camera frames
package detection

import (
	"fmt"
	"image"
	"path/filepath"

	"gocv.io/x/gocv"
)

// Detection is one raw detector output row. Coordinates are normalized to
// the image passed to Detect and are not guaranteed to lie in [0,1] or to be
// ordered.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	XMin       float64 `json:"xmin"`
	YMin       float64 `json:"ymin"`
	XMax       float64 `json:"xmax"`
	YMax       float64 `json:"ymax"`
}

// ClassName returns the VOC label for the detection.
func (d Detection) ClassName() string {
	return ClassName(d.ClassID)
}

// Rect maps the box to pixels of a w x h image. The result is not
// canonicalized: an inverted box keeps Min > Max so that it intersects to
// nothing.
func (d Detection) Rect(w, h int) image.Rectangle {
	return image.Rectangle{
		Min: image.Pt(int(d.XMin*float64(w)), int(d.YMin*float64(h))),
		Max: image.Pt(int(d.XMax*float64(w)), int(d.YMax*float64(h))),
	}
}

// Detector is the interface for detection backends
type Detector interface {
	// Detect runs one forward pass over img (8-bit BGR) and returns every
	// output row, unfiltered.
	Detect(img gocv.Mat) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	Prototxt         string  `json:"prototxt"`          // Caffe network definition
	Model            string  `json:"model"`             // Caffe weights
	InputWidth       int     `json:"input_width"`       // Network input width
	InputHeight      int     `json:"input_height"`      // Network input height
	ScaleFactor      float64 `json:"scale_factor"`      // Pixel scale applied after mean subtraction
	Mean             float64 `json:"mean"`              // Mean subtracted from every channel
	ConfidenceThresh float64 `json:"confidence_thresh"` // Minimum confidence kept by Filter
	InputName        string  `json:"input_name"`        // Input blob name
	OutputName       string  `json:"output_name"`       // Output layer name
}

// Model file names as distributed with MobileNet-SSD.
const (
	PrototxtFile = "MobileNetSSD_deploy.prototxt"
	ModelFile    = "MobileNetSSD_deploy.caffemodel"
)

// DefaultConfig returns production defaults for MobileNet-SSD. Both model
// files are read from the working directory.
func DefaultConfig() Config {
	return Config{
		Prototxt:         PrototxtFile,
		Model:            ModelFile,
		InputWidth:       300,
		InputHeight:      300,
		ScaleFactor:      0.007843,
		Mean:             127.5,
		ConfidenceThresh: 0.8,
		InputName:        "data",
		OutputName:       "detection_out",
	}
}

// WithModelDir returns a copy of cfg with both model files under dir.
func (c Config) WithModelDir(dir string) Config {
	c.Prototxt = filepath.Join(dir, PrototxtFile)
	c.Model = filepath.Join(dir, ModelFile)
	return c
}

// AspectRatio is the network input width/height.
func (c Config) AspectRatio() float64 {
	if c.InputHeight == 0 {
		return 0
	}
	return float64(c.InputWidth) / float64(c.InputHeight)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Prototxt == "" {
		errors = append(errors, "prototxt path is required")
	}
	if c.Model == "" {
		errors = append(errors, "model path is required")
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		errors = append(errors, fmt.Sprintf("input size must be positive, got %dx%d", c.InputWidth, c.InputHeight))
	}
	if c.ScaleFactor <= 0 {
		errors = append(errors, "scale_factor must be positive")
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		errors = append(errors, "confidence_thresh must be between 0 and 1")
	}
	if c.OutputName == "" {
		errors = append(errors, "output_name is required")
	}

	return errors
}

// Filter returns the detections whose confidence is at least thresh.
func Filter(dets []Detection, thresh float64) []Detection {
	var kept []Detection
	for _, d := range dets {
		if d.Confidence >= thresh {
			kept = append(kept, d)
		}
	}
	return kept
}
