package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ModelLoadError is returned when the network cannot be loaded.
type ModelLoadError struct {
	Prototxt string
	Model    string
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("detection: load model %s / %s: %v", e.Prototxt, e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// errEmptyNet is reported when OpenCV returns an empty network.
var errEmptyNet = errors.New("network is empty after loading")

// rowSize is the number of floats per SSD output row:
// [image_id, class_id, confidence, xmin, ymin, xmax, ymax].
const rowSize = 7

// SSDDetector runs MobileNet-SSD through the OpenCV DNN module.
type SSDDetector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
	mean      gocv.Scalar
}

// NewSSD loads the Caffe network described by cfg.
func NewSSD(cfg Config) (*SSDDetector, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ModelLoadError{Prototxt: cfg.Prototxt, Model: cfg.Model, Err: fmt.Errorf("invalid config: %v", errs)}
	}

	for _, path := range []string{cfg.Prototxt, cfg.Model} {
		if _, err := os.Stat(path); err != nil {
			return nil, &ModelLoadError{Prototxt: cfg.Prototxt, Model: cfg.Model, Err: err}
		}
	}

	net := gocv.ReadNetFromCaffe(cfg.Prototxt, cfg.Model)
	if net.Empty() {
		return nil, &ModelLoadError{Prototxt: cfg.Prototxt, Model: cfg.Model, Err: errEmptyNet}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &SSDDetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		mean:      gocv.NewScalar(cfg.Mean, cfg.Mean, cfg.Mean, 0),
	}, nil
}

// Config returns the detector configuration.
func (d *SSDDetector) Config() Config {
	return d.config
}

// Detect implements Detector. Coordinates are normalized to img.
func (d *SSDDetector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Channels stay in BGR order, which is what the Caffe model expects.
	blob := gocv.BlobFromImage(img, d.config.ScaleFactor, d.inputSize, d.mean, false, false)
	defer blob.Close()

	d.net.SetInput(blob, d.config.InputName)

	output := d.net.Forward(d.config.OutputName)
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read detector output: %w", err)
	}

	return decodeRows(data), nil
}

// decodeRows converts the flat [1,1,N,7] output into detections.
func decodeRows(data []float32) []Detection {
	n := len(data) / rowSize
	dets := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		row := data[i*rowSize : (i+1)*rowSize]
		dets = append(dets, Detection{
			ClassID:    int(row[1]),
			Confidence: float64(row[2]),
			XMin:       float64(row[3]),
			YMin:       float64(row[4]),
			XMax:       float64(row[5]),
			YMax:       float64(row[6]),
		})
	}
	return dets
}

// Close releases the detector resources
func (d *SSDDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}
