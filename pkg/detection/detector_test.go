package detection

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestDetection_Rect(t *testing.T) {
	tests := []struct {
		name string
		det  Detection
		w, h int
		want image.Rectangle
	}{
		{
			name: "centered box",
			det:  Detection{XMin: 0.25, YMin: 0.25, XMax: 0.75, YMax: 0.75},
			w:    1080, h: 1080,
			want: image.Rect(270, 270, 810, 810),
		},
		{
			name: "full image",
			det:  Detection{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
			w:    300, h: 200,
			want: image.Rect(0, 0, 300, 200),
		},
		{
			name: "out of range coordinates pass through",
			det:  Detection{XMin: -0.1, YMin: 0.5, XMax: 1.2, YMax: 1.0},
			w:    100, h: 100,
			want: image.Rectangle{Min: image.Pt(-10, 50), Max: image.Pt(120, 100)},
		},
		{
			name: "inverted box stays inverted",
			det:  Detection{XMin: 0.8, YMin: 0.8, XMax: 0.2, YMax: 0.2},
			w:    100, h: 100,
			want: image.Rectangle{Min: image.Pt(80, 80), Max: image.Pt(20, 20)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.det.Rect(tc.w, tc.h)
			if got != tc.want {
				t.Errorf("Rect: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	dets := []Detection{
		{ClassID: 15, Confidence: 0.95},
		{ClassID: 8, Confidence: 0.8},
		{ClassID: 12, Confidence: 0.79},
		{ClassID: 7, Confidence: 0.1},
	}

	kept := Filter(dets, 0.8)
	if len(kept) != 2 {
		t.Fatalf("Filter kept %d, want 2", len(kept))
	}
	if kept[0].ClassID != 15 || kept[1].ClassID != 8 {
		t.Errorf("Filter kept classes %d and %d, want 15 and 8", kept[0].ClassID, kept[1].ClassID)
	}

	if got := Filter(nil, 0.8); len(got) != 0 {
		t.Errorf("Filter(nil) = %v", got)
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{0, "background"},
		{1, "aeroplane"},
		{8, "cat"},
		{15, "person"},
		{20, "tvmonitor"},
		{21, "class21"},
		{-1, "class-1"},
	}

	for _, tc := range tests {
		if got := ClassName(tc.id); got != tc.want {
			t.Errorf("ClassName(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}

	if len(VOCClasses) != 21 {
		t.Errorf("VOCClasses has %d entries, want 21", len(VOCClasses))
	}
}

func TestDecodeRows(t *testing.T) {
	data := []float32{
		0, 15, 0.97, 0.1, 0.2, 0.3, 0.4,
		0, 8, 0.30, 0.5, 0.5, 0.6, 0.6,
		0, 3, // trailing partial row is ignored
	}

	dets := decodeRows(data)
	if len(dets) != 2 {
		t.Fatalf("decoded %d rows, want 2", len(dets))
	}
	if dets[0].ClassID != 15 || dets[0].ClassName() != "person" {
		t.Errorf("row 0 class = %d (%s)", dets[0].ClassID, dets[0].ClassName())
	}
	if d := dets[0].Confidence - 0.97; d < -1e-6 || d > 1e-6 {
		t.Errorf("row 0 confidence = %v", dets[0].Confidence)
	}
	if d := dets[1].XMax - 0.6; d < -1e-6 || d > 1e-6 {
		t.Errorf("row 1 xmax = %v", dets[1].XMax)
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.AspectRatio() != 1.0 {
		t.Errorf("AspectRatio = %v, want 1", cfg.AspectRatio())
	}
	if cfg.Prototxt != PrototxtFile || cfg.Model != ModelFile {
		t.Errorf("default model paths = %q, %q, want the working directory", cfg.Prototxt, cfg.Model)
	}

	moved := cfg.WithModelDir("/opt/models")
	if moved.Prototxt != "/opt/models/MobileNetSSD_deploy.prototxt" {
		t.Errorf("Prototxt = %q", moved.Prototxt)
	}
	if cfg.Prototxt == moved.Prototxt {
		t.Error("WithModelDir modified the receiver")
	}

	bad := cfg
	bad.ConfidenceThresh = 1.5
	bad.InputWidth = 0
	if errs := bad.Validate(); len(errs) != 2 {
		t.Errorf("Validate returned %d errors, want 2: %v", len(errs), errs)
	}
}

// TestNewSSDInvalidPath tests error handling for missing model
func TestNewSSDInvalidPath(t *testing.T) {
	cfg := DefaultConfig().WithModelDir("/nonexistent/path")

	_, err := NewSSD(cfg)
	if err == nil {
		t.Fatal("Expected error for invalid model path")
	}

	var mle *ModelLoadError
	if !errors.As(err, &mle) {
		t.Fatalf("error %v is not a ModelLoadError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v does not wrap os.ErrNotExist", err)
	}
}

// TestSSDDetect runs the real network when the model files are present.
func TestSSDDetect(t *testing.T) {
	dir := findModelDir()
	if dir == "" {
		t.Skip("MobileNet-SSD model not found, skipping test")
	}

	detector, err := NewSSD(DefaultConfig().WithModelDir(dir))
	if err != nil {
		t.Fatalf("NewSSD failed: %v", err)
	}
	defer detector.Close()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 480, 480, gocv.MatTypeCV8UC3)
	defer img.Close()

	dets, err := detector.Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	// A flat gray image should not produce confident detections
	if kept := Filter(dets, 0.8); len(kept) != 0 {
		t.Errorf("unexpected detections on blank image: %+v", kept)
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := detector.Detect(empty); err == nil {
		t.Error("Expected error for empty image")
	}
}

func findModelDir() string {
	if dir := os.Getenv("RSDNN_MODEL_DIR"); dir != "" {
		if _, err := os.Stat(filepath.Join(dir, ModelFile)); err == nil {
			return dir
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		// Walk up to find models directory
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, "models")
			if _, err := os.Stat(filepath.Join(candidate, ModelFile)); err == nil {
				return candidate
			}
		}
	}
	return ""
}
