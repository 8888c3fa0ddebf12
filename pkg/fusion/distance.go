// Package fusion combines detections with aligned depth: it estimates the
// distance to each detected object, draws boxes and labels onto the color
// frame and renders the depth stream for display.
package fusion

import (
	"fmt"
	"image"
	"runtime"

	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/detection"
	"gocv.io/x/gocv"
)

// Distance is the estimated range to a detected object.
type Distance struct {
	Meters float64 `json:"meters"`
	Valid  bool    `json:"valid"`
}

func (d Distance) String() string {
	if !d.Valid {
		return "over range"
	}
	return fmt.Sprintf("%.1f meters away", d.Meters)
}

// Label formats the on-image label for a detection.
func Label(className string, d Distance) string {
	return fmt.Sprintf("<%s> : %s", className, d)
}

// ClipBox maps a normalized detection to pixels of a w x h image and
// intersects it with the image bounds. Boxes outside the image and inverted
// boxes clip to the empty rectangle.
func ClipBox(det detection.Detection, w, h int) image.Rectangle {
	return det.Rect(w, h).Intersect(image.Rect(0, 0, w, h))
}

// EstimateDistance returns the mean of the nonzero samples of depthMeters
// (CV_64FC1, meters) inside box. The estimate is invalid when box is empty
// or holds no nonzero sample. box must lie within depthMeters.
func EstimateDistance(depthMeters gocv.Mat, box image.Rectangle) Distance {
	if box.Empty() || depthMeters.Empty() {
		return Distance{}
	}

	region := depthMeters.Region(box)
	defer region.Close()

	count := gocv.CountNonZero(region)
	if count == 0 {
		return Distance{}
	}

	sum := region.Sum().Val1
	return Distance{Meters: sum / float64(count), Valid: true}
}

// ColorMat copies the pair's RGB pixels into a new BGR Mat.
func ColorMat(p *camera.FramePair) (gocv.Mat, error) {
	rgb, err := gocv.NewMatFromBytes(p.Height, p.Width, gocv.MatTypeCV8UC3, p.Color)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("wrap color frame: %w", err)
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	runtime.KeepAlive(p.Color)
	return bgr, nil
}

// RawDepthMat copies the pair's Z16 samples into a new CV_16UC1 Mat.
func RawDepthMat(p *camera.FramePair) (gocv.Mat, error) {
	wrapped, err := gocv.NewMatFromBytes(p.Height, p.Width, gocv.MatTypeCV16UC1, p.Depth)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("wrap depth frame: %w", err)
	}
	defer wrapped.Close()

	raw := wrapped.Clone()
	runtime.KeepAlive(p.Depth)
	return raw, nil
}

// DepthToMeters converts raw depth units to meters (CV_64FC1).
func DepthToMeters(raw gocv.Mat, scale float32) gocv.Mat {
	meters := gocv.NewMat()
	raw.ConvertToWithParams(&meters, gocv.MatTypeCV64F, scale, 0)
	return meters
}
