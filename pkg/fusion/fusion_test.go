package fusion

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/detection"
	"gocv.io/x/gocv"
)

const testScale float32 = 0.001

// testPair builds a w x h pair with a uniform color and depth from depthAt.
func testPair(w, h int, depthAt func(x, y int) uint16) camera.FramePair {
	return camera.SolidFrame(1, image.Pt(w, h), testScale, func(x, y int) (uint8, uint8, uint8, uint16) {
		return 10, 200, 30, depthAt(x, y)
	})
}

func metersMat(t *testing.T, p *camera.FramePair) gocv.Mat {
	t.Helper()
	raw, err := RawDepthMat(p)
	require.NoError(t, err)
	defer raw.Close()
	return DepthToMeters(raw, p.DepthScale)
}

func rgbAt(m gocv.Mat, x, y int) [3]uint8 {
	v := m.GetVecbAt(y, x)
	return [3]uint8{v[0], v[1], v[2]}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		dist Distance
		want string
	}{
		{"valid", Distance{Meters: 2.34, Valid: true}, "<person> : 2.3 meters away"},
		{"rounds up", Distance{Meters: 0.96, Valid: true}, "<person> : 1.0 meters away"},
		{"invalid", Distance{}, "<person> : over range"},
		{"invalid ignores meters", Distance{Meters: 3}, "<person> : over range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label("person", tt.dist))
		})
	}
}

func TestClipBox(t *testing.T) {
	tests := []struct {
		name string
		det  detection.Detection
		want image.Rectangle
	}{
		{"inside", detection.Detection{XMin: 0.1, YMin: 0.2, XMax: 0.5, YMax: 0.6}, image.Rect(10, 20, 50, 60)},
		{"overhanging", detection.Detection{XMin: -0.2, YMin: 0.9, XMax: 1.3, YMax: 1.5}, image.Rect(0, 90, 100, 100)},
		{"outside", detection.Detection{XMin: 1.1, YMin: 1.1, XMax: 1.5, YMax: 1.5}, image.Rectangle{}},
		{"inverted", detection.Detection{XMin: 0.8, YMin: 0.8, XMax: 0.2, YMax: 0.2}, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClipBox(tt.det, 100, 100)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Min.X, 0)
			assert.GreaterOrEqual(t, got.Min.Y, 0)
		})
	}
}

func TestLabelOrigin(t *testing.T) {
	size := image.Pt(100, 20)
	bounds := image.Pt(640, 480)

	tests := []struct {
		name string
		box  image.Rectangle
		want image.Point
	}{
		{"centered above box", image.Rect(200, 100, 400, 300), image.Pt(250, 100)},
		{"left edge", image.Rect(0, 100, 40, 300), image.Pt(0, 100)},
		{"right edge", image.Rect(600, 100, 640, 300), image.Pt(540, 100)},
		{"top edge", image.Rect(200, 5, 400, 300), image.Pt(250, 20)},
		{"top left corner", image.Rect(0, 0, 20, 20), image.Pt(0, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labelOrigin(tt.box, size, bounds)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.X, 0)
			assert.LessOrEqual(t, got.X+size.X, bounds.X)
		})
	}

	// Wider than the image: pinned to the left edge
	assert.Equal(t, 0, labelOrigin(image.Rect(10, 50, 20, 60), image.Pt(800, 20), bounds).X)
}

func TestEstimateDistance(t *testing.T) {
	// Left half zero, right half alternating 2 m and 3 m
	pair := testPair(100, 100, func(x, y int) uint16 {
		switch {
		case x < 50:
			return 0
		case x%2 == 0:
			return 2000
		default:
			return 3000
		}
	})
	meters := metersMat(t, &pair)
	defer meters.Close()

	t.Run("mean of nonzero samples", func(t *testing.T) {
		d := EstimateDistance(meters, image.Rect(20, 0, 80, 100))
		require.True(t, d.Valid)
		assert.InDelta(t, 2.5, d.Meters, 1e-6)
	})

	t.Run("all zero is over range", func(t *testing.T) {
		d := EstimateDistance(meters, image.Rect(0, 0, 50, 100))
		assert.False(t, d.Valid)
		assert.Equal(t, "over range", d.String())
	})

	t.Run("empty box is over range", func(t *testing.T) {
		d := EstimateDistance(meters, image.Rectangle{})
		assert.False(t, d.Valid)
	})
}

func TestDepthToMeters(t *testing.T) {
	pair := testPair(4, 2, func(x, y int) uint16 { return uint16(1000 * (x + 1)) })
	meters := metersMat(t, &pair)
	defer meters.Close()

	assert.Equal(t, gocv.MatTypeCV64F, meters.Type())
	assert.InDelta(t, 1.0, meters.GetDoubleAt(0, 0), 1e-6)
	assert.InDelta(t, 4.0, meters.GetDoubleAt(1, 3), 1e-6)
}

func TestAnnotate_PersonWithDepth(t *testing.T) {
	pair := testPair(200, 100, func(x, y int) uint16 { return 2340 })
	roi := camera.ComputeROI(image.Pt(200, 100), 1.0)
	require.Equal(t, image.Rect(50, 0, 150, 100), roi.Rect)

	img, err := ColorMat(&pair)
	require.NoError(t, err)
	defer img.Close()
	meters := metersMat(t, &pair)
	defer meters.Close()

	dets := []detection.Detection{
		{ClassID: 15, Confidence: 0.85, XMin: 0.5, YMin: 0.5, XMax: 0.9, YMax: 0.9},
	}

	anns := NewAnnotator(0.8).Annotate(&img, meters, roi, dets)
	require.Len(t, anns, 1)

	a := anns[0]
	assert.Equal(t, "person", a.ClassName)
	assert.Equal(t, image.Rect(50, 50, 90, 90), a.Box)
	assert.True(t, a.Distance.Valid)
	assert.InDelta(t, 2.34, a.Distance.Meters, 1e-6)
	assert.Equal(t, "<person> : 2.3 meters away", a.Label)

	// Output is in RGB order: outline is green, untouched ROI keeps its color
	assert.Equal(t, [3]uint8{0, 255, 0}, rgbAt(img, 50+50, 70))
	assert.Equal(t, [3]uint8{10, 200, 30}, rgbAt(img, 50+2, 98))

	// Side regions are grayscale
	for _, p := range []image.Point{{10, 50}, {190, 10}} {
		px := rgbAt(img, p.X, p.Y)
		assert.Equal(t, px[0], px[1], "side pixel %v not gray: %v", p, px)
		assert.Equal(t, px[1], px[2], "side pixel %v not gray: %v", p, px)
		assert.NotEqual(t, uint8(10), px[0])
	}
}

func TestAnnotate_ZeroDepthIsOverRange(t *testing.T) {
	pair := testPair(200, 100, func(x, y int) uint16 { return 0 })
	roi := camera.ComputeROI(image.Pt(200, 100), 1.0)

	img, err := ColorMat(&pair)
	require.NoError(t, err)
	defer img.Close()
	meters := metersMat(t, &pair)
	defer meters.Close()

	dets := []detection.Detection{
		{ClassID: 15, Confidence: 0.85, XMin: 0.2, YMin: 0.2, XMax: 0.6, YMax: 0.6},
		// Inverted box intersects to nothing
		{ClassID: 8, Confidence: 0.9, XMin: 0.7, YMin: 0.7, XMax: 0.3, YMax: 0.3},
	}

	anns := NewAnnotator(0.8).Annotate(&img, meters, roi, dets)
	require.Len(t, anns, 2)
	assert.Equal(t, "<person> : over range", anns[0].Label)
	assert.False(t, anns[0].Distance.Valid)
	assert.Equal(t, "<cat> : over range", anns[1].Label)
	assert.True(t, anns[1].Box.Empty())
}

func TestAnnotate_BelowThresholdNotDrawn(t *testing.T) {
	pair := testPair(200, 100, func(x, y int) uint16 { return 1500 })
	roi := camera.ComputeROI(image.Pt(200, 100), 1.0)

	img, err := ColorMat(&pair)
	require.NoError(t, err)
	defer img.Close()
	meters := metersMat(t, &pair)
	defer meters.Close()

	dets := []detection.Detection{
		{ClassID: 12, Confidence: 0.79, XMin: 0.1, YMin: 0.1, XMax: 0.9, YMax: 0.9},
	}

	anns := NewAnnotator(0.8).Annotate(&img, meters, roi, dets)
	assert.Empty(t, anns)

	for y := 0; y < 100; y += 7 {
		for x := roi.Rect.Min.X; x < roi.Rect.Max.X; x += 7 {
			require.Equal(t, [3]uint8{10, 200, 30}, rgbAt(img, x, y), "pixel (%d,%d) changed", x, y)
		}
	}
}

func TestAnnotate_DepthUntouched(t *testing.T) {
	pair := testPair(200, 100, func(x, y int) uint16 { return 1200 })
	roi := camera.ComputeROI(image.Pt(200, 100), 1.0)

	img, err := ColorMat(&pair)
	require.NoError(t, err)
	defer img.Close()
	meters := metersMat(t, &pair)
	defer meters.Close()

	before := meters.Sum().Val1
	NewAnnotator(0.8).Annotate(&img, meters, roi, []detection.Detection{
		{ClassID: 7, Confidence: 0.99, XMin: 0, YMin: 0, XMax: 1, YMax: 1},
	})
	assert.False(t, math.Abs(before-meters.Sum().Val1) > 1e-9, "depth was modified")
}

func TestColorize(t *testing.T) {
	pair := testPair(8, 4, func(x, y int) uint16 {
		if x < 4 {
			return 0
		}
		return 3000
	})
	raw, err := RawDepthMat(&pair)
	require.NoError(t, err)
	defer raw.Close()

	rgb := Colorize(raw, pair.DepthScale, 6.0)
	defer rgb.Close()

	assert.Equal(t, gocv.MatTypeCV8UC3, rgb.Type())
	assert.Equal(t, 8, rgb.Cols())
	assert.Equal(t, 4, rgb.Rows())
	assert.Equal(t, [3]uint8{0, 0, 0}, rgbAt(rgb, 1, 1))
	assert.NotEqual(t, [3]uint8{0, 0, 0}, rgbAt(rgb, 6, 2))
}
