package fusion

import (
	"image"
	"image/color"

	"github.com/teslashibe/go-rsdnn/pkg/camera"
	"github.com/teslashibe/go-rsdnn/pkg/detection"
	"gocv.io/x/gocv"
)

// Annotation is one detection fused with depth, as drawn on the frame.
type Annotation struct {
	Detection detection.Detection `json:"detection"`
	ClassName string              `json:"class"`

	// Box is the clipped pixel box relative to the ROI.
	Box      image.Rectangle `json:"box"`
	Distance Distance        `json:"distance"`
	Label    string          `json:"label"`
}

// Style controls how annotations are drawn. Colors are given as RGB.
type Style struct {
	BoxColor       color.RGBA
	LabelColor     color.RGBA
	TextColor      color.RGBA
	Font           gocv.HersheyFont
	FontScale      float64
	TextThickness  int
	BoxThickness   int
	GraySideRegion bool
}

// DefaultStyle returns a green outline with a light green label and black text.
func DefaultStyle() Style {
	return Style{
		BoxColor:       color.RGBA{R: 0, G: 255, B: 0, A: 0},
		LabelColor:     color.RGBA{R: 128, G: 255, B: 128, A: 0},
		TextColor:      color.RGBA{R: 0, G: 0, B: 0, A: 0},
		Font:           gocv.FontHersheyComplex,
		FontScale:      0.6,
		TextThickness:  2,
		BoxThickness:   1,
		GraySideRegion: true,
	}
}

// Annotator draws detections and their distances onto color frames.
type Annotator struct {
	Threshold float64
	Style     Style
}

// NewAnnotator creates an annotator that ignores detections below threshold.
func NewAnnotator(threshold float64) *Annotator {
	return &Annotator{Threshold: threshold, Style: DefaultStyle()}
}

// Annotate draws every detection at or above the threshold into the ROI of
// img, then converts img from BGR to RGB and grays out the side regions.
// img is the full BGR color frame, depthMeters the full aligned depth in
// meters. Detection coordinates are relative to the ROI.
func (a *Annotator) Annotate(img *gocv.Mat, depthMeters gocv.Mat, roi camera.ROI, dets []detection.Detection) []Annotation {
	var annotations []Annotation

	if !roi.Empty() {
		colorROI := img.Region(roi.Rect)
		depthROI := depthMeters.Region(roi.Rect)

		for _, det := range dets {
			if det.Confidence < a.Threshold {
				continue
			}

			box := ClipBox(det, depthROI.Cols(), depthROI.Rows())
			dist := EstimateDistance(depthROI, box)
			name := det.ClassName()
			text := Label(name, dist)

			drawn := box
			if drawn.Empty() {
				drawn = det.Rect(colorROI.Cols(), colorROI.Rows()).Canon()
			}
			a.draw(&colorROI, drawn, text)

			annotations = append(annotations, Annotation{
				Detection: det,
				ClassName: name,
				Box:       box,
				Distance:  dist,
				Label:     text,
			})
		}

		depthROI.Close()
		colorROI.Close()
	}

	gocv.CvtColor(*img, img, gocv.ColorBGRToRGB)

	if a.Style.GraySideRegion {
		for _, side := range roi.Sides() {
			graySide(img, side)
		}
	}

	return annotations
}

// draw renders the outline and a filled label centered above it.
func (a *Annotator) draw(img *gocv.Mat, box image.Rectangle, text string) {
	s := a.Style
	gocv.Rectangle(img, box, s.BoxColor, s.BoxThickness)

	size, baseline := gocv.GetTextSizeWithBaseline(text, s.Font, s.FontScale, s.TextThickness)
	org := labelOrigin(box, size, image.Pt(img.Cols(), img.Rows()))

	bg := image.Rect(org.X, org.Y-size.Y, org.X+size.X, org.Y+baseline)
	gocv.Rectangle(img, bg, s.LabelColor, -1)
	gocv.PutText(img, text, org, s.Font, s.FontScale, s.TextColor, s.TextThickness)
}

// labelOrigin returns the text baseline origin for a label of the given size,
// centered above box and kept inside an image of size bounds.
func labelOrigin(box image.Rectangle, size, bounds image.Point) image.Point {
	org := image.Pt((box.Min.X+box.Max.X)/2-size.X/2, box.Min.Y)
	if org.X > bounds.X-size.X {
		org.X = bounds.X - size.X
	}
	if org.X < 0 {
		org.X = 0
	}
	if org.Y-size.Y < 0 {
		org.Y = size.Y
	}
	return org
}

// graySide replaces a region of an RGB image with its luminance.
func graySide(img *gocv.Mat, side image.Rectangle) {
	region := img.Region(side)
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()

	gocv.CvtColor(region, &gray, gocv.ColorRGBToGray)
	gocv.CvtColor(gray, &region, gocv.ColorGrayToRGB)
}
