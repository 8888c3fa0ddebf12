package camera

import "image"

// ROI is the centered crop of the color frame that matches the detector's
// aspect ratio, plus the two strips that flank it.
type ROI struct {
	// Frame is the negotiated color resolution the ROI was computed for.
	Frame image.Point `json:"frame"`

	// Rect is the region handed to the detector.
	Rect image.Rectangle `json:"rect"`

	// Left and Right are the strips strictly left and right of Rect.
	// Both are empty when Rect spans the full width.
	Left  image.Rectangle `json:"left"`
	Right image.Rectangle `json:"right"`
}

// ComputeROI returns the largest centered rectangle within res whose
// width/height equals whRatio.
func ComputeROI(res image.Point, whRatio float64) ROI {
	if res.X <= 0 || res.Y <= 0 || whRatio <= 0 {
		return ROI{Frame: res}
	}

	var crop image.Point
	if float64(res.X)/float64(res.Y) > whRatio {
		crop = image.Pt(int(float64(res.Y)*whRatio), res.Y)
	} else {
		crop = image.Pt(res.X, int(float64(res.X)/whRatio))
	}

	tl := image.Pt((res.X-crop.X)/2, (res.Y-crop.Y)/2)
	rect := image.Rectangle{Min: tl, Max: tl.Add(crop)}

	return ROI{
		Frame: res,
		Rect:  rect,
		Left:  image.Rect(0, rect.Min.Y, rect.Min.X, rect.Max.Y),
		Right: image.Rect(rect.Max.X, rect.Min.Y, res.X, rect.Max.Y),
	}
}

// Empty reports whether the ROI has no area.
func (r ROI) Empty() bool {
	return r.Rect.Empty()
}

// Sides returns the non-empty side regions.
func (r ROI) Sides() []image.Rectangle {
	var sides []image.Rectangle
	for _, s := range []image.Rectangle{r.Left, r.Right} {
		if !s.Empty() {
			sides = append(sides, s)
		}
	}
	return sides
}
