package fusion

import "gocv.io/x/gocv"

// DefaultMaxMeters is the range mapped to the top of the depth colormap.
const DefaultMaxMeters = 6.0

// Colorize renders raw depth (CV_16UC1) as an RGB jet heat map. Depth
// beyond maxMeters saturates; missing depth (zero) is drawn black.
func Colorize(raw gocv.Mat, scale float32, maxMeters float64) gocv.Mat {
	if maxMeters <= 0 {
		maxMeters = DefaultMaxMeters
	}

	alpha := 255.0 * float64(scale) / maxMeters

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.ConvertScaleAbs(raw, &scaled, alpha, 0)

	jet := gocv.NewMat()
	defer jet.Close()
	gocv.ApplyColorMap(scaled, &jet, gocv.ColormapJet)

	missing := gocv.NewMat()
	defer missing.Close()
	gocv.InRangeWithScalar(raw, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(0, 0, 0, 0), &missing)

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), jet.Rows(), jet.Cols(), jet.Type())
	defer black.Close()
	black.CopyToWithMask(&jet, missing)

	rgb := gocv.NewMat()
	gocv.CvtColor(jet, &rgb, gocv.ColorBGRToRGB)
	return rgb
}
