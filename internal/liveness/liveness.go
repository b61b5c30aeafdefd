// Package liveness provides a heuristic real-vs-spoof signal for a detected
// face. It is advisory, not a security control: callers decide whether a
// spoof suspicion blocks an attendance mark or is merely logged.
package liveness

import (
	"image"
)

// Check names as reported in Report.Checks.
const (
	CheckTexture = "texture"
	CheckDepth   = "depth_consistency"
	CheckColor   = "color_distribution"
)

// Default floors, calibrated against printed-photo and screen-replay spoofs.
const (
	// DefaultTextureFloor is the minimum Laplacian variance of a live
	// face crop; prints and screens are flatter.
	DefaultTextureFloor = 20.0

	// DefaultDepthFloor is the minimum variance of landmark z coordinates;
	// a 2D spoof surface has near-zero depth spread.
	DefaultDepthFloor = 0.001

	// minDepthPoints is how many landmark depths are needed before the
	// depth check is attempted at all.
	minDepthPoints = 4
)

// Report is the outcome of a liveness evaluation for one face in one frame.
type Report struct {
	IsReal     bool            `json:"is_real"`
	Confidence float64         `json:"confidence"`
	Checks     map[string]bool `json:"checks"`
}

// Checker evaluates spoof heuristics over a face crop.
type Checker struct {
	TextureFloor float64
	DepthFloor   float64
}

// NewChecker creates a checker with the default floors.
func NewChecker() *Checker {
	return &Checker{
		TextureFloor: DefaultTextureFloor,
		DepthFloor:   DefaultDepthFloor,
	}
}

// Check evaluates the face crop. landmarkDepths carries the z coordinates of
// detected facial landmarks; when the detector provides none, the depth
// check is omitted from the score entirely rather than counted as failed.
// A sub-check that cannot be computed counts as failed, never as an error.
func (c *Checker) Check(crop image.Image, landmarkDepths []float64) Report {
	checks := make(map[string]bool, 3)

	checks[CheckTexture] = textureVariance(crop) > c.TextureFloor

	if len(landmarkDepths) >= minDepthPoints {
		checks[CheckDepth] = variance(landmarkDepths) > c.DepthFloor
	}

	checks[CheckColor] = colorDistributionSane(crop)

	failed := 0
	for _, ok := range checks {
		if !ok {
			failed++
		}
	}

	confidence := 1.0 - float64(failed)/float64(len(checks))
	return Report{
		IsReal:     confidence > 0.5,
		Confidence: confidence,
		Checks:     checks,
	}
}

// textureVariance is the Laplacian variance of the grayscale crop. Printed
// photos and screens lose the fine skin texture of a live face.
func textureVariance(img image.Image) float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	var sum, sumSq float64
	count := 0
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			lap := 4*grayValue(img, x, y) -
				grayValue(img, x-1, y) - grayValue(img, x+1, y) -
				grayValue(img, x, y-1) - grayValue(img, x, y+1)
			sum += lap
			sumSq += lap * lap
			count++
		}
	}
	if count == 0 {
		return 0
	}

	mean := sum / float64(count)
	return sumSq/float64(count) - mean*mean
}

// colorDistributionSane guards against degenerate input: a real camera crop
// of a face spreads its color mass over many histogram bins, while blank or
// synthetic fills concentrate in one.
func colorDistributionSane(img image.Image) bool {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return false
	}

	// 8x8x8 RGB histogram, 5-bit shift per channel.
	var hist [512]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			idx := (r>>13)<<6 | (g>>13)<<3 | b>>13
			hist[idx]++
		}
	}

	occupied := 0
	for _, h := range hist {
		if h > 0 {
			occupied++
		}
	}
	return occupied > 1
}

// grayValue returns the grayscale value (0-255) for a pixel.
func grayValue(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

// variance computes the population variance of values.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}

// DepthSpread is a helper for detectors that report landmark positions as
// (x, y, z) triples: it extracts the z column for Check.
func DepthSpread(landmarks [][3]float64) []float64 {
	if len(landmarks) == 0 {
		return nil
	}
	depths := make([]float64, len(landmarks))
	for i, lm := range landmarks {
		depths[i] = lm[2]
	}
	return depths
}
