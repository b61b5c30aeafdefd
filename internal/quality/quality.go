// Package quality scores a detected face crop for usability before any
// embedding work is spent on it. All subscores live in [0,1]; the overall
// score is their arithmetic mean. Assessment never fails: degenerate input
// simply scores low.
package quality

import (
	"image"
	"math"
)

// Calibration constants, tuned for detector crops around 160px.
const (
	// sharpnessScale divides the variance of the Laplacian into [0,1].
	sharpnessScale = 500.0

	// minUsablePx is the face edge length considered fully usable.
	minUsablePx = 160.0

	// idealEyeRatio is the interocular-distance / face-width ratio of a
	// frontal face.
	idealEyeRatio = 0.3

	// neutralFrontal is assumed when no landmarks are available.
	neutralFrontal = 0.8

	// maxEntropyBits caps the grayscale histogram entropy (8-bit image).
	maxEntropyBits = 8.0
)

// Report holds the per-face quality subscores and their mean.
type Report struct {
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Resolution float64 `json:"resolution"`
	Frontal    float64 `json:"frontal"`
	Overall    float64 `json:"overall"`
}

// Assess scores a face crop without landmark information; the frontal
// subscore falls back to a neutral constant.
func Assess(crop image.Image) Report {
	return assess(crop, neutralFrontal)
}

// AssessWithEyes scores a face crop using detected eye centers to judge how
// frontal the face is.
func AssessWithEyes(crop image.Image, leftEye, rightEye image.Point) Report {
	width := crop.Bounds().Dx()
	frontal := neutralFrontal
	if width > 0 {
		dx := float64(rightEye.X - leftEye.X)
		dy := float64(rightEye.Y - leftEye.Y)
		ratio := math.Hypot(dx, dy) / float64(width)
		frontal = clamp01(1 - math.Abs(ratio-idealEyeRatio)/idealEyeRatio)
	}
	return assess(crop, frontal)
}

func assess(crop image.Image, frontal float64) Report {
	bounds := crop.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Report{}
	}

	gray := toGrayscale(crop)

	r := Report{
		Sharpness:  clamp01(laplacianVariance(gray) / sharpnessScale),
		Brightness: clamp01(1 - math.Abs(meanOf(gray)-127.5)/127.5),
		Contrast:   clamp01(histogramEntropy(gray) / maxEntropyBits),
		Resolution: clamp01(float64(min(width, height)) / minUsablePx),
		Frontal:    frontal,
	}
	r.Overall = (r.Sharpness + r.Brightness + r.Contrast + r.Resolution + r.Frontal) / 5
	return r
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := 0; x < width; x++ {
		gray[x] = make([]float64, height)
		for y := 0; y < height; y++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// laplacianVariance measures focus: the variance of the 4-neighbor
// Laplacian response. Flat or blurred crops score near zero.
func laplacianVariance(gray [][]float64) float64 {
	width := len(gray)
	if width < 3 {
		return 0
	}
	height := len(gray[0])
	if height < 3 {
		return 0
	}

	var sum, sumSq float64
	count := 0
	for x := 1; x < width-1; x++ {
		for y := 1; y < height-1; y++ {
			lap := 4*gray[x][y] - gray[x-1][y] - gray[x+1][y] - gray[x][y-1] - gray[x][y+1]
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

// meanOf returns the mean grayscale intensity.
func meanOf(gray [][]float64) float64 {
	var sum float64
	count := 0
	for _, col := range gray {
		for _, v := range col {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// histogramEntropy computes the Shannon entropy (bits) of the grayscale
// histogram. Low-contrast crops concentrate mass in few bins and score low.
func histogramEntropy(gray [][]float64) float64 {
	var hist [256]float64
	count := 0
	for _, col := range gray {
		for _, v := range col {
			idx := int(v)
			if idx < 0 {
				idx = 0
			} else if idx > 255 {
				idx = 255
			}
			hist[idx]++
			count++
		}
	}
	if count == 0 {
		return 0
	}

	var entropy float64
	for _, h := range hist {
		if h == 0 {
			continue
		}
		p := h / float64(count)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
