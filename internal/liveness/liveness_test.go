package liveness

import (
	"image"
	"math/rand"
	"testing"
)

func flatCrop(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func texturedCrop(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func TestCheck_TexturedCropWithDepthPassesAll(t *testing.T) {
	c := NewChecker()
	depths := []float64{0.01, 0.12, -0.05, 0.08, -0.11, 0.02}

	r := c.Check(texturedCrop(100, 100, 1), depths)

	if !r.IsReal {
		t.Errorf("IsReal = false, want true (checks: %v)", r.Checks)
	}
	if r.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", r.Confidence)
	}
	if len(r.Checks) != 3 {
		t.Errorf("attempted %d checks, want 3", len(r.Checks))
	}
}

func TestCheck_FlatCropFailsTexture(t *testing.T) {
	c := NewChecker()
	r := c.Check(flatCrop(100, 100, 128), nil)

	if r.Checks[CheckTexture] {
		t.Error("flat crop must fail the texture check")
	}
}

func TestCheck_DepthOmittedWithoutLandmarks(t *testing.T) {
	c := NewChecker()

	tests := []struct {
		name   string
		depths []float64
	}{
		{name: "nil depths", depths: nil},
		{name: "too few points", depths: []float64{0.1, 0.2, 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Check(texturedCrop(64, 64, 2), tt.depths)
			if _, attempted := r.Checks[CheckDepth]; attempted {
				t.Error("depth check must be omitted, not attempted, without enough landmarks")
			}
			if len(r.Checks) != 2 {
				t.Errorf("attempted %d checks, want 2", len(r.Checks))
			}
			// Omission must not penalize confidence: 2/2 passed is 1.0.
			if r.Confidence != 1.0 {
				t.Errorf("Confidence = %v, want 1.0 when skipped check is out of the denominator", r.Confidence)
			}
		})
	}
}

func TestCheck_FlatDepthFlagsSpoof(t *testing.T) {
	c := NewChecker()
	// A photo held up to the camera: good texture is possible but landmark
	// depths collapse to a plane.
	flatDepths := []float64{0.0001, 0.0001, 0.0002, 0.0001, 0.0002}

	r := c.Check(texturedCrop(64, 64, 3), flatDepths)
	if r.Checks[CheckDepth] {
		t.Error("near-zero depth variance must fail the depth check")
	}
}

func TestCheck_DegenerateInputFailsClosed(t *testing.T) {
	c := NewChecker()
	r := c.Check(image.NewGray(image.Rect(0, 0, 0, 0)), nil)

	if r.IsReal {
		t.Error("empty crop must not be classified as real")
	}
	if r.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", r.Confidence)
	}
}

func TestCheck_MajorityDecides(t *testing.T) {
	c := NewChecker()
	// Textured crop, flat depths: texture+color pass, depth fails -> 2/3.
	r := c.Check(texturedCrop(64, 64, 4), []float64{0, 0, 0, 0})

	if !r.IsReal {
		t.Errorf("2 of 3 checks passing should classify as real, got confidence %v", r.Confidence)
	}
	want := 1.0 - 1.0/3.0
	if r.Confidence < want-1e-9 || r.Confidence > want+1e-9 {
		t.Errorf("Confidence = %v, want %v", r.Confidence, want)
	}
}

func TestDepthSpread(t *testing.T) {
	landmarks := [][3]float64{{1, 2, 0.5}, {3, 4, -0.25}}
	depths := DepthSpread(landmarks)

	if len(depths) != 2 || depths[0] != 0.5 || depths[1] != -0.25 {
		t.Errorf("DepthSpread = %v, want [0.5 -0.25]", depths)
	}
	if DepthSpread(nil) != nil {
		t.Error("DepthSpread(nil) should be nil")
	}
}
