package quality

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
)

// flatImage returns a uniform gray image.
func flatImage(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// noisyImage returns an image with high-frequency random detail.
func noisyImage(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func TestAssess_EmptyImage(t *testing.T) {
	r := Assess(image.NewGray(image.Rect(0, 0, 0, 0)))
	if r.Overall != 0 {
		t.Errorf("Overall = %v, want 0 for empty image", r.Overall)
	}
}

func TestAssess_ScoresInRange(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
	}{
		{name: "flat dark", img: flatImage(64, 64, 10)},
		{name: "flat mid", img: flatImage(64, 64, 128)},
		{name: "flat bright", img: flatImage(64, 64, 250)},
		{name: "noisy", img: noisyImage(200, 200, 1)},
		{name: "single pixel", img: flatImage(1, 1, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Assess(tt.img)
			for name, v := range map[string]float64{
				"sharpness":  r.Sharpness,
				"brightness": r.Brightness,
				"contrast":   r.Contrast,
				"resolution": r.Resolution,
				"frontal":    r.Frontal,
				"overall":    r.Overall,
			} {
				if v < 0 || v > 1 {
					t.Errorf("%s = %v, want [0,1]", name, v)
				}
			}
		})
	}
}

func TestAssess_SharpnessOrdersFlatBelowNoisy(t *testing.T) {
	flat := Assess(flatImage(100, 100, 128))
	noisy := Assess(noisyImage(100, 100, 7))

	if flat.Sharpness >= noisy.Sharpness {
		t.Errorf("flat sharpness %v should be below noisy sharpness %v", flat.Sharpness, noisy.Sharpness)
	}
	if flat.Contrast >= noisy.Contrast {
		t.Errorf("flat contrast %v should be below noisy contrast %v", flat.Contrast, noisy.Contrast)
	}
}

func TestAssess_BrightnessPeaksAtMidGray(t *testing.T) {
	dark := Assess(flatImage(64, 64, 0))
	mid := Assess(flatImage(64, 64, 128))
	bright := Assess(flatImage(64, 64, 255))

	if mid.Brightness <= dark.Brightness || mid.Brightness <= bright.Brightness {
		t.Errorf("mid-gray brightness %v should beat dark %v and bright %v",
			mid.Brightness, dark.Brightness, bright.Brightness)
	}
	if math.Abs(mid.Brightness-1.0) > 0.01 {
		t.Errorf("mid-gray brightness = %v, want ~1.0", mid.Brightness)
	}
}

func TestAssess_ResolutionScaling(t *testing.T) {
	small := Assess(flatImage(40, 40, 128))
	large := Assess(flatImage(320, 320, 128))

	if small.Resolution >= large.Resolution {
		t.Errorf("small crop resolution %v should be below large crop %v", small.Resolution, large.Resolution)
	}
	if large.Resolution != 1.0 {
		t.Errorf("resolution above the usable size should clamp to 1.0, got %v", large.Resolution)
	}
	want := 40.0 / 160.0
	if math.Abs(small.Resolution-want) > 1e-9 {
		t.Errorf("small resolution = %v, want %v", small.Resolution, want)
	}
}

func TestAssess_NeutralFrontalWithoutLandmarks(t *testing.T) {
	r := Assess(flatImage(64, 64, 128))
	if r.Frontal != 0.8 {
		t.Errorf("Frontal = %v, want neutral 0.8 without landmarks", r.Frontal)
	}
}

func TestAssessWithEyes_FrontalRatio(t *testing.T) {
	img := flatImage(100, 100, 128)

	// Interocular distance 30px over width 100 is the ideal 0.3 ratio.
	ideal := AssessWithEyes(img, image.Pt(35, 40), image.Pt(65, 40))
	if math.Abs(ideal.Frontal-1.0) > 1e-9 {
		t.Errorf("ideal ratio frontal = %v, want 1.0", ideal.Frontal)
	}

	// Profile view: eyes appear close together.
	narrow := AssessWithEyes(img, image.Pt(45, 40), image.Pt(55, 40))
	if narrow.Frontal >= ideal.Frontal {
		t.Errorf("narrow eye spacing frontal %v should be below ideal %v", narrow.Frontal, ideal.Frontal)
	}
}

func TestAssess_OverallIsMean(t *testing.T) {
	r := Assess(noisyImage(160, 160, 3))
	want := (r.Sharpness + r.Brightness + r.Contrast + r.Resolution + r.Frontal) / 5
	if math.Abs(r.Overall-want) > 1e-9 {
		t.Errorf("Overall = %v, want mean of subscores %v", r.Overall, want)
	}
}

func TestAssess_ColorImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}

	r := Assess(img)
	if r.Overall <= 0 {
		t.Error("gradient color image should not score zero overall")
	}
}
