package enroll

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/krivanek/rollcall/internal/embedding"
	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/store/mock"
)

type fakeClient struct {
	perCall  [][]embedding.Detection
	call     int
	template gallery.Template
}

func (c *fakeClient) DetectFaces(_ context.Context, _ image.Image) ([]embedding.Detection, error) {
	dets := c.perCall[c.call%len(c.perCall)]
	c.call++
	return dets, nil
}

func (c *fakeClient) ExtractTemplate(_ context.Context, _ image.Image) (gallery.Template, error) {
	return c.template.Clone(), nil
}

func oneFace() []embedding.Detection {
	return []embedding.Detection{{BBox: []float64{10, 10, 150, 150}, Score: 0.97}}
}

func twoFaces() []embedding.Detection {
	return []embedding.Detection{
		{BBox: []float64{10, 10, 150, 150}, Score: 0.97},
		{BBox: []float64{160, 10, 300, 150}, Score: 0.94},
	}
}

func noisySample() image.Image {
	rng := rand.New(rand.NewSource(3))
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func flatSample() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	return img
}

func testTemplate(t *testing.T) gallery.Template {
	t.Helper()
	vec := make([]float32, 16)
	vec[0] = 1
	tmpl, err := gallery.NewTemplate(vec)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	return tmpl
}

func newEnroller(t *testing.T, client *fakeClient) (*Enroller, *mock.GalleryStore, *gallery.Gallery) {
	t.Helper()
	store := mock.NewGalleryStore()
	g := gallery.New()
	return New(client, store, g, 0.3, 3, 7), store, g
}

func samples(n int, img image.Image) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = img
	}
	return out
}

func TestEnroll(t *testing.T) {
	client := &fakeClient{perCall: [][]embedding.Detection{oneFace()}, template: testTemplate(t)}
	enroller, store, g := newEnroller(t, client)

	rec, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{Name: "Jana"}, samples(3, noisySample()))
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if len(rec.Templates) != 3 || rec.Meta.SampleCount != 3 {
		t.Errorf("expected 3 templates, got %d (sample count %d)", len(rec.Templates), rec.Meta.SampleCount)
	}
	if rec.Meta.RegisteredAt.IsZero() {
		t.Error("RegisteredAt should be stamped")
	}

	stored, err := store.Load(context.Background())
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected 1 persisted identity, got %d (err=%v)", len(stored), err)
	}
	if g.Count() != 1 || len(g.TemplatesOf("s1")) != 3 {
		t.Errorf("gallery not updated: count=%d templates=%d", g.Count(), len(g.TemplatesOf("s1")))
	}
}

func TestEnrollSkipsBadSamples(t *testing.T) {
	client := &fakeClient{
		perCall: [][]embedding.Detection{
			oneFace(),
			nil,        // no face
			twoFaces(), // ambiguous
			oneFace(),
			oneFace(),
		},
		template: testTemplate(t),
	}
	enroller, _, g := newEnroller(t, client)

	rec, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{Name: "Jana"}, samples(5, noisySample()))
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if len(rec.Templates) != 3 {
		t.Errorf("expected 3 usable templates out of 5 samples, got %d", len(rec.Templates))
	}
	if len(g.TemplatesOf("s1")) != 3 {
		t.Errorf("gallery should hold the 3 usable templates, got %d", len(g.TemplatesOf("s1")))
	}
}

func TestEnrollLowQualityRejected(t *testing.T) {
	client := &fakeClient{perCall: [][]embedding.Detection{oneFace()}, template: testTemplate(t)}
	store := mock.NewGalleryStore()
	g := gallery.New()
	enroller := New(client, store, g, 0.6, 3, 7)

	_, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{Name: "Jana"}, samples(3, flatSample()))
	if err == nil {
		t.Fatal("expected enrollment to fail on uniformly low-quality samples")
	}
	if g.Count() != 0 {
		t.Error("failed enrollment must not touch the gallery")
	}
}

func TestEnrollTooFewSamples(t *testing.T) {
	client := &fakeClient{perCall: [][]embedding.Detection{oneFace()}, template: testTemplate(t)}
	enroller, store, g := newEnroller(t, client)

	_, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{Name: "Jana"}, samples(2, noisySample()))
	if err == nil {
		t.Fatal("expected error with fewer than MinSamples usable samples")
	}

	stored, _ := store.Load(context.Background())
	if len(stored) != 0 || g.Count() != 0 {
		t.Error("failed enrollment must persist nothing")
	}
}

func TestEnrollCapsAtMaxSamples(t *testing.T) {
	client := &fakeClient{perCall: [][]embedding.Detection{oneFace()}, template: testTemplate(t)}
	enroller, _, _ := newEnroller(t, client)

	rec, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{Name: "Jana"}, samples(9, noisySample()))
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if len(rec.Templates) != 7 {
		t.Errorf("expected template count capped at 7, got %d", len(rec.Templates))
	}
}

func TestEnrollStoreFailure(t *testing.T) {
	client := &fakeClient{perCall: [][]embedding.Detection{oneFace()}, template: testTemplate(t)}
	enroller, store, g := newEnroller(t, client)
	store.SaveError = errors.New("disk full")

	_, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{Name: "Jana"}, samples(3, noisySample()))
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	if g.Count() != 0 {
		t.Error("identity must not enter the gallery when persistence failed")
	}
}

func TestEnrollValidation(t *testing.T) {
	client := &fakeClient{perCall: [][]embedding.Detection{oneFace()}, template: testTemplate(t)}
	enroller, _, _ := newEnroller(t, client)

	if _, err := enroller.Enroll(context.Background(), "", gallery.Metadata{}, samples(3, noisySample())); err == nil {
		t.Error("expected error for empty identity id")
	}
	if _, err := enroller.Enroll(context.Background(), "s1", gallery.Metadata{}, nil); err == nil {
		t.Error("expected error for empty sample set")
	}
}
