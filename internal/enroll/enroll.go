// Package enroll implements identity registration: a set of sample images
// is turned into quality-gated templates, persisted atomically, and added
// to the live gallery.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/krivanek/rollcall/internal/embedding"
	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/pipeline"
	"github.com/krivanek/rollcall/internal/quality"
)

var (
	ErrNoFace        = errors.New("no face detected in sample")
	ErrMultipleFaces = errors.New("more than one face in sample")
	ErrLowQuality    = errors.New("sample below quality threshold")
)

// ModelClient is the face model surface enrollment needs.
type ModelClient interface {
	DetectFaces(ctx context.Context, frame image.Image) ([]embedding.Detection, error)
	ExtractTemplate(ctx context.Context, crop image.Image) (gallery.Template, error)
}

// Store persists accepted identities.
type Store interface {
	SaveIdentity(ctx context.Context, rec gallery.IdentityRecord) error
}

// Enroller registers identities from sample images.
type Enroller struct {
	client  ModelClient
	store   Store
	gallery *gallery.Gallery

	QualityThreshold float64
	MinSamples       int
	MaxSamples       int
}

// New creates an enroller with the given sample policy.
func New(client ModelClient, store Store, g *gallery.Gallery, qualityThreshold float64, minSamples, maxSamples int) *Enroller {
	return &Enroller{
		client:           client,
		store:            store,
		gallery:          g,
		QualityThreshold: qualityThreshold,
		MinSamples:       minSamples,
		MaxSamples:       maxSamples,
	}
}

// Enroll registers one identity from its sample images. Samples that fail
// detection or the quality gate are skipped with a log line; enrollment
// fails when fewer than MinSamples survive. The identity is persisted
// before it becomes visible in the live gallery, so a storage failure
// never leaves a recognizable but unsaved identity.
func (e *Enroller) Enroll(ctx context.Context, id string, meta gallery.Metadata, samples []image.Image) (gallery.IdentityRecord, error) {
	if id == "" {
		return gallery.IdentityRecord{}, errors.New("identity id is required")
	}
	if len(samples) == 0 {
		return gallery.IdentityRecord{}, errors.New("at least one sample image is required")
	}

	var templates []gallery.Template
	for i, sample := range samples {
		if len(templates) >= e.MaxSamples {
			log.Printf("enroll %s: sample limit %d reached, ignoring the rest", id, e.MaxSamples)
			break
		}

		tmpl, err := e.templateFromSample(ctx, sample)
		if err != nil {
			log.Printf("enroll %s: skipping sample %d: %v", id, i, err)
			continue
		}
		templates = append(templates, tmpl)
	}

	if len(templates) < e.MinSamples {
		return gallery.IdentityRecord{}, fmt.Errorf("only %d of %d samples usable, need at least %d", len(templates), len(samples), e.MinSamples)
	}

	if meta.RegisteredAt.IsZero() {
		meta.RegisteredAt = time.Now().UTC()
	}
	meta.SampleCount = len(templates)

	rec := gallery.IdentityRecord{ID: id, Templates: templates, Meta: meta}
	if err := e.store.SaveIdentity(ctx, rec); err != nil {
		return gallery.IdentityRecord{}, fmt.Errorf("persisting identity %s: %w", id, err)
	}

	for _, tmpl := range templates {
		if err := e.gallery.Add(id, tmpl, meta); err != nil {
			return gallery.IdentityRecord{}, fmt.Errorf("adding identity %s to gallery: %w", id, err)
		}
	}
	return rec, nil
}

// templateFromSample validates one sample and extracts its template.
// Exactly one face must be present and it must pass the quality gate.
func (e *Enroller) templateFromSample(ctx context.Context, sample image.Image) (gallery.Template, error) {
	detections, err := e.client.DetectFaces(ctx, sample)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	switch {
	case len(detections) == 0:
		return nil, ErrNoFace
	case len(detections) > 1:
		return nil, fmt.Errorf("%w (%d faces)", ErrMultipleFaces, len(detections))
	}

	rect := pipeline.BBoxRect(detections[0].BBox, sample.Bounds())
	if rect.Empty() {
		return nil, ErrNoFace
	}
	crop := pipeline.CropFace(sample, rect)

	report := assessSample(crop, detections[0], rect)
	if report.Overall < e.QualityThreshold {
		return nil, fmt.Errorf("%w (overall %.2f)", ErrLowQuality, report.Overall)
	}

	return e.client.ExtractTemplate(ctx, pipeline.ScaleCrop(crop))
}

func assessSample(crop image.Image, det embedding.Detection, rect image.Rectangle) quality.Report {
	left, lok := det.LeftEye()
	right, rok := det.RightEye()
	if lok && rok {
		// Landmarks are in sample coordinates, the assessor works on the crop.
		return quality.AssessWithEyes(crop, left.Sub(rect.Min), right.Sub(rect.Min))
	}
	return quality.Assess(crop)
}
