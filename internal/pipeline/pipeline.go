// Package pipeline composes detection, quality gating, template
// extraction, matching and liveness into per-frame judgments.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
	"sync/atomic"

	"github.com/krivanek/rollcall/internal/config"
	"github.com/krivanek/rollcall/internal/embedding"
	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/liveness"
	"github.com/krivanek/rollcall/internal/match"
	"github.com/krivanek/rollcall/internal/quality"
)

// Detector finds faces in a whole frame.
type Detector interface {
	DetectFaces(ctx context.Context, frame image.Image) ([]embedding.Detection, error)
}

// Extractor maps a face crop to a unit-norm template.
type Extractor interface {
	ExtractTemplate(ctx context.Context, crop image.Image) (gallery.Template, error)
}

// FaceMatcher scores a probe template against the gallery.
type FaceMatcher interface {
	Match(probe gallery.Template, g *gallery.Gallery, threshold float64) match.Result
}

// Pipeline turns frames into per-face recognition judgments.
type Pipeline struct {
	detector  Detector
	extractor Extractor
	matcher   FaceMatcher
	gallery   *gallery.Gallery
	checker   *liveness.Checker
	tuning    *config.Tuning

	frames atomic.Uint64
}

// New wires the pipeline stages together.
func New(detector Detector, extractor Extractor, matcher FaceMatcher, g *gallery.Gallery, checker *liveness.Checker, tuning *config.Tuning) *Pipeline {
	return &Pipeline{
		detector:  detector,
		extractor: extractor,
		matcher:   matcher,
		gallery:   g,
		checker:   checker,
		tuning:    tuning,
	}
}

// Process runs the full stage chain on one frame and returns one result per
// detected face, ordered left to right by bounding box. Skipped frames
// return an empty sequence; callers must not assume every frame yields
// results.
//
// Per-face failures (low quality, failed extraction) are reported in the
// result or logged and skipped, never returned as errors. Only detector
// failures propagate.
func (p *Pipeline) Process(ctx context.Context, frame Frame) ([]FaceResult, error) {
	tuning := p.tuning.Snapshot()

	seq := p.frames.Add(1)
	if tuning.FrameSkip > 1 && seq%uint64(tuning.FrameSkip) != 0 {
		return nil, nil
	}

	detections, err := p.detector.DetectFaces(ctx, frame.Image)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	if len(detections) == 0 {
		return nil, nil
	}

	// Left-to-right ordering keeps output deterministic for a fixed frame.
	sort.SliceStable(detections, func(i, j int) bool {
		if len(detections[i].BBox) < 4 || len(detections[j].BBox) < 4 {
			return false
		}
		return detections[i].BBox[0] < detections[j].BBox[0]
	})

	bounds := frame.Image.Bounds()
	results := make([]FaceResult, 0, len(detections))
	for _, det := range detections {
		rect := BBoxRect(det.BBox, bounds)
		if rect.Dx() < tuning.MinFaceSize || rect.Dy() < tuning.MinFaceSize {
			continue
		}

		crop := CropFace(frame.Image, rect)
		result := FaceResult{BBox: rect, DetScore: det.Score}

		result.Quality = p.assessQuality(crop, det, rect)
		if result.Quality.Overall < tuning.QualityThreshold {
			result.Outcome = OutcomeLowQuality
			results = append(results, result)
			continue
		}

		tmpl, err := p.extractor.ExtractTemplate(ctx, ScaleCrop(crop))
		if err != nil {
			var extractionErr *embedding.ExtractionError
			if errors.As(err, &extractionErr) || errors.Is(err, context.Canceled) {
				log.Printf("pipeline: skipping face at %v: %v", rect, err)
				result.Outcome = OutcomeSkipped
				results = append(results, result)
				continue
			}
			return nil, fmt.Errorf("extracting template: %w", err)
		}

		m := p.matcher.Match(tmpl, p.gallery, tuning.RecognitionThreshold)
		result.Confidence = m.Confidence
		if !m.Known() {
			result.Outcome = OutcomeUnknown
			results = append(results, result)
			continue
		}

		result.Outcome = OutcomeMatched
		result.IdentityID = m.IdentityID
		result.Name = m.Name

		// Liveness is only worth computing for faces that can drive
		// attendance marking.
		report := p.checker.Check(crop, liveness.DepthSpread(det.Landmarks))
		result.Liveness = &report

		results = append(results, result)
	}

	return results, nil
}

// assessQuality scores the crop, using eye landmarks for the frontal
// subscore when the detector provided them.
func (p *Pipeline) assessQuality(crop image.Image, det embedding.Detection, rect image.Rectangle) quality.Report {
	left, lok := det.LeftEye()
	right, rok := det.RightEye()
	if lok && rok {
		// Landmarks arrive in frame coordinates, the assessor works on the crop.
		return quality.AssessWithEyes(crop, left.Sub(rect.Min), right.Sub(rect.Min))
	}
	return quality.Assess(crop)
}
