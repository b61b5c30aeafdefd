package pipeline

import (
	"image"
	"time"

	"github.com/krivanek/rollcall/internal/liveness"
	"github.com/krivanek/rollcall/internal/quality"
)

// Outcome classifies what happened to one detected face.
type Outcome string

const (
	// OutcomeMatched means the face was recognized as a gallery identity.
	OutcomeMatched Outcome = "matched"
	// OutcomeUnknown means the face passed the quality gate but matched nobody.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeLowQuality means the face was rejected before matching.
	OutcomeLowQuality Outcome = "low_quality"
	// OutcomeSkipped means template extraction failed for this face.
	OutcomeSkipped Outcome = "skipped"
)

// FaceResult is the pipeline's judgment for one detected face in one frame.
// Liveness is nil when the check was not evaluated (unmatched faces).
type FaceResult struct {
	Outcome    Outcome          `json:"outcome"`
	IdentityID string           `json:"identity_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Confidence float64          `json:"confidence"`
	Quality    quality.Report   `json:"quality"`
	Liveness   *liveness.Report `json:"liveness,omitempty"`
	BBox       image.Rectangle  `json:"-"`
	DetScore   float64          `json:"det_score"`
}

// Live reports whether the face may drive attendance marking.
func (r FaceResult) Live() bool {
	return r.Liveness != nil && r.Liveness.IsReal
}

// Frame is one decoded raster image with its capture time. Capture
// timestamps are expected to be monotonically non-decreasing.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
	Seq        uint64
}
