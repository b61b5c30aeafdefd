package config

import (
	"fmt"
	"sync"
)

// Tuning holds the knobs an operator can change at runtime through the
// config API. Readers take an immutable snapshot per frame, so a change
// never applies mid-frame.
type Tuning struct {
	mu   sync.RWMutex
	snap TuningSnapshot
}

// TuningSnapshot is a consistent view of all tunable values.
type TuningSnapshot struct {
	RecognitionThreshold float64 `json:"recognition_threshold"`
	QualityThreshold     float64 `json:"quality_threshold"`
	FrameSkip            int     `json:"frame_skip"`
	MinFaceSize          int     `json:"min_face_size"`
}

// NewTuning creates a runtime tuning store seeded from boot-time defaults.
func NewTuning(defaults TuningDefaults) *Tuning {
	return &Tuning{
		snap: TuningSnapshot{
			RecognitionThreshold: defaults.RecognitionThreshold,
			QualityThreshold:     defaults.QualityThreshold,
			FrameSkip:            defaults.FrameSkip,
			MinFaceSize:          defaults.MinFaceSize,
		},
	}
}

// Snapshot returns the current values as one consistent unit.
func (t *Tuning) Snapshot() TuningSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Update validates and applies a full set of tunable values.
func (t *Tuning) Update(next TuningSnapshot) error {
	if err := next.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.snap = next
	t.mu.Unlock()
	return nil
}

// Validate rejects values outside their operational range.
func (s TuningSnapshot) Validate() error {
	if s.RecognitionThreshold <= 0 || s.RecognitionThreshold > 1 {
		return fmt.Errorf("recognition_threshold must be in (0, 1], got %v", s.RecognitionThreshold)
	}
	if s.QualityThreshold <= 0 || s.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be in (0, 1], got %v", s.QualityThreshold)
	}
	if s.FrameSkip < 1 {
		return fmt.Errorf("frame_skip must be at least 1, got %d", s.FrameSkip)
	}
	if s.MinFaceSize < 1 {
		return fmt.Errorf("min_face_size must be at least 1, got %d", s.MinFaceSize)
	}
	return nil
}
