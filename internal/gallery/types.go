package gallery

import (
	"errors"
	"math"
	"time"
)

// TemplateDim is the fixed dimension for face templates (512 for FaceNet/ArcFace-class models).
const TemplateDim = 512

// NormTolerance is the accepted deviation from unit length for a stored template.
const NormTolerance = 1e-5

// ErrZeroVector is returned when a template cannot be normalized.
var ErrZeroVector = errors.New("template vector has zero norm")

// Template is a fixed-length face embedding, L2-normalized at creation.
// Templates are immutable once stored: they are only ever added to an
// identity or removed together with it.
type Template []float32

// NewTemplate copies vec and normalizes it to unit L2 norm.
func NewTemplate(vec []float32) (Template, error) {
	if len(vec) == 0 {
		return nil, ErrZeroVector
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, ErrZeroVector
	}

	t := make(Template, len(vec))
	for i, v := range vec {
		t[i] = float32(float64(v) / norm)
	}
	return t, nil
}

// Norm returns the L2 norm of the template.
func (t Template) Norm() float64 {
	var sum float64
	for _, v := range t {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Dot returns the dot product with another template.
// For unit-norm templates this equals cosine similarity.
func (t Template) Dot(other Template) float64 {
	if len(t) != len(other) {
		return 0
	}
	var sum float64
	for i := range t {
		sum += float64(t[i]) * float64(other[i])
	}
	return sum
}

// Clone returns an independent copy of the template.
func (t Template) Clone() Template {
	c := make(Template, len(t))
	copy(c, t)
	return c
}

// Metadata describes a registered identity.
type Metadata struct {
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Department   string    `json:"department,omitempty"`
	Year         int       `json:"year,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	SampleCount  int       `json:"sample_count"`
}

// IdentityRecord is the load/save unit exchanged with a persistent gallery store.
type IdentityRecord struct {
	ID        string
	Templates []Template
	Meta      Metadata
}
