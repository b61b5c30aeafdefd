// Package match decides which registered identity, if any, a probe template
// belongs to. Each identity holds several templates captured under varied
// pose and lighting; the matcher aggregates similarity across them instead
// of trusting any single sample.
package match

import (
	"sort"

	"github.com/krivanek/rollcall/internal/gallery"
)

// DefaultTopK is the number of best per-identity similarities averaged into
// the ensemble score. Averaging only the top-k suppresses a single poor
// registration sample while still rewarding multi-angle consensus.
const DefaultTopK = 3

// Result is the identity part of a recognition judgment.
// IdentityID is empty for an Unknown probe.
type Result struct {
	IdentityID string  `json:"identity_id,omitempty"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Known reports whether the probe matched a registered identity.
func (r Result) Known() bool {
	return r.IdentityID != ""
}

// Matcher scores probe templates against a gallery using ensemble top-k voting.
type Matcher struct {
	// TopK caps how many of an identity's best similarities are averaged.
	// Zero means DefaultTopK.
	TopK int

	// CandidateLimit bounds how many identities are fetched from the
	// gallery's ANN index before exhaustive scoring. Zero means score
	// every identity (small galleries, or index disabled).
	CandidateLimit int
}

func (m *Matcher) topK() int {
	if m.TopK > 0 {
		return m.TopK
	}
	return DefaultTopK
}

// Match finds the best identity for the probe. The probe is accepted only
// when its ensemble similarity is strictly above threshold; otherwise the
// result is Unknown with confidence 0. An empty gallery always yields
// Unknown. Ties resolve to the identity registered first, so repeated runs
// with identical input are deterministic.
func (m *Matcher) Match(probe gallery.Template, g *gallery.Gallery, threshold float64) Result {
	ids := m.candidateIDs(probe, g)

	var (
		bestID         string
		bestSimilarity float64
	)

	for _, id := range ids {
		avg := m.ensembleSimilarity(probe, g.TemplatesOf(id))
		// Strictly greater keeps the earlier identity on exact ties.
		if avg > threshold && (bestID == "" || avg > bestSimilarity) {
			bestSimilarity = avg
			bestID = id
		}
	}

	if bestID == "" {
		return Result{Confidence: 0}
	}

	res := Result{IdentityID: bestID, Confidence: bestSimilarity}
	if meta, ok := g.MetadataOf(bestID); ok {
		res.Name = meta.Name
	}
	return res
}

// candidateIDs narrows the identities to score. The ANN index only prunes
// the search space; final scoring is always exact.
func (m *Matcher) candidateIDs(probe gallery.Template, g *gallery.Gallery) []string {
	if m.CandidateLimit > 0 {
		if candidates := g.Candidates(probe, m.CandidateLimit); candidates != nil {
			return candidates
		}
	}
	return g.Identities()
}

// ensembleSimilarity averages the top-k cosine similarities between the
// probe and the identity's templates. With a single template this
// degenerates to nearest-neighbor.
func (m *Matcher) ensembleSimilarity(probe gallery.Template, templates []gallery.Template) float64 {
	if len(templates) == 0 {
		return 0
	}

	similarities := make([]float64, len(templates))
	for i, tmpl := range templates {
		// Both vectors are unit-norm, so the dot product is the cosine.
		similarities[i] = probe.Dot(tmpl)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(similarities)))

	k := min(m.topK(), len(similarities))
	var sum float64
	for _, s := range similarities[:k] {
		sum += s
	}
	return sum / float64(k)
}
