package gallery

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSW parameters for 512-dim face templates.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// CandidateMultiplier is the factor to request more neighbors than
	// identities wanted, since one identity can hold several templates.
	CandidateMultiplier = 3
)

type indexNode struct {
	identity string
	sample   int
}

// Index is an approximate-nearest-neighbor candidate index over all
// templates in the gallery. It narrows the set of identities the matcher
// scores exhaustively; it never decides a match by itself.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[int64]
	nodes  map[int64]indexNode
	nextID int64
}

// NewIndex creates an empty candidate index.
func NewIndex() *Index {
	return &Index{nodes: make(map[int64]indexNode)}
}

// EnableIndex attaches a candidate index to the gallery and fills it with
// all currently stored templates. Subsequent Add/Remove calls keep it in sync.
func (g *Gallery) EnableIndex() {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := NewIndex()
	for _, id := range g.order {
		for i, tmpl := range g.entries[id].templates {
			idx.add(id, i, tmpl)
		}
	}
	g.index = idx
}

// IndexCount returns the number of indexed templates, or 0 when no index is enabled.
func (g *Gallery) IndexCount() int {
	g.mu.RLock()
	idx := g.index
	g.mu.RUnlock()

	if idx == nil {
		return 0
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Candidates returns up to k distinct identity IDs whose templates are
// nearest to the probe. Returns nil when no index is enabled, which callers
// treat as "score every identity".
func (g *Gallery) Candidates(probe Template, k int) []string {
	g.mu.RLock()
	idx := g.index
	g.mu.RUnlock()

	if idx == nil {
		return nil
	}
	return idx.candidates(probe, k)
}

func (x *Index) add(identity string, sample int, tmpl Template) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph == nil {
		x.graph = hnsw.NewGraph[int64]()
		x.graph.M = hnswMaxNeighbors
		x.graph.Ml = 1.0 / float64(hnswMaxNeighbors) // standard HNSW formula
		x.graph.Distance = hnsw.CosineDistance
	}

	id := x.nextID
	x.nextID++
	x.graph.Add(hnsw.MakeNode(id, []float32(tmpl)))
	x.nodes[id] = indexNode{identity: identity, sample: sample}
}

// remove drops all of an identity's templates from the candidate map.
// HNSW does not support true deletion; stale graph nodes are filtered out
// at lookup time by the nodes map.
func (x *Index) remove(identity string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for id, n := range x.nodes {
		if n.identity == identity {
			delete(x.nodes, id)
		}
	}
}

func (x *Index) candidates(probe Template, k int) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || k <= 0 {
		return []string{}
	}

	neighbors := x.graph.Search([]float32(probe), k*CandidateMultiplier)

	seen := make(map[string]struct{}, k)
	out := make([]string, 0, k)
	for _, n := range neighbors {
		node, ok := x.nodes[n.Key]
		if !ok {
			continue // removed identity
		}
		if _, dup := seen[node.identity]; dup {
			continue
		}
		seen[node.identity] = struct{}{}
		out = append(out, node.identity)
		if len(out) == k {
			break
		}
	}
	return out
}
