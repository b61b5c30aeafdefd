// Package gallery holds the in-memory biometric index: every registered
// identity with its set of face templates. The gallery is rebuilt from a
// persistent store at process start and mutated only through Add/Remove.
package gallery

import (
	"context"
	"fmt"
	"sync"
)

// Loader populates the gallery from a persistent store at startup.
type Loader interface {
	Load(ctx context.Context) ([]IdentityRecord, error)
}

type entry struct {
	templates []Template
	meta      Metadata
}

// Gallery maps identities to their template sets. Identity insertion order
// is preserved so that matching is deterministic across runs.
type Gallery struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	index   *Index // optional HNSW candidate index, nil when disabled
}

// New creates an empty gallery.
func New() *Gallery {
	return &Gallery{
		entries: make(map[string]*entry),
	}
}

// Load builds a gallery from a persistent store. An unreachable store is a
// fatal condition for the caller: recognition without a gallery silently
// degrades every probe to Unknown.
func Load(ctx context.Context, loader Loader) (*Gallery, error) {
	records, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gallery store: %w", err)
	}

	g := New()
	for _, rec := range records {
		for _, tmpl := range rec.Templates {
			if err := g.Add(rec.ID, tmpl, rec.Meta); err != nil {
				return nil, fmt.Errorf("loading identity %s: %w", rec.ID, err)
			}
		}
	}
	return g, nil
}

// Add appends a template to the identity's set. Adding to an existing
// identity accumulates templates, it never overwrites. The first add for an
// identity records its metadata.
func (g *Gallery) Add(id string, tmpl Template, meta Metadata) error {
	if id == "" {
		return fmt.Errorf("identity id must not be empty")
	}
	if n := tmpl.Norm(); n < 1-NormTolerance || n > 1+NormTolerance {
		return fmt.Errorf("template for %s is not unit-norm (norm=%f)", id, n)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		e = &entry{meta: meta}
		g.entries[id] = e
		g.order = append(g.order, id)
	}
	e.templates = append(e.templates, tmpl.Clone())
	e.meta.SampleCount = len(e.templates)

	if g.index != nil {
		g.index.add(id, len(e.templates)-1, e.templates[len(e.templates)-1])
	}
	return nil
}

// Remove deletes an identity and all its templates. Removing an unknown
// identity is a no-op.
func (g *Gallery) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entries[id]; !ok {
		return
	}
	delete(g.entries, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if g.index != nil {
		g.index.remove(id)
	}
}

// Identities returns all identity IDs in insertion order.
func (g *Gallery) Identities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// TemplatesOf returns the identity's templates in insertion order, or an
// empty slice for an unknown identity.
func (g *Gallery) TemplatesOf(id string) []Template {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[id]
	if !ok {
		return nil
	}
	out := make([]Template, len(e.templates))
	for i, t := range e.templates {
		out[i] = t.Clone()
	}
	return out
}

// MetadataOf returns the identity's metadata and whether it is registered.
func (g *Gallery) MetadataOf(id string) (Metadata, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[id]
	if !ok {
		return Metadata{}, false
	}
	return e.meta, true
}

// Count returns the number of registered identities.
func (g *Gallery) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// TemplateCount returns the total number of stored templates.
func (g *Gallery) TemplateCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var n int
	for _, e := range g.entries {
		n += len(e.templates)
	}
	return n
}
