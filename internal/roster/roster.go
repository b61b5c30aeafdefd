// Package roster models the expected participants of an attendance
// session. The roster is the closed world for absence inference: whoever
// is on it and never marked present is absent.
package roster

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Member is one expected participant.
type Member struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// Roster is an immutable list of expected participants.
type Roster struct {
	members []Member
	byID    map[string]Member
}

// Source loads rosters from an external system, keyed by group (a class,
// a course code, a room).
type Source interface {
	LoadRoster(ctx context.Context, group string) (*Roster, error)
}

// New builds a roster from members, dropping duplicated IDs (first wins).
func New(members []Member) *Roster {
	r := &Roster{byID: make(map[string]Member, len(members))}
	for _, m := range members {
		if _, ok := r.byID[m.ID]; ok {
			continue
		}
		r.byID[m.ID] = m
		r.members = append(r.members, m)
	}
	return r
}

// Members returns the participants in their original order.
func (r *Roster) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// IDs returns the participant IDs in their original order.
func (r *Roster) IDs() []string {
	out := make([]string, len(r.members))
	for i, m := range r.members {
		out[i] = m.ID
	}
	return out
}

// Lookup returns the member with the given ID.
func (r *Roster) Lookup(id string) (Member, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Contains reports whether the ID is on the roster.
func (r *Roster) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Size returns the number of participants.
func (r *Roster) Size() int {
	return len(r.members)
}

// FindByName returns the first member whose normalized name matches.
func (r *Roster) FindByName(name string) (Member, bool) {
	want := NormalizePersonName(name)
	for _, m := range r.members {
		if NormalizePersonName(m.Name) == want {
			return m, true
		}
	}
	return Member{}, false
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
