// Package mock provides in-memory implementations of the storage
// interfaces for testing and for running without a database.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/roster"
	"github.com/krivanek/rollcall/internal/session"
)

// GalleryStore is an in-memory gallery.Loader.
type GalleryStore struct {
	mu      sync.RWMutex
	records []gallery.IdentityRecord

	// Error injection
	LoadError error
	SaveError error
}

// NewGalleryStore creates an empty in-memory gallery store.
func NewGalleryStore() *GalleryStore {
	return &GalleryStore{}
}

// Load returns all stored identity records.
func (m *GalleryStore) Load(ctx context.Context) ([]gallery.IdentityRecord, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]gallery.IdentityRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

// SaveIdentity appends or replaces an identity record.
func (m *GalleryStore) SaveIdentity(ctx context.Context, rec gallery.IdentityRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == rec.ID {
			m.records[i] = rec
			return nil
		}
	}
	m.records = append(m.records, rec)
	return nil
}

// DeleteIdentity removes an identity record.
func (m *GalleryStore) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// RosterSource serves fixed rosters keyed by group. It implements roster.Source.
type RosterSource struct {
	mu      sync.RWMutex
	rosters map[string]*roster.Roster
}

// NewRosterSource creates an empty roster source.
func NewRosterSource() *RosterSource {
	return &RosterSource{rosters: make(map[string]*roster.Roster)}
}

// SetRoster registers the roster for a group.
func (m *RosterSource) SetRoster(group string, r *roster.Roster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[group] = r
}

// LoadRoster returns the roster registered for the group.
func (m *RosterSource) LoadRoster(ctx context.Context, group string) (*roster.Roster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rosters[group]
	if !ok {
		return nil, fmt.Errorf("no roster for group %s", group)
	}
	return r, nil
}

// AttendanceSink collects emitted events in memory. It implements session.Sink.
type AttendanceSink struct {
	mu        sync.Mutex
	presences []session.Presence
	absences  []session.Absence

	// Error injection
	PresenceError error
	AbsenceError  error
}

// NewAttendanceSink creates an empty attendance sink.
func NewAttendanceSink() *AttendanceSink {
	return &AttendanceSink{}
}

// RecordPresence stores a presence event.
func (m *AttendanceSink) RecordPresence(ctx context.Context, sessionID string, p session.Presence) error {
	if m.PresenceError != nil {
		return m.PresenceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presences = append(m.presences, p)
	return nil
}

// RecordAbsence stores an absence event.
func (m *AttendanceSink) RecordAbsence(ctx context.Context, sessionID string, a session.Absence) error {
	if m.AbsenceError != nil {
		return m.AbsenceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absences = append(m.absences, a)
	return nil
}

// Presences returns the collected presence events.
func (m *AttendanceSink) Presences() []session.Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Presence, len(m.presences))
	copy(out, m.presences)
	return out
}

// Absences returns the collected absence events.
func (m *AttendanceSink) Absences() []session.Absence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Absence, len(m.absences))
	copy(out, m.absences)
	return out
}
