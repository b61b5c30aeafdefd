// Package session implements the attendance state machine: a bounded
// window over a roster during which each identity can be marked present
// at most once, followed by absence inference for everyone else.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krivanek/rollcall/internal/roster"
)

// State is the lifecycle phase of a session.
type State int

const (
	StateIdle State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	ErrNotActive      = errors.New("session is not active")
	ErrAlreadyStarted = errors.New("session already started")
)

// Presence is emitted the first time an identity is confirmed in a session.
type Presence struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Quality    float64   `json:"quality"`
}

// Absence is emitted at session end for each roster member never marked.
type Absence struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Observation is one recognized face handed to the session by the pipeline.
type Observation struct {
	IdentityID string
	Confidence float64
	Quality    float64
	Timestamp  time.Time
	Live       bool
}

// Sink durably records attendance events. The session suppresses duplicate
// marks within its own window; any day-level duplicate suppression is the
// sink's responsibility.
type Sink interface {
	RecordPresence(ctx context.Context, sessionID string, p Presence) error
	RecordAbsence(ctx context.Context, sessionID string, a Absence) error
}

// Summary describes a session's outcome.
type Summary struct {
	SessionID string    `json:"session_id"`
	Group     string    `json:"group"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Deadline  time.Time `json:"deadline,omitempty"`
	Expected  int       `json:"expected"`
	Present   int       `json:"present"`
	Absent    int       `json:"absent"`
	MarkedIDs []string  `json:"marked_ids"`

	// MeanConfidence averages the match confidence of all Presence events.
	// Zero when nobody was marked.
	MeanConfidence float64 `json:"mean_confidence"`
}

// Session tracks attendance for one roster over one bounded window.
//
// Observe runs on the frame-processing goroutine while Start and End may
// come from an HTTP handler or a timer, so every state access goes through
// one mutex. End holds the lock for its whole roster diff, which keeps the
// absence set consistent with the last completed Observe.
type Session struct {
	id       string
	group    string
	roster   *roster.Roster
	sink     Sink
	duration time.Duration

	mu        sync.Mutex
	state     State
	startedAt time.Time
	endedAt   time.Time
	deadline  time.Time
	marked    map[string]Presence
	order     []string
}

// New creates an idle session for the roster. Call Start to begin marking.
func New(group string, r *roster.Roster, sink Sink, duration time.Duration) *Session {
	return &Session{
		id:       uuid.NewString(),
		group:    group,
		roster:   r,
		sink:     sink,
		duration: duration,
		state:    StateIdle,
		marked:   make(map[string]Presence),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Group returns the roster group this session covers.
func (s *Session) Group() string {
	return s.group
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deadline returns the time at which the session should be ended.
// Zero until started.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// Start transitions Idle to Active and opens the marking window.
func (s *Session) Start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}
	s.state = StateActive
	s.startedAt = now
	s.deadline = now.Add(s.duration)
	return nil
}

// Observe marks the identity present if the session is active, the identity
// is on the roster, it passed liveness, and it has not been marked yet.
// Returns true only when a new Presence event was emitted. Observations
// after End are ignored without error.
func (s *Session) Observe(ctx context.Context, obs Observation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return false, ErrNotActive
	case StateEnded:
		return false, nil
	}

	if !obs.Live {
		log.Printf("session %s: spoof suspected for %s, not marking", s.id, obs.IdentityID)
		return false, nil
	}

	member, ok := s.roster.Lookup(obs.IdentityID)
	if !ok {
		// Recognized but not expected here, e.g. a student from another class.
		return false, nil
	}

	if _, already := s.marked[obs.IdentityID]; already {
		return false, nil
	}

	p := Presence{
		IdentityID: obs.IdentityID,
		Name:       member.Name,
		Timestamp:  obs.Timestamp,
		Confidence: obs.Confidence,
		Quality:    obs.Quality,
	}
	if err := s.sink.RecordPresence(ctx, s.id, p); err != nil {
		// Not marked, so a later frame retries the emission.
		return false, fmt.Errorf("recording presence for %s: %w", obs.IdentityID, err)
	}

	s.marked[obs.IdentityID] = p
	s.order = append(s.order, obs.IdentityID)
	return true, nil
}

// End transitions Active to Ended and emits exactly one Absence event per
// unmarked roster member. Calling End again is a no-op.
func (s *Session) End(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return ErrNotActive
	case StateEnded:
		return nil
	}

	s.state = StateEnded
	s.endedAt = now

	var firstErr error
	for _, m := range s.roster.Members() {
		if _, present := s.marked[m.ID]; present {
			continue
		}
		a := Absence{IdentityID: m.ID, Name: m.Name, Timestamp: now}
		if err := s.sink.RecordAbsence(ctx, s.id, a); err != nil {
			log.Printf("session %s: failed to record absence for %s: %v", s.id, m.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Summary returns a snapshot of the session's bookkeeping.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := make([]string, len(s.order))
	copy(marked, s.order)

	var meanConfidence float64
	if len(marked) > 0 {
		for _, p := range s.marked {
			meanConfidence += p.Confidence
		}
		meanConfidence /= float64(len(marked))
	}

	return Summary{
		SessionID: s.id,
		Group:     s.group,
		State:     s.state.String(),
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Deadline:  s.deadline,
		Expected:  s.roster.Size(),
		Present:   len(marked),
		Absent:    s.roster.Size() - len(marked),
		MarkedIDs: marked,

		MeanConfidence: meanConfidence,
	}
}
