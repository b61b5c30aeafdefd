package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/krivanek/rollcall/internal/pipeline"
	"github.com/krivanek/rollcall/internal/roster"
	"github.com/krivanek/rollcall/internal/session"
)

// AttendanceRecorder is the durable side of session bookkeeping.
type AttendanceRecorder interface {
	session.Sink
	CreateSession(ctx context.Context, id, group string, startedAt time.Time) error
	CloseSession(ctx context.Context, id string, endedAt time.Time) error
}

// SessionEvent is pushed to SSE listeners of a session.
type SessionEvent struct {
	Type     string            `json:"type"` // presence, absence, ended
	Presence *session.Presence `json:"presence,omitempty"`
	Absence  *session.Absence  `json:"absence,omitempty"`
	Summary  *session.Summary  `json:"summary,omitempty"`
}

// ManagedSession couples a running session with its event listeners.
type ManagedSession struct {
	sess   *session.Session
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[chan SessionEvent]struct{}
	ended     bool
}

func newManagedSession(sess *session.Session, cancel context.CancelFunc) *ManagedSession {
	return &ManagedSession{
		sess:      sess,
		cancel:    cancel,
		listeners: make(map[chan SessionEvent]struct{}),
	}
}

// AddListener registers an event channel for SSE streaming.
func (m *ManagedSession) AddListener() chan SessionEvent {
	ch := make(chan SessionEvent, 16)
	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// RemoveListener unregisters an event channel.
func (m *ManagedSession) RemoveListener(ch chan SessionEvent) {
	m.mu.Lock()
	if _, ok := m.listeners[ch]; ok {
		delete(m.listeners, ch)
		close(ch)
	}
	m.mu.Unlock()
}

// broadcast delivers an event to all listeners. Slow listeners lose
// events rather than blocking the pipeline.
func (m *ManagedSession) broadcast(ev SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// broadcastSink records through the durable sink first, then notifies SSE
// listeners. An event that failed to persist is never shown to clients.
type broadcastSink struct {
	inner session.Sink
	ms    *ManagedSession
}

func (s *broadcastSink) RecordPresence(ctx context.Context, sessionID string, p session.Presence) error {
	if err := s.inner.RecordPresence(ctx, sessionID, p); err != nil {
		return err
	}
	s.ms.broadcast(SessionEvent{Type: "presence", Presence: &p})
	return nil
}

func (s *broadcastSink) RecordAbsence(ctx context.Context, sessionID string, a session.Absence) error {
	if err := s.inner.RecordAbsence(ctx, sessionID, a); err != nil {
		return err
	}
	s.ms.broadcast(SessionEvent{Type: "absence", Absence: &a})
	return nil
}

// SessionManager tracks sessions by ID for the API.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ManagedSession
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*ManagedSession)}
}

// Get returns the managed session with the given ID.
func (m *SessionManager) Get(id string) *ManagedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *SessionManager) put(ms *ManagedSession) {
	m.mu.Lock()
	m.sessions[ms.sess.ID()] = ms
	m.mu.Unlock()
}

// SessionsHandler drives attendance sessions over the HTTP API.
type SessionsHandler struct {
	manager  *SessionManager
	rosters  roster.Source
	recorder AttendanceRecorder
	pipe     *pipeline.Pipeline

	defaultDuration time.Duration
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(manager *SessionManager, rosters roster.Source, recorder AttendanceRecorder, pipe *pipeline.Pipeline, defaultDuration time.Duration) *SessionsHandler {
	return &SessionsHandler{
		manager:         manager,
		rosters:         rosters,
		recorder:        recorder,
		pipe:            pipe,
		defaultDuration: defaultDuration,
	}
}

type createSessionRequest struct {
	Group           string `json:"group"`
	Source          string `json:"source"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Create starts a new attendance session: loads the roster, connects the
// frame source and launches the processing loop. The session ends when its
// deadline elapses, the source dries up, or an explicit end request
// arrives, whichever comes first.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Group == "" || req.Source == "" {
		respondError(w, http.StatusBadRequest, "group and source are required")
		return
	}

	duration := h.defaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	ros, err := h.rosters.LoadRoster(r.Context(), req.Group)
	if err != nil {
		log.Printf("load roster %s: %v", sanitizeForLog(req.Group), err)
		respondError(w, http.StatusNotFound, "roster not found")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// The sink needs the managed session for broadcasting, so wire it in
	// two steps.
	ms := newManagedSession(nil, cancel)
	sess := session.New(req.Group, ros, &broadcastSink{inner: h.recorder, ms: ms}, duration)
	ms.sess = sess

	source, err := pipeline.OpenSource(ctx, req.Source)
	if err != nil {
		cancel()
		log.Printf("open source %s: %v", sanitizeForLog(req.Source), err)
		respondError(w, http.StatusBadGateway, "cannot open frame source")
		return
	}

	now := time.Now()
	if err := sess.Start(now); err != nil {
		cancel()
		source.Close()
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.recorder.CreateSession(ctx, sess.ID(), req.Group, now); err != nil {
		cancel()
		source.Close()
		log.Printf("create session row: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to record session")
		return
	}

	h.manager.put(ms)
	go h.run(ctx, ms, source)

	respondJSON(w, http.StatusCreated, sess.Summary())
}

// run drains the frame source into the session until the deadline.
func (h *SessionsHandler) run(ctx context.Context, ms *ManagedSession, source pipeline.FrameSource) {
	defer source.Close()

	runCtx, cancel := context.WithDeadline(ctx, ms.sess.Deadline())
	defer cancel()

	runner := pipeline.NewRunner(h.pipe, func(ctx context.Context, frame pipeline.Frame, results []pipeline.FaceResult) {
		for _, res := range results {
			if res.Outcome != pipeline.OutcomeMatched {
				continue
			}
			_, err := ms.sess.Observe(ctx, session.Observation{
				IdentityID: res.IdentityID,
				Confidence: res.Confidence,
				Quality:    res.Quality.Overall,
				Timestamp:  frame.CapturedAt,
				Live:       res.Live(),
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("session %s: observe %s: %v", ms.sess.ID(), res.IdentityID, err)
			}
		}
	})

	if err := runner.Run(runCtx, source); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("session %s: frame loop: %v", ms.sess.ID(), err)
	}

	h.endSession(ms)
}

// endSession ends the session once; safe to call from the frame loop and
// the API concurrently.
func (h *SessionsHandler) endSession(ms *ManagedSession) {
	ms.mu.Lock()
	if ms.ended {
		ms.mu.Unlock()
		return
	}
	ms.ended = true
	ms.mu.Unlock()

	ms.cancel()

	// Absence emission must not be cut short by the session's own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	if err := ms.sess.End(ctx, now); err != nil {
		log.Printf("session %s: end: %v", ms.sess.ID(), err)
	}
	if err := h.recorder.CloseSession(ctx, ms.sess.ID(), now); err != nil {
		log.Printf("session %s: close row: %v", ms.sess.ID(), err)
	}

	summary := ms.sess.Summary()
	ms.broadcast(SessionEvent{Type: "ended", Summary: &summary})
}

// Status returns the session summary.
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ms := h.lookup(w, r)
	if ms == nil {
		return
	}
	respondJSON(w, http.StatusOK, ms.sess.Summary())
}

// End explicitly ends a session before its deadline.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	ms := h.lookup(w, r)
	if ms == nil {
		return
	}
	h.endSession(ms)
	respondJSON(w, http.StatusOK, ms.sess.Summary())
}

func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) *ManagedSession {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session id")
		return nil
	}
	ms := h.manager.Get(id)
	if ms == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return ms
}
