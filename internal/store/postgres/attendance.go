package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/krivanek/rollcall/internal/session"
)

// AttendanceStore records attendance events. It implements session.Sink.
//
// The session layer already suppresses duplicate marks within one window;
// this store additionally suppresses duplicates per calendar day through
// the attendance_once_per_day constraint, so two sessions on the same day
// produce one present row per identity.
type AttendanceStore struct {
	pool *Pool
}

// NewAttendanceStore creates an attendance store on the pool.
func NewAttendanceStore(pool *Pool) *AttendanceStore {
	return &AttendanceStore{pool: pool}
}

// CreateSession records a started session.
func (s *AttendanceStore) CreateSession(ctx context.Context, id, group string, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, group_name, started_at) VALUES ($1, $2, $3)
	`, id, group, startedAt)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

// CloseSession stamps a session as ended.
func (s *AttendanceStore) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET ended_at = $2 WHERE id = $1
	`, id, endedAt)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// RecordPresence stores a presence event, at most once per identity per day.
func (s *AttendanceStore) RecordPresence(ctx context.Context, sessionID string, p session.Presence) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (session_id, identity_id, status, observed_at, day, confidence, quality)
		VALUES ($1, $2, 'present', $3, $3::date, $4, $5)
		ON CONFLICT ON CONSTRAINT attendance_once_per_day DO NOTHING
	`, sessionID, p.IdentityID, p.Timestamp, p.Confidence, p.Quality)
	if err != nil {
		return fmt.Errorf("record presence for %s: %w", p.IdentityID, err)
	}
	return nil
}

// RecordAbsence stores an absence event, at most once per identity per day.
func (s *AttendanceStore) RecordAbsence(ctx context.Context, sessionID string, a session.Absence) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (session_id, identity_id, status, observed_at, day)
		VALUES ($1, $2, 'absent', $3, $3::date)
		ON CONFLICT ON CONSTRAINT attendance_once_per_day DO NOTHING
	`, sessionID, a.IdentityID, a.Timestamp)
	if err != nil {
		return fmt.Errorf("record absence for %s: %w", a.IdentityID, err)
	}
	return nil
}

// DayCounts returns the number of present and absent records for a day.
func (s *AttendanceStore) DayCounts(ctx context.Context, day time.Time) (present, absent int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'present'),
			COUNT(*) FILTER (WHERE status = 'absent')
		FROM attendance WHERE day = $1::date
	`, day).Scan(&present, &absent)
	if err != nil {
		return 0, 0, fmt.Errorf("count attendance: %w", err)
	}
	return present, absent, nil
}
