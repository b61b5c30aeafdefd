// Package mariadb reads class rosters from the school information
// system's MariaDB. Read-only: attendance results never flow back here.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/krivanek/rollcall/internal/roster"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// RosterSource loads rosters by class group. It implements roster.Source.
type RosterSource struct {
	pool *Pool
}

// NewRosterSource creates a roster source on the pool.
func NewRosterSource(pool *Pool) *RosterSource {
	return &RosterSource{pool: pool}
}

// LoadRoster returns the enrolled students of a class group.
func (s *RosterSource) LoadRoster(ctx context.Context, group string) (*roster.Roster, error) {
	query := `
		SELECT s.student_id, s.full_name, s.email, s.department, s.year
		FROM students s
		JOIN enrollments e ON e.student_id = s.student_id
		WHERE e.class_group = ?
		ORDER BY s.full_name
	`

	rows, err := s.pool.db.QueryContext(ctx, query, group)
	if err != nil {
		return nil, fmt.Errorf("query roster for %s: %w", group, err)
	}
	defer rows.Close()

	var members []roster.Member
	for rows.Next() {
		var m roster.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Department, &m.Year); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster rows: %w", err)
	}

	if len(members) == 0 {
		return nil, fmt.Errorf("no students enrolled in group %s", group)
	}
	return roster.New(members), nil
}
