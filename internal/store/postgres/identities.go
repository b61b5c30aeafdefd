package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/krivanek/rollcall/internal/gallery"
)

// GalleryStore persists identities and their templates. It implements
// gallery.Loader for process startup.
type GalleryStore struct {
	pool *Pool
}

// NewGalleryStore creates a gallery store on the pool.
func NewGalleryStore(pool *Pool) *GalleryStore {
	return &GalleryStore{pool: pool}
}

// Load returns every identity with all of its templates, ordered by
// registration time so the in-memory gallery keeps enrollment order.
func (s *GalleryStore) Load(ctx context.Context) ([]gallery.IdentityRecord, error) {
	query := `
		SELECT i.id, i.name, i.email, i.department, i.year, i.registered_at, t.embedding
		FROM identities i
		JOIN templates t ON t.identity_id = i.id
		ORDER BY i.registered_at, i.id, t.id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var records []gallery.IdentityRecord
	index := make(map[string]int)

	for rows.Next() {
		var (
			rec gallery.IdentityRecord
			vec pgvector.Vector
		)
		if err := rows.Scan(&rec.ID, &rec.Meta.Name, &rec.Meta.Email, &rec.Meta.Department, &rec.Meta.Year, &rec.Meta.RegisteredAt, &vec); err != nil {
			return nil, fmt.Errorf("scan identity row: %w", err)
		}

		tmpl, err := gallery.NewTemplate(vec.Slice())
		if err != nil {
			return nil, fmt.Errorf("stored template for %s: %w", rec.ID, err)
		}

		i, ok := index[rec.ID]
		if !ok {
			index[rec.ID] = len(records)
			records = append(records, rec)
			i = index[rec.ID]
		}
		records[i].Templates = append(records[i].Templates, tmpl)
		records[i].Meta.SampleCount = len(records[i].Templates)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity rows: %w", err)
	}

	return records, nil
}

// SaveIdentity stores an identity with all of its templates in one
// transaction. Either everything lands or nothing does, so a registration
// interrupted halfway never leaves a partial sample set behind.
func (s *GalleryStore) SaveIdentity(ctx context.Context, rec gallery.IdentityRecord) error {
	if len(rec.Templates) == 0 {
		return fmt.Errorf("identity %s has no templates", rec.ID)
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, name, email, department, year, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			department = EXCLUDED.department,
			year = EXCLUDED.year
	`, rec.ID, rec.Meta.Name, rec.Meta.Email, rec.Meta.Department, rec.Meta.Year, rec.Meta.RegisteredAt)
	if err != nil {
		return fmt.Errorf("insert identity %s: %w", rec.ID, err)
	}

	for _, tmpl := range rec.Templates {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO templates (identity_id, embedding) VALUES ($1, $2)
		`, rec.ID, pgvector.NewVector([]float32(tmpl)))
		if err != nil {
			return fmt.Errorf("insert template for %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteIdentity removes an identity; templates go with it via cascade.
func (s *GalleryStore) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	return nil
}

// CountIdentities returns the number of registered identities.
func (s *GalleryStore) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}
