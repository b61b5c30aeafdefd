//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/krivanek/rollcall/internal/config"
	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/session"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func unitTemplate(t *testing.T, axis int) gallery.Template {
	t.Helper()
	vec := make([]float32, gallery.TemplateDim)
	vec[axis] = 1
	tmpl, err := gallery.NewTemplate(vec)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	return tmpl
}

func TestGalleryStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewGalleryStore(pool)

	t.Run("SaveAndLoad", func(t *testing.T) {
		rec := gallery.IdentityRecord{
			ID:        "s1",
			Templates: []gallery.Template{unitTemplate(t, 0), unitTemplate(t, 1), unitTemplate(t, 2)},
			Meta: gallery.Metadata{
				Name:         "Jana Novakova",
				Email:        "jana@example.com",
				Department:   "informatics",
				Year:         2,
				RegisteredAt: time.Now().UTC(),
			},
		}
		if err := store.SaveIdentity(ctx, rec); err != nil {
			t.Fatalf("SaveIdentity: %v", err)
		}

		records, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 identity, got %d", len(records))
		}
		got := records[0]
		if got.ID != "s1" || got.Meta.Name != "Jana Novakova" {
			t.Errorf("unexpected record %+v", got)
		}
		if len(got.Templates) != 3 || got.Meta.SampleCount != 3 {
			t.Errorf("expected 3 templates, got %d (sample count %d)", len(got.Templates), got.Meta.SampleCount)
		}
		for i, tmpl := range got.Templates {
			if n := tmpl.Norm(); n < 0.999 || n > 1.001 {
				t.Errorf("template %d not unit norm: %v", i, n)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.DeleteIdentity(ctx, "s1"); err != nil {
			t.Fatalf("DeleteIdentity: %v", err)
		}
		records, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected empty gallery after delete, got %d records", len(records))
		}

		var orphans int
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM templates").Scan(&orphans); err != nil {
			t.Fatalf("count templates: %v", err)
		}
		if orphans != 0 {
			t.Errorf("expected templates to cascade, got %d orphans", orphans)
		}
	})

	t.Run("RejectEmptyIdentity", func(t *testing.T) {
		err := store.SaveIdentity(ctx, gallery.IdentityRecord{ID: "empty"})
		if err == nil {
			t.Fatal("expected error for identity without templates")
		}
	})
}

func TestAttendanceStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewAttendanceStore(pool)

	sessionID := uuid.NewString()
	startedAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if err := store.CreateSession(ctx, sessionID, "1A", startedAt); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	t.Run("DayLevelSuppression", func(t *testing.T) {
		p := session.Presence{IdentityID: "s1", Timestamp: startedAt.Add(time.Minute), Confidence: 0.91, Quality: 0.8}
		if err := store.RecordPresence(ctx, sessionID, p); err != nil {
			t.Fatalf("RecordPresence: %v", err)
		}

		// Same identity, same day, different session: suppressed.
		otherSession := uuid.NewString()
		if err := store.CreateSession(ctx, otherSession, "1A", startedAt.Add(2*time.Hour)); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		p.Timestamp = startedAt.Add(2 * time.Hour)
		if err := store.RecordPresence(ctx, otherSession, p); err != nil {
			t.Fatalf("RecordPresence (same day): %v", err)
		}

		present, _, err := store.DayCounts(ctx, startedAt)
		if err != nil {
			t.Fatalf("DayCounts: %v", err)
		}
		if present != 1 {
			t.Errorf("expected 1 present row for the day, got %d", present)
		}

		// Next day is a fresh record.
		p.Timestamp = startedAt.AddDate(0, 0, 1)
		if err := store.RecordPresence(ctx, sessionID, p); err != nil {
			t.Fatalf("RecordPresence (next day): %v", err)
		}
		present, _, err = store.DayCounts(ctx, p.Timestamp)
		if err != nil {
			t.Fatalf("DayCounts: %v", err)
		}
		if present != 1 {
			t.Errorf("expected 1 present row for the next day, got %d", present)
		}
	})

	t.Run("Absence", func(t *testing.T) {
		a := session.Absence{IdentityID: "s2", Timestamp: startedAt.Add(10 * time.Minute)}
		if err := store.RecordAbsence(ctx, sessionID, a); err != nil {
			t.Fatalf("RecordAbsence: %v", err)
		}
		if err := store.RecordAbsence(ctx, sessionID, a); err != nil {
			t.Fatalf("RecordAbsence (duplicate): %v", err)
		}

		_, absent, err := store.DayCounts(ctx, startedAt)
		if err != nil {
			t.Fatalf("DayCounts: %v", err)
		}
		if absent != 1 {
			t.Errorf("expected 1 absent row, got %d", absent)
		}
	})

	t.Run("CloseSession", func(t *testing.T) {
		if err := store.CloseSession(ctx, sessionID, startedAt.Add(45*time.Minute)); err != nil {
			t.Fatalf("CloseSession: %v", err)
		}

		var endedAt time.Time
		if err := pool.QueryRow(ctx, "SELECT ended_at FROM sessions WHERE id = $1", sessionID).Scan(&endedAt); err != nil {
			t.Fatalf("query session: %v", err)
		}
		if endedAt.IsZero() {
			t.Error("ended_at not set")
		}
	})
}
