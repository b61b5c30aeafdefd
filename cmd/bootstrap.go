package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/krivanek/rollcall/internal/config"
	"github.com/krivanek/rollcall/internal/embedding"
	"github.com/krivanek/rollcall/internal/enroll"
	"github.com/krivanek/rollcall/internal/gallery"
	"github.com/krivanek/rollcall/internal/liveness"
	"github.com/krivanek/rollcall/internal/match"
	"github.com/krivanek/rollcall/internal/pipeline"
	"github.com/krivanek/rollcall/internal/roster"
	"github.com/krivanek/rollcall/internal/store/mariadb"
	"github.com/krivanek/rollcall/internal/store/postgres"
)

// candidateLimit bounds ANN candidate lookups when the index is enabled.
const candidateLimit = 10

// app holds the wired collaborators shared by the commands.
type app struct {
	cfg        *config.Config
	tuning     *config.Tuning
	pool       *postgres.Pool
	rosterPool *mariadb.Pool

	gallery      *gallery.Gallery
	galleryStore *postgres.GalleryStore
	attendance   *postgres.AttendanceStore
	client       *embedding.Client
}

// initApp connects storage, loads the gallery and builds the shared stack.
func initApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	galleryStore := postgres.NewGalleryStore(pool)
	g, err := gallery.Load(ctx, galleryStore)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	g.EnableIndex()
	fmt.Printf("Gallery loaded: %d identities, %d templates\n", g.Count(), g.TemplateCount())

	return &app{
		cfg:          cfg,
		tuning:       config.NewTuning(cfg.Tuning),
		pool:         pool,
		gallery:      g,
		galleryStore: galleryStore,
		attendance:   postgres.NewAttendanceStore(pool),
		client:       embedding.NewClient(cfg.Model.URL, cfg.Model.Name),
	}, nil
}

// Close releases all connection pools.
func (a *app) Close() {
	if a.rosterPool != nil {
		a.rosterPool.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// pipeline builds the recognition pipeline on the shared stack.
func (a *app) pipeline() *pipeline.Pipeline {
	matcher := &match.Matcher{TopK: match.DefaultTopK, CandidateLimit: candidateLimit}
	return pipeline.New(a.client, a.client, matcher, a.gallery, liveness.NewChecker(), a.tuning)
}

// enroller builds the registration flow on the shared stack.
func (a *app) enroller() *enroll.Enroller {
	return enroll.New(a.client, a.galleryStore, a.gallery,
		a.cfg.Tuning.QualityThreshold, a.cfg.Tuning.MinSamples, a.cfg.Tuning.MaxSamples)
}

// rosterSource connects to the school information system.
func (a *app) rosterSource() (roster.Source, error) {
	if a.cfg.Roster.DatabaseURL == "" {
		return nil, errors.New("ROSTER_DATABASE_URL environment variable is required")
	}
	if a.rosterPool == nil {
		pool, err := mariadb.NewPool(a.cfg.Roster.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to roster database: %w", err)
		}
		a.rosterPool = pool
	}
	return mariadb.NewRosterSource(a.rosterPool), nil
}
