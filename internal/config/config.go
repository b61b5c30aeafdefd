package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Model    ModelConfig
	Database DatabaseConfig
	Roster   RosterConfig
	Web      WebConfig
	Tuning   TuningDefaults
}

type ModelConfig struct {
	URL  string // face model service URL (defaults to http://localhost:8000)
	Name string // model identifier reported by the service (e.g., arcface)
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the template HNSW index (optional, if empty index is rebuilt on startup)
}

type RosterConfig struct {
	DatabaseURL string // MariaDB DSN of the school information system (e.g., sis:sis@tcp(mariadb:3306)/sis)
}

type WebConfig struct {
	Port int // HTTP listen port (default 8080)
}

// TuningDefaults are the boot-time values for the runtime-tunable knobs.
// They come from the embedded defaults file and can be overridden per-knob
// through environment variables.
type TuningDefaults struct {
	RecognitionThreshold float64 `yaml:"recognition_threshold"`
	QualityThreshold     float64 `yaml:"quality_threshold"`
	FrameSkip            int     `yaml:"frame_skip"`
	MinFaceSize          int     `yaml:"min_face_size"`
	SessionMinutes       int     `yaml:"session_minutes"`
	MinSamples           int     `yaml:"min_samples"`
	MaxSamples           int     `yaml:"max_samples"`
}

type defaultsFile struct {
	Tuning TuningDefaults `yaml:"tuning"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Model: ModelConfig{
			URL:  os.Getenv("MODEL_URL"),
			Name: os.Getenv("MODEL_NAME"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Roster: RosterConfig{
			DatabaseURL: os.Getenv("ROSTER_DATABASE_URL"),
		},
		Web: WebConfig{
			Port: envInt("PORT", 8080),
		},
		Tuning: TuningDefaults{
			RecognitionThreshold: envFloat("RECOGNITION_THRESHOLD", defaults.Tuning.RecognitionThreshold),
			QualityThreshold:     envFloat("QUALITY_THRESHOLD", defaults.Tuning.QualityThreshold),
			FrameSkip:            envInt("FRAME_SKIP", defaults.Tuning.FrameSkip),
			MinFaceSize:          envInt("MIN_FACE_SIZE", defaults.Tuning.MinFaceSize),
			SessionMinutes:       envInt("SESSION_MINUTES", defaults.Tuning.SessionMinutes),
			MinSamples:           envInt("ENROLL_MIN_SAMPLES", defaults.Tuning.MinSamples),
			MaxSamples:           envInt("ENROLL_MAX_SAMPLES", defaults.Tuning.MaxSamples),
		},
	}
}
