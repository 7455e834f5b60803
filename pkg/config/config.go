// Package config handles loading and managing ensiasd configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/timetable"
)

// Config is the top-level configuration for ensiasd.
type Config struct {
	Grading    GradingConfig    `yaml:"grading"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
}

// GradingConfig holds the institution-wide grading constants.
type GradingConfig struct {
	MaxScore             float64         `yaml:"max_score" validate:"gt=0"`
	PassThreshold        float64         `yaml:"pass_threshold" validate:"gte=0,ltefield=MaxScore"`
	EliminationThreshold float64         `yaml:"elimination_threshold" validate:"gte=0,ltefield=PassThreshold"`
	Weights              grading.Weights `yaml:"weights"`
	MakeupPolicy         string          `yaml:"makeup_policy" validate:"oneof=replaces-exam replaces-total keep-best"`
	BonusCap             float64         `yaml:"bonus_cap" validate:"gte=0"`
	StrictRubrics        bool            `yaml:"strict_rubrics"` // refuse unconfigured modules instead of defaulting
}

// SchedulingConfig controls timetable checks and auto-generation.
type SchedulingConfig struct {
	TermWeeks      int     `yaml:"term_weeks" validate:"gt=0"`
	SessionHours   float64 `yaml:"session_hours" validate:"gt=0"`
	AfternoonStart string  `yaml:"afternoon_start" validate:"required"`
	DayOpen        string  `yaml:"day_open" validate:"required"`
	DayClose       string  `yaml:"day_close" validate:"required"`
	SkipSundays    bool    `yaml:"skip_sundays"`
	Seed           int64   `yaml:"seed"` // 0 keeps slot order deterministic
}

// StorageConfig selects where deliberation minutes and bulletins go.
type StorageConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=local s3 gcs"`
	Bucket    string `yaml:"bucket" validate:"required_unless=Backend local"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // S3-compatible endpoint, e.g. MinIO
	LocalPath string `yaml:"local_path"`
}

// DatabaseConfig points at the Postgres store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	s := grading.DefaultSettings()
	return &Config{
		Grading: GradingConfig{
			MaxScore:             s.MaxScore,
			PassThreshold:        s.PassThreshold,
			EliminationThreshold: s.EliminationThreshold,
			Weights:              s.DefaultWeights,
			MakeupPolicy:         string(s.DefaultPolicy),
			BonusCap:             s.DefaultBonusCap,
		},
		Scheduling: SchedulingConfig{
			TermWeeks:      14,
			SessionHours:   1.5,
			AfternoonStart: "14:00",
			DayOpen:        "08:00",
			DayClose:       "20:00",
			SkipSundays:    true,
		},
		Storage: StorageConfig{
			Backend: "local",
		},
	}
}

// Load reads a config file from the given path, applies environment
// overrides and validates the result.
// If the file does not exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.URL = envOrDefault("ENSIASD_DATABASE_URL", c.Database.URL)
	c.Storage.Backend = envOrDefault("ENSIASD_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Bucket = envOrDefault("ENSIASD_STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Region = envOrDefault("ENSIASD_STORAGE_REGION", c.Storage.Region)
}

// Validate checks field constraints, the default rubric and the clock
// strings of the scheduling section.
func (c *Config) Validate() error {
	if err := academic.ValidateStruct("config", "", c); err != nil {
		return err
	}
	s := c.Grading.Settings()
	if err := grading.DefaultRubric("", "", s).Validate(s); err != nil {
		return fmt.Errorf("grading defaults: %w", err)
	}
	if _, err := c.Scheduling.DayBounds(); err != nil {
		return err
	}
	if _, err := c.Scheduling.AutoGenOptions(); err != nil {
		return err
	}
	return nil
}

// Settings converts the grading section for the grading engine.
func (g GradingConfig) Settings() grading.Settings {
	return grading.Settings{
		MaxScore:             g.MaxScore,
		PassThreshold:        g.PassThreshold,
		EliminationThreshold: g.EliminationThreshold,
		DefaultWeights:       g.Weights,
		DefaultPolicy:        grading.MakeupPolicy(g.MakeupPolicy),
		DefaultBonusCap:      g.BonusCap,
	}
}

// DayBounds parses the teaching day window.
func (s SchedulingConfig) DayBounds() (timetable.DayBounds, error) {
	open, err := timetable.ParseClock(s.DayOpen)
	if err != nil {
		return timetable.DayBounds{}, fmt.Errorf("scheduling.day_open: %w", err)
	}
	closing, err := timetable.ParseClock(s.DayClose)
	if err != nil {
		return timetable.DayBounds{}, fmt.Errorf("scheduling.day_close: %w", err)
	}
	if open >= closing {
		return timetable.DayBounds{}, fmt.Errorf("scheduling: day_open %s must be before day_close %s", open, closing)
	}
	return timetable.DayBounds{Open: open, Close: closing}, nil
}

// AutoGenOptions converts the scheduling section for the generator.
func (s SchedulingConfig) AutoGenOptions() (timetable.AutoGenOptions, error) {
	afternoon, err := timetable.ParseClock(s.AfternoonStart)
	if err != nil {
		return timetable.AutoGenOptions{}, fmt.Errorf("scheduling.afternoon_start: %w", err)
	}
	return timetable.AutoGenOptions{
		TermWeeks:      s.TermWeeks,
		SessionHours:   s.SessionHours,
		AfternoonStart: afternoon,
		Seed:           s.Seed,
	}, nil
}

// FindConfigFile looks for .ensiasd/config.yaml in the given directory
// and its parents, returning the path if found, or "" if not.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".ensiasd", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// CacheDir returns the working directory for a given institution path.
// Uses ~/.cache/ensiasd/<slug>/ to keep generated files out of the tree.
func CacheDir(workspacePath string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to temp dir if HOME isn't available
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "ensiasd", workspaceSlug(workspacePath))
}

// ArchiveDir is where the local archive backend writes by default.
func ArchiveDir(workspacePath string) string {
	return filepath.Join(CacheDir(workspacePath), "archive")
}

// ResultsDir holds exported result sheets.
func ResultsDir(workspacePath string) string {
	return filepath.Join(CacheDir(workspacePath), "results")
}

// workspaceSlug creates a filesystem-safe identifier from a path using its
// last two components.
func workspaceSlug(workspacePath string) string {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		abs = workspacePath
	}
	return filepath.Base(filepath.Dir(abs)) + "_" + filepath.Base(abs)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
