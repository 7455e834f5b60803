package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ensiasd/academics/internal/store"
	"github.com/ensiasd/academics/pkg/config"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/surface"
)

// resolveRoot returns the absolute institution directory.
func resolveRoot(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	return abs, nil
}

// loadConfig finds and loads the config. A broken config file is fatal
// since thresholds decide admissions.
func loadConfig(root string) (*config.Config, error) {
	cfgFile := config.FindConfigFile(root)
	if cfgFile == "" {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openStore connects to the configured database. It returns nil when no
// database is configured and required is false.
func openStore(ctx context.Context, cfg *config.Config, required bool) (*store.Store, *sql.DB, error) {
	if cfg.Database.URL == "" {
		if required {
			return nil, nil, fmt.Errorf("no database configured: set database.url or ENSIASD_DATABASE_URL")
		}
		return nil, nil, nil
	}
	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return store.New(db), db, nil
}

// rubricSource loads rubrics from the store when there is one, and falls
// back to an in-memory book otherwise.
func rubricSource(ctx context.Context, st *store.Store, cfg *config.Config, yearID string) (*grading.RubricBook, error) {
	settings := cfg.Grading.Settings()
	if st == nil {
		book := grading.NewRubricBook(settings)
		book.Strict = cfg.Grading.StrictRubrics
		return book, nil
	}
	book, err := st.LoadRubricBook(ctx, yearID, settings)
	if err != nil {
		return nil, err
	}
	book.Strict = cfg.Grading.StrictRubrics
	return book, nil
}

func newRenderer(format string) (surface.Renderer, error) {
	switch format {
	case "text", "":
		return &surface.TerminalRenderer{}, nil
	case "json":
		return &surface.JSONRenderer{}, nil
	case "minutes":
		return &surface.MinutesRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want text, json or minutes)", format)
}

func render(format string, rep *surface.Report) error {
	r, err := newRenderer(format)
	if err != nil {
		return err
	}
	if err := r.Render(os.Stdout, rep); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	return nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func commaRune(s string) (rune, error) {
	switch len([]rune(s)) {
	case 0:
		return ',', nil
	case 1:
		return []rune(s)[0], nil
	}
	return 0, fmt.Errorf("--comma must be a single character, got %q", s)
}
