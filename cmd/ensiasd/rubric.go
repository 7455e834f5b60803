package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ensiasd/academics/pkg/grading"
)

// rubricFile is the YAML layout of a rubric definition file.
type rubricFile struct {
	Rubrics []grading.Rubric `yaml:"rubrics"`
}

func readRubrics(path string, settings grading.Settings) ([]grading.Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rubrics: %w", err)
	}
	var f rubricFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rubrics %s: %w", path, err)
	}
	for i, r := range f.Rubrics {
		if r.MakeupPolicy == "" {
			f.Rubrics[i].MakeupPolicy = settings.DefaultPolicy
		}
		if _, err := grading.NewRubric(f.Rubrics[i], settings); err != nil {
			return nil, err
		}
	}
	return f.Rubrics, nil
}

// loadRubrics adds the rubrics of path, if any, to the book.
func loadRubrics(book *grading.RubricBook, path string) error {
	if path == "" {
		return nil
	}
	rubrics, err := readRubrics(path, book.Settings)
	if err != nil {
		return err
	}
	for _, r := range rubrics {
		if err := book.Put(r); err != nil {
			return err
		}
	}
	return nil
}

func newRubricCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rubric",
		Short: "Check and import grading rubrics",
	}

	var (
		filePath string
		forYear  string
	)
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Store the rubrics of a YAML file in the database",
		Long: `Validates every rubric of the file and upserts it. Rubrics already used by
locked scores are refused. With --for-year the rubrics are copied to that
academic year instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			return runRubricImport(cmd.Context(), root, filePath, forYear)
		},
	}
	importCmd.Flags().StringVar(&filePath, "file", "", "Rubric YAML file (required)")
	importCmd.Flags().StringVar(&forYear, "for-year", "", "Copy the rubrics to this academic year")
	_ = importCmd.MarkFlagRequired("file")

	checkCmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a rubric YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			rubrics, err := readRubrics(args[0], cfg.Grading.Settings())
			if err != nil {
				return err
			}
			fmt.Printf("%d rubrics OK\n", len(rubrics))
			return nil
		},
	}

	cmd.AddCommand(importCmd, checkCmd)
	return cmd
}

func runRubricImport(ctx context.Context, root, path, forYear string) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	rubrics, err := readRubrics(path, cfg.Grading.Settings())
	if err != nil {
		return err
	}
	st, db, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, r := range rubrics {
		if forYear != "" {
			r = r.ForYear(forYear)
		}
		if err := st.UpsertRubric(ctx, r); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  %s/%s\n", r.ModuleID, r.YearID)
	}
	fmt.Printf("Imported %d rubrics\n", len(rubrics))
	return nil
}
