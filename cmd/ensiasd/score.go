package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ensiasd/academics/internal/batch"
	"github.com/ensiasd/academics/internal/sheets"
	"github.com/ensiasd/academics/pkg/surface"
)

func newScoreCmd() *cobra.Command {
	var (
		marksPath   string
		rubricsPath string
		comma       string
		outputFmt   string
		save        bool
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute module scores from a mark sheet",
		Long: `Reads a CSV mark sheet, applies each module's rubric and prints the module
scores. With --save the scores are stored in the configured database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			return runScore(cmd.Context(), root, scoreOpts{
				marksPath:   marksPath,
				rubricsPath: rubricsPath,
				comma:       comma,
				outputFmt:   outputFmt,
				save:        save,
				workers:     workers,
			})
		},
	}

	cmd.Flags().StringVar(&marksPath, "marks", "", "Path to the mark sheet CSV (required)")
	cmd.Flags().StringVar(&rubricsPath, "rubrics", "", "Rubric YAML file, overriding stored rubrics")
	cmd.Flags().StringVar(&comma, "comma", ",", "CSV field delimiter")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&save, "save", false, "Store the scores in the database")
	cmd.Flags().IntVar(&workers, "workers", batch.DefaultWorkers, "Concurrent enrollments")
	_ = cmd.MarkFlagRequired("marks")

	return cmd
}

type scoreOpts struct {
	marksPath   string
	rubricsPath string
	comma       string
	outputFmt   string
	save        bool
	workers     int
}

func runScore(ctx context.Context, root string, opts scoreOpts) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	delim, err := commaRune(opts.comma)
	if err != nil {
		return err
	}

	f, err := openFile(opts.marksPath)
	if err != nil {
		return err
	}
	defer f.Close()
	sheetList, err := sheets.Format{Comma: delim}.ReadMarks(f)
	if err != nil {
		return err
	}
	if len(sheetList) == 0 {
		return fmt.Errorf("%s has no marks", opts.marksPath)
	}

	years := make(map[string]bool)
	for _, sh := range sheetList {
		years[sh.Enrollment.YearID] = true
	}

	st, db, err := openStore(ctx, cfg, opts.save)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if len(years) > 1 {
			return fmt.Errorf("%s mixes %d academic years; split it per year", opts.marksPath, len(years))
		}
	}

	book, err := rubricSource(ctx, st, cfg, sheetList[0].Enrollment.YearID)
	if err != nil {
		return err
	}
	if err := loadRubrics(book, opts.rubricsPath); err != nil {
		return err
	}

	svc := batch.NewService(nil, nil, nil, nil, opts.workers)
	if st != nil && opts.save {
		svc = batch.NewService(st, st, st, nil, opts.workers)
	}

	fmt.Fprintf(os.Stderr, "Scoring %d enrollments...\n", len(sheetList))
	report, err := svc.ScoreSheets(ctx, sheetList, book, cfg.Grading.Settings())
	if err != nil {
		return err
	}

	rep := &surface.Report{Title: "Module scores", Scores: report.Scores}
	for _, key := range book.Defaulted() {
		rep.Warnings = append(rep.Warnings, "no rubric configured for "+key+", used the default")
	}
	for _, f := range report.Failures {
		rep.Warnings = append(rep.Warnings, f.Error())
	}
	if err := render(opts.outputFmt, rep); err != nil {
		return err
	}
	return batch.Err(report.Failures)
}
