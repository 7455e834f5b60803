package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ensiasd/academics/internal/batch"
	"github.com/ensiasd/academics/internal/sheets"
	"github.com/ensiasd/academics/internal/store"
	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/config"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
	"github.com/ensiasd/academics/pkg/surface"
)

// cohortFlags are shared by aggregate and deliberate.
type cohortFlags struct {
	programID   string
	periodCode  string
	yearID      string
	catalogPath string
	marksPath   string
	rubricsPath string
	rosterPath  string
	students    []string
	comma       string
	workers     int
}

func (f *cohortFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.programID, "program", "", "Program id (required)")
	cmd.Flags().StringVar(&f.periodCode, "period", "", "Semester code S1..S6, or \"year\" (required)")
	cmd.Flags().StringVar(&f.yearID, "year", "", "Academic year id (required)")
	cmd.Flags().StringVar(&f.catalogPath, "catalog", "", "Path to the module catalog CSV (required)")
	cmd.Flags().StringVar(&f.marksPath, "marks", "", "Mark sheet CSV to score first (default: read validated scores from the database)")
	cmd.Flags().StringVar(&f.rubricsPath, "rubrics", "", "Rubric YAML file used to score --marks")
	cmd.Flags().StringVar(&f.rosterPath, "roster", "", "Student roster CSV; its enrollments in the program and year form the cohort")
	cmd.Flags().StringSliceVar(&f.students, "students", nil, "Student ids to aggregate (default: roster, then every student of the mark sheet)")
	cmd.Flags().StringVar(&f.comma, "comma", ",", "CSV field delimiter")
	cmd.Flags().IntVar(&f.workers, "workers", batch.DefaultWorkers, "Concurrent students")
	for _, name := range []string{"program", "period", "year", "catalog"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (f *cohortFlags) period() (academic.Period, error) {
	var p academic.Period
	if strings.EqualFold(f.periodCode, "year") {
		p = academic.Year(f.yearID)
	} else {
		p = academic.Semester(strings.ToUpper(f.periodCode), f.yearID)
	}
	return p, p.Validate()
}

// sheetScores serves scores computed from a mark sheet. They are the
// final marks of the session, so they enter the aggregate as validated.
type sheetScores map[string][]grading.ModuleScore

func (m sheetScores) ModuleScores(_ context.Context, studentID, yearID string) ([]grading.ModuleScore, error) {
	var out []grading.ModuleScore
	for _, s := range m[studentID] {
		if s.YearID == yearID {
			out = append(out, s)
		}
	}
	return out, nil
}

// cohort is an aggregated cohort and the handles it was built with.
type cohort struct {
	cfg    *config.Config
	ctx    results.Context
	report batch.CohortReport
	store  *store.Store
	db     *sql.DB
}

func (c *cohort) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

func buildCohort(ctx context.Context, root string, f cohortFlags, save bool) (*cohort, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	period, err := f.period()
	if err != nil {
		return nil, err
	}
	delim, err := commaRune(f.comma)
	if err != nil {
		return nil, err
	}

	cf, err := openFile(f.catalogPath)
	if err != nil {
		return nil, err
	}
	defer cf.Close()
	catalog, err := sheets.Format{Comma: delim}.ReadCatalog(cf)
	if err != nil {
		return nil, err
	}

	st, db, err := openStore(ctx, cfg, save || f.marksPath == "")
	if err != nil {
		return nil, err
	}
	c := &cohort{
		cfg:   cfg,
		ctx:   results.Context{ProgramID: f.programID, Period: period, PassThreshold: cfg.Grading.PassThreshold},
		store: st,
		db:    db,
	}

	var source batch.ScoreSource = st
	students := f.students
	if len(students) == 0 && f.rosterPath != "" {
		students, err = rosterCohort(f, delim, period)
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	if f.marksPath != "" {
		src, ids, err := scoreMarks(ctx, cfg, f, delim)
		if err != nil {
			c.Close()
			return nil, err
		}
		source = src
		if len(students) == 0 {
			students = ids
		}
	}
	if len(students) == 0 {
		c.Close()
		return nil, fmt.Errorf("no students: pass --students or --marks")
	}

	var sink batch.ResultSink
	if save {
		if err := refuseLocked(ctx, st, f.programID, period, students); err != nil {
			c.Close()
			return nil, err
		}
		sink = st
	}
	svc := batch.NewService(source, nil, sink, catalog, f.workers)

	fmt.Fprintf(os.Stderr, "Aggregating %d students for %s %s...\n", len(students), f.programID, period)
	c.report, err = svc.AggregateCohort(ctx, c.ctx, students)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

type lockedLister interface {
	LockedResults(ctx context.Context, programID string, period academic.Period) ([]string, error)
}

// refuseLocked fails when a student of the cohort already has a locked
// result for the period. Locked results are final.
func refuseLocked(ctx context.Context, st lockedLister, programID string, period academic.Period, students []string) error {
	locked, err := st.LockedResults(ctx, programID, period)
	if err != nil {
		return err
	}
	in := make(map[string]bool, len(students))
	for _, id := range students {
		in[id] = true
	}
	var hit []string
	for _, id := range locked {
		if in[id] {
			hit = append(hit, id)
		}
	}
	if len(hit) == 0 {
		return nil
	}
	return &academic.StateError{
		Err:    academic.ErrLocked,
		Entity: "period results",
		ID:     programID + " " + period.String() + " (" + strings.Join(hit, ", ") + ")",
		State:  "locked",
		Action: "overwrite",
	}
}

// scoreMarks computes the scores of a mark sheet and advances them to
// validated.
func scoreMarks(ctx context.Context, cfg *config.Config, f cohortFlags, delim rune) (sheetScores, []string, error) {
	mf, err := openFile(f.marksPath)
	if err != nil {
		return nil, nil, err
	}
	defer mf.Close()
	sheetList, err := sheets.Format{Comma: delim}.ReadMarks(mf)
	if err != nil {
		return nil, nil, err
	}

	book := grading.NewRubricBook(cfg.Grading.Settings())
	book.Strict = cfg.Grading.StrictRubrics
	if err := loadRubrics(book, f.rubricsPath); err != nil {
		return nil, nil, err
	}
	svc := batch.NewService(nil, nil, nil, nil, f.workers)
	report, err := svc.ScoreSheets(ctx, sheetList, book, cfg.Grading.Settings())
	if err != nil {
		return nil, nil, err
	}
	if err := batch.Err(report.Failures); err != nil {
		return nil, nil, err
	}

	src := make(sheetScores)
	for _, ms := range report.Scores {
		if err := ms.Confirm(); err != nil {
			return nil, nil, err
		}
		if err := ms.Validate(); err != nil {
			return nil, nil, err
		}
		src[ms.StudentID] = append(src[ms.StudentID], ms)
	}
	return src, sheets.StudentIDs(sheetList), nil
}

func rosterCohort(f cohortFlags, delim rune, period academic.Period) ([]string, error) {
	rf, err := openFile(f.rosterPath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()
	students, err := sheets.Format{Comma: delim}.ReadRoster(rf)
	if err != nil {
		return nil, err
	}
	ids := sheets.Enrolled(students, f.programID, period.YearID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("roster %s has nobody in %s for %s", f.rosterPath, f.programID, period.YearID)
	}
	return ids, nil
}

func newAggregateCmd() *cobra.Command {
	var (
		flags      cohortFlags
		outputFmt  string
		exportPath string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate and rank period results for a cohort",
		Long: `Aggregates the validated module scores of each student into a semester or
year result, applies the admission rules and ranks the cohort.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			return runAggregate(cmd.Context(), root, aggregateOpts{
				cohort:     flags,
				outputFmt:  outputFmt,
				exportPath: exportPath,
				save:       save,
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write the ranked results to this CSV file")
	cmd.Flags().BoolVar(&save, "save", false, "Store the results in the database")

	return cmd
}

type aggregateOpts struct {
	cohort     cohortFlags
	outputFmt  string
	exportPath string
	save       bool
}

func runAggregate(ctx context.Context, root string, opts aggregateOpts) error {
	c, err := buildCohort(ctx, root, opts.cohort, opts.save)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.exportPath != "" {
		out, err := os.Create(opts.exportPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", opts.exportPath, err)
		}
		delim, _ := commaRune(opts.cohort.comma)
		if err := (sheets.Format{Comma: delim}).WriteResults(out, c.report.Results); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Results written: %s\n", opts.exportPath)
	}

	rep := &surface.Report{
		Title:   fmt.Sprintf("Results %s %s", c.ctx.ProgramID, c.ctx.Period),
		Results: c.report.Results,
	}
	for _, f := range c.report.Failures {
		rep.Warnings = append(rep.Warnings, f.Error())
	}
	if err := render(opts.outputFmt, rep); err != nil {
		return err
	}
	return batch.Err(c.report.Failures)
}
