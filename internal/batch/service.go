// Package batch runs the grading and aggregation engines over a whole
// cohort, fanning the per-student work out to a bounded worker pool and
// persisting what succeeds.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
)

// DefaultWorkers bounds concurrent per-student work when none is given.
const DefaultWorkers = 8

// Module is the catalog entry the aggregation needs for one module.
type Module struct {
	ID          string  `json:"id" yaml:"id" csv:"module_id" validate:"required"`
	Semester    string  `json:"semester" yaml:"semester" csv:"semester" validate:"omitempty,oneof=S1 S2 S3 S4 S5 S6"`
	Credits     int     `json:"credits" yaml:"credits" csv:"credits" validate:"gte=0"`
	Coefficient float64 `json:"coefficient" yaml:"coefficient" csv:"coefficient" validate:"gte=0"`
}

// Catalog maps module IDs to their catalog entry.
type Catalog map[string]Module

// Entries attaches catalog data to scores. Scores of modules missing from
// the catalog are returned separately.
func (c Catalog) Entries(scores []grading.ModuleScore) ([]results.ModuleEntry, []string) {
	var entries []results.ModuleEntry
	var unknown []string
	for _, s := range scores {
		m, ok := c[s.ModuleID]
		if !ok {
			unknown = append(unknown, s.ModuleID)
			continue
		}
		entries = append(entries, results.ModuleEntry{
			Score:       s,
			Semester:    m.Semester,
			Credits:     m.Credits,
			Coefficient: m.Coefficient,
		})
	}
	return entries, unknown
}

// ScoreSource reads stored module scores.
type ScoreSource interface {
	ModuleScores(ctx context.Context, studentID, yearID string) ([]grading.ModuleScore, error)
}

// ScoreSink persists computed module scores.
type ScoreSink interface {
	SaveModuleScore(ctx context.Context, ms grading.ModuleScore) error
}

// ResultSink persists period results.
type ResultSink interface {
	SavePeriodResult(ctx context.Context, r results.PeriodResult) (results.PeriodResult, error)
}

// Failure is one student or enrollment the batch could not process.
type Failure struct {
	Key string `json:"key"`
	Err error  `json:"-"`
}

func (f Failure) Error() string { return f.Key + ": " + f.Err.Error() }

// Service orchestrates cohort-wide scoring and aggregation.
type Service struct {
	scores  ScoreSource
	saveMS  ScoreSink
	saveRes ResultSink
	catalog Catalog
	workers int
}

// NewService creates a Service. Sinks may be nil for a dry run.
func NewService(scores ScoreSource, scoreSink ScoreSink, resultSink ResultSink, catalog Catalog, workers int) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Service{
		scores:  scores,
		saveMS:  scoreSink,
		saveRes: resultSink,
		catalog: catalog,
		workers: workers,
	}
}

// Sheet is the raw marks of one enrollment in one session.
type Sheet struct {
	Enrollment grading.Enrollment
	Session    grading.Session
	Marks      []grading.ComponentScore
	Adjustment grading.Adjustment
}

// ScoreReport is the outcome of ScoreSheets.
type ScoreReport struct {
	Scores    []grading.ModuleScore `json:"scores"`
	Defaulted []string              `json:"defaulted,omitempty"`
	Failures  []Failure             `json:"-"`
}

// ScoreSheets computes and stores a module score for every sheet. A sheet
// that fails validation is recorded and does not stop the others.
func (s *Service) ScoreSheets(ctx context.Context, sheets []Sheet, rubrics grading.RubricSource, settings grading.Settings) (ScoreReport, error) {
	var (
		mu     sync.Mutex
		report ScoreReport
	)
	fail := func(key string, err error) {
		log.Printf("score %s: %v", key, err)
		mu.Lock()
		report.Failures = append(report.Failures, Failure{Key: key, Err: err})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, sh := range sheets {
		g.Go(func() error {
			key := sh.Enrollment.ID + "/" + sh.Session.ID
			r, defaulted, err := rubrics.Resolve(sh.Enrollment.ModuleID, sh.Enrollment.YearID)
			if err != nil {
				fail(key, err)
				return nil
			}
			ms, err := grading.ComputeModuleScore(sh.Enrollment, sh.Session, r, sh.Marks, sh.Adjustment, settings)
			if err != nil {
				fail(key, err)
				return nil
			}
			if s.saveMS != nil {
				if err := s.saveMS.SaveModuleScore(gctx, ms); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					fail(key, err)
					return nil
				}
			}
			mu.Lock()
			report.Scores = append(report.Scores, ms)
			if defaulted {
				report.Defaulted = append(report.Defaulted, sh.Enrollment.ModuleID+"/"+sh.Enrollment.YearID)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("score sheets: %w", err)
	}

	sort.Slice(report.Scores, func(i, j int) bool { return report.Scores[i].Key() < report.Scores[j].Key() })
	sort.Strings(report.Defaulted)
	sortFailures(report.Failures)
	return report, nil
}

// CohortReport is the outcome of AggregateCohort.
type CohortReport struct {
	Results  []results.PeriodResult           `json:"results"`
	Scores   map[string][]grading.ModuleScore `json:"-"`
	Failures []Failure                        `json:"-"`
}

// AggregateCohort loads the scores of every student, aggregates the
// period, ranks the cohort and stores the ranked results. Students whose
// aggregation fails are reported and left out of the ranking.
func (s *Service) AggregateCohort(ctx context.Context, rctx results.Context, studentIDs []string) (CohortReport, error) {
	if err := rctx.Period.Validate(); err != nil {
		return CohortReport{}, err
	}

	var (
		mu     sync.Mutex
		report = CohortReport{Scores: make(map[string][]grading.ModuleScore)}
	)
	fail := func(key string, err error) {
		log.Printf("aggregate %s: %v", key, err)
		mu.Lock()
		report.Failures = append(report.Failures, Failure{Key: key, Err: err})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range studentIDs {
		g.Go(func() error {
			scores, err := s.scores.ModuleScores(gctx, id, rctx.Period.YearID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fail(id, err)
				return nil
			}
			entries, unknown := s.catalog.Entries(scores)
			res, err := results.AggregatePeriod(id, rctx, entries)
			if err != nil {
				fail(id, err)
				return nil
			}
			for _, m := range unknown {
				res.Skipped = append(res.Skipped, results.Skipped{ModuleID: m, Reason: "not in catalog"})
			}
			mu.Lock()
			report.Results = append(report.Results, res)
			report.Scores[id] = scores
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("aggregate cohort: %w", err)
	}

	ranked, err := results.RankGroup(report.Results, results.RankDistinct)
	if err != nil {
		return report, err
	}
	results.ByRank(ranked)
	report.Results = ranked
	sortFailures(report.Failures)

	if s.saveRes == nil {
		return report, nil
	}
	return report, s.saveResults(ctx, &report)
}

func (s *Service) saveResults(ctx context.Context, report *CohortReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range report.Results {
		g.Go(func() error {
			saved, err := s.saveRes.SavePeriodResult(gctx, report.Results[i])
			if err != nil {
				return fmt.Errorf("save result of %s: %w", report.Results[i].StudentID, err)
			}
			report.Results[i] = saved
			return nil
		})
	}
	return g.Wait()
}

func sortFailures(f []Failure) {
	sort.Slice(f, func(i, j int) bool { return f[i].Key < f[j].Key })
}

// Err joins the failures into one error, or returns nil.
func Err(failures []Failure) error {
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
