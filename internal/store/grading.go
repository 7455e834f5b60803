package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
)

const rubricColumns = `module_id, year_id, name, weight_cc, weight_exam, weight_tp, weight_project,
	elimination_threshold, pass_threshold, makeup_allowed, makeup_policy, bonus_cap,
	expected_cc, keep_best_cc, frozen`

type rubricScanner interface {
	Scan(dest ...any) error
}

func scanRubric(row rubricScanner) (grading.Rubric, bool, error) {
	var r grading.Rubric
	var frozen bool
	err := row.Scan(&r.ModuleID, &r.YearID, &r.Name, &r.Weights.CC, &r.Weights.Exam, &r.Weights.TP, &r.Weights.Project,
		&r.EliminationThreshold, &r.PassThreshold, &r.MakeupAllowed, &r.MakeupPolicy, &r.BonusCap,
		&r.ExpectedCC, &r.KeepBestCC, &frozen)
	return r, frozen, err
}

// UpsertRubric creates or replaces a rubric. A rubric that is frozen, or
// that a locked score of the same module and year was computed with, is
// left unchanged and reported as locked.
func (s *Store) UpsertRubric(ctx context.Context, r grading.Rubric) error {
	return upsertRubric(ctx, s.db, r)
}

func upsertRubric(ctx context.Context, db execer, r grading.Rubric) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO rubrics (`+rubricColumns+`)
		 SELECT $1::text, $2::text, $3::text, $4::numeric, $5::numeric, $6::numeric, $7::numeric,
		        $8::numeric, $9::numeric, $10::boolean, $11::text, $12::numeric, $13::integer, $14::boolean, FALSE
		 WHERE NOT EXISTS (
		   SELECT 1 FROM module_scores ms
		   WHERE ms.module_id = $1::text AND ms.year_id = $2::text AND ms.state = 'locked')
		 ON CONFLICT (module_id, year_id) DO UPDATE
		   SET name = EXCLUDED.name,
		       weight_cc = EXCLUDED.weight_cc,
		       weight_exam = EXCLUDED.weight_exam,
		       weight_tp = EXCLUDED.weight_tp,
		       weight_project = EXCLUDED.weight_project,
		       elimination_threshold = EXCLUDED.elimination_threshold,
		       pass_threshold = EXCLUDED.pass_threshold,
		       makeup_allowed = EXCLUDED.makeup_allowed,
		       makeup_policy = EXCLUDED.makeup_policy,
		       bonus_cap = EXCLUDED.bonus_cap,
		       expected_cc = EXCLUDED.expected_cc,
		       keep_best_cc = EXCLUDED.keep_best_cc,
		       updated_at = now()
		 WHERE rubrics.frozen = FALSE`,
		r.ModuleID, r.YearID, r.Name, r.Weights.CC, r.Weights.Exam, r.Weights.TP, r.Weights.Project,
		r.EliminationThreshold, r.PassThreshold, r.MakeupAllowed, r.MakeupPolicy, r.BonusCap,
		r.ExpectedCC, r.KeepBestCC,
	)
	if err != nil {
		return fmt.Errorf("upsert rubric %s/%s: %w", r.ModuleID, r.YearID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &academic.StateError{Err: academic.ErrLocked, Entity: "rubric", ID: r.ModuleID + "/" + r.YearID, State: "frozen", Action: "update"}
	}
	return nil
}

// LoadRubricBook reads every rubric of a year into a RubricBook, freezing
// those referenced by locked scores.
func (s *Store) LoadRubricBook(ctx context.Context, yearID string, settings grading.Settings) (*grading.RubricBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rubricColumns+` FROM rubrics WHERE year_id = $1 ORDER BY module_id`, yearID)
	if err != nil {
		return nil, fmt.Errorf("list rubrics: %w", err)
	}
	defer rows.Close()

	book := grading.NewRubricBook(settings)
	var frozen []grading.ModuleScore
	for rows.Next() {
		r, isFrozen, err := scanRubric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rubric: %w", err)
		}
		if err := book.Put(r); err != nil {
			return nil, err
		}
		if isFrozen {
			frozen = append(frozen, grading.ModuleScore{ModuleID: r.ModuleID, YearID: r.YearID, State: grading.StateLocked})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	book.Freeze(frozen...)
	return book, nil
}

const scoreColumns = `enrollment_id, session_id, student_id, module_id, year_id, session_kind,
	cc, tp, project, exam, makeup, bonus, malus, final, absent_from_exam, absences,
	outcome, mention, state`

// SaveModuleScore upserts a score. A stored locked score is never
// overwritten.
func (s *Store) SaveModuleScore(ctx context.Context, ms grading.ModuleScore) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO module_scores (`+scoreColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (enrollment_id, session_id) DO UPDATE
		   SET cc = EXCLUDED.cc, tp = EXCLUDED.tp, project = EXCLUDED.project,
		       exam = EXCLUDED.exam, makeup = EXCLUDED.makeup,
		       bonus = EXCLUDED.bonus, malus = EXCLUDED.malus, final = EXCLUDED.final,
		       absent_from_exam = EXCLUDED.absent_from_exam, absences = EXCLUDED.absences,
		       outcome = EXCLUDED.outcome, mention = EXCLUDED.mention, state = EXCLUDED.state,
		       updated_at = now()
		 WHERE module_scores.state <> 'locked'`,
		ms.EnrollmentID, ms.SessionID, ms.StudentID, ms.ModuleID, ms.YearID, ms.SessionKind,
		ms.CC, ms.TP, ms.Project, ms.Exam, ms.Makeup, ms.Bonus, ms.Malus, ms.Final,
		ms.AbsentFromExam, ms.Absences, ms.Outcome, ms.Mention, ms.State,
	)
	if err != nil {
		return fmt.Errorf("save module score %s: %w", ms.Key(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &academic.StateError{Err: academic.ErrLocked, Entity: "module score", ID: ms.Key(), State: string(grading.StateLocked), Action: "update"}
	}
	return nil
}

// ModuleScores lists the scores of a student for a year.
func (s *Store) ModuleScores(ctx context.Context, studentID, yearID string) ([]grading.ModuleScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scoreColumns+` FROM module_scores
		 WHERE student_id = $1 AND year_id = $2 ORDER BY module_id, session_kind`,
		studentID, yearID,
	)
	if err != nil {
		return nil, fmt.Errorf("list module scores: %w", err)
	}
	defer rows.Close()

	var out []grading.ModuleScore
	for rows.Next() {
		var ms grading.ModuleScore
		if err := rows.Scan(&ms.EnrollmentID, &ms.SessionID, &ms.StudentID, &ms.ModuleID, &ms.YearID, &ms.SessionKind,
			&ms.CC, &ms.TP, &ms.Project, &ms.Exam, &ms.Makeup, &ms.Bonus, &ms.Malus, &ms.Final,
			&ms.AbsentFromExam, &ms.Absences, &ms.Outcome, &ms.Mention, &ms.State); err != nil {
			return nil, fmt.Errorf("scan module score: %w", err)
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

// GetRubric looks up one rubric.
func (s *Store) GetRubric(ctx context.Context, moduleID, yearID string) (grading.Rubric, error) {
	r, _, err := scanRubric(s.db.QueryRowContext(ctx,
		`SELECT `+rubricColumns+` FROM rubrics WHERE module_id = $1 AND year_id = $2`, moduleID, yearID))
	if errors.Is(err, sql.ErrNoRows) {
		return grading.Rubric{}, &academic.NotFoundError{Err: academic.ErrRubricMissing, Entity: "rubric", Key: moduleID + "/" + yearID}
	}
	if err != nil {
		return grading.Rubric{}, fmt.Errorf("get rubric %s/%s: %w", moduleID, yearID, err)
	}
	return r, nil
}
