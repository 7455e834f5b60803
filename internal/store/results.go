package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
)

func savePeriodResult(ctx context.Context, db execer, r results.PeriodResult) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO period_results (id, student_id, program_id, period_kind, period_code, year_id,
		   simple_average, weighted_average, total_credits, earned_credits, decision, mention, rank, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (student_id, program_id, period_code, year_id) DO UPDATE
		   SET simple_average = EXCLUDED.simple_average,
		       weighted_average = EXCLUDED.weighted_average,
		       total_credits = EXCLUDED.total_credits,
		       earned_credits = EXCLUDED.earned_credits,
		       decision = EXCLUDED.decision,
		       mention = EXCLUDED.mention,
		       rank = EXCLUDED.rank,
		       state = EXCLUDED.state,
		       updated_at = now()
		 WHERE period_results.state <> 'locked'`,
		r.ID, r.StudentID, r.ProgramID, r.Period.Kind, r.Period.Code, r.Period.YearID,
		r.SimpleAverage, r.WeightedAverage, r.TotalCredits, r.EarnedCredits, r.Decision, r.Mention, r.Rank, r.State,
	)
	if err != nil {
		return fmt.Errorf("save period result %s %s: %w", r.StudentID, r.Period, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return lockedResultError(r)
	}
	return nil
}

// SavePeriodResult upserts a result. A stored locked result is never
// overwritten. Results without an ID get one.
func (s *Store) SavePeriodResult(ctx context.Context, r results.PeriodResult) (results.PeriodResult, error) {
	if r.ID == "" {
		r.ID = academic.NewID()
	}
	return r, savePeriodResult(ctx, s.db, r)
}

// LockDeliberation persists a validated deliberation in one transaction:
// the deliberation row, every line, every member result and score, and the
// rubrics those scores were computed with. Either all of it is locked or
// none of it. A member result that is already locked aborts the whole
// transaction with ErrLocked.
func (s *Store) LockDeliberation(ctx context.Context, d *results.Deliberation) error {
	if d.State != results.DeliberationValidated {
		return &academic.StateError{Entity: "deliberation", ID: d.ID, State: string(d.State), Action: "persist lock"}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return lockDeliberation(ctx, tx, d)
	})
}

func lockDeliberation(ctx context.Context, tx execer, d *results.Deliberation) error {
	jury := make([]string, 0, len(d.Jury))
	for _, m := range d.Jury {
		jury = append(jury, m.InstructorID+":"+m.Role)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deliberations (id, program_id, period_kind, period_code, year_id, state, jury, validated_by, validated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		   SET state = EXCLUDED.state, jury = EXCLUDED.jury,
		       validated_by = EXCLUDED.validated_by, validated_at = EXCLUDED.validated_at`,
		d.ID, d.ProgramID, d.Period.Kind, d.Period.Code, d.Period.YearID, d.State,
		pq.Array(jury), d.ValidatedBy, d.ValidatedAt,
	); err != nil {
		return fmt.Errorf("save deliberation %s: %w", d.ID, err)
	}

	type moduleYear struct{ module, year string }
	var rubrics []moduleYear
	seen := make(map[moduleYear]bool)

	for _, l := range d.Lines {
		r := l.Result
		if r.ID == "" {
			r.ID = academic.NewID()
		}
		if err := savePeriodResult(ctx, tx, withState(r, results.StateCalculated)); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE period_results SET decision = $1, rank = $2, state = 'locked', updated_at = now()
			 WHERE student_id = $3 AND program_id = $4 AND period_code = $5 AND year_id = $6
			   AND state <> 'locked'`,
			l.FinalDecision, r.Rank, r.StudentID, r.ProgramID, r.Period.Code, r.Period.YearID,
		)
		if err != nil {
			return fmt.Errorf("lock result %s: %w", r.StudentID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return lockedResultError(r)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deliberation_lines (deliberation_id, result_id, auto_decision, final_decision, jury_note)
			 SELECT $1, id, $2, $3, $4 FROM period_results
			 WHERE student_id = $5 AND program_id = $6 AND period_code = $7 AND year_id = $8
			 ON CONFLICT (deliberation_id, result_id) DO UPDATE
			   SET final_decision = EXCLUDED.final_decision, jury_note = EXCLUDED.jury_note`,
			d.ID, l.AutoDecision, l.FinalDecision, l.JuryNote, r.StudentID, r.ProgramID, r.Period.Code, r.Period.YearID,
		); err != nil {
			return fmt.Errorf("save deliberation line %s: %w", r.StudentID, err)
		}

		for _, ms := range l.Scores {
			res, err := tx.ExecContext(ctx,
				`UPDATE module_scores SET state = $1, updated_at = now()
				 WHERE enrollment_id = $2 AND session_id = $3`,
				grading.StateLocked, ms.EnrollmentID, ms.SessionID,
			)
			if err != nil {
				return fmt.Errorf("lock score %s: %w", ms.Key(), err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return &academic.NotFoundError{Entity: "module score", Key: ms.Key()}
			}
			k := moduleYear{ms.ModuleID, ms.YearID}
			if !seen[k] {
				seen[k] = true
				rubrics = append(rubrics, k)
			}
		}
	}

	// Defaulted rubrics have no row; UpsertRubric guards them through the
	// locked scores instead.
	for _, k := range rubrics {
		if _, err := tx.ExecContext(ctx,
			`UPDATE rubrics SET frozen = TRUE, updated_at = now()
			 WHERE module_id = $1 AND year_id = $2 AND frozen = FALSE`,
			k.module, k.year,
		); err != nil {
			return fmt.Errorf("freeze rubric %s/%s: %w", k.module, k.year, err)
		}
	}
	return nil
}

func lockedResultError(r results.PeriodResult) error {
	return &academic.StateError{Err: academic.ErrLocked, Entity: "period result", ID: r.StudentID + "@" + r.Period.String(), State: string(results.StateLocked), Action: "update"}
}

// LockedResults returns the students whose result for the program and
// period is already locked.
func (s *Store) LockedResults(ctx context.Context, programID string, period academic.Period) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id FROM period_results
		 WHERE program_id = $1 AND period_code = $2 AND year_id = $3 AND state = 'locked'
		 ORDER BY student_id`,
		programID, period.Code, period.YearID,
	)
	if err != nil {
		return nil, fmt.Errorf("list locked results: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan locked result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func withState(r results.PeriodResult, st results.State) results.PeriodResult {
	r.State = st
	return r
}
