package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
	"github.com/ensiasd/academics/pkg/timetable"
)

type execCall struct {
	query string
	args  []any
}

// recordingExec records statements and reports one affected row unless
// rows says otherwise.
type recordingExec struct {
	calls []execCall
	rows  func(query string) int64
}

func (r *recordingExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.calls = append(r.calls, execCall{query: query, args: args})
	n := int64(1)
	if r.rows != nil {
		n = r.rows(query)
	}
	return driver.RowsAffected(n), nil
}

func (r *recordingExec) matching(prefix string) []execCall {
	var out []execCall
	for _, c := range r.calls {
		if strings.HasPrefix(strings.TrimSpace(c.query), prefix) {
			out = append(out, c)
		}
	}
	return out
}

func validatedDeliberation() *results.Deliberation {
	period := academic.Semester("S1", "2025")
	line := func(student string, modules ...string) results.Line {
		var scores []grading.ModuleScore
		for _, m := range modules {
			scores = append(scores, grading.ModuleScore{
				EnrollmentID: student + "-" + m, SessionID: "S1-N", StudentID: student,
				ModuleID: m, YearID: "2025", State: grading.StateDeliberation,
			})
		}
		return results.Line{
			Result:        results.PeriodResult{ID: academic.NewID(), StudentID: student, ProgramID: "GL", Period: period, Rank: 1},
			Scores:        scores,
			AutoDecision:  results.DecisionAdmitted,
			FinalDecision: results.DecisionAdmitted,
		}
	}
	return &results.Deliberation{
		ID:          academic.NewID(),
		ProgramID:   "GL",
		Period:      period,
		State:       results.DeliberationValidated,
		Lines:       []results.Line{line("a", "M1", "M2"), line("b", "M1")},
		ValidatedBy: "prof-1",
		ValidatedAt: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestLockDeliberationFreezesRubrics(t *testing.T) {
	tx := &recordingExec{}
	if err := lockDeliberation(context.Background(), tx, validatedDeliberation()); err != nil {
		t.Fatalf("lockDeliberation() error: %v", err)
	}

	freezes := tx.matching("UPDATE rubrics SET frozen = TRUE")
	if len(freezes) != 2 {
		t.Fatalf("got %d rubric freezes, want one per module and year (2)", len(freezes))
	}
	for i, want := range []string{"M1", "M2"} {
		if freezes[i].args[0] != want || freezes[i].args[1] != "2025" {
			t.Errorf("freeze %d args = %v, want %s/2025", i, freezes[i].args, want)
		}
	}
	if n := len(tx.matching("UPDATE module_scores")); n != 3 {
		t.Errorf("locked %d scores, want 3", n)
	}
	last := tx.calls[len(tx.calls)-1].query
	if !strings.Contains(last, "UPDATE rubrics") {
		t.Errorf("rubrics should be frozen after the scores are locked, last statement: %s", last)
	}
}

func TestLockDeliberationRefusesLockedResults(t *testing.T) {
	tests := []struct {
		name  string
		zero  string
		locks int
	}{
		{name: "upsert skipped", zero: "INSERT INTO period_results", locks: 0},
		{name: "lock update skipped", zero: "UPDATE period_results", locks: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := &recordingExec{rows: func(q string) int64 {
				if strings.HasPrefix(strings.TrimSpace(q), tc.zero) {
					return 0
				}
				return 1
			}}
			err := lockDeliberation(context.Background(), tx, validatedDeliberation())
			if !academic.IsLocked(err) {
				t.Fatalf("lockDeliberation() = %v, want ErrLocked", err)
			}
			locks := tx.matching("UPDATE period_results")
			if len(locks) != tc.locks {
				t.Errorf("issued %d result locks, want %d", len(locks), tc.locks)
			}
			for _, c := range locks {
				if !strings.Contains(c.query, "state <> 'locked'") {
					t.Errorf("result lock is not guarded: %s", c.query)
				}
			}
			if n := len(tx.matching("UPDATE rubrics")); n != 0 {
				t.Errorf("froze %d rubrics after a refused lock", n)
			}
		})
	}
}

func TestSaveTimetableUpsertsLines(t *testing.T) {
	tt := &timetable.Timetable{
		ID: academic.NewID(), ProgramID: "GL", Semester: "S1", YearID: "2025", Version: 1,
		State: timetable.StateConfirmed,
		Lines: []timetable.Line{
			{ID: academic.NewID(), Weekday: time.Monday, Slot: timetable.TimeSlot{ID: "s1", Start: timetable.At(8, 30), End: timetable.At(10, 0)},
				ElementID: "E1", RoomID: "A1", InstructorID: "p1", Frequency: timetable.Weekly},
			{Weekday: time.Tuesday, Slot: timetable.TimeSlot{ID: "s1", Start: timetable.At(8, 30), End: timetable.At(10, 0)},
				ElementID: "E2", RoomID: "A2", InstructorID: "p2"},
		},
	}
	tx := &recordingExec{}
	if err := saveTimetable(context.Background(), tx, tt); err != nil {
		t.Fatalf("saveTimetable() error: %v", err)
	}
	if tt.Lines[1].ID == "" {
		t.Fatal("line without id was not given one")
	}

	deletes := tx.matching("DELETE FROM timetable_lines")
	if len(deletes) != 1 || !strings.Contains(deletes[0].query, "NOT (id = ANY(") {
		t.Fatalf("deletes = %+v, want one delete of removed lines only", deletes)
	}
	kept, ok := deletes[0].args[1].(*pq.StringArray)
	if !ok || len(*kept) != 2 || (*kept)[0] != tt.Lines[0].ID || (*kept)[1] != tt.Lines[1].ID {
		t.Errorf("kept ids = %v, want both line ids", deletes[0].args[1])
	}

	inserts := tx.matching("INSERT INTO timetable_lines")
	if len(inserts) != 2 {
		t.Fatalf("got %d line upserts, want 2", len(inserts))
	}
	for _, c := range inserts {
		if !strings.Contains(c.query, "ON CONFLICT (id) DO UPDATE") {
			t.Errorf("line insert is not an upsert: %s", c.query)
		}
	}
	if got := inserts[1].args[11]; got != timetable.Weekly {
		t.Errorf("empty frequency saved as %v, want weekly", got)
	}
	if tx.calls[1].query != deletes[0].query {
		t.Error("removed lines should be deleted before the upserts")
	}
}

func TestSaveTimetableRejectsForeignLine(t *testing.T) {
	tt := &timetable.Timetable{
		ID: academic.NewID(), ProgramID: "GL", Semester: "S1", YearID: "2025",
		Lines: []timetable.Line{{ID: academic.NewID(), Weekday: time.Monday, ElementID: "E1", RoomID: "A1", InstructorID: "p1"}},
	}
	tx := &recordingExec{rows: func(q string) int64 {
		if strings.HasPrefix(strings.TrimSpace(q), "INSERT INTO timetable_lines") {
			return 0
		}
		return 1
	}}
	if err := saveTimetable(context.Background(), tx, tt); !academic.IsValidation(err) {
		t.Errorf("saveTimetable() = %v, want ValidationError", err)
	}
}

func TestUpsertRubricGuardsLockedScores(t *testing.T) {
	r := grading.DefaultRubric("M1", "2025", grading.DefaultSettings())

	db := &recordingExec{}
	if err := upsertRubric(context.Background(), db, r); err != nil {
		t.Fatalf("upsertRubric() error: %v", err)
	}
	q := db.calls[0].query
	for _, want := range []string{"NOT EXISTS", "ms.state = 'locked'", "WHERE rubrics.frozen = FALSE"} {
		if !strings.Contains(q, want) {
			t.Errorf("rubric upsert missing %q", want)
		}
	}

	db = &recordingExec{rows: func(string) int64 { return 0 }}
	err := upsertRubric(context.Background(), db, r)
	if !academic.IsLocked(err) {
		t.Errorf("upsertRubric() = %v, want ErrLocked", err)
	}
	var se *academic.StateError
	if !errors.As(err, &se) || se.ID != "M1/2025" {
		t.Errorf("state error = %+v, want rubric M1/2025", se)
	}
}
