package grading_test

import (
	"errors"
	"math"
	"testing"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
)

func exampleRubric(t *testing.T, policy grading.MakeupPolicy) grading.Rubric {
	t.Helper()
	r, err := grading.NewRubric(grading.Rubric{
		ModuleID:             "M1",
		YearID:               "2025",
		Weights:              grading.Weights{CC: 30, Exam: 50, TP: 20, Project: 0},
		EliminationThreshold: 6,
		PassThreshold:        12,
		MakeupAllowed:        true,
		MakeupPolicy:         policy,
		BonusCap:             2,
	}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("NewRubric() error: %v", err)
	}
	return r
}

func marks(pairs ...interface{}) []grading.ComponentScore {
	var out []grading.ComponentScore
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, grading.ComponentScore{
			StudentID:    "stu-1",
			EnrollmentID: "enr-1",
			Kind:         pairs[i].(grading.Kind),
			Value:        pairs[i+1].(float64),
		})
	}
	return out
}

var (
	enr    = grading.Enrollment{ID: "enr-1", StudentID: "stu-1", ModuleID: "M1", YearID: "2025"}
	normal = grading.Session{ID: "S1-N", Kind: grading.SessionNormal}
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeModuleScoreRetakeExample(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	comps := marks(grading.KindCC1, 12.0, grading.KindCC2, 16.0, grading.KindTP, 16.0, grading.KindExam, 8.0)

	ms, err := grading.ComputeModuleScore(enr, normal, r, comps, grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("ComputeModuleScore() error: %v", err)
	}
	if !almostEqual(ms.Final, 11.4) {
		t.Errorf("Final = %v, want 11.4", ms.Final)
	}
	if ms.Outcome != grading.OutcomeRetake {
		t.Errorf("Outcome = %s, want retake", ms.Outcome)
	}
	if ms.CC == nil || !almostEqual(*ms.CC, 14) {
		t.Errorf("CC average = %v, want 14", ms.CC)
	}
	if ms.State != grading.StateDraft {
		t.Errorf("State = %s, want draft", ms.State)
	}
}

func TestComputeModuleScoreMakeupPolicies(t *testing.T) {
	comps := marks(grading.KindCC1, 14.0, grading.KindTP, 16.0, grading.KindExam, 8.0, grading.KindMakeup, 13.0)

	tests := []struct {
		policy grading.MakeupPolicy
		want   float64
		out    grading.Outcome
	}{
		{grading.MakeupKeepBest, 13.9, grading.OutcomePassed},
		{grading.MakeupReplacesExam, 13.9, grading.OutcomePassed},
		{grading.MakeupReplacesTotal, 13.0, grading.OutcomePassed},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			r := exampleRubric(t, tt.policy)
			ms, err := grading.ComputeModuleScore(enr, normal, r, comps, grading.Adjustment{}, grading.DefaultSettings())
			if err != nil {
				t.Fatalf("ComputeModuleScore() error: %v", err)
			}
			if !almostEqual(ms.Final, tt.want) {
				t.Errorf("Final = %v, want %v", ms.Final, tt.want)
			}
			if ms.Outcome != tt.out {
				t.Errorf("Outcome = %s, want %s", ms.Outcome, tt.out)
			}
		})
	}
}

func TestComputeModuleScoreReplacesExamUsesMakeupEvenIfLower(t *testing.T) {
	r := exampleRubric(t, grading.MakeupReplacesExam)
	comps := marks(grading.KindCC1, 14.0, grading.KindTP, 16.0, grading.KindExam, 10.0, grading.KindMakeup, 8.0)

	ms, err := grading.ComputeModuleScore(enr, normal, r, comps, grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("ComputeModuleScore() error: %v", err)
	}
	if !almostEqual(ms.Final, 11.4) {
		t.Errorf("Final = %v, want 11.4", ms.Final)
	}
}

func TestComputeModuleScoreMissingCategoriesContributeZero(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)

	ms, err := grading.ComputeModuleScore(enr, normal, r, marks(grading.KindExam, 10.0), grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("ComputeModuleScore() error: %v", err)
	}
	if !almostEqual(ms.Final, 5) {
		t.Errorf("Final = %v, want 5", ms.Final)
	}
	if ms.Outcome != grading.OutcomeEliminated {
		t.Errorf("Outcome = %s, want eliminated", ms.Outcome)
	}

	empty, err := grading.ComputeModuleScore(enr, normal, r, nil, grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("empty components should not fail: %v", err)
	}
	if empty.Final != 0 {
		t.Errorf("Final = %v, want 0", empty.Final)
	}
}

func TestComputeModuleScoreClamps(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	r.BonusCap = 1000
	s := grading.DefaultSettings()
	comps := marks(grading.KindCC1, 18.0, grading.KindTP, 19.0, grading.KindExam, 19.5)

	tests := []struct {
		name string
		adj  grading.Adjustment
		want float64
	}{
		{"huge bonus", grading.Adjustment{Bonus: 500}, s.MaxScore},
		{"huge malus", grading.Adjustment{Malus: 500}, 0},
		{"both", grading.Adjustment{Bonus: 999, Malus: 1}, s.MaxScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, err := grading.ComputeModuleScore(enr, normal, r, comps, tt.adj, s)
			if err != nil {
				t.Fatalf("ComputeModuleScore() error: %v", err)
			}
			if ms.Final != tt.want {
				t.Errorf("Final = %v, want %v", ms.Final, tt.want)
			}
			if ms.Final < 0 || ms.Final > s.MaxScore {
				t.Errorf("Final %v outside [0, %v]", ms.Final, s.MaxScore)
			}
		})
	}
}

func TestComputeModuleScoreCustomMax(t *testing.T) {
	s := grading.DefaultSettings()
	s.MaxScore = 100
	r, err := grading.NewRubric(grading.Rubric{
		ModuleID:             "M1",
		YearID:               "2025",
		Weights:              grading.Weights{Exam: 100},
		EliminationThreshold: 30,
		PassThreshold:        60,
		MakeupPolicy:         grading.MakeupKeepBest,
	}, s)
	if err != nil {
		t.Fatalf("NewRubric() error: %v", err)
	}

	ms, err := grading.ComputeModuleScore(enr, normal, r, marks(grading.KindExam, 75.0), grading.Adjustment{}, s)
	if err != nil {
		t.Fatalf("ComputeModuleScore() error: %v", err)
	}
	if ms.Final != 75 || ms.Outcome != grading.OutcomePassed {
		t.Errorf("got %v/%s, want 75/passed", ms.Final, ms.Outcome)
	}
}

func TestComputeModuleScoreRejectsOutOfRange(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)

	for _, v := range []float64{-0.5, 20.5} {
		_, err := grading.ComputeModuleScore(enr, normal, r, marks(grading.KindExam, v), grading.Adjustment{}, grading.DefaultSettings())
		if !errors.Is(err, academic.ErrOutOfRangeScore) {
			t.Errorf("value %v: err = %v, want ErrOutOfRangeScore", v, err)
		}
		var ve *academic.ValidationError
		if !errors.As(err, &ve) || len(ve.Fields) == 0 {
			t.Errorf("value %v: expected ValidationError with field detail, got %v", v, err)
		}
	}
}

func TestComputeModuleScoreRejectsNonFiniteMarks(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		ms, err := grading.ComputeModuleScore(enr, normal, r, marks(grading.KindExam, v), grading.Adjustment{}, grading.DefaultSettings())
		if !errors.Is(err, academic.ErrOutOfRangeScore) {
			t.Errorf("value %v: err = %v (final %v), want ErrOutOfRangeScore", v, err, ms.Final)
		}
	}

	for _, adj := range []grading.Adjustment{{Bonus: math.NaN()}, {Malus: math.NaN()}, {Malus: math.Inf(1)}} {
		_, err := grading.ComputeModuleScore(enr, normal, r, marks(grading.KindExam, 10.0), adj, grading.DefaultSettings())
		if !errors.Is(err, academic.ErrOutOfRangeScore) {
			t.Errorf("adjustment %+v: err = %v, want ErrOutOfRangeScore", adj, err)
		}
	}
}

func TestComputeModuleScoreAbsentIgnoresValue(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	comps := []grading.ComponentScore{
		{EnrollmentID: "enr-1", Kind: grading.KindCC1, Value: 14},
		{EnrollmentID: "enr-1", Kind: grading.KindExam, Value: -1, Absent: true},
	}

	ms, err := grading.ComputeModuleScore(enr, normal, r, comps, grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("absent mark must not be range checked: %v", err)
	}
	if !ms.AbsentFromExam || ms.Outcome != grading.OutcomeAbsent {
		t.Errorf("got absent=%v outcome=%s, want absent", ms.AbsentFromExam, ms.Outcome)
	}
	if ms.Absences != 1 {
		t.Errorf("Absences = %d, want 1", ms.Absences)
	}

	withMakeup := append(comps, grading.ComponentScore{EnrollmentID: "enr-1", Kind: grading.KindMakeup, Value: 15})
	ms, err = grading.ComputeModuleScore(enr, normal, r, withMakeup, grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("ComputeModuleScore() error: %v", err)
	}
	if ms.Outcome == grading.OutcomeAbsent {
		t.Error("a make-up mark should lift the absent outcome")
	}
}

func TestComputeModuleScoreKeepBestCC(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	r.KeepBestCC = true
	comps := marks(grading.KindCC1, 10.0, grading.KindCC2, 18.0)

	ms, err := grading.ComputeModuleScore(enr, normal, r, comps, grading.Adjustment{}, grading.DefaultSettings())
	if err != nil {
		t.Fatalf("ComputeModuleScore() error: %v", err)
	}
	if ms.CC == nil || *ms.CC != 18 {
		t.Errorf("CC = %v, want best mark 18", ms.CC)
	}
}

func TestComputeModuleScoreRejectsBonusOverCap(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	_, err := grading.ComputeModuleScore(enr, normal, r, nil, grading.Adjustment{Bonus: 3}, grading.DefaultSettings())
	if !academic.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestComputeModuleScoreRejectsForeignEnrollment(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	comps := []grading.ComponentScore{{EnrollmentID: "enr-2", Kind: grading.KindExam, Value: 10}}
	_, err := grading.ComputeModuleScore(enr, normal, r, comps, grading.Adjustment{}, grading.DefaultSettings())
	if !academic.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestRecomputeRefusesLocked(t *testing.T) {
	r := exampleRubric(t, grading.MakeupKeepBest)
	ms := grading.ModuleScore{EnrollmentID: "enr-1", SessionID: "S1-N", State: grading.StateLocked}
	if _, err := grading.Recompute(ms, r, grading.DefaultSettings()); !errors.Is(err, academic.ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}
