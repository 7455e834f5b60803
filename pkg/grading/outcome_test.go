package grading_test

import (
	"errors"
	"testing"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
)

func TestClassifyOutcome(t *testing.T) {
	r := grading.DefaultRubric("M1", "2025", grading.DefaultSettings())

	tests := []struct {
		score  float64
		normal bool
		want   grading.Outcome
	}{
		{5.99, true, grading.OutcomeEliminated},
		{6, true, grading.OutcomeRetake},
		{11.4, true, grading.OutcomeRetake},
		{11.4, false, grading.OutcomeFailed},
		{12, true, grading.OutcomePassed},
		{12, false, grading.OutcomePassed},
		{0, false, grading.OutcomeEliminated},
	}

	for _, tt := range tests {
		got := grading.ClassifyOutcome(tt.score, r, tt.normal)
		if got != tt.want {
			t.Errorf("ClassifyOutcome(%v, normal=%v) = %s, want %s", tt.score, tt.normal, got, tt.want)
		}
	}
}

func TestClassifyAbsence(t *testing.T) {
	r := grading.DefaultRubric("M1", "2025", grading.DefaultSettings())

	if got := grading.Classify(grading.OutcomeInput{Score: 15, NormalSession: true, AbsentFromExam: true}, r); got != grading.OutcomeAbsent {
		t.Errorf("absent without make-up = %s, want absent", got)
	}
	if got := grading.Classify(grading.OutcomeInput{Score: 15, NormalSession: false, AbsentFromExam: true, HasMakeup: true}, r); got != grading.OutcomePassed {
		t.Errorf("absent with make-up = %s, want passed", got)
	}
}

func TestModuleMention(t *testing.T) {
	tests := []struct {
		score float64
		want  grading.Mention
	}{
		{3, grading.MentionEliminatory},
		{9.99, grading.MentionInsufficient},
		{11, grading.MentionPassable},
		{13, grading.MentionGood},
		{15, grading.MentionVeryGood},
		{17, grading.MentionExcellent},
		{18, grading.MentionHighestHonors},
	}
	for _, tt := range tests {
		if got := grading.ModuleMention(tt.score); got != tt.want {
			t.Errorf("ModuleMention(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestModuleScoreLifecycle(t *testing.T) {
	ms := grading.ModuleScore{EnrollmentID: "enr-1", SessionID: "S1-N", State: grading.StateDraft}

	steps := []func() error{ms.Confirm, ms.Validate, ms.StartDeliberation, ms.Lock}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if ms.State != grading.StateLocked {
		t.Fatalf("State = %s, want locked", ms.State)
	}

	if err := ms.ResetDraft(); !errors.Is(err, academic.ErrLocked) {
		t.Errorf("ResetDraft() on locked err = %v, want ErrLocked", err)
	}
	if err := ms.Compensate(); !errors.Is(err, academic.ErrLocked) {
		t.Errorf("Compensate() on locked err = %v, want ErrLocked", err)
	}
	if ms.State != grading.StateLocked {
		t.Errorf("locked score changed state to %s", ms.State)
	}
}

func TestModuleScoreSkippingStateFails(t *testing.T) {
	ms := grading.ModuleScore{State: grading.StateDraft}
	if err := ms.Lock(); !errors.Is(err, academic.ErrInvalidState) {
		t.Errorf("Lock() from draft err = %v, want ErrInvalidState", err)
	}
	if ms.State != grading.StateDraft {
		t.Errorf("State = %s, want unchanged draft", ms.State)
	}
}

func TestModuleScoreCompensate(t *testing.T) {
	ms := grading.ModuleScore{Outcome: grading.OutcomeRetake, State: grading.StateDeliberation}
	if err := ms.Compensate(); err != nil {
		t.Fatalf("Compensate() error: %v", err)
	}
	if ms.Outcome != grading.OutcomeCompensated || !ms.Outcome.Earned() {
		t.Errorf("Outcome = %s, want compensated and earned", ms.Outcome)
	}

	passed := grading.ModuleScore{Outcome: grading.OutcomePassed}
	if err := passed.Compensate(); err == nil {
		t.Error("compensating a passed module should fail")
	}
}
