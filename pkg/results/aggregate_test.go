package results_test

import (
	"errors"
	"testing"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
)

func entry(module string, final float64, outcome grading.Outcome, credits int) results.ModuleEntry {
	return results.ModuleEntry{
		Score: grading.ModuleScore{
			EnrollmentID: "enr-" + module,
			StudentID:    "stu-1",
			ModuleID:     module,
			YearID:       "2025",
			SessionID:    "normal",
			SessionKind:  grading.SessionNormal,
			Final:        final,
			Outcome:      outcome,
			State:        grading.StateValidated,
		},
		Semester:    "S1",
		Credits:     credits,
		Coefficient: float64(credits),
	}
}

func s1Context() results.Context {
	return results.Context{
		ProgramID:     "GL",
		Period:        academic.Semester("S1", "2025"),
		PassThreshold: 12,
	}
}

func TestAggregatePeriodRetakeSession(t *testing.T) {
	entries := []results.ModuleEntry{
		entry("M1", 14, grading.OutcomePassed, 4),
		entry("M2", 9, grading.OutcomeRetake, 3),
		entry("M3", 16, grading.OutcomePassed, 5),
	}

	res, err := results.AggregatePeriod("stu-1", s1Context(), entries)
	if err != nil {
		t.Fatalf("AggregatePeriod() error: %v", err)
	}
	if res.Decision != results.DecisionRetake {
		t.Errorf("Decision = %s, want %s", res.Decision, results.DecisionRetake)
	}
	if res.EarnedCredits != 9 {
		t.Errorf("EarnedCredits = %d, want 9", res.EarnedCredits)
	}
	if res.TotalCredits != 12 || res.FailedCredits != 3 {
		t.Errorf("credits = %d total / %d failed, want 12 / 3", res.TotalCredits, res.FailedCredits)
	}
	if res.SimpleAverage != 13 {
		t.Errorf("SimpleAverage = %v, want 13", res.SimpleAverage)
	}
	if res.WeightedAverage != 13.58 {
		t.Errorf("WeightedAverage = %v, want 13.58", res.WeightedAverage)
	}
	if res.ModulesPassed != 2 || res.ModulesRetake != 1 || res.ModulesFailed != 0 {
		t.Errorf("counters = %d/%d/%d, want 2/1/0", res.ModulesPassed, res.ModulesRetake, res.ModulesFailed)
	}
	if res.Mention != grading.MentionGood {
		t.Errorf("Mention = %s, want %s", res.Mention, grading.MentionGood)
	}
}

func TestAggregatePeriodDecisions(t *testing.T) {
	tests := []struct {
		name    string
		entries []results.ModuleEntry
		want    results.Decision
	}{
		{
			name: "all passed",
			entries: []results.ModuleEntry{
				entry("M1", 14, grading.OutcomePassed, 4),
				entry("M2", 12, grading.OutcomePassed, 3),
			},
			want: results.DecisionAdmitted,
		},
		{
			name: "compensated module counts as earned",
			entries: []results.ModuleEntry{
				entry("M1", 14, grading.OutcomePassed, 4),
				entry("M2", 11, grading.OutcomeCompensated, 3),
			},
			want: results.DecisionAdmitted,
		},
		{
			name: "failed but average above threshold",
			entries: []results.ModuleEntry{
				entry("M1", 17, grading.OutcomePassed, 4),
				entry("M2", 9, grading.OutcomeFailed, 4),
			},
			want: results.DecisionCompensation,
		},
		{
			name: "failed and average below threshold",
			entries: []results.ModuleEntry{
				entry("M1", 12, grading.OutcomePassed, 4),
				entry("M2", 5, grading.OutcomeEliminated, 4),
			},
			want: results.DecisionDeferred,
		},
		{
			name: "absent module below threshold",
			entries: []results.ModuleEntry{
				entry("M1", 12, grading.OutcomePassed, 4),
				entry("M2", 3, grading.OutcomeAbsent, 4),
			},
			want: results.DecisionDeferred,
		},
		{
			name:    "no modules",
			entries: nil,
			want:    results.DecisionPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := results.AggregatePeriod("stu-1", s1Context(), tt.entries)
			if err != nil {
				t.Fatalf("AggregatePeriod() error: %v", err)
			}
			if res.Decision != tt.want {
				t.Errorf("Decision = %s, want %s", res.Decision, tt.want)
			}
		})
	}
}

func TestAggregatePeriodZeroCoefficientsFallBack(t *testing.T) {
	a := entry("M1", 10, grading.OutcomeRetake, 0)
	b := entry("M2", 15, grading.OutcomePassed, 0)

	res, err := results.AggregatePeriod("stu-1", s1Context(), []results.ModuleEntry{a, b})
	if err != nil {
		t.Fatalf("AggregatePeriod() error: %v", err)
	}
	if res.WeightedAverage != res.SimpleAverage || res.SimpleAverage != 12.5 {
		t.Errorf("averages = %v / %v, want 12.5 / 12.5", res.SimpleAverage, res.WeightedAverage)
	}
}

func TestAggregatePeriodSkipsUnvalidatedScores(t *testing.T) {
	draft := entry("M2", 20, grading.OutcomePassed, 3)
	draft.Score.State = grading.StateConfirmed
	other := entry("M3", 20, grading.OutcomePassed, 3)
	other.Semester = "S2"

	res, err := results.AggregatePeriod("stu-1", s1Context(), []results.ModuleEntry{
		entry("M1", 14, grading.OutcomePassed, 4),
		draft,
		other,
	})
	if err != nil {
		t.Fatalf("AggregatePeriod() error: %v", err)
	}
	if res.Modules != 1 {
		t.Errorf("Modules = %d, want 1", res.Modules)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("Skipped = %v, want 2 entries", res.Skipped)
	}
	if res.Skipped[0].ModuleID != "M2" || res.Skipped[1].ModuleID != "M3" {
		t.Errorf("Skipped = %v", res.Skipped)
	}
}

func TestAggregatePeriodYearIncludesAllSemesters(t *testing.T) {
	second := entry("M2", 10, grading.OutcomePassed, 2)
	second.Semester = "S2"
	ctx := s1Context()
	ctx.Period = academic.Year("2025")

	res, err := results.AggregatePeriod("stu-1", ctx, []results.ModuleEntry{
		entry("M1", 14, grading.OutcomePassed, 2),
		second,
	})
	if err != nil {
		t.Fatalf("AggregatePeriod() error: %v", err)
	}
	if res.Modules != 2 || res.WeightedAverage != 12 {
		t.Errorf("Modules = %d, WeightedAverage = %v, want 2 and 12", res.Modules, res.WeightedAverage)
	}
}

func TestAggregatePeriodPrefersMakeupSession(t *testing.T) {
	first := entry("M2", 9, grading.OutcomeRetake, 3)
	makeup := entry("M2", 12.5, grading.OutcomePassed, 3)
	makeup.Score.SessionID = "makeup"
	makeup.Score.SessionKind = grading.SessionMakeup

	res, err := results.AggregatePeriod("stu-1", s1Context(), []results.ModuleEntry{
		entry("M1", 14, grading.OutcomePassed, 4),
		first,
		makeup,
	})
	if err != nil {
		t.Fatalf("AggregatePeriod() error: %v", err)
	}
	if res.Modules != 2 {
		t.Errorf("Modules = %d, want 2", res.Modules)
	}
	if res.Decision != results.DecisionAdmitted {
		t.Errorf("Decision = %s, want %s", res.Decision, results.DecisionAdmitted)
	}
}

func TestAggregatePeriodRejectsBadInput(t *testing.T) {
	foreign := entry("M1", 14, grading.OutcomePassed, 4)
	foreign.Score.StudentID = "stu-2"

	_, err := results.AggregatePeriod("stu-1", s1Context(), []results.ModuleEntry{foreign})
	if !academic.IsValidation(err) {
		t.Errorf("foreign score: error = %v, want ValidationError", err)
	}

	_, err = results.AggregatePeriod("stu-1", s1Context(), []results.ModuleEntry{
		entry("M1", 14, grading.OutcomePassed, 4),
		entry("M1", 13, grading.OutcomePassed, 4),
	})
	if !academic.IsValidation(err) {
		t.Errorf("duplicate score: error = %v, want ValidationError", err)
	}

	ctx := s1Context()
	ctx.Period = academic.Semester("S9", "2025")
	_, err = results.AggregatePeriod("stu-1", ctx, nil)
	var ve *academic.ValidationError
	if !errors.As(err, &ve) || ve.Entity != "period" {
		t.Errorf("bad period: error = %v, want period ValidationError", err)
	}
}

func TestPeriodMention(t *testing.T) {
	tests := []struct {
		avg  float64
		want grading.Mention
	}{
		{11.99, grading.MentionPassable},
		{12, grading.MentionGood},
		{14, grading.MentionVeryGood},
		{16, grading.MentionExcellent},
		{18, grading.MentionHighestHonors},
	}
	for _, tt := range tests {
		if got := results.PeriodMention(tt.avg); got != tt.want {
			t.Errorf("PeriodMention(%v) = %s, want %s", tt.avg, got, tt.want)
		}
	}
}
