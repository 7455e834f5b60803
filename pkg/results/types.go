// Package results aggregates validated module scores into semester and year
// results, decides admission, ranks cohorts and drives jury deliberations.
package results

import (
	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
)

// Decision is the academic decision attached to a PeriodResult.
type Decision string

const (
	DecisionPending      Decision = "pending"
	DecisionAdmitted     Decision = "admitted"
	DecisionCompensation Decision = "admitted-by-compensation"
	DecisionRetake       Decision = "retake-session"
	DecisionDeferred     Decision = "deferred"
	DecisionRepeating    Decision = "repeating" // jury only
	DecisionExcluded     Decision = "excluded"  // jury only
)

// Admits reports whether the decision lets the student progress.
func (d Decision) Admits() bool {
	return d == DecisionAdmitted || d == DecisionCompensation
}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionPending, DecisionAdmitted, DecisionCompensation, DecisionRetake,
		DecisionDeferred, DecisionRepeating, DecisionExcluded:
		return true
	}
	return false
}

// State is the lifecycle state of a PeriodResult.
type State string

const (
	StateDraft      State = "draft"
	StateCalculated State = "calculated"
	StateValidated  State = "validated"
	StateLocked     State = "locked"
)

// ModuleEntry is one module score with the credit weight of its module.
type ModuleEntry struct {
	Score       grading.ModuleScore `json:"score"`
	Semester    string              `json:"semester"`
	Credits     int                 `json:"credits"`
	Coefficient float64             `json:"coefficient"`
}

// Context carries the explicit parameters of one aggregation. Nothing is
// looked up implicitly.
type Context struct {
	ProgramID     string          `json:"program_id"`
	Period        academic.Period `json:"period"`
	PassThreshold float64         `json:"pass_threshold"`
}

// Skipped records a module score left out of an aggregate, with why.
type Skipped struct {
	ModuleID string `json:"module_id"`
	Reason   string `json:"reason"`
}

// PeriodResult is a student's aggregate over a semester or a year.
type PeriodResult struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"student_id"`
	ProgramID       string          `json:"program_id"`
	Period          academic.Period `json:"period"`
	SimpleAverage   float64         `json:"simple_average"`
	WeightedAverage float64         `json:"weighted_average"`
	TotalCredits    int             `json:"total_credits"`
	EarnedCredits   int             `json:"earned_credits"`
	FailedCredits   int             `json:"failed_credits"`
	Modules         int             `json:"modules"`
	ModulesPassed   int             `json:"modules_passed"`
	ModulesFailed   int             `json:"modules_failed"`
	ModulesRetake   int             `json:"modules_retake"`
	Decision        Decision        `json:"decision"`
	Mention         grading.Mention `json:"mention"`
	Rank            int             `json:"rank"`
	State           State           `json:"state"`
	Skipped         []Skipped       `json:"skipped,omitempty"`
}

// GroupKey is the ranking scope of a result: program, period and year.
func (r PeriodResult) GroupKey() string {
	return r.ProgramID + "|" + r.Period.Code + "|" + r.Period.YearID
}

// PeriodMention maps a weighted average to the period grade band.
func PeriodMention(avg float64) grading.Mention {
	switch {
	case avg < 12:
		return grading.MentionPassable
	case avg < 14:
		return grading.MentionGood
	case avg < 16:
		return grading.MentionVeryGood
	case avg < 18:
		return grading.MentionExcellent
	default:
		return grading.MentionHighestHonors
	}
}
