package results

import (
	"fmt"
	"math"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
)

// AggregatePeriod rolls the module scores of one student into a result for
// ctx.Period. Scores that are not yet validated, or that belong to another
// semester, are listed in Skipped rather than failing the aggregation.
//
// When a module has both a normal and a make-up session score the make-up
// score is used. The function is pure; re-running it after fixing input
// yields a fresh result.
func AggregatePeriod(studentID string, ctx Context, entries []ModuleEntry) (PeriodResult, error) {
	if err := ctx.Period.Validate(); err != nil {
		return PeriodResult{}, err
	}

	res := PeriodResult{
		StudentID: studentID,
		ProgramID: ctx.ProgramID,
		Period:    ctx.Period,
		Decision:  DecisionPending,
		State:     StateCalculated,
	}

	used, err := selectEntries(studentID, ctx, entries, &res)
	if err != nil {
		return PeriodResult{}, err
	}

	var sum, weighted, coefSum float64
	var failing int
	for _, e := range used {
		out := e.Score.Outcome
		res.Modules++
		res.TotalCredits += e.Credits
		sum += e.Score.Final
		weighted += e.Score.Final * e.Coefficient
		coefSum += e.Coefficient

		switch {
		case out.Earned():
			res.ModulesPassed++
			res.EarnedCredits += e.Credits
		case out == grading.OutcomeRetake:
			res.ModulesRetake++
		case out.Failing():
			res.ModulesFailed++
		}
		if !out.Earned() {
			failing++
		}
	}
	res.FailedCredits = res.TotalCredits - res.EarnedCredits

	if res.Modules > 0 {
		res.SimpleAverage = round2(sum / float64(res.Modules))
		if coefSum > 0 {
			res.WeightedAverage = round2(weighted / coefSum)
		} else {
			res.WeightedAverage = res.SimpleAverage
		}
		res.Decision = decide(failing, res.ModulesRetake, res.WeightedAverage, ctx.PassThreshold)
	}
	res.Mention = PeriodMention(res.WeightedAverage)
	return res, nil
}

// decide applies the admission rules in order. Compensation is only
// considered once no module is still waiting for its make-up session.
func decide(failing, retake int, avg, pass float64) Decision {
	switch {
	case failing == 0:
		return DecisionAdmitted
	case retake == 0 && avg >= pass:
		return DecisionCompensation
	case retake > 0:
		return DecisionRetake
	default:
		return DecisionDeferred
	}
}

func selectEntries(studentID string, ctx Context, entries []ModuleEntry, res *PeriodResult) ([]ModuleEntry, error) {
	byModule := make(map[string]int)
	var used []ModuleEntry
	var fields []academic.FieldError

	for i, e := range entries {
		s := e.Score
		field := fmt.Sprintf("entries[%d]", i)
		if s.StudentID != "" && s.StudentID != studentID {
			fields = append(fields, academic.FieldError{Field: field, Message: fmt.Sprintf("belongs to student %s", s.StudentID)})
			continue
		}
		if e.Credits < 0 || e.Coefficient < 0 {
			fields = append(fields, academic.FieldError{Field: field, Message: "credits and coefficient must not be negative"})
			continue
		}
		if s.YearID != "" && s.YearID != ctx.Period.YearID {
			res.Skipped = append(res.Skipped, Skipped{ModuleID: s.ModuleID, Reason: "other academic year"})
			continue
		}
		if e.Semester != "" && !ctx.Period.Contains(e.Semester) {
			res.Skipped = append(res.Skipped, Skipped{ModuleID: s.ModuleID, Reason: "outside period"})
			continue
		}
		if !s.Aggregatable() {
			res.Skipped = append(res.Skipped, Skipped{ModuleID: s.ModuleID, Reason: "score is " + string(s.State)})
			continue
		}

		if j, ok := byModule[s.ModuleID]; ok {
			prev := used[j].Score
			switch {
			case prev.SessionKind == s.SessionKind:
				fields = append(fields, academic.FieldError{Field: field, Message: fmt.Sprintf("duplicate score for module %s session %s", s.ModuleID, s.SessionKind)})
			case s.SessionKind == grading.SessionMakeup:
				used[j] = e
			}
			continue
		}
		byModule[s.ModuleID] = len(used)
		used = append(used, e)
	}

	if len(fields) > 0 {
		return nil, academic.NewValidationError(nil, "period result", studentID, fields...)
	}
	return used, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
