package grading

import (
	"fmt"
	"math"

	"github.com/ensiasd/academics/pkg/academic"
)

// categoryMarks collects the usable marks of one enrollment by category.
type categoryMarks struct {
	cc, tp, project, exam, makeup []float64
	absentFromExam                bool
	absences                      int
}

// ComputeModuleScore combines the raw marks of an enrollment into a final
// module score under the rubric.
//
// Categories without marks contribute zero. Marks that are not flagged
// absent and are outside [0, max] or not finite are rejected with
// ErrOutOfRangeScore.
func ComputeModuleScore(enr Enrollment, sess Session, r Rubric, components []ComponentScore, adj Adjustment, s Settings) (ModuleScore, error) {
	marks, err := collect(enr, components, s)
	if err != nil {
		return ModuleScore{}, err
	}
	if err := checkAdjustment(enr, r, adj); err != nil {
		return ModuleScore{}, err
	}
	if sess.Kind == "" {
		sess.Kind = SessionNormal
	}

	ms := ModuleScore{
		EnrollmentID:   enr.ID,
		StudentID:      enr.StudentID,
		ModuleID:       enr.ModuleID,
		YearID:         enr.YearID,
		SessionID:      sess.ID,
		SessionKind:    sess.Kind,
		CC:             ccMark(marks.cc, r.KeepBestCC),
		TP:             mean(marks.tp),
		Project:        mean(marks.project),
		Exam:           mean(marks.exam),
		Bonus:          adj.Bonus,
		Malus:          adj.Malus,
		AbsentFromExam: marks.absentFromExam,
		Absences:       marks.absences,
		State:          StateDraft,
	}
	if r.MakeupAllowed {
		ms.Makeup = mean(marks.makeup)
	}

	ms.Final = finalScore(ms, r, s.MaxScore)
	ms.Outcome = Classify(OutcomeInput{
		Score:          ms.Final,
		NormalSession:  sess.Kind == SessionNormal,
		AbsentFromExam: ms.AbsentFromExam,
		HasMakeup:      ms.Makeup != nil,
	}, r)
	ms.Mention = ModuleMention(ms.Final)
	return ms, nil
}

// Recompute refreshes the derived fields of a score after its category
// marks or adjustment changed. Locked scores are refused.
func Recompute(ms ModuleScore, r Rubric, s Settings) (ModuleScore, error) {
	if ms.State == StateLocked {
		return ms, &academic.StateError{Err: academic.ErrLocked, Entity: "module score", ID: ms.Key(), State: string(ms.State), Action: "recompute"}
	}
	ms.Final = finalScore(ms, r, s.MaxScore)
	ms.Outcome = Classify(OutcomeInput{
		Score:          ms.Final,
		NormalSession:  ms.SessionKind != SessionMakeup,
		AbsentFromExam: ms.AbsentFromExam,
		HasMakeup:      ms.Makeup != nil,
	}, r)
	ms.Mention = ModuleMention(ms.Final)
	return ms, nil
}

func collect(enr Enrollment, components []ComponentScore, s Settings) (categoryMarks, error) {
	var m categoryMarks
	var fields []academic.FieldError
	for i, c := range components {
		field := fmt.Sprintf("components[%d].%s", i, c.Kind)
		if enr.ID != "" && c.EnrollmentID != "" && c.EnrollmentID != enr.ID {
			fields = append(fields, academic.FieldError{Field: field, Message: fmt.Sprintf("belongs to enrollment %s", c.EnrollmentID)})
			continue
		}
		if !c.Kind.Valid() {
			fields = append(fields, academic.FieldError{Field: field, Message: fmt.Sprintf("unknown evaluation kind %q", c.Kind)})
			continue
		}
		if c.Absent {
			m.absences++
			if c.Kind == KindExam {
				m.absentFromExam = true
			}
			continue
		}
		if !finite(c.Value) || c.Value < 0 || c.Value > s.MaxScore {
			return m, academic.NewValidationError(academic.ErrOutOfRangeScore, "component score", c.StudentID,
				academic.FieldError{Field: field, Message: fmt.Sprintf("%g is outside [0, %g]", c.Value, s.MaxScore)})
		}
		switch {
		case c.Kind.IsCC():
			m.cc = append(m.cc, c.Value)
		case c.Kind == KindTP:
			m.tp = append(m.tp, c.Value)
		case c.Kind == KindProject:
			m.project = append(m.project, c.Value)
		case c.Kind == KindExam, c.Kind == KindOral:
			m.exam = append(m.exam, c.Value)
		case c.Kind == KindMakeup:
			m.makeup = append(m.makeup, c.Value)
		}
	}
	if len(fields) > 0 {
		return m, academic.NewValidationError(nil, "component score", enr.ID, fields...)
	}
	return m, nil
}

func checkAdjustment(enr Enrollment, r Rubric, adj Adjustment) error {
	var fields []academic.FieldError
	if !finite(adj.Bonus) || !finite(adj.Malus) {
		return academic.NewValidationError(academic.ErrOutOfRangeScore, "adjustment", enr.ID,
			academic.FieldError{Field: "bonus", Message: fmt.Sprintf("bonus %g and malus %g must be finite", adj.Bonus, adj.Malus)})
	}
	if adj.Bonus < 0 {
		fields = append(fields, academic.FieldError{Field: "bonus", Message: "must not be negative"})
	} else if adj.Bonus > r.BonusCap {
		fields = append(fields, academic.FieldError{Field: "bonus", Message: fmt.Sprintf("%g exceeds cap %g", adj.Bonus, r.BonusCap)})
	}
	if adj.Malus < 0 {
		fields = append(fields, academic.FieldError{Field: "malus", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return academic.NewValidationError(nil, "adjustment", enr.ID, fields...)
	}
	return nil
}

// finalScore applies the rubric weights and make-up policy, then the
// adjustment, then clamps to [0, max].
func finalScore(ms ModuleScore, r Rubric, maxScore float64) float64 {
	w := r.Weights
	note := 0.0
	if w.CC > 0 && ms.CC != nil {
		note += *ms.CC * w.CC / 100
	}
	if w.TP > 0 && ms.TP != nil {
		note += *ms.TP * w.TP / 100
	}
	if w.Project > 0 && ms.Project != nil {
		note += *ms.Project * w.Project / 100
	}
	if w.Exam > 0 {
		exam := 0.0
		if ms.Exam != nil {
			exam = *ms.Exam
		}
		if ms.Makeup != nil {
			switch r.MakeupPolicy {
			case MakeupReplacesExam:
				exam = *ms.Makeup
			case MakeupKeepBest:
				exam = math.Max(exam, *ms.Makeup)
			case MakeupReplacesTotal:
				note = *ms.Makeup
			}
		}
		if ms.Makeup == nil || r.MakeupPolicy != MakeupReplacesTotal {
			note += exam * w.Exam / 100
		}
	}

	note = note + ms.Bonus - ms.Malus
	return round2(clamp(note, 0, maxScore))
}

func ccMark(values []float64, keepBest bool) *float64 {
	if len(values) == 0 {
		return nil
	}
	if !keepBest {
		return mean(values)
	}
	best := values[0]
	for _, v := range values[1:] {
		best = math.Max(best, v)
	}
	return &best
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// round2 rounds to two decimals, the precision marks are stored with.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
