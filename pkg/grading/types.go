// Package grading computes module scores from raw evaluation marks and a
// per-module rubric, and classifies them into outcomes.
// All functions are pure: they take snapshots of their inputs and return
// new values. Persisting the results is the caller's job.
package grading

// Kind is the evaluation kind of a raw mark.
type Kind string

const (
	KindCC1     Kind = "cc1"
	KindCC2     Kind = "cc2"
	KindCC3     Kind = "cc3"
	KindTP      Kind = "tp"
	KindProject Kind = "project"
	KindExam    Kind = "exam"
	KindMakeup  Kind = "makeup"
	KindOral    Kind = "oral"
)

// IsCC reports whether k is one of the continuous-assessment kinds.
func (k Kind) IsCC() bool {
	return k == KindCC1 || k == KindCC2 || k == KindCC3
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCC1, KindCC2, KindCC3, KindTP, KindProject, KindExam, KindMakeup, KindOral:
		return true
	}
	return false
}

// SessionKind is the exam session a score belongs to.
type SessionKind string

const (
	SessionNormal SessionKind = "normal"
	SessionMakeup SessionKind = "makeup"
)

// Outcome is the categorical result of a ModuleScore.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomePassed      Outcome = "passed"
	OutcomeFailed      Outcome = "failed"
	OutcomeRetake      Outcome = "retake"
	OutcomeEliminated  Outcome = "eliminated"
	OutcomeCompensated Outcome = "compensated"
	OutcomeAbsent      Outcome = "absent"
)

// Earned reports whether the module's credits count as earned.
func (o Outcome) Earned() bool {
	return o == OutcomePassed || o == OutcomeCompensated
}

// Failing reports whether the outcome blocks plain admission.
func (o Outcome) Failing() bool {
	return o == OutcomeFailed || o == OutcomeEliminated
}

// Mention is the grade band attached to a module score.
type Mention string

const (
	MentionEliminatory   Mention = "eliminatory"
	MentionInsufficient  Mention = "insufficient"
	MentionPassable      Mention = "passable"
	MentionGood          Mention = "good"
	MentionVeryGood      Mention = "very-good"
	MentionExcellent     Mention = "excellent"
	MentionHighestHonors Mention = "highest-honors"
)

// ModuleMention maps a module final score to its band.
func ModuleMention(score float64) Mention {
	switch {
	case score < 6:
		return MentionEliminatory
	case score < 10:
		return MentionInsufficient
	case score < 12:
		return MentionPassable
	case score < 14:
		return MentionGood
	case score < 16:
		return MentionVeryGood
	case score < 18:
		return MentionExcellent
	default:
		return MentionHighestHonors
	}
}

// ComponentScore is one raw mark for an enrollment in one session.
type ComponentScore struct {
	StudentID    string  `json:"student_id" csv:"student_id"`
	EnrollmentID string  `json:"enrollment_id" csv:"enrollment_id"`
	ElementID    string  `json:"element_id" csv:"element_id"`
	SessionID    string  `json:"session_id" csv:"session_id"`
	Kind         Kind    `json:"kind" csv:"kind"`
	Value        float64 `json:"value" csv:"value"`
	Absent       bool    `json:"absent" csv:"absent"`
}

// Adjustment holds the jury bonus and malus for one module score.
type Adjustment struct {
	Bonus float64 `json:"bonus"`
	Malus float64 `json:"malus"`
}

// Enrollment identifies whose score is computed.
type Enrollment struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	ModuleID  string `json:"module_id"`
	YearID    string `json:"year_id"`
}

// Session identifies the exam session a score is computed for.
type Session struct {
	ID   string      `json:"id"`
	Kind SessionKind `json:"kind"`
}

// ModuleScore is the final computed grade for one enrollment and session.
type ModuleScore struct {
	EnrollmentID   string      `json:"enrollment_id"`
	StudentID      string      `json:"student_id"`
	ModuleID       string      `json:"module_id"`
	YearID         string      `json:"year_id"`
	SessionID      string      `json:"session_id"`
	SessionKind    SessionKind `json:"session_kind"`
	CC             *float64    `json:"cc,omitempty"`
	TP             *float64    `json:"tp,omitempty"`
	Project        *float64    `json:"project,omitempty"`
	Exam           *float64    `json:"exam,omitempty"`
	Makeup         *float64    `json:"makeup,omitempty"`
	Bonus          float64     `json:"bonus"`
	Malus          float64     `json:"malus"`
	Final          float64     `json:"final"`
	AbsentFromExam bool        `json:"absent_from_exam"`
	Absences       int         `json:"absences"`
	Outcome        Outcome     `json:"outcome"`
	Mention        Mention     `json:"mention"`
	State          State       `json:"state"`
}

// Key is the uniqueness key of a ModuleScore: one per (enrollment, session).
func (s ModuleScore) Key() string {
	return s.EnrollmentID + "/" + s.SessionID
}
