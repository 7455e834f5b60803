package academic

import (
	"fmt"

	"github.com/google/uuid"
)

// PeriodKind distinguishes semester results from whole-year results.
type PeriodKind string

const (
	PeriodSemester PeriodKind = "semester"
	PeriodYear     PeriodKind = "year"
)

// Period identifies an aggregation window. It is always passed explicitly;
// nothing in the engines resolves a "current" year on its own.
type Period struct {
	Kind   PeriodKind `json:"kind" yaml:"kind"`
	Code   string     `json:"code" yaml:"code"` // S1..S6 for semesters, "year" otherwise
	YearID string     `json:"year_id" yaml:"year_id"`
}

// Semester returns the semester period code for the given year.
func Semester(code, yearID string) Period {
	return Period{Kind: PeriodSemester, Code: code, YearID: yearID}
}

// Year returns the whole-year period for the given year.
func Year(yearID string) Period {
	return Period{Kind: PeriodYear, Code: "year", YearID: yearID}
}

// Validate checks the period is well formed.
func (p Period) Validate() error {
	var fields []FieldError
	switch p.Kind {
	case PeriodSemester:
		if !validSemester(p.Code) {
			fields = append(fields, FieldError{Field: "code", Message: fmt.Sprintf("unknown semester %q", p.Code)})
		}
	case PeriodYear:
	default:
		fields = append(fields, FieldError{Field: "kind", Message: fmt.Sprintf("unknown period kind %q", p.Kind)})
	}
	if p.YearID == "" {
		fields = append(fields, FieldError{Field: "year_id", Message: "required"})
	}
	if len(fields) > 0 {
		return NewValidationError(nil, "period", p.String(), fields...)
	}
	return nil
}

// Contains reports whether a module taught in the given semester belongs to p.
func (p Period) Contains(semester string) bool {
	if p.Kind == PeriodYear {
		return true
	}
	return p.Code == semester
}

func (p Period) String() string {
	return p.YearID + "/" + p.Code
}

func validSemester(code string) bool {
	switch code {
	case "S1", "S2", "S3", "S4", "S5", "S6":
		return true
	}
	return false
}

// NewID returns a fresh random identifier for engine-created records.
func NewID() string {
	return uuid.NewString()
}
