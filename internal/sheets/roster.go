package sheets

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/ensiasd/academics/pkg/academic"
)

// RosterRow is one enrollment line of a student roster.
type RosterRow struct {
	StudentID string `csv:"student_id" validate:"required"`
	Number    string `csv:"number"`
	FirstName string `csv:"first_name"`
	LastName  string `csv:"last_name"`
	Email     string `csv:"email" validate:"omitempty,email"`
	ProgramID string `csv:"program_id" validate:"required"`
	YearID    string `csv:"year_id" validate:"required"`
	Level     int    `csv:"level" validate:"gte=0"`
	Groups    string `csv:"groups"` // space separated
}

// ReadRoster parses a roster. A student listed for several years gets one
// enrollment per year, in file order.
func (f Format) ReadRoster(in io.Reader) ([]academic.Student, error) {
	var rows []RosterRow
	if err := gocsv.UnmarshalCSV(f.reader(in), &rows); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	index := make(map[string]int)
	var students []academic.Student
	var errs []error
	for i, row := range rows {
		line := fmt.Sprintf("line %d", i+2)
		if err := academic.ValidateStruct("roster row", line, row); err != nil {
			errs = append(errs, err)
			continue
		}
		j, ok := index[row.StudentID]
		if !ok {
			j = len(students)
			index[row.StudentID] = j
			students = append(students, academic.Student{Identity: academic.Identity{
				ID:        row.StudentID,
				Number:    row.Number,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Email:     row.Email,
			}})
		}
		s := &students[j]
		if _, dup := s.EnrollmentFor(row.YearID); dup {
			errs = append(errs, academic.NewValidationError(nil, "roster row", line,
				academic.FieldError{Field: "year_id", Message: fmt.Sprintf("student %s already enrolled for %s", row.StudentID, row.YearID)}))
			continue
		}
		s.Academic.Enrollments = append(s.Academic.Enrollments, academic.Enrollment{
			ID:        row.StudentID + "@" + row.YearID,
			ProgramID: row.ProgramID,
			YearID:    row.YearID,
			Level:     row.Level,
		})
		if groups := strings.Fields(row.Groups); len(groups) > 0 {
			s.Scheduling.GroupIDs = groups
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return students, nil
}

// Enrolled returns the sorted ids of the students enrolled in the program
// for the year.
func Enrolled(students []academic.Student, programID, yearID string) []string {
	var ids []string
	for _, s := range students {
		if e, ok := s.EnrollmentFor(yearID); ok && e.ProgramID == programID {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
