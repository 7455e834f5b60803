// Package sheets reads mark sheets and module catalogs from CSV and writes
// period results back out as CSV.
package sheets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/ensiasd/academics/internal/batch"
	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
)

// MarkRow is one line of a mark sheet.
type MarkRow struct {
	StudentID    string  `csv:"student_id" validate:"required"`
	EnrollmentID string  `csv:"enrollment_id" validate:"required"`
	ModuleID     string  `csv:"module_id" validate:"required"`
	YearID       string  `csv:"year_id" validate:"required"`
	ElementID    string  `csv:"element_id"`
	SessionID    string  `csv:"session_id" validate:"required"`
	SessionKind  string  `csv:"session_kind" validate:"omitempty,oneof=normal makeup"`
	Kind         string  `csv:"kind" validate:"required,oneof=cc1 cc2 cc3 tp project exam makeup oral"`
	Value        float64 `csv:"value"`
	Absent       bool    `csv:"absent"`
	Bonus        float64 `csv:"bonus" validate:"gte=0"`
	Malus        float64 `csv:"malus" validate:"gte=0"`
}

func (r MarkRow) checkFinite(line string) error {
	var fields []academic.FieldError
	for _, f := range []struct {
		name string
		v    float64
	}{{"value", r.Value}, {"bonus", r.Bonus}, {"malus", r.Malus}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			fields = append(fields, academic.FieldError{Field: f.name, Message: fmt.Sprintf("%g is not a number", f.v)})
		}
	}
	if len(fields) > 0 {
		return academic.NewValidationError(academic.ErrOutOfRangeScore, "mark row", line, fields...)
	}
	return nil
}

// ResultRow is one line of an exported results sheet.
type ResultRow struct {
	Rank            int     `csv:"rank"`
	StudentID       string  `csv:"student_id"`
	ProgramID       string  `csv:"program_id"`
	Period          string  `csv:"period"`
	WeightedAverage float64 `csv:"weighted_average"`
	SimpleAverage   float64 `csv:"simple_average"`
	EarnedCredits   int     `csv:"earned_credits"`
	TotalCredits    int     `csv:"total_credits"`
	Decision        string  `csv:"decision"`
	Mention         string  `csv:"mention"`
	State           string  `csv:"state"`
}

// Format configures the CSV dialect.
type Format struct {
	Comma rune
}

func (f Format) reader(in io.Reader) gocsv.CSVReader {
	r := csv.NewReader(in)
	if f.Comma != 0 {
		r.Comma = f.Comma
	}
	r.TrimLeadingSpace = true
	return r
}

func (f Format) writer(out io.Writer) *gocsv.SafeCSVWriter {
	w := csv.NewWriter(out)
	if f.Comma != 0 {
		w.Comma = f.Comma
	}
	return gocsv.NewSafeCSVWriter(w)
}

// ReadMarks parses a mark sheet and groups its rows into one batch.Sheet
// per enrollment and session. Every invalid row is reported; nothing is
// returned unless all rows are valid.
func (f Format) ReadMarks(in io.Reader) ([]batch.Sheet, error) {
	var rows []MarkRow
	if err := gocsv.UnmarshalCSV(f.reader(in), &rows); err != nil {
		return nil, fmt.Errorf("parse mark sheet: %w", err)
	}

	var errs []error
	for i, row := range rows {
		// header is line 1
		line := fmt.Sprintf("line %d", i+2)
		if err := academic.ValidateStruct("mark row", line, row); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := row.checkFinite(line); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	index := make(map[string]int)
	var sheets []batch.Sheet
	for i, row := range rows {
		key := row.EnrollmentID + "/" + row.SessionID
		j, ok := index[key]
		if !ok {
			kind := grading.SessionKind(row.SessionKind)
			if kind == "" {
				kind = grading.SessionNormal
			}
			j = len(sheets)
			index[key] = j
			sheets = append(sheets, batch.Sheet{
				Enrollment: grading.Enrollment{ID: row.EnrollmentID, StudentID: row.StudentID, ModuleID: row.ModuleID, YearID: row.YearID},
				Session:    grading.Session{ID: row.SessionID, Kind: kind},
			})
		}
		sh := &sheets[j]
		if sh.Enrollment.ModuleID != row.ModuleID || sh.Enrollment.StudentID != row.StudentID {
			return nil, academic.NewValidationError(nil, "mark row", fmt.Sprintf("line %d", i+2),
				academic.FieldError{Field: "enrollment_id", Message: "reused for another student or module"})
		}
		sh.Marks = append(sh.Marks, grading.ComponentScore{
			StudentID:    row.StudentID,
			EnrollmentID: row.EnrollmentID,
			ElementID:    row.ElementID,
			SessionID:    row.SessionID,
			Kind:         grading.Kind(row.Kind),
			Value:        row.Value,
			Absent:       row.Absent,
		})
		if row.Bonus > sh.Adjustment.Bonus {
			sh.Adjustment.Bonus = row.Bonus
		}
		if row.Malus > sh.Adjustment.Malus {
			sh.Adjustment.Malus = row.Malus
		}
	}
	return sheets, nil
}

// ReadCatalog parses a module catalog.
func (f Format) ReadCatalog(in io.Reader) (batch.Catalog, error) {
	var modules []batch.Module
	if err := gocsv.UnmarshalCSV(f.reader(in), &modules); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	catalog := make(batch.Catalog, len(modules))
	var errs []error
	for i, m := range modules {
		if err := academic.ValidateStruct("module", fmt.Sprintf("line %d", i+2), m); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := catalog[m.ID]; dup {
			errs = append(errs, academic.NewValidationError(nil, "module", m.ID,
				academic.FieldError{Field: "module_id", Message: "listed twice"}))
			continue
		}
		catalog[m.ID] = m
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return catalog, nil
}

// WriteResults writes period results in rank order.
func (f Format) WriteResults(out io.Writer, rs []results.PeriodResult) error {
	sorted := make([]results.PeriodResult, len(rs))
	copy(sorted, rs)
	results.ByRank(sorted)

	rows := make([]*ResultRow, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, &ResultRow{
			Rank:            r.Rank,
			StudentID:       r.StudentID,
			ProgramID:       r.ProgramID,
			Period:          r.Period.String(),
			WeightedAverage: r.WeightedAverage,
			SimpleAverage:   r.SimpleAverage,
			EarnedCredits:   r.EarnedCredits,
			TotalCredits:    r.TotalCredits,
			Decision:        string(r.Decision),
			Mention:         string(r.Mention),
			State:           string(r.State),
		})
	}
	if err := gocsv.MarshalCSV(&rows, f.writer(out)); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// StudentIDs returns the distinct students of the sheets, sorted.
func StudentIDs(sheets []batch.Sheet) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, sh := range sheets {
		if id := sh.Enrollment.StudentID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
