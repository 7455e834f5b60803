// Package surface defines output rendering for grading, results and
// timetable reports. Implementations handle different output targets:
// terminal, JSON and Markdown minutes.
package surface

import (
	"io"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
	"github.com/ensiasd/academics/pkg/timetable"
)

// Report is everything one command produced. Empty sections are omitted.
type Report struct {
	Title        string                    `json:"title"`
	Scores       []grading.ModuleScore     `json:"scores,omitempty"`
	Results      []results.PeriodResult    `json:"results,omitempty"`
	Deliberation *results.Deliberation     `json:"deliberation,omitempty"`
	Sessions     []timetable.Session       `json:"sessions,omitempty"`
	AutoGen      *timetable.AutoGenReport  `json:"autogen,omitempty"`
	Conflicts    []*academic.ConflictError `json:"conflicts,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

// Renderer produces formatted output from a Report.
type Renderer interface {
	// Render writes the formatted report to the writer.
	Render(w io.Writer, rep *Report) error
}
