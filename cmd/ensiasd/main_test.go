package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
	"github.com/ensiasd/academics/pkg/timetable"
)

func TestScoreCmdFlags(t *testing.T) {
	cmd := newScoreCmd()
	f := cmd.Flags()

	outputFmt, _ := f.GetString("output")
	if outputFmt != "text" {
		t.Errorf("default output = %q, want text", outputFmt)
	}

	for _, flag := range []string{"marks", "comma", "output", "save", "workers"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestAggregateCmdFlags(t *testing.T) {
	cmd := newAggregateCmd()
	f := cmd.Flags()

	for _, flag := range []string{"program", "period", "year", "catalog", "marks", "students", "export", "save"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestDeliberateCmdFlags(t *testing.T) {
	cmd := newDeliberateCmd()
	f := cmd.Flags()

	outputFmt, _ := f.GetString("output")
	if outputFmt != "minutes" {
		t.Errorf("default output = %q, want minutes", outputFmt)
	}
	for _, flag := range []string{"jury", "override", "by", "publish", "no-archive"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestTimetableSubcommands(t *testing.T) {
	cmd := newTimetableCmd()
	want := map[string]bool{"check": false, "confirm": false, "autogen": false, "materialize": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand: %s", name)
		}
	}
	if cmd.PersistentFlags().Lookup("plan") == nil {
		t.Error("missing persistent flag: plan")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"a", "b", "c"}, "a"},
		{[]string{"", "b", "c"}, "b"},
		{[]string{"", "", "c"}, "c"},
		{[]string{"", "", ""}, ""},
	}

	for _, tt := range tests {
		got := firstNonEmpty(tt.args...)
		if got != tt.want {
			t.Errorf("firstNonEmpty(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestCommaRune(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{";", ';', false},
		{"\t", '\t', false},
		{";;", 0, true},
	}
	for _, tt := range tests {
		got, err := commaRune(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("commaRune(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseOverride(t *testing.T) {
	o, err := parseOverride("stu-1=admitted-by-compensation:jury points, borderline")
	if err != nil {
		t.Fatalf("parseOverride() error: %v", err)
	}
	if o.studentID != "stu-1" || o.decision != results.DecisionCompensation || o.note != "jury points, borderline" {
		t.Errorf("got %+v", o)
	}

	for _, bad := range []string{"stu-1", "=admitted", "stu-1=promoted"} {
		if _, err := parseOverride(bad); err == nil {
			t.Errorf("parseOverride(%q) should fail", bad)
		}
	}
}

func TestParseJury(t *testing.T) {
	jury, err := parseJury([]string{"prof-1:president", "prof-2"})
	if err != nil {
		t.Fatalf("parseJury() error: %v", err)
	}
	if len(jury) != 2 || jury[0].Role != "president" || jury[1].Role != "member" {
		t.Errorf("jury = %+v", jury)
	}
	if _, err := parseJury([]string{":president"}); err == nil {
		t.Error("empty instructor id should fail")
	}
}

func TestCohortPeriod(t *testing.T) {
	tests := []struct {
		code    string
		want    academic.Period
		wantErr bool
	}{
		{"s1", academic.Semester("S1", "2025"), false},
		{"year", academic.Year("2025"), false},
		{"S7", academic.Period{}, true},
	}
	for _, tt := range tests {
		f := cohortFlags{periodCode: tt.code, yearID: "2025"}
		got, err := f.period()
		if (err != nil) != tt.wantErr {
			t.Errorf("period(%q) error = %v", tt.code, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("period(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestSheetScoresFiltersYear(t *testing.T) {
	src := sheetScores{"a": {
		{ModuleID: "M1", YearID: "2025"},
		{ModuleID: "M2", YearID: "2024"},
	}}
	got, err := src.ModuleScores(context.Background(), "a", "2025")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ModuleID != "M1" {
		t.Errorf("got %+v", got)
	}
}

func TestNewRenderer(t *testing.T) {
	for _, f := range []string{"", "text", "json", "minutes"} {
		if _, err := newRenderer(f); err != nil {
			t.Errorf("newRenderer(%q): %v", f, err)
		}
	}
	if _, err := newRenderer("html"); err == nil {
		t.Error("newRenderer(html) should fail")
	}
}

const plan = `timetable:
  program_id: GL
  semester: S1
  year_id: "2025"
  start_date: 2025-09-15
  end_date: 2026-01-16
  lines:
    - id: l1
      weekday: 1
      slot: {id: m1, start: "08:30", end: "10:00"}
      element_id: E1
      element_kind: cm
      room_id: A1
      instructor_id: prof-1
days: [monday, tuesday]
rooms:
  - id: A1
  - id: LAB1
    lab: true
`

func TestReadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(plan), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := readPlan(path)
	if err != nil {
		t.Fatalf("readPlan() error: %v", err)
	}
	tt := p.Timetable
	if tt.State != timetable.StateDraft || tt.ID == "" {
		t.Errorf("state = %s, id = %q; want draft with a generated id", tt.State, tt.ID)
	}
	if !tt.StartDate.Equal(time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", tt.StartDate)
	}
	if len(tt.Lines) != 1 || tt.Lines[0].Slot.Start != timetable.At(8, 30) || tt.Lines[0].Weekday != time.Monday {
		t.Errorf("lines = %+v", tt.Lines)
	}
	days, err := p.days()
	if err != nil || len(days) != 2 || days[1] != time.Tuesday {
		t.Errorf("days = %v, %v", days, err)
	}
	if len(p.Rooms) != 2 || !p.Rooms[1].Lab {
		t.Errorf("rooms = %+v", p.Rooms)
	}

	out := filepath.Join(t.TempDir(), "out.yaml")
	if err := writePlan(out, p); err != nil {
		t.Fatalf("writePlan() error: %v", err)
	}
	again, err := readPlan(out)
	if err != nil {
		t.Fatalf("re-reading written plan: %v", err)
	}
	if again.Timetable.ID != tt.ID || len(again.Timetable.Lines) != 1 {
		t.Errorf("written plan lost data: %+v", again.Timetable)
	}
}

const rubricYAML = `rubrics:
  - module_id: M1
    year_id: "2025"
    weights: {cc: 30, exam: 50, tp: 20}
    elimination_threshold: 6
    pass_threshold: 12
    makeup_allowed: true
    bonus_cap: 2
  - module_id: M2
    year_id: "2025"
    weights: {cc: 40, exam: 60}
    elimination_threshold: 5
    pass_threshold: 10
    makeup_policy: replaces-exam
`

func TestReadRubrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubrics.yaml")
	if err := os.WriteFile(path, []byte(rubricYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	settings := grading.DefaultSettings()
	rubrics, err := readRubrics(path, settings)
	if err != nil {
		t.Fatalf("readRubrics() error: %v", err)
	}
	if len(rubrics) != 2 {
		t.Fatalf("got %d rubrics, want 2", len(rubrics))
	}
	if rubrics[0].MakeupPolicy != settings.DefaultPolicy {
		t.Errorf("missing policy should default to %s, got %s", settings.DefaultPolicy, rubrics[0].MakeupPolicy)
	}
	if rubrics[1].MakeupPolicy != grading.MakeupReplacesExam {
		t.Errorf("M2 policy = %s", rubrics[1].MakeupPolicy)
	}

	book := grading.NewRubricBook(settings)
	if err := loadRubrics(book, path); err != nil {
		t.Fatalf("loadRubrics() error: %v", err)
	}
	r, defaulted, err := book.Resolve("M2", "2025")
	if err != nil || defaulted || r.PassThreshold != 10 {
		t.Errorf("Resolve(M2) = %+v, %v, %v", r, defaulted, err)
	}
	if err := loadRubrics(book, ""); err != nil {
		t.Errorf("empty path should be a no-op: %v", err)
	}
}

func TestReadRubricsRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubrics.yaml")
	bad := "rubrics:\n  - module_id: M1\n    year_id: \"2025\"\n    weights: {cc: 30, exam: 30}\n    pass_threshold: 12\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := readRubrics(path, grading.DefaultSettings())
	if !errors.Is(err, academic.ErrWeightSum) {
		t.Errorf("err = %v, want ErrWeightSum", err)
	}
}

type lockedStub struct {
	ids []string
	err error
}

func (s lockedStub) LockedResults(context.Context, string, academic.Period) ([]string, error) {
	return s.ids, s.err
}

func TestRefuseLocked(t *testing.T) {
	period := academic.Semester("S1", "2025")
	tests := []struct {
		name     string
		stub     lockedStub
		students []string
		locked   bool
	}{
		{"nothing locked", lockedStub{}, []string{"a", "b"}, false},
		{"locked outside cohort", lockedStub{ids: []string{"z"}}, []string{"a", "b"}, false},
		{"locked member", lockedStub{ids: []string{"b", "z"}}, []string{"a", "b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := refuseLocked(context.Background(), tt.stub, "GL", period, tt.students)
			if got := academic.IsLocked(err); got != tt.locked {
				t.Fatalf("refuseLocked() = %v, locked want %v", err, tt.locked)
			}
			if tt.locked && !strings.Contains(err.Error(), "(b)") {
				t.Errorf("error %q does not name the locked student", err)
			}
		})
	}

	boom := errors.New("connection reset")
	if err := refuseLocked(context.Background(), lockedStub{err: boom}, "GL", period, []string{"a"}); !errors.Is(err, boom) {
		t.Errorf("refuseLocked() = %v, want lookup error", err)
	}
}
