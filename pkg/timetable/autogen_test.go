package timetable_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/timetable"
)

func autogenInput() timetable.AutoGenInput {
	return timetable.AutoGenInput{
		Elements: []timetable.Element{
			{ID: "algo-cm", Kind: timetable.Lecture, Hours: 42, InstructorID: "prof-1"},
			{ID: "algo-tp", Kind: timetable.Lab, Hours: 21, InstructorID: "prof-2"},
			{ID: "db-cm", Kind: timetable.Lecture, Hours: 21, InstructorID: "prof-3"},
		},
		Slots: []timetable.TimeSlot{morning, afternoon},
		Days:  []time.Weekday{time.Monday, time.Tuesday},
		Rooms: []timetable.Room{{ID: "A1"}, {ID: "L1", Lab: true}},
		Unavailable: timetable.UnavailabilityList{
			{Resource: timetable.ResourceInstructor, ResourceID: "prof-3", Recurring: true, Weekday: time.Monday, FullDay: true, Confirmed: true},
			{Resource: timetable.ResourceInstructor, ResourceID: "prof-3", Recurring: true, Weekday: time.Tuesday, FullDay: true, Confirmed: true},
		},
	}
}

func TestAutoGenerate(t *testing.T) {
	tb := newTimetable(t)

	report, err := timetable.AutoGenerate(tb, autogenInput(), timetable.DefaultAutoGenOptions())
	if err != nil {
		t.Fatalf("AutoGenerate() error: %v", err)
	}
	if len(report.Lines) != 3 {
		t.Fatalf("placed %d lines, want 3", len(report.Lines))
	}

	lab := report.Lines[2]
	if lab.ElementID != "algo-tp" || lab.RoomID != "L1" || lab.Slot.Start < timetable.At(14, 0) || lab.Weekday != time.Tuesday {
		t.Errorf("lab line = %+v, want Tuesday afternoon in L1", lab)
	}

	if report.UnscheduledCount() != 1 {
		t.Fatalf("UnscheduledCount() = %d, want 1", report.UnscheduledCount())
	}
	u := report.Unscheduled[0]
	if u.ElementID != "db-cm" || u.Wanted != 1 || u.Placed != 0 {
		t.Errorf("Unscheduled = %+v", u)
	}

	if err := tb.Confirm(); err != nil {
		t.Errorf("generated timetable does not confirm: %v", err)
	}
}

func TestAutoGenerateIsDeterministic(t *testing.T) {
	for _, seed := range []int64{0, 7} {
		opts := timetable.DefaultAutoGenOptions()
		opts.Seed = seed

		a, b := newTimetable(t), newTimetable(t)
		ra, err := timetable.AutoGenerate(a, autogenInput(), opts)
		if err != nil {
			t.Fatalf("AutoGenerate() error: %v", err)
		}
		rb, err := timetable.AutoGenerate(b, autogenInput(), opts)
		if err != nil {
			t.Fatalf("AutoGenerate() error: %v", err)
		}
		if len(ra.Lines) != len(rb.Lines) {
			t.Fatalf("seed %d: %d vs %d lines", seed, len(ra.Lines), len(rb.Lines))
		}
		for i := range ra.Lines {
			x, y := ra.Lines[i], rb.Lines[i]
			if x.Weekday != y.Weekday || x.Slot != y.Slot || x.RoomID != y.RoomID || x.ElementID != y.ElementID {
				t.Errorf("seed %d line %d differs: %+v vs %+v", seed, i, x, y)
			}
		}
	}
}

func TestSessionsPerWeek(t *testing.T) {
	opts := timetable.DefaultAutoGenOptions()
	tests := []struct {
		hours float64
		want  int
	}{
		{0, 1},
		{10, 1},
		{21, 1},
		{42, 2},
		{63, 3},
	}
	for _, tt := range tests {
		if got := timetable.SessionsPerWeek(tt.hours, opts); got != tt.want {
			t.Errorf("SessionsPerWeek(%v) = %d, want %d", tt.hours, got, tt.want)
		}
	}
}

func TestAutoGenerateRequiresDraft(t *testing.T) {
	tb := newTimetable(t)
	if err := tb.Confirm(); err != nil {
		t.Fatalf("Confirm() error: %v", err)
	}
	if _, err := timetable.AutoGenerate(tb, autogenInput(), timetable.DefaultAutoGenOptions()); err == nil {
		t.Error("AutoGenerate() on confirmed timetable should fail")
	}
}

func TestAutoGenerateRejectsInvalidElements(t *testing.T) {
	tests := []struct {
		name  string
		el    timetable.Element
		field string
	}{
		{"missing instructor", timetable.Element{ID: "x", Kind: timetable.Lecture, Hours: 21}, "instructor_id"},
		{"missing id", timetable.Element{Kind: timetable.Lecture, Hours: 21, InstructorID: "prof-9"}, "id"},
		{"unknown kind", timetable.Element{ID: "x", Kind: "seminar", Hours: 21, InstructorID: "prof-9"}, "kind"},
		{"no hours", timetable.Element{ID: "x", Kind: timetable.Lab, InstructorID: "prof-9"}, "hours"},
		{"duplicate id", timetable.Element{ID: "algo-cm", Kind: timetable.Lecture, Hours: 21, InstructorID: "prof-9"}, "id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTimetable(t)
			in := autogenInput()
			in.Elements = append(in.Elements, tc.el)

			_, err := timetable.AutoGenerate(tb, in, timetable.DefaultAutoGenOptions())
			var ve *academic.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("AutoGenerate() = %v, want ValidationError", err)
			}
			if len(ve.Fields) != 1 || !strings.HasSuffix(ve.Fields[0].Field, "."+tc.field) {
				t.Errorf("fields = %+v, want one error on %s", ve.Fields, tc.field)
			}
			if len(tb.Lines) != 0 {
				t.Errorf("%d lines added before the element check", len(tb.Lines))
			}
		})
	}
}
