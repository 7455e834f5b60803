package timetable

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
)

// Element is a course element to place in a timetable.
type Element struct {
	ID           string      `json:"id" yaml:"id"`
	ModuleID     string      `json:"module_id" yaml:"module_id"`
	Kind         ElementKind `json:"kind" yaml:"kind"`
	Hours        float64     `json:"hours" yaml:"hours"`
	InstructorID string      `json:"instructor_id" yaml:"instructor_id"`
	GroupIDs     []string    `json:"group_ids,omitempty" yaml:"group_ids,omitempty"`
}

// Room is a teaching room.
type Room struct {
	ID       string `json:"id" yaml:"id"`
	Lab      bool   `json:"lab" yaml:"lab"`
	Capacity int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// AutoGenOptions tunes AutoGenerate.
type AutoGenOptions struct {
	TermWeeks      int
	SessionHours   float64
	AfternoonStart Clock
	// Seed shuffles the candidate slots. Zero keeps the input order.
	Seed int64
}

// DefaultAutoGenOptions is a 14-week term of 1h30 sessions, labs after 14:00.
func DefaultAutoGenOptions() AutoGenOptions {
	return AutoGenOptions{TermWeeks: 14, SessionHours: 1.5, AfternoonStart: At(14, 0)}
}

// AutoGenInput is what the generator may place and where.
type AutoGenInput struct {
	Elements    []Element
	Slots       []TimeSlot
	Days        []time.Weekday
	Rooms       []Room
	Unavailable UnavailabilityIndex
	Others      []*Timetable
}

// Unscheduled is an element that could not be fully placed.
type Unscheduled struct {
	ElementID string `json:"element_id"`
	Wanted    int    `json:"wanted"`
	Placed    int    `json:"placed"`
	Reason    string `json:"reason"`
}

// AutoGenReport lists the lines added and the elements left over.
type AutoGenReport struct {
	Lines       []Line        `json:"lines"`
	Unscheduled []Unscheduled `json:"unscheduled"`
}

// UnscheduledCount is the number of elements not fully placed.
func (r AutoGenReport) UnscheduledCount() int { return len(r.Unscheduled) }

// SessionsPerWeek is how many weekly sessions cover hours over a term.
func SessionsPerWeek(hours float64, opts AutoGenOptions) int {
	if opts.TermWeeks <= 0 || opts.SessionHours <= 0 {
		return 1
	}
	n := int(math.Floor(hours / float64(opts.TermWeeks) / opts.SessionHours))
	if n < 1 {
		return 1
	}
	return n
}

type candidate struct {
	day  time.Weekday
	slot TimeSlot
}

// AutoGenerate fills a draft timetable on a best-effort basis. Each element
// gets SessionsPerWeek weekly lines where a slot, a free room and a free
// instructor can be found; anything short is reported, never dropped.
func AutoGenerate(tt *Timetable, in AutoGenInput, opts AutoGenOptions) (AutoGenReport, error) {
	if tt.State != StateDraft {
		return AutoGenReport{}, tt.stateError("auto-generate", nil)
	}
	if len(in.Slots) == 0 || len(in.Rooms) == 0 {
		return AutoGenReport{}, academic.NewValidationError(nil, "auto-generation", tt.ID,
			academic.FieldError{Field: "slots", Message: "slots and rooms are required"})
	}
	if err := validateElements(tt.ID, in.Elements); err != nil {
		return AutoGenReport{}, err
	}
	days := in.Days
	if len(days) == 0 {
		days = TeachingDays()
	}

	var cands []candidate
	for _, d := range days {
		for _, s := range in.Slots {
			cands = append(cands, candidate{day: d, slot: s})
		}
	}
	if opts.Seed != 0 {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	}

	var busy []Line
	for _, o := range in.Others {
		if o != nil && o.ID != tt.ID && o.YearID == tt.YearID && o.State.Live() {
			busy = append(busy, o.Lines...)
		}
	}

	var report AutoGenReport
	for _, el := range in.Elements {
		wanted := SessionsPerWeek(el.Hours, opts)
		ordered := cands
		if el.Kind.Lab() {
			ordered = afternoonFirst(cands, opts.AfternoonStart)
		}

		placed := 0
		reason := "no compatible slot"
		for _, c := range ordered {
			if placed == wanted {
				break
			}
			if !c.slot.Accepts(el.Kind) || c.slot.Validate(tt.bounds()) != nil {
				continue
			}
			trial := Line{Weekday: c.day, Slot: c.slot, InstructorID: el.InstructorID, GroupIDs: el.GroupIDs, Frequency: Weekly}
			if blockedWeekly(in.Unavailable, ResourceInstructor, el.InstructorID, c.day, c.slot) {
				reason = "instructor unavailable"
				continue
			}
			if cohortBusy(tt.Lines, trial) || instructorBusy(tt.Lines, trial) || instructorBusy(busy, trial) {
				reason = "slots taken"
				continue
			}
			room, ok := pickRoom(in.Rooms, el.Kind, trial, tt.Lines, busy)
			if !ok {
				reason = "no free room"
				continue
			}
			l := trial
			l.ID = academic.NewID()
			l.ElementID = el.ID
			l.ElementKind = el.Kind
			l.RoomID = room
			if err := l.validate(tt.bounds()); err != nil {
				return report, err
			}
			tt.Lines = append(tt.Lines, l)
			report.Lines = append(report.Lines, l)
			placed++
		}
		if placed < wanted {
			report.Unscheduled = append(report.Unscheduled, Unscheduled{
				ElementID: el.ID,
				Wanted:    wanted,
				Placed:    placed,
				Reason:    fmt.Sprintf("%s after %d of %d sessions", reason, placed, wanted),
			})
		}
	}
	return report, nil
}

// validateElements checks every element before anything is placed, so a
// bad element never leaves a partly generated timetable behind.
func validateElements(timetableID string, elements []Element) error {
	var fields []academic.FieldError
	seen := make(map[string]bool, len(elements))
	for i, el := range elements {
		field := fmt.Sprintf("elements[%d]", i)
		switch {
		case el.ID == "":
			fields = append(fields, academic.FieldError{Field: field + ".id", Message: "required"})
		case seen[el.ID]:
			fields = append(fields, academic.FieldError{Field: field + ".id", Message: fmt.Sprintf("%s listed twice", el.ID)})
		}
		seen[el.ID] = true
		if el.InstructorID == "" {
			fields = append(fields, academic.FieldError{Field: field + ".instructor_id", Message: "required"})
		}
		switch el.Kind {
		case Lecture, Tutorial, Lab:
		default:
			fields = append(fields, academic.FieldError{Field: field + ".kind", Message: fmt.Sprintf("unknown element kind %q", el.Kind)})
		}
		if math.IsNaN(el.Hours) || math.IsInf(el.Hours, 0) || el.Hours <= 0 {
			fields = append(fields, academic.FieldError{Field: field + ".hours", Message: fmt.Sprintf("%g must be positive", el.Hours)})
		}
	}
	if len(fields) > 0 {
		return academic.NewValidationError(nil, "auto-generation", timetableID, fields...)
	}
	return nil
}

func afternoonFirst(cands []candidate, from Clock) []candidate {
	out := make([]candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].slot.Start >= from && out[j].slot.Start < from
	})
	return out
}

// cohortBusy reports whether a line already occupies the slot for a group
// of trial. Lines without groups address the whole cohort.
func cohortBusy(lines []Line, trial Line) bool {
	for _, l := range lines {
		if !l.meetsWith(trial) {
			continue
		}
		if len(l.GroupIDs) == 0 || len(trial.GroupIDs) == 0 || sharesGroup(l.GroupIDs, trial.GroupIDs) {
			return true
		}
	}
	return false
}

func instructorBusy(lines []Line, trial Line) bool {
	for _, l := range lines {
		if l.InstructorID == trial.InstructorID && l.meetsWith(trial) {
			return true
		}
	}
	return false
}

func roomBusy(lines []Line, trial Line, room string) bool {
	for _, l := range lines {
		if l.RoomID == room && l.meetsWith(trial) {
			return true
		}
	}
	return false
}

// pickRoom prefers lab rooms for labs and lecture rooms otherwise, falling
// back to lecture rooms when no lab is free.
func pickRoom(rooms []Room, kind ElementKind, trial Line, own, busy []Line) (string, bool) {
	try := func(lab bool) (string, bool) {
		for _, r := range rooms {
			if r.Lab != lab {
				continue
			}
			if !roomBusy(own, trial, r.ID) && !roomBusy(busy, trial, r.ID) {
				return r.ID, true
			}
		}
		return "", false
	}
	if kind.Lab() {
		if id, ok := try(true); ok {
			return id, true
		}
	}
	return try(false)
}

func sharesGroup(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
