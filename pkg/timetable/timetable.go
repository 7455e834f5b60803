package timetable

import (
	"fmt"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
)

// State is the lifecycle state of a Timetable.
type State string

const (
	StateDraft     State = "draft"
	StateConfirmed State = "confirmed"
	StateActive    State = "active"
	StateArchived  State = "archived"
)

// Live reports whether the timetable's lines are binding.
func (s State) Live() bool { return s == StateConfirmed || s == StateActive }

// Timetable is the weekly plan of one program, semester and year.
type Timetable struct {
	ID        string    `json:"id" yaml:"id"`
	ProgramID string    `json:"program_id" yaml:"program_id"`
	Semester  string    `json:"semester" yaml:"semester"`
	YearID    string    `json:"year_id" yaml:"year_id"`
	Version   int       `json:"version" yaml:"version"`
	StartDate time.Time `json:"start_date" yaml:"start_date"`
	EndDate   time.Time `json:"end_date" yaml:"end_date"`
	GroupIDs  []string  `json:"group_ids,omitempty" yaml:"group_ids,omitempty"`
	Lines     []Line    `json:"lines" yaml:"lines"`
	State     State     `json:"state" yaml:"state"`
	Bounds    DayBounds `json:"-" yaml:"-"`
}

// New creates a draft timetable. start must be before end.
func New(programID, semester, yearID string, start, end time.Time) (*Timetable, error) {
	t := &Timetable{
		ID:        academic.NewID(),
		ProgramID: programID,
		Semester:  semester,
		YearID:    yearID,
		Version:   1,
		StartDate: start,
		EndDate:   end,
		State:     StateDraft,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the timetable header.
func (t *Timetable) Validate() error {
	var fields []academic.FieldError
	if t.ProgramID == "" {
		fields = append(fields, academic.FieldError{Field: "program_id", Message: "required"})
	}
	if err := academic.Semester(t.Semester, t.YearID).Validate(); err != nil {
		fields = append(fields, academic.FieldError{Field: "semester", Message: err.Error()})
	}
	if len(fields) > 0 {
		return academic.NewValidationError(nil, "timetable", t.ID, fields...)
	}
	if !t.StartDate.Before(t.EndDate) {
		return academic.NewValidationError(academic.ErrInvalidDates, "timetable", t.ID,
			academic.FieldError{Field: "end_date", Message: "must be after start_date"})
	}
	return nil
}

func (t *Timetable) bounds() DayBounds {
	if t.Bounds == (DayBounds{}) {
		return DefaultDayBounds()
	}
	return t.Bounds
}

func (t *Timetable) stateError(action string, err error) error {
	return &academic.StateError{Err: err, Entity: "timetable", ID: t.ID, State: string(t.State), Action: action}
}

// AddLine validates l and appends it. On a confirmed or active timetable
// the line must not double-book a room or instructor. When idx is non-nil
// the instructor's weekly unavailability is checked as well.
func (t *Timetable) AddLine(l Line, idx UnavailabilityIndex) error {
	if t.State == StateArchived {
		return t.stateError("add line", academic.ErrLocked)
	}
	if l.ID == "" {
		l.ID = academic.NewID()
	}
	if l.Frequency == "" {
		l.Frequency = Weekly
	}
	if err := l.validate(t.bounds()); err != nil {
		return err
	}
	if blockedWeekly(idx, ResourceInstructor, l.InstructorID, l.Weekday, l.Slot) {
		return academic.NewValidationError(nil, "line", l.ID, academic.FieldError{
			Field:   "instructor_id",
			Message: fmt.Sprintf("instructor %s is unavailable on %s", l.InstructorID, l.SlotLabel()),
		})
	}
	if t.State.Live() {
		for _, o := range t.Lines {
			if kind, id, ok := l.clash(o); ok {
				return &academic.ConflictError{ResourceKind: kind, ResourceID: id, Slot: l.SlotLabel(), LineIDs: []string{o.ID, l.ID}}
			}
		}
	}
	t.Lines = append(t.Lines, l)
	return nil
}

// RemoveLine drops a line from a draft timetable.
func (t *Timetable) RemoveLine(id string) error {
	if t.State != StateDraft {
		return t.stateError("remove line", nil)
	}
	for i, l := range t.Lines {
		if l.ID == id {
			t.Lines = append(t.Lines[:i], t.Lines[i+1:]...)
			return nil
		}
	}
	return &academic.NotFoundError{Entity: "line", Key: id}
}

// Confirm checks the whole line set and moves a draft timetable to
// confirmed. On conflict the first clash is returned and the timetable
// stays in draft.
func (t *Timetable) Confirm() error {
	if t.State != StateDraft {
		return t.stateError("confirm", nil)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if conflicts := Conflicts(t.Lines); len(conflicts) > 0 {
		return conflicts[0]
	}
	t.State = StateConfirmed
	return nil
}

// CheckAgainst reports the first clash between t's lines and the lines of
// other confirmed or active timetables of the same year.
func (t *Timetable) CheckAgainst(others []*Timetable) error {
	for _, o := range others {
		if o == nil || o.ID == t.ID || o.YearID != t.YearID || !o.State.Live() {
			continue
		}
		for _, l := range t.Lines {
			for _, ol := range o.Lines {
				if kind, id, ok := l.clash(ol); ok {
					return &academic.ConflictError{ResourceKind: kind, ResourceID: id, Slot: l.SlotLabel(), LineIDs: []string{l.ID, ol.ID}}
				}
			}
		}
	}
	return nil
}

// Activate opens a confirmed timetable for session generation.
func (t *Timetable) Activate() error {
	if t.State != StateConfirmed {
		return t.stateError("activate", nil)
	}
	t.State = StateActive
	return nil
}

// Archive retires a confirmed or active timetable. Archived is terminal.
func (t *Timetable) Archive() error {
	if !t.State.Live() {
		return t.stateError("archive", nil)
	}
	t.State = StateArchived
	return nil
}

// ResetDraft reopens a confirmed or active timetable for editing.
func (t *Timetable) ResetDraft() error {
	if !t.State.Live() {
		return t.stateError("reset", nil)
	}
	t.State = StateDraft
	return nil
}
