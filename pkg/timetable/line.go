package timetable

import (
	"errors"
	"fmt"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
)

// Frequency is how often a line meets.
type Frequency string

const (
	Weekly       Frequency = "weekly"
	BiweeklyOdd  Frequency = "biweekly-odd"
	BiweeklyEven Frequency = "biweekly-even"
)

// On reports whether a line with this frequency meets in the ISO week of date.
func (f Frequency) On(date time.Time) bool {
	_, week := date.ISOWeek()
	switch f {
	case BiweeklyOdd:
		return week%2 == 1
	case BiweeklyEven:
		return week%2 == 0
	}
	return true
}

// collides reports whether two lines with these frequencies can meet in
// the same week. Odd and even weeks never meet.
func (f Frequency) collides(o Frequency) bool {
	return !(f == BiweeklyOdd && o == BiweeklyEven || f == BiweeklyEven && o == BiweeklyOdd)
}

// ElementKind is the teaching format of a course element.
type ElementKind string

const (
	Lecture  ElementKind = "cm"
	Tutorial ElementKind = "td"
	Lab      ElementKind = "tp"
)

// Lab reports whether the element needs a lab room.
func (k ElementKind) Lab() bool { return k == Lab }

// Line binds a weekly slot to an element, a room, an instructor and groups.
type Line struct {
	ID           string       `json:"id" yaml:"id"`
	Weekday      time.Weekday `json:"weekday" yaml:"weekday"`
	Slot         TimeSlot     `json:"slot" yaml:"slot"`
	ElementID    string       `json:"element_id" yaml:"element_id"`
	ElementKind  ElementKind  `json:"element_kind" yaml:"element_kind"`
	RoomID       string       `json:"room_id" yaml:"room_id"`
	InstructorID string       `json:"instructor_id" yaml:"instructor_id"`
	GroupIDs     []string     `json:"group_ids,omitempty" yaml:"group_ids,omitempty"`
	Frequency    Frequency    `json:"frequency" yaml:"frequency"`
}

// SlotLabel names the weekly position of the line, e.g. "Monday 08:30-10:00".
func (l Line) SlotLabel() string {
	return l.Weekday.String() + " " + l.Slot.String()
}

func (l Line) validate(b DayBounds) error {
	var fields []academic.FieldError
	if l.Weekday < time.Monday || l.Weekday > time.Saturday {
		fields = append(fields, academic.FieldError{Field: "weekday", Message: "must be Monday through Saturday"})
	}
	if l.ElementID == "" {
		fields = append(fields, academic.FieldError{Field: "element_id", Message: "required"})
	}
	if l.RoomID == "" {
		fields = append(fields, academic.FieldError{Field: "room_id", Message: "required"})
	}
	if l.InstructorID == "" {
		fields = append(fields, academic.FieldError{Field: "instructor_id", Message: "required"})
	}
	switch l.Frequency {
	case Weekly, BiweeklyOdd, BiweeklyEven:
	default:
		fields = append(fields, academic.FieldError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", l.Frequency)})
	}
	var ve *academic.ValidationError
	if err := l.Slot.Validate(b); errors.As(err, &ve) {
		for _, f := range ve.Fields {
			fields = append(fields, academic.FieldError{Field: "slot." + f.Field, Message: f.Message})
		}
	}
	if !l.Slot.Accepts(l.ElementKind) {
		fields = append(fields, academic.FieldError{Field: "element_kind", Message: fmt.Sprintf("%s slot does not accept %s", l.Slot.Kind, l.ElementKind)})
	}
	if len(fields) > 0 {
		return academic.NewValidationError(nil, "line", l.ID, fields...)
	}
	return nil
}

// meetsWith reports whether l and o occupy the same weekly time.
func (l Line) meetsWith(o Line) bool {
	return l.Weekday == o.Weekday && l.Slot.Overlaps(o.Slot) && l.Frequency.collides(o.Frequency)
}

// clash returns the resource l and o both hold at the same time, if any.
func (l Line) clash(o Line) (kind, id string, ok bool) {
	if !l.meetsWith(o) {
		return "", "", false
	}
	if l.RoomID == o.RoomID {
		return "room", l.RoomID, true
	}
	if l.InstructorID == o.InstructorID {
		return "instructor", l.InstructorID, true
	}
	return "", "", false
}

// Conflicts lists every pair of lines double-booking a room or an
// instructor.
func Conflicts(lines []Line) []*academic.ConflictError {
	var out []*academic.ConflictError
	for i := range lines {
		for j := i + 1; j < len(lines); j++ {
			if kind, id, ok := lines[i].clash(lines[j]); ok {
				out = append(out, &academic.ConflictError{
					ResourceKind: kind,
					ResourceID:   id,
					Slot:         lines[i].SlotLabel(),
					LineIDs:      []string{lines[i].ID, lines[j].ID},
				})
			}
		}
	}
	return out
}
