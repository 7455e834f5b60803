// Package timetable builds weekly timetables, checks them for double
// bookings and materializes dated sessions from their lines.
package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// At returns the clock for h:m.
func At(h, m int) Clock { return Clock(h*60 + m) }

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("parsing clock %q: want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("parsing clock %q: %w", s, err)
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("parsing clock %q: %w", s, err)
	}
	if hh < 0 || hh > 24 || mm < 0 || mm > 59 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("parsing clock %q: out of range", s)
	}
	return At(hh, mm), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// On returns the instant of c on the given date.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, date.Location())
}

// DayBounds is the window in which teaching slots may be placed.
type DayBounds struct {
	Open  Clock `json:"open" yaml:"open"`
	Close Clock `json:"close" yaml:"close"`
}

// DefaultDayBounds is 08:00 to 20:00.
func DefaultDayBounds() DayBounds {
	return DayBounds{Open: At(8, 0), Close: At(20, 0)}
}

// SlotKind restricts which elements a slot accepts.
type SlotKind string

const (
	SlotLecture SlotKind = "lecture"
	SlotLab     SlotKind = "lab"
	SlotAny     SlotKind = "any"
)

// TimeSlot is a recurring period of the teaching day.
type TimeSlot struct {
	ID    string   `json:"id" yaml:"id"`
	Start Clock    `json:"start" yaml:"start"`
	End   Clock    `json:"end" yaml:"end"`
	Kind  SlotKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Validate checks start < end and that the slot lies within b.
func (s TimeSlot) Validate(b DayBounds) error {
	var fields []academic.FieldError
	if s.Start >= s.End {
		fields = append(fields, academic.FieldError{Field: "end", Message: fmt.Sprintf("must be after start %s", s.Start)})
	}
	if s.Start < b.Open || s.End > b.Close {
		fields = append(fields, academic.FieldError{Field: "start", Message: fmt.Sprintf("must lie within %s-%s", b.Open, b.Close)})
	}
	switch s.Kind {
	case "", SlotLecture, SlotLab, SlotAny:
	default:
		fields = append(fields, academic.FieldError{Field: "kind", Message: fmt.Sprintf("unknown slot kind %q", s.Kind)})
	}
	if len(fields) > 0 {
		return academic.NewValidationError(nil, "time slot", s.ID, fields...)
	}
	return nil
}

// Overlaps reports whether the two slots share any minute.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start < o.End && o.Start < s.End
}

// Accepts reports whether an element of kind k may be placed in s.
func (s TimeSlot) Accepts(k ElementKind) bool {
	switch s.Kind {
	case SlotLab:
		return k.Lab()
	case SlotLecture:
		return !k.Lab()
	}
	return true
}

func (s TimeSlot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses a teaching day name, Monday through Saturday.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown teaching day %q", s)
	}
	return d, nil
}

// TeachingDays is Monday through Saturday.
func TeachingDays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
}
