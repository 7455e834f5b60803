package timetable

import "time"

// ResourceKind is the kind of resource an unavailability blocks.
type ResourceKind string

const (
	ResourceInstructor ResourceKind = "instructor"
	ResourceRoom       ResourceKind = "room"
)

// Unavailability blocks a room or an instructor, either every week on a
// given day or once over a date range. Only confirmed entries apply.
type Unavailability struct {
	ID         string       `json:"id" yaml:"id"`
	Resource   ResourceKind `json:"resource" yaml:"resource"`
	ResourceID string       `json:"resource_id" yaml:"resource_id"`
	Recurring  bool         `json:"recurring" yaml:"recurring"`
	Weekday    time.Weekday `json:"weekday,omitempty" yaml:"weekday,omitempty"`
	From       time.Time    `json:"from,omitempty" yaml:"from,omitempty"`
	To         time.Time    `json:"to,omitempty" yaml:"to,omitempty"`
	FullDay    bool         `json:"full_day" yaml:"full_day"`
	Start      Clock        `json:"start,omitempty" yaml:"start,omitempty"`
	End        Clock        `json:"end,omitempty" yaml:"end,omitempty"`
	Confirmed  bool         `json:"confirmed" yaml:"confirmed"`
	Reason     string       `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (u Unavailability) coversHours(start, end Clock) bool {
	if u.FullDay || u.Start >= u.End {
		return true
	}
	return u.Start < end && start < u.End
}

// BlocksWeekly reports whether a recurring entry rules out the slot on day.
func (u Unavailability) BlocksWeekly(day time.Weekday, slot TimeSlot) bool {
	if !u.Confirmed || !u.Recurring || u.Weekday != day {
		return false
	}
	return u.coversHours(slot.Start, slot.End)
}

// AppliesOn reports whether the entry blocks date between start and end.
// Recurring entries apply on every matching weekday.
func (u Unavailability) AppliesOn(date time.Time, start, end Clock) bool {
	if !u.Confirmed {
		return false
	}
	if u.Recurring {
		return u.Weekday == date.Weekday() && u.coversHours(start, end)
	}
	day := dateOf(date)
	if day.Before(dateOf(u.From)) {
		return false
	}
	if !u.To.IsZero() && day.After(dateOf(u.To)) {
		return false
	}
	return u.coversHours(start, end)
}

// UnavailabilityIndex looks up the unavailabilities of one resource.
type UnavailabilityIndex interface {
	For(kind ResourceKind, id string) []Unavailability
}

// UnavailabilityList is an in-memory UnavailabilityIndex.
type UnavailabilityList []Unavailability

// For returns the entries of the given resource.
func (l UnavailabilityList) For(kind ResourceKind, id string) []Unavailability {
	var out []Unavailability
	for _, u := range l {
		if u.Resource == kind && u.ResourceID == id {
			out = append(out, u)
		}
	}
	return out
}

func blockedWeekly(idx UnavailabilityIndex, kind ResourceKind, id string, day time.Weekday, slot TimeSlot) bool {
	if idx == nil {
		return false
	}
	for _, u := range idx.For(kind, id) {
		if u.BlocksWeekly(day, slot) {
			return true
		}
	}
	return false
}

func blockedOn(idx UnavailabilityIndex, kind ResourceKind, id string, date time.Time, slot TimeSlot) bool {
	if idx == nil {
		return false
	}
	for _, u := range idx.For(kind, id) {
		if u.AppliesOn(date, slot.Start, slot.End) {
			return true
		}
	}
	return false
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
