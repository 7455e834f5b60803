package timetable

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
)

// Session is one dated meeting generated from a line.
type Session struct {
	ID           string    `json:"id"`
	TimetableID  string    `json:"timetable_id"`
	LineID       string    `json:"line_id"`
	ElementID    string    `json:"element_id"`
	Date         time.Time `json:"date"`
	Start        Clock     `json:"start"`
	End          Clock     `json:"end"`
	RoomID       string    `json:"room_id"`
	InstructorID string    `json:"instructor_id"`
	GroupIDs     []string  `json:"group_ids,omitempty"`
	Generated    bool      `json:"generated"`
}

// SessionKey identifies a session: at most one per timetable, element,
// date and start time.
type SessionKey struct {
	TimetableID string
	ElementID   string
	Date        string
	Start       Clock
}

// Key returns the uniqueness key of s.
func (s Session) Key() SessionKey {
	return SessionKey{TimetableID: s.TimetableID, ElementID: s.ElementID, Date: s.Date.Format(time.DateOnly), Start: s.Start}
}

// SessionStore persists sessions. Create reports false when a session with
// the same key already exists and leaves it untouched.
type SessionStore interface {
	Exists(ctx context.Context, key SessionKey) (bool, error)
	Create(ctx context.Context, s Session) (bool, error)
}

// MemoryStore is an in-process SessionStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[SessionKey]Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[SessionKey]Session)}
}

func (m *MemoryStore) Exists(_ context.Context, key SessionKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	return ok, nil
}

func (m *MemoryStore) Create(_ context.Context, s Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := s.Key()
	if _, ok := m.sessions[k]; ok {
		return false, nil
	}
	m.sessions[k] = s
	return true, nil
}

// Sessions returns all stored sessions ordered by date, start and element.
func (m *MemoryStore) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ElementID < b.ElementID
	})
	return out
}

// MaterializeOption customises Materialize.
type MaterializeOption func(*materializeConfig)

type materializeConfig struct {
	holiday func(time.Time) bool
}

// WithHoliday replaces the default Sunday rule with fn.
func WithHoliday(fn func(time.Time) bool) MaterializeOption {
	return func(c *materializeConfig) { c.holiday = fn }
}

// Sunday is the default holiday rule.
func Sunday(d time.Time) bool { return d.Weekday() == time.Sunday }

// Materialize creates the sessions of tt between from and to inclusive,
// clipped to the timetable's own dates. Days matching the holiday rule are
// skipped, as are lines off their biweekly week, lines whose room or
// instructor is unavailable that day, and sessions that already exist.
// Running it again over the same range creates nothing new.
func Materialize(ctx context.Context, tt *Timetable, from, to time.Time, store SessionStore, unavail UnavailabilityIndex, opts ...MaterializeOption) ([]Session, error) {
	if !tt.State.Live() {
		return nil, tt.stateError("materialize sessions", nil)
	}
	if to.Before(from) {
		return nil, academic.NewValidationError(academic.ErrInvalidDates, "date range", tt.ID,
			academic.FieldError{Field: "to", Message: "must not be before from"})
	}
	cfg := materializeConfig{holiday: Sunday}
	for _, o := range opts {
		o(&cfg)
	}

	first, last := dateOf(from), dateOf(to)
	if start := dateOf(tt.StartDate); first.Before(start) {
		first = start
	}
	if end := dateOf(tt.EndDate); last.After(end) {
		last = end
	}

	var created []Session
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if cfg.holiday != nil && cfg.holiday(day) {
			continue
		}
		for _, l := range tt.Lines {
			if l.Weekday != day.Weekday() || !l.Frequency.On(day) {
				continue
			}
			if blockedOn(unavail, ResourceInstructor, l.InstructorID, day, l.Slot) ||
				blockedOn(unavail, ResourceRoom, l.RoomID, day, l.Slot) {
				continue
			}
			s := Session{
				TimetableID:  tt.ID,
				LineID:       l.ID,
				ElementID:    l.ElementID,
				Date:         day,
				Start:        l.Slot.Start,
				End:          l.Slot.End,
				RoomID:       l.RoomID,
				InstructorID: l.InstructorID,
				GroupIDs:     l.GroupIDs,
				Generated:    true,
			}
			exists, err := store.Exists(ctx, s.Key())
			if err != nil {
				return created, fmt.Errorf("checking session %s %s: %w", s.ElementID, s.Key().Date, err)
			}
			if exists {
				continue
			}
			s.ID = academic.NewID()
			ok, err := store.Create(ctx, s)
			if err != nil {
				return created, fmt.Errorf("creating session %s %s: %w", s.ElementID, s.Key().Date, err)
			}
			if ok {
				created = append(created, s)
			}
		}
	}
	return created, nil
}
