package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ensiasd/academics/pkg/timetable"
)

// Sessions is a timetable.SessionStore backed by the sessions table. The
// unique meeting constraint makes Create safe under concurrent runs.
type Sessions struct {
	store *Store
}

var _ timetable.SessionStore = (*Sessions)(nil)

// Sessions returns the session store view of s.
func (s *Store) Sessions() *Sessions {
	return &Sessions{store: s}
}

func (ss *Sessions) Exists(ctx context.Context, key timetable.SessionKey) (bool, error) {
	var exists bool
	err := ss.store.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM sessions
		   WHERE timetable_id = $1 AND element_id = $2 AND date = $3 AND start_minute = $4)`,
		key.TimetableID, key.ElementID, key.Date, int(key.Start),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check session %s %s: %w", key.ElementID, key.Date, err)
	}
	return exists, nil
}

func (ss *Sessions) Create(ctx context.Context, s timetable.Session) (bool, error) {
	var lineID any
	if s.LineID != "" {
		lineID = s.LineID
	}
	res, err := ss.store.db.ExecContext(ctx,
		`INSERT INTO sessions (id, timetable_id, line_id, element_id, date, start_minute, end_minute,
		   room_id, instructor_id, group_ids, generated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT ON CONSTRAINT sessions_unique_meeting DO NOTHING`,
		s.ID, s.TimetableID, lineID, s.ElementID, s.Date.Format(time.DateOnly), int(s.Start), int(s.End),
		s.RoomID, s.InstructorID, pq.Array(s.GroupIDs), s.Generated,
	)
	if err != nil {
		return false, fmt.Errorf("create session %s %s: %w", s.ElementID, s.Date.Format(time.DateOnly), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}
	return n == 1, nil
}
