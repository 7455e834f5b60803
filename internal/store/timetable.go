package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/timetable"
)

// SaveTimetable writes the header and lines of tt in one transaction.
// Lines are upserted by id and lines no longer in tt are deleted, so
// sessions keep their link to lines that survive. A room or instructor
// booked twice on overlapping times is rejected by the schema and reported
// as a ConflictError.
func (s *Store) SaveTimetable(ctx context.Context, tt *timetable.Timetable) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return saveTimetable(ctx, tx, tt)
	})
}

func saveTimetable(ctx context.Context, tx execer, tt *timetable.Timetable) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO timetables (id, program_id, semester, year_id, version, start_date, end_date, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		   SET version = EXCLUDED.version, start_date = EXCLUDED.start_date,
		       end_date = EXCLUDED.end_date, state = EXCLUDED.state`,
		tt.ID, tt.ProgramID, tt.Semester, tt.YearID, tt.Version, tt.StartDate, tt.EndDate, tt.State,
	); err != nil {
		return fmt.Errorf("save timetable %s: %w", tt.ID, err)
	}

	ids := make([]string, 0, len(tt.Lines))
	for i := range tt.Lines {
		if tt.Lines[i].ID == "" {
			tt.Lines[i].ID = academic.NewID()
		}
		ids = append(ids, tt.Lines[i].ID)
	}
	// Removed lines go first so a moved line cannot clash with its old self.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM timetable_lines WHERE timetable_id = $1 AND NOT (id = ANY($2::uuid[]))`,
		tt.ID, pq.Array(ids),
	); err != nil {
		return fmt.Errorf("delete removed lines of %s: %w", tt.ID, err)
	}

	for _, l := range tt.Lines {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO timetable_lines (id, timetable_id, weekday, slot_id, start_minute, end_minute,
			   element_id, element_kind, room_id, instructor_id, group_ids, frequency)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE
			   SET weekday = EXCLUDED.weekday, slot_id = EXCLUDED.slot_id,
			       start_minute = EXCLUDED.start_minute, end_minute = EXCLUDED.end_minute,
			       element_id = EXCLUDED.element_id, element_kind = EXCLUDED.element_kind,
			       room_id = EXCLUDED.room_id, instructor_id = EXCLUDED.instructor_id,
			       group_ids = EXCLUDED.group_ids, frequency = EXCLUDED.frequency
			 WHERE timetable_lines.timetable_id = EXCLUDED.timetable_id`,
			l.ID, tt.ID, int(l.Weekday), slotID(l.Slot), int(l.Slot.Start), int(l.Slot.End),
			l.ElementID, l.ElementKind, l.RoomID, l.InstructorID, pq.Array(l.GroupIDs), lineFrequency(l),
		)
		if err != nil {
			return mapError(fmt.Errorf("save line %s: %w", l.ID, err), lineResource(err, l), l.SlotLabel())
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return academic.NewValidationError(nil, "line", l.ID,
				academic.FieldError{Field: "id", Message: "belongs to another timetable"})
		}
	}
	return nil
}

func lineFrequency(l timetable.Line) timetable.Frequency {
	if l.Frequency == "" {
		return timetable.Weekly
	}
	return l.Frequency
}

// LiveTimetables returns the confirmed and active timetables of a year with
// their lines, for cross-timetable checks.
func (s *Store) LiveTimetables(ctx context.Context, yearID string) ([]*timetable.Timetable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, program_id, semester, year_id, version, start_date, end_date, state
		 FROM timetables WHERE year_id = $1 AND state IN ('confirmed', 'active')
		 ORDER BY program_id, semester, version`,
		yearID,
	)
	if err != nil {
		return nil, fmt.Errorf("list live timetables: %w", err)
	}
	defer rows.Close()

	var out []*timetable.Timetable
	byID := make(map[string]*timetable.Timetable)
	for rows.Next() {
		tt := &timetable.Timetable{}
		if err := rows.Scan(&tt.ID, &tt.ProgramID, &tt.Semester, &tt.YearID, &tt.Version, &tt.StartDate, &tt.EndDate, &tt.State); err != nil {
			return nil, fmt.Errorf("scan timetable: %w", err)
		}
		out = append(out, tt)
		byID[tt.ID] = tt
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(out))
	for _, tt := range out {
		ids = append(ids, tt.ID)
	}
	lines, err := s.db.QueryContext(ctx,
		`SELECT timetable_id, id, weekday, slot_id, start_minute, end_minute,
		   element_id, element_kind, room_id, instructor_id, group_ids, frequency
		 FROM timetable_lines WHERE timetable_id = ANY($1)
		 ORDER BY weekday, start_minute`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	defer lines.Close()

	for lines.Next() {
		var ttID string
		var weekday, start, end int
		var l timetable.Line
		if err := lines.Scan(&ttID, &l.ID, &weekday, &l.Slot.ID, &start, &end,
			&l.ElementID, &l.ElementKind, &l.RoomID, &l.InstructorID, pq.Array(&l.GroupIDs), &l.Frequency); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		l.Weekday = time.Weekday(weekday)
		l.Slot.Start, l.Slot.End = timetable.Clock(start), timetable.Clock(end)
		if tt := byID[ttID]; tt != nil {
			tt.Lines = append(tt.Lines, l)
		}
	}
	return out, lines.Err()
}

// slotID keys a line's slot in the schema. Ad-hoc slots are keyed by time.
func slotID(s timetable.TimeSlot) string {
	if s.ID != "" {
		return s.ID
	}
	return s.String()
}

func lineResource(err error, l timetable.Line) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "timetable_lines_instructor_slot" {
		return l.InstructorID
	}
	return l.RoomID
}
