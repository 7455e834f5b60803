// Package store persists rubrics, scores, results, deliberations,
// timetables and sessions in Postgres. Uniqueness rules are enforced by the
// schema so concurrent writers cannot double-book a room or instructor.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ensiasd/academics/pkg/academic"
)

// Postgres SQLSTATEs raised by the scheduling constraints.
const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

// Store provides persistence backed by Postgres.
type Store struct {
	db *sql.DB
}

// New creates a Store on an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and checks the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// conflictResources maps unique constraints to the resource they protect.
var conflictResources = map[string]string{
	"timetable_lines_room_slot":       "room",
	"timetable_lines_instructor_slot": "instructor",
	"sessions_unique_meeting":         "session",
}

// mapError converts unique and exclusion violations on scheduling
// constraints into ConflictErrors so callers see the same error as from
// the engine.
func mapError(err error, resourceID, slot string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if code := string(pqErr.Code); code != uniqueViolation && code != exclusionViolation {
		return err
	}
	kind, ok := conflictResources[pqErr.Constraint]
	if !ok {
		kind = pqErr.Constraint
	}
	return &academic.ConflictError{Err: academic.ErrSlotConflict, ResourceKind: kind, ResourceID: resourceID, Slot: slot}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
