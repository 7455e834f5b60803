// Package academic holds the types shared by the grading, results and
// timetable engines: the error taxonomy, academic periods and identifiers.
package academic

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below wrap one of these so callers can
// match with errors.Is and still get field-level detail with errors.As.
var (
	ErrOutOfRangeScore = errors.New("score out of range")
	ErrInvalidRubric   = errors.New("invalid rubric")
	ErrWeightSum       = errors.New("weights must sum to 100")
	ErrInvalidDates    = errors.New("invalid date ordering")
	ErrSlotConflict    = errors.New("slot conflict")
	ErrLocked          = errors.New("record is locked")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrPendingDecision = errors.New("pending decision")
	ErrRubricMissing   = errors.New("rubric not configured")
)

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or out-of-range input. It is always
// returned before anything is persisted.
type ValidationError struct {
	Err    error        `json:"-"`
	Entity string       `json:"entity"`
	ID     string       `json:"id,omitempty"`
	Fields []FieldError `json:"fields"`
}

// NewValidationError builds a ValidationError wrapping err.
func NewValidationError(err error, entity, id string, fields ...FieldError) *ValidationError {
	return &ValidationError{Err: err, Entity: entity, ID: id, Fields: fields}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Entity)
	if e.ID != "" {
		b.WriteString(" " + e.ID)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("validation failed")
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + ": " + f.Message)
		if i == len(e.Fields)-1 {
			b.WriteString(")")
		}
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError reports a double booking of a room or an instructor.
type ConflictError struct {
	Err          error    `json:"-"`
	ResourceKind string   `json:"resource_kind"` // "room" or "instructor"
	ResourceID   string   `json:"resource_id"`
	Slot         string   `json:"slot"`
	LineIDs      []string `json:"line_ids"`
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s %s is booked more than once on %s", e.ResourceKind, e.ResourceID, e.Slot)
	if len(e.LineIDs) > 0 {
		msg += " (lines " + strings.Join(e.LineIDs, ", ") + ")"
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	if e.Err == nil {
		return ErrSlotConflict
	}
	return e.Err
}

// StateError reports an operation refused because of a record's lifecycle
// state. The record is left unchanged.
type StateError struct {
	Err    error  `json:"-"`
	Entity string `json:"entity"`
	ID     string `json:"id"`
	State  string `json:"state"`
	Action string `json:"action"`
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %s: %v", e.Action, e.Entity, e.ID, e.State, e.Unwrap())
}

func (e *StateError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidState
	}
	return e.Err
}

// NotFoundError reports missing configuration or records.
type NotFoundError struct {
	Err    error  `json:"-"`
	Entity string `json:"entity"`
	Key    string `json:"key"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsLocked reports whether err was caused by a locked record.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}
