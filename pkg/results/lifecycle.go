package results

import "github.com/ensiasd/academics/pkg/academic"

func (r *PeriodResult) stateError(action string, err error) error {
	return &academic.StateError{Err: err, Entity: "period result", ID: r.StudentID + "@" + r.Period.String(), State: string(r.State), Action: action}
}

// Validate marks a calculated result as validated.
func (r *PeriodResult) Validate() error {
	if r.State == StateLocked {
		return r.stateError("validate", academic.ErrLocked)
	}
	if r.State != StateCalculated {
		return r.stateError("validate", nil)
	}
	r.State = StateValidated
	return nil
}

// Lock freezes the result. Calculated and validated results can be locked.
func (r *PeriodResult) Lock() error {
	switch r.State {
	case StateCalculated, StateValidated:
		r.State = StateLocked
		return nil
	case StateLocked:
		return r.stateError("lock", academic.ErrLocked)
	}
	return r.stateError("lock", nil)
}

// ResetDraft clears a result that is not locked.
func (r *PeriodResult) ResetDraft() error {
	if r.State == StateLocked {
		return r.stateError("reset", academic.ErrLocked)
	}
	r.State = StateDraft
	return nil
}

// Replace swaps r for a freshly aggregated result, keeping its identity.
// Locked results are never replaced.
func (r *PeriodResult) Replace(fresh PeriodResult) error {
	if r.State == StateLocked {
		return r.stateError("recompute", academic.ErrLocked)
	}
	id := r.ID
	*r = fresh
	if id != "" {
		r.ID = id
	}
	return nil
}
