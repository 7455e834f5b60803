package grading

import "github.com/ensiasd/academics/pkg/academic"

// State is the lifecycle state of a ModuleScore.
type State string

const (
	StateDraft        State = "draft"
	StateConfirmed    State = "confirmed"
	StateValidated    State = "validated"
	StateDeliberation State = "in-deliberation"
	StateLocked       State = "locked"
)

// next lists the forward transitions allowed from each state.
var next = map[State]State{
	StateDraft:        StateConfirmed,
	StateConfirmed:    StateValidated,
	StateValidated:    StateDeliberation,
	StateDeliberation: StateLocked,
}

func (s *ModuleScore) advance(to State, action string) error {
	if s.State == "" {
		s.State = StateDraft
	}
	if s.State == StateLocked {
		return &academic.StateError{Err: academic.ErrLocked, Entity: "module score", ID: s.Key(), State: string(s.State), Action: action}
	}
	if next[s.State] != to {
		return &academic.StateError{Entity: "module score", ID: s.Key(), State: string(s.State), Action: action}
	}
	s.State = to
	return nil
}

// Confirm moves a draft score to confirmed.
func (s *ModuleScore) Confirm() error { return s.advance(StateConfirmed, "confirm") }

// Validate moves a confirmed score to validated.
func (s *ModuleScore) Validate() error { return s.advance(StateValidated, "validate") }

// StartDeliberation moves a validated score into deliberation.
func (s *ModuleScore) StartDeliberation() error {
	return s.advance(StateDeliberation, "start deliberation")
}

// Lock makes the score immutable. Only scores in deliberation can be locked.
func (s *ModuleScore) Lock() error { return s.advance(StateLocked, "lock") }

// ResetDraft sends the score back to draft unless it is locked.
func (s *ModuleScore) ResetDraft() error {
	if s.State == StateLocked {
		return &academic.StateError{Err: academic.ErrLocked, Entity: "module score", ID: s.Key(), State: string(s.State), Action: "reset"}
	}
	s.State = StateDraft
	return nil
}

// Compensate records a jury compensation on a failing module.
func (s *ModuleScore) Compensate() error {
	if s.State == StateLocked {
		return &academic.StateError{Err: academic.ErrLocked, Entity: "module score", ID: s.Key(), State: string(s.State), Action: "compensate"}
	}
	switch s.Outcome {
	case OutcomeRetake, OutcomeFailed:
		s.Outcome = OutcomeCompensated
		return nil
	}
	return &academic.StateError{Entity: "module score", ID: s.Key(), State: string(s.Outcome), Action: "compensate"}
}

// Aggregatable reports whether the score may enter a period aggregate.
func (s ModuleScore) Aggregatable() bool {
	switch s.State {
	case StateValidated, StateDeliberation, StateLocked:
		return true
	}
	return false
}
