package results

import (
	"fmt"
	"math"
	"time"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/grading"
)

// DeliberationState is the lifecycle state of a jury deliberation.
type DeliberationState string

const (
	DeliberationDraft     DeliberationState = "draft"
	DeliberationPrepared  DeliberationState = "prepared"
	DeliberationInSession DeliberationState = "in-session"
	DeliberationValidated DeliberationState = "validated"
	DeliberationSigned    DeliberationState = "signed"
	DeliberationPublished DeliberationState = "published"
)

// JuryMember sits on a deliberation.
type JuryMember struct {
	InstructorID string `json:"instructor_id"`
	Role         string `json:"role"` // president, member, secretary
}

// Line is one student's entry in a deliberation.
type Line struct {
	Result        PeriodResult          `json:"result"`
	Scores        []grading.ModuleScore `json:"scores"`
	AutoDecision  Decision              `json:"auto_decision"`
	FinalDecision Decision              `json:"final_decision"`
	JuryNote      string                `json:"jury_note,omitempty"`
}

// Modified reports whether the jury changed the computed decision.
func (l Line) Modified() bool {
	return l.FinalDecision != l.AutoDecision
}

// Deliberation groups the period results of a cohort for a jury.
type Deliberation struct {
	ID          string            `json:"id"`
	ProgramID   string            `json:"program_id"`
	Period      academic.Period   `json:"period"`
	Jury        []JuryMember      `json:"jury"`
	State       DeliberationState `json:"state"`
	Lines       []Line            `json:"lines"`
	ValidatedBy string            `json:"validated_by,omitempty"`
	ValidatedAt time.Time         `json:"validated_at,omitempty"`
	SignedAt    time.Time         `json:"signed_at,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
}

// Statistics summarises a deliberation for the minutes.
type Statistics struct {
	Students      int     `json:"students"`
	Admitted      int     `json:"admitted"`
	Deferred      int     `json:"deferred"`
	Retake        int     `json:"retake"`
	PassRate      float64 `json:"pass_rate"`
	CohortAverage float64 `json:"cohort_average"`
}

// NewDeliberation opens a draft deliberation for a program and period.
func NewDeliberation(programID string, period academic.Period, jury ...JuryMember) (*Deliberation, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if programID == "" {
		return nil, academic.NewValidationError(nil, "deliberation", "", academic.FieldError{Field: "program_id", Message: "required"})
	}
	return &Deliberation{
		ID:        academic.NewID(),
		ProgramID: programID,
		Period:    period,
		Jury:      jury,
		State:     DeliberationDraft,
	}, nil
}

func (d *Deliberation) stateError(action string, err error) error {
	return &academic.StateError{Err: err, Entity: "deliberation", ID: d.ID, State: string(d.State), Action: action}
}

// Prepare loads the ranked cohort. scores maps student id to the module
// scores behind each result.
func (d *Deliberation) Prepare(results []PeriodResult, scores map[string][]grading.ModuleScore) error {
	if d.State != DeliberationDraft {
		return d.stateError("prepare", nil)
	}
	var fields []academic.FieldError
	for i, r := range results {
		if r.ProgramID != d.ProgramID || r.Period != d.Period {
			fields = append(fields, academic.FieldError{
				Field:   fmt.Sprintf("results[%d]", i),
				Message: fmt.Sprintf("student %s belongs to %s %s", r.StudentID, r.ProgramID, r.Period),
			})
		}
	}
	if len(fields) > 0 {
		return academic.NewValidationError(nil, "deliberation", d.ID, fields...)
	}

	ranked, err := RankGroup(results, RankDistinct)
	if err != nil {
		return err
	}
	ByRank(ranked)

	lines := make([]Line, 0, len(ranked))
	for _, r := range ranked {
		own := make([]grading.ModuleScore, len(scores[r.StudentID]))
		copy(own, scores[r.StudentID])
		lines = append(lines, Line{
			Result:        r,
			Scores:        own,
			AutoDecision:  r.Decision,
			FinalDecision: r.Decision,
		})
	}
	d.Lines = lines
	d.State = DeliberationPrepared
	return nil
}

// Start opens the jury session. Member scores enter deliberation.
func (d *Deliberation) Start() error {
	if d.State != DeliberationPrepared {
		return d.stateError("start", nil)
	}
	lines := d.cloneLines()
	for i := range lines {
		for j := range lines[i].Scores {
			s := &lines[i].Scores[j]
			if s.State == grading.StateValidated {
				if err := s.StartDeliberation(); err != nil {
					return err
				}
			}
		}
	}
	d.Lines = lines
	d.State = DeliberationInSession
	return nil
}

// Override records a jury decision for one student.
func (d *Deliberation) Override(studentID string, decision Decision, note string) error {
	if d.State != DeliberationInSession {
		return d.stateError("override", nil)
	}
	if !decision.Valid() {
		return academic.NewValidationError(nil, "deliberation", d.ID, academic.FieldError{Field: "decision", Message: fmt.Sprintf("unknown decision %q", decision)})
	}
	for i := range d.Lines {
		if d.Lines[i].Result.StudentID == studentID {
			d.Lines[i].FinalDecision = decision
			d.Lines[i].JuryNote = note
			return nil
		}
	}
	return &academic.NotFoundError{Entity: "deliberation line", Key: studentID}
}

// Validate closes the session. Every line must carry a decision; then all
// member scores and results are locked together. On any error nothing
// changes.
func (d *Deliberation) Validate(by string, at time.Time) error {
	if d.State != DeliberationInSession {
		return d.stateError("validate", nil)
	}
	var pending []academic.FieldError
	for _, l := range d.Lines {
		if l.FinalDecision == DecisionPending || l.FinalDecision == "" {
			pending = append(pending, academic.FieldError{Field: l.Result.StudentID, Message: "decision pending"})
		}
	}
	if len(pending) > 0 {
		return academic.NewValidationError(academic.ErrPendingDecision, "deliberation", d.ID, pending...)
	}

	lines := d.cloneLines()
	for i := range lines {
		l := &lines[i]
		for j := range l.Scores {
			s := &l.Scores[j]
			if s.State == grading.StateValidated {
				if err := s.StartDeliberation(); err != nil {
					return err
				}
			}
			if s.State == grading.StateLocked {
				continue
			}
			if err := s.Lock(); err != nil {
				return fmt.Errorf("locking %s: %w", l.Result.StudentID, err)
			}
		}
		l.Result.Decision = l.FinalDecision
		if err := l.Result.Lock(); err != nil {
			return err
		}
	}

	d.Lines = lines
	d.State = DeliberationValidated
	d.ValidatedBy = by
	d.ValidatedAt = at
	return nil
}

// Sign records the jury president's signature on validated minutes.
func (d *Deliberation) Sign(at time.Time) error {
	if d.State != DeliberationValidated {
		return d.stateError("sign", nil)
	}
	d.State = DeliberationSigned
	d.SignedAt = at
	return nil
}

// Publish makes signed results visible to students.
func (d *Deliberation) Publish(at time.Time) error {
	if d.State != DeliberationSigned {
		return d.stateError("publish", nil)
	}
	d.State = DeliberationPublished
	d.PublishedAt = at
	return nil
}

// ResetDraft discards the prepared cohort. Validation is irreversible.
func (d *Deliberation) ResetDraft() error {
	switch d.State {
	case DeliberationValidated, DeliberationSigned, DeliberationPublished:
		return d.stateError("reset", academic.ErrLocked)
	}
	d.Lines = nil
	d.State = DeliberationDraft
	return nil
}

// Results returns the period results as they stand, jury decisions applied.
func (d *Deliberation) Results() []PeriodResult {
	out := make([]PeriodResult, 0, len(d.Lines))
	for _, l := range d.Lines {
		r := l.Result
		r.Decision = l.FinalDecision
		out = append(out, r)
	}
	return out
}

// LockedScores returns every member score once the deliberation is locked.
func (d *Deliberation) LockedScores() []grading.ModuleScore {
	var out []grading.ModuleScore
	for _, l := range d.Lines {
		for _, s := range l.Scores {
			if s.State == grading.StateLocked {
				out = append(out, s)
			}
		}
	}
	return out
}

// Statistics computes the cohort summary from the final decisions.
func (d *Deliberation) Statistics() Statistics {
	var st Statistics
	var sum float64
	for _, l := range d.Lines {
		st.Students++
		sum += l.Result.WeightedAverage
		switch l.FinalDecision {
		case DecisionAdmitted, DecisionCompensation:
			st.Admitted++
		case DecisionDeferred, DecisionRepeating, DecisionExcluded:
			st.Deferred++
		case DecisionRetake:
			st.Retake++
		}
	}
	if st.Students > 0 {
		st.PassRate = math.Round(float64(st.Admitted)/float64(st.Students)*10000) / 100
		st.CohortAverage = round2(sum / float64(st.Students))
	}
	return st
}

func (d *Deliberation) cloneLines() []Line {
	lines := make([]Line, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = l
		lines[i].Scores = append([]grading.ModuleScore(nil), l.Scores...)
	}
	return lines
}
