package grading

import (
	"fmt"
	"math"
	"sync"

	"github.com/ensiasd/academics/pkg/academic"
)

// MakeupPolicy says how a make-up exam mark is combined with the rest.
type MakeupPolicy string

const (
	MakeupReplacesExam  MakeupPolicy = "replaces-exam"
	MakeupReplacesTotal MakeupPolicy = "replaces-total"
	MakeupKeepBest      MakeupPolicy = "keep-best"
)

// Valid reports whether p is a known policy.
func (p MakeupPolicy) Valid() bool {
	switch p {
	case MakeupReplacesExam, MakeupReplacesTotal, MakeupKeepBest:
		return true
	}
	return false
}

// Weights are the category percentages of a rubric. They sum to 100.
type Weights struct {
	CC      float64 `json:"cc" yaml:"cc"`
	Exam    float64 `json:"exam" yaml:"exam"`
	TP      float64 `json:"tp" yaml:"tp"`
	Project float64 `json:"project" yaml:"project"`
}

// Sum returns the total of all percentages.
func (w Weights) Sum() float64 {
	return w.CC + w.Exam + w.TP + w.Project
}

const weightTolerance = 0.01

// Settings are the institution-wide grading constants. MaxScore is the top
// of the scale; nothing in the package assumes 20.
type Settings struct {
	MaxScore             float64
	PassThreshold        float64
	EliminationThreshold float64
	DefaultWeights       Weights
	DefaultPolicy        MakeupPolicy
	DefaultBonusCap      float64
}

// DefaultSettings returns the standard /20 scale.
func DefaultSettings() Settings {
	return Settings{
		MaxScore:             20,
		PassThreshold:        12,
		EliminationThreshold: 6,
		DefaultWeights:       Weights{CC: 30, Exam: 50, TP: 20, Project: 0},
		DefaultPolicy:        MakeupKeepBest,
		DefaultBonusCap:      2,
	}
}

// Rubric is the grading configuration of one module for one academic year.
type Rubric struct {
	Name                 string       `json:"name" yaml:"name"`
	ModuleID             string       `json:"module_id" yaml:"module_id"`
	YearID               string       `json:"year_id" yaml:"year_id"`
	Weights              Weights      `json:"weights" yaml:"weights"`
	EliminationThreshold float64      `json:"elimination_threshold" yaml:"elimination_threshold"`
	PassThreshold        float64      `json:"pass_threshold" yaml:"pass_threshold"`
	MakeupAllowed        bool         `json:"makeup_allowed" yaml:"makeup_allowed"`
	MakeupPolicy         MakeupPolicy `json:"makeup_policy" yaml:"makeup_policy"`
	BonusCap             float64      `json:"bonus_cap" yaml:"bonus_cap"`
	ExpectedCC           int          `json:"expected_cc" yaml:"expected_cc"`
	KeepBestCC           bool         `json:"keep_best_cc" yaml:"keep_best_cc"`
}

// NewRubric validates r against the settings and returns it.
// Weights not summing to 100 fail with ErrWeightSum; bad thresholds with
// ErrInvalidRubric.
func NewRubric(r Rubric, s Settings) (Rubric, error) {
	if err := r.Validate(s); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

// Validate checks the rubric invariants.
func (r Rubric) Validate(s Settings) error {
	id := r.ModuleID + "/" + r.YearID

	w := r.Weights
	var wfields []academic.FieldError
	for _, f := range []struct {
		name string
		v    float64
	}{{"weights.cc", w.CC}, {"weights.exam", w.Exam}, {"weights.tp", w.TP}, {"weights.project", w.Project}} {
		if f.v < 0 || f.v > 100 {
			wfields = append(wfields, academic.FieldError{Field: f.name, Message: fmt.Sprintf("%.2f is outside [0, 100]", f.v)})
		}
	}
	if math.Abs(w.Sum()-100) > weightTolerance {
		wfields = append(wfields, academic.FieldError{Field: "weights", Message: fmt.Sprintf("sum is %.2f", w.Sum())})
	}
	if len(wfields) > 0 {
		return academic.NewValidationError(academic.ErrWeightSum, "rubric", id, wfields...)
	}

	var fields []academic.FieldError
	if r.EliminationThreshold < 0 || r.EliminationThreshold > s.MaxScore {
		fields = append(fields, academic.FieldError{Field: "elimination_threshold", Message: fmt.Sprintf("must be within [0, %g]", s.MaxScore)})
	}
	if r.PassThreshold < 0 || r.PassThreshold > s.MaxScore {
		fields = append(fields, academic.FieldError{Field: "pass_threshold", Message: fmt.Sprintf("must be within [0, %g]", s.MaxScore)})
	}
	if r.EliminationThreshold > r.PassThreshold {
		fields = append(fields, academic.FieldError{Field: "elimination_threshold", Message: "greater than pass threshold"})
	}
	if !r.MakeupPolicy.Valid() {
		fields = append(fields, academic.FieldError{Field: "makeup_policy", Message: fmt.Sprintf("unknown policy %q", r.MakeupPolicy)})
	}
	if r.BonusCap < 0 {
		fields = append(fields, academic.FieldError{Field: "bonus_cap", Message: "must not be negative"})
	}
	if r.ExpectedCC < 0 {
		fields = append(fields, academic.FieldError{Field: "expected_cc", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return academic.NewValidationError(academic.ErrInvalidRubric, "rubric", id, fields...)
	}
	return nil
}

// DefaultRubric builds the rubric used when a module has none configured.
func DefaultRubric(moduleID, yearID string, s Settings) Rubric {
	return Rubric{
		Name:                 "Default " + moduleID,
		ModuleID:             moduleID,
		YearID:               yearID,
		Weights:              s.DefaultWeights,
		EliminationThreshold: s.EliminationThreshold,
		PassThreshold:        s.PassThreshold,
		MakeupAllowed:        true,
		MakeupPolicy:         s.DefaultPolicy,
		BonusCap:             s.DefaultBonusCap,
		ExpectedCC:           2,
	}
}

// ForYear copies the rubric to another academic year.
func (r Rubric) ForYear(yearID string) Rubric {
	c := r
	c.YearID = yearID
	return c
}

// RubricSource looks up the rubric of a module for a year.
type RubricSource interface {
	Resolve(moduleID, yearID string) (Rubric, bool, error)
}

// RubricBook is an in-memory RubricSource. Missing rubrics are created
// from the defaults unless Strict is set; every defaulted key is recorded
// so mis-configuration stays visible.
type RubricBook struct {
	Settings Settings
	Strict   bool

	mu        sync.Mutex
	rubrics   map[string]Rubric
	frozen    map[string]bool
	defaulted []string
}

// NewRubricBook creates an empty book.
func NewRubricBook(s Settings) *RubricBook {
	return &RubricBook{
		Settings: s,
		rubrics:  make(map[string]Rubric),
		frozen:   make(map[string]bool),
	}
}

func rubricKey(moduleID, yearID string) string {
	return moduleID + "/" + yearID
}

// Put validates and stores a rubric. A rubric referenced by a locked score
// cannot be replaced.
func (b *RubricBook) Put(r Rubric) error {
	if err := r.Validate(b.Settings); err != nil {
		return err
	}
	key := rubricKey(r.ModuleID, r.YearID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen[key] {
		return &academic.StateError{Err: academic.ErrLocked, Entity: "rubric", ID: key, State: "referenced", Action: "replace"}
	}
	b.rubrics[key] = r
	return nil
}

// Resolve returns the rubric for the module and year. The second return
// value is true when the default rubric had to be created.
func (b *RubricBook) Resolve(moduleID, yearID string) (Rubric, bool, error) {
	key := rubricKey(moduleID, yearID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rubrics[key]; ok {
		return r, false, nil
	}
	if b.Strict {
		return Rubric{}, false, &academic.NotFoundError{Err: academic.ErrRubricMissing, Entity: "rubric", Key: key}
	}
	r := DefaultRubric(moduleID, yearID, b.Settings)
	b.rubrics[key] = r
	b.defaulted = append(b.defaulted, key)
	return r, true, nil
}

// Defaulted lists the module/year keys that fell back to the default rubric.
func (b *RubricBook) Defaulted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.defaulted))
	copy(out, b.defaulted)
	return out
}

// Freeze marks the rubrics used by locked scores as immutable.
func (b *RubricBook) Freeze(scores ...ModuleScore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range scores {
		if s.State == StateLocked {
			b.frozen[rubricKey(s.ModuleID, s.YearID)] = true
		}
	}
}
