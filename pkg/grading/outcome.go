package grading

// OutcomeInput is everything the classifier looks at.
type OutcomeInput struct {
	Score          float64
	NormalSession  bool
	AbsentFromExam bool
	HasMakeup      bool
}

// ClassifyOutcome maps a final score to an outcome under the rubric
// thresholds. Between the elimination and pass thresholds a normal session
// gives retake and a make-up session gives failed.
func ClassifyOutcome(score float64, r Rubric, normalSession bool) Outcome {
	return Classify(OutcomeInput{Score: score, NormalSession: normalSession}, r)
}

// Classify is ClassifyOutcome with exam absence taken into account: a
// student absent from the exam without a make-up mark is absent.
func Classify(in OutcomeInput, r Rubric) Outcome {
	switch {
	case in.AbsentFromExam && !in.HasMakeup:
		return OutcomeAbsent
	case in.Score < r.EliminationThreshold:
		return OutcomeEliminated
	case in.Score >= r.PassThreshold:
		return OutcomePassed
	case in.NormalSession:
		return OutcomeRetake
	default:
		return OutcomeFailed
	}
}
