package surface

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ensiasd/academics/pkg/results"
)

// MinutesRenderer writes the Markdown minutes of a deliberation.
type MinutesRenderer struct{}

func (r *MinutesRenderer) Render(w io.Writer, rep *Report) error {
	if rep.Deliberation == nil {
		return fmt.Errorf("minutes: report has no deliberation")
	}
	_, err := io.WriteString(w, BuildMinutes(rep.Deliberation))
	return err
}

// BuildMinutes formats the jury lines and statistics of d as Markdown.
func BuildMinutes(d *results.Deliberation) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Deliberation %s %s\n\n", d.ProgramID, d.Period)
	fmt.Fprintf(&sb, "State: **%s**", d.State)
	if !d.ValidatedAt.IsZero() {
		fmt.Fprintf(&sb, ", validated %s by %s", d.ValidatedAt.Format(time.DateOnly), d.ValidatedBy)
	}
	sb.WriteString("\n\n")

	if len(d.Jury) > 0 {
		sb.WriteString("### Jury\n\n")
		for _, m := range d.Jury {
			fmt.Fprintf(&sb, "- %s (%s)\n", m.InstructorID, m.Role)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Results\n\n")
	sb.WriteString("| Rank | Student | Average | Credits | Decision |\n|------|---------|---------|---------|----------|\n")
	for _, l := range d.Lines {
		decision := string(l.FinalDecision)
		if l.Modified() {
			decision = fmt.Sprintf("%s (jury, computed %s)", l.FinalDecision, l.AutoDecision)
		}
		fmt.Fprintf(&sb, "| %d | %s | %.2f | %d/%d | %s |\n",
			l.Result.Rank, l.Result.StudentID, l.Result.WeightedAverage,
			l.Result.EarnedCredits, l.Result.TotalCredits, decision)
	}
	sb.WriteString("\n")

	st := d.Statistics()
	sb.WriteString("### Statistics\n\n")
	sb.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&sb, "| Students | %d |\n", st.Students)
	fmt.Fprintf(&sb, "| Admitted | %d |\n", st.Admitted)
	fmt.Fprintf(&sb, "| Retake session | %d |\n", st.Retake)
	fmt.Fprintf(&sb, "| Deferred | %d |\n", st.Deferred)
	fmt.Fprintf(&sb, "| Pass rate | %.2f%% |\n", st.PassRate)
	fmt.Fprintf(&sb, "| Cohort average | %.2f |\n", st.CohortAverage)

	return sb.String()
}
