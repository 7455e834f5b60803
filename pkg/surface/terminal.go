package surface

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/results"
)

// TerminalRenderer renders a Report as colored terminal output.
type TerminalRenderer struct{}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func outcomeColor(o grading.Outcome) string {
	switch o {
	case grading.OutcomePassed, grading.OutcomeCompensated:
		return colorGreen
	case grading.OutcomeRetake:
		return colorYellow
	case grading.OutcomeFailed, grading.OutcomeEliminated, grading.OutcomeAbsent:
		return colorRed
	default:
		return ""
	}
}

func decisionColor(d results.Decision) string {
	switch d {
	case results.DecisionAdmitted, results.DecisionCompensation:
		return colorGreen
	case results.DecisionRetake, results.DecisionPending:
		return colorYellow
	default:
		return colorRed
	}
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, rep *Report) error {
	fmt.Fprintf(w, "%s\n\n", bold(rep.Title))

	for _, warn := range rep.Warnings {
		fmt.Fprintf(w, "%s %s\n", colored("!", colorYellow), warn)
	}
	if len(rep.Warnings) > 0 {
		fmt.Fprintln(w)
	}

	if len(rep.Scores) > 0 {
		fmt.Fprintln(w, "Module scores:")
		for _, s := range rep.Scores {
			fmt.Fprintf(w, "  %-12s %-10s %6.2f  %s %s\n",
				s.StudentID, s.ModuleID, s.Final,
				colored(string(s.Outcome), outcomeColor(s.Outcome)), dim(string(s.Mention)))
		}
		fmt.Fprintln(w)
	}

	if len(rep.Results) > 0 {
		fmt.Fprintln(w, "Results:")
		for _, res := range rep.Results {
			fmt.Fprintf(w, "  %3d. %-12s %6.2f  %2d/%-2d credits  %s\n",
				res.Rank, res.StudentID, res.WeightedAverage, res.EarnedCredits, res.TotalCredits,
				colored(string(res.Decision), decisionColor(res.Decision)))
			for _, sk := range res.Skipped {
				fmt.Fprintf(w, "       %s\n", dim(fmt.Sprintf("skipped %s: %s", sk.ModuleID, sk.Reason)))
			}
		}
		fmt.Fprintln(w)
	}

	if d := rep.Deliberation; d != nil {
		st := d.Statistics()
		fmt.Fprintf(w, "Deliberation %s (%s): %d students, %d admitted, %d retake, %d deferred\n",
			d.Period, d.State, st.Students, st.Admitted, st.Retake, st.Deferred)
		fmt.Fprintf(w, "  pass rate %.2f%%, cohort average %.2f\n\n", st.PassRate, st.CohortAverage)
	}

	if len(rep.Conflicts) > 0 {
		fmt.Fprintln(w, "Conflicts:")
		for _, c := range rep.Conflicts {
			fmt.Fprintf(w, "  %s %s %s on %s %s\n",
				colored("●", colorRed), c.ResourceKind, bold(c.ResourceID), c.Slot, dim(fmt.Sprint(c.LineIDs)))
		}
		fmt.Fprintln(w)
	}

	if len(rep.Sessions) > 0 {
		fmt.Fprintf(w, "Sessions created: %d\n", len(rep.Sessions))
		for _, s := range rep.Sessions {
			fmt.Fprintf(w, "  %s %s-%s %-12s %-8s %s\n",
				s.Date.Format(time.DateOnly), s.Start, s.End, s.ElementID, s.RoomID, s.InstructorID)
		}
		fmt.Fprintln(w)
	}

	if ag := rep.AutoGen; ag != nil {
		fmt.Fprintf(w, "Lines placed: %d\n", len(ag.Lines))
		for _, l := range ag.Lines {
			fmt.Fprintf(w, "  %-20s %-12s %-8s %s\n", l.SlotLabel(), l.ElementID, l.RoomID, l.InstructorID)
		}
		if n := ag.UnscheduledCount(); n > 0 {
			fmt.Fprintf(w, "%s\n", colored(fmt.Sprintf("Unscheduled elements: %d", n), colorRed))
			for _, u := range ag.Unscheduled {
				fmt.Fprintf(w, "  • %s %s\n", bold(u.ElementID), u.Reason)
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}
