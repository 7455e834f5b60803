package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ensiasd/academics/internal/archive"
	"github.com/ensiasd/academics/internal/batch"
	"github.com/ensiasd/academics/pkg/config"
	"github.com/ensiasd/academics/pkg/grading"
	"github.com/ensiasd/academics/pkg/notify"
	"github.com/ensiasd/academics/pkg/results"
	"github.com/ensiasd/academics/pkg/surface"
)

func newDeliberateCmd() *cobra.Command {
	var (
		flags     cohortFlags
		jury      []string
		overrides []string
		by        string
		publish   bool
		save      bool
		noArchive bool
		outputFmt string
	)

	cmd := &cobra.Command{
		Use:   "deliberate",
		Short: "Run a jury deliberation and produce its minutes",
		Long: `Aggregates the cohort, opens a deliberation, applies the jury's decision
overrides and validates it. Validation locks every result and score of
the cohort. With --publish the deliberation is signed and published,
bulletins are archived and students are notified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			return runDeliberate(cmd.Context(), root, deliberateOpts{
				cohort:    flags,
				jury:      jury,
				overrides: overrides,
				by:        by,
				publish:   publish,
				save:      save,
				archive:   !noArchive,
				outputFmt: outputFmt,
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&jury, "jury", nil, "Jury members as instructor:role (e.g. prof-1:president)")
	cmd.Flags().StringArrayVar(&overrides, "override", nil, "Jury decision as student=decision[:note], repeatable")
	cmd.Flags().StringVar(&by, "by", "", "Who validates the deliberation (default: first jury member)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Sign and publish after validation")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the locked deliberation in the database")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Do not write minutes and bulletins to storage")
	cmd.Flags().StringVar(&outputFmt, "output", "minutes", "Output format: minutes, text or json")

	return cmd
}

type deliberateOpts struct {
	cohort    cohortFlags
	jury      []string
	overrides []string
	by        string
	publish   bool
	save      bool
	archive   bool
	outputFmt string
}

func parseJury(specs []string) ([]results.JuryMember, error) {
	var out []results.JuryMember
	for _, s := range specs {
		id, role, _ := strings.Cut(s, ":")
		if id == "" {
			return nil, fmt.Errorf("invalid jury member %q", s)
		}
		out = append(out, results.JuryMember{InstructorID: id, Role: firstNonEmpty(role, "member")})
	}
	return out, nil
}

type override struct {
	studentID string
	decision  results.Decision
	note      string
}

func parseOverride(s string) (override, error) {
	student, rest, ok := strings.Cut(s, "=")
	if !ok || student == "" {
		return override{}, fmt.Errorf("invalid override %q: want student=decision[:note]", s)
	}
	decision, note, _ := strings.Cut(rest, ":")
	d := results.Decision(decision)
	if !d.Valid() {
		return override{}, fmt.Errorf("invalid override %q: unknown decision %q", s, decision)
	}
	return override{studentID: student, decision: d, note: note}, nil
}

func runDeliberate(ctx context.Context, root string, opts deliberateOpts) error {
	jury, err := parseJury(opts.jury)
	if err != nil {
		return err
	}
	var ovs []override
	for _, s := range opts.overrides {
		o, err := parseOverride(s)
		if err != nil {
			return err
		}
		ovs = append(ovs, o)
	}
	validator := opts.by
	if validator == "" && len(jury) > 0 {
		validator = jury[0].InstructorID
	}
	if validator == "" {
		return fmt.Errorf("a deliberation needs --jury or --by")
	}

	c, err := buildCohort(ctx, root, opts.cohort, opts.save)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := batch.Err(c.report.Failures); err != nil {
		return fmt.Errorf("cohort is incomplete: %w", err)
	}

	d, err := results.NewDeliberation(c.ctx.ProgramID, c.ctx.Period, jury...)
	if err != nil {
		return err
	}
	if err := d.Prepare(c.report.Results, c.report.Scores); err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	for _, o := range ovs {
		if err := d.Override(o.studentID, o.decision, o.note); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if err := d.Validate(validator, now); err != nil {
		return err
	}
	if opts.save && c.store != nil {
		if err := c.store.LockDeliberation(ctx, d); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Deliberation %s locked in the database\n", d.ID)
	}

	if opts.publish {
		if err := d.Sign(now); err != nil {
			return err
		}
		if err := d.Publish(now); err != nil {
			return err
		}
	}

	rep := &surface.Report{
		Title:        fmt.Sprintf("Deliberation %s %s", d.ProgramID, d.Period),
		Deliberation: d,
		Results:      d.Results(),
	}

	if opts.archive {
		if err := archiveDeliberation(ctx, root, c.cfg, d); err != nil {
			rep.Warnings = append(rep.Warnings, err.Error())
		}
	}
	if notices := notify.PlanResultNotices(d); len(notices) > 0 {
		sink := notify.NewConsoleSink(os.Stderr, "notify")
		if err := sink.Send(ctx, notices...); err != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("notify: %v", err))
		}
	}

	return render(opts.outputFmt, rep)
}

// bulletin is the archived record of one student's published result.
type bulletin struct {
	Result   results.PeriodResult  `json:"result"`
	Scores   []grading.ModuleScore `json:"scores"`
	Decision results.Decision      `json:"decision"`
	JuryNote string                `json:"jury_note,omitempty"`
}

// archiveDeliberation stores the minutes, and the bulletins once the
// deliberation is published.
func archiveDeliberation(ctx context.Context, root string, cfg *config.Config, d *results.Deliberation) error {
	client, err := archive.New(ctx, cfg.Storage, config.ArchiveDir(root))
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	year := d.Period.YearID
	if err := client.PutMinutes(ctx, year, d.ID, []byte(surface.BuildMinutes(d))); err != nil {
		return fmt.Errorf("archive minutes: %w", err)
	}
	if d.State != results.DeliberationPublished {
		return nil
	}
	for _, l := range d.Lines {
		data, err := json.MarshalIndent(bulletin{
			Result:   l.Result,
			Scores:   l.Scores,
			Decision: l.FinalDecision,
			JuryNote: l.JuryNote,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal bulletin %s: %w", l.Result.StudentID, err)
		}
		if err := client.PutBulletin(ctx, year, l.Result.StudentID, data); err != nil {
			return fmt.Errorf("archive bulletin: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "Archived minutes and %d bulletins\n", len(d.Lines))
	return nil
}
