package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/config"
	"github.com/ensiasd/academics/pkg/notify"
	"github.com/ensiasd/academics/pkg/surface"
	"github.com/ensiasd/academics/pkg/timetable"
)

// planFile is the YAML description of a timetable and what it is planned
// against.
type planFile struct {
	Timetable   *timetable.Timetable         `yaml:"timetable"`
	Elements    []timetable.Element          `yaml:"elements,omitempty"`
	Slots       []timetable.TimeSlot         `yaml:"slots,omitempty"`
	Days        []string                     `yaml:"days,omitempty"`
	Rooms       []timetable.Room             `yaml:"rooms,omitempty"`
	Unavailable timetable.UnavailabilityList `yaml:"unavailable,omitempty"`
	Others      []*timetable.Timetable       `yaml:"others,omitempty"`
}

func readPlan(path string) (*planFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var p planFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if p.Timetable == nil {
		return nil, fmt.Errorf("plan %s has no timetable", path)
	}
	if p.Timetable.State == "" {
		p.Timetable.State = timetable.StateDraft
	}
	if p.Timetable.ID == "" {
		p.Timetable.ID = academic.NewID()
	}
	if err := p.Timetable.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func writePlan(path string, p *planFile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Plan written: %s\n", path)
	return nil
}

func (p *planFile) days() ([]time.Weekday, error) {
	if len(p.Days) == 0 {
		return timetable.TeachingDays(), nil
	}
	out := make([]time.Weekday, 0, len(p.Days))
	for _, d := range p.Days {
		wd, err := timetable.ParseWeekday(d)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, nil
}

// timetableEnv is what every timetable subcommand starts from.
type timetableEnv struct {
	cfg    *config.Config
	plan   *planFile
	bounds timetable.DayBounds
}

func loadTimetableEnv(cmd *cobra.Command, planPath string) (*timetableEnv, error) {
	root, err := resolveRoot(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	plan, err := readPlan(planPath)
	if err != nil {
		return nil, err
	}
	bounds, err := cfg.Scheduling.DayBounds()
	if err != nil {
		return nil, err
	}
	plan.Timetable.Bounds = bounds
	return &timetableEnv{cfg: cfg, plan: plan, bounds: bounds}, nil
}

func newTimetableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timetable",
		Short: "Check, confirm, generate and materialize timetables",
	}
	cmd.PersistentFlags().String("plan", "", "Path to the timetable plan YAML (required)")
	cmd.PersistentFlags().String("output", "text", "Output format: text or json")
	_ = cmd.MarkPersistentFlagRequired("plan")

	cmd.AddCommand(
		newTimetableCheckCmd(),
		newTimetableConfirmCmd(),
		newTimetableAutogenCmd(),
		newTimetableMaterializeCmd(),
	)
	return cmd
}

func planFlags(cmd *cobra.Command) (planPath, outputFmt string) {
	planPath, _ = cmd.Flags().GetString("plan")
	outputFmt, _ = cmd.Flags().GetString("output")
	return planPath, outputFmt
}

func newTimetableCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "List room and instructor double bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, outputFmt := planFlags(cmd)
			env, err := loadTimetableEnv(cmd, planPath)
			if err != nil {
				return err
			}
			tt := env.plan.Timetable
			rep := &surface.Report{
				Title:     fmt.Sprintf("Timetable %s %s %s", tt.ProgramID, tt.Semester, tt.YearID),
				Conflicts: timetable.Conflicts(tt.Lines),
			}
			if err := tt.CheckAgainst(env.plan.Others); err != nil {
				var ce *academic.ConflictError
				if !errors.As(err, &ce) {
					return err
				}
				rep.Conflicts = append(rep.Conflicts, ce)
			}
			if err := render(outputFmt, rep); err != nil {
				return err
			}
			if len(rep.Conflicts) > 0 {
				return fmt.Errorf("%d conflicts", len(rep.Conflicts))
			}
			return nil
		},
	}
}

func newTimetableConfirmCmd() *cobra.Command {
	var (
		writePath string
		activate  bool
		save      bool
	)
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a draft timetable",
		Long: `Checks every line for double bookings, within the timetable and against the
other live timetables of the year, and moves it to confirmed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, outputFmt := planFlags(cmd)
			env, err := loadTimetableEnv(cmd, planPath)
			if err != nil {
				return err
			}
			return runConfirm(cmd.Context(), env, confirmOpts{
				planPath:  firstNonEmpty(writePath, planPath),
				activate:  activate,
				save:      save,
				outputFmt: outputFmt,
			})
		},
	}
	cmd.Flags().StringVar(&writePath, "write", "", "Write the confirmed plan here (default: overwrite --plan)")
	cmd.Flags().BoolVar(&activate, "activate", false, "Activate the timetable after confirming it")
	cmd.Flags().BoolVar(&save, "save", false, "Store the timetable in the database")
	return cmd
}

type confirmOpts struct {
	planPath  string
	activate  bool
	save      bool
	outputFmt string
}

func runConfirm(ctx context.Context, env *timetableEnv, opts confirmOpts) error {
	tt := env.plan.Timetable
	others := env.plan.Others

	st, db, err := openStore(ctx, env.cfg, opts.save)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		live, err := st.LiveTimetables(ctx, tt.YearID)
		if err != nil {
			return err
		}
		others = append(others, live...)
	}

	if err := tt.CheckAgainst(others); err != nil {
		return err
	}
	if err := tt.Confirm(); err != nil {
		return err
	}
	if opts.activate {
		if err := tt.Activate(); err != nil {
			return err
		}
	}
	if opts.save && st != nil {
		if err := st.SaveTimetable(ctx, tt); err != nil {
			return err
		}
	}
	if err := writePlan(opts.planPath, env.plan); err != nil {
		return err
	}
	return render(opts.outputFmt, &surface.Report{
		Title: fmt.Sprintf("Timetable %s %s %s is %s", tt.ProgramID, tt.Semester, tt.YearID, tt.State),
	})
}

func newTimetableAutogenCmd() *cobra.Command {
	var writePath string
	cmd := &cobra.Command{
		Use:   "autogen",
		Short: "Place course elements into free slots",
		Long: `Places each element of the plan on as many weekly slots as its hours need,
respecting room kinds, unavailability and the other live timetables.
Elements that do not fit are reported, not forced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, outputFmt := planFlags(cmd)
			env, err := loadTimetableEnv(cmd, planPath)
			if err != nil {
				return err
			}
			opts, err := env.cfg.Scheduling.AutoGenOptions()
			if err != nil {
				return err
			}
			days, err := env.plan.days()
			if err != nil {
				return err
			}

			report, err := timetable.AutoGenerate(env.plan.Timetable, timetable.AutoGenInput{
				Elements:    env.plan.Elements,
				Slots:       env.plan.Slots,
				Days:        days,
				Rooms:       env.plan.Rooms,
				Unavailable: env.plan.Unavailable,
				Others:      env.plan.Others,
			}, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Placed %d lines, %d elements unscheduled\n", len(report.Lines), report.UnscheduledCount())

			if err := writePlan(firstNonEmpty(writePath, planPath), env.plan); err != nil {
				return err
			}
			return render(outputFmt, &surface.Report{Title: "Timetable generation", AutoGen: &report})
		},
	}
	cmd.Flags().StringVar(&writePath, "write", "", "Write the generated plan here (default: overwrite --plan)")
	return cmd
}

func newTimetableMaterializeCmd() *cobra.Command {
	var (
		from, to string
		save     bool
		notifyTo bool
	)
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Create dated sessions from a live timetable",
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath, outputFmt := planFlags(cmd)
			env, err := loadTimetableEnv(cmd, planPath)
			if err != nil {
				return err
			}
			return runMaterialize(cmd.Context(), env, materializeOpts{
				from:      from,
				to:        to,
				save:      save,
				notify:    notifyTo,
				outputFmt: outputFmt,
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date, YYYY-MM-DD (default: timetable start)")
	cmd.Flags().StringVar(&to, "to", "", "Last date, YYYY-MM-DD (default: timetable end)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the sessions in the database")
	cmd.Flags().BoolVar(&notifyTo, "notify", false, "Notify instructors of their new sessions")
	return cmd
}

type materializeOpts struct {
	from, to  string
	save      bool
	notify    bool
	outputFmt string
}

func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func runMaterialize(ctx context.Context, env *timetableEnv, opts materializeOpts) error {
	tt := env.plan.Timetable
	from, err := parseDate(opts.from, tt.StartDate)
	if err != nil {
		return err
	}
	to, err := parseDate(opts.to, tt.EndDate)
	if err != nil {
		return err
	}

	var sessions timetable.SessionStore = timetable.NewMemoryStore()
	st, db, err := openStore(ctx, env.cfg, opts.save)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if opts.save {
			sessions = st.Sessions()
		}
	}

	var mopts []timetable.MaterializeOption
	if !env.cfg.Scheduling.SkipSundays {
		mopts = append(mopts, timetable.WithHoliday(func(time.Time) bool { return false }))
	}
	created, err := timetable.Materialize(ctx, tt, from, to, sessions, env.plan.Unavailable, mopts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Created %d sessions\n", len(created))

	rep := &surface.Report{Title: fmt.Sprintf("Sessions %s %s", tt.ProgramID, tt.Semester), Sessions: created}
	if opts.notify {
		sink := notify.NewConsoleSink(os.Stderr, "notify")
		if err := sink.Send(ctx, notify.PlanSessionNotices(created)...); err != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("notify: %v", err))
		}
	}
	return render(opts.outputFmt, rep)
}
