package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kmdcal/internal/ics"
	"kmdcal/internal/slothint"
)

func slotsCmd(opts *rootOptions) *cobra.Command {
	var course, from, until, importPath string
	var asICS bool

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show the cached weekly time slots of a course",
		Long: `Shows the course overview cache used to time undated-time schedule entries.
Without --course every cached course is listed. With --course the matching
weekday table is shown together with its weekly sessions between --from and --until.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			r := a.refresher()

			if importPath != "" {
				p, err := slothint.LoadFile(importPath)
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("%s: no such file", importPath)
				}
				if err := r.SaveSlotPayload(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(w, "imported %d courses\n", len(p.Courses))
			}

			p, err := r.SlotPayload(ctx)
			if err != nil {
				return err
			}
			if p == nil {
				return errors.New("no course overview cached: run extract on the course overview page first")
			}

			age := "unknown age"
			if t := p.CachedTime(); !t.IsZero() {
				age = "cached " + humanize.Time(t)
			}

			if course == "" {
				course = a.cfg.CourseName
			}
			if course == "" {
				fmt.Fprintf(w, "%s %s\n", styleTitle.Render(p.TermLabel), styleDim.Render(age))
				for _, c := range p.Courses {
					fmt.Fprintf(w, "  %s %s\n", c.Name, styleDim.Render(fmt.Sprint(c.Slots)))
				}
				return nil
			}

			hints, err := slothint.Build(p, course)
			if err != nil {
				return err
			}

			start := time.Now().In(a.loc)
			if from != "" {
				if start, err = time.ParseInLocation(time.DateOnly, from, a.loc); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			end := start.AddDate(0, 0, 7*15)
			if until != "" {
				if end, err = time.ParseInLocation(time.DateOnly, until, a.loc); err != nil {
					return fmt.Errorf("--until: %w", err)
				}
				end = end.Add(24*time.Hour - time.Second)
			}

			if asICS {
				return ics.ExportSlots(w, hints, start, end, ics.Options{Name: hints.Course(), TimeZone: a.cfg.Timezone, Location: a.loc})
			}

			fmt.Fprintf(w, "%s %s\n", styleTitle.Render(hints.Course()), styleDim.Render(age))
			for _, e := range hints.Entries() {
				fmt.Fprintf(w, "  %s%s - %s\n", styleWeekday.Render(slothint.WeekdayCode(e.Weekday)), e.Range.Start, e.Range.End)
			}

			occ, err := hints.Weekly(start, end, a.loc)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("%d sessions between %s and %s", len(occ), start.Format(time.DateOnly), end.Format(time.DateOnly))))
			for _, o := range occ {
				fmt.Fprintf(w, "  %s %s - %s\n", styleHeader.Render(o.Start.Format("2006-01-02 Mon")), o.Start.Format("15:04"), o.End.Format("15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&course, "course", "", "Course name to look up (defaults to config course_name)")
	cmd.Flags().StringVar(&from, "from", "", "First day of the session listing (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&until, "until", "", "Last day of the session listing (YYYY-MM-DD, default 15 weeks later)")
	cmd.Flags().BoolVar(&asICS, "ics", false, "Print the weekly sessions as recurring iCalendar events")
	cmd.Flags().StringVar(&importPath, "import", "", "Replace the cache with a course overview JSON file")

	return cmd
}
