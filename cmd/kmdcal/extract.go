package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kmdcal/internal/ics"
	"kmdcal/internal/model"
	"kmdcal/internal/refresh"
	"kmdcal/internal/schedule"
)

func extractCmd(opts *rootOptions) *cobra.Command {
	var so sourceOptions
	var asJSON, asICS, asLinks bool
	var out string

	cmd := &cobra.Command{
		Use:   "extract <page-id|file|url>",
		Short: "Print the schedule entries found on a course page",
		Long: `Scans a course page for dated schedule entries and prints the resolved events.
Dates without a time are timed from the cached course overview when it lists the course.
Passing the course overview page itself refreshes that cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.loadDocument(cmd.Context(), args[0], so)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			switch {
			case doc.Homepage:
				return printOverview(w, doc)
			case asJSON:
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(nonNil(doc.Events))
			case asICS:
				return ics.Export(w, doc.Events, ics.Options{Name: doc.Course.Name, TimeZone: a.cfg.Timezone, Location: a.loc})
			case asLinks:
				for _, ev := range doc.Events {
					fmt.Fprintln(w, schedule.TemplateURL(ev))
				}
				return nil
			default:
				printEvents(w, doc)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&so.course, "course", "", "Course name used in titles and slot lookup")
	cmd.Flags().StringVar(&so.location, "location", "", "Location attached to every event")
	cmd.Flags().BoolVar(&so.render, "render", false, "Load the page in headless Chromium first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	cmd.Flags().BoolVar(&asICS, "ics", false, "Print events as an iCalendar file")
	cmd.Flags().BoolVar(&asLinks, "links", false, "Print one Google Calendar link per event")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to a file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("json", "ics", "links")

	return cmd
}

func nonNil(events []model.ResolvedEvent) []model.ResolvedEvent {
	if events == nil {
		return []model.ResolvedEvent{}
	}
	return events
}

func printOverview(w io.Writer, doc refresh.Document) error {
	if doc.Payload == nil {
		return fmt.Errorf("course overview lists no courses")
	}
	fmt.Fprintln(w, styleTitle.Render(doc.Payload.TermLabel))
	for _, c := range doc.Payload.Courses {
		fmt.Fprintf(w, "  %s %s\n", c.Name, styleDim.Render(fmt.Sprint(c.Slots)))
	}
	fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("slot cache updated: %d courses", len(doc.Payload.Courses))))
	return nil
}

// eventHeader renders "YYYY-MM-DD HH:MM - HH:MM" from wall-clock times.
func eventHeader(ev model.ResolvedEvent) string {
	return ev.Start.In(time.UTC).Format("2006-01-02 15:04") + " - " + ev.End.In(time.UTC).Format("15:04")
}

func printEvents(w io.Writer, doc refresh.Document) {
	if doc.Course.Name != "" {
		title := doc.Course.Name
		if doc.Course.Location != "" {
			title += " @ " + doc.Course.Location
		}
		fmt.Fprintln(w, styleTitle.Render(title))
	}
	if len(doc.Events) == 0 {
		fmt.Fprintln(w, styleDim.Render("no schedule entries found"))
		return
	}
	for _, ev := range doc.Events {
		line := styleHeader.Render(eventHeader(ev))
		if ev.Inferred {
			line += " " + styleInferred.Render("[inferred]")
		}
		fmt.Fprintln(w, line)
		fmt.Fprintln(w, "  "+ev.Title)
		if ev.Description != "" {
			fmt.Fprintln(w, "  "+styleDim.Render(ev.Description))
		}
		fmt.Fprintln(w, "  "+styleDim.Render("fp "+ev.Fingerprint))
	}
	if doc.HintCourse != "" {
		fmt.Fprintln(w, styleDim.Render("slot hints from "+doc.HintCourse))
	}
}
