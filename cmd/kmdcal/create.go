package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"kmdcal/internal/model"
)

func createCmd(opts *rootOptions) *cobra.Command {
	var so sourceOptions
	var dryRun, asJSON, skipInferred bool

	cmd := &cobra.Command{
		Use:   "create <page-id|file|url|export.ics>",
		Short: "Create calendar events for the schedule entries of a page",
		Long: `Extracts the schedule entries of a page (or reads an exported .ics file) and
creates one calendar event per entry. Each item succeeds or fails on its own; the
command exits non-zero when any item failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			doc, err := a.loadDocument(ctx, args[0], so)
			if err != nil {
				return err
			}
			if doc.Homepage {
				return printOverview(cmd.OutOrStdout(), doc)
			}

			events := doc.Events
			if skipInferred {
				kept := events[:0:0]
				for _, ev := range events {
					if !ev.Inferred {
						kept = append(kept, ev)
					}
				}
				events = kept
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), styleDim.Render("no schedule entries to create"))
				return nil
			}
			if dryRun {
				printEvents(cmd.OutOrStdout(), doc)
				return nil
			}

			client, err := a.calendar(ctx, true)
			if err != nil {
				return err
			}
			res := client.CreateBatch(ctx, events)
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}

	cmd.Flags().StringVar(&so.course, "course", "", "Course name used in titles and slot lookup")
	cmd.Flags().StringVar(&so.location, "location", "", "Location attached to every event")
	cmd.Flags().BoolVar(&so.render, "render", false, "Load the page in headless Chromium first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the events without creating them")
	cmd.Flags().BoolVar(&skipInferred, "skip-inferred", false, "Skip entries timed from slot hints")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch result as JSON")

	return cmd
}

// printResult reports a batch and turns item failures into a command error.
func printResult(w io.Writer, res model.SyncBatchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		verb := "created"
		if res.Deleted != nil {
			verb = "deleted"
		}
		fmt.Fprintf(w, "%s %s %d %s\n", styleTitle.Render("batch"), styleDim.Render(res.BatchID), res.Succeeded(), verb)
		for _, e := range res.Errors {
			item := e.FP
			if e.Index != nil {
				item = fmt.Sprintf("#%d", *e.Index)
			}
			fmt.Fprintf(w, "  %s %s %s\n", styleError.Render("failed"), item, e.Error)
		}
	}
	if !res.OK {
		return fmt.Errorf("%d of the items failed", len(res.Errors))
	}
	return nil
}
