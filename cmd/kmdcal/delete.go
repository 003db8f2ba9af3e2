package main

import (
	"errors"

	"github.com/spf13/cobra"

	"kmdcal/internal/ics"
)

func deleteCmd(opts *rootOptions) *cobra.Command {
	var so sourceOptions
	var fps []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "delete [page-id|file|url|export.ics]",
		Short: "Delete the calendar events created for a page",
		Long: `Deletes every calendar event tagged with the fingerprints of a page's schedule
entries, or with the fingerprints given by --fp. Fingerprints with no remaining
events are not errors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			targets := append([]string(nil), fps...)
			if len(args) == 1 {
				doc, err := a.loadDocument(ctx, args[0], so)
				if err != nil {
					return err
				}
				targets = append(targets, ics.Fingerprints(doc.Events)...)
			}
			if len(targets) == 0 {
				return errors.New("nothing to delete: pass a page or --fp")
			}

			client, err := a.calendar(ctx, true)
			if err != nil {
				return err
			}
			res := client.DeleteBatch(ctx, targets)
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}

	cmd.Flags().StringSliceVar(&fps, "fp", nil, "Fingerprint to delete (repeatable)")
	cmd.Flags().StringVar(&so.course, "course", "", "Course name used in titles and slot lookup")
	cmd.Flags().StringVar(&so.location, "location", "", "Location attached to every event")
	cmd.Flags().BoolVar(&so.render, "render", false, "Load the page in headless Chromium first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch result as JSON")

	return cmd
}
