package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kmdcal/internal/store"
)

func historyCmd(opts *rootOptions) *cobra.Command {
	var fp string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent calendar sync outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []store.LedgerEntry
			if fp != "" {
				entries, err = a.db.ByFingerprint(cmd.Context(), fp)
			} else {
				entries, err = a.db.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, styleDim.Render("no sync history"))
				return nil
			}
			for _, e := range entries {
				status := styleHeader.Render("ok    ")
				if !e.OK {
					status = styleError.Render("failed")
				}
				fmt.Fprintf(w, "%s %-6s %s %s %s\n",
					status, e.Action, e.Fingerprint, e.Title,
					styleDim.Render(humanize.Time(e.Time())))
				if e.Error != "" {
					fmt.Fprintln(w, "       "+styleDim.Render(e.Error))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fp, "fp", "", "Only show entries for this fingerprint")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max entries")

	return cmd
}
