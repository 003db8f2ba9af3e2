package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "kmdcal/internal/log"
	"kmdcal/internal/web"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var listen string
	var noRefresh bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled page refresh",
		Long: `Serves extracted events and accepts calendar sync commands over HTTP.
Configured pages are extracted at startup and on the refresh schedule. Calendar
calls use the token stored by 'kmdcal login'; an expired token fails the items
with AUTH_FAILED instead of prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			appLog.Info("effective config",
				"listen", a.cfg.Listen,
				"timezone", a.cfg.Timezone,
				"calendar_id", a.cfg.CalendarID,
				"refresh", a.cfg.RefreshCron,
				"page_count", len(a.cfg.Pages),
			)

			r := a.refresher()
			r.RunOnce(ctx)
			if !noRefresh && a.cfg.RefreshCron != "" {
				if err := r.Start(ctx, a.cfg.RefreshCron, a.loc); err != nil {
					return err
				}
			}

			client, err := a.calendar(context.WithoutCancel(ctx), false)
			if err != nil {
				return err
			}

			srv := web.NewServer(a.cfg, web.Deps{Pages: r, Syncer: client, Ledger: a.db})
			err = srv.Serve(ctx)
			appLog.Info("kmdcal exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "Extract pages once at startup only")

	return cmd
}
