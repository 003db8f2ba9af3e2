package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var opts rootOptions

	rootCmd := &cobra.Command{
		Use:           "kmdcal",
		Short:         "Extract course schedules from e-learning pages and sync them to Google Calendar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "./kmdcal.yaml", "Path to config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(extractCmd(&opts))
	rootCmd.AddCommand(createCmd(&opts))
	rootCmd.AddCommand(deleteCmd(&opts))
	rootCmd.AddCommand(slotsCmd(&opts))
	rootCmd.AddCommand(historyCmd(&opts))
	rootCmd.AddCommand(loginCmd(&opts))
	rootCmd.AddCommand(logoutCmd(&opts))
	rootCmd.AddCommand(serveCmd(&opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("error:"), err)
		os.Exit(1)
	}
}
