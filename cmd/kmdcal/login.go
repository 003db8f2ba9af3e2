package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kmdcal/internal/store"
)

func loginCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize calendar access and store the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			tokens := a.tokens(true)
			if force {
				if err := tokens.Invalidate(ctx); err != nil {
					return err
				}
			}
			if _, err := tokens.Token(ctx); err != nil {
				return err
			}

			cred, _, err := store.CredentialStore{DB: a.db}.Get(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s token valid until %s\n",
				styleTitle.Render("signed in"), cred.ExpiresAt().In(a.loc).Format(time.DateTime))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard the stored token and authorize again")

	return cmd
}

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored calendar token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tokens(false).Invalidate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}
