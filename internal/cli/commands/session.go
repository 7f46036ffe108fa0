package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobcard-dev/jobcard/internal/auth"
)

var errNotLoggedIn = errors.New("not logged in. Run 'jobcard login' first")

// NewLogoutCmd creates the logout command
func NewLogoutCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			user, ok := rt.Manager.CurrentUser()
			if !ok {
				return errNotLoggedIn
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, user.Name())
			if email := user.Email(); email != "" {
				fmt.Fprintln(out, email)
			}
			return nil
		},
	}
}

// NewStatusCmd creates the status command
func NewStatusCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend, session store and login state",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:  %s\n", rt.Config.API.BaseURL)
			fmt.Fprintf(out, "Store:    %s\n", rt.Config.Store.Kind)
			fmt.Fprintf(out, "State:    %s\n", rt.Manager.State())

			user, ok := rt.Manager.CurrentUser()
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "User:     %s\n", user.Name())

			exp, ok := auth.TokenExpiry(rt.Manager.AccessToken())
			switch {
			case !ok:
				fmt.Fprintln(out, "Token:    no expiry claim")
			case time.Now().After(exp):
				fmt.Fprintf(out, "Token:    expired at %s\n", exp.Local().Format(time.RFC3339))
			default:
				fmt.Fprintf(out, "Token:    valid until %s\n", exp.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}
