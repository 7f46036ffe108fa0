package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/jobcard-dev/jobcard/internal/client"
)

// NewLoginCmd creates the login command
func NewLoginCmd(opts *Options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the job-card backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, opts, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (or set JOBCARD_USERNAME)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (or set JOBCARD_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *Options, username, password string) error {
	// Check for environment variables (useful for CI/CD)
	if username == "" {
		username = os.Getenv("JOBCARD_USERNAME")
	}
	if password == "" {
		password = os.Getenv("JOBCARD_PASSWORD")
	}

	if username == "" || password == "" {
		if !opts.isTerminal() {
			return fmt.Errorf("username and password are required in non-interactive mode (use --username/--password or JOBCARD_USERNAME/JOBCARD_PASSWORD)")
		}
		var err error
		username, password, err = promptCredentials(username, password)
		if err != nil {
			return err
		}
	}

	rt, err := opts.runtime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logging in to %s...\n", rt.Config.API.BaseURL)

	user, err := rt.Manager.Login(cmd.Context(), client.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "✓ Login successful!")
	if email := user.Email(); email != "" {
		fmt.Fprintf(out, "  User: %s (%s)\n", user.Name(), email)
	} else {
		fmt.Fprintf(out, "  User: %s\n", user.Name())
	}
	return nil
}

// promptCredentials asks for whichever of username and password is missing
func promptCredentials(username, password string) (string, string, error) {
	required := func(input string) error {
		if input == "" {
			return errors.New("value is required")
		}
		return nil
	}

	if username == "" {
		prompt := promptui.Prompt{
			Label:    "Username",
			Validate: required,
		}
		var err error
		username, err = prompt.Run()
		if err != nil {
			return "", "", fmt.Errorf("login cancelled: %w", err)
		}
	}

	if password == "" {
		prompt := promptui.Prompt{
			Label:    "Password",
			Mask:     '*',
			Validate: required,
		}
		var err error
		password, err = prompt.Run()
		if err != nil {
			return "", "", fmt.Errorf("login cancelled: %w", err)
		}
	}

	return username, password, nil
}
