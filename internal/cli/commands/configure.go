package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobcard-dev/jobcard/internal/config"
	"github.com/jobcard-dev/jobcard/internal/session"
)

type configureFlags struct {
	apiURL      string
	store       string
	storePath   string
	httpTimeout string
	expiryCheck string
	logLevel    string
}

// NewConfigureCmd creates the configure command
func NewConfigureCmd() *cobra.Command {
	var flags configureFlags

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Save default settings to the user config file",
		Long: `Save default settings to ~/.config/jobcard/config.yaml.

Only the flags given are changed. Environment variables still take
precedence over the saved values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "Backend base URL")
	cmd.Flags().StringVar(&flags.store, "store", "", "Session store: file, keyring, sqlite or memory")
	cmd.Flags().StringVar(&flags.storePath, "store-path", "", "Session file or database path")
	cmd.Flags().StringVar(&flags.httpTimeout, "timeout", "", "HTTP timeout, e.g. 30s")
	cmd.Flags().StringVar(&flags.expiryCheck, "expiry-check", "", `Token expiry check schedule, e.g. "@every 1m", or "off"`)
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	return cmd
}

func runConfigure(cmd *cobra.Command, flags configureFlags) error {
	switch flags.store {
	case "", session.KindFile, session.KindKeyring, session.KindSQLite, session.KindMemory:
	default:
		return fmt.Errorf("unknown session store %q", flags.store)
	}
	if flags.httpTimeout != "" {
		if _, err := time.ParseDuration(flags.httpTimeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", flags.httpTimeout, err)
		}
	}

	file, err := config.LoadUserFile()
	if err != nil {
		return err
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&file.APIURL, flags.apiURL)
	set(&file.Store, flags.store)
	set(&file.StorePath, flags.storePath)
	set(&file.HTTPTimeout, flags.httpTimeout)
	set(&file.ExpiryCheck, flags.expiryCheck)
	set(&file.LogLevel, flags.logLevel)

	if err := config.SaveUserFile(file); err != nil {
		return err
	}

	path, _ := config.UserFilePath()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s\n", path)
	return nil
}
