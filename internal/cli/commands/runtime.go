package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jobcard-dev/jobcard/internal/auth"
	"github.com/jobcard-dev/jobcard/internal/client"
	"github.com/jobcard-dev/jobcard/internal/config"
	"github.com/jobcard-dev/jobcard/internal/gateway"
	"github.com/jobcard-dev/jobcard/internal/logger"
	"github.com/jobcard-dev/jobcard/internal/session"
	"github.com/jobcard-dev/jobcard/internal/watchdog"
)

// Options carries the root flags and the wiring shared by every command
type Options struct {
	APIURL    string
	StoreKind string
	Verbose   bool

	loadConfig func() (*config.Config, error)
	openStore  func(cfg config.StoreConfig, namespace string) (session.Store, func() error, error)
	isTerminal func() bool
}

// NewOptions returns options wired to the real config and session stores
func NewOptions() *Options {
	return &Options{
		loadConfig: config.Load,
		openStore:  session.Open,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Runtime is the session core assembled for one command invocation
type Runtime struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   session.Store
	Client  *client.Client
	Manager *auth.Manager
	Gateway *gateway.Gateway

	closeStore func() error
}

// runtime loads config and builds store, client, manager and gateway. The
// stored session has finished loading when it returns.
func (o *Options) runtime(cmd *cobra.Command) (*Runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.APIURL != "" {
		cfg.API.BaseURL = strings.TrimRight(o.APIURL, "/")
	}
	if o.StoreKind != "" {
		cfg.Store.Kind = strings.ToLower(o.StoreKind)
	}

	level := cfg.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	log := logger.Init(level, cfg.Logging.Format, cmd.ErrOrStderr())

	store, closeStore, err := o.openStore(cfg.Store, cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	apiClient := client.New(cfg.API.BaseURL, cfg.API.Timeout)

	manager, err := auth.NewManager(store, apiClient, auth.WithLogger(log))
	if err != nil {
		closeStore()
		return nil, err
	}
	if err := manager.Wait(cmd.Context()); err != nil {
		closeStore()
		return nil, err
	}
	manager.SetStateListener(func(state auth.State, user session.UserProfile) {
		log.Debug().Str("state", state.String()).Str("user", user.Name()).Msg("Session state changed")
	})

	gw := gateway.New(cfg.API.BaseURL, cfg.API.Timeout, manager, gateway.WithLogger(log))

	return &Runtime{
		Config:     cfg,
		Logger:     log,
		Store:      store,
		Client:     apiClient,
		Manager:    manager,
		Gateway:    gw,
		closeStore: closeStore,
	}, nil
}

// Close releases the session store
func (r *Runtime) Close() {
	if err := r.closeStore(); err != nil {
		r.Logger.Warn().Err(err).Msg("Failed to close session store")
	}
}

// WatchExpiry registers the session-expired handler and, unless disabled,
// starts the expiry watchdog. The handler tells the user and logs out.
// The returned function stops the watchdog.
func (r *Runtime) WatchExpiry(ctx context.Context, out io.Writer) (stop func()) {
	r.Gateway.SetSessionExpiredHandler(func() {
		if _, ok := r.Manager.CurrentUser(); !ok {
			return
		}
		fmt.Fprintln(out, "Your session has expired. Please log in again.")
		if err := r.Manager.Logout(context.WithoutCancel(ctx)); err != nil {
			r.Logger.Warn().Err(err).Msg("Failed to log out after session expiry")
		}
	})

	schedule := r.Config.Watchdog.Schedule
	switch strings.ToLower(schedule) {
	case "", "off", "disabled":
		return func() {}
	}

	wd := watchdog.New(r.Manager, r.Gateway,
		watchdog.WithSchedule(schedule),
		watchdog.WithLogger(r.Logger),
	)
	if err := wd.Start(ctx); err != nil {
		r.Logger.Warn().Err(err).Msg("Token expiry watchdog disabled")
		return func() {}
	}
	return wd.Stop
}
