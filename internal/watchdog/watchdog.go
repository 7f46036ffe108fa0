// Package watchdog proactively detects an expired access token so the
// session-expired signal can fire before a request is rejected.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jobcard-dev/jobcard/internal/auth"
)

// DefaultSchedule is how often the access token is checked
const DefaultSchedule = "@every 30s"

// TokenSource supplies the current access token
type TokenSource interface {
	AccessToken() string
}

// ExpiryNotifier receives expired tokens; the gateway implements it
type ExpiryNotifier interface {
	NotifyExpired(token string)
}

// Watchdog checks the access token's exp claim on a cron schedule
type Watchdog struct {
	schedule string
	tokens   TokenSource
	notifier ExpiryNotifier
	logger   zerolog.Logger
	now      func() time.Time
	skew     time.Duration

	mu   sync.Mutex
	cron *cron.Cron
	done chan struct{}
}

// Option configures a Watchdog
type Option func(*Watchdog)

// WithSchedule overrides DefaultSchedule. Any robfig/cron schedule is accepted,
// including descriptors such as "@every 1m".
func WithSchedule(schedule string) Option {
	return func(w *Watchdog) {
		if schedule != "" {
			w.schedule = schedule
		}
	}
}

// WithLogger sets the logger (zerolog.Nop by default)
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// WithNowTime sets the clock, for tests
func WithNowTime(now func() time.Time) Option {
	return func(w *Watchdog) {
		w.now = now
	}
}

// WithSkew treats tokens expiring within d as already expired
func WithSkew(d time.Duration) Option {
	return func(w *Watchdog) {
		w.skew = d
	}
}

// New creates a watchdog. It does nothing until Start is called.
func New(tokens TokenSource, notifier ExpiryNotifier, options ...Option) *Watchdog {
	w := &Watchdog{
		schedule: DefaultSchedule,
		tokens:   tokens,
		notifier: notifier,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Start checks the token once immediately, then on every scheduled tick
// until ctx is done or Stop is called.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cron != nil {
		w.mu.Unlock()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, w.check); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to parse expiry check schedule %q: %w", w.schedule, err)
	}
	done := make(chan struct{})
	w.cron = c
	w.done = done
	c.Start()
	w.mu.Unlock()

	w.check()
	w.logger.Debug().Str("schedule", w.schedule).Msg("Token expiry watchdog started")

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-done:
		}
	}()
	return nil
}

// Stop halts the schedule and waits for a running check to finish
func (w *Watchdog) Stop() {
	w.mu.Lock()
	c, done := w.cron, w.done
	w.cron, w.done = nil, nil
	w.mu.Unlock()

	if c == nil {
		return
	}
	close(done)
	<-c.Stop().Done()
	w.logger.Debug().Msg("Token expiry watchdog stopped")
}

func (w *Watchdog) check() {
	token := w.tokens.AccessToken()
	if token == "" {
		return
	}

	if !auth.TokenExpired(token, w.now(), w.skew) {
		return
	}

	exp, _ := auth.TokenExpiry(token)
	w.logger.Info().Time("expired_at", exp).Msg("Access token expired")
	w.notifier.NotifyExpired(token)
}
