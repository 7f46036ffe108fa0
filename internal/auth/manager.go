package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jobcard-dev/jobcard/internal/client"
	"github.com/jobcard-dev/jobcard/internal/errs"
	"github.com/jobcard-dev/jobcard/internal/session"
)

// State is the manager's view of the current login
type State int

const (
	// StateUnknown is the initial state while the stored session loads
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// ErrSuperseded is returned by Login when a logout or a newer login was
// issued while it was waiting on the backend. Its result is discarded.
var ErrSuperseded = errors.New("login superseded by a later login or logout")

const defaultLogoutTimeout = 10 * time.Second

// Backend is the part of the API client the manager uses
type Backend interface {
	Login(ctx context.Context, creds client.Credentials) (*client.LoginResponse, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
}

// StateListener is notified after every state transition. It runs after the
// manager has released its locks, so it may call back into the manager.
type StateListener func(state State, user session.UserProfile)

// Manager is the single authority on the current login state.
//
// Every Login and Logout takes a ticket when it is issued. Results are
// applied under one mutex, and a login applies its result only if no other
// ticket was issued after its own, so a logout always wins over a login
// that was still in flight.
type Manager struct {
	store         session.Store
	backend       Backend
	logger        zerolog.Logger
	logoutTimeout time.Duration

	mutate sync.Mutex
	ticket atomic.Uint64
	loaded chan struct{}

	mu       sync.RWMutex
	state    State
	current  *session.Session
	listener StateListener
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithLogger sets the logger (zerolog.Nop by default)
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLogoutTimeout bounds the best-effort backend logout call
func WithLogoutTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.logoutTimeout = d
	}
}

// NewManager creates a manager and starts loading the stored session in the
// background. The manager stays in StateUnknown until that load completes.
func NewManager(store session.Store, backend Backend, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] session store is required")
	}
	if backend == nil {
		return nil, errors.New("[NewManager] backend is required")
	}

	m := &Manager{
		store:         store,
		backend:       backend,
		logger:        zerolog.Nop(),
		logoutTimeout: defaultLogoutTimeout,
		loaded:        make(chan struct{}),
		state:         StateUnknown,
	}
	for _, opt := range options {
		opt(m)
	}

	go m.load()
	return m, nil
}

func (m *Manager) load() {
	m.mutate.Lock()

	sess, err := m.store.Read(context.Background())
	switch {
	case err == nil && sess.Valid():
		m.setState(StateAuthenticated, sess)
		m.logger.Debug().Str("user", sess.User.Name()).Msg("Restored stored session")
	case err == nil, errors.Is(err, session.ErrNotFound):
		m.setState(StateUnauthenticated, nil)
	default:
		m.logger.Warn().Err(err).Msg("Failed to read stored session, starting logged out")
		m.setState(StateUnauthenticated, nil)
	}

	m.mutate.Unlock()
	close(m.loaded)
	m.notify()
}

// Wait blocks until the stored session has been loaded
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login authenticates against the backend, persists the session, and only
// then transitions to StateAuthenticated.
func (m *Manager) Login(ctx context.Context, creds client.Credentials) (session.UserProfile, error) {
	if err := m.Wait(ctx); err != nil {
		return nil, err
	}
	ticket := m.ticket.Add(1)

	resp, err := m.backend.Login(ctx, creds)
	if err != nil {
		translated := translateLoginError(err)
		m.logger.Info().Err(err).Str("username", creds.Username).Msg("Login failed")
		return nil, translated
	}

	sess := resp.Session()
	if err := m.apply(ctx, ticket, sess); err != nil {
		return nil, err
	}
	m.notify()

	m.logger.Info().Str("username", creds.Username).Msg("User logged in")
	return cloneUser(sess.User), nil
}

func (m *Manager) apply(ctx context.Context, ticket uint64, sess *session.Session) error {
	m.mutate.Lock()
	defer m.mutate.Unlock()

	if m.ticket.Load() != ticket {
		m.logger.Info().Msg("Discarding login result superseded by a later request")
		return ErrSuperseded
	}

	if err := m.store.Write(ctx, sess); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist session")
		return &errs.PersistenceError{Op: "write", Err: err}
	}

	m.setState(StateAuthenticated, sess)
	return nil
}

// Logout informs the backend (best effort), then clears the stored and
// in-memory session regardless of the outcome. It is safe to call with no
// session and it is idempotent. The only error returned is ctx's, when it
// ends before the stored session finished loading.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.Wait(ctx); err != nil {
		return err
	}
	m.ticket.Add(1)

	m.mutate.Lock()

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	// Cancellation of the caller must not leave a half-finished logout.
	bg := context.WithoutCancel(ctx)

	if current != nil {
		logoutCtx, cancel := context.WithTimeout(bg, m.logoutTimeout)
		if err := m.backend.Logout(logoutCtx, current.RefreshToken, current.AccessToken); err != nil {
			m.logger.Warn().Err(err).Msg("Backend logout failed, clearing local session anyway")
		}
		cancel()
	}

	if err := m.store.Clear(bg); err != nil {
		m.logger.Warn().Err(&errs.PersistenceError{Op: "clear", Err: err}).Msg("Failed to clear stored session")
	}

	m.setState(StateUnauthenticated, nil)
	m.mutate.Unlock()
	m.notify()

	m.logger.Info().Msg("User logged out")
	return nil
}

// CurrentUser returns the logged in user, if any
func (m *Manager) CurrentUser() (session.UserProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateAuthenticated || m.current == nil {
		return nil, false
	}
	return cloneUser(m.current.User), true
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AccessToken returns the current access token, or "" when logged out
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// SetStateListener registers the single state listener, replacing any
// previous one. nil unregisters.
func (m *Manager) SetStateListener(listener StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

// setState must be called with mutate held
func (m *Manager) setState(state State, sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.current = sess
}

func (m *Manager) notify() {
	m.mu.RLock()
	listener, state := m.listener, m.state
	var user session.UserProfile
	if m.current != nil {
		user = cloneUser(m.current.User)
	}
	m.mu.RUnlock()

	if listener != nil {
		listener(state, user)
	}
}

func cloneUser(u session.UserProfile) session.UserProfile {
	if u == nil {
		return nil
	}
	out := make(session.UserProfile, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}
