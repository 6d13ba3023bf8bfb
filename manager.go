package authsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

// State is the phase of the session state machine
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager owns the token lifecycle: login, scheduled refresh, restore and
// logout for a single account.
//
// Network calls run without holding mu. Every call captures the generation
// when it starts; if a logout or a newer login bumped it in the meantime the
// result is discarded.
type Manager struct {
	mu         sync.Mutex
	email      string
	provider   IdentityProvider
	store      Store
	clock      clockwork.Clock
	logger     *slog.Logger
	token      *TokenState
	scheduler  *Scheduler
	session    *Session
	state      State
	generation uint64

	refreshTimeout time.Duration
	restoreOnce    sync.Once
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the time source. Tests use clockwork.NewFakeClock().
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRefreshTimeout bounds each background refresh call. Zero means the
// transport's own timeout is the only bound.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

// NewManager creates a manager that signs in as email. Call Restore once at
// startup to resume a persisted session.
func NewManager(email string, provider IdentityProvider, store Store, opts ...Option) *Manager {
	m := &Manager{
		email:    email,
		provider: provider,
		store:    store,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		token:    NewTokenState(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "authsession")
	m.scheduler = NewScheduler(m.clock, m.onRefreshTimer)
	return m
}

// Token returns the current access token, or "" if unauthenticated
func (m *Manager) Token() string {
	return m.token.Get()
}

// Email returns the account this manager signs in as
func (m *Manager) Email() string {
	return m.email
}

// IsAuthenticated returns true if an access token is installed
func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

// Subscribe observes the current token. fn is called with the current value
// and then on every change. Once delivery settles its last value matches Token().
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	return m.token.Subscribe(fn)
}

// State returns the current state machine phase
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the installed session, or nil
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Login exchanges password for a session. On failure the previous state is
// kept and the error wraps ErrInvalidCredentials, ErrRateLimited or
// ErrProvider. The password is never stored, logged or retried.
func (m *Manager) Login(ctx context.Context, password string) error {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	prev := m.state
	if prev == StateAuthenticating || prev == StateRefreshing {
		// the operation that set prev is now stale
		prev = m.settledStateLocked()
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	resp, err := m.provider.SignInWithPassword(ctx, m.email, password)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale login result", "generation", gen)
		if err != nil {
			return classifyLoginError(err)
		}
		return ErrSuperseded
	}

	if err != nil {
		m.state = prev
		if m.session != nil {
			if _, pending := m.scheduler.Pending(); !pending {
				// a refresh superseded by this attempt left no timer behind
				m.scheduler.Arm(m.session.Remaining(m.clock.Now()))
			}
		}
		m.mu.Unlock()
		err = classifyLoginError(err)
		m.logger.Info("login failed", "kind", ErrorKind(err), "error", err)
		return err
	}

	notify := m.installLocked(resp)
	m.mu.Unlock()
	notify()
	m.logger.Info("login succeeded", "expires_in", resp.ExpiresIn)
	return nil
}

// Logout cancels the refresh timer, clears the session and erases the
// persisted record. It never makes a network call and is safe to call when
// already logged out.
func (m *Manager) Logout() {
	m.mu.Lock()
	notify := m.clearLocked()
	m.mu.Unlock()
	notify()
	m.logger.Info("logged out")
}

// Restore resumes a persisted session. It runs at most once per Manager;
// later calls do nothing. An unexpired record is installed without any
// network call; an expired one is refreshed immediately and cleared if that
// fails. Absent, partial or corrupt records leave the manager logged out.
func (m *Manager) Restore(ctx context.Context) {
	m.restoreOnce.Do(func() {
		m.restore(ctx)
	})
}

func (m *Manager) restore(ctx context.Context) {
	m.mu.Lock()
	sess, err := loadSession(m.store)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("could not read persisted session", "error", err)
		return
	}
	if sess == nil {
		m.mu.Unlock()
		m.logger.Debug("no persisted session")
		return
	}

	now := m.clock.Now()
	if sess.IsExpired(now) {
		m.mu.Unlock()
		m.logger.Info("persisted session expired, refreshing")
		m.refresh(ctx)
		return
	}

	remaining := sess.Remaining(now)
	m.session = sess
	m.state = StateAuthenticated
	delay := m.scheduler.Arm(remaining)
	notify := m.token.set(sess.AccessToken)
	m.mu.Unlock()
	notify()
	m.logger.Info("restored session", "remaining", remaining, "refresh_in", delay)
}

// Close stops the refresh timer and discards any in-flight result while
// leaving the persisted record intact for the next process.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.scheduler.Cancel()
}

// Claims decodes the installed ID token
func (m *Manager) Claims() (*IDClaims, error) {
	tok := m.Token()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	return ParseIDClaims(tok)
}

// TokenSource adapts the manager to golang.org/x/oauth2
func (m *Manager) TokenSource() oauth2.TokenSource {
	return &tokenSource{m: m}
}

// Transport wraps base so that requests to hosts get the current token
func (m *Manager) Transport(base http.RoundTripper, hosts ...string) *AuthTransport {
	return NewAuthTransport(m, base, hosts...)
}

// HTTPClient returns a client whose requests to hosts carry the current token
func (m *Manager) HTTPClient(hosts ...string) *http.Client {
	return &http.Client{Transport: m.Transport(nil, hosts...)}
}

func (m *Manager) onRefreshTimer() {
	ctx := context.Background()
	if m.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()
	}
	m.refresh(ctx)
}

// refresh exchanges the persisted refresh token for a new session. Any
// failure clears the session; nothing is returned to a caller.
func (m *Manager) refresh(ctx context.Context) {
	m.mu.Lock()
	refreshToken, err := persistedRefreshToken(m.store)
	if err != nil {
		m.logger.Warn("could not read persisted refresh token", "error", err)
	}
	if refreshToken == "" && m.session != nil {
		refreshToken = m.session.RefreshToken
	}
	if refreshToken == "" {
		notify := m.clearLocked()
		m.mu.Unlock()
		notify()
		m.logger.Warn("no refresh token available, logged out")
		return
	}
	gen := m.generation
	m.state = StateRefreshing
	m.mu.Unlock()

	resp, err := m.provider.RefreshToken(ctx, refreshToken)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale refresh result", "generation", gen)
		return
	}

	if err != nil {
		notify := m.clearLocked()
		m.mu.Unlock()
		notify()
		m.logger.Warn("session ended", "error", errors.Join(ErrRefreshFailed, err))
		return
	}

	notify := m.installLocked(resp)
	m.mu.Unlock()
	notify()
	m.logger.Info("session refreshed", "expires_in", resp.ExpiresIn)
}

// installLocked replaces the session, persists it and rearms the scheduler.
// Persistence failures are logged; the in-memory session still applies.
func (m *Manager) installLocked(resp *TokenResponse) (notify func()) {
	sess := newSession(m.clock.Now(), resp)
	m.session = sess
	m.state = StateAuthenticated
	if err := saveSession(m.store, sess); err != nil {
		m.logger.Warn("could not persist session", "error", err)
	}
	delay := m.scheduler.Arm(resp.ExpiresIn)
	m.logger.Debug("refresh scheduled", "refresh_in", delay)
	return m.token.set(sess.AccessToken)
}

// clearLocked drops the session, cancels the timer, erases the record and
// invalidates in-flight operations.
func (m *Manager) clearLocked() (notify func()) {
	m.generation++
	m.scheduler.Cancel()
	m.session = nil
	m.state = StateUnauthenticated
	if err := eraseSession(m.store); err != nil {
		m.logger.Warn("could not erase persisted session", "error", err)
	}
	return m.token.set("")
}

// settledStateLocked is the state implied by the installed session alone
func (m *Manager) settledStateLocked() State {
	if m.session != nil {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// tokenSource implements oauth2.TokenSource over the installed session
type tokenSource struct {
	m *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	sess := ts.m.Session()
	if sess == nil {
		return nil, ErrNotAuthenticated
	}
	return sess.OAuth2Token(), nil
}
