// Package session manages the lifecycle of the hosted identity provider's
// session token: it tracks expiry locally, renews proactively before the
// token lapses, and forces sign-out when renewal fails or a stale token is
// detected at load time.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/store"
)

// State is the token lifecycle state.
type State int

const (
	// NoSession means no user is signed in.
	NoSession State = iota
	// Active means a live token is held and a renewal timer is armed.
	Active
	// Renewing means a silent refresh is in flight.
	Renewing
	// Expired means renewal failed; a forced sign-out is underway.
	Expired
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "NoSession"
	case Active:
		return "Active"
	case Renewing:
		return "Renewing"
	case Expired:
		return "Expired"
	}
	return "unknown"
}

// ExpiryStore persists the token expiry across process restarts.
type ExpiryStore interface {
	LoadExpiry() (time.Time, bool)
	SaveExpiry(t time.Time) error
	ClearExpiry() error
}

// Default lifecycle timings: the provider issues 60-minute tokens; renewal
// runs on a 50-minute cadence to stay ahead of expiry.
const (
	DefaultTokenTTL      = time.Hour
	DefaultRenewInterval = 50 * time.Minute
)

// Manager drives the token lifecycle for one client session.
type Manager struct {
	idp   store.IdentityProvider
	state ExpiryStore
	log   *zap.Logger

	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	after    func(time.Duration, func()) func()

	mu          sync.Mutex
	st          State
	expiresAt   time.Time
	unsubscribe func()
	stopRenew   func()
}

// Option adjusts a Manager at construction, mainly for tests.
type Option func(*Manager)

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithAfterFunc injects the one-shot timer used for renewal scheduling.
func WithAfterFunc(after func(time.Duration, func()) func()) Option {
	return func(m *Manager) { m.after = after }
}

// WithTimings overrides the token TTL and renewal cadence.
func WithTimings(ttl, interval time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
		m.interval = interval
	}
}

// New constructs a Manager.
func New(idp store.IdentityProvider, state ExpiryStore, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		idp:      idp,
		state:    state,
		log:      log,
		ttl:      DefaultTokenTTL,
		interval: DefaultRenewInterval,
		now:      time.Now,
		after: func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start first force-terminates any session whose persisted expiry has already
// passed, then attaches to the auth-state stream. The stale-expiry check runs
// before the subscription so no other initialization observes a dead token.
func (m *Manager) Start(ctx context.Context) {
	if exp, ok := m.state.LoadExpiry(); ok && !m.now().Before(exp) {
		m.log.Info("stored token expired, forcing sign-out", zap.Time("expiresAt", exp))
		if err := m.idp.SignOut(ctx); err != nil {
			m.log.Warn("forced sign-out failed", zap.Error(err))
		}
		_ = m.state.ClearExpiry()
	}

	// Subscribe outside the lock: the provider delivers the current state
	// synchronously, and that delivery takes the lock via onSignIn/onSignOut.
	unsubscribe := m.idp.Subscribe(func(u *model.User) {
		if u != nil {
			m.onSignIn(ctx)
		} else {
			m.onSignOut()
		}
	})

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

// Stop detaches from the auth stream and cancels the renewal timer without
// signing the user out.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.cancelRenewLocked()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// ExpiresAt returns the tracked token expiry (zero when no session).
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

func (m *Manager) onSignIn(ctx context.Context) {
	m.mu.Lock()
	m.st = Active
	m.expiresAt = m.now().Add(m.ttl)
	exp := m.expiresAt
	m.cancelRenewLocked()
	m.stopRenew = m.after(m.interval, func() { m.renew(ctx) })
	m.mu.Unlock()

	if err := m.state.SaveExpiry(exp); err != nil {
		m.log.Warn("persist token expiry failed", zap.Error(err))
	}
	m.log.Info("session active", zap.Time("expiresAt", exp))
}

func (m *Manager) onSignOut() {
	m.mu.Lock()
	m.st = NoSession
	m.expiresAt = time.Time{}
	m.cancelRenewLocked()
	m.mu.Unlock()

	_ = m.state.ClearExpiry()
	m.log.Info("session cleared")
}

// renew attempts a silent refresh; success extends the expiry and re-arms the
// timer, failure forces sign-out.
func (m *Manager) renew(ctx context.Context) {
	m.mu.Lock()
	if m.st != Active {
		m.mu.Unlock()
		return
	}
	m.st = Renewing
	m.mu.Unlock()

	if _, err := m.idp.RefreshToken(ctx, true); err != nil {
		m.log.Warn("token refresh failed, forcing sign-out", zap.Error(err))
		m.mu.Lock()
		m.st = Expired
		m.mu.Unlock()
		if serr := m.idp.SignOut(ctx); serr != nil {
			m.log.Warn("forced sign-out failed", zap.Error(serr))
			// the provider did not emit a transition; clear locally
			m.onSignOut()
		}
		return
	}

	m.mu.Lock()
	m.st = Active
	m.expiresAt = m.now().Add(m.ttl)
	exp := m.expiresAt
	m.cancelRenewLocked()
	m.stopRenew = m.after(m.interval, func() { m.renew(ctx) })
	m.mu.Unlock()

	if err := m.state.SaveExpiry(exp); err != nil {
		m.log.Warn("persist token expiry failed", zap.Error(err))
	}
}

func (m *Manager) cancelRenewLocked() {
	if m.stopRenew != nil {
		m.stopRenew()
		m.stopRenew = nil
	}
}
