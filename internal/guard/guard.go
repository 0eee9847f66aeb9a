// Package guard implements the client-side abuse mitigation subsystem:
// a rolling-window request rate limit and a rapid-refresh detector, both
// escalating to a persisted per-IP ban record. The guard never fails the
// caller because of its own errors; on any internal failure it degrades to
// "not currently enforced".
package guard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beniforreal/nbti-client/internal/ipinfo"
	"github.com/beniforreal/nbti-client/internal/model"
)

// IPResolver yields the client's public IP, or ipinfo.Unknown.
type IPResolver interface {
	Resolve(ctx context.Context) string
}

// Config carries the guard thresholds. Zero values select the defaults.
type Config struct {
	Window        time.Duration // rolling request window, default 60s
	Threshold     int           // max admitted requests per window, default 100
	RefreshGap    time.Duration // max gap counted as a rapid refresh, default 5s
	RefreshLimit  int           // refresh count that triggers a ban, default 5
	RefreshDecay  time.Duration // delay before a counter decrement, default 60s
	RefreshBanFor time.Duration // penalty for refresh abuse, default 30m
	RateBanFor    time.Duration // penalty for rate abuse, default 60m
	UserAgent     string        // recorded on ban records
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Threshold <= 0 {
		c.Threshold = 100
	}
	if c.RefreshGap <= 0 {
		c.RefreshGap = 5 * time.Second
	}
	if c.RefreshLimit <= 0 {
		c.RefreshLimit = 5
	}
	if c.RefreshDecay <= 0 {
		c.RefreshDecay = time.Minute
	}
	if c.RefreshBanFor <= 0 {
		c.RefreshBanFor = 30 * time.Minute
	}
	if c.RateBanFor <= 0 {
		c.RateBanFor = time.Hour
	}
	return c
}

// Guard owns all abuse-mitigation state for one client session. State is
// explicit and process-local; two processes race last-writer-wins on the
// persisted ban record, which is acceptable since bans are monotonically
// punitive.
type Guard struct {
	bans     BanStore
	resolver IPResolver
	cfg      Config
	log      *zap.Logger

	now   func() time.Time
	after func(time.Duration, func()) func()

	mu           sync.Mutex
	window       []time.Time
	refreshCount int
	lastRefresh  time.Time
	ip           string
	banned       bool
	activeBan    *model.BanRecord
}

// Option adjusts a Guard at construction, mainly for tests.
type Option func(*Guard)

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithAfterFunc injects the one-shot timer used for counter decay. The
// returned func cancels the timer.
func WithAfterFunc(after func(time.Duration, func()) func()) Option {
	return func(g *Guard) { g.after = after }
}

// New constructs a Guard.
func New(bans BanStore, resolver IPResolver, cfg Config, log *zap.Logger, opts ...Option) *Guard {
	g := &Guard{
		bans:     bans,
		resolver: resolver,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
		after: func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Startup runs the load-time sequence: resolve the client IP, bootstrap the
// security collections, check for an enforced ban, and register this load
// with the refresh detector. It reports whether the session is banned; the
// caller must halt all further application behavior when it is.
func (g *Guard) Startup(ctx context.Context) bool {
	ip := g.resolver.Resolve(ctx)

	g.mu.Lock()
	g.ip = ip
	g.mu.Unlock()

	if err := g.bans.Init(ctx); err != nil {
		g.log.Debug("security collection bootstrap failed", zap.Error(err))
	}

	g.CheckBanStatus(ctx)
	g.RegisterLoad(ctx)
	return g.Banned()
}

// CheckRateLimit is the admission check gating every data operation. It
// prunes the rolling window, records the current attempt, and triggers a
// rate-limit ban when the window overflows. A false return is a hard stop
// for the attempt; callers must not retry automatically.
func (g *Guard) CheckRateLimit(ctx context.Context) bool {
	g.mu.Lock()
	now := g.now()
	cutoff := now.Add(-g.cfg.Window)

	kept := g.window[:0]
	for _, ts := range g.window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.window = append(kept, now)
	over := len(g.window) > g.cfg.Threshold
	count := len(g.window)
	g.mu.Unlock()

	if over {
		g.ban(ctx, model.BanReasonRateLimit, 0, count, g.cfg.RateBanFor)
		return false
	}
	return true
}

// RegisterLoad feeds one page load into the refresh-abuse detector. Loads
// closer together than the configured gap increment the counter; otherwise it
// resets to 1. Reaching the limit bans the client. Each increment schedules a
// best-effort one-shot decrement, lost if the process exits first.
func (g *Guard) RegisterLoad(ctx context.Context) {
	g.mu.Lock()
	now := g.now()
	if !g.lastRefresh.IsZero() && now.Sub(g.lastRefresh) < g.cfg.RefreshGap {
		g.refreshCount++
	} else {
		g.refreshCount = 1
	}
	g.lastRefresh = now
	count := g.refreshCount
	g.mu.Unlock()

	if count >= g.cfg.RefreshLimit {
		g.ban(ctx, model.BanReasonRapidRefresh, count, 0, g.cfg.RefreshBanFor)
	}

	g.after(g.cfg.RefreshDecay, func() {
		g.mu.Lock()
		if g.refreshCount > 0 {
			g.refreshCount--
		}
		g.mu.Unlock()
	})
}

// CheckBanStatus consults the persisted ban record for the resolved IP and
// flags the session banned when the record is enforced (isActive and not yet
// expired). Lookup failures are swallowed.
func (g *Guard) CheckBanStatus(ctx context.Context) {
	g.mu.Lock()
	ip := g.ip
	g.mu.Unlock()
	if ip == "" || ip == ipinfo.Unknown {
		return
	}

	rec, err := g.bans.Get(ctx, ip)
	if err != nil {
		g.log.Debug("ban status check failed", zap.Error(err))
		return
	}
	if !rec.Enforced(g.now()) {
		return
	}

	g.mu.Lock()
	g.banned = true
	g.activeBan = rec
	g.mu.Unlock()
	g.log.Warn("client is banned",
		zap.String("ip", ip),
		zap.String("reason", string(rec.Reason)),
		zap.Time("expiresAt", rec.ExpiresAt),
	)
}

// ban upserts a ban record for the resolved IP. It is a no-op when no IP is
// resolved yet or the session is already flagged. Write failures are
// swallowed and leave the session unflagged.
func (g *Guard) ban(ctx context.Context, reason model.BanReason, banCount, requestCount int, penalty time.Duration) {
	g.mu.Lock()
	ip := g.ip
	already := g.banned
	g.mu.Unlock()
	if ip == "" || ip == ipinfo.Unknown || already {
		return
	}

	now := g.now()
	rec := &model.BanRecord{
		IP:           ip,
		IsActive:     true,
		Reason:       reason,
		BanCount:     banCount,
		RequestCount: requestCount,
		UserAgent:    g.cfg.UserAgent,
		BannedAt:     now,
		ExpiresAt:    now.Add(penalty),
	}
	if err := g.bans.Put(ctx, rec); err != nil {
		g.log.Warn("ban record write failed", zap.Error(err))
		return
	}

	g.mu.Lock()
	g.banned = true
	g.activeBan = rec
	g.mu.Unlock()
	g.log.Warn("client banned",
		zap.String("ip", ip),
		zap.String("reason", string(reason)),
		zap.Time("expiresAt", rec.ExpiresAt),
	)
}

// Unban lifts the ban for an IP by flipping isActive and stamping unbannedAt.
// expiresAt is left untouched: isActive=false is a full override regardless
// of the timestamp.
func (g *Guard) Unban(ctx context.Context, ip string) error {
	return g.bans.Deactivate(ctx, ip, g.now())
}

// Banned reports whether this session is flagged as banned.
func (g *Guard) Banned() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.banned
}

// ActiveBan returns the enforced ban record, or nil.
func (g *Guard) ActiveBan() *model.BanRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeBan
}

// IP returns the resolved client IP ("" before Startup, ipinfo.Unknown on
// lookup failure).
func (g *Guard) IP() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ip
}
