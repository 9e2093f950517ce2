package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/metrics"
	"go.uber.org/zap"
)

const keyPrefix = "ratelimit:"

// Limiter admits or rejects requests against fixed windows kept in the
// shared store. It holds no per-key state of its own.
type Limiter struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	grace   time.Duration
	bypass  bool

	// now overrides the store's clock. Nil means windows are timed by the
	// store so instances with skewed clocks agree.
	now func() time.Time
}

type Option func(*Limiter)

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// WithGrace extends the physical expiry of counters past their window.
func WithGrace(d time.Duration) Option {
	return func(l *Limiter) { l.grace = d }
}

// WithBypass disables limiting entirely (debug_bypass_rate_limiting).
func WithBypass(bypass bool) Option {
	return func(l *Limiter) { l.bypass = bypass }
}

// WithClock times windows with now instead of the store's clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		logger:  zap.NewNop(),
		timeout: 100 * time.Millisecond,
		grace:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.bypass {
		l.logger.Warn("rate limiting is DISABLED by debug_bypass_rate_limiting")
	}
	l.metrics.SetBypass(l.bypass)

	return l
}

// Bypassed reports whether limiting is switched off.
func (l *Limiter) Bypassed() bool {
	return l.bypass
}

// Admit applies one request for identity under scope. It never fails: an
// unknown identity or an unreachable store admits the request.
func (l *Limiter) Admit(ctx context.Context, scope Scope, identity string, limit int, window time.Duration) Decision {
	open := Decision{Admitted: true, Limit: limit, Remaining: limit}

	if l.bypass {
		l.metrics.Decision(scope.String(), metrics.ResultBypassed)
		return open
	}

	if identity == "" {
		l.metrics.Decision(scope.String(), metrics.ResultSkipped)
		return open
	}

	if limit <= 0 || window <= 0 {
		l.logger.Error("invalid rate limit policy, admitting",
			zap.String("scope", scope.String()),
			zap.Int("limit", limit),
			zap.Duration("window", window),
		)
		l.metrics.Decision(scope.String(), metrics.ResultSkipped)
		return open
	}

	key := Key(scope, identity)
	var now time.Time
	if l.now != nil {
		now = l.now()
	}

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	counter, err := l.store.IncrWindow(storeCtx, keyPrefix+key, int64(limit), window, l.grace, now)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("key", key),
			zap.Error(err),
		)
		l.metrics.StoreError("ratelimit", "incr_window")
		l.metrics.Decision(scope.String(), metrics.ResultFailOpen)
		return open
	}

	remaining := limit - int(counter.Count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Admitted:  counter.Admitted,
		Enforced:  true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   counter.ResetAt,
	}

	if !d.Admitted {
		d.RetryAfter = retryAfter(counter.ResetAt.Sub(counter.Now))
		l.metrics.Decision(scope.String(), metrics.ResultRejected)
		return d
	}

	l.metrics.Decision(scope.String(), metrics.ResultAdmitted)
	return d
}

// AdmitRequest extracts the identity for p.Scope from r and admits it.
func (l *Limiter) AdmitRequest(ctx context.Context, p Policy, r Request) Decision {
	return l.Admit(ctx, p.Scope, p.Scope.Identity(r), p.Limit, p.Window)
}

// Limits by client address.
func (l *Limiter) ByIP(ctx context.Context, r Request, limit int, window time.Duration) Decision {
	return l.AdmitRequest(ctx, Policy{Scope: ScopeIP, Limit: limit, Window: window}, r)
}

// Limits by authenticated principal. Anonymous requests are admitted.
func (l *Limiter) ByUser(ctx context.Context, r Request, limit int, window time.Duration) Decision {
	return l.AdmitRequest(ctx, Policy{Scope: ScopeUser, Limit: limit, Window: window}, r)
}

// Limits by method and route template.
func (l *Limiter) ByEndpoint(ctx context.Context, r Request, limit int, window time.Duration) Decision {
	return l.AdmitRequest(ctx, Policy{Scope: ScopeEndpoint, Limit: limit, Window: window}, r)
}

// retryAfter rounds up to whole seconds so clients never retry early.
func retryAfter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}
