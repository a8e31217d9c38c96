package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is how long the caller should wait before retrying. Zero
	// unless the request was denied.
	RetryAfter time.Duration
	// FailedOpen marks a decision that allowed the request because the
	// counter store was unreachable.
	FailedOpen bool
}

// Limiter applies fixed-window budgets per (client identity, route class).
// Store failures never deny a request: the limiter fails open and logs.
type Limiter struct {
	store        CounterStore
	policies     Policies
	storeTimeout time.Duration
	now          Clock
	log          *slog.Logger
}

// NewLimiter wires a Limiter. now may be nil for wall-clock time.
func NewLimiter(store CounterStore, policies Policies, storeTimeout time.Duration, now Clock, log *slog.Logger) *Limiter {
	if now == nil {
		now = time.Now
	}
	if storeTimeout <= 0 {
		storeTimeout = 500 * time.Millisecond
	}
	return &Limiter{
		store:        store,
		policies:     policies,
		storeTimeout: storeTimeout,
		now:          now,
		log:          log.With(slog.String("component", "ratelimit")),
	}
}

// Check increments the counter for (identity, class) and decides. An unknown
// or exempt class always allows.
func (l *Limiter) Check(ctx context.Context, identity string, class Class) Decision {
	policy, ok := l.policies[class]
	if !ok {
		return Decision{Allowed: true}
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, resetAt, err := l.store.Incr(ctx, string(class)+":"+identity, policy.Window)
	if err != nil {
		l.log.Warn("counter store unavailable, failing open",
			slog.String("class", string(class)),
			slog.String("error", err.Error()))
		return Decision{
			Allowed:    true,
			Limit:      policy.Limit,
			Remaining:  policy.Limit,
			ResetAt:    l.now().Add(policy.Window),
			FailedOpen: true,
		}
	}

	d := Decision{
		Allowed: count <= int64(policy.Limit),
		Limit:   policy.Limit,
		ResetAt: resetAt,
	}
	if remaining := int64(policy.Limit) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = retryAfter(l.now(), resetAt)
	}
	return d
}

// retryAfter rounds the wait up to whole seconds so Retry-After is never 0
// while the window is still open.
func retryAfter(now, resetAt time.Time) time.Duration {
	wait := resetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}
