package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func testPolicies() Policies {
	return Policies{
		ClassRead:    {Limit: 60, Window: time.Minute},
		ClassAuth:    {Limit: 5, Window: time.Minute},
		ClassWebhook: {Limit: 100, Window: time.Minute},
	}
}

func TestLimiter_Monotonicity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := NewLimiter(NewMemoryStore(clock), testPolicies(), time.Second, clock, slog.Default())

	for i := 1; i <= 60; i++ {
		d := limiter.Check(context.Background(), "ip:1.2.3.4", ClassRead)
		require.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 60-i, d.Remaining)
		assert.Equal(t, 60, d.Limit)
	}

	d := limiter.Check(context.Background(), "ip:1.2.3.4", ClassRead)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_WindowResets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := NewLimiter(NewMemoryStore(clock), testPolicies(), time.Second, clock, slog.Default())

	for i := 0; i < 6; i++ {
		limiter.Check(context.Background(), "ip:9.9.9.9", ClassAuth)
	}
	require.False(t, limiter.Check(context.Background(), "ip:9.9.9.9", ClassAuth).Allowed)

	// Cross the wall-clock minute boundary.
	now = now.Add(31 * time.Second)
	d := limiter.Check(context.Background(), "ip:9.9.9.9", ClassAuth)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	t.Parallel()

	clock := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	limiter := NewLimiter(NewMemoryStore(clock), testPolicies(), time.Second, clock, slog.Default())

	for i := 0; i < 5; i++ {
		limiter.Check(context.Background(), "ip:1.1.1.1", ClassAuth)
	}
	require.False(t, limiter.Check(context.Background(), "ip:1.1.1.1", ClassAuth).Allowed)

	// A different identity and a different class both have full budgets.
	assert.True(t, limiter.Check(context.Background(), "ip:2.2.2.2", ClassAuth).Allowed)
	assert.True(t, limiter.Check(context.Background(), "ip:1.1.1.1", ClassRead).Allowed)
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(failingStore{}, testPolicies(), time.Second, nil, slog.Default())

	d := limiter.Check(context.Background(), "ip:1.2.3.4", ClassRead)
	assert.True(t, d.Allowed)
	assert.True(t, d.FailedOpen)
	assert.Equal(t, 60, d.Remaining)
}

func TestLimiter_UnknownClassAllows(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(failingStore{}, testPolicies(), time.Second, nil, slog.Default())
	d := limiter.Check(context.Background(), "ip:1.2.3.4", ClassExempt)
	assert.True(t, d.Allowed)
	assert.False(t, d.FailedOpen)
}
