package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when slept on, so acquisition order and token
// accounting are fully deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(configs map[string]BucketConfig) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(configs, zerolog.Nop(), WithClock(clock.Now), WithSleep(clock.Sleep))
	return l, clock
}

func TestAcquireBurstThenBlocks(t *testing.T) {
	l, clock := newTestLimiter(map[string]BucketConfig{
		"gnews": {Capacity: 3, RefillRate: 1.0 / 864},
	})
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "gnews", 1))
	}
	// Burst drained the full capacity without advancing the clock.
	assert.Equal(t, start, clock.Now())
	assert.InDelta(t, 0, l.Tokens("gnews"), 1e-9)

	// The fourth acquisition has to wait one refill interval.
	require.NoError(t, l.Acquire(ctx, "gnews", 1))
	waited := clock.Now().Sub(start)
	assert.InDelta(t, 864, waited.Seconds(), 0.5)
}

func TestLongRunRateRespectsQuota(t *testing.T) {
	l, clock := newTestLimiter(map[string]BucketConfig{
		"gnews": {Capacity: 3, RefillRate: 1.0 / 864},
	})
	ctx := context.Background()

	const requests = 200
	start := clock.Now()
	for i := 0; i < requests; i++ {
		require.NoError(t, l.Acquire(ctx, "gnews", 1))
	}
	elapsed := clock.Now().Sub(start).Seconds()

	// Total wall time must be at least (requests - capacity) refill
	// intervals: the initial burst is free, everything after pays.
	minElapsed := float64(requests-3) * 864
	assert.GreaterOrEqual(t, elapsed, minElapsed-1)
}

func TestBucketsAreIndependent(t *testing.T) {
	l, clock := newTestLimiter(map[string]BucketConfig{
		"gnews": {Capacity: 1, RefillRate: 1.0 / 864},
		"fred":  {Capacity: 10, RefillRate: 0.5},
	})
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "gnews", 1))
	start := clock.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx, "fred", 1))
	}
	// Draining fred's burst never waits on gnews' empty bucket.
	assert.Equal(t, start, clock.Now())
}

func TestAcquireUnknownProvider(t *testing.T) {
	l, _ := newTestLimiter(map[string]BucketConfig{})
	assert.Error(t, l.Acquire(context.Background(), "nope", 1))
}

func TestAcquireOverCapacity(t *testing.T) {
	l, _ := newTestLimiter(map[string]BucketConfig{
		"yahoo": {Capacity: 5, RefillRate: 1.0 / 3},
	})
	assert.Error(t, l.Acquire(context.Background(), "yahoo", 6))
}

func TestAcquireCancelled(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(map[string]BucketConfig{
		"gnews": {Capacity: 1, RefillRate: 1.0 / 864},
	}, zerolog.Nop(), WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx, "gnews", 1))

	cancel()
	err := l.Acquire(ctx, "gnews", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultBucketsCoverAllProviders(t *testing.T) {
	for _, p := range []string{ProviderGNews, ProviderFMP, ProviderAlphaVantage, ProviderPolygon, ProviderFRED, ProviderYahoo} {
		cfg, ok := DefaultBuckets[p]
		require.True(t, ok, p)
		assert.Greater(t, cfg.Capacity, 0.0, p)
		assert.Greater(t, cfg.RefillRate, 0.0, p)
	}
}

func TestSweepGate(t *testing.T) {
	g := NewSweepGate(2)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))

	blocked, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Acquire(blocked))

	g.Release()
	require.NoError(t, g.Acquire(ctx))
}
