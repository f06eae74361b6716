// Package ratelimit gates outbound provider traffic. Each external data
// provider has a token bucket sized against its strictest published
// quota; a separate fixed-concurrency gate caps simultaneous asset
// sweeps.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider labels. Buckets are keyed by these.
const (
	ProviderGNews        = "gnews"
	ProviderFMP          = "fmp"
	ProviderAlphaVantage = "alpha_vantage"
	ProviderPolygon      = "polygon"
	ProviderFRED         = "fred"
	ProviderYahoo        = "yahoo"
)

// BucketConfig parameterises one provider bucket.
type BucketConfig struct {
	Capacity   float64
	RefillRate float64 // tokens per second
}

// DefaultBuckets sizes each bucket against the provider's free-tier
// quota with a small burst allowance.
var DefaultBuckets = map[string]BucketConfig{
	ProviderGNews:        {Capacity: 3, RefillRate: 1.0 / 864},  // 100/day
	ProviderFMP:          {Capacity: 5, RefillRate: 1.0 / 288},  // 300/day
	ProviderAlphaVantage: {Capacity: 2, RefillRate: 1.0 / 3456}, // 25/day
	ProviderPolygon:      {Capacity: 5, RefillRate: 1.0 / 12},   // 5/min
	ProviderFRED:         {Capacity: 10, RefillRate: 0.5},
	ProviderYahoo:        {Capacity: 5, RefillRate: 1.0 / 3}, // unofficial API, be gentle
}

type bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

// refillLocked tops the bucket up from wall-clock elapsed time. Caller
// holds mu.
func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Limiter holds one token bucket per provider. Acquisitions on one bucket
// are serialised; buckets are independent of each other.
type Limiter struct {
	buckets map[string]*bucket
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// Option tweaks limiter construction. Tests replace the clock and sleep.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the deficit sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// NewLimiter builds a limiter from the given bucket configs, starting
// every bucket full.
func NewLimiter(configs map[string]BucketConfig, log zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket, len(configs)),
		now:     time.Now,
		sleep:   sleepCtx,
		log:     log.With().Str("component", "ratelimit").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	start := l.now()
	for name, cfg := range configs {
		l.buckets[name] = &bucket{
			capacity:   cfg.Capacity,
			refillRate: cfg.RefillRate,
			tokens:     cfg.Capacity,
			lastRefill: start,
		}
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire blocks until n tokens are available for the provider, then
// deducts them. Waiters on the same bucket are serialised by the bucket
// mutex; the computed deficit is slept outside the critical section and
// the deduction re-checked after waking.
func (l *Limiter) Acquire(ctx context.Context, provider string, n int) error {
	b, ok := l.buckets[provider]
	if !ok {
		return fmt.Errorf("ratelimit: unknown provider %q", provider)
	}
	need := float64(n)
	if need > b.capacity {
		return fmt.Errorf("ratelimit: %s request for %d tokens exceeds capacity %.0f", provider, n, b.capacity)
	}

	for {
		b.mu.Lock()
		now := l.now()
		b.refillLocked(now)
		if b.tokens >= need {
			b.tokens -= need
			b.mu.Unlock()
			return nil
		}
		deficit := (need - b.tokens) / b.refillRate
		b.mu.Unlock()

		wait := time.Duration(deficit * float64(time.Second))
		l.log.Debug().Str("provider", provider).Dur("wait", wait).Msg("Rate limit wait")
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Tokens reports the current token count for a provider after refill.
// Used by tests and the health endpoint.
func (l *Limiter) Tokens(provider string) float64 {
	b, ok := l.buckets[provider]
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.now())
	return b.tokens
}

// SweepGate caps the number of asset sweeps running concurrently.
type SweepGate struct {
	slots chan struct{}
}

// NewSweepGate builds a gate with the given concurrency (minimum 1).
func NewSweepGate(concurrency int) *SweepGate {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SweepGate{slots: make(chan struct{}, concurrency)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (g *SweepGate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *SweepGate) Release() { <-g.slots }
