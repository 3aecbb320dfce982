// Package ratelimit implements per-tenant admission control: a token bucket
// with burst allowance, replenished over a fixed window (spec §4.B). Buckets
// live in an in-memory map guarded by a reader-writer lock; mutation of a
// single bucket takes an exclusive guard scoped to that entry, matching the
// shared-resource policy in spec §5 (grounded on the teacher's
// infrastructure/ratelimit/ratelimit.go shape, generalized to the spec's
// window+burst algorithm instead of golang.org/x/time/rate semantics).
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/metrics"
)

// Config tunes one tenant's bucket. Zero values fall back to Default().
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	BurstSize         int
}

// Default returns the spec's worked-example configuration.
func Default() Config {
	return Config{RequestsPerWindow: 1000, Window: 60 * time.Second, BurstSize: 100}
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	mu             sync.Mutex
	requestCount   int
	windowStart    time.Time
	burstRemaining int
}

// Limiter admits requests per tenant using the algorithm in spec §4.B:
// resetting the window (and burst allowance) once it elapses, then admitting
// up to RequestsPerWindow before spending burst tokens.
type Limiter struct {
	cfg     Config
	mu      sync.RWMutex
	buckets map[uuid.UUID]*bucket
	now     func() time.Time
	metrics *metrics.Metrics
}

// WithMetrics attaches a Metrics sink that Allow reports admit/reject
// counts against, keyed by tenant. Passing nil disables reporting.
func (l *Limiter) WithMetrics(m *metrics.Metrics) *Limiter {
	l.metrics = m
	return l
}

// New creates a Limiter with the given per-tenant configuration.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg = Default()
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[uuid.UUID]*bucket),
		now:     time.Now,
	}
}

// Allow performs one admission check for tenantID.
func (l *Limiter) Allow(tenantID uuid.UUID) Decision {
	now := l.now()
	b := l.bucketFor(tenantID, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.windowStart) > l.cfg.Window {
		b.windowStart = now
		b.requestCount = 0
		b.burstRemaining = l.cfg.BurstSize
	}

	b.requestCount++
	resetAt := b.windowStart.Add(l.cfg.Window)

	if b.requestCount <= l.cfg.RequestsPerWindow {
		l.metrics.ObserveRateLimit(tenantID.String(), true)
		return Decision{
			Allowed:   true,
			Remaining: l.cfg.RequestsPerWindow - b.requestCount,
			ResetAt:   resetAt,
		}
	}

	if b.burstRemaining > 0 {
		b.burstRemaining--
		l.metrics.ObserveRateLimit(tenantID.String(), true)
		return Decision{Allowed: true, Remaining: 0, ResetAt: resetAt}
	}

	l.metrics.ObserveRateLimit(tenantID.String(), false)
	return Decision{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: l.cfg.Window - now.Sub(b.windowStart),
	}
}

// bucketFor returns the bucket for tenantID, creating it under an exclusive
// guard if it doesn't exist yet. The common path (bucket already exists)
// only needs the shared guard.
func (l *Limiter) bucketFor(tenantID uuid.UUID, now time.Time) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[tenantID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[tenantID]; ok {
		return b
	}
	b = &bucket{windowStart: now, burstRemaining: l.cfg.BurstSize}
	l.buckets[tenantID] = b
	return b
}

// Sweep evicts buckets whose window ended more than 2x the window length
// ago, bounding memory for tenants that have gone idle (spec §4.B).
func (l *Limiter) Sweep() int {
	now := l.now()
	cutoff := 2 * l.cfg.Window

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, b := range l.buckets {
		b.mu.Lock()
		expired := now.Sub(b.windowStart.Add(l.cfg.Window)) > cutoff
		b.mu.Unlock()
		if expired {
			delete(l.buckets, id)
			evicted++
		}
	}
	return evicted
}

// SweepLoop runs Sweep on the given interval until stop is closed.
func (l *Limiter) SweepLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-stop:
			return
		}
	}
}
