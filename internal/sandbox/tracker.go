package sandbox

import (
	"net/http"
	"sync"
	"time"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// Tracker accounts resource consumption for one plugin invocation against
// its Limits, raising the matching apperrors code the instant any ceiling
// is crossed.
type Tracker struct {
	limits    Limits
	startedAt time.Time

	mu            sync.Mutex
	fuelConsumed  uint64
	memoryUsed    int64
	httpRequests  int
	entityOps     int
}

func NewTracker(limits Limits) *Tracker {
	return &Tracker{limits: limits, startedAt: time.Now()}
}

// CheckTimeout reports whether the invocation has exceeded its wall-clock
// budget. Every other Track* call consults this first, matching the
// original's "every instruction block... consults the tracker" contract.
func (t *Tracker) CheckTimeout() error {
	if time.Since(t.startedAt) > t.limits.Timeout {
		return apperrors.New(apperrors.CodeResourceTimeout, "plugin execution timed out", http.StatusRequestTimeout).
			WithDetails("elapsed_ms", time.Since(t.startedAt).Milliseconds()).
			WithDetails("limit_ms", t.limits.Timeout.Milliseconds())
	}
	return nil
}

// ConsumeFuel charges amount instruction-equivalents and fails once the
// cumulative total exceeds MaxFuel.
func (t *Tracker) ConsumeFuel(amount uint64) error {
	if err := t.CheckTimeout(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fuelConsumed += amount
	if t.fuelConsumed > t.limits.MaxFuel {
		return apperrors.New(apperrors.CodeResourceFuelExhausted, "plugin fuel exhausted", http.StatusTooManyRequests).
			WithDetails("consumed", t.fuelConsumed).WithDetails("limit", t.limits.MaxFuel)
	}
	return nil
}

// ForceFuelExhausted marks the fuel budget as spent without requiring the
// caller to compute an exact amount, used when a wall-clock fuel window
// (Limits.FuelExhaustionWindow) elapses for a script that never charged fuel
// through a host call — a pure-compute loop still exhausts its fuel budget
// rather than only ever hitting the wall-clock timeout.
func (t *Tracker) ForceFuelExhausted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fuelConsumed <= t.limits.MaxFuel {
		t.fuelConsumed = t.limits.MaxFuel + 1
	}
}

// AllocateMemory charges bytes against the memory budget.
func (t *Tracker) AllocateMemory(bytes int64) error {
	if err := t.CheckTimeout(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.memoryUsed += bytes
	if t.memoryUsed > t.limits.MaxMemoryBytes {
		return apperrors.New(apperrors.CodeResourceMemoryExceeded, "plugin memory limit exceeded", http.StatusTooManyRequests).
			WithDetails("used", t.memoryUsed).WithDetails("limit", t.limits.MaxMemoryBytes)
	}
	return nil
}

// TrackHTTPRequest charges one outbound HTTP call.
func (t *Tracker) TrackHTTPRequest() error {
	if err := t.CheckTimeout(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.httpRequests++
	if t.httpRequests > t.limits.MaxHTTPRequests {
		return apperrors.New(apperrors.CodeResourceHTTPLimit, "plugin HTTP request limit exceeded", http.StatusTooManyRequests).
			WithDetails("count", t.httpRequests).WithDetails("limit", t.limits.MaxHTTPRequests)
	}
	return nil
}

// TrackEntityOp charges one entity read/write.
func (t *Tracker) TrackEntityOp() error {
	if err := t.CheckTimeout(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entityOps++
	if t.entityOps > t.limits.MaxEntityOps {
		return apperrors.New(apperrors.CodeResourceEntityOpsLimit, "plugin entity operation limit exceeded", http.StatusTooManyRequests).
			WithDetails("count", t.entityOps).WithDetails("limit", t.limits.MaxEntityOps)
	}
	return nil
}

// Usage is a point-in-time snapshot for the execution trace.
type Usage struct {
	Elapsed      time.Duration
	FuelConsumed uint64
	MemoryUsed   int64
	HTTPRequests int
	EntityOps    int
}

func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Usage{
		Elapsed: time.Since(t.startedAt), FuelConsumed: t.fuelConsumed,
		MemoryUsed: t.memoryUsed, HTTPRequests: t.httpRequests, EntityOps: t.entityOps,
	}
}
