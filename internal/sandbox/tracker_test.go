package sandbox

import (
	"testing"
	"time"

	"github.com/jirsi-platform/core/internal/apperrors"
)

func TestTracker_ConsumeFuelFailsOncePastLimit(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 100, Timeout: time.Second})

	if err := tr.ConsumeFuel(60); err != nil {
		t.Fatalf("expected first charge under budget to succeed, got %v", err)
	}
	err := tr.ConsumeFuel(60)
	if err == nil {
		t.Fatal("expected fuel exhaustion on second charge")
	}
	var svcErr *apperrors.Error
	if se, ok := err.(*apperrors.Error); ok {
		svcErr = se
	} else {
		t.Fatalf("expected *apperrors.Error, got %T", err)
	}
	if svcErr.Code != apperrors.CodeResourceFuelExhausted {
		t.Fatalf("expected CodeResourceFuelExhausted, got %s", svcErr.Code)
	}
}

func TestTracker_ForceFuelExhaustedTripsSubsequentConsumeFuel(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 1 << 20, Timeout: time.Second})

	if err := tr.ConsumeFuel(10); err != nil {
		t.Fatalf("expected charge well under budget to succeed, got %v", err)
	}

	tr.ForceFuelExhausted()

	if got := tr.Usage().FuelConsumed; got <= tr.limits.MaxFuel {
		t.Fatalf("expected fuel consumed to exceed the limit after forcing exhaustion, got %d (limit %d)", got, tr.limits.MaxFuel)
	}
	if err := tr.ConsumeFuel(1); err == nil {
		t.Fatal("expected any further charge to fail once fuel has been forced exhausted")
	}
}

func TestTracker_ForceFuelExhaustedIsIdempotent(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 100, Timeout: time.Second})

	tr.ForceFuelExhausted()
	first := tr.Usage().FuelConsumed
	tr.ForceFuelExhausted()
	second := tr.Usage().FuelConsumed

	if first != second {
		t.Fatalf("expected repeated ForceFuelExhausted calls not to keep bumping the counter, got %d then %d", first, second)
	}
}

func TestTracker_TrackHTTPRequestEnforcesLimit(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 1 << 20, Timeout: time.Second, MaxHTTPRequests: 2})

	if err := tr.TrackHTTPRequest(); err != nil {
		t.Fatalf("request 1: %v", err)
	}
	if err := tr.TrackHTTPRequest(); err != nil {
		t.Fatalf("request 2: %v", err)
	}
	if err := tr.TrackHTTPRequest(); err == nil {
		t.Fatal("expected third request to exceed the limit")
	}
}

func TestTracker_TrackEntityOpEnforcesLimit(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 1 << 20, Timeout: time.Second, MaxEntityOps: 1})

	if err := tr.TrackEntityOp(); err != nil {
		t.Fatalf("op 1: %v", err)
	}
	if err := tr.TrackEntityOp(); err == nil {
		t.Fatal("expected second op to exceed the limit")
	}
}

func TestTracker_AllocateMemoryEnforcesLimit(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 1 << 20, Timeout: time.Second, MaxMemoryBytes: 1024})

	if err := tr.AllocateMemory(512); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if err := tr.AllocateMemory(600); err == nil {
		t.Fatal("expected memory limit exceeded")
	}
}

func TestTracker_CheckTimeoutFiresAfterDeadline(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 1 << 20, Timeout: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	if err := tr.CheckTimeout(); err == nil {
		t.Fatal("expected timeout once elapsed exceeds the budget")
	}
}

func TestTracker_UsageReflectsConsumption(t *testing.T) {
	tr := NewTracker(Limits{MaxFuel: 1 << 20, Timeout: time.Second})
	_ = tr.ConsumeFuel(42)
	_ = tr.TrackHTTPRequest()
	_ = tr.TrackEntityOp()

	usage := tr.Usage()
	if usage.FuelConsumed != 42 || usage.HTTPRequests != 1 || usage.EntityOps != 1 {
		t.Fatalf("unexpected usage snapshot: %+v", usage)
	}
}

func TestLimitsProfiles_TrustedAndSystemScaleUntrusted(t *testing.T) {
	u, tr, sys := Untrusted(), Trusted(), System()

	if tr.MaxFuel != u.MaxFuel*5 || tr.MaxHTTPRequests != u.MaxHTTPRequests*5 {
		t.Fatalf("expected Trusted to be 5x Untrusted, got %+v vs %+v", tr, u)
	}
	if sys.Profile != "system" || sys.MaxFuel == 0 {
		t.Fatalf("expected System to carry an effectively unbounded fuel budget, got %+v", sys)
	}
	if u.Profile != "untrusted" || tr.Profile != "trusted" {
		t.Fatalf("expected profile labels set, got untrusted=%q trusted=%q", u.Profile, tr.Profile)
	}
}
