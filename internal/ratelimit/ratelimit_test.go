package ratelimit

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAllow_WithinWindowLimit(t *testing.T) {
	l := New(Config{RequestsPerWindow: 5, Window: time.Minute, BurstSize: 0})
	tenant := uuid.New()

	for i := 0; i < 5; i++ {
		d := l.Allow(tenant)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d := l.Allow(tenant)
	if d.Allowed {
		t.Fatal("6th request should be limited with no burst")
	}
}

func TestAllow_BurstAllowance(t *testing.T) {
	l := New(Config{RequestsPerWindow: 2, Window: time.Minute, BurstSize: 3})
	tenant := uuid.New()

	for i := 0; i < 2; i++ {
		if d := l.Allow(tenant); !d.Allowed {
			t.Fatalf("request %d within limit should be allowed", i)
		}
	}
	for i := 0; i < 3; i++ {
		if d := l.Allow(tenant); !d.Allowed {
			t.Fatalf("burst request %d should be allowed", i)
		}
	}
	if d := l.Allow(tenant); d.Allowed {
		t.Fatal("request past limit+burst should be limited")
	}
}

// Property 4 (spec §8): the token bucket admits at most
// requests_per_window + burst_size requests in any window.
func TestProperty_AdmitsAtMostLimitPlusBurst(t *testing.T) {
	limit, burst := 1000, 100
	l := New(Config{RequestsPerWindow: limit, Window: time.Minute, BurstSize: burst})
	tenant := uuid.New()

	admitted := 0
	for i := 0; i < limit+burst+50; i++ {
		if l.Allow(tenant).Allowed {
			admitted++
		}
	}
	if admitted != limit+burst {
		t.Fatalf("expected exactly %d admitted, got %d", limit+burst, admitted)
	}
}

func TestAllow_WindowResets(t *testing.T) {
	l := New(Config{RequestsPerWindow: 1, Window: 10 * time.Millisecond, BurstSize: 0})
	tenant := uuid.New()

	if d := l.Allow(tenant); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d := l.Allow(tenant); d.Allowed {
		t.Fatal("second request within window should be limited")
	}

	time.Sleep(20 * time.Millisecond)
	if d := l.Allow(tenant); !d.Allowed {
		t.Fatal("request after window reset should be allowed")
	}
}

func TestAllow_PerTenantIsolation(t *testing.T) {
	l := New(Config{RequestsPerWindow: 1, Window: time.Minute, BurstSize: 0})
	a, b := uuid.New(), uuid.New()

	if d := l.Allow(a); !d.Allowed {
		t.Fatal("tenant a first request should be allowed")
	}
	if d := l.Allow(b); !d.Allowed {
		t.Fatal("tenant b should have its own bucket")
	}
}

func TestSweep_EvictsExpiredBuckets(t *testing.T) {
	l := New(Config{RequestsPerWindow: 1, Window: time.Millisecond, BurstSize: 0})
	tenant := uuid.New()
	l.Allow(tenant)

	time.Sleep(5 * time.Millisecond)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("expected 1 bucket evicted, got %d", n)
	}
	if len(l.buckets) != 0 {
		t.Fatalf("expected buckets map empty after sweep, got %d", len(l.buckets))
	}
}
