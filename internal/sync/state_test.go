package sync

import (
	"testing"
	"time"
)

func TestState_TransitionsIdleSyncingIdle(t *testing.T) {
	s := NewState()
	if s.Phase != PhaseIdle {
		t.Fatalf("expected initial idle, got %s", s.Phase)
	}
	s.AddPendingMutation()
	s.AddPendingMutation()

	if err := s.StartSync(); err != nil {
		t.Fatalf("start sync: %v", err)
	}
	if s.Phase != PhaseSyncing {
		t.Fatalf("expected syncing, got %s", s.Phase)
	}

	now := time.Now()
	s.Success(now, now, 2)
	if s.Phase != PhaseIdle || s.PendingMutations != 0 {
		t.Fatalf("expected idle with 0 pending, got phase=%s pending=%d", s.Phase, s.PendingMutations)
	}
}

func TestState_ErrorPreservesPendingQueue(t *testing.T) {
	s := NewState()
	s.AddPendingMutation()
	s.AddPendingMutation()
	s.AddPendingMutation()

	_ = s.StartSync()
	s.Fail("network unreachable")

	if s.Phase != PhaseError {
		t.Fatalf("expected error phase, got %s", s.Phase)
	}
	if s.PendingMutations != 3 {
		t.Fatalf("expected pending queue untouched at 3, got %d", s.PendingMutations)
	}
	if s.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestState_CannotStartSyncTwice(t *testing.T) {
	s := NewState()
	if err := s.StartSync(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.StartSync(); err == nil {
		t.Fatal("expected error starting sync while already syncing")
	}
}

func TestState_RetryAfterErrorReturnsToSyncing(t *testing.T) {
	s := NewState()
	_ = s.StartSync()
	s.Fail("boom")

	if err := s.StartSync(); err != nil {
		t.Fatalf("expected retry from error state to succeed: %v", err)
	}
	if s.Phase != PhaseSyncing {
		t.Fatalf("expected syncing, got %s", s.Phase)
	}
}
