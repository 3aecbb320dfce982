package sync

import (
	"fmt"
	"time"
)

// Phase is a client's sync state machine position (spec §4.F: "idle →
// syncing → (idle|error)").
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSyncing Phase = "syncing"
	PhaseError   Phase = "error"
)

// State tracks one client's sync progress across calls. An error does not
// clear PendingMutations: retry is the client's responsibility.
type State struct {
	Phase            Phase
	LastPulledAt     *time.Time
	LastPushedAt     *time.Time
	PendingMutations int
	LastError        string
}

// NewState returns a client starting from a clean idle state.
func NewState() *State {
	return &State{Phase: PhaseIdle}
}

// StartSync transitions idle/error -> syncing. Calling it while already
// syncing is a programmer error: a client has exactly one sync in flight.
func (s *State) StartSync() error {
	if s.Phase == PhaseSyncing {
		return fmt.Errorf("sync already in progress")
	}
	s.Phase = PhaseSyncing
	s.LastError = ""
	return nil
}

// Success transitions syncing -> idle, recording the new cursor and
// reducing the pending count by the number of mutations just pushed.
func (s *State) Success(pulledAt time.Time, pushedAt time.Time, pushedCount int) {
	s.Phase = PhaseIdle
	s.LastPulledAt = &pulledAt
	s.LastPushedAt = &pushedAt
	s.PendingMutations -= pushedCount
	if s.PendingMutations < 0 {
		s.PendingMutations = 0
	}
	s.LastError = ""
}

// Fail transitions syncing -> error without touching the pending queue.
func (s *State) Fail(err string) {
	s.Phase = PhaseError
	s.LastError = err
}

// AddPendingMutation records a locally-queued mutation not yet pushed.
func (s *State) AddPendingMutation() {
	s.PendingMutations++
}
