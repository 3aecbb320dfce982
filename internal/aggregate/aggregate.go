// Package aggregate defines the write-side contract every aggregate
// implements (spec §4.D): command validation is pure and side-effect-free,
// event folding is total and deterministic, and invariants hold after any
// apply sequence. The Event Store never validates business semantics — the
// aggregate is the only arbiter of whether a command becomes an event.
package aggregate

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/eventstore"
)

// State is implemented by every aggregate's write-side model. ApplyEvent
// must be total (it never panics or errors on a well-formed event from this
// aggregate's own event kinds) and deterministic: replaying the same event
// list twice yields identical state.
type State interface {
	ApplyEvent(ev eventstore.Event) error
	Version() int64
}

// Load rehydrates an aggregate: it starts from the highest snapshot with
// version <= latest, then folds events with version > snapshot.version in
// ascending order (spec §4.C). tenantID scopes every read to the caller's
// tenant — an aggregateID belonging to another tenant can never be observed
// here (spec §3). A missing aggregate leaves state at its zero value,
// version 0 — the caller's command handler decides whether that is legal.
func Load[T State](ctx context.Context, store eventstore.Store, tenantID, aggregateID uuid.UUID, newState func() T) (T, error) {
	state := newState()

	snap, events, err := store.LoadSnapshotAndEvents(ctx, tenantID, aggregateID)
	if err != nil {
		var zero T
		return zero, err
	}

	if snap != nil {
		if err := json.Unmarshal(snap.State, &state); err != nil {
			var zero T
			return zero, err
		}
	}

	for _, ev := range events {
		if err := state.ApplyEvent(ev); err != nil {
			var zero T
			return zero, err
		}
	}

	return state, nil
}

// DomainErrorKind enumerates the abstract rule categories a command handler
// may reject with (spec §4.D).
type DomainErrorKind string

const (
	KindInvalidInput        DomainErrorKind = "invalid_input"
	KindPreconditionFailed  DomainErrorKind = "precondition_failed"
	KindTerminal            DomainErrorKind = "terminal"
)

// DomainError is returned by a command handler when the command is illegal
// given current state. It is never retried (spec §7).
type DomainError struct {
	Kind   DomainErrorKind
	Detail string
}

func (e *DomainError) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

func InvalidInput(field string) *DomainError {
	return &DomainError{Kind: KindInvalidInput, Detail: field}
}

func PreconditionFailed(rule string) *DomainError {
	return &DomainError{Kind: KindPreconditionFailed, Detail: rule}
}

func Terminal() *DomainError {
	return &DomainError{Kind: KindTerminal, Detail: "aggregate is in a terminal state"}
}
