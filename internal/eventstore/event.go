// Package eventstore is the append-only event log with per-aggregate
// optimistic concurrency, aggregate rehydration, and snapshotting
// (spec §4.C). Storage is Postgres via database/sql and jmoiron/sqlx for
// struct-scanning query helpers, grounded on the teacher's
// internal/platform/database package for connection handling.
package eventstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable fact about one aggregate. (aggregate_id,
// aggregate_version) uniquely identifies it and totally orders the
// aggregate's history.
type Event struct {
	ID               uuid.UUID       `db:"event_id"`
	TenantID         uuid.UUID       `db:"tenant_id"`
	AggregateID      uuid.UUID       `db:"aggregate_id"`
	AggregateType    string          `db:"aggregate_type"`
	AggregateVersion int64           `db:"aggregate_version"`
	Kind             string          `db:"kind"`
	Payload          json.RawMessage `db:"payload"`
	CausingActorID   uuid.NullUUID   `db:"causing_actor_id"`
	OccurredAt       time.Time       `db:"occurred_at"`
}

// Snapshot is materialized aggregate state at a given version, used to bound
// replay cost. A snapshot at version V must equal the fold of every event
// with version <= V (spec §3).
type Snapshot struct {
	AggregateID   uuid.UUID       `db:"aggregate_id"`
	Version       int64           `db:"version"`
	TenantID      uuid.UUID       `db:"tenant_id"`
	AggregateType string          `db:"aggregate_type"`
	State         json.RawMessage `db:"state"`
	CreatedAt     time.Time       `db:"created_at"`
}

// NewEvent builds an Event ready to append, deferring id/version assignment
// concerns to the Store.
func NewEvent(tenantID, aggregateID uuid.UUID, aggregateType, kind string, payload any, actorID uuid.UUID) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		ID:            uuid.New(),
		TenantID:      tenantID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Kind:          kind,
		Payload:       raw,
		OccurredAt:    time.Now().UTC(),
	}
	if actorID != uuid.Nil {
		ev.CausingActorID = uuid.NullUUID{UUID: actorID, Valid: true}
	}
	return ev, nil
}
