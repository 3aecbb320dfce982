// Package sync implements the Delta Sync Protocol coordinator (spec §4.F):
// pull of server changes since a cursor, push of client mutations with
// per-field conflict detection, and fan-out of CRDT-channel updates. Types
// mirror the wire shapes in
// _examples/original_source/crates/core-models/src/sync.rs, adapted to Go
// idiom (tagged structs instead of Rust's serde enum tag).
package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/crdt"
)

// MutationKind discriminates a client mutation's wire shape.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is one client-side change submitted on push.
type Mutation struct {
	Kind        MutationKind
	TempID      uuid.UUID // set for Create; client-local placeholder id
	EntityID    uuid.UUID // set for Update/Delete
	EntityType  string
	FieldValues map[string]any
	BaseVersion int64 // the server version the client last saw (Update/Delete)
	At          time.Time
}

// ChangeKind discriminates a server change's wire shape.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ServerChange is one row of server-side delta returned from a pull.
type ServerChange struct {
	Kind        ChangeKind
	EntityID    uuid.UUID
	EntityType  string
	FieldValues map[string]any
	Version     int64
	At          time.Time
}

// ConflictStrategy is the resolution hint attached to a Conflict (spec
// §4.F, Open Question 2: the source defaults to ServerWins).
type ConflictStrategy string

const (
	StrategyServerWins ConflictStrategy = "server_wins"
	StrategyClientWins ConflictStrategy = "client_wins"
	StrategyManual     ConflictStrategy = "manual"
	StrategyMerge      ConflictStrategy = "merge"
	StrategyCRDT       ConflictStrategy = "crdt"
)

// Conflict is emitted when a push mutation's base_version is stale and the
// touched field set overlaps with changes committed since that version.
type Conflict struct {
	EntityID      uuid.UUID
	EntityType    string
	Field         string
	ClientValue   any
	ClientVersion int64
	ServerValue   any
	ServerVersion int64
	Strategy      ConflictStrategy
}

// CreateResult maps a client's temp_id to the permanent id the server
// assigned, so the client can rewrite local references.
type CreateResult struct {
	TempID uuid.UUID
	ID     uuid.UUID
}

// CrdtUpdate is one opaque CRDT-channel operation traveling between a
// client and the coordinator. The coordinator never interprets Value; it
// merges the operation into an in-memory Hub register and returns unseen
// operations on request (CRDTUpdatesSince). The merged state is not
// persisted, and the coordinator does not broadcast it to subscribers.
type CrdtUpdate struct {
	EntityID uuid.UUID
	Field    string
	Op       crdt.Op
}

// PushResult summarizes the outcome of processing a batch of mutations.
type PushResult struct {
	Created   []CreateResult
	Conflicts []Conflict
}

// FieldStrategy resolves the configured conflict strategy for one
// (entity_type, field) pair; entity schemas set this per field (spec §4.F:
// "per-field strategy hints should be configurable in the schema").
type FieldStrategy func(entityType, field string) ConflictStrategy

// DefaultFieldStrategy returns ServerWins for every field, the safe default
// for derived/system fields absent schema-level configuration.
func DefaultFieldStrategy(entityType, field string) ConflictStrategy {
	return StrategyServerWins
}
