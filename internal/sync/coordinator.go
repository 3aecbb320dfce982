package sync

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/apperrors"
	"github.com/jirsi-platform/core/internal/crdt"
)

// Store is the persistence boundary the Coordinator pushes mutations
// through and pulls changes from. It operates at the granularity the sync
// protocol needs — current version plus a flat field map per entity — which
// is deliberately coarser than the Aggregate Model's typed commands:
// synced entities are schema-driven records, not hand-written aggregates.
type Store interface {
	// PullChanges returns every change to an entity this tenant can see
	// with updated_at > since, ordered by (updated_at, id), plus the
	// server timestamp to use as the next cursor.
	PullChanges(ctx context.Context, tenantID uuid.UUID, since *time.Time) ([]ServerChange, time.Time, error)

	// CurrentVersion returns the live version and field values for an
	// entity, or ok=false if it does not exist or was deleted.
	CurrentVersion(ctx context.Context, tenantID, entityID uuid.UUID) (version int64, fields map[string]any, ok bool, err error)

	// FieldsChangedSince returns the field names touched by commits after
	// baseVersion, used to distinguish a disjoint merge from an
	// overlapping conflict.
	FieldsChangedSince(ctx context.Context, tenantID, entityID uuid.UUID, baseVersion int64) ([]string, error)

	ApplyCreate(ctx context.Context, tenantID uuid.UUID, entityType string, fields map[string]any, at time.Time) (uuid.UUID, error)
	ApplyUpdate(ctx context.Context, tenantID, entityID uuid.UUID, fields map[string]any, at time.Time) error
	ApplyDelete(ctx context.Context, tenantID, entityID uuid.UUID, at time.Time) error
}

// Coordinator implements the Delta Sync Protocol's pull/push/CRDT-channel
// behavior (spec §4.F).
type Coordinator struct {
	store    Store
	strategy FieldStrategy
	crdt     *Hub
}

// New builds a Coordinator. A nil strategy defaults every field to
// ServerWins.
func New(store Store, strategy FieldStrategy) *Coordinator {
	if strategy == nil {
		strategy = DefaultFieldStrategy
	}
	return &Coordinator{store: store, strategy: strategy, crdt: NewHub()}
}

// Pull returns every change visible to tenantID since lastPulledAt (nil
// pulls the full history) and the server timestamp the client should store
// as its next cursor.
func (c *Coordinator) Pull(ctx context.Context, tenantID uuid.UUID, lastPulledAt *time.Time) (time.Time, []ServerChange, error) {
	changes, serverTimestamp, err := c.store.PullChanges(ctx, tenantID, lastPulledAt)
	if err != nil {
		return time.Time{}, nil, apperrors.Storage(err)
	}
	return serverTimestamp, changes, nil
}

// Push processes mutations in arrival order, applying what it can and
// emitting a Conflict for every overlapping stale write (spec §4.F).
func (c *Coordinator) Push(ctx context.Context, tenantID uuid.UUID, mutations []Mutation) (PushResult, error) {
	var result PushResult

	for _, m := range mutations {
		switch m.Kind {
		case MutationCreate:
			id, err := c.store.ApplyCreate(ctx, tenantID, m.EntityType, m.FieldValues, m.At)
			if err != nil {
				return result, apperrors.Storage(err)
			}
			result.Created = append(result.Created, CreateResult{TempID: m.TempID, ID: id})

		case MutationUpdate:
			conflict, err := c.applyVersioned(ctx, tenantID, m, false)
			if err != nil {
				return result, err
			}
			if conflict != nil {
				result.Conflicts = append(result.Conflicts, *conflict)
			}

		case MutationDelete:
			conflict, err := c.applyVersioned(ctx, tenantID, m, true)
			if err != nil {
				return result, err
			}
			if conflict != nil {
				result.Conflicts = append(result.Conflicts, *conflict)
			}
		}
	}

	return result, nil
}

func (c *Coordinator) applyVersioned(ctx context.Context, tenantID uuid.UUID, m Mutation, isDelete bool) (*Conflict, error) {
	version, fields, ok, err := c.store.CurrentVersion(ctx, tenantID, m.EntityID)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if !ok {
		return nil, apperrors.NotFound("entity")
	}

	if m.BaseVersion == version {
		return nil, c.commit(ctx, tenantID, m, isDelete)
	}

	changedFields, err := c.store.FieldsChangedSince(ctx, tenantID, m.EntityID, m.BaseVersion)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if disjoint(changedFields, m.FieldValues) {
		return nil, c.commit(ctx, tenantID, m, isDelete)
	}

	field := firstOverlap(changedFields, m.FieldValues)
	return &Conflict{
		EntityID:      m.EntityID,
		EntityType:    m.EntityType,
		Field:         field,
		ClientValue:   m.FieldValues[field],
		ClientVersion: m.BaseVersion,
		ServerValue:   fields[field],
		ServerVersion: version,
		Strategy:      c.strategy(m.EntityType, field),
	}, nil
}

func (c *Coordinator) commit(ctx context.Context, tenantID uuid.UUID, m Mutation, isDelete bool) error {
	if isDelete {
		if err := c.store.ApplyDelete(ctx, tenantID, m.EntityID, m.At); err != nil {
			return apperrors.Storage(err)
		}
		return nil
	}
	if err := c.store.ApplyUpdate(ctx, tenantID, m.EntityID, m.FieldValues, m.At); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

// disjoint reports whether none of changedFields appear as keys in fields —
// a safe merge with no overlap to arbitrate.
func disjoint(changedFields []string, fields map[string]any) bool {
	return firstOverlap(changedFields, fields) == ""
}

func firstOverlap(changedFields []string, fields map[string]any) string {
	names := make([]string, len(changedFields))
	copy(names, changedFields)
	sort.Strings(names)
	for _, f := range names {
		if _, ok := fields[f]; ok {
			return f
		}
	}
	return ""
}

// ApplyCRDTUpdate merges an incoming CRDT-channel operation and returns the
// resolved value for (entity_id, field). CRDT fields never produce a
// Conflict: merge is conflict-free by construction.
func (c *Coordinator) ApplyCRDTUpdate(update CrdtUpdate) (value []byte, ok bool) {
	return c.crdt.Apply(update.EntityID, update.Field, update.Op)
}

// CRDTUpdatesSince returns the operations for (entityID, field) the caller
// has not yet observed given its last known state vector, used to fan
// updates out to other subscribers without replaying the whole log.
func (c *Coordinator) CRDTUpdatesSince(entityID uuid.UUID, field string, since crdt.StateVector) []crdt.Op {
	return c.crdt.MissingSince(entityID, field, since)
}
