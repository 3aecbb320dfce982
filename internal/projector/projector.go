// Package projector consumes committed events in per-aggregate order and
// updates denormalized read models idempotently (spec §4.E). Field
// extraction from event payloads uses tidwall/gjson for fast read-only JSON
// field access.
package projector

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"

	"github.com/jirsi-platform/core/internal/apperrors"
	"github.com/jirsi-platform/core/internal/eventstore"
)

// FieldMapper projects an event's payload onto the flat field map stored on
// a read_records row. Kind-specific mappers are registered per event kind;
// an event with no registered mapper is a no-op (the read model simply
// doesn't track that fact).
type FieldMapper func(payload []byte) map[string]any

// Projector updates one entity type's read model from committed events.
type Projector struct {
	db         *sqlx.DB
	entityType string
	mappers    map[string]FieldMapper
	// deleteKinds marks event kinds whose projection is a soft delete
	// rather than a field merge.
	deleteKinds map[string]bool
}

// New builds a Projector for entityType, reading committed events for
// aggregates of that read model and applying the registered per-kind mappers.
func New(db *sql.DB, entityType string) *Projector {
	return &Projector{
		db:          sqlx.NewDb(db, "postgres"),
		entityType:  entityType,
		mappers:     make(map[string]FieldMapper),
		deleteKinds: make(map[string]bool),
	}
}

// RegisterMapper associates an event kind with the fields it contributes to
// the read row.
func (p *Projector) RegisterMapper(kind string, mapper FieldMapper) {
	p.mappers[kind] = mapper
}

// RegisterDelete marks kind as a soft-delete signal for this entity type.
func (p *Projector) RegisterDelete(kind string) {
	p.deleteKinds[kind] = true
}

// Project applies one event to the read model. It is safe to invoke any
// number of times for the same event: writes are skipped once the stored
// row's version is already >= the event's aggregate_version (spec §4.E).
// Multi-row projections run inside a single transaction; this projector
// only ever touches one row per event, but still opens a transaction so a
// future multi-row mapper can extend it without a contract change.
//
// Every statement is scoped to ev.TenantID, not just the aggregate id: a
// forged or colliding aggregate id from another tenant must not be able to
// read or overwrite that tenant's read-model row (spec §3).
func (p *Projector) Project(ctx context.Context, ev eventstore.Event) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionError, "begin projection tx", 500, err)
	}
	defer tx.Rollback()

	var storedVersion sql.NullInt64
	err = tx.GetContext(ctx, &storedVersion, `
		SELECT version FROM read_records WHERE id = $1 AND tenant_id = $2`, ev.AggregateID, ev.TenantID)
	if err != nil && err != sql.ErrNoRows {
		return apperrors.Wrap(apperrors.CodeProjectionError, "read current version", 500, err)
	}
	if storedVersion.Valid && storedVersion.Int64 >= ev.AggregateVersion {
		return nil // already applied; replay-safe no-op
	}

	if p.deleteKinds[ev.Kind] {
		_, err = tx.ExecContext(ctx, `
			UPDATE read_records SET deleted_at = $1, version = $2, updated_at = $1
			WHERE id = $3 AND tenant_id = $4`, time.Now().UTC(), ev.AggregateVersion, ev.AggregateID, ev.TenantID)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeProjectionError, "apply delete", 500, err)
		}
		return tx.Commit()
	}

	mapper, ok := p.mappers[ev.Kind]
	fields := map[string]any{}
	if ok {
		fields = mapper(ev.Payload)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO read_records (id, tenant_id, entity_type, version, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			fields = read_records.fields || EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
		WHERE read_records.tenant_id = EXCLUDED.tenant_id`,
		ev.AggregateID, ev.TenantID, p.entityType, ev.AggregateVersion, jsonMap(fields), time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProjectionError, "upsert read record", 500, err)
	}

	return tx.Commit()
}

// jsonMap marshals a field map for storage in a JSONB column. It returns a
// byte slice rather than a map type so database/sql treats it as JSON text.
func jsonMap(m map[string]any) []byte {
	b, _ := json.Marshal(m)
	return b
}

// StringField extracts a top-level string field from a JSON payload, used by
// FieldMapper implementations.
func StringField(payload []byte, path string) string {
	return gjson.GetBytes(payload, path).String()
}
