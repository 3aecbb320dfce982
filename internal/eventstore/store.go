package eventstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// Store is the Event Store's read/write contract (spec §4.C). Append is the
// sole write path and is the only place optimistic concurrency is enforced;
// the unique index on (aggregate_id, aggregate_version) is the authority, so
// no additional serialization (advisory locks, SELECT ... FOR UPDATE) is
// needed on the happy path.
type Store interface {
	// Append commits a single event if expectedVersion equals the
	// aggregate's current max version, otherwise returns
	// apperrors.ConcurrencyConflict(actual).
	Append(ctx context.Context, ev Event, expectedVersion int64) error

	// LoadSnapshotAndEvents returns the most recent snapshot with version <=
	// the aggregate's latest version (nil if none exists) and every event
	// strictly after it, in ascending version order. Every row returned is
	// scoped to tenantID — an aggregateID belonging to another tenant reads
	// back as a missing aggregate, never that tenant's data (spec §3). A
	// missing aggregate returns (nil, nil, nil) — callers rehydrate an
	// aggregate at version 0.
	LoadSnapshotAndEvents(ctx context.Context, tenantID, aggregateID uuid.UUID) (*Snapshot, []Event, error)

	// GetEventStream returns events for aggregateID owned by tenantID,
	// ordered by version ascending, optionally bounded to [from, to] (to=0
	// means unbounded).
	GetEventStream(ctx context.Context, tenantID, aggregateID uuid.UUID, from, to int64) ([]Event, error)

	// CreateSnapshot is idempotent on (aggregate_id, version).
	CreateSnapshot(ctx context.Context, snap Snapshot) error

	// PruneSnapshots applies the retention policy: keep the most recent
	// retainCount snapshots per aggregate and delete any older than maxAge.
	PruneSnapshots(ctx context.Context, retainCount int, maxAgeSeconds int64) error
}

// postgresStore is the Store implementation backing production deployments.
type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing *sql.DB (opened via
// internal/platform/database.Open) as an event Store.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: sqlx.NewDb(db, "postgres")}
}

func (s *postgresStore) Append(ctx context.Context, ev Event, expectedVersion int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Storage(err)
	}
	defer tx.Rollback()

	var actual sql.NullInt64
	if err := tx.GetContext(ctx, &actual,
		`SELECT max(aggregate_version) FROM aggregate_events WHERE aggregate_id = $1 AND tenant_id = $2`,
		ev.AggregateID, ev.TenantID); err != nil {
		return apperrors.Storage(err)
	}
	currentVersion := int64(0)
	if actual.Valid {
		currentVersion = actual.Int64
	}
	if currentVersion != expectedVersion {
		return apperrors.ConcurrencyConflict(currentVersion)
	}

	ev.AggregateVersion = expectedVersion + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO aggregate_events
			(event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.TenantID, ev.AggregateID, ev.AggregateType, ev.AggregateVersion,
		ev.Kind, []byte(ev.Payload), ev.CausingActorID, ev.OccurredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ConcurrencyConflict(currentVersion)
		}
		return apperrors.Storage(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *postgresStore) LoadSnapshotAndEvents(ctx context.Context, tenantID, aggregateID uuid.UUID) (*Snapshot, []Event, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, apperrors.Storage(err)
	}
	defer tx.Rollback()

	var snap Snapshot
	err = tx.GetContext(ctx, &snap, `
		SELECT aggregate_id, version, tenant_id, aggregate_type, state, created_at
		FROM aggregate_snapshots
		WHERE aggregate_id = $1 AND tenant_id = $2
		ORDER BY version DESC
		LIMIT 1`, aggregateID, tenantID)

	var fromVersion int64
	var snapPtr *Snapshot
	switch {
	case err == nil:
		snapPtr = &snap
		fromVersion = snap.Version
	case errors.Is(err, sql.ErrNoRows):
		// no snapshot: replay from genesis
	default:
		return nil, nil, apperrors.Storage(err)
	}

	var events []Event
	if err := tx.SelectContext(ctx, &events, `
		SELECT event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at
		FROM aggregate_events
		WHERE aggregate_id = $1 AND tenant_id = $2 AND aggregate_version > $3
		ORDER BY aggregate_version ASC`, aggregateID, tenantID, fromVersion); err != nil {
		return nil, nil, apperrors.Storage(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apperrors.Storage(err)
	}
	return snapPtr, events, nil
}

func (s *postgresStore) GetEventStream(ctx context.Context, tenantID, aggregateID uuid.UUID, from, to int64) ([]Event, error) {
	query := `
		SELECT event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at
		FROM aggregate_events
		WHERE aggregate_id = $1 AND tenant_id = $2 AND aggregate_version >= $3`
	args := []any{aggregateID, tenantID, from}
	if to > 0 {
		query += ` AND aggregate_version <= $4`
		args = append(args, to)
	}
	query += ` ORDER BY aggregate_version ASC`

	var events []Event
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, apperrors.Storage(err)
	}
	return events, nil
}

func (s *postgresStore) CreateSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aggregate_snapshots (aggregate_id, version, tenant_id, aggregate_type, state, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (aggregate_id, version) DO NOTHING`,
		snap.AggregateID, snap.Version, snap.TenantID, snap.AggregateType, []byte(snap.State))
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *postgresStore) PruneSnapshots(ctx context.Context, retainCount int, maxAgeSeconds int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM aggregate_snapshots
		WHERE created_at < now() - ($1 || ' seconds')::interval`, maxAgeSeconds)
	if err != nil {
		return apperrors.Storage(err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM aggregate_snapshots s
		WHERE s.version NOT IN (
			SELECT version FROM aggregate_snapshots s2
			WHERE s2.aggregate_id = s.aggregate_id
			ORDER BY s2.version DESC
			LIMIT $1
		) AND EXISTS (SELECT 1 FROM aggregate_snapshots s3 WHERE s3.aggregate_id = s.aggregate_id)`, retainCount)
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// lib/pq reports unique_violation as SQLSTATE 23505; matching by string
	// avoids importing the pq error type into the store's public surface.
	return err != nil && containsCode23505(err.Error())
}

func containsCode23505(msg string) bool {
	return len(msg) > 0 && (contains(msg, "23505") || contains(msg, "unique constraint") || contains(msg, "duplicate key"))
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
