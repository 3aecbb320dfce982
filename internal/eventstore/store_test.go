package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/apperrors"
)

func TestAppend_CommitsOnMatchingVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	aggID := uuid.New()

	tenantID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max\(aggregate_version\) FROM aggregate_events`).
		WithArgs(aggID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO aggregate_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payload, _ := json.Marshal(map[string]any{"stage": "proposal"})
	ev := Event{ID: uuid.New(), TenantID: tenantID, AggregateID: aggID, AggregateType: "deal", Kind: "deal.stage_changed", Payload: payload}

	if err := store.Append(context.Background(), ev, 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppend_ConcurrencyConflictOnVersionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	aggID, tenantID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max\(aggregate_version\) FROM aggregate_events`).
		WithArgs(aggID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(2)))
	mock.ExpectRollback()

	payload, _ := json.Marshal(map[string]any{"stage": "proposal"})
	ev := Event{ID: uuid.New(), TenantID: tenantID, AggregateID: aggID, AggregateType: "deal", Kind: "deal.stage_changed", Payload: payload}

	err = store.Append(context.Background(), ev, 1)
	if err == nil {
		t.Fatal("expected ConcurrencyConflict, got nil")
	}
	var svcErr *apperrors.Error
	if !asAppErr(err, &svcErr) {
		t.Fatalf("expected *apperrors.Error, got %T", err)
	}
	if svcErr.Code != apperrors.CodeConcurrencyConflict {
		t.Fatalf("expected CodeConcurrencyConflict, got %s", svcErr.Code)
	}
	if got, _ := svcErr.Details["actual_version"].(int64); got != 2 {
		t.Fatalf("expected actual_version=2 in details, got %v", svcErr.Details["actual_version"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppend_FirstEventOnEmptyAggregate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	aggID, tenantID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT max\(aggregate_version\) FROM aggregate_events`).
		WithArgs(aggID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(sql.NullInt64{}))
	mock.ExpectExec(`INSERT INTO aggregate_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payload, _ := json.Marshal(map[string]any{"title": "Big Enterprise"})
	ev := Event{ID: uuid.New(), TenantID: tenantID, AggregateID: aggID, AggregateType: "deal", Kind: "deal.created", Payload: payload}

	if err := store.Append(context.Background(), ev, 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadSnapshotAndEvents_FoldsFromSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	aggID, tenantID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT aggregate_id, version, tenant_id, aggregate_type, state, created_at`).
		WithArgs(aggID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"aggregate_id", "version", "tenant_id", "aggregate_type", "state", "created_at"}).
			AddRow(aggID, int64(100), tenantID, "deal", []byte(`{"stage":"proposal"}`), time.Unix(1700000000, 0).UTC()))
	mock.ExpectQuery(`SELECT event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at`).
		WithArgs(aggID, tenantID, int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "tenant_id", "aggregate_id", "aggregate_type", "aggregate_version", "kind", "payload", "causing_actor_id", "occurred_at",
		}).AddRow(uuid.New(), tenantID, aggID, "deal", int64(101), "deal.closed", []byte(`{"outcome":"won"}`), nil, time.Unix(1700000000, 0).UTC()))
	mock.ExpectCommit()

	snap, events, err := store.LoadSnapshotAndEvents(context.Background(), tenantID, aggID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap == nil || snap.Version != 100 {
		t.Fatalf("expected snapshot at version 100, got %+v", snap)
	}
	if len(events) != 1 || events[0].AggregateVersion != 101 {
		t.Fatalf("expected one event after the snapshot, got %+v", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadSnapshotAndEvents_NoSnapshotReplaysFromGenesis(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	aggID, tenantID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT aggregate_id, version, tenant_id, aggregate_type, state, created_at`).
		WithArgs(aggID, tenantID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at`).
		WithArgs(aggID, tenantID, int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "tenant_id", "aggregate_id", "aggregate_type", "aggregate_version", "kind", "payload", "causing_actor_id", "occurred_at",
		}))
	mock.ExpectCommit()

	snap, events, err := store.LoadSnapshotAndEvents(context.Background(), tenantID, aggID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected no snapshot, got %+v", snap)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for a missing aggregate, got %d", len(events))
	}
}

// Property 9 (spec §8): no query returns a row whose tenant id differs from
// the bound tenant id. A aggregate id that belongs to another tenant must
// read back as missing, never that tenant's snapshot/events — this is
// enforced by scoping every read query to tenant_id, not just aggregate_id.
func TestLoadSnapshotAndEvents_ScopedToTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	// aggID actually belongs to ownerTenant; otherTenant requests it anyway.
	aggID, otherTenant := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT aggregate_id, version, tenant_id, aggregate_type, state, created_at`).
		WithArgs(aggID, otherTenant).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at`).
		WithArgs(aggID, otherTenant, int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "tenant_id", "aggregate_id", "aggregate_type", "aggregate_version", "kind", "payload", "causing_actor_id", "occurred_at",
		}))
	mock.ExpectCommit()

	// The query is scoped to otherTenant and must not leak ownerTenant's rows.
	snap, events, err := store.LoadSnapshotAndEvents(context.Background(), otherTenant, aggID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil || len(events) != 0 {
		t.Fatalf("expected no rows visible to a non-owning tenant, got snap=%+v events=%+v", snap, events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetEventStream_ScopesByTenantAndBounds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresStore(db)
	aggID, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT event_id, tenant_id, aggregate_id, aggregate_type, aggregate_version, kind, payload, causing_actor_id, occurred_at`).
		WithArgs(aggID, tenantID, int64(1), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "tenant_id", "aggregate_id", "aggregate_type", "aggregate_version", "kind", "payload", "causing_actor_id", "occurred_at",
		}).AddRow(uuid.New(), tenantID, aggID, "deal", int64(2), "deal.stage_changed", []byte(`{}`), nil, time.Unix(1700000000, 0).UTC()))

	events, err := store.GetEventStream(context.Background(), tenantID, aggID, 1, 3)
	if err != nil {
		t.Fatalf("get event stream: %v", err)
	}
	if len(events) != 1 || events[0].AggregateVersion != 2 {
		t.Fatalf("expected one bounded event, got %+v", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func asAppErr(err error, target **apperrors.Error) bool {
	if se, ok := err.(*apperrors.Error); ok {
		*target = se
		return true
	}
	return false
}
