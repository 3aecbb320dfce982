package aggregate

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/eventstore"
)

// memStore is a minimal in-memory eventstore.Store used to exercise the
// aggregate contract without a database.
type memStore struct {
	events    map[uuid.UUID][]eventstore.Event
	snapshots map[uuid.UUID][]eventstore.Snapshot
}

func newMemStore() *memStore {
	return &memStore{events: map[uuid.UUID][]eventstore.Event{}, snapshots: map[uuid.UUID][]eventstore.Snapshot{}}
}

func (m *memStore) Append(ctx context.Context, ev eventstore.Event, expectedVersion int64) error {
	cur := m.events[ev.AggregateID]
	actual := int64(len(cur))
	if actual != expectedVersion {
		return &concurrencyErr{actual: actual}
	}
	ev.AggregateVersion = actual + 1
	m.events[ev.AggregateID] = append(cur, ev)
	return nil
}

type concurrencyErr struct{ actual int64 }

func (e *concurrencyErr) Error() string { return "concurrency conflict" }

// LoadSnapshotAndEvents only ever returns events stamped with tenantID,
// mirroring the Postgres store's tenant_id-scoped WHERE clause (spec §3): a
// caller holding the wrong tenant id sees a missing aggregate, never
// another tenant's history.
func (m *memStore) LoadSnapshotAndEvents(ctx context.Context, tenantID, aggregateID uuid.UUID) (*eventstore.Snapshot, []eventstore.Event, error) {
	var out []eventstore.Event
	for _, ev := range m.events[aggregateID] {
		if ev.TenantID == tenantID {
			out = append(out, ev)
		}
	}
	return nil, out, nil
}

func (m *memStore) GetEventStream(ctx context.Context, tenantID, aggregateID uuid.UUID, from, to int64) ([]eventstore.Event, error) {
	var out []eventstore.Event
	for _, ev := range m.events[aggregateID] {
		if ev.TenantID == tenantID && ev.AggregateVersion >= from && (to == 0 || ev.AggregateVersion <= to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) CreateSnapshot(ctx context.Context, snap eventstore.Snapshot) error {
	m.snapshots[snap.AggregateID] = append(m.snapshots[snap.AggregateID], snap)
	return nil
}

func (m *memStore) PruneSnapshots(ctx context.Context, retainCount int, maxAgeSeconds int64) error {
	return nil
}

func TestDealLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tenantID, dealID, actorID := uuid.New(), uuid.New(), uuid.New()

	load := func() (*Deal, error) {
		return Load(ctx, store, tenantID, dealID, func() *Deal { return &Deal{} })
	}

	// Create
	deal, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	value := 50000.0
	ev, err := deal.Create(CreateDealCommand{
		DealID: dealID, TenantID: tenantID, Title: "Big Enterprise",
		Value: &value, Stage: "lead", CreatedBy: actorID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Append(ctx, ev, 0); err != nil {
		t.Fatalf("append: %v", err)
	}

	deal, err = load()
	if err != nil {
		t.Fatalf("load after create: %v", err)
	}
	if deal.Version() != 1 || deal.Stage != "lead" {
		t.Fatalf("expected version=1 stage=lead, got version=%d stage=%s", deal.Version(), deal.Stage)
	}

	// Update stage to proposal with expected_version=1
	ev, err = deal.UpdateStage(UpdateDealStageCommand{NewStage: "proposal", UpdatedBy: actorID})
	if err != nil {
		t.Fatalf("update stage: %v", err)
	}
	if err := store.Append(ctx, ev, 1); err != nil {
		t.Fatalf("append: %v", err)
	}

	deal, _ = load()
	if deal.Version() != 2 || deal.Stage != "proposal" {
		t.Fatalf("expected version=2 stage=proposal, got version=%d stage=%s", deal.Version(), deal.Stage)
	}

	// Re-attempt with stale expected_version=1 -> ConcurrencyConflict(actual=2)
	ev, err = deal.UpdateStage(UpdateDealStageCommand{NewStage: "negotiation", UpdatedBy: actorID})
	if err != nil {
		t.Fatalf("update stage: %v", err)
	}
	err = store.Append(ctx, ev, 1)
	cerr, ok := err.(*concurrencyErr)
	if !ok || cerr.actual != 2 {
		t.Fatalf("expected concurrency conflict with actual=2, got %v", err)
	}

	// Apply correctly with expected_version=2, then close
	if err := store.Append(ctx, ev, 2); err != nil {
		t.Fatalf("append: %v", err)
	}
	deal, _ = load()

	finalValue := 60000.0
	ev, err = deal.Close(CloseDealCommand{Outcome: DealWon, FinalValue: &finalValue, ClosedBy: actorID})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Append(ctx, ev, 3); err != nil {
		t.Fatalf("append: %v", err)
	}

	deal, _ = load()
	if deal.Version() != 4 || !deal.IsClosed || deal.Outcome != DealWon || *deal.Value != 60000.0 {
		t.Fatalf("unexpected terminal state: %+v", deal)
	}

	// Any further command on a terminal deal is rejected.
	if _, err := deal.UpdateStage(UpdateDealStageCommand{NewStage: "lead", UpdatedBy: actorID}); err == nil {
		t.Fatal("expected DomainError(Terminal) on closed deal")
	}
}

// Property 1/2 (spec §8): fold(apply, initial, E) == load_aggregate(A), and
// version equals the count of applied events.
func TestProperty_FoldMatchesLoadAndVersionEqualsEventCount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tenantID, dealID, actorID := uuid.New(), uuid.New(), uuid.New()

	deal := &Deal{}
	ev, _ := deal.Create(CreateDealCommand{DealID: dealID, TenantID: tenantID, Title: "T", Stage: "lead", CreatedBy: actorID})
	_ = store.Append(ctx, ev, 0)

	stages := []string{"qualified", "proposal", "negotiation"}
	expectedVersion := int64(0)
	for i, stage := range stages {
		d, err := Load(ctx, store, tenantID, dealID, func() *Deal { return &Deal{} })
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		ev, err := d.UpdateStage(UpdateDealStageCommand{NewStage: stage, UpdatedBy: actorID})
		if err != nil {
			t.Fatalf("update stage %d: %v", i, err)
		}
		if err := store.Append(ctx, ev, d.Version()); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		expectedVersion = d.Version() + 1
	}

	final, err := Load(ctx, store, tenantID, dealID, func() *Deal { return &Deal{} })
	if err != nil {
		t.Fatalf("final load: %v", err)
	}
	if final.Version() != expectedVersion {
		t.Fatalf("expected version %d, got %d", expectedVersion, final.Version())
	}

	events, _ := store.GetEventStream(ctx, tenantID, dealID, 1, 0)
	if int64(len(events)) != final.Version() {
		t.Fatalf("expected version to equal applied event count %d, got %d", len(events), final.Version())
	}

	// Determinism: replaying the same events twice from the initial state
	// yields identical results.
	replay1 := &Deal{}
	replay2 := &Deal{}
	for _, ev := range events {
		if err := replay1.ApplyEvent(ev); err != nil {
			t.Fatalf("replay1: %v", err)
		}
		if err := replay2.ApplyEvent(ev); err != nil {
			t.Fatalf("replay2: %v", err)
		}
	}
	if replay1.Stage != replay2.Stage || replay1.Version() != replay2.Version() {
		t.Fatal("expected deterministic replay to produce identical state")
	}
}

// Property 9 (spec §8): no query returns a row whose tenant id differs from
// the bound tenant id. Loading a deal id under a tenant that does not own it
// must rehydrate a version-0 (missing) aggregate, never the owning tenant's
// state.
func TestLoad_CrossTenantAggregateIDIsInvisible(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	ownerTenant, otherTenant := uuid.New(), uuid.New()
	dealID, actorID := uuid.New(), uuid.New()

	deal := &Deal{}
	value := 50000.0
	ev, err := deal.Create(CreateDealCommand{
		DealID: dealID, TenantID: ownerTenant, Title: "Owner's Deal",
		Value: &value, Stage: "lead", CreatedBy: actorID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Append(ctx, ev, 0); err != nil {
		t.Fatalf("append: %v", err)
	}

	owned, err := Load(ctx, store, ownerTenant, dealID, func() *Deal { return &Deal{} })
	if err != nil {
		t.Fatalf("load as owner: %v", err)
	}
	if owned.Version() != 1 || owned.Stage != "lead" {
		t.Fatalf("expected owner to see version=1 stage=lead, got version=%d stage=%s", owned.Version(), owned.Stage)
	}

	foreign, err := Load(ctx, store, otherTenant, dealID, func() *Deal { return &Deal{} })
	if err != nil {
		t.Fatalf("load as other tenant: %v", err)
	}
	if foreign.Version() != 0 || foreign.Stage != "" {
		t.Fatalf("expected a non-owning tenant to see a missing aggregate, got version=%d stage=%s", foreign.Version(), foreign.Stage)
	}
}
