// Package publisher is the Event Publisher (spec §4.J): it fans a
// committed fact — either an aggregate event from the Event Store or a
// CRUD-derived EntityEvent — out to every read-model Projector registered
// for the affected entity type, and to the Node Engine's trigger
// Dispatcher. Grounded on
// _examples/original_source/crates/core-node-engine/src/events.rs's
// EventPublisher, which stores the entity event and then lets the node
// engine react to it.
package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jirsi-platform/core/infrastructure/logging"
	"github.com/jirsi-platform/core/internal/apperrors"
	"github.com/jirsi-platform/core/internal/eventstore"
	"github.com/jirsi-platform/core/internal/nodeengine"
	"github.com/jirsi-platform/core/internal/projector"
)

// Publisher delivers committed facts at least once: persistence of the
// entity_events audit row happens before dispatch, and a dispatch failure
// for one projector or one graph never blocks delivery to the others
// (spec §4.J).
type Publisher struct {
	db         *sqlx.DB
	log        *logging.Logger
	projectors map[string][]*projector.Projector
	dispatcher *nodeengine.Dispatcher
}

// New builds a Publisher writing the entity-event audit trail to db,
// fanning events out to projectors (keyed by entity type) and to
// dispatcher for graph trigger matching.
func New(db *sql.DB, log *logging.Logger, dispatcher *nodeengine.Dispatcher) *Publisher {
	if log == nil {
		log = logging.New("publisher", "info", "json")
	}
	return &Publisher{
		db:         sqlx.NewDb(db, "postgres"),
		log:        log,
		projectors: make(map[string][]*projector.Projector),
		dispatcher: dispatcher,
	}
}

// RegisterProjector subscribes p to every event published for entityType.
func (p *Publisher) RegisterProjector(entityType string, proj *projector.Projector) {
	p.projectors[entityType] = append(p.projectors[entityType], proj)
}

// PublishAggregateEvent fans a committed Event Store event out to the read
// models registered for aggregateType. Called after the originating
// transaction commits, never inside it: projection failures must not be
// able to roll back a successful append (spec §4.J).
func (p *Publisher) PublishAggregateEvent(ctx context.Context, ev eventstore.Event) {
	for _, proj := range p.projectors[ev.AggregateType] {
		if err := proj.Project(ctx, ev); err != nil {
			p.log.WithError(err).WithField("aggregate_id", ev.AggregateID).
				WithField("kind", ev.Kind).Error("projection failed")
		}
	}
}

// PublishEntityEvent records ev in the audit trail and dispatches it to
// every enabled graph whose trigger matches. A dispatch failure is logged,
// not returned: the audit write (the durable fact) already succeeded.
func (p *Publisher) PublishEntityEvent(ctx context.Context, ev nodeengine.EntityEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if err := p.store(ctx, ev); err != nil {
		return err
	}

	if p.dispatcher == nil {
		return nil
	}
	logs, err := p.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		p.log.WithError(err).WithField("event_id", ev.ID).Warn("trigger dispatch failed")
		return nil
	}
	for _, l := range logs {
		if l.Status == nodeengine.StatusFailed {
			p.log.WithField("graph_id", l.GraphID).WithField("error", l.Error).Warn("graph run failed")
		}
	}
	return nil
}

func (p *Publisher) store(ctx context.Context, ev nodeengine.EntityEvent) error {
	oldValues, err := marshalOptional(ev.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalOptional(ev.NewValues)
	if err != nil {
		return err
	}
	changedFields, err := marshalOptional(ev.ChangedFields)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO entity_events (id, tenant_id, entity_type, record_id, event_kind, custom_name, triggered_by, old_values, new_values, changed_fields, stage, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.ID, ev.TenantID, ev.EntityType, ev.RecordID, string(ev.Kind), ev.CustomName, ev.TriggeredBy,
		oldValues, newValues, changedFields, ev.Stage, ev.OccurredAt)
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func marshalOptional(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "encode event field", 500, err)
	}
	return b, nil
}
