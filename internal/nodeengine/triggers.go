package nodeengine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Built-in trigger node type tags (spec §4.H "Built-in node families").
const (
	NodeTriggerOnCreate      = "trigger.on_create"
	NodeTriggerOnUpdate      = "trigger.on_update"
	NodeTriggerOnDelete      = "trigger.on_delete"
	NodeTriggerOnFieldChange = "trigger.on_field_change"
	NodeTriggerOnStateChange = "trigger.on_state_change"
	NodeTriggerScheduled     = "trigger.scheduled"
	NodeTriggerManual        = "trigger.manual"
)

// EntityEventKind discriminates a CRUD-derived domain event, grounded on
// _examples/original_source/crates/core-node-engine/src/events.rs's
// EventType.
type EntityEventKind string

const (
	EntityCreated EntityEventKind = "create"
	EntityUpdated EntityEventKind = "update"
	EntityDeleted EntityEventKind = "delete"
	EntityCustom  EntityEventKind = "custom"
)

// EntityEvent is a fact about one entity record, the unit the Event
// Publisher (spec §4.J) feeds into this engine's trigger matcher.
type EntityEvent struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EntityType    string
	RecordID      uuid.UUID
	Kind          EntityEventKind
	CustomName    string
	TriggeredBy   uuid.NullUUID
	OldValues     map[string]any
	NewValues     map[string]any
	ChangedFields []string
	// Stage is set when the update represents a state/stage transition,
	// consulted by OnStateChange triggers.
	Stage     string
	OccurredAt time.Time
}

// ToTriggerData converts the event into the `$trigger` payload a matching
// graph run is seeded with.
func (e EntityEvent) ToTriggerData() map[string]any {
	return map[string]any{
		"event_id":       e.ID,
		"entity_type":    e.EntityType,
		"record_id":      e.RecordID,
		"event_kind":     string(e.Kind),
		"custom_name":    e.CustomName,
		"triggered_by":   e.TriggeredBy,
		"old_values":     e.OldValues,
		"new_values":     e.NewValues,
		"changed_fields": e.ChangedFields,
		"stage":          e.Stage,
		"occurred_at":    e.OccurredAt,
	}
}

func containsString(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}

// findTrigger returns the graph's trigger node: the node with no inbound
// edges whose type is one of the trigger kinds.
func findTrigger(g Graph) (Node, bool) {
	hasIncoming := make(map[uuid.UUID]bool, len(g.Nodes))
	for _, e := range g.Edges {
		hasIncoming[e.TargetNode] = true
	}
	for _, n := range g.Nodes {
		if hasIncoming[n.ID] {
			continue
		}
		switch n.Type {
		case NodeTriggerOnCreate, NodeTriggerOnUpdate, NodeTriggerOnDelete,
			NodeTriggerOnFieldChange, NodeTriggerOnStateChange,
			NodeTriggerScheduled, NodeTriggerManual:
			return n, true
		}
	}
	return Node{}, false
}

// matchesEvent reports whether trigger (the graph's initial node) matches
// ev, per the per-trigger-kind rules of spec §4.H.
func matchesEvent(trigger Node, ev EntityEvent) bool {
	if entityType, ok := trigger.Config["entity_type"].(string); ok && entityType != "" {
		if entityType != ev.EntityType {
			return false
		}
	}

	switch trigger.Type {
	case NodeTriggerOnCreate:
		return ev.Kind == EntityCreated
	case NodeTriggerOnUpdate:
		return ev.Kind == EntityUpdated
	case NodeTriggerOnDelete:
		return ev.Kind == EntityDeleted
	case NodeTriggerOnFieldChange:
		field, _ := trigger.Config["field"].(string)
		return ev.Kind == EntityUpdated && field != "" && containsString(ev.ChangedFields, field)
	case NodeTriggerOnStateChange:
		stage, _ := trigger.Config["stage"].(string)
		return stage != "" && stage == ev.Stage
	default:
		return false
	}
}

// GraphStore loads the enabled graphs a Dispatcher matches events and
// scheduled ticks against.
type GraphStore interface {
	EnabledGraphs(ctx context.Context, tenantID uuid.UUID) ([]Graph, error)
}

// ExecutionLogStore persists runs produced by a Dispatcher.
type ExecutionLogStore interface {
	SaveExecutionLog(ctx context.Context, log ExecutionLog) error
}

// Dispatcher bridges the Event Publisher's fan-out into graph runs: for
// every enabled graph whose trigger node matches an incoming EntityEvent,
// it launches a run seeded with `$trigger = event.to_trigger_data()` (spec
// §4.H "Trigger matching").
type Dispatcher struct {
	graphs    GraphStore
	logs      ExecutionLogStore
	executor  *Executor
}

// NewDispatcher builds a Dispatcher wiring graphs, logs, and executor
// together.
func NewDispatcher(graphs GraphStore, logs ExecutionLogStore, executor *Executor) *Dispatcher {
	return &Dispatcher{graphs: graphs, logs: logs, executor: executor}
}

// Dispatch finds every enabled graph matching ev and runs it. A run
// failure for one graph does not prevent other matching graphs from
// running; all resulting logs (including failed ones) are returned.
// Delivery is at-least-once (spec §4.J); Execute's idempotence is bounded
// by the idempotence of the node actions a given graph invokes.
func (d *Dispatcher) Dispatch(ctx context.Context, ev EntityEvent) ([]ExecutionLog, error) {
	graphs, err := d.graphs.EnabledGraphs(ctx, ev.TenantID)
	if err != nil {
		return nil, err
	}

	var logs []ExecutionLog
	for _, g := range graphs {
		trigger, ok := findTrigger(g)
		if !ok || !matchesEvent(trigger, ev) {
			continue
		}
		log, runErr := d.executor.Execute(ctx, g, ev.ID.String(), ev.ToTriggerData())
		if log == nil {
			continue
		}
		logs = append(logs, *log)
		if d.logs != nil {
			_ = d.logs.SaveExecutionLog(ctx, *log)
		}
		_ = runErr // run failures are recorded in the log, not propagated to the caller
	}
	return logs, nil
}

// DispatchManual launches graph (already loaded by the caller) outside of
// any entity event, for the Manual trigger kind (spec §4.H).
func (d *Dispatcher) DispatchManual(ctx context.Context, g Graph, payload any) (*ExecutionLog, error) {
	log, err := d.executor.Execute(ctx, g, "manual", payload)
	if log != nil && d.logs != nil {
		_ = d.logs.SaveExecutionLog(ctx, *log)
	}
	return log, err
}
