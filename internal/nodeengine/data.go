package nodeengine

import (
	"context"

	"github.com/google/uuid"
)

// RecordFilter is a simple equality filter set applied by DataQueryRecord,
// resolved from Config["filters"] (map[string]any).
type RecordFilter map[string]any

// RecordStore is the mediated boundary data nodes use to read and write
// read-model rows, the Node Engine's counterpart to the Plugin Sandbox's
// EntityStore (internal/sandbox).
type RecordStore interface {
	Get(ctx context.Context, tenantID uuid.UUID, entityType string, id uuid.UUID) (map[string]any, error)
	Query(ctx context.Context, tenantID uuid.UUID, entityType string, filters RecordFilter, limit int) ([]map[string]any, error)
	Create(ctx context.Context, tenantID uuid.UUID, entityType string, fields map[string]any) (uuid.UUID, error)
	Update(ctx context.Context, tenantID uuid.UUID, entityType string, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, tenantID uuid.UUID, entityType string, id uuid.UUID) error
}

func configTenant(node Node, run *Context) uuid.UUID {
	if trigger, ok := run.Values[TriggerKey].(map[string]any); ok {
		if raw, ok := trigger["tenant_id"]; ok {
			if id, ok := raw.(uuid.UUID); ok {
				return id
			}
		}
	}
	return uuid.Nil
}

func configEntityID(inputs map[string]any, node Node) uuid.UUID {
	if raw, ok := inputs["id"]; ok {
		if id, ok := raw.(uuid.UUID); ok {
			return id
		}
		if s, ok := raw.(string); ok {
			if id, err := uuid.Parse(s); err == nil {
				return id
			}
		}
	}
	if s, ok := node.Config["id"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	return uuid.Nil
}

// DataGetRecordHandler fetches a single record by id.
type DataGetRecordHandler struct{ Store RecordStore }

func (DataGetRecordHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "id", Type: PortString}},
		Outputs: []Port{{Name: "record", Type: PortRecord}},
	}
}

func (h DataGetRecordHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	entityType, _ := node.Config["entity_type"].(string)
	id := configEntityID(inputs, node)
	return h.Store.Get(ctx, configTenant(node, run), entityType, id)
}

// DataQueryRecordHandler runs a filtered read-model lookup.
type DataQueryRecordHandler struct{ Store RecordStore }

func (DataQueryRecordHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "filters", Type: PortObject}},
		Outputs: []Port{{Name: "records", Type: PortArray}},
	}
}

func (h DataQueryRecordHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	entityType, _ := node.Config["entity_type"].(string)
	filters, _ := inputs["filters"].(map[string]any)
	if filters == nil {
		filters, _ = node.Config["filters"].(map[string]any)
	}
	limit := 100
	if l, ok := node.Config["limit"].(int); ok && l > 0 {
		limit = l
	}
	return h.Store.Query(ctx, configTenant(node, run), entityType, RecordFilter(filters), limit)
}

// DataSetFieldHandler writes a single field onto the context value wired
// into its "record" input, without persisting — useful for shaping data
// before a DataCreateRecord/DataUpdateRecord node downstream.
type DataSetFieldHandler struct{}

func (DataSetFieldHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "record", Type: PortObject}},
		Outputs: []Port{{Name: "record", Type: PortObject}},
	}
}

func (DataSetFieldHandler) Execute(_ context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	field, _ := node.Config["field"].(string)
	value := node.Config["value"]

	record, _ := inputs["record"].(map[string]any)
	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	if field != "" {
		out[field] = value
	}
	return out, nil
}

// DataCreateRecordHandler persists a new record and outputs its assigned id.
type DataCreateRecordHandler struct{ Store RecordStore }

func (DataCreateRecordHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "fields", Type: PortObject}},
		Outputs: []Port{{Name: "id", Type: PortString}},
	}
}

func (h DataCreateRecordHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	entityType, _ := node.Config["entity_type"].(string)
	fields, _ := inputs["fields"].(map[string]any)
	return h.Store.Create(ctx, configTenant(node, run), entityType, fields)
}

// DataUpdateRecordHandler merges fields into an existing record.
type DataUpdateRecordHandler struct{ Store RecordStore }

func (DataUpdateRecordHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "id", Type: PortString}, {Name: "fields", Type: PortObject}},
		Outputs: []Port{{Name: "ok", Type: PortBoolean}},
	}
}

func (h DataUpdateRecordHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	entityType, _ := node.Config["entity_type"].(string)
	fields, _ := inputs["fields"].(map[string]any)
	id := configEntityID(inputs, node)
	if err := h.Store.Update(ctx, configTenant(node, run), entityType, id, fields); err != nil {
		return nil, err
	}
	return true, nil
}

// DataDeleteRecordHandler removes a record.
type DataDeleteRecordHandler struct{ Store RecordStore }

func (DataDeleteRecordHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "id", Type: PortString}},
		Outputs: []Port{{Name: "ok", Type: PortBoolean}},
	}
}

func (h DataDeleteRecordHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	entityType, _ := node.Config["entity_type"].(string)
	id := configEntityID(inputs, node)
	if err := h.Store.Delete(ctx, configTenant(node, run), entityType, id); err != nil {
		return nil, err
	}
	return true, nil
}
