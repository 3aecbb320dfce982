package aggregate

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/eventstore"
)

// DealAggregateType is the aggregate_type stamped on every Deal event.
const DealAggregateType = "deal"

// Deal event kinds (spec §8's "Deal lifecycle" scenario; grounded on
// _examples/original_source/crates/backend-api/src/cqrs/aggregates.rs).
const (
	DealEventCreated          = "deal.created"
	DealEventStageUpdated     = "deal.stage_updated"
	DealEventValueAdded       = "deal.value_added"
	DealEventContactAssigned  = "deal.contact_assigned"
	DealEventPropertyAssigned = "deal.property_assigned"
	DealEventClosed           = "deal.closed"
)

// DealOutcome is the terminal disposition of a closed deal.
type DealOutcome string

const (
	DealWon  DealOutcome = "won"
	DealLost DealOutcome = "lost"
)

// Deal is the write-side state of the deal aggregate, the reference
// Aggregate Model instance for this platform.
type Deal struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	version    int64
	Title      string
	Value      *float64
	Stage      string
	ContactID  *uuid.UUID
	PropertyID *uuid.UUID
	IsClosed   bool
	Outcome    DealOutcome
	CreatedBy  uuid.UUID
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
}

func (d *Deal) Version() int64 { return d.version }

// --- Commands ---

type CreateDealCommand struct {
	DealID     uuid.UUID
	TenantID   uuid.UUID
	Title      string
	Value      *float64
	Stage      string
	ContactID  *uuid.UUID
	PropertyID *uuid.UUID
	CreatedBy  uuid.UUID
}

type UpdateDealStageCommand struct {
	NewStage  string
	UpdatedBy uuid.UUID
	Reason    string
}

type AddValueCommand struct {
	Value     float64
	UpdatedBy uuid.UUID
}

type AssignContactCommand struct {
	ContactID uuid.UUID
	UpdatedBy uuid.UUID
}

type AssignPropertyCommand struct {
	PropertyID uuid.UUID
	UpdatedBy  uuid.UUID
}

type CloseDealCommand struct {
	Outcome    DealOutcome
	FinalValue *float64
	ClosedBy   uuid.UUID
	Notes      string
}

// --- Event payloads ---

type dealCreatedPayload struct {
	Title      string     `json:"title"`
	Value      *float64   `json:"value,omitempty"`
	Stage      string     `json:"stage"`
	ContactID  *uuid.UUID `json:"contact_id,omitempty"`
	PropertyID *uuid.UUID `json:"property_id,omitempty"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

type dealStageUpdatedPayload struct {
	OldStage  string    `json:"old_stage"`
	NewStage  string    `json:"new_stage"`
	UpdatedBy uuid.UUID `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
	Reason    string    `json:"reason,omitempty"`
}

type dealValueAddedPayload struct {
	OldValue  *float64  `json:"old_value,omitempty"`
	NewValue  float64   `json:"new_value"`
	UpdatedBy uuid.UUID `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type dealContactAssignedPayload struct {
	ContactID         uuid.UUID  `json:"contact_id"`
	PreviousContactID *uuid.UUID `json:"previous_contact_id,omitempty"`
	UpdatedBy         uuid.UUID  `json:"updated_by"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type dealPropertyAssignedPayload struct {
	PropertyID         uuid.UUID  `json:"property_id"`
	PreviousPropertyID *uuid.UUID `json:"previous_property_id,omitempty"`
	UpdatedBy          uuid.UUID  `json:"updated_by"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type dealClosedPayload struct {
	Outcome    DealOutcome `json:"outcome"`
	FinalValue *float64    `json:"final_value,omitempty"`
	ClosedBy   uuid.UUID   `json:"closed_by"`
	ClosedAt   time.Time   `json:"closed_at"`
	Notes      string      `json:"notes,omitempty"`
}

// --- Command handlers (pure, side-effect-free validation) ---

func (d *Deal) Create(cmd CreateDealCommand) (eventstore.Event, error) {
	if strings.TrimSpace(cmd.Title) == "" {
		return eventstore.Event{}, InvalidInput("title")
	}
	if cmd.Value != nil && *cmd.Value < 0 {
		return eventstore.Event{}, InvalidInput("value")
	}
	payload := dealCreatedPayload{
		Title: cmd.Title, Value: cmd.Value, Stage: cmd.Stage,
		ContactID: cmd.ContactID, PropertyID: cmd.PropertyID,
		CreatedBy: cmd.CreatedBy, CreatedAt: time.Now().UTC(),
	}
	return eventstore.NewEvent(cmd.TenantID, cmd.DealID, DealAggregateType, DealEventCreated, payload, cmd.CreatedBy)
}

func (d *Deal) UpdateStage(cmd UpdateDealStageCommand) (eventstore.Event, error) {
	if d.IsClosed {
		return eventstore.Event{}, Terminal()
	}
	if strings.TrimSpace(cmd.NewStage) == "" {
		return eventstore.Event{}, InvalidInput("new_stage")
	}
	if d.Stage == cmd.NewStage {
		return eventstore.Event{}, PreconditionFailed("stage_unchanged")
	}
	payload := dealStageUpdatedPayload{
		OldStage: d.Stage, NewStage: cmd.NewStage,
		UpdatedBy: cmd.UpdatedBy, UpdatedAt: time.Now().UTC(), Reason: cmd.Reason,
	}
	return eventstore.NewEvent(d.TenantID, d.ID, DealAggregateType, DealEventStageUpdated, payload, cmd.UpdatedBy)
}

func (d *Deal) AddValue(cmd AddValueCommand) (eventstore.Event, error) {
	if d.IsClosed {
		return eventstore.Event{}, Terminal()
	}
	if cmd.Value < 0 {
		return eventstore.Event{}, InvalidInput("value")
	}
	payload := dealValueAddedPayload{
		OldValue: d.Value, NewValue: cmd.Value,
		UpdatedBy: cmd.UpdatedBy, UpdatedAt: time.Now().UTC(),
	}
	return eventstore.NewEvent(d.TenantID, d.ID, DealAggregateType, DealEventValueAdded, payload, cmd.UpdatedBy)
}

func (d *Deal) AssignContact(cmd AssignContactCommand) (eventstore.Event, error) {
	if d.IsClosed {
		return eventstore.Event{}, Terminal()
	}
	payload := dealContactAssignedPayload{
		ContactID: cmd.ContactID, PreviousContactID: d.ContactID,
		UpdatedBy: cmd.UpdatedBy, UpdatedAt: time.Now().UTC(),
	}
	return eventstore.NewEvent(d.TenantID, d.ID, DealAggregateType, DealEventContactAssigned, payload, cmd.UpdatedBy)
}

func (d *Deal) AssignProperty(cmd AssignPropertyCommand) (eventstore.Event, error) {
	if d.IsClosed {
		return eventstore.Event{}, Terminal()
	}
	payload := dealPropertyAssignedPayload{
		PropertyID: cmd.PropertyID, PreviousPropertyID: d.PropertyID,
		UpdatedBy: cmd.UpdatedBy, UpdatedAt: time.Now().UTC(),
	}
	return eventstore.NewEvent(d.TenantID, d.ID, DealAggregateType, DealEventPropertyAssigned, payload, cmd.UpdatedBy)
}

func (d *Deal) Close(cmd CloseDealCommand) (eventstore.Event, error) {
	if d.IsClosed {
		return eventstore.Event{}, Terminal()
	}
	finalValue := cmd.FinalValue
	if finalValue == nil {
		finalValue = d.Value
	}
	payload := dealClosedPayload{
		Outcome: cmd.Outcome, FinalValue: finalValue,
		ClosedBy: cmd.ClosedBy, ClosedAt: time.Now().UTC(), Notes: cmd.Notes,
	}
	return eventstore.NewEvent(d.TenantID, d.ID, DealAggregateType, DealEventClosed, payload, cmd.ClosedBy)
}

// ApplyEvent folds one event into the aggregate's state. It is total and
// deterministic: replaying the same events twice from the zero value yields
// identical state, and version always increments by exactly 1.
func (d *Deal) ApplyEvent(ev eventstore.Event) error {
	switch ev.Kind {
	case DealEventCreated:
		var p dealCreatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		d.ID = ev.AggregateID
		d.TenantID = ev.TenantID
		d.Title = p.Title
		d.Value = p.Value
		d.Stage = p.Stage
		d.ContactID = p.ContactID
		d.PropertyID = p.PropertyID
		d.CreatedBy = p.CreatedBy
		createdAt := p.CreatedAt
		d.CreatedAt = &createdAt
		d.UpdatedAt = &createdAt

	case DealEventStageUpdated:
		var p dealStageUpdatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		d.Stage = p.NewStage
		d.UpdatedAt = &p.UpdatedAt

	case DealEventValueAdded:
		var p dealValueAddedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		v := p.NewValue
		d.Value = &v
		d.UpdatedAt = &p.UpdatedAt

	case DealEventContactAssigned:
		var p dealContactAssignedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		id := p.ContactID
		d.ContactID = &id
		d.UpdatedAt = &p.UpdatedAt

	case DealEventPropertyAssigned:
		var p dealPropertyAssignedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		id := p.PropertyID
		d.PropertyID = &id
		d.UpdatedAt = &p.UpdatedAt

	case DealEventClosed:
		var p dealClosedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		d.IsClosed = true
		d.Outcome = p.Outcome
		if p.FinalValue != nil {
			d.Value = p.FinalValue
		}
		d.UpdatedAt = &p.ClosedAt
	}

	d.version++
	return nil
}
