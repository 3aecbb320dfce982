package nodeengine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Built-in action node type tags (spec §4.H "Built-in node families").
const (
	NodeActionEmail           = "action.email"
	NodeActionSMS             = "action.sms"
	NodeActionWhatsApp        = "action.whatsapp"
	NodeActionWebhook         = "action.webhook"
	NodeActionCreateInteract  = "action.create_interaction"
	NodeActionCreateTask      = "action.create_task"
	NodeActionScheduleMeeting = "action.schedule_meeting"
	NodeActionDelay           = "action.delay"
	NodeActionCollectPayment  = "action.collect_payment"
	NodeActionAssignAgent     = "action.assign_agent"
)

// skip reports whether a node's "when" input port is wired and resolved to
// false, in which case the node performs no side effect and returns nil —
// the branching mechanism condition nodes document (see condition.go).
func skip(inputs map[string]any) bool {
	when, wired := inputs["when"]
	if !wired {
		return false
	}
	b, ok := when.(bool)
	return ok && !b
}

// Notifier sends outbound messages over a single channel (email, SMS,
// WhatsApp). Implementations are expected to go through the Job Queue
// rather than call the provider synchronously from within a graph run.
type Notifier interface {
	Send(ctx context.Context, tenantID uuid.UUID, channel, to, template string, data map[string]any) (string, error)
}

// WebhookClient posts a JSON payload to an allow-listed external URL.
type WebhookClient interface {
	Post(ctx context.Context, url string, payload map[string]any) (int, error)
}

// TaskStore persists interactions, tasks, and meetings created by action
// nodes into the read model.
type TaskStore interface {
	CreateInteraction(ctx context.Context, tenantID uuid.UUID, fields map[string]any) (uuid.UUID, error)
	CreateTask(ctx context.Context, tenantID uuid.UUID, fields map[string]any) (uuid.UUID, error)
	ScheduleMeeting(ctx context.Context, tenantID uuid.UUID, fields map[string]any) (uuid.UUID, error)
}

// PaymentProcessor collects a one-off payment against an external gateway.
type PaymentProcessor interface {
	Collect(ctx context.Context, tenantID uuid.UUID, amountCents int64, currency, reference string) (string, error)
}

// notifyHandler backs action.email/action.sms/action.whatsapp: same shape,
// different channel tag.
type notifyHandler struct {
	channel  string
	notifier Notifier
}

func (notifyHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}, {Name: "to", Type: PortString}, {Name: "data", Type: PortObject}},
		Outputs: []Port{{Name: "message_id", Type: PortString}},
	}
}

func (h notifyHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	to, _ := inputs["to"].(string)
	if to == "" {
		to, _ = node.Config["to"].(string)
	}
	template, _ := node.Config["template"].(string)
	data, _ := inputs["data"].(map[string]any)
	return h.notifier.Send(ctx, configTenant(node, run), h.channel, to, template, data)
}

// NewEmailHandler builds the action.email handler.
func NewEmailHandler(n Notifier) Handler { return notifyHandler{channel: "email", notifier: n} }

// NewSMSHandler builds the action.sms handler.
func NewSMSHandler(n Notifier) Handler { return notifyHandler{channel: "sms", notifier: n} }

// NewWhatsAppHandler builds the action.whatsapp handler.
func NewWhatsAppHandler(n Notifier) Handler { return notifyHandler{channel: "whatsapp", notifier: n} }

// WebhookHandler posts a configurable payload to an allow-listed URL.
type WebhookHandler struct{ Client WebhookClient }

func (WebhookHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}, {Name: "payload", Type: PortObject}},
		Outputs: []Port{{Name: "status_code", Type: PortNumber}},
	}
}

func (h WebhookHandler) Execute(ctx context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	url, _ := node.Config["url"].(string)
	payload, _ := inputs["payload"].(map[string]any)
	if payload == nil {
		payload, _ = node.Config["payload"].(map[string]any)
	}
	return h.Client.Post(ctx, url, payload)
}

// CreateInteractionHandler logs a CRM interaction (call, email, note).
type CreateInteractionHandler struct{ Store TaskStore }

func (CreateInteractionHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}, {Name: "fields", Type: PortObject}},
		Outputs: []Port{{Name: "id", Type: PortString}},
	}
}

func (h CreateInteractionHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	fields := mergedConfig(node, inputs)
	return h.Store.CreateInteraction(ctx, configTenant(node, run), fields)
}

// CreateTaskHandler schedules a follow-up task for an agent.
type CreateTaskHandler struct{ Store TaskStore }

func (CreateTaskHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}, {Name: "fields", Type: PortObject}},
		Outputs: []Port{{Name: "id", Type: PortString}},
	}
}

func (h CreateTaskHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	fields := mergedConfig(node, inputs)
	return h.Store.CreateTask(ctx, configTenant(node, run), fields)
}

// ScheduleMeetingHandler books a calendar meeting.
type ScheduleMeetingHandler struct{ Store TaskStore }

func (ScheduleMeetingHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}, {Name: "fields", Type: PortObject}},
		Outputs: []Port{{Name: "id", Type: PortString}},
	}
}

func (h ScheduleMeetingHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	fields := mergedConfig(node, inputs)
	return h.Store.ScheduleMeeting(ctx, configTenant(node, run), fields)
}

// DelayHandler pauses the run for Config["seconds"], bounded by the
// caller's context so a cancelled run does not block a worker forever.
type DelayHandler struct{}

func (DelayHandler) Describe() Descriptor {
	return Descriptor{
		Outputs: []Port{{Name: "waited_seconds", Type: PortNumber}},
	}
}

func (DelayHandler) Execute(ctx context.Context, node Node, _ map[string]any, _ *Context) (any, error) {
	seconds, _ := node.Config["seconds"].(int)
	if seconds <= 0 {
		return 0, nil
	}
	select {
	case <-time.After(time.Duration(seconds) * time.Second):
		return seconds, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CollectPaymentHandler charges a configured amount through PaymentProcessor.
type CollectPaymentHandler struct{ Processor PaymentProcessor }

func (CollectPaymentHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}, {Name: "amount_cents", Type: PortNumber}},
		Outputs: []Port{{Name: "transaction_id", Type: PortString}},
	}
}

func (h CollectPaymentHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	amount, _ := toFloat(inputs["amount_cents"])
	if amount == 0 {
		if cfg, ok := node.Config["amount_cents"].(int); ok {
			amount = float64(cfg)
		}
	}
	currency, _ := node.Config["currency"].(string)
	if currency == "" {
		currency = "USD"
	}
	reference, _ := node.Config["reference"].(string)
	return h.Processor.Collect(ctx, configTenant(node, run), int64(amount), currency, reference)
}

// AssignAgentHandler books the next available agent via AssignmentService
// per Config["strategy"] (spec §4.H, grounded on strategies.rs).
type AssignAgentHandler struct{ Assignment *AssignmentService }

func (AssignAgentHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "when", Type: PortBoolean}},
		Outputs: []Port{{Name: "agent_id", Type: PortString}, {Name: "assigned", Type: PortBoolean}},
	}
}

func (h AssignAgentHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	if skip(inputs) {
		return nil, nil
	}
	strategy, _ := node.Config["strategy"].(string)
	agentID, assigned, err := h.Assignment.FindAgent(ctx, configTenant(node, run), AssignmentStrategy(strategy))
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent_id": agentID, "assigned": assigned}, nil
}

func mergedConfig(node Node, inputs map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range node.Config {
		out[k] = v
	}
	if fields, ok := inputs["fields"].(map[string]any); ok {
		for k, v := range fields {
			out[k] = v
		}
	}
	return out
}
