package nodeengine

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type fakeNotifier struct {
	lastChannel, lastTo, lastTemplate string
	sent                              int
}

func (f *fakeNotifier) Send(_ context.Context, _ uuid.UUID, channel, to, template string, _ map[string]any) (string, error) {
	f.lastChannel, f.lastTo, f.lastTemplate = channel, to, template
	f.sent++
	return "msg-1", nil
}

func TestNotifyHandler_SendsOnConfiguredChannel(t *testing.T) {
	notifier := &fakeNotifier{}
	run := NewContext(nil)
	node := Node{Config: map[string]any{"to": "owner@example.com", "template": "deal_won"}}

	out, err := NewEmailHandler(notifier).Execute(context.Background(), node, map[string]any{}, run)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.(string) != "msg-1" {
		t.Fatalf("expected message id, got %v", out)
	}
	if notifier.lastChannel != "email" || notifier.lastTo != "owner@example.com" || notifier.lastTemplate != "deal_won" {
		t.Fatalf("unexpected notifier call: %+v", notifier)
	}
}

func TestNotifyHandler_SkipsWhenFalse(t *testing.T) {
	notifier := &fakeNotifier{}
	run := NewContext(nil)
	node := Node{Config: map[string]any{"to": "owner@example.com"}}

	out, err := NewSMSHandler(notifier).Execute(context.Background(), node, map[string]any{"when": false}, run)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output when skipped, got %v", out)
	}
	if notifier.sent != 0 {
		t.Fatalf("expected no send when skipped, got %d sends", notifier.sent)
	}
}

type fakeWebhookClient struct {
	lastURL     string
	lastPayload map[string]any
}

func (f *fakeWebhookClient) Post(_ context.Context, url string, payload map[string]any) (int, error) {
	f.lastURL, f.lastPayload = url, payload
	return 202, nil
}

func TestWebhookHandler_PostsConfiguredURLAndPayload(t *testing.T) {
	client := &fakeWebhookClient{}
	run := NewContext(nil)
	node := Node{Config: map[string]any{"url": "https://hooks.example.com/deal"}}

	out, err := WebhookHandler{Client: client}.Execute(context.Background(), node, map[string]any{
		"payload": map[string]any{"id": "123"},
	}, run)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.(int) != 202 {
		t.Fatalf("expected status 202, got %v", out)
	}
	if client.lastURL != "https://hooks.example.com/deal" {
		t.Fatalf("expected configured url, got %s", client.lastURL)
	}
	if client.lastPayload["id"] != "123" {
		t.Fatalf("expected payload to pass through, got %+v", client.lastPayload)
	}
}

type fakeTaskStore struct {
	interactions, tasks, meetings []map[string]any
}

func (f *fakeTaskStore) CreateInteraction(_ context.Context, _ uuid.UUID, fields map[string]any) (uuid.UUID, error) {
	f.interactions = append(f.interactions, fields)
	return uuid.New(), nil
}

func (f *fakeTaskStore) CreateTask(_ context.Context, _ uuid.UUID, fields map[string]any) (uuid.UUID, error) {
	f.tasks = append(f.tasks, fields)
	return uuid.New(), nil
}

func (f *fakeTaskStore) ScheduleMeeting(_ context.Context, _ uuid.UUID, fields map[string]any) (uuid.UUID, error) {
	f.meetings = append(f.meetings, fields)
	return uuid.New(), nil
}

func TestCreateTaskHandler_MergesNodeConfigAndInputFields(t *testing.T) {
	store := &fakeTaskStore{}
	run := NewContext(nil)
	node := Node{Config: map[string]any{"priority": "high"}}

	_, err := CreateTaskHandler{Store: store}.Execute(context.Background(), node, map[string]any{
		"fields": map[string]any{"subject": "Follow up"},
	}, run)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(store.tasks) != 1 {
		t.Fatalf("expected one task created, got %d", len(store.tasks))
	}
	got := store.tasks[0]
	if got["priority"] != "high" || got["subject"] != "Follow up" {
		t.Fatalf("expected merged config+input fields, got %+v", got)
	}
}

func TestCreateInteractionAndScheduleMeetingHandlers_Skip(t *testing.T) {
	store := &fakeTaskStore{}
	run := NewContext(nil)
	node := Node{}

	if _, err := (CreateInteractionHandler{Store: store}).Execute(context.Background(), node, map[string]any{"when": false}, run); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := (ScheduleMeetingHandler{Store: store}).Execute(context.Background(), node, map[string]any{"when": false}, run); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(store.interactions) != 0 || len(store.meetings) != 0 {
		t.Fatalf("expected no side effects when skipped, got %+v / %+v", store.interactions, store.meetings)
	}
}

func TestDelayHandler_WaitsZeroSecondsImmediately(t *testing.T) {
	node := Node{Config: map[string]any{"seconds": 0}}
	out, err := DelayHandler{}.Execute(context.Background(), node, nil, NewContext(nil))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.(int) != 0 {
		t.Fatalf("expected 0 waited seconds, got %v", out)
	}
}

func TestDelayHandler_RespectsCancellation(t *testing.T) {
	node := Node{Config: map[string]any{"seconds": 30}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DelayHandler{}.Execute(ctx, node, nil, NewContext(nil))
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

type fakePaymentProcessor struct {
	lastAmount           int64
	lastCurrency, lastRef string
}

func (f *fakePaymentProcessor) Collect(_ context.Context, _ uuid.UUID, amountCents int64, currency, reference string) (string, error) {
	f.lastAmount, f.lastCurrency, f.lastRef = amountCents, currency, reference
	return "txn-1", nil
}

func TestCollectPaymentHandler_DefaultsCurrencyToUSD(t *testing.T) {
	processor := &fakePaymentProcessor{}
	run := NewContext(nil)
	node := Node{Config: map[string]any{"reference": "invoice-42"}}

	out, err := CollectPaymentHandler{Processor: processor}.Execute(context.Background(), node, map[string]any{
		"amount_cents": 2500.0,
	}, run)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.(string) != "txn-1" {
		t.Fatalf("expected transaction id, got %v", out)
	}
	if processor.lastAmount != 2500 || processor.lastCurrency != "USD" || processor.lastRef != "invoice-42" {
		t.Fatalf("unexpected processor call: %+v", processor)
	}
}

func TestMergedConfig_InputFieldsOverrideNodeConfig(t *testing.T) {
	node := Node{Config: map[string]any{"stage": "open", "priority": "low"}}
	out := mergedConfig(node, map[string]any{"fields": map[string]any{"stage": "closed_won"}})
	if out["stage"] != "closed_won" || out["priority"] != "low" {
		t.Fatalf("expected input fields to override config, config to fill gaps; got %+v", out)
	}
}
