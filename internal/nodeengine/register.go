package nodeengine

import (
	"context"
	"net/http"

	"github.com/jirsi-platform/core/internal/sandbox"
)

// triggerHandler is a pass-through handler for trigger.* node types: the
// executor always starts its topological order at the trigger node, so its
// only job is to surface the run's $trigger payload as its output for
// anything wired downstream.
type triggerHandler struct{ ports Descriptor }

func (t triggerHandler) Describe() Descriptor { return t.ports }

func (triggerHandler) Execute(_ context.Context, _ Node, _ map[string]any, run *Context) (any, error) {
	return run.Values[TriggerKey], nil
}

func registerTriggers(r *Registry) {
	out := Descriptor{Outputs: []Port{{Name: "trigger", Type: PortObject}}}
	for _, t := range []string{
		NodeTriggerOnCreate, NodeTriggerOnUpdate, NodeTriggerOnDelete,
		NodeTriggerOnFieldChange, NodeTriggerOnStateChange,
		NodeTriggerScheduled, NodeTriggerManual,
	} {
		r.Register(t, triggerHandler{ports: out})
	}
}

// BuiltinDeps collects every external dependency the built-in node
// handlers need. Any field left nil simply means graphs using that node
// family cannot be registered; callers wire only what their deployment
// supports (e.g. a worker with no AI provider configured skips AI nodes).
type BuiltinDeps struct {
	Records    RecordStore
	Notifier   Notifier
	Webhooks   WebhookClient
	Tasks      TaskStore
	Payments   PaymentProcessor
	Assignment *AssignmentService
	AI         AIProvider
	SubGraphs  SubGraphStore

	ScriptEngine  *sandbox.Engine
	ScriptEntities sandbox.EntityStore
	ScriptSecrets ScriptSecretsResolver
	HTTPClient    *http.Client
	Allowlist     *sandbox.Allowlist
}

// RegisterBuiltins wires every built-in node family (spec §4.H) into
// registry, skipping a family entirely when its dependency is nil.
func RegisterBuiltins(registry *Registry, deps BuiltinDeps) {
	registerTriggers(registry)

	registry.Register("condition.if", ConditionIfHandler{})
	registry.Register("condition.switch", ConditionSwitchHandler{})
	registry.Register("condition.filter", ConditionFilterHandler{})

	if deps.Records != nil {
		registry.Register("data.get_record", DataGetRecordHandler{Store: deps.Records})
		registry.Register("data.query_record", DataQueryRecordHandler{Store: deps.Records})
		registry.Register("data.create_record", DataCreateRecordHandler{Store: deps.Records})
		registry.Register("data.update_record", DataUpdateRecordHandler{Store: deps.Records})
		registry.Register("data.delete_record", DataDeleteRecordHandler{Store: deps.Records})
	}
	registry.Register("data.set_field", DataSetFieldHandler{})

	if deps.Notifier != nil {
		registry.Register(NodeActionEmail, NewEmailHandler(deps.Notifier))
		registry.Register(NodeActionSMS, NewSMSHandler(deps.Notifier))
		registry.Register(NodeActionWhatsApp, NewWhatsAppHandler(deps.Notifier))
	}
	if deps.Webhooks != nil {
		registry.Register(NodeActionWebhook, WebhookHandler{Client: deps.Webhooks})
	}
	if deps.Tasks != nil {
		registry.Register(NodeActionCreateInteract, CreateInteractionHandler{Store: deps.Tasks})
		registry.Register(NodeActionCreateTask, CreateTaskHandler{Store: deps.Tasks})
		registry.Register(NodeActionScheduleMeeting, ScheduleMeetingHandler{Store: deps.Tasks})
	}
	registry.Register(NodeActionDelay, DelayHandler{})
	if deps.Payments != nil {
		registry.Register(NodeActionCollectPayment, CollectPaymentHandler{Processor: deps.Payments})
	}
	if deps.Assignment != nil {
		registry.Register(NodeActionAssignAgent, AssignAgentHandler{Assignment: deps.Assignment})
	}

	if deps.AI != nil {
		registry.Register(NodeAISummarize, AISummarizeHandler{Provider: deps.AI})
		registry.Register(NodeAIClassify, AIClassifyHandler{Provider: deps.AI})
		registry.Register(NodeAIExtract, AIExtractHandler{Provider: deps.AI})
		registry.Register(NodeAIGenerate, AIGenerateHandler{Provider: deps.AI})
		registry.Register(NodeAIRAG, AIRAGHandler{Provider: deps.AI})
	}

	registry.Register(NodeLogicSmartMatch, SmartMatchHandler{})
	registry.Register(NodeLogicGeoFence, GeoFenceHandler{})

	registry.Register(NodeFlowMerge, MergeHandler{})
	registry.Register(NodeFlowSplit, SplitHandler{})
	registry.Register(NodeFlowLoop, LoopHandler{Registry: registry})
	if deps.SubGraphs != nil {
		registry.Register(NodeFlowSubGraph, SubGraphHandler{Store: deps.SubGraphs, Executor: NewExecutor(registry)})
	}

	if deps.ScriptEngine != nil {
		registry.Register(NodeScript, ScriptNodeHandler{
			Engine:     deps.ScriptEngine,
			Entities:   deps.ScriptEntities,
			Secrets:    deps.ScriptSecrets,
			HTTPClient: deps.HTTPClient,
			Allowlist:  deps.Allowlist,
		})
	}
}
