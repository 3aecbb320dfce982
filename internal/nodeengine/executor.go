package nodeengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/apperrors"
	"github.com/jirsi-platform/core/internal/metrics"
)

// ExecutionStatus is the lifecycle state of one graph run (spec §3
// Execution Log).
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// TraceEntry is one per-node line of a run's append-only trace.
type TraceEntry struct {
	NodeID uuid.UUID `json:"node_id"`
	Label  string    `json:"label"`
	Status string    `json:"status"`
	Output any       `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// ExecutionLog is the persisted record of one graph run.
type ExecutionLog struct {
	ID          uuid.UUID
	GraphID     uuid.UUID
	TenantID    uuid.UUID
	TriggerRef  string
	Status      ExecutionStatus
	Trace       []TraceEntry
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Context is the per-run mutable state: node outputs keyed by node id, plus
// the sentinel "$trigger" holding the data that launched the run. Contexts
// are run-local; nothing is shared across concurrent runs (spec §5).
type Context struct {
	Values map[string]any
}

// TriggerKey is the context key holding the data that launched the run.
const TriggerKey = "$trigger"

// NewContext seeds a run context with the trigger payload.
func NewContext(trigger any) *Context {
	return &Context{Values: map[string]any{TriggerKey: trigger}}
}

// Executor runs graphs against a Registry of node handlers.
type Executor struct {
	registry *Registry
	metrics  *metrics.Metrics
}

// NewExecutor builds an Executor backed by registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// WithMetrics attaches a Metrics sink that Execute reports run counts,
// durations, and the active-run gauge against. Passing nil disables
// reporting.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// Execute topologically sorts graph and runs each enabled node in order,
// gathering inputs from inbound edges' source outputs, invoking the
// registered handler, and recording a trace entry. On error or
// cancellation the run halts immediately with a trace entry for every node
// seen so far (spec §4.H, §5).
func (e *Executor) Execute(ctx context.Context, graph Graph, triggerRef string, triggerPayload any) (*ExecutionLog, error) {
	return e.executeWithContext(ctx, graph, triggerRef, NewContext(triggerPayload))
}

// executeWithContext runs graph against a caller-supplied run context,
// letting SubGraphHandler seed a nested run with its own trigger payload
// and sub-graph recursion depth counter while sharing the same execution
// machinery as a top-level Execute call.
func (e *Executor) executeWithContext(ctx context.Context, graph Graph, triggerRef string, run *Context) (*ExecutionLog, error) {
	sorted, err := topologicalSort(graph)
	if err != nil {
		return nil, err
	}

	e.metrics.IncActiveRuns(1)
	defer e.metrics.IncActiveRuns(-1)

	log := &ExecutionLog{
		ID:         uuid.New(),
		GraphID:    graph.ID,
		TenantID:   graph.TenantID,
		TriggerRef: triggerRef,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	for _, node := range sorted {
		if err := ctx.Err(); err != nil {
			e.finish(log, StatusCancelled, "")
			return log, err
		}

		if !node.Enabled {
			continue
		}

		inputs := gatherInputs(node, graph.Edges, run)

		handler, ok := e.registry.Get(node.Type)
		if !ok {
			nodeErr := apperrors.New(apperrors.CodeUnknownNode, "no handler registered for node type", 400).
				WithDetails("node_type", node.Type)
			log.Trace = append(log.Trace, TraceEntry{NodeID: node.ID, Label: node.Label, Status: "failed", Error: nodeErr.Error()})
			e.finish(log, StatusFailed, nodeErr.Error())
			return log, nodeErr
		}

		output, err := handler.Execute(ctx, node, inputs, run)
		if err != nil {
			log.Trace = append(log.Trace, TraceEntry{NodeID: node.ID, Label: node.Label, Status: "failed", Error: err.Error()})
			e.finish(log, StatusFailed, err.Error())
			return log, err
		}

		run.Values[node.ID.String()] = output
		log.Trace = append(log.Trace, TraceEntry{NodeID: node.ID, Label: node.Label, Status: "success", Output: output})
	}

	e.finish(log, StatusCompleted, "")
	return log, nil
}

func (e *Executor) finish(log *ExecutionLog, status ExecutionStatus, errMsg string) {
	log.Status = status
	log.Error = errMsg
	completed := time.Now().UTC()
	log.CompletedAt = &completed
	e.metrics.ObserveGraphRun(string(status), completed.Sub(log.StartedAt).Seconds())
}

// gatherInputs collects, for every inbound edge, the output value of its
// source node from the run context. A source whose node has not yet
// produced a value (should not occur after a valid topological sort)
// contributes nil.
func gatherInputs(node Node, edges []Edge, run *Context) map[string]any {
	inputs := make(map[string]any)
	for _, e := range edges {
		if e.TargetNode != node.ID {
			continue
		}
		inputs[e.TargetPort] = run.Values[e.SourceNode.String()]
	}
	return inputs
}
