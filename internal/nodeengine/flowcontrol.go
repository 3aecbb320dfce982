package nodeengine

import (
	"context"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// Built-in flow-control node type tags (spec §4.H "Built-in node
// families").
const (
	NodeFlowMerge    = "flow.merge"
	NodeFlowSplit    = "flow.split"
	NodeFlowLoop     = "flow.loop"
	NodeFlowSubGraph = "flow.sub_graph"
)

// MergeHandler combines every wired input into a single object, keyed by
// port name. Downstream nodes read individual upstream outputs without the
// graph author needing a dedicated join node type per arity.
type MergeHandler struct{}

func (MergeHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "a", Type: PortAny}, {Name: "b", Type: PortAny}, {Name: "c", Type: PortAny}},
		Outputs: []Port{{Name: "merged", Type: PortObject}},
	}
}

func (MergeHandler) Execute(_ context.Context, _ Node, inputs map[string]any, _ *Context) (any, error) {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

// SplitHandler fans inputs["array"] out as Config["max_items"]-bounded
// slice, reporting its length; the executor's strict topological order
// means true per-element branching is expressed by downstream nodes
// consuming the "items" output themselves, not by the executor spawning
// one sub-run per element.
type SplitHandler struct{}

func (SplitHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "array", Type: PortArray}},
		Outputs: []Port{{Name: "items", Type: PortArray}, {Name: "count", Type: PortNumber}},
	}
}

func (SplitHandler) Execute(_ context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	items, _ := inputs["array"].([]any)
	if max, ok := node.Config["max_items"].(int); ok && max > 0 && max < len(items) {
		items = items[:max]
	}
	return map[string]any{"items": items, "count": len(items)}, nil
}

// maxLoopIterations bounds LoopHandler so a misconfigured graph (e.g. a
// condition that never becomes false) cannot run a node run forever.
const maxLoopIterations = 1000

// LoopHandler re-invokes a registered body node type (Config["body_type"],
// Config["body_config"]) against each element of inputs["items"], up to
// maxLoopIterations, collecting its outputs.
type LoopHandler struct{ Registry *Registry }

func (LoopHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "items", Type: PortArray}},
		Outputs: []Port{{Name: "results", Type: PortArray}},
	}
}

func (h LoopHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	items, _ := inputs["items"].([]any)
	if len(items) > maxLoopIterations {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "loop body exceeds max iterations", 400).
			WithDetails("limit", maxLoopIterations).WithDetails("count", len(items))
	}
	bodyType, _ := node.Config["body_type"].(string)
	bodyConfig, _ := node.Config["body_config"].(map[string]any)
	handler, ok := h.Registry.Get(bodyType)
	if !ok {
		return nil, apperrors.New(apperrors.CodeUnknownNode, "loop body node type not registered", 400).
			WithDetails("node_type", bodyType)
	}

	bodyNode := Node{ID: node.ID, Type: bodyType, Label: node.Label + ".body", Config: bodyConfig, Enabled: true}
	results := make([]any, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := handler.Execute(ctx, bodyNode, map[string]any{"value": item}, run)
		if err != nil {
			return nil, err
		}
		results = append(results, out)
	}
	return results, nil
}

// maxSubGraphDepth bounds recursive sub-graph invocation so a graph that
// (directly or transitively) calls itself cannot recurse without limit.
const maxSubGraphDepth = 8

// subGraphDepthKey is the Context.Values key tracking how many sub-graph
// levels the current run has descended.
const subGraphDepthKey = "$sub_graph_depth"

// SubGraphStore resolves the graph a flow.sub_graph node delegates to.
type SubGraphStore interface {
	Graph(ctx context.Context, graphID string) (Graph, error)
}

// SubGraphHandler runs another graph (Config["graph_id"]) to completion
// using the same Executor and returns the output of the nested run's last
// trace entry (nil if it recorded none). The nested run's trace is not
// merged into the parent run's execution log.
type SubGraphHandler struct {
	Store    SubGraphStore
	Executor *Executor
}

func (SubGraphHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "input", Type: PortAny}},
		Outputs: []Port{{Name: "output", Type: PortAny}},
	}
}

func (h SubGraphHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	depth, _ := run.Values[subGraphDepthKey].(int)
	if depth >= maxSubGraphDepth {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "sub-graph recursion too deep", 400).
			WithDetails("limit", maxSubGraphDepth)
	}

	graphID, _ := node.Config["graph_id"].(string)
	graph, err := h.Store.Graph(ctx, graphID)
	if err != nil {
		return nil, err
	}

	childRun := NewContext(inputs["input"])
	childRun.Values[subGraphDepthKey] = depth + 1

	log, err := h.Executor.executeWithContext(ctx, graph, node.ID.String(), childRun)
	if err != nil {
		return nil, err
	}
	if len(log.Trace) == 0 {
		return nil, nil
	}
	return log.Trace[len(log.Trace)-1].Output, nil
}
