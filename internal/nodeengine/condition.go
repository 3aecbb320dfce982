package nodeengine

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// fieldPath resolves a JSONPath-style config field (e.g. Config["path"] =
// "$.new_values.stage") against a node's gathered inputs, falling back to
// the run's $trigger payload when the node has no "value" input wired. Used
// by condition and data nodes for field-path config resolution (spec §11
// domain stack: PaesslerAG/jsonpath wired to the Node Engine).
func fieldPath(path string, inputs map[string]any, run *Context) (any, error) {
	if path == "" || path == "$" {
		return inputs["value"], nil
	}
	source := inputs["value"]
	if source == nil {
		source = run.Values[TriggerKey]
	}
	return jsonpath.Get(path, source)
}

// ConditionIfHandler evaluates a single comparison (Config: "path", "op",
// "value") and outputs a boolean. Downstream action nodes read this output
// on a wired "when" input port and skip their side effect when false —
// the graph itself stays a strict DAG; branching is expressed by the
// consumer, not by pruning the executor's topological order.
type ConditionIfHandler struct{}

func (ConditionIfHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "value", Type: PortAny}},
		Outputs: []Port{{Name: "result", Type: PortBoolean}},
	}
}

func (ConditionIfHandler) Execute(_ context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	path, _ := node.Config["path"].(string)
	op, _ := node.Config["op"].(string)
	want := node.Config["value"]

	got, err := fieldPath(path, inputs, run)
	if err != nil {
		got = nil
	}
	return compare(got, op, want), nil
}

func compare(got any, op string, want any) bool {
	switch op {
	case "", "eq", "==":
		return fmt.Sprint(got) == fmt.Sprint(want)
	case "neq", "!=":
		return fmt.Sprint(got) != fmt.Sprint(want)
	case "contains":
		s, ok1 := got.(string)
		sub, ok2 := want.(string)
		return ok1 && ok2 && len(s) >= len(sub) && indexOfSubstring(s, sub) >= 0
	case "gt", "gte", "lt", "lte":
		gf, gok := toFloat(got)
		wf, wok := toFloat(want)
		if !gok || !wok {
			return false
		}
		switch op {
		case "gt":
			return gf > wf
		case "gte":
			return gf >= wf
		case "lt":
			return gf < wf
		default:
			return gf <= wf
		}
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func indexOfSubstring(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// ConditionSwitchHandler matches Config["path"]'s resolved value against
// Config["cases"] (map[string]any) and outputs the matched case key, or
// Config["default"] when nothing matches.
type ConditionSwitchHandler struct{}

func (ConditionSwitchHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "value", Type: PortAny}},
		Outputs: []Port{{Name: "matched_case", Type: PortString}},
	}
}

func (ConditionSwitchHandler) Execute(_ context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	path, _ := node.Config["path"].(string)
	got, err := fieldPath(path, inputs, run)
	if err != nil {
		got = nil
	}
	cases, _ := node.Config["cases"].(map[string]any)
	key := fmt.Sprint(got)
	if _, ok := cases[key]; ok {
		return key, nil
	}
	if def, ok := node.Config["default"].(string); ok {
		return def, nil
	}
	return "", nil
}

// ConditionFilterHandler is ConditionIfHandler under a name matching its
// use as a pass/drop gate ahead of a data query.
type ConditionFilterHandler struct{ ConditionIfHandler }
