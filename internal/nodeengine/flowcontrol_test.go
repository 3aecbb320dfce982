package nodeengine

import (
	"context"
	"testing"
)

func TestMergeHandler_CombinesAllWiredInputs(t *testing.T) {
	h := MergeHandler{}
	out, err := h.Execute(context.Background(), Node{}, map[string]any{"a": 1, "b": "two"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	merged := out.(map[string]any)
	if merged["a"] != 1 || merged["b"] != "two" {
		t.Fatalf("expected merged inputs, got %+v", merged)
	}
}

func TestSplitHandler_CapsAtMaxItems(t *testing.T) {
	h := SplitHandler{}
	node := Node{Config: map[string]any{"max_items": 2}}
	out, err := h.Execute(context.Background(), node, map[string]any{"array": []any{1, 2, 3, 4}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	if result["count"] != 2 {
		t.Fatalf("expected capped count of 2, got %+v", result)
	}
}

func TestLoopHandler_AppliesBodyToEachItem(t *testing.T) {
	registry := NewRegistry()
	registry.Register("double", doubleHandler{})
	h := LoopHandler{Registry: registry}
	node := Node{Config: map[string]any{"body_type": "double"}}

	out, err := h.Execute(context.Background(), node, map[string]any{"items": []any{1, 2, 3}}, NewContext(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := out.([]any)
	if len(results) != 3 || results[0] != 2 || results[2] != 6 {
		t.Fatalf("expected [2 4 6], got %+v", results)
	}
}

func TestLoopHandler_RejectsUnregisteredBodyType(t *testing.T) {
	h := LoopHandler{Registry: NewRegistry()}
	node := Node{Config: map[string]any{"body_type": "missing"}}
	_, err := h.Execute(context.Background(), node, map[string]any{"items": []any{1}}, NewContext(nil))
	if err == nil {
		t.Fatal("expected error for unregistered body node type")
	}
}

type doubleHandler struct{}

func (doubleHandler) Describe() Descriptor { return Descriptor{} }
func (doubleHandler) Execute(_ context.Context, _ Node, inputs map[string]any, _ *Context) (any, error) {
	n, _ := inputs["value"].(int)
	return n * 2, nil
}
