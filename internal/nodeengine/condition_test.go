package nodeengine

import (
	"context"
	"testing"
)

func TestCompare_Operators(t *testing.T) {
	cases := []struct {
		got  any
		op   string
		want any
		out  bool
	}{
		{"open", "eq", "open", true},
		{"open", "eq", "closed", false},
		{"open", "neq", "closed", true},
		{"hello world", "contains", "world", true},
		{"hello world", "contains", "nope", false},
		{5.0, "gt", 3.0, true},
		{5.0, "gt", 10.0, false},
		{5.0, "gte", 5.0, true},
		{3.0, "lt", 5.0, true},
		{5.0, "lte", 5.0, true},
	}
	for _, c := range cases {
		if got := compare(c.got, c.op, c.want); got != c.out {
			t.Errorf("compare(%v, %q, %v) = %v, want %v", c.got, c.op, c.want, got, c.out)
		}
	}
}

func TestConditionIfHandler_EvaluatesAgainstTriggerPayload(t *testing.T) {
	h := ConditionIfHandler{}
	node := Node{Config: map[string]any{"path": "$.stage", "op": "eq", "value": "closed_won"}}
	run := NewContext(map[string]any{"stage": "closed_won"})

	out, err := h.Execute(context.Background(), node, map[string]any{}, run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != true {
		t.Fatalf("expected true, got %v", out)
	}
}

func TestConditionSwitchHandler_FallsBackToDefault(t *testing.T) {
	h := ConditionSwitchHandler{}
	node := Node{Config: map[string]any{
		"path":    "$.stage",
		"cases":   map[string]any{"open": true},
		"default": "unmatched",
	}}
	run := NewContext(map[string]any{"stage": "closed_lost"})

	out, err := h.Execute(context.Background(), node, map[string]any{}, run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "unmatched" {
		t.Fatalf("expected fallback to default, got %v", out)
	}
}
