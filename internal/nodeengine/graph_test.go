package nodeengine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/apperrors"
)

type constHandler struct{ desc Descriptor }

func (c constHandler) Describe() Descriptor { return c.desc }
func (constHandler) Execute(context.Context, Node, map[string]any, *Context) (any, error) {
	return nil, nil
}

func twoPortRegistry() *Registry {
	r := NewRegistry()
	r.Register("source", constHandler{desc: Descriptor{Outputs: []Port{{Name: "out", Type: PortString}}}})
	r.Register("sink", constHandler{desc: Descriptor{Inputs: []Port{{Name: "in", Type: PortString}}}})
	r.Register("number_sink", constHandler{desc: Descriptor{Inputs: []Port{{Name: "in", Type: PortNumber}}}})
	return r
}

func TestValidate_DetectsCycle(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := Graph{
		Nodes: []Node{
			{ID: a, Type: "passthrough"},
			{ID: b, Type: "passthrough"},
		},
		Edges: []Edge{
			{SourceNode: a, SourcePort: "out", TargetNode: b, TargetPort: "in"},
			{SourceNode: b, SourcePort: "out", TargetNode: a, TargetPort: "in"},
		},
	}
	registry := NewRegistry()
	registry.Register("passthrough", constHandler{desc: Descriptor{
		Inputs:  []Port{{Name: "in", Type: PortString}},
		Outputs: []Port{{Name: "out", Type: PortString}},
	}})

	err := g.Validate(registry)
	if err == nil {
		t.Fatal("expected cycle detection error, got nil")
	}
	if !apperrors.As(err, apperrors.CodeCycleDetected) {
		t.Fatalf("expected CodeCycleDetected, got %v", err)
	}
}

func TestValidate_RejectsIncompatiblePortTypes(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := Graph{
		Nodes: []Node{
			{ID: a, Type: "source"},
			{ID: b, Type: "number_sink"},
		},
		Edges: []Edge{
			{SourceNode: a, SourcePort: "out", TargetNode: b, TargetPort: "in"},
		},
	}
	err := g.Validate(twoPortRegistry())
	if err == nil {
		t.Fatal("expected port type mismatch error, got nil")
	}
	if !apperrors.As(err, apperrors.CodePortTypeMismatch) {
		t.Fatalf("expected CodePortTypeMismatch, got %v", err)
	}
}

func TestValidate_RejectsUnknownNodeType(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: uuid.New(), Type: "does_not_exist"}}}
	err := g.Validate(twoPortRegistry())
	if err == nil {
		t.Fatal("expected unknown node error, got nil")
	}
	if !apperrors.As(err, apperrors.CodeUnknownNode) {
		t.Fatalf("expected CodeUnknownNode, got %v", err)
	}
}

func TestValidate_AcceptsValidDAG(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := Graph{
		Nodes: []Node{
			{ID: a, Type: "source"},
			{ID: b, Type: "sink"},
		},
		Edges: []Edge{
			{SourceNode: a, SourcePort: "out", TargetNode: b, TargetPort: "in"},
		},
	}
	if err := g.Validate(twoPortRegistry()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTopologicalSort_OrdersDependenciesFirst(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	g := Graph{
		Nodes: []Node{{ID: c, Type: "sink"}, {ID: a, Type: "source"}, {ID: b, Type: "sink"}},
		Edges: []Edge{
			{SourceNode: a, SourcePort: "out", TargetNode: b, TargetPort: "in"},
			{SourceNode: b, SourcePort: "out", TargetNode: c, TargetPort: "in"},
		},
	}
	sorted, err := topologicalSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[uuid.UUID]int, len(sorted))
	for i, n := range sorted {
		pos[n.ID] = i
	}
	if !(pos[a] < pos[b] && pos[b] < pos[c]) {
		t.Fatalf("expected order a < b < c, got positions %v", pos)
	}
}
