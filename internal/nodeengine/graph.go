// Package nodeengine is the typed DAG workflow executor (spec §4.H):
// graph validation (edge endpoints, port-type compatibility, cycle
// detection), topological execution with a per-run context, a node-type
// handler registry, and trigger matching against domain/entity events.
// Grounded on
// _examples/original_source/crates/core-node-engine/src/{executor,nodes,events}.rs,
// translated from Rust's async-trait registry into Go interfaces.
package nodeengine

import (
	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/apperrors"
)

// PortType is the type tag carried by a node's input/output ports. Edges
// must connect compatible port types (spec §3 Graph/Node/Edge invariant).
type PortType string

const (
	PortAny     PortType = "any"
	PortString  PortType = "string"
	PortNumber  PortType = "number"
	PortBoolean PortType = "boolean"
	PortObject  PortType = "object"
	PortArray   PortType = "array"
	PortRecord  PortType = "record"
)

// CompatibleWith reports whether a value of type p may flow into a port of
// type other. PortAny matches anything, in either position.
func (p PortType) CompatibleWith(other PortType) bool {
	return p == PortAny || other == PortAny || p == other
}

// Port is one named, typed input or output a node handler declares.
type Port struct {
	Name string
	Type PortType
}

// Node is one vertex of a Graph. Type selects the handler from the
// Registry; Config is the node's kind-specific JSON-shaped configuration.
// X/Y are canvas coordinates, presentation-only per spec §3.
type Node struct {
	ID      uuid.UUID
	Type    string
	Label   string
	Config  map[string]any
	Enabled bool
	X, Y    float64
}

// Edge connects one node's output port to another's input port.
type Edge struct {
	SourceNode uuid.UUID
	SourcePort string
	TargetNode uuid.UUID
	TargetPort string
}

// Graph is a workflow: a set of nodes wired by edges, required to be
// acyclic (spec §3).
type Graph struct {
	ID      uuid.UUID
	TenantID uuid.UUID
	Name    string
	Enabled bool
	Nodes   []Node
	Edges   []Edge
}

func (g Graph) nodeMap() map[uuid.UUID]Node {
	m := make(map[uuid.UUID]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		m[n.ID] = n
	}
	return m
}

func findPort(ports []Port, name string) *Port {
	for i := range ports {
		if ports[i].Name == name {
			return &ports[i]
		}
	}
	return nil
}

// Validate checks graph validity at load time (spec §4.H): every edge's
// endpoints exist and resolve to a registered node type, port types are
// compatible on each edge, and the graph contains no cycle.
func (g Graph) Validate(registry *Registry) error {
	nodes := g.nodeMap()

	for _, n := range g.Nodes {
		if _, ok := registry.Get(n.Type); !ok {
			return apperrors.New(apperrors.CodeUnknownNode, "unknown node type", 400).
				WithDetails("node_id", n.ID).WithDetails("node_type", n.Type)
		}
	}

	for _, e := range g.Edges {
		src, ok := nodes[e.SourceNode]
		if !ok {
			return apperrors.New(apperrors.CodeUnknownNode, "edge source node not found", 400).
				WithDetails("node_id", e.SourceNode)
		}
		tgt, ok := nodes[e.TargetNode]
		if !ok {
			return apperrors.New(apperrors.CodeUnknownNode, "edge target node not found", 400).
				WithDetails("node_id", e.TargetNode)
		}

		srcHandler, _ := registry.Get(src.Type)
		tgtHandler, _ := registry.Get(tgt.Type)
		srcPort := findPort(srcHandler.Describe().Outputs, e.SourcePort)
		tgtPort := findPort(tgtHandler.Describe().Inputs, e.TargetPort)
		if srcPort == nil {
			return apperrors.New(apperrors.CodePortTypeMismatch, "edge references unknown output port", 400).
				WithDetails("node_id", e.SourceNode).WithDetails("port", e.SourcePort)
		}
		if tgtPort == nil {
			return apperrors.New(apperrors.CodePortTypeMismatch, "edge references unknown input port", 400).
				WithDetails("node_id", e.TargetNode).WithDetails("port", e.TargetPort)
		}
		if !srcPort.Type.CompatibleWith(tgtPort.Type) {
			return apperrors.New(apperrors.CodePortTypeMismatch, "edge connects incompatible port types", 400).
				WithDetails("source_type", srcPort.Type).WithDetails("target_type", tgtPort.Type)
		}
	}

	_, err := topologicalSort(g)
	return err
}

type mark int

const (
	white mark = iota
	gray
	black
)

// topologicalSort orders nodes so that every node appears after all of its
// upstream (source) dependencies, via depth-first traversal with
// three-colour marking (spec §4.H). Re-entering a grey node means the
// graph has a cycle.
func topologicalSort(g Graph) ([]Node, error) {
	nodes := g.nodeMap()
	colors := make(map[uuid.UUID]mark, len(g.Nodes))
	result := make([]Node, 0, len(g.Nodes))

	incoming := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range g.Edges {
		incoming[e.TargetNode] = append(incoming[e.TargetNode], e.SourceNode)
	}

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		switch colors[id] {
		case gray:
			return apperrors.New(apperrors.CodeCycleDetected, "graph contains a cycle", 400).
				WithDetails("node_id", id)
		case black:
			return nil
		}
		colors[id] = gray
		for _, dep := range incoming[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[id] = black
		if n, ok := nodes[id]; ok {
			result = append(result, n)
		}
		return nil
	}

	for _, n := range g.Nodes {
		if colors[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}
