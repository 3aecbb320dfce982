package nodeengine

import (
	"context"
	"sync"
)

// Descriptor declares the ports a node handler exposes. Validate uses it to
// check edge port-type compatibility without running the handler.
type Descriptor struct {
	Inputs  []Port
	Outputs []Port
}

// Handler implements one node type's behavior (spec §4.H "built-in node
// families"; ScriptNode implementations additionally bridge into
// internal/sandbox). Execute receives the node's own config, its gathered
// inputs (one value per inbound edge's target port), and the run's mutable
// Context; it returns the single value this node contributes to the
// context under its own node id.
type Handler interface {
	Describe() Descriptor
	Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error)
}

// Registry is a handler lookup table keyed by node type tag, replacing
// runtime reflection/dynamic dispatch per spec §9.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates nodeType with handler, overwriting any prior
// registration (used by callers to override a built-in with a tenant- or
// deployment-specific implementation).
func (r *Registry) Register(nodeType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = handler
}

// Get looks up the handler for nodeType.
func (r *Registry) Get(nodeType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	return h, ok
}
