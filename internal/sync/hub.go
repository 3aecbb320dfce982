package sync

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jirsi-platform/core/internal/crdt"
)

type registerKey struct {
	entityID uuid.UUID
	field    string
}

// Hub owns one crdt.Register per (entity_id, field) pair, the unit of
// merge for textMerge fields (spec §4.F).
type Hub struct {
	mu        sync.Mutex
	registers map[registerKey]*crdt.Register
}

func NewHub() *Hub {
	return &Hub{registers: make(map[registerKey]*crdt.Register)}
}

func (h *Hub) registerFor(entityID uuid.UUID, field string) *crdt.Register {
	key := registerKey{entityID, field}
	r, ok := h.registers[key]
	if !ok {
		r = crdt.NewRegister()
		h.registers[key] = r
	}
	return r
}

// Apply merges op into the register for (entityID, field) and returns the
// resolved value.
func (h *Hub) Apply(entityID uuid.UUID, field string, op crdt.Op) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.registerFor(entityID, field)
	r.Apply(op)
	return r.Value()
}

// MissingSince returns the operations on (entityID, field) not reflected in
// the given state vector.
func (h *Hub) MissingSince(entityID uuid.UUID, field string, since crdt.StateVector) []crdt.Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registerFor(entityID, field).MissingSince(since)
}
