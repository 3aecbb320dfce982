package sandbox

import "context"

// Capability names a host function a ScriptNode plugin may request (spec
// §4.I: "log, http_fetch, entity_read, entity_write"). Every call into a
// capability not granted to this invocation fails closed.
type Capability string

const (
	CapLog          Capability = "log"
	CapHTTPFetch    Capability = "http_fetch"
	CapEntityRead   Capability = "entity_read"
	CapEntityWrite  Capability = "entity_write"
)

// EntityStore is the mediated boundary between a plugin's entity_read and
// entity_write capabilities and the platform's read models. The engine
// never lets a plugin reach the database directly.
type EntityStore interface {
	ReadEntity(ctx context.Context, entityType, id string) (map[string]any, error)
	WriteEntity(ctx context.Context, entityType, id string, fields map[string]any) error
}

// fuel cost charged per host call, approximating the original WASM fuel
// model in the absence of a goja instruction counter.
const (
	fuelPerLogCall    = 1_000
	fuelPerHTTPCall   = 50_000
	fuelPerEntityCall = 10_000
)

// Interrupt sentinels passed to goja's vm.Interrupt, read back off
// goja.InterruptedError.Value() to tell a fuel abort apart from a plain
// wall-clock timeout.
const (
	interruptTimeout       = "execution timed out"
	interruptFuelExhausted = "fuel exhausted"
)
