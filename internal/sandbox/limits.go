// Package sandbox executes ScriptNode plugins inside a goja JavaScript
// runtime under a per-invocation resource tracker (spec §4.I). Grounded on
// _examples/r3e-network-service_layer/system/tee/script_engine.go for the
// goja wiring (console/secrets/input injection, entry-point invocation) and
// on
// _examples/original_source/crates/core-node-engine/src/plugin_sandbox.rs
// for the limit profiles and resource accounting. goja has no native
// instruction-fuel counter (unlike the original's WASM host), so fuel spent
// on host-mediated calls (console.log, http_fetch, entity_read/write) is
// charged a fixed cost per call, and pure-compute time — a script spinning
// in a loop that never calls a host function — is charged proportionally to
// wall-clock time via FuelExhaustionWindow, so a compute-bound infinite loop
// still raises FuelExhausted rather than running out the clock on the
// wall-clock Interrupt alone (spec §8's "Plugin resource cap" scenario).
package sandbox

import "time"

// Limits bounds one plugin invocation's resource consumption.
type Limits struct {
	Profile         string
	MaxFuel         uint64
	MaxMemoryBytes  int64
	Timeout         time.Duration
	MaxHTTPRequests int
	MaxEntityOps    int
}

// unboundedFuel marks a profile (System) whose fuel ceiling is not meant to
// bind in practice; only the wall-clock timeout applies to it.
const unboundedFuel = ^uint64(0)

// fuelExhaustionFraction is the share of Timeout a pure-compute loop is
// allowed before it is treated as having exhausted its fuel budget, rather
// than its wall-clock budget. Kept well under 1.0 so FuelExhausted always
// fires before the outer Interrupt-based timeout would.
const fuelExhaustionFraction = 0.8

// FuelExhaustionWindow returns the wall-clock duration after which a script
// that never yields fuel to a host call (a tight compute loop) is treated as
// fuel-exhausted: a fixed share (fuelExhaustionFraction) of this profile's
// Timeout, whatever its MaxFuel. The second return is false for unbounded-fuel profiles, which rely on the
// wall-clock timeout alone.
func (l Limits) FuelExhaustionWindow() (time.Duration, bool) {
	if l.MaxFuel == unboundedFuel {
		return 0, false
	}
	return time.Duration(float64(l.Timeout) * fuelExhaustionFraction), true
}

// Untrusted is applied to marketplace plugins with no provenance.
func Untrusted() Limits {
	return Limits{
		Profile: "untrusted",
		MaxFuel: 100_000_000, MaxMemoryBytes: 16 << 20,
		Timeout: 5 * time.Second, MaxHTTPRequests: 3, MaxEntityOps: 20,
	}
}

// Trusted is applied to verified plugins, 5x Untrusted.
func Trusted() Limits {
	u := Untrusted()
	return Limits{
		Profile: "trusted",
		MaxFuel: u.MaxFuel * 5, MaxMemoryBytes: u.MaxMemoryBytes * 5,
		Timeout: u.Timeout * 5, MaxHTTPRequests: u.MaxHTTPRequests * 5, MaxEntityOps: u.MaxEntityOps * 5,
	}
}

// System is applied to first-party plugins shipped with the platform:
// effectively unbounded, but still timed out so a runaway script cannot
// wedge a worker forever.
func System() Limits {
	return Limits{
		Profile: "system",
		MaxFuel: unboundedFuel, MaxMemoryBytes: 512 << 20,
		Timeout: 300 * time.Second, MaxHTTPRequests: 1 << 30, MaxEntityOps: 1 << 30,
	}
}
