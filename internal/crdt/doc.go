// Package crdt implements the conflict-free merge algebra for the CRDT
// channel of the Delta Sync Protocol (spec §4.F, Open Question 3).
//
// Each field tagged "textMerge" in a tenant's schema is replicated as a
// state-based operation log rather than a single value. A CrdtUpdate is one
// append-only operation:
//
//	{replica_id, counter, value}
//
// where counter is that replica's local Lamport-style clock for the field —
// it increments by one on every local write and is never reused. The state
// vector for a field is map[replica_id]counter: the highest counter this
// register has observed from each replica. Two state vectors, or two sets of
// operations, merge by set union; duplicate (replica_id, counter) pairs
// collapse since they describe the same write.
//
// The resolved value of a register is the operation with the
// lexicographically greatest (counter, replica_id) pair. Comparing counter
// first means a causally later write always wins; comparing replica_id
// second breaks ties between concurrent writes the same way on every
// replica, so resolution does not depend on arrival order. This makes merge
// commutative, associative, and idempotent: union is all three, and the
// tie-break is a pure function of the operation set, not of how it was
// assembled (spec §8 property 8, "CRDT-channel merges are commutative and
// associative").
//
// The coordinator that owns the network fan-out never interprets these
// bytes; it only persists and rebroadcasts operations. This package supplies
// the register and merge logic the coordinator calls into.
package crdt
