package crdt

import "sort"

// ReplicaID identifies one client or server replica contributing writes to
// a register. Clients mint their own (typically a client_id from the sync
// protocol); the server uses a fixed replica id for updates it originates.
type ReplicaID string

// Op is one write to a register: replica_id, counter, and the opaque value
// bytes for that write. The coordinator never interprets Value; it is the
// client's serialized representation of whatever textMerge content this
// field holds.
type Op struct {
	ReplicaID ReplicaID
	Counter   uint64
	Value     []byte
}

// StateVector is the highest counter observed from each replica.
type StateVector map[ReplicaID]uint64

// Register is the server-side state of one (entity_id, field_name) CRDT
// field: the full operation log plus the state vector derived from it. The
// log is kept (not just the winning value) so merges remain commutative
// regardless of which subset of operations two replicas have seen.
type Register struct {
	ops map[ReplicaID]map[uint64]Op
}

// NewRegister returns an empty register.
func NewRegister() *Register {
	return &Register{ops: make(map[ReplicaID]map[uint64]Op)}
}

// Apply merges one incoming operation into the register. Applying the same
// op twice is a no-op (idempotence).
func (r *Register) Apply(op Op) {
	byCounter, ok := r.ops[op.ReplicaID]
	if !ok {
		byCounter = make(map[uint64]Op)
		r.ops[op.ReplicaID] = byCounter
	}
	byCounter[op.Counter] = op
}

// Merge unions another register's operations into r. Union is commutative
// and associative by construction, so the result does not depend on the
// order registers are merged in.
func (r *Register) Merge(other *Register) {
	for replica, byCounter := range other.ops {
		for _, op := range byCounter {
			r.Apply(Op{ReplicaID: replica, Counter: op.Counter, Value: op.Value})
		}
	}
}

// Value resolves the register to the operation with the lexicographically
// greatest (counter, replica_id) pair. Returns ok=false for an empty
// register (the field has never been written on this replica).
func (r *Register) Value() (value []byte, ok bool) {
	var winner *Op
	for _, byCounter := range r.ops {
		for _, op := range byCounter {
			op := op
			if winner == nil || greater(op, *winner) {
				winner = &op
			}
		}
	}
	if winner == nil {
		return nil, false
	}
	return winner.Value, true
}

// greater reports whether a's (counter, replica_id) pair sorts after b's.
func greater(a, b Op) bool {
	if a.Counter != b.Counter {
		return a.Counter > b.Counter
	}
	return a.ReplicaID > b.ReplicaID
}

// StateVector returns the highest counter seen from each contributing
// replica, used by the sync protocol to tell a client which of its writes
// the server has already incorporated.
func (r *Register) StateVector() StateVector {
	sv := make(StateVector, len(r.ops))
	for replica, byCounter := range r.ops {
		var max uint64
		for counter := range byCounter {
			if counter > max {
				max = counter
			}
		}
		sv[replica] = max
	}
	return sv
}

// MissingSince returns the operations in r that a peer holding state vector
// `since` has not yet observed, ordered deterministically by (replica_id,
// counter) for stable wire output. The sync coordinator uses this to send a
// client only the operations it lacks rather than the full log.
func (r *Register) MissingSince(since StateVector) []Op {
	var out []Op
	for replica, byCounter := range r.ops {
		floor := since[replica]
		for counter, op := range byCounter {
			if counter > floor {
				out = append(out, op)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReplicaID != out[j].ReplicaID {
			return out[i].ReplicaID < out[j].ReplicaID
		}
		return out[i].Counter < out[j].Counter
	})
	return out
}

// Ops returns every operation currently held, in the same deterministic
// order as MissingSince, for persistence or full replication.
func (r *Register) Ops() []Op {
	return r.MissingSince(nil)
}
