package crdtmerge

import "encoding/json"

// CounterKind is the Blob kind a CounterMerger expects.
const CounterKind = "gcounter"

// counterWire is the JSON encoding of a grow-only counter's per-peer
// slots: NodeID -> current count for that peer's slot.
type counterWire map[string]int64

// CounterMerger merges grow-only counter blobs.
//
// A grow-only counter never decreases: each peer owns one slot that
// only it increments, and the total is the sum of every slot. Merging
// two encodings is the Join-Semilattice "join" — the slot-wise maximum
// — which is commutative, associative, and idempotent because max is.
type CounterMerger struct{}

// Kind implements reptree.CrdtMerger.
func (CounterMerger) Kind() string { return CounterKind }

// Merge implements reptree.CrdtMerger by taking the slot-wise maximum
// of the two counter-wire encodings.
func (CounterMerger) Merge(current, incoming []byte) ([]byte, error) {
	var a, b counterWire
	if len(current) > 0 {
		if err := json.Unmarshal(current, &a); err != nil {
			return nil, err
		}
	}
	if len(incoming) > 0 {
		if err := json.Unmarshal(incoming, &b); err != nil {
			return nil, err
		}
	}
	if a == nil {
		a = counterWire{}
	}
	for peer, count := range b {
		if count > a[peer] {
			a[peer] = count
		}
	}
	return json.Marshal(a)
}

// CounterValue sums a counter-wire encoding's slots into the
// counter's current total, for callers that need the numeric value
// rather than the raw merged payload.
func CounterValue(payload []byte) (int64, error) {
	var slots counterWire
	if len(payload) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(payload, &slots); err != nil {
		return 0, err
	}
	var sum int64
	for _, v := range slots {
		sum += v
	}
	return sum, nil
}

// EncodeCounterIncrement produces the counter-wire payload for a single
// peer incrementing its own slot by delta above base (base is typically
// the peer's own prior slot value, tracked by the caller — the merger
// itself is stateless).
func EncodeCounterIncrement(peer string, base, delta int64) ([]byte, error) {
	return json.Marshal(counterWire{peer: base + delta})
}

// PNCounterKind is the Blob kind a PNCounterMerger expects.
const PNCounterKind = "pncounter"

// pnCounterWire pairs the increment and decrement slot vectors: the
// counter's value is sum(P) - sum(N), and each side merges
// independently by the same slot-wise maximum as CounterMerger.
type pnCounterWire struct {
	P counterWire `json:"p"`
	N counterWire `json:"n"`
}

// PNCounterMerger merges positive-negative counter blobs, allowing both
// increments and decrements while keeping the underlying encoding
// monotonic in each half, per the same reasoning as CounterMerger.
type PNCounterMerger struct{}

// Kind implements reptree.CrdtMerger.
func (PNCounterMerger) Kind() string { return PNCounterKind }

// Merge implements reptree.CrdtMerger.
func (PNCounterMerger) Merge(current, incoming []byte) ([]byte, error) {
	var a, b pnCounterWire
	if len(current) > 0 {
		if err := json.Unmarshal(current, &a); err != nil {
			return nil, err
		}
	}
	if len(incoming) > 0 {
		if err := json.Unmarshal(incoming, &b); err != nil {
			return nil, err
		}
	}
	if a.P == nil {
		a.P = counterWire{}
	}
	if a.N == nil {
		a.N = counterWire{}
	}
	for peer, count := range b.P {
		if count > a.P[peer] {
			a.P[peer] = count
		}
	}
	for peer, count := range b.N {
		if count > a.N[peer] {
			a.N[peer] = count
		}
	}
	return json.Marshal(a)
}

// PNCounterValue returns sum(P) - sum(N) for a pn-counter-wire payload.
func PNCounterValue(payload []byte) (int64, error) {
	var w pnCounterWire
	if len(payload) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(payload, &w); err != nil {
		return 0, err
	}
	var p, n int64
	for _, v := range w.P {
		p += v
	}
	for _, v := range w.N {
		n += v
	}
	return p - n, nil
}
