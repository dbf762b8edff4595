package reptree

import (
	"encoding/json"
	"sort"
)

// peerRange is a closed, inclusive integer range [Start, End].
type peerRange struct {
	Start uint64
	End   uint64
}

// PeerRange names one contiguous block of counters missing for a peer,
// as returned by StateVector.Diff.
type PeerRange struct {
	PeerID string
	Start  uint64
	End    uint64
}

// StateVector tracks, per peer, the set of applied op counters as a
// sorted, pairwise-disjoint, non-adjacent list of closed ranges.
// Adjacent ranges (end+1 == next.start) are always merged into one, so
// the encoded form is unique for a given set of counters.
type StateVector struct {
	ranges map[string][]peerRange
}

// NewStateVector returns an empty state vector.
func NewStateVector() *StateVector {
	return &StateVector{ranges: make(map[string][]peerRange)}
}

// Insert records that counter c has been applied for peer.
func (sv *StateVector) Insert(peer string, c uint64) {
	rs := sv.ranges[peer]

	// idx = index of the first range whose Start is strictly greater
	// than c. Everything before idx starts at or below c; everything
	// from idx onward starts above c.
	idx := sort.Search(len(rs), func(i int) bool { return rs[i].Start > c })

	// Case 1: c falls inside the range immediately before idx.
	if idx > 0 && rs[idx-1].End >= c {
		return
	}
	// Case 2: c extends the range immediately before idx upward by one.
	if idx > 0 && rs[idx-1].End+1 == c {
		rs[idx-1].End = c
		if idx < len(rs) && rs[idx-1].End+1 == rs[idx].Start {
			rs[idx-1].End = rs[idx].End
			rs = append(rs[:idx], rs[idx+1:]...)
		}
		sv.ranges[peer] = rs
		return
	}
	// Case 3: c extends the range at idx downward by one.
	if idx < len(rs) && rs[idx].Start == c+1 {
		rs[idx].Start = c
		sv.ranges[peer] = rs
		return
	}
	// Case 4: c is isolated; insert a new singleton range at idx.
	rs = append(rs, peerRange{})
	copy(rs[idx+1:], rs[idx:])
	rs[idx] = peerRange{Start: c, End: c}
	sv.ranges[peer] = rs
}

// Contains reports whether id's counter has been recorded for id's peer.
func (sv *StateVector) Contains(id OpId) bool {
	rs := sv.ranges[id.PeerID]
	idx := sort.Search(len(rs), func(i int) bool { return rs[i].End >= id.Counter })
	return idx < len(rs) && id.Counter >= rs[idx].Start
}

// Diff returns, in peer-then-range order, the sub-ranges present in sv
// but absent from other: the ops a peer holding sv has that a peer
// holding other lacks.
func (sv *StateVector) Diff(other *StateVector) []PeerRange {
	var out []PeerRange

	peers := make([]string, 0, len(sv.ranges))
	for peer := range sv.ranges {
		peers = append(peers, peer)
	}
	sort.Strings(peers)

	for _, peer := range peers {
		mine := sv.ranges[peer]
		theirs := other.ranges[peer]
		out = append(out, diffPeerRanges(peer, mine, theirs)...)
	}
	return out
}

// diffPeerRanges computes, for one peer, the portions of mine not
// covered by theirs, via a linear merge-scan over both sorted range
// lists.
func diffPeerRanges(peer string, mine, theirs []peerRange) []PeerRange {
	var out []PeerRange
	j := 0
	for _, r := range mine {
		start := r.Start
		for start <= r.End {
			// Advance theirs past anything strictly before start.
			for j < len(theirs) && theirs[j].End < start {
				j++
			}
			if j >= len(theirs) || theirs[j].Start > r.End {
				out = append(out, PeerRange{PeerID: peer, Start: start, End: r.End})
				break
			}
			if theirs[j].Start > start {
				out = append(out, PeerRange{PeerID: peer, Start: start, End: theirs[j].Start - 1})
			}
			if theirs[j].End >= r.End {
				start = r.End + 1
				break
			}
			start = theirs[j].End + 1
		}
	}
	return out
}

// FromOps rebuilds a state vector from scratch by inserting every op's
// id. The engine itself does not call it; it maintains its vector
// incrementally as ops apply.
func FromOps(ops []Op) *StateVector {
	sv := NewStateVector()
	for _, op := range ops {
		sv.Insert(op.ID().PeerID, op.ID().Counter)
	}
	return sv
}

// Clone returns a deep copy of sv.
func (sv *StateVector) Clone() *StateVector {
	out := NewStateVector()
	for peer, rs := range sv.ranges {
		cp := make([]peerRange, len(rs))
		copy(cp, rs)
		out.ranges[peer] = cp
	}
	return out
}

type stateVectorWire map[string][][2]uint64

// MarshalJSON encodes the state vector per spec.md §6.2: one array of
// [start,end] pairs per peer, ordered by start, disjoint and
// non-adjacent.
func (sv *StateVector) MarshalJSON() ([]byte, error) {
	wire := make(stateVectorWire, len(sv.ranges))
	for peer, rs := range sv.ranges {
		pairs := make([][2]uint64, len(rs))
		for i, r := range rs {
			pairs[i] = [2]uint64{r.Start, r.End}
		}
		wire[peer] = pairs
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire format produced by MarshalJSON.
func (sv *StateVector) UnmarshalJSON(data []byte) error {
	var wire stateVectorWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	sv.ranges = make(map[string][]peerRange, len(wire))
	for peer, pairs := range wire {
		rs := make([]peerRange, len(pairs))
		for i, p := range pairs {
			rs[i] = peerRange{Start: p[0], End: p[1]}
		}
		sv.ranges[peer] = rs
	}
	return nil
}
