package reptree

import "fmt"

// OpId identifies an operation by a Lamport counter and the peer that
// minted it. Counters are dense per peer but not globally: two peers may
// independently produce ops at the same counter value, which is why the
// peer id serves as a tie-break rather than a true secondary clock.
type OpId struct {
	Counter uint64
	PeerID  string
}

// Less reports whether id sorts strictly before other in the total order:
// counter first, then lexicographic peer id.
func (id OpId) Less(other OpId) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.PeerID < other.PeerID
}

// Compare returns -1, 0, or 1 as id sorts before, equal to, or after other.
func (id OpId) Compare(other OpId) int {
	switch {
	case id == other:
		return 0
	case id.Less(other):
		return -1
	default:
		return 1
	}
}

func (id OpId) String() string {
	return fmt.Sprintf("%d@%s", id.Counter, id.PeerID)
}

// LamportClock is a single peer's logical clock. It only ever moves
// forward: Tick reserves the next counter for a locally generated op,
// Observe folds in a counter seen on an incoming op.
type LamportClock struct {
	counter uint64
}

// Tick advances the clock by one and returns the new value, for stamping
// a freshly generated local op.
func (c *LamportClock) Tick() uint64 {
	c.counter++
	return c.counter
}

// Observe folds a remote counter into the clock: clock = max(clock, counter).
func (c *LamportClock) Observe(counter uint64) {
	if counter > c.counter {
		c.counter = counter
	}
}

// Value returns the current clock value without advancing it.
func (c *LamportClock) Value() uint64 {
	return c.counter
}
