package reptree

import "sort"

// MoveEngine applies Move ops against a TreeState using the undo/redo
// discipline of spec.md §4.3: moves are kept in a single OpId-sorted
// log, and an out-of-order arrival is handled by undoing every move
// that sorts after it, splicing it in, and redoing the rest. Because
// every replica eventually runs the same ops through the same sorted
// order, try_move's decisions line up across replicas even though moves
// can be no-ops (self-parent, cycle) on some receives.
//
// MoveEngine does not drive pending-move resolution itself: Apply
// reports whether it actually applied or parked the op, and the owning
// Engine calls TakePending once the blocking vertex becomes known, so
// that state-vector and observer bookkeeping for a drained op goes
// through the same path as a freshly-arrived one.
type MoveEngine struct {
	tree  *TreeState
	clock *LamportClock
	sink  DiagnosticSink

	moveOps     []MoveOp
	priorParent map[OpId]*VertexID

	pendingMoves map[VertexID][]MoveOp
}

func newMoveEngine(tree *TreeState, clock *LamportClock, sink DiagnosticSink) *MoveEngine {
	return &MoveEngine{
		tree:         tree,
		clock:        clock,
		sink:         sink,
		priorParent:  make(map[OpId]*VertexID),
		pendingMoves: make(map[VertexID][]MoveOp),
	}
}

// Apply applies a Move op. applied is false if the op's parent vertex is
// not yet known, in which case m was parked (or, if an identical id was
// already parked for that parent, silently ignored as a duplicate).
// isNew reports whether the target vertex did not exist immediately
// before this move; it is only meaningful when applied is true.
func (me *MoveEngine) Apply(m MoveOp) (applied bool, isNew bool) {
	if m.ParentID != nil && !me.tree.exists(*m.ParentID) {
		for _, pending := range me.pendingMoves[*m.ParentID] {
			if pending.OpID == m.OpID {
				return false, false // already parked
			}
		}
		me.pendingMoves[*m.ParentID] = append(me.pendingMoves[*m.ParentID], m)
		return false, false
	}

	me.clock.Observe(m.OpID.Counter)
	isNew = me.applySorted(m)
	return true, isNew
}

// TakePending removes and returns the moves parked waiting for vertex
// to exist, if any.
func (me *MoveEngine) TakePending(vertex VertexID) []MoveOp {
	pending := me.pendingMoves[vertex]
	if len(pending) == 0 {
		return nil
	}
	delete(me.pendingMoves, vertex)
	return pending
}

// applySorted inserts m into the OpId-sorted move log, performing
// undo/redo if it arrives out of causal order. It returns whether m had
// no prior parent recorded (the target did not yet exist).
func (me *MoveEngine) applySorted(m MoveOp) (isNew bool) {
	n := len(me.moveOps)
	if n == 0 || me.moveOps[n-1].OpID.Less(m.OpID) {
		// m.OpID sorts after every move already in the log: append and
		// apply in place. Duplicate ids are filtered upstream by the
		// engine's known-ops check, so equality is not a case here.
		isNew = me.recordPriorParent(m)
		me.moveOps = append(me.moveOps, m)
		me.tryMove(m)
		return isNew
	}

	// Out of causal order: find the largest index i such that
	// moveOps[i].OpID < m.OpID.
	i := sort.Search(n, func(idx int) bool { return !me.moveOps[idx].OpID.Less(m.OpID) }) - 1

	for j := n - 1; j > i; j-- {
		me.undo(me.moveOps[j])
	}

	isNew = me.recordPriorParent(m)
	me.moveOps = append(me.moveOps, MoveOp{})
	copy(me.moveOps[i+2:], me.moveOps[i+1:])
	me.moveOps[i+1] = m
	me.tryMove(m)

	for j := i + 2; j < len(me.moveOps); j++ {
		me.tryMove(me.moveOps[j])
	}
	return isNew
}

// recordPriorParent stores the target's current parent as the
// restoration point for a future undo of m, and reports whether the
// target had no parent recorded (did not yet exist).
func (me *MoveEngine) recordPriorParent(m MoveOp) (isNew bool) {
	if me.tree.exists(m.TargetID) {
		me.priorParent[m.OpID] = me.tree.currentParent(m.TargetID)
		return false
	}
	me.priorParent[m.OpID] = nil
	return true
}

// undo restores a move's target to the parent it had immediately before
// that move was originally applied. A missing prior-parent record
// indicates corrupted internal state (spec.md §7); it is reported to
// the diagnostic sink and the step is skipped rather than panicking.
func (me *MoveEngine) undo(m MoveOp) {
	prior, ok := me.priorParent[m.OpID]
	if !ok {
		me.sink.report(DiagnosticEvent{
			Kind:    DiagnosticMissingPriorParent,
			Message: "undo: no prior-parent record for " + m.OpID.String(),
		})
		return
	}
	me.tree.setParent(m.TargetID, prior)
}

// tryMove is the pure decision function: given the current tree and a
// move, decide whether to apply it, and apply it if so.
func (me *MoveEngine) tryMove(m MoveOp) {
	T := m.TargetID
	P := m.ParentID

	if P == nil {
		me.tree.setParent(T, nil)
		return
	}
	if T == *P {
		return // no self-parent
	}
	if me.tree.IsAncestor(*P, T) {
		return // P is a descendant of T: would create a cycle
	}
	me.tree.setParent(T, P)
}

// AllOps returns the move log in its current internal order (OpId
// sorted).
func (me *MoveEngine) AllOps() []MoveOp {
	out := make([]MoveOp, len(me.moveOps))
	copy(out, me.moveOps)
	return out
}
