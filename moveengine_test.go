package reptree

import "testing"

func newTestMoveEngine() (*MoveEngine, *TreeState) {
	tree := newTreeState()
	var clock LamportClock
	me := newMoveEngine(tree, &clock, DiagnosticSink{})
	return me, tree
}

func ptr(id VertexID) *VertexID { return &id }

func TestMoveEngine_ParksOnMissingParent(t *testing.T) {
	me, tree := newTestMoveEngine()
	applied, _ := me.Apply(MoveOp{OpID: OpId{Counter: 1, PeerID: "a"}, TargetID: "v1", ParentID: ptr("missing")})
	if applied {
		t.Fatalf("expected the move to be parked, not applied")
	}
	if tree.exists("v1") {
		t.Fatalf("expected v1 to not exist yet")
	}

	pending := me.TakePending("missing")
	if len(pending) != 1 {
		t.Fatalf("expected 1 parked move, got %d", len(pending))
	}
}

func TestMoveEngine_DuplicateParkIsIgnored(t *testing.T) {
	me, _ := newTestMoveEngine()
	m := MoveOp{OpID: OpId{Counter: 1, PeerID: "a"}, TargetID: "v1", ParentID: ptr("missing")}
	me.Apply(m)
	me.Apply(m)

	pending := me.TakePending("missing")
	if len(pending) != 1 {
		t.Fatalf("expected the duplicate parked move to collapse to 1, got %d", len(pending))
	}
}

// TestMoveEngine_S1_ConcurrentMoveLWW exercises spec.md's S1 scenario.
func TestMoveEngine_S1_ConcurrentMoveLWW(t *testing.T) {
	// A issues Move(x -> y) at counter 10; B issues Move(x -> r) at counter 10.
	// "a" < "b" lexicographically, so the total order puts b's op after
	// a's at the same counter: b's move wins.
	moveA := MoveOp{OpID: OpId{Counter: 10, PeerID: "a"}, TargetID: "x", ParentID: ptr("y")}
	moveB := MoveOp{OpID: OpId{Counter: 10, PeerID: "b"}, TargetID: "x", ParentID: ptr("r")}

	// Replica 1 receives a then b.
	r1, t1 := newTestMoveEngine()
	t1.setParent("r", nil)
	t1.setParent("x", ptr("r"))
	t1.setParent("y", ptr("r"))
	r1.Apply(moveA)
	r1.Apply(moveB)

	// Replica 2 receives b then a.
	r2, t2 := newTestMoveEngine()
	t2.setParent("r", nil)
	t2.setParent("x", ptr("r"))
	t2.setParent("y", ptr("r"))
	r2.Apply(moveB)
	r2.Apply(moveA)

	if got := t1.currentParent("x"); got == nil || *got != "r" {
		t.Errorf("replica 1: expected x.parent = r, got %v", got)
	}
	if got := t2.currentParent("x"); got == nil || *got != "r" {
		t.Errorf("replica 2: expected x.parent = r, got %v", got)
	}
}

// TestMoveEngine_S2_CyclePrevention exercises spec.md's S2 scenario.
func TestMoveEngine_S2_CyclePrevention(t *testing.T) {
	build := func() (*MoveEngine, *TreeState) {
		me, tree := newTestMoveEngine()
		tree.setParent("r", nil)
		tree.setParent("rOther", nil)
		tree.setParent("a", ptr("r"))
		tree.setParent("b", ptr("a"))
		return me, tree
	}

	moveA := MoveOp{OpID: OpId{Counter: 100, PeerID: "p1"}, TargetID: "a", ParentID: ptr("b")}
	moveB := MoveOp{OpID: OpId{Counter: 101, PeerID: "p2"}, TargetID: "b", ParentID: ptr("rOther")}

	forward, treeForward := build()
	forward.Apply(moveA)
	forward.Apply(moveB)

	backward, treeBackward := build()
	backward.Apply(moveB)
	backward.Apply(moveA)

	if got := treeForward.currentParent("a"); got == nil || *got != "r" {
		t.Errorf("forward order: expected a.parent = r, got %v", got)
	}
	if got := treeForward.currentParent("b"); got == nil || *got != "rOther" {
		t.Errorf("forward order: expected b.parent = rOther, got %v", got)
	}
	if got := treeBackward.currentParent("a"); got == nil || *got != "r" {
		t.Errorf("backward order: expected a.parent = r, got %v", got)
	}
	if got := treeBackward.currentParent("b"); got == nil || *got != "rOther" {
		t.Errorf("backward order: expected b.parent = rOther, got %v", got)
	}
}

func TestMoveEngine_SelfParentIsNoOp(t *testing.T) {
	me, tree := newTestMoveEngine()
	tree.setParent("v", nil)
	me.Apply(MoveOp{OpID: OpId{Counter: 1, PeerID: "a"}, TargetID: "v", ParentID: ptr("v")})

	if got := tree.currentParent("v"); got != nil {
		t.Errorf("expected self-parent to remain a no-op, got parent %v", *got)
	}
}

func TestMoveEngine_AllOpsReturnsSortedLog(t *testing.T) {
	me, tree := newTestMoveEngine()
	tree.setParent("r", nil)

	me.Apply(MoveOp{OpID: OpId{Counter: 2, PeerID: "a"}, TargetID: "x", ParentID: ptr("r")})
	me.Apply(MoveOp{OpID: OpId{Counter: 1, PeerID: "a"}, TargetID: "y", ParentID: ptr("r")})

	all := me.AllOps()
	if len(all) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(all))
	}
	if !all[0].OpID.Less(all[1].OpID) {
		t.Errorf("expected AllOps in OpId-sorted order, got %+v", all)
	}
}
