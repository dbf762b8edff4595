package reptree

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/cshekharsharma/reptree/internal/equality"
)

// genTree builds a small engine with a root and a handful of vertices
// arranged into a shallow tree, returning the vertex ids so the
// property tests below can target them with further ops.
func genTree(t *rapid.T, peerID string) (*Engine, []VertexID) {
	e, err := New(peerID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root, err := e.CreateRoot()
	if err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	ids := []VertexID{root}
	n := rapid.IntRange(1, 5).Draw(t, "vertexCount")
	for i := 0; i < n; i++ {
		v := NewVertexID()
		parent := rapid.SampledFrom(ids).Draw(t, "parent")
		if _, err := e.Move(v, parent); err != nil {
			t.Fatalf("Move: %v", err)
		}
		ids = append(ids, v)
	}
	return e, ids
}

func applyRandomOp(t *rapid.T, e *Engine, ids []VertexID) {
	switch rapid.IntRange(0, 2).Draw(t, "opKind") {
	case 0:
		target := rapid.SampledFrom(ids).Draw(t, "moveTarget")
		parent := rapid.SampledFrom(ids).Draw(t, "moveParent")
		if _, err := e.Move(target, parent); err != nil {
			t.Fatalf("Move: %v", err)
		}
	case 1:
		target := rapid.SampledFrom(ids).Draw(t, "setPropTarget")
		key := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "key")
		val := rapid.Int64Range(0, 1000).Draw(t, "val")
		if _, err := e.SetProp(target, key, IntValue(val), false); err != nil {
			t.Fatalf("SetProp: %v", err)
		}
	case 2:
		target := rapid.SampledFrom(ids).Draw(t, "deleteTarget")
		if _, err := e.DeleteVertex(target); err != nil {
			t.Fatalf("DeleteVertex: %v", err)
		}
	}
}

// TestEngine_ConvergenceUnderPermutation checks that two engines
// starting from the same op set converge to the same structural state
// regardless of the order ops are merged in (spec.md §8).
func TestEngine_ConvergenceUnderPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source, ids := genTree(t, "source")
		opCount := rapid.IntRange(1, 6).Draw(t, "opCount")
		for i := 0; i < opCount; i++ {
			applyRandomOp(t, source, ids)
		}
		ops := source.AllOps()

		forward, err := New("forward")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := forward.Merge(ops); err != nil {
			t.Fatalf("Merge forward: %v", err)
		}

		shuffled := rapid.Permutation(ops).Draw(t, "permutation")

		backward, err := New("backward")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := backward.Merge(shuffled); err != nil {
			t.Fatalf("Merge backward: %v", err)
		}

		equal, msg := equality.StructurallyEqual(forward, backward)
		if !equal {
			t.Fatalf("permutation broke convergence: %s", msg)
		}
	})
}

// TestEngine_MergeIsIdempotentUnderRepetition checks that merging the
// same op batch more than once never changes the result (spec.md §8).
func TestEngine_MergeIsIdempotentUnderRepetition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source, ids := genTree(t, "source")
		opCount := rapid.IntRange(1, 6).Draw(t, "opCount")
		for i := 0; i < opCount; i++ {
			applyRandomOp(t, source, ids)
		}
		ops := source.AllOps()

		e, err := New("replica")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := e.Merge(ops); err != nil {
			t.Fatalf("Merge (first): %v", err)
		}
		before := snapshotVertexCount(e)

		repeats := rapid.IntRange(1, 3).Draw(t, "repeats")
		for i := 0; i < repeats; i++ {
			if err := e.Merge(ops); err != nil {
				t.Fatalf("Merge (repeat %d): %v", i, err)
			}
		}
		after := snapshotVertexCount(e)
		if before != after {
			t.Fatalf("re-merging changed vertex count: %d -> %d", before, after)
		}
	})
}

// TestEngine_ReplicateProducesStructurallyEqualEngine checks
// Replicate's equivalence guarantee under random mutation sequences
// (spec.md §8, "Replicate equivalence").
func TestEngine_ReplicateProducesStructurallyEqualEngine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source, ids := genTree(t, "source")
		opCount := rapid.IntRange(0, 6).Draw(t, "opCount")
		for i := 0; i < opCount; i++ {
			applyRandomOp(t, source, ids)
		}

		replica, err := source.Replicate("replica")
		if err != nil {
			t.Fatalf("Replicate: %v", err)
		}

		equal, msg := equality.StructurallyEqual(source, replica)
		if !equal {
			t.Fatalf("replica diverged: %s", msg)
		}
	})
}

// TestEngine_NoCyclesSurviveRandomMoves checks that no sequence of
// random moves ever installs a cycle (spec.md §8, "no cycles").
func TestEngine_NoCyclesSurviveRandomMoves(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, ids := genTree(t, "peer")
		opCount := rapid.IntRange(1, 10).Draw(t, "opCount")
		for i := 0; i < opCount; i++ {
			applyRandomOp(t, e, ids)
		}

		for _, v := range ids {
			if e.IsAncestor(v, v) {
				t.Fatalf("vertex %s became its own ancestor", v)
			}
		}
	})
}

// TestEngine_StateVectorCompletenessAfterMerge checks that every op a
// Merge call applies is reflected in the resulting state vector
// (spec.md §8, "state-vector completeness").
func TestEngine_StateVectorCompletenessAfterMerge(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source, ids := genTree(t, "source")
		opCount := rapid.IntRange(1, 6).Draw(t, "opCount")
		for i := 0; i < opCount; i++ {
			applyRandomOp(t, source, ids)
		}
		ops := source.AllOps()

		e, err := New("replica")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := e.Merge(ops); err != nil {
			t.Fatalf("Merge: %v", err)
		}

		sv := e.StateVectorSnapshot()
		for _, op := range ops {
			if !sv.Contains(op.ID()) {
				t.Fatalf("state vector missing applied op %v", op.ID())
			}
		}
	})
}

func snapshotVertexCount(e *Engine) int {
	return len(e.AllVertices())
}
