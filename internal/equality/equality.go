// Package equality provides a structural-equality comparator for
// reptree engines, used by the convergence, idempotence, and
// replicate-equivalence tests called out in spec.md §8.
//
// It compares only durable, externally observable state (vertex ids,
// parent assignments, deterministic children order, durable property
// values) — never raw op-log contents, since two structurally
// equivalent engines can carry different (but equally effective) op
// histories, e.g. each engine's own internal null-vertex bootstrap move.
package equality

import (
	"github.com/google/go-cmp/cmp"

	"github.com/cshekharsharma/reptree"
)

// snapshot is the comparable projection of an engine's state.
type snapshot struct {
	Vertices map[reptree.VertexID]vertexSnapshot
}

type vertexSnapshot struct {
	Parent   reptree.VertexID // "" stands in for "no parent" (a *VertexID isn't comparable via cmp without option noise)
	HasNil   bool
	Children []reptree.VertexID
	Durable  map[string]reptree.Value
}

func snapshotOf(e *reptree.Engine) snapshot {
	s := snapshot{Vertices: make(map[reptree.VertexID]vertexSnapshot)}
	for _, v := range e.AllVertices() {
		vs := vertexSnapshot{
			Children: append([]reptree.VertexID(nil), v.Children...),
			Durable:  make(map[string]reptree.Value, len(v.Durable)),
		}
		if v.Parent == nil {
			vs.HasNil = true
		} else {
			vs.Parent = *v.Parent
		}
		for k, entry := range v.Durable {
			vs.Durable[k] = entry.Value
		}
		s.Vertices[v.ID] = vs
	}
	return s
}

// StructurallyEqual reports whether a and b have identical vertex sets,
// parent assignments, children order, and durable property values. When
// they differ, msg holds a cmp.Diff-rendered explanation.
func StructurallyEqual(a, b *reptree.Engine) (equal bool, msg string) {
	sa, sb := snapshotOf(a), snapshotOf(b)
	diff := cmp.Diff(sa, sb)
	if diff == "" {
		return true, ""
	}
	return false, diff
}
