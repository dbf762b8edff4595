package reptree

import "github.com/google/uuid"

// VertexID is an opaque vertex identifier: a UUID for freshly created
// vertices, or the reserved NullVertexID below.
type VertexID = string

// NullVertexID is the reserved tombstone parent used to represent
// deletion: a Move with ParentID == NullVertexID logically deletes its
// target without ever pruning it from the registry.
const NullVertexID VertexID = "0"

// NewVertexID mints a fresh vertex identifier.
func NewVertexID() VertexID {
	return uuid.NewString()
}

// propEntry pairs a stored property value with the OpId that wrote it,
// so LWW comparisons don't need a side table.
type propEntry struct {
	Value Value
	OpID  OpId
}

// Vertex is the per-vertex record: its parent, its children in
// deterministic insertion order, and its durable/transient property
// tables keyed by property name.
type Vertex struct {
	ID       VertexID
	Parent   *VertexID
	Children []VertexID

	Durable   map[string]propEntry
	Transient map[string]propEntry
}

func newVertex(id VertexID) *Vertex {
	return &Vertex{
		ID:        id,
		Durable:   make(map[string]propEntry),
		Transient: make(map[string]propEntry),
	}
}

// removeChild deletes id from v.Children, preserving the order of the
// remaining entries.
func (v *Vertex) removeChild(id VertexID) {
	for i, c := range v.Children {
		if c == id {
			v.Children = append(v.Children[:i], v.Children[i+1:]...)
			return
		}
	}
}
