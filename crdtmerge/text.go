package crdtmerge

import (
	"encoding/json"
	"sort"
)

// TextKind is the Blob kind a TextMerger expects.
const TextKind = "rga-text"

// ElementID identifies one inserted character. Timestamp is a Lamport
// counter local to the text property; NodeID breaks ties between
// concurrent inserts so every replica orders siblings the same way.
type ElementID struct {
	Timestamp int64  `json:"ts"`
	NodeID    string `json:"node"`
}

func (a ElementID) greater(b ElementID) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.NodeID > b.NodeID
}

var textRootID = ElementID{Timestamp: 0, NodeID: "root"}

// elementWire is one character of a replicated text property, addressed
// by the parent it was inserted after rather than by index, so two
// replicas can insert next to the same character concurrently without
// clobbering each other.
type elementWire struct {
	ID       ElementID `json:"id"`
	ParentID ElementID `json:"parent"`
	Value    rune      `json:"value"`
	Deleted  bool      `json:"deleted"`
}

// TextMerger merges replicated-text blobs encoded as a flat list of
// elementWire entries (a Replicated Growable Array). Deletions are
// tombstones rather than removals, so that a concurrent insert
// referencing a deleted parent still has somewhere to attach.
type TextMerger struct{}

// Kind implements reptree.CrdtMerger.
func (TextMerger) Kind() string { return TextKind }

// Merge implements reptree.CrdtMerger by unioning the two element lists
// on ID, keeping an element's tombstone once either side has set it.
// Unioning a set with itself or a subset of itself changes nothing, and
// unioning is commutative and associative by construction, so the
// result converges regardless of merge order.
func (TextMerger) Merge(current, incoming []byte) ([]byte, error) {
	a, err := decodeElements(current)
	if err != nil {
		return nil, err
	}
	b, err := decodeElements(incoming)
	if err != nil {
		return nil, err
	}

	byID := make(map[ElementID]elementWire, len(a)+len(b))
	for _, el := range a {
		byID[el.ID] = el
	}
	for _, el := range b {
		existing, ok := byID[el.ID]
		if !ok {
			byID[el.ID] = el
			continue
		}
		if el.Deleted {
			existing.Deleted = true
			byID[el.ID] = existing
		}
	}

	out := make([]elementWire, 0, len(byID))
	for _, el := range byID {
		out = append(out, el)
	}
	return json.Marshal(out)
}

func decodeElements(payload []byte) ([]elementWire, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var out []elementWire
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TextValue linearizes a merged text blob into its visible string,
// skipping tombstoned elements. Elements whose parent is absent from
// the payload (a causal gap that should not occur once two complete
// registries have been merged) are left detached and omitted, rather
// than guessed into an arbitrary position.
func TextValue(payload []byte) (string, error) {
	elements, err := decodeElements(payload)
	if err != nil {
		return "", err
	}

	children := make(map[ElementID][]elementWire)
	present := map[ElementID]bool{textRootID: true}
	for _, el := range elements {
		present[el.ID] = true
	}
	for _, el := range elements {
		if !present[el.ParentID] {
			continue
		}
		children[el.ParentID] = append(children[el.ParentID], el)
	}
	for parent, siblings := range children {
		sort.Slice(siblings, func(i, j int) bool { return siblings[i].ID.greater(siblings[j].ID) })
		children[parent] = siblings
	}

	var out []rune
	var walk func(parent ElementID)
	walk = func(parent ElementID) {
		for _, el := range children[parent] {
			if !el.Deleted {
				out = append(out, el.Value)
			}
			walk(el.ID)
		}
	}
	walk(textRootID)
	return string(out), nil
}

// EncodeTextInsert appends a single new element after parent to an
// existing text blob payload, returning the updated payload. Callers
// own the Lamport counter used for id.Timestamp; the merger itself
// keeps no state between calls.
func EncodeTextInsert(payload []byte, id, parent ElementID, value rune) ([]byte, error) {
	elements, err := decodeElements(payload)
	if err != nil {
		return nil, err
	}
	elements = append(elements, elementWire{ID: id, ParentID: parent, Value: value})
	return json.Marshal(elements)
}
