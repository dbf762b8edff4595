package reptree

// propKey identifies one (vertex, property name) slot.
type propKey struct {
	vertex VertexID
	key    string
}

// PropertyEngine applies SetProp ops with LWW semantics, tracking the
// OpId of the winning durable and transient op independently per
// (vertex, key), and parking ops whose target vertex does not exist yet
// (spec.md §4.4).
type PropertyEngine struct {
	tree  *TreeState
	clock *LamportClock
	sink  DiagnosticSink

	durableOps map[propKey]OpId
	transOps   map[propKey]OpId
	propOps    []SetPropOp

	pendingProps map[VertexID][]SetPropOp

	mergers map[string]CrdtMerger
}

func newPropertyEngine(tree *TreeState, clock *LamportClock, sink DiagnosticSink) *PropertyEngine {
	return &PropertyEngine{
		tree:         tree,
		clock:        clock,
		sink:         sink,
		durableOps:   make(map[propKey]OpId),
		transOps:     make(map[propKey]OpId),
		pendingProps: make(map[VertexID][]SetPropOp),
		mergers:      make(map[string]CrdtMerger),
	}
}

// RegisterCrdtMerger wires an external collaborator in to handle blobs
// of merger.Kind(). Without a registered merger for an incoming kind,
// the engine falls back to plain LWW on the blob as a whole (a
// documented degradation, not a silent guess: spec.md §9 delegates
// same-kind merge to the collaborator but does not define behavior with
// no collaborator present).
func (pe *PropertyEngine) RegisterCrdtMerger(merger CrdtMerger) {
	pe.mergers[merger.Kind()] = merger
}

// Apply applies a SetProp op. applied is false if the op was parked
// (durable ops on a missing target) or dropped (transient ops on a
// missing target, spec.md §4.4) rather than applied.
func (pe *PropertyEngine) Apply(s SetPropOp) (applied bool) {
	if !pe.tree.exists(s.TargetID) {
		if s.Transient {
			return false
		}
		for _, pending := range pe.pendingProps[s.TargetID] {
			if pending.OpID == s.OpID {
				return false // already parked
			}
		}
		pe.pendingProps[s.TargetID] = append(pe.pendingProps[s.TargetID], s)
		return false
	}

	pe.clock.Observe(s.OpID.Counter)

	if s.Transient {
		pe.applyTransient(s)
	} else {
		pe.applyDurable(s)
	}
	return true
}

func (pe *PropertyEngine) applyTransient(s SetPropOp) {
	k := propKey{vertex: s.TargetID, key: s.Key}

	// A durable write with a greater id already supersedes this
	// transient write (S4: durable applied first, transient arrives
	// after and must not resurrect a transient entry).
	if durable, ok := pe.durableOps[k]; ok && s.OpID.Less(durable) {
		return
	}

	current, had := pe.transOps[k]
	if had && !current.Less(s.OpID) {
		return // existing transient op wins or ties
	}
	pe.transOps[k] = s.OpID
	pe.tree.setProp(s.TargetID, s.Key, s.Value, s.OpID, true)
}

func (pe *PropertyEngine) applyDurable(s SetPropOp) {
	k := propKey{vertex: s.TargetID, key: s.Key}
	pe.propOps = append(pe.propOps, s)

	current, had := pe.durableOps[k]
	isNewer := !had || current.Less(s.OpID)

	switch {
	case s.Value.Kind == KindCRDTBlob:
		// CRDT-blob values always route through the registered merger,
		// regardless of arrival order: convergence comes from Merge
		// being commutative/associative/idempotent, not from picking a
		// single winning payload and discarding the other side the way
		// plain LWW does. Gating this on isNewer would silently drop
		// whichever payload arrived with the smaller OpId. setDurableValue
		// uses isNewer only for writes that replace the value outright.
		pe.setDurableValue(s, isNewer)
		if isNewer {
			pe.durableOps[k] = s.OpID
		}
	case isNewer:
		pe.durableOps[k] = s.OpID
		pe.setDurableValue(s, true)
	}

	if transID, ok := pe.transOps[k]; ok && transID.Less(s.OpID) {
		delete(pe.transOps, k)
		pe.tree.removeTransient(s.TargetID, s.Key)
	}
}

// setDurableValue dispatches a durable write to the tree, delegating to
// a registered CrdtMerger when both the current and incoming value carry
// the same CRDT kind tag. A blob that replaces the stored value instead
// of merging into it (a kind switch, or no registered merger) is written
// only when isNewer is set, so those writes follow LWW on the OpId.
func (pe *PropertyEngine) setDurableValue(s SetPropOp, isNewer bool) {
	if s.Value.Kind != KindCRDTBlob {
		pe.tree.setProp(s.TargetID, s.Key, s.Value, s.OpID, false)
		return
	}

	v := pe.tree.Get(s.TargetID)
	var currentEntry propEntry
	var hasCurrent bool
	if v != nil {
		currentEntry, hasCurrent = v.Durable[s.Key]
	}

	if !hasCurrent || currentEntry.Value.Kind != KindCRDTBlob || currentEntry.Value.Blob.Kind != s.Value.Blob.Kind {
		if !isNewer {
			return
		}
		if hasCurrent && currentEntry.Value.Kind == KindCRDTBlob {
			pe.sink.report(DiagnosticEvent{
				Kind:    DiagnosticCrdtKindMismatch,
				Message: "crdt kind switch on " + s.TargetID + "." + s.Key + ": " + currentEntry.Value.Blob.Kind + " -> " + s.Value.Blob.Kind,
			})
		}
		pe.tree.setProp(s.TargetID, s.Key, s.Value, s.OpID, false)
		return
	}

	merger, ok := pe.mergers[s.Value.Blob.Kind]
	if !ok {
		if isNewer {
			pe.tree.setProp(s.TargetID, s.Key, s.Value, s.OpID, false)
		}
		return
	}

	merged, err := merger.Merge(currentEntry.Value.Blob.Payload, s.Value.Blob.Payload)
	if err != nil {
		pe.sink.report(DiagnosticEvent{
			Kind:    DiagnosticCrdtMergeFailed,
			Message: "crdt merge failed for " + s.Value.Blob.Kind + " on " + s.TargetID + "." + s.Key + ": " + err.Error(),
		})
		pe.tree.setProp(s.TargetID, s.Key, s.Value, s.OpID, false)
		return
	}
	mergedValue := BlobValue(CRDTBlob{Kind: s.Value.Blob.Kind, Payload: merged})
	pe.tree.setProp(s.TargetID, s.Key, mergedValue, s.OpID, false)
}

// TakePending removes and returns the property ops parked waiting for
// target to exist, in the order they arrived, if any.
func (pe *PropertyEngine) TakePending(target VertexID) []SetPropOp {
	pending := pe.pendingProps[target]
	if len(pending) == 0 {
		return nil
	}
	delete(pe.pendingProps, target)
	return pending
}

// AllOps returns every applied durable SetProp op, in application order.
// Transient ops are never retained here: they are not persisted beyond
// the engine's lifetime, so replaying AllOps never needs to reproduce
// them.
func (pe *PropertyEngine) AllOps() []SetPropOp {
	out := make([]SetPropOp, len(pe.propOps))
	copy(out, pe.propOps)
	return out
}
