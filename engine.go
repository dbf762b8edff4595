package reptree

import (
	"sort"
	"sync"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithDiagnosticSink wires a diagnostic sink for the corrupted-state and
// CRDT-kind-mismatch reports of spec.md §7. The zero value sink is a
// no-op, matching the teacher library's dependency-free posture.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// Engine is the top-level replication engine: it owns the tree, the
// move and property engines, the state vector, the Lamport clock, the
// local-ops outbox, and the observer lists, and is the single entry
// point both local mutations and remote ops are applied through.
//
// The engine is not safe for concurrent use by multiple goroutines
// without external synchronization beyond what is documented here;
// spec.md §5 models a single logical owner driving it to completion on
// each call. The embedded mutex exists only to make "one call finishes
// before the next starts" true even if callers don't coordinate that
// themselves — it does not make concurrent *correctness* any different
// from the single-threaded model the algorithm assumes.
type Engine struct {
	mu sync.Mutex

	peerID string
	clock  LamportClock
	sink   DiagnosticSink

	tree        *TreeState
	moveEngine  *MoveEngine
	propEngine  *PropertyEngine
	stateVector *StateVector

	knownOps    map[OpId]bool
	localOps    []Op
	bootstrapID OpId

	rootID *VertexID

	moveObservers      []func(vertex VertexID, isNew bool)
	opAppliedObservers []func(op Op)
}

// New constructs an engine for peerID. It always creates the null vertex
// (id NullVertexID) before returning, via an internal Move op stamped
// with the engine's own clock (spec.md §6.3).
func New(peerID string, opts ...Option) (*Engine, error) {
	e := &Engine{
		peerID:      peerID,
		tree:        newTreeState(),
		stateVector: NewStateVector(),
		knownOps:    make(map[OpId]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.moveEngine = newMoveEngine(e.tree, &e.clock, e.sink)
	e.propEngine = newPropertyEngine(e.tree, &e.clock, e.sink)

	id := e.nextLocalOpID()
	nullMove := MoveOp{OpID: id, TargetID: NullVertexID, ParentID: nil}
	if err := e.applyAndRecord(nullMove); err != nil {
		return nil, err
	}
	// The null vertex's creation is purely internal bookkeeping: every
	// engine creates it the same way on construction, so it is never
	// something a peer needs to replicate. Keep it out of the local-ops
	// outbox, and remember its id so allOpsLocked/the state vector can
	// keep excluding it from everything this engine ever exposes to a
	// remote peer (AllOps, MissingOps, Replicate).
	e.localOps = e.localOps[:0]
	e.bootstrapID = id
	e.stateVector = NewStateVector()
	return e, nil
}

func (e *Engine) nextLocalOpID() OpId {
	return OpId{Counter: e.clock.Tick(), PeerID: e.peerID}
}

// RegisterCrdtMerger wires an external CrdtMerger collaborator into the
// property engine (spec.md §9).
func (e *Engine) RegisterCrdtMerger(merger CrdtMerger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.propEngine.RegisterCrdtMerger(merger)
}

// CreateRoot mints a fresh root vertex id and assigns it no parent. It
// fails with ErrRootExists if this engine already has a root, whether it
// created that root itself or received it through Merge.
func (e *Engine) CreateRoot() (VertexID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rootID != nil {
		return "", ErrRootExists
	}
	root := NewVertexID()
	id := e.nextLocalOpID()
	op := MoveOp{OpID: id, TargetID: root, ParentID: nil}
	if err := e.applyAndRecord(op); err != nil {
		return "", err
	}
	e.rootID = &root
	return root, nil
}

// RootID returns this engine's root vertex id, if one has been created.
func (e *Engine) RootID() (VertexID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootID == nil {
		return "", false
	}
	return *e.rootID, true
}

// Move issues a local Move op assigning target's parent to parent and
// applies it. Use NullVertexID as parent to delete target.
func (e *Engine) Move(target, parent VertexID) (OpId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextLocalOpID()
	op := MoveOp{OpID: id, TargetID: target, ParentID: &parent}
	if err := e.applyAndRecord(op); err != nil {
		return OpId{}, err
	}
	return id, nil
}

// DeleteVertex moves target under the null vertex, the deletion idiom
// of spec.md §9: not a distinct op kind, just a Move to the reserved
// sentinel parent. target's properties remain queryable and it may be
// resurrected under a real parent by a later move.
func (e *Engine) DeleteVertex(target VertexID) (OpId, error) {
	return e.Move(target, NullVertexID)
}

// SetProp issues a local SetProp op for (target, key) and applies it.
func (e *Engine) SetProp(target VertexID, key string, value Value, transient bool) (OpId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if transient && value.Kind == KindCRDTBlob {
		return OpId{}, ErrTransientCrdtUnsupported
	}

	id := e.nextLocalOpID()
	op := SetPropOp{OpID: id, TargetID: target, Key: key, Value: value, Transient: transient}
	if err := e.applyAndRecord(op); err != nil {
		return OpId{}, err
	}
	return id, nil
}

// applyAndRecord validates, applies, and records a locally generated op.
func (e *Engine) applyAndRecord(op Op) error {
	if err := e.apply(op); err != nil {
		return err
	}
	e.localOps = append(e.localOps, op)
	return nil
}

// apply validates and dispatches one op to the move or property engine,
// updating the state vector and firing observers on success. It does
// not check knownOps: callers (Merge, applyAndRecord) are responsible
// for de-duplication before calling apply.
func (e *Engine) apply(op Op) error {
	id := op.ID()
	if id.PeerID == "" {
		return ErrMalformedOp
	}

	switch o := op.(type) {
	case MoveOp:
		if o.TargetID == "" {
			return ErrMalformedOp
		}
		applied, isNew := e.moveEngine.Apply(o)
		if !applied {
			return nil // parked, or a duplicate of an already-parked move
		}
		e.recordApplied(op)
		if o.ParentID == nil && o.TargetID != NullVertexID && e.rootID == nil {
			root := o.TargetID
			e.rootID = &root
		}
		e.fireMove(o.TargetID, isNew)
		e.drainDependents(o.TargetID)
	case SetPropOp:
		if o.TargetID == "" {
			return ErrMalformedOp
		}
		if o.Transient && o.Value.Kind == KindCRDTBlob {
			return ErrTransientCrdtUnsupported
		}
		if applied := e.propEngine.Apply(o); !applied {
			return nil // parked, or dropped as a transient write on a missing target
		}
		e.recordApplied(op)
	default:
		return ErrUnknownOpKind
	}
	return nil
}

// recordApplied performs the bookkeeping common to every op that is
// actually applied to the tree, whether it arrived directly or was
// released from a pending buffer: advance the clock, record it in the
// state vector and known-ops set, and fan out to op-applied observers.
func (e *Engine) recordApplied(op Op) {
	id := op.ID()
	e.clock.Observe(id.Counter)
	e.knownOps[id] = true
	e.stateVector.Insert(id.PeerID, id.Counter)
	e.fireOpApplied(op)
}

// drainDependents re-applies any Move and SetProp ops that were parked
// waiting for vertex to exist, now that it does. Releasing a move can
// itself create other vertices' prerequisites, so this recurses through
// the normal apply path rather than looping a fixed number of times.
func (e *Engine) drainDependents(vertex VertexID) {
	for _, m := range e.moveEngine.TakePending(vertex) {
		e.apply(m) //nolint:errcheck // parked ops were already validated on first arrival
	}
	for _, s := range e.propEngine.TakePending(vertex) {
		e.apply(s) //nolint:errcheck // parked ops were already validated on first arrival
	}
}

// Merge applies a batch of remote ops, skipping any whose id has
// already been applied. A structural error stops the batch at the
// failing op and is returned; ops earlier in the batch stay applied. Ops
// already seen, and ops that become semantic no-ops, are never errors.
func (e *Engine) Merge(ops []Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, op := range ops {
		if e.knownOps[op.ID()] {
			continue
		}
		if err := e.apply(op); err != nil {
			return err
		}
	}
	return nil
}

// AllOps returns every applied op a remote peer doesn't already have by
// construction: the move log followed by the durable property log,
// excluding this engine's own bootstrap null-vertex move (every engine
// mints and applies that independently, so it is never part of the
// replicated surface). The concatenation order is not part of the
// external contract (spec.md §9) — re-ingesting AllOps via Merge is
// order insensitive by construction.
func (e *Engine) AllOps() []Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allOpsLocked()
}

func (e *Engine) allOpsLocked() []Op {
	moves := e.moveEngine.AllOps()
	props := e.propEngine.AllOps()
	out := make([]Op, 0, len(moves)+len(props))
	for _, m := range moves {
		if m.OpID == e.bootstrapID {
			continue
		}
		out = append(out, m)
	}
	for _, p := range props {
		out = append(out, p)
	}
	return out
}

// PopLocalOps atomically returns and clears the local-ops outbox.
func (e *Engine) PopLocalOps() []Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.localOps
	e.localOps = nil
	return out
}

// MissingOps computes the ops this engine has that remote does not,
// sorted by OpId so a receiver applying them in order sees no more
// undo/redo churn than strictly required (spec.md §4.6, §5).
func (e *Engine) MissingOps(remote *StateVector) []Op {
	e.mu.Lock()
	defer e.mu.Unlock()

	diff := e.stateVector.Diff(remote)
	if len(diff) == 0 {
		return nil
	}

	wanted := make(map[OpId]bool)
	for _, r := range diff {
		for c := r.Start; c <= r.End; c++ {
			wanted[OpId{Counter: c, PeerID: r.PeerID}] = true
		}
	}

	var out []Op
	for _, op := range e.allOpsLocked() {
		if wanted[op.ID()] {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().Less(out[j].ID()) })
	return out
}

// Replicate constructs a fresh engine with newPeerID by replaying this
// engine's current op set. The result is expected to be structurally
// equal to the source (spec.md §8, "Replicate equivalence").
func (e *Engine) Replicate(newPeerID string) (*Engine, error) {
	e.mu.Lock()
	ops := e.allOpsLocked()
	sink := e.sink
	e.mu.Unlock()

	replica, err := New(newPeerID, WithDiagnosticSink(sink))
	if err != nil {
		return nil, err
	}
	if err := replica.Merge(ops); err != nil {
		return nil, err
	}
	return replica, nil
}

// Observe registers fn for tree events (PropertyChangedEvent,
// TransientChangedEvent, MoveEvent, ChildrenChangedEvent) touching
// vertex.
func (e *Engine) Observe(vertex VertexID, fn ObserverFunc) Unsubscribe {
	return e.tree.Observe(vertex, fn)
}

// ObserveMove registers a global callback invoked after every applied
// Move, with isNew iff the target vertex did not exist before that move.
func (e *Engine) ObserveMove(fn func(vertex VertexID, isNew bool)) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moveObservers = append(e.moveObservers, fn)
	idx := len(e.moveObservers) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.moveObservers) {
			e.moveObservers[idx] = nil
		}
	}
}

// ObserveOpApplied registers a global callback invoked after every
// successfully applied op, local or remote. External persistence
// collaborators hang off this hook.
func (e *Engine) ObserveOpApplied(fn func(op Op)) Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opAppliedObservers = append(e.opAppliedObservers, fn)
	idx := len(e.opAppliedObservers) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.opAppliedObservers) {
			e.opAppliedObservers[idx] = nil
		}
	}
}

func (e *Engine) fireMove(vertex VertexID, isNew bool) {
	for _, fn := range e.moveObservers {
		if fn != nil {
			fn(vertex, isNew)
		}
	}
}

func (e *Engine) fireOpApplied(op Op) {
	for _, fn := range e.opAppliedObservers {
		if fn != nil {
			fn(op)
		}
	}
}

// Get returns the vertex record for id, or nil if it does not exist.
func (e *Engine) Get(id VertexID) *Vertex {
	return e.tree.Get(id)
}

// Children returns id's children in deterministic insertion order.
func (e *Engine) Children(id VertexID) []VertexID {
	return e.tree.Children(id)
}

// AllVertices returns every vertex currently registered.
func (e *Engine) AllVertices() []*Vertex {
	return e.tree.AllVertices()
}

// IsAncestor reports whether ancestor is a (possibly indirect) parent
// of child.
func (e *Engine) IsAncestor(child, ancestor VertexID) bool {
	return e.tree.IsAncestor(child, ancestor)
}

// StateVectorSnapshot returns a deep copy of the engine's current state
// vector, safe for a caller to serialize or diff against.
func (e *Engine) StateVectorSnapshot() *StateVector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateVector.Clone()
}

// PeerID returns this engine's peer identity.
func (e *Engine) PeerID() string {
	return e.peerID
}
