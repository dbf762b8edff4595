// Package crdtmerge provides ready-made reptree.CrdtMerger
// implementations for CRDT-blob vertex properties.
//
// A CrdtMerger never owns replica state itself: reptree calls Merge with
// the two serialized payloads it already has on hand (the vertex's
// current blob and the incoming one) and stores whatever bytes come
// back. Each merger in this package is therefore a pure function over
// a wire encoding, not a stateful counter or sequence object — the
// statefulness lives in the vertex property the engine already tracks.
//
// To guarantee convergence across replicas regardless of merge order,
// every Merge implementation here is commutative, associative, and
// idempotent, so registering one turns a plain LWW property slot into
// a Join-Semilattice.
package crdtmerge
