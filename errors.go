package reptree

import "errors"

// Sentinel errors for the structural-precondition failures spec.md §7
// classifies as hard errors: these are the only failures the engine
// surfaces to callers. Everything else (out-of-order arrivals, cycle
// prevention, LWW losers, duplicate ids) is resolved locally and never
// returned as an error.
var (
	// ErrRootExists is returned by CreateRoot when the engine already
	// has a root vertex.
	ErrRootExists = errors.New("reptree: root vertex already exists")
	// ErrMalformedOp is returned when an op carries an empty target id
	// or an empty peer id in its OpId.
	ErrMalformedOp = errors.New("reptree: malformed op")
	// ErrTransientCrdtUnsupported is returned when a SetProp op requests
	// a transient write of a CRDT-blob value. spec.md §9 calls this
	// combination unspecified and potentially buggy; rather than guess
	// at a silent coercion, RepTree rejects it outright.
	ErrTransientCrdtUnsupported = errors.New("reptree: transient CRDT-blob properties are not supported")
	// ErrUnknownOpKind is returned when decoding or dispatching an op
	// whose Kind() is neither KindMove nor KindSetProp.
	ErrUnknownOpKind = errors.New("reptree: unknown op kind")
)
