package reptree

import "fmt"

// ValueKind discriminates the variants of Value.
type ValueKind int

const (
	// KindUndefined is the delete sentinel. The engine stores it like any
	// other value: the property's entry stays in the vertex's table,
	// carrying this kind.
	KindUndefined ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindArray
	// KindCRDTBlob tags a value as opaque bytes owned by an external
	// CrdtMerger, discriminated by Blob.Kind.
	KindCRDTBlob
)

// CRDTBlob is an opaque, kind-tagged payload whose merge semantics are
// delegated to a registered CrdtMerger rather than resolved by LWW.
type CRDTBlob struct {
	Kind    string
	Payload []byte
}

// Value is the tagged union of property values the engine stores. Exactly
// one of the typed fields is meaningful, selected by Kind; callers should
// always branch on Kind rather than probing fields directly.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int64 int64
	Float float64
	Str   string
	Array []Value
	Blob  CRDTBlob
}

// Undefined is the delete sentinel value.
var Undefined = Value{Kind: KindUndefined}

func BoolValue(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value       { return Value{Kind: KindInt64, Int64: i} }
func FloatValue(f float64) Value   { return Value{Kind: KindFloat64, Float: f} }
func StringValue(s string) Value   { return Value{Kind: KindString, Str: s} }
func ArrayValue(vs []Value) Value  { return Value{Kind: KindArray, Array: vs} }
func BlobValue(blob CRDTBlob) Value {
	return Value{Kind: KindCRDTBlob, Blob: blob}
}

func (v Value) String() string {
	switch v.Kind {
	case KindUndefined:
		return "<undefined>"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case KindFloat64:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindArray:
		return fmt.Sprintf("%v", v.Array)
	case KindCRDTBlob:
		return fmt.Sprintf("crdt(%s, %d bytes)", v.Blob.Kind, len(v.Blob.Payload))
	default:
		return "<unknown>"
	}
}

// CrdtMerger is the external collaborator contract spec.md §9 delegates
// CRDT-blob merging to. The core never interprets a blob's payload; it
// only dispatches to the merger registered for Kind() when two blobs of
// the same kind need to be reconciled.
//
// Implementations must make Merge commutative, associative, and
// idempotent so that replicas converge regardless of application order —
// the same Join-Semilattice contract the core asks of itself for moves
// and LWW properties.
type CrdtMerger interface {
	// Kind names the CRDT-blob kind this merger handles.
	Kind() string
	// Merge combines an incoming blob payload into the current one,
	// returning the merged payload. Both payloads carry the same Kind.
	Merge(current, incoming []byte) ([]byte, error)
}
