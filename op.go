package reptree

import (
	"encoding/json"
	"fmt"
)

// OpKind discriminates the two operation kinds on the wire.
type OpKind string

const (
	KindMove    OpKind = "move"
	KindSetProp OpKind = "prop"
)

// Op is the tagged union of replicated operations: MoveOp or SetPropOp.
// Both kinds self-describe on the wire (spec.md §6.1) and parse
// independent of arrival order.
type Op interface {
	ID() OpId
	Kind() OpKind
}

// MoveOp sets TargetID's parent to ParentID (nil leaves TargetID with no
// parent, as for a root; NullVertexID means "deleted").
type MoveOp struct {
	OpID     OpId
	TargetID VertexID
	ParentID *VertexID
}

func (m MoveOp) ID() OpId    { return m.OpID }
func (m MoveOp) Kind() OpKind { return KindMove }

// SetPropOp sets a durable or transient property on TargetID.
type SetPropOp struct {
	OpID      OpId
	TargetID  VertexID
	Key       string
	Value     Value
	Transient bool
}

func (s SetPropOp) ID() OpId    { return s.OpID }
func (s SetPropOp) Kind() OpKind { return KindSetProp }

// opIDWire is the wire shape of an OpId.
type opIDWire struct {
	Counter uint64 `json:"counter"`
	PeerID  string `json:"peer_id"`
}

// valueWire is the wire shape of a Value: at most one of the typed
// fields is populated, selected by the discriminant.
type valueWire struct {
	Kind    string      `json:"kind"`
	Bool    *bool       `json:"bool,omitempty"`
	Int64   *int64      `json:"int64,omitempty"`
	Float64 *float64    `json:"float64,omitempty"`
	String  *string     `json:"string,omitempty"`
	Array   []valueWire `json:"array,omitempty"`
	Crdt    *struct {
		Kind    string `json:"crdt_kind"`
		Payload []byte `json:"payload"`
	} `json:"crdt,omitempty"`
}

func valueKindWireName(k ValueKind) string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int"
	case KindFloat64:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindCRDTBlob:
		return "crdt"
	default:
		return "undefined"
	}
}

func marshalValue(v Value) valueWire {
	w := valueWire{Kind: valueKindWireName(v.Kind)}
	switch v.Kind {
	case KindBool:
		w.Bool = &v.Bool
	case KindInt64:
		w.Int64 = &v.Int64
	case KindFloat64:
		w.Float64 = &v.Float
	case KindString:
		w.String = &v.Str
	case KindArray:
		w.Array = make([]valueWire, len(v.Array))
		for i, el := range v.Array {
			w.Array[i] = marshalValue(el)
		}
	case KindCRDTBlob:
		w.Crdt = &struct {
			Kind    string `json:"crdt_kind"`
			Payload []byte `json:"payload"`
		}{Kind: v.Blob.Kind, Payload: v.Blob.Payload}
	}
	return w
}

func unmarshalValue(w valueWire) (Value, error) {
	switch w.Kind {
	case "undefined", "":
		return Undefined, nil
	case "bool":
		if w.Bool == nil {
			return Value{}, fmt.Errorf("reptree: value kind bool missing bool field")
		}
		return BoolValue(*w.Bool), nil
	case "int":
		if w.Int64 == nil {
			return Value{}, fmt.Errorf("reptree: value kind int missing int64 field")
		}
		return IntValue(*w.Int64), nil
	case "float":
		if w.Float64 == nil {
			return Value{}, fmt.Errorf("reptree: value kind float missing float64 field")
		}
		return FloatValue(*w.Float64), nil
	case "string":
		if w.String == nil {
			return Value{}, fmt.Errorf("reptree: value kind string missing string field")
		}
		return StringValue(*w.String), nil
	case "array":
		out := make([]Value, len(w.Array))
		for i, el := range w.Array {
			v, err := unmarshalValue(el)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return ArrayValue(out), nil
	case "crdt":
		if w.Crdt == nil {
			return Value{}, fmt.Errorf("reptree: value kind crdt missing crdt field")
		}
		return BlobValue(CRDTBlob{Kind: w.Crdt.Kind, Payload: w.Crdt.Payload}), nil
	default:
		return Value{}, fmt.Errorf("reptree: unknown value kind %q", w.Kind)
	}
}

// opWire is the envelope used to marshal/unmarshal any Op by dispatching
// on Kind, per spec.md §6.1.
type opWire struct {
	Kind      OpKind    `json:"kind"`
	ID        opIDWire  `json:"id"`
	TargetID  string    `json:"target_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Key       string    `json:"key,omitempty"`
	Value     *valueWire `json:"value,omitempty"`
	Transient bool      `json:"transient,omitempty"`
}

// MarshalOp encodes any Op to its wire JSON form.
func MarshalOp(op Op) ([]byte, error) {
	switch o := op.(type) {
	case MoveOp:
		w := opWire{
			Kind:     KindMove,
			ID:       opIDWire{Counter: o.OpID.Counter, PeerID: o.OpID.PeerID},
			TargetID: o.TargetID,
			ParentID: o.ParentID,
		}
		return json.Marshal(w)
	case SetPropOp:
		vw := marshalValue(o.Value)
		w := opWire{
			Kind:      KindSetProp,
			ID:        opIDWire{Counter: o.OpID.Counter, PeerID: o.OpID.PeerID},
			TargetID:  o.TargetID,
			Key:       o.Key,
			Value:     &vw,
			Transient: o.Transient,
		}
		return json.Marshal(w)
	default:
		return nil, fmt.Errorf("reptree: unknown op type %T", op)
	}
}

// UnmarshalOp decodes a wire-format op, dispatching on its "kind" field.
func UnmarshalOp(data []byte) (Op, error) {
	var w opWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	id := OpId{Counter: w.ID.Counter, PeerID: w.ID.PeerID}
	switch w.Kind {
	case KindMove:
		return MoveOp{OpID: id, TargetID: w.TargetID, ParentID: w.ParentID}, nil
	case KindSetProp:
		if w.Value == nil {
			return nil, fmt.Errorf("reptree: prop op missing value")
		}
		v, err := unmarshalValue(*w.Value)
		if err != nil {
			return nil, err
		}
		return SetPropOp{OpID: id, TargetID: w.TargetID, Key: w.Key, Value: v, Transient: w.Transient}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOpKind, w.Kind)
	}
}
