package wal

import (
	"math"

	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/graphtypes"
)

// The Encode*/Decode* pairs below define the payload shape carried by
// each RecordType's Record.Payload (spec §4.4 lists the record types;
// the payload layout is this engine's own wire-format choice, since
// spec leaves it unspecified beyond "payload(bytes)").

type DefinePayload struct {
	ID   uint32
	Name string
}

func EncodeDefine(p DefinePayload) []byte {
	w := codec.NewWriter(4 + len(p.Name) + 4)
	w.PutU32(p.ID)
	w.PutBytesLP([]byte(p.Name))
	return w.Bytes()
}

func DecodeDefine(payload []byte) (DefinePayload, error) {
	r := codec.NewReader(payload)
	id, err := r.U32()
	if err != nil {
		return DefinePayload{}, err
	}
	name, err := r.BytesLP()
	if err != nil {
		return DefinePayload{}, err
	}
	return DefinePayload{ID: id, Name: string(name)}, nil
}

type CreateNodePayload struct {
	NodeID graphtypes.NodeID
	Key    *string
}

func EncodeCreateNode(p CreateNodePayload) []byte {
	w := codec.NewWriter(8 + 1 + 4)
	w.PutU64(uint64(p.NodeID))
	w.PutBool(p.Key != nil)
	if p.Key != nil {
		w.PutBytesLP([]byte(*p.Key))
	}
	return w.Bytes()
}

func DecodeCreateNode(payload []byte) (CreateNodePayload, error) {
	r := codec.NewReader(payload)
	id, err := r.U64()
	if err != nil {
		return CreateNodePayload{}, err
	}
	hasKey, err := r.Bool()
	if err != nil {
		return CreateNodePayload{}, err
	}
	var key *string
	if hasKey {
		b, err := r.BytesLP()
		if err != nil {
			return CreateNodePayload{}, err
		}
		s := string(b)
		key = &s
	}
	return CreateNodePayload{NodeID: graphtypes.NodeID(id), Key: key}, nil
}

type NodeIDPayload struct {
	NodeID graphtypes.NodeID
}

func EncodeNodeID(id graphtypes.NodeID) []byte {
	w := codec.NewWriter(8)
	w.PutU64(uint64(id))
	return w.Bytes()
}

func DecodeNodeID(payload []byte) (graphtypes.NodeID, error) {
	r := codec.NewReader(payload)
	id, err := r.U64()
	return graphtypes.NodeID(id), err
}

type EdgePayload struct {
	Src   graphtypes.NodeID
	EType graphtypes.EType
	Dst   graphtypes.NodeID
}

func EncodeEdge(p EdgePayload) []byte {
	w := codec.NewWriter(20)
	w.PutU64(uint64(p.Src))
	w.PutU32(uint32(p.EType))
	w.PutU64(uint64(p.Dst))
	return w.Bytes()
}

func DecodeEdge(payload []byte) (EdgePayload, error) {
	r := codec.NewReader(payload)
	src, err := r.U64()
	if err != nil {
		return EdgePayload{}, err
	}
	et, err := r.U32()
	if err != nil {
		return EdgePayload{}, err
	}
	dst, err := r.U64()
	if err != nil {
		return EdgePayload{}, err
	}
	return EdgePayload{Src: graphtypes.NodeID(src), EType: graphtypes.EType(et), Dst: graphtypes.NodeID(dst)}, nil
}

type NodePropPayload struct {
	NodeID graphtypes.NodeID
	Prop   graphtypes.PropKey
	Value  graphtypes.Value
}

func EncodeNodeProp(p NodePropPayload) []byte {
	w := codec.NewWriter(16)
	w.PutU64(uint64(p.NodeID))
	w.PutU32(uint32(p.Prop))
	graphtypes.EncodeValue(w, p.Value)
	return w.Bytes()
}

func DecodeNodeProp(payload []byte) (NodePropPayload, error) {
	r := codec.NewReader(payload)
	id, err := r.U64()
	if err != nil {
		return NodePropPayload{}, err
	}
	pk, err := r.U32()
	if err != nil {
		return NodePropPayload{}, err
	}
	v, err := graphtypes.DecodeValue(r)
	if err != nil {
		return NodePropPayload{}, err
	}
	return NodePropPayload{NodeID: graphtypes.NodeID(id), Prop: graphtypes.PropKey(pk), Value: v}, nil
}

type DelNodePropPayload struct {
	NodeID graphtypes.NodeID
	Prop   graphtypes.PropKey
}

func EncodeDelNodeProp(p DelNodePropPayload) []byte {
	w := codec.NewWriter(12)
	w.PutU64(uint64(p.NodeID))
	w.PutU32(uint32(p.Prop))
	return w.Bytes()
}

func DecodeDelNodeProp(payload []byte) (DelNodePropPayload, error) {
	r := codec.NewReader(payload)
	id, err := r.U64()
	if err != nil {
		return DelNodePropPayload{}, err
	}
	pk, err := r.U32()
	if err != nil {
		return DelNodePropPayload{}, err
	}
	return DelNodePropPayload{NodeID: graphtypes.NodeID(id), Prop: graphtypes.PropKey(pk)}, nil
}

type EdgePropPayload struct {
	Src   graphtypes.NodeID
	EType graphtypes.EType
	Dst   graphtypes.NodeID
	Prop  graphtypes.PropKey
	Value graphtypes.Value
}

func EncodeEdgeProp(p EdgePropPayload) []byte {
	w := codec.NewWriter(28)
	w.PutU64(uint64(p.Src))
	w.PutU32(uint32(p.EType))
	w.PutU64(uint64(p.Dst))
	w.PutU32(uint32(p.Prop))
	graphtypes.EncodeValue(w, p.Value)
	return w.Bytes()
}

func DecodeEdgeProp(payload []byte) (EdgePropPayload, error) {
	r := codec.NewReader(payload)
	src, err := r.U64()
	if err != nil {
		return EdgePropPayload{}, err
	}
	et, err := r.U32()
	if err != nil {
		return EdgePropPayload{}, err
	}
	dst, err := r.U64()
	if err != nil {
		return EdgePropPayload{}, err
	}
	pk, err := r.U32()
	if err != nil {
		return EdgePropPayload{}, err
	}
	v, err := graphtypes.DecodeValue(r)
	if err != nil {
		return EdgePropPayload{}, err
	}
	return EdgePropPayload{
		Src: graphtypes.NodeID(src), EType: graphtypes.EType(et), Dst: graphtypes.NodeID(dst),
		Prop: graphtypes.PropKey(pk), Value: v,
	}, nil
}

type DelEdgePropPayload struct {
	Src   graphtypes.NodeID
	EType graphtypes.EType
	Dst   graphtypes.NodeID
	Prop  graphtypes.PropKey
}

func EncodeDelEdgeProp(p DelEdgePropPayload) []byte {
	w := codec.NewWriter(24)
	w.PutU64(uint64(p.Src))
	w.PutU32(uint32(p.EType))
	w.PutU64(uint64(p.Dst))
	w.PutU32(uint32(p.Prop))
	return w.Bytes()
}

// SetNodeVectorPayload carries the node/vector pair for TypeSetNodeVector
// (spec §4.10). The vector is encoded as a length-prefixed run of u32s
// holding each component's IEEE-754 bits, since codec.Writer has no
// native f32 accessor (only f64).
type SetNodeVectorPayload struct {
	NodeID graphtypes.NodeID
	Vector []float32
}

func EncodeSetNodeVector(p SetNodeVectorPayload) []byte {
	w := codec.NewWriter(8 + 4 + 4*len(p.Vector))
	w.PutU64(uint64(p.NodeID))
	w.PutU32(uint32(len(p.Vector)))
	for _, f := range p.Vector {
		w.PutU32(math.Float32bits(f))
	}
	return w.Bytes()
}

func DecodeSetNodeVector(payload []byte) (SetNodeVectorPayload, error) {
	r := codec.NewReader(payload)
	id, err := r.U64()
	if err != nil {
		return SetNodeVectorPayload{}, err
	}
	n, err := r.U32()
	if err != nil {
		return SetNodeVectorPayload{}, err
	}
	vec := make([]float32, n)
	for i := range vec {
		bits, err := r.U32()
		if err != nil {
			return SetNodeVectorPayload{}, err
		}
		vec[i] = math.Float32frombits(bits)
	}
	return SetNodeVectorPayload{NodeID: graphtypes.NodeID(id), Vector: vec}, nil
}

func DecodeDelEdgeProp(payload []byte) (DelEdgePropPayload, error) {
	r := codec.NewReader(payload)
	src, err := r.U64()
	if err != nil {
		return DelEdgePropPayload{}, err
	}
	et, err := r.U32()
	if err != nil {
		return DelEdgePropPayload{}, err
	}
	dst, err := r.U64()
	if err != nil {
		return DelEdgePropPayload{}, err
	}
	pk, err := r.U32()
	if err != nil {
		return DelEdgePropPayload{}, err
	}
	return DelEdgePropPayload{Src: graphtypes.NodeID(src), EType: graphtypes.EType(et), Dst: graphtypes.NodeID(dst), Prop: graphtypes.PropKey(pk)}, nil
}
