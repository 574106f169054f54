package snapshot

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/raydb/raydb/internal/graphtypes"
)

// nodePropEntrySize: phys_id(u64) + propkey_id(u32) + tag(u8) + value(u64),
// sorted by (phys_id, propkey_id) — spec §4.1 "sorted records".
const nodePropEntrySize = 8 + 4 + 1 + 8

// edgePropEntrySize: src_phys(u64) + etype(u32) + dst_phys(u64) +
// propkey_id(u32) + tag(u8) + value(u64), sorted by
// (src_phys, etype, dst_phys, propkey_id).
const edgePropEntrySize = 8 + 4 + 8 + 4 + 1 + 8

func (r *Reader) decodeValue(tag byte, raw uint64) (graphtypes.Value, error) {
	switch graphtypes.ValueTag(tag) {
	case graphtypes.TagNull:
		return graphtypes.NullValue(), nil
	case graphtypes.TagBool:
		return graphtypes.BoolValue(raw != 0), nil
	case graphtypes.TagI64:
		return graphtypes.I64Value(int64(raw)), nil
	case graphtypes.TagF64:
		return graphtypes.F64Value(math.Float64frombits(raw)), nil
	case graphtypes.TagString:
		s, err := r.String(uint32(raw))
		if err != nil {
			return graphtypes.Value{}, err
		}
		return graphtypes.StringValue(s), nil
	case graphtypes.TagVectorF32:
		return graphtypes.VectorRefValue(raw), nil
	default:
		return graphtypes.NullValue(), nil
	}
}

// NodeProp looks up a node property by (phys, propkey) via binary search
// over the sorted node_prop_entries section.
func (r *Reader) NodeProp(phys uint32, propkey graphtypes.PropKey) (graphtypes.Value, bool, error) {
	sec := r.section(SecNodePropEntries)
	n := len(sec) / nodePropEntrySize
	i := sort.Search(n, func(i int) bool {
		off := i * nodePropEntrySize
		p := binary.LittleEndian.Uint64(sec[off:])
		pk := binary.LittleEndian.Uint32(sec[off+8:])
		if p != uint64(phys) {
			return p >= uint64(phys)
		}
		return pk >= uint32(propkey)
	})
	if i >= n {
		return graphtypes.Value{}, false, nil
	}
	off := i * nodePropEntrySize
	p := binary.LittleEndian.Uint64(sec[off:])
	pk := binary.LittleEndian.Uint32(sec[off+8:])
	if p != uint64(phys) || pk != uint32(propkey) {
		return graphtypes.Value{}, false, nil
	}
	tag := sec[off+12]
	raw := binary.LittleEndian.Uint64(sec[off+13:])
	v, err := r.decodeValue(tag, raw)
	return v, true, err
}

// EdgeProp looks up an edge property by
// (srcPhys, etype, dstPhys, propkey) via binary search.
func (r *Reader) EdgeProp(srcPhys uint32, etype graphtypes.EType, dstPhys uint32, propkey graphtypes.PropKey) (graphtypes.Value, bool, error) {
	sec := r.section(SecEdgePropEntries)
	n := len(sec) / edgePropEntrySize
	key := func(i int) (uint64, uint32, uint64, uint32) {
		off := i * edgePropEntrySize
		sp := binary.LittleEndian.Uint64(sec[off:])
		et := binary.LittleEndian.Uint32(sec[off+8:])
		dp := binary.LittleEndian.Uint64(sec[off+12:])
		pk := binary.LittleEndian.Uint32(sec[off+20:])
		return sp, et, dp, pk
	}
	target := func(sp uint64, et uint32, dp uint64, pk uint32) bool {
		if sp != uint64(srcPhys) {
			return sp >= uint64(srcPhys)
		}
		if et != uint32(etype) {
			return et >= uint32(etype)
		}
		if dp != uint64(dstPhys) {
			return dp >= uint64(dstPhys)
		}
		return pk >= uint32(propkey)
	}
	i := sort.Search(n, func(i int) bool {
		sp, et, dp, pk := key(i)
		return target(sp, et, dp, pk)
	})
	if i >= n {
		return graphtypes.Value{}, false, nil
	}
	sp, et, dp, pk := key(i)
	if sp != uint64(srcPhys) || et != uint32(etype) || dp != uint64(dstPhys) || pk != uint32(propkey) {
		return graphtypes.Value{}, false, nil
	}
	off := i * edgePropEntrySize
	tag := sec[off+24]
	raw := binary.LittleEndian.Uint64(sec[off+25:])
	v, err := r.decodeValue(tag, raw)
	return v, true, err
}

// DecodedNodeProp is one raw node_prop_entries record, phys-indexed
// against this reader's own generation.
type DecodedNodeProp struct {
	Phys    uint32
	Prop    graphtypes.PropKey
	Value   graphtypes.Value
}

// AllNodeProps decodes the entire node_prop_entries section, for the
// compactor to remap against a new generation's phys ids.
func (r *Reader) AllNodeProps() ([]DecodedNodeProp, error) {
	sec := r.section(SecNodePropEntries)
	n := len(sec) / nodePropEntrySize
	out := make([]DecodedNodeProp, 0, n)
	for i := 0; i < n; i++ {
		off := i * nodePropEntrySize
		phys := uint32(binary.LittleEndian.Uint64(sec[off:]))
		pk := binary.LittleEndian.Uint32(sec[off+8:])
		tag := sec[off+12]
		raw := binary.LittleEndian.Uint64(sec[off+13:])
		v, err := r.decodeValue(tag, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, DecodedNodeProp{Phys: phys, Prop: graphtypes.PropKey(pk), Value: v})
	}
	return out, nil
}

// DecodedEdgeProp is one raw edge_prop_entries record.
type DecodedEdgeProp struct {
	SrcPhys uint32
	EType   graphtypes.EType
	DstPhys uint32
	Prop    graphtypes.PropKey
	Value   graphtypes.Value
}

// AllEdgeProps decodes the entire edge_prop_entries section.
func (r *Reader) AllEdgeProps() ([]DecodedEdgeProp, error) {
	sec := r.section(SecEdgePropEntries)
	n := len(sec) / edgePropEntrySize
	out := make([]DecodedEdgeProp, 0, n)
	for i := 0; i < n; i++ {
		off := i * edgePropEntrySize
		sp := uint32(binary.LittleEndian.Uint64(sec[off:]))
		et := binary.LittleEndian.Uint32(sec[off+8:])
		dp := uint32(binary.LittleEndian.Uint64(sec[off+12:]))
		pk := binary.LittleEndian.Uint32(sec[off+20:])
		tag := sec[off+24]
		raw := binary.LittleEndian.Uint64(sec[off+25:])
		v, err := r.decodeValue(tag, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, DecodedEdgeProp{SrcPhys: sp, EType: graphtypes.EType(et), DstPhys: dp, Prop: graphtypes.PropKey(pk), Value: v})
	}
	return out, nil
}

// EncodeNodePropEntry serializes one node_prop_entries record.
func EncodeNodePropEntry(phys uint32, propkey graphtypes.PropKey, tag byte, raw uint64) []byte {
	b := make([]byte, nodePropEntrySize)
	binary.LittleEndian.PutUint64(b[0:], uint64(phys))
	binary.LittleEndian.PutUint32(b[8:], uint32(propkey))
	b[12] = tag
	binary.LittleEndian.PutUint64(b[13:], raw)
	return b
}

// EncodeEdgePropEntry serializes one edge_prop_entries record.
func EncodeEdgePropEntry(srcPhys uint32, etype graphtypes.EType, dstPhys uint32, propkey graphtypes.PropKey, tag byte, raw uint64) []byte {
	b := make([]byte, edgePropEntrySize)
	binary.LittleEndian.PutUint64(b[0:], uint64(srcPhys))
	binary.LittleEndian.PutUint32(b[8:], uint32(etype))
	binary.LittleEndian.PutUint64(b[12:], uint64(dstPhys))
	binary.LittleEndian.PutUint32(b[20:], uint32(propkey))
	b[24] = tag
	binary.LittleEndian.PutUint64(b[25:], raw)
	return b
}

// ValueToRaw converts a Value into the (tag, raw) pair used by the fixed
// property-entry layout above.
func ValueToRaw(v graphtypes.Value, internString func(string) uint32) (byte, uint64) {
	switch v.Tag {
	case graphtypes.TagBool:
		if v.Bool {
			return byte(v.Tag), 1
		}
		return byte(v.Tag), 0
	case graphtypes.TagI64:
		return byte(v.Tag), uint64(v.I64)
	case graphtypes.TagF64:
		return byte(v.Tag), math.Float64bits(v.F64)
	case graphtypes.TagString:
		return byte(v.Tag), uint64(internString(v.Str))
	case graphtypes.TagVectorF32:
		return byte(v.Tag), v.VecRef
	default:
		return byte(graphtypes.TagNull), 0
	}
}
