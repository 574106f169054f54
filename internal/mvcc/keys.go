// Package mvcc implements the snapshot-isolation concurrency layer of
// spec §4.5: monotonic start/commit timestamps, newest-first version
// chains stored in an arena+index pool, conflict detection at commit,
// and background GC with a retention horizon.
package mvcc

import "github.com/raydb/raydb/internal/graphtypes"

// KeyKind discriminates the four logical-key domains of spec §4.5.
type KeyKind uint8

const (
	KindNode KeyKind = iota
	KindEdge
	KindNodeProp
	KindEdgeProp
)

// Key is a logical version-chain key. Spec §4.5 describes a packed
// 64-bit integer per domain (e.g. "edge key = src<<40 | etype<<20 |
// dst") but immediately allows implementers to "assert the bit-width
// constraints or use a wider key" — those widths (24 bits of node id,
// 20 of etype/dst) would silently truncate spec §3's full 64-bit stable
// node ids, so this engine takes the wider-key option: a plain
// comparable struct, which Go maps natively support as a key type
// without any packing arithmetic.
type Key struct {
	Kind  KeyKind
	Node  graphtypes.NodeID // node key; also the edge/edge-prop source
	EType graphtypes.EType  // edge, edge-prop
	Other graphtypes.NodeID // edge dst, edge-prop dst
	Prop  graphtypes.PropKey
}

func NodeKey(id graphtypes.NodeID) Key {
	return Key{Kind: KindNode, Node: id}
}

func EdgeKey(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) Key {
	return Key{Kind: KindEdge, Node: src, EType: etype, Other: dst}
}

func NodePropKey(node graphtypes.NodeID, prop graphtypes.PropKey) Key {
	return Key{Kind: KindNodeProp, Node: node, Prop: prop}
}

func EdgePropKey(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey) Key {
	return Key{Kind: KindEdgeProp, Node: src, EType: etype, Other: dst, Prop: prop}
}
