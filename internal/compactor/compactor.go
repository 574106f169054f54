// Package compactor implements spec §4.7: merging a snapshot generation
// with its accumulated delta overlay into a new, denser snapshot
// generation, and atomically publishing it via the manifest.
package compactor

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/intern"
	"github.com/raydb/raydb/internal/manifest"
	"github.com/raydb/raydb/internal/rayerr"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/wal"
)

// Input is everything one compaction pass needs, gathered by the
// graphdb layer from its live DB handle.
type Input struct {
	Old        *snapshot.Reader // nil for the very first compaction
	Overlay    *delta.Overlay
	SchemaDefs []snapshot.SchemaEntry
	Generation uint64 // the new generation number to produce
	WALMinTxID uint64 // every tx below this is now represented in the snapshot
}

type inEntry struct {
	etype  graphtypes.EType
	src    graphtypes.NodeID
	outIdx uint32
}

// Run performs one compaction pass, writing the new snapshot file and
// an updated manifest into dir, then pruning WAL segments that are
// wholly subsumed by it (spec §4.7 steps 1-6).
func Run(dir string, in Input) (uint64, error) {
	liveNodes := collectLiveNodes(in)
	newPhys := make(map[graphtypes.NodeID]uint32, len(liveNodes))
	for i, id := range liveNodes {
		newPhys[id] = uint32(i)
	}

	interner := intern.New()

	outEType := make([]byte, 0, len(liveNodes)*4)
	outDst := make([]byte, 0, len(liveNodes)*4)
	outOffsets := make([]byte, 0, (len(liveNodes)+1)*4)
	inLists := make(map[graphtypes.NodeID][]inEntry, len(liveNodes))

	var edgeCount uint32

	for _, id := range liveNodes {
		outOffsets = putU32(outOffsets, edgeCount)
		merged := mergedOutEdges(in, id)
		for _, e := range merged {
			dstPhys, ok := newPhys[e.Other]
			if !ok {
				continue // endpoint removed this generation; drop the dangling edge
			}
			outEType = putU32(outEType, uint32(e.EType))
			outDst = putU32(outDst, dstPhys)
			inLists[e.Other] = append(inLists[e.Other], inEntry{etype: e.EType, src: id, outIdx: edgeCount})
			edgeCount++
		}
	}
	outOffsets = putU32(outOffsets, edgeCount)

	inEType := make([]byte, 0, edgeCount*4)
	inSrc := make([]byte, 0, edgeCount*4)
	inOutIndex := make([]byte, 0, edgeCount*4)
	inOffsets := make([]byte, 0, (len(liveNodes)+1)*4)
	var inCount uint32
	for _, id := range liveNodes {
		inOffsets = putU32(inOffsets, inCount)
		list := inLists[id]
		sort.Slice(list, func(a, b int) bool {
			if list[a].etype != list[b].etype {
				return list[a].etype < list[b].etype
			}
			return newPhys[list[a].src] < newPhys[list[b].src]
		})
		for _, e := range list {
			srcPhys := newPhys[e.src]
			inEType = putU32(inEType, uint32(e.etype))
			inSrc = putU32(inSrc, srcPhys)
			inOutIndex = putU32(inOutIndex, e.outIdx)
			inCount++
		}
	}
	inOffsets = putU32(inOffsets, inCount)

	physToNodeID := make([]byte, 0, len(liveNodes)*8)
	var maxNodeID uint64
	for _, id := range liveNodes {
		physToNodeID = putU64(physToNodeID, uint64(id))
		if uint64(id) > maxNodeID {
			maxNodeID = uint64(id)
		}
	}
	if in.Old != nil && in.Old.MaxNodeID() > maxNodeID {
		maxNodeID = in.Old.MaxNodeID()
	}
	nodeIDToPhys := make([]byte, (maxNodeID+1)*4)
	for i := range nodeIDToPhys {
		nodeIDToPhys[i] = 0xff // -1 sentinel byte pattern, overwritten below where present
	}
	for id, phys := range newPhys {
		putI32At(nodeIDToPhys, uint64(id)*4, int32(phys))
	}

	nodePropMap, err := mergeNodeProps(in, newPhys, interner)
	if err != nil {
		return 0, err
	}
	edgePropMap, err := mergeEdgeProps(in, newPhys, interner)
	if err != nil {
		return 0, err
	}
	keyMap, err := mergeKeys(in, newPhys)
	if err != nil {
		return 0, err
	}

	nodePropEntries := encodeNodeProps(nodePropMap, newPhys, interner)
	edgePropEntries := encodeEdgeProps(edgePropMap, newPhys, interner)
	keyEntries, keyBuckets, numBuckets := encodeKeyIndex(keyMap, interner)

	schemaBytes := snapshot.EncodeSchemaDefs(in.SchemaDefs, func(s string) uint32 { return uint32(interner.Intern(s)) })

	stringBytes, stringOffsets := encodeStringTable(interner)

	build := snapshot.Build{
		Generation:      in.Generation,
		TimestampNs:     uint64(time.Now().UnixNano()),
		NumNodes:        uint64(len(liveNodes)),
		NumEdges:        uint64(edgeCount),
		MaxNodeID:       maxNodeID,
		NumStrings:      uint64(interner.Len()),
		NumBuckets:      numBuckets,
		StringBytes:     stringBytes,
		StringOffsets:   stringOffsets,
		PhysToNodeID:    physToNodeID,
		NodeIDToPhys:    nodeIDToPhys,
		OutOffsets:      outOffsets,
		OutEType:        outEType,
		OutDst:          outDst,
		InOffsets:       inOffsets,
		InSrc:           inSrc,
		InEType:         inEType,
		InOutIndex:      inOutIndex,
		KeyEntries:      keyEntries,
		KeyBuckets:      keyBuckets,
		NodePropEntries: nodePropEntries,
		EdgePropEntries: edgePropEntries,
		VectorManifest:  nil, // internal/vectorstore persists itself independently of graph generations
		SchemaDefs:      schemaBytes,
	}

	path := snapshot.WritePath(dir, in.Generation)
	if err := snapshot.Write(path, build); err != nil {
		return 0, err
	}

	m := manifest.Manifest{
		FormatVersion: uint64(manifest.FormatVersion),
		SnapshotGen:   in.Generation,
		WALMinTxID:    in.WALMinTxID,
	}
	if err := manifest.Write(dir, m); err != nil {
		return 0, err
	}

	if err := wal.PruneOlderThan(filepath.Join(dir, "wal"), in.WALMinTxID); err != nil {
		return 0, err
	}

	return in.Generation, nil
}

func putU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func putI32At(b []byte, off uint64, v int32) {
	u := uint32(v)
	b[off] = byte(u)
	b[off+1] = byte(u >> 8)
	b[off+2] = byte(u >> 16)
	b[off+3] = byte(u >> 24)
}

// collectLiveNodes orders snapshot-originated live nodes by their old
// phys slot (stable, cheap to recompute), followed by this generation's
// newly created nodes sorted by id for determinism.
func collectLiveNodes(in Input) []graphtypes.NodeID {
	var out []graphtypes.NodeID
	if in.Old != nil {
		n := in.Old.NumNodes()
		for phys := uint64(0); phys < n; phys++ {
			id, ok := in.Old.PhysToNodeID(uint32(phys))
			if !ok || in.Overlay.NodeDeleted(id) {
				continue
			}
			out = append(out, id)
		}
	}
	created := in.Overlay.CreatedNodeIDs()
	sort.Slice(created, func(i, j int) bool { return created[i] < created[j] })
	out = append(out, created...)
	return out
}

func mergedOutEdges(in Input, id graphtypes.NodeID) []delta.MergedEdge {
	var snapRow []delta.SnapshotEdge
	if in.Old != nil {
		if phys, ok := in.Old.NodeIDToPhys(id); ok {
			if start, end, ok := in.Old.OutEdges(phys); ok {
				for i := start; i < end; i++ {
					e := in.Old.OutAt(i)
					snapRow = append(snapRow, delta.SnapshotEdge{EType: e.EType, Other: e.Dst})
				}
			}
		}
	}
	m := delta.NewMerge(snapRow, in.Overlay.OutAdds(id), in.Overlay.OutDels(id), in.Overlay.NodeDeleted)
	var out []delta.MergedEdge
	for {
		e, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

type nodePropKey struct {
	node graphtypes.NodeID
	prop graphtypes.PropKey
}

func mergeNodeProps(in Input, newPhys map[graphtypes.NodeID]uint32, interner *intern.Interner) (map[nodePropKey]graphtypes.Value, error) {
	out := make(map[nodePropKey]graphtypes.Value)
	if in.Old != nil {
		entries, err := in.Old.AllNodeProps()
		if err != nil {
			return nil, rayerr.Wrap(rayerr.KindCorruptSnapshot, "read node props for compaction", err)
		}
		for _, e := range entries {
			id, ok := in.Old.PhysToNodeID(e.Phys)
			if !ok {
				continue
			}
			if _, live := newPhys[id]; !live {
				continue
			}
			out[nodePropKey{id, e.Prop}] = e.Value
		}
	}
	for _, e := range in.Overlay.NodePropEntries() {
		if _, live := newPhys[e.Node]; !live {
			continue
		}
		key := nodePropKey{e.Node, e.Prop}
		if e.Value.IsNull() {
			delete(out, key)
			continue
		}
		out[key] = e.Value
	}
	for _, v := range out {
		if v.Tag == graphtypes.TagString {
			interner.Intern(v.Str)
		}
	}
	return out, nil
}

type edgePropKey struct {
	src   graphtypes.NodeID
	etype graphtypes.EType
	dst   graphtypes.NodeID
	prop  graphtypes.PropKey
}

func mergeEdgeProps(in Input, newPhys map[graphtypes.NodeID]uint32, interner *intern.Interner) (map[edgePropKey]graphtypes.Value, error) {
	out := make(map[edgePropKey]graphtypes.Value)
	if in.Old != nil {
		entries, err := in.Old.AllEdgeProps()
		if err != nil {
			return nil, rayerr.Wrap(rayerr.KindCorruptSnapshot, "read edge props for compaction", err)
		}
		for _, e := range entries {
			src, ok := in.Old.PhysToNodeID(e.SrcPhys)
			if !ok {
				continue
			}
			dst, ok := in.Old.PhysToNodeID(e.DstPhys)
			if !ok {
				continue
			}
			if _, live := newPhys[src]; !live {
				continue
			}
			if _, live := newPhys[dst]; !live {
				continue
			}
			out[edgePropKey{src, e.EType, dst, e.Prop}] = e.Value
		}
	}
	for _, e := range in.Overlay.EdgePropEntries() {
		if _, live := newPhys[e.Src]; !live {
			continue
		}
		if _, live := newPhys[e.Dst]; !live {
			continue
		}
		key := edgePropKey{e.Src, e.EType, e.Dst, e.Prop}
		if e.Value.IsNull() {
			delete(out, key)
			continue
		}
		out[key] = e.Value
	}
	for _, v := range out {
		if v.Tag == graphtypes.TagString {
			interner.Intern(v.Str)
		}
	}
	return out, nil
}

func mergeKeys(in Input, newPhys map[graphtypes.NodeID]uint32) (map[string]graphtypes.NodeID, error) {
	out := make(map[string]graphtypes.NodeID)
	if in.Old != nil {
		entries, err := in.Old.AllKeys()
		if err != nil {
			return nil, rayerr.Wrap(rayerr.KindCorruptSnapshot, "read key index for compaction", err)
		}
		for _, e := range entries {
			if _, live := newPhys[e.NodeID]; !live {
				continue
			}
			out[e.Key] = e.NodeID
		}
	}
	for _, e := range in.Overlay.KeyIndexEntries() {
		if _, live := newPhys[e.Node]; !live {
			continue
		}
		out[e.Key] = e.Node
	}
	return out, nil
}

func encodeNodeProps(m map[nodePropKey]graphtypes.Value, newPhys map[graphtypes.NodeID]uint32, interner *intern.Interner) []byte {
	type row struct {
		phys uint32
		prop graphtypes.PropKey
		val  graphtypes.Value
	}
	rows := make([]row, 0, len(m))
	for k, v := range m {
		rows = append(rows, row{phys: newPhys[k.node], prop: k.prop, val: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].phys != rows[j].phys {
			return rows[i].phys < rows[j].phys
		}
		return rows[i].prop < rows[j].prop
	})
	out := make([]byte, 0, len(rows)*21)
	for _, r := range rows {
		tag, raw := snapshot.ValueToRaw(r.val, func(s string) uint32 { return uint32(interner.Intern(s)) })
		out = append(out, snapshot.EncodeNodePropEntry(r.phys, r.prop, tag, raw)...)
	}
	return out
}

func encodeEdgeProps(m map[edgePropKey]graphtypes.Value, newPhys map[graphtypes.NodeID]uint32, interner *intern.Interner) []byte {
	type row struct {
		srcPhys uint32
		etype   graphtypes.EType
		dstPhys uint32
		prop    graphtypes.PropKey
		val     graphtypes.Value
	}
	rows := make([]row, 0, len(m))
	for k, v := range m {
		rows = append(rows, row{srcPhys: newPhys[k.src], etype: k.etype, dstPhys: newPhys[k.dst], prop: k.prop, val: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.srcPhys != b.srcPhys {
			return a.srcPhys < b.srcPhys
		}
		if a.etype != b.etype {
			return a.etype < b.etype
		}
		if a.dstPhys != b.dstPhys {
			return a.dstPhys < b.dstPhys
		}
		return a.prop < b.prop
	})
	out := make([]byte, 0, len(rows)*33)
	for _, r := range rows {
		tag, raw := snapshot.ValueToRaw(r.val, func(s string) uint32 { return uint32(interner.Intern(s)) })
		out = append(out, snapshot.EncodeEdgePropEntry(r.srcPhys, r.etype, r.dstPhys, r.prop, tag, raw)...)
	}
	return out
}

func encodeKeyIndex(m map[string]graphtypes.NodeID, interner *intern.Interner) (entries, buckets []byte, numBuckets uint64) {
	type row struct {
		hash   uint64
		strID  uint32
		nodeID graphtypes.NodeID
	}
	rows := make([]row, 0, len(m))
	for key, id := range m {
		strID := interner.Intern(key)
		rows = append(rows, row{hash: snapshot.HashKey(key), strID: uint32(strID), nodeID: id})
	}
	numBuckets = uint64(len(rows))
	if numBuckets == 0 {
		numBuckets = 1
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		bucketA, bucketB := a.hash%numBuckets, b.hash%numBuckets
		if bucketA != bucketB {
			return bucketA < bucketB
		}
		if a.hash != b.hash {
			return a.hash < b.hash
		}
		if a.strID != b.strID {
			return a.strID < b.strID
		}
		return a.nodeID < b.nodeID
	})
	bucketOffsets := make([]uint32, numBuckets+1)
	for _, r := range rows {
		b := r.hash % numBuckets
		bucketOffsets[b+1]++
	}
	for i := uint64(1); i <= numBuckets; i++ {
		bucketOffsets[i] += bucketOffsets[i-1]
	}
	buckets = make([]byte, 0, (numBuckets+1)*4)
	for _, v := range bucketOffsets {
		buckets = putU32(buckets, v)
	}
	entries = make([]byte, 0, len(rows)*keyEntrySize)
	for _, r := range rows {
		entries = append(entries, snapshot.EncodeKeyEntry(r.hash, r.strID, r.nodeID)...)
	}
	return entries, buckets, numBuckets
}

const keyEntrySize = 8 + 4 + 8

func putU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func encodeStringTable(interner *intern.Interner) (bytesOut, offsets []byte) {
	all := interner.All()
	offsets = make([]byte, 0, (len(all)+1)*4)
	var cursor uint32
	offsets = putU32(offsets, cursor)
	for _, s := range all {
		bytesOut = append(bytesOut, []byte(s)...)
		cursor += uint32(len(s))
		offsets = putU32(offsets, cursor)
	}
	return bytesOut, offsets
}
