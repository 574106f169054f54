package snapshot

import (
	"encoding/binary"

	"github.com/raydb/raydb/internal/rayerr"
)

// CheckFull runs every invariant of spec §4.1 ("Invariants verified ...
// on demand (full)"): offset monotonicity, id-mapping bijection, edge
// sort order, reciprocal consistency, key-index ordering, and
// string-table bounds. It is the engine behind "raydbctl check" and is
// never run automatically on open.
func (r *Reader) CheckFull() error {
	if err := r.checkCheap(); err != nil {
		return err
	}
	if err := r.checkOffsetMonotonicity(); err != nil {
		return err
	}
	if err := r.checkBijection(); err != nil {
		return err
	}
	if err := r.checkEdgeOrderAndReciprocity(); err != nil {
		return err
	}
	if err := r.checkKeyIndexOrder(); err != nil {
		return err
	}
	if err := r.checkStringTableBounds(); err != nil {
		return err
	}
	return nil
}

func (r *Reader) checkOffsetMonotonicity() error {
	check := func(sec []byte, n uint64, label string) error {
		if uint64(len(sec)) < (n+1)*4 {
			return rayerr.New(rayerr.KindCorruptSnapshot, label+": too short for offsets array")
		}
		prev := uint32(0)
		for i := uint64(0); i <= n; i++ {
			v := binary.LittleEndian.Uint32(sec[i*4:])
			if v < prev {
				return rayerr.New(rayerr.KindCorruptSnapshot, label+": offsets not monotonic")
			}
			prev = v
		}
		return nil
	}
	if err := check(r.section(SecOutOffsets), r.header.NumNodes, "out_offsets"); err != nil {
		return err
	}
	if err := check(r.section(SecInOffsets), r.header.NumNodes, "in_offsets"); err != nil {
		return err
	}
	out := r.section(SecOutOffsets)
	if r.header.NumNodes > 0 {
		last := binary.LittleEndian.Uint32(out[r.header.NumNodes*4:])
		if uint64(last) != r.header.NumEdges {
			return rayerr.New(rayerr.KindCorruptSnapshot, "out_offsets[numNodes] != numEdges")
		}
	}
	return nil
}

func (r *Reader) checkBijection() error {
	seen := make(map[uint32]bool, r.header.NumNodes)
	for phys := uint64(0); phys < r.header.NumNodes; phys++ {
		id, ok := r.PhysToNodeID(uint32(phys))
		if !ok {
			return rayerr.New(rayerr.KindCorruptSnapshot, "phys_to_nodeid: missing entry")
		}
		backPhys, ok := r.NodeIDToPhys(id)
		if !ok || uint64(backPhys) != phys {
			return rayerr.New(rayerr.KindCorruptSnapshot, "nodeid_to_phys: not a bijection")
		}
		if seen[uint32(phys)] {
			return rayerr.New(rayerr.KindCorruptSnapshot, "phys_to_nodeid: duplicate slot")
		}
		seen[uint32(phys)] = true
	}
	return nil
}

func (r *Reader) checkEdgeOrderAndReciprocity() error {
	for phys := uint64(0); phys < r.header.NumNodes; phys++ {
		start, end, ok := r.outRange(uint32(phys))
		if !ok {
			return rayerr.New(rayerr.KindCorruptSnapshot, "out_offsets: range lookup failed")
		}
		var prevEType uint32
		var prevDst uint32
		first := true
		for idx := start; idx < end; idx++ {
			e := r.OutAt(idx)
			dstPhys, ok := r.NodeIDToPhys(e.Dst)
			if !ok {
				return rayerr.New(rayerr.KindCorruptSnapshot, "out edge: dst not in id mapping")
			}
			if !first {
				if uint32(e.EType) < prevEType || (uint32(e.EType) == prevEType && dstPhys < prevDst) {
					return rayerr.New(rayerr.KindCorruptSnapshot, "out edges not sorted by (etype, dst)")
				}
				if uint32(e.EType) == prevEType && dstPhys == prevDst {
					return rayerr.New(rayerr.KindCorruptSnapshot, "duplicate out edge")
				}
			}
			prevEType, prevDst, first = uint32(e.EType), dstPhys, false

			// reciprocal check: in_out_index of the matching in-edge
			// must point back to idx (spec §3 invariant).
			inStart, inEnd, ok := r.inRange(dstPhys)
			if !ok {
				return rayerr.New(rayerr.KindCorruptSnapshot, "in_offsets: range lookup failed for reciprocal")
			}
			found := false
			for j := inStart; j < inEnd; j++ {
				ie := r.InAt(j)
				if ie.OutIdx == idx {
					found = true
					break
				}
			}
			if !found {
				return rayerr.New(rayerr.KindCorruptSnapshot, "out edge has no reciprocal in-edge")
			}
		}
	}
	return nil
}

func (r *Reader) checkKeyIndexOrder() error {
	buckets := r.section(SecKeyBuckets)
	entries := r.section(SecKeyEntries)
	if len(buckets) == 0 {
		return nil
	}
	for b := uint64(0); b < r.header.NumBuckets; b++ {
		start := binary.LittleEndian.Uint32(buckets[b*4:])
		end := binary.LittleEndian.Uint32(buckets[(b+1)*4:])
		var prevHash uint64
		var prevStr uint32
		var prevNode uint64
		first := true
		for pos := start; pos < end; pos++ {
			off := pos * keyEntrySize
			h := binary.LittleEndian.Uint64(entries[off:])
			if got := h % r.header.NumBuckets; got != b {
				return rayerr.New(rayerr.KindCorruptSnapshot, "key entry in wrong bucket")
			}
			strID := binary.LittleEndian.Uint32(entries[off+8:])
			nodeID := binary.LittleEndian.Uint64(entries[off+12:])
			if !first {
				less := h < prevHash ||
					(h == prevHash && strID < prevStr) ||
					(h == prevHash && strID == prevStr && nodeID < prevNode)
				if less {
					return rayerr.New(rayerr.KindCorruptSnapshot, "key_entries not sorted within bucket")
				}
			}
			prevHash, prevStr, prevNode, first = h, strID, nodeID, false
		}
	}
	return nil
}

func (r *Reader) checkStringTableBounds() error {
	offsets := r.section(SecStringOffsets)
	strBytes := r.section(SecStringBytes)
	if len(offsets) == 0 {
		return nil
	}
	n := len(offsets)/4 - 1
	if uint64(n) != r.header.NumStrings {
		return rayerr.New(rayerr.KindCorruptSnapshot, "string_offsets length mismatch with numStrings")
	}
	last := binary.LittleEndian.Uint32(offsets[n*4:])
	if int(last) != len(strBytes) {
		return rayerr.New(rayerr.KindCorruptSnapshot, "string_offsets last entry != len(string_bytes)")
	}
	prev := uint32(0)
	for i := 0; i <= n; i++ {
		v := binary.LittleEndian.Uint32(offsets[i*4:])
		if v < prev {
			return rayerr.New(rayerr.KindCorruptSnapshot, "string_offsets not monotonic")
		}
		prev = v
	}
	return nil
}
