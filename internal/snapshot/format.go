// Package snapshot implements the immutable, memory-mapped on-disk graph
// representation of spec §4.1: a CRC-protected section file exposing
// zero-copy typed views over CSR edge arrays, a string table, a bucketed
// key index, and property tables.
package snapshot

import (
	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/rayerr"
)

// Magic is the snapshot file's leading identifier (spec §6).
var Magic = [4]byte{'G', 'D', 'S', 'N'}

// FormatVersion is bumped whenever the section layout changes incompatibly.
const FormatVersion uint32 = 1

// SectionID enumerates the sections listed in spec §4.1.
type SectionID uint16

const (
	SecStringBytes SectionID = iota + 1
	SecStringOffsets
	SecPhysToNodeID
	SecNodeIDToPhys
	SecOutOffsets
	SecOutEType
	SecOutDst
	SecInOffsets
	SecInSrc
	SecInEType
	SecInOutIndex
	SecKeyEntries
	SecKeyBuckets
	SecNodePropEntries
	SecEdgePropEntries
	SecVectorManifest
	// SecSchemaDefs is not named in spec §4.1's section list, which
	// enumerates the graph/property sections but leaves label/etype/
	// propkey name durability unaddressed. Since schema ids must survive
	// a compaction (old WAL segments that defined them are truncated),
	// this engine persists them as a small extra section: records of
	// (kind u8, id u32, name string_id u32), spec §8 property 1 ("every
	// get* query returns the same result post-reopen").
	SecSchemaDefs
)

// sectionTableEntry is the on-disk (section_id, offset, length, crc32c)
// tuple from spec §6.
type sectionTableEntry struct {
	ID     SectionID
	Offset uint64
	Length uint64
	CRC32C uint32
}

// Header mirrors the fixed fields of spec §4.1: "magic, format version,
// generation, numNodes, numEdges, maxNodeId, numStrings, and per-section
// byte offsets/lengths."
type Header struct {
	FormatVersion uint32
	Generation    uint64
	TimestampNs   uint64
	NumNodes      uint64
	NumEdges      uint64
	MaxNodeID     uint64
	NumStrings    uint64
	NumBuckets    uint64

	sections map[SectionID]sectionTableEntry
}

// AllSections is the fixed section order used by both Writer and Reader,
// so the header's section count (and therefore its size) never varies
// between snapshots — offsets in the table are always absolute file
// offsets computed after this fixed-size header.
var AllSections = []SectionID{
	SecStringBytes, SecStringOffsets,
	SecPhysToNodeID, SecNodeIDToPhys,
	SecOutOffsets, SecOutEType, SecOutDst,
	SecInOffsets, SecInSrc, SecInEType, SecInOutIndex,
	SecKeyEntries, SecKeyBuckets,
	SecNodePropEntries, SecEdgePropEntries,
	SecVectorManifest,
	SecSchemaDefs,
}

const headerFixedLen = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 8 + 8 // magic+version+gen+ts+nodes+edges+maxid+strings+buckets

func encodeHeader(h Header, order []SectionID) []byte {
	w := codec.NewWriter(headerFixedLen + 4 + len(order)*(2+8+8+4))
	w.PutBytes(Magic[:])
	w.PutU32(h.FormatVersion)
	w.PutU64(h.Generation)
	w.PutU64(h.TimestampNs)
	w.PutU64(h.NumNodes)
	w.PutU64(h.NumEdges)
	w.PutU64(h.MaxNodeID)
	w.PutU64(h.NumStrings)
	w.PutU64(h.NumBuckets)
	w.PutU32(uint32(len(order)))
	for _, id := range order {
		e := h.sections[id]
		w.PutU16(uint16(id))
		w.PutU64(e.Offset)
		w.PutU64(e.Length)
		w.PutU32(e.CRC32C)
	}
	return w.Bytes()
}

func decodeHeader(buf []byte) (Header, int, error) {
	r := codec.NewReader(buf)
	magic, err := r.Bytes(4)
	if err != nil {
		return Header{}, 0, rayerr.Wrap(rayerr.KindCorruptSnapshot, "truncated header", err)
	}
	if magic[0] != Magic[0] || magic[1] != Magic[1] || magic[2] != Magic[2] || magic[3] != Magic[3] {
		return Header{}, 0, rayerr.New(rayerr.KindCorruptSnapshot, "bad magic")
	}
	h := Header{sections: make(map[SectionID]sectionTableEntry)}
	var derr error
	must := func(v uint64, err error) uint64 {
		if err != nil && derr == nil {
			derr = err
		}
		return v
	}
	mustU32 := func(v uint32, err error) uint32 {
		if err != nil && derr == nil {
			derr = err
		}
		return v
	}
	h.FormatVersion = mustU32(r.U32())
	h.Generation = must(r.U64())
	h.TimestampNs = must(r.U64())
	h.NumNodes = must(r.U64())
	h.NumEdges = must(r.U64())
	h.MaxNodeID = must(r.U64())
	h.NumStrings = must(r.U64())
	h.NumBuckets = must(r.U64())
	count := mustU32(r.U32())
	if derr != nil {
		return Header{}, 0, rayerr.Wrap(rayerr.KindCorruptSnapshot, "truncated header", derr)
	}
	for i := uint32(0); i < count; i++ {
		id16, err := r.U16()
		if err != nil && derr == nil {
			derr = err
		}
		off := must(r.U64())
		length := must(r.U64())
		crc := mustU32(r.U32())
		if derr != nil {
			return Header{}, 0, rayerr.Wrap(rayerr.KindCorruptSnapshot, "truncated section table", derr)
		}
		h.sections[SectionID(id16)] = sectionTableEntry{ID: SectionID(id16), Offset: off, Length: length, CRC32C: crc}
	}
	if h.FormatVersion != FormatVersion {
		return Header{}, 0, rayerr.New(rayerr.KindCorruptSnapshot, "unsupported format version")
	}
	return h, r.Pos(), nil
}

func (h Header) section(id SectionID) (sectionTableEntry, bool) {
	e, ok := h.sections[id]
	return e, ok
}
