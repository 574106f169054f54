package snapshot

import (
	"encoding/binary"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"

	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/rayerr"
)

// Reader is an mmapped, read-only view over one snapshot generation. All
// accessors decode on demand from the mapped bytes; nothing is
// materialized until the caller asks for a value (spec §4.1 "no data is
// copied until the caller requests a materialized value").
type Reader struct {
	file   *os.File
	mm     mmap.MMap
	header Header
	path   string
}

// Open mmaps the snapshot file at path and parses its header. It performs
// only the cheap invariant checks of spec §4.1 ("verified on open
// (cheap)"); CheckFull performs the expensive ones.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "open snapshot file", err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, rayerr.Wrap(rayerr.KindIO, "mmap snapshot file", err)
	}
	h, _, err := decodeHeader([]byte(m))
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	r := &Reader{file: f, mm: m, header: h, path: path}
	if err := r.checkCheap(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Close unmaps the file. Spec §4.1 describes reference-counted unmapping
// ("closing the reader unmaps the file only when the last outstanding
// borrow is released"); in this engine the graphdb layer guarantees no
// borrow outlives the Reader it came from, so Close unconditionally
// unmaps.
func (r *Reader) Close() error {
	if err := r.mm.Unmap(); err != nil {
		r.file.Close()
		return rayerr.Wrap(rayerr.KindIO, "munmap snapshot", err)
	}
	return r.file.Close()
}

func (r *Reader) Generation() uint64 { return r.header.Generation }
func (r *Reader) NumNodes() uint64   { return r.header.NumNodes }
func (r *Reader) NumEdges() uint64   { return r.header.NumEdges }
func (r *Reader) MaxNodeID() uint64  { return r.header.MaxNodeID }
func (r *Reader) Path() string       { return r.path }

func (r *Reader) section(id SectionID) []byte {
	e, ok := r.header.section(id)
	if !ok || e.Length == 0 {
		return nil
	}
	return []byte(r.mm)[e.Offset : e.Offset+e.Length]
}

func (r *Reader) checkCheap() error {
	for _, id := range AllSections {
		e, ok := r.header.section(id)
		if !ok {
			continue
		}
		data := r.section(id)
		if uint64(len(data)) != e.Length {
			return rayerr.New(rayerr.KindCorruptSnapshot, "section length mismatch")
		}
		if e.Length > 0 && !codec.VerifyChecksum32C(data, e.CRC32C) {
			return rayerr.New(rayerr.KindCorruptSnapshot, "section CRC mismatch")
		}
	}
	return nil
}

// ---- string table ----

// String resolves a string_id into its UTF-8 text.
func (r *Reader) String(id uint32) (string, error) {
	offsets := r.section(SecStringOffsets)
	bytesSec := r.section(SecStringBytes)
	if int(id)+1 >= len(offsets)/4 {
		return "", rayerr.New(rayerr.KindInvalidArgument, "string id out of range")
	}
	start := binary.LittleEndian.Uint32(offsets[id*4:])
	end := binary.LittleEndian.Uint32(offsets[(id+1)*4:])
	if end < start || int(end) > len(bytesSec) {
		return "", rayerr.New(rayerr.KindCorruptSnapshot, "string offsets out of bounds")
	}
	return string(bytesSec[start:end]), nil
}

// ---- id mapping ----

// PhysToNodeID maps a snapshot-local physical slot to its stable node id.
func (r *Reader) PhysToNodeID(phys uint32) (graphtypes.NodeID, bool) {
	sec := r.section(SecPhysToNodeID)
	if uint64(phys) >= r.header.NumNodes || (phys+1)*8 > uint32(len(sec)) {
		return 0, false
	}
	return graphtypes.NodeID(binary.LittleEndian.Uint64(sec[phys*8:])), true
}

// NodeIDToPhys maps a stable node id to its physical slot in this
// snapshot, or false if the id is absent (tombstoned or never in this
// generation).
func (r *Reader) NodeIDToPhys(id graphtypes.NodeID) (uint32, bool) {
	sec := r.section(SecNodeIDToPhys)
	if uint64(id) > r.header.MaxNodeID {
		return 0, false
	}
	off := uint64(id) * 4
	if off+4 > uint64(len(sec)) {
		return 0, false
	}
	v := int32(binary.LittleEndian.Uint32(sec[off:]))
	if v < 0 {
		return 0, false
	}
	return uint32(v), true
}

// ---- CSR edges ----

func (r *Reader) outRange(phys uint32) (uint32, uint32, bool) {
	sec := r.section(SecOutOffsets)
	if uint64(phys)+1 >= r.header.NumNodes+1 {
		return 0, 0, false
	}
	start := binary.LittleEndian.Uint32(sec[phys*4:])
	end := binary.LittleEndian.Uint32(sec[(phys+1)*4:])
	return start, end, true
}

func (r *Reader) inRange(phys uint32) (uint32, uint32, bool) {
	sec := r.section(SecInOffsets)
	if uint64(phys)+1 >= r.header.NumNodes+1 {
		return 0, 0, false
	}
	start := binary.LittleEndian.Uint32(sec[phys*4:])
	end := binary.LittleEndian.Uint32(sec[(phys+1)*4:])
	return start, end, true
}

// OutEdge is one decoded out-edge row.
type OutEdge struct {
	EType graphtypes.EType
	Dst   graphtypes.NodeID
}

// OutEdges returns the sorted (etype, dst) rows for phys's out-adjacency,
// a zero-copy slice view decoded lazily by the caller via OutAt.
func (r *Reader) OutEdges(phys uint32) (start, end uint32, ok bool) {
	return r.outRange(phys)
}

// OutAt decodes the out-edge at CSR position idx.
func (r *Reader) OutAt(idx uint32) OutEdge {
	et := r.section(SecOutEType)
	dst := r.section(SecOutDst)
	etype := binary.LittleEndian.Uint32(et[idx*4:])
	dstPhys := binary.LittleEndian.Uint32(dst[idx*4:])
	nodeID, _ := r.PhysToNodeID(dstPhys)
	return OutEdge{EType: graphtypes.EType(etype), Dst: nodeID}
}

// InEdge is one decoded in-edge row.
type InEdge struct {
	EType  graphtypes.EType
	Src    graphtypes.NodeID
	OutIdx uint32
}

// InEdges returns the CSR range for phys's in-adjacency.
func (r *Reader) InEdges(phys uint32) (start, end uint32, ok bool) {
	return r.inRange(phys)
}

// InAt decodes the in-edge at CSR position idx.
func (r *Reader) InAt(idx uint32) InEdge {
	et := r.section(SecInEType)
	src := r.section(SecInSrc)
	oi := r.section(SecInOutIndex)
	etype := binary.LittleEndian.Uint32(et[idx*4:])
	srcPhys := binary.LittleEndian.Uint32(src[idx*4:])
	outIdx := binary.LittleEndian.Uint32(oi[idx*4:])
	nodeID, _ := r.PhysToNodeID(srcPhys)
	return InEdge{EType: graphtypes.EType(etype), Src: nodeID, OutIdx: outIdx}
}

// FindOutEdge binary-searches phys's out-adjacency for (etype, dstPhys),
// returning the CSR index if present.
func (r *Reader) FindOutEdge(phys uint32, etype graphtypes.EType, dstPhys uint32) (uint32, bool) {
	start, end, ok := r.outRange(phys)
	if !ok {
		return 0, false
	}
	et := r.section(SecOutEType)
	dst := r.section(SecOutDst)
	lo, hi := start, end
	idx := uint32(sort.Search(int(hi-lo), func(i int) bool {
		p := lo + uint32(i)
		pe := binary.LittleEndian.Uint32(et[p*4:])
		pd := binary.LittleEndian.Uint32(dst[p*4:])
		if pe != uint32(etype) {
			return pe >= uint32(etype)
		}
		return pd >= dstPhys
	}))
	idx += lo
	if idx >= hi {
		return 0, false
	}
	pe := binary.LittleEndian.Uint32(et[idx*4:])
	pd := binary.LittleEndian.Uint32(dst[idx*4:])
	if pe == uint32(etype) && pd == dstPhys {
		return idx, true
	}
	return 0, false
}
