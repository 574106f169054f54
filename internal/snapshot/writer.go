package snapshot

import (
	"os"
	"path/filepath"

	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/rayerr"
)

// Build is the fully materialized set of section bytes the compactor
// produces for one new generation (spec §4.7 step 3-5). Each field is
// already encoded in its on-disk little-endian layout; Write only adds
// the header, section table, and per-section CRCs.
type Build struct {
	Generation  uint64
	TimestampNs uint64
	NumNodes    uint64
	NumEdges    uint64
	MaxNodeID   uint64
	NumStrings  uint64
	NumBuckets  uint64

	StringBytes     []byte
	StringOffsets   []byte
	PhysToNodeID    []byte
	NodeIDToPhys    []byte
	OutOffsets      []byte
	OutEType        []byte
	OutDst          []byte
	InOffsets       []byte
	InSrc           []byte
	InEType         []byte
	InOutIndex      []byte
	KeyEntries      []byte
	KeyBuckets      []byte
	NodePropEntries []byte
	EdgePropEntries []byte
	VectorManifest  []byte
	SchemaDefs      []byte
}

func (b Build) bytesFor(id SectionID) []byte {
	switch id {
	case SecStringBytes:
		return b.StringBytes
	case SecStringOffsets:
		return b.StringOffsets
	case SecPhysToNodeID:
		return b.PhysToNodeID
	case SecNodeIDToPhys:
		return b.NodeIDToPhys
	case SecOutOffsets:
		return b.OutOffsets
	case SecOutEType:
		return b.OutEType
	case SecOutDst:
		return b.OutDst
	case SecInOffsets:
		return b.InOffsets
	case SecInSrc:
		return b.InSrc
	case SecInEType:
		return b.InEType
	case SecInOutIndex:
		return b.InOutIndex
	case SecKeyEntries:
		return b.KeyEntries
	case SecKeyBuckets:
		return b.KeyBuckets
	case SecNodePropEntries:
		return b.NodePropEntries
	case SecEdgePropEntries:
		return b.EdgePropEntries
	case SecVectorManifest:
		return b.VectorManifest
	case SecSchemaDefs:
		return b.SchemaDefs
	default:
		return nil
	}
}

// WritePath builds the generation's canonical file path, e.g.
// "<dir>/snapshots/<generation>.gds".
func WritePath(dir string, generation uint64) string {
	return filepath.Join(dir, "snapshots", formatGen(generation)+".gds")
}

func formatGen(gen uint64) string {
	// zero-padded so directory listings sort in generation order
	const width = 20
	s := make([]byte, 0, width)
	digits := []byte{}
	if gen == 0 {
		digits = []byte{'0'}
	}
	for gen > 0 {
		digits = append([]byte{byte('0' + gen%10)}, digits...)
		gen /= 10
	}
	for len(digits)+len(s) < width {
		s = append(s, '0')
	}
	return string(append(s, digits...))
}

// Write serializes b to path via temp-file-then-rename, fsyncing both the
// file and its containing directory before returning — spec §3
// "Snapshots are written atomically (write-to-temp + rename + fsync
// directory)".
func Write(path string, b Build) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "mkdir snapshot dir", err)
	}

	h := Header{
		FormatVersion: FormatVersion,
		Generation:    b.Generation,
		TimestampNs:   b.TimestampNs,
		NumNodes:      b.NumNodes,
		NumEdges:      b.NumEdges,
		MaxNodeID:     b.MaxNodeID,
		NumStrings:    b.NumStrings,
		NumBuckets:    b.NumBuckets,
		sections:      make(map[SectionID]sectionTableEntry),
	}

	headerLen := len(encodeHeader(Header{sections: placeholderSections()}, AllSections))
	offset := uint64(headerLen)
	for _, id := range AllSections {
		data := b.bytesFor(id)
		h.sections[id] = sectionTableEntry{
			ID:     id,
			Offset: offset,
			Length: uint64(len(data)),
			CRC32C: codec.Checksum32C(data),
		}
		offset += uint64(len(data))
	}

	out := make([]byte, 0, offset)
	out = append(out, encodeHeader(h, AllSections)...)
	for _, id := range AllSections {
		out = append(out, b.bytesFor(id)...)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "write temp snapshot", err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "reopen temp snapshot", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return rayerr.Wrap(rayerr.KindIO, "fsync temp snapshot", err)
	}
	f.Close()

	if err := os.Rename(tmp, path); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "rename snapshot into place", err)
	}

	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "open snapshot dir for fsync", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "fsync snapshot dir", err)
	}
	return nil
}

func placeholderSections() map[SectionID]sectionTableEntry {
	m := make(map[SectionID]sectionTableEntry, len(AllSections))
	for _, id := range AllSections {
		m[id] = sectionTableEntry{ID: id}
	}
	return m
}
