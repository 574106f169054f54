// Package container implements spec §4.9: an alternative single-file
// layout that packs the manifest, snapshot, and WAL into one file behind
// a section directory, instead of the multi-file directory layout
// internal/graphdb uses by default. Format grounded on
// internal/snapshot.Write's header-plus-section-table-plus-CRC32C
// convention, applied to a single container file.
package container

import (
	"os"
	"path/filepath"

	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/rayerr"
)

// Magic identifies a raydb single-file container (spec §6: "<name>.raydb").
const Magic = "RDBC"

// FormatVersion is bumped whenever the container section-directory layout
// changes incompatibly.
const FormatVersion = 1

// Region identifies one of the three payloads packed into a container.
type Region uint8

const (
	RegionManifest Region = iota
	RegionSnapshot
	RegionWAL
)

// sectionEntry is one row of the section directory: where a region's
// bytes live and how much of its reserved space is actually used.
type sectionEntry struct {
	Region Region
	Offset uint64
	Length uint64 // bytes currently in use
	Cap    uint64 // reserved space, for in-place WAL growth before a rewrite
	CRC32C uint32
}

const sectionEntrySize = 1 + 8 + 8 + 8 + 4
const numRegions = 3

// Container is an open single-file database handle. WAL appends go
// in-place into the reserved WAL region until it fills; filling triggers
// a Rewrite that repacks the manifest and snapshot sections and resets
// the WAL cursor (spec §4.9).
type Container struct {
	path string

	manifest []byte
	snapshot []byte
	walCap   uint64
	walUsed  uint64
	walBuf   []byte
}

// defaultWALCap is the reserved WAL region size of a newly created
// container. Open keeps the capacity recorded in the file; nothing
// resizes the region afterwards.
const defaultWALCap = 8 << 20

// Create writes a brand-new container file with empty snapshot/WAL
// payloads and the given manifest bytes.
func Create(path string, manifestBytes []byte) (*Container, error) {
	c := &Container{
		path:     path,
		manifest: manifestBytes,
		walCap:   defaultWALCap,
	}
	if err := c.publish(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open loads an existing container file, verifying the committed
// section-directory pointer and every region's CRC32C.
func Open(path string) (*Container, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "read container", err)
	}
	if len(raw) < 4 {
		return nil, rayerr.New(rayerr.KindCorruptSnapshot, "container: short file")
	}
	r := codec.NewReader(raw)
	magic, err := r.Bytes(4)
	if err != nil || string(magic) != Magic {
		return nil, rayerr.New(rayerr.KindCorruptSnapshot, "container: bad magic")
	}
	if _, err := r.U32(); err != nil { // format version, unused for now
		return nil, wrapShort(err)
	}

	// The committed section-directory pointer is written last (spec
	// §4.9): read it, then decode the directory it points at.
	dirOffset, err := r.U64()
	if err != nil {
		return nil, wrapShort(err)
	}
	if dirOffset+uint64(numRegions*sectionEntrySize) > uint64(len(raw)) {
		return nil, rayerr.New(rayerr.KindCorruptSnapshot, "container: directory pointer out of range")
	}

	dr := r.At(int(dirOffset))
	entries := make(map[Region]sectionEntry, numRegions)
	for i := 0; i < numRegions; i++ {
		region, err := dr.U8()
		if err != nil {
			return nil, wrapShort(err)
		}
		off, err := dr.U64()
		if err != nil {
			return nil, wrapShort(err)
		}
		length, err := dr.U64()
		if err != nil {
			return nil, wrapShort(err)
		}
		cap_, err := dr.U64()
		if err != nil {
			return nil, wrapShort(err)
		}
		sum, err := dr.U32()
		if err != nil {
			return nil, wrapShort(err)
		}
		entries[Region(region)] = sectionEntry{Region(region), off, length, cap_, sum}
	}

	fetch := func(reg Region) ([]byte, error) {
		e, ok := entries[reg]
		if !ok {
			return nil, rayerr.New(rayerr.KindCorruptSnapshot, "container: missing region")
		}
		if e.Offset+e.Length > uint64(len(raw)) {
			return nil, rayerr.New(rayerr.KindCorruptSnapshot, "container: region out of range")
		}
		data := raw[e.Offset : e.Offset+e.Length]
		if !codec.VerifyChecksum32C(data, e.CRC32C) {
			return nil, rayerr.New(rayerr.KindCorruptSnapshot, "container: region checksum mismatch")
		}
		return append([]byte(nil), data...), nil
	}

	manifestBytes, err := fetch(RegionManifest)
	if err != nil {
		return nil, err
	}
	snapshotBytes, err := fetch(RegionSnapshot)
	if err != nil {
		return nil, err
	}

	walEntry := entries[RegionWAL]
	walRegion := raw[walEntry.Offset : walEntry.Offset+walEntry.Cap]
	walUsed := walEntry.Length
	if walUsed > 0 {
		used := walRegion[:walUsed]
		if !codec.VerifyChecksum32C(used, walEntry.CRC32C) {
			return nil, rayerr.New(rayerr.KindCorruptWALTail, "container: WAL region checksum mismatch")
		}
	}

	return &Container{
		path:     path,
		manifest: manifestBytes,
		snapshot: snapshotBytes,
		walCap:   walEntry.Cap,
		walUsed:  walUsed,
		walBuf:   append([]byte(nil), walRegion[:walUsed]...),
	}, nil
}

// Manifest returns the currently packed manifest bytes.
func (c *Container) Manifest() []byte { return c.manifest }

// Snapshot returns the currently packed snapshot bytes.
func (c *Container) Snapshot() []byte { return c.snapshot }

// WAL returns the bytes appended to the in-place WAL region so far.
func (c *Container) WAL() []byte { return c.walBuf }

// AppendWAL appends a record's bytes to the reserved WAL region in
// place, reporting whether the region is now full and a Rewrite is
// needed (spec §4.9: "appends in-place ... until a threshold").
func (c *Container) AppendWAL(record []byte) (needsRewrite bool, err error) {
	if c.walUsed+uint64(len(record)) > c.walCap {
		return true, nil
	}
	f, err := os.OpenFile(c.path, os.O_WRONLY, 0o644)
	if err != nil {
		return false, rayerr.Wrap(rayerr.KindIO, "open container for WAL append", err)
	}
	defer f.Close()

	e, off, err := c.walDirEntry()
	if err != nil {
		return false, err
	}
	writeOffset := off + c.walUsed
	if _, err := f.WriteAt(record, int64(writeOffset)); err != nil {
		return false, rayerr.Wrap(rayerr.KindIO, "append WAL region", err)
	}
	if err := f.Sync(); err != nil {
		return false, rayerr.Wrap(rayerr.KindIO, "fsync WAL append", err)
	}

	c.walBuf = append(c.walBuf, record...)
	c.walUsed += uint64(len(record))
	e.Length = c.walUsed
	e.CRC32C = codec.Checksum32C(c.walBuf)
	return false, c.rewriteDirectory(e)
}

func (c *Container) walDirEntry() (sectionEntry, uint64, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return sectionEntry{}, 0, rayerr.Wrap(rayerr.KindIO, "read container for WAL offset lookup", err)
	}
	r := codec.NewReader(raw)
	if _, err := r.Bytes(4); err != nil {
		return sectionEntry{}, 0, wrapShort(err)
	}
	if _, err := r.U32(); err != nil {
		return sectionEntry{}, 0, wrapShort(err)
	}
	dirOffset, err := r.U64()
	if err != nil {
		return sectionEntry{}, 0, wrapShort(err)
	}
	dr := r.At(int(dirOffset))
	for i := 0; i < numRegions; i++ {
		region, _ := dr.U8()
		off, _ := dr.U64()
		length, _ := dr.U64()
		cap_, _ := dr.U64()
		sum, _ := dr.U32()
		if Region(region) == RegionWAL {
			return sectionEntry{RegionWAL, off, length, cap_, sum}, off, nil
		}
	}
	return sectionEntry{}, 0, rayerr.New(rayerr.KindCorruptSnapshot, "container: WAL region not found")
}

// rewriteDirectory republishes the container with an updated WAL section
// entry after an in-place append, keeping the on-disk directory in sync
// with walBuf.
func (c *Container) rewriteDirectory(updatedWAL sectionEntry) error {
	entries := map[Region]sectionEntry{RegionWAL: updatedWAL}
	return c.publishWith(entries)
}

// Rewrite repacks the manifest and snapshot sections with fresh bytes and
// resets the WAL cursor to empty (spec §4.9: "trigger a compaction that
// rewrites the packed snapshot section and resets the WAL cursor").
func (c *Container) Rewrite(manifestBytes, snapshotBytes []byte) error {
	c.manifest = manifestBytes
	c.snapshot = snapshotBytes
	c.walUsed = 0
	c.walBuf = nil
	return c.publish()
}

// publish writes the full container from scratch: header, reserved
// regions, and a section directory written last via its own committed
// pointer (spec §4.9: "preserved via a committed-section-directory
// pointer that is written last").
func (c *Container) publish() error {
	return c.publishWith(nil)
}

func (c *Container) publishWith(overrides map[Region]sectionEntry) error {
	headerLen := uint64(4 + 4 + 8) // magic + version + dir-pointer placeholder

	manifestOff := headerLen
	manifestEntry := sectionEntry{RegionManifest, manifestOff, uint64(len(c.manifest)), uint64(len(c.manifest)), codec.Checksum32C(c.manifest)}

	snapshotOff := manifestOff + manifestEntry.Cap
	snapshotEntry := sectionEntry{RegionSnapshot, snapshotOff, uint64(len(c.snapshot)), uint64(len(c.snapshot)), codec.Checksum32C(c.snapshot)}

	walOff := snapshotOff + snapshotEntry.Cap
	walEntry := sectionEntry{RegionWAL, walOff, c.walUsed, c.walCap, codec.Checksum32C(c.walBuf)}

	if e, ok := overrides[RegionWAL]; ok {
		walEntry = e
	}

	dirOffset := walOff + walEntry.Cap

	w := codec.NewWriter(int(dirOffset) + numRegions*sectionEntrySize)
	w.PutBytes([]byte(Magic))
	w.PutU32(FormatVersion)
	w.PutU64(dirOffset)

	w.PutBytes(c.manifest)
	w.PutBytes(make([]byte, manifestEntry.Cap-manifestEntry.Length))
	w.PutBytes(c.snapshot)
	w.PutBytes(make([]byte, snapshotEntry.Cap-snapshotEntry.Length))
	w.PutBytes(c.walBuf)
	w.PutBytes(make([]byte, walEntry.Cap-walEntry.Length))

	for _, e := range []sectionEntry{manifestEntry, snapshotEntry, walEntry} {
		w.PutU8(uint8(e.Region))
		w.PutU64(e.Offset)
		w.PutU64(e.Length)
		w.PutU64(e.Cap)
		w.PutU32(e.CRC32C)
	}

	return writeDurable(c.path, w.Bytes())
}

func writeDurable(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "mkdir container dir", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "write temp container", err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "reopen temp container", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return rayerr.Wrap(rayerr.KindIO, "fsync temp container", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "rename container into place", err)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "open container dir for fsync", err)
	}
	defer dir.Close()
	return dir.Sync()
}

func wrapShort(err error) error {
	return rayerr.Wrap(rayerr.KindCorruptSnapshot, "container: truncated", err)
}
