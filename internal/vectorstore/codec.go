// Package vectorstore implements spec §4.10: a columnar store for vectors
// associated with node-ids, kept outside the row/edge tables. Format
// grounded on internal/snapshot's magic-header-plus-CRC32C convention and
// internal/codec's fixed-width little-endian primitives.
package vectorstore

import (
	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/rayerr"
)

// ManifestMagic identifies a serialized vector manifest blob (spec §6).
const ManifestMagic = "VEC1"

// Metric selects the distance function vectors in this store are
// compared with.
type Metric uint8

const (
	MetricCosine Metric = iota
	MetricL2
	MetricDot
)

// Manifest is the store-wide configuration block (spec §4.10):
// (dimensions, metric, row_group_size, fragment_target_size, normalize?).
type Manifest struct {
	Dimensions         uint32
	Metric             Metric
	RowGroupSize       uint32
	FragmentTargetSize uint32
	Normalize          bool

	NextFragmentID uint32
	Fragments      []FragmentMeta
	NodeToVector   map[uint64]uint64 // node_id -> vector_id
}

// FragmentMeta records where a fragment's bytes live and its lifecycle
// state, as persisted inside the manifest blob.
type FragmentMeta struct {
	ID       uint32
	State    FragmentState
	RowCount uint32 // live + deleted rows currently stored
}

type FragmentState uint8

const (
	FragmentActive FragmentState = iota
	FragmentSealed
)

// EncodeManifest serializes m with a CRC32C trailer (spec §4.10: "fixed
// header-with-CRC").
func EncodeManifest(m Manifest) []byte {
	w := codec.NewWriter(64 + len(m.Fragments)*9 + len(m.NodeToVector)*16)
	w.PutBytes([]byte(ManifestMagic))
	w.PutU32(m.Dimensions)
	w.PutU8(uint8(m.Metric))
	w.PutU32(m.RowGroupSize)
	w.PutU32(m.FragmentTargetSize)
	w.PutBool(m.Normalize)
	w.PutU32(m.NextFragmentID)

	w.PutU32(uint32(len(m.Fragments)))
	for _, f := range m.Fragments {
		w.PutU32(f.ID)
		w.PutU8(uint8(f.State))
		w.PutU32(f.RowCount)
	}

	w.PutU32(uint32(len(m.NodeToVector)))
	for node, vec := range m.NodeToVector {
		w.PutU64(node)
		w.PutU64(vec)
	}

	sum := codec.Checksum32C(w.Bytes())
	w.PutU32(sum)
	return w.Bytes()
}

// DecodeManifest parses bytes produced by EncodeManifest, bounds-checking
// every read and verifying the trailing CRC32C (spec §6: "every
// deserializer bounds-checks every read").
func DecodeManifest(b []byte) (Manifest, error) {
	if len(b) < 4 {
		return Manifest{}, rayerr.Wrap(rayerr.KindCorruptSnapshot, "vector manifest: short buffer", nil)
	}
	if !codec.VerifyChecksum32C(b[:len(b)-4], leU32(b[len(b)-4:])) {
		return Manifest{}, rayerr.New(rayerr.KindCorruptSnapshot, "vector manifest: checksum mismatch")
	}

	r := codec.NewReader(b[:len(b)-4])
	magic, err := r.Bytes(4)
	if err != nil || string(magic) != ManifestMagic {
		return Manifest{}, rayerr.New(rayerr.KindCorruptSnapshot, "vector manifest: bad magic")
	}

	var m Manifest
	dims, err := r.U32()
	if err != nil {
		return Manifest{}, wrapShort(err)
	}
	m.Dimensions = dims

	metric, err := r.U8()
	if err != nil {
		return Manifest{}, wrapShort(err)
	}
	m.Metric = Metric(metric)

	if m.RowGroupSize, err = r.U32(); err != nil {
		return Manifest{}, wrapShort(err)
	}
	if m.FragmentTargetSize, err = r.U32(); err != nil {
		return Manifest{}, wrapShort(err)
	}
	if m.Normalize, err = r.Bool(); err != nil {
		return Manifest{}, wrapShort(err)
	}
	if m.NextFragmentID, err = r.U32(); err != nil {
		return Manifest{}, wrapShort(err)
	}

	nFrag, err := r.U32()
	if err != nil {
		return Manifest{}, wrapShort(err)
	}
	m.Fragments = make([]FragmentMeta, 0, nFrag)
	for i := uint32(0); i < nFrag; i++ {
		var f FragmentMeta
		if f.ID, err = r.U32(); err != nil {
			return Manifest{}, wrapShort(err)
		}
		state, err := r.U8()
		if err != nil {
			return Manifest{}, wrapShort(err)
		}
		f.State = FragmentState(state)
		if f.RowCount, err = r.U32(); err != nil {
			return Manifest{}, wrapShort(err)
		}
		m.Fragments = append(m.Fragments, f)
	}

	nMap, err := r.U32()
	if err != nil {
		return Manifest{}, wrapShort(err)
	}
	m.NodeToVector = make(map[uint64]uint64, nMap)
	for i := uint32(0); i < nMap; i++ {
		node, err := r.U64()
		if err != nil {
			return Manifest{}, wrapShort(err)
		}
		vec, err := r.U64()
		if err != nil {
			return Manifest{}, wrapShort(err)
		}
		m.NodeToVector[node] = vec
	}

	return m, nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func wrapShort(err error) error {
	return rayerr.Wrap(rayerr.KindCorruptSnapshot, "vector manifest: truncated", err)
}
