package vectorstore

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/rayerr"
)

// FragmentMagic identifies a serialized fragment's row-group payload.
const FragmentMagic = "VFRG"

// Fragment holds one fragment's row groups plus its deletion bitmap (spec
// §4.10): "each containing row groups (dense Float32Array of
// rowGroupSize × dimensions), a deletion bitmap, and state active|sealed."
type Fragment struct {
	ID         uint32
	Dimensions uint32
	RowGroup   uint32 // rows per row group
	State      FragmentState

	rows     [][]float32 // row groups, each len == RowGroup*Dimensions (last may be partial in-memory)
	rowCount uint32      // total rows ever appended (live + deleted)
	deleted  *roaring.Bitmap
	live     uint32
}

// NewFragment creates an empty active fragment.
func NewFragment(id, dims, rowGroupSize uint32) *Fragment {
	return &Fragment{
		ID:         id,
		Dimensions: dims,
		RowGroup:   rowGroupSize,
		State:      FragmentActive,
		deleted:    roaring.New(),
	}
}

// Full reports whether this fragment has reached its target row count and
// should be sealed (spec §4.10: "when a fragment reaches
// fragment_target_size it is sealed").
func (f *Fragment) Full(targetSize uint32) bool {
	return f.rowCount >= targetSize
}

// Append appends one vector's row. The caller has already validated
// dimensionality and rejected NaN/Infinity (spec §4.10).
func (f *Fragment) Append(vec []float32) (localIndex uint32, err error) {
	if f.State != FragmentActive {
		return 0, rayerr.New(rayerr.KindInvalidArgument, "vectorstore: append to sealed fragment")
	}
	groupIdx := f.rowCount / f.RowGroup
	for uint32(len(f.rows)) <= groupIdx {
		f.rows = append(f.rows, make([]float32, 0, f.RowGroup*f.Dimensions))
	}
	f.rows[groupIdx] = append(f.rows[groupIdx], vec...)
	localIndex = f.rowCount
	f.rowCount++
	f.live++
	return localIndex, nil
}

// Get returns the row at localIndex, or ok=false if it has been deleted.
func (f *Fragment) Get(localIndex uint32) (vec []float32, ok bool) {
	if localIndex >= f.rowCount || f.deleted.Contains(localIndex) {
		return nil, false
	}
	groupIdx := localIndex / f.RowGroup
	within := localIndex % f.RowGroup
	row := f.rows[groupIdx]
	start := within * f.Dimensions
	return row[start : start+f.Dimensions], true
}

// Delete sets the deletion bit for localIndex and decrements live-count
// (spec §4.10: "deletion sets the bitmap bit; live-count is maintained
// incrementally").
func (f *Fragment) Delete(localIndex uint32) bool {
	if localIndex >= f.rowCount || f.deleted.Contains(localIndex) {
		return false
	}
	f.deleted.Add(localIndex)
	f.live--
	return true
}

// LiveCount returns the number of non-deleted rows.
func (f *Fragment) LiveCount() uint32 { return f.live }

// Seal marks the fragment immutable (spec §4.10).
func (f *Fragment) Seal() { f.State = FragmentSealed }

// Encode serializes a fragment's row data and deletion bitmap with a
// CRC32C trailer, mirroring EncodeManifest's header-with-CRC layout.
func Encode(f *Fragment) []byte {
	bitmapBytes, err := f.deleted.ToBytes()
	if err != nil {
		// roaring's ToBytes only fails on pathological bitmaps; treat as empty.
		bitmapBytes = nil
	}

	w := codec.NewWriter(32 + int(f.rowCount)*int(f.Dimensions)*4 + len(bitmapBytes))
	w.PutBytes([]byte(FragmentMagic))
	w.PutU32(f.ID)
	w.PutU32(f.Dimensions)
	w.PutU32(f.RowGroup)
	w.PutU8(uint8(f.State))
	w.PutU32(f.rowCount)
	w.PutU32(f.live)

	for i := uint32(0); i < f.rowCount; i++ {
		groupIdx := i / f.RowGroup
		within := i % f.RowGroup
		row := f.rows[groupIdx]
		start := within * f.Dimensions
		for _, v := range row[start : start+f.Dimensions] {
			w.PutU32(math.Float32bits(v))
		}
	}

	w.PutBytesLP(bitmapBytes)

	sum := codec.Checksum32C(w.Bytes())
	w.PutU32(sum)
	return w.Bytes()
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (*Fragment, error) {
	if len(b) < 4 {
		return nil, rayerr.New(rayerr.KindCorruptSnapshot, "vector fragment: short buffer")
	}
	if !codec.VerifyChecksum32C(b[:len(b)-4], leU32(b[len(b)-4:])) {
		return nil, rayerr.New(rayerr.KindCorruptSnapshot, "vector fragment: checksum mismatch")
	}

	r := codec.NewReader(b[:len(b)-4])
	magic, err := r.Bytes(4)
	if err != nil || string(magic) != FragmentMagic {
		return nil, rayerr.New(rayerr.KindCorruptSnapshot, "vector fragment: bad magic")
	}

	f := &Fragment{}
	if f.ID, err = r.U32(); err != nil {
		return nil, wrapFragShort(err)
	}
	if f.Dimensions, err = r.U32(); err != nil {
		return nil, wrapFragShort(err)
	}
	if f.RowGroup, err = r.U32(); err != nil {
		return nil, wrapFragShort(err)
	}
	state, err := r.U8()
	if err != nil {
		return nil, wrapFragShort(err)
	}
	f.State = FragmentState(state)
	if f.rowCount, err = r.U32(); err != nil {
		return nil, wrapFragShort(err)
	}
	if f.live, err = r.U32(); err != nil {
		return nil, wrapFragShort(err)
	}

	for i := uint32(0); i < f.rowCount; i++ {
		groupIdx := i / f.RowGroup
		for uint32(len(f.rows)) <= groupIdx {
			f.rows = append(f.rows, make([]float32, 0, f.RowGroup*f.Dimensions))
		}
		for d := uint32(0); d < f.Dimensions; d++ {
			bits, err := r.U32()
			if err != nil {
				return nil, wrapFragShort(err)
			}
			f.rows[groupIdx] = append(f.rows[groupIdx], math.Float32frombits(bits))
		}
	}

	bitmapBytes, err := r.BytesLP()
	if err != nil {
		return nil, wrapFragShort(err)
	}
	f.deleted = roaring.New()
	if len(bitmapBytes) > 0 {
		if _, err := f.deleted.FromBuffer(bitmapBytes); err != nil {
			return nil, rayerr.Wrap(rayerr.KindCorruptSnapshot, "vector fragment: bad deletion bitmap", err)
		}
	}

	return f, nil
}

func wrapFragShort(err error) error {
	return rayerr.Wrap(rayerr.KindCorruptSnapshot, "vector fragment: truncated", err)
}
