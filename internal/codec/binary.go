// Package codec provides the little-endian fixed-width encoding primitives
// shared by the WAL, snapshot, manifest, and vector formats (spec §4.1,
// §4.4, §4.8, §4.10 — "all multi-byte numbers little-endian").
package codec

import (
	"encoding/binary"
	"fmt"
)

// ErrShortBuffer is returned whenever a decode would read past the end of
// the supplied slice. Every deserializer in this module bounds-checks
// before it reads (spec §6: "every deserializer bounds-checks every
// read").
type ErrShortBuffer struct {
	Need, Have int
}

func (e *ErrShortBuffer) Error() string {
	return fmt.Sprintf("codec: short buffer: need %d bytes, have %d", e.Need, e.Have)
}

func need(buf []byte, n int) error {
	if len(buf) < n {
		return &ErrShortBuffer{Need: n, Have: len(buf)}
	}
	return nil
}

// Writer appends little-endian fixed-width values to an in-memory buffer.
// It never returns an error; callers size the buffer up front with
// NewWriter's capacity hint or simply let append grow it.
type Writer struct {
	buf []byte
}

func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) PutU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutI32(v int32) { w.PutU32(uint32(v)) }

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutI64(v int64) { w.PutU64(uint64(v)) }

func (w *Writer) PutF64(v float64) { w.PutU64(mathFloat64bits(v)) }

func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// PutBytesLP writes a u32 length prefix followed by the bytes.
func (w *Writer) PutBytesLP(b []byte) {
	w.PutU32(uint32(len(b)))
	w.PutBytes(b)
}

// Reader decodes little-endian fixed-width values from a borrowed byte
// slice without copying it — this is the zero-copy contract the snapshot
// reader relies on (spec §4.1): values are materialized only when the
// caller asks for them.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }
func (r *Reader) Pos() int       { return r.pos }

func (r *Reader) U8() (uint8, error) {
	if err := need(r.buf[r.pos:], 1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *Reader) U16() (uint16, error) {
	if err := need(r.buf[r.pos:], 2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := need(r.buf[r.pos:], 4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) U64() (uint64, error) {
	if err := need(r.buf[r.pos:], 8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return mathFloat64frombits(v), nil
}

// Bytes returns a sub-slice of the underlying buffer — no copy.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := need(r.buf[r.pos:], n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// BytesLP reads a u32-length-prefixed byte slice.
func (r *Reader) BytesLP() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// At returns a Reader positioned at an absolute offset of the same
// underlying buffer, used for random access into fixed-size record
// arrays (e.g. CSR offset tables, key-index buckets).
func (r *Reader) At(off int) *Reader {
	return &Reader{buf: r.buf, pos: off}
}

// Slice returns the raw backing buffer, for mmap-backed sections that
// hand out typed views without copying.
func (r *Reader) Slice() []byte { return r.buf }
