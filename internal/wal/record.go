// Package wal implements the append-only write-ahead log described in
// spec §4.4: fixed record layout, CRC32C per record, commit-terminated
// durability, and crash-safe recovery that discards any record without a
// following COMMIT.
package wal

import (
	"github.com/raydb/raydb/internal/codec"
)

// RecordType enumerates the WAL record kinds of spec §4.4.
type RecordType uint8

const (
	TypeBegin RecordType = iota + 1
	TypeCommit
	TypeAbort
	TypeDefineLabel
	TypeDefineEType
	TypeDefinePropKey
	TypeCreateNode
	TypeDeleteNode
	TypeSetNodeKey
	TypeSetNodeProp
	TypeDelNodeProp
	TypeAddEdge
	TypeDelEdge
	TypeSetEdgeProp
	TypeDelEdgeProp
	TypeSetNodeVector
	TypeDelNodeVector
	TypeCheckpoint
)

// Record is one WAL entry: type(u8), tx_id(u64), payload_len(u32),
// payload(bytes), crc32c(u32) — the CRC covers type+tx_id+payload_len+payload.
type Record struct {
	Type    RecordType
	TxID    uint64
	Payload []byte
}

// Encode serializes r into its on-disk byte representation.
func Encode(r Record) []byte {
	w := codec.NewWriter(1 + 8 + 4 + len(r.Payload) + 4)
	w.PutU8(uint8(r.Type))
	w.PutU64(r.TxID)
	w.PutU32(uint32(len(r.Payload)))
	w.PutBytes(r.Payload)
	crc := codec.Checksum32C(w.Bytes())
	w.PutU32(crc)
	return w.Bytes()
}

// Decode reads one record starting at the beginning of buf. It returns
// the record, the number of bytes consumed, whether the CRC matched, and
// an error. An incomplete record is reported as 0 bytes consumed with a
// nil error, and a CRC failure as ok=false, so callers can distinguish
// "not enough bytes yet" from "corrupt record"; the error is always nil.
func Decode(buf []byte) (Record, int, bool, error) {
	r := codec.NewReader(buf)
	typ, err := r.U8()
	if err != nil {
		return Record{}, 0, false, nil // incomplete header: caller stops here
	}
	txID, err := r.U64()
	if err != nil {
		return Record{}, 0, false, nil
	}
	plen, err := r.U32()
	if err != nil {
		return Record{}, 0, false, nil
	}
	payload, err := r.Bytes(int(plen))
	if err != nil {
		return Record{}, 0, false, nil
	}
	headerAndPayload := buf[:1+8+4+int(plen)]
	crc, err := r.U32()
	if err != nil {
		return Record{}, 0, false, nil
	}
	consumed := 1 + 8 + 4 + int(plen) + 4
	ok := codec.VerifyChecksum32C(headerAndPayload, crc)
	rec := Record{Type: RecordType(typ), TxID: txID, Payload: append([]byte(nil), payload...)}
	return rec, consumed, ok, nil
}
