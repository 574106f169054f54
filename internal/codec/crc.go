package codec

import "hash/crc32"

// castagnoli is CRC32C — every section, WAL record, and manifest in raydb
// is protected by it (spec §4.1, §4.4, §4.8). Grounded on the stdlib
// crc32.MakeTable(crc32.Castagnoli) idiom used throughout the pack's own
// storage-engine references rather than a third-party CRC crate.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum32C computes CRC32C over b.
func Checksum32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}

// VerifyChecksum32C reports whether b's CRC32C matches want.
func VerifyChecksum32C(b []byte, want uint32) bool {
	return Checksum32C(b) == want
}
