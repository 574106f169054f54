package snapshot

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/raydb/raydb/internal/graphtypes"
)

// keyEntrySize is the fixed width of one key_entries record: hash(u64) +
// string_id(u32) + node_id(u64), spec §4.1.
const keyEntrySize = 8 + 4 + 8

// HashKey is the bucket hash of the snapshot's persisted key index, used
// by the reader's lookups and by the compactor when it builds the index.
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Bucket returns the bucket index for a pre-computed key hash.
func (r *Reader) Bucket(hash uint64) uint32 {
	if r.header.NumBuckets == 0 {
		return 0
	}
	return uint32(hash % r.header.NumBuckets)
}

// LookupKey resolves a string key to a node id using the snapshot's
// hash-bucketed index (spec §4.1 key_entries / key_buckets). O(1)
// expected: one bucket lookup plus a linear scan within the bucket,
// ordered by (hash, string_id, node_id) so equal hashes still compare
// cheaply.
func (r *Reader) LookupKey(key string) (graphtypes.NodeID, bool) {
	buckets := r.section(SecKeyBuckets)
	entries := r.section(SecKeyEntries)
	if len(buckets) == 0 || len(entries) == 0 {
		return 0, false
	}
	hash := HashKey(key)
	b := r.Bucket(hash)
	if uint64(b)+1 >= r.header.NumBuckets+1 {
		return 0, false
	}
	start := binary.LittleEndian.Uint32(buckets[b*4:])
	end := binary.LittleEndian.Uint32(buckets[(b+1)*4:])

	lo, hi := int(start), int(end)
	i := sort.Search(hi-lo, func(i int) bool {
		idx := lo + i
		h := binary.LittleEndian.Uint64(entries[idx*keyEntrySize:])
		return h >= hash
	})
	for pos := lo + i; pos < hi; pos++ {
		off := pos * keyEntrySize
		h := binary.LittleEndian.Uint64(entries[off:])
		if h != hash {
			break
		}
		strID := binary.LittleEndian.Uint32(entries[off+8:])
		nodeID := binary.LittleEndian.Uint64(entries[off+12:])
		s, err := r.String(strID)
		if err == nil && s == key {
			return graphtypes.NodeID(nodeID), true
		}
	}
	return 0, false
}

// KeyEntry is one decoded (key, node) pair, used by the graph layer to
// build a reverse node->key lookup at open and after each compaction.
type KeyEntry struct {
	Key    string
	NodeID graphtypes.NodeID
}

// AllKeys decodes every key_entries record. Used at open and after each
// compaction to seed an in-memory node->key reverse index (the snapshot
// format only stores the forward key->node_id direction), and by the
// compactor to carry old keys forward.
func (r *Reader) AllKeys() ([]KeyEntry, error) {
	entries := r.section(SecKeyEntries)
	n := len(entries) / keyEntrySize
	out := make([]KeyEntry, 0, n)
	for i := 0; i < n; i++ {
		off := i * keyEntrySize
		strID := binary.LittleEndian.Uint32(entries[off+8:])
		nodeID := binary.LittleEndian.Uint64(entries[off+12:])
		s, err := r.String(strID)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyEntry{Key: s, NodeID: graphtypes.NodeID(nodeID)})
	}
	return out, nil
}

// EncodeKeyEntry serializes one key_entries record for the compactor.
func EncodeKeyEntry(hash uint64, stringID uint32, nodeID graphtypes.NodeID) []byte {
	b := make([]byte, keyEntrySize)
	binary.LittleEndian.PutUint64(b[0:], hash)
	binary.LittleEndian.PutUint32(b[8:], stringID)
	binary.LittleEndian.PutUint64(b[12:], uint64(nodeID))
	return b
}
