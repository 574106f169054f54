package mvcc

import "github.com/raydb/raydb/internal/graphtypes"

// Payload is the value carried by one version. Node and edge versions
// only need Exists (false after a delete); property versions carry
// Value, with Deleted mirroring the delta overlay's NULL-tombstone
// convention.
type Payload struct {
	Exists  bool
	Value   graphtypes.Value
	Deleted bool
}

// entry is one version in a chain, stored in the arena. Prev is an
// index into the same arena, -1 terminating the chain (spec §9 "arena +
// index... prev is another integer with -1 as terminator").
type entry struct {
	payload  Payload
	txID     uint64
	commitTS uint64
	prev     int32
}

// arena is the struct-of-arrays version pool described in spec §4.5
// ("property versions... stored in struct-of-arrays pool tables indexed
// by a stable small integer").
type arena struct {
	entries []entry
}

func newArena() *arena {
	return &arena{}
}

// push appends a new version and returns its index.
func (a *arena) push(e entry) int32 {
	a.entries = append(a.entries, e)
	return int32(len(a.entries) - 1)
}

func (a *arena) at(idx int32) *entry {
	return &a.entries[idx]
}

const noPrev int32 = -1
