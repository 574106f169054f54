package delta

import "github.com/raydb/raydb/internal/graphtypes"

// SnapshotEdge is one (etype, other) entry of a snapshot CSR row, the
// minimal view a merge needs. NewMerge takes a whole row as a slice in
// sorted order; the graph layer and the compactor decode snapshot rows
// into this form.
type SnapshotEdge struct {
	EType graphtypes.EType
	Other graphtypes.NodeID
}

// MergedEdge is one edge yielded by Merge, already filtered for delta
// tombstones (spec §4.3 neighbors_out/_in).
type MergedEdge struct {
	EType graphtypes.EType
	Other graphtypes.NodeID
}

// Merge performs the three-way merge of spec §4.3: snapshot row entries
// not present in dels, plus add entries in sorted order, skipping any
// target that isTombstoned reports as hidden (a node deleted by the
// overlay). It is a lazy sequence: the caller drives it with Next and may
// stop at any point without consuming the rest.
type Merge struct {
	snap        []SnapshotEdge
	snapIdx     int
	adds        []EdgeTarget
	addIdx      int
	dels        []EdgeTarget
	isTombstoned func(graphtypes.NodeID) bool
}

// NewMerge builds a merge cursor. snap must already be sorted by
// (etype, other); adds and dels come from the overlay and are maintained
// sorted by construction.
func NewMerge(snap []SnapshotEdge, adds, dels []EdgeTarget, isTombstoned func(graphtypes.NodeID) bool) *Merge {
	return &Merge{snap: snap, adds: adds, dels: dels, isTombstoned: isTombstoned}
}

func containsTarget(list []EdgeTarget, et EdgeTarget) bool {
	lo, hi := 0, len(list)
	for lo < hi {
		mid := (lo + hi) / 2
		if list[mid].less(et) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(list) && list[lo] == et
}

// Next advances the cursor and returns the next visible edge, or ok=false
// once both the snapshot row and the add list are exhausted.
func (m *Merge) Next() (MergedEdge, bool) {
	for {
		var fromSnap, haveSnap bool
		var snapEdge SnapshotEdge
		if m.snapIdx < len(m.snap) {
			snapEdge = m.snap[m.snapIdx]
			haveSnap = true
		}
		var addEdge EdgeTarget
		haveAdd := m.addIdx < len(m.adds)
		if haveAdd {
			addEdge = m.adds[m.addIdx]
		}

		switch {
		case haveSnap && haveAdd:
			se := EdgeTarget{EType: snapEdge.EType, Other: snapEdge.Other}
			if se.less(addEdge) {
				fromSnap = true
			} else if addEdge.less(se) {
				fromSnap = false
			} else {
				// identical key should never happen (an add cancels a
				// pre-existing snapshot edge only via delete-then-add,
				// which a snapshot-backed edge never needs); prefer the
				// add and advance both to stay safe.
				m.snapIdx++
				fromSnap = false
			}
		case haveSnap:
			fromSnap = true
		case haveAdd:
			fromSnap = false
		default:
			return MergedEdge{}, false
		}

		if fromSnap {
			m.snapIdx++
			et := EdgeTarget{EType: snapEdge.EType, Other: snapEdge.Other}
			if containsTarget(m.dels, et) {
				continue
			}
			if m.isTombstoned != nil && m.isTombstoned(snapEdge.Other) {
				continue
			}
			return MergedEdge{EType: snapEdge.EType, Other: snapEdge.Other}, true
		}

		m.addIdx++
		if m.isTombstoned != nil && m.isTombstoned(addEdge.Other) {
			continue
		}
		return MergedEdge{EType: addEdge.EType, Other: addEdge.Other}, true
	}
}
