package graphdb

import (
	"math"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/mvcc"
)

// atHorizon is the MVCC read timestamp used for reads not bound to a
// transaction: "newest committed version," with no upper bound.
const atHorizon = math.MaxUint64

func (db *DB) allocNodeID() graphtypes.NodeID {
	return graphtypes.NodeID(db.nextNodeID.Add(1) - 1)
}

// keyForNode returns the key a node was created with, if any — from the
// overlay for nodes created this session, else from the reverse index
// built from the current snapshot (db.nodeKeys).
func (db *DB) keyForNode(id graphtypes.NodeID) string {
	if c, ok := db.overlay.NodeCreated(id); ok {
		if c.Key != nil {
			return *c.Key
		}
		return ""
	}
	return db.nodeKeys[id]
}

// resolveLiveKey resolves key to its owning node id, but only if that
// node is still alive, per spec §4.6's DUPLICATE_KEY contract ("a live
// node with key is visible").
func (db *DB) resolveLiveKey(key string) (graphtypes.NodeID, bool) {
	if id, ok := db.overlay.LookupKey(key); ok {
		if db.nodeExistsMerged(id) {
			return id, true
		}
		return 0, false
	}
	if db.overlay.KeyDeleted(key) {
		return 0, false
	}
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return 0, false
	}
	if id, ok := snap.LookupKey(key); ok && db.nodeExistsMerged(id) {
		return id, true
	}
	return 0, false
}

// GetNodeByKey resolves a node's stable id from its unique key.
func (db *DB) GetNodeByKey(key string) (graphtypes.NodeID, bool) {
	return db.resolveLiveKey(key)
}

func (db *DB) mvccNodeExists(id graphtypes.NodeID, atTS uint64) (bool, bool) {
	p, ok := db.mgr.Visible(mvcc.NodeKey(id), atTS)
	if !ok {
		return false, false
	}
	return p.Exists, true
}

// nodeExistsMerged reports node liveness over the snapshot ∪ overlay
// merged view (spec §4.3), consulting the MVCC chain first if this
// session has ever touched the key.
func (db *DB) nodeExistsMerged(id graphtypes.NodeID) bool {
	if exists, ok := db.mvccNodeExists(id, atHorizon); ok {
		return exists
	}
	if db.overlay.NodeDeleted(id) {
		return false
	}
	if _, ok := db.overlay.NodeCreated(id); ok {
		return true
	}
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return false
	}
	_, ok := snap.NodeIDToPhys(id)
	return ok
}

// NodeExists is the transaction-free form of nodeExistsMerged.
func (db *DB) NodeExists(id graphtypes.NodeID) bool { return db.nodeExistsMerged(id) }

func (db *DB) mvccEdgeExists(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, atTS uint64) (bool, bool) {
	p, ok := db.mgr.Visible(mvcc.EdgeKey(src, etype, dst), atTS)
	if !ok {
		return false, false
	}
	return p.Exists, true
}

func (db *DB) edgeExistsMerged(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) bool {
	if exists, ok := db.mvccEdgeExists(src, etype, dst, atHorizon); ok {
		return exists
	}
	switch db.overlay.EdgeState(src, etype, dst) {
	case delta.EdgeForcedVisible:
		return true
	case delta.EdgeForcedHidden:
		return false
	}
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return false
	}
	srcPhys, ok := snap.NodeIDToPhys(src)
	if !ok {
		return false
	}
	dstPhys, ok := snap.NodeIDToPhys(dst)
	if !ok {
		return false
	}
	_, found := snap.FindOutEdge(srcPhys, etype, dstPhys)
	return found
}

// EdgeExists is the transaction-free form of edgeExistsMerged.
func (db *DB) EdgeExists(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) bool {
	return db.edgeExistsMerged(src, etype, dst)
}

// snapshotOutRow decodes phys's entire sorted out-adjacency from the
// snapshot into delta.SnapshotEdge form for merging.
func (db *DB) snapshotOutRow(id graphtypes.NodeID) []delta.SnapshotEdge {
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return nil
	}
	phys, ok := snap.NodeIDToPhys(id)
	if !ok {
		return nil
	}
	start, end, ok := snap.OutEdges(phys)
	if !ok {
		return nil
	}
	out := make([]delta.SnapshotEdge, 0, end-start)
	for i := start; i < end; i++ {
		e := snap.OutAt(i)
		out = append(out, delta.SnapshotEdge{EType: e.EType, Other: e.Dst})
	}
	return out
}

func (db *DB) snapshotInRow(id graphtypes.NodeID) []delta.SnapshotEdge {
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return nil
	}
	phys, ok := snap.NodeIDToPhys(id)
	if !ok {
		return nil
	}
	start, end, ok := snap.InEdges(phys)
	if !ok {
		return nil
	}
	in := make([]delta.SnapshotEdge, 0, end-start)
	for i := start; i < end; i++ {
		e := snap.InAt(i)
		in = append(in, delta.SnapshotEdge{EType: e.EType, Other: e.Src})
	}
	return in
}

// mergedOut returns every (etype, dst) currently visible as an
// out-neighbor of id, across all edge types (used by Txn.DeleteNode and
// by NeighborsOut).
func (db *DB) mergedOut(id graphtypes.NodeID) []delta.MergedEdge {
	m := delta.NewMerge(db.snapshotOutRow(id), db.overlay.OutAdds(id), db.overlay.OutDels(id), func(other graphtypes.NodeID) bool {
		return db.overlay.NodeDeleted(other)
	})
	var out []delta.MergedEdge
	for {
		e, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func (db *DB) mergedIn(id graphtypes.NodeID) []delta.MergedEdge {
	m := delta.NewMerge(db.snapshotInRow(id), db.overlay.InAdds(id), db.overlay.InDels(id), func(other graphtypes.NodeID) bool {
		return db.overlay.NodeDeleted(other)
	})
	var in []delta.MergedEdge
	for {
		e, ok := m.Next()
		if !ok {
			break
		}
		in = append(in, e)
	}
	return in
}

// NeighborsOut returns the current out-neighbors of id, sorted by
// (etype, dst) ascending (spec §4.6). The slice is materialized eagerly
// here; callers that need a lazy sequence can build their own
// delta.Merge cursor via the lower-level helpers above.
func (db *DB) NeighborsOut(id graphtypes.NodeID) []delta.MergedEdge {
	return db.mergedOut(id)
}

func (db *DB) NeighborsIn(id graphtypes.NodeID) []delta.MergedEdge {
	return db.mergedIn(id)
}

func (db *DB) mvccNodeProp(node graphtypes.NodeID, prop graphtypes.PropKey, atTS uint64) (graphtypes.Value, bool, bool) {
	p, ok := db.mgr.Visible(mvcc.NodePropKey(node, prop), atTS)
	if !ok {
		return graphtypes.Value{}, false, false
	}
	if p.Deleted {
		return graphtypes.Value{}, false, true
	}
	return p.Value, true, true
}

// GetNodeProp resolves a node property over the merged view.
func (db *DB) GetNodeProp(node graphtypes.NodeID, prop graphtypes.PropKey) (graphtypes.Value, bool) {
	if v, found, ok := db.mvccNodeProp(node, prop, atHorizon); ok {
		return v, found
	}
	if v, ok := db.overlay.NodeProp(node, prop); ok {
		if v.IsNull() {
			return graphtypes.Value{}, false
		}
		return v, true
	}
	if c, ok := db.overlay.NodeCreated(node); ok {
		v, ok := c.Props[prop]
		return v, ok
	}
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return graphtypes.Value{}, false
	}
	phys, ok := snap.NodeIDToPhys(node)
	if !ok {
		return graphtypes.Value{}, false
	}
	v, ok, err := snap.NodeProp(phys, prop)
	if err != nil || !ok {
		return graphtypes.Value{}, false
	}
	return v, true
}

func (db *DB) mvccEdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey, atTS uint64) (graphtypes.Value, bool, bool) {
	p, ok := db.mgr.Visible(mvcc.EdgePropKey(src, etype, dst, prop), atTS)
	if !ok {
		return graphtypes.Value{}, false, false
	}
	if p.Deleted {
		return graphtypes.Value{}, false, true
	}
	return p.Value, true, true
}

// GetEdgeProp resolves an edge property over the merged view.
func (db *DB) GetEdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey) (graphtypes.Value, bool) {
	if v, found, ok := db.mvccEdgeProp(src, etype, dst, prop, atHorizon); ok {
		return v, found
	}
	if v, ok := db.overlay.EdgeProp(src, etype, dst, prop); ok {
		if v.IsNull() {
			return graphtypes.Value{}, false
		}
		return v, true
	}
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap == nil {
		return graphtypes.Value{}, false
	}
	srcPhys, ok := snap.NodeIDToPhys(src)
	if !ok {
		return graphtypes.Value{}, false
	}
	dstPhys, ok := snap.NodeIDToPhys(dst)
	if !ok {
		return graphtypes.Value{}, false
	}
	v, ok, err := snap.EdgeProp(srcPhys, etype, dstPhys, prop)
	if err != nil || !ok {
		return graphtypes.Value{}, false
	}
	return v, true
}

// GetNodeVector resolves node's current embedding, if it has one.
func (db *DB) GetNodeVector(node graphtypes.NodeID) ([]float32, bool, error) {
	return db.vectors.Get(uint64(node))
}

// CountNodes returns the number of live nodes in the merged view: the
// snapshot's count, plus this session's created nodes, minus its
// deleted ones. O(1) rather than the O(n) a full listNodes scan would
// need.
func (db *DB) CountNodes() uint64 {
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	var base uint64
	if snap != nil {
		base = snap.NumNodes()
	}
	st := db.overlay.Stats()
	return base + uint64(st.NodesCreated) - uint64(st.NodesDeleted)
}

// ListNodes returns every live node id in the merged view, ascending by
// id for snapshot-originated nodes, overlay-created nodes appended last.
func (db *DB) ListNodes() []graphtypes.NodeID {
	var out []graphtypes.NodeID
	db.mu.RLock()
	snap := db.snap
	db.mu.RUnlock()
	if snap != nil {
		n := snap.NumNodes()
		for phys := uint64(0); phys < n; phys++ {
			id, ok := snap.PhysToNodeID(uint32(phys))
			if !ok || db.overlay.NodeDeleted(id) {
				continue
			}
			out = append(out, id)
		}
	}
	out = append(out, db.overlay.CreatedNodeIDs()...)
	return out
}
