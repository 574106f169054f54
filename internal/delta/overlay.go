// Package delta implements the in-memory overlay of spec §4.2: buffered
// mutations that postdate the active snapshot's generation, with the
// cancellation rules that keep repeated add/delete cycles from growing
// the overlay unboundedly.
package delta

import (
	"sort"
	"sync"

	"github.com/raydb/raydb/internal/graphtypes"
)

// EdgeTarget is one endpoint of a per-source (or per-destination) patch
// list: the etype and the other node, ordered by (etype, other) per spec
// §4.2 "kept sorted by (etype, other) to allow a linear merge."
type EdgeTarget struct {
	EType graphtypes.EType
	Other graphtypes.NodeID
}

func (t EdgeTarget) less(o EdgeTarget) bool {
	if t.EType != o.EType {
		return t.EType < o.EType
	}
	return t.Other < o.Other
}

// CreatedNode is the pending state of a node created since the snapshot.
type CreatedNode struct {
	Key   *string
	Props map[graphtypes.PropKey]graphtypes.Value
}

// Stats drives compaction triggering (spec §4.2, §4.7).
type Stats struct {
	NodesCreated int
	NodesDeleted int
	EdgesAdded   int
	EdgesDeleted int
}

type edgePropKey struct {
	Src   graphtypes.NodeID
	EType graphtypes.EType
	Dst   graphtypes.NodeID
	Prop  graphtypes.PropKey
}

type nodePropKey struct {
	Node graphtypes.NodeID
	Prop graphtypes.PropKey
}

// Overlay is the mutable write-side buffer shared by every open
// transaction's merged read view (spec §4.3) until the compactor folds it
// into a new snapshot.
type Overlay struct {
	mu sync.RWMutex

	newLabels   map[uint32]string
	newEtypes   map[uint32]string
	newPropKeys map[uint32]string

	nodesCreated map[graphtypes.NodeID]*CreatedNode
	nodesDeleted map[graphtypes.NodeID]struct{}

	outAdd map[graphtypes.NodeID][]EdgeTarget
	outDel map[graphtypes.NodeID][]EdgeTarget
	inAdd  map[graphtypes.NodeID][]EdgeTarget
	inDel  map[graphtypes.NodeID][]EdgeTarget

	nodeProps map[nodePropKey]graphtypes.Value // IsNull() entries are tombstones
	edgeProps map[edgePropKey]graphtypes.Value

	keyIndex   map[string]graphtypes.NodeID
	keyDeleted map[string]struct{}

	stats Stats
}

// New returns an empty overlay, the state of a freshly opened database
// with no mutations yet applied past its snapshot.
func New() *Overlay {
	return &Overlay{
		newLabels:    make(map[uint32]string),
		newEtypes:    make(map[uint32]string),
		newPropKeys:  make(map[uint32]string),
		nodesCreated: make(map[graphtypes.NodeID]*CreatedNode),
		nodesDeleted: make(map[graphtypes.NodeID]struct{}),
		outAdd:       make(map[graphtypes.NodeID][]EdgeTarget),
		outDel:       make(map[graphtypes.NodeID][]EdgeTarget),
		inAdd:        make(map[graphtypes.NodeID][]EdgeTarget),
		inDel:        make(map[graphtypes.NodeID][]EdgeTarget),
		nodeProps:    make(map[nodePropKey]graphtypes.Value),
		edgeProps:    make(map[edgePropKey]graphtypes.Value),
		keyIndex:     make(map[string]graphtypes.NodeID),
		keyDeleted:   make(map[string]struct{}),
	}
}

// ---- schema ----

func (o *Overlay) DefineLabel(id uint32, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.newLabels[id] = name
}

func (o *Overlay) DefineEType(id uint32, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.newEtypes[id] = name
}

func (o *Overlay) DefinePropKey(id uint32, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.newPropKeys[id] = name
}

func (o *Overlay) LookupLabel(name string) (uint32, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for id, n := range o.newLabels {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (o *Overlay) LookupEType(name string) (uint32, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for id, n := range o.newEtypes {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (o *Overlay) LookupPropKey(name string) (uint32, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for id, n := range o.newPropKeys {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// ---- nodes ----

// CreateNode registers a new node. Callers must first confirm no live
// node owns key (spec §4.6 DUPLICATE_KEY).
func (o *Overlay) CreateNode(id graphtypes.NodeID, key *string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodesCreated[id] = &CreatedNode{Key: key, Props: make(map[graphtypes.PropKey]graphtypes.Value)}
	if key != nil {
		o.keyIndex[*key] = id
		delete(o.keyDeleted, *key)
	}
	o.stats.NodesCreated++
}

// DeleteNode tombstones id. If id was only ever created in this overlay
// (never part of the snapshot), the created record is discarded entirely
// rather than tombstoned, since nothing durable needs hiding.
func (o *Overlay) DeleteNode(id graphtypes.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if created, ok := o.nodesCreated[id]; ok {
		if created.Key != nil {
			delete(o.keyIndex, *created.Key)
		}
		delete(o.nodesCreated, id)
		o.stats.NodesCreated--
		return
	}
	o.nodesDeleted[id] = struct{}{}
	o.stats.NodesDeleted++
}

func (o *Overlay) NodeCreated(id graphtypes.NodeID) (*CreatedNode, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.nodesCreated[id]
	return c, ok
}

func (o *Overlay) NodeDeleted(id graphtypes.NodeID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.nodesDeleted[id]
	return ok
}

// CreatedNodeIDs returns every node id created in this overlay (and not
// since deleted), for listNodes to append past the snapshot's range.
func (o *Overlay) CreatedNodeIDs() []graphtypes.NodeID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]graphtypes.NodeID, 0, len(o.nodesCreated))
	for id := range o.nodesCreated {
		out = append(out, id)
	}
	return out
}

// ---- key index ----

func (o *Overlay) LookupKey(key string) (graphtypes.NodeID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	id, ok := o.keyIndex[key]
	return id, ok
}

// KeyDeleted reports whether key was present in the snapshot but removed
// by this overlay — callers must treat it as absent even though the
// snapshot's bucketed index would still report a hit.
func (o *Overlay) KeyDeleted(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.keyDeleted[key]
	return ok
}

// RemoveKeyFromSnapshot records that key, present in the snapshot, has
// been removed (its owning node was deleted).
func (o *Overlay) RemoveKeyFromSnapshot(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keyDeleted[key] = struct{}{}
}

// KeyIndexEntry is one overlay-owned (key, node) pair — only keys created
// or still live in this overlay's own keyIndex map, not the snapshot's.
type KeyIndexEntry struct {
	Key  string
	Node graphtypes.NodeID
}

// KeyIndexEntries enumerates the overlay's own key index, for the
// compactor to merge with the snapshot's key entries.
func (o *Overlay) KeyIndexEntries() []KeyIndexEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]KeyIndexEntry, 0, len(o.keyIndex))
	for k, id := range o.keyIndex {
		out = append(out, KeyIndexEntry{Key: k, Node: id})
	}
	return out
}

// ---- edges ----

func insertSorted(list []EdgeTarget, t EdgeTarget) []EdgeTarget {
	i := sort.Search(len(list), func(i int) bool { return !list[i].less(t) })
	if i < len(list) && list[i] == t {
		return list
	}
	list = append(list, EdgeTarget{})
	copy(list[i+1:], list[i:])
	list[i] = t
	return list
}

func removeSorted(list []EdgeTarget, t EdgeTarget) ([]EdgeTarget, bool) {
	i := sort.Search(len(list), func(i int) bool { return !list[i].less(t) })
	if i < len(list) && list[i] == t {
		return append(list[:i], list[i+1:]...), true
	}
	return list, false
}

func containsSorted(list []EdgeTarget, t EdgeTarget) bool {
	i := sort.Search(len(list), func(i int) bool { return !list[i].less(t) })
	return i < len(list) && list[i] == t
}

// AddEdge applies spec §4.2's cancellation rules for edge insertion:
// already-pending adds are a no-op; an add that cancels a pending delete
// removes the delete without creating a new add entry.
func (o *Overlay) AddEdge(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	outT := EdgeTarget{EType: etype, Other: dst}
	inT := EdgeTarget{EType: etype, Other: src}

	if containsSorted(o.outAdd[src], outT) {
		return
	}
	if newList, ok := removeSorted(o.outDel[src], outT); ok {
		o.outDel[src] = newList
		o.inDel[dst], _ = removeSorted(o.inDel[dst], inT)
		return
	}
	o.outAdd[src] = insertSorted(o.outAdd[src], outT)
	o.inAdd[dst] = insertSorted(o.inAdd[dst], inT)
	o.stats.EdgesAdded++
}

// DelEdge applies spec §4.2's deletion cancellation rule: deleting an
// edge that exists only as a pending add removes the add without ever
// producing a tombstone.
func (o *Overlay) DelEdge(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	outT := EdgeTarget{EType: etype, Other: dst}
	inT := EdgeTarget{EType: etype, Other: src}

	if newList, ok := removeSorted(o.outAdd[src], outT); ok {
		o.outAdd[src] = newList
		o.inAdd[dst], _ = removeSorted(o.inAdd[dst], inT)
		return
	}
	o.outDel[src] = insertSorted(o.outDel[src], outT)
	o.inDel[dst] = insertSorted(o.inDel[dst], inT)
	o.stats.EdgesDeleted++
}

// OutAdds, OutDels, InAdds, InDels expose a source/destination's sorted
// patch lists for the merged-view three-way merge of spec §4.3. Callers
// must not mutate the returned slice.
func (o *Overlay) OutAdds(src graphtypes.NodeID) []EdgeTarget {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.outAdd[src]
}

func (o *Overlay) OutDels(src graphtypes.NodeID) []EdgeTarget {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.outDel[src]
}

func (o *Overlay) InAdds(dst graphtypes.NodeID) []EdgeTarget {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.inAdd[dst]
}

func (o *Overlay) InDels(dst graphtypes.NodeID) []EdgeTarget {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.inDel[dst]
}

// EdgeState reports whether (src,etype,dst) is forced visible, forced
// hidden, or unaffected by the overlay — spec §4.3 edge_exists.
type EdgeState int

const (
	EdgeUnaffected EdgeState = iota
	EdgeForcedVisible
	EdgeForcedHidden
)

func (o *Overlay) EdgeState(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) EdgeState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t := EdgeTarget{EType: etype, Other: dst}
	if containsSorted(o.outDel[src], t) {
		return EdgeForcedHidden
	}
	if containsSorted(o.outAdd[src], t) {
		return EdgeForcedVisible
	}
	return EdgeUnaffected
}

// ---- properties ----

func (o *Overlay) SetNodeProp(node graphtypes.NodeID, prop graphtypes.PropKey, v graphtypes.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeProps[nodePropKey{node, prop}] = v
}

// DelNodeProp stores a NULL tombstone, per §4.3 "null-valued entries are
// tombstones (overriding snapshot)".
func (o *Overlay) DelNodeProp(node graphtypes.NodeID, prop graphtypes.PropKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeProps[nodePropKey{node, prop}] = graphtypes.NullValue()
}

// NodeProp returns (value, true) if the overlay has any entry (including
// a tombstone) for (node, prop); (false) means "fall through to snapshot".
func (o *Overlay) NodeProp(node graphtypes.NodeID, prop graphtypes.PropKey) (graphtypes.Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.nodeProps[nodePropKey{node, prop}]
	return v, ok
}

func (o *Overlay) SetEdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey, v graphtypes.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edgeProps[edgePropKey{src, etype, dst, prop}] = v
}

func (o *Overlay) DelEdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edgeProps[edgePropKey{src, etype, dst, prop}] = graphtypes.NullValue()
}

func (o *Overlay) EdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey) (graphtypes.Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.edgeProps[edgePropKey{src, etype, dst, prop}]
	return v, ok
}

// NodePropEntry is one overlay-held (node, prop) override, including
// NULL-tombstone entries.
type NodePropEntry struct {
	Node  graphtypes.NodeID
	Prop  graphtypes.PropKey
	Value graphtypes.Value
}

// NodePropEntries enumerates every node-property override the overlay
// holds, for the compactor to fold into the next snapshot generation.
func (o *Overlay) NodePropEntries() []NodePropEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]NodePropEntry, 0, len(o.nodeProps))
	for k, v := range o.nodeProps {
		out = append(out, NodePropEntry{Node: k.Node, Prop: k.Prop, Value: v})
	}
	return out
}

// EdgePropEntry is one overlay-held edge-property override.
type EdgePropEntry struct {
	Src   graphtypes.NodeID
	EType graphtypes.EType
	Dst   graphtypes.NodeID
	Prop  graphtypes.PropKey
	Value graphtypes.Value
}

func (o *Overlay) EdgePropEntries() []EdgePropEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]EdgePropEntry, 0, len(o.edgeProps))
	for k, v := range o.edgeProps {
		out = append(out, EdgePropEntry{Src: k.Src, EType: k.EType, Dst: k.Dst, Prop: k.Prop, Value: v})
	}
	return out
}

// Stats returns a snapshot of the overlay's mutation counters.
func (o *Overlay) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stats
}
