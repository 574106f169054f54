package graphdb

import (
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/mvcc"
	"github.com/raydb/raydb/internal/rayerr"
	"github.com/raydb/raydb/internal/wal"
)

// pendingOp is one staged mutation: its WAL record plus the effect it
// has on the overlay once the transaction's WAL write is durable (spec
// §4.6 commit: "writes WAL records... fsyncs, publishes delta").
type pendingOp struct {
	record wal.Record
	apply  func(o *delta.Overlay)
}

// Txn is a staging area for one transaction's mutations: every method
// below only buffers state (in mvt's read/write sets and in ops) until
// Commit durably publishes it.
type Txn struct {
	db  *DB
	mvt *mvcc.Transaction
	ops []pendingOp

	// vecOps stages vectorstore mutations separately from ops: vectors
	// live in internal/vectorstore's own manifest, not the delta
	// overlay, so there is no overlay-apply closure to run under
	// db.mu — just the store call itself.
	vecOps []func() error

	finished bool
}

// Begin starts a new transaction with a consistent read snapshot at the
// current commit_ts (spec §4.5).
func (db *DB) Begin() *Txn {
	return &Txn{db: db, mvt: db.mgr.Begin()}
}

func (t *Txn) stage(rec wal.Record, apply func(o *delta.Overlay)) {
	rec.TxID = t.mvt.ID()
	t.ops = append(t.ops, pendingOp{record: rec, apply: apply})
}

// nodeExists resolves node liveness over the merged view and marks the
// node's key in this transaction's read-set, so a concurrent commit that
// changes id's liveness after this transaction started is caught as a
// conflict at Commit time (spec §4.5 snapshot isolation).
func (t *Txn) nodeExists(id graphtypes.NodeID) bool {
	t.mvt.MarkRead(mvcc.NodeKey(id))
	return t.db.nodeExistsMerged(id)
}

// edgeExists is nodeExists's counterpart for edges.
func (t *Txn) edgeExists(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) bool {
	t.mvt.MarkRead(mvcc.EdgeKey(src, etype, dst))
	return t.db.edgeExistsMerged(src, etype, dst)
}

// DefineLabel is idempotent by name (spec §4.6).
func (t *Txn) DefineLabel(name string) uint32 {
	return t.define(t.db.labels, wal.TypeDefineLabel, name)
}

func (t *Txn) DefineEType(name string) uint32 {
	return t.define(t.db.etypes, wal.TypeDefineEType, name)
}

func (t *Txn) DefinePropKey(name string) uint32 {
	return t.define(t.db.propkeys, wal.TypeDefinePropKey, name)
}

func (t *Txn) define(reg *schemaRegistry, typ wal.RecordType, name string) uint32 {
	id, created := reg.defineOrGet(name)
	if !created {
		return id
	}
	t.stage(wal.Record{Type: typ, Payload: wal.EncodeDefine(wal.DefinePayload{ID: id, Name: name})}, func(o *delta.Overlay) {
		switch typ {
		case wal.TypeDefineLabel:
			o.DefineLabel(id, name)
		case wal.TypeDefineEType:
			o.DefineEType(id, name)
		default:
			o.DefinePropKey(id, name)
		}
	})
	return id
}

// CreateNode allocates a fresh node id and, if key is non-nil, fails
// with DUPLICATE_KEY when a live node already owns it (spec §4.6).
func (t *Txn) CreateNode(key *string) (graphtypes.NodeID, error) {
	if key != nil {
		if _, alive := t.db.resolveLiveKey(*key); alive {
			return 0, rayerr.New(rayerr.KindDuplicateKey, "key already owned by a live node")
		}
	}
	id := t.db.allocNodeID()

	t.mvt.Write(mvcc.NodeKey(id), mvcc.Payload{Exists: true})
	t.stage(wal.Record{Type: wal.TypeCreateNode, Payload: wal.EncodeCreateNode(wal.CreateNodePayload{NodeID: id, Key: key})}, func(o *delta.Overlay) {
		o.CreateNode(id, key)
	})
	return id, nil
}

// DeleteNode tombstones id and every edge currently incident to it (spec
// §4.6 "Tombstones the node and all its edges").
func (t *Txn) DeleteNode(id graphtypes.NodeID) error {
	if !t.nodeExists(id) {
		return rayerr.New(rayerr.KindNotFound, "node not visible to this transaction")
	}
	t.mvt.Write(mvcc.NodeKey(id), mvcc.Payload{Exists: false})

	for _, e := range t.db.mergedOut(id) {
		t.DelEdge(id, e.EType, e.Other)
	}
	for _, e := range t.db.mergedIn(id) {
		t.DelEdge(e.Other, e.EType, id)
	}

	key := t.db.keyForNode(id)
	t.stage(wal.Record{Type: wal.TypeDeleteNode, Payload: wal.EncodeNodeID(id)}, func(o *delta.Overlay) {
		o.DeleteNode(id)
		if key != "" {
			o.RemoveKeyFromSnapshot(key)
		}
	})
	return nil
}

// AddEdge is a no-op if the edge is already visible; fails with
// NOT_FOUND if either endpoint is not visible (spec §4.6).
func (t *Txn) AddEdge(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) error {
	if !t.nodeExists(src) || !t.nodeExists(dst) {
		return rayerr.New(rayerr.KindNotFound, "edge endpoint not visible to this transaction")
	}
	if t.edgeExists(src, etype, dst) {
		return nil
	}
	t.mvt.Write(mvcc.EdgeKey(src, etype, dst), mvcc.Payload{Exists: true})
	t.stage(wal.Record{Type: wal.TypeAddEdge, Payload: wal.EncodeEdge(wal.EdgePayload{Src: src, EType: etype, Dst: dst})}, func(o *delta.Overlay) {
		o.AddEdge(src, etype, dst)
	})
	return nil
}

// DelEdge removes (src,etype,dst) if present; a no-op otherwise.
func (t *Txn) DelEdge(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID) error {
	if !t.edgeExists(src, etype, dst) {
		return nil
	}
	t.mvt.Write(mvcc.EdgeKey(src, etype, dst), mvcc.Payload{Exists: false})
	t.stage(wal.Record{Type: wal.TypeDelEdge, Payload: wal.EncodeEdge(wal.EdgePayload{Src: src, EType: etype, Dst: dst})}, func(o *delta.Overlay) {
		o.DelEdge(src, etype, dst)
	})
	return nil
}

func (t *Txn) SetNodeProp(node graphtypes.NodeID, prop graphtypes.PropKey, v graphtypes.Value) error {
	if !t.nodeExists(node) {
		return rayerr.New(rayerr.KindNotFound, "node not visible to this transaction")
	}
	t.mvt.Write(mvcc.NodePropKey(node, prop), mvcc.Payload{Exists: true, Value: v})
	t.stage(wal.Record{Type: wal.TypeSetNodeProp, Payload: wal.EncodeNodeProp(wal.NodePropPayload{NodeID: node, Prop: prop, Value: v})}, func(o *delta.Overlay) {
		o.SetNodeProp(node, prop, v)
	})
	return nil
}

func (t *Txn) DelNodeProp(node graphtypes.NodeID, prop graphtypes.PropKey) error {
	if !t.nodeExists(node) {
		return rayerr.New(rayerr.KindNotFound, "node not visible to this transaction")
	}
	propKey := mvcc.NodePropKey(node, prop)
	t.mvt.MarkRead(propKey)
	t.mvt.Write(propKey, mvcc.Payload{Deleted: true})
	t.stage(wal.Record{Type: wal.TypeDelNodeProp, Payload: wal.EncodeDelNodeProp(wal.DelNodePropPayload{NodeID: node, Prop: prop})}, func(o *delta.Overlay) {
		o.DelNodeProp(node, prop)
	})
	return nil
}

func (t *Txn) SetEdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey, v graphtypes.Value) error {
	if !t.edgeExists(src, etype, dst) {
		return rayerr.New(rayerr.KindNotFound, "edge not visible to this transaction")
	}
	t.mvt.Write(mvcc.EdgePropKey(src, etype, dst, prop), mvcc.Payload{Exists: true, Value: v})
	t.stage(wal.Record{Type: wal.TypeSetEdgeProp, Payload: wal.EncodeEdgeProp(wal.EdgePropPayload{Src: src, EType: etype, Dst: dst, Prop: prop, Value: v})}, func(o *delta.Overlay) {
		o.SetEdgeProp(src, etype, dst, prop, v)
	})
	return nil
}

func (t *Txn) DelEdgeProp(src graphtypes.NodeID, etype graphtypes.EType, dst graphtypes.NodeID, prop graphtypes.PropKey) error {
	if !t.edgeExists(src, etype, dst) {
		return rayerr.New(rayerr.KindNotFound, "edge not visible to this transaction")
	}
	propKey := mvcc.EdgePropKey(src, etype, dst, prop)
	t.mvt.MarkRead(propKey)
	t.mvt.Write(propKey, mvcc.Payload{Deleted: true})
	t.stage(wal.Record{Type: wal.TypeDelEdgeProp, Payload: wal.EncodeDelEdgeProp(wal.DelEdgePropPayload{Src: src, EType: etype, Dst: dst, Prop: prop})}, func(o *delta.Overlay) {
		o.DelEdgeProp(src, etype, dst, prop)
	})
	return nil
}

// SetNodeVector attaches (or replaces) node's embedding (spec §4.10).
// The vector's length fixes the store's dimensionality on the first call
// across the database's lifetime; every call after that must match it.
func (t *Txn) SetNodeVector(node graphtypes.NodeID, vec []float32) error {
	if !t.nodeExists(node) {
		return rayerr.New(rayerr.KindNotFound, "node not visible to this transaction")
	}
	if t.db.vectors.Dimensions() != 0 {
		if err := t.db.vectors.ValidateVector(vec); err != nil {
			return err
		}
	}
	cp := append([]float32(nil), vec...)
	t.vecOps = append(t.vecOps, func() error {
		ensureVectorInit(t.db.vectors, t.db.opts, uint32(len(cp)))
		_, err := t.db.vectors.Insert(uint64(node), cp)
		return err
	})
	t.stage(wal.Record{Type: wal.TypeSetNodeVector, Payload: wal.EncodeSetNodeVector(wal.SetNodeVectorPayload{NodeID: node, Vector: cp})}, func(o *delta.Overlay) {})
	return nil
}

// DelNodeVector removes node's embedding, if any; a no-op otherwise.
func (t *Txn) DelNodeVector(node graphtypes.NodeID) error {
	if !t.nodeExists(node) {
		return rayerr.New(rayerr.KindNotFound, "node not visible to this transaction")
	}
	t.vecOps = append(t.vecOps, func() error {
		_, err := t.db.vectors.Delete(uint64(node))
		return err
	})
	t.stage(wal.Record{Type: wal.TypeDelNodeVector, Payload: wal.EncodeNodeID(node)}, func(o *delta.Overlay) {})
	return nil
}

// Commit validates conflicts, obtains a commit_ts, writes WAL records
// terminated by COMMIT, fsyncs, publishes the delta, and installs
// version records (spec §4.6). Returns CONFLICT if any key in the
// transaction's read/write sets was concurrently modified.
func (t *Txn) Commit() (uint64, error) {
	if t.finished {
		return 0, rayerr.New(rayerr.KindInvalidArgument, "transaction already finished")
	}
	t.finished = true

	t.db.commitMu.Lock()
	defer t.db.commitMu.Unlock()

	if err := t.db.mgr.Precheck(t.mvt); err != nil {
		t.mvt.Rollback()
		return 0, err
	}

	for _, op := range t.ops {
		if err := t.db.walw.Stage(op.record); err != nil {
			t.mvt.Rollback()
			return 0, err
		}
	}
	if err := t.db.walw.CommitFlush(t.mvt.ID()); err != nil {
		t.mvt.Rollback()
		return 0, err
	}

	ts, err := t.mvt.Commit()
	if err != nil {
		// The WAL already durably recorded this transaction's records,
		// but Precheck ran under the same commitMu critical section
		// with no intervening commit possible, so this path is
		// unreachable in practice; treat it as a fatal invariant
		// violation rather than silently losing the WAL write.
		return 0, err
	}

	t.db.mu.Lock()
	for _, op := range t.ops {
		op.apply(t.db.overlay)
	}
	t.db.mu.Unlock()

	for _, op := range t.vecOps {
		// The WAL record is already durable at this point, so a failure
		// here only desyncs the in-memory vectorstore from what replay
		// would reconstruct; surface it so the caller knows the commit
		// is not fully applied rather than silently dropping it.
		if err := op(); err != nil {
			return ts, err
		}
	}

	return ts, nil
}

// Rollback discards every staged mutation; nothing written by this
// transaction was ever published, so there is nothing on disk or in the
// overlay to undo.
func (t *Txn) Rollback() {
	if t.finished {
		return
	}
	t.finished = true
	t.mvt.Rollback()
	t.ops = nil
}
