package graphdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/config"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/rayerr"
	"github.com/raydb/raydb/internal/rlog"
)

func openTestDB(t *testing.T, dir string) *DB {
	t.Helper()
	opts := config.Default()
	opts.DataDir = dir
	db, err := Open(opts, rlog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateNodesAndEdgesKnowsFollows(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	follows := txn.DefineEType("FOLLOWS")
	aliceKey := "alice"
	bobKey := "bob"
	alice, err := txn.CreateNode(&aliceKey)
	require.NoError(t, err)
	bob, err := txn.CreateNode(&bobKey)
	require.NoError(t, err)
	require.NoError(t, txn.AddEdge(alice, graphtypes.EType(knows), bob))
	require.NoError(t, txn.AddEdge(bob, graphtypes.EType(follows), alice))
	_, err = txn.Commit()
	require.NoError(t, err)

	assert.True(t, db.EdgeExists(alice, graphtypes.EType(knows), bob))
	assert.True(t, db.EdgeExists(bob, graphtypes.EType(follows), alice))
	assert.False(t, db.EdgeExists(alice, graphtypes.EType(follows), bob))

	id, ok := db.GetNodeByKey("alice")
	require.True(t, ok)
	assert.Equal(t, alice, id)
}

func TestDuplicateKeyRejected(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	key := "shared"
	_, err := txn.CreateNode(&key)
	require.NoError(t, err)
	_, err = txn.Commit()
	require.NoError(t, err)

	txn2 := db.Begin()
	_, err = txn2.CreateNode(&key)
	require.Error(t, err)
	assert.Equal(t, rayerr.KindDuplicateKey, rayerr.KindOf(err))
}

func TestIdempotentAddAndDeleteEdge(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	a, err := txn.CreateNode(nil)
	require.NoError(t, err)
	b, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.AddEdge(a, graphtypes.EType(knows), b))
	require.NoError(t, txn.AddEdge(a, graphtypes.EType(knows), b)) // idempotent re-add
	_, err = txn.Commit()
	require.NoError(t, err)
	assert.True(t, db.EdgeExists(a, graphtypes.EType(knows), b))

	txn2 := db.Begin()
	require.NoError(t, txn2.DelEdge(a, graphtypes.EType(knows), b))
	require.NoError(t, txn2.DelEdge(a, graphtypes.EType(knows), b)) // idempotent re-delete
	_, err = txn2.Commit()
	require.NoError(t, err)
	assert.False(t, db.EdgeExists(a, graphtypes.EType(knows), b))
}

func TestDeleteNodeRemovesIncidentEdges(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	a, err := txn.CreateNode(nil)
	require.NoError(t, err)
	b, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.AddEdge(a, graphtypes.EType(knows), b))
	require.NoError(t, txn.AddEdge(b, graphtypes.EType(knows), a))
	_, err = txn.Commit()
	require.NoError(t, err)

	txn2 := db.Begin()
	require.NoError(t, txn2.DeleteNode(a))
	_, err = txn2.Commit()
	require.NoError(t, err)

	assert.False(t, db.NodeExists(a))
	assert.False(t, db.EdgeExists(a, graphtypes.EType(knows), b))
	assert.False(t, db.EdgeExists(b, graphtypes.EType(knows), a))
	assert.True(t, db.NodeExists(b))
}

func TestChainOfNodesSurvivesCompaction(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	var ids []graphtypes.NodeID
	for i := 0; i < 10; i++ {
		id, err := txn.CreateNode(nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i < len(ids)-1; i++ {
		require.NoError(t, txn.AddEdge(ids[i], graphtypes.EType(knows), ids[i+1]))
	}
	_, err := txn.Commit()
	require.NoError(t, err)

	require.NoError(t, db.Compact())

	for i := 0; i < len(ids)-1; i++ {
		assert.True(t, db.EdgeExists(ids[i], graphtypes.EType(knows), ids[i+1]))
	}
	assert.EqualValues(t, 10, db.CountNodes())
}

func TestReopenPersistsCommittedData(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	key := "root"
	root, err := txn.CreateNode(&key)
	require.NoError(t, err)
	child, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.AddEdge(root, graphtypes.EType(knows), child))
	_, err = txn.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened := openTestDB(t, dir)
	id, ok := reopened.GetNodeByKey("root")
	require.True(t, ok)
	assert.Equal(t, root, id)
	assert.True(t, reopened.NodeExists(child))
}

func TestReopenAfterCompactionPersistsData(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	key := "root"
	root, err := txn.CreateNode(&key)
	require.NoError(t, err)
	child, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.AddEdge(root, graphtypes.EType(knows), child))
	_, err = txn.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Compact())
	require.NoError(t, db.Close())

	reopened := openTestDB(t, dir)
	id, ok := reopened.GetNodeByKey("root")
	require.True(t, ok)
	assert.Equal(t, root, id)
	assert.True(t, reopened.EdgeExists(root, graphtypes.EType(knows), child))
	assert.EqualValues(t, 2, reopened.CountNodes())
	assert.ElementsMatch(t, []graphtypes.NodeID{root, child}, reopened.ListNodes())
}

// TestReopenAfterCompactionThenMoreWritesDoesNotDoubleApply guards
// against a compaction boundary computed from a counter that never
// advances during the session: if the WAL prune/replay boundary were
// stale, transactions committed after Compact would be replayed on top
// of an overlay that is already folded into the snapshot, double-
// counting every node and edge they touch.
func TestReopenAfterCompactionThenMoreWritesDoesNotDoubleApply(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	txn := db.Begin()
	knows := txn.DefineEType("KNOWS")
	root, err := txn.CreateNode(nil)
	require.NoError(t, err)
	child, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.AddEdge(root, graphtypes.EType(knows), child))
	_, err = txn.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Compact())

	txn2 := db.Begin()
	third, err := txn2.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn2.AddEdge(child, graphtypes.EType(knows), third))
	_, err = txn2.Commit()
	require.NoError(t, err)

	assert.EqualValues(t, 3, db.CountNodes())
	require.NoError(t, db.Close())

	reopened := openTestDB(t, dir)
	assert.EqualValues(t, 3, reopened.CountNodes())
	assert.True(t, reopened.EdgeExists(root, graphtypes.EType(knows), child))
	assert.True(t, reopened.EdgeExists(child, graphtypes.EType(knows), third))
}

func TestNodePropSetAndDelete(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	age := txn.DefinePropKey("age")
	n, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.SetNodeProp(n, graphtypes.PropKey(age), graphtypes.I64Value(30)))
	_, err = txn.Commit()
	require.NoError(t, err)

	v, found := db.GetNodeProp(n, graphtypes.PropKey(age))
	require.True(t, found)
	assert.EqualValues(t, 30, v.I64)

	txn2 := db.Begin()
	require.NoError(t, txn2.DelNodeProp(n, graphtypes.PropKey(age)))
	_, err = txn2.Commit()
	require.NoError(t, err)

	_, found = db.GetNodeProp(n, graphtypes.PropKey(age))
	assert.False(t, found)
}

func TestSetNodeVectorPersistsAndDeletes(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	n, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.SetNodeVector(n, []float32{1, 0, 0}))
	_, err = txn.Commit()
	require.NoError(t, err)

	vec, ok, err := db.GetNodeVector(n)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, vec)

	txn2 := db.Begin()
	require.NoError(t, txn2.DelNodeVector(n))
	_, err = txn2.Commit()
	require.NoError(t, err)

	_, ok, err = db.GetNodeVector(n)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNodeVectorRejectsDimensionMismatch(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn := db.Begin()
	n, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.SetNodeVector(n, []float32{1, 0, 0}))
	_, err = txn.Commit()
	require.NoError(t, err)

	txn2 := db.Begin()
	err = txn2.SetNodeVector(n, []float32{1, 0})
	assert.Error(t, err)
	txn2.Rollback()
}

func TestNodeVectorSurvivesReopenAndCompaction(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	txn := db.Begin()
	n, err := txn.CreateNode(nil)
	require.NoError(t, err)
	require.NoError(t, txn.SetNodeVector(n, []float32{0.5, 0.25, 0.125}))
	_, err = txn.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Compact())
	require.NoError(t, db.Close())

	reopened := openTestDB(t, dir)
	vec, ok, err := reopened.GetNodeVector(n)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.25, 0.125}, vec)
}

func TestAutoCheckpointDueRespectsRatioAndFlag(t *testing.T) {
	dir := t.TempDir()
	opts := config.Default()
	opts.DataDir = dir
	opts.CheckpointRatio = 0.5
	db, err := Open(opts, rlog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.False(t, db.autoCheckpointDue(), "empty overlay should never trigger a checkpoint")

	txn := db.Begin()
	for i := 0; i < 4; i++ {
		_, err := txn.CreateNode(nil)
		require.NoError(t, err)
	}
	_, err = txn.Commit()
	require.NoError(t, err)

	assert.True(t, db.autoCheckpointDue(), "4 overlay ops against an empty (base=1) snapshot exceeds a 0.5 ratio")

	db.opts.AutoCheckpoint = false
	assert.False(t, db.autoCheckpointDue(), "AutoCheckpoint=false must disable the ratio check entirely")
}

func TestConcurrentWriteConflictAborts(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	txn0 := db.Begin()
	age := txn0.DefinePropKey("age")
	n, err := txn0.CreateNode(nil)
	require.NoError(t, err)
	_, err = txn0.Commit()
	require.NoError(t, err)

	txnA := db.Begin()
	txnB := db.Begin()

	require.NoError(t, txnA.SetNodeProp(n, graphtypes.PropKey(age), graphtypes.I64Value(1)))
	require.NoError(t, txnB.SetNodeProp(n, graphtypes.PropKey(age), graphtypes.I64Value(2)))

	_, errA := txnA.Commit()
	require.NoError(t, errA)

	_, errB := txnB.Commit()
	require.Error(t, errB)
	assert.Equal(t, rayerr.KindConflict, rayerr.KindOf(errB))
}
