package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/graphtypes"
)

func TestAddEdgeIdempotent(t *testing.T) {
	o := New()
	o.AddEdge(1, 7, 2)
	o.AddEdge(1, 7, 2)
	assert.Equal(t, []EdgeTarget{{EType: 7, Other: 2}}, o.OutAdds(1))
	assert.Equal(t, 1, o.Stats().EdgesAdded)
}

func TestAddEdgeCancelsPendingDelete(t *testing.T) {
	o := New()
	o.DelEdge(1, 7, 2) // tombstones a (hypothetically snapshot-backed) edge
	require.Len(t, o.OutDels(1), 1)

	o.AddEdge(1, 7, 2)
	assert.Empty(t, o.OutDels(1))
	assert.Empty(t, o.OutAdds(1), "cancelling a delete must not also create an add entry")
}

func TestDeleteEdgeCancelsPendingAddWithoutTombstone(t *testing.T) {
	o := New()
	o.AddEdge(1, 7, 2)
	o.DelEdge(1, 7, 2)
	assert.Empty(t, o.OutAdds(1))
	assert.Empty(t, o.OutDels(1), "deleting a pending add must not produce a tombstone")
}

func TestDeleteEdgeIdempotent(t *testing.T) {
	o := New()
	o.DelEdge(1, 7, 2)
	o.DelEdge(1, 7, 2)
	assert.Len(t, o.OutDels(1), 1)
}

func TestKeyIndexAndTombstone(t *testing.T) {
	o := New()
	key := "user:alice"
	o.CreateNode(100, &key)

	id, ok := o.LookupKey("user:alice")
	require.True(t, ok)
	assert.EqualValues(t, 100, id)

	o.DeleteNode(100)
	_, ok = o.LookupKey("user:alice")
	assert.False(t, ok, "deleting a node created purely in this overlay must clear its key")
}

func TestRemoveKeyFromSnapshotMarksDeleted(t *testing.T) {
	o := New()
	o.RemoveKeyFromSnapshot("user:bob")
	assert.True(t, o.KeyDeleted("user:bob"))
}

func TestNodePropTombstone(t *testing.T) {
	o := New()
	o.SetNodeProp(1, 5, graphtypes.I64Value(30))
	v, ok := o.NodeProp(1, 5)
	require.True(t, ok)
	assert.EqualValues(t, 30, v.I64)

	o.DelNodeProp(1, 5)
	v, ok = o.NodeProp(1, 5)
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestMergeSnapshotAndDeltaSortedOrder(t *testing.T) {
	snap := []SnapshotEdge{
		{EType: 1, Other: 5},
		{EType: 2, Other: 3},
	}
	adds := []EdgeTarget{{EType: 1, Other: 9}, {EType: 2, Other: 1}}
	var dels []EdgeTarget

	m := NewMerge(snap, adds, dels, nil)
	var got []MergedEdge
	for {
		e, ok := m.Next()
		if !ok {
			break
		}
		got = append(got, e)
	}
	want := []MergedEdge{
		{EType: 1, Other: 5},
		{EType: 1, Other: 9},
		{EType: 2, Other: 1},
		{EType: 2, Other: 3},
	}
	assert.Equal(t, want, got)
}

func TestMergeSkipsDeletedSnapshotEdgeAndTombstonedTarget(t *testing.T) {
	snap := []SnapshotEdge{
		{EType: 1, Other: 2}, // will be deleted via dels
		{EType: 1, Other: 3}, // target is tombstoned
		{EType: 1, Other: 4},
	}
	dels := []EdgeTarget{{EType: 1, Other: 2}}
	tombstoned := func(id graphtypes.NodeID) bool { return id == 3 }

	m := NewMerge(snap, nil, dels, tombstoned)
	var got []MergedEdge
	for {
		e, ok := m.Next()
		if !ok {
			break
		}
		got = append(got, e)
	}
	assert.Equal(t, []MergedEdge{{EType: 1, Other: 4}}, got)
}
