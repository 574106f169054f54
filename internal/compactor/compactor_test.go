package compactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/manifest"
	"github.com/raydb/raydb/internal/snapshot"
)

const knows = graphtypes.EType(7)

// buildAliceBobSnapshot writes generation 1: alice(100)-KNOWS->bob(200),
// with one I64 property on alice (propkey 5).
func buildAliceBobSnapshot(t *testing.T, dir string) *snapshot.Reader {
	t.Helper()

	putU32 := func(b []byte, v uint32) []byte {
		return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	putU64 := func(b []byte, v uint64) []byte {
		for i := 0; i < 8; i++ {
			b = append(b, byte(v>>(8*i)))
		}
		return b
	}

	strs := []string{"alice", "bob"}
	var strBytes []byte
	offsets := putU32(nil, 0)
	off := uint32(0)
	for _, s := range strs {
		strBytes = append(strBytes, s...)
		off += uint32(len(s))
		offsets = putU32(offsets, off)
	}

	physToNode := putU64(nil, 100)
	physToNode = putU64(physToNode, 200)

	nodeIDToPhys := make([]byte, 201*4)
	for i := range nodeIDToPhys {
		nodeIDToPhys[i] = 0xff
	}
	putAt := func(at uint32, v uint32) {
		nodeIDToPhys[at] = byte(v)
		nodeIDToPhys[at+1] = byte(v >> 8)
		nodeIDToPhys[at+2] = byte(v >> 16)
		nodeIDToPhys[at+3] = byte(v >> 24)
	}
	putAt(100*4, 0)
	putAt(200*4, 1)

	outOffsets := putU32(nil, 0)
	outOffsets = putU32(outOffsets, 1)
	outOffsets = putU32(outOffsets, 1)
	outEType := putU32(nil, uint32(knows))
	outDst := putU32(nil, 1)

	inOffsets := putU32(nil, 0)
	inOffsets = putU32(inOffsets, 0)
	inOffsets = putU32(inOffsets, 1)
	inSrc := putU32(nil, 0)
	inEType := putU32(nil, uint32(knows))
	inOutIndex := putU32(nil, 0)

	numBuckets := uint64(4)
	type kentry struct {
		hash   uint64
		strID  uint32
		nodeID graphtypes.NodeID
	}
	entries := []kentry{
		{snapshot.HashKey("alice"), 0, 100},
		{snapshot.HashKey("bob"), 1, 200},
	}
	buckets := make([][]kentry, numBuckets)
	for _, e := range entries {
		b := e.hash % numBuckets
		buckets[b] = append(buckets[b], e)
	}
	var keyEntries []byte
	keyBuckets := putU32(nil, 0)
	cursor := uint32(0)
	for _, b := range buckets {
		for _, e := range b {
			keyEntries = append(keyEntries, snapshot.EncodeKeyEntry(e.hash, e.strID, e.nodeID)...)
			cursor++
		}
		keyBuckets = putU32(keyBuckets, cursor)
	}

	nodeProp := snapshot.EncodeNodePropEntry(0, graphtypes.PropKey(5), byte(graphtypes.TagI64), 30)

	b := snapshot.Build{
		Generation:      1,
		TimestampNs:     1,
		NumNodes:        2,
		NumEdges:        1,
		MaxNodeID:       200,
		NumStrings:      uint64(len(strs)),
		NumBuckets:      numBuckets,
		StringBytes:     strBytes,
		StringOffsets:   offsets,
		PhysToNodeID:    physToNode,
		NodeIDToPhys:    nodeIDToPhys,
		OutOffsets:      outOffsets,
		OutEType:        outEType,
		OutDst:          outDst,
		InOffsets:       inOffsets,
		InSrc:           inSrc,
		InEType:         inEType,
		InOutIndex:      inOutIndex,
		KeyEntries:      keyEntries,
		KeyBuckets:      keyBuckets,
		NodePropEntries: nodeProp,
	}

	path := snapshot.WritePath(dir, 1)
	require.NoError(t, snapshot.Write(path, b))
	r, err := snapshot.Open(path)
	require.NoError(t, err)
	return r
}

func TestRunMergesOverlayIntoNewGeneration(t *testing.T) {
	dir := t.TempDir()
	old := buildAliceBobSnapshot(t, dir)
	defer old.Close()

	overlay := delta.New()
	charlie := graphtypes.NodeID(300)
	key := "charlie"
	overlay.CreateNode(charlie, &key)
	overlay.AddEdge(200, knows, charlie) // bob -> charlie
	overlay.SetNodeProp(charlie, graphtypes.PropKey(6), graphtypes.StringValue("hi"))
	overlay.DelNodeProp(100, graphtypes.PropKey(5)) // tombstone alice's prop

	gen, err := Run(dir, Input{
		Old:        old,
		Overlay:    overlay,
		SchemaDefs: nil,
		Generation: 2,
		WALMinTxID: 1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, gen)

	r, err := snapshot.Open(snapshot.WritePath(dir, 2))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.CheckFull())
	assert.EqualValues(t, 3, r.NumNodes())
	assert.EqualValues(t, 2, r.NumEdges())

	id, ok := r.LookupKey("charlie")
	require.True(t, ok)
	assert.EqualValues(t, charlie, id)

	alicePhys, ok := r.NodeIDToPhys(100)
	require.True(t, ok)
	_, found, err := r.NodeProp(alicePhys, graphtypes.PropKey(5))
	require.NoError(t, err)
	assert.False(t, found, "tombstoned property must not survive compaction")

	charliePhys, ok := r.NodeIDToPhys(charlie)
	require.True(t, ok)
	v, found, err := r.NodeProp(charliePhys, graphtypes.PropKey(6))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hi", v.Str)

	bobPhys, ok := r.NodeIDToPhys(200)
	require.True(t, ok)
	_, found = r.FindOutEdge(bobPhys, knows, charliePhys)
	assert.True(t, found, "bob->charlie must be present after merge")

	m, err := manifest.Read(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.SnapshotGen)
	assert.EqualValues(t, 1, m.WALMinTxID)
}

func TestRunFirstCompactionWithNoOldSnapshot(t *testing.T) {
	dir := t.TempDir()
	overlay := delta.New()
	key := "root"
	overlay.CreateNode(1, &key)

	gen, err := Run(dir, Input{
		Old:        nil,
		Overlay:    overlay,
		Generation: 1,
		WALMinTxID: 1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, gen)

	r, err := snapshot.Open(snapshot.WritePath(dir, 1))
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.CheckFull())
	assert.EqualValues(t, 1, r.NumNodes())

	id, ok := r.LookupKey("root")
	require.True(t, ok)
	assert.EqualValues(t, 1, id)
}
