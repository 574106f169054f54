package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/graphtypes"
)

// buildTwoNodeOneEdge writes a minimal snapshot: nodes "alice"(0) and
// "bob"(1), one KNOWS(etype=7) edge alice->bob, and one I64 property on
// alice. It mirrors the alice/bob scenario from spec §8.
func buildTwoNodeOneEdge(t *testing.T, dir string) string {
	t.Helper()

	strs := []string{"alice", "bob"}
	var strBytes []byte
	offsets := make([]byte, 0, (len(strs)+1)*4)
	off := uint32(0)
	putU32 := func(b []byte, v uint32) []byte {
		return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	offsets = putU32(offsets, off)
	for _, s := range strs {
		strBytes = append(strBytes, s...)
		off += uint32(len(s))
		offsets = putU32(offsets, off)
	}

	physToNode := make([]byte, 0, 16)
	putU64 := func(b []byte, v uint64) []byte {
		for i := 0; i < 8; i++ {
			b = append(b, byte(v>>(8*i)))
		}
		return b
	}
	physToNode = putU64(physToNode, 100) // phys0 -> nodeid 100 (alice)
	physToNode = putU64(physToNode, 200) // phys1 -> nodeid 200 (bob)

	nodeIDToPhys := make([]byte, (201)*4)
	putU32At := func(b []byte, at uint32, v uint32) {
		b[at] = byte(v)
		b[at+1] = byte(v >> 8)
		b[at+2] = byte(v >> 16)
		b[at+3] = byte(v >> 24)
	}
	for i := range nodeIDToPhys {
		nodeIDToPhys[i] = 0xff
	}
	putU32At(nodeIDToPhys, 100*4, 0)
	putU32At(nodeIDToPhys, 200*4, 1)

	outOffsets := []byte{}
	outOffsets = putU32(outOffsets, 0)
	outOffsets = putU32(outOffsets, 1) // phys0 has 1 out edge
	outOffsets = putU32(outOffsets, 1) // phys1 has 0 out edges
	outEType := putU32(nil, 7)
	outDst := putU32(nil, 1) // dst phys = 1 (bob)

	inOffsets := []byte{}
	inOffsets = putU32(inOffsets, 0)
	inOffsets = putU32(inOffsets, 0) // phys0 has 0 in edges
	inOffsets = putU32(inOffsets, 1) // phys1 has 1 in edge
	inSrc := putU32(nil, 0)          // src phys = 0 (alice)
	inEType := putU32(nil, 7)
	inOutIndex := putU32(nil, 0) // points at out-edge index 0

	numBuckets := uint64(4)
	type kentry struct {
		hash   uint64
		strID  uint32
		nodeID graphtypes.NodeID
	}
	var kentries []kentry
	kentries = append(kentries, kentry{HashKey("alice"), 0, 100})
	kentries = append(kentries, kentry{HashKey("bob"), 1, 200})

	buckets := make([][]kentry, numBuckets)
	for _, e := range kentries {
		b := e.hash % numBuckets
		buckets[b] = append(buckets[b], e)
	}
	var keyEntries []byte
	keyBuckets := []byte{}
	cursor := uint32(0)
	for _, b := range buckets {
		keyBuckets = putU32(keyBuckets, cursor)
		for _, e := range b {
			keyEntries = append(keyEntries, EncodeKeyEntry(e.hash, e.strID, e.nodeID)...)
			cursor++
		}
	}
	keyBuckets = putU32(keyBuckets, cursor)

	nodeProp := EncodeNodePropEntry(0, graphtypes.PropKey(5), byte(graphtypes.TagI64), uint64(30))

	b := Build{
		Generation:      1,
		TimestampNs:     1234,
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

	path := filepath.Join(dir, "1.gds")
	require.NoError(t, Write(path, b))
	return path
}

func TestWriteOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := buildTwoNodeOneEdge(t, dir)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.EqualValues(t, 1, r.Generation())
	assert.EqualValues(t, 2, r.NumNodes())
	assert.EqualValues(t, 1, r.NumEdges())
}

func TestLookupKeyAndNeighbors(t *testing.T) {
	dir := t.TempDir()
	path := buildTwoNodeOneEdge(t, dir)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	aliceID, ok := r.LookupKey("alice")
	require.True(t, ok)
	assert.EqualValues(t, 100, aliceID)

	bobID, ok := r.LookupKey("bob")
	require.True(t, ok)
	assert.EqualValues(t, 200, bobID)

	_, ok = r.LookupKey("carol")
	assert.False(t, ok)

	alicePhys, ok := r.NodeIDToPhys(aliceID)
	require.True(t, ok)
	start, end, ok := r.OutEdges(alicePhys)
	require.True(t, ok)
	require.EqualValues(t, 1, end-start)
	edge := r.OutAt(start)
	assert.EqualValues(t, 7, edge.EType)
	assert.Equal(t, bobID, edge.Dst)
}

func TestNodePropRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := buildTwoNodeOneEdge(t, dir)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	v, ok, err := r.NodeProp(0, graphtypes.PropKey(5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphtypes.TagI64, v.Tag)
	assert.EqualValues(t, 30, v.I64)

	_, ok, err = r.NodeProp(0, graphtypes.PropKey(6))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckFullPassesOnWellFormedSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := buildTwoNodeOneEdge(t, dir)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.NoError(t, r.CheckFull())
}

func TestOpenRejectsCorruptSection(t *testing.T) {
	dir := t.TempDir()
	path := buildTwoNodeOneEdge(t, dir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip the file's last byte, inside the node_prop_entries section
	// payload (the last non-empty section).
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(path)
	assert.Error(t, err)
}
