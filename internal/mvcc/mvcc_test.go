package mvcc

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/rayerr"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64 { return c.ms }

func TestBasicCommitAndVisibility(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	m := NewManager(64, clock, 0)

	tx1 := m.Begin()
	key := NodePropKey(1, 5)
	tx1.Write(key, Payload{Value: graphtypes.I64Value(1)})
	ts1, err := tx1.Commit()
	require.NoError(t, err)

	tx2 := m.Begin()
	p, ok := tx2.Read(key)
	require.True(t, ok)
	assert.EqualValues(t, 1, p.Value.I64)
	assert.Greater(t, ts1, uint64(0))
}

// TestConcurrentWriteConflict reproduces the spec §8 scenario: T2 reads
// A.x, T3 (started after T2) sets x=2 and commits first, then T2's
// commit of x=1 must fail with CONFLICT.
func TestConcurrentWriteConflict(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	m := NewManager(64, clock, 0)

	setup := m.Begin()
	key := NodePropKey(42, 7)
	setup.Write(key, Payload{Value: graphtypes.I64Value(0)})
	_, err := setup.Commit()
	require.NoError(t, err)

	t2 := m.Begin()
	_, ok := t2.Read(key)
	require.True(t, ok)

	t3 := m.Begin()
	t3.Write(key, Payload{Value: graphtypes.I64Value(2)})
	_, err = t3.Commit()
	require.NoError(t, err)

	t2.Write(key, Payload{Value: graphtypes.I64Value(1)})
	_, err = t2.Commit()
	require.Error(t, err)
	assert.ErrorIs(t, err, rayerr.ErrConflict)
}

func TestNonConflictingKeysCommitIndependently(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	m := NewManager(64, clock, 0)

	t1 := m.Begin()
	t1.Write(NodePropKey(1, 1), Payload{Value: graphtypes.I64Value(1)})

	t2 := m.Begin()
	t2.Write(NodePropKey(2, 1), Payload{Value: graphtypes.I64Value(2)})

	_, err := t1.Commit()
	require.NoError(t, err)
	_, err = t2.Commit()
	require.NoError(t, err)
}

func TestGCPrunesBelowHorizon(t *testing.T) {
	clock := &fakeClock{ms: 0}
	m := NewManager(64, clock, 0)
	key := NodePropKey(9, 1)

	for i := int64(0); i < 5; i++ {
		clock.ms += sampleIntervalMs + 1
		tx := m.Begin()
		tx.Write(key, Payload{Value: graphtypes.I64Value(i)})
		_, err := tx.Commit()
		require.NoError(t, err)
	}

	clock.ms += 10 * sampleIntervalMs
	stats := m.RunGC(1, zerolog.Nop())
	assert.Greater(t, stats.VersionsPruned, 0)

	// The newest value must still be visible after pruning.
	reader := m.Begin()
	p, ok := reader.Read(key)
	require.True(t, ok)
	assert.EqualValues(t, 4, p.Value.I64)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	m := NewManager(64, clock, 0)
	key := NodePropKey(1, 1)

	tx := m.Begin()
	tx.Write(key, Payload{Value: graphtypes.I64Value(99)})
	tx.Rollback()

	reader := m.Begin()
	_, ok := reader.Read(key)
	assert.False(t, ok)
}
