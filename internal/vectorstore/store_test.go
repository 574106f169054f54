package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.Init(4, 2, 4, MetricCosine, false)

	id1, err := s.Insert(100, []float32{1, 0, 0, 0})
	require.NoError(t, err)
	id2, err := s.Insert(200, []float32{0, 1, 0, 0})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	vec, ok, err := s.Get(100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0, 0}, vec)

	deleted, err := s.Delete(100)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err = s.Get(100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFragmentSealsAtTargetSize(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.Init(2, 2, 2, MetricL2, false)

	_, err = s.Insert(1, []float32{1, 1})
	require.NoError(t, err)
	_, err = s.Insert(2, []float32{2, 2})
	require.NoError(t, err)

	require.Len(t, s.manifest.Fragments, 1)
	assert.Equal(t, FragmentSealed, s.manifest.Fragments[0].State)

	_, err = s.Insert(3, []float32{3, 3})
	require.NoError(t, err)
	require.Len(t, s.manifest.Fragments, 2)
	assert.Equal(t, FragmentActive, s.manifest.Fragments[1].State)
}

func TestValidateVectorRejectsNaNAndDimensionMismatch(t *testing.T) {
	m := NewManifest(3, 10, 100, MetricCosine, false)
	assert.Error(t, ValidateVector(m, []float32{1, 2}))

	nan := float32(0)
	nan = nan / nan
	assert.Error(t, ValidateVector(m, []float32{1, nan, 3}))
}

func TestFlushAndReopenPersistsVectors(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.Init(3, 4, 100, MetricCosine, true)

	_, err = s.Insert(42, []float32{3, 0, 4})
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	reopened, err := Open(dir)
	require.NoError(t, err)
	vec, ok, err := reopened.Get(42)
	require.NoError(t, err)
	require.True(t, ok)
	// normalized to unit length: (3,0,4)/5
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[2], 1e-6)
}

func TestEncodeDecodeFragmentRoundTrip(t *testing.T) {
	f := NewFragment(7, 2, 4)
	_, err := f.Append([]float32{1, 2})
	require.NoError(t, err)
	_, err = f.Append([]float32{3, 4})
	require.NoError(t, err)
	f.Delete(0)

	b := Encode(f)
	got, err := Decode(b)
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.ID)
	assert.EqualValues(t, 1, got.LiveCount())

	_, ok := got.Get(0)
	assert.False(t, ok)
	v, ok := got.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, v)
}
