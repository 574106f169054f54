package container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.raydb")
	c, err := Create(path, []byte("manifest-v1"))
	require.NoError(t, err)

	needsRewrite, err := c.AppendWAL([]byte("record-one"))
	require.NoError(t, err)
	assert.False(t, needsRewrite)

	needsRewrite, err = c.AppendWAL([]byte("record-two"))
	require.NoError(t, err)
	assert.False(t, needsRewrite)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("manifest-v1"), reopened.Manifest())
	assert.Equal(t, []byte("record-onerecord-two"), reopened.WAL())
}

func TestRewriteResetsWALCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.raydb")
	c, err := Create(path, []byte("m1"))
	require.NoError(t, err)

	_, err = c.AppendWAL([]byte("abc"))
	require.NoError(t, err)

	require.NoError(t, c.Rewrite([]byte("m2"), []byte("snap-bytes")))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("m2"), reopened.Manifest())
	assert.Equal(t, []byte("snap-bytes"), reopened.Snapshot())
	assert.Empty(t, reopened.WAL())
}

func TestAppendWALSignalsRewriteWhenRegionFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.raydb")
	c, err := Create(path, nil)
	require.NoError(t, err)
	c.walCap = 8

	needsRewrite, err := c.AppendWAL([]byte("0123456789"))
	require.NoError(t, err)
	assert.True(t, needsRewrite)
}

func TestOpenRejectsCorruptMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.raydb")
	require.NoError(t, writeDurable(path, []byte("nope-not-a-container")))
	_, err := Open(path)
	assert.Error(t, err)
}
