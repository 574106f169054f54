package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{FormatVersion: uint64(FormatVersion), SnapshotGen: 3, WALMinTxID: 12, OptionsBlob: []byte("opts")}
	require.NoError(t, Write(dir, m))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestReadFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	m1 := Manifest{FormatVersion: uint64(FormatVersion), SnapshotGen: 1, OptionsBlob: []byte("a")}
	require.NoError(t, Write(dir, m1))
	m2 := Manifest{FormatVersion: uint64(FormatVersion), SnapshotGen: 2, OptionsBlob: []byte("b")}
	require.NoError(t, Write(dir, m2))

	// Corrupt the primary manifest; .bak should still hold m1.
	require.NoError(t, os.WriteFile(Path(dir), []byte("garbage"), 0o644))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m1, got)
}

func TestReadMissingReturnsError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")
	_, err := Read(dir)
	assert.Error(t, err)
}
