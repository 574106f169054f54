package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/config"
	"github.com/raydb/raydb/internal/graphdb"
	"github.com/raydb/raydb/internal/rlog"
)

func TestCopyTreeRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "snapshots"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "snapshots", "gen.gds"), []byte("payload"), 0o644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, copyTree(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "snapshots", "gen.gds"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestCheckAndOptimizeAgainstLiveDataDir(t *testing.T) {
	dir := t.TempDir()
	dataDir = dir

	opts := config.Default()
	opts.DataDir = dir
	db, err := graphdb.Open(opts, rlog.Nop())
	require.NoError(t, err)

	txn := db.Begin()
	_, err = txn.CreateNode(nil)
	require.NoError(t, err)
	_, err = txn.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Compact())
	require.NoError(t, db.Close())

	require.NoError(t, checkCmd().RunE(nil, nil))

	db2, err := graphdb.Open(opts, rlog.Nop())
	require.NoError(t, err)
	require.NoError(t, db2.Compact())
	require.NoError(t, db2.Close())
}
