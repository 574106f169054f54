package graphdb

import (
	"os"

	"github.com/raydb/raydb/internal/compactor"
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/wal"
)

// Compact folds the current snapshot and delta overlay into a fresh
// snapshot generation (spec §4.7), publishes it via the manifest, and
// prunes WAL segments it now fully subsumes. It blocks transaction
// commits (not Begin) for the duration of the pass.
//
// The prune/replay boundary is the MVCC manager's live tx-id counter —
// the same id-space a transaction's WAL records are stamped with via
// mvt.ID() — rather than any value frozen at Open, since that is the
// only counter that keeps advancing as this session commits
// transactions. Compact holds commitMu for its whole duration, the same
// lock Commit serializes on, so every id below the boundary has either
// already committed (and is folded into the snapshot this call
// produces) or never will.
//
// Before pruning, the WAL writer is rotated onto a fresh segment that
// starts exactly at that boundary. Without the rotation, the segment
// still open for writing spans ids below and above the boundary: once
// its file is removed by the prune step, any transaction committed
// afterward would durably append to an unlinked inode and vanish on the
// next reopen.
func (db *DB) Compact() error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()

	db.mu.Lock()
	oldSnap := db.snap
	overlay := db.overlay
	newGen := db.generation.Load() + 1
	oldWALW := db.walw
	db.mu.Unlock()

	walMinTxID := db.mgr.NextTxID()

	// The vectorstore keeps its own durability cadence, independent of
	// snapshot generations. Flush it before the WAL segments covering
	// its mutations are pruned below, or an un-flushed vector mutation
	// would have no durable record left anywhere on disk.
	if err := db.vectors.Flush(); err != nil {
		return err
	}

	_, walDir := dataDirs(db.opts.DataDir)
	newWALW, err := wal.Open(walDir, walMinTxID, db.opts.WALSize, db.log)
	if err != nil {
		return err
	}

	schemaDefs := pendingEntries(db.labels, db.etypes, db.propkeys)

	if _, err := compactor.Run(db.opts.DataDir, compactor.Input{
		Old:        oldSnap,
		Overlay:    overlay,
		SchemaDefs: schemaDefs,
		Generation: newGen,
		WALMinTxID: walMinTxID,
	}); err != nil {
		newWALW.Close()
		os.Remove(newWALW.Path())
		return err
	}

	newSnap, err := snapshot.Open(snapshot.WritePath(db.opts.DataDir, newGen))
	if err != nil {
		newWALW.Close()
		return err
	}

	nodeKeys := make(map[graphtypes.NodeID]string)
	keys, err := newSnap.AllKeys()
	if err != nil {
		newSnap.Close()
		newWALW.Close()
		return err
	}
	for _, k := range keys {
		nodeKeys[k.NodeID] = k.Key
	}

	if err := oldWALW.Close(); err != nil {
		newSnap.Close()
		newWALW.Close()
		return err
	}

	db.mu.Lock()
	if oldSnap != nil {
		oldSnap.Close()
	}
	db.snap = newSnap
	// The new overlay starts empty: everything the old one held is now
	// baked into the snapshot just written. Schema ids live in
	// db.labels/etypes/propkeys, not in the overlay, so nothing besides
	// mutation state needs to survive here.
	db.overlay = delta.New()
	db.walw = newWALW
	db.nodeKeys = nodeKeys
	db.generation.Store(newGen)
	db.mu.Unlock()

	db.log.Info().
		Uint64("generation", newGen).
		Uint64("wal_min_tx_id", walMinTxID).
		Msg("graphdb: compacted")
	return nil
}
