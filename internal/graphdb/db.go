// Package graphdb wires the snapshot, delta, WAL, and MVCC layers into
// the merged transaction/graph API of spec §4.6: createNode, addEdge,
// property operations, neighbor iteration, and edge-exists, all over a
// consistent view of snapshot ∪ delta with MVCC visibility applied.
package graphdb

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/raydb/raydb/internal/config"
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/manifest"
	"github.com/raydb/raydb/internal/mvcc"
	"github.com/raydb/raydb/internal/rayerr"
	"github.com/raydb/raydb/internal/rlog"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/vectorstore"
	"github.com/raydb/raydb/internal/wal"
)

// DB is an open handle to one database directory, the unit this package
// exposes to cmd/raydbctl and internal/adminserver.
type DB struct {
	opts config.Options
	log  zerolog.Logger

	// commitMu serializes WAL append + commit publication, per spec §5
	// "the WAL append is serialized by a single mutex; commit-timestamp
	// issuance is atomic."
	commitMu sync.Mutex

	mu      sync.RWMutex // guards snap, overlay swap-in-place during compaction
	snap    *snapshot.Reader
	overlay *delta.Overlay
	walw    *wal.Writer
	mgr     *mvcc.Manager
	vectors *vectorstore.Store

	labels   *schemaRegistry
	etypes   *schemaRegistry
	propkeys *schemaRegistry

	// nodeKeys is the reverse of the snapshot's forward key->node_id
	// index, built at open and rebuilt from the new snapshot by each
	// Compact (the on-disk format only stores the forward direction).
	// Transactions never modify it; deleteNode consults it to know which
	// key to retire from the overlay's key index.
	nodeKeys map[graphtypes.NodeID]string

	nextNodeID atomic.Uint64
	generation atomic.Uint64

	lockFile *os.File
	gcStop   chan struct{}
	gcDone   chan struct{}

	closed bool
}

func dataDirs(dir string) (snapshots, walDir string) {
	return filepath.Join(dir, "snapshots"), filepath.Join(dir, "wal")
}

// Open replays a database directory into a ready handle: mmap the
// latest snapshot, replay WAL segments with generation >= the
// snapshot's, and start the background GC task (spec §2 control flow).
func Open(opts config.Options, log zerolog.Logger) (*DB, error) {
	if err := opts.Validate(); err != nil {
		return nil, rayerr.Wrap(rayerr.KindInvalidArgument, "invalid options", err)
	}

	if _, err := os.Stat(opts.DataDir); os.IsNotExist(err) {
		if !opts.CreateIfMissing {
			return nil, rayerr.New(rayerr.KindNotFound, "data directory does not exist")
		}
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, rayerr.Wrap(rayerr.KindIO, "create data dir", err)
		}
	}

	var lockFile *os.File
	if opts.LockFile {
		f, err := acquireLock(opts.DataDir, opts.ReadOnly, opts.RequireLocking)
		if err != nil {
			return nil, err
		}
		lockFile = f
	}

	m, err := manifest.Read(opts.DataDir)
	if err != nil {
		if opts.CreateIfMissing {
			m = manifest.Manifest{FormatVersion: uint64(manifest.FormatVersion)}
		} else {
			releaseLock(lockFile)
			return nil, err
		}
	}

	snapDir, walDir := dataDirs(opts.DataDir)
	if opts.CreateIfMissing {
		if err := os.MkdirAll(snapDir, 0o755); err != nil {
			releaseLock(lockFile)
			return nil, rayerr.Wrap(rayerr.KindIO, "create snapshots dir", err)
		}
		if err := os.MkdirAll(walDir, 0o755); err != nil {
			releaseLock(lockFile)
			return nil, rayerr.Wrap(rayerr.KindIO, "create wal dir", err)
		}
	}

	var snap *snapshot.Reader
	if m.SnapshotGen > 0 {
		snap, err = snapshot.Open(snapshot.WritePath(opts.DataDir, m.SnapshotGen))
		if err != nil {
			releaseLock(lockFile)
			return nil, err
		}
	}

	overlay := delta.New()
	labels, etypes, propkeys := newSchemaRegistry(), newSchemaRegistry(), newSchemaRegistry()
	if err := loadSchema(snap, labels, etypes, propkeys); err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	nodeKeys := make(map[graphtypes.NodeID]string)
	if snap != nil {
		keys, err := snap.AllKeys()
		if err != nil {
			releaseLock(lockFile)
			return nil, err
		}
		for _, k := range keys {
			nodeKeys[k.NodeID] = k.Key
		}
	}

	maxNodeID := uint64(0)
	if snap != nil {
		maxNodeID = snap.MaxNodeID()
	}

	txs, err := wal.ReplayAll(walDir, m.WALMinTxID, log)
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}
	vectors, err := vectorstore.Open(opts.DataDir)
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}
	if opts.VectorDimensions > 0 {
		vectors.Init(opts.VectorDimensions, vectorRowGroupSize(opts), vectorFragmentTargetSize(opts), vectorMetric(opts.VectorMetric), opts.VectorNormalize)
	}

	maxTxID := m.WALMinTxID
	for _, tx := range txs {
		if tx.TxID > maxTxID {
			maxTxID = tx.TxID
		}
		if err := replayTransaction(tx, overlay, labels, etypes, propkeys, vectors, opts, &maxNodeID); err != nil {
			releaseLock(lockFile)
			return nil, err
		}
	}

	walw, err := wal.Open(walDir, maxTxID+1, opts.WALSize, log)
	if err != nil {
		releaseLock(lockFile)
		return nil, err
	}

	clock := rlog.SystemClock
	mgr := mvcc.NewManager(opts.GCMaxChainDepth, clock, maxTxID)

	db := &DB{
		opts:     opts,
		log:      log,
		snap:     snap,
		overlay:  overlay,
		walw:     walw,
		mgr:      mgr,
		vectors:  vectors,
		labels:   labels,
		etypes:   etypes,
		propkeys: propkeys,
		nodeKeys: nodeKeys,
		lockFile: lockFile,
		gcStop:   make(chan struct{}),
		gcDone:   make(chan struct{}),
	}
	db.nextNodeID.Store(maxNodeID + 1)
	db.generation.Store(m.SnapshotGen)

	if opts.MVCC {
		go db.runGCLoop()
	} else {
		close(db.gcDone)
	}

	log.Info().
		Uint64("generation", m.SnapshotGen).
		Int("replayed_tx", len(txs)).
		Msg("graphdb: opened")
	return db, nil
}

func (db *DB) runGCLoop() {
	defer close(db.gcDone)
	interval := db.opts.GCIntervalMs
	if interval <= 0 {
		interval = 30_000
	}
	for {
		select {
		case <-db.gcStop:
			return
		default:
		}
		db.mgr.RunGC(db.opts.GCRetentionMs, db.log)
		if db.autoCheckpointDue() {
			if err := db.Compact(); err != nil {
				db.log.Error().Err(err).Msg("graphdb: auto-checkpoint compaction failed")
			}
		}
		select {
		case <-db.gcStop:
			return
		case <-time.After(time.Duration(interval) * time.Millisecond):
		}
	}
}

// autoCheckpointDue reports whether the overlay's accumulated mutations
// have grown large enough, relative to the current snapshot, to justify
// folding them in (spec §6 AutoCheckpoint/CheckpointRatio). The overlay
// itself tracks exactly the counters this ratio needs via Stats.
func (db *DB) autoCheckpointDue() bool {
	if !db.opts.AutoCheckpoint {
		return false
	}
	db.mu.RLock()
	snap := db.snap
	st := db.overlay.Stats()
	db.mu.RUnlock()

	base := uint64(1)
	if snap != nil {
		if n := snap.NumNodes() + snap.NumEdges(); n > 0 {
			base = n
		}
	}
	delta := uint64(st.NodesCreated + st.NodesDeleted + st.EdgesAdded + st.EdgesDeleted)
	return float64(delta)/float64(base) >= db.opts.CheckpointRatio
}

// Close flushes and releases the database's resources. Calls after the
// first are no-ops that return nil.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	close(db.gcStop)
	<-db.gcDone

	var firstErr error
	if err := db.vectors.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.walw.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if db.snap != nil {
		if err := db.snap.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	releaseLock(db.lockFile)
	return firstErr
}

func (db *DB) Generation() uint64 { return db.generation.Load() }

func acquireLock(dataDir string, readOnly, required bool) (*os.File, error) {
	path := filepath.Join(dataDir, "lock")
	flags := os.O_CREATE | os.O_RDWR
	if !readOnly {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if required {
				return nil, rayerr.New(rayerr.KindAlreadyOpen, "database already open for writing")
			}
			return nil, nil
		}
		return nil, rayerr.Wrap(rayerr.KindIO, "open lock file", err)
	}
	return f, nil
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
}
