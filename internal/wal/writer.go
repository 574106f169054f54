package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/raydb/raydb/internal/rayerr"
	"github.com/rs/zerolog"
)

// Writer is a single active WAL segment. Like the teacher's store.WAL, it
// is a single mutex-protected append-only file — but here records are
// batched into a page buffer across a whole transaction and only fsynced
// once, at the COMMIT boundary (spec §4.4 "one fsync per commit boundary"),
// rather than fsyncing every single append.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	buf      []byte
	maxSize  int64
	log      zerolog.Logger
	segStart uint64 // first tx_id this segment may contain, used for its filename
}

// Open opens (or creates) the WAL segment whose filename encodes
// startTxID, per spec §6 "A segment file is named <start_tx_id>.wal".
func Open(dir string, startTxID uint64, maxSize int64, log zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "create wal dir", err)
	}
	path := SegmentPath(dir, startTxID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "open wal segment", err)
	}
	return &Writer{file: f, path: path, maxSize: maxSize, log: log, segStart: startTxID}, nil
}

// SegmentPath builds the on-disk path for a segment starting at txID.
func SegmentPath(dir string, txID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.wal", txID))
}

// Stage buffers one record without writing it to disk yet. Transaction
// records accumulate here across BEGIN...COMMIT so the whole transaction
// can be flushed and fsynced as one write.
func (w *Writer) Stage(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	enc := Encode(r)
	if int64(len(w.buf)+len(enc)) > w.maxSize {
		return rayerr.New(rayerr.KindWALBufferFull, "wal buffer would exceed configured walSize")
	}
	w.buf = append(w.buf, enc...)
	return nil
}

// CommitFlush appends the staged buffer plus a terminating COMMIT record
// for txID, then fsyncs once. No mutation is visible to other readers
// until this call returns successfully (spec §4.4, §5 ordering
// guarantees).
func (w *Writer) CommitFlush(txID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	commit := Encode(Record{Type: TypeCommit, TxID: txID})
	out := append(w.buf, commit...)
	if _, err := w.file.Write(out); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "wal write", err)
	}
	if err := w.file.Sync(); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "wal fsync", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// AbortDiscard drops the staged buffer for a rolled-back transaction
// without ever writing it to disk — nothing was durable, so there is
// nothing to undo on disk; an ABORT record is optional and omitted here
// since recovery already treats "no COMMIT ever followed" as abort.
func (w *Writer) AbortDiscard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = w.buf[:0]
}

// Size returns the current on-disk size of the segment.
func (w *Writer) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fi, err := w.file.Stat()
	if err != nil {
		return 0, rayerr.Wrap(rayerr.KindIO, "wal stat", err)
	}
	return fi.Size(), nil
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
