package mvcc

import (
	"sync/atomic"

	"github.com/raydb/raydb/internal/rayerr"
)

type txState uint32

const (
	txActive txState = iota
	txCommitted
	txAborted
)

// Transaction is a handle with snapshot isolation: reads observe
// everything committed at or before startTS, writes buffer locally until
// Commit (spec §3 "an id, a start-timestamp, a status... a read-set and
// write-set").
type Transaction struct {
	id      uint64
	startTS uint64

	readSet  map[Key]struct{}
	writeSet map[Key]Payload

	state atomic.Uint32
	mgr   *Manager
}

func (tx *Transaction) ID() uint64      { return tx.id }
func (tx *Transaction) StartTS() uint64 { return tx.startTS }

// Read records key in the read-set (for conflict detection) and returns
// the version visible at this transaction's snapshot: its own pending
// write, if any, else the newest committed version at or before startTS.
func (tx *Transaction) Read(key Key) (Payload, bool) {
	tx.readSet[key] = struct{}{}
	if p, ok := tx.writeSet[key]; ok {
		return p, true
	}
	return tx.mgr.Visible(key, tx.startTS)
}

// Write buffers a new value for key, visible to this transaction's own
// subsequent reads but not published until Commit.
func (tx *Transaction) Write(key Key, p Payload) {
	tx.writeSet[key] = p
}

// MarkRead adds key to the read-set without returning a value — used
// when a caller has already resolved the value from the snapshot/delta
// merged view and only needs the key tracked for conflict detection.
func (tx *Transaction) MarkRead(key Key) {
	tx.readSet[key] = struct{}{}
}

// Commit validates conflicts and installs the write-set as new versions
// at a freshly issued commit_ts. Callers must have already made the
// transaction's WAL records durable before calling Commit, per spec
// §4.5/§5 ordering guarantees.
func (tx *Transaction) Commit() (uint64, error) {
	if !tx.state.CompareAndSwap(uint32(txActive), uint32(txCommitted)) {
		return 0, rayerr.New(rayerr.KindInvalidArgument, "transaction already completed")
	}
	ts, err := tx.mgr.commit(tx)
	if err != nil {
		tx.state.Store(uint32(txAborted))
		tx.mgr.unregister(tx.id)
		return 0, err
	}
	return ts, nil
}

// Rollback discards the transaction's staged writes. Since nothing is
// published to a chain before Commit, rollback never needs to remove any
// version record — only its own active-set registration.
func (tx *Transaction) Rollback() {
	if !tx.state.CompareAndSwap(uint32(txActive), uint32(txAborted)) {
		return
	}
	tx.mgr.unregister(tx.id)
}
