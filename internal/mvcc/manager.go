package mvcc

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/raydb/raydb/internal/rayerr"
	"github.com/raydb/raydb/internal/rlog"
)

// diagnosticID gives a conflicting Key a stable 64-bit identifier for
// rayerr.Error.Keys, which carries spec §4.5's packed-key shape for
// reporting purposes even though chains are indexed by the wider Key
// struct internally (see keys.go).
func diagnosticID(k Key) uint64 {
	var b [28]byte
	b[0] = byte(k.Kind)
	binary.LittleEndian.PutUint64(b[4:], uint64(k.Node))
	binary.LittleEndian.PutUint32(b[12:], uint32(k.EType))
	binary.LittleEndian.PutUint64(b[16:], uint64(k.Other))
	binary.LittleEndian.PutUint32(b[24:], uint32(k.Prop))
	return xxhash.Sum64(b[:])
}

// Manager owns transaction-id and commit-timestamp issuance, the version
// chains, and the set of active transactions GC consults for its
// horizon (spec §4.5).
type Manager struct {
	mu     sync.Mutex
	arena  *arena
	chains map[Key]int32 // Key -> head index into arena, per spec §9

	nextTxID  atomic.Uint64
	commitCtr atomic.Uint64 // monotonic logical commit_ts, spec §9 open question 1

	active map[uint64]*Transaction

	clock   rlog.Clock
	samples []tsSample // wall-clock -> commit_ts bookkeeping for GC retention

	maxChainDepth int
}

const sampleIntervalMs = 1000

// NewManager constructs a Manager with the given GC chain-depth cap and
// clock source (injected per spec §9 "no hidden globals"). startTxID
// seeds the id counter so that transaction ids issued this session
// continue the same id-space WAL segments on disk were already using —
// without it every reopen would restart ids at 1, colliding with ids a
// prior session already stamped into unpruned WAL records.
func NewManager(maxChainDepth int, clock rlog.Clock, startTxID uint64) *Manager {
	if clock == nil {
		clock = rlog.SystemClock
	}
	m := &Manager{
		arena:         newArena(),
		chains:        make(map[Key]int32),
		active:        make(map[uint64]*Transaction),
		clock:         clock,
		maxChainDepth: maxChainDepth,
	}
	m.nextTxID.Store(startTxID)
	m.recordSample(clock.NowMs(), 0)
	return m
}

// NextTxID reports the id that would be assigned to the next Begin call:
// one past every id handed out so far. Compact reads this while holding
// the same lock Commit serializes on, so it doubles as "one past the
// newest folded WAL tx-id" in the exact id-space mvt.ID() stamps into WAL
// records.
func (m *Manager) NextTxID() uint64 {
	return m.nextTxID.Load() + 1
}

// Begin starts a new transaction with start_ts pinned to the most recent
// commit_ts, giving it a consistent snapshot of everything committed so
// far (spec §4.5 "each transaction gets a monotonically increasing
// start_ts").
func (m *Manager) Begin() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Transaction{
		id:       m.nextTxID.Add(1),
		startTS:  m.commitCtr.Load(),
		readSet:  make(map[Key]struct{}),
		writeSet: make(map[Key]Payload),
		mgr:      m,
	}
	tx.state.Store(uint32(txActive))
	m.active[tx.id] = tx
	return tx
}

func (m *Manager) unregister(txID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, txID)
}

// chainHead returns the chain head index for key, and ok=false if the
// key has no versions yet in this manager (the snapshot may still hold a
// base value — that's the graphdb layer's concern, not MVCC's).
func (m *Manager) chainHead(key Key) (int32, bool) {
	idx, ok := m.chains[key]
	return idx, ok
}

// Visible walks key's chain (newest first) and returns the newest
// version whose commit_ts <= atTS, per spec §4.5 reader visibility rule.
func (m *Manager) Visible(key Key, atTS uint64) (Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.chains[key]
	for ok {
		e := m.arena.at(idx)
		if e.commitTS <= atTS {
			return e.payload, true
		}
		if e.prev == noPrev {
			break
		}
		idx = e.prev
	}
	return Payload{}, false
}

// checkConflicts implements spec §4.5's commit-time conflict detection:
// for every key in the transaction's read-set and write-set, if any
// version committed after tx.startTS by a different transaction exists,
// the commit is rejected.
func (m *Manager) checkConflicts(tx *Transaction) []Key {
	var conflicts []Key
	check := func(key Key) {
		idx, ok := m.chains[key]
		for ok {
			e := m.arena.at(idx)
			if e.commitTS <= tx.startTS {
				break
			}
			if e.txID != tx.id {
				conflicts = append(conflicts, key)
				return
			}
			if e.prev == noPrev {
				break
			}
			idx = e.prev
		}
	}
	for k := range tx.readSet {
		check(k)
	}
	for k := range tx.writeSet {
		check(k)
	}
	return conflicts
}

// Precheck validates tx's read-set/write-set against the current chains
// without installing anything. graphdb calls this before writing WAL
// records so conflicts are caught in the order spec §4.6 lists them
// ("validates conflicts" before "writes WAL records"); the install step
// itself still happens inside Transaction.Commit, atomically with a
// second (necessarily clean, since callers hold the commit-serializing
// lock across both calls) conflict check.
func (m *Manager) Precheck(tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conflicts := m.checkConflicts(tx); len(conflicts) > 0 {
		keys := make([]uint64, 0, len(conflicts))
		for _, k := range conflicts {
			keys = append(keys, diagnosticID(k))
		}
		return rayerr.Conflict(keys)
	}
	return nil
}

// commit validates conflicts and, if clean, installs every write-set
// entry as a new version at a freshly issued commit_ts. The caller (the
// transaction/graphdb layer) is responsible for WAL durability before
// calling this — spec §4.5/§5: "no write becomes visible before its
// COMMIT record is durable."
func (m *Manager) commit(tx *Transaction) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflicts := m.checkConflicts(tx); len(conflicts) > 0 {
		keys := make([]uint64, 0, len(conflicts))
		for _, k := range conflicts {
			keys = append(keys, diagnosticID(k))
		}
		return 0, rayerr.Conflict(keys)
	}

	ts := m.commitCtr.Add(1)
	for key, payload := range tx.writeSet {
		head, _ := m.chains[key]
		if _, ok := m.chains[key]; !ok {
			head = noPrev
		}
		idx := m.arena.push(entry{payload: payload, txID: tx.id, commitTS: ts, prev: head})
		m.chains[key] = idx
	}
	m.recordSample(m.clock.NowMs(), ts)
	delete(m.active, tx.id)
	return ts, nil
}

// oldestActiveStartTS returns the minimum start_ts among active
// transactions, or the current commit counter if none are active (GC
// horizon input, spec §4.5).
func (m *Manager) oldestActiveStartTS() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldest := m.commitCtr.Load()
	for _, tx := range m.active {
		if tx.startTS < oldest {
			oldest = tx.startTS
		}
	}
	return oldest
}
