package wal

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/raydb/raydb/internal/rayerr"
	"github.com/rs/zerolog"
)

// segmentName matches the "<start_tx_id>.wal" naming from spec §6.
var segmentName = regexp.MustCompile(`^(\d+)\.wal$`)

// Segments lists a WAL directory's segment paths in ascending start-tx-id
// order.
func Segments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rayerr.Wrap(rayerr.KindIO, "read wal dir", err)
	}
	type seg struct {
		start uint64
		path  string
	}
	var segs []seg
	for _, e := range entries {
		m := segmentName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		start, _ := strconv.ParseUint(m[1], 10, 64)
		segs = append(segs, seg{start: start, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].start < segs[j].start })
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.path
	}
	return out, nil
}

// Transaction is the fully-assembled set of records for one committed
// transaction, in the order they were staged.
type Transaction struct {
	TxID    uint64
	Records []Record
}

// Replay scans a single segment file and returns only the transactions
// whose COMMIT record was found intact, in commit order (spec §4.4
// "Records are kept only when (a) CRC validates and (b) a matching COMMIT
// for the same tx_id is subsequently encountered in the same segment").
// Any trailing partial or uncommitted bytes are silently discarded — spec
// defines this as "no record was ever there," so Replay never returns an
// error for a torn tail, only for an I/O failure reading the file itself.
func Replay(path string, log zerolog.Logger) ([]Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "read wal segment", err)
	}

	pending := make(map[uint64][]Record)
	var order []Transaction
	pos := 0
	for pos < len(data) {
		rec, n, ok, err := Decode(data[pos:])
		if err != nil {
			return nil, rayerr.Wrap(rayerr.KindIO, "decode wal record", err)
		}
		if n == 0 {
			// Incomplete header: this is the torn tail of an in-flight
			// append. Stop; nothing after this point was ever durable.
			log.Debug().Str("segment", path).Int("offset", pos).Msg("wal: incomplete trailing record discarded")
			break
		}
		if !ok {
			// CRC mismatch: corrupt record, also part of a torn write.
			log.Warn().Str("segment", path).Int("offset", pos).Msg("wal: CRC mismatch, discarding tail")
			break
		}
		pos += n

		switch rec.Type {
		case TypeCommit:
			if recs, have := pending[rec.TxID]; have {
				order = append(order, Transaction{TxID: rec.TxID, Records: recs})
				delete(pending, rec.TxID)
			}
			// A COMMIT with no pending records (already flushed / unknown
			// tx_id) is not an error — it's a checkpoint-adjacent no-op.
		case TypeAbort:
			delete(pending, rec.TxID)
		default:
			pending[rec.TxID] = append(pending[rec.TxID], rec)
		}
	}

	if len(pending) > 0 {
		log.Info().Str("segment", path).Int("count", len(pending)).
			Msg("wal: discarding transactions with no terminating COMMIT")
	}
	return order, nil
}

// ReplayAll replays every segment in file order, which is also commit
// order across segments since segments are never reordered, and keeps
// only transactions with tx_id >= minTxID (the active snapshot's
// boundary, spec §4.4).
func ReplayAll(dir string, minTxID uint64, log zerolog.Logger) ([]Transaction, error) {
	paths, err := Segments(dir)
	if err != nil {
		return nil, err
	}
	var all []Transaction
	for _, p := range paths {
		txs, err := Replay(p, log)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if tx.TxID >= minTxID {
				all = append(all, tx)
			}
		}
	}
	return all, nil
}

// PruneOlderThan deletes segments whose start tx-id is strictly less than
// keepFrom, per spec §4.4/§9 open-question #3: retention is resolved at
// the end of the compaction pass that advances the snapshot generation.
func PruneOlderThan(dir string, keepFrom uint64) error {
	paths, err := Segments(dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		m := segmentName.FindStringSubmatch(filepath.Base(p))
		if m == nil {
			continue
		}
		start, _ := strconv.ParseUint(m[1], 10, 64)
		if start < keepFrom {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return rayerr.Wrap(rayerr.KindIO, "prune wal segment", err)
			}
		}
	}
	return nil
}
