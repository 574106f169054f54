package mvcc

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// tsSample pins a wall-clock reading to the commit_ts that was current
// at that moment. GC uses the series to translate a retention duration
// (milliseconds) into a commit_ts horizon — spec §9 open question 1:
// "the exact wall-clock -> commit-ts conversion... document their chosen
// conversion and test it." This engine samples at most once per
// sampleIntervalMs, on the commit path, and prunes samples older than
// the horizon alongside the chains they helped compute (spec §4.5 "GC...
// wall-clock->commit-ts bookkeeping is pruned alongside").
type tsSample struct {
	WallMs   int64
	CommitTS uint64
}

func (m *Manager) recordSample(wallMs int64, ts uint64) {
	if len(m.samples) > 0 {
		last := m.samples[len(m.samples)-1]
		if wallMs-last.WallMs < sampleIntervalMs {
			return
		}
	}
	m.samples = append(m.samples, tsSample{WallMs: wallMs, CommitTS: ts})
}

// commitTSForWallClock returns the commit_ts current at wallMs, or 0 if
// wallMs predates every sample (too young a database, or a retention
// window wider than recorded history) — 0 is deliberately conservative:
// a horizon of 0 prunes nothing.
func (m *Manager) commitTSForWallClock(wallMs int64) uint64 {
	i := sort.Search(len(m.samples), func(i int) bool { return m.samples[i].WallMs > wallMs })
	if i == 0 {
		return 0
	}
	return m.samples[i-1].CommitTS
}

// GCStats reports one pass's pruning work, surfaced for logging/metrics.
type GCStats struct {
	Horizon        uint64
	ChainsVisited  int
	VersionsPruned int
}

// RunGC performs one pass of spec §4.5's background collector: the
// horizon is min(oldest active start_ts, the commit_ts current
// retention_ms ago); each chain keeps at most one version at or below
// the horizon (the "head-of-horizon" survivor) plus everything above it,
// and is further truncated at maxChainDepth provided the cut point is
// not needed by any active reader.
func (m *Manager) RunGC(retentionMs int64, log zerolog.Logger) GCStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.NowMs()
	retentionHorizon := m.commitTSForWallClock(now - retentionMs)
	activeHorizon := m.oldestActiveStartTSLocked()
	horizon := activeHorizon
	if retentionHorizon < horizon {
		horizon = retentionHorizon
	}

	stats := GCStats{Horizon: horizon}
	for key, head := range m.chains {
		stats.ChainsVisited++
		newHead, pruned := m.pruneChain(head, horizon, activeHorizon)
		stats.VersionsPruned += pruned
		if newHead != head {
			m.chains[key] = newHead
		}
	}

	m.pruneSamplesLocked(horizon)
	log.Debug().
		Uint64("horizon", stats.Horizon).
		Int("chains_visited", stats.ChainsVisited).
		Int("versions_pruned", stats.VersionsPruned).
		Msg("mvcc: gc pass complete")
	return stats
}

// pruneChain walks from head, keeping every version above horizon plus
// the first one at or below it (the survivor all older reads collapse
// onto), and then applies the max-chain-depth cap. It returns the
// (possibly unchanged) new head and the count of entries dropped from
// traversal — the arena slots themselves are not reclaimed (pool
// compaction happens at snapshot compaction time, spec §4.7), only
// unreachable from any chain thereafter.
func (m *Manager) pruneChain(head int32, horizon, activeHorizon uint64) (int32, int) {
	var keep []int32
	idx := head
	for idx != noPrev {
		e := m.arena.at(idx)
		keep = append(keep, idx)
		if e.commitTS <= horizon {
			break
		}
		idx = e.prev
	}

	pruned := 0
	if idx != noPrev {
		for p := m.arena.at(idx).prev; p != noPrev; p = m.arena.at(p).prev {
			pruned++
		}
	}
	if len(keep) > m.maxChainDepth {
		cut := m.maxChainDepth
		// never cut below a version that an active reader might still
		// need: a version at position cut is safe to drop only if its
		// commit_ts is already below every active transaction's start_ts.
		for cut < len(keep) {
			e := m.arena.at(keep[cut])
			if e.commitTS < activeHorizon {
				break
			}
			cut++
		}
		if cut < len(keep) {
			pruned += len(keep) - cut
			keep = keep[:cut]
		}
	}

	if len(keep) == 0 {
		return noPrev, pruned
	}
	// relink the kept prefix so the last kept entry terminates the chain
	for i := 0; i < len(keep)-1; i++ {
		m.arena.at(keep[i]).prev = keep[i+1]
	}
	m.arena.at(keep[len(keep)-1]).prev = noPrev
	return keep[0], pruned
}

func (m *Manager) oldestActiveStartTSLocked() uint64 {
	oldest := m.commitCtr.Load()
	for _, tx := range m.active {
		if tx.startTS < oldest {
			oldest = tx.startTS
		}
	}
	return oldest
}

func (m *Manager) pruneSamplesLocked(horizon uint64) {
	i := sort.Search(len(m.samples), func(i int) bool { return m.samples[i].CommitTS >= horizon })
	if i > 1 {
		// keep one sample at-or-before the horizon so future lookups
		// just below it still resolve.
		m.samples = m.samples[i-1:]
	}
}

// RunGCLoop runs RunGC on a ticker until ctx is canceled, per spec §5
// "GC runs on its own periodic task."
func (m *Manager) RunGCLoop(ctx context.Context, intervalMs, retentionMs int64, log zerolog.Logger) {
	t := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.RunGC(retentionMs, log)
		}
	}
}
