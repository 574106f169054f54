// Package rlog wraps zerolog with the small, fixed set of fields the
// engine uses. Every component receives a *zerolog.Logger at construction
// (spec §9: "logger, clock, fs" injected at open, never a hidden global).
package rlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-friendly logger at the given level. component is
// attached to every event so multiplexed logs from snapshot/wal/mvcc/etc
// stay attributable.
func New(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Nop returns a logger that discards everything, for tests and for
// callers that did not inject one.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithGeneration returns a child logger tagged with a snapshot generation.
func WithGeneration(l zerolog.Logger, gen uint64) zerolog.Logger {
	return l.With().Uint64("generation", gen).Logger()
}

// WithTx returns a child logger tagged with a transaction id.
func WithTx(l zerolog.Logger, txID uint64) zerolog.Logger {
	return l.With().Uint64("tx_id", txID).Logger()
}

// Clock abstracts time so MVCC timestamp bookkeeping and GC retention can
// be tested without sleeping. Matches spec §9 "clock" injected at open.
type Clock interface {
	NowMs() int64
}

type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

// SystemClock is the default Clock using wall-clock time.
var SystemClock Clock = systemClock{}
