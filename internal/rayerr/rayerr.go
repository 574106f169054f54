// Package rayerr defines the typed error kinds the engine surfaces to
// callers, per the error-handling design in spec §7.
package rayerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can branch with errors.Is
// instead of parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindCorruptSnapshot
	KindCorruptManifest
	KindCorruptWALTail
	KindNotFound
	KindDuplicateKey
	KindConflict
	KindWALBufferFull
	KindAlreadyOpen
	KindReadOnly
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindCorruptSnapshot:
		return "CORRUPT_SNAPSHOT"
	case KindCorruptManifest:
		return "CORRUPT_MANIFEST"
	case KindCorruptWALTail:
		return "CORRUPT_WAL_TAIL"
	case KindNotFound:
		return "NOT_FOUND"
	case KindDuplicateKey:
		return "DUPLICATE_KEY"
	case KindConflict:
		return "CONFLICT"
	case KindWALBufferFull:
		return "WAL_BUFFER_FULL"
	case KindAlreadyOpen:
		return "ALREADY_OPEN"
	case KindReadOnly:
		return "READ_ONLY"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type every exported engine operation
// returns. Kind lets callers use errors.Is against the sentinel below;
// Keys carries the offending logical keys for KindConflict.
type Error struct {
	Kind Kind
	Msg  string
	Keys []uint64
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match any *Error with the same Kind,
// regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func Conflict(keys []uint64) *Error {
	return &Error{Kind: KindConflict, Msg: "commit conflict", Keys: keys}
}

// Sentinels for errors.Is comparisons against a specific kind without
// caring about the message.
var (
	ErrIO               = &Error{Kind: KindIO}
	ErrCorruptSnapshot  = &Error{Kind: KindCorruptSnapshot}
	ErrCorruptManifest  = &Error{Kind: KindCorruptManifest}
	ErrCorruptWALTail   = &Error{Kind: KindCorruptWALTail}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDuplicateKey     = &Error{Kind: KindDuplicateKey}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrWALBufferFull    = &Error{Kind: KindWALBufferFull}
	ErrAlreadyOpen      = &Error{Kind: KindAlreadyOpen}
	ErrReadOnly         = &Error{Kind: KindReadOnly}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
)

// KindOf extracts the Kind from err, or KindUnknown if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
