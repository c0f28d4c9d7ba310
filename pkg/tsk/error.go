package tsk

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the tagged error category every driver and the generic core
// return through. Callers branch on Kind rather than matching error text.
type Kind int

// Error kinds, per the error handling design.
const (
	// KindArg covers malformed caller arguments that aren't a specific
	// out-of-range inode/block (those get their own kinds below).
	KindArg Kind = iota
	// KindRead covers any failure reading from the underlying image.
	KindRead
	// KindWalkRange covers an invalid [start, end] range passed to a walk.
	KindWalkRange
	// KindInodeNum covers an out-of-range inode number.
	KindInodeNum
	// KindInodeCor covers a structurally invalid on-disk inode.
	KindInodeCor
	// KindMagic covers a magic-number / version mismatch at mount time.
	KindMagic
	// KindFsWalk covers a failure partway through a generic walk.
	KindFsWalk
	// KindUnsupported covers a recognized but unimplemented on-disk feature.
	KindUnsupported
	// KindUnsupportedFunc covers a vtable operation a driver doesn't implement.
	KindUnsupportedFunc
	// KindIndexCorrupt covers a derived index (YAFFS2 chunk cache, XFS
	// B+tree walk) that found internally inconsistent data.
	KindIndexCorrupt
	// KindNoMemory covers allocation failures while building a cache.
	KindNoMemory
	// KindAborted covers a caller-driven cancellation (context, Stop).
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindArg:
		return "Arg"
	case KindRead:
		return "Read"
	case KindWalkRange:
		return "WalkRange"
	case KindInodeNum:
		return "InodeNum"
	case KindInodeCor:
		return "InodeCor"
	case KindMagic:
		return "Magic"
	case KindFsWalk:
		return "FsWalk"
	case KindUnsupported:
		return "Unsupported"
	case KindUnsupportedFunc:
		return "UnsupportedFunc"
	case KindIndexCorrupt:
		return "IndexCorrupt"
	case KindNoMemory:
		return "NoMemory"
	case KindAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Error is the single tagged error type every operation in this module
// returns. Msg is the primary, user-facing message; Concat records the call
// sites that propagated the error, each printed on its own line by CLI
// callers (see cmd/tskutil).
type Error struct {
	Kind   Kind
	Msg    string
	Concat []string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.cause.Error())
	}
	return e.Msg
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Errorf builds a new *Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap records ctx as the cause of e and appends it to the concat trail,
// mirroring errors.WithMessage's convention of reading outermost-message
// first. It returns e so call sites can write `return e.Wrap("opening AG 3")`.
func (e *Error) Wrap(ctx string) *Error {
	e.Concat = append(e.Concat, ctx)
	if e.cause == nil {
		e.cause = errors.New(ctx)
	} else {
		e.cause = errors.WithMessage(e.cause, ctx)
	}
	return e
}

// WrapErr builds a *Error of the given kind from a lower-level error (an
// image I/O or decoding failure), keeping the original error as the cause.
func WrapErr(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// Is reports whether err is a *Error of kind k.
func Is(err error, k Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == k
	}
	return false
}
