package rewind

import (
	"errors"

	"github.com/AnatoleLucet/rewind/internal"
	"github.com/AnatoleLucet/rewind/internal/archive"
	"github.com/AnatoleLucet/rewind/internal/history"
)

// ErrorKind names the error categories scripts can branch on.
type ErrorKind string

const (
	KindReactiveCycle     ErrorKind = "ReactiveCycleError"
	KindThunkRuntime      ErrorKind = "ThunkRuntimeError"
	KindHistoryExhausted  ErrorKind = "HistoryExhaustedError"
	KindUnknownCheckpoint ErrorKind = "UnknownCheckpointError"
	KindCorruptVersion    ErrorKind = "CorruptVersionError"
)

type (
	CycleError             = internal.CycleError
	ThunkError             = internal.ThunkError
	UnboundError           = internal.UnboundError
	CorruptVersionError    = internal.CorruptStateError
	HistoryExhaustedError  = history.ExhaustedError
	UnknownCheckpointError = history.UnknownCheckpointError
)

var (
	ErrUnknownNode          = internal.ErrUnknownNode
	ErrDuplicateName        = internal.ErrDuplicateName
	ErrNotWritable          = internal.ErrNotWritable
	ErrNotReadable          = internal.ErrNotReadable
	ErrNotEffect            = internal.ErrNotEffect
	ErrWriteInComputed      = internal.ErrWriteInComputed
	ErrDeclareInThunk       = internal.ErrDeclareInThunk
	ErrHasSubscribers       = internal.ErrHasSubscribers
	ErrFlushLimit           = internal.ErrFlushLimit
	ErrForeignGoroutine     = internal.ErrForeignGoroutine
	ErrCleanupOutsideEffect = internal.ErrCleanupOutsideEffect

	ErrHistoryDisabled     = history.ErrDisabled
	ErrDuplicateCheckpoint = history.ErrDuplicateCheckpoint
	ErrInvalidSteps        = history.ErrInvalidSteps
	ErrEmptyName           = history.ErrEmptyName
	ErrUnknownVersion      = history.ErrUnknownVersion

	ErrArchiveNotFound = archive.ErrNotFound

	ErrNoArchive = errors.New("no checkpoint archive configured")
	ErrBusy      = errors.New("cannot move through history while a batch or a reactive body is running")
)

// KindOf returns the kind of the first categorized error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return ErrorKind(k.Kind()), true
	}
	return "", false
}
