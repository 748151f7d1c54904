package internal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownNode      = errors.New("unknown reactive node")
	ErrDuplicateName    = errors.New("reactive name already declared")
	ErrNotWritable      = errors.New("only reactive cells can be written")
	ErrNotReadable      = errors.New("effects have no value")
	ErrNotEffect        = errors.New("node is not an effect")
	ErrWriteInComputed  = errors.New("cannot write a reactive cell from a computed body")
	ErrDeclareInThunk   = errors.New("cannot declare or dispose reactive nodes while a reactive body runs")
	ErrHasSubscribers   = errors.New("node still has subscribers")
	ErrFlushLimit       = errors.New("effects kept writing cells past the flush limit")
	ErrForeignGoroutine = errors.New("reactive state is owned by another goroutine")

	ErrCleanupOutsideEffect = errors.New("cleanups can only be registered while an effect runs")
)

// UnboundError is returned when reading a name no node is declared under.
type UnboundError struct {
	Name string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("reactive name %q is not declared", e.Name)
}

// CycleError is returned when recording a read would close a dependency cycle.
// No edge of the offending evaluation is kept.
type CycleError struct {
	Node string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reactive cycle while evaluating %q: %s", e.Node, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Kind() string { return "ReactiveCycleError" }

// ThunkError wraps an error raised by a computed or effect body. Upstream is
// set when the node did not run because one of its dependencies failed.
type ThunkError struct {
	Node     ID
	Name     string
	Upstream string
	Cause    error
}

func (e *ThunkError) Error() string {
	if e.Upstream != "" {
		return fmt.Sprintf("%q not evaluated: dependency %q failed: %v", e.Name, e.Upstream, e.Cause)
	}
	return fmt.Sprintf("%q failed: %v", e.Name, e.Cause)
}

func (e *ThunkError) Unwrap() error { return e.Cause }

func (e *ThunkError) Kind() string { return "ThunkRuntimeError" }

// CorruptStateError reports a captured state that breaks an internal
// invariant, such as a value or edge without a node definition.
type CorruptStateError struct {
	Reason string
}

func (e *CorruptStateError) Error() string {
	return "corrupt reactive state: " + e.Reason
}

func (e *CorruptStateError) Kind() string { return "CorruptVersionError" }
