package history

import (
	"errors"
	"fmt"
)

var (
	ErrDisabled            = errors.New("history is disabled")
	ErrDuplicateCheckpoint = errors.New("checkpoint name already registered")
	ErrInvalidSteps        = errors.New("step count must be positive")
	ErrEmptyName           = errors.New("checkpoint name is empty")
	ErrUnknownVersion      = errors.New("unknown version")
)

// ExhaustedError is returned when a move would leave the retained history.
type ExhaustedError struct {
	Requested int
	Available int
	Forward   bool
}

func (e *ExhaustedError) Error() string {
	dir := "back"
	if e.Forward {
		dir = "forward"
	}
	return fmt.Sprintf("cannot step %s %d versions, only %d available", dir, e.Requested, e.Available)
}

func (e *ExhaustedError) Kind() string { return "HistoryExhaustedError" }

type UnknownCheckpointError struct {
	Name string
}

func (e *UnknownCheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %q not found", e.Name)
}

func (e *UnknownCheckpointError) Kind() string { return "UnknownCheckpointError" }
