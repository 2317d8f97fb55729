package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTaskID is returned when an edge references an id the builder
	// never produced, or the builder was already built.
	ErrUnknownTaskID = errors.New("unknown task id")

	// ErrCycleDetected is matched by *CycleError.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrPoolShutDown is returned for submissions after shutdown began and
	// carried by handles of tasks that never ran.
	ErrPoolShutDown = errors.New("pool shut down")

	// ErrBuilderConsumed is returned by Build on a builder already built.
	ErrBuilderConsumed = errors.New("graph builder already consumed")

	// ErrUnknownWorker is returned for WithWorkerName names the scheduler
	// was not configured with.
	ErrUnknownWorker = errors.New("unknown worker name")

	// ErrDoubleResolve is the panic value when the scheduler writes a handle
	// a second time. It always indicates a scheduler bug.
	ErrDoubleResolve = errors.New("taskgraph: handle resolved twice")

	// ErrGraphSubmitted is returned when a graph is submitted twice.
	ErrGraphSubmitted = errors.New("graph already submitted")
)

// UnknownTaskIDError names the offending id.
type UnknownTaskIDError struct {
	ID TaskID
}

func (e *UnknownTaskIDError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownTaskID, e.ID)
}

func (e *UnknownTaskIDError) Unwrap() error { return ErrUnknownTaskID }

// CycleError lists the ids on one cycle in edge order; the first id is
// repeated at the end to close the loop.
type CycleError struct {
	IDs []TaskID
}

func (e *CycleError) Error() string {
	if len(e.IDs) == 0 {
		return ErrCycleDetected.Error()
	}
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = id.String()
	}
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// PanicError is the failure carried by a handle whose payload panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
