package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the observable state of a Handle.
type State int32

const (
	StatePending State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type outcome struct {
	value any
	err   error
}

// Handle is a one-shot, thread-safe reference to a task's eventual result.
//
// The scheduler writes a Handle exactly once; any number of goroutines may
// poll or wait on it. Dropping a Handle does not cancel the task.
type Handle struct {
	id     TaskID
	result atomic.Pointer[outcome]
	done   chan struct{}

	// Resumption callbacks registered before resolution.
	mu        sync.Mutex
	callbacks []func(*Handle)
}

func newHandle(id TaskID) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// newFailedHandle returns a handle already resolved with err.
func newFailedHandle(id TaskID, err error) *Handle {
	h := newHandle(id)
	h.resolve(nil, err)
	return h
}

// ID returns the id of the task behind this handle.
func (h *Handle) ID() TaskID {
	return h.id
}

// Poll returns the current state without blocking.
func (h *Handle) Poll() (State, any, error) {
	o := h.result.Load()
	if o == nil {
		return StatePending, nil, nil
	}
	if o.err != nil {
		return StateFailed, nil, o.err
	}
	return StateCompleted, o.value, nil
}

// State is Poll without the payload.
func (h *Handle) State() State {
	s, _, _ := h.Poll()
	return s
}

// Done returns a channel closed once the handle is resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle is resolved.
func (h *Handle) Wait() {
	<-h.done
}

// Result blocks until resolution and returns the result or the failure.
func (h *Handle) Result() (any, error) {
	<-h.done
	o := h.result.Load()
	return o.value, o.err
}

// WaitContext is Result bounded by ctx. A ctx error does not affect the task.
func (h *Handle) WaitContext(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnResolve registers fn to run once the handle resolves. fn runs on the
// goroutine performing the resolving write, or immediately on the caller's
// goroutine when the handle is already resolved. fn must not block.
func (h *Handle) OnResolve(fn func(*Handle)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	if h.result.Load() != nil {
		h.mu.Unlock()
		fn(h)
		return
	}
	h.callbacks = append(h.callbacks, fn)
	h.mu.Unlock()
}

// resolve performs the single write. It returns false if the handle was
// already resolved, leaving the first outcome untouched.
func (h *Handle) resolve(value any, err error) bool {
	if !h.result.CompareAndSwap(nil, &outcome{value: value, err: err}) {
		return false
	}
	close(h.done)

	h.mu.Lock()
	callbacks := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(h)
	}
	return true
}

// =============================================================================
// TypedHandle
// =============================================================================

// TypedHandle is a typed view over a Handle whose payload returns T.
type TypedHandle[T any] struct {
	h *Handle
}

// Typed wraps h. A Completed value that is not a T is reported as a failure.
func Typed[T any](h *Handle) TypedHandle[T] {
	return TypedHandle[T]{h: h}
}

// Untyped returns the underlying handle.
func (t TypedHandle[T]) Untyped() *Handle {
	return t.h
}

// ID returns the task id.
func (t TypedHandle[T]) ID() TaskID {
	return t.h.ID()
}

// Done returns a channel closed once the handle is resolved.
func (t TypedHandle[T]) Done() <-chan struct{} {
	return t.h.Done()
}

// Poll returns the typed state without blocking.
func (t TypedHandle[T]) Poll() (T, State, error) {
	state, v, err := t.h.Poll()
	if state != StateCompleted {
		var zero T
		return zero, state, err
	}
	typed, err := cast[T](t.h.id, v)
	if err != nil {
		return typed, StateFailed, err
	}
	return typed, state, nil
}

// Wait blocks until resolution.
func (t TypedHandle[T]) Wait() (T, error) {
	v, err := t.h.Result()
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](t.h.id, v)
}

// WaitContext is Wait bounded by ctx.
func (t TypedHandle[T]) WaitContext(ctx context.Context) (T, error) {
	v, err := t.h.WaitContext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](t.h.id, v)
}

func cast[T any](id TaskID, v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: result has type %T, want %T", id, v, zero)
	}
	return typed, nil
}
