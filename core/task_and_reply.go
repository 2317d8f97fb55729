package core

import (
	"context"
)

// ReplyWithResult receives the outcome of the task it follows.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// Continuation maps the outcome of one task into the result of the next.
type Continuation[T, R any] func(ctx context.Context, result T, err error) (R, error)

// SubmitTyped submits a typed payload and returns a typed handle.
func SubmitTyped[T any](s *Scheduler, payload TypedPayload[T], opts ...TaskOption) TypedHandle[T] {
	return Typed[T](s.Submit(payload.Erase(), opts...))
}

// Then runs next after h resolves, passing it h's result or failure.
//
// Execution guarantee (Happens-Before):
// - h is resolved before next starts
// - next sees the final value written by h's payload
//
// A failed h does not stop next; next decides what the failure means.
func Then[T, R any](s *Scheduler, h TypedHandle[T], next Continuation[T, R], opts ...TaskOption) TypedHandle[R] {
	payload := func(ctx context.Context) (any, error) {
		result, _, err := h.Poll()
		return next(ctx, result, err)
	}
	return Typed[R](s.SubmitAfter(payload, []*Handle{h.Untyped()}, opts...))
}

// SubmitTaskAndReply runs task, then reply with task's outcome. The reply
// runs as its own task on the same scheduler, so it may land on any worker
// unless pinned with WithAffinity in replyOpts.
//
// Example:
//
//	SubmitTaskAndReply(
//	    scheduler,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	    nil,
//	    []TaskOption{WithAffinity(0)},
//	)
func SubmitTaskAndReply[T any](
	s *Scheduler,
	task TypedPayload[T],
	reply ReplyWithResult[T],
	taskOpts []TaskOption,
	replyOpts []TaskOption,
) (TypedHandle[T], *Handle) {
	first := SubmitTyped(s, task, taskOpts...)
	second := Then(s, first, func(ctx context.Context, result T, err error) (struct{}, error) {
		reply(ctx, result, err)
		return struct{}{}, nil
	}, replyOpts...)
	return first, second.Untyped()
}
