package core

import "context"

// =============================================================================
// Context Helper
// =============================================================================

type taskContextKeyType struct{}

var taskContextKey taskContextKeyType

type taskContext struct {
	id           TaskID
	worker       int
	scheduler    *Scheduler
	predecessors []*Handle
}

func withTaskContext(ctx context.Context, tc *taskContext) context.Context {
	return context.WithValue(ctx, taskContextKey, tc)
}

func taskContextFrom(ctx context.Context) *taskContext {
	if ctx == nil {
		return nil
	}
	tc, _ := ctx.Value(taskContextKey).(*taskContext)
	return tc
}

// CurrentTaskID returns the id of the task whose payload owns ctx, or the
// zero TaskID outside a payload.
func CurrentTaskID(ctx context.Context) TaskID {
	if tc := taskContextFrom(ctx); tc != nil {
		return tc.id
	}
	return 0
}

// CurrentWorker returns the index of the worker running the payload, or -1.
func CurrentWorker(ctx context.Context) int {
	if tc := taskContextFrom(ctx); tc != nil {
		return tc.worker
	}
	return -1
}

// CurrentScheduler returns the scheduler running the payload, or nil.
// Payloads may use it to submit follow-up work.
func CurrentScheduler(ctx context.Context) *Scheduler {
	if tc := taskContextFrom(ctx); tc != nil {
		return tc.scheduler
	}
	return nil
}

// Predecessors returns the handles of the tasks the running payload depends
// on, in the order the dependencies were declared. Every returned handle is
// resolved; a Failed predecessor must be checked by the caller.
func Predecessors(ctx context.Context) []*Handle {
	if tc := taskContextFrom(ctx); tc != nil {
		return tc.predecessors
	}
	return nil
}

// Predecessor returns the handle of the direct predecessor with the given id.
func Predecessor(ctx context.Context, id TaskID) (*Handle, bool) {
	for _, h := range Predecessors(ctx) {
		if h.ID() == id {
			return h, true
		}
	}
	return nil, false
}
