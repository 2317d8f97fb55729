package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Payload is the unit of work carried by a task. The returned value becomes
// the Completed result of the task's Handle; a non-nil error makes it Failed.
type Payload func(ctx context.Context) (any, error)

// TypedPayload is the generic form of Payload used by the typed helpers.
type TypedPayload[T any] func(ctx context.Context) (T, error)

// Erase converts a typed payload into an untyped Payload.
func (p TypedPayload[T]) Erase() Payload {
	if p == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return p(ctx)
	}
}

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies a task. IDs are process-wide unique and monotonic.
type TaskID uint64

var taskIDCounter atomic.Uint64

// GenerateTaskID allocates the next TaskID.
func GenerateTaskID() TaskID {
	return TaskID(taskIDCounter.Add(1))
}

// Valid reports whether the id was allocated by GenerateTaskID.
func (id TaskID) Valid() bool {
	return id != 0
}

func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", uint64(id))
}

// =============================================================================
// TaskPriority: tie-break hint among simultaneously ready tasks
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	TaskPriorityUserBlocking
)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParseTaskPriority parses the String form of a priority.
func ParseTaskPriority(s string) (TaskPriority, error) {
	switch s {
	case "best_effort":
		return TaskPriorityBestEffort, nil
	case "", "user_visible":
		return TaskPriorityUserVisible, nil
	case "user_blocking":
		return TaskPriorityUserBlocking, nil
	default:
		return 0, fmt.Errorf("unknown task priority %q", s)
	}
}

// =============================================================================
// TaskOption
// =============================================================================

// NoAffinity marks a task that may run on any worker.
const NoAffinity = -1

type taskOptions struct {
	name       string
	priority   TaskPriority
	affinity   int
	workerName string
}

func defaultTaskOptions() taskOptions {
	return taskOptions{priority: TaskPriorityUserVisible, affinity: NoAffinity}
}

// TaskOption customizes a task when it is added or submitted.
type TaskOption func(*taskOptions)

// WithPriority sets the tie-break priority hint.
func WithPriority(p TaskPriority) TaskOption {
	return func(o *taskOptions) { o.priority = p }
}

// WithName attaches a display name used by logging and execution history.
func WithName(name string) TaskOption {
	return func(o *taskOptions) { o.name = name }
}

// WithAffinity pins the task to one worker. Pinned tasks are never stolen.
// Indexes outside the pool's worker range fall back to NoAffinity.
func WithAffinity(worker int) TaskOption {
	return func(o *taskOptions) { o.affinity = worker }
}

// WithWorkerName pins the task to the worker given that name in
// PoolConfig.WorkerNames. It overrides WithAffinity. Submitting to a name the
// scheduler does not know fails with ErrUnknownWorker.
func WithWorkerName(name string) TaskOption {
	return func(o *taskOptions) { o.workerName = name }
}

// =============================================================================
// taskUnit
// =============================================================================

type unitState int32

const (
	unitWaiting   unitState = iota // countdown > 0
	unitReady                      // queued somewhere
	unitRunning                    // claimed by a worker
	unitDone                       // handle resolved by its payload
	unitCancelled                  // handle failed by shutdown
)

// taskUnit is the schedulable record owned by the scheduler after submission.
type taskUnit struct {
	id       TaskID
	name     string
	priority TaskPriority
	affinity int
	payload  Payload
	handle   *Handle

	// workerName is resolved to affinity on submission.
	workerName string

	// pending counts unresolved predecessors.
	pending atomic.Int32
	state   atomic.Int32

	successors   []*taskUnit
	predecessors []*Handle
}

func newTaskUnit(payload Payload, opts taskOptions) *taskUnit {
	id := GenerateTaskID()
	return &taskUnit{
		id:         id,
		name:       opts.name,
		priority:   opts.priority,
		affinity:   opts.affinity,
		payload:    payload,
		handle:     newHandle(id),
		workerName: opts.workerName,
	}
}

func (u *taskUnit) displayName() string {
	if u.name != "" {
		return u.name
	}
	return u.id.String()
}

// release decrements the countdown and reports whether it just reached zero.
func (u *taskUnit) release() bool {
	n := u.pending.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("taskgraph: dependency countdown of %s went negative", u.id))
	}
	return n == 0
}

func (u *taskUnit) transition(from, to unitState) bool {
	return u.state.CompareAndSwap(int32(from), int32(to))
}

// claim moves a queued unit to running. It fails when shutdown already
// cancelled the unit.
func (u *taskUnit) claim() bool {
	return u.transition(unitReady, unitRunning)
}

// cancel marks a unit that never ran; it succeeds only from waiting or ready.
func (u *taskUnit) cancel() bool {
	return u.transition(unitReady, unitCancelled) || u.transition(unitWaiting, unitCancelled)
}
