package taskgraph

import "github.com/Swind/go-task-graph/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskgraph package for most use cases.

// Payload is the unit of work carried by a task
type Payload = core.Payload

// TypedPayload is a Payload with a static result type
type TypedPayload[T any] = core.TypedPayload[T]

// TaskID identifies a task
type TaskID = core.TaskID

// TaskPriority breaks ties among simultaneously ready tasks
type TaskPriority = core.TaskPriority

// TaskOption customizes a task (priority, name, affinity)
type TaskOption = core.TaskOption

// GraphBuilder assembles a task graph
type GraphBuilder = core.GraphBuilder

// Graph is a validated, acyclic set of tasks
type Graph = core.Graph

// Handle is a one-shot reference to a task's outcome
type Handle = core.Handle

// TypedHandle is a typed view over a Handle
type TypedHandle[T any] = core.TypedHandle[T]

// Handles maps task ids to their handles
type Handles = core.Handles

// State is the observable state of a Handle
type State = core.State

// Scheduler owns the worker pool
type Scheduler = core.Scheduler

// PoolConfig configures a Scheduler
type PoolConfig = core.PoolConfig

// PoolStats is a point-in-time snapshot of a Scheduler
type PoolStats = core.PoolStats

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Handle states
const (
	StatePending   State = core.StatePending
	StateCompleted State = core.StateCompleted
	StateFailed    State = core.StateFailed
)

// Errors
var (
	ErrUnknownTaskID   = core.ErrUnknownTaskID
	ErrCycleDetected   = core.ErrCycleDetected
	ErrPoolShutDown    = core.ErrPoolShutDown
	ErrBuilderConsumed = core.ErrBuilderConsumed
	ErrGraphSubmitted  = core.ErrGraphSubmitted
	ErrUnknownWorker   = core.ErrUnknownWorker
	ErrDoubleResolve   = core.ErrDoubleResolve
)

// Task options and context helpers
var (
	WithPriority   = core.WithPriority
	WithName       = core.WithName
	WithAffinity   = core.WithAffinity
	WithWorkerName = core.WithWorkerName

	CurrentTaskID    = core.CurrentTaskID
	CurrentWorker    = core.CurrentWorker
	CurrentScheduler = core.CurrentScheduler
	Predecessors     = core.Predecessors
	Predecessor      = core.Predecessor
)

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return core.NewGraphBuilder()
}

// Typed wraps an untyped Handle.
func Typed[T any](h *Handle) TypedHandle[T] {
	return core.Typed[T](h)
}
