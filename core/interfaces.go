package core

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is notified when a payload panics. The panic has already been
// converted into a Failed handle; the handler is for reporting only.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the payload ran with (see CurrentTaskID, CurrentWorker)
	// - poolID: The ID of the scheduler
	// - workerID: The index of the worker that ran the payload
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler prints panic information to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] %s panic: %v\nStack trace:\n%s",
		workerID, poolID, CurrentTaskID(ctx), panicInfo, stackTrace)
}

// NilPanicHandler ignores panics. It is the default: the failure is still
// delivered through the task's Handle.
type NilPanicHandler struct{}

func (h *NilPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they run on worker goroutines.
type Metrics interface {
	// RecordTaskDuration records how long a payload took to execute.
	RecordTaskDuration(poolID string, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a payload panicked.
	RecordTaskPanic(poolID string, panicInfo any)

	// RecordTaskFailed records that a payload returned an error or panicked.
	RecordTaskFailed(poolID string)

	// RecordQueueDepth records the injector depth after a submission.
	RecordQueueDepth(poolID string, depth int)

	// RecordTaskRejected records a rejected submission or a task cancelled
	// by shutdown.
	RecordTaskRejected(poolID string, reason string)

	// RecordSteal records one successful steal from a peer worker.
	RecordSteal(poolID string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolID string, priority TaskPriority, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(poolID string, panicInfo any)    {}
func (m *NilMetrics) RecordTaskFailed(poolID string)                  {}
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int)       {}
func (m *NilMetrics) RecordTaskRejected(poolID string, reason string) {}
func (m *NilMetrics) RecordSteal(poolID string)                       {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// Rejection reasons passed to RejectedTaskHandler and Metrics.
const (
	RejectReasonShutdown  = "shutdown"
	RejectReasonCancelled = "cancelled"
)

// RejectedTaskHandler is called when a submission is refused because the
// scheduler is shutting down, and for every task a non-waiting shutdown
// cancels before it ran.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolID string, id TaskID, reason string)
}

// DefaultRejectedTaskHandler logs rejections at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolID string, id TaskID, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn("task rejected", F("pool", poolID), F("task", id), F("reason", reason))
}

// =============================================================================
// PoolConfig: Configuration for Scheduler
// =============================================================================

const (
	defaultIdlePark        = 2 * time.Millisecond
	defaultHistoryCapacity = 100
)

// PoolConfig holds configuration options for a Scheduler.
// Zero fields fall back to the defaults listed on each field.
type PoolConfig struct {
	// ID names the scheduler in logs and metrics. Defaults to a random id.
	ID string

	// Workers is the number of worker goroutines. Defaults to GOMAXPROCS.
	Workers int

	// LocalQueueCapacity bounds each worker's deque; overflow goes to the
	// injector. Rounded up to a power of two. Defaults to 256.
	LocalQueueCapacity int

	// IdlePark is how long an idle worker parks before retrying. Defaults to 2ms.
	IdlePark time.Duration

	// WorkerNames names workers for WithWorkerName: worker i is WorkerNames[i].
	// Workers is raised to len(WorkerNames) if smaller. Empty and repeated
	// names are ignored.
	WorkerNames []string

	// FIFOInjector makes the injector ignore priorities.
	FIFOInjector bool

	// HistoryCapacity bounds RecentTasks. Defaults to 100.
	HistoryCapacity int

	// PanicHandler is called when a task panics. Defaults to NilPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler defaults to DefaultRejectedTaskHandler on Logger.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle events. Defaults to NoOpLogger.
	Logger Logger
}

// DefaultPoolConfig returns a config with default handlers.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:            runtime.GOMAXPROCS(0),
		LocalQueueCapacity: defaultLocalQueueCap,
		IdlePark:           defaultIdlePark,
		HistoryCapacity:    defaultHistoryCapacity,
		PanicHandler:       &NilPanicHandler{},
		Metrics:            &NilMetrics{},
		Logger:             NewNoOpLogger(),
	}
}

// withDefaults returns a copy of c with every zero field filled in.
func (c *PoolConfig) withDefaults() PoolConfig {
	out := *DefaultPoolConfig()
	if c == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
		return out
	}
	out.ID = c.ID
	out.FIFOInjector = c.FIFOInjector
	out.WorkerNames = c.WorkerNames
	if c.Workers > 0 {
		out.Workers = c.Workers
	}
	out.Workers = max(out.Workers, len(c.WorkerNames))
	if c.LocalQueueCapacity > 0 {
		out.LocalQueueCapacity = c.LocalQueueCapacity
	}
	if c.IdlePark > 0 {
		out.IdlePark = c.IdlePark
	}
	if c.HistoryCapacity > 0 {
		out.HistoryCapacity = c.HistoryCapacity
	}
	if c.PanicHandler != nil {
		out.PanicHandler = c.PanicHandler
	}
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	out.RejectedTaskHandler = c.RejectedTaskHandler
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
