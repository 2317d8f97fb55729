package taskgraph

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-graph/core"
)

// NewScheduler creates and starts a scheduler whose injector orders ready
// tasks by priority.
func NewScheduler(id string, workers int) *Scheduler {
	return core.NewScheduler(&core.PoolConfig{ID: id, Workers: workers})
}

// NewFIFOScheduler creates and starts a scheduler whose injector ignores
// priorities.
func NewFIFOScheduler(id string, workers int) *Scheduler {
	return core.NewScheduler(&core.PoolConfig{ID: id, Workers: workers, FIFOInjector: true})
}

// NewSchedulerWithConfig creates and starts a scheduler from a full config.
func NewSchedulerWithConfig(config *PoolConfig) *Scheduler {
	return core.NewScheduler(config)
}

// Go submits a typed payload to s.
func Go[T any](s *Scheduler, payload TypedPayload[T], opts ...TaskOption) TypedHandle[T] {
	return core.SubmitTyped(s, payload, opts...)
}

// Then runs next on s once h resolves.
func Then[T, R any](s *Scheduler, h TypedHandle[T], next core.Continuation[T, R], opts ...TaskOption) TypedHandle[R] {
	return core.Then(s, h, next, opts...)
}

// StopGraceful shuts s down, waiting up to timeout for outstanding work.
// On timeout the remaining tasks fail with ErrPoolShutDown and the context
// error is returned.
func StopGraceful(s *Scheduler, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx, true)
}

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler initializes the global scheduler with the specified
// number of workers. It is a no-op when already initialized.
func InitGlobalScheduler(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return // Already initialized
	}

	globalScheduler = NewScheduler("global", workers)
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("global scheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler drains and stops the global scheduler.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	s := globalScheduler
	globalScheduler = nil
	globalMu.Unlock()

	if s != nil {
		s.Shutdown(context.Background(), true)
	}
}

// Submit runs payload on the global scheduler.
func Submit(payload Payload, opts ...TaskOption) *Handle {
	return GetGlobalScheduler().Submit(payload, opts...)
}

// SubmitGraph submits g to the global scheduler.
func SubmitGraph(g *Graph) (Handles, error) {
	return GetGlobalScheduler().SubmitGraph(g)
}
