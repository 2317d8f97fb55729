package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	poolRunning  int32 = iota
	poolDraining       // wait-shutdown: no new submissions, finish outstanding work
	poolStopping       // non-wait shutdown: workers exit after their current item
)

const liveShards = 32

// liveShard tracks submitted units that have not resolved yet, so a
// non-waiting shutdown can fail the ones that never ran.
type liveShard struct {
	mu    sync.Mutex
	units map[TaskID]*taskUnit
}

// Handles maps each submitted task id to its handle.
type Handles map[TaskID]*Handle

// Scheduler is the public entry point: it owns the worker pool, accepts
// graphs and single tasks, and hands back Handles.
type Scheduler struct {
	id  string
	cfg PoolConfig

	workers  []*worker
	injector TaskQueue
	// named maps PoolConfig.WorkerNames to worker indexes.
	named map[string]int

	signal   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// submitMu orders submissions against the shutdown state flip.
	submitMu sync.RWMutex
	state    atomic.Int32

	outstanding atomic.Int64
	active      atomic.Int32
	live        [liveShards]liveShard

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	steals    atomic.Uint64

	history *executionHistory
	baseCtx context.Context

	logger              Logger
	metrics             Metrics
	panicHandler        PanicHandler
	rejectedTaskHandler RejectedTaskHandler
}

// NewScheduler creates a scheduler and starts its workers. A nil config
// uses DefaultPoolConfig.
func NewScheduler(config *PoolConfig) *Scheduler {
	cfg := config.withDefaults()
	if cfg.ID == "" {
		cfg.ID = "pool-" + uuid.NewString()[:8]
	}

	s := &Scheduler{
		id:                  cfg.ID,
		cfg:                 cfg,
		signal:              make(chan struct{}, cfg.Workers*2),
		stop:                make(chan struct{}),
		history:             newExecutionHistory(cfg.HistoryCapacity),
		baseCtx:             context.Background(),
		logger:              cfg.Logger,
		metrics:             cfg.Metrics,
		panicHandler:        cfg.PanicHandler,
		rejectedTaskHandler: cfg.RejectedTaskHandler,
	}
	if cfg.FIFOInjector {
		s.injector = NewFIFOTaskQueue()
	} else {
		s.injector = NewPriorityTaskQueue()
	}
	for i := range s.live {
		s.live[i].units = make(map[TaskID]*taskUnit)
	}
	s.named = make(map[string]int, len(cfg.WorkerNames))
	for i, name := range cfg.WorkerNames {
		if _, dup := s.named[name]; name != "" && !dup {
			s.named[name] = i
		}
	}

	s.workers = make([]*worker, cfg.Workers)
	for i := range s.workers {
		s.workers[i] = newWorker(s, i, cfg.LocalQueueCapacity)
	}
	s.wg.Add(len(s.workers))
	for _, w := range s.workers {
		go w.run()
	}

	s.logger.Info("scheduler started",
		F("pool", s.id), F("workers", cfg.Workers), F("local_queue_cap", s.workers[0].deque.capacity()))
	return s
}

// ID returns the scheduler id.
func (s *Scheduler) ID() string {
	return s.id
}

// WorkerCount returns the number of workers.
func (s *Scheduler) WorkerCount() int {
	return len(s.workers)
}

// WorkerIndex returns the index of the worker configured with name.
func (s *Scheduler) WorkerIndex(name string) (int, bool) {
	i, ok := s.named[name]
	return i, ok
}

// IsRunning reports whether the scheduler still accepts submissions.
func (s *Scheduler) IsRunning() bool {
	return s.state.Load() == poolRunning
}

// Outstanding returns the number of submitted tasks not yet resolved.
func (s *Scheduler) Outstanding() int64 {
	return s.outstanding.Load()
}

// =============================================================================
// Submission
// =============================================================================

// SubmitGraph submits every task of g and returns their handles. Tasks with
// no predecessors are queued immediately; the rest wait for their last
// predecessor to resolve. After shutdown has begun it submits nothing and
// returns ErrPoolShutDown.
func (s *Scheduler) SubmitGraph(g *Graph) (Handles, error) {
	units, err := g.take()
	if err != nil {
		return nil, err
	}
	if err := s.pinNamed(units); err != nil {
		g.giveBack(units)
		return nil, err
	}

	var roots []*taskUnit
	for _, u := range units {
		if u.pending.Load() == 0 {
			roots = append(roots, u)
		}
	}
	// Highest priority first into the injector.
	slices.SortStableFunc(roots, func(a, b *taskUnit) int {
		return cmp.Compare(b.priority, a.priority)
	})

	if !s.admit(units, roots) {
		g.giveBack(units)
		for _, u := range units {
			s.reject(u.id, RejectReasonShutdown)
		}
		return nil, ErrPoolShutDown
	}

	handles := make(Handles, len(units))
	for _, u := range units {
		handles[u.id] = u.handle
	}
	return handles, nil
}

// Submit runs a single dependency-free payload. After shutdown has begun
// the returned handle is already Failed with ErrPoolShutDown.
func (s *Scheduler) Submit(payload Payload, opts ...TaskOption) *Handle {
	return s.SubmitAfter(payload, nil, opts...)
}

// SubmitAfter runs payload once every handle in deps has resolved, whether
// Completed or Failed. The handles may come from earlier submissions or
// other schedulers. Inside the payload, Predecessors returns deps.
func (s *Scheduler) SubmitAfter(payload Payload, deps []*Handle, opts ...TaskOption) *Handle {
	o := defaultTaskOptions()
	for _, opt := range opts {
		opt(&o)
	}
	u := newTaskUnit(payload, o)
	var waitOn []*Handle
	for _, d := range deps {
		if d != nil {
			waitOn = append(waitOn, d)
		}
	}
	// A root may run and be retired by a worker before admit returns, so
	// only waitOn is read past this point.
	u.predecessors = waitOn
	u.pending.Store(int32(len(waitOn)))
	if err := s.pinNamed([]*taskUnit{u}); err != nil {
		return newFailedHandle(u.id, err)
	}

	var roots []*taskUnit
	if len(waitOn) == 0 {
		roots = []*taskUnit{u}
	}
	if !s.admit([]*taskUnit{u}, roots) {
		s.reject(u.id, RejectReasonShutdown)
		return newFailedHandle(u.id, ErrPoolShutDown)
	}

	h := u.handle
	for _, d := range waitOn {
		d.OnResolve(func(*Handle) {
			if u.release() {
				s.enqueue(u, nil)
			}
		})
	}
	return h
}

// pinNamed resolves WithWorkerName options to worker indexes.
func (s *Scheduler) pinNamed(units []*taskUnit) error {
	for _, u := range units {
		if u.workerName == "" {
			continue
		}
		i, ok := s.named[u.workerName]
		if !ok {
			return fmt.Errorf("%w: %q (task %s)", ErrUnknownWorker, u.workerName, u.displayName())
		}
		u.affinity = i
	}
	return nil
}

// admit registers units and queues roots, unless shutdown has begun.
func (s *Scheduler) admit(units, roots []*taskUnit) bool {
	s.submitMu.RLock()
	defer s.submitMu.RUnlock()

	if s.state.Load() != poolRunning {
		return false
	}

	for _, u := range units {
		if u.affinity < 0 || u.affinity >= len(s.workers) {
			u.affinity = NoAffinity
		}
		s.track(u)
	}
	s.outstanding.Add(int64(len(units)))
	s.submitted.Add(uint64(len(units)))

	for _, u := range roots {
		s.enqueue(u, nil)
	}
	if len(roots) > 0 {
		s.metrics.RecordQueueDepth(s.id, s.injector.Len())
	}
	return true
}

// enqueue makes a unit whose countdown reached zero runnable. from is the
// worker that released it, or nil for external submissions.
func (s *Scheduler) enqueue(u *taskUnit, from *worker) {
	if !u.transition(unitWaiting, unitReady) {
		// Cancelled by shutdown.
		return
	}

	switch {
	case u.affinity != NoAffinity:
		s.workers[u.affinity].mailbox.Push(u)
	case from != nil && from.deque.push(u):
	default:
		s.injector.Push(u)
	}
	s.wake()
}

func (s *Scheduler) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full; parked workers retry after IdlePark anyway.
	}
}

func (s *Scheduler) reject(id TaskID, reason string) {
	s.rejectedTaskHandler.HandleRejectedTask(s.id, id, reason)
	s.metrics.RecordTaskRejected(s.id, reason)
}

// =============================================================================
// Completion
// =============================================================================

// finish resolves u, releases its successors and retires it.
func (s *Scheduler) finish(u *taskUnit, value any, err error, from *worker) {
	u.state.Store(int32(unitDone))
	if !u.handle.resolve(value, err) {
		panic(fmt.Errorf("%w: %s", ErrDoubleResolve, u.id))
	}
	s.untrack(u)

	if err != nil {
		s.failed.Add(1)
	} else {
		s.completed.Add(1)
	}

	var ready []*taskUnit
	for _, succ := range u.successors {
		if succ.release() {
			ready = append(ready, succ)
		}
	}
	// The deque pops newest first, so push the highest priority last.
	slices.SortStableFunc(ready, func(a, b *taskUnit) int {
		return cmp.Compare(a.priority, b.priority)
	})
	for _, r := range ready {
		s.enqueue(r, from)
	}

	u.payload = nil
	u.successors = nil
	u.predecessors = nil
	s.retire()
}

// retire decrements the outstanding counter and detects quiescence during a
// waiting shutdown.
func (s *Scheduler) retire() {
	if s.outstanding.Add(-1) == 0 && s.state.Load() == poolDraining {
		s.closeStop()
	}
}

func (s *Scheduler) closeStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Scheduler) shard(id TaskID) *liveShard {
	return &s.live[uint64(id)%liveShards]
}

func (s *Scheduler) track(u *taskUnit) {
	sh := s.shard(u.id)
	sh.mu.Lock()
	sh.units[u.id] = u
	sh.mu.Unlock()
}

func (s *Scheduler) untrack(u *taskUnit) {
	sh := s.shard(u.id)
	sh.mu.Lock()
	delete(sh.units, u.id)
	sh.mu.Unlock()
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops the scheduler. New submissions are rejected from the moment
// it is called.
//
// With wait, it blocks until every outstanding task has resolved and all
// workers have exited. If ctx ends first it falls back to the non-waiting
// path and returns the context error.
//
// Without wait, workers finish the payload they are running and exit; every
// task that has not started resolves Failed with ErrPoolShutDown before
// Shutdown returns. Use Join to wait for the workers.
func (s *Scheduler) Shutdown(ctx context.Context, wait bool) error {
	s.submitMu.Lock()
	prev := s.state.Load()
	if wait {
		s.state.CompareAndSwap(poolRunning, poolDraining)
	} else {
		s.state.Store(poolStopping)
	}
	s.submitMu.Unlock()

	if prev == poolRunning {
		s.logger.Info("scheduler shutting down",
			F("pool", s.id), F("wait", wait), F("outstanding", s.outstanding.Load()))
	}

	if !wait {
		s.abort()
		return nil
	}

	if s.outstanding.Load() == 0 {
		s.closeStop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.state.Store(poolStopping)
		s.abort()
		return fmt.Errorf("shutdown of %s: %w", s.id, ctx.Err())
	}
}

// Join blocks until all workers have exited.
func (s *Scheduler) Join() {
	s.wg.Wait()
}

// abort stops the workers and fails every task that never started.
func (s *Scheduler) abort() {
	s.closeStop()

	s.injector.Drain()
	for _, w := range s.workers {
		w.mailbox.Drain()
		for w.deque.steal() != nil {
		}
	}

	var swept int
	for i := range s.live {
		sh := &s.live[i]
		sh.mu.Lock()
		var victims []*taskUnit
		for id, u := range sh.units {
			if u.cancel() {
				victims = append(victims, u)
				delete(sh.units, id)
			}
		}
		sh.mu.Unlock()

		for _, u := range victims {
			if !u.handle.resolve(nil, ErrPoolShutDown) {
				panic(fmt.Errorf("%w: %s", ErrDoubleResolve, u.id))
			}
			s.cancelled.Add(1)
			s.reject(u.id, RejectReasonCancelled)
			u.payload = nil
			u.successors = nil
			s.retire()
		}
		swept += len(victims)
	}

	if swept > 0 {
		s.logger.Info("shutdown cancelled pending tasks", F("pool", s.id), F("count", swept))
	}
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a point-in-time snapshot.
func (s *Scheduler) Stats() PoolStats {
	stats := PoolStats{
		ID:          s.id,
		Workers:     len(s.workers),
		Running:     s.IsRunning(),
		Injected:    s.injector.Len(),
		Active:      int(s.active.Load()),
		Outstanding: s.outstanding.Load(),
		Submitted:   s.submitted.Load(),
		Completed:   s.completed.Load(),
		Failed:      s.failed.Load(),
		Cancelled:   s.cancelled.Load(),
		Steals:      s.steals.Load(),
	}
	for _, w := range s.workers {
		stats.Local += w.deque.len()
		stats.Pinned += w.mailbox.Len()
	}
	return stats
}

// RecentTasks returns completed task execution records in newest-first order.
func (s *Scheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}
