package core

import (
	"context"
	"runtime/debug"
	"time"
)

// worker owns a deque and an affinity mailbox and runs the
// poll-execute-steal loop.
type worker struct {
	s     *Scheduler
	index int

	deque   *stealDeque
	mailbox *FIFOTaskQueue

	// stealCursor rotates the first peer tried so thieves spread out.
	stealCursor int
}

func newWorker(s *Scheduler, index, localCap int) *worker {
	return &worker{
		s:           s,
		index:       index,
		deque:       newStealDeque(localCap),
		mailbox:     NewFIFOTaskQueue(),
		stealCursor: index + 1,
	}
}

// run is the main loop for each worker
func (w *worker) run() {
	s := w.s
	defer s.wg.Done()

	park := time.NewTimer(s.cfg.IdlePark)
	park.Stop()
	defer park.Stop()

	for {
		if s.stopped() {
			break
		}

		if u := w.next(); u != nil {
			w.execute(u)
			continue
		}

		if s.state.Load() == poolDraining && s.outstanding.Load() == 0 {
			s.closeStop()
			break
		}

		// A push may have lost the race with the signal buffer.
		if !s.injector.IsEmpty() {
			continue
		}
		w.mailbox.MaybeCompact()
		s.injector.MaybeCompact()

		park.Reset(s.cfg.IdlePark)
		select {
		case <-s.signal:
		case <-park.C:
		case <-s.stop:
		}
		park.Stop()
	}

	s.logger.Debug("worker exited", F("pool", s.id), F("worker", w.index))
}

// next finds a runnable unit: pinned mailbox, own deque (newest), injector
// (highest priority, oldest), then peers' deques (oldest).
func (w *worker) next() *taskUnit {
	if u, ok := w.mailbox.Pop(); ok {
		return u
	}
	if u := w.deque.pop(); u != nil {
		return u
	}
	if u := w.grab(); u != nil {
		return u
	}
	return w.steal()
}

// grab takes this worker's share of the injector. The first unit is
// returned; the rest go to the deque, lowest priority first, so pop keeps
// the injector's order and idle peers can steal them.
func (w *worker) grab() *taskUnit {
	inj := w.s.injector
	share := min(inj.Len()/len(w.s.workers)+1, max(w.deque.capacity()/2, 1))
	batch := inj.PopUpTo(share)
	if len(batch) == 0 {
		return nil
	}
	for i := len(batch) - 1; i > 0; i-- {
		if !w.deque.push(batch[i]) {
			inj.Push(batch[i])
		}
	}
	return batch[0]
}

func (w *worker) steal() *taskUnit {
	peers := w.s.workers
	n := len(peers)
	if n < 2 {
		return nil
	}

	start := w.stealCursor
	w.stealCursor = (w.stealCursor + 1) % n
	for i := range n {
		victim := peers[(start+i)%n]
		if victim == w {
			continue
		}
		if u := victim.deque.steal(); u != nil {
			w.s.steals.Add(1)
			w.s.metrics.RecordSteal(w.s.id)
			return u
		}
	}
	return nil
}

// execute runs the payload outside any queue lock and completes the unit.
func (w *worker) execute(u *taskUnit) {
	s := w.s
	if !u.claim() {
		// Cancelled by shutdown while queued.
		return
	}

	ctx := withTaskContext(s.baseCtx, &taskContext{
		id:           u.id,
		worker:       w.index,
		scheduler:    s,
		predecessors: u.predecessors,
	})

	s.active.Add(1)
	startedAt := time.Now()
	value, panicked, err := w.invoke(ctx, u)
	finishedAt := time.Now()
	s.active.Add(-1)

	duration := finishedAt.Sub(startedAt)
	s.metrics.RecordTaskDuration(s.id, u.priority, duration)
	state := StateCompleted
	if err != nil {
		state = StateFailed
		s.metrics.RecordTaskFailed(s.id)
	}
	s.history.Add(TaskExecutionRecord{
		TaskID:     u.id,
		Name:       resolveTaskName(u.payload, u.name),
		PoolID:     s.id,
		WorkerID:   w.index,
		Priority:   u.priority,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		State:      state,
		Panicked:   panicked,
	})

	s.finish(u, value, err, w)
}

// invoke calls the payload and converts a panic into a *PanicError.
func (w *worker) invoke(ctx context.Context, u *taskUnit) (value any, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			value, panicked, err = nil, true, &PanicError{Value: r, Stack: stack}
			w.s.logger.Error("task panicked",
				F("pool", w.s.id), F("worker", w.index), F("task", u.displayName()), F("panic", r))
			w.hook("metrics", func() { w.s.metrics.RecordTaskPanic(w.s.id, r) })
			w.hook("panic handler", func() { w.s.panicHandler.HandlePanic(ctx, w.s.id, w.index, r, stack) })
		}
	}()

	if u.payload == nil {
		return nil, false, nil
	}
	value, err = u.payload(ctx)
	return value, false, err
}

// hook runs a user-supplied panic hook. A hook that panics is logged and
// otherwise ignored so the worker survives.
func (w *worker) hook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.s.logger.Error("panic hook panicked",
				F("pool", w.s.id), F("worker", w.index), F("hook", name), F("panic", r))
		}
	}()
	fn()
}
