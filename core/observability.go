package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	PoolID     string
	WorkerID   int
	Priority   TaskPriority
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	State      State
	Panicked   bool
}

// PoolStats represents runtime observability state for a scheduler.
type PoolStats struct {
	ID      string
	Workers int
	Running bool

	// Queue depths at the time of the snapshot.
	Injected int // shared injector
	Local    int // sum of worker deques
	Pinned   int // sum of affinity mailboxes

	Active      int   // payloads executing right now
	Outstanding int64 // submitted and not yet resolved

	Submitted uint64
	Completed uint64
	Failed    uint64
	Cancelled uint64
	Steals    uint64
}

// Queued is the number of ready tasks waiting for a worker.
func (s PoolStats) Queued() int {
	return s.Injected + s.Local + s.Pinned
}
