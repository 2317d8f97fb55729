package core

import (
	"container/heap"
	"sync"
)

const (
	queueInitialCap = 16
	// queueSlackLimit is how many consumed slots a FIFOTaskQueue tolerates at
	// the front of its buffer before shifting live units down.
	queueSlackLimit = 64
)

// TaskQueue is the shared injector: multi-producer, multi-consumer.
type TaskQueue interface {
	Push(u *taskUnit)
	Pop() (*taskUnit, bool)
	PopUpTo(max int) []*taskUnit
	Len() int
	IsEmpty() bool
	MaybeCompact()
	// Drain removes and returns every queued unit.
	Drain() []*taskUnit
}

// =============================================================================
// FIFOTaskQueue: arrival order, priority ignored
// =============================================================================

// FIFOTaskQueue serves as the FIFO injector and as each worker's affinity
// mailbox. Units in buf[:head] have been consumed.
type FIFOTaskQueue struct {
	mu   sync.Mutex
	buf  []*taskUnit
	head int
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{buf: make([]*taskUnit, 0, queueInitialCap)}
}

func (q *FIFOTaskQueue) Push(u *taskUnit) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, u)
}

func (q *FIFOTaskQueue) Pop() (*taskUnit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.buf) {
		return nil, false
	}
	u := q.buf[q.head]
	q.buf[q.head] = nil
	q.head++
	q.settleLocked()
	return u, true
}

func (q *FIFOTaskQueue) PopUpTo(max int) []*taskUnit {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(len(q.buf)-q.head, max)
	if n <= 0 {
		return nil
	}
	batch := make([]*taskUnit, n)
	copy(batch, q.buf[q.head:q.head+n])
	clear(q.buf[q.head : q.head+n])
	q.head += n
	q.settleLocked()
	return batch
}

// settleLocked rewinds an empty buffer and shifts a mostly consumed one.
func (q *FIFOTaskQueue) settleLocked() {
	live := len(q.buf) - q.head
	switch {
	case live == 0:
		q.buf = q.buf[:0]
		q.head = 0
	case q.head >= queueSlackLimit && q.head >= live:
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf = q.buf[:n]
		q.head = 0
	}
}

// MaybeCompact releases a backing array that is much larger than the
// queue's contents. Workers call it before parking.
func (q *FIFOTaskQueue) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()

	live := len(q.buf) - q.head
	if cap(q.buf) < 4*queueInitialCap || live*4 >= cap(q.buf) {
		return
	}
	shrunk := make([]*taskUnit, live, max(2*live, queueInitialCap))
	copy(shrunk, q.buf[q.head:])
	q.buf = shrunk
	q.head = 0
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *FIFOTaskQueue) Drain() []*taskUnit {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.buf[q.head:]
	q.buf = make([]*taskUnit, 0, queueInitialCap)
	q.head = 0
	return out
}

// =============================================================================
// PriorityTaskQueue: highest priority first, arrival order within a priority
// =============================================================================

type queued struct {
	unit *taskUnit
	seq  uint64
}

type unitHeap []queued

func (h unitHeap) Len() int { return len(h) }

func (h unitHeap) Less(i, j int) bool {
	if pi, pj := h[i].unit.priority, h[j].unit.priority; pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}

func (h unitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *unitHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *unitHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = queued{}
	*h = old[:len(old)-1]
	return last
}

// PriorityTaskQueue is the default injector.
type PriorityTaskQueue struct {
	mu    sync.Mutex
	units unitHeap
	seq   uint64
}

func NewPriorityTaskQueue() *PriorityTaskQueue {
	return &PriorityTaskQueue{units: make(unitHeap, 0, queueInitialCap)}
}

func (q *PriorityTaskQueue) Push(u *taskUnit) {
	q.mu.Lock()
	defer q.mu.Unlock()

	heap.Push(&q.units, queued{unit: u, seq: q.seq})
	q.seq++
}

func (q *PriorityTaskQueue) Pop() (*taskUnit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 {
		return nil, false
	}
	return heap.Pop(&q.units).(queued).unit, true
}

func (q *PriorityTaskQueue) PopUpTo(max int) []*taskUnit {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(len(q.units), max)
	if n <= 0 {
		return nil
	}
	batch := make([]*taskUnit, n)
	for i := range batch {
		batch[i] = heap.Pop(&q.units).(queued).unit
	}
	return batch
}

func (q *PriorityTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

func (q *PriorityTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// MaybeCompact drops an oversized backing array once the heap is empty.
func (q *PriorityTaskQueue) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 && cap(q.units) >= 4*queueInitialCap {
		q.units = make(unitHeap, 0, queueInitialCap)
	}
}

// Drain returns the queued units in heap order, not priority order.
func (q *PriorityTaskQueue) Drain() []*taskUnit {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*taskUnit, len(q.units))
	for i, e := range q.units {
		out[i] = e.unit
	}
	q.units = make(unitHeap, 0, queueInitialCap)
	q.seq = 0
	return out
}
