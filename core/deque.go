package core

import (
	"math/bits"
	"sync/atomic"
)

const defaultLocalQueueCap = 256

// stealDeque is a fixed-capacity Chase-Lev work-stealing deque.
//
// The owning worker pushes and pops at the bottom; any goroutine may steal
// from the top. Only the owner may call push and pop. All index accesses are
// sequentially consistent atomics, so no extra fences are required.
type stealDeque struct {
	top    atomic.Int64
	bottom atomic.Int64
	mask   int64
	buf    []atomic.Pointer[taskUnit]
}

func newStealDeque(capacity int) *stealDeque {
	if capacity < 2 {
		capacity = defaultLocalQueueCap
	}
	// Round up to a power of two so indexes can be masked.
	capacity = 1 << bits.Len(uint(capacity-1))
	return &stealDeque{
		mask: int64(capacity - 1),
		buf:  make([]atomic.Pointer[taskUnit], capacity),
	}
}

// push adds u at the bottom. It returns false when the deque is full.
func (d *stealDeque) push(u *taskUnit) bool {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t > d.mask {
		return false
	}
	d.buf[b&d.mask].Store(u)
	d.bottom.Store(b + 1)
	return true
}

// pop removes the newest entry.
func (d *stealDeque) pop() *taskUnit {
	b := d.bottom.Load() - 1
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		// Empty.
		d.bottom.Store(b + 1)
		return nil
	}

	slot := &d.buf[b&d.mask]
	u := slot.Load()
	if t < b {
		// More than one entry left; stealers cannot reach slot b.
		slot.Store(nil)
		return u
	}

	// Last entry: race stealers for it.
	if !d.top.CompareAndSwap(t, t+1) {
		u = nil
	}
	slot.Store(nil)
	d.bottom.Store(b + 1)
	return u
}

// steal removes the oldest entry. A nil result means the deque was empty or
// another thief won the race; callers simply move on.
func (d *stealDeque) steal() *taskUnit {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil
	}
	u := d.buf[t&d.mask].Load()
	if !d.top.CompareAndSwap(t, t+1) {
		return nil
	}
	return u
}

// len is a racy size estimate used for stats.
func (d *stealDeque) len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

func (d *stealDeque) capacity() int {
	return len(d.buf)
}
