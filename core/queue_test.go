package core

import (
	"testing"
)

// unitWithPriority builds a bare unit for queue tests.
func unitWithPriority(p TaskPriority) *taskUnit {
	o := defaultTaskOptions()
	o.priority = p
	return newTaskUnit(nil, o)
}

// TestPriorityTaskQueue_Stability verifies priority-based ordering
// Given: A priority queue with mixed-priority units
// When: Units are popped from the queue
// Then: They come out UserBlocking > UserVisible > BestEffort, FIFO within a priority
func TestPriorityTaskQueue_Stability(t *testing.T) {
	// Arrange
	q := NewPriorityTaskQueue()
	low1 := unitWithPriority(TaskPriorityBestEffort)
	high1 := unitWithPriority(TaskPriorityUserBlocking)
	low2 := unitWithPriority(TaskPriorityBestEffort)
	high2 := unitWithPriority(TaskPriorityUserBlocking)
	mid := unitWithPriority(TaskPriorityUserVisible)

	// Act
	for _, u := range []*taskUnit{low1, high1, low2, high2, mid} {
		q.Push(u)
	}

	// Assert
	expected := []*taskUnit{high1, high2, mid, low1, low2}
	for i, want := range expected {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Step %d: queue is empty, want %s", i, want.id)
		}
		if got != want {
			t.Errorf("Step %d: got %s (priority %s), want %s (priority %s)",
				i, got.id, got.priority, want.id, want.priority)
		}
	}
}

// TestPriorityTaskQueue_PopUpTo verifies batch retrieval by priority
// Given: A priority queue with 5 units of different priorities
// When: PopUpTo is called with limit of 3
// Then: Returns the 3 highest priority units in order, 2 remain queued
func TestPriorityTaskQueue_PopUpTo(t *testing.T) {
	// Arrange
	q := NewPriorityTaskQueue()
	q.Push(unitWithPriority(TaskPriorityBestEffort))
	q.Push(unitWithPriority(TaskPriorityUserBlocking))
	q.Push(unitWithPriority(TaskPriorityBestEffort))
	q.Push(unitWithPriority(TaskPriorityUserVisible))
	q.Push(unitWithPriority(TaskPriorityUserBlocking))

	// Act
	batch := q.PopUpTo(3)

	// Assert
	if len(batch) != 3 {
		t.Fatalf("len(batch) = %d, want 3", len(batch))
	}
	want := []TaskPriority{TaskPriorityUserBlocking, TaskPriorityUserBlocking, TaskPriorityUserVisible}
	for i, p := range want {
		if batch[i].priority != p {
			t.Errorf("batch[%d].priority = %s, want %s", i, batch[i].priority, p)
		}
	}
	if q.Len() != 2 {
		t.Errorf("q.Len() = %d, want 2", q.Len())
	}
}

// TestPriorityTaskQueue_Drain verifies Drain empties the queue
// Given: A priority queue with 4 units
// When: Drain is called
// Then: All 4 units are returned and the queue is empty but still usable
func TestPriorityTaskQueue_Drain(t *testing.T) {
	// Arrange
	q := NewPriorityTaskQueue()
	for range 4 {
		q.Push(unitWithPriority(TaskPriorityUserVisible))
	}

	// Act
	drained := q.Drain()

	// Assert
	if len(drained) != 4 {
		t.Errorf("len(Drain()) = %d, want 4", len(drained))
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() after Drain = false, want true")
	}

	q.Push(unitWithPriority(TaskPriorityBestEffort))
	if _, ok := q.Pop(); !ok {
		t.Error("Pop() after Drain+Push = false, want true")
	}
}

// TestFIFOTaskQueue_FIFO verifies first-in-first-out behavior
// Given: A FIFO queue with 3 units of different priorities
// When: Units are popped from the queue
// Then: They come out in insertion order regardless of priority
func TestFIFOTaskQueue_FIFO(t *testing.T) {
	// Arrange
	q := NewFIFOTaskQueue()
	in := []*taskUnit{
		unitWithPriority(TaskPriorityBestEffort),
		unitWithPriority(TaskPriorityUserVisible),
		unitWithPriority(TaskPriorityUserBlocking),
	}

	// Act
	for _, u := range in {
		q.Push(u)
	}

	// Assert
	for i, want := range in {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Step %d: queue is empty", i)
		}
		if got != want {
			t.Errorf("Step %d: got %s, want %s", i, got.id, want.id)
		}
	}
}

// TestFIFOTaskQueue_PopUpTo verifies FIFO batch retrieval
// Given: A FIFO queue with 5 units
// When: PopUpTo(3) is called, then PopUpTo(10)
// Then: First call returns 3 units, second returns the remaining 2
func TestFIFOTaskQueue_PopUpTo(t *testing.T) {
	// Arrange
	q := NewFIFOTaskQueue()
	for range 5 {
		q.Push(unitWithPriority(TaskPriorityBestEffort))
	}

	// Act
	first := q.PopUpTo(3)

	// Assert
	if len(first) != 3 {
		t.Errorf("len(first) = %d, want 3", len(first))
	}
	if q.Len() != 2 {
		t.Errorf("q.Len() = %d, want 2", q.Len())
	}

	// Act
	rest := q.PopUpTo(10)

	// Assert
	if len(rest) != 2 {
		t.Errorf("len(rest) = %d, want 2", len(rest))
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
}

// TestFIFOTaskQueue_MaybeCompact verifies FIFO queue memory compaction
// Given: An emptied FIFO queue that previously held 100 units
// When: MaybeCompact is called
// Then: The backing slice shrinks and the queue remains functional
func TestFIFOTaskQueue_MaybeCompact(t *testing.T) {
	// Arrange
	q := NewFIFOTaskQueue()
	for range 100 {
		q.Push(unitWithPriority(TaskPriorityBestEffort))
	}
	for range 100 {
		q.Pop()
	}

	// Act
	q.MaybeCompact()

	// Assert
	q.mu.Lock()
	capAfter := cap(q.buf)
	q.mu.Unlock()
	if capAfter != queueInitialCap {
		t.Errorf("cap(buf) after compaction = %d, want %d", capAfter, queueInitialCap)
	}

	u := unitWithPriority(TaskPriorityUserVisible)
	q.Push(u)
	got, ok := q.Pop()
	if !ok || got != u {
		t.Fatal("Pop() after MaybeCompact did not return the pushed unit")
	}
}

// TestFIFOTaskQueue_ShiftsConsumedSlots verifies a long-lived queue keeps order
// Given: A queue that is pushed to and popped from in overlapping waves
// When: Enough units are consumed to shift the buffer several times
// Then: Every unit still comes out in arrival order
func TestFIFOTaskQueue_ShiftsConsumedSlots(t *testing.T) {
	// Arrange
	q := NewFIFOTaskQueue()
	var pushed []*taskUnit
	var popped []*taskUnit

	// Act
	for wave := range 10 {
		for range 50 {
			u := unitWithPriority(TaskPriorityUserVisible)
			pushed = append(pushed, u)
			q.Push(u)
		}
		for range 40 {
			u, _ := q.Pop()
			popped = append(popped, u)
		}
		if wave%3 == 0 {
			popped = append(popped, q.PopUpTo(7)...)
		}
	}
	popped = append(popped, q.Drain()...)

	// Assert
	if len(popped) != len(pushed) {
		t.Fatalf("got %d units back, want %d", len(popped), len(pushed))
	}
	for i := range pushed {
		if popped[i] != pushed[i] {
			t.Fatalf("unit %d out of order", i)
		}
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after Drain")
	}
}

// TestPriorityTaskQueue_MaybeCompact verifies an emptied heap gives back memory
func TestPriorityTaskQueue_MaybeCompact(t *testing.T) {
	q := NewPriorityTaskQueue()
	for range 100 {
		q.Push(unitWithPriority(TaskPriorityBestEffort))
	}
	q.PopUpTo(100)

	q.MaybeCompact()

	q.mu.Lock()
	defer q.mu.Unlock()
	if cap(q.units) != queueInitialCap {
		t.Errorf("cap(units) after compaction = %d, want %d", cap(q.units), queueInitialCap)
	}
}
