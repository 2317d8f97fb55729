package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorker_GrabTakesFairShare verifies injector batching
// Given: Two workers and four queued units of mixed priority
// When: One worker grabs from the injector
// Then: It runs the highest priority unit, keeps its share in injector order
// on its deque and leaves the rest for its peer
func TestWorker_GrabTakesFairShare(t *testing.T) {
	// Arrange
	s := &Scheduler{injector: NewPriorityTaskQueue()}
	s.workers = []*worker{newWorker(s, 0, 8), newWorker(s, 1, 8)}
	for _, p := range []TaskPriority{TaskPriorityBestEffort, TaskPriorityUserBlocking, TaskPriorityUserVisible, TaskPriorityUserBlocking} {
		s.injector.Push(unitWithPriority(p))
	}
	w := s.workers[0]

	// Act
	first := w.grab()

	// Assert
	require.NotNil(t, first)
	assert.Equal(t, TaskPriorityUserBlocking, first.priority)
	assert.Equal(t, 2, w.deque.len())
	assert.Equal(t, 1, s.injector.Len())
	assert.Equal(t, TaskPriorityUserBlocking, w.deque.pop().priority)
	assert.Equal(t, TaskPriorityUserVisible, w.deque.pop().priority)

	// The peer steals nothing from an empty deque but still finds the injector.
	last := s.workers[1].next()
	require.NotNil(t, last)
	assert.Equal(t, TaskPriorityBestEffort, last.priority)
}

func TestWorker_GrabEmptyInjector(t *testing.T) {
	s := &Scheduler{injector: NewFIFOTaskQueue()}
	s.workers = []*worker{newWorker(s, 0, 4)}

	assert.Nil(t, s.workers[0].grab())
}
