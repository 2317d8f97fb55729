package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScheduler_Shutdown verifies basic shutdown functionality
// Given: An idle scheduler
// When: Shutdown is called with wait
// Then: IsRunning returns false and all workers have exited
func TestScheduler_Shutdown(t *testing.T) {
	// Arrange
	s := NewScheduler(&PoolConfig{Workers: 3})
	require.True(t, s.IsRunning())

	// Act
	err := s.Shutdown(context.Background(), true)

	// Assert
	require.NoError(t, err)
	assert.False(t, s.IsRunning())
	s.Join()
}

// TestScheduler_ShutdownIsIdempotent verifies repeated shutdown calls
func TestScheduler_ShutdownIsIdempotent(t *testing.T) {
	s := NewScheduler(&PoolConfig{Workers: 2})

	require.NoError(t, s.Shutdown(context.Background(), true))
	require.NoError(t, s.Shutdown(context.Background(), false))
	require.NoError(t, s.Shutdown(context.Background(), true))
	s.Join()
}

// TestScheduler_ShutdownWaitDrainsGraph verifies wait-shutdown finishes dependents
// Given: A chain whose later tasks are still waiting on earlier ones
// When: Shutdown(wait) is called right after submission
// Then: Every task in the chain still runs
func TestScheduler_ShutdownWaitDrainsGraph(t *testing.T) {
	// Arrange
	s := NewScheduler(&PoolConfig{Workers: 2})
	var ran atomic.Int32
	b := NewGraphBuilder()
	var prev TaskID
	for range 50 {
		id := b.AddTask(func(ctx context.Context) (any, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil, nil
		})
		if prev.Valid() {
			require.NoError(t, b.AddDependency(prev, id))
		}
		prev = id
	}
	g, err := b.Build()
	require.NoError(t, err)
	handles, err := s.SubmitGraph(g)
	require.NoError(t, err)

	// Act
	err = s.Shutdown(context.Background(), true)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int32(50), ran.Load())
	for _, h := range handles {
		assert.Equal(t, StateCompleted, h.State())
	}
}

// TestScheduler_ShutdownNoWaitFailsPending verifies non-waiting shutdown
// Given: One worker blocked in a task, with 10 queued tasks and a dependent chain behind it
// When: Shutdown is called without wait
// Then: Every task that never started fails with ErrPoolShutDown, the running one completes
func TestScheduler_ShutdownNoWaitFailsPending(t *testing.T) {
	// Arrange
	rejected := &testRejectedHandler{}
	s := NewScheduler(&PoolConfig{Workers: 1, RejectedTaskHandler: rejected})
	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32

	blocker := s.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "done", nil
	})
	<-started

	var queued []*Handle
	for range 10 {
		queued = append(queued, s.Submit(func(ctx context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		}))
	}
	dependent := s.SubmitAfter(func(ctx context.Context) (any, error) {
		ran.Add(1)
		return nil, nil
	}, []*Handle{blocker})

	// Act
	err := s.Shutdown(context.Background(), false)

	// Assert - pending work failed synchronously
	require.NoError(t, err)
	for _, h := range append(queued, dependent) {
		state, _, herr := h.Poll()
		assert.Equal(t, StateFailed, state)
		assert.ErrorIs(t, herr, ErrPoolShutDown)
	}
	assert.Equal(t, StatePending, blocker.State())

	// Assert - the running payload finishes and nothing else runs
	close(release)
	v, err := blocker.Result()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	s.Join()
	assert.Equal(t, int32(0), ran.Load())

	stats := s.Stats()
	assert.Equal(t, uint64(11), stats.Cancelled)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, int64(0), stats.Outstanding)
	assert.Len(t, rejected.Seen(), 11)
	for _, r := range rejected.Seen() {
		assert.Equal(t, RejectReasonCancelled, r.Reason)
	}
}

// TestScheduler_ShutdownWaitTimeout verifies a bounded wait falls back to abort
// Given: A task that blocks until released and a queued task behind it
// When: Shutdown(wait) is called with a context that expires first
// Then: Shutdown returns the context error and the queued task fails
func TestScheduler_ShutdownWaitTimeout(t *testing.T) {
	// Arrange
	s := NewScheduler(&PoolConfig{Workers: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	s.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started
	queued := s.Submit(noopPayload)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Act
	err := s.Shutdown(ctx, true)

	// Assert
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, qerr := queued.Result()
	assert.ErrorIs(t, qerr, ErrPoolShutDown)

	close(release)
	s.Join()
}

// TestScheduler_SubmitDuringDrainIsRejected verifies payloads cannot extend a drain
// Given: A running task that submits a follow-up after Shutdown(wait) began
// When: The follow-up is submitted
// Then: It fails with ErrPoolShutDown and the shutdown still completes
func TestScheduler_SubmitDuringDrainIsRejected(t *testing.T) {
	// Arrange
	s := NewScheduler(&PoolConfig{Workers: 1})
	proceed := make(chan struct{})
	started := make(chan struct{})
	outer := s.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-proceed
		return CurrentScheduler(ctx).Submit(noopPayload), nil
	})
	<-started

	// Act
	done := make(chan error, 1)
	go func() { done <- s.Shutdown(context.Background(), true) }()
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, time.Millisecond)
	close(proceed)

	// Assert
	require.NoError(t, <-done)
	v, err := outer.Result()
	require.NoError(t, err)
	_, innerErr := v.(*Handle).Result()
	assert.ErrorIs(t, innerErr, ErrPoolShutDown)
}
