package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

type recordingExecutor struct {
	mu        sync.Mutex
	executed  []string
	cancelled []string
	block     chan struct{} // when set, Execute waits on it (or ctx)
	done      chan string   // when set, receives each request id on completion
}

func (e *recordingExecutor) Execute(ctx context.Context, req *models.Request) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			e.mu.Lock()
			e.cancelled = append(e.cancelled, req.RequestID)
			e.mu.Unlock()
		}
	}
	e.mu.Lock()
	e.executed = append(e.executed, req.RequestID)
	e.mu.Unlock()
	if e.done != nil {
		e.done <- req.RequestID
	}
}

func (e *recordingExecutor) executedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

func (e *recordingExecutor) cancelledIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cancelled...)
}

func poolConfig(workers, buffer int) config.QueueConfig {
	return config.QueueConfig{
		WorkerCount:             workers,
		SubmitBuffer:            buffer,
		GracefulShutdownTimeout: config.Duration(5 * time.Second),
	}
}

func TestPoolProcessesSubmissions(t *testing.T) {
	exec := &recordingExecutor{done: make(chan string, 10)}
	pool := NewWorkerPool("pod-1", poolConfig(2, 10), exec)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(&models.Request{RequestID: fmt.Sprintf("req-%d", i)}))
	}

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		select {
		case id := <-exec.done:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for requests to process")
		}
	}
	assert.Len(t, seen, 5)
}

func TestPoolStartIdempotent(t *testing.T) {
	exec := &recordingExecutor{}
	pool := NewWorkerPool("pod-1", poolConfig(1, 1), exec)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	assert.Len(t, pool.workers, 1)
}

func TestPoolSaturation(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	pool := NewWorkerPool("pod-1", poolConfig(1, 1), exec)
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(exec.block)
		pool.Stop()
	}()

	// First submission occupies the worker, second fills the buffer.
	require.NoError(t, pool.Submit(&models.Request{RequestID: "busy"}))
	require.Eventually(t, func() bool {
		return pool.Health().ActiveWorkers == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, pool.Submit(&models.Request{RequestID: "buffered"}))

	err := pool.Submit(&models.Request{RequestID: "overflow"})
	assert.ErrorIs(t, err, ErrPoolSaturated)
}

func TestPoolDrainRefusesSubmissions(t *testing.T) {
	exec := &recordingExecutor{}
	pool := NewWorkerPool("pod-1", poolConfig(1, 10), exec)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	pool.Drain()
	assert.True(t, pool.Draining())
	assert.ErrorIs(t, pool.Submit(&models.Request{RequestID: "late"}), ErrPoolStopped)
}

func TestPoolCancelRequest(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{}), done: make(chan string, 1)}
	pool := NewWorkerPool("pod-1", poolConfig(1, 1), exec)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.NoError(t, pool.Submit(&models.Request{RequestID: "req-1"}))
	require.Eventually(t, func() bool {
		return pool.CancelRequest("req-1")
	}, time.Second, 10*time.Millisecond)

	select {
	case <-exec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request never returned from executor")
	}
	assert.Contains(t, exec.cancelledIDs(), "req-1")

	// Unknown or already-finished requests report false.
	require.Eventually(t, func() bool {
		return !pool.CancelRequest("req-1")
	}, time.Second, 10*time.Millisecond)
	assert.False(t, pool.CancelRequest("no-such-request"))
}

func TestPoolHealth(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	pool := NewWorkerPool("pod-1", poolConfig(2, 10), exec)
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(exec.block)
		pool.Stop()
	}()

	require.NoError(t, pool.Submit(&models.Request{RequestID: "req-1"}))
	require.Eventually(t, func() bool {
		h := pool.Health()
		return h.ActiveWorkers == 1 && h.ActiveRequests == 1
	}, time.Second, 10*time.Millisecond)

	h := pool.Health()
	assert.Equal(t, "pod-1", h.PodID)
	assert.Equal(t, 2, h.TotalWorkers)
	assert.Len(t, h.WorkerStats, 2)
}

func TestPoolStopWaitsForInflight(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	pool := NewWorkerPool("pod-1", poolConfig(1, 1), exec)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(&models.Request{RequestID: "slow"}))
	require.Eventually(t, func() bool {
		return pool.Health().ActiveWorkers == 1
	}, time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a request was still executing")
	case <-time.After(100 * time.Millisecond):
	}

	close(exec.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after in-flight request finished")
	}
	assert.Contains(t, exec.executedIDs(), "slow")
}
