package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// WorkerStatus describes what a worker is currently doing.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker consumes requests from the pool's submit channel and runs each
// through the executor with a cancellable per-request context.
type Worker struct {
	id       string
	podID    string
	executor Executor
	pool     *WorkerPool
	stopCh   chan struct{}
	stopOnce sync.Once

	mu               sync.RWMutex
	status           WorkerStatus
	currentRequestID string
	processed        int
	lastActivity     time.Time
}

// NewWorker creates a new worker.
func NewWorker(id, podID string, executor Executor, pool *WorkerPool) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start launches the worker's run loop.
func (w *Worker) Start(ctx context.Context) {
	w.pool.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to exit after its current request.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Health returns a snapshot of the worker's state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            string(w.status),
		CurrentRequestID:  w.currentRequestID,
		RequestsProcessed: w.processed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	slog.Debug("Worker started", "worker_id", w.id)

	for {
		select {
		case <-w.stopCh:
			slog.Debug("Worker stopping", "worker_id", w.id)
			return
		case <-ctx.Done():
			slog.Debug("Worker context cancelled", "worker_id", w.id)
			return
		case req := <-w.pool.submitCh:
			w.process(ctx, req)
		}
	}
}

func (w *Worker) process(ctx context.Context, req *models.Request) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.pool.RegisterRequest(req.RequestID, cancel)
	defer w.pool.UnregisterRequest(req.RequestID)

	w.setWorking(req.RequestID)
	defer w.setIdle()

	slog.Info("Worker picked up request",
		"worker_id", w.id,
		"request_id", req.RequestID)

	w.executor.Execute(reqCtx, req)
}

func (w *Worker) setWorking(requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusWorking
	w.currentRequestID = requestID
	w.lastActivity = time.Now()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusIdle
	w.currentRequestID = ""
	w.processed++
	w.lastActivity = time.Now()
}
