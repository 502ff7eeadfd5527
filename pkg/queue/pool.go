package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// WorkerPool manages the pipeline workers. Each submitted request is
// executed by exactly one worker; the pool tracks cancel functions so
// customer abandonment can reach in-flight work.
type WorkerPool struct {
	podID    string
	config   config.QueueConfig
	executor Executor
	submitCh chan *models.Request
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Request cancel registry: request_id → cancel function.
	mu             sync.RWMutex
	activeRequests map[string]context.CancelFunc
	started        bool
	draining       bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, cfg config.QueueConfig, executor Executor) *WorkerPool {
	return &WorkerPool{
		podID:          podID,
		config:         cfg,
		executor:       executor,
		submitCh:       make(chan *models.Request, cfg.SubmitBuffer),
		workers:        make([]*Worker, 0, cfg.WorkerCount),
		stopCh:         make(chan struct{}),
		activeRequests: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true
	p.mu.Unlock()

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("Worker pool started")
	return nil
}

// Submit hands a request to the pool. Returns ErrPoolStopped when
// draining and ErrPoolSaturated when the buffer is full.
func (p *WorkerPool) Submit(req *models.Request) error {
	p.mu.RLock()
	draining := p.draining
	p.mu.RUnlock()
	if draining {
		return ErrPoolStopped
	}

	select {
	case <-p.stopCh:
		return ErrPoolStopped
	case p.submitCh <- req:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Drain stops accepting new submissions; in-flight requests finish.
func (p *WorkerPool) Drain() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
	slog.Info("Worker pool draining, no new submissions accepted")
}

// Draining reports whether new submissions are refused.
func (p *WorkerPool) Draining() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.draining
}

// Stop signals all workers to finish their current request and waits for
// them. Pending submissions in the buffer are abandoned.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	active := p.activeRequestIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active requests to complete",
			"count", len(active),
			"request_ids", active)
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// RegisterRequest stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterRequest(requestID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRequests[requestID] = cancel
}

// UnregisterRequest removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterRequest(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRequests, requestID)
}

// CancelRequest triggers context cancellation for an in-flight request.
// Returns true if the request was found and cancelled.
func (p *WorkerPool) CancelRequest(requestID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeRequests[requestID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns pool-wide health information.
func (p *WorkerPool) Health() PoolHealth {
	p.mu.RLock()
	active := len(p.activeRequests)
	p.mu.RUnlock()

	stats := make([]WorkerHealth, 0, len(p.workers))
	working := 0
	for _, w := range p.workers {
		h := w.Health()
		if h.Status == string(WorkerStatusWorking) {
			working++
		}
		stats = append(stats, h)
	}

	return PoolHealth{
		PodID:          p.podID,
		ActiveWorkers:  working,
		TotalWorkers:   len(p.workers),
		ActiveRequests: active,
		PendingSubmits: len(p.submitCh),
		WorkerStats:    stats,
	}
}

func (p *WorkerPool) activeRequestIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeRequests))
	for id := range p.activeRequests {
		ids = append(ids, id)
	}
	return ids
}
