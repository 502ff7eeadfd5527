// Package queue provides the human-assignment wait queue and the pipeline
// worker pool.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrQueueFull indicates back-pressure rejected a low-priority entry.
	ErrQueueFull = errors.New("queue full")

	// ErrEntryNotFound indicates an unknown queue entry id.
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrEntryNotQueued indicates the entry already left the queued state.
	ErrEntryNotQueued = errors.New("queue entry not queued")

	// ErrPoolStopped indicates the worker pool no longer accepts work.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolSaturated indicates the submission buffer is full.
	ErrPoolSaturated = errors.New("worker pool saturated")
)

// Executor processes one request end to end. The executor owns the entire
// pipeline lifecycle for the request; the worker only handles claiming,
// cancellation registration, and health bookkeeping.
type Executor interface {
	Execute(ctx context.Context, req *models.Request)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	PodID          string         `json:"pod_id"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	ActiveRequests int            `json:"active_requests"`
	PendingSubmits int            `json:"pending_submits"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // "idle" or "working"
	CurrentRequestID  string    `json:"current_request_id,omitempty"`
	RequestsProcessed int       `json:"requests_processed"`
	LastActivity      time.Time `json:"last_activity"`
}
