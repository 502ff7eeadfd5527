package services

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/export"
	"github.com/codeready-toolchain/triago/pkg/models"
	"github.com/codeready-toolchain/triago/pkg/notify"
	"github.com/codeready-toolchain/triago/pkg/stage"
)

// PipelineExecutor runs the stage pipeline for one request and settles
// the registry view when the worker is done with it. Implements
// queue.Executor.
type PipelineExecutor struct {
	pipeline *stage.Pipeline
	registry *Registry
	dir      *directory.Directory
	notifier *notify.Service
	sink     export.Sink
	logger   *slog.Logger
}

// NewPipelineExecutor wires the executor.
func NewPipelineExecutor(pipeline *stage.Pipeline, registry *Registry, dir *directory.Directory, notifier *notify.Service, sink export.Sink) *PipelineExecutor {
	return &PipelineExecutor{
		pipeline: pipeline,
		registry: registry,
		dir:      dir,
		notifier: notifier,
		sink:     sink,
		logger:   slog.Default().With("component", "executor"),
	}
}

// Execute processes the request end to end and publishes the resulting
// view. Terminal requests are exported exactly once; queued requests are
// exported later, when the dispatcher assigns them.
func (e *PipelineExecutor) Execute(ctx context.Context, req *models.Request) {
	t, ok := e.registry.lookup(req.RequestID)
	if !ok {
		e.logger.Warn("Executed untracked request", "request_id", req.RequestID)
		return
	}

	// A cancellation that arrived while the request sat in the submit
	// buffer never reached a worker context; honor it here.
	t.mu.Lock()
	cancelled := t.cancelled
	t.mu.Unlock()
	if cancelled {
		req.WorkflowStatus = models.WorkflowAbandoned
	} else {
		e.pipeline.Execute(ctx, req)
	}

	t.mu.Lock()
	// A cancel that landed after the routing commit saw an in-progress
	// view and could not release the agent; do it now.
	releaseAgent := ""
	if t.cancelled && !t.completed && req.WorkflowStatus == models.WorkflowAssigned &&
		req.RoutingDecision != nil {
		t.completed = true
		releaseAgent = req.RoutingDecision.AssignedAgentID
		req.WorkflowStatus = models.WorkflowAbandoned
	}
	t.refreshLocked()
	shouldExport := req.WorkflowStatus.Terminal() && !t.exported
	if shouldExport {
		t.exported = true
	}
	t.mu.Unlock()

	if releaseAgent != "" {
		if err := e.dir.UpdateOnCompletion(releaseAgent, models.CompletionOutcome{
			RequestID: req.RequestID,
			Outcome:   models.OutcomeCancelled,
		}); err != nil {
			e.logger.Error("Failed to release agent after cancelled assignment",
				"request_id", req.RequestID,
				"agent_id", releaseAgent,
				"error", err)
		}
		e.notifier.NotifyCancelled(ctx, req.RequestID, releaseAgent)
	}

	if shouldExport {
		// The worker context may already be cancelled (abandonment);
		// export with a fresh context.
		if err := e.sink.Export(context.WithoutCancel(ctx), req); err != nil {
			e.logger.Error("Telemetry export failed",
				"request_id", req.RequestID,
				"error", err)
		}
	}
}
