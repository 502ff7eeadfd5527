package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/models"
	"github.com/codeready-toolchain/triago/pkg/notify"
	"github.com/codeready-toolchain/triago/pkg/queue"
	"github.com/codeready-toolchain/triago/pkg/routing"
	"github.com/codeready-toolchain/triago/pkg/stage"
)

// Routing strategies recorded on decisions made outside the scorer.
const (
	strategyWaitQueue     = "wait_queue"
	strategyQueueDispatch = "queue_dispatch"
)

// Router hands human-flagged requests to the assignment substrate. On a
// successful scoring pass the agent is committed immediately; otherwise
// the request joins the wait queue. An error means neither was possible.
type Router struct {
	configs  stage.ConfigProvider
	assigner *routing.Assigner
	dir      *directory.Directory
	wait     *queue.WaitQueue
	registry *Registry
	notifier *notify.Service
	logger   *slog.Logger
}

// NewRouter wires the routing substrate.
func NewRouter(configs stage.ConfigProvider, dir *directory.Directory, wait *queue.WaitQueue, registry *Registry, notifier *notify.Service) *Router {
	return &Router{
		configs:  configs,
		assigner: routing.NewAssigner(dir),
		dir:      dir,
		wait:     wait,
		registry: registry,
		notifier: notifier,
		logger:   slog.Default().With("component", "router"),
	}
}

// Route implements stage.Router. It records the routing stage duration
// itself: once the queue entry is visible the dispatcher may take over
// the request, so no writes may follow the enqueue.
func (r *Router) Route(ctx context.Context, req *models.Request) error {
	start := time.Now()
	cfg := r.configs.Current()
	input := routingInput(req)

	rctx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RoutingTimeout.Duration())
	decision, err := r.assigner.Assign(rctx, cfg, input)
	cancel()
	req.Telemetry.RecordStage(stage.StageRouting, time.Since(start))

	if err == nil {
		req.RoutingDecision = decision
		req.WorkflowStatus = models.WorkflowAssigned
		if t, ok := r.registry.lookup(req.RequestID); ok {
			t.mu.Lock()
			t.assignedAt = time.Now()
			t.refreshLocked()
			t.mu.Unlock()
		}
		r.notifier.NotifyAssigned(ctx, req, r.agentName(decision.AssignedAgentID))
		return nil
	}

	if ctx.Err() != nil {
		// Customer abandoned or the pipeline deadline fired.
		return ctx.Err()
	}

	var flags []string
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		flags = append(flags, FlagRoutingTimeout)
	case errors.Is(err, routing.ErrDirectoryUnavailable):
		flags = append(flags, FlagDegradedRouting)
	case errors.Is(err, routing.ErrNoEligibleAgent), errors.Is(err, routing.ErrContentionExhausted):
		// Normal wait-queue path.
	default:
		return fmt.Errorf("assignment: %w", err)
	}

	return r.enqueue(ctx, req, cfg.Thresholds.QueueOverflow, input, flags)
}

// enqueue parks the request in the wait queue. All request mutations
// happen before the entry becomes visible to the dispatcher.
func (r *Router) enqueue(ctx context.Context, req *models.Request, overflow int, input *routing.Input, flags []string) error {
	entry := &models.QueueEntry{
		EntryID:          uuid.NewString(),
		RequestID:        req.RequestID,
		Priority:         input.Priority,
		Complexity:       input.Complexity,
		RequiredSkills:   input.RequiredSkills,
		FrustrationLevel: input.FrustrationLevel,
		Language:         input.Language,
	}

	req.WorkflowStatus = models.WorkflowQueued
	req.RoutingDecision = &models.RoutingDecision{
		Strategy:       strategyWaitQueue,
		RequiredSkills: input.RequiredSkills,
		Priority:       input.Priority,
		Complexity:     input.Complexity,
	}
	t, ok := r.registry.lookup(req.RequestID)
	if ok {
		t.mu.Lock()
		t.entryID = entry.EntryID
		for _, f := range flags {
			t.addFlagLocked(f)
		}
		t.refreshLocked()
		t.mu.Unlock()
	}

	if _, err := r.wait.Enqueue(entry, overflow); err != nil {
		req.WorkflowStatus = models.WorkflowInProgress
		req.RoutingDecision = nil
		req.Telemetry.RecordError("queue_full")
		if ok {
			t.mu.Lock()
			t.entryID = ""
			t.addFlagLocked(FlagRejectedBackpressure)
			t.refreshLocked()
			t.mu.Unlock()
		}
		r.notifier.NotifyQueueOverflow(ctx, r.wait.Len(), overflow)
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (r *Router) agentName(agentID string) string {
	snap, err := r.dir.Snapshot(agentID)
	if err != nil || snap.Name == "" {
		return agentID
	}
	return snap.Name
}

// routingInput derives the scorer input from the request's assessments
// and caller-supplied hints.
func routingInput(req *models.Request) *routing.Input {
	input := &routing.Input{RequestID: req.RequestID}

	level := models.FrustrationLow
	if req.FrustrationAssessment != nil {
		level = req.FrustrationAssessment.Level
	}
	input.FrustrationLevel = level

	if req.ContextBundle != nil {
		input.RequiredSkills = req.ContextBundle.RequiredSkills
		input.Complexity = req.ContextBundle.ComplexityHint
	}
	if !input.Complexity.IsValid() {
		input.Complexity = models.ComplexityMedium
	}

	input.Language = req.AdditionalContext["language"]
	input.VIP = req.AdditionalContext["vip"] == "true"
	input.Timezone = req.AdditionalContext["timezone"]
	input.Priority = priorityFor(level, input.Complexity, req.AdditionalContext)
	return input
}

// priorityFor buckets urgency from the frustration level, explicit
// caller signals, and complexity.
func priorityFor(level models.FrustrationLevel, complexity models.Complexity, extra map[string]string) models.Priority {
	p := models.PriorityLow
	switch level {
	case models.FrustrationCritical:
		p = models.PriorityCritical
	case models.FrustrationHigh:
		p = models.PriorityHigh
	case models.FrustrationModerate:
		p = models.PriorityMedium
	}
	if complexity == models.ComplexityHigh {
		p = maxPriority(p, models.PriorityMedium)
	}
	if explicit := models.Priority(extra["priority"]); explicit.IsValid() {
		p = maxPriority(p, explicit)
	}
	return p
}

func maxPriority(a, b models.Priority) models.Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
