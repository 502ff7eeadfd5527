package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/export"
	"github.com/codeready-toolchain/triago/pkg/models"
	"github.com/codeready-toolchain/triago/pkg/notify"
	"github.com/codeready-toolchain/triago/pkg/queue"
)

// SubmitInput contains the domain-level data needed to create a request.
// Transformed from the HTTP request by the handler.
type SubmitInput struct {
	UserID            string
	SessionID         string
	QueryText         string
	AdditionalContext map[string]string
}

// RequestService handles submission, status, cancellation, and human
// completion of requests.
type RequestService struct {
	pool       *queue.WorkerPool
	wait       *queue.WaitQueue
	dir        *directory.Directory
	registry   *Registry
	dispatcher *Dispatcher
	notifier   *notify.Service
	sink       export.Sink
	logger     *slog.Logger
}

// NewRequestService creates a new RequestService.
func NewRequestService(pool *queue.WorkerPool, wait *queue.WaitQueue, dir *directory.Directory, registry *Registry, dispatcher *Dispatcher, notifier *notify.Service, sink export.Sink) *RequestService {
	if pool == nil {
		panic("NewRequestService: pool must not be nil")
	}
	if wait == nil {
		panic("NewRequestService: wait queue must not be nil")
	}
	if dir == nil {
		panic("NewRequestService: directory must not be nil")
	}
	if registry == nil {
		panic("NewRequestService: registry must not be nil")
	}
	return &RequestService{
		pool:       pool,
		wait:       wait,
		dir:        dir,
		registry:   registry,
		dispatcher: dispatcher,
		notifier:   notifier,
		sink:       sink,
		logger:     slog.Default().With("component", "request-service"),
	}
}

// Submit validates the input, creates the request, and hands it to the
// worker pool. Returns queue.ErrPoolStopped while draining and
// queue.ErrPoolSaturated when the submission buffer is full.
func (s *RequestService) Submit(_ context.Context, input SubmitInput) (*models.Request, error) {
	if input.UserID == "" {
		return nil, NewValidationError("user_id", "user id is required")
	}
	if input.QueryText == "" {
		return nil, NewValidationError("query_text", "query text is required")
	}
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	req := &models.Request{
		RequestID:         uuid.NewString(),
		UserID:            input.UserID,
		SessionID:         sessionID,
		CreatedAt:         time.Now().UTC(),
		QueryText:         input.QueryText,
		AdditionalContext: input.AdditionalContext,
		WorkflowStatus:    models.WorkflowInProgress,
	}
	req.AppendMessage(models.RoleCustomer, input.QueryText)

	s.registry.Add(req)
	if err := s.pool.Submit(req); err != nil {
		s.registry.Remove(req.RequestID)
		return nil, err
	}

	s.logger.Info("Request submitted",
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"session_id", sessionID)
	return req, nil
}

// Status returns the current view of a request, with live queue position
// and assignment estimate while the request is waiting.
func (s *RequestService) Status(requestID string) (*StatusView, error) {
	t, ok := s.registry.lookup(requestID)
	if !ok {
		return nil, ErrRequestNotFound
	}

	t.mu.Lock()
	view := t.view
	view.Flags = append([]string(nil), t.flags...)
	entryID := t.entryID
	t.mu.Unlock()

	if view.Status == models.WorkflowQueued && entryID != "" {
		if entry, err := s.wait.Entry(entryID); err == nil {
			view.QueuePosition = entry.Position
			view.EstimatedAssignmentAt = entry.EstimatedAssignmentAt
		}
	}
	return &view, nil
}

// Cancel abandons a request on the customer's behalf. Idempotent: only
// the first call has any effect. In-flight pipeline work is interrupted,
// a waiting queue entry is removed, and an assigned agent is released
// and notified.
func (s *RequestService) Cancel(ctx context.Context, requestID string) error {
	t, ok := s.registry.lookup(requestID)
	if !ok {
		return ErrRequestNotFound
	}

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return nil
	}
	t.cancelled = true
	status := t.view.Status
	entryID := t.entryID
	agentID := t.view.AssignedAgentID
	completed := t.completed
	t.mu.Unlock()

	switch status {
	case models.WorkflowInProgress:
		// The worker abandons the request at the next stage boundary
		// and settles the view.
		s.pool.CancelRequest(requestID)

		// The worker may have enqueued between the status read above
		// and the cancellation; sweep the entry if so.
		t.mu.Lock()
		entryID = t.entryID
		t.mu.Unlock()
		if entryID != "" {
			s.wait.Cancel(entryID)
		}

	case models.WorkflowQueued:
		s.wait.Cancel(entryID)
		t.mu.Lock()
		t.req.WorkflowStatus = models.WorkflowAbandoned
		t.refreshLocked()
		req := t.req
		exported := t.exported
		t.exported = true
		t.mu.Unlock()
		if !exported {
			s.export(ctx, req)
		}

	case models.WorkflowAssigned:
		if completed {
			// The human already finished; nothing to release.
			break
		}
		t.mu.Lock()
		t.completed = true
		assignedAt := t.assignedAt
		t.req.WorkflowStatus = models.WorkflowAbandoned
		t.refreshLocked()
		req := t.req
		t.mu.Unlock()

		if err := s.dir.UpdateOnCompletion(agentID, models.CompletionOutcome{
			RequestID:         requestID,
			Outcome:           models.OutcomeCancelled,
			ResolutionMinutes: time.Since(assignedAt).Minutes(),
		}); err != nil {
			s.logger.Error("Failed to release agent on cancel",
				"request_id", requestID,
				"agent_id", agentID,
				"error", err)
		}
		s.notifier.NotifyCancelled(ctx, requestID, agentID)
		s.export(ctx, req)
		s.dispatcher.Dispatch(ctx, agentID)
	}

	s.logger.Info("Request cancelled",
		"request_id", requestID,
		"status_at_cancel", status)
	return nil
}

// HumanComplete records the human resolution of an assigned request and
// frees the agent. Repeated calls after the first are no-ops.
func (s *RequestService) HumanComplete(ctx context.Context, requestID string, satisfactionRating float64, escalated bool) error {
	if satisfactionRating < 1 || satisfactionRating > 5 {
		return NewValidationError("satisfaction_rating", "rating must be between 1 and 5")
	}

	t, ok := s.registry.lookup(requestID)
	if !ok {
		return ErrRequestNotFound
	}

	t.mu.Lock()
	if t.completed {
		t.mu.Unlock()
		return nil
	}
	if t.view.Status != models.WorkflowAssigned || t.view.AssignedAgentID == "" {
		t.mu.Unlock()
		return ErrNotAssigned
	}
	t.completed = true
	agentID := t.view.AssignedAgentID
	assignedAt := t.assignedAt
	difficult := isDifficult(t.req)
	priority := models.PriorityLow
	if t.req.RoutingDecision != nil {
		priority = t.req.RoutingDecision.Priority
	}
	t.addFlagLocked(FlagHumanCompleted)
	t.mu.Unlock()

	outcome := models.CompletionOutcome{
		RequestID:          requestID,
		Outcome:            models.OutcomeCompleted,
		SatisfactionRating: satisfactionRating,
		ResolutionMinutes:  time.Since(assignedAt).Minutes(),
		FirstContact:       !escalated,
		Difficult:          difficult,
	}
	if escalated {
		outcome.Outcome = models.OutcomeEscalated
	}

	if err := s.dir.UpdateOnCompletion(agentID, outcome); err != nil {
		return err
	}
	s.wait.RecordServiceTime(priority, time.Since(assignedAt))

	s.logger.Info("Human completion recorded",
		"request_id", requestID,
		"agent_id", agentID,
		"outcome", outcome.Outcome,
		"difficult", difficult)

	// The agent freed capacity; hand them the next waiting entry.
	s.dispatcher.Dispatch(ctx, agentID)
	return nil
}

func (s *RequestService) export(ctx context.Context, req *models.Request) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Export(context.WithoutCancel(ctx), req); err != nil {
		s.logger.Error("Telemetry export failed",
			"request_id", req.RequestID,
			"error", err)
	}
}

// isDifficult applies the difficult-case rule: frustration at HIGH or
// above, or high complexity.
func isDifficult(req *models.Request) bool {
	if req.FrustrationAssessment != nil && req.FrustrationAssessment.Level.AtLeast(models.FrustrationHigh) {
		return true
	}
	return req.ContextBundle != nil && req.ContextBundle.ComplexityHint == models.ComplexityHigh
}

// SystemStatus is the operator view of the running system.
type SystemStatus struct {
	InFlight    int                        `json:"in_flight"`
	QueueLength int                        `json:"queue_length"`
	QueueDepth  map[models.Priority]int    `json:"queue_depth"`
	Agents      map[models.AgentStatus]int `json:"agents"`
	Pool        queue.PoolHealth           `json:"pool"`
	Draining    bool                       `json:"draining"`
}

// SystemStatus reports in-flight counts, queue depth per priority, and
// agent state counts.
func (s *RequestService) SystemStatus() SystemStatus {
	return SystemStatus{
		InFlight:    s.registry.InFlight(),
		QueueLength: s.wait.Len(),
		QueueDepth:  s.wait.DepthByPriority(),
		Agents:      s.dir.StatusCounts(),
		Pool:        s.pool.Health(),
		Draining:    s.pool.Draining(),
	}
}

// Drain stops accepting new submissions; in-flight requests finish.
func (s *RequestService) Drain() {
	s.pool.Drain()
	s.logger.Info("Submission intake drained")
}
