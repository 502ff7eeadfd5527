// Package services implements the request-facing operations on top of
// the pipeline, queue, directory, and notification substrates: submit,
// status, cancel, human completion, and the queue dispatcher.
package services

import (
	"slices"
	"sync"
	"time"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// Status flags surfaced on status views.
const (
	FlagRoutingTimeout       = "routing_timeout"
	FlagDegradedRouting      = "degraded_routing"
	FlagRejectedBackpressure = "rejected_backpressure"
	FlagHumanCompleted       = "human_completed"
)

// StatusView is the externally visible state of a request. It is built
// from the request at ownership-transfer points so that readers never
// touch a request a pipeline worker is still mutating.
type StatusView struct {
	RequestID             string                `json:"request_id"`
	Status                models.WorkflowStatus `json:"status"`
	FinalResponse         string                `json:"final_response,omitempty"`
	AssignedAgentID       string                `json:"assigned_agent_id,omitempty"`
	QueuePosition         int                   `json:"queue_position,omitempty"`
	EstimatedAssignmentAt time.Time             `json:"estimated_assignment_at,omitzero"`
	Flags                 []string              `json:"flags,omitempty"`
}

// tracked is the registry's bookkeeping for one request. The mutex
// guards the view, the flags, and all reads or writes of the request
// object once the pipeline worker has stopped writing it.
type tracked struct {
	mu sync.Mutex

	req        *models.Request
	view       StatusView
	entryID    string
	flags      []string
	assignedAt time.Time
	cancelled  bool
	completed  bool
	exported   bool
}

// refreshLocked rebuilds the view from the request. Caller holds t.mu
// and guarantees the request is not being written by a worker.
func (t *tracked) refreshLocked() {
	v := StatusView{
		RequestID:     t.req.RequestID,
		Status:        t.req.WorkflowStatus,
		FinalResponse: t.req.FinalResponse,
		Flags:         t.flags,
	}
	if rd := t.req.RoutingDecision; rd != nil {
		v.AssignedAgentID = rd.AssignedAgentID
	}
	t.view = v
}

func (t *tracked) addFlagLocked(flag string) {
	if !slices.Contains(t.flags, flag) {
		t.flags = append(t.flags, flag)
	}
	t.view.Flags = t.flags
}

// Registry tracks every request the system has accepted, keyed by id.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*tracked
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*tracked)}
}

// Add registers a freshly submitted request.
func (r *Registry) Add(req *models.Request) *tracked {
	t := &tracked{
		req: req,
		view: StatusView{
			RequestID: req.RequestID,
			Status:    models.WorkflowInProgress,
		},
	}
	r.mu.Lock()
	r.byID[req.RequestID] = t
	r.mu.Unlock()
	return t
}

// Remove drops a request that was never handed to the pool.
func (r *Registry) Remove(requestID string) {
	r.mu.Lock()
	delete(r.byID, requestID)
	r.mu.Unlock()
}

func (r *Registry) lookup(requestID string) (*tracked, bool) {
	r.mu.RLock()
	t, ok := r.byID[requestID]
	r.mu.RUnlock()
	return t, ok
}

// View returns a copy of the current status view.
func (r *Registry) View(requestID string) (StatusView, error) {
	t, ok := r.lookup(requestID)
	if !ok {
		return StatusView{}, ErrRequestNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.view
	v.Flags = slices.Clone(t.flags)
	return v, nil
}

// InFlight counts requests still being processed or waiting for an agent.
func (r *Registry) InFlight() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.byID {
		t.mu.Lock()
		switch t.view.Status {
		case models.WorkflowInProgress, models.WorkflowQueued:
			n++
		}
		t.mu.Unlock()
	}
	return n
}
