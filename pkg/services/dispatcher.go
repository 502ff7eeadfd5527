package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/export"
	"github.com/codeready-toolchain/triago/pkg/models"
	"github.com/codeready-toolchain/triago/pkg/notify"
	"github.com/codeready-toolchain/triago/pkg/queue"
	"github.com/codeready-toolchain/triago/pkg/routing"
	"github.com/codeready-toolchain/triago/pkg/stage"
)

// Dispatcher hands waiting queue entries to agents as capacity frees up.
// It runs on completion and status-change events, never periodically.
type Dispatcher struct {
	configs  stage.ConfigProvider
	dir      *directory.Directory
	wait     *queue.WaitQueue
	registry *Registry
	notifier *notify.Service
	sink     export.Sink
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(configs stage.ConfigProvider, dir *directory.Directory, wait *queue.WaitQueue, registry *Registry, notifier *notify.Service, sink export.Sink) *Dispatcher {
	return &Dispatcher{
		configs:  configs,
		dir:      dir,
		wait:     wait,
		registry: registry,
		notifier: notifier,
		sink:     sink,
		logger:   slog.Default().With("component", "dispatcher"),
	}
}

// Dispatch assigns waiting entries to the named agent until the agent is
// at capacity or no eligible entry remains. Queue order is respected;
// entries the agent's hard filters exclude are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID string) {
	cfg := d.configs.Current()

	for {
		snap, err := d.dir.Snapshot(agentID)
		if err != nil || snap.AtCapacity() {
			return
		}
		switch snap.Status {
		case models.AgentAvailable, models.AgentBusy:
		default:
			return
		}

		entry := d.wait.PeekForAgent(snap, func(e *models.QueueEntry, a *models.AgentSnapshot) bool {
			return routing.Eligible(a, entryInput(e), cfg.Thresholds)
		})
		if entry == nil {
			return
		}

		token, err := d.dir.ClaimForAssignment(agentID)
		if err != nil {
			return
		}
		if err := d.dir.CommitAssignment(token, entry.RequestID); err != nil {
			d.dir.ReleaseAssignment(token)
			return
		}
		if err := d.wait.MarkAssigned(entry.EntryID, agentID); err != nil {
			// Lost to a concurrent cancellation; undo the workload
			// increment and keep going.
			d.undoAssignment(agentID, entry.RequestID)
			continue
		}

		d.finishAssignment(ctx, agentID, entry)
	}
}

// finishAssignment updates the request and its view after the queue and
// directory commits succeeded.
func (d *Dispatcher) finishAssignment(ctx context.Context, agentID string, entry *models.QueueEntry) {
	t, ok := d.registry.lookup(entry.RequestID)
	if !ok {
		d.logger.Warn("Assigned entry for untracked request",
			"request_id", entry.RequestID,
			"entry_id", entry.EntryID)
		return
	}

	t.mu.Lock()
	if t.cancelled {
		// The customer abandoned between peek and commit.
		t.mu.Unlock()
		d.undoAssignment(agentID, entry.RequestID)
		d.wait.Cancel(entry.EntryID)
		return
	}
	req := t.req
	req.WorkflowStatus = models.WorkflowAssigned
	req.RoutingDecision = &models.RoutingDecision{
		AssignedAgentID: agentID,
		Strategy:        strategyQueueDispatch,
		RequiredSkills:  entry.RequiredSkills,
		Priority:        entry.Priority,
		Complexity:      entry.Complexity,
	}
	t.assignedAt = time.Now()
	t.refreshLocked()
	exported := t.exported
	t.exported = true
	t.mu.Unlock()

	d.logger.Info("Queued request assigned",
		"request_id", entry.RequestID,
		"agent_id", agentID,
		"waited", time.Since(entry.EnqueuedAt).Round(time.Second))

	d.notifier.NotifyAssigned(ctx, req, d.agentName(agentID))
	if !exported {
		if err := d.sink.Export(ctx, req); err != nil {
			d.logger.Error("Telemetry export failed",
				"request_id", entry.RequestID,
				"error", err)
		}
	}
}

func (d *Dispatcher) undoAssignment(agentID, requestID string) {
	if err := d.dir.Unassign(agentID, requestID); err != nil {
		d.logger.Error("Failed to reverse assignment",
			"agent_id", agentID,
			"request_id", requestID,
			"error", err)
	}
}

func (d *Dispatcher) agentName(agentID string) string {
	snap, err := d.dir.Snapshot(agentID)
	if err != nil || snap.Name == "" {
		return agentID
	}
	return snap.Name
}

// entryInput reconstructs the scorer input captured when the entry was
// created.
func entryInput(e *models.QueueEntry) *routing.Input {
	return &routing.Input{
		RequestID:        e.RequestID,
		RequiredSkills:   e.RequiredSkills,
		Complexity:       e.Complexity,
		Priority:         e.Priority,
		FrustrationLevel: e.FrustrationLevel,
		Language:         e.Language,
	}
}
