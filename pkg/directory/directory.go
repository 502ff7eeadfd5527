// Package directory holds the human agent directory: immutable identity
// plus mutable real-time state. All writes go through per-agent exclusive
// sections; assignment commits use a short-lived claim token so that
// "queued → assigned" and the workload increment form one atomic action.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// claimTTL bounds how long an assignment claim stays exclusive before a
// crashed scorer's claim expires.
const claimTTL = 5 * time.Second

// ewmaAlpha is the smoothing factor for rolling satisfaction and
// resolution-time averages.
const ewmaAlpha = 0.2

var (
	// ErrAgentNotFound indicates an unknown agent id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrClaimRejected indicates the agent cannot currently be claimed
	// (already claimed, offline, or at capacity).
	ErrClaimRejected = errors.New("claim rejected")

	// ErrInvalidClaim indicates an unknown or expired claim token.
	ErrInvalidClaim = errors.New("invalid claim token")
)

// record is one agent's directory entry. The embedded mutex serializes
// all real-time state changes for this agent, including the stress tick.
type record struct {
	mu sync.Mutex

	identity models.AgentIdentity

	status      models.AgentStatus
	statusSince time.Time
	workload    int

	consecutiveDifficult int
	lastDifficultAt      time.Time
	lastBreakAt          time.Time
	lastAssignmentAt     time.Time
	recentDifficult      []time.Time // difficult-case completions, pruned by window
	shiftStart           time.Time

	metrics        models.RollingMetrics
	totalCompleted int
	totalEscalated int
	firstContact   int

	stress           float64
	forcedBreakUntil time.Time

	claimToken   string
	claimExpires time.Time
}

// Directory is the in-process agent directory.
type Directory struct {
	mu      sync.RWMutex
	records map[string]*record
	claims  map[string]string // claim token → agent id
	logger  *slog.Logger
}

// New builds a directory from identity seeds; every agent starts available.
func New(seeds []models.AgentIdentity) *Directory {
	d := &Directory{
		records: make(map[string]*record, len(seeds)),
		claims:  make(map[string]string),
		logger:  slog.Default().With("component", "directory"),
	}
	now := time.Now()
	for _, id := range seeds {
		d.records[id.AgentID] = &record{
			identity:    id,
			status:      models.AgentAvailable,
			statusSince: now,
			lastBreakAt: now,
			shiftStart:  now,
			metrics: models.RollingMetrics{
				CustomerSatisfactionAvg:    4.0,
				AvgResolutionMinutes:       20,
				FirstContactResolutionRate: 0.8,
			},
		}
	}
	return d
}

// SnapshotAll returns a consistent per-agent snapshot of every record.
// Snapshots are consistent per agent but not across agents.
func (d *Directory) SnapshotAll(_ context.Context) ([]models.AgentSnapshot, error) {
	d.mu.RLock()
	records := make([]*record, 0, len(d.records))
	for _, r := range d.records {
		records = append(records, r)
	}
	d.mu.RUnlock()

	snaps := make([]models.AgentSnapshot, 0, len(records))
	for _, r := range records {
		r.mu.Lock()
		snaps = append(snaps, r.snapshotLocked())
		r.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].AgentID < snaps[j].AgentID })
	return snaps, nil
}

// Snapshot returns the snapshot of one agent.
func (d *Directory) Snapshot(agentID string) (*models.AgentSnapshot, error) {
	r, err := d.record(agentID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshotLocked()
	return &snap, nil
}

func (r *record) snapshotLocked() models.AgentSnapshot {
	return models.AgentSnapshot{
		AgentIdentity:             r.identity,
		Status:                    r.status,
		StatusSince:               r.statusSince,
		CurrentWorkload:           r.workload,
		ConsecutiveDifficultCases: r.consecutiveDifficult,
		LastDifficultCaseAt:       r.lastDifficultAt,
		LastBreakAt:               r.lastBreakAt,
		LastAssignmentAt:          r.lastAssignmentAt,
		Metrics:                   r.metrics,
		StressScore:               r.stress,
	}
}

// ClaimForAssignment takes a short-lived exclusive claim on an agent.
// The hard-filter conditions that can change between snapshot and commit
// (offline, at capacity) are re-checked here.
func (d *Directory) ClaimForAssignment(agentID string) (string, error) {
	r, err := d.record(agentID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.claimToken != "" && now.Before(r.claimExpires) {
		return "", fmt.Errorf("%w: agent %s already claimed", ErrClaimRejected, agentID)
	}
	if r.status == models.AgentOffline || r.status == models.AgentBreak {
		return "", fmt.Errorf("%w: agent %s is %s", ErrClaimRejected, agentID, r.status)
	}
	if r.workload >= r.identity.MaxConcurrentCases {
		return "", fmt.Errorf("%w: agent %s at capacity", ErrClaimRejected, agentID)
	}

	token := uuid.NewString()
	r.claimToken = token
	r.claimExpires = now.Add(claimTTL)

	d.mu.Lock()
	d.claims[token] = agentID
	d.mu.Unlock()

	return token, nil
}

// CommitAssignment atomically completes the claimed assignment: the
// workload increment happens under the same per-agent lock that granted
// the claim.
func (d *Directory) CommitAssignment(token, requestID string) error {
	r, err := d.claimedRecord(token)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claimToken != token || time.Now().After(r.claimExpires) {
		d.dropClaim(token)
		return fmt.Errorf("%w: expired or superseded", ErrInvalidClaim)
	}

	r.workload++
	r.lastAssignmentAt = time.Now()
	if r.status == models.AgentAvailable {
		r.setStatusLocked(models.AgentBusy)
	}
	r.claimToken = ""
	d.dropClaim(token)

	d.logger.Info("Assignment committed",
		"agent_id", r.identity.AgentID,
		"request_id", requestID,
		"workload", r.workload)
	return nil
}

// ReleaseAssignment aborts a claim without committing.
func (d *Directory) ReleaseAssignment(token string) {
	r, err := d.claimedRecord(token)
	if err != nil {
		return
	}
	r.mu.Lock()
	if r.claimToken == token {
		r.claimToken = ""
	}
	r.mu.Unlock()
	d.dropClaim(token)
}

// Unassign reverses a committed assignment that never reached the agent,
// restoring workload and status without touching rolling metrics or the
// difficult-case counters.
func (d *Directory) Unassign(agentID, requestID string) error {
	r, err := d.record(agentID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.workload > 0 {
		r.workload--
	}
	if r.workload == 0 && r.status == models.AgentBusy {
		r.setStatusLocked(models.AgentAvailable)
	}

	d.logger.Info("Assignment reversed",
		"agent_id", agentID,
		"request_id", requestID,
		"workload", r.workload)
	return nil
}

// UpdateOnCompletion applies rolling-metric updates when an assignment
// terminates. Consecutive difficult cases increment iff the case was
// difficult, else reset to zero.
func (d *Directory) UpdateOnCompletion(agentID string, outcome models.CompletionOutcome) error {
	r, err := d.record(agentID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.workload > 0 {
		r.workload--
	}

	r.totalCompleted++
	if outcome.Outcome == models.OutcomeEscalated {
		r.totalEscalated++
	}
	if outcome.FirstContact {
		r.firstContact++
	}

	if outcome.SatisfactionRating > 0 {
		r.metrics.CustomerSatisfactionAvg = ewma(r.metrics.CustomerSatisfactionAvg, outcome.SatisfactionRating)
	}
	if outcome.ResolutionMinutes > 0 {
		r.metrics.AvgResolutionMinutes = ewma(r.metrics.AvgResolutionMinutes, outcome.ResolutionMinutes)
	}
	r.metrics.EscalationRate = float64(r.totalEscalated) / float64(r.totalCompleted)
	r.metrics.FirstContactResolutionRate = float64(r.firstContact) / float64(r.totalCompleted)

	now := time.Now()
	if outcome.Difficult {
		r.consecutiveDifficult++
		r.lastDifficultAt = now
		r.recentDifficult = append(r.recentDifficult, now)
	} else {
		r.consecutiveDifficult = 0
	}

	if r.workload == 0 && r.status == models.AgentBusy {
		r.setStatusLocked(models.AgentAvailable)
	}

	d.logger.Info("Assignment completed",
		"agent_id", agentID,
		"request_id", outcome.RequestID,
		"outcome", outcome.Outcome,
		"difficult", outcome.Difficult,
		"consecutive_difficult", r.consecutiveDifficult)
	return nil
}

// SetStatus changes an agent's availability state.
func (d *Directory) SetStatus(agentID string, status models.AgentStatus, reason string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	r, err := d.record(agentID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.status
	r.setStatusLocked(status)
	d.logger.Info("Agent status changed",
		"agent_id", agentID, "from", prev, "to", status, "reason", reason)
	return nil
}

// StatusCounts returns the number of agents per status.
func (d *Directory) StatusCounts() map[models.AgentStatus]int {
	d.mu.RLock()
	records := make([]*record, 0, len(d.records))
	for _, r := range d.records {
		records = append(records, r)
	}
	d.mu.RUnlock()

	counts := make(map[models.AgentStatus]int)
	for _, r := range records {
		r.mu.Lock()
		counts[r.status]++
		r.mu.Unlock()
	}
	return counts
}

func (r *record) setStatusLocked(status models.AgentStatus) {
	if r.status == status {
		return
	}
	if status == models.AgentBreak {
		r.lastBreakAt = time.Now()
	}
	r.status = status
	r.statusSince = time.Now()
}

func (d *Directory) record(agentID string) (*record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return r, nil
}

func (d *Directory) claimedRecord(token string) (*record, error) {
	d.mu.RLock()
	agentID, ok := d.claims[token]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", ErrInvalidClaim)
	}
	return d.record(agentID)
}

func (d *Directory) dropClaim(token string) {
	d.mu.Lock()
	delete(d.claims, token)
	d.mu.Unlock()
}

func ewma(prev, sample float64) float64 {
	if prev == 0 {
		return sample
	}
	return (1-ewmaAlpha)*prev + ewmaAlpha*sample
}
