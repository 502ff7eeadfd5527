package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

func seedAgents() []models.AgentIdentity {
	return []models.AgentIdentity{
		{
			AgentID:              "agent-a",
			Name:                 "Dana",
			SkillTier:            models.TierSenior,
			Skills:               map[string]models.Proficiency{"billing": models.ProficiencyAdvanced},
			FrustrationTolerance: models.ToleranceHigh,
			MaxConcurrentCases:   2,
		},
		{
			AgentID:              "agent-b",
			Name:                 "Robin",
			SkillTier:            models.TierJunior,
			Skills:               map[string]models.Proficiency{"orders": models.ProficiencyBasic},
			FrustrationTolerance: models.ToleranceLow,
			MaxConcurrentCases:   1,
		},
	}
}

func TestClaimCommitIncrementsWorkloadAtomically(t *testing.T) {
	dir := New(seedAgents())

	token, err := dir.ClaimForAssignment("agent-a")
	require.NoError(t, err)

	require.NoError(t, dir.CommitAssignment(token, "req-1"))

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentWorkload)
	assert.Equal(t, models.AgentBusy, snap.Status)
}

func TestClaimIsExclusive(t *testing.T) {
	dir := New(seedAgents())

	_, err := dir.ClaimForAssignment("agent-a")
	require.NoError(t, err)

	_, err = dir.ClaimForAssignment("agent-a")
	assert.ErrorIs(t, err, ErrClaimRejected)
}

func TestClaimRejectedAtCapacity(t *testing.T) {
	dir := New(seedAgents())

	token, err := dir.ClaimForAssignment("agent-b")
	require.NoError(t, err)
	require.NoError(t, dir.CommitAssignment(token, "req-1"))

	_, err = dir.ClaimForAssignment("agent-b")
	assert.ErrorIs(t, err, ErrClaimRejected)
}

func TestWorkloadNeverExceedsCapacityUnderContention(t *testing.T) {
	dir := New(seedAgents())

	var wg sync.WaitGroup
	committed := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := dir.ClaimForAssignment("agent-a")
			if err != nil {
				return
			}
			if err := dir.CommitAssignment(token, "req"); err == nil {
				committed <- token
			}
		}()
	}
	wg.Wait()
	close(committed)

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.CurrentWorkload, snap.MaxConcurrentCases)
	assert.Equal(t, len(committed), snap.CurrentWorkload)
}

func TestReleaseAssignmentFreesClaim(t *testing.T) {
	dir := New(seedAgents())

	token, err := dir.ClaimForAssignment("agent-a")
	require.NoError(t, err)
	dir.ReleaseAssignment(token)

	_, err = dir.ClaimForAssignment("agent-a")
	assert.NoError(t, err)

	assert.ErrorIs(t, dir.CommitAssignment(token, "req"), ErrInvalidClaim)
}

func TestUpdateOnCompletionRollsMetrics(t *testing.T) {
	dir := New(seedAgents())

	token, err := dir.ClaimForAssignment("agent-a")
	require.NoError(t, err)
	require.NoError(t, dir.CommitAssignment(token, "req-1"))

	require.NoError(t, dir.UpdateOnCompletion("agent-a", models.CompletionOutcome{
		RequestID:          "req-1",
		Outcome:            models.OutcomeCompleted,
		SatisfactionRating: 5,
		ResolutionMinutes:  10,
		FirstContact:       true,
		Difficult:          true,
	}))

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentWorkload)
	assert.Equal(t, models.AgentAvailable, snap.Status)
	assert.Equal(t, 1, snap.ConsecutiveDifficultCases)
	assert.False(t, snap.LastDifficultCaseAt.IsZero())
	assert.InDelta(t, 0.2*5+0.8*4.0, snap.Metrics.CustomerSatisfactionAvg, 1e-9)
	assert.Equal(t, 0.0, snap.Metrics.EscalationRate)
	assert.Equal(t, 1.0, snap.Metrics.FirstContactResolutionRate)
}

func TestConsecutiveDifficultResetsOnEasyCase(t *testing.T) {
	dir := New(seedAgents())

	for _, difficult := range []bool{true, true, false} {
		token, err := dir.ClaimForAssignment("agent-a")
		require.NoError(t, err)
		require.NoError(t, dir.CommitAssignment(token, "req"))
		require.NoError(t, dir.UpdateOnCompletion("agent-a", models.CompletionOutcome{
			Outcome:            models.OutcomeCompleted,
			SatisfactionRating: 4,
			ResolutionMinutes:  15,
			Difficult:          difficult,
		}))
	}

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.ConsecutiveDifficultCases)
}

func TestEscalationRateCountsEscalatedOverTotal(t *testing.T) {
	dir := New(seedAgents())

	outcomes := []models.AssignmentOutcome{
		models.OutcomeCompleted, models.OutcomeEscalated,
		models.OutcomeCompleted, models.OutcomeEscalated,
	}
	for _, o := range outcomes {
		token, err := dir.ClaimForAssignment("agent-a")
		require.NoError(t, err)
		require.NoError(t, dir.CommitAssignment(token, "req"))
		require.NoError(t, dir.UpdateOnCompletion("agent-a", models.CompletionOutcome{Outcome: o}))
	}

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.Metrics.EscalationRate, 1e-9)
}

func TestSetStatusRecordsBreakTime(t *testing.T) {
	dir := New(seedAgents())
	before := time.Now()

	require.NoError(t, dir.SetStatus("agent-a", models.AgentBreak, "lunch"))

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Equal(t, models.AgentBreak, snap.Status)
	assert.False(t, snap.LastBreakAt.Before(before))

	assert.Error(t, dir.SetStatus("agent-a", models.AgentStatus("napping"), ""))
}

func TestSnapshotAllIsSortedAndComplete(t *testing.T) {
	dir := New(seedAgents())

	snaps, err := dir.SnapshotAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "agent-a", snaps[0].AgentID)
	assert.Equal(t, "agent-b", snaps[1].AgentID)
}

func TestUnknownAgentErrors(t *testing.T) {
	dir := New(seedAgents())

	_, err := dir.ClaimForAssignment("nobody")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	err = dir.UpdateOnCompletion("nobody", models.CompletionOutcome{})
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}

func TestStressTickForcesBreakAboveThreshold(t *testing.T) {
	dir := New(seedAgents())
	th := config.Thresholds{
		StressBreak:      0.5,
		MinBreakMinutes:  10,
		StressTickPeriod: config.Duration(time.Minute),
	}
	ticker := NewStressTicker(dir, func() config.Thresholds { return th })

	// Load the agent up with difficult work.
	r, err := dir.record("agent-a")
	require.NoError(t, err)
	r.mu.Lock()
	r.workload = 2
	r.consecutiveDifficult = 4
	now := time.Now()
	r.recentDifficult = []time.Time{now.Add(-10 * time.Minute), now.Add(-20 * time.Minute), now.Add(-30 * time.Minute)}
	r.lastBreakAt = now.Add(-5 * time.Hour)
	r.shiftStart = now.Add(-9 * time.Hour)
	r.mu.Unlock()

	ticker.Tick()

	snap, err := dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Greater(t, snap.StressScore, th.StressBreak)
	assert.Equal(t, models.AgentBreak, snap.Status)

	// The forced break holds for the minimum duration even if stress drops.
	r.mu.Lock()
	r.workload = 0
	r.consecutiveDifficult = 0
	r.recentDifficult = nil
	r.lastBreakAt = now
	r.shiftStart = now
	r.mu.Unlock()

	ticker.Tick()
	snap, err = dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Equal(t, models.AgentBreak, snap.Status)

	// Once the minimum has elapsed and stress is low, the agent returns.
	r.mu.Lock()
	r.forcedBreakUntil = now.Add(-time.Minute)
	r.mu.Unlock()

	ticker.Tick()
	snap, err = dir.Snapshot("agent-a")
	require.NoError(t, err)
	assert.Equal(t, models.AgentAvailable, snap.Status)
}
