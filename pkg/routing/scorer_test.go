package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	return cfg
}

func availableAgent(id string) models.AgentSnapshot {
	return models.AgentSnapshot{
		AgentIdentity: models.AgentIdentity{
			AgentID:              id,
			SkillTier:            models.TierIntermediate,
			Skills:               map[string]models.Proficiency{"billing": models.ProficiencyIntermediate},
			FrustrationTolerance: models.ToleranceMedium,
			MaxConcurrentCases:   3,
		},
		Status: models.AgentAvailable,
		Metrics: models.RollingMetrics{
			CustomerSatisfactionAvg:    4.0,
			AvgResolutionMinutes:       20,
			FirstContactResolutionRate: 0.8,
		},
	}
}

func TestHardFilterEliminatesOfflineAndFullAgents(t *testing.T) {
	cfg := testConfig(t)

	offline := availableAgent("offline")
	offline.Status = models.AgentOffline

	full := availableAgent("full")
	full.CurrentWorkload = full.MaxConcurrentCases

	scorer := NewScorer(cfg)
	_, err := scorer.Select(
		&Input{RequestID: "r1", Priority: models.PriorityMedium},
		[]models.AgentSnapshot{offline, full},
	)
	assert.ErrorIs(t, err, ErrNoEligibleAgent)
}

func TestHardFilterProtectsLowToleranceFromFrustratedCustomers(t *testing.T) {
	cfg := testConfig(t)

	fragile := availableAgent("fragile")
	fragile.FrustrationTolerance = models.ToleranceLow

	sturdy := availableAgent("sturdy")
	sturdy.FrustrationTolerance = models.ToleranceHigh

	scorer := NewScorer(cfg)
	res, err := scorer.Select(
		&Input{RequestID: "r1", Priority: models.PriorityHigh, FrustrationLevel: models.FrustrationHigh},
		[]models.AgentSnapshot{fragile, sturdy},
	)
	require.NoError(t, err)
	assert.Equal(t, "sturdy", res.Best.AgentID)
	assert.Equal(t, StrategyWellbeingProtection, res.Strategy)
}

func TestWellbeingFilterOverridesSkillAdvantage(t *testing.T) {
	// S4: the strongest-skill agent is cooling down from three straight
	// difficult cases; the weaker agent with clean wellbeing wins.
	cfg := testConfig(t)

	strong := availableAgent("strong")
	strong.Skills = map[string]models.Proficiency{"billing": models.ProficiencyExpert}
	strong.YearsExperience = 12
	strong.ConsecutiveDifficultCases = 3
	strong.LastDifficultCaseAt = time.Now().Add(-30 * time.Minute)
	strong.FrustrationTolerance = models.ToleranceHigh

	weak := availableAgent("weak")
	weak.Skills = map[string]models.Proficiency{"billing": models.ProficiencyBasic}

	scorer := NewScorer(cfg)
	res, err := scorer.Select(
		&Input{
			RequestID:        "r1",
			RequiredSkills:   []string{"billing"},
			Priority:         models.PriorityHigh,
			FrustrationLevel: models.FrustrationHigh,
		},
		[]models.AgentSnapshot{strong, weak},
	)
	require.NoError(t, err)
	assert.Equal(t, "weak", res.Best.AgentID)
	assert.Equal(t, StrategyWellbeingProtection, res.Strategy)
}

func TestLanguageRequirementFiltersNonSpeakers(t *testing.T) {
	cfg := testConfig(t)

	monoglot := availableAgent("monoglot")

	polyglot := availableAgent("polyglot")
	polyglot.Languages = map[string]models.Proficiency{"es": models.ProficiencyAdvanced}

	scorer := NewScorer(cfg)
	res, err := scorer.Select(
		&Input{RequestID: "r1", Priority: models.PriorityMedium, Language: "es"},
		[]models.AgentSnapshot{monoglot, polyglot},
	)
	require.NoError(t, err)
	assert.Equal(t, "polyglot", res.Best.AgentID)
	assert.Equal(t, StrategyBestMatch, res.Strategy)
}

func TestEmptyRequiredSkillsIsNeutral(t *testing.T) {
	agent := availableAgent("a")
	assert.Equal(t, 0.5, skillMatchScore(&agent, nil))
}

func TestSkillMatchRewardsExactOverPartial(t *testing.T) {
	exact := availableAgent("exact")
	exact.Skills = map[string]models.Proficiency{"billing": models.ProficiencyExpert}

	partial := availableAgent("partial")
	partial.Skills = map[string]models.Proficiency{"billing_support": models.ProficiencyExpert}

	none := availableAgent("none")
	none.Skills = map[string]models.Proficiency{"orders": models.ProficiencyExpert}

	req := []string{"billing"}
	exactScore := skillMatchScore(&exact, req)
	partialScore := skillMatchScore(&partial, req)
	noneScore := skillMatchScore(&none, req)

	assert.Greater(t, exactScore, partialScore)
	assert.Greater(t, partialScore, noneScore)
}

func TestTieBreaksFallBackToLexicographicAgentID(t *testing.T) {
	cfg := testConfig(t)

	a := availableAgent("alpha")
	b := availableAgent("beta")

	scorer := NewScorer(cfg)
	res, err := scorer.Select(
		&Input{RequestID: "r1", Priority: models.PriorityLow},
		[]models.AgentSnapshot{b, a},
	)
	require.NoError(t, err)
	assert.Equal(t, "alpha", res.Best.AgentID)
}

func TestLowerWorkloadWinsTies(t *testing.T) {
	heavier := Candidate{AgentID: "x", Composite: 0.7, Workload: 2}
	lighter := Candidate{AgentID: "y", Composite: 0.7, Workload: 1}
	assert.True(t, less(heavier, lighter))
	assert.False(t, less(lighter, heavier))
}

func TestConfidenceReflectsMargin(t *testing.T) {
	cfg := testConfig(t)

	leader := availableAgent("leader")
	leader.Skills = map[string]models.Proficiency{"billing": models.ProficiencyExpert}
	leader.YearsExperience = 10
	leader.Certified = true

	trailer := availableAgent("trailer")
	trailer.Skills = map[string]models.Proficiency{"orders": models.ProficiencyBasic}

	scorer := NewScorer(cfg)
	res, err := scorer.Select(
		&Input{RequestID: "r1", RequiredSkills: []string{"billing"}, Priority: models.PriorityMedium},
		[]models.AgentSnapshot{leader, trailer},
	)
	require.NoError(t, err)
	assert.Equal(t, "leader", res.Best.AgentID)
	assert.InDelta(t, res.Best.Composite-res.Ranked[1].Composite+0.5, res.Confidence, 1e-9)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestFallbacksAreCapped(t *testing.T) {
	cfg := testConfig(t)

	snaps := []models.AgentSnapshot{
		availableAgent("a"), availableAgent("b"), availableAgent("c"),
		availableAgent("d"), availableAgent("e"),
	}

	scorer := NewScorer(cfg)
	res, err := scorer.Select(&Input{RequestID: "r1", Priority: models.PriorityLow}, snaps)
	require.NoError(t, err)

	fallbacks := scorer.Fallbacks(res)
	assert.Len(t, fallbacks, cfg.Routing.FallbackRank)
	assert.NotContains(t, fallbacks, res.Best.AgentID)
}

func TestTrafficFractionIsDeterministic(t *testing.T) {
	f1 := trafficFraction("req-123")
	f2 := trafficFraction("req-123")
	assert.Equal(t, f1, f2)
	assert.GreaterOrEqual(t, f1, 0.0)
	assert.Less(t, f1, 1.0)
}
