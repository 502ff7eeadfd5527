package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// validConfig returns the built-in defaults as a runtime config, which
// must always validate.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := fromYAML(builtinConfig())
	require.NoError(t, NewValidator(cfg).ValidateAll())
	return cfg
}

func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Thresholds)
		wantMsg string
	}{
		{
			name:    "quality adequate out of range",
			mutate:  func(th *Thresholds) { th.QualityAdequate = 11 },
			wantMsg: "quality_adequate",
		},
		{
			name:    "adjust band above adequate",
			mutate:  func(th *Thresholds) { th.QualityAdjust = th.QualityAdequate + 1 },
			wantMsg: "quality_adjust",
		},
		{
			name:    "context relevance above one",
			mutate:  func(th *Thresholds) { th.ContextRelevance = 1.5 },
			wantMsg: "context_relevance",
		},
		{
			name:    "stress break zero",
			mutate:  func(th *Thresholds) { th.StressBreak = 0 },
			wantMsg: "stress_break",
		},
		{
			name:    "queue overflow zero",
			mutate:  func(th *Thresholds) { th.QueueOverflow = 0 },
			wantMsg: "queue_overflow",
		},
		{
			name:    "reselect attempts zero",
			mutate:  func(th *Thresholds) { th.ReselectAttempts = 0 },
			wantMsg: "reselect_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg.Thresholds)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateRoutingWeights(t *testing.T) {
	t.Run("row must sum to one", func(t *testing.T) {
		cfg := validConfig(t)
		row := cfg.Routing.Weights[models.PriorityHigh]
		row.SkillMatch += 0.2
		cfg.Routing.Weights[models.PriorityHigh] = row

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must sum to 1.0")
	})

	t.Run("missing priority row", func(t *testing.T) {
		cfg := validConfig(t)
		delete(cfg.Routing.Weights, models.PriorityCritical)

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing weight row")
	})

	t.Run("unknown priority key", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Routing.Weights[models.Priority("urgent")] = CategoryWeights{SkillMatch: 1}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown priority")
	})

	t.Run("experiment traffic fraction", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Routing.Experiments = []RoutingExperiment{{
			Name:            "skill-heavy",
			TrafficFraction: 1.5,
			Weights:         cfg.Routing.Weights,
		}}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "traffic_fraction")
	})
}

func TestValidateAutomation(t *testing.T) {
	t.Run("duplicate task id", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Automation.Tasks = append(cfg.Automation.Tasks, cfg.Automation.Tasks[0])

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate task id")
	})

	t.Run("non-escalating task needs a template", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Automation.Tasks = append(cfg.Automation.Tasks, TaskConfig{
			TaskID:          "broken",
			TriggerKeywords: []string{"broken"},
			SuccessRate:     0.5,
		})

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response template")
	})
}

func TestValidateAgents(t *testing.T) {
	t.Run("duplicate agent id", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Agents = []models.AgentIdentity{
			{AgentID: "a1", MaxConcurrentCases: 1},
			{AgentID: "a1", MaxConcurrentCases: 1},
		}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate agent id")
	})

	t.Run("invalid skill tier", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Agents = []models.AgentIdentity{
			{AgentID: "a1", SkillTier: "wizard", MaxConcurrentCases: 1},
		}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tier")
	})

	t.Run("capacity below one", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Agents = []models.AgentIdentity{{AgentID: "a1"}}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_concurrent_cases")
	})
}

func TestValidateExport(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Export.Backend = "kafka"

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be 'log' or 'postgres'")
	})

	t.Run("postgres backend requires settings", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Export.Backend = "postgres"
		cfg.Export.Postgres = &PostgresConfig{Host: "db", Database: "triago", Port: 99999}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})
}

func TestValidationErrorFormat(t *testing.T) {
	err := NewValidationError("agent", "a1", "skill_tier", ErrInvalidValue)
	assert.Contains(t, err.Error(), "agent 'a1'")
	assert.Contains(t, err.Error(), "skill_tier")
	assert.ErrorIs(t, err, ErrInvalidValue)
}
