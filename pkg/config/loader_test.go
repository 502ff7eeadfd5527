package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/models"
)

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInitializeDefaultsWhenNoFile(t *testing.T) {
	ctx := context.Background()
	cfg, err := Initialize(ctx, t.TempDir())

	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Built-in defaults apply end to end.
	assert.Equal(t, 7.0, cfg.Thresholds.QualityAdequate)
	assert.Equal(t, Duration(30*time.Second), cfg.Pipeline.StageTimeout)
	assert.Equal(t, "log", cfg.Export.Backend)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Empty(t, cfg.Agents)

	// All four priority rows are present and normalized.
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical} {
		row, ok := cfg.Routing.Weights[p]
		require.True(t, ok, "missing weight row for %s", p)
		assert.InDelta(t, 1.0, row.Sum(), weightSumTolerance)
	}

	stats := cfg.Stats()
	assert.Greater(t, stats.Tasks, 0)
	assert.Greater(t, stats.LexiconCategories, 0)
	assert.Equal(t, 4, stats.WeightRows)
}

func TestInitializeUserValuesWinOverDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
thresholds:
  quality_adequate: 8.5
  queue_overflow: 50
queue:
  worker_count: 2
agents:
  - agent_id: agent-1
    name: Dana
    skill_tier: senior
    frustration_tolerance: HIGH
    max_concurrent_cases: 3
    skills:
      billing: expert
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// User-supplied values override built-ins.
	assert.Equal(t, 8.5, cfg.Thresholds.QualityAdequate)
	assert.Equal(t, 50, cfg.Thresholds.QueueOverflow)
	assert.Equal(t, 2, cfg.Queue.WorkerCount)

	// Omitted values fall back to built-ins.
	assert.Equal(t, 2, cfg.Thresholds.QualityMaxAdjust)
	assert.Equal(t, 256, cfg.Queue.SubmitBuffer)
	assert.NotEmpty(t, cfg.Frustration.Lexicon)
	assert.NotEmpty(t, cfg.Automation.Tasks)

	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "agent-1", cfg.Agents[0].AgentID)
	assert.Equal(t, models.TierSenior, cfg.Agents[0].SkillTier)
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "thresholds: [not: a: map\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeValidationFailure(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
thresholds:
  quality_adequate: -3
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "quality_adequate")
}

func TestInitializeExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_EXPORT_HOST", "db.internal")

	dir := t.TempDir()
	writeConfigFile(t, dir, `
export:
  backend: postgres
  postgres:
    host: "{{.TEST_EXPORT_HOST}}"
    port: 5432
    database: triago
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Export.Postgres)
	assert.Equal(t, "db.internal", cfg.Export.Postgres.Host)
}

func TestInitializeParsesDurationStrings(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
pipeline:
  stage_timeout: 45s
  routing_timeout: 1500ms
queue:
  graceful_shutdown_timeout: 2m
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Duration(45*time.Second), cfg.Pipeline.StageTimeout)
	assert.Equal(t, Duration(1500*time.Millisecond), cfg.Pipeline.RoutingTimeout)
	assert.Equal(t, Duration(2*time.Minute), cfg.Queue.GracefulShutdownTimeout)
	// Fields absent from the file keep their builtin values.
	assert.Equal(t, Duration(15*time.Second), cfg.Pipeline.QualityRewriteTimeout)
}

func TestDurationRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
pipeline:
  stage_timeout: soon
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestTaskByID(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	task, err := cfg.TaskByID("reset_password")
	require.NoError(t, err)
	assert.Equal(t, "account", task.Category)

	_, err = cfg.TaskByID("no_such_task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
