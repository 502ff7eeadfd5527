package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	return NewManager(dir, cfg), dir
}

func TestManagerReloadSwapsConfig(t *testing.T) {
	m, dir := newTestManager(t)
	old := m.Current()
	assert.Equal(t, 7.0, old.Thresholds.QualityAdequate)

	writeConfigFile(t, dir, "thresholds:\n  quality_adequate: 9\n")
	require.NoError(t, m.Reload(context.Background()))

	assert.NotSame(t, old, m.Current())
	assert.Equal(t, 9.0, m.Current().Thresholds.QualityAdequate)
}

func TestManagerReloadKeepsOldConfigOnFailure(t *testing.T) {
	m, dir := newTestManager(t)
	old := m.Current()

	writeConfigFile(t, dir, "thresholds:\n  quality_adequate: -3\n")
	err := m.Reload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)

	// The previous configuration stays active.
	assert.Same(t, old, m.Current())
}

func TestManagerWatchReloadsOnWrite(t *testing.T) {
	m, dir := newTestManager(t)

	ctx := context.Background()
	require.NoError(t, m.WatchFiles(ctx))
	defer m.StopWatching()

	writeConfigFile(t, dir, "thresholds:\n  quality_adequate: 8\n")

	require.Eventually(t, func() bool {
		return m.Current().Thresholds.QualityAdequate == 8.0
	}, 5*time.Second, 25*time.Millisecond)
}

func TestManagerWatchIgnoresInvalidEdit(t *testing.T) {
	m, dir := newTestManager(t)
	old := m.Current()

	ctx := context.Background()
	require.NoError(t, m.WatchFiles(ctx))
	defer m.StopWatching()

	writeConfigFile(t, dir, "thresholds:\n  quality_adequate: -3\n")

	// Give the debounce window time to fire; the bad edit must not land.
	time.Sleep(600 * time.Millisecond)
	assert.Same(t, old, m.Current())
}

func TestManagerWatchBadDirectory(t *testing.T) {
	m := NewManager("/nonexistent/config-dir", fromYAML(builtinConfig()))
	err := m.WatchFiles(context.Background())
	require.Error(t, err)
}
