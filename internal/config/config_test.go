package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBootstrapsDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	result, err := Load(path)
	require.NoError(t, err)
	assert.True(t, result.Bootstrapped)
	assert.Equal(t, 10, result.Config.Indexing.BatchSize)
	assert.Equal(t, 4, result.Config.Scheduler.MaxWorkers)

	// A second load now finds the written file and should not re-bootstrap.
	result2, err := Load(path)
	require.NoError(t, err)
	assert.False(t, result2.Bootstrapped)
	assert.Equal(t, result.Config.Indexing.BatchSize, result2.Config.Indexing.BatchSize)
}

func TestLoadMergesPartialOverrideOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, writeJSON(path, &Config{
		Indexing: IndexingConfig{BatchSize: 25},
	}))

	result, err := Load(path)
	require.NoError(t, err)
	assert.False(t, result.Bootstrapped)
	assert.Equal(t, 25, result.Config.Indexing.BatchSize)
	// Untouched fields fall back to defaults via mergo.
	assert.Equal(t, 5, result.Config.Indexing.BatchTimeoutS)
	assert.Equal(t, 30, result.Config.SessionContinuity.BridgeRetentionDays)
}
