package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	sched := cfg.Scheduler()
	assert.True(t, sched.StrictPhases)
	assert.Equal(t, 4*time.Hour, sched.Lease.MinInitial)
	assert.Equal(t, 3, sched.Health.BottleneckDependents)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: 0.0.0.0:9000
db_path: /var/lib/taskgrid/board.db
sweep_interval: 30s
lease:
  min_initial: 6h
  max_renewals: 3
phase:
  strict: false
  default_feature: core
health:
  stale_after: 72h
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "/var/lib/taskgrid/board.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 6*time.Hour, cfg.Lease.MinInitial)
	assert.Equal(t, 3, cfg.Lease.MaxRenewals)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2*time.Hour, cfg.Lease.NearlyDone)
	assert.False(t, cfg.Phase.Strict)
	assert.Equal(t, "core", cfg.Scheduler().DefaultFeature)
	assert.Equal(t, 72*time.Hour, cfg.Health.StaleAfter)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
listen = "127.0.0.1:9100"
db_path = "/tmp/board.db"
sweep_interval = "2m"

[lease]
default = "5h"
long_task_factor = 2.0

[generator]
model = "claude-opus-4-1"
max_tokens = 4096
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, 2*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5*time.Hour, cfg.Lease.Default)
	assert.Equal(t, 2.0, cfg.Lease.LongTaskFactor)
	assert.Equal(t, "claude-opus-4-1", cfg.Generator.Model)
	assert.Equal(t, int64(4096), cfg.Generator.MaxTokens)
	assert.True(t, cfg.Phase.Strict)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lease:\n  max_renewals: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_renewals")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("listen = [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.taskgrid/taskgrid.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".taskgrid", "taskgrid.db"), got)

	got, err = ExpandHome("/abs/path.db")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path.db", got)
}
