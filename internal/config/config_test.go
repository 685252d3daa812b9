package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool:
  worker_command: ["procpool-worker"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pool.Size)
	assert.Equal(t, 1024, cfg.Pool.QueueCapacity)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, 8080, cfg.RPC.Port)
	assert.Equal(t, []string{"procpool-worker"}, cfg.Pool.WorkerCommand)
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool:
  size: 8
  worker_command: ["procpool-worker"]
  queue_capacity: 50
metrics:
  enabled: true
  port: 9999
rpc:
  enabled: true
  port: 7777
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pool.Size)
	assert.Equal(t, 50, cfg.Pool.QueueCapacity)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9999, cfg.Metrics.Port)
	assert.True(t, cfg.RPC.Enabled)
	assert.Equal(t, 7777, cfg.RPC.Port)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
