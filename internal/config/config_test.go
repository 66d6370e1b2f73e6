package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const minimalYAML = `
device_id: edge-01
database_path: /tmp/readings.db
remote:
  endpoint: http://collector:8000
`

func TestLoad_MinimalWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML), "../../schemas/agent.cue")
	require.NoError(t, err)

	assert.Equal(t, "edge-01", cfg.DeviceID)
	assert.Equal(t, 10*time.Second, cfg.Poll.BaseInterval.Std())
	assert.Equal(t, 360, cfg.Sync.BatchSize)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.Cooldown.Std())
	assert.Equal(t, "gradual", cfg.Backpressure.Recovery)
	assert.Equal(t, 50.0, cfg.Retention.DiskThresholdPercent)
	assert.Equal(t, 5*time.Minute, cfg.Retention.CheckInterval.Std())
	assert.Equal(t, "http", cfg.Remote.Kind)
	assert.Equal(t, 30*time.Second, cfg.Remote.BulkTimeout.Std())
	assert.Equal(t, ":8080", cfg.Admin.Listen)
}

func TestLoad_FullConfig(t *testing.T) {
	yaml := `
device_id: edge-02
database_path: /tmp/readings.db
log_level: debug
poll:
  base_interval: 15s
  sensor_timeout: 3s
backpressure:
  recovery: immediate
  steps:
    - failures: 0
      interval: 15s
    - failures: 5
      interval: 2m
retention:
  disk_threshold_percent: 80
  protect_unsynced: true
remote:
  kind: greptime
  endpoint: greptime.local
  database: metrics
`
	cfg, err := Load(writeConfig(t, yaml), "../../schemas/agent.cue")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Poll.BaseInterval.Std())
	assert.False(t, cfg.Backpressure.Gradual())
	steps := cfg.Backpressure.StepTable()
	require.Len(t, steps, 2)
	assert.Equal(t, 2*time.Minute, steps[1].Interval)
	assert.True(t, cfg.Retention.ProtectUnsynced)
	assert.Equal(t, "greptime", cfg.Remote.Kind)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("SENSORSYNC_DEVICE_ID", "edge-override")
	t.Setenv("SENSORSYNC_REMOTE_API_KEY", "s3cret")

	cfg, err := Load(writeConfig(t, minimalYAML), "../../schemas/agent.cue")
	require.NoError(t, err)

	assert.Equal(t, "edge-override", cfg.DeviceID)
	assert.Equal(t, "s3cret", cfg.Remote.APIKey)
}

func TestLoad_SchemaRejectsBadValues(t *testing.T) {
	yaml := `
device_id: edge-01
database_path: /tmp/readings.db
retention:
  disk_threshold_percent: 150
remote:
  endpoint: http://collector:8000
`
	_, err := Load(writeConfig(t, yaml), "../../schemas/agent.cue")
	require.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing device_id", `
database_path: /tmp/readings.db
remote:
  endpoint: http://collector:8000
`},
		{"missing endpoint", `
device_id: edge-01
database_path: /tmp/readings.db
`},
		{"bad remote kind", `
device_id: edge-01
database_path: /tmp/readings.db
remote:
  kind: ftp
  endpoint: ftp://collector
`},
		{"steps not starting at zero", `
device_id: edge-01
database_path: /tmp/readings.db
backpressure:
  steps:
    - failures: 2
      interval: 30s
remote:
  endpoint: http://collector:8000
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml), "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnparseableDuration(t *testing.T) {
	yaml := `
device_id: edge-01
database_path: /tmp/readings.db
poll:
  base_interval: soon
remote:
  endpoint: http://collector:8000
`
	_, err := Load(writeConfig(t, yaml), "")
	require.Error(t, err)
}
