package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/cpuctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetArgs(t *testing.T) {
	t.Helper()

	oldArgs := os.Args
	os.Args = []string{"cpuctl"}
	t.Cleanup(func() { os.Args = oldArgs })
}

func TestLoad(t *testing.T) {
	resetArgs(t)

	configContent := []byte(`
interval = 10
log_level = "debug"
simulate = true
audit = true
database = "/path/to/cpuctl.db"
auto_scale = true
surge_threshold = 90.0
medium_threshold = 70.0
low_threshold = 20.0
cooldown = 120
`)
	configPath := filepath.Join(t.TempDir(), "cpuctl.toml")
	require.NoError(t, os.WriteFile(configPath, configContent, 0o600))

	t.Setenv("CPUCTL_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Interval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Simulate)
	assert.True(t, cfg.Audit)
	assert.Equal(t, "/path/to/cpuctl.db", cfg.Database)
	assert.True(t, cfg.AutoScale)
	assert.InDelta(t, 90.0, cfg.SurgeThreshold, 0.01)
	assert.InDelta(t, 70.0, cfg.MediumThreshold, 0.01)
	assert.InDelta(t, 20.0, cfg.LowThreshold, 0.01)
	assert.Equal(t, 120, cfg.CooldownSeconds)
	assert.True(t, cfg.IsDebug())
}

func TestLoadDefaults(t *testing.T) {
	resetArgs(t)
	t.Setenv("CPUCTL_CONFIG", filepath.Join(t.TempDir(), "nonexistent.toml"))

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Interval)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Simulate)
	assert.False(t, cfg.Audit)
	assert.False(t, cfg.AutoScale)
	assert.Equal(t, 60, cfg.CooldownSeconds)
	assert.False(t, cfg.IsDebug())
	assert.True(t, cfg.IsVerbose())
}

func TestLoadInvalidFormat(t *testing.T) {
	resetArgs(t)

	configPath := filepath.Join(t.TempDir(), "cpuctl.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("This is not a valid TOML file"), 0o600))

	t.Setenv("CPUCTL_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	resetArgs(t)

	configPath := filepath.Join(t.TempDir(), "cpuctl.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`log_level = "loud"`), 0o600))

	t.Setenv("CPUCTL_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestInvalidInterval(t *testing.T) {
	resetArgs(t)

	configPath := filepath.Join(t.TempDir(), "cpuctl.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`interval = 0`), 0o600))

	t.Setenv("CPUCTL_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
}

func TestInvalidThresholds(t *testing.T) {
	resetArgs(t)

	// Surge below medium violates the required ordering
	configPath := filepath.Join(t.TempDir(), "cpuctl.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("surge_threshold = 50.0\nmedium_threshold = 70.0\n"), 0o600))
	t.Setenv("CPUCTL_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)

	configPath = filepath.Join(t.TempDir(), "cpuctl.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("surge_threshold = 130.0\n"), 0o600))
	t.Setenv("CPUCTL_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
}

func TestLogLevelFlag(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cpuctl", "--log-level", "debug"}

	t.Setenv("CPUCTL_CONFIG", filepath.Join(t.TempDir(), "nonexistent.toml"))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}
