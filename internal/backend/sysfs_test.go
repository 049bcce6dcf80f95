package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	apperrors "codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeCore(t *testing.T, base string, core int) string {
	t.Helper()

	dir := filepath.Join(base, fmt.Sprintf("cpu%d", core), "cpufreq")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	files := map[string]string{
		governorFile:  "powersave\n",
		availGovsFile: "performance powersave schedutil\n",
		curFreqFile:   "1200000\n",
		minFreqFile:   "400000\n",
		maxFreqFile:   "3600000\n",
		hwMinFile:     "400000\n",
		hwMaxFile:     "3600000\n",
		eppFile:       "balance_performance\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	return dir
}

func readCoreFile(t *testing.T, dir, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	return strings.TrimSpace(string(data))
}

func TestSysfsDiscovery(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)
	writeFakeCore(t, base, 1)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, s.cores)
	assert.Equal(t, []string{"performance", "powersave", "schedutil"}, s.AvailableGovernors())
	assert.True(t, s.IsAvailable())
	assert.Equal(t, KindSysfs, s.Kind())

	minMHz, maxMHz := s.SystemFreqRange()
	assert.Equal(t, 400, minMHz)
	assert.Equal(t, 3600, maxMHz)
}

func TestSysfsNoCores(t *testing.T) {
	_, err := NewSysfs(t.TempDir())
	require.Error(t, err)

	var appErr apperrors.Error
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, ErrNoCores, appErr.Code())
}

func TestSysfsApplyWritesAllCores(t *testing.T) {
	base := t.TempDir()
	dir0 := writeFakeCore(t, base, 0)
	dir1 := writeFakeCore(t, base, 1)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	err = s.Apply(context.Background(), profile.DefaultConfig(profile.LevelMedium))
	require.NoError(t, err)

	for _, dir := range []string{dir0, dir1} {
		assert.Equal(t, "schedutil", readCoreFile(t, dir, governorFile))
		assert.Equal(t, "balance_performance", readCoreFile(t, dir, eppFile))
		assert.Equal(t, "800000", readCoreFile(t, dir, minFreqFile))
		assert.Equal(t, "3000000", readCoreFile(t, dir, maxFreqFile))
	}
}

func TestSysfsApplySurgeUsesSystemMax(t *testing.T) {
	base := t.TempDir()
	dir := writeFakeCore(t, base, 0)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	cfg := profile.DefaultConfig(profile.LevelSurge)
	require.Zero(t, cfg.MaxFreqMHz)
	require.NoError(t, s.Apply(context.Background(), cfg))

	assert.Equal(t, "3600000", readCoreFile(t, dir, maxFreqFile))
}

func TestSysfsApplyRejectsEmptyGovernor(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	err = s.Apply(context.Background(), profile.Config{MinFreqMHz: 400, MaxFreqMHz: 1200})
	require.Error(t, err)

	var appErr apperrors.Error
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, ErrInvalidProfile, appErr.Code())
}

func TestSysfsApplyToleratesMissingEPP(t *testing.T) {
	base := t.TempDir()
	dir := writeFakeCore(t, base, 0)
	require.NoError(t, os.Remove(filepath.Join(dir, eppFile)))

	s, err := NewSysfs(base)
	require.NoError(t, err)

	require.NoError(t, s.Apply(context.Background(), profile.DefaultConfig(profile.LevelLow)))
}

func TestSysfsApplyToleratesMissingControlFile(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)
	dir1 := writeFakeCore(t, base, 1)
	require.NoError(t, os.Remove(filepath.Join(dir1, minFreqFile)))

	s, err := NewSysfs(base)
	require.NoError(t, err)

	require.NoError(t, s.Apply(context.Background(), profile.DefaultConfig(profile.LevelLow)))
}

func TestSysfsPrivilegedFallback(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	var privilegedWrites atomic.Int64
	s.writeFile = func(_, _ string) error { return os.ErrPermission }
	s.privilegedWrite = func(_ context.Context, _, _ string) error {
		privilegedWrites.Add(1)
		return nil
	}

	require.NoError(t, s.Apply(context.Background(), profile.DefaultConfig(profile.LevelMedium)))
	assert.Positive(t, privilegedWrites.Load())

	diag := s.Diagnostics()
	require.NotNil(t, diag.PrivilegedAvailable)
	assert.True(t, *diag.PrivilegedAvailable)
}

func TestSysfsPermissionDenied(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	var privilegedWrites atomic.Int64
	s.writeFile = func(_, _ string) error { return os.ErrPermission }
	s.privilegedWrite = func(_ context.Context, _, _ string) error {
		privilegedWrites.Add(1)
		return fmt.Errorf("sudo: a password is required")
	}

	err = s.Apply(context.Background(), profile.DefaultConfig(profile.LevelMedium))
	require.Error(t, err)

	var appErr apperrors.Error
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, ErrPermissionDenied, appErr.Code())
	assert.Contains(t, err.Error(), "run as root")

	// Fallback unavailability is cached; another apply must not probe again
	probes := privilegedWrites.Load()
	require.Error(t, s.Apply(context.Background(), profile.DefaultConfig(profile.LevelSurge)))
	assert.Equal(t, probes, privilegedWrites.Load())

	diag := s.Diagnostics()
	require.NotNil(t, diag.PrivilegedAvailable)
	assert.False(t, *diag.PrivilegedAvailable)
	assert.NotEmpty(t, diag.RecentErrors)
}

func TestSysfsApplyAggregatesWriteFailures(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)
	writeFakeCore(t, base, 1)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	s.writeFile = func(path, value string) error {
		if strings.HasSuffix(path, maxFreqFile) {
			return fmt.Errorf("device or resource busy")
		}
		return writeSysfsFile(path, value)
	}

	err = s.Apply(context.Background(), profile.DefaultConfig(profile.LevelMedium))
	require.Error(t, err)

	var appErr apperrors.Error
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, ErrTransientIO, appErr.Code())
	assert.Contains(t, err.Error(), "core")
}

func TestSysfsCurrentReadings(t *testing.T) {
	base := t.TempDir()
	writeFakeCore(t, base, 0)

	s, err := NewSysfs(base)
	require.NoError(t, err)

	freq, ok := s.CurrentFrequencyMHz()
	require.True(t, ok)
	assert.InDelta(t, 1200.0, freq, 0.01)

	governor, ok := s.CurrentGovernor()
	require.True(t, ok)
	assert.Equal(t, "powersave", governor)
}
