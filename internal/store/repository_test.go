package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/cpuctl/internal/power"
	"codeberg.org/mutker/cpuctl/internal/profile"
	"codeberg.org/mutker/cpuctl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *store.Repository {
	t.Helper()

	repo, err := store.NewRepository(store.Config{
		DBPath: filepath.Join(t.TempDir(), "cpuctl.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})

	return repo
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := store.NewRepository(store.Config{})
	require.Error(t, err)
}

func TestHistoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []power.HistoryEntry{
		{Timestamp: base, Level: profile.LevelSurge, Reason: power.ReasonDemand, Source: "backup_create", FrequencyMHz: 3400},
		{Timestamp: base.Add(time.Minute), Level: profile.LevelIdle, Reason: power.ReasonDemandReleased, Source: "backup_create", FrequencyMHz: 800},
	}
	for _, entry := range entries {
		require.NoError(t, repo.RecordHistory(entry))
	}

	got, err := repo.History(10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first
	assert.Equal(t, profile.LevelIdle, got[0].Level)
	assert.Equal(t, power.ReasonDemandReleased, got[0].Reason)
	assert.Equal(t, profile.LevelSurge, got[1].Level)
	assert.Equal(t, "backup_create", got[1].Source)
	assert.InDelta(t, 3400, got[1].FrequencyMHz, 0.01)
}

func TestHistoryLimit(t *testing.T) {
	repo := newTestRepository(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.RecordHistory(power.HistoryEntry{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Level:     profile.LevelLow,
			Reason:    power.ReasonAutoScalingCPU,
		}))
	}

	got, err := repo.History(3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDemandEvents(t *testing.T) {
	repo := newTestRepository(t)

	demand := power.Demand{
		Source:       "smart_scan",
		Level:        profile.LevelMedium,
		Capability:   "smart",
		Description:  "weekly scan",
		RegisteredAt: time.Now(),
	}
	require.NoError(t, repo.RecordDemandEvent(power.EventDemandRegistered, demand))
	require.NoError(t, repo.RecordDemandEvent(power.EventDemandUnregistered, demand))
}

func TestAutoScalingConfigRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	_, ok, err := repo.LoadAutoScaling()
	require.NoError(t, err)
	assert.False(t, ok, "fresh database has no persisted config")

	cfg := power.AutoScalingConfig{
		Enabled:          true,
		SurgeThreshold:   90,
		MediumThreshold:  70,
		LowThreshold:     20,
		CooldownSeconds:  120,
		RequireTelemetry: true,
	}
	require.NoError(t, repo.SaveAutoScaling(cfg))

	got, ok, err := repo.LoadAutoScaling()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg, got)
}

func TestDynamicModeConfigRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	cfg := power.DynamicModeConfig{
		Enabled:    true,
		Governor:   "performance",
		MinFreqMHz: 1200,
		MaxFreqMHz: 3600,
	}
	require.NoError(t, repo.SaveDynamicMode(cfg))

	got, ok, err := repo.LoadDynamicMode()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	// Overwrite keeps a single row per setting
	cfg.Enabled = false
	require.NoError(t, repo.SaveDynamicMode(cfg))

	got, ok, err = repo.LoadDynamicMode()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Enabled)
}
