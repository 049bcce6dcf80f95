package profile_test

import (
	"testing"

	"codeberg.org/mutker/cpuctl/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	for _, level := range []profile.Level{
		profile.LevelIdle, profile.LevelLow, profile.LevelMedium, profile.LevelSurge,
	} {
		cfg := profile.DefaultConfig(level)
		assert.Equal(t, level, cfg.Level)
		assert.NotEmpty(t, cfg.Governor)
		assert.NotEmpty(t, cfg.EnergyPreference)
		if cfg.MaxFreqMHz > 0 {
			assert.LessOrEqual(t, cfg.MinFreqMHz, cfg.MaxFreqMHz)
		}
	}
}

func TestDefaultConfigUnknownLevelPanics(t *testing.T) {
	assert.Panics(t, func() {
		profile.DefaultConfig(profile.Level(42))
	})
}

func TestSurgeUsesSystemMaximum(t *testing.T) {
	cfg := profile.DefaultConfig(profile.LevelSurge)
	assert.Zero(t, cfg.MaxFreqMHz, "surge should defer to the system maximum")
}

func TestSubstituteGovernor(t *testing.T) {
	tests := []struct {
		name        string
		requested   string
		available   []string
		want        string
		substituted bool
	}{
		{
			name:      "supported governor passes through",
			requested: "performance",
			available: []string{"performance", "powersave"},
			want:      "performance",
		},
		{
			name:        "powersave preferred when unsupported",
			requested:   "schedutil",
			available:   []string{"performance", "powersave"},
			want:        "powersave",
			substituted: true,
		},
		{
			name:        "first reported governor when powersave absent",
			requested:   "schedutil",
			available:   []string{"performance", "ondemand"},
			want:        "performance",
			substituted: true,
		},
		{
			name:      "empty list leaves request unchanged",
			requested: "schedutil",
			available: nil,
			want:      "schedutil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, substituted := profile.SubstituteGovernor(tt.requested, tt.available)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.substituted, substituted)
		})
	}
}

func TestPreferenceForGovernor(t *testing.T) {
	assert.Equal(t, "performance", profile.PreferenceForGovernor("performance"))
	assert.Equal(t, "power", profile.PreferenceForGovernor("powersave"))
	assert.Equal(t, "balance_performance", profile.PreferenceForGovernor("unknown-governor"))
}

func TestLevelOrdering(t *testing.T) {
	require.True(t, profile.LevelIdle < profile.LevelLow)
	require.True(t, profile.LevelLow < profile.LevelMedium)
	require.True(t, profile.LevelMedium < profile.LevelSurge)
}

func TestParseLevel(t *testing.T) {
	for _, level := range []profile.Level{
		profile.LevelIdle, profile.LevelLow, profile.LevelMedium, profile.LevelSurge,
	} {
		parsed, ok := profile.ParseLevel(level.String())
		require.True(t, ok)
		assert.Equal(t, level, parsed)
	}

	_, ok := profile.ParseLevel("turbo")
	assert.False(t, ok)
}
