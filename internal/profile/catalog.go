package profile

import "fmt"

// defaultCatalog maps each power level to its default hardware profile.
// A preset lookup supplied by the platform may override these per level.
var defaultCatalog = map[Level]Config{
	LevelIdle: {
		Level:            LevelIdle,
		Governor:         "powersave",
		EnergyPreference: "power",
		MinFreqMHz:       400,
		MaxFreqMHz:       1200,
		Description:      "Minimum power draw for an idle system",
	},
	LevelLow: {
		Level:            LevelLow,
		Governor:         "powersave",
		EnergyPreference: "balance_power",
		MinFreqMHz:       400,
		MaxFreqMHz:       2000,
		Description:      "Light background activity",
	},
	LevelMedium: {
		Level:            LevelMedium,
		Governor:         "schedutil",
		EnergyPreference: "balance_performance",
		MinFreqMHz:       800,
		MaxFreqMHz:       3000,
		Description:      "Sustained workloads such as scrubs and transfers",
	},
	LevelSurge: {
		Level:            LevelSurge,
		Governor:         "performance",
		EnergyPreference: "performance",
		MinFreqMHz:       1200,
		MaxFreqMHz:       0, // 0 = system maximum
		Description:      "Full performance for rebuilds and backups",
	},
}

// DefaultConfig returns the catalog profile for level. An unknown level is a
// programmer error, not a runtime condition, and panics.
func DefaultConfig(level Level) Config {
	cfg, ok := defaultCatalog[level]
	if !ok {
		panic(fmt.Sprintf("profile: unknown power level %d", int(level)))
	}

	return cfg
}

// governorPreferences maps a governor to the energy-performance preference
// paired with it when dynamic mode constructs a synthetic profile.
var governorPreferences = map[string]string{
	"performance":  "performance",
	"powersave":    "power",
	"schedutil":    "balance_performance",
	"ondemand":     "balance_performance",
	"conservative": "balance_power",
	"userspace":    "balance_performance",
}

// PreferenceForGovernor returns the energy preference derived from governor
func PreferenceForGovernor(governor string) string {
	if pref, ok := governorPreferences[governor]; ok {
		return pref
	}

	return "balance_performance"
}

// SubstituteGovernor picks a deterministic replacement when requested is not
// supported by the backend: "powersave" when available, otherwise the first
// backend-reported governor. The second return reports whether a substitution
// happened. An empty available list returns requested unchanged.
func SubstituteGovernor(requested string, available []string) (string, bool) {
	if len(available) == 0 {
		return requested, false
	}

	for _, gov := range available {
		if gov == requested {
			return requested, false
		}
	}

	for _, gov := range available {
		if gov == "powersave" {
			return "powersave", true
		}
	}

	return available[0], true
}
