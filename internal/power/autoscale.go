package power

import (
	"time"

	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/profile"
)

// autoScaleLocked runs one CPU-usage evaluation. It never creates a demand:
// an auto-scaled level is ephemeral and holds only until the next resolution
// re-check. Transitions respect the cooldown window; demand-driven and manual
// transitions do not consult it.
func (m *Manager) autoScaleLocked(now time.Time) {
	if !m.autoScaling.Enabled || m.dynamic.Enabled {
		return
	}
	if now.Before(m.manualOverrideUntil) {
		return
	}

	if m.usage == nil {
		return
	}
	usage, ok := m.usage()
	if !ok {
		if !m.autoScaling.RequireTelemetry {
			logger.Debug().Msg("CPU usage sample unavailable, skipping auto-scaling evaluation")
		}
		return
	}

	suggested := m.levelForUsage(usage)

	// The cooldown window opens on a priority decrease and, while open,
	// pins auto-scaling entirely so a fresh decrease cannot flap straight
	// back up. Manual and demand-driven transitions ignore it.
	if suggested != m.current && now.Before(m.cooldownUntil) {
		logger.Debug().
			Str("suggested", suggested.String()).
			Str("current", m.current.String()).
			Msg("Auto-scaling transition suppressed by cooldown")
		return
	}

	// Registered demands set a floor the auto-scaler may not undercut
	floor := m.resolveLocked()
	if len(m.demands) > 0 && suggested <= floor {
		return
	}
	if suggested == m.current {
		return
	}

	logger.Debug().
		Float64("cpu_percent", usage).
		Str("suggested", suggested.String()).
		Msg("Auto-scaling transition")

	if err := m.applyLocked(suggested, ReasonAutoScalingCPU, ""); err != nil {
		logger.Warn().Err(err).Msg("Auto-scaling apply failed")
	}
}

func (m *Manager) levelForUsage(usage float64) profile.Level {
	switch {
	case usage >= m.autoScaling.SurgeThreshold:
		return profile.LevelSurge
	case usage >= m.autoScaling.MediumThreshold:
		return profile.LevelMedium
	case usage >= m.autoScaling.LowThreshold:
		return profile.LevelLow
	default:
		return profile.LevelIdle
	}
}
