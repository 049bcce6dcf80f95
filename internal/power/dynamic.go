package power

import (
	"context"
	"time"

	"codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/profile"
)

// EnableDynamicMode hands direct governor control to the operator. The
// resolver stays dormant until DisableDynamicMode returns control to the
// demand-based engine.
func (m *Manager) EnableDynamicMode(cfg DynamicModeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.Enabled = true
	if err := m.enableDynamicLocked(cfg); err != nil {
		return err
	}

	m.dynamic = cfg
	m.persistDynamicLocked()
	m.recordLocked(HistoryEntry{
		Timestamp: m.now(),
		Level:     m.current,
		Reason:    ReasonDynamicModeEnabled,
	})

	logger.Info().
		Str("governor", cfg.Governor).
		Int("min_mhz", cfg.MinFreqMHz).
		Int("max_mhz", cfg.MaxFreqMHz).
		Msg("Dynamic mode enabled")

	return nil
}

// enableDynamicLocked validates cfg and applies the synthetic profile
// directly, bypassing the resolver.
func (m *Manager) enableDynamicLocked(cfg DynamicModeConfig) error {
	errFactory := errors.New()

	if cfg.Governor == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "dynamic mode requires a governor")
	}
	if cfg.MinFreqMHz > 0 && cfg.MaxFreqMHz > 0 && cfg.MinFreqMHz > cfg.MaxFreqMHz {
		return errFactory.WithMessage(ErrInvalidConfig, "dynamic mode min frequency exceeds max")
	}

	// Validation against the governor list is skipped when the backend
	// cannot report one
	if available := m.ctrl.AvailableGovernors(); len(available) > 0 {
		supported := false
		for _, governor := range available {
			if governor == cfg.Governor {
				supported = true
				break
			}
		}
		if !supported {
			return errFactory.WithData(ErrInvalidConfig, "unsupported governor: "+cfg.Governor)
		}
	}

	synthetic := profile.Config{
		Level:            m.current,
		Governor:         cfg.Governor,
		EnergyPreference: profile.PreferenceForGovernor(cfg.Governor),
		MinFreqMHz:       cfg.MinFreqMHz,
		MaxFreqMHz:       cfg.MaxFreqMHz,
		Description:      "Operator-controlled dynamic mode",
	}

	if err := m.ctrl.Apply(context.Background(), synthetic); err != nil {
		return errFactory.Wrap(ErrApplyFailed, err)
	}

	return nil
}

// DisableDynamicMode clears the override and immediately returns control to
// the demand-based engine.
func (m *Manager) DisableDynamicMode() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dynamic.Enabled {
		return nil
	}

	m.dynamic.Enabled = false
	m.persistDynamicLocked()
	m.recordLocked(HistoryEntry{
		Timestamp: m.now(),
		Level:     m.current,
		Reason:    ReasonDynamicModeDisabled,
	})

	logger.Info().Msg("Dynamic mode disabled, resuming demand-based resolution")

	// Force a hardware re-apply even when the resolved level equals the
	// level committed before dynamic mode took over
	m.applied = false

	return m.applyLocked(m.resolveLocked(), ReasonDynamicModeDisabled, "")
}

func (m *Manager) GetDynamicModeConfig() DynamicModeConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dynamic
}

func (m *Manager) persistDynamicLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveDynamicMode(m.dynamic); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist dynamic mode config")
	}
}

// ApplyProfile commits a level manually, bypassing cooldown. A positive
// overrideFor suppresses auto-scaling entirely for that window.
func (m *Manager) ApplyProfile(level profile.Level, reason string, overrideFor time.Duration) error {
	if reason == "" {
		reason = ReasonManual
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.applyLocked(level, reason, ""); err != nil {
		return err
	}

	if overrideFor > 0 {
		m.manualOverrideUntil = m.now().Add(overrideFor)
	}

	return nil
}
