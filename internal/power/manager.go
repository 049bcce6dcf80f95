package power

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/cpuctl/internal/backend"
	"codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/profile"
)

const (
	DefaultTickInterval = 5 * time.Second
	DefaultHistorySize  = 1000

	defaultSurgeThreshold  = 85.0
	defaultMediumThreshold = 60.0
	defaultLowThreshold    = 30.0
	defaultCooldownSeconds = 60
)

// Options carries the collaborators and tuning knobs for a Manager. All
// collaborator fields are optional; absent ones disable their feature.
type Options struct {
	TickInterval time.Duration
	HistorySize  int
	Usage        UsageFunc
	Store        ConfigStore
	Audit        AuditSink
	Preset       PresetLookup
	AutoScaling  *AutoScalingConfig
}

// Manager resolves competing power demands into a single active profile and
// drives it into the backend. One mutex guards the registry, the committed
// level and the dynamic-mode flag; every mutating operation holds it across
// the awaited hardware apply, so no two resolutions ever race.
type Manager struct {
	ctrl   backend.Controller
	usage  UsageFunc
	store  ConfigStore
	audit  AuditSink
	preset PresetLookup

	tickInterval time.Duration
	historySize  int

	mu                  sync.Mutex
	demands             map[string]Demand
	current             profile.Level
	currentCfg          profile.Config
	applied             bool
	dynamic             DynamicModeConfig
	autoScaling         AutoScalingConfig
	cooldownUntil       time.Time
	manualOverrideUntil time.Time
	history             []HistoryEntry

	now func() time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func DefaultAutoScalingConfig() AutoScalingConfig {
	return AutoScalingConfig{
		Enabled:          false,
		SurgeThreshold:   defaultSurgeThreshold,
		MediumThreshold:  defaultMediumThreshold,
		LowThreshold:     defaultLowThreshold,
		CooldownSeconds:  defaultCooldownSeconds,
		RequireTelemetry: true,
	}
}

func NewManager(ctrl backend.Controller, opts Options) *Manager {
	m := &Manager{
		ctrl:         ctrl,
		usage:        opts.Usage,
		store:        opts.Store,
		audit:        opts.Audit,
		preset:       opts.Preset,
		tickInterval: opts.TickInterval,
		historySize:  opts.HistorySize,
		demands:      make(map[string]Demand),
		current:      profile.LevelIdle,
		autoScaling:  DefaultAutoScalingConfig(),
		now:          time.Now,
	}

	if m.tickInterval <= 0 {
		m.tickInterval = DefaultTickInterval
	}
	if m.historySize <= 0 {
		m.historySize = DefaultHistorySize
	}
	if opts.AutoScaling != nil {
		m.autoScaling = *opts.AutoScaling
	}

	return m
}

// Start restores persisted configuration, applies the initial resolution and
// launches the background sweep/auto-scaling ticker.
func (m *Manager) Start(ctx context.Context) error {
	errFactory := errors.New()

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errFactory.New(ErrAlreadyStarted)
	}
	m.started = true

	m.restoreLocked()

	if !m.dynamic.Enabled {
		if err := m.applyLocked(m.resolveLocked(), ReasonStartup, ""); err != nil {
			logger.Warn().Err(err).Msg("Initial profile apply failed, continuing with uncommitted state")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(runCtx)

	return nil
}

// Stop cancels the background ticker and waits for it to finish. In-flight
// applies complete; they are never cancelled mid-write.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick performs one expiry sweep followed by one auto-scaling evaluation
func (m *Manager) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepExpiredLocked(now)
	m.autoScaleLocked(now)
}

// restoreLocked reloads persisted configuration. Dynamic mode is re-enabled
// if it was persisted as enabled; when that fails the engine falls back to
// demand-based resolution at IDLE.
func (m *Manager) restoreLocked() {
	if m.store == nil {
		return
	}

	if cfg, ok, err := m.store.LoadAutoScaling(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load auto-scaling config")
	} else if ok {
		m.autoScaling = cfg
	}

	cfg, ok, err := m.store.LoadDynamicMode()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load dynamic mode config")
		return
	}
	if !ok {
		return
	}

	if cfg.Enabled {
		if err := m.enableDynamicLocked(cfg); err != nil {
			logger.Warn().Err(err).Msg("Failed to restore dynamic mode, falling back to demand resolution")
			cfg.Enabled = false
		}
	}
	m.dynamic = cfg
}

// applyLocked is the single path through which a power level reaches
// hardware. The committed level changes only on a successful backend apply;
// a failed apply is not an accepted state and leaves everything untouched.
func (m *Manager) applyLocked(level profile.Level, reason, source string) error {
	errFactory := errors.New()

	if !level.IsValid() {
		return errFactory.WithData(ErrInvalidLevel, int(level))
	}

	if m.dynamic.Enabled {
		return nil
	}
	if m.applied && level == m.current {
		return nil
	}

	cfg := m.lookupProfile(level)
	if cfg.MinFreqMHz > 0 && cfg.MaxFreqMHz > 0 && cfg.MinFreqMHz > cfg.MaxFreqMHz {
		return errFactory.WithMessage(ErrInvalidConfig, "profile min frequency exceeds max")
	}

	if substituted, changed := profile.SubstituteGovernor(cfg.Governor, m.ctrl.AvailableGovernors()); changed {
		logger.Info().
			Str("requested", cfg.Governor).
			Str("substituted", substituted).
			Msg("Governor unsupported by backend, substituting")
		cfg = cfg.WithGovernor(substituted)
	}

	if err := m.ctrl.Apply(context.Background(), cfg); err != nil {
		logger.Warn().
			Err(err).
			Str("error_code", string(errors.CodeOf(err))).
			Str("level", level.String()).
			Str("reason", reason).
			Msg("Profile apply failed, retaining previous level")
		return errFactory.Wrap(ErrApplyFailed, err)
	}

	previous := m.current
	m.current = level
	m.currentCfg = cfg
	m.applied = true

	if level < previous {
		m.cooldownUntil = m.now().Add(time.Duration(m.autoScaling.CooldownSeconds) * time.Second)
	}

	m.recordLocked(HistoryEntry{
		Timestamp: m.now(),
		Level:     level,
		Reason:    reason,
		Source:    source,
	})

	logger.Info().
		Str("level", level.String()).
		Str("governor", cfg.Governor).
		Str("reason", reason).
		Msg("Power profile applied")

	return nil
}

func (m *Manager) lookupProfile(level profile.Level) profile.Config {
	if m.preset != nil {
		if cfg, ok := m.preset(level); ok {
			return cfg
		}
	}

	return profile.DefaultConfig(level)
}

// recordLocked appends to the bounded in-memory ring and mirrors the entry to
// the audit sink without waiting on it.
func (m *Manager) recordLocked(entry HistoryEntry) {
	if freq, ok := m.ctrl.CurrentFrequencyMHz(); ok {
		entry.FrequencyMHz = freq
	}

	m.history = append(m.history, entry)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}

	if m.audit != nil {
		go func(sink AuditSink, entry HistoryEntry) {
			if err := sink.RecordHistory(entry); err != nil {
				logger.Debug().Err(err).Msg("Audit sink rejected history entry")
			}
		}(m.audit, entry)
	}
}

func (m *Manager) auditDemandEvent(event string, demand Demand) {
	if m.audit == nil {
		return
	}

	go func(sink AuditSink) {
		if err := sink.RecordDemandEvent(event, demand); err != nil {
			logger.Debug().Err(err).Str("event", event).Msg("Audit sink rejected demand event")
		}
	}(m.audit)
}

// GetHistory returns up to limit entries, newest first, skipping offset
func (m *Manager) GetHistory(limit, offset int) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = len(m.history)
	}
	if offset < 0 {
		offset = 0
	}

	entries := make([]HistoryEntry, 0, limit)
	for i := len(m.history) - 1 - offset; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, m.history[i])
	}

	return entries
}

// GetStatus reports the authoritative applied state
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		CurrentLevel:       m.current,
		TargetMinFreqMHz:   m.currentCfg.MinFreqMHz,
		TargetMaxFreqMHz:   m.currentCfg.MaxFreqMHz,
		ActiveGovernor:     m.currentCfg.Governor,
		ActiveDemands:      m.activeDemandsLocked(m.now()),
		AutoScalingEnabled: m.autoScaling.Enabled,
		BackendKind:        m.ctrl.Kind(),
		BackendAvailable:   m.ctrl.IsAvailable(),
		Permissions:        m.ctrl.Diagnostics(),
		DynamicMode:        m.dynamic,
	}

	if status.TargetMaxFreqMHz == 0 {
		_, status.TargetMaxFreqMHz = m.ctrl.SystemFreqRange()
	}

	if freq, ok := m.ctrl.CurrentFrequencyMHz(); ok {
		status.CurrentFrequencyMHz = freq
		status.FrequencyKnown = true
	}

	if remaining := m.cooldownUntil.Sub(m.now()); remaining > 0 {
		status.CooldownRemaining = remaining
	}

	return status
}

// SetAutoScalingConfig validates, persists and activates cfg
func (m *Manager) SetAutoScalingConfig(cfg AutoScalingConfig) error {
	errFactory := errors.New()

	if cfg.CooldownSeconds < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "cooldown must not be negative")
	}
	for _, threshold := range []float64{cfg.SurgeThreshold, cfg.MediumThreshold, cfg.LowThreshold} {
		if threshold < 0 || threshold > 100 {
			return errFactory.WithMessage(ErrInvalidConfig, "thresholds must be within 0-100 percent")
		}
	}
	if cfg.SurgeThreshold < cfg.MediumThreshold || cfg.MediumThreshold < cfg.LowThreshold {
		return errFactory.WithMessage(ErrInvalidConfig, "thresholds must be ordered surge >= medium >= low")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.autoScaling = cfg
	if m.store != nil {
		if err := m.store.SaveAutoScaling(cfg); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist auto-scaling config")
		}
	}

	return nil
}

func (m *Manager) GetAutoScalingConfig() AutoScalingConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.autoScaling
}
