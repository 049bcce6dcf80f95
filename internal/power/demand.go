package power

import (
	"sort"
	"time"

	"codeberg.org/mutker/cpuctl/internal/errors"
	"codeberg.org/mutker/cpuctl/internal/logger"
	"codeberg.org/mutker/cpuctl/internal/profile"
)

// RegisterDemand upserts a demand keyed by source and synchronously re-checks
// resolution inside the same critical section. The capability tag labels the
// service feature behind the demand and is carried into the audit trail. A
// nil error means the demand was recorded, not that the hardware change
// succeeded; GetStatus reports the applied state.
func (m *Manager) RegisterDemand(source string, level profile.Level, expiresAfter time.Duration, description, capability string) (string, error) {
	errFactory := errors.New()

	if source == "" {
		return "", errFactory.WithMessage(ErrInvalidDemand, "demand source must not be empty")
	}
	if !level.IsValid() {
		return "", errFactory.WithData(ErrInvalidLevel, int(level))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	demand := Demand{
		Source:       source,
		Level:        level,
		Capability:   capability,
		Description:  description,
		RegisteredAt: now,
	}
	if expiresAfter > 0 {
		demand.ExpiresAt = now.Add(expiresAfter)
	}

	m.demands[source] = demand
	m.auditDemandEvent(EventDemandRegistered, demand)

	logger.Debug().
		Str("source", source).
		Str("level", level.String()).
		Dur("expires_after", expiresAfter).
		Msg("Demand registered")

	if err := m.applyLocked(m.resolveLocked(), ReasonDemand, source); err != nil {
		logger.Warn().Err(err).Str("source", source).Msg("Resolution after register did not reach hardware")
	}

	return source, nil
}

// UnregisterDemand removes the demand owned by source, if present, and
// re-checks resolution. Returns whether a demand was removed.
func (m *Manager) UnregisterDemand(source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	demand, ok := m.demands[source]
	if !ok {
		return false
	}

	delete(m.demands, source)
	m.auditDemandEvent(EventDemandUnregistered, demand)

	logger.Debug().Str("source", source).Msg("Demand unregistered")

	if err := m.applyLocked(m.resolveLocked(), ReasonDemandReleased, source); err != nil {
		logger.Warn().Err(err).Str("source", source).Msg("Resolution after unregister did not reach hardware")
	}

	return true
}

// GetActiveDemands returns the live demands sorted by source
func (m *Manager) GetActiveDemands() []Demand {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeDemandsLocked(m.now())
}

func (m *Manager) activeDemandsLocked(now time.Time) []Demand {
	demands := make([]Demand, 0, len(m.demands))
	for _, demand := range m.demands {
		if demand.Expired(now) {
			continue
		}
		demands = append(demands, demand)
	}
	sort.Slice(demands, func(i, j int) bool { return demands[i].Source < demands[j].Source })

	return demands
}

// resolveLocked computes the target level: the maximum over non-expired
// demands, or IDLE when the registry is empty. Pure with respect to state.
func (m *Manager) resolveLocked() profile.Level {
	now := m.now()
	level := profile.LevelIdle
	for _, demand := range m.demands {
		if demand.Expired(now) {
			continue
		}
		if demand.Level > level {
			level = demand.Level
		}
	}

	return level
}

// sweepExpiredLocked drops demands whose deadline has passed, re-checks
// resolution once for the whole sweep, and records one history entry per
// removed demand.
func (m *Manager) sweepExpiredLocked(now time.Time) {
	var expired []Demand
	for source, demand := range m.demands {
		if demand.Expired(now) {
			expired = append(expired, demand)
			delete(m.demands, source)
		}
	}

	if len(expired) == 0 {
		return
	}

	if err := m.applyLocked(m.resolveLocked(), ReasonDemandExpired, ""); err != nil {
		logger.Warn().Err(err).Msg("Resolution after expiry sweep did not reach hardware")
	}

	for _, demand := range expired {
		logger.Info().
			Str("source", demand.Source).
			Str("level", demand.Level.String()).
			Msg("Demand expired")
		m.auditDemandEvent(EventDemandExpired, demand)
		m.recordLocked(HistoryEntry{
			Timestamp: now,
			Level:     m.current,
			Reason:    ReasonDemandExpired,
			Source:    demand.Source,
		})
	}
}
