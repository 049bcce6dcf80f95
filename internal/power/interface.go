package power

import (
	"time"

	"codeberg.org/mutker/cpuctl/internal/backend"
	"codeberg.org/mutker/cpuctl/internal/profile"
)

// Reason codes recorded with every committed transition
const (
	ReasonStartup             = "startup"
	ReasonDemand              = "demand"
	ReasonDemandReleased      = "demand_released"
	ReasonDemandExpired       = "demand_expired"
	ReasonManual              = "manual"
	ReasonAutoScalingCPU      = "auto_scaling_cpu"
	ReasonDynamicModeEnabled  = "dynamic_mode_enabled"
	ReasonDynamicModeDisabled = "dynamic_mode_disabled"
)

// Demand events mirrored to the audit sink
const (
	EventDemandRegistered   = "registered"
	EventDemandUnregistered = "unregistered"
	EventDemandExpired      = "expired"
)

// Demand is a named, possibly time-limited request for a minimum power
// level. Demands are owned exclusively by the manager's registry.
type Demand struct {
	Source       string
	Level        profile.Level
	Capability   string
	Description  string
	RegisteredAt time.Time
	// ExpiresAt zero means the demand never expires
	ExpiresAt time.Time
}

// Expired reports whether the demand's deadline has passed
func (d Demand) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !d.ExpiresAt.After(now)
}

// HistoryEntry records one committed state change
type HistoryEntry struct {
	Timestamp    time.Time
	Level        profile.Level
	Reason       string
	Source       string
	FrequencyMHz float64
}

// AutoScalingConfig controls the CPU-usage driven scaling path
type AutoScalingConfig struct {
	Enabled bool
	// Usage thresholds in percent, mapped highest first
	SurgeThreshold  float64
	MediumThreshold float64
	LowThreshold    float64
	// CooldownSeconds is the dwell time after a priority decrease before
	// auto-scaling may decrease again
	CooldownSeconds int
	// RequireTelemetry skips evaluation silently when no usage sample is
	// available instead of logging it
	RequireTelemetry bool
}

// DynamicModeConfig hands direct governor control to the operator; while
// enabled, demand-based resolution is suspended entirely.
type DynamicModeConfig struct {
	Enabled    bool
	Governor   string
	MinFreqMHz int
	MaxFreqMHz int
}

// Status is the authoritative snapshot of applied state. Registration
// records intent; Status reports fact.
type Status struct {
	CurrentLevel        profile.Level
	CurrentFrequencyMHz float64
	FrequencyKnown      bool
	TargetMinFreqMHz    int
	TargetMaxFreqMHz    int
	ActiveGovernor      string
	ActiveDemands       []Demand
	AutoScalingEnabled  bool
	BackendKind         backend.Kind
	BackendAvailable    bool
	Permissions         backend.Diagnostics
	CooldownRemaining   time.Duration
	DynamicMode         DynamicModeConfig
}

// UsageFunc samples current CPU usage percent. The second return is false
// while no sample is available, which disables the auto-scaling path.
type UsageFunc func() (float64, bool)

// PresetLookup optionally overrides the static catalog per level
type PresetLookup func(level profile.Level) (profile.Config, bool)

// ConfigStore persists auto-scaling and dynamic-mode configuration across
// restarts. The boolean return of the load methods reports presence.
type ConfigStore interface {
	LoadAutoScaling() (AutoScalingConfig, bool, error)
	SaveAutoScaling(cfg AutoScalingConfig) error
	LoadDynamicMode() (DynamicModeConfig, bool, error)
	SaveDynamicMode(cfg DynamicModeConfig) error
}

// AuditSink receives a durable copy of every history entry and demand
// event. Sink failures never affect in-memory state.
type AuditSink interface {
	RecordHistory(entry HistoryEntry) error
	RecordDemandEvent(event string, demand Demand) error
}
