package backend

import (
	"codeberg.org/mutker/cpuctl/internal/logger"
)

// Options selects the backend at construction time
type Options struct {
	// ForceSimulated skips hardware probing entirely
	ForceSimulated bool
	// SysfsPath overrides the cpufreq base path, mainly for tests
	SysfsPath string
}

// New probes for a cpufreq control surface and returns the matching
// Controller. A missing surface is never fatal: the simulated backend is
// returned instead so the rest of the engine keeps functioning.
func New(opts Options) Controller {
	if opts.ForceSimulated {
		logger.Info().Msg("Using simulated CPU control backend (forced)")
		return NewSimulated()
	}

	sysfs, err := NewSysfs(opts.SysfsPath)
	if err != nil {
		logger.Warn().Err(err).Msg("No cpufreq control surface detected, falling back to simulated backend")
		return NewSimulated()
	}

	logger.Info().Msg("Using sysfs CPU control backend")

	return sysfs
}
