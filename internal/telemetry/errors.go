package telemetry

import "codeberg.org/mutker/cpuctl/internal/errors"

const (
	ErrStatUnavailable = errors.ErrorCode("telemetry_stat_unavailable")
	ErrStatMalformed   = errors.ErrorCode("telemetry_stat_malformed")
)
