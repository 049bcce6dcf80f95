package power

import "codeberg.org/mutker/cpuctl/internal/errors"

const (
	// Request errors
	ErrInvalidDemand = errors.ErrorCode("power_invalid_demand")
	ErrInvalidLevel  = errors.ErrorCode("power_invalid_level")
	ErrInvalidConfig = errors.ErrorCode("invalid_configuration")

	// Apply errors
	ErrApplyFailed = errors.ErrorCode("power_apply_failed")

	// Lifecycle errors
	ErrAlreadyStarted = errors.ErrorCode("power_already_started")
)
