package backend

import "codeberg.org/mutker/cpuctl/internal/errors"

const (
	// Discovery errors
	ErrBackendUnavailable = errors.ErrorCode("backend_unavailable")
	ErrNoCores            = errors.ErrorCode("backend_no_cores")

	// Apply errors
	ErrPermissionDenied = errors.ErrorCode("permission_denied")
	ErrTransientIO      = errors.ErrorCode("transient_io_error")
	ErrInvalidProfile   = errors.ErrorCode("invalid_configuration")
)
