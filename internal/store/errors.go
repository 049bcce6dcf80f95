package store

import "codeberg.org/mutker/cpuctl/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("store_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Storage errors
	ErrStorageInit   = errors.ErrorCode("store_init_failed")
	ErrStorageAccess = errors.ErrorCode("store_access_failed")
	ErrStorageClose  = errors.ErrorCode("store_close_failed")
	ErrSchemaInit    = errors.ErrorCode("store_schema_init_failed")

	// Encoding errors
	ErrEncodeSetting = errors.ErrorCode("store_encode_setting_failed")
	ErrDecodeSetting = errors.ErrorCode("store_decode_setting_failed")
)
