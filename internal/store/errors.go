package store

import "github.com/linesights/powermon/internal/errors"

const (
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")
	ErrInvalidRecord = errors.ErrorCode("store_invalid_record")
	ErrStorageInit   = errors.ErrorCode("store_init_failed")
	ErrStorageAccess = errors.ErrorCode("store_access_failed")
	ErrStorageClose  = errors.ErrorCode("store_close_failed")
	ErrRecordTimeout = errors.ErrorCode("store_record_timeout")
	ErrSchemaInit    = errors.ErrorCode("store_schema_init_failed")
)
