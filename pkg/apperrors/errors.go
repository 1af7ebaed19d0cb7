package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrMappingDisabled     = errors.New("mapping is disabled")
	ErrMissingRowIDMapping = errors.New("column mappings do not map the glide row id")
	ErrSyncAlreadyRunning  = errors.New("a sync run is already active for this mapping")
)
