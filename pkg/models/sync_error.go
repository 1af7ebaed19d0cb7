package models

import (
	"time"

	"github.com/google/uuid"
)

// Error kinds recorded in the ledger.
const (
	ErrorTypeValidation = "VALIDATION_ERROR"
	ErrorTypeTransform  = "TRANSFORM_ERROR"
	ErrorTypeAPI        = "API_ERROR"
	ErrorTypeRateLimit  = "RATE_LIMIT"
	ErrorTypeNetwork    = "NETWORK_ERROR"
)

// SyncError is one ledgered failure: a field that failed validation, a record
// missing its identifier, a rejected write chunk, or an aborted page fetch.
// Errors are resolved independently by an operator; a fresh run clears the
// mapping's unresolved errors before re-syncing.
type SyncError struct {
	ID              uuid.UUID      `json:"id"`
	MappingID       uuid.UUID      `json:"mapping_id"`
	ErrorType       string         `json:"error_type"`
	ErrorMessage    string         `json:"error_message"`
	RecordData      map[string]any `json:"record_data,omitempty"`
	Retryable       bool           `json:"retryable"`
	Resolved        bool           `json:"resolved"`
	ResolutionNotes *string        `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
