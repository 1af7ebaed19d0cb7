package models

import (
	"time"

	"github.com/google/uuid"
)

// Sync run statuses. A run is terminal once completed or failed.
const (
	RunStatusStarted    = "started"
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// SyncRun is the durable log of one orchestration invocation. It is created
// before the first external call so even a run whose first page fetch fails
// leaves a record.
type SyncRun struct {
	ID               uuid.UUID  `json:"id"`
	MappingID        uuid.UUID  `json:"mapping_id"`
	Status           string     `json:"status"`
	Message          string     `json:"message"`
	RecordsProcessed int        `json:"records_processed"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}
