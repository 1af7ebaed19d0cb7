package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection holds the credentials and application identifier used to reach
// the Glide table API. Connections are created by an operator and are
// read-only during a sync run; the engine only stamps LastSync.
type Connection struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	APIKey    string     `json:"-"` // Secret - never serialized
	AppID     string     `json:"app_id"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
