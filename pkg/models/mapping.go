package models

import (
	"time"

	"github.com/google/uuid"
)

// Sync directions for a table mapping.
const (
	DirectionGlideToSupabase = "glide_to_supabase"
	DirectionSupabaseToGlide = "supabase_to_glide"
	DirectionBoth            = "both"
)

// GlideRowIDColumn is the relational column holding the Glide stable row
// identifier. Every synced table keys its upserts on this column, and every
// mapping must map some Glide field onto it.
const GlideRowIDColumn = "glide_row_id"

// ColumnMapping is one per-field rule of a table mapping: which Glide field
// feeds which relational column, and how the value is coerced.
type ColumnMapping struct {
	GlideColumnID   string `json:"glide_column_id"`
	GlideColumnName string `json:"glide_column_name"`
	SupabaseColumn  string `json:"supabase_column"`
	DataType        string `json:"data_type"` // string, number, boolean, date-time, image-uri, email-address
}

// Mapping pairs one Glide table with one relational table, carrying the
// ordered per-field rules used by the transformer.
type Mapping struct {
	ID             uuid.UUID       `json:"id"`
	ConnectionID   uuid.UUID       `json:"connection_id"`
	GlideTable     string          `json:"glide_table"`
	SupabaseTable  string          `json:"supabase_table"`
	SyncDirection  string          `json:"sync_direction"`
	Enabled        bool            `json:"enabled"`
	ColumnMappings []ColumnMapping `json:"column_mappings"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RowIDMapping returns the column mapping entry that feeds the glide_row_id
// column, or nil when the mapping is misconfigured and cannot be synced.
func (m *Mapping) RowIDMapping() *ColumnMapping {
	for i := range m.ColumnMappings {
		if m.ColumnMappings[i].SupabaseColumn == GlideRowIDColumn {
			return &m.ColumnMappings[i]
		}
	}
	return nil
}
