package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// MappingRepository defines data access for table mappings.
type MappingRepository interface {
	// GetByID retrieves a mapping by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Mapping, error)

	// ListEnabled retrieves all enabled mappings whose direction includes
	// glide-to-supabase flow.
	ListEnabled(ctx context.Context) ([]*models.Mapping, error)
}

type mappingRepository struct {
	db *database.DB
}

// NewMappingRepository creates a new mapping repository.
func NewMappingRepository(db *database.DB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Mapping, error) {
	query := `
		SELECT id, connection_id, glide_table, supabase_table, sync_direction, enabled, column_mappings, created_at, updated_at
		FROM glide_mappings
		WHERE id = $1`

	m, err := scanMapping(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return m, nil
}

func (r *mappingRepository) ListEnabled(ctx context.Context) ([]*models.Mapping, error) {
	query := `
		SELECT id, connection_id, glide_table, supabase_table, sync_direction, enabled, column_mappings, created_at, updated_at
		FROM glide_mappings
		WHERE enabled = true AND sync_direction IN ($1, $2)
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, models.DirectionGlideToSupabase, models.DirectionBoth)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}

	return mappings, nil
}

func scanMapping(row pgx.Row) (*models.Mapping, error) {
	var m models.Mapping
	var columnMappings []byte
	err := row.Scan(
		&m.ID,
		&m.ConnectionID,
		&m.GlideTable,
		&m.SupabaseTable,
		&m.SyncDirection,
		&m.Enabled,
		&columnMappings,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(columnMappings) > 0 {
		if err := json.Unmarshal(columnMappings, &m.ColumnMappings); err != nil {
			return nil, fmt.Errorf("failed to decode column mappings: %w", err)
		}
	}
	return &m, nil
}

var _ MappingRepository = (*mappingRepository)(nil)
