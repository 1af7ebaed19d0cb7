package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// SyncErrorRepository defines data access for the error ledger.
type SyncErrorRepository interface {
	// Create inserts a new error row.
	Create(ctx context.Context, syncErr *models.SyncError) error

	// Resolve marks an error resolved with an optional note. Resolving an
	// already-resolved error is a no-op success.
	Resolve(ctx context.Context, id uuid.UUID, note *string) error

	// List returns a mapping's errors, newest first, optionally including
	// resolved ones.
	List(ctx context.Context, mappingID uuid.UUID, includeResolved bool) ([]*models.SyncError, error)

	// DeleteUnresolved removes all unresolved errors for a mapping. Called
	// at the start of a fresh run, which supersedes stale unresolved errors.
	DeleteUnresolved(ctx context.Context, mappingID uuid.UUID) (int64, error)
}

type syncErrorRepository struct {
	db *database.DB
}

// NewSyncErrorRepository creates a new sync error repository.
func NewSyncErrorRepository(db *database.DB) SyncErrorRepository {
	return &syncErrorRepository{db: db}
}

func (r *syncErrorRepository) Create(ctx context.Context, syncErr *models.SyncError) error {
	var recordData []byte
	if syncErr.RecordData != nil {
		var err error
		recordData, err = json.Marshal(syncErr.RecordData)
		if err != nil {
			return fmt.Errorf("failed to encode record snapshot: %w", err)
		}
	}

	syncErr.CreatedAt = time.Now()

	query := `
		INSERT INTO sync_errors (mapping_id, error_type, error_message, record_data, retryable, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		syncErr.MappingID,
		syncErr.ErrorType,
		syncErr.ErrorMessage,
		recordData,
		syncErr.Retryable,
		syncErr.CreatedAt,
	).Scan(&syncErr.ID)
	if err != nil {
		return fmt.Errorf("failed to create sync error: %w", err)
	}

	return nil
}

func (r *syncErrorRepository) Resolve(ctx context.Context, id uuid.UUID, note *string) error {
	// resolved_at and notes are only written on the transition; re-resolving
	// keeps the original resolution.
	query := `
		UPDATE sync_errors
		SET resolved = true,
		    resolution_notes = COALESCE(resolution_notes, $2),
		    resolved_at = COALESCE(resolved_at, $3)
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, note, time.Now())
	if err != nil {
		return fmt.Errorf("failed to resolve sync error: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *syncErrorRepository) List(ctx context.Context, mappingID uuid.UUID, includeResolved bool) ([]*models.SyncError, error) {
	query := `
		SELECT id, mapping_id, error_type, error_message, record_data, retryable, resolved, resolution_notes, resolved_at, created_at
		FROM sync_errors
		WHERE mapping_id = $1 AND (resolved = false OR $2)
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, mappingID, includeResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync errors: %w", err)
	}
	defer rows.Close()

	var syncErrors []*models.SyncError
	for rows.Next() {
		se, err := scanSyncError(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync error: %w", err)
		}
		syncErrors = append(syncErrors, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync errors: %w", err)
	}

	return syncErrors, nil
}

func (r *syncErrorRepository) DeleteUnresolved(ctx context.Context, mappingID uuid.UUID) (int64, error) {
	query := `DELETE FROM sync_errors WHERE mapping_id = $1 AND resolved = false`

	result, err := r.db.Exec(ctx, query, mappingID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear unresolved sync errors: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanSyncError(row pgx.Row) (*models.SyncError, error) {
	var se models.SyncError
	var recordData []byte
	err := row.Scan(
		&se.ID,
		&se.MappingID,
		&se.ErrorType,
		&se.ErrorMessage,
		&recordData,
		&se.Retryable,
		&se.Resolved,
		&se.ResolutionNotes,
		&se.ResolvedAt,
		&se.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(recordData) > 0 {
		if err := json.Unmarshal(recordData, &se.RecordData); err != nil {
			return nil, fmt.Errorf("failed to decode record snapshot: %w", err)
		}
	}
	return &se, nil
}

var _ SyncErrorRepository = (*syncErrorRepository)(nil)
