package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rowsync-inc/rowsync-engine/pkg/apperrors"
	"github.com/rowsync-inc/rowsync-engine/pkg/database"
	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// SyncRunRepository defines data access for sync run logs.
type SyncRunRepository interface {
	// Create inserts a new run log row in started state, before any external
	// call is made.
	Create(ctx context.Context, run *models.SyncRun) error

	// UpdateProgress moves the run to processing and refreshes its message
	// and cumulative record count.
	UpdateProgress(ctx context.Context, id uuid.UUID, message string, recordsProcessed int) error

	// Finish moves the run to a terminal status and stamps completed_at.
	Finish(ctx context.Context, id uuid.UUID, status, message string, recordsProcessed int) error
}

type syncRunRepository struct {
	db *database.DB
}

// NewSyncRunRepository creates a new sync run repository.
func NewSyncRunRepository(db *database.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	run.Status = models.RunStatusStarted
	run.StartedAt = time.Now()

	query := `
		INSERT INTO sync_logs (mapping_id, status, message, records_processed, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		run.MappingID,
		run.Status,
		run.Message,
		run.RecordsProcessed,
		run.StartedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	return nil
}

func (r *syncRunRepository) UpdateProgress(ctx context.Context, id uuid.UUID, message string, recordsProcessed int) error {
	query := `
		UPDATE sync_logs
		SET status = $2, message = $3, records_processed = $4
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, models.RunStatusProcessing, message, recordsProcessed)
	if err != nil {
		return fmt.Errorf("failed to update sync run progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *syncRunRepository) Finish(ctx context.Context, id uuid.UUID, status, message string, recordsProcessed int) error {
	query := `
		UPDATE sync_logs
		SET status = $2, message = $3, records_processed = $4, completed_at = $5
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, message, recordsProcessed, time.Now())
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

var _ SyncRunRepository = (*syncRunRepository)(nil)
